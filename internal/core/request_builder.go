package core

// request_builder.go maps one CSV row to one remote request.
//
// Every action is an entry in actionSpecs: the remote API, HTTP method, the
// required columns (checked in order) and a build function that owns the URL
// template and body shape. Builders read only the current row. Missing or
// malformed values come back as *ValidationFailure, never as a panic.

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"sort"
	"strconv"
	"strings"
)

// ErrUnknownAction is returned for an action with no contract.
var ErrUnknownAction = errors.New("unknown action")

// ActionSpec is the request contract of one action.
type ActionSpec struct {
	Action   Action   `json:"action"`
	API      API      `json:"api"`
	Method   string   `json:"method"`
	Path     string   `json:"path"`
	Required []string `json:"required"`
	Optional []string `json:"optional,omitempty"`

	build func(r rowView) (Request, error)
}

// Column names with fixed meaning across actions.
const (
	colUserID        = "user_id"
	colGroupID       = "group_id"
	colMemberType    = "type"
	colName          = "name"
	colPartition     = "userPartitionID"
	colParentGroupID = "parent_group_id"
	colLocation      = "location"
)

// attributeFields are packaged into the OTDS "values" list instead of being
// sent as top-level keys.
var attributeFields = []string{"cn", "sn", "givenName", "displayName", "mail", "userPassword", "description"}

// topLevelFields stay top-level in attribute-list bodies.
var topLevelFields = []string{colPartition, "id", colName, colLocation}

var actionSpecs = map[Action]ActionSpec{
	ActionSearchUsers: {
		API: APIContentServer, Method: http.MethodGet, Path: "/api/v2/members?where_type=0&query={name}",
		Required: []string{colName},
		build:    buildMemberSearch(0),
	},
	ActionSearchUserByID: {
		API: APIContentServer, Method: http.MethodGet, Path: "/api/v2/members/{user_id}",
		Required: []string{colUserID},
		build:    buildSearchByID,
	},
	ActionCreateUser: {
		API: APIContentServer, Method: http.MethodPost, Path: "/api/v2/members",
		Required: []string{colMemberType, colGroupID, colName},
		Optional: createMemberOptional,
		build:    buildCreateMember,
	},
	ActionUpdateUser: {
		API: APIContentServer, Method: http.MethodPut, Path: "/api/v2/members/{user_id}",
		Required: []string{colUserID},
		build:    buildUpdateMember(colUserID),
	},
	ActionDeleteUser: {
		API: APIContentServer, Method: http.MethodDelete, Path: "/api/v2/members/{user_id}",
		Required: []string{colUserID},
		build:    buildDeleteMember(colUserID),
	},
	ActionSearchGroups: {
		API: APIContentServer, Method: http.MethodGet, Path: "/api/v2/members?where_type=1&query={name}",
		Required: []string{colName},
		build:    buildMemberSearch(1),
	},
	ActionCreateGroup: {
		API: APIDirectory, Method: http.MethodPost, Path: "/rest/groups",
		Required: []string{colPartition, colName},
		Optional: append([]string{"id", colLocation}, attributeFields...),
		build:    buildAttributeCreate("/rest/groups"),
	},
	ActionCreateSubGroup: {
		API: APIDirectory, Method: http.MethodPost, Path: "/rest/groups",
		Required: []string{colPartition, colName, colParentGroupID},
		Optional: append([]string{"id"}, attributeFields...),
		build:    buildCreateSubGroup,
	},
	ActionCreateDirectoryUser: {
		API: APIDirectory, Method: http.MethodPost, Path: "/rest/users",
		Required: []string{colPartition, colName},
		Optional: append([]string{"id", colLocation}, attributeFields...),
		build:    buildAttributeCreate("/rest/users"),
	},
	ActionUpdateGroup: {
		API: APIContentServer, Method: http.MethodPut, Path: "/api/v2/members/{group_id}",
		Required: []string{colGroupID},
		build:    buildUpdateMember(colGroupID),
	},
	ActionDeleteGroup: {
		API: APIContentServer, Method: http.MethodDelete, Path: "/api/v2/members/{group_id}",
		Required: []string{colGroupID},
		build:    buildDeleteMember(colGroupID),
	},
	ActionAddUserToGroup: {
		API: APIContentServer, Method: http.MethodPost, Path: "/api/v2/members/{group_id}/members",
		Required: []string{colGroupID, colUserID},
		build:    buildAddToGroup,
	},
	ActionRemoveUserFromGroup: {
		API: APIContentServer, Method: http.MethodDelete, Path: "/api/v2/members/{group_id}/members/{user_id}",
		Required: []string{colGroupID, colUserID},
		build:    buildRemoveFromGroup,
	},
}

// LookupAction returns the contract for a.
func LookupAction(a Action) (ActionSpec, bool) {
	spec, ok := actionSpecs[a]
	if ok {
		spec.Action = a
	}
	return spec, ok
}

// ParseAction resolves a user-supplied action name, ignoring case.
func ParseAction(name string) (Action, error) {
	for a := range actionSpecs {
		if strings.EqualFold(string(a), strings.TrimSpace(name)) {
			return a, nil
		}
	}
	return "", fmt.Errorf("%w: %q", ErrUnknownAction, name)
}

// Actions returns every contract sorted by action name.
func Actions() []ActionSpec {
	out := make([]ActionSpec, 0, len(actionSpecs))
	for a := range actionSpecs {
		spec, _ := LookupAction(a)
		out = append(out, spec)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Action < out[j].Action })
	return out
}

// BuildRequest builds the request for one data row of table.
// rowNumber is the 1-based data row number used in failure reasons.
func BuildRequest(action Action, table *CsvTable, row []string, rowNumber int) (Request, error) {
	spec, ok := LookupAction(action)
	if !ok {
		return Request{}, fmt.Errorf("%w: %q", ErrUnknownAction, action)
	}
	req, err := spec.build(rowView{table: table, row: row, number: rowNumber})
	if err != nil {
		return Request{}, err
	}
	req.Action = action
	req.API = spec.API
	req.Method = spec.Method
	return req, nil
}

// rowView gives builders checked access to one row.
type rowView struct {
	table  *CsvTable
	row    []string
	number int
}

func (r rowView) get(col string) string {
	return r.table.Column(r.row, col)
}

func (r rowView) invalid(col, value string) error {
	return &ValidationFailure{
		Row:    r.number,
		Reason: fmt.Sprintf("Invalid or missing '%s' value: '%s'", col, value),
	}
}

func (r rowView) requireString(col string) (string, error) {
	v := r.get(col)
	if v == "" {
		return "", r.invalid(col, v)
	}
	return v, nil
}

func (r rowView) requireInt(col string) (int, error) {
	v := r.get(col)
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, r.invalid(col, v)
	}
	return n, nil
}

// identifier locates the entity id column by name, falling back to column 0.
func (r rowView) identifier(col string) (int, string, error) {
	idx, ok := r.table.HeaderIndex(col)
	if !ok {
		idx = 0
	}
	v := r.table.ColumnAt(r.row, idx)
	if v == "" {
		return idx, "", r.invalid(col, v)
	}
	return idx, v, nil
}

func memberPath(id string, rest ...string) string {
	p := "/api/v2/members/" + url.PathEscape(id)
	for _, seg := range rest {
		p += "/" + url.PathEscape(seg)
	}
	return p
}

func buildMemberSearch(memberType int) func(r rowView) (Request, error) {
	return func(r rowView) (Request, error) {
		name, err := r.requireString(colName)
		if err != nil {
			return Request{}, err
		}
		q := url.Values{}
		q.Set("where_type", strconv.Itoa(memberType))
		q.Set("query", name)
		return Request{Path: "/api/v2/members?" + q.Encode()}, nil
	}
}

func buildSearchByID(r rowView) (Request, error) {
	id, err := r.requireInt(colUserID)
	if err != nil {
		return Request{}, err
	}
	return Request{Path: memberPath(strconv.Itoa(id))}, nil
}

// createMemberOptional are the member fields a CreateUser row may carry
// beyond the required ones. Other columns are not sent.
var createMemberOptional = []string{"first_name", "last_name", "password", "personal_email", "business_email", "gender"}

func buildCreateMember(r rowView) (Request, error) {
	memberType, err := r.requireInt(colMemberType)
	if err != nil {
		return Request{}, err
	}
	groupID, err := r.requireInt(colGroupID)
	if err != nil {
		return Request{}, err
	}
	name, err := r.requireString(colName)
	if err != nil {
		return Request{}, err
	}

	body := map[string]any{
		colMemberType: memberType,
		colGroupID:    groupID,
		colName:       name,
	}
	for _, field := range createMemberOptional {
		if v := r.get(field); v != "" {
			body[field] = v
		}
	}
	return Request{Path: "/api/v2/members", Body: body}, nil
}

// buildUpdateMember sends every non-empty column other than the identifier,
// each value typed by typedValue.
func buildUpdateMember(idCol string) func(r rowView) (Request, error) {
	return func(r rowView) (Request, error) {
		idIdx, id, err := r.identifier(idCol)
		if err != nil {
			return Request{}, err
		}
		body := map[string]any{}
		for i, h := range r.table.Headers {
			key := strings.TrimSpace(h)
			if i == idIdx || key == "" {
				continue
			}
			if v := r.table.ColumnAt(r.row, i); v != "" {
				body[key] = typedValue(v)
			}
		}
		if len(body) == 0 {
			return Request{}, &ValidationFailure{
				Row:    r.number,
				Reason: fmt.Sprintf("No update values provided for '%s' %s", idCol, id),
			}
		}
		return Request{Path: memberPath(id), Body: body}, nil
	}
}

func buildDeleteMember(idCol string) func(r rowView) (Request, error) {
	return func(r rowView) (Request, error) {
		_, id, err := r.identifier(idCol)
		if err != nil {
			return Request{}, err
		}
		return Request{Path: memberPath(id)}, nil
	}
}

func buildAddToGroup(r rowView) (Request, error) {
	groupID, err := r.requireInt(colGroupID)
	if err != nil {
		return Request{}, err
	}
	userID, err := r.requireInt(colUserID)
	if err != nil {
		return Request{}, err
	}
	return Request{
		Path: memberPath(strconv.Itoa(groupID), "members"),
		Body: map[string]any{"member_id": userID},
	}, nil
}

func buildRemoveFromGroup(r rowView) (Request, error) {
	groupID, err := r.requireInt(colGroupID)
	if err != nil {
		return Request{}, err
	}
	userID, err := r.requireInt(colUserID)
	if err != nil {
		return Request{}, err
	}
	return Request{Path: memberPath(strconv.Itoa(groupID), "members", strconv.Itoa(userID))}, nil
}

// attributeEntry is one element of an OTDS "values" list.
type attributeEntry struct {
	Name   string   `json:"name"`
	Values []string `json:"values"`
}

func canonical(name string, options []string) (string, bool) {
	for _, o := range options {
		if strings.EqualFold(o, name) {
			return o, true
		}
	}
	return "", false
}

// attributeBody builds an OTDS create body. Known top-level fields keep their
// place; every other non-empty column except skip becomes a values entry, in
// header order.
func attributeBody(r rowView, skip ...string) map[string]any {
	body := map[string]any{}
	values := []attributeEntry{}
	for i, h := range r.table.Headers {
		key := strings.TrimSpace(h)
		v := r.table.ColumnAt(r.row, i)
		if key == "" || v == "" {
			continue
		}
		if _, skipped := canonical(key, skip); skipped {
			continue
		}
		if name, ok := canonical(key, topLevelFields); ok {
			body[name] = v
			continue
		}
		if name, ok := canonical(key, attributeFields); ok {
			key = name
		}
		values = append(values, attributeEntry{Name: key, Values: []string{v}})
	}
	body["values"] = values
	return body
}

func buildAttributeCreate(path string) func(r rowView) (Request, error) {
	return func(r rowView) (Request, error) {
		for _, col := range []string{colPartition, colName} {
			if _, err := r.requireString(col); err != nil {
				return Request{}, err
			}
		}
		return Request{Path: path, Body: attributeBody(r)}, nil
	}
}

// buildCreateSubGroup needs the parent's location, so it carries a lookup of
// the parent group whose response completes the body.
func buildCreateSubGroup(r rowView) (Request, error) {
	for _, col := range []string{colPartition, colName} {
		if _, err := r.requireString(col); err != nil {
			return Request{}, err
		}
	}
	parentID, err := r.requireString(colParentGroupID)
	if err != nil {
		return Request{}, err
	}

	body := attributeBody(r, colParentGroupID, colLocation)
	return Request{
		Path: "/rest/groups",
		Body: body,
		Lookup: &Request{
			API:    APIDirectory,
			Method: http.MethodGet,
			Path:   "/rest/groups/" + url.PathEscape(parentID),
		},
		Resolve: func(body map[string]any, resp []byte) error {
			var parent struct {
				Location string `json:"location"`
			}
			if err := json.Unmarshal(resp, &parent); err != nil || parent.Location == "" {
				return &ValidationFailure{
					Row:    r.number,
					Reason: fmt.Sprintf("Parent group '%s' has no location", parentID),
				}
			}
			body[colLocation] = parent.Location
			return nil
		},
	}, nil
}
