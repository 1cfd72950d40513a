package core

// convert.go types CSV cell values for request bodies.

import (
	"strconv"
	"strings"
)

// typedValue converts an update cell to the most specific JSON type it parses
// as: integer first, then boolean, else the string itself.
//
// Leading zeros are not preserved: "007" is sent as 7.
func typedValue(s string) any {
	if n, err := strconv.Atoi(s); err == nil {
		return n
	}
	switch strings.ToLower(s) {
	case "true":
		return true
	case "false":
		return false
	}
	return s
}
