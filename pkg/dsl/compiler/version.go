package compiler

import (
	"fmt"
	"strings"

	"github.com/quidditch/esdsl/pkg/dsl/expr"
)

// Version is the Elasticsearch request schema a compiler targets
type Version int

const (
	// V1 wraps filters into a filtered query
	V1 Version = iota + 1
	// V2 puts filters into the filter clause of a bool query
	V2
)

// String returns the string representation of the version
func (v Version) String() string {
	switch v {
	case V1:
		return "1.x"
	case V2:
		return "2.x"
	default:
		return "unknown"
	}
}

// ParseVersion parses "1.x", "2.x" or a bare major version.
func ParseVersion(s string) (Version, error) {
	major := strings.TrimSuffix(strings.TrimSpace(strings.ToLower(s)), ".x")
	switch major {
	case "1":
		return V1, nil
	case "2":
		return V2, nil
	default:
		return 0, fmt.Errorf("unsupported engine version %q", s)
	}
}

// versionStrategy holds the parts of query assembly that differ between
// schema versions.
type versionStrategy struct {
	filtered func(q any, filter any) any
}

var strategies = map[Version]versionStrategy{
	V1: {
		filtered: func(q, filter any) any { return expr.Filtered(q, filter) },
	},
	V2: {
		filtered: func(q, filter any) any { return expr.Bool(expr.P("must", q, "filter", filter)) },
	},
}
