// Package release models OpenBSD release numbers.
//
// OpenBSD ships two releases a year and numbers them major.minor, where the
// minor part runs from 0 to 9 before the major part rolls over (6.9 -> 7.0).
package release

import (
	"fmt"
	"strconv"
	"strings"
)

// MaxMinor is the highest minor number within one major line.
const MaxMinor = 9

// Version is a two-part release version such as 7.5.
type Version struct {
	Major uint
	Minor uint
}

// ParseError reports a release string that is not "major.minor".
type ParseError struct {
	Input  string
	Reason string
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("invalid release version %q: %s", e.Input, e.Reason)
}

// Parse reads a "major.minor" release string as reported by uname -r.
func Parse(s string) (Version, error) {
	s = strings.TrimSpace(s)

	majorStr, minorStr, ok := strings.Cut(s, ".")
	if !ok {
		return Version{}, &ParseError{Input: s, Reason: "missing '.' separator"}
	}

	major, err := parseComponent(majorStr)
	if err != nil {
		return Version{}, &ParseError{Input: s, Reason: "major: " + err.Error()}
	}
	minor, err := parseComponent(minorStr)
	if err != nil {
		return Version{}, &ParseError{Input: s, Reason: "minor: " + err.Error()}
	}
	if minor > MaxMinor {
		return Version{}, &ParseError{Input: s, Reason: fmt.Sprintf("minor %d exceeds %d", minor, MaxMinor)}
	}

	return Version{Major: major, Minor: minor}, nil
}

func parseComponent(s string) (uint, error) {
	if s == "" {
		return 0, fmt.Errorf("empty component")
	}
	n, err := strconv.ParseUint(s, 10, 32)
	if err != nil {
		return 0, fmt.Errorf("not a non-negative integer")
	}
	return uint(n), nil
}

// Next returns the release that follows v.
func (v Version) Next() Version {
	if v.Minor < MaxMinor {
		return Version{Major: v.Major, Minor: v.Minor + 1}
	}
	return Version{Major: v.Major + 1, Minor: 0}
}

func (v Version) String() string {
	return fmt.Sprintf("%d.%d", v.Major, v.Minor)
}
