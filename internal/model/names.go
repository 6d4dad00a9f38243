package model

import (
	"strings"

	"golang.org/x/text/cases"
	"golang.org/x/text/unicode/norm"
)

// NormalizeName produces the comparison form of a department or scheduling
// group name: NFC-normalised, case-folded, with inner whitespace collapsed.
// Two names that normalise equal refer to the same scheduling group.
func NormalizeName(s string) string {
	s = norm.NFC.String(strings.TrimSpace(s))
	s = strings.Join(strings.Fields(s), " ")
	return cases.Fold().String(s)
}

func lower(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}
