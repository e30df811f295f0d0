package codec

import (
	"strconv"
	"strings"
	"unicode"
	"unicode/utf8"

	"golang.org/x/text/unicode/norm"
)

// MaxSheetNameLength is the longest sheet name a workbook accepts
const MaxSheetNameLength = 31

// reservedSheetName is used internally by spreadsheet applications
const reservedSheetName = "History"

// SanitizeSheetName maps an artifact name onto the sheet name rules:
// at most 31 characters, none of : \ / ? * [ ], no leading or trailing
// apostrophe, not empty.
func SanitizeSheetName(name string) string {
	name = norm.NFC.String(name)
	name = strings.Map(func(r rune) rune {
		switch r {
		case ':', '\\', '/', '?', '*', '[', ']':
			return '_'
		}
		if unicode.IsControl(r) {
			return '_'
		}
		return r
	}, name)

	name = strings.Trim(name, "' ")
	name = strings.TrimRight(truncateRunes(name, MaxSheetNameLength), "' ")
	if name == "" {
		return "sheet"
	}
	return name
}

func truncateRunes(s string, n int) string {
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	i := 0
	for pos := range s {
		if i == n {
			return s[:pos]
		}
		i++
	}
	return s
}

// SheetNamer hands out unique sheet names. Names compare case-insensitively;
// a collision gets a numeric suffix (_2, _3, ...) with the base shortened to fit.
type SheetNamer struct {
	used map[string]bool
}

// NewSheetNamer returns a namer with no names taken
func NewSheetNamer() *SheetNamer {
	return &SheetNamer{used: make(map[string]bool)}
}

// Assign returns the sheet name for an artifact and marks it taken
func (n *SheetNamer) Assign(artifact string) string {
	base := SanitizeSheetName(artifact)
	candidate := base
	for i := 2; n.taken(candidate); i++ {
		suffix := "_" + strconv.Itoa(i)
		trimmed := strings.TrimRight(truncateRunes(base, MaxSheetNameLength-len(suffix)), "' ")
		candidate = trimmed + suffix
	}
	n.used[strings.ToLower(candidate)] = true
	return candidate
}

func (n *SheetNamer) taken(name string) bool {
	return n.used[strings.ToLower(name)] || strings.EqualFold(name, reservedSheetName)
}
