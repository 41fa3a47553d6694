package domain

import "strings"

// makeAliases maps abbreviations/nicknames/misspellings of vehicle makes to
// canonical names, so OCR spelling variants of the same make do not register
// as data inconsistencies between documents.
var makeAliases = map[string]string{
	"chevy":         "Chevrolet",
	"chevrolet":     "Chevrolet",
	"merc":          "Mercedes-Benz",
	"benz":          "Mercedes-Benz",
	"mercedes":      "Mercedes-Benz",
	"mercedes-benz": "Mercedes-Benz",
	"vw":            "Volkswagen",
	"volkswagen":    "Volkswagen",
	"intl":          "International",
	"international": "International",
	"freightliner":  "Freightliner",
	"peterbilt":     "Peterbilt",
	"kenworth":      "Kenworth",
	"mack":          "Mack",
	"volvo":         "Volvo",
	"toyota":        "Toyota",
	"honda":         "Honda",
	"ford":          "Ford",
	"ram":           "Ram",
	"gmc":           "GMC",
	"dodge":         "Dodge",
	"nissan":        "Nissan",
	"hyundai":       "Hyundai",
	"isuzu":         "Isuzu",
	"hino":          "Hino",
}

// NormalizeMake maps a make string to its canonical spelling. Unknown makes
// are returned trimmed but otherwise untouched.
func NormalizeMake(make string) string {
	trimmed := strings.TrimSpace(make)
	if canonical, ok := makeAliases[strings.ToLower(trimmed)]; ok {
		return canonical
	}
	return trimmed
}

// SameMake reports whether two make strings refer to the same manufacturer
// after alias normalisation and case folding.
func SameMake(a, b string) bool {
	return strings.EqualFold(NormalizeMake(a), NormalizeMake(b))
}
