package persistence

import (
	"strings"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

var searchFolder = cases.Lower(language.Und)

// likePattern folds a free-text term for a LOWER(column) LIKE comparison.
// It returns "" when the term is blank.
func likePattern(term string) string {
	term = strings.TrimSpace(term)
	if term == "" {
		return ""
	}
	replacer := strings.NewReplacer(`\`, `\\`, "%", `\%`, "_", `\_`)
	return "%" + replacer.Replace(searchFolder.String(term)) + "%"
}
