package features

import (
	"regexp"
	"strings"
	"unicode"
)

// Entity is a (text, label) pair extracted from a transaction description.
type Entity struct {
	Text  string
	Label string
}

// Entity labels produced by ExtractEntities.
const (
	LabelOrg   = "ORG"
	LabelTerm  = "TERM"
	LabelMoney = "MONEY"
	LabelDate  = "DATE"
)

var (
	moneyRe = regexp.MustCompile(`[$€£]\s?\d[\d,]*(?:\.\d+)?`)
	dateRe  = regexp.MustCompile(`\b(?:\d{4}-\d{2}-\d{2}|\d{1,2}/\d{1,2}/\d{2,4})\b`)

	// orgMarkers flag a capitalized span as an organization name.
	orgMarkers = []string{"ltd", "inc", "corp", "llc", "plc", "gmbh", "bank", "co"}
)

// ExtractEntities runs rule-based named-entity extraction over the original
// (case-preserved) description. Capitalized spans become ORG or TERM
// entities; the individual capitalized words are also emitted so that
// partial overlaps with account names can match. Currency amounts and
// embedded dates get MONEY and DATE labels.
func ExtractEntities(description string) []Entity {
	var entities []Entity

	words := strings.Fields(description)
	var span []string

	flush := func() {
		if len(span) == 0 {
			return
		}
		text := strings.Join(span, " ")
		entities = append(entities, Entity{Text: text, Label: spanLabel(span)})
		if len(span) > 1 {
			for _, w := range span {
				entities = append(entities, Entity{Text: w, Label: LabelTerm})
			}
		}
		span = nil
	}

	for _, word := range words {
		trimmed := strings.TrimFunc(word, func(r rune) bool {
			return !unicode.IsLetter(r) && !unicode.IsDigit(r)
		})
		if isCapitalizedWord(trimmed) {
			span = append(span, trimmed)
			continue
		}
		flush()
	}
	flush()

	for _, m := range moneyRe.FindAllString(description, -1) {
		entities = append(entities, Entity{Text: m, Label: LabelMoney})
	}
	for _, m := range dateRe.FindAllString(description, -1) {
		entities = append(entities, Entity{Text: m, Label: LabelDate})
	}

	return entities
}

// spanLabel classifies a capitalized span as ORG or TERM.
func spanLabel(span []string) string {
	for _, w := range span {
		lower := strings.ToLower(w)
		for _, marker := range orgMarkers {
			if lower == marker {
				return LabelOrg
			}
		}
	}
	return LabelTerm
}

// isCapitalizedWord reports whether the word looks like a proper noun:
// either title-cased ("Rent") or all-caps ("ACME").
func isCapitalizedWord(word string) bool {
	if len(word) < 2 {
		return false
	}

	runes := []rune(word)
	if !unicode.IsUpper(runes[0]) {
		return false
	}

	// All-caps words (acronyms, vendor codes) count as capitalized too.
	rest := runes[1:]
	allUpper := true
	allLower := true
	for _, r := range rest {
		if !unicode.IsUpper(r) {
			allUpper = false
		}
		if !unicode.IsLower(r) {
			allLower = false
		}
	}
	return allUpper || allLower
}
