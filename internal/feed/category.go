package feed

import (
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"

	"cecal/internal/model"
)

// categoryRules are checked in order; the first substring found wins.
var categoryRules = []struct {
	substr   string
	category model.Category
}{
	{"activ", model.CategoryActivacion},
	{"curso", model.CategoryCurso},
	{"taller", model.CategoryTaller},
	{"grupo", model.CategoryGrupo},
	{"evento", model.CategoryEvento},
}

// NormalizeCategory maps a raw category string to the fixed enumeration.
// Absent or unrecognized values map to otro.
func NormalizeCategory(raw string) model.Category {
	folded := fold(raw)
	if folded == "" {
		return model.CategoryOtro
	}
	for _, r := range categoryRules {
		if strings.Contains(folded, r.substr) {
			return r.category
		}
	}
	return model.CategoryOtro
}

// fold lower-cases s and strips diacritics ("Categoría" -> "categoria").
func fold(s string) string {
	t := transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	out, _, err := transform.String(t, s)
	if err != nil {
		out = s
	}
	return strings.ToLower(strings.TrimSpace(out))
}
