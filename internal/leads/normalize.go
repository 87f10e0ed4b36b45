package leads

import (
	"fmt"
	"strings"

	"github.com/rotisserie/eris"
	"golang.org/x/text/unicode/norm"

	"github.com/sells-group/farm-seeder/internal/model"
)

// Normalize returns copies of the leads with text fields NFC-normalized,
// trimmed and whitespace-collapsed. Empty products are dropped.
func Normalize(in []model.Lead) []model.Lead {
	out := make([]model.Lead, len(in))
	for i, l := range in {
		products := make([]string, 0, len(l.Products))
		for _, p := range l.Products {
			if p = cleanText(p); p != "" {
				products = append(products, p)
			}
		}
		out[i] = model.Lead{
			Name:     cleanText(l.Name),
			Address:  cleanText(l.Address),
			Products: products,
			Phone:    cleanText(l.Phone),
		}
	}
	return out
}

// Validate rejects leads without a name or address and duplicate names
// within one batch. All problems are reported in a single error.
func Validate(leads []model.Lead) error {
	var problems []string
	seen := make(map[string]int, len(leads))

	for i, l := range leads {
		row := i + 1
		if l.Name == "" {
			problems = append(problems, fmt.Sprintf("lead %d: name is required", row))
			continue
		}
		if l.Address == "" {
			problems = append(problems, fmt.Sprintf("lead %d (%s): address is required", row, l.Name))
		}
		if first, dup := seen[l.Name]; dup {
			problems = append(problems, fmt.Sprintf("lead %d (%s): duplicate of lead %d", row, l.Name, first))
			continue
		}
		seen[l.Name] = row
	}

	if len(problems) > 0 {
		return eris.Errorf("leads: %d invalid: %s", len(problems), strings.Join(problems, "; "))
	}
	return nil
}

func cleanText(s string) string {
	return strings.Join(strings.Fields(norm.NFC.String(s)), " ")
}

// splitProducts splits a flat products cell on ';' or '|'.
func splitProducts(s string) []string {
	fields := strings.FieldsFunc(s, func(r rune) bool { return r == ';' || r == '|' })
	out := make([]string, 0, len(fields))
	for _, f := range fields {
		if f = strings.TrimSpace(f); f != "" {
			out = append(out, f)
		}
	}
	return out
}
