// Package leads supplies the lead list for a seeding run, either compiled in
// or loaded from a local YAML, CSV or XLSX file.
package leads

import "github.com/sells-group/farm-seeder/internal/model"

var builtin = []model.Lead{
	{
		Name:     "Dairy King Estate",
		Address:  "Irene Dairy Farm, Pretoria, South Africa",
		Products: []string{"Milk", "Cream", "Butter"},
		Phone:    "012-000-1111",
	},
	{
		Name:     "Jozi Organic Veg",
		Address:  "Muldersdrift, Gauteng, South Africa",
		Products: []string{"Spinach", "Kale", "Tomatoes"},
		Phone:    "082-999-8888",
	},
	{
		Name:     "Stellenbosch Berries",
		Address:  "Stellenbosch Central, Western Cape, South Africa",
		Products: []string{"Strawberries", "Blueberries"},
		Phone:    "021-888-7777",
	},
}

// Builtin returns a copy of the compiled-in leads.
func Builtin() []model.Lead {
	out := make([]model.Lead, len(builtin))
	for i, l := range builtin {
		l.Products = append([]string(nil), l.Products...)
		out[i] = l
	}
	return out
}
