package leads

import (
	"encoding/csv"
	"errors"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/jszwec/csvutil"
	"github.com/rotisserie/eris"
	"github.com/tealeg/xlsx/v2"
	"gopkg.in/yaml.v3"

	"github.com/sells-group/farm-seeder/internal/model"
)

// csvLead is the flat row shape of CSV and XLSX lead files. Products are a
// single cell separated by ';' or '|'.
type csvLead struct {
	Name     string `csv:"name"`
	Address  string `csv:"address"`
	Products string `csv:"products"`
	Phone    string `csv:"phone"`
}

func (r csvLead) lead() model.Lead {
	return model.Lead{
		Name:     r.Name,
		Address:  r.Address,
		Products: splitProducts(r.Products),
		Phone:    r.Phone,
	}
}

// Resolve returns the normalized, validated leads for a run: the file at
// path when set, otherwise the compiled-in list.
func Resolve(path string) ([]model.Lead, error) {
	var (
		raw []model.Lead
		err error
	)
	if path == "" {
		raw = Builtin()
	} else if raw, err = Load(path); err != nil {
		return nil, err
	}

	out := Normalize(raw)
	if err := Validate(out); err != nil {
		return nil, err
	}
	return out, nil
}

// Load reads leads from a .yaml/.yml, .csv or .xlsx file.
func Load(path string) ([]model.Lead, error) {
	switch ext := strings.ToLower(filepath.Ext(path)); ext {
	case ".yaml", ".yml":
		return loadYAML(path)
	case ".csv":
		return loadCSV(path)
	case ".xlsx":
		return loadXLSX(path)
	default:
		return nil, eris.Errorf("leads: unsupported file type %q", ext)
	}
}

func loadYAML(path string) ([]model.Lead, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, eris.Wrap(err, "leads: read yaml")
	}

	var out []model.Lead
	if err := yaml.Unmarshal(data, &out); err != nil {
		return nil, eris.Wrapf(err, "leads: parse yaml %s", path)
	}
	return out, nil
}

// loadCSV decodes rows by header name. Headers are matched case-insensitively
// like the XLSX loader, so "Name,Address" works as well as "name,address".
func loadCSV(path string) ([]model.Lead, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, eris.Wrap(err, "leads: read csv")
	}
	defer f.Close() //nolint:errcheck

	r := csv.NewReader(f)
	header, err := r.Read()
	if errors.Is(err, io.EOF) {
		return nil, nil
	}
	if err != nil {
		return nil, eris.Wrapf(err, "leads: parse csv %s", path)
	}

	cols := make(map[string]bool, len(header))
	for i, h := range header {
		header[i] = strings.ToLower(strings.TrimSpace(strings.TrimPrefix(h, "\ufeff")))
		cols[header[i]] = true
	}
	for _, required := range []string{"name", "address"} {
		if !cols[required] {
			return nil, eris.Errorf("leads: %s missing %q column", path, required)
		}
	}

	dec, err := csvutil.NewDecoder(r, header...)
	if err != nil {
		return nil, eris.Wrapf(err, "leads: parse csv %s", path)
	}

	var out []model.Lead
	for {
		var row csvLead
		if err := dec.Decode(&row); errors.Is(err, io.EOF) {
			break
		} else if err != nil {
			return nil, eris.Wrapf(err, "leads: parse csv %s", path)
		}
		out = append(out, row.lead())
	}
	return out, nil
}

// loadXLSX reads the first sheet. The first row is a header; columns are
// matched by name, case-insensitively.
func loadXLSX(path string) ([]model.Lead, error) {
	f, err := xlsx.OpenFile(path)
	if err != nil {
		return nil, eris.Wrap(err, "leads: open xlsx")
	}
	if len(f.Sheets) == 0 {
		return nil, eris.Errorf("leads: %s has no sheets", path)
	}

	sheet := f.Sheets[0]
	if len(sheet.Rows) == 0 {
		return nil, nil
	}

	cols := make(map[string]int)
	for i, cell := range sheet.Rows[0].Cells {
		cols[strings.ToLower(strings.TrimSpace(cell.String()))] = i
	}
	for _, required := range []string{"name", "address"} {
		if _, ok := cols[required]; !ok {
			return nil, eris.Errorf("leads: %s missing %q column", path, required)
		}
	}

	var out []model.Lead
	for _, row := range sheet.Rows[1:] {
		get := func(col string) string {
			i, ok := cols[col]
			if !ok || i >= len(row.Cells) {
				return ""
			}
			return row.Cells[i].String()
		}
		r := csvLead{
			Name:     get("name"),
			Address:  get("address"),
			Products: get("products"),
			Phone:    get("phone"),
		}
		if r == (csvLead{}) {
			continue
		}
		out = append(out, r.lead())
	}
	return out, nil
}
