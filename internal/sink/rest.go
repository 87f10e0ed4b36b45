package sink

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/rotisserie/eris"

	"github.com/sells-group/farm-seeder/internal/model"
)

// REST writes farms through a PostgREST endpoint, the API Supabase exposes
// at https://<project>.supabase.co/rest/v1. The target table needs a
// geography location column; PostgREST casts the EWKT string on insert.
type REST struct {
	http    *http.Client
	baseURL string
	key     string
	table   string
}

// NewREST creates a REST sink. key is sent both as the apikey header and as
// the bearer token.
func NewREST(baseURL, key, table string) *REST {
	return &REST{
		http:    &http.Client{Timeout: 30 * time.Second},
		baseURL: strings.TrimRight(baseURL, "/"),
		key:     key,
		table:   table,
	}
}

// restFarm is the JSON row posted to PostgREST.
type restFarm struct {
	Name     string        `json:"name"`
	Type     string        `json:"type"`
	Status   string        `json:"status"`
	Products []string      `json:"products"`
	Contact  model.Contact `json:"contact"`
	Location string        `json:"location"`
	Geohash  string        `json:"geohash"`
}

type restRow struct {
	ID        json.RawMessage `json:"id"`
	CreatedAt time.Time       `json:"created_at"`
}

// Exists implements Sink.
func (r *REST) Exists(ctx context.Context, name string) (bool, error) {
	q := url.Values{}
	q.Set("select", "id")
	q.Set("name", "eq."+name)
	q.Set("limit", "1")

	var rows []restRow
	if err := r.do(ctx, http.MethodGet, q, nil, &rows); err != nil {
		return false, eris.Wrapf(err, "rest: check %q", name)
	}
	return len(rows) > 0, nil
}

// Insert implements Sink.
func (r *REST) Insert(ctx context.Context, rec *model.FarmRecord) (string, error) {
	loc, err := rec.Location.EWKT()
	if err != nil {
		return "", eris.Wrap(err, "rest: encode location")
	}
	body, err := json.Marshal(restFarm{
		Name:     rec.Name,
		Type:     string(rec.Kind),
		Status:   string(rec.Status),
		Products: rec.Products,
		Contact:  rec.Contact,
		Location: loc,
		Geohash:  rec.Geohash,
	})
	if err != nil {
		return "", eris.Wrap(err, "rest: encode farm")
	}

	q := url.Values{}
	q.Set("select", "id,created_at")

	var rows []restRow
	if err := r.do(ctx, http.MethodPost, q, body, &rows); err != nil {
		return "", eris.Wrapf(err, "rest: insert farm %q", rec.Name)
	}
	if len(rows) == 0 {
		return "", eris.Errorf("rest: insert farm %q: empty representation", rec.Name)
	}

	rec.ID = strings.Trim(string(rows[0].ID), `"`)
	rec.CreatedAt = rows[0].CreatedAt
	return rec.ID, nil
}

// Ping implements Sink by reading at most one id from the table.
func (r *REST) Ping(ctx context.Context) error {
	q := url.Values{}
	q.Set("select", "id")
	q.Set("limit", "1")
	var rows []restRow
	return eris.Wrap(r.do(ctx, http.MethodGet, q, nil, &rows), "rest: ping")
}

// Close implements Sink.
func (r *REST) Close() error {
	r.http.CloseIdleConnections()
	return nil
}

func (r *REST) do(ctx context.Context, method string, q url.Values, body []byte, out any) error {
	u := r.baseURL + "/" + url.PathEscape(r.table) + "?" + q.Encode()

	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, u, reader)
	if err != nil {
		return eris.Wrap(err, "create request")
	}
	req.Header.Set("apikey", r.key)
	req.Header.Set("Authorization", "Bearer "+r.key)
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
		req.Header.Set("Prefer", "return=representation")
	}

	resp, err := r.http.Do(req)
	if err != nil {
		return eris.Wrap(err, "http request")
	}
	defer resp.Body.Close() //nolint:errcheck

	data, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return eris.Wrap(err, "read response")
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return eris.Errorf("status %d: %s", resp.StatusCode, strings.TrimSpace(string(data)))
	}
	if err := json.Unmarshal(data, out); err != nil {
		return eris.Wrap(err, "parse response")
	}
	return nil
}
