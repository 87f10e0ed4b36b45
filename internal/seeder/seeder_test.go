package seeder

import (
	"bytes"
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/sells-group/farm-seeder/internal/geo"
	"github.com/sells-group/farm-seeder/internal/model"
	"github.com/sells-group/farm-seeder/internal/sink"
	"github.com/sells-group/farm-seeder/pkg/geocode"
)

func init() {
	zap.ReplaceGlobals(zap.NewNop())
}

// stubGeocoder answers from a fixed table keyed by address.
type stubGeocoder struct {
	points map[string]geo.Point
	errs   map[string]error
	block  map[string]bool
	calls  []string
}

func (g *stubGeocoder) Geocode(ctx context.Context, address string) (*geocode.Result, error) {
	g.calls = append(g.calls, address)
	if g.block[address] {
		<-ctx.Done()
		return nil, ctx.Err()
	}
	if err, ok := g.errs[address]; ok {
		return nil, err
	}
	p, ok := g.points[address]
	if !ok {
		return &geocode.Result{Matched: false, Source: "stub"}, nil
	}
	return &geocode.Result{Matched: true, Latitude: p.Lat, Longitude: p.Lon, Source: "stub"}, nil
}

// failingSink wraps a sink and fails inserts for chosen names.
type failingSink struct {
	sink.Sink
	failInsert map[string]bool
	failExists map[string]bool
}

func (f *failingSink) Exists(ctx context.Context, name string) (bool, error) {
	if f.failExists[name] {
		return false, errors.New("connection reset by peer")
	}
	return f.Sink.Exists(ctx, name)
}

func (f *failingSink) Insert(ctx context.Context, rec *model.FarmRecord) (string, error) {
	if f.failInsert[rec.Name] {
		return "", errors.New("duplicate key value violates constraint")
	}
	return f.Sink.Insert(ctx, rec)
}

func noWait(context.Context, time.Duration) error { return nil }

var dairyKing = model.Lead{
	Name:     "Dairy King Estate",
	Address:  "Irene Dairy Farm, Pretoria, South Africa",
	Products: []string{"Milk", "Cream", "Butter"},
	Phone:    "012-000-1111",
}

func testLeads() []model.Lead {
	return []model.Lead{
		dairyKing,
		{Name: "Jozi Organic Veg", Address: "Muldersdrift, Gauteng, South Africa", Products: []string{"Spinach"}, Phone: "082-999-8888"},
		{Name: "Stellenbosch Berries", Address: "Stellenbosch Central, Western Cape, South Africa", Products: []string{"Strawberries"}, Phone: "021-888-7777"},
	}
}

func allFound() *stubGeocoder {
	return &stubGeocoder{points: map[string]geo.Point{
		"Irene Dairy Farm, Pretoria, South Africa":         {Lat: -25.8601, Lon: 28.2486},
		"Muldersdrift, Gauteng, South Africa":              {Lat: -26.0396, Lon: 27.8474},
		"Stellenbosch Central, Western Cape, South Africa": {Lat: -33.9321, Lon: 18.8602},
	}}
}

func TestRun_DairyKingEndToEnd(t *testing.T) {
	mem := sink.NewMemory()
	gc := &stubGeocoder{points: map[string]geo.Point{
		dairyKing.Address: {Lat: -25.8601, Lon: 28.2486},
	}}
	var out bytes.Buffer
	s := New(mem, gc, WithWait(noWait), WithReport(&out))

	sum := s.Run(context.Background(), []model.Lead{dairyKing})
	assert.Equal(t, 1, sum.Added)
	assert.NotEmpty(t, sum.RunID)

	recs := mem.Records()
	require.Len(t, recs, 1)
	r := recs[0]
	assert.Equal(t, "Dairy King Estate", r.Name)
	assert.Equal(t, model.StatusUnclaimed, r.Status)
	assert.Equal(t, model.KindLead, r.Kind)
	assert.Equal(t, []string{"Milk", "Cream", "Butter"}, r.Products)
	assert.Equal(t, "012-000-1111", r.Contact.Phone)
	assert.Equal(t, dairyKing.Address, r.Contact.Address)
	assert.InDelta(t, -25.8601, r.Location.Lat, 1e-9)
	assert.InDelta(t, 28.2486, r.Location.Lon, 1e-9)
	assert.Equal(t, "kekhfu61bp", r.Geohash)
	assert.Contains(t, out.String(), "Dairy King Estate: added (-25.860100, 28.248600)")

	// Second run adds nothing and never calls the geocoder.
	out.Reset()
	gc.calls = nil
	sum = s.Run(context.Background(), []model.Lead{dairyKing})
	assert.Equal(t, 0, sum.Added)
	assert.Equal(t, 1, sum.Skipped)
	assert.Len(t, mem.Records(), 1)
	assert.Empty(t, gc.calls)
	assert.Contains(t, out.String(), "Dairy King Estate: skip (exists)")
	assert.Contains(t, out.String(), "Done: 1 leads, 0 added, 1 skipped, 0 without coordinates, 0 failed")
}

func TestRun_RerunSkipsExistingWithoutGeocoding(t *testing.T) {
	mem := sink.NewMemory(model.FarmRecord{Name: "Jozi Organic Veg"})
	gc := allFound()

	sum := New(mem, gc, WithWait(noWait)).Run(context.Background(), testLeads())
	assert.Equal(t, 2, sum.Added)
	assert.Equal(t, 1, sum.Skipped)
	assert.NotContains(t, gc.calls, "Muldersdrift, Gauteng, South Africa")
	assert.Len(t, mem.Records(), 3)
}

func TestRun_OneGeocodeMissYieldsNMinusOne(t *testing.T) {
	mem := sink.NewMemory()
	gc := allFound()
	delete(gc.points, "Muldersdrift, Gauteng, South Africa")

	var out bytes.Buffer
	sum := New(mem, gc, WithWait(noWait), WithReport(&out)).Run(context.Background(), testLeads())

	assert.Equal(t, 3, sum.Total)
	assert.Equal(t, 2, sum.Added)
	assert.Equal(t, 1, sum.NoCoordinates)
	assert.Len(t, mem.Records(), 2)
	assert.Equal(t, OutcomeNoCoordinates, sum.Results[1].Outcome)
	assert.NoError(t, sum.Results[1].Err)
	assert.Contains(t, out.String(), "Jozi Organic Veg: miss (address not found)")
}

func TestRun_GeocodeErrorIsNoCoordinates(t *testing.T) {
	mem := sink.NewMemory()
	gc := allFound()
	gc.errs = map[string]error{dairyKing.Address: errors.New("geocode: nominatim returned status 503")}

	sum := New(mem, gc, WithWait(noWait)).Run(context.Background(), testLeads())
	assert.Equal(t, 1, sum.NoCoordinates)
	assert.Equal(t, 0, sum.Failed)
	assert.Equal(t, 2, sum.Added)
	require.Error(t, sum.Results[0].Err)
	assert.Contains(t, sum.Results[0].Err.Error(), "status 503")
}

func TestRun_GeocodeTimeoutContinues(t *testing.T) {
	mem := sink.NewMemory()
	gc := allFound()
	gc.block = map[string]bool{dairyKing.Address: true}

	sum := New(mem, gc, WithWait(noWait), WithGeocodeTimeout(20*time.Millisecond)).
		Run(context.Background(), testLeads())
	assert.Equal(t, OutcomeNoCoordinates, sum.Results[0].Outcome)
	assert.ErrorIs(t, sum.Results[0].Err, context.DeadlineExceeded)
	assert.Equal(t, 2, sum.Added)
	assert.False(t, sum.Interrupted)
}

func TestRun_BadPointIsNoCoordinates(t *testing.T) {
	mem := sink.NewMemory()
	gc := &stubGeocoder{points: map[string]geo.Point{dairyKing.Address: {Lat: 123, Lon: 28}}}

	sum := New(mem, gc, WithWait(noWait)).Run(context.Background(), []model.Lead{dairyKing})
	assert.Equal(t, 1, sum.NoCoordinates)
	assert.Empty(t, mem.Records())
}

func TestRun_InsertFailureContinues(t *testing.T) {
	mem := sink.NewMemory()
	fs := &failingSink{Sink: mem, failInsert: map[string]bool{"Dairy King Estate": true}}

	var out bytes.Buffer
	sum := New(fs, allFound(), WithWait(noWait), WithReport(&out)).Run(context.Background(), testLeads())

	assert.Equal(t, 1, sum.Failed)
	assert.Equal(t, 2, sum.Added)
	assert.Equal(t, OutcomeError, sum.Results[0].Outcome)
	assert.Len(t, mem.Records(), 2)
	assert.Contains(t, out.String(), "Dairy King Estate: error: duplicate key value")
	assert.Contains(t, out.String(), "Done: 3 leads, 2 added, 0 skipped, 0 without coordinates, 1 failed")
}

func TestRun_ExistsErrorIsFailure(t *testing.T) {
	mem := sink.NewMemory()
	fs := &failingSink{Sink: mem, failExists: map[string]bool{"Dairy King Estate": true}}
	gc := allFound()

	sum := New(fs, gc, WithWait(noWait)).Run(context.Background(), testLeads())
	assert.Equal(t, 1, sum.Failed)
	assert.Equal(t, 2, sum.Added)
	assert.NotContains(t, gc.calls, dairyKing.Address)
}

func TestRun_PausesBetweenLeadsOnly(t *testing.T) {
	var pauses []time.Duration
	wait := func(_ context.Context, d time.Duration) error {
		pauses = append(pauses, d)
		return nil
	}

	New(sink.NewMemory(), allFound(), WithWait(wait), WithPause(1200*time.Millisecond)).
		Run(context.Background(), testLeads())
	assert.Equal(t, []time.Duration{1200 * time.Millisecond, 1200 * time.Millisecond}, pauses)
}

func TestRun_PausesAfterSkipsToo(t *testing.T) {
	mem := sink.NewMemory(model.FarmRecord{Name: "Dairy King Estate"}, model.FarmRecord{Name: "Jozi Organic Veg"})
	count := 0
	wait := func(context.Context, time.Duration) error { count++; return nil }

	New(mem, allFound(), WithWait(wait)).Run(context.Background(), testLeads())
	assert.Equal(t, 2, count)
}

func TestRun_CancelStopsBetweenLeads(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	mem := sink.NewMemory()
	wait := func(context.Context, time.Duration) error {
		cancel()
		return context.Canceled
	}

	var out bytes.Buffer
	sum := New(mem, allFound(), WithWait(wait), WithReport(&out)).Run(ctx, testLeads())
	assert.True(t, sum.Interrupted)
	assert.Equal(t, 1, sum.Total)
	assert.Len(t, mem.Records(), 1)
	assert.Contains(t, out.String(), "(interrupted)")
}

func TestRun_AlreadyCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	gc := allFound()
	sum := New(sink.NewMemory(), gc, WithWait(noWait)).Run(ctx, testLeads())
	assert.True(t, sum.Interrupted)
	assert.Equal(t, 0, sum.Total)
	assert.Empty(t, gc.calls)
}

func TestRun_Limit(t *testing.T) {
	mem := sink.NewMemory()
	sum := New(mem, allFound(), WithWait(noWait), WithLimit(2)).Run(context.Background(), testLeads())
	assert.Equal(t, 2, sum.Total)
	assert.Len(t, mem.Records(), 2)
}

func TestRun_EmptyBatch(t *testing.T) {
	var out bytes.Buffer
	sum := New(sink.NewMemory(), allFound(), WithReport(&out)).Run(context.Background(), nil)
	assert.Equal(t, 0, sum.Total)
	assert.Contains(t, out.String(), "Done: 0 leads")
}

func TestRun_ProductsNotAliased(t *testing.T) {
	mem := sink.NewMemory()
	leads := []model.Lead{dairyKing}
	leads[0].Products = []string{"Milk", "Cream"}

	New(mem, allFound(), WithWait(noWait)).Run(context.Background(), leads)
	leads[0].Products[0] = "Changed"
	assert.Equal(t, "Milk", mem.Records()[0].Products[0])
}

func TestRun_LogsPerLead(t *testing.T) {
	core, logs := observer.New(zapcore.InfoLevel)
	mem := sink.NewMemory()
	gc := allFound()
	delete(gc.points, "Muldersdrift, Gauteng, South Africa")

	New(mem, gc, WithWait(noWait), WithLogger(zap.New(core))).Run(context.Background(), testLeads())

	added := logs.FilterMessage("farm added").All()
	require.Len(t, added, 2)
	fields := added[0].ContextMap()
	assert.Equal(t, "Dairy King Estate", fields["lead"])
	assert.Equal(t, "added", fields["outcome"])
	assert.Equal(t, "seeder", fields["component"])
	assert.NotEmpty(t, fields["run_id"])

	miss := logs.FilterMessage("no coordinates for address").All()
	require.Len(t, miss, 1)
	assert.Equal(t, "Jozi Organic Veg", miss[0].ContextMap()["lead"])

	assert.Equal(t, 1, logs.FilterMessage("seed run finished").Len())
}

func TestSummaryString(t *testing.T) {
	s := Summary{Total: 5, Added: 2, Skipped: 1, NoCoordinates: 1, Failed: 1}
	assert.Equal(t, "Done: 5 leads, 2 added, 1 skipped, 1 without coordinates, 1 failed", s.String())
	s.Interrupted = true
	assert.True(t, strings.HasSuffix(s.String(), "(interrupted)"))
}

func TestSleep(t *testing.T) {
	require.NoError(t, sleep(context.Background(), time.Millisecond))
	require.NoError(t, sleep(context.Background(), 0))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.ErrorIs(t, sleep(ctx, time.Hour), context.Canceled)
}
