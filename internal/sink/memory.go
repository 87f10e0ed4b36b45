package sink

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/sells-group/farm-seeder/internal/geo"
	"github.com/sells-group/farm-seeder/internal/model"
)

// Memory keeps records in process. It backs seed --dry-run and tests.
type Memory struct {
	mu      sync.RWMutex
	records []model.FarmRecord
	now     func() time.Time
}

// NewMemory creates an empty in-memory sink.
func NewMemory(seed ...model.FarmRecord) *Memory {
	m := &Memory{now: func() time.Time { return time.Now().UTC() }}
	for _, r := range seed {
		m.records = append(m.records, cloneRecord(r))
	}
	return m
}

// Exists implements Sink.
func (m *Memory) Exists(_ context.Context, name string) (bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, r := range m.records {
		if r.Name == name {
			return true, nil
		}
	}
	return false, nil
}

// Insert implements Sink.
func (m *Memory) Insert(_ context.Context, rec *model.FarmRecord) (string, error) {
	rec.ID = uuid.NewString()
	rec.CreatedAt = m.now()

	m.mu.Lock()
	m.records = append(m.records, cloneRecord(*rec))
	m.mu.Unlock()
	return rec.ID, nil
}

// Search implements Searcher.
func (m *Memory) Search(_ context.Context, center geo.Point, radiusKm float64, limit int) ([]Hit, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var hits []Hit
	for _, r := range m.records {
		d := geo.DistanceKm(center, r.Location)
		if d <= radiusKm {
			hits = append(hits, Hit{FarmRecord: cloneRecord(r), DistanceKm: d})
		}
	}
	return sortHits(hits, limit), nil
}

// Records returns a copy of everything inserted so far, in insert order.
func (m *Memory) Records() []model.FarmRecord {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]model.FarmRecord, len(m.records))
	for i, r := range m.records {
		out[i] = cloneRecord(r)
	}
	return out
}

// Ping implements Sink.
func (m *Memory) Ping(context.Context) error { return nil }

// Close implements Sink.
func (m *Memory) Close() error { return nil }

func cloneRecord(r model.FarmRecord) model.FarmRecord {
	products := make([]string, len(r.Products))
	copy(products, r.Products)
	r.Products = products
	return r
}
