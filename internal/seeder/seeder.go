// Package seeder runs the geocode-and-insert batch: for each lead it checks
// the sink by name, geocodes the address, and inserts the farm record.
package seeder

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/farm-seeder/internal/geo"
	"github.com/sells-group/farm-seeder/internal/model"
	"github.com/sells-group/farm-seeder/internal/sink"
	"github.com/sells-group/farm-seeder/pkg/geocode"
)

// Defaults match the public Nominatim usage policy of one request a second.
const (
	DefaultPause          = 1500 * time.Millisecond
	DefaultGeocodeTimeout = 10 * time.Second
)

// Outcome is what happened to one lead.
type Outcome string

const (
	OutcomeAdded         Outcome = "added"
	OutcomeSkipped       Outcome = "skipped"
	OutcomeNoCoordinates Outcome = "no_coordinates"
	OutcomeError         Outcome = "error"
)

// Result records the outcome for one lead. Err is set for OutcomeError and,
// when the geocoder failed rather than missed, for OutcomeNoCoordinates.
type Result struct {
	Lead     model.Lead
	Outcome  Outcome
	Point    geo.Point
	RecordID string
	Err      error
}

// Summary aggregates a run. Total counts the leads actually processed,
// which is fewer than the input when the run was interrupted.
type Summary struct {
	RunID         string
	Total         int
	Added         int
	Skipped       int
	NoCoordinates int
	Failed        int
	Results       []Result
	Interrupted   bool
}

// String returns the final report line.
func (s Summary) String() string {
	line := fmt.Sprintf("Done: %d leads, %d added, %d skipped, %d without coordinates, %d failed",
		s.Total, s.Added, s.Skipped, s.NoCoordinates, s.Failed)
	if s.Interrupted {
		line += " (interrupted)"
	}
	return line
}

func (s *Summary) add(r Result) {
	s.Results = append(s.Results, r)
	s.Total++
	switch r.Outcome {
	case OutcomeAdded:
		s.Added++
	case OutcomeSkipped:
		s.Skipped++
	case OutcomeNoCoordinates:
		s.NoCoordinates++
	case OutcomeError:
		s.Failed++
	}
}

// Option configures a Seeder.
type Option func(*Seeder)

// WithPause sets the fixed delay between consecutive leads.
func WithPause(d time.Duration) Option {
	return func(s *Seeder) { s.pause = d }
}

// WithGeocodeTimeout bounds each geocoder call.
func WithGeocodeTimeout(d time.Duration) Option {
	return func(s *Seeder) {
		if d > 0 {
			s.geocodeTimeout = d
		}
	}
}

// WithReport sets where the human-readable status lines go.
func WithReport(w io.Writer) Option {
	return func(s *Seeder) { s.report = w }
}

// WithLogger sets the structured logger.
func WithLogger(l *zap.Logger) Option {
	return func(s *Seeder) { s.log = l }
}

// WithLimit processes at most n leads. Zero means no limit.
func WithLimit(n int) Option {
	return func(s *Seeder) { s.limit = n }
}

// WithWait replaces the function used to pause between leads.
func WithWait(fn func(ctx context.Context, d time.Duration) error) Option {
	return func(s *Seeder) { s.wait = fn }
}

// Seeder writes geocoded leads to a sink one at a time.
type Seeder struct {
	sink           sink.Sink
	geocoder       geocode.Client
	pause          time.Duration
	geocodeTimeout time.Duration
	report         io.Writer
	log            *zap.Logger
	limit          int
	wait           func(ctx context.Context, d time.Duration) error
}

// New creates a Seeder over an open sink and geocoder.
func New(s sink.Sink, g geocode.Client, opts ...Option) *Seeder {
	sd := &Seeder{
		sink:           s,
		geocoder:       g,
		pause:          DefaultPause,
		geocodeTimeout: DefaultGeocodeTimeout,
		report:         io.Discard,
		log:            zap.L(),
		wait:           sleep,
	}
	for _, opt := range opts {
		opt(sd)
	}
	sd.log = sd.log.With(zap.String("component", "seeder"))
	return sd
}

// Run processes leads in order. Per-lead failures are recorded and never
// stop the batch; cancelling ctx stops it between leads. Leads that
// completed before the cancellation are stored, so a rerun resumes safely.
func (s *Seeder) Run(ctx context.Context, leads []model.Lead) Summary {
	if s.limit > 0 && len(leads) > s.limit {
		leads = leads[:s.limit]
	}

	sum := Summary{RunID: uuid.NewString()}
	log := s.log.With(zap.String("run_id", sum.RunID))
	log.Info("seed run started", zap.Int("leads", len(leads)), zap.Duration("pause", s.pause))
	s.printf("Seeding %d leads...\n", len(leads))

	for i, lead := range leads {
		if i > 0 {
			if err := s.wait(ctx, s.pause); err != nil {
				sum.Interrupted = true
				break
			}
		}
		if ctx.Err() != nil {
			sum.Interrupted = true
			break
		}

		r := s.process(ctx, lead)
		sum.add(r)
		s.printf("[%d/%d] %s: %s\n", i+1, len(leads), lead.Name, describe(r))
		logResult(log, r)
	}

	s.printf("%s\n", sum)
	log.Info("seed run finished",
		zap.Int("total", sum.Total),
		zap.Int("added", sum.Added),
		zap.Int("skipped", sum.Skipped),
		zap.Int("no_coordinates", sum.NoCoordinates),
		zap.Int("failed", sum.Failed),
		zap.Bool("interrupted", sum.Interrupted),
	)
	return sum
}

func (s *Seeder) process(ctx context.Context, lead model.Lead) Result {
	r := Result{Lead: lead}

	exists, err := s.sink.Exists(ctx, lead.Name)
	if err != nil {
		r.Outcome = OutcomeError
		r.Err = err
		return r
	}
	if exists {
		r.Outcome = OutcomeSkipped
		return r
	}

	pt, err := s.geocode(ctx, lead.Address)
	if err != nil || pt == nil {
		r.Outcome = OutcomeNoCoordinates
		r.Err = err
		return r
	}
	r.Point = *pt

	rec := model.NewLeadRecord(lead, *pt)
	id, err := s.sink.Insert(ctx, rec)
	if err != nil {
		r.Outcome = OutcomeError
		r.Err = err
		return r
	}
	r.Outcome = OutcomeAdded
	r.RecordID = id
	return r
}

// geocode returns nil, nil when the provider has no match.
func (s *Seeder) geocode(ctx context.Context, address string) (*geo.Point, error) {
	gctx, cancel := context.WithTimeout(ctx, s.geocodeTimeout)
	defer cancel()

	res, err := s.geocoder.Geocode(gctx, address)
	if err != nil {
		return nil, eris.Wrap(err, "seeder: geocode")
	}
	if res == nil || !res.Matched {
		return nil, nil
	}

	pt := geo.Point{Lat: res.Latitude, Lon: res.Longitude}
	if err := pt.Validate(); err != nil {
		return nil, eris.Wrapf(err, "seeder: geocoder %s returned a bad point", res.Source)
	}
	return &pt, nil
}

func (s *Seeder) printf(format string, args ...any) {
	_, _ = fmt.Fprintf(s.report, format, args...)
}

func describe(r Result) string {
	switch r.Outcome {
	case OutcomeSkipped:
		return "skip (exists)"
	case OutcomeAdded:
		return "added " + r.Point.String()
	case OutcomeNoCoordinates:
		if r.Err != nil {
			return "miss (" + r.Err.Error() + ")"
		}
		return "miss (address not found)"
	default:
		return "error: " + r.Err.Error()
	}
}

func logResult(log *zap.Logger, r Result) {
	fields := []zap.Field{
		zap.String("lead", r.Lead.Name),
		zap.String("outcome", string(r.Outcome)),
	}
	switch r.Outcome {
	case OutcomeAdded:
		fields = append(fields,
			zap.String("record_id", r.RecordID),
			zap.Float64("lat", r.Point.Lat),
			zap.Float64("lon", r.Point.Lon),
		)
		log.Info("farm added", fields...)
	case OutcomeSkipped:
		log.Info("farm exists, skipping", fields...)
	case OutcomeNoCoordinates:
		if r.Err != nil {
			fields = append(fields, zap.Error(r.Err))
		}
		log.Warn("no coordinates for address", append(fields, zap.String("address", r.Lead.Address))...)
	default:
		log.Error("lead failed", append(fields, zap.Error(r.Err))...)
	}
}

func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
