package geocode

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func init() {
	zap.ReplaceGlobals(zap.NewNop())
}

type fakeProvider struct {
	name      string
	available bool
	result    *Result
	err       error
	calls     int
}

func (f *fakeProvider) Name() string    { return f.name }
func (f *fakeProvider) Available() bool { return f.available }
func (f *fakeProvider) Geocode(_ context.Context, _ string) (*Result, error) {
	f.calls++
	return f.result, f.err
}

func TestCascade_FirstMatchWins(t *testing.T) {
	a := &fakeProvider{name: "a", available: true, result: &Result{Matched: true, Latitude: 1, Source: "a"}}
	b := &fakeProvider{name: "b", available: true, result: &Result{Matched: true, Latitude: 2, Source: "b"}}

	r, err := NewCascadeClient(a, b).Geocode(context.Background(), "addr")
	require.NoError(t, err)
	assert.Equal(t, "a", r.Source)
	assert.Equal(t, 0, b.calls)
}

func TestCascade_FallsThroughMissAndError(t *testing.T) {
	miss := &fakeProvider{name: "miss", available: true, result: &Result{Matched: false}}
	broken := &fakeProvider{name: "broken", available: true, err: errors.New("boom")}
	hit := &fakeProvider{name: "hit", available: true, result: &Result{Matched: true, Source: "hit"}}

	r, err := NewCascadeClient(miss, broken, hit).Geocode(context.Background(), "addr")
	require.NoError(t, err)
	assert.Equal(t, "hit", r.Source)
	assert.Equal(t, 1, miss.calls)
	assert.Equal(t, 1, broken.calls)
}

func TestCascade_SkipsUnavailable(t *testing.T) {
	off := &fakeProvider{name: "off", available: false, result: &Result{Matched: true}}
	miss := &fakeProvider{name: "miss", available: true, result: &Result{Matched: false}}

	r, err := NewCascadeClient(off, miss).Geocode(context.Background(), "addr")
	require.NoError(t, err)
	assert.False(t, r.Matched)
	assert.Equal(t, "cascade", r.Source)
	assert.Equal(t, 0, off.calls)
}

func TestCascade_AllErrorsReturnsError(t *testing.T) {
	a := &fakeProvider{name: "a", available: true, err: errors.New("first")}
	b := &fakeProvider{name: "b", available: true, err: errors.New("second")}

	_, err := NewCascadeClient(a, b).Geocode(context.Background(), "addr")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "second")
}

func TestCascade_MissAndErrorIsMiss(t *testing.T) {
	a := &fakeProvider{name: "a", available: true, err: errors.New("down")}
	b := &fakeProvider{name: "b", available: true, result: &Result{Matched: false}}

	r, err := NewCascadeClient(a, b).Geocode(context.Background(), "addr")
	require.NoError(t, err)
	assert.False(t, r.Matched)
}

func TestCascade_StopsOnCancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	a := &fakeProvider{name: "a", available: true, err: context.Canceled}
	b := &fakeProvider{name: "b", available: true, result: &Result{Matched: true}}

	_, err := NewCascadeClient(a, b).Geocode(ctx, "addr")
	require.Error(t, err)
	assert.Equal(t, 0, b.calls)
}

func TestCascade_NoProviders(t *testing.T) {
	r, err := NewCascadeClient().Geocode(context.Background(), "addr")
	require.NoError(t, err)
	assert.False(t, r.Matched)
}

func TestProvidersImplementInterface(t *testing.T) {
	var _ Provider = NewNominatim()
	var _ Provider = NewGoogle()
	var _ Client = NewCascadeClient()
}
