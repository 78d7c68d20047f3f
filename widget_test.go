package stelwidget

import (
	"context"
	"encoding/json"
	"regexp"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/stelwidget/stelwidget/bridge"
)

type fakeRunner struct {
	mu       sync.Mutex
	executed []string
	queried  []string

	// results are consumed one per Evaluate; the last entry repeats.
	results []evalResult
}

type evalResult struct {
	value any
	err   error
}

func (f *fakeRunner) Execute(ctx context.Context, src string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.executed = append(f.executed, src)
	return nil
}

func (f *fakeRunner) Evaluate(ctx context.Context, src string, timeout time.Duration) (any, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.queried = append(f.queried, src)
	if len(f.results) == 0 {
		return nil, nil
	}
	r := f.results[0]
	if len(f.results) > 1 {
		f.results = f.results[1:]
	}
	return r.value, r.err
}

func (f *fakeRunner) lastExecuted() string {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.executed) == 0 {
		return ""
	}
	return f.executed[len(f.executed)-1]
}

func testConfig(t *testing.T) *Config {
	t.Helper()
	buildDir, dataDir := writeEngineTree(t, t.TempDir())
	return &Config{BuildDir: buildDir, DataDir: dataDir}
}

func TestNewAssignsIdentity(t *testing.T) {
	w, err := New(&fakeRunner{}, WithConfig(testConfig(t)))
	require.NoError(t, err)

	assert.Regexp(t, regexp.MustCompile(`^stel_[0-9a-f]{8}$`), w.ID)
	assert.Equal(t, w.ID+"_canvas", w.CanvasID)
	assert.Equal(t, "500px", w.Height)

	w2, err := New(&fakeRunner{}, WithConfig(testConfig(t)))
	require.NoError(t, err)
	assert.NotEqual(t, w.ID, w2.ID)
}

func TestNewDefaultsToVillanova(t *testing.T) {
	w, err := New(&fakeRunner{}, WithConfig(testConfig(t)))
	require.NoError(t, err)

	st := w.State()
	assert.Equal(t, 40.03784, st.Latitude)
	assert.Equal(t, -75.34238, st.Longitude)
	assert.Equal(t, 142.0, st.Altitude)
	assert.Equal(t, 60.0, st.FOV)
	assert.False(t, st.Time.IsZero())
}

func TestWithLocationClamps(t *testing.T) {
	w, err := New(&fakeRunner{},
		WithConfig(testConfig(t)),
		WithLocation(95, -200))
	require.NoError(t, err)

	st := w.State()
	assert.Equal(t, 90.0, st.Latitude)
	assert.Equal(t, -180.0, st.Longitude)
}

func TestRenderMarkupAndHandshake(t *testing.T) {
	t.Cleanup(ResetActive)
	ResetActive()
	runner := &fakeRunner{}
	w, err := New(runner, WithConfig(testConfig(t)), WithHeight("70vh"))
	require.NoError(t, err)

	markup, err := w.Render(&fakeMux{})
	require.NoError(t, err)

	html := string(markup)
	assert.Contains(t, html, `<div id="`+w.ID+`"`)
	assert.Contains(t, html, `<canvas id="`+w.CanvasID+`"`)
	assert.Contains(t, html, `height: 70vh`)
	assert.Contains(t, html, `<script src="/swe/loader/loader.js"></script>`)

	src := runner.lastExecuted()
	require.True(t, strings.HasPrefix(src, "stelwidgetInit("))
	require.True(t, strings.HasSuffix(src, ");"))

	var cfg map[string]any
	require.NoError(t, json.Unmarshal([]byte(src[len("stelwidgetInit("):len(src)-len(");")]), &cfg))
	assert.Equal(t, w.ID, cfg["widgetId"])
	assert.Equal(t, w.CanvasID, cfg["canvasId"])
	assert.Equal(t, 40.03784, cfg["latitude"])
	assert.Equal(t, -75.34238, cfg["longitude"])
	assert.Equal(t, "/swe/build/stellarium-web-engine.js", cfg["jsUrl"])
	assert.Equal(t, "/swe/build/stellarium-web-engine.wasm", cfg["wasmUrl"])
	assert.Equal(t, "/swe/data/", cfg["dataUrl"])
}

func TestRenderTwiceFails(t *testing.T) {
	t.Cleanup(ResetActive)
	ResetActive()
	w, err := New(&fakeRunner{}, WithConfig(testConfig(t)))
	require.NoError(t, err)

	_, err = w.Render(&fakeMux{})
	require.NoError(t, err)
	_, err = w.Render(&fakeMux{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "already rendered")
}

func TestSetLocationClampsAndSends(t *testing.T) {
	runner := &fakeRunner{}
	w, err := New(runner, WithConfig(testConfig(t)))
	require.NoError(t, err)

	require.NoError(t, w.SetLocation(-95, 200))

	st := w.State()
	assert.Equal(t, -90.0, st.Latitude)
	assert.Equal(t, 180.0, st.Longitude)

	src := runner.lastExecuted()
	assert.Contains(t, src, "stel.observer.latitude=-90*stel.D2R;")
	assert.Contains(t, src, "stel.observer.longitude=180*stel.D2R;")
}

func TestSetDateTimeNormalizesToUTC(t *testing.T) {
	runner := &fakeRunner{}
	w, err := New(runner, WithConfig(testConfig(t)))
	require.NoError(t, err)

	loc := time.FixedZone("EST", -5*3600)
	local := time.Date(2025, 1, 1, 0, 0, 0, 0, loc)
	require.NoError(t, w.SetDateTime(local))

	st := w.State()
	assert.Equal(t, time.UTC, st.Time.Location())
	assert.Equal(t, local.UnixMilli(), st.Time.UnixMilli())
	assert.Contains(t, runner.lastExecuted(), "stel.date2MJD(")
}

func TestQueriesGateOnReadiness(t *testing.T) {
	runner := &fakeRunner{}
	w, err := New(runner, WithConfig(testConfig(t)))
	require.NoError(t, err)

	_, err = w.ObjectAltitude(context.Background(), "NAME Vega")
	assert.ErrorIs(t, err, ErrNotReady)
	_, err = w.ObjectAzimuth(context.Background(), "NAME Vega")
	assert.ErrorIs(t, err, ErrNotReady)
	assert.Empty(t, runner.queried, "gated queries must not reach the page")
}

func TestWaitReadyUnlocksQueries(t *testing.T) {
	runner := &fakeRunner{results: []evalResult{
		{value: true},          // readiness poll
		{value: float64(37.5)}, // altitude query
	}}
	w, err := New(runner, WithConfig(testConfig(t)))
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, w.WaitReady(ctx))
	assert.True(t, w.Ready())

	alt, err := w.ObjectAltitude(ctx, "NAME Vega")
	require.NoError(t, err)
	assert.Equal(t, 37.5, alt)
}

func TestWaitReadyRetriesThroughRemoteErrors(t *testing.T) {
	// The loader is not up yet: the first poll fails remotely, the next
	// reports ready.
	runner := &fakeRunner{results: []evalResult{
		{err: &bridge.Error{Remote: "stelwidgetInit is not defined"}},
		{value: true},
	}}
	w, err := New(runner, WithConfig(testConfig(t)))
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, w.WaitReady(ctx))
	assert.True(t, w.Ready())
}

func TestWaitReadyHonorsContext(t *testing.T) {
	runner := &fakeRunner{results: []evalResult{{value: false}}}
	w, err := New(runner, WithConfig(testConfig(t)))
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	err = w.WaitReady(ctx)
	assert.ErrorIs(t, err, context.Canceled)
	assert.False(t, w.Ready())
}
