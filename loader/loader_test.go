package loader

import (
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeEngine struct {
	sources  []string
	latRad   float64
	lonRad   float64
	observed bool
}

func (e *fakeEngine) AddDataSource(module, url, key string) error {
	e.sources = append(e.sources, fmt.Sprintf("%s|%s|%s", module, url, key))
	return nil
}

func (e *fakeEngine) SetObserver(latitudeRad, longitudeRad float64) {
	e.latRad, e.lonRad = latitudeRad, longitudeRad
	e.observed = true
}

// fakeEnv stands in for the page: fetches are recorded and completed by
// hand, canvases exist unless marked missing.
type fakeEnv struct {
	mu        sync.Mutex
	fetches   []string
	done      func(error)
	missing   map[string]bool
	engines   map[string]*fakeEngine
	published []string
	logs      []string
}

func newFakeEnv() *fakeEnv {
	return &fakeEnv{
		missing: make(map[string]bool),
		engines: make(map[string]*fakeEngine),
	}
}

func (f *fakeEnv) StartFetch(jsURL, wasmURL string, done func(error)) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.fetches = append(f.fetches, jsURL)
	f.done = done
}

func (f *fakeEnv) NewEngine(cfg InitConfig) (Engine, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.missing[cfg.CanvasID] {
		return nil, fmt.Errorf("%w: %s", ErrCanvasNotFound, cfg.CanvasID)
	}
	e := &fakeEngine{}
	f.engines[cfg.WidgetID] = e
	return e, nil
}

func (f *fakeEnv) Publish(widgetID string, eng Engine) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.published = append(f.published, widgetID)
}

func (f *fakeEnv) Logf(format string, args ...any) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.logs = append(f.logs, fmt.Sprintf(format, args...))
}

// finish completes the recorded fetch.
func (f *fakeEnv) finish(err error) {
	f.mu.Lock()
	done := f.done
	f.mu.Unlock()
	require.NotNil(panicT{}, done)
	done(err)
}

// panicT lets finish use require outside a test body.
type panicT struct{}

func (panicT) Errorf(format string, args ...any) { panic(fmt.Sprintf(format, args...)) }
func (panicT) FailNow()                          { panic("fetch not started") }

func cfgFor(id string) InitConfig {
	return InitConfig{
		WidgetID:  id,
		CanvasID:  id + "_canvas",
		Latitude:  40.03784,
		Longitude: -75.34238,
		JSURL:     "/swe/build/stellarium-web-engine.js",
		WasmURL:   "/swe/build/stellarium-web-engine.wasm",
		DataURL:   "/swe/data/",
	}
}

func TestFirstInitStartsFetch(t *testing.T) {
	env := newFakeEnv()
	l := New(env)

	require.NoError(t, l.Init(cfgFor("a")))

	assert.Equal(t, Loading, l.State())
	assert.Equal(t, 1, l.Pending())
	require.Len(t, env.fetches, 1)
	assert.Equal(t, "/swe/build/stellarium-web-engine.js", env.fetches[0])
	assert.False(t, l.Ready("a"))
}

func TestDrainIsFIFO(t *testing.T) {
	env := newFakeEnv()
	l := New(env)

	for _, id := range []string{"a", "b", "c", "d"} {
		require.NoError(t, l.Init(cfgFor(id)))
	}
	assert.Equal(t, 4, l.Pending())

	env.finish(nil)

	assert.Equal(t, Ready, l.State())
	assert.Equal(t, 0, l.Pending())
	assert.Equal(t, []string{"a", "b", "c", "d"}, env.published)
	for _, id := range []string{"a", "b", "c", "d"} {
		assert.True(t, l.Ready(id), id)
	}
}

func TestFetchHappensAtMostOnce(t *testing.T) {
	env := newFakeEnv()
	l := New(env)

	var wg sync.WaitGroup
	for i := 0; i < 32; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_ = l.Init(cfgFor(fmt.Sprintf("w%02d", i)))
		}(i)
	}
	wg.Wait()

	assert.Len(t, env.fetches, 1)
	assert.Equal(t, 32, l.Pending())
}

func TestReadyBypassesQueue(t *testing.T) {
	env := newFakeEnv()
	l := New(env)

	require.NoError(t, l.Init(cfgFor("a")))
	env.finish(nil)
	require.Equal(t, Ready, l.State())

	require.NoError(t, l.Init(cfgFor("late")))

	assert.Equal(t, 0, l.Pending())
	assert.True(t, l.Ready("late"))
	// No second fetch for the late arrival.
	assert.Len(t, env.fetches, 1)
	assert.Equal(t, []string{"a", "late"}, env.published)
}

func TestMissingCanvasAbortsOnlyThatWidget(t *testing.T) {
	env := newFakeEnv()
	env.missing["a_canvas"] = true
	l := New(env)

	require.NoError(t, l.Init(cfgFor("a")))
	require.NoError(t, l.Init(cfgFor("b")))
	env.finish(nil)

	assert.False(t, l.Ready("a"))
	assert.True(t, l.Ready("b"))
	assert.Equal(t, []string{"b"}, env.published)

	var logged bool
	for _, line := range env.logs {
		if strings.Contains(line, "a") && strings.Contains(line, "canvas element not found") {
			logged = true
		}
	}
	assert.True(t, logged, "canvas failure should be logged, got %v", env.logs)
}

func TestMissingCanvasAfterReadyReturnsError(t *testing.T) {
	env := newFakeEnv()
	env.missing["a_canvas"] = true
	l := New(env)

	require.NoError(t, l.Init(cfgFor("setup")))
	env.finish(nil)

	err := l.Init(cfgFor("a"))
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrCanvasNotFound)
	assert.False(t, l.Ready("a"))
}

func TestFetchFailureLeavesQueuePending(t *testing.T) {
	env := newFakeEnv()
	l := New(env)

	require.NoError(t, l.Init(cfgFor("a")))
	require.NoError(t, l.Init(cfgFor("b")))
	env.finish(errors.New("network down"))

	// No transition, no drain, no retry.
	assert.Equal(t, Loading, l.State())
	assert.Equal(t, 2, l.Pending())
	assert.Empty(t, env.published)
	require.NotEmpty(t, env.logs)
	assert.Contains(t, env.logs[len(env.logs)-1], "fetch failed")

	// Later arrivals keep queueing without a second fetch.
	require.NoError(t, l.Init(cfgFor("c")))
	assert.Equal(t, 3, l.Pending())
	assert.Len(t, env.fetches, 1)
}

func TestObserverConvertedToRadians(t *testing.T) {
	env := newFakeEnv()
	l := New(env)

	cfg := cfgFor("a")
	cfg.Latitude = 90
	cfg.Longitude = -180
	require.NoError(t, l.Init(cfg))
	env.finish(nil)

	eng := env.engines["a"]
	require.NotNil(t, eng)
	require.True(t, eng.observed)
	assert.InDelta(t, 1.5707963267948966, eng.latRad, 1e-12)
	assert.InDelta(t, -3.141592653589793, eng.lonRad, 1e-12)
}

func TestDataSourcesRegistered(t *testing.T) {
	env := newFakeEnv()
	l := New(env)

	require.NoError(t, l.Init(cfgFor("a")))
	env.finish(nil)

	eng := env.engines["a"]
	require.NotNil(t, eng)
	assert.Equal(t, []string{
		"stars|/swe/data/stars|",
		"skycultures|/swe/data/skycultures/western|western",
		"dsos|/swe/data/dso|",
		"landscapes|/swe/data/landscapes/guereins|guereins",
		"dss|/swe/data/surveys/dss|",
	}, eng.sources)
}

func TestIdentityIsolation(t *testing.T) {
	env := newFakeEnv()
	l := New(env)

	require.NoError(t, l.Init(cfgFor("a")))
	require.NoError(t, l.Init(cfgFor("b")))
	env.finish(nil)

	ea, ok := l.Engine("a")
	require.True(t, ok)
	eb, ok := l.Engine("b")
	require.True(t, ok)
	assert.NotSame(t, ea, eb)

	_, ok = l.Engine("c")
	assert.False(t, ok)
	assert.False(t, l.Ready("c"))
}
