// Package loader implements the engine load-and-queue handshake.
//
// A page holds one Loader. The first init request starts the engine
// script fetch; requests arriving while the fetch is in flight are
// buffered and drained in arrival order once the engine is ready; later
// requests bypass the queue entirely. The state machine is pure Go so it
// runs the same under the js/wasm build and in host tests; everything
// page-specific hides behind Env.
package loader

import (
	"errors"
	"fmt"
	"math"
	"strings"
	"sync"
)

// InitConfig is the per-widget init request crossing the host/browser
// boundary. Produced once per widget at render time, consumed exactly
// once here.
type InitConfig struct {
	WidgetID  string  `json:"widgetId"`
	CanvasID  string  `json:"canvasId"`
	Latitude  float64 `json:"latitude"`  // degrees
	Longitude float64 `json:"longitude"` // degrees
	JSURL     string  `json:"jsUrl"`
	WasmURL   string  `json:"wasmUrl"`
	DataURL   string  `json:"dataUrl"`
}

// State of the engine script load.
type State int

const (
	Unloaded State = iota
	Loading
	Ready
)

func (s State) String() string {
	switch s {
	case Unloaded:
		return "unloaded"
	case Loading:
		return "loading"
	case Ready:
		return "ready"
	}
	return fmt.Sprintf("state(%d)", int(s))
}

// ErrCanvasNotFound aborts a single widget's init when its canvas
// element is missing from the page. Other widgets and the engine load
// are unaffected.
var ErrCanvasNotFound = errors.New("loader: canvas element not found")

// Engine is one live engine instance bound to a canvas.
type Engine interface {
	AddDataSource(module, url, key string) error
	SetObserver(latitudeRad, longitudeRad float64)
}

// Env is the page surrounding the loader.
type Env interface {
	// StartFetch begins the asynchronous engine script fetch and invokes
	// done exactly once with the result. The Loader guarantees at most
	// one call per page.
	StartFetch(jsURL, wasmURL string, done func(error))

	// NewEngine locates the canvas named by cfg, sizes it to its
	// container and binds an engine instance to it. Returns
	// ErrCanvasNotFound if the element is missing.
	NewEngine(cfg InitConfig) (Engine, error)

	// Publish exposes a ready widget's engine handle and readiness flag
	// to page scripts, keyed by widget identity.
	Publish(widgetID string, eng Engine)

	Logf(format string, args ...any)
}

type instance struct {
	engine Engine
	ready  bool
}

// Loader is the per-page singleton driving the handshake.
type Loader struct {
	env Env

	mu      sync.Mutex
	state   State
	pending []InitConfig
	widgets map[string]*instance
}

func New(env Env) *Loader {
	return &Loader{
		env:     env,
		widgets: make(map[string]*instance),
	}
}

// Init handles one widget init request. Before the engine is ready the
// request is queued and Init returns nil; the eventual per-widget init
// outcome is reported through Env.Logf. After the engine is ready the
// widget is initialized inline and its error returned.
func (l *Loader) Init(cfg InitConfig) error {
	l.mu.Lock()
	switch l.state {
	case Ready:
		l.mu.Unlock()
		return l.initWidget(cfg)
	case Loading:
		l.pending = append(l.pending, cfg)
		l.mu.Unlock()
		return nil
	}
	// Unloaded. The flag flips before the fetch starts so a concurrent
	// Init cannot trigger a second one: check-and-set under one lock.
	l.state = Loading
	l.pending = append(l.pending, cfg)
	jsURL, wasmURL := cfg.JSURL, cfg.WasmURL
	l.mu.Unlock()

	l.env.Logf("stelwidget: loading engine from %s", jsURL)
	l.env.StartFetch(jsURL, wasmURL, l.fetchDone)
	return nil
}

// fetchDone runs when the engine script fetch completes. On success it
// drains the pending queue in arrival order; each entry is consumed
// exactly once and a failing entry only aborts its own widget.
func (l *Loader) fetchDone(err error) {
	if err != nil {
		// No transition, no retry: queued configs stay pending until the
		// page is reloaded.
		l.env.Logf("stelwidget: engine fetch failed: %v", err)
		return
	}
	l.mu.Lock()
	l.state = Ready
	queue := l.pending
	l.pending = nil
	l.mu.Unlock()

	for _, cfg := range queue {
		if err := l.initWidget(cfg); err != nil {
			l.env.Logf("stelwidget: init widget %s: %v", cfg.WidgetID, err)
		}
	}
}

// Data sources registered for every widget, relative to the sky data
// base URL. Keys name the selected sky culture and landscape.
var dataSources = []struct {
	Module string
	Path   string
	Key    string
}{
	{"stars", "stars", ""},
	{"skycultures", "skycultures/western", "western"},
	{"dsos", "dso", ""},
	{"landscapes", "landscapes/guereins", "guereins"},
	{"dss", "surveys/dss", ""},
}

func (l *Loader) initWidget(cfg InitConfig) error {
	eng, err := l.env.NewEngine(cfg)
	if err != nil {
		return err
	}
	for _, src := range dataSources {
		if err := eng.AddDataSource(src.Module, joinURL(cfg.DataURL, src.Path), src.Key); err != nil {
			return fmt.Errorf("register %s: %w", src.Module, err)
		}
	}
	const d2r = math.Pi / 180
	eng.SetObserver(cfg.Latitude*d2r, cfg.Longitude*d2r)

	l.mu.Lock()
	l.widgets[cfg.WidgetID] = &instance{engine: eng, ready: true}
	l.mu.Unlock()
	l.env.Publish(cfg.WidgetID, eng)
	return nil
}

// State returns the engine load state.
func (l *Loader) State() State {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.state
}

// Pending returns the number of queued init requests.
func (l *Loader) Pending() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.pending)
}

// Ready reports whether the widget's readiness flag is set. The flag
// flips false to true exactly once and never resets.
func (l *Loader) Ready(widgetID string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	inst, ok := l.widgets[widgetID]
	return ok && inst.ready
}

// Engine returns the engine handle for a ready widget.
func (l *Loader) Engine(widgetID string) (Engine, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	inst, ok := l.widgets[widgetID]
	if !ok || !inst.ready {
		return nil, false
	}
	return inst.engine, true
}

func joinURL(base, rel string) string {
	if base == "" {
		return rel
	}
	return strings.TrimSuffix(base, "/") + "/" + rel
}
