// Package stelwidget embeds the Stellarium Web Engine as a widget on a
// host-served web page.
//
// The host process discovers the engine's build output and sky data,
// mounts them as static routes, renders canvas markup and drives the
// engine through JavaScript issued over a script-execution channel (see
// the session package). The browser side is a Go/wasm loader that
// fetches the engine once and initializes each widget against it (see
// the loader and web packages).
//
//	cfg, _ := stelwidget.Discover()
//	w, _ := stelwidget.New(runner, stelwidget.WithConfig(cfg))
//	html, _ := w.Render(mux)
//	// serve html, then:
//	w.WaitReady(ctx)
//	w.LookAt("NAME Polaris")
package stelwidget

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"html/template"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/stelwidget/stelwidget/bridge"
	"github.com/stelwidget/stelwidget/loader"
)

// readyPollInterval paces WaitReady's flag polls.
const readyPollInterval = 500 * time.Millisecond

// Widget is one embedded sky view. Each instance has an opaque identity
// namespacing its browser-side state, so multiple widgets coexist on one
// page without collision.
type Widget struct {
	ID       string
	CanvasID string
	Height   string

	cfg *Config
	br  *bridge.Bridge

	mu       sync.Mutex
	state    ViewState
	rendered bool
	ready    bool
}

type Option func(*Widget)

// WithConfig supplies an explicit configuration instead of discovery.
func WithConfig(cfg *Config) Option {
	return func(w *Widget) { w.cfg = cfg }
}

// WithHeight sets the CSS height of the widget container.
func WithHeight(height string) Option {
	return func(w *Widget) { w.Height = height }
}

// WithLocation sets the initial observer location in degrees.
func WithLocation(latitude, longitude float64) Option {
	return func(w *Widget) {
		w.state.Latitude = clamp(latitude, -90, 90)
		w.state.Longitude = clamp(longitude, -180, 180)
	}
}

// New creates a widget speaking through runner. Without WithConfig the
// engine paths are auto-discovered.
func New(runner bridge.ScriptRunner, opts ...Option) (*Widget, error) {
	u := uuid.New()
	id := fmt.Sprintf("stel_%x", u[:4])
	w := &Widget{
		ID:       id,
		CanvasID: id + "_canvas",
		Height:   "500px",
		state:    defaultViewState(),
	}
	w.br = bridge.New(id, runner)
	for _, opt := range opts {
		opt(w)
	}
	if w.cfg == nil {
		cfg, err := Discover()
		if err != nil {
			return nil, err
		}
		w.cfg = cfg
	}
	return w, nil
}

var containerTmpl = template.Must(template.New("container").Parse(
	`<div id="{{.ID}}" class="stelwidget" style="height: {{.Height}}; background: black; overflow: hidden;">
  <canvas id="{{.CanvasID}}" style="width: 100%; height: 100%; display: block;"></canvas>
</div>
<script src="{{.LoaderURL}}"></script>
`))

// Render mounts static assets, emits the widget markup and issues the
// init handshake. The handshake runs exactly once per instance; a second
// Render is an error.
func (w *Widget) Render(m Mounter) (template.HTML, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.rendered {
		return "", fmt.Errorf("stelwidget: widget %s already rendered", w.ID)
	}

	cfg, err := w.cfg.Mount(m)
	if err != nil {
		return "", err
	}
	w.cfg = cfg

	var buf bytes.Buffer
	err = containerTmpl.Execute(&buf, struct {
		ID, CanvasID, Height, LoaderURL string
	}{w.ID, w.CanvasID, w.Height, cfg.LoaderURL})
	if err != nil {
		return "", fmt.Errorf("stelwidget: render markup: %w", err)
	}

	err = w.br.Init(loader.InitConfig{
		WidgetID:  w.ID,
		CanvasID:  w.CanvasID,
		Latitude:  w.state.Latitude,
		Longitude: w.state.Longitude,
		JSURL:     cfg.JSURL,
		WasmURL:   cfg.WasmURL,
		DataURL:   cfg.DataURL,
	})
	if err != nil {
		return "", err
	}
	w.rendered = true
	return template.HTML(buf.String()), nil
}

// SetLocation sets the observer position in degrees. Fire-and-forget:
// the error covers transmission only.
func (w *Widget) SetLocation(latitude, longitude float64) error {
	w.mu.Lock()
	w.state.Latitude = clamp(latitude, -90, 90)
	w.state.Longitude = clamp(longitude, -180, 180)
	latitude, longitude = w.state.Latitude, w.state.Longitude
	w.mu.Unlock()
	return w.br.SetLocation(latitude, longitude)
}

// SetDateTime sets the observation time, converted to UTC.
func (w *Widget) SetDateTime(t time.Time) error {
	t = t.UTC()
	w.mu.Lock()
	w.state.Time = t
	w.mu.Unlock()
	return w.br.SetDateTime(float64(t.UnixMilli()))
}

// SetFOV sets the field of view in degrees.
func (w *Widget) SetFOV(fovDegrees float64) error {
	w.mu.Lock()
	w.state.FOV = fovDegrees
	w.mu.Unlock()
	return w.br.SetFOV(fovDegrees)
}

// LookAt centers the view on a named object, e.g. "NAME Jupiter". The
// name follows the engine's catalog convention and is passed through
// unchanged.
func (w *Widget) LookAt(objectName string) error {
	return w.br.LookAt(objectName)
}

func (w *Widget) SetConstellationLines(visible bool) error  { return w.br.SetConstellationLines(visible) }
func (w *Widget) SetConstellationLabels(visible bool) error { return w.br.SetConstellationLabels(visible) }
func (w *Widget) SetAtmosphere(visible bool) error          { return w.br.SetAtmosphere(visible) }
func (w *Widget) SetLandscape(visible bool) error           { return w.br.SetLandscape(visible) }
func (w *Widget) SetAzimuthalGrid(visible bool) error       { return w.br.SetAzimuthalGrid(visible) }
func (w *Widget) SetEquatorialGrid(visible bool) error      { return w.br.SetEquatorialGrid(visible) }
func (w *Widget) SetMilkyWay(visible bool) error            { return w.br.SetMilkyWay(visible) }

// Ready reports whether the engine readiness flag has been observed for
// this widget.
func (w *Widget) Ready() bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.ready
}

// WaitReady polls the widget's readiness flag until it is set or ctx is
// done. The flag is set once and never resets, so a single success
// unlocks queries for the lifetime of the widget.
func (w *Widget) WaitReady(ctx context.Context) error {
	ticker := time.NewTicker(readyPollInterval)
	defer ticker.Stop()
	for {
		ready, err := w.br.IsReady(ctx)
		if err != nil {
			var berr *bridge.Error
			if !errors.As(err, &berr) {
				return err
			}
			// Remote errors during polling mean the loader is not up
			// yet; keep waiting.
		}
		if ready {
			w.mu.Lock()
			w.ready = true
			w.mu.Unlock()
			return nil
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

// ObjectAltitude returns the altitude of a named object above the
// horizon in degrees. Queries are the only value-returning operations;
// they fail with ErrNotReady until WaitReady has observed the flag.
func (w *Widget) ObjectAltitude(ctx context.Context, objectName string) (float64, error) {
	if !w.Ready() {
		return 0, ErrNotReady
	}
	return w.br.ObjectAltitude(ctx, objectName)
}

// ObjectAzimuth returns the azimuth of a named object in degrees
// (north 0, east 90).
func (w *Widget) ObjectAzimuth(ctx context.Context, objectName string) (float64, error) {
	if !w.Ready() {
		return 0, ErrNotReady
	}
	return w.br.ObjectAzimuth(ctx, objectName)
}

// State returns a copy of the desired view state.
func (w *Widget) State() ViewState {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.state
}
