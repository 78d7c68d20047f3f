//go:build js && wasm

package web

import (
	"fmt"
	"syscall/js"

	"github.com/stelwidget/stelwidget/loader"
	"github.com/stelwidget/stelwidget/web/dom"
	"github.com/stelwidget/stelwidget/web/jsutil"
)

// pageEnv implements loader.Env against the real page.
type pageEnv struct{}

func (pageEnv) StartFetch(jsURL, wasmURL string, done func(error)) {
	// wasmURL is not fetched here: the engine script locates its wasm
	// itself; the loader only needs the script tag.
	go func() {
		_, err := jsutil.Await(jsutil.LoadScript(jsURL))
		done(err)
	}()
}

func (pageEnv) NewEngine(cfg loader.InitConfig) (eng loader.Engine, err error) {
	el, ok := dom.ElementByID(cfg.CanvasID)
	if !ok {
		return nil, fmt.Errorf("%w: %s", loader.ErrCanvasNotFound, cfg.CanvasID)
	}
	dom.FitToParent(el)

	defer func() {
		if r := recover(); r != nil {
			eng, err = nil, fmt.Errorf("stelwidget: engine init: %v", r)
		}
	}()

	// StelWebEngine delivers the handle through onReady once the engine
	// wasm is up; block this goroutine until then.
	ch := make(chan js.Value, 1)
	opts := js.Global().Get("Object").New()
	opts.Set("wasmFile", cfg.WasmURL)
	opts.Set("canvas", el)
	opts.Set("onReady", js.FuncOf(func(this js.Value, args []js.Value) any {
		if len(args) > 0 {
			ch <- args[0]
		} else {
			ch <- js.Undefined()
		}
		return nil
	}))
	js.Global().Call("StelWebEngine", opts)
	stel := <-ch
	if !stel.Truthy() {
		return nil, fmt.Errorf("stelwidget: engine init returned no handle")
	}
	return &engine{value: stel}, nil
}

// Publish mirrors a ready widget into window.__stelwidget so that
// bridge-generated scripts can reach the engine handle and readiness
// flag by identity.
func (pageEnv) Publish(widgetID string, eng loader.Engine) {
	e := eng.(*engine)
	reg := registry()
	reg.Get("engines").Set(widgetID, e.value)
	reg.Get("ready").Set(widgetID, true)
}

func (pageEnv) Logf(format string, args ...any) {
	jsutil.Log(fmt.Sprintf(format, args...))
}

// registry returns window.__stelwidget, creating it on first use.
func registry() js.Value {
	g := js.Global()
	reg := g.Get("__stelwidget")
	if !reg.Truthy() {
		reg = g.Get("Object").New()
		reg.Set("engines", g.Get("Object").New())
		reg.Set("ready", g.Get("Object").New())
		g.Set("__stelwidget", reg)
	}
	return reg
}

// engine adapts a StelWebEngine handle to loader.Engine.
type engine struct {
	value js.Value
}

func (e *engine) AddDataSource(module, url, key string) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("add data source %s: %v", module, r)
		}
	}()
	opts := js.Global().Get("Object").New()
	opts.Set("url", url)
	if key != "" {
		opts.Set("key", key)
	}
	e.value.Get("core").Get(module).Call("addDataSource", opts)
	return nil
}

func (e *engine) SetObserver(latitudeRad, longitudeRad float64) {
	obs := e.value.Get("observer")
	obs.Set("latitude", latitudeRad)
	obs.Set("longitude", longitudeRad)
}
