//go:build js && wasm

// Package web is the browser side of stelwidget: it installs the
// page-global init entry point, runs the load-and-queue state machine
// against the real DOM, and services the host's script-execution
// channel. It is compiled to stelwidget.wasm by `make loader` and booted
// by assets/loader.js.
package web

import (
	"encoding/json"
	"syscall/js"

	"github.com/stelwidget/stelwidget/loader"
	"github.com/stelwidget/stelwidget/web/jsutil"
)

// Run wires the loader into the page and parks forever. The bootstrap
// shim queues init calls that arrive before the wasm is up; Run drains
// that queue after installing the real entry point.
func Run() {
	l := loader.New(pageEnv{})
	registry()

	// One dispatch worker keeps init requests in arrival order; engine
	// construction blocks on page callbacks, so it cannot run on the
	// event loop's goroutine directly.
	inits := make(chan loader.InitConfig, 64)
	go func() {
		for cfg := range inits {
			if err := l.Init(cfg); err != nil {
				jsutil.Error("stelwidget: init " + cfg.WidgetID + ": " + err.Error())
			}
		}
	}()

	submit := func(v js.Value) {
		raw := js.Global().Get("JSON").Call("stringify", v).String()
		var cfg loader.InitConfig
		if err := json.Unmarshal([]byte(raw), &cfg); err != nil {
			jsutil.Error("stelwidget: bad init config:", err.Error())
			return
		}
		select {
		case inits <- cfg:
		default:
			jsutil.Error("stelwidget: init queue full, dropping " + cfg.WidgetID)
		}
	}

	js.Global().Set("stelwidgetInit", js.FuncOf(func(this js.Value, args []js.Value) any {
		if len(args) == 0 {
			jsutil.Error("stelwidget: init called without config")
			return nil
		}
		submit(args[0])
		return nil
	}))

	pending := js.Global().Get("__stelwidgetPending")
	if pending.Truthy() {
		n := pending.Get("length").Int()
		for i := 0; i < n; i++ {
			submit(pending.Index(i))
		}
		pending.Set("length", 0)
	}

	connectSession()
	jsutil.Log("stelwidget: loader running")
	select {}
}
