//go:build js && wasm

// Package jsutil has small syscall/js helpers shared by the browser-side
// loader.
package jsutil

import (
	"syscall/js"
)

func Log(args ...any) {
	js.Global().Get("console").Call("log", args...)
}

func Error(args ...any) {
	js.Global().Get("console").Call("error", args...)
}

// LoadScript appends a script tag for url to the document head and
// returns a promise resolving on load.
func LoadScript(url string) js.Value {
	return js.Global().Get("Promise").New(js.FuncOf(func(this js.Value, args []js.Value) any {
		resolve := args[0]
		reject := args[1]

		doc := js.Global().Get("document")
		script := doc.Call("createElement", "script")
		script.Set("src", url)
		script.Set("onload", resolve)
		script.Set("onerror", js.FuncOf(func(this js.Value, args []js.Value) any {
			err := js.Global().Get("Error").New("failed to load script: " + url)
			reject.Invoke(err)
			return nil
		}))
		doc.Get("head").Call("appendChild", script)
		return nil
	}))
}

// Await blocks the calling goroutine until the promise settles,
// returning the rejection as an error.
func Await(promise js.Value) (js.Value, error) {
	ch := make(chan js.Value, 2)
	promise.Call("then",
		js.FuncOf(func(this js.Value, args []js.Value) any {
			if len(args) > 0 {
				ch <- args[0]
			} else {
				ch <- js.Undefined()
			}
			ch <- js.Undefined()
			return nil
		}),
		js.FuncOf(func(this js.Value, args []js.Value) any {
			ch <- js.Undefined()
			ch <- args[0]
			return nil
		}),
	)
	resolved := <-ch
	rejected := <-ch
	if rejected.Truthy() {
		return js.Undefined(), js.Error{Value: rejected}
	}
	return resolved, nil
}
