//go:build js && wasm

// Package dom wraps the DOM lookups the loader needs.
package dom

import "syscall/js"

// ElementByID returns the element with the given id.
func ElementByID(id string) (js.Value, bool) {
	el := js.Global().Get("document").Call("getElementById", id)
	if el.IsNull() || el.IsUndefined() {
		return js.Undefined(), false
	}
	return el, true
}

// FitToParent sizes a canvas's backing store to its CSS box, scaled by
// the device pixel ratio. The engine renders blurry otherwise.
func FitToParent(canvas js.Value) {
	ratio := js.Global().Get("devicePixelRatio")
	scale := 1.0
	if ratio.Type() == js.TypeNumber {
		scale = ratio.Float()
	}
	w := canvas.Get("clientWidth").Float()
	h := canvas.Get("clientHeight").Float()
	if w > 0 {
		canvas.Set("width", w*scale)
	}
	if h > 0 {
		canvas.Set("height", h*scale)
	}
}
