//go:build js && wasm

// The stelwidget loader, compiled to wasm and served next to
// assets/loader.js. See `make loader`.
package main

import "github.com/stelwidget/stelwidget/web"

func main() {
	web.Run()
}
