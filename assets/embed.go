// Package assets embeds the browser-side loader bootstrap. The built
// loader wasm and wasm_exec.js are produced by `make loader` and land
// here before packaging; loader.js finds them relative to its own URL.
package assets

import "embed"

//go:embed *
var Dir embed.FS

// HasWasm reports whether a built loader wasm is embedded. Without it
// the loader mount serves only the bootstrap, which will fail in the
// page with a console error.
func HasWasm() bool {
	if _, err := Dir.Open("stelwidget.wasm"); err != nil {
		return false
	}
	return true
}
