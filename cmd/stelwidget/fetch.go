package main

import (
	"fmt"
	"os"
	"os/exec"
	"path/filepath"

	"tractor.dev/toolkit-go/engine/cli"
)

const engineRepo = "https://github.com/Stellarium/stellarium-web-engine.git"

// fetchEngineCmd provisions the vendored engine source. The engine is
// never part of this repository; it is cloned into extern/stellarium
// and built with its own toolchain.
func fetchEngineCmd() *cli.Command {
	cmd := &cli.Command{
		Usage: "fetch-engine",
		Short: "clone stellarium-web-engine into extern/stellarium",
		Run: func(ctx *cli.Context, args []string) {
			wd, err := os.Getwd()
			fatal(err)
			externDir := filepath.Join(wd, "extern")
			engineDir := filepath.Join(externDir, "stellarium")

			if _, err := os.Stat(engineDir); err == nil {
				fmt.Printf("stellarium-web-engine already exists at: %s\n", engineDir)
				fmt.Println("to re-fetch, remove the directory first:")
				fmt.Printf("  rm -rf %s\n", engineDir)
				os.Exit(1)
			}
			if err := os.MkdirAll(externDir, 0755); err != nil {
				fatal(err)
			}

			fmt.Println("cloning stellarium-web-engine...")
			fmt.Printf("  target: %s\n\n", engineDir)
			clone := exec.Command("git", "clone", engineRepo, engineDir)
			clone.Stdout = os.Stdout
			clone.Stderr = os.Stderr
			if err := clone.Run(); err != nil {
				fmt.Fprintf(os.Stderr, "error cloning repository: %v\n", err)
				os.Exit(1)
			}

			fmt.Println()
			fmt.Println("stellarium-web-engine cloned successfully!")
			fmt.Println()
			fmt.Println("next steps - build the WebAssembly engine:")
			fmt.Println()
			fmt.Println("  1. install the Emscripten SDK:")
			fmt.Println("     https://emscripten.org/docs/getting_started/downloads.html")
			fmt.Println()
			fmt.Println("  2. install SCons (pip install scons)")
			fmt.Println()
			fmt.Println("  3. build:")
			fmt.Printf("     cd %s\n", engineDir)
			fmt.Println("     source /path/to/emsdk/emsdk_env.sh")
			fmt.Println("     make js")
			fmt.Println()
			fmt.Println("the build will create:")
			fmt.Printf("  %s\n", filepath.Join(engineDir, "build", "stellarium-web-engine.js"))
			fmt.Printf("  %s\n", filepath.Join(engineDir, "build", "stellarium-web-engine.wasm"))
		},
	}
	return cmd
}
