package stelwidget

import (
	"net/http"
	"os"
	"path/filepath"
	"sync"

	"go.uber.org/zap"

	"github.com/stelwidget/stelwidget/assets"
)

const (
	// DefaultURLPrefix is where engine assets are mounted unless a
	// Config overrides it.
	DefaultURLPrefix = "/swe"

	engineJSFile   = "stellarium-web-engine.js"
	engineWasmFile = "stellarium-web-engine.wasm"
)

// buildHelp is appended to validation errors; the engine is provisioned
// and built out of tree.
const buildHelp = "; the engine must be fetched and built separately:\n" +
	"  stelwidget fetch-engine\n" +
	"  cd extern/stellarium && make js"

// Mounter mounts a static route. *http.ServeMux satisfies it; the
// responsibility of this package ends at choosing patterns and roots.
type Mounter interface {
	Handle(pattern string, handler http.Handler)
}

// Config holds the resolved locations of the engine build output and the
// sky data directory, immutable once mounted and shared read-only by all
// widgets in the process.
//
// The zero value is not useful; construct explicitly or via Discover.
type Config struct {
	BuildDir  string
	DataDir   string
	URLPrefix string

	// Resolved at mount time.
	JSURL     string
	WasmURL   string
	DataURL   string
	LoaderURL string

	mounted bool
}

// Process-wide registry: set once at first mount, read thereafter, never
// torn down within a process. Competing configs defer to the first.
var (
	activeMu sync.Mutex
	active   *Config
)

// Active returns the mounted configuration, or nil if none is.
func Active() *Config {
	activeMu.Lock()
	defer activeMu.Unlock()
	return active
}

// ResetActive clears the process-wide config. For tests only.
func ResetActive() {
	activeMu.Lock()
	defer activeMu.Unlock()
	active = nil
}

// Discover resolves a Config by searching ancestor directories of the
// working directory for an extern/stellarium checkout.
func Discover() (*Config, error) {
	wd, err := os.Getwd()
	if err != nil {
		return nil, &ConfigError{Msg: "getwd", Err: err}
	}
	return DiscoverFrom(wd)
}

// DiscoverFrom is Discover anchored at an explicit directory.
func DiscoverFrom(start string) (*Config, error) {
	dir, err := filepath.Abs(start)
	if err != nil {
		return nil, &ConfigError{Path: start, Msg: "resolve start dir", Err: err}
	}
	for {
		marker := filepath.Join(dir, "extern", "stellarium")
		if fi, err := os.Stat(marker); err == nil && fi.IsDir() {
			return &Config{
				BuildDir: filepath.Join(marker, "build"),
				DataDir:  filepath.Join(marker, "apps", "test-skydata"),
			}, nil
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			return nil, &ConfigError{
				Path: start,
				Msg:  "no extern/stellarium found in any ancestor directory; pass explicit BuildDir and DataDir",
			}
		}
		dir = parent
	}
}

// Validate checks that the engine build output exists.
func (c *Config) Validate() error {
	js := filepath.Join(c.BuildDir, engineJSFile)
	if _, err := os.Stat(js); err != nil {
		return &ConfigError{Path: js, Msg: engineJSFile + " not found" + buildHelp, Err: err}
	}
	return nil
}

// Mount validates the config and mounts the build, data and loader
// routes on m, then records the config as the process-wide active one.
//
// Idempotent: mounting the same Config twice is a no-op, and mounting a
// second Config while another is active returns the active one instead
// of duplicating routes. Returns the config whose URLs are live.
func (c *Config) Mount(m Mounter) (*Config, error) {
	activeMu.Lock()
	defer activeMu.Unlock()

	if c.mounted {
		return c, nil
	}
	if active != nil {
		return active, nil
	}
	if err := c.Validate(); err != nil {
		return nil, err
	}

	prefix := c.URLPrefix
	if prefix == "" {
		prefix = DefaultURLPrefix
	}
	m.Handle(prefix+"/build/", http.StripPrefix(prefix+"/build/", http.FileServer(http.Dir(c.BuildDir))))
	m.Handle(prefix+"/data/", http.StripPrefix(prefix+"/data/", http.FileServer(http.Dir(c.DataDir))))
	m.Handle(prefix+"/loader/", http.StripPrefix(prefix+"/loader/", http.FileServer(http.FS(assets.Dir))))

	c.URLPrefix = prefix
	c.JSURL = prefix + "/build/" + engineJSFile
	c.WasmURL = prefix + "/build/" + engineWasmFile
	c.DataURL = prefix + "/data/"
	c.LoaderURL = prefix + "/loader/loader.js"
	c.mounted = true
	active = c

	Logger().Info("mounted stellarium assets",
		zap.String("build", c.BuildDir),
		zap.String("data", c.DataDir),
		zap.String("prefix", prefix))
	if !assets.HasWasm() {
		Logger().Warn("no built loader wasm embedded; run `make loader` before serving pages")
	}
	return c, nil
}
