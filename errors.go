package stelwidget

import (
	"errors"
	"fmt"

	"github.com/stelwidget/stelwidget/bridge"
)

// ErrNotReady is returned by value-returning queries issued before the
// engine readiness flag has been observed for that widget. Callers can
// retry after WaitReady.
var ErrNotReady = errors.New("stelwidget: engine not ready")

// ErrObjectNotFound is returned when the engine's catalog has no object
// for the given name.
var ErrObjectNotFound = bridge.ErrObjectNotFound

// ConfigError reports a failure to discover or validate the engine's
// build output or sky data directories. It is fatal for the widget being
// rendered.
type ConfigError struct {
	Path string // the path that was searched or found wanting
	Msg  string
	Err  error
}

func (e *ConfigError) Error() string {
	if e.Path != "" {
		return fmt.Sprintf("stelwidget: config: %s: %s", e.Path, e.Msg)
	}
	return fmt.Sprintf("stelwidget: config: %s", e.Msg)
}

func (e *ConfigError) Unwrap() error {
	return e.Err
}
