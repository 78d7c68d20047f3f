// Package bridge translates widget calls into the JavaScript command and query
// strings understood by the Stellarium Web Engine running in the page.
//
// Every public method maps 1:1 to one generated snippet. All interpolated
// values go through encoders (JSON for strings, strconv for numbers and
// booleans); caller data is never spliced into source text raw.
package bridge

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"
)

// ScriptRunner is the script-execution boundary to the page. Execute is
// fire-and-forget; Evaluate suspends the caller until the remote result
// arrives or the timeout elapses.
type ScriptRunner interface {
	Execute(ctx context.Context, src string) error
	Evaluate(ctx context.Context, src string, timeout time.Duration) (any, error)
}

// Error reports a remote execution or decoding failure. The remote
// message is carried verbatim.
type Error struct {
	Expr   string
	Remote string
}

func (e *Error) Error() string {
	return fmt.Sprintf("bridge: remote error: %s", e.Remote)
}

// ErrObjectNotFound means the engine's catalog resolved no object for
// the given name.
var ErrObjectNotFound = errors.New("bridge: object not found")

// DefaultQueryTimeout bounds Evaluate calls that pass no explicit timeout.
const DefaultQueryTimeout = 2 * time.Second

// Bridge generates engine commands and queries for one widget identity.
// The engine handle and readiness flag live in the page under
// window.__stelwidget, keyed by that identity.
type Bridge struct {
	widgetID     string
	runner       ScriptRunner
	queryTimeout time.Duration
}

func New(widgetID string, runner ScriptRunner) *Bridge {
	return &Bridge{
		widgetID:     widgetID,
		runner:       runner,
		queryTimeout: DefaultQueryTimeout,
	}
}

// jsString encodes s as a JavaScript string literal. JSON string encoding
// is valid JS and neutralizes quotes and control characters.
func jsString(s string) string {
	b, _ := json.Marshal(s)
	return string(b)
}

func jsNumber(f float64) string {
	return strconv.FormatFloat(f, 'g', -1, 64)
}

func jsBool(b bool) string {
	return strconv.FormatBool(b)
}

func (b *Bridge) engineRef() string {
	return "window.__stelwidget.engines[" + jsString(b.widgetID) + "]"
}

// command wraps body in an IIFE that is a no-op until the engine handle
// for this widget exists.
func (b *Bridge) command(body string) string {
	return "(function(){var stel=" + b.engineRef() + ";if(!stel)return;" + body + "})();"
}

// query wraps body in an IIFE that yields null until the engine handle
// for this widget exists.
func (b *Bridge) query(body string) string {
	return "(function(){var stel=" + b.engineRef() + ";if(!stel)return null;" + body + "})()"
}

func (b *Bridge) run(body string) error {
	return b.runner.Execute(context.Background(), b.command(body))
}

func (b *Bridge) eval(ctx context.Context, body string) (any, error) {
	src := b.query(body)
	v, err := b.runner.Evaluate(ctx, src, b.queryTimeout)
	if err != nil {
		var berr *Error
		if errors.As(err, &berr) {
			return nil, err
		}
		return nil, &Error{Expr: src, Remote: err.Error()}
	}
	return v, nil
}

// evalNumber runs a query whose remote value is null or a number.
func (b *Bridge) evalNumber(ctx context.Context, body string) (float64, error) {
	v, err := b.eval(ctx, body)
	if err != nil {
		return 0, err
	}
	switch n := v.(type) {
	case nil:
		return 0, ErrObjectNotFound
	case float64:
		return n, nil
	case json.Number:
		f, err := n.Float64()
		if err != nil {
			return 0, &Error{Remote: fmt.Sprintf("non-numeric result %q", n)}
		}
		return f, nil
	default:
		return 0, &Error{Remote: fmt.Sprintf("unexpected result type %T", v)}
	}
}
