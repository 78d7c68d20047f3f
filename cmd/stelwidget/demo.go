package main

import (
	"bytes"
	"context"
	"html/template"
	"net/http"
	"sync"
	"time"

	"github.com/spf13/viper"
	"go.uber.org/zap"
	"tractor.dev/toolkit-go/engine/cli"

	"github.com/stelwidget/stelwidget"
	"github.com/stelwidget/stelwidget/session"
)

const sessionPath = "/stelwidget/session"

func demoCmd() *cli.Command {
	cmd := &cli.Command{
		Usage: "demo",
		Short: "serve a demo page with one sky widget",
		Run: func(ctx *cli.Context, args []string) {
			runDemo()
		},
	}
	return cmd
}

// demoConfig layers file < env: a stelwidget.yaml next to the working
// directory, overridden by STELWIDGET_* variables.
func demoConfig() *viper.Viper {
	v := viper.New()
	v.SetDefault("listen", ":7777")
	v.SetDefault("url_prefix", stelwidget.DefaultURLPrefix)
	v.SetConfigName("stelwidget")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	v.SetEnvPrefix("stelwidget")
	v.AutomaticEnv()
	_ = v.ReadInConfig() // optional
	return v
}

func runDemo() {
	v := demoConfig()
	logger, err := zap.NewDevelopment()
	fatal(err)
	stelwidget.SetLogger(logger)
	session.SetLogger(logger)

	var cfg *stelwidget.Config
	if dir := v.GetString("build_dir"); dir != "" {
		cfg = &stelwidget.Config{
			BuildDir:  dir,
			DataDir:   v.GetString("data_dir"),
			URLPrefix: v.GetString("url_prefix"),
		}
	} else {
		cfg, err = stelwidget.Discover()
		fatal(err)
	}

	type page struct {
		widget *stelwidget.Widget
		runner *pageRunner
	}
	var pagesMu sync.Mutex
	pages := make(map[string]*page)

	mux := http.NewServeMux()

	mux.Handle(sessionPath, &session.Handler{
		Accept: func(s *session.Session, r *http.Request) {
			id := r.URL.Query().Get("page")
			pagesMu.Lock()
			pg := pages[id]
			pagesMu.Unlock()
			if pg == nil {
				logger.Warn("session for unknown page", zap.String("page", id))
				s.Close()
				return
			}
			pg.runner.attach(s)
			go tour(logger, pg.widget)
		},
	})

	mux.Handle("/", http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/" {
			http.NotFound(w, r)
			return
		}
		runner := newPageRunner()
		widget, err := stelwidget.New(runner, stelwidget.WithConfig(cfg), stelwidget.WithHeight("70vh"))
		if err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}
		markup, err := widget.Render(mux)
		if err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}
		pagesMu.Lock()
		pages[widget.ID] = &page{widget: widget, runner: runner}
		pagesMu.Unlock()

		var buf bytes.Buffer
		err = demoTmpl.Execute(&buf, map[string]any{
			"SessionPath": sessionPath + "?page=" + widget.ID,
			"Widget":      markup,
		})
		if err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}
		w.Write(buf.Bytes())
	}))

	addr := v.GetString("listen")
	logger.Info("serving stelwidget demo", zap.String("addr", addr))
	fatal(http.ListenAndServe(addr, loggerMiddleware(logger, mux)))
}

// tour drives the widget once its page is live, as a smoke test of the
// command and query paths.
func tour(logger *zap.Logger, w *stelwidget.Widget) {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()
	if err := w.WaitReady(ctx); err != nil {
		logger.Warn("widget never became ready", zap.String("widget", w.ID), zap.Error(err))
		return
	}
	logger.Info("widget ready", zap.String("widget", w.ID))

	w.SetConstellationLines(true)
	w.SetAtmosphere(true)
	w.LookAt("NAME Polaris")
	alt, err := w.ObjectAltitude(ctx, "NAME Polaris")
	if err != nil {
		logger.Warn("altitude query failed", zap.Error(err))
		return
	}
	logger.Info("Polaris altitude", zap.Float64("degrees", alt))
}

func loggerMiddleware(logger *zap.Logger, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		next.ServeHTTP(w, r)
		logger.Debug("request",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Duration("took", time.Since(start)))
	})
}

var demoTmpl = template.Must(template.New("demo").Parse(`<!DOCTYPE html>
<html>
<head>
<meta charset="utf-8">
<title>stelwidget demo</title>
<style>
body { margin: 0; background: #111; color: #ddd; font-family: sans-serif; }
main { max-width: 960px; margin: 2rem auto; }
</style>
</head>
<body>
<main>
<h1>stelwidget</h1>
<script>
window.__stelwidgetSessionURL = (location.protocol === 'https:' ? 'wss://' : 'ws://') + location.host + {{.SessionPath}};
</script>
{{.Widget}}
</main>
</body>
</html>
`))

// pageRunner defers script execution until the page's session connects:
// the init handshake is issued at render time, before the page has even
// been delivered.
type pageRunner struct {
	mu       sync.Mutex
	sess     *session.Session
	buf      []string
	attached chan struct{}
}

func newPageRunner() *pageRunner {
	return &pageRunner{attached: make(chan struct{})}
}

func (p *pageRunner) Execute(ctx context.Context, src string) error {
	p.mu.Lock()
	if p.sess == nil {
		p.buf = append(p.buf, src)
		p.mu.Unlock()
		return nil
	}
	s := p.sess
	p.mu.Unlock()
	return s.Execute(ctx, src)
}

func (p *pageRunner) Evaluate(ctx context.Context, src string, timeout time.Duration) (any, error) {
	select {
	case <-p.attached:
	case <-ctx.Done():
		return nil, ctx.Err()
	}
	p.mu.Lock()
	s := p.sess
	p.mu.Unlock()
	return s.Evaluate(ctx, src, timeout)
}

// attach binds the live session and replays buffered commands in order.
func (p *pageRunner) attach(s *session.Session) {
	p.mu.Lock()
	if p.sess != nil {
		p.mu.Unlock()
		return
	}
	p.sess = s
	buf := p.buf
	p.buf = nil
	p.mu.Unlock()
	for _, src := range buf {
		if err := s.Execute(context.Background(), src); err != nil {
			session.Logger().Warn("replay failed", zap.Error(err))
			return
		}
	}
	close(p.attached)
}
