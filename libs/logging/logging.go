// Package logging configures zerolog for the portal: an async drop-tolerant
// writer in deployed environments and a console writer locally.
package logging

import (
	"context"
	"io"
	"os"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/diode"

	appctx "github.com/portal-pay/portal-go/libs/context"
)

var (
	// log writing must never stall request handling, so the async writer
	// drops messages under contention and this counter tracks how many
	droppedLogTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "dropped_log_events_total",
			Help: "A counter for the number of dropped log messages",
		},
	)

	// Writer is the active log writer, exposed so main can close it on shutdown
	Writer io.WriteCloser
)

func init() {
	prometheus.MustRegister(droppedLogTotal)
}

// NopCloser returns w with a no-op Close method
func NopCloser(w io.Writer) io.WriteCloser {
	return nopCloser{w}
}

type nopCloser struct {
	io.Writer
}

func (nopCloser) Close() error { return nil }

// SetupLogger builds a logger from the context configuration and attaches it
// back onto the returned context.
func SetupLogger(ctx context.Context) (context.Context, *zerolog.Logger) {
	env := "local"
	if e, err := appctx.GetStringFromContext(ctx, appctx.EnvironmentCTXKey); err == nil {
		env = e
	}

	// zero value is info level
	level, _ := appctx.GetLogLevelFromContext(ctx, appctx.LogLevelCTXKey)

	if w, ok := ctx.Value(appctx.LogWriterCTXKey).(io.Writer); ok {
		Writer = NopCloser(w)
	} else if env != "local" {
		// ring buffered writer which drops rather than blocks when full
		Writer = diode.NewWriter(os.Stdout, 1000, 20*time.Millisecond, func(missed int) {
			droppedLogTotal.Add(float64(missed))
		})
	} else {
		Writer = NopCloser(zerolog.ConsoleWriter{Out: os.Stdout})
	}

	l := zerolog.New(Writer).With().Timestamp().Logger().Level(level)

	if debug, ok := ctx.Value(appctx.DebugLoggingCTXKey).(bool); ok && debug {
		l = l.Level(zerolog.DebugLevel)
	}

	return l.WithContext(ctx), &l
}

// Logger returns the context logger scoped with a module prefix, setting one
// up when the context has none.
func Logger(ctx context.Context, prefix string) *zerolog.Logger {
	l, err := appctx.GetLogger(ctx)
	if err != nil {
		_, l = SetupLogger(ctx)
	}

	sub := l.With().Str("module", prefix).Logger()
	return &sub
}
