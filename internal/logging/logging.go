// Package logging builds the zerolog loggers used by every partprune
// component.
package logging

import (
	"context"
	"io"
	"os"
	"runtime"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

type ctxKey string

// ReqIDKey is the context key holding the request id of an API call.
const ReqIDKey ctxKey = "reqID"

// Config controls logger construction.
type Config struct {
	Level  string `yaml:"level" json:"level" validate:"omitempty,oneof=trace debug info warn error disabled"`
	Pretty bool   `yaml:"pretty" json:"pretty"`
	Caller bool   `yaml:"caller" json:"caller"`
}

func init() {
	zerolog.TimeFieldFormat = time.RFC3339Nano
	zerolog.TimestampFieldName = "time"
	zerolog.CallerMarshalFunc = func(pc uintptr, file string, line int) string {
		function := ""
		fun := runtime.FuncForPC(pc)
		if fun != nil {
			funName := fun.Name()
			slash := strings.LastIndex(funName, "/")
			if slash > 0 {
				funName = funName[slash+1:]
			}
			function = " " + funName + "()"
		}
		return file + ":" + strconv.Itoa(line) + function
	}
}

// New returns a logger writing JSON to stdout, or human-readable lines to
// stderr when cfg.Pretty is set.
func New(cfg Config) zerolog.Logger {
	if cfg.Pretty {
		return NewWithWriter(zerolog.ConsoleWriter{Out: os.Stderr}, cfg)
	}
	return NewWithWriter(os.Stdout, cfg)
}

// NewWithWriter returns a logger writing to w.
func NewWithWriter(w io.Writer, cfg Config) zerolog.Logger {
	level := zerolog.InfoLevel
	if cfg.Level != "" {
		if l, err := zerolog.ParseLevel(cfg.Level); err == nil {
			level = l
		}
	}
	logger := zerolog.New(w).Level(level).With().Timestamp().Logger()
	if cfg.Caller {
		logger = logger.Hook(CallerHook{})
	}
	return logger
}

// WithComponent tags every event of l with the component name.
func WithComponent(l zerolog.Logger, component string) zerolog.Logger {
	return l.With().Str("component", component).Logger()
}

// WithRequestID stores id in ctx and attaches a request-scoped logger.
func WithRequestID(ctx context.Context, l zerolog.Logger, id string) context.Context {
	ctx = context.WithValue(ctx, ReqIDKey, id)
	return l.With().Str("req_id", id).Logger().WithContext(ctx)
}

// RequestID returns the request id stored by WithRequestID.
func RequestID(ctx context.Context) string {
	id, _ := ctx.Value(ReqIDKey).(string)
	return id
}

// CallerHook adds the caller location to every event.
type CallerHook struct{}

func (h CallerHook) Run(e *zerolog.Event, _ zerolog.Level, _ string) {
	e.Caller(3)
}
