package stopworld

import (
	"os"

	"github.com/rs/zerolog"
)

// logger is the package-wide structured logger. Callers embedding stopworld
// in a larger collector can replace it wholesale (SetLogger) to route output
// through their own sinks; components tag their lines with a "component"
// field rather than using separate loggers per subsystem.
var logger = zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr}).With().Timestamp().Logger()

// SetLogger replaces the package-wide logger. Not safe to call concurrently
// with any other stopworld operation; intended for process start-up only.
func SetLogger(l zerolog.Logger) { logger = l }

func componentLog(component string) zerolog.Logger {
	return logger.With().Str("component", component).Logger()
}

// abortFunc is the fatal-invariant-violation choke point (§7: "Fatal
// invariant violation ... abort"). It is a package variable so a test can
// substitute a panicking stand-in, making a triggered invariant fail the test
// instead of exiting the process; the package's own tests leave it as is.
var abortFunc = func(component, msg string, kv map[string]any) {
	ev := logger.Fatal().Str("component", component)
	for k, v := range kv {
		ev = ev.Interface(k, v)
	}
	ev.Msg(msg)
}

func abort(component, msg string, kv ...any) {
	m := make(map[string]any, len(kv)/2)
	for i := 0; i+1 < len(kv); i += 2 {
		if key, ok := kv[i].(string); ok {
			m[key] = kv[i+1]
		}
	}
	abortFunc(component, msg, m)
}
