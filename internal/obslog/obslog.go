// Package obslog configures structured logging for the worker runtime.
// Driver failures are packaged into QueryResults instead of being returned
// up the stack, so the log line written at the packaging site is the only
// place an error's call-site stack is ever captured; the helpers here exist
// to make that one line carry the stack and the command it belongs to.
package obslog

import (
	"fmt"
	"os"
	"strings"
	"sync"

	pkgerrors "github.com/pkg/errors"
	"github.com/rs/zerolog"
	zpkgerrors "github.com/rs/zerolog/pkgerrors"
)

var configure sync.Once

// New returns a logger tagged with the runtime component that owns it
// ("connworker", "connmanager", ...). The first call installs the
// process-wide stack marshaller; events logged with .Stack() render the
// pkg/errors trace attached via WithStack.
func New(component string) zerolog.Logger {
	configure.Do(func() {
		zerolog.ErrorStackMarshaler = zpkgerrors.MarshalStack
	})
	return zerolog.New(os.Stdout).With().
		Str("component", component).
		Timestamp().
		Logger()
}

// WithStack attaches a pkg/errors stack to err at the driver boundary,
// unless err already carries one.
func WithStack(err error) error {
	if err == nil {
		return nil
	}
	type stackTracer interface{ StackTrace() pkgerrors.StackTrace }
	if _, ok := err.(stackTracer); ok {
		return err
	}
	return pkgerrors.WithStack(err)
}

// ForQuery tags log with a command's correlation uid and QueryEvent, so a
// worker's log lines match up with the EXECUTED payloads its receivers see.
func ForQuery(log zerolog.Logger, uid string, event fmt.Stringer) zerolog.Logger {
	return log.With().
		Str("uid", uid).
		Str("event", event.String()).
		Logger()
}

// ParseLevel maps a config level string onto a zerolog level, defaulting to
// info on anything unrecognised rather than failing startup over a typo.
func ParseLevel(s string) zerolog.Level {
	lvl, err := zerolog.ParseLevel(strings.ToLower(strings.TrimSpace(s)))
	if err != nil || lvl == zerolog.NoLevel {
		return zerolog.InfoLevel
	}
	return lvl
}
