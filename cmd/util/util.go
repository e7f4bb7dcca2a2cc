package util

import (
	"fmt"
	"os"
	"runtime/debug"

	"github.com/mirrorpush/mirrorpush/pkg/errors"
)

// HandleFatalError prints the user-facing version of `err` and exits.
func HandleFatalError(err error) {
	fmt.Fprintln(os.Stderr, errors.GetPrintableMessage(err))
	os.Exit(1)
}

// HandlePanic recovers from panics so that crashes print something actionable
// rather than a bare stack trace.
func HandlePanic() {
	r := recover()
	if r == nil {
		return
	}

	fmt.Fprintf(os.Stderr,
		"Mirrorpush crashed. This is a bug -- please report it.\n\n%v\n\n%s\n",
		r, debug.Stack())
	os.Exit(1)
}
