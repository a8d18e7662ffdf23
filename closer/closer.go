/*
Package closer contains helpers for not losing deferred errors
*/
package closer

import (
	"fmt"
	"io"
)

// ErrorHandler closes c, keeping the close error in *in unless an earlier error is
// already there.
//
//	defer closer.ErrorHandler(f, &err)
func ErrorHandler(c io.Closer, in *error) {
	cerr := c.Close()
	if *in == nil {
		*in = cerr
	}
}

// Wrapped is ErrorHandler with the close error annotated, so the caller can tell which
// resource failed to close.
func Wrapped(c io.Closer, in *error, what string) {
	cerr := c.Close()
	if *in == nil && cerr != nil {
		*in = fmt.Errorf("failed to close %s: %w", what, cerr)
	}
}

