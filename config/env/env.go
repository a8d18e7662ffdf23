// Package env provides a few helpers to load in environment variables
// with defaults
package env

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	multierror "github.com/hashicorp/go-multierror"
)

// Loader reads typed values from environment variables into fields that already hold
// their defaults. Parse failures are collected rather than returned, see Err.
type Loader struct {
	seen map[string]bool
	err  error
}

func NewLoader() *Loader {
	return &Loader{
		seen: make(map[string]bool),
	}
}

// Err returns every parse failure seen so far, or nil.
func (l *Loader) Err() error {
	return l.err
}

// String inspects the system env var given by env. If it is present it will
// set the contents of fld.
func (l *Loader) String(fld *string, env string) {
	l.claim(env)
	val, ok := os.LookupEnv(env)
	if !ok {
		return
	}
	*fld = val
}

// Fields inspects the system env var given by env. If it is present it is split on
// white space to set the contents of fld.
func (l *Loader) Fields(fld *[]string, env string) {
	l.claim(env)
	val, ok := os.LookupEnv(env)
	if !ok {
		return
	}
	*fld = strings.Fields(val)
}

// Int inspects the system env var given by env. If it is present
// it will parse the value as an int as per Atoi to set the contents of fld.
// If the parse fails the content of fld is left unaltered and the
// loader multi error added to.
func (l *Loader) Int(fld *int, env string) {
	l.claim(env)
	val, ok := os.LookupEnv(env)
	if !ok {
		return
	}
	i, err := strconv.Atoi(val)
	if err != nil {
		l.fail(env, err)
		return
	}
	*fld = i
}

// Bool inspects the system env var given by env. If it is present
// it will use the truthy or falsy strings as per ParseBool to set
// the contents of fld.
// If the parse fails the content of fld is left unaltered and the
// loader multi error added to.
func (l *Loader) Bool(fld *bool, env string) {
	l.claim(env)
	val, ok := os.LookupEnv(env)
	if !ok {
		return
	}
	b, err := strconv.ParseBool(val)
	if err != nil {
		l.fail(env, err)
		return
	}
	*fld = b
}

// Duration inspects the system env var given by env. If it is present
// it will parse the value as per time.ParseDuration to set the contents of fld.
// If the parse fails the content of fld is left unaltered and the
// loader multi error added to.
func (l *Loader) Duration(fld *time.Duration, env string) {
	l.claim(env)
	val, ok := os.LookupEnv(env)
	if !ok {
		return
	}
	d, err := time.ParseDuration(val)
	if err != nil {
		l.fail(env, err)
		return
	}
	*fld = d
}

func (l *Loader) fail(env string, err error) {
	l.err = multierror.Append(l.err, fmt.Errorf("env var: %q caused an error: %w", env, err))
}

func (l *Loader) claim(env string) {
	if l.seen[env] {
		panic("duplicate environment variable " + env)
	}
	l.seen[env] = true
}
