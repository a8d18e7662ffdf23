// Package kongtest checks kong command lines without exiting the test binary.
package kongtest

import (
	"bytes"
	"testing"

	"github.com/alecthomas/kong"
	"github.com/google/go-cmp/cmp"
	"gotest.tools/v3/assert"
)

// Help returns the help text for cli.
func Help(t testing.TB, cli interface{}) string {
	t.Helper()
	w := bytes.NewBuffer(nil)
	rc := -1
	app, err := kong.New(cli,
		kong.Name("test-app"),
		kong.Writers(w, w),
		kong.Exit(func(i int) {
			rc = i
		}),
	)
	assert.Assert(t, err)

	// a cli with required flags reports them missing after the help is printed
	_, _ = app.Parse([]string{"--help"})
	assert.Check(t, cmp.Equal(0, rc))

	return w.String()
}

// Parse parses args into cli, returning the parse error and anything kong wrote.
func Parse(t testing.TB, cli interface{}, args ...string) (string, error) {
	t.Helper()
	w := bytes.NewBuffer(nil)
	app, err := kong.New(cli,
		kong.Name("test-app"),
		kong.Writers(w, w),
		kong.Exit(func(int) {}),
	)
	assert.Assert(t, err)

	_, err = app.Parse(args)
	return w.String(), err
}
