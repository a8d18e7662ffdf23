package main

import (
	"os"
	"testing"
	"time"

	"gotest.tools/v3/assert"
	"gotest.tools/v3/assert/cmp"
	"gotest.tools/v3/fs"

	"github.com/circleci/nostrd/relayconf"
	"github.com/circleci/nostrd/testing/kongtest"
)

func TestCLI(t *testing.T) {
	dir := fs.NewDir(t, "fakerelay")
	files, err := relayconf.Write(dir.Path(), relayconf.Network{Address: "127.0.0.1", Port: 7447})
	assert.Assert(t, err)

	t.Run("Help", func(t *testing.T) {
		help := kongtest.Help(t, &cli{})
		assert.Check(t, cmp.Contains(help, "--config"))
		assert.Check(t, cmp.Contains(help, "--db"))
		assert.Check(t, cmp.Contains(help, "--mode"))
	})

	t.Run("Relay arguments", func(t *testing.T) {
		c := cli{}
		_, err := kongtest.Parse(t, &c, files.Args("--mode", "silent", "--delay", "1s")...)
		assert.Assert(t, err)
		assert.Check(t, cmp.DeepEqual(c, cli{
			Config: files.Config,
			DB:     files.DataDir,
			Mode:   "silent",
			Delay:  time.Second,
		}))
	})

	t.Run("Unknown mode", func(t *testing.T) {
		_, err := kongtest.Parse(t, &cli{}, files.Args("--mode", "sulk")...)
		assert.Check(t, cmp.ErrorContains(err, "--mode"))
	})

	t.Run("Missing config file", func(t *testing.T) {
		_, err := kongtest.Parse(t, &cli{}, "--config", dir.Join("nope.toml"), "--db", dir.Path())
		assert.Check(t, err != nil)
	})
}

func TestRecord(t *testing.T) {
	dir := fs.NewDir(t, "fakerelay-record")
	path := dir.Join("records")

	assert.Assert(t, record(path, "/tmp/one", 4000))
	assert.Assert(t, record(path, "/tmp/two", 4001))

	b, err := os.ReadFile(path)
	assert.Assert(t, err)
	assert.Check(t, cmp.Equal(string(b), "/tmp/one 4000\n/tmp/two 4001\n"))
}
