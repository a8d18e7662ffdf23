/*
Package relayconf writes the configuration file and argument list a relay process is
started with, and reads the file back.

Only the network section is produced. The port is written as a TOML string, which is
what the relay's own config parser expects.
*/
package relayconf

import (
	"errors"
	"fmt"
	"net"
	"os"
	"path/filepath"
	"strconv"

	"github.com/BurntSushi/toml"

	"github.com/circleci/nostrd/closer"
)

// FileName is the name of the generated file inside the working directory.
const FileName = "config.toml"

// Network is where the relay should listen.
type Network struct {
	Address string
	Port    int
}

func (n Network) HostPort() string {
	return net.JoinHostPort(n.Address, strconv.Itoa(n.Port))
}

func (n Network) validate() error {
	if n.Address == "" {
		return errors.New("address is required")
	}
	if n.Port <= 0 || n.Port > 65535 {
		return fmt.Errorf("port %d out of range", n.Port)
	}
	return nil
}

// Files are the paths a relay is pointed at by its arguments.
type Files struct {
	Config  string
	DataDir string
}

// Args returns extra followed by the arguments that point the relay at f.
func (f Files) Args(extra ...string) []string {
	args := make([]string, 0, len(extra)+4)
	args = append(args, extra...)
	return append(args,
		"--config", f.Config,
		"--db", f.DataDir,
	)
}

type document struct {
	Network network `toml:"network"`
}

type network struct {
	Address string `toml:"address"`
	Port    string `toml:"port"`
}

// Write creates the config file for n in dir. dir is also used as the data directory.
func Write(dir string, n Network) (_ Files, err error) {
	if err := n.validate(); err != nil {
		return Files{}, fmt.Errorf("invalid network config: %w", err)
	}

	path := filepath.Join(dir, FileName)
	// #nosec:G304 // the directory is created by the caller for this purpose
	f, err := os.OpenFile(path, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0o600)
	if err != nil {
		return Files{}, fmt.Errorf("failed to create config file: %w", err)
	}
	defer closer.Wrapped(f, &err, "config file")

	enc := toml.NewEncoder(f)
	enc.Indent = ""
	err = enc.Encode(document{
		Network: network{
			Address: n.Address,
			Port:    strconv.Itoa(n.Port),
		},
	})
	if err != nil {
		return Files{}, fmt.Errorf("failed to encode config file: %w", err)
	}

	return Files{
		Config:  path,
		DataDir: dir,
	}, nil
}

// Read parses a config file produced by Write.
func Read(path string) (Network, error) {
	doc := document{}
	md, err := toml.DecodeFile(path, &doc)
	if err != nil {
		return Network{}, fmt.Errorf("failed to decode config file: %w", err)
	}
	if !md.IsDefined("network", "port") {
		return Network{}, errors.New("config file has no network.port")
	}

	port, err := strconv.Atoi(doc.Network.Port)
	if err != nil {
		return Network{}, fmt.Errorf("network.port %q is not a number: %w", doc.Network.Port, err)
	}
	n := Network{
		Address: doc.Network.Address,
		Port:    port,
	}
	return n, n.validate()
}
