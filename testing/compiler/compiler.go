package compiler

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"runtime"
)

type Compiler struct {
	dir string
}

func New() *Compiler {
	tempDir, err := os.MkdirTemp("", "nostrd-binaries")
	if err != nil {
		panic(err)
	}

	return &Compiler{
		dir: tempDir,
	}
}

func (c *Compiler) Dir() string {
	return c.dir
}

func (c *Compiler) Cleanup() {
	_ = os.RemoveAll(c.dir)
}

// Work describes one binary to build.
type Work struct {
	// Name of the resulting binary
	Name string
	// Target is the directory go build runs in, usually the module root
	Target string
	// Source is the main package, relative to Target
	Source string
	// Environment is added to the build's environment
	Environment []string
}

// Compile a binary for testing, returning its path.
func (c *Compiler) Compile(ctx context.Context, work Work) (string, error) {
	cwd, err := filepath.Abs(work.Target)
	if err != nil {
		return "", err
	}

	path := binaryPath(work.Name, c.dir)
	// #nosec - this is fine
	cmd := exec.CommandContext(ctx, goPath(), "build",
		"-o", path,
		work.Source,
	)
	cmd.Dir = cwd
	cmd.Env = append(os.Environ(), "CGO_ENABLED=0")
	cmd.Env = append(cmd.Env, work.Environment...)
	cmd.Stdout = os.Stdout
	cmd.Stderr = os.Stderr

	if err := cmd.Run(); err != nil {
		return "", fmt.Errorf("failed to compile %s: %w", work.Source, err)
	}
	return path, nil
}

func goPath() string {
	goroot := os.Getenv("GOROOT")
	if goroot == "" {
		return "go"
	}
	return filepath.Join(goroot, "bin", "go")
}

func binaryPath(name, tempDir string) string {
	path := filepath.Join(tempDir, name)
	if runtime.GOOS == "windows" {
		return path + ".exe"
	}
	return path
}
