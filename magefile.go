//go:build mage

package main

import (
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"runtime"
	"strings"
)

const (
	mainPkg  = "./cmd/extractor"
	binDir   = "bin"
	coverOut = "coverage.out"
)

// goCmd runs the go tool with stdio attached. extraEnv entries are KEY=VALUE.
func goCmd(extraEnv []string, args ...string) error {
	cmd := exec.Command("go", args...)
	cmd.Env = append(os.Environ(), extraEnv...)
	cmd.Stdout, cmd.Stderr = os.Stdout, os.Stderr
	return cmd.Run()
}

func binary() string {
	name := "extractor"
	if runtime.GOOS == "windows" {
		name += ".exe"
	}
	return filepath.Join(binDir, name)
}

// testArgs enables the race detector unless NO_RACE=1.
func testArgs(extra ...string) ([]string, []string) {
	if os.Getenv("NO_RACE") == "1" {
		return nil, append([]string{"test"}, append(extra, "./...")...)
	}
	return []string{"CGO_ENABLED=1"}, append([]string{"test", "-race"}, append(extra, "./...")...)
}

// sourceRoots lists top-level paths gofmt should see; like the go tool, it
// skips directories starting with "_" or ".".
func sourceRoots() []string {
	entries, _ := os.ReadDir(".")
	var roots []string
	for _, e := range entries {
		name := e.Name()
		if strings.HasPrefix(name, "_") || strings.HasPrefix(name, ".") {
			continue
		}
		if e.IsDir() || strings.HasSuffix(name, ".go") {
			roots = append(roots, name)
		}
	}
	return roots
}

// Build compiles the extractor into ./bin.
func Build() error {
	if err := os.MkdirAll(binDir, 0o755); err != nil {
		return err
	}
	return goCmd(nil, "build", "-trimpath", "-ldflags", "-s -w", "-o", binary(), mainPkg)
}

// Run executes one extraction from source, honouring CONFIG_PATH.
func Run() error {
	args := []string{"run", mainPkg}
	if p := os.Getenv("CONFIG_PATH"); p != "" {
		args = append(args, "-config", p)
	}
	return goCmd(nil, args...)
}

// Test runs the unit tests. Set NO_RACE=1 to skip the race detector.
func Test() error {
	env, args := testArgs()
	return goCmd(env, args...)
}

// Cover writes coverage.out and an HTML report next to it.
func Cover() error {
	env, args := testArgs("-coverprofile=" + coverOut)
	if err := goCmd(env, args...); err != nil {
		return err
	}
	return goCmd(nil, "tool", "cover", "-html="+coverOut, "-o", "coverage.html")
}

// Vet runs go vet.
func Vet() error {
	return goCmd(nil, "vet", "./...")
}

// Fmt rewrites sources with gofmt.
func Fmt() error {
	return goCmd(nil, "fmt", "./...")
}

// Clean removes build and coverage artifacts.
func Clean() error {
	for _, p := range []string{binDir, coverOut, "coverage.html"} {
		if err := os.RemoveAll(p); err != nil {
			return err
		}
	}
	return nil
}

// Verify fails on unformatted files, then vets, tests and builds.
func Verify() error {
	res, err := exec.Command("gofmt", append([]string{"-l"}, sourceRoots()...)...).Output()
	if err != nil {
		return fmt.Errorf("gofmt: %w", err)
	}
	if files := strings.TrimSpace(string(res)); files != "" {
		return errors.New("needs gofmt:\n" + files)
	}
	for _, step := range []func() error{Vet, Test, Build} {
		if err := step(); err != nil {
			return err
		}
	}
	return nil
}
