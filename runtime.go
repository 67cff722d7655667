package main

import (
	"crypto/sha256"
	"embed"
	"encoding/hex"
	"fmt"
	"hash"
	"io/fs"
	"os"
	"os/exec"
	"path/filepath"
	"runtime"
	"sort"
	"strings"
	"time"

	"github.com/gofrs/flock"
	"github.com/thiremani/simmod/config"
)

const (
	RUNTIME_DIR = "runtime"
	OBJ_SUFFIX  = ".o"
	OPT_LEVEL   = "-O2"
	C_STD       = "-std=c99"
	FPIC        = "-fPIC"
	OS_WINDOWS  = "windows"

	runtimeMarchEnv = config.MarchEnv

	// Old runtime builds are kept this many at least, and removed only
	// once older than runtimeMaxAge.
	runtimeKeep   = 5
	runtimeMaxAge = 7 * 24 * time.Hour
)

//go:embed runtime
var runtimeFS embed.FS

// rtCompiler compiles the embedded runtime and generated models.
type rtCompiler struct {
	cc string
	// march comes from the config file; the environment wins.
	march string
}

func newRTCompiler(cfg config.Config) rtCompiler {
	cc := cfg.CC
	if cc == "" {
		cc = config.DefaultCC
	}
	return rtCompiler{cc: cc, march: cfg.March}
}

// marchFlag turns the requested target into a compiler flag. An empty
// request keeps the build portable.
func (c rtCompiler) marchFlag() string {
	march := os.Getenv(runtimeMarchEnv)
	if march == "" {
		march = c.march
	}
	switch {
	case march == "":
		return ""
	case strings.HasPrefix(march, "-march="):
		return march
	}
	return "-march=" + march
}

// flags are shared by the runtime and model compiles, and hashed into the
// cache key.
func (c rtCompiler) flags() []string {
	flags := []string{OPT_LEVEL, C_STD}
	if m := c.marchFlag(); m != "" {
		flags = append(flags, m)
	}
	if runtime.GOOS != OS_WINDOWS {
		flags = append(flags, FPIC)
	}
	return flags
}

// runtimeCompileFlags returns the flags for the default compiler settings.
func runtimeCompileFlags() []string {
	return rtCompiler{cc: config.DefaultCC}.flags()
}

func (c rtCompiler) compile(src, obj string, includes ...string) error {
	args := c.flags()
	for _, dir := range includes {
		args = append(args, "-I", dir)
	}
	args = append(args, "-c", src, "-o", obj)
	if out, err := exec.Command(c.cc, args...).CombinedOutput(); err != nil {
		return fmt.Errorf("compile %s: %v\n%s", src, err, out)
	}
	return nil
}

// runtimeSources describes the embedded runtime: its content hash, which
// also covers the compiler settings, and the number of .c files.
type runtimeSources struct {
	short string
	full  string
	count int
}

func (c rtCompiler) hashSettings(h hash.Hash) {
	h.Write([]byte(c.cc))
	for _, flag := range c.flags() {
		h.Write([]byte(flag))
	}
	h.Write([]byte(runtime.GOOS))
	h.Write([]byte(runtime.GOARCH))
}

func (c rtCompiler) sources() (runtimeSources, error) {
	h := sha256.New()
	c.hashSettings(h)
	var rs runtimeSources
	err := fs.WalkDir(runtimeFS, RUNTIME_DIR, func(path string, d fs.DirEntry, walkErr error) error {
		if walkErr != nil || d.IsDir() {
			return walkErr
		}
		data, err := runtimeFS.ReadFile(path)
		if err != nil {
			return err
		}
		h.Write([]byte(path))
		h.Write(data)
		if strings.HasSuffix(path, ".c") {
			rs.count++
		}
		return nil
	})
	if err != nil {
		return rs, fmt.Errorf("walk embedded runtime: %w", err)
	}
	rs.full = hex.EncodeToString(h.Sum(nil))
	rs.short = rs.full[:8]
	return rs, nil
}

// isHashDir matches the names of runtime build directories.
func isHashDir(name string) bool {
	if len(name) != 8 {
		return false
	}
	_, err := hex.DecodeString(name)
	return err == nil
}

// extractRuntime writes the embedded runtime files to dir.
func extractRuntime(dir string) error {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("create runtime dir: %w", err)
	}
	entries, err := runtimeFS.ReadDir(RUNTIME_DIR)
	if err != nil {
		return fmt.Errorf("read embedded runtime: %w", err)
	}
	for _, e := range entries {
		data, err := runtimeFS.ReadFile(RUNTIME_DIR + "/" + e.Name())
		if err != nil {
			return fmt.Errorf("read embedded %s: %w", e.Name(), err)
		}
		if err := os.WriteFile(filepath.Join(dir, e.Name()), data, 0644); err != nil {
			return err
		}
	}
	return nil
}

// pruneRuntimes removes the oldest runtime builds under root, keeping at
// least keep of them and anything younger than maxAge, since another
// process may still be linking against it.
func pruneRuntimes(root string, keep int, maxAge time.Duration) {
	entries, err := os.ReadDir(root)
	if err != nil {
		return
	}
	type build struct {
		name  string
		mtime time.Time
	}
	var builds []build
	for _, e := range entries {
		if !e.IsDir() || !isHashDir(e.Name()) {
			continue
		}
		if info, err := e.Info(); err == nil {
			builds = append(builds, build{e.Name(), info.ModTime()})
		}
	}
	if len(builds) <= keep {
		return
	}

	sort.Slice(builds, func(i, j int) bool { return builds[i].mtime.Before(builds[j].mtime) })
	cutoff := time.Now().Add(-maxAge)
	for _, b := range builds[:len(builds)-keep] {
		if b.mtime.Before(cutoff) {
			path := filepath.Join(root, b.name)
			if err := os.RemoveAll(path); err != nil {
				fmt.Printf("warning: failed to remove old runtime %s: %v\n", path, err)
			}
		}
	}
}

// prepareRuntime returns the directory holding the compiled runtime and its
// objects, building it under cacheDir when needed. The lock makes
// concurrent processes either wait for a build or reuse a finished one.
func (c rtCompiler) prepareRuntime(cacheDir string) (string, []string, error) {
	root := filepath.Join(cacheDir, RUNTIME_DIR)
	if err := os.MkdirAll(root, 0755); err != nil {
		return "", nil, fmt.Errorf("create runtime dir: %w", err)
	}

	lock := flock.New(filepath.Join(root, ".lock"))
	if err := lock.Lock(); err != nil {
		return "", nil, fmt.Errorf("acquire runtime lock: %w", err)
	}
	defer lock.Unlock()

	rs, err := c.sources()
	if err != nil {
		return "", nil, err
	}
	dir := filepath.Join(root, rs.short)
	hashFile := filepath.Join(dir, ".hash")

	if objs, err := filepath.Glob(filepath.Join(dir, "*"+OBJ_SUFFIX)); err == nil && len(objs) == rs.count {
		if stored, err := os.ReadFile(hashFile); err == nil && string(stored) == rs.full {
			fmt.Printf("Using cached runtime: %s\n", dir)
			return dir, objs, nil
		}
		fmt.Printf("Runtime hash mismatch, rebuilding: %s\n", dir)
		os.RemoveAll(dir)
	}

	pruneRuntimes(root, runtimeKeep, runtimeMaxAge)

	fmt.Printf("Compiling runtime: %s\n", dir)
	if err := extractRuntime(dir); err != nil {
		return "", nil, err
	}
	srcs, err := filepath.Glob(filepath.Join(dir, "*.c"))
	if err != nil {
		return "", nil, fmt.Errorf("glob runtime sources: %w", err)
	}
	var objs []string
	for _, src := range srcs {
		obj := strings.TrimSuffix(src, ".c") + OBJ_SUFFIX
		if err := c.compile(src, obj, dir); err != nil {
			return "", nil, err
		}
		objs = append(objs, obj)
	}
	// The hash file marks a complete build.
	if err := os.WriteFile(hashFile, []byte(rs.full), 0644); err != nil {
		return "", nil, fmt.Errorf("write hash file: %w", err)
	}
	return dir, objs, nil
}

// buildModel compiles the generated model file against the runtime
// headers and returns the object written next to it.
func (c rtCompiler) buildModel(modelC, rtDir string) (string, error) {
	obj := strings.TrimSuffix(modelC, filepath.Ext(modelC)) + OBJ_SUFFIX
	if err := c.compile(modelC, obj, rtDir); err != nil {
		return "", err
	}
	return obj, nil
}
