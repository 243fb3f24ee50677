package configutil

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"dario.cat/mergo"
	"github.com/titanous/json5"
)

func splitExt(f string) (string, string) {
	for i := len(f) - 1; i >= 0; i-- {
		if f[i] == '.' {
			return f[0:i], f[i+1:]
		}
	}
	return f, ""
}

// ReadConfig loads `<name>` and merges `<name's base>.local.<ext>` on
// top of it, so a checked-in config can carry the defaults and a
// gitignored local file the per-deployment overrides. Missing files are
// skipped, both missing is os.ErrNotExist.
func ReadConfig[T any](name string) (T, error) {
	var out T
	found := false

	dirname := filepath.Dir(name)
	basename := filepath.Base(name)
	prefixname, ext := splitExt(basename)

	defaultFile, err := os.ReadFile(name)
	if err != nil && !os.IsNotExist(err) {
		return out, err
	}
	if len(defaultFile) > 0 {
		err = json5.Unmarshal(defaultFile, &out)
		if err != nil {
			return out, err
		}
		found = true
	}

	localFilepath := filepath.Join(
		dirname,
		fmt.Sprintf("%s.local.%s", prefixname, ext),
	)
	localFile, err := os.ReadFile(localFilepath)
	if err != nil && !os.IsNotExist(err) {
		return out, err
	}
	if len(localFile) > 0 {
		var override T
		err = json5.Unmarshal(localFile, &override)
		if err != nil {
			return out, err
		}
		err = mergo.Merge(&out, override, mergo.WithOverride)
		if err != nil {
			return out, err
		}
		slog.Info("merging config with local overrides", "local", localFilepath)
		found = true
	}

	if !found {
		return out, os.ErrNotExist
	}

	return out, nil
}

// ReadRecursively walks from the working directory up to the
// filesystem root and returns the first config matching `name`, so
// tests and binaries nested anywhere in the tree share one file.
func ReadRecursively[T any](name string) (T, error) {
	var defaultOut T

	root, err := filepath.Abs("/")
	if err != nil {
		return defaultOut, err
	}
	current, err := os.Getwd()
	if err != nil {
		return defaultOut, err
	}

	for current != root {
		config, err := ReadConfig[T](filepath.Join(current, name))
		if os.IsNotExist(err) {
			current = filepath.Join(current, "..")
			continue
		}
		if err != nil {
			return defaultOut, err
		}

		return config, nil
	}

	return defaultOut, os.ErrNotExist
}
