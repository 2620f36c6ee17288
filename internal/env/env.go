// Package env loads and layers the variable sources of a workflow step:
// dotenv files, runner-provided INPUT_* variables and the process environment.
package env

import (
	"fmt"
	"maps"
	"os"
	"path/filepath"
	"strings"

	"github.com/joho/godotenv"
)

// inputPrefix marks action inputs exported by the runner.
const inputPrefix = "INPUT_"

// Vars represents a simple string-to-string map of variables.
type Vars map[string]string

// FromOS builds a Vars map from the current process environment.
func FromOS() Vars {
	return Parse(os.Environ())
}

// Parse converts KEY=VALUE entries into Vars. Entries without "=" are dropped.
func Parse(entries []string) Vars {
	out := make(Vars, len(entries))
	for _, kv := range entries {
		k, v, ok := strings.Cut(kv, "=")
		if !ok || k == "" {
			continue
		}
		out[k] = v
	}
	return out
}

// Merge layers sets in order; later sets override earlier keys.
func Merge(sets ...Vars) Vars {
	out := make(Vars)
	for _, s := range sets {
		maps.Copy(out, s)
	}
	return out
}

// ActionInputs returns the INPUT_* entries of v under their input names.
// The runner upper-cases input names and replaces spaces with underscores;
// hyphens are also mapped to underscores so that "droid-args" and
// "droid_args" land on DROID_ARGS.
func (v Vars) ActionInputs() Vars {
	out := make(Vars)
	for k, val := range v {
		name, ok := strings.CutPrefix(k, inputPrefix)
		if !ok || name == "" {
			continue
		}
		out[strings.ToUpper(strings.NewReplacer("-", "_", " ", "_").Replace(name))] = val
	}
	return out
}

// LoadEnvFile reads one dotenv file.
func LoadEnvFile(path string) (Vars, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer func() { _ = f.Close() }()

	parsed, err := godotenv.Parse(f)
	if err != nil {
		return nil, err
	}
	return Vars(parsed), nil
}

// LoadEnvFiles reads dotenv files relative to baseDir and merges them in order.
func LoadEnvFiles(baseDir string, files []string) (Vars, error) {
	var result Vars
	for _, name := range files {
		if strings.TrimSpace(name) == "" {
			continue
		}
		path := name
		if !filepath.IsAbs(path) {
			path = filepath.Join(baseDir, name)
		}
		vars, err := LoadEnvFile(path)
		if err != nil {
			return nil, fmt.Errorf("load env file %q: %w", path, err)
		}
		result = Merge(result, vars)
	}
	return result, nil
}

// NonBlank returns a copy of v without keys whose value is empty or whitespace.
// Actions pass unset inputs as empty strings.
func (v Vars) NonBlank() Vars {
	out := make(Vars, len(v))
	for k, val := range v {
		if strings.TrimSpace(val) != "" {
			out[k] = val
		}
	}
	return out
}
