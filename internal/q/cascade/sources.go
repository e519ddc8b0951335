package cascade

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
)

// source supplies configuration as a normalized tree:
//   - keys are lower case and contain no "." (dots are expanded into nested maps)
//   - maps are map[string]any
//   - scalars are int, float64, bool, or string
//   - lists are []any of the above
type source interface {
	Name() string
	ToMap() (map[string]any, error)
}

type sourceMap struct {
	isDefaults bool
	m          map[string]any
}

// fileFormat selects the parser for a sourceFile.
type fileFormat int

const (
	formatTOML fileFormat = iota
	formatJSON
)

// formatForPath returns formatJSON for ".json" files and formatTOML otherwise.
func formatForPath(path string) fileFormat {
	if strings.EqualFold(filepath.Ext(path), ".json") {
		return formatJSON
	}
	return formatTOML
}

type sourceFile struct {
	path   string // expanded with ExpandPath at load time
	format fileFormat
}

// sourceEnv maps config keys ("." allowed) to environment variable names.
type sourceEnv struct {
	keyToEnv map[string]string
}

func (s *sourceMap) Name() string {
	if s.isDefaults {
		return "Defaults"
	}
	return "Go Map"
}

func (s *sourceMap) ToMap() (map[string]any, error) {
	return normalizeMap(s.m, "")
}

func (s *sourceFile) Name() string {
	if s.format == formatJSON {
		return "JSON File: " + s.path
	}
	return "TOML File: " + s.path
}

// ToMap reads and parses the file. Read errors are returned unwrapped enough for errors.Is(err, fs.ErrNotExist) to work.
func (s *sourceFile) ToMap() (map[string]any, error) {
	if s.path == "" {
		return map[string]any{}, nil
	}
	data, err := os.ReadFile(ExpandPath(s.path))
	if err != nil {
		return nil, fmt.Errorf("read file: %w", err)
	}
	if strings.TrimSpace(string(data)) == "" {
		return map[string]any{}, nil
	}

	var raw map[string]any
	switch s.format {
	case formatJSON:
		var top any
		if err := json.Unmarshal(data, &top); err != nil {
			return nil, fmt.Errorf("parse json: %w", err)
		}
		obj, ok := top.(map[string]any)
		if !ok {
			return nil, fmt.Errorf("top-level JSON must be an object")
		}
		raw = obj
	default:
		if _, err := toml.Decode(string(data), &raw); err != nil {
			return nil, fmt.Errorf("parse toml: %w", err)
		}
	}
	return normalizeMap(raw, "")
}

func (s *sourceEnv) Name() string {
	return "ENV"
}

// ToMap reads each mapped variable. Unset and empty variables set nothing, so an empty variable cannot blank out a value from a file.
func (s *sourceEnv) ToMap() (map[string]any, error) {
	out := map[string]any{}
	for key, envVar := range s.keyToEnv {
		if envVar == "" {
			continue
		}
		val := os.Getenv(envVar)
		if val == "" {
			continue
		}
		if err := insert(out, strings.Split(strings.ToLower(key), "."), val, key); err != nil {
			return nil, err
		}
	}
	return out, nil
}

// normalizeMap lowercases keys, expands dotted keys, and converts values to the normalized types. base prefixes keys in errors.
func normalizeMap(m map[string]any, base string) (map[string]any, error) {
	out := map[string]any{}
	for k, v := range m {
		full := joinKey(base, strings.ToLower(k))
		nv, err := normalizeValue(v, full)
		if err != nil {
			return nil, err
		}
		if err := insert(out, strings.Split(strings.ToLower(k), "."), nv, full); err != nil {
			return nil, err
		}
	}
	return out, nil
}

// normalizeValue converts decoder output (TOML's int64 and time.Time, JSON's []any, typed Go slices in defaults) to the normalized types.
func normalizeValue(v any, key string) (any, error) {
	switch vv := v.(type) {
	case nil, bool, string, float64, int:
		return vv, nil
	case int64:
		return int(vv), nil
	case int32:
		return int(vv), nil
	case float32:
		return float64(vv), nil
	case time.Duration:
		return vv.String(), nil
	case time.Time:
		return vv.Format(time.RFC3339Nano), nil
	case map[string]any:
		return normalizeMap(vv, key)
	case []any:
		return normalizeList(len(vv), func(i int) any { return vv[i] }, key)
	case []map[string]any:
		return normalizeList(len(vv), func(i int) any { return vv[i] }, key)
	case []string:
		return normalizeList(len(vv), func(i int) any { return vv[i] }, key)
	case []int:
		return normalizeList(len(vv), func(i int) any { return vv[i] }, key)
	case []float64:
		return normalizeList(len(vv), func(i int) any { return vv[i] }, key)
	case []bool:
		return normalizeList(len(vv), func(i int) any { return vv[i] }, key)
	default:
		return nil, fmt.Errorf("invalid value for key '%s': type %T is not allowed", key, v)
	}
}

func normalizeList(n int, at func(int) any, key string) ([]any, error) {
	out := make([]any, n)
	for i := range out {
		nv, err := normalizeValue(at(i), fmt.Sprintf("%s[%d]", key, i))
		if err != nil {
			return nil, err
		}
		out[i] = nv
	}
	return out, nil
}

// insert sets value at the path parts inside obj, merging maps. Setting the same leaf twice, or a leaf where a map exists, is a conflict.
func insert(obj map[string]any, parts []string, value any, fullKey string) error {
	head := parts[0]
	if head == "" {
		return fmt.Errorf("invalid key '%s'", fullKey)
	}
	existing, exists := obj[head]

	if len(parts) > 1 {
		if !exists {
			child := map[string]any{}
			obj[head] = child
			return insert(child, parts[1:], value, fullKey)
		}
		child, ok := existing.(map[string]any)
		if !ok {
			return fmt.Errorf("key conflict at '%s': '%s' is not an object", fullKey, head)
		}
		return insert(child, parts[1:], value, fullKey)
	}

	if !exists {
		obj[head] = value
		return nil
	}
	dst, dstIsMap := existing.(map[string]any)
	src, srcIsMap := value.(map[string]any)
	if !dstIsMap || !srcIsMap {
		return fmt.Errorf("key conflict: key '%s' was already set", fullKey)
	}
	for k, v := range src {
		if err := insert(dst, []string{k}, v, joinKey(fullKey, k)); err != nil {
			return err
		}
	}
	return nil
}

func joinKey(base, key string) string {
	if base == "" {
		return key
	}
	return base + "." + key
}
