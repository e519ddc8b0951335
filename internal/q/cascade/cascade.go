package cascade

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"reflect"
	"strconv"
	"strings"
	"time"
)

// Loader is a prioritized list of configuration sources. The zero value is ready to use.
type Loader struct {
	sources []source // low to high priority
}

// New returns an empty Loader. It is equivalent to &Loader{} and exists for chaining.
func New() *Loader {
	return &Loader{}
}

// WithDefaults registers m as a source. Keys may use dot-notation. Call it first so every other source overrides it.
func (c *Loader) WithDefaults(m map[string]any) *Loader {
	c.sources = append(c.sources, &sourceMap{isDefaults: true, m: m})
	return c
}

// WithTOMLFile registers a TOML file, read at load time. path is expanded with ExpandPath.
func (c *Loader) WithTOMLFile(path string) *Loader {
	c.sources = append(c.sources, &sourceFile{path: path, format: formatTOML})
	return c
}

// WithJSONFile registers a JSON file, read at load time. path is expanded with ExpandPath.
func (c *Loader) WithJSONFile(path string) *Loader {
	c.sources = append(c.sources, &sourceFile{path: path, format: formatJSON})
	return c
}

// WithFile registers path as a JSON file if it ends in ".json", and as a TOML file otherwise.
func (c *Loader) WithFile(path string) *Loader {
	c.sources = append(c.sources, &sourceFile{path: path, format: formatForPath(path)})
	return c
}

// WithNearestFile searches upward from startingPath (a directory or file; "" means the working directory) for the first non-empty file named fileName, and registers it with WithFile.
// If nothing is found, the Loader is unchanged. It panics if fileName is absolute.
func (c *Loader) WithNearestFile(fileName string, startingPath string) *Loader {
	if p := FindNearest(fileName, startingPath); p != "" {
		c.WithFile(p)
	}
	return c
}

// FindNearest returns the path of the first non-empty file named fileName found in startingPath or one of its ancestors, or "" if there is none. It panics if fileName is absolute.
func FindNearest(fileName string, startingPath string) string {
	if filepath.IsAbs(fileName) {
		panic("fileName shouldn't be absolute")
	}
	start := startingPath
	if start == "" {
		wd, err := os.Getwd()
		if err != nil {
			return ""
		}
		start = wd
	}
	if fi, err := os.Stat(start); err == nil && !fi.IsDir() {
		start = filepath.Dir(start)
	}
	for dir := start; ; {
		candidate := filepath.Join(dir, fileName)
		if data, err := os.ReadFile(candidate); err == nil && strings.TrimSpace(string(data)) != "" {
			return candidate
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			return ""
		}
		dir = parent
	}
}

// WithEnv registers environment variables. m maps config keys (dots denote nesting) to variable names. Unset or empty variables are ignored.
func (c *Loader) WithEnv(m map[string]string) *Loader {
	c.sources = append(c.sources, &sourceEnv{keyToEnv: m})
	return c
}

// StrictlyLoad applies every source to dest, a non-nil pointer to a struct, from low to high priority. See the package doc for matching, coercion, and error rules.
func (c *Loader) StrictlyLoad(dest any) error {
	rv := reflect.ValueOf(dest)
	if dest == nil || rv.Kind() != reflect.Pointer || rv.IsNil() {
		return fmt.Errorf("dest must be a non-nil pointer to struct")
	}
	structVal := rv.Elem()
	if structVal.Kind() != reflect.Struct {
		return fmt.Errorf("dest must be a pointer to struct, got %s", structVal.Kind())
	}

	present := map[string]bool{}
	for _, src := range c.sources {
		m, err := src.ToMap()
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) || errors.Is(err, fs.ErrPermission) {
				continue
			}
			return fmt.Errorf("%s: %w", src.Name(), err)
		}
		if err := applyMap(structVal, m, "", present); err != nil {
			return fmt.Errorf("%s: %w", src.Name(), err)
		}
	}
	return validateRequired(structVal, "", present)
}

// fieldKey returns the config key of f: its cascade tag name, else its json tag name, else its name, lowercased. "-" means skip.
func fieldKey(f reflect.StructField) string {
	if tag := f.Tag.Get("cascade"); tag != "" {
		name, _, _ := strings.Cut(tag, ",")
		if name = strings.TrimSpace(name); name != "" {
			return strings.ToLower(name)
		}
	}
	if tag := f.Tag.Get("json"); tag != "" {
		name, _, _ := strings.Cut(tag, ",")
		if name = strings.TrimSpace(name); name != "" && name != "-" {
			return strings.ToLower(name)
		}
	}
	return strings.ToLower(f.Name)
}

func isRequired(f reflect.StructField) bool {
	_, opts, _ := strings.Cut(f.Tag.Get("cascade"), ",")
	for _, o := range strings.Split(opts, ",") {
		if strings.TrimSpace(o) == "required" {
			return true
		}
	}
	return false
}

// fieldsByKey indexes the settable fields of t by fieldKey. Two fields with the same key are an error.
func fieldsByKey(structVal reflect.Value) (map[string]int, error) {
	t := structVal.Type()
	index := map[string]int{}
	for i := 0; i < t.NumField(); i++ {
		f := t.Field(i)
		if !structVal.Field(i).CanSet() {
			continue
		}
		key := fieldKey(f)
		if key == "-" {
			continue
		}
		if prev, ok := index[key]; ok {
			return nil, fmt.Errorf("struct contains case-insensitive field key collision for %q: %s and %s", key, t.Field(prev).Name, f.Name)
		}
		index[key] = i
	}
	return index, nil
}

func applyMap(structVal reflect.Value, m map[string]any, base string, present map[string]bool) error {
	index, err := fieldsByKey(structVal)
	if err != nil {
		return err
	}
	for key, raw := range m {
		i, ok := index[key]
		if !ok {
			continue
		}
		path := joinKey(base, key)
		if err := setValue(structVal.Field(i), raw, path, present); err != nil {
			return err
		}
	}
	return nil
}

var durationType = reflect.TypeOf(time.Duration(0))

// setValue assigns raw to v, coercing as needed, and records path in present.
func setValue(v reflect.Value, raw any, path string, present map[string]bool) error {
	if v.Kind() == reflect.Pointer {
		if raw == nil {
			v.Set(reflect.Zero(v.Type()))
			present[path] = true
			return nil
		}
		if v.IsNil() {
			v.Set(reflect.New(v.Type().Elem()))
		}
		return setValue(v.Elem(), raw, path, present)
	}
	if raw == nil {
		v.Set(reflect.Zero(v.Type()))
		present[path] = true
		return nil
	}

	switch {
	case v.Type() == durationType:
		d, err := coerceDuration(raw, path)
		if err != nil {
			return err
		}
		v.SetInt(int64(d))

	case v.Kind() == reflect.Struct:
		obj, ok := raw.(map[string]any)
		if !ok {
			return fmt.Errorf("%s: expected object for struct field", path)
		}
		if err := applyMap(v, obj, path, present); err != nil {
			return err
		}

	case v.Kind() == reflect.Slice:
		items, err := listItems(raw, path)
		if err != nil {
			return err
		}
		slice := reflect.MakeSlice(v.Type(), len(items), len(items))
		for i, item := range items {
			if err := setValue(slice.Index(i), item, fmt.Sprintf("%s[%d]", path, i), present); err != nil {
				return err
			}
		}
		v.Set(slice)

	default:
		if err := setScalar(v, raw, path); err != nil {
			return err
		}
	}
	present[path] = true
	return nil
}

// listItems returns raw as a list. A string is split on commas, with blank items dropped.
func listItems(raw any, path string) ([]any, error) {
	switch vv := raw.(type) {
	case []any:
		return vv, nil
	case string:
		var out []any
		for _, part := range strings.Split(vv, ",") {
			if part = strings.TrimSpace(part); part != "" {
				out = append(out, part)
			}
		}
		return out, nil
	}
	return nil, fmt.Errorf("%s: cannot coerce %T to a list", path, raw)
}

func setScalar(v reflect.Value, raw any, path string) error {
	switch v.Kind() {
	case reflect.String:
		switch vv := raw.(type) {
		case string:
			v.SetString(vv)
		case int:
			v.SetString(strconv.Itoa(vv))
		case float64:
			v.SetString(strconv.FormatFloat(vv, 'f', -1, 64))
		case bool:
			v.SetString(strconv.FormatBool(vv))
		default:
			return fmt.Errorf("%s: cannot coerce %T to string", path, raw)
		}

	case reflect.Bool:
		switch vv := raw.(type) {
		case bool:
			v.SetBool(vv)
		case string:
			b, err := strconv.ParseBool(strings.TrimSpace(vv))
			if err != nil {
				return fmt.Errorf("%s: cannot parse bool from %q", path, vv)
			}
			v.SetBool(b)
		default:
			return fmt.Errorf("%s: cannot coerce %T to bool", path, raw)
		}

	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		var n int64
		switch vv := raw.(type) {
		case int:
			n = int64(vv)
		case float64:
			n = int64(vv)
		case string:
			parsed, err := strconv.ParseInt(strings.ReplaceAll(strings.TrimSpace(vv), "_", ""), 10, 64)
			if err != nil {
				return fmt.Errorf("%s: cannot parse int from %q", path, vv)
			}
			n = parsed
		default:
			return fmt.Errorf("%s: cannot coerce %T to int", path, raw)
		}
		if v.OverflowInt(n) {
			return fmt.Errorf("%s: %d overflows %s", path, n, v.Type())
		}
		v.SetInt(n)

	case reflect.Float32, reflect.Float64:
		switch vv := raw.(type) {
		case float64:
			v.SetFloat(vv)
		case int:
			v.SetFloat(float64(vv))
		case string:
			f, err := strconv.ParseFloat(strings.TrimSpace(vv), 64)
			if err != nil {
				return fmt.Errorf("%s: cannot parse float from %q", path, vv)
			}
			v.SetFloat(f)
		default:
			return fmt.Errorf("%s: cannot coerce %T to float", path, raw)
		}

	default:
		return fmt.Errorf("%s: unsupported field kind %s", path, v.Kind())
	}
	return nil
}

// coerceDuration accepts strings in time.ParseDuration syntax. Bare numbers are rejected because their unit would be a guess.
func coerceDuration(raw any, path string) (time.Duration, error) {
	s, ok := raw.(string)
	if !ok {
		return 0, fmt.Errorf("%s: durations must be strings like \"1s\", got %T", path, raw)
	}
	d, err := time.ParseDuration(strings.TrimSpace(s))
	if err != nil {
		return 0, fmt.Errorf("%s: cannot parse duration from %q", path, s)
	}
	return d, nil
}

// validateRequired returns an error naming the first field tagged cascade:",required" whose path is not in present.
func validateRequired(structVal reflect.Value, base string, present map[string]bool) error {
	t := structVal.Type()
	for i := 0; i < t.NumField(); i++ {
		f := t.Field(i)
		key := fieldKey(f)
		if key == "-" || !f.IsExported() {
			continue
		}
		path := joinKey(base, key)
		if isRequired(f) && !present[path] {
			return fmt.Errorf("missing required key: %s", path)
		}

		fv := structVal.Field(i)
		if fv.Kind() == reflect.Pointer && !fv.IsNil() {
			fv = fv.Elem()
		}
		switch {
		case fv.Kind() == reflect.Struct && fv.Type() != durationType:
			if err := validateRequired(fv, path, present); err != nil {
				return err
			}
		case fv.Kind() == reflect.Slice && fv.Type().Elem().Kind() == reflect.Struct:
			for j := 0; j < fv.Len(); j++ {
				if err := validateRequired(fv.Index(j), fmt.Sprintf("%s[%d]", path, j), present); err != nil {
					return err
				}
			}
		}
	}
	return nil
}
