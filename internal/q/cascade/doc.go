// Package cascade loads layered configuration into Go structs.
//
// A Loader holds sources registered from lowest to highest priority: defaults, TOML or JSON files, and environment variables. StrictlyLoad applies them in order to a destination
// struct, so later sources overwrite earlier ones.
//
// Keys are case-insensitive and dot-separated for nesting ("diff.max_cells" sets Diff.MaxCells when the fields are tagged `cascade:"diff"` and `cascade:"max_cells"`). A field's
// key is its cascade tag name, else its json tag name, else its field name. Unknown keys are ignored.
//
// Values are coerced when reasonable: strings to numbers, bools, and time.Duration; numbers to strings; floats to ints (truncated toward zero). A string assigned to a slice field is
// split on commas, which lets a single environment variable carry a list. Fields tagged cascade:",required" must be set by some source.
//
// Missing files, unreadable files, and empty files contribute nothing. A file that exists but cannot be parsed, or a value that cannot be coerced, fails the load; later sources do
// not get a chance to fix it.
//
//	var cfg Config
//	err := cascade.New().
//	    WithDefaults(map[string]any{"server.addr": "localhost:8177"}).
//	    WithNearestFile("msglog.toml", "").
//	    WithEnv(map[string]string{"server.addr": "MSGLOG_ADDR"}).
//	    StrictlyLoad(&cfg)
package cascade
