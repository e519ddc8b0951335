package cli

import (
	"fmt"
	"sort"
	"strconv"
	"time"
)

// flagValue is the typed storage behind a flag.
type flagValue interface {
	set(raw string) error
	typeName() string // "" for bool flags, which take no value
}

type boolValue struct{ p *bool }
type stringValue struct{ p *string }
type intValue struct{ p *int }
type durationValue struct{ p *time.Duration }

func (v boolValue) set(raw string) error {
	b, err := strconv.ParseBool(raw)
	if err == nil {
		*v.p = b
	}
	return err
}

func (v stringValue) set(raw string) error { *v.p = raw; return nil }

func (v intValue) set(raw string) error {
	n, err := strconv.Atoi(raw)
	if err == nil {
		*v.p = n
	}
	return err
}

func (v durationValue) set(raw string) error {
	d, err := time.ParseDuration(raw)
	if err == nil {
		*v.p = d
	}
	return err
}

func (boolValue) typeName() string     { return "" }
func (stringValue) typeName() string   { return "string" }
func (intValue) typeName() string      { return "int" }
func (durationValue) typeName() string { return "duration" }

type flagDef struct {
	name      string
	shorthand rune
	usage     string
	value     flagValue
	changed   bool
}

// FlagSet is the set of typed flags registered on a command.
type FlagSet struct {
	byName  map[string]*flagDef
	byShort map[rune]*flagDef
}

func newFlagSet() *FlagSet {
	return &FlagSet{byName: map[string]*flagDef{}, byShort: map[rune]*flagDef{}}
}

// Bool registers --name (and -shorthand, if non-zero).
func (fs *FlagSet) Bool(name string, shorthand rune, def bool, usage string) *bool {
	p := &def
	fs.add(name, shorthand, usage, boolValue{p})
	return p
}

func (fs *FlagSet) String(name string, shorthand rune, def string, usage string) *string {
	p := &def
	fs.add(name, shorthand, usage, stringValue{p})
	return p
}

func (fs *FlagSet) Int(name string, shorthand rune, def int, usage string) *int {
	p := &def
	fs.add(name, shorthand, usage, intValue{p})
	return p
}

func (fs *FlagSet) Duration(name string, shorthand rune, def time.Duration, usage string) *time.Duration {
	p := &def
	fs.add(name, shorthand, usage, durationValue{p})
	return p
}

// Changed reports whether the flag was given on the command line.
func (fs *FlagSet) Changed(name string) bool {
	def := fs.byName[name]
	return def != nil && def.changed
}

func (fs *FlagSet) add(name string, shorthand rune, usage string, v flagValue) {
	if name == "" {
		panic("cli: flag name must be non-empty")
	}
	if _, ok := fs.byName[name]; ok {
		panic("cli: duplicate flag: --" + name)
	}
	def := &flagDef{name: name, shorthand: shorthand, usage: usage, value: v}
	fs.byName[name] = def
	if shorthand != 0 {
		if _, ok := fs.byShort[shorthand]; ok {
			panic(fmt.Sprintf("cli: duplicate shorthand flag: -%c", shorthand))
		}
		fs.byShort[shorthand] = def
	}
}

// activeFlags returns every flag usable on c: persistent flags along the path from the root, plus c's local flags.
func (c *Command) activeFlags() *FlagSet {
	active := newFlagSet()
	merge := func(fs *FlagSet) {
		if fs == nil {
			return
		}
		for _, def := range fs.byName {
			if existing, ok := active.byName[def.name]; ok && existing != def {
				panic("cli: flag name conflict across command path: --" + def.name)
			}
			active.byName[def.name] = def
			if def.shorthand != 0 {
				if existing, ok := active.byShort[def.shorthand]; ok && existing != def {
					panic(fmt.Sprintf("cli: shorthand conflict across command path: -%c", def.shorthand))
				}
				active.byShort[def.shorthand] = def
			}
		}
	}
	for _, cmd := range c.path() {
		merge(cmd.persistentFlags)
	}
	merge(c.localFlags)
	return active
}

// sorted returns the flags ordered by name.
func (fs *FlagSet) sorted() []*flagDef {
	out := make([]*flagDef, 0, len(fs.byName))
	for _, def := range fs.byName {
		out = append(out, def)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].name < out[j].name })
	return out
}

func (def *flagDef) display() string {
	if def.shorthand != 0 {
		return fmt.Sprintf("-%c/--%s", def.shorthand, def.name)
	}
	return "--" + def.name
}
