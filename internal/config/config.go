// Package config loads msglog's settings: built-in defaults, then the user config file, then the nearest msglog.toml (or an explicit --config file), then MSGLOG_* environment
// variables.
package config

import (
	"fmt"
	"os"
	"runtime"
	"time"

	"github.com/msglog/msglog/internal/msglog"
	"github.com/msglog/msglog/internal/q/cascade"
	"github.com/msglog/msglog/internal/q/health"
	"github.com/msglog/msglog/internal/tokendiff"
)

// FileName is the project config file searched for upward from the working directory.
const FileName = "msglog.toml"

// UserFile is the per-user config file, relative to cascade.InUserConfigDirectory.
const UserFile = ".msglog/msglog.toml"

type Config struct {
	Diff   DiffConfig   `cascade:"diff" json:"diff"`
	Log    LogConfig    `cascade:"log" json:"log"`
	Server ServerConfig `cascade:"server" json:"server"`
	Batch  BatchConfig  `cascade:"batch" json:"batch"`

	// Files lists the config files that were found, lowest priority first.
	Files []string `cascade:"-" json:"files"`
}

type DiffConfig struct {
	MaxCells        int           `cascade:"max_cells" json:"max_cells"` // 0 means no ceiling
	Granularity     string        `cascade:"granularity" json:"granularity"`
	FallbackTimeout time.Duration `cascade:"fallback_timeout" json:"fallback_timeout"` // negative means no deadline
}

// LogConfig mirrors msglog.Rules.
type LogConfig struct {
	Edits          bool     `cascade:"edits" json:"edits"`
	Deletes        bool     `cascade:"deletes" json:"deletes"`
	IgnoreBots     bool     `cascade:"ignore_bots" json:"ignore_bots"`
	IgnoreSelf     bool     `cascade:"ignore_self" json:"ignore_self"`
	SelfID         string   `cascade:"self_id" json:"self_id"`
	IgnoreUsers    []string `cascade:"ignore_users" json:"ignore_users"`
	IgnoreChannels []string `cascade:"ignore_channels" json:"ignore_channels"`
	IgnoreGuilds   []string `cascade:"ignore_guilds" json:"ignore_guilds"`
	ShowEditDiffs  bool     `cascade:"show_edit_diffs" json:"show_edit_diffs"`
	InlineEdits    bool     `cascade:"inline_edits" json:"inline_edits"`
}

type ServerConfig struct {
	Addr            string        `cascade:"addr" json:"addr"`
	ReadTimeout     time.Duration `cascade:"read_timeout" json:"read_timeout"`
	MaxMessageBytes int64         `cascade:"max_message_bytes" json:"max_message_bytes"` // request bodies and websocket frames
}

type BatchConfig struct {
	Jobs int `cascade:"jobs" json:"jobs"` // 0 means GOMAXPROCS
}

func defaults() map[string]any {
	return map[string]any{
		"diff.max_cells":           4_000_000,
		"diff.granularity":         string(tokendiff.GranularityCodepoint),
		"diff.fallback_timeout":    "1s",
		"log.edits":                true,
		"log.deletes":              true,
		"log.inline_edits":         true,
		"server.addr":              "localhost:8177",
		"server.read_timeout":      "10s",
		"server.max_message_bytes": 1 << 20,
		"batch.jobs":               0,
	}
}

// envVars maps config keys to environment variables.
var envVars = map[string]string{
	"diff.max_cells":           "MSGLOG_MAX_CELLS",
	"diff.granularity":         "MSGLOG_GRANULARITY",
	"diff.fallback_timeout":    "MSGLOG_FALLBACK_TIMEOUT",
	"log.edits":                "MSGLOG_LOG_EDITS",
	"log.deletes":              "MSGLOG_LOG_DELETES",
	"log.ignore_bots":          "MSGLOG_IGNORE_BOTS",
	"log.ignore_self":          "MSGLOG_IGNORE_SELF",
	"log.self_id":              "MSGLOG_SELF_ID",
	"log.ignore_users":         "MSGLOG_IGNORE_USERS",
	"log.ignore_channels":      "MSGLOG_IGNORE_CHANNELS",
	"log.ignore_guilds":        "MSGLOG_IGNORE_GUILDS",
	"log.show_edit_diffs":      "MSGLOG_SHOW_EDIT_DIFFS",
	"log.inline_edits":         "MSGLOG_INLINE_EDITS",
	"server.addr":              "MSGLOG_ADDR",
	"server.read_timeout":      "MSGLOG_READ_TIMEOUT",
	"server.max_message_bytes": "MSGLOG_MAX_MESSAGE_BYTES",
	"batch.jobs":               "MSGLOG_JOBS",
}

// EnvVars returns a copy of the config key to environment variable mapping.
func EnvVars() map[string]string {
	out := make(map[string]string, len(envVars))
	for k, v := range envVars {
		out[k] = v
	}
	return out
}

// LoadOptions control where Load looks for files.
type LoadOptions struct {
	// ConfigPath, if set, replaces the search for msglog.toml. It must exist. A ".json" extension selects JSON.
	ConfigPath string

	// Dir is where the upward search for msglog.toml starts. "" means the working directory.
	Dir string

	// SkipUserFile skips the per-user config file.
	SkipUserFile bool
}

// Load reads and validates the configuration.
func Load(opts LoadOptions) (Config, error) {
	var cfg Config
	loader := cascade.New().WithDefaults(defaults())

	if !opts.SkipUserFile {
		if p := cascade.InUserConfigDirectory(UserFile); fileExists(p) {
			loader.WithTOMLFile(p)
			cfg.Files = append(cfg.Files, p)
		}
	}

	if opts.ConfigPath != "" {
		p := cascade.ExpandPath(opts.ConfigPath)
		if _, err := os.Stat(p); err != nil {
			return Config{}, health.WrapHuman(fmt.Sprintf("config file %s: %v", opts.ConfigPath, err), "config_file_missing", err, "path", p)
		}
		loader.WithFile(p)
		cfg.Files = append(cfg.Files, p)
	} else if p := cascade.FindNearest(FileName, opts.Dir); p != "" {
		loader.WithFile(p)
		cfg.Files = append(cfg.Files, p)
	}

	loader.WithEnv(envVars)
	if err := loader.StrictlyLoad(&cfg); err != nil {
		return Config{}, health.WrapHuman("invalid configuration: "+err.Error(), "config_load", err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func fileExists(p string) bool {
	fi, err := os.Stat(p)
	return err == nil && !fi.IsDir()
}

// Validate reports the first setting that is out of range.
func (c Config) Validate() error {
	invalid := func(key string, value any, why string) error {
		return health.NewHumanErr(fmt.Sprintf("invalid configuration: %s = %v: %s", key, value, why), "config_invalid", "key", key, "value", value)
	}
	if c.Diff.MaxCells < 0 {
		return invalid("diff.max_cells", c.Diff.MaxCells, "must be 0 (no ceiling) or positive")
	}
	if _, err := tokendiff.ParseGranularity(c.Diff.Granularity); err != nil {
		return invalid("diff.granularity", c.Diff.Granularity, err.Error())
	}
	if c.Server.Addr == "" {
		return invalid("server.addr", `""`, "must not be empty")
	}
	if c.Server.ReadTimeout < 0 {
		return invalid("server.read_timeout", c.Server.ReadTimeout, "must not be negative")
	}
	if c.Server.MaxMessageBytes <= 0 {
		return invalid("server.max_message_bytes", c.Server.MaxMessageBytes, "must be positive")
	}
	if c.Batch.Jobs < 0 {
		return invalid("batch.jobs", c.Batch.Jobs, "must be 0 (GOMAXPROCS) or positive")
	}
	return nil
}

// Engine returns a diff engine built from the diff settings. c must be valid.
func (c Config) Engine() *tokendiff.Engine {
	g, _ := tokendiff.ParseGranularity(c.Diff.Granularity)
	return tokendiff.New(tokendiff.Options{
		Granularity:     g,
		MaxCells:        c.Diff.MaxCells,
		FallbackTimeout: c.Diff.FallbackTimeout,
	})
}

// Rules returns the message log rules.
func (c Config) Rules() msglog.Rules {
	l := c.Log
	return msglog.Rules{
		LogEdits:       l.Edits,
		LogDeletes:     l.Deletes,
		IgnoreBots:     l.IgnoreBots,
		IgnoreSelf:     l.IgnoreSelf,
		SelfID:         l.SelfID,
		IgnoreUsers:    l.IgnoreUsers,
		IgnoreChannels: l.IgnoreChannels,
		IgnoreGuilds:   l.IgnoreGuilds,
		ShowEditDiffs:  l.ShowEditDiffs,
		InlineEdits:    l.InlineEdits,
	}
}

// Jobs returns the batch concurrency: Batch.Jobs, or GOMAXPROCS when it is 0.
func (c Config) Jobs() int {
	if c.Batch.Jobs > 0 {
		return c.Batch.Jobs
	}
	return runtime.GOMAXPROCS(0)
}
