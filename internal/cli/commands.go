package cli

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"runtime/debug"
	"sync"

	"github.com/msglog/msglog/internal/config"
	qcli "github.com/msglog/msglog/internal/q/cli"
	"github.com/msglog/msglog/internal/q/health"
	"github.com/msglog/msglog/internal/simplelogger"
	"github.com/msglog/msglog/internal/wireformat"
)

type configState struct {
	once sync.Once
	path *string // --config
	cfg  config.Config
	err  error
}

func (s *configState) get() (config.Config, error) {
	s.once.Do(func() {
		s.cfg, s.err = config.Load(config.LoadOptions{ConfigPath: *s.path})
	})
	return s.cfg, s.err
}

// runEnv is what runWithConfig hands to a command.
type runEnv struct {
	cfg    config.Config
	logger *slog.Logger // the MSGLOG_LOG_FILE log
}

func newRootCommand() *qcli.Command {
	root := &qcli.Command{
		Name:  "msglog",
		Short: "msglog diffs chat message edits and keeps an edit and delete log.",
		Long: `msglog diffs chat message edits and keeps an edit and delete log.

Diffs are token based: Discord-style mentions, channels, emoji, and timestamps (<@123>, <#9>, <:name:1>, <t:1700000000:R>) are never split, and
everything else is compared one codepoint (or grapheme, with --granularity grapheme) at a time.`,
	}
	cfgState := &configState{
		path: root.PersistentFlags().String("config", 'c', "", "Config file to use instead of the nearest msglog.toml."),
	}

	runWithConfig := func(event string, next func(c *qcli.Context, env runEnv) error) qcli.RunFunc {
		return func(c *qcli.Context) error {
			cfg, err := cfgState.get()
			if err != nil {
				return qcli.ExitError{Code: 1, Err: errors.New(health.HumanMessage(err))}
			}
			env := runEnv{cfg: cfg, logger: simplelogger.Slog(slog.LevelDebug).With("command", event)}
			return withPanicRecovery(env.logger, event, func() error {
				return next(c, env)
			})
		}
	}

	versionCmd := &qcli.Command{
		Name:  "version",
		Short: "Print the msglog version.",
		Args:  qcli.NoArgs,
		Run: func(c *qcli.Context) error {
			return writeStringln(c.Out, Version)
		},
	}

	configCmd := &qcli.Command{
		Name:  "config",
		Short: "Print the effective configuration and the files it came from.",
		Args:  qcli.NoArgs,
		Run: runWithConfig("config", func(c *qcli.Context, env runEnv) error {
			return writeConfigJSON(c.Out, env.cfg)
		}),
	}

	root.AddCommand(
		newDiffCommand(runWithConfig),
		newBatchCommand(runWithConfig),
		newReplayCommand(runWithConfig),
		newServeCommand(runWithConfig),
		configCmd,
		versionCmd,
	)
	return root
}

// withConfigFunc wraps a command body with config loading and panic recovery.
type withConfigFunc func(event string, next func(c *qcli.Context, env runEnv) error) qcli.RunFunc

func withPanicRecovery(logger *slog.Logger, event string, f func() error) (err error) {
	defer func() {
		if r := recover(); r != nil {
			logger.Error("panic", "event", event, "panic", fmt.Sprint(r), "stack", string(debug.Stack()))
			err = fmt.Errorf("panic: %v", r)
		}
	}()
	return f()
}

// formatFlag registers --format/-f on cmd.
func formatFlag(cmd *qcli.Command, def wireformat.Format) *string {
	return cmd.Flags().String("format", 'f', string(def), "Output format: json, jsonl, msgpack, or text. Default: text on a terminal, json otherwise.")
}

func parseFormatFlag(s string) (wireformat.Format, error) {
	f, err := wireformat.ParseFormat(s)
	if err != nil {
		return "", qcli.Usagef("%v", err)
	}
	return f, nil
}

func writeConfigJSON(w io.Writer, cfg config.Config) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	enc.SetEscapeHTML(false)
	return enc.Encode(cfg)
}

func writeStringln(w io.Writer, s string) error {
	_, err := io.WriteString(w, s+"\n")
	return err
}
