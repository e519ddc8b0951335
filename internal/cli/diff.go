package cli

import (
	"fmt"
	"io"
	"os"

	"github.com/msglog/msglog/internal/config"
	qcli "github.com/msglog/msglog/internal/q/cli"
	"github.com/msglog/msglog/internal/tokendiff"
	"github.com/msglog/msglog/internal/wireformat"
)

// diffOutput is what diff --stats prints.
type diffOutput struct {
	Segments tokendiff.Result `json:"segments"`
	Stats    tokendiff.Stats  `json:"stats"`
}

// engineFlags are the diff tuning flags shared by diff and batch.
type engineFlags struct {
	cmd         *qcli.Command
	maxCells    *int
	granularity *string
}

func addEngineFlags(cmd *qcli.Command) engineFlags {
	return engineFlags{
		cmd:         cmd,
		maxCells:    cmd.Flags().Int("max-cells", 0, 0, "LCS table ceiling; larger inputs use the coarse fallback (0: no ceiling; default: config diff.max_cells)."),
		granularity: cmd.Flags().String("granularity", 'g', "", "Simple-token granularity: codepoint or grapheme (default: config diff.granularity)."),
	}
}

// engine applies any engine flags given on the command line over the configured diff settings.
func (f engineFlags) engine(cfg config.Config) (*tokendiff.Engine, error) {
	if f.cmd.Flags().Changed("max-cells") {
		if *f.maxCells < 0 {
			return nil, qcli.Usagef("--max-cells must not be negative")
		}
		cfg.Diff.MaxCells = *f.maxCells
	}
	if f.cmd.Flags().Changed("granularity") {
		if _, err := tokendiff.ParseGranularity(*f.granularity); err != nil {
			return nil, qcli.Usagef("--granularity: %v", err)
		}
		cfg.Diff.Granularity = *f.granularity
	}
	return cfg.Engine(), nil
}

func newDiffCommand(runWithConfig withConfigFunc) *qcli.Command {
	cmd := &qcli.Command{
		Name:      "diff",
		Short:     "Diff two message texts.",
		ArgsUsage: "[<old> <new>]",
		Long: `Diff two message texts and print the segments that turn old into new.

Texts are given as two args, or with --old-file and --new-file ("-" reads stdin).`,
		Example: `msglog diff 'hi <@12>' 'hi <@123>'
msglog diff --old-file before.txt --new-file after.txt -f json --stats`,
		Args: qcli.RangeArgs(0, 2),
	}
	oldFile := cmd.Flags().String("old-file", 0, "", "Read the old text from this file.")
	newFile := cmd.Flags().String("new-file", 0, "", "Read the new text from this file.")
	format := formatFlag(cmd, wireformat.FormatAuto)
	stats := cmd.Flags().Bool("stats", 's', false, "Also print how the diff was computed.")
	inline := cmd.Flags().Bool("inline", 0, false, "Print one line with removed text in [-...-] and added text in {+...+} (colored on a terminal).")
	engineOpts := addEngineFlags(cmd)

	cmd.Run = runWithConfig("diff", func(c *qcli.Context, env runEnv) error {
		f, err := parseFormatFlag(*format)
		if err != nil {
			return err
		}
		engine, err := engineOpts.engine(env.cfg)
		if err != nil {
			return err
		}

		var oldText, newText string
		switch {
		case len(c.Args) == 2 && *oldFile == "" && *newFile == "":
			oldText, newText = c.Args[0], c.Args[1]
		case len(c.Args) == 0 && *oldFile != "" && *newFile != "":
			if *oldFile == "-" && *newFile == "-" {
				return qcli.Usagef("only one of --old-file and --new-file can read stdin")
			}
			if oldText, err = readInput(c.In, *oldFile); err != nil {
				return err
			}
			if newText, err = readInput(c.In, *newFile); err != nil {
				return err
			}
		default:
			return qcli.Usagef("give either <old> <new> or both --old-file and --new-file")
		}

		segments, st := engine.DiffWithStats(oldText, newText)
		env.logger.Debug("diffed", "strategy", st.Strategy, "old_tokens", st.OldTokens, "new_tokens", st.NewTokens, "segments", st.Segments)

		if *inline {
			if *stats || *format != "" {
				return qcli.Usagef("--inline cannot be combined with --stats or --format")
			}
			return writeStringln(c.Out, wireformat.Inline(segments, wireformat.ColorEnabled(c.Out)))
		}

		f = wireformat.Resolve(f, c.Out)
		if !*stats {
			return wireformat.Encode(c.Out, f, segments)
		}
		if f == wireformat.FormatText {
			if err := wireformat.Encode(c.Out, f, segments); err != nil {
				return err
			}
			return wireformat.Encode(c.Out, f, st)
		}
		return wireformat.Encode(c.Out, f, diffOutput{Segments: segments, Stats: st})
	})
	return cmd
}

// readInput reads all of path, or of in when path is "-".
func readInput(in io.Reader, path string) (string, error) {
	if path == "-" {
		b, err := io.ReadAll(in)
		if err != nil {
			return "", fmt.Errorf("read stdin: %w", err)
		}
		return string(b), nil
	}
	b, err := os.ReadFile(path)
	if err != nil {
		return "", err
	}
	return string(b), nil
}

// openInput opens path, or returns in when path is "-" or "".
func openInput(in io.Reader, path string) (io.ReadCloser, error) {
	if path == "" || path == "-" {
		return io.NopCloser(in), nil
	}
	return os.Open(path)
}
