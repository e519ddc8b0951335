package cli

import (
	"bufio"
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/msglog/msglog/internal/msglog"
	qcli "github.com/msglog/msglog/internal/q/cli"
	"github.com/msglog/msglog/internal/q/health"
	"github.com/msglog/msglog/internal/wireformat"
)

func newReplayCommand(runWithConfig withConfigFunc) *qcli.Command {
	cmd := &qcli.Command{
		Name:      "replay",
		Short:     "Replay gateway events and print the resulting edit and delete log.",
		ArgsUsage: "<events.jsonl>",
		Long: `Apply gateway events, one JSON object per line ("-" reads stdin), to an empty message log, then print every deleted or edited message with
its edit history.

Events that cannot be applied are reported on stderr and skipped unless --strict is given.`,
		Example: `msglog replay events.jsonl
msglog replay --notices -f jsonl - < events.jsonl`,
		Args: qcli.ExactArgs(1),
	}
	format := formatFlag(cmd, wireformat.FormatAuto)
	strict := cmd.Flags().Bool("strict", 0, false, "Fail on the first event that cannot be applied.")
	notices := cmd.Flags().Bool("notices", 'n', false, "Print each recorded edit as it happens instead of the final log.")
	noColor := cmd.Flags().Bool("no-color", 0, false, "Never color text output.")

	cmd.Run = runWithConfig("replay", func(c *qcli.Context, env runEnv) error {
		f, err := parseFormatFlag(*format)
		if err != nil {
			return err
		}
		f = wireformat.Resolve(f, c.Out)
		color := wireformat.ColorEnabled(c.Out) && !*noColor

		rc, err := openInput(c.In, c.Args[0])
		if err != nil {
			return err
		}
		defer rc.Close()

		store := msglog.NewStore(env.cfg.Rules(), env.cfg.Engine(), env.logger)
		w := bufio.NewWriter(c.Out)
		defer w.Flush()

		var onNotice func(*msglog.EditNotice) error
		if *notices {
			onNotice = func(n *msglog.EditNotice) error {
				if f == wireformat.FormatText {
					return writeNoticeText(w, n, color)
				}
				return wireformat.Encode(w, f, n)
			}
		}
		skipped, err := replayEvents(rc, store, *strict, onNotice, c.Err)
		if err != nil {
			return err
		}
		if skipped > 0 {
			fmt.Fprintf(c.Err, "skipped %d event(s)\n", skipped)
		}
		if *notices {
			return w.Flush()
		}

		var logged []msglog.LoggedMessage
		for _, ch := range store.Channels() {
			logged = append(logged, store.Logged(ch)...)
		}
		switch f {
		case wireformat.FormatText:
			for _, m := range logged {
				if err := writeLoggedText(w, m, color); err != nil {
					return err
				}
			}
		case wireformat.FormatJSONL:
			for _, m := range logged {
				if err := wireformat.Encode(w, f, m); err != nil {
					return err
				}
			}
		default:
			if logged == nil {
				logged = []msglog.LoggedMessage{}
			}
			if err := wireformat.Encode(w, f, logged); err != nil {
				return err
			}
		}
		return w.Flush()
	})
	return cmd
}

// replayEvents applies each JSONL event in r to store. Malformed lines and Apply errors are reported to errW and counted, or returned when strict is set.
func replayEvents(r io.Reader, store *msglog.Store, strict bool, onNotice func(*msglog.EditNotice) error, errW io.Writer) (skipped int, err error) {
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 0, 64*1024), maxBatchLine)
	for line := 1; sc.Scan(); line++ {
		text := strings.TrimSpace(sc.Text())
		if text == "" {
			continue
		}

		var ev msglog.Event
		err := json.Unmarshal([]byte(text), &ev)
		var notice *msglog.EditNotice
		if err == nil {
			notice, err = store.Apply(ev)
		}
		if err != nil {
			if strict {
				return skipped, fmt.Errorf("line %d: %s", line, health.HumanMessage(err))
			}
			fmt.Fprintf(errW, "line %d: %v\n", line, err)
			skipped++
			continue
		}
		if notice != nil && onNotice != nil {
			if err := onNotice(notice); err != nil {
				return skipped, err
			}
		}
	}
	if err := sc.Err(); err != nil {
		return skipped, fmt.Errorf("read events: %w", err)
	}
	return skipped, nil
}

func writeLoggedText(w io.Writer, m msglog.LoggedMessage, color bool) error {
	status := "edited"
	if m.Deleted {
		status = "deleted"
	}
	if _, err := fmt.Fprintf(w, "#%s %s by %s (%s)\n", m.ChannelID, m.ID, m.Author.ID, status); err != nil {
		return err
	}
	for _, e := range m.Edits {
		text := e.Content
		if e.Segments != nil {
			text = wireformat.Inline(e.Segments, color)
		}
		if _, err := fmt.Fprintf(w, "  %s  %s\n", e.Timestamp.UTC().Format(time.RFC3339), text); err != nil {
			return err
		}
	}
	_, err := fmt.Fprintf(w, "  now  %s\n", m.Content)
	return err
}

func writeNoticeText(w io.Writer, n *msglog.EditNotice, color bool) error {
	_, err := fmt.Fprintf(w, "#%s %s %s  %s\n", n.ChannelID, n.MessageID, n.Edit.Timestamp.UTC().Format(time.RFC3339), wireformat.Inline(n.Segments, color))
	return err
}
