package cli

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"golang.org/x/sync/errgroup"

	qcli "github.com/msglog/msglog/internal/q/cli"
	"github.com/msglog/msglog/internal/tokendiff"
	"github.com/msglog/msglog/internal/wireformat"
)

// maxBatchLine bounds one JSONL input line.
const maxBatchLine = 64 << 20

type batchItem struct {
	ID  string `json:"id"`
	Old string `json:"old"`
	New string `json:"new"`
}

type batchResult struct {
	ID       string           `json:"id"`
	Segments tokendiff.Result `json:"segments"`
	Stats    *tokendiff.Stats `json:"stats,omitempty"`
}

func newBatchCommand(runWithConfig withConfigFunc) *qcli.Command {
	cmd := &qcli.Command{
		Name:  "batch",
		Short: "Diff many text pairs from JSONL.",
		Long: `Read {"id","old","new"} objects, one per line, and write {"id","segments"} objects in the same order.

Pairs are diffed concurrently (--jobs, default: config batch.jobs).`,
		Example: `msglog batch --input pairs.jsonl > diffs.jsonl
msglog batch -j 4 -f msgpack < pairs.jsonl > diffs.msgpack`,
		Args: qcli.NoArgs,
	}
	input := cmd.Flags().String("input", 'i', "-", "JSONL input file (\"-\" for stdin).")
	jobs := cmd.Flags().Int("jobs", 'j', 0, "Concurrent diffs (default: config batch.jobs, or GOMAXPROCS).")
	format := formatFlag(cmd, wireformat.FormatJSONL)
	stats := cmd.Flags().Bool("stats", 's', false, "Include diff stats in each result.")
	engineOpts := addEngineFlags(cmd)

	cmd.Run = runWithConfig("batch", func(c *qcli.Context, env runEnv) error {
		f, err := parseFormatFlag(*format)
		if err != nil {
			return err
		}
		switch f {
		case wireformat.FormatJSONL, wireformat.FormatMsgPack:
		default:
			return qcli.Usagef("batch writes jsonl or msgpack, not %q", *format)
		}
		if *jobs < 0 {
			return qcli.Usagef("--jobs must not be negative")
		}
		engine, err := engineOpts.engine(env.cfg)
		if err != nil {
			return err
		}

		rc, err := openInput(c.In, *input)
		if err != nil {
			return err
		}
		defer rc.Close()
		items, err := readBatch(bufio.NewScanner(rc))
		if err != nil {
			return err
		}

		n := env.cfg.Jobs()
		if *jobs > 0 {
			n = *jobs
		}
		results, err := diffBatch(c.Context, engine, items, n, *stats)
		if err != nil {
			return err
		}
		env.logger.Debug("batch done", "items", len(items), "jobs", n)

		w := bufio.NewWriter(c.Out)
		for _, r := range results {
			if err := wireformat.Encode(w, f, r); err != nil {
				return err
			}
		}
		return w.Flush()
	})
	return cmd
}

func readBatch(sc *bufio.Scanner) ([]batchItem, error) {
	sc.Buffer(make([]byte, 0, 64*1024), maxBatchLine)
	var items []batchItem
	for line := 1; sc.Scan(); line++ {
		text := strings.TrimSpace(sc.Text())
		if text == "" {
			continue
		}
		var it batchItem
		if err := json.Unmarshal([]byte(text), &it); err != nil {
			return nil, fmt.Errorf("line %d: %w", line, err)
		}
		items = append(items, it)
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("read input: %w", err)
	}
	return items, nil
}

// diffBatch diffs items with up to jobs goroutines. results[i] belongs to items[i].
func diffBatch(ctx context.Context, engine *tokendiff.Engine, items []batchItem, jobs int, withStats bool) ([]batchResult, error) {
	results := make([]batchResult, len(items))
	if len(items) == 0 {
		return results, nil
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(min(jobs, len(items)))
	for i, it := range items {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			segments, st := engine.DiffWithStats(it.Old, it.New)
			results[i] = batchResult{ID: it.ID, Segments: segments}
			if withStats {
				results[i].Stats = &st
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return results, nil
}
