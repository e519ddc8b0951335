package cli

import (
	"bytes"
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/msglog/msglog/internal/config"
	"github.com/msglog/msglog/internal/msglog"
	"github.com/msglog/msglog/internal/tokendiff"
)

// isolate points config discovery at empty temp directories and clears MSGLOG_* variables.
func isolate(t *testing.T) string {
	t.Helper()
	home := t.TempDir()
	if runtime.GOOS == "windows" {
		t.Setenv("USERPROFILE", home)
	} else {
		t.Setenv("HOME", home)
	}
	for _, env := range config.EnvVars() {
		t.Setenv(env, "")
	}
	dir := t.TempDir()
	t.Chdir(dir)
	return dir
}

func run(t *testing.T, stdin string, args ...string) (code int, stdout, stderr string, err error) {
	t.Helper()
	var out, errOut bytes.Buffer
	code, err = Run(append([]string{"msglog"}, args...), &RunOptions{In: strings.NewReader(stdin), Out: &out, Err: &errOut})
	return code, out.String(), errOut.String(), err
}

func writeFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	p := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(p, []byte(content), 0o644))
	return p
}

func TestRun_HelpAndVersion(t *testing.T) {
	isolate(t)

	code, stdout, stderr, err := run(t, "", "-h")
	require.NoError(t, err)
	assert.Equal(t, 0, code)
	assert.Empty(t, stderr)
	for _, name := range []string{"diff", "batch", "replay", "serve", "config", "version"} {
		assert.Contains(t, stdout, name)
	}

	code, stdout, _, err = run(t, "", "version")
	require.NoError(t, err)
	assert.Equal(t, 0, code)
	assert.Equal(t, Version+"\n", stdout)
}

func TestDiff_Text(t *testing.T) {
	isolate(t)
	code, stdout, stderr, err := run(t, "", "diff", "-f", "text", "cat", "cot")
	require.NoError(t, err, stderr)
	assert.Equal(t, 0, code)
	assert.Equal(t, "= \"c\"\n- \"a\"\n+ \"o\"\n= \"t\"\n", stdout)
}

func TestDiff_JSONKeepsTagsWhole(t *testing.T) {
	isolate(t)
	code, stdout, _, err := run(t, "", "diff", "-f", "json", "--stats", "hi <@12>", "hi <@13>")
	require.NoError(t, err)
	assert.Equal(t, 0, code)

	var got diffOutput
	require.NoError(t, json.Unmarshal([]byte(stdout), &got))
	assert.Equal(t, tokendiff.Result{
		{Op: tokendiff.OpUnchanged, Text: "hi "},
		{Op: tokendiff.OpRemoved, Text: "<@12>"},
		{Op: tokendiff.OpAdded, Text: "<@13>"},
	}, got.Segments)
	assert.Equal(t, tokendiff.StrategyLCS, got.Stats.Strategy)
	assert.Equal(t, 3, got.Stats.Segments)
}

func TestDiff_Inline(t *testing.T) {
	isolate(t)
	code, stdout, _, err := run(t, "", "diff", "--inline", "see you at 5", "see you at 6")
	require.NoError(t, err)
	assert.Equal(t, 0, code)
	assert.Equal(t, "see you at [-5-]{+6+}\n", stdout)

	code, _, _, _ = run(t, "", "diff", "--inline", "--stats", "a", "b")
	assert.Equal(t, 2, code)
}

func TestDiff_NonTerminalDefaultsToJSON(t *testing.T) {
	isolate(t)
	_, stdout, _, err := run(t, "", "diff", "a", "ab")
	require.NoError(t, err)

	var got tokendiff.Result
	require.NoError(t, json.Unmarshal([]byte(stdout), &got))
	assert.Equal(t, tokendiff.Result{{Op: tokendiff.OpUnchanged, Text: "a"}, {Op: tokendiff.OpAdded, Text: "b"}}, got)
}

func TestDiff_Files(t *testing.T) {
	dir := isolate(t)
	oldPath := writeFile(t, dir, "old.txt", "hello")

	code, stdout, stderr, err := run(t, "hello world", "diff", "-f", "text", "--old-file", oldPath, "--new-file", "-")
	require.NoError(t, err, stderr)
	assert.Equal(t, 0, code)
	assert.Equal(t, "= \"hello\"\n+ \" world\"\n", stdout)

	code, _, _, err = run(t, "", "diff", "--old-file", filepath.Join(dir, "missing.txt"), "--new-file", oldPath)
	assert.Error(t, err)
	assert.Equal(t, 1, code)
}

func TestDiff_Fallback(t *testing.T) {
	isolate(t)
	code, stdout, _, err := run(t, "", "diff", "-f", "json", "--stats", "--max-cells", "4", "the quick fox", "the slow fox")
	require.NoError(t, err)
	assert.Equal(t, 0, code)

	var got diffOutput
	require.NoError(t, json.Unmarshal([]byte(stdout), &got))
	assert.Equal(t, tokendiff.StrategyFallback, got.Stats.Strategy)
	assert.NoError(t, got.Segments.Verify("the quick fox", "the slow fox"))
}

func TestDiff_UsageErrors(t *testing.T) {
	isolate(t)
	tests := []struct {
		name string
		args []string
		want string
	}{
		{"one arg", []string{"diff", "a"}, "give either <old> <new>"},
		{"args and files", []string{"diff", "--old-file", "x", "a", "b"}, "give either <old> <new>"},
		{"stdin twice", []string{"diff", "--old-file", "-", "--new-file", "-"}, "only one of"},
		{"bad format", []string{"diff", "-f", "yaml", "a", "b"}, "unknown format"},
		{"bad granularity", []string{"diff", "-g", "word", "a", "b"}, "--granularity"},
		{"negative max cells", []string{"diff", "--max-cells", "-1", "a", "b"}, "--max-cells"},
		{"too many args", []string{"diff", "a", "b", "c"}, "expected 0 to 2 args"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			code, stdout, stderr, err := run(t, "", tt.args...)
			assert.Error(t, err)
			assert.Equal(t, 2, code)
			assert.Empty(t, stdout)
			assert.Contains(t, stderr, tt.want)
		})
	}
}

func TestBatch_PreservesOrder(t *testing.T) {
	isolate(t)
	var in strings.Builder
	pairs := [][3]string{
		{"a", "cat", "cot"},
		{"b", "same", "same"},
		{"c", "<:wave:1> hi", "<:wave:2> hi"},
		{"d", "", "new"},
	}
	for _, p := range pairs {
		line, err := json.Marshal(batchItem{ID: p[0], Old: p[1], New: p[2]})
		require.NoError(t, err)
		in.Write(line)
		in.WriteString("\n\n")
	}

	code, stdout, stderr, err := run(t, in.String(), "batch", "-j", "3")
	require.NoError(t, err, stderr)
	assert.Equal(t, 0, code)

	lines := strings.Split(strings.TrimSpace(stdout), "\n")
	require.Len(t, lines, len(pairs))
	for i, line := range lines {
		var r batchResult
		require.NoError(t, json.Unmarshal([]byte(line), &r))
		assert.Equal(t, pairs[i][0], r.ID)
		assert.Nil(t, r.Stats)
		assert.NoError(t, r.Segments.Verify(pairs[i][1], pairs[i][2]), "pair %s", r.ID)
	}
}

func TestBatch_InputFileAndStats(t *testing.T) {
	dir := isolate(t)
	p := writeFile(t, dir, "pairs.jsonl", `{"id":"x","old":"ab","new":"abc"}`+"\n")

	_, stdout, _, err := run(t, "", "batch", "--input", p, "--stats")
	require.NoError(t, err)
	var r batchResult
	require.NoError(t, json.Unmarshal([]byte(stdout), &r))
	require.NotNil(t, r.Stats)
	assert.Equal(t, tokendiff.StrategyAppend, r.Stats.Strategy)
}

func TestBatch_Errors(t *testing.T) {
	isolate(t)

	code, _, stderr, err := run(t, "{\"id\":\"a\",\"old\":\"\",\"new\":\"\"}\nnot json\n", "batch")
	assert.Error(t, err)
	assert.Equal(t, 1, code)
	assert.Contains(t, stderr, "line 2")

	code, _, _, _ = run(t, "", "batch", "-f", "text")
	assert.Equal(t, 2, code)
}

const events = `{"type":"CHANNEL_CREATE","channel":{"id":"c1","guild_id":"g1"}}
{"type":"MESSAGE_CREATE","message":{"id":"m1","channel_id":"c1","author":{"id":"u1"},"content":"see you at 5","timestamp":"2024-05-01T12:00:00Z"}}
{"type":"MESSAGE_CREATE","message":{"id":"m2","channel_id":"c1","author":{"id":"u2"},"content":"bye","timestamp":"2024-05-01T12:01:00Z"}}
{"type":"MESSAGE_UPDATE","message":{"id":"m1","channel_id":"c1","author":{"id":"u1"},"content":"see you at 6","timestamp":"2024-05-01T12:00:00Z","edited_timestamp":"2024-05-01T12:02:00Z"}}
{"type":"TYPING_START"}
{"type":"MESSAGE_DELETE","channelId":"c1","id":"m2"}
`

func TestReplay_JSON(t *testing.T) {
	dir := isolate(t)
	p := writeFile(t, dir, "events.jsonl", events)

	code, stdout, stderr, err := run(t, "", "replay", "-f", "json", p)
	require.NoError(t, err, stderr)
	assert.Equal(t, 0, code)
	assert.Contains(t, stderr, "line 5")
	assert.Contains(t, stderr, "skipped 1 event(s)")

	var logged []msglog.LoggedMessage
	require.NoError(t, json.Unmarshal([]byte(stdout), &logged))
	require.Len(t, logged, 2)
	assert.Equal(t, "m1", logged[0].ID)
	require.Len(t, logged[0].Edits, 1)
	assert.Equal(t, "see you at 5", logged[0].Edits[0].Content)
	assert.Equal(t, "m2", logged[1].ID)
	assert.True(t, logged[1].Deleted)
}

func TestReplay_TextWithDiffs(t *testing.T) {
	isolate(t)
	t.Setenv("MSGLOG_SHOW_EDIT_DIFFS", "true")

	code, stdout, stderr, err := run(t, events, "replay", "-f", "text", "-")
	require.NoError(t, err, stderr)
	assert.Equal(t, 0, code)
	assert.Equal(t, `#c1 m1 by u1 (edited)
  2024-05-01T12:02:00Z  see you at [-5-]{+6+}
  now  see you at 6
#c1 m2 by u2 (deleted)
  now  bye
`, stdout)
}

func TestReplay_Notices(t *testing.T) {
	isolate(t)
	code, stdout, _, err := run(t, events, "replay", "--notices", "-f", "jsonl", "-")
	require.NoError(t, err)
	assert.Equal(t, 0, code)

	lines := strings.Split(strings.TrimSpace(stdout), "\n")
	require.Len(t, lines, 1)
	var n msglog.EditNotice
	require.NoError(t, json.Unmarshal([]byte(lines[0]), &n))
	assert.Equal(t, "m1", n.MessageID)
	assert.Equal(t, "see you at 6", n.Content)
}

func TestReplay_Strict(t *testing.T) {
	isolate(t)
	code, stdout, stderr, err := run(t, events, "replay", "--strict", "-")
	assert.Error(t, err)
	assert.Equal(t, 1, code)
	assert.Empty(t, stdout)
	assert.Contains(t, stderr, "line 5")
}

func TestConfig_PrintsEffectiveSettings(t *testing.T) {
	dir := isolate(t)
	writeFile(t, dir, config.FileName, "[diff]\nmax_cells = 7\n")
	t.Setenv("MSGLOG_JOBS", "3")

	code, stdout, _, err := run(t, "", "config")
	require.NoError(t, err)
	assert.Equal(t, 0, code)

	var cfg config.Config
	require.NoError(t, json.Unmarshal([]byte(stdout), &cfg))
	assert.Equal(t, 7, cfg.Diff.MaxCells)
	assert.Equal(t, 3, cfg.Batch.Jobs)
	require.Len(t, cfg.Files, 1)
	assert.Equal(t, config.FileName, filepath.Base(cfg.Files[0]))
}

func TestConfig_ExplicitFileAndErrors(t *testing.T) {
	dir := isolate(t)
	p := writeFile(t, dir, "other.toml", "[batch]\njobs = 2\n")

	_, stdout, _, err := run(t, "", "--config", p, "config")
	require.NoError(t, err)
	assert.Contains(t, stdout, `"jobs": 2`)

	code, _, stderr, err := run(t, "", "diff", "-c", filepath.Join(dir, "nope.toml"), "a", "b")
	assert.Error(t, err)
	assert.Equal(t, 1, code)
	assert.Contains(t, stderr, "nope.toml")

	bad := writeFile(t, dir, "bad.toml", "[diff]\ngranularity = \"word\"\n")
	code, _, stderr, _ = run(t, "", "--config", bad, "config")
	assert.Equal(t, 1, code)
	assert.Contains(t, stderr, "diff.granularity")
}

func TestServe_StopsWhenContextIsCanceled(t *testing.T) {
	isolate(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	var out, errOut bytes.Buffer
	code, err := Run([]string{"msglog", "serve", "--addr", "127.0.0.1:0"}, &RunOptions{Context: ctx, Out: &out, Err: &errOut})
	require.NoError(t, err, errOut.String())
	assert.Equal(t, 0, code)
	assert.Contains(t, errOut.String(), "serving")
}

func TestServe_ListenError(t *testing.T) {
	isolate(t)
	code, _, stderr, err := run(t, "", "serve", "--addr", "not-an-address")
	assert.Error(t, err)
	assert.Equal(t, 1, code)
	assert.Contains(t, stderr, "cannot listen on not-an-address")
}
