package cli

import (
	"bytes"
	"context"
	"errors"
	"io"
	"os"
	"strings"

	qcli "github.com/msglog/msglog/internal/q/cli"
)

// Version is the msglog version. It is a var so builds can override it with -ldflags "-X .../internal/cli.Version=1.2.3".
var Version = "0.3.0"

// In/Out/Err override standard I/O. If nil, defaults are used.
type RunOptions struct {
	In  io.Reader
	Out io.Writer
	Err io.Writer

	// Context, if set, is the parent of every command's context. serve stops when it is canceled.
	Context context.Context
}

// Run runs the CLI with args (typically os.Args).
//
// It returns an exit code and an error:
//   - 0 -> err == nil
//   - 1 -> err != nil, but args were well-formed.
//   - 2 -> err != nil, args could not be parsed or a command was misused.
//
// Run has already printed the error to opts.Err (or stderr) when it returns one.
func Run(args []string, opts *RunOptions) (int, error) {
	argv := args
	if len(argv) > 0 {
		argv = argv[1:]
	}

	ctx := context.Background()
	var in io.Reader = os.Stdin
	var out io.Writer = os.Stdout
	var errW io.Writer = os.Stderr
	if opts != nil {
		if opts.Context != nil {
			ctx = opts.Context
		}
		if opts.In != nil {
			in = opts.In
		}
		if opts.Out != nil {
			out = opts.Out
		}
		if opts.Err != nil {
			errW = opts.Err
		}
	}

	// q/cli returns only an exit code, so stderr is teed to produce the error.
	var stderrBuf bytes.Buffer
	code := qcli.Run(ctx, newRootCommand(), qcli.Options{
		Args: argv,
		In:   in,
		Out:  out,
		Err:  io.MultiWriter(errW, &stderrBuf),
	})
	if code == 0 {
		return 0, nil
	}

	msg := strings.TrimSpace(stderrBuf.String())
	if msg == "" {
		msg = "command failed"
	}
	return code, errors.New(msg)
}
