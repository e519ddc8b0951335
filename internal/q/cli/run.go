package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
)

type Options struct {
	// Args is argv without the program name (typically os.Args[1:]).
	Args []string

	// In/Out/Err override standard I/O. Nil means the os default.
	In  io.Reader
	Out io.Writer
	Err io.Writer
}

// Context is passed to a command handler. Flag values are read through the pointers returned when the flags were registered.
type Context struct {
	context.Context

	Command *Command
	Args    []string

	In  io.Reader
	Out io.Writer
	Err io.Writer
}

// Run executes a command tree as a CLI program and returns the process exit code.
func Run(ctx context.Context, root *Command, opts Options) int {
	if root == nil || root.Name == "" {
		panic("cli: Run needs a named root command")
	}
	c := &Context{
		Context: ctx,
		In:      opts.In,
		Out:     opts.Out,
		Err:     opts.Err,
	}
	if c.In == nil {
		c.In = os.Stdin
	}
	if c.Out == nil {
		c.Out = os.Stdout
	}
	if c.Err == nil {
		c.Err = os.Stderr
	}

	selected, args, help, err := parseArgv(root, opts.Args)
	c.Command = selected
	c.Args = args
	switch {
	case help:
		writeHelp(c.Out, selected)
		return 0
	case err != nil:
		return exitCode(c, err, true)
	case selected.Run == nil && len(args) == 0:
		return exitCode(c, Usagef("missing required subcommand"), true)
	case selected.Run == nil:
		return exitCode(c, Usagef("unknown subcommand: %s", args[0]), true)
	}

	if selected.Args != nil {
		if err := selected.Args(args); err != nil {
			return exitCode(c, err, true)
		}
	}
	if err := selected.Run(c); err != nil {
		return exitCode(c, err, false)
	}
	return 0
}

// exitCode reports err on c.Err and maps it to an exit code. Errors without an ExitCoder are usage errors if usage is true and failures otherwise.
func exitCode(c *Context, err error, usage bool) int {
	code := 1
	if usage {
		code = 2
	}
	var ec ExitCoder
	if errors.As(err, &ec) {
		code = ec.ExitCode()
	}

	switch code {
	case 0:
	case 2:
		if msg := err.Error(); msg != "" {
			fmt.Fprintln(c.Err, msg)
			fmt.Fprintln(c.Err)
		}
		writeHelp(c.Err, c.Command)
	default:
		if msg := err.Error(); msg != "" {
			fmt.Fprintln(c.Err, msg)
		}
	}
	return code
}

// parseArgv selects the command named by leading tokens, sets flags, and returns the remaining positional args. Flags may appear anywhere before "--".
func parseArgv(root *Command, argv []string) (selected *Command, positional []string, help bool, err error) {
	selected = root
	selecting := true
	for i := 0; i < len(argv); i++ {
		token := argv[i]
		switch {
		case token == "--":
			return selected, append(positional, argv[i+1:]...), false, nil
		case token == "-h" || token == "--help":
			return selected, nil, true, nil
		case strings.HasPrefix(token, "-") && token != "-":
			consumed, err := setFlag(selected.activeFlags(), token, argv[i+1:])
			if err != nil {
				return selected, nil, false, err
			}
			i += consumed
			continue
		}

		if selecting {
			if child := selected.child(token); child != nil {
				selected = child
				continue
			}
			selecting = false
		}
		positional = append(positional, token)
	}
	return selected, positional, false, nil
}

// setFlag applies one flag token and returns how many following tokens it consumed as its value. Accepted forms: --name, --name=v, --name v, -x, -x=v, -x v,
// and single-dash long names (-name).
func setFlag(active *FlagSet, token string, rest []string) (int, error) {
	body := strings.TrimLeft(token, "-")
	if strings.HasPrefix(token, "--") {
		body = token[2:]
	}
	name, value, hasValue := strings.Cut(body, "=")

	var def *flagDef
	if !strings.HasPrefix(token, "--") && len([]rune(name)) == 1 {
		def = active.byShort[[]rune(name)[0]]
	}
	if def == nil {
		def = active.byName[name]
	}
	if def == nil {
		return 0, Usagef("unknown flag: %s", token)
	}

	consumed := 0
	if !hasValue {
		if def.value.typeName() == "" {
			value = "true"
		} else {
			if len(rest) == 0 || rest[0] == "--" {
				return 0, Usagef("flag needs a value: %s", def.display())
			}
			value = rest[0]
			consumed = 1
		}
	}
	if err := def.value.set(value); err != nil {
		return 0, Usagef("invalid value %q for flag %s", value, def.display())
	}
	def.changed = true
	return consumed, nil
}
