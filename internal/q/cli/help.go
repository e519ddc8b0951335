package cli

import (
	"fmt"
	"io"
	"strings"
	"text/tabwriter"
)

func writeHelp(w io.Writer, cmd *Command) {
	if cmd.Long != "" {
		fmt.Fprintln(w, strings.TrimSpace(cmd.Long))
		fmt.Fprintln(w)
	} else if cmd.Short != "" {
		fmt.Fprintln(w, cmd.Short)
		fmt.Fprintln(w)
	}

	fmt.Fprintln(w, "Usage:")
	fmt.Fprintf(w, "  %s\n", usageLine(cmd))

	var visible []*Command
	for _, child := range cmd.children {
		if !child.Hidden {
			visible = append(visible, child)
		}
	}
	if len(visible) > 0 {
		fmt.Fprintln(w)
		fmt.Fprintln(w, "Commands:")
		tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
		for _, child := range visible {
			fmt.Fprintf(tw, "  %s\t%s\n", child.Name, child.Short)
		}
		tw.Flush()
	}

	flags := cmd.activeFlags().sorted()
	if len(flags) > 0 {
		fmt.Fprintln(w)
		fmt.Fprintln(w, "Flags:")
		tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
		for _, def := range flags {
			left := def.display()
			if t := def.value.typeName(); t != "" {
				left += " " + t
			}
			fmt.Fprintf(tw, "  %s\t%s\n", left, def.usage)
		}
		tw.Flush()
	}

	if cmd.Example != "" {
		fmt.Fprintln(w)
		fmt.Fprintln(w, "Examples:")
		for _, line := range strings.Split(strings.TrimRight(cmd.Example, "\n"), "\n") {
			fmt.Fprintf(w, "  %s\n", line)
		}
	}
}

func usageLine(cmd *Command) string {
	var names []string
	for _, c := range cmd.path() {
		names = append(names, c.Name)
	}
	line := strings.Join(names, " ")
	if len(cmd.children) > 0 {
		line += " <command>"
	}
	if len(cmd.activeFlags().byName) > 0 {
		line += " [flags]"
	}
	if cmd.ArgsUsage != "" {
		line += " " + cmd.ArgsUsage
	}
	return line
}
