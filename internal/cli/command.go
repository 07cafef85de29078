package cli

import (
	"context"
	"errors"
	"fmt"
	"strings"

	flag "github.com/spf13/pflag"
)

// Help listing sections, in display order.
const (
	groupSort   = "Sorting"
	groupFiles  = "Record files"
	groupConfig = "Configuration"
)

var groupOrder = []string{groupSort, groupFiles, groupConfig}

// Command is one extsort subcommand.
type Command struct {
	// Flags holds the command's own flags. Global flags are parsed before
	// the command is selected.
	Flags *flag.FlagSet

	// Usage follows "extsort" in help output, starting with the command
	// name, e.g. "sort <file> [flags]".
	Usage string

	// Args names the positional arguments, e.g. {"backup", "file"}. Run
	// rejects any other argument count before Exec is called.
	Args []string

	// Group is the help section the command is listed under.
	Group string

	// Short is shown in the command listing; Long in "extsort <cmd> --help"
	// (Short when Long is empty).
	Short string
	Long  string

	// Exec runs the command with exactly len(Args) positional arguments.
	Exec func(ctx context.Context, o *IO, args []string) error
}

// Name returns the first word of Usage.
func (c *Command) Name() string {
	name, _, _ := strings.Cut(c.Usage, " ")

	return name
}

// HelpLine formats the command for the listing with Usage padded to width.
func (c *Command) HelpLine(width int) string {
	return fmt.Sprintf("  %-*s  %s", width, c.Usage, c.Short)
}

// PrintHelp prints "extsort <cmd> --help" output.
func (c *Command) PrintHelp(o *IO) {
	o.Println("Usage: extsort", c.Usage)
	o.Println()

	desc := c.Long
	if desc == "" {
		desc = c.Short
	}

	o.Println(desc)

	if c.Flags == nil || !c.Flags.HasFlags() {
		return
	}

	var buf strings.Builder

	c.Flags.SetOutput(&buf)
	c.Flags.PrintDefaults()

	o.Println()
	o.Println("Flags:")
	o.Printf("%s", buf.String())
}

// checkArgs matches the positional arguments against Args.
func (c *Command) checkArgs(args []string) error {
	want := len(c.Args)

	switch {
	case len(args) < want:
		names := make([]string, want)
		for i, name := range c.Args {
			names[i] = "<" + name + ">"
		}

		return fmt.Errorf("%w: want %s, got %d arguments", ErrFileRequired, strings.Join(names, " "), len(args))
	case len(args) > want:
		return fmt.Errorf("%w: %v", ErrTooManyArgs, args[want:])
	}

	return nil
}

// Run parses flags, checks arguments and executes the command. It returns
// the exit code; errors and warnings are printed here so their order on
// stderr is fixed.
func (c *Command) Run(ctx context.Context, o *IO, args []string) int {
	c.Flags.SetOutput(&strings.Builder{})

	if err := c.Flags.Parse(args); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			c.PrintHelp(o)

			return 0
		}

		o.ErrPrintln("error:", err)
		o.ErrPrintln()
		c.PrintHelp(o)

		return 1
	}

	positional := c.Flags.Args()

	if err := c.checkArgs(positional); err != nil {
		o.ErrPrintln("error:", err)

		return 1
	}

	if err := c.Exec(ctx, o, positional); err != nil {
		o.ErrPrintln("error:", err)

		return 1
	}

	return o.Finish()
}

// printCommands lists commands under their group headings.
func printCommands(o func(...any), commands []*Command) {
	width := 0
	for _, cmd := range commands {
		width = max(width, len(cmd.Usage))
	}

	for _, group := range groupOrder {
		printed := false

		for _, cmd := range commands {
			if cmd.Group != group {
				continue
			}

			if !printed {
				o()
				o(group + ":")

				printed = true
			}

			o(cmd.HelpLine(width))
		}
	}
}
