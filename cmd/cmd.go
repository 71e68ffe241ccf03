// Package cmd wires up the CLI flags and dispatches to the reqid core.
package cmd

import (
	"fmt"
	"io"
	"regexp"
	"strings"

	flag "github.com/spf13/pflag"

	"reqid/util"
)

// version is overridable at link time:
//
//	go build -ldflags "-X reqid/cmd.version=2.0.0"
var version = "1.0.0" //nolint:gochecknoglobals

// common holds the flags both programs accept.
type common struct {
	verbose     int
	dryRun      bool
	showVersion bool
	showHelp    bool
}

func (c *common) register(fs *flag.FlagSet) {
	fs.CountVarP(&c.verbose, "verbose", "v", "Increase verbosity (repeatable)")
	fs.BoolVar(&c.dryRun, "dry-run", false, "Validate arguments and exit")
	fs.BoolVar(&c.showVersion, "version", false, "Print version and exit")
	fs.BoolVarP(&c.showHelp, "help", "h", false, "Show this help")
}

// newLogger returns the process logger.  Level 1 (errors, warnings
// and the startup line) is the floor; each -v adds one.
func newLogger(verbose int, w io.Writer) *util.Logger {
	logger := util.NewLogger(1 + verbose)
	logger.SetOutput(w)
	return logger
}

func printVersion(w io.Writer, name string) {
	fmt.Fprintf(w, "%s %s\n", name, version)
}

// negativeNumber matches positionals such as the "-1" in "reqidd 9000 -1".
var negativeNumber = regexp.MustCompile(`^-[0-9]+$`)

// reorderArgs moves positional arguments behind a "--" terminator so
// that a negative number reaches the positional parser and its floor
// rule instead of being read as a cluster of shorthand flags.  A value
// following a flag that takes one stays with its flag.
func reorderArgs(fs *flag.FlagSet, args []string) []string {
	var flags, positionals []string
	for i := 0; i < len(args); i++ {
		arg := args[i]
		switch {
		case arg == "--":
			positionals = append(positionals, args[i+1:]...)
			i = len(args)
		case arg == "-" || !strings.HasPrefix(arg, "-") || negativeNumber.MatchString(arg):
			positionals = append(positionals, arg)
		default:
			flags = append(flags, arg)
			if takesValue(fs, arg) && i+1 < len(args) {
				i++
				flags = append(flags, args[i])
			}
		}
	}
	return append(append(flags, "--"), positionals...)
}

// takesValue reports whether arg names a flag whose value is the next
// argument: "--name" or a shorthand cluster ending in such a flag.
func takesValue(fs *flag.FlagSet, arg string) bool {
	if strings.Contains(arg, "=") {
		return false
	}
	var f *flag.Flag
	if name, ok := strings.CutPrefix(arg, "--"); ok {
		f = fs.Lookup(name)
	} else {
		f = fs.ShorthandLookup(arg[len(arg)-1:])
	}
	return f != nil && f.NoOptDefVal == ""
}
