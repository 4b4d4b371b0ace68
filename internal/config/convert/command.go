package convert

import (
	"strings"

	"github.com/kballard/go-shellquote"
)

// Exit code prefixes of a command.
const (
	ignoreExitToken = "-"
	invertExitToken = "!"
)

// Command is a shell argument vector with exit-status handling flags.
type Command struct {
	Args []string

	// IgnoreExitCode treats any exit status as success ("-" prefix).
	IgnoreExitCode bool

	// InvertExitCode treats zero as failure and non-zero as success ("!" prefix).
	InvertExitCode bool
}

// NewCommand builds a Command from args, consuming leading "-" and "!"
// tokens as exit code flags.
func NewCommand(args []string) Command {
	cmd := Command{}
	for len(args) > 0 {
		switch args[0] {
		case ignoreExitToken:
			cmd.IgnoreExitCode = true
		case invertExitToken:
			cmd.InvertExitCode = true
		default:
			cmd.Args = append([]string(nil), args...)
			return cmd
		}
		args = args[1:]
	}
	return cmd
}

// ParseCommand splits a command line with POSIX shell quoting rules.
func ParseCommand(line string) (Command, error) {
	args, err := shellquote.Split(strings.TrimSpace(line))
	if err != nil {
		return Command{}, err
	}
	return NewCommand(args), nil
}

// Shell renders the arguments as a quoted shell line, without flags.
func (c Command) Shell() string {
	return shellquote.Join(c.Args...)
}

// String renders the command including its exit code flags.
func (c Command) String() string {
	var prefix []string
	if c.IgnoreExitCode {
		prefix = append(prefix, ignoreExitToken)
	}
	if c.InvertExitCode {
		prefix = append(prefix, invertExitToken)
	}
	line := c.Shell()
	if len(prefix) == 0 {
		return line
	}
	return strings.Join(prefix, " ") + " " + line
}
