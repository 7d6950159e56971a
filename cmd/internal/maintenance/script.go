package maintenance

import (
	"fmt"
	"io"
)

// RunScript runs one operator command: the summary goes to stdout on
// success, the error to stderr otherwise. The result is the exit code.
func RunScript(stdout, stderr io.Writer, name string, fn func() (string, error)) int {
	summary, err := fn()
	if err != nil {
		fmt.Fprintf(stderr, "%s: %v\n", name, err)
		return 1
	}
	fmt.Fprintln(stdout, summary)
	return 0
}

// NoArgs rejects any positional arguments.
func NoArgs(name string, args []string) error {
	if len(args) > 0 {
		return fmt.Errorf("usage: %s (takes no arguments, got %d)", name, len(args))
	}
	return nil
}
