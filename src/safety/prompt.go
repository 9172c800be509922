package safety

import (
	"bufio"
	"fmt"
	"io"
	"strings"
)

// Options are the global flags that gate state-changing commands.
type Options struct {
	DryRun bool
	Yes    bool
}

// Confirm asks before a state-changing action.
// Yes confirms without prompting; DryRun declines without error.
func Confirm(opts Options, in io.Reader, out io.Writer, question string) (bool, error) {
	if opts.DryRun {
		return false, nil
	}
	if opts.Yes {
		return true, nil
	}
	if in == nil {
		return false, fmt.Errorf("confirmation required; re-run with --yes")
	}
	if out != nil {
		fmt.Fprintf(out, "%s [y/N]: ", strings.TrimSpace(question))
	}
	line, err := bufio.NewReader(in).ReadString('\n')
	if err != nil && err != io.EOF {
		return false, err
	}
	ans := strings.ToLower(strings.TrimSpace(line))
	return ans == "y" || ans == "yes", nil
}
