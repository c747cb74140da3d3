package cmd

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"strings"
)

// DialogHost is the narrow confirmation contract rule outcomes that carry a
// user-facing Message route through (RequiresUserConfirm). An embedding UI
// supplies its own implementation; the CLI's default prompts on stdin.
type DialogHost interface {
	Confirm(ctx context.Context, message string) bool
}

// stdinDialogHost prompts on stdin/stdout, defaulting to "no" on EOF or an
// unrecognized answer.
type stdinDialogHost struct{}

func newStdinDialogHost() stdinDialogHost { return stdinDialogHost{} }

func (stdinDialogHost) Confirm(ctx context.Context, message string) bool {
	fmt.Printf("%s [y/N]: ", message)
	reader := bufio.NewReader(os.Stdin)
	line, err := reader.ReadString('\n')
	if err != nil {
		return false
	}
	switch strings.ToLower(strings.TrimSpace(line)) {
	case "y", "yes":
		return true
	default:
		return false
	}
}
