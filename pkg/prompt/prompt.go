// Package prompt is the escape hatch for UI states the scraper cannot
// diagnose on its own: manual login, a missing first photo, a suspicious
// duplicate run. The walker blocks on an operator acknowledgment instead of
// failing; automated tests plug in the auto-continue implementation.
package prompt

import (
	"bufio"
	"fmt"
	"io"
	"os"
)

// Prompter asks the operator to intervene and waits for acknowledgment
type Prompter interface {
	// Acknowledge prints the message and blocks until the operator confirms.
	// It returns an error only when input is no longer available (for
	// example the terminal was closed), which callers treat as a request to
	// unwind cleanly.
	Acknowledge(message string) error
}

// Console prompts on stdout and waits for a newline on stdin
type Console struct {
	In  io.Reader
	Out io.Writer
}

// NewConsole returns a Prompter bound to the process terminal
func NewConsole() *Console {
	return &Console{In: os.Stdin, Out: os.Stdout}
}

// Acknowledge blocks until the operator presses Enter
func (c *Console) Acknowledge(message string) error {
	fmt.Fprintf(c.Out, "%s\nPress Enter to continue...\n", message)
	reader := bufio.NewReader(c.In)
	if _, err := reader.ReadString('\n'); err != nil {
		return fmt.Errorf("operator input unavailable: %w", err)
	}
	return nil
}

// AutoContinue acknowledges immediately; used in tests and headless runs
type AutoContinue struct {
	// Messages records what would have been shown to the operator
	Messages []string
}

// Acknowledge records the message and returns immediately
func (a *AutoContinue) Acknowledge(message string) error {
	a.Messages = append(a.Messages, message)
	return nil
}
