package auth

import (
	"bufio"
	"fmt"
	"os"
	"strings"

	"golang.org/x/term"
)

// ReadAPIKey prompts for an API key. On a terminal the input is not
// echoed; otherwise a line is read from stdin so piped setups still
// work.
func ReadAPIKey(promptText string) (string, error) {
	fd := int(os.Stdin.Fd())

	fmt.Fprint(os.Stderr, promptText)
	if term.IsTerminal(fd) {
		raw, err := term.ReadPassword(fd)
		fmt.Fprintln(os.Stderr)
		if err != nil {
			return "", fmt.Errorf("failed to read API key: %w", err)
		}
		return strings.TrimSpace(string(raw)), nil
	}

	line, err := bufio.NewReader(os.Stdin).ReadString('\n')
	if err != nil && line == "" {
		return "", fmt.Errorf("failed to read API key: %w", err)
	}
	return strings.TrimSpace(line), nil
}
