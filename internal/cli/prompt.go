package cli

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"golang.org/x/term"
)

// readPIN prompts for a PIN. On a terminal echo is disabled; otherwise a
// line is read from the command's input.
func readPIN(cmd *cobra.Command, prompt string) (string, error) {
	errOut := cmd.ErrOrStderr()
	if in, ok := cmd.InOrStdin().(*os.File); ok && term.IsTerminal(int(in.Fd())) {
		fmt.Fprint(errOut, prompt)
		b, err := term.ReadPassword(int(in.Fd()))
		fmt.Fprintln(errOut)
		if err != nil {
			return "", fmt.Errorf("read PIN: %w", err)
		}
		return strings.TrimSpace(string(b)), nil
	}

	fmt.Fprint(errOut, prompt)
	return readLine(cmd)
}

// confirm asks a yes/no question; anything but y or yes is no.
func confirm(cmd *cobra.Command, question string) (bool, error) {
	fmt.Fprintf(cmd.ErrOrStderr(), "%s [y/N]: ", question)
	answer, err := readLine(cmd)
	if err != nil {
		return false, err
	}
	switch strings.ToLower(answer) {
	case "y", "yes":
		return true, nil
	}
	return false, nil
}

// input buffers the command's input across prompts in one invocation.
var input struct {
	src io.Reader
	r   *bufio.Reader
}

func readLine(cmd *cobra.Command) (string, error) {
	if src := cmd.InOrStdin(); input.src != src {
		input.src, input.r = src, bufio.NewReader(src)
	}
	line, err := input.r.ReadString('\n')
	if err != nil && line == "" {
		return "", fmt.Errorf("read input: %w", err)
	}
	return strings.TrimSpace(line), nil
}
