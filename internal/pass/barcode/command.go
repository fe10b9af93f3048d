package barcode

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"strings"
	"time"
)

// Command shells out to an external decoder such as zbarimg. The image is
// written to a temp file whose path is appended to Args.
type Command struct {
	Args    []string
	Timeout time.Duration
}

// DefaultZbarArgs prints bare payloads, one per line.
var DefaultZbarArgs = []string{"zbarimg", "--quiet", "--raw"}

// NewCommand reports false when the executable is not on PATH.
func NewCommand(args []string, timeout time.Duration) (*Command, bool) {
	if len(args) == 0 {
		return nil, false
	}
	if _, err := exec.LookPath(args[0]); err != nil {
		return nil, false
	}
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &Command{Args: args, Timeout: timeout}, true
}

func (c *Command) Name() string {
	return "command:" + c.Args[0]
}

func (c *Command) Decode(ctx context.Context, raw []byte) (string, error) {
	f, err := os.CreateTemp("", "barcode-*.img")
	if err != nil {
		return "", fmt.Errorf("create temp image: %w", err)
	}
	defer os.Remove(f.Name())
	if _, err := f.Write(raw); err != nil {
		f.Close()
		return "", fmt.Errorf("write temp image: %w", err)
	}
	if err := f.Close(); err != nil {
		return "", fmt.Errorf("close temp image: %w", err)
	}

	ctx, cancel := context.WithTimeout(ctx, c.Timeout)
	defer cancel()

	args := append(append([]string{}, c.Args[1:]...), f.Name())
	cmd := exec.CommandContext(ctx, c.Args[0], args...)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		// zbarimg exits 4 when the image held no symbols
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) && exitErr.ExitCode() == 4 {
			return "", ErrNoBarcode
		}
		return "", fmt.Errorf("%s: %w: %s", c.Args[0], err, strings.TrimSpace(stderr.String()))
	}
	return firstLine(stdout.Bytes()), nil
}

func firstLine(out []byte) string {
	sc := bufio.NewScanner(bytes.NewReader(out))
	for sc.Scan() {
		if line := strings.TrimSpace(sc.Text()); line != "" {
			return line
		}
	}
	return ""
}
