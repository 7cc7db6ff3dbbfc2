package console

import (
	"bufio"
	"errors"
	"io"
	"os"
	"strings"

	"golang.org/x/term"
)

// SecretReader reads a single line of input without echoing it back.
type SecretReader func() ([]byte, error)

// TerminalSecretReader returns a SecretReader for f, or nil when f is not
// attached to a terminal.
func TerminalSecretReader(f *os.File) SecretReader {
	fd := int(f.Fd())
	if !term.IsTerminal(fd) {
		return nil
	}

	return func() ([]byte, error) {
		return term.ReadPassword(fd)
	}
}

type lineReader struct {
	r *bufio.Reader
}

func newLineReader(r io.Reader) *lineReader {
	return &lineReader{r: bufio.NewReader(r)}
}

// ReadLine returns the next line with surrounding whitespace removed. A final
// line without a trailing newline is returned before io.EOF.
func (lr *lineReader) ReadLine() (string, error) {
	line, err := lr.r.ReadString('\n')
	if err != nil {
		if errors.Is(err, io.EOF) && line != "" {
			return strings.TrimSpace(line), nil
		}
		return "", err
	}

	return strings.TrimSpace(line), nil
}
