package cli

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"golang.org/x/term"
)

// readPassword reads without echo. Tests replace it.
var readPassword = term.ReadPassword

// GetSimpleText shows prompt and reads one trimmed line. A final line without
// a newline is accepted.
func GetSimpleText(reader *bufio.Reader, prompt string, w io.Writer) (string, error) {
	if _, err := fmt.Fprint(w, prompt+"\n> "); err != nil {
		return "", err
	}
	line, err := reader.ReadString('\n')
	if err != nil && !(errors.Is(err, io.EOF) && line != "") {
		return "", err
	}
	return strings.TrimSpace(line), nil
}

// GetPassword shows prompt and reads a secret from the terminal. The caller
// owns the returned slice and must wipe it.
func GetPassword(w io.Writer, prompt string) ([]byte, error) {
	if _, err := fmt.Fprint(w, prompt+": "); err != nil {
		return nil, err
	}
	pw, err := readPassword(int(os.Stdin.Fd()))
	fmt.Fprintln(w)
	if err != nil {
		return nil, err
	}
	return pw, nil
}

// GetMultiline reads note text up to the first empty line.
func GetMultiline(reader *bufio.Reader, prompt string, w io.Writer) (string, error) {
	lines, err := readBlock(reader, prompt+"\n(press Enter on an empty line to finish)\n", w)
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(strings.Join(lines, "\n")), nil
}

// GetLines reads one value per line up to the first empty line, for example
// the URIs of a login.
func GetLines(reader *bufio.Reader, prompt string, w io.Writer) ([]string, error) {
	return readBlock(reader, prompt+"\n(one per line, empty line to finish)\n", w)
}

func readBlock(reader *bufio.Reader, header string, w io.Writer) ([]string, error) {
	if _, err := fmt.Fprint(w, header); err != nil {
		return nil, err
	}

	lines := make([]string, 0)
	for {
		line, err := reader.ReadString('\n')
		line = strings.TrimRight(line, "\r\n")
		if line == "" {
			return lines, nil
		}
		lines = append(lines, line)
		if err != nil {
			return lines, nil
		}
	}
}
