package cli

import (
	"bufio"
	"bytes"
	"errors"
	"io"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func rdr(s string) *bufio.Reader {
	return bufio.NewReader(strings.NewReader(s))
}

func TestGetSimpleText(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  string
		err   error
	}{
		{"trimmed line", "  alice@example.com \n", "alice@example.com", nil},
		{"last line without newline", "vault", "vault", nil},
		{"crlf", "id-1\r\n", "id-1", nil},
		{"empty input", "", "", io.EOF},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var out bytes.Buffer
			got, err := GetSimpleText(rdr(tt.input), "Enter email", &out)
			if tt.err != nil {
				assert.ErrorIs(t, err, tt.err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
			assert.Equal(t, "Enter email\n> ", out.String())
		})
	}
}

func TestGetPassword(t *testing.T) {
	old := readPassword
	t.Cleanup(func() { readPassword = old })

	readPassword = func(int) ([]byte, error) { return []byte("hunter2"), nil }
	var out bytes.Buffer
	pw, err := GetPassword(&out, "Master password")
	require.NoError(t, err)
	assert.Equal(t, []byte("hunter2"), pw)
	assert.Equal(t, "Master password: \n", out.String())

	readPassword = func(int) ([]byte, error) { return nil, errors.New("not a terminal") }
	_, err = GetPassword(&out, "Master password")
	assert.Error(t, err)
}

func TestGetMultiline(t *testing.T) {
	var out bytes.Buffer
	got, err := GetMultiline(rdr("wifi: guest\npin: 1234\n\nignored\n"), "Enter note text", &out)
	require.NoError(t, err)
	assert.Equal(t, "wifi: guest\npin: 1234", got)
	assert.Contains(t, out.String(), "empty line to finish")
}

func TestGetLines(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  []string
	}{
		{"stops on blank line", "https://a\nhttps://b\n\n", []string{"https://a", "https://b"}},
		{"crlf", "https://a\r\nhttps://b\r\n\r\n", []string{"https://a", "https://b"}},
		{"blank first", "\n", []string{}},
		{"eof without blank line", "https://a\nhttps://b", []string{"https://a", "https://b"}},
		{"spaces kept", " https://c \n\n", []string{" https://c "}},
		{"empty input", "", []string{}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var out bytes.Buffer
			got, err := GetLines(rdr(tt.input), "Enter URIs", &out)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}
