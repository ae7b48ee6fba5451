package cli

import (
	"bufio"
	"bytes"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func rdr(s string) *bufio.Reader {
	return bufio.NewReader(strings.NewReader(s))
}

func stubTerminal(t *testing.T, terminal bool, pw string, err error) {
	t.Helper()
	oldRead, oldTerm := readPassword, isTerminal
	t.Cleanup(func() { readPassword, isTerminal = oldRead, oldTerm })
	isTerminal = func(int) bool { return terminal }
	readPassword = func(int) ([]byte, error) { return []byte(pw), err }
}

func TestGetSimpleText(t *testing.T) {
	var out bytes.Buffer
	got, err := GetSimpleText(rdr("hello world\n"), "Name?", &out)
	require.NoError(t, err)
	assert.Equal(t, "hello world", got)
	assert.Equal(t, "Name?\n> ", out.String())
}

func TestGetSimpleTextEOF(t *testing.T) {
	var out bytes.Buffer
	got, err := GetSimpleText(rdr("lastline"), "Name?", &out)
	require.NoError(t, err)
	assert.Equal(t, "lastline", got)

	_, err = GetSimpleText(rdr(""), "Name?", &out)
	assert.Error(t, err)
}

func TestGetToken(t *testing.T) {
	t.Run("reads without echo", func(t *testing.T) {
		stubTerminal(t, true, " tok-1 \n", nil)
		var out bytes.Buffer
		got, err := GetToken(&out)
		require.NoError(t, err)
		assert.Equal(t, "tok-1", got)
		assert.Equal(t, "Admin token: \n", out.String())
	})

	t.Run("not a terminal", func(t *testing.T) {
		stubTerminal(t, false, "", nil)
		_, err := GetToken(&bytes.Buffer{})
		assert.ErrorIs(t, err, ErrNoToken)
	})

	t.Run("read error", func(t *testing.T) {
		stubTerminal(t, true, "", errors.New("boom"))
		_, err := GetToken(&bytes.Buffer{})
		assert.ErrorContains(t, err, "boom")
	})

	t.Run("empty input", func(t *testing.T) {
		stubTerminal(t, true, "   ", nil)
		_, err := GetToken(&bytes.Buffer{})
		assert.ErrorIs(t, err, ErrNoToken)
	})
}

func TestReadTokenFile(t *testing.T) {
	dir := t.TempDir()
	p := filepath.Join(dir, "token")
	require.NoError(t, os.WriteFile(p, []byte("abc.def.ghi\ntrailing\n"), 0o600))

	got, err := readTokenFile(p)
	require.NoError(t, err)
	assert.Equal(t, "abc.def.ghi", got)

	empty := filepath.Join(dir, "empty")
	require.NoError(t, os.WriteFile(empty, []byte("\n"), 0o600))
	_, err = readTokenFile(empty)
	assert.ErrorContains(t, err, "empty")

	_, err = readTokenFile(filepath.Join(dir, "absent"))
	assert.ErrorContains(t, err, "token file")
}
