package main

import (
	"bytes"
	"strings"
	"testing"

	"github.com/jmgilman/go/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetErr(&out)
	rootCmd.SetArgs(args)
	t.Cleanup(func() { rootCmd.SetArgs(nil) })
	err := rootCmd.Execute()
	return out.String(), err
}

func TestVersion(t *testing.T) {
	out, err := execute(t, "version")
	require.NoError(t, err)
	assert.Equal(t, version, strings.TrimSpace(out))
}

func TestServe_RejectsPortOutOfRange(t *testing.T) {
	t.Setenv("DB_CONN", "memory://")
	_, err := execute(t, "80")
	require.Error(t, err)
	assert.Equal(t, errors.CodeInvalidConfig, errors.GetCode(err))
}

func TestServe_RequiresDSN(t *testing.T) {
	t.Setenv("DB_CONN", "")
	_, err := execute(t, "serve", "9000")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "database connection string is not provided")
}

func TestServe_RejectsTooManyArgs(t *testing.T) {
	_, err := execute(t, "1", "2", "3", "4")
	require.Error(t, err)
}
