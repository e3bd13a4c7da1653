package main

import (
	"bytes"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestVersionCommand(t *testing.T) {
	cmd := versionCmd()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetArgs([]string{"--short"})

	require.NoError(t, cmd.Execute())
	require.Equal(t, version, strings.TrimSpace(out.String()))
}

func TestServeFlags(t *testing.T) {
	cmd := serveCmd()

	port := cmd.Flags().Lookup("port")
	require.NotNil(t, port)
	require.Equal(t, "p", port.Shorthand)

	envFile := cmd.Flags().Lookup("env-file")
	require.NotNil(t, envFile)
	require.Equal(t, ".env", envFile.DefValue)
}
