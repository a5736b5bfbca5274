package main

import (
	"net"
	"strconv"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRun_BadFlags(t *testing.T) {
	assert.Equal(t, 2, run([]string{"-port", "not-a-port"}))
	assert.Equal(t, 2, run([]string{"-log-level", "loud"}))
}

func TestRun_BindFailure(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	defer ln.Close()
	port := ln.Addr().(*net.TCPAddr).Port

	code := run([]string{
		"-host", "127.0.0.1",
		"-port", strconv.Itoa(port),
		"-photos", t.TempDir(),
		"-log-level", "error",
	})
	assert.Equal(t, 1, code)
}
