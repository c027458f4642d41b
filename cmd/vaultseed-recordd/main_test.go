package main

import (
	"bytes"
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestListBackends(t *testing.T) {
	var out, errOut bytes.Buffer
	code := run(context.Background(), []string{"--list-backends"}, &out, &errOut)
	assert.Equal(t, 0, code)
	assert.Contains(t, out.String(), "localfs")
	assert.Contains(t, out.String(), "memory")
	assert.NotContains(t, out.String(), "grpc\t")
}

func TestUnknownBackend(t *testing.T) {
	var out, errOut bytes.Buffer
	code := run(context.Background(), []string{"--backend", "s3"}, &out, &errOut)
	assert.Equal(t, 2, code)
	assert.NotEmpty(t, errOut.String())
}

func TestLocalfsNeedsDir(t *testing.T) {
	var out, errOut bytes.Buffer
	code := run(context.Background(), []string{"--backend", "localfs"}, &out, &errOut)
	assert.Equal(t, 2, code)
	assert.Contains(t, errOut.String(), "localfs-dir")
}
