package executor_test

import (
	"archive/zip"
	"bytes"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/runfleet/runfleet/pkg/executor"
	"github.com/runfleet/runfleet/pkg/protocol"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func zipArchive(t *testing.T, entries map[string]string) []byte {
	t.Helper()
	var buf bytes.Buffer
	w := zip.NewWriter(&buf)
	for name, body := range entries {
		f, err := w.Create(name)
		require.NoError(t, err)
		_, err = f.Write([]byte(body))
		require.NoError(t, err)
	}
	require.NoError(t, w.Close())
	return buf.Bytes()
}

func serveBytes(t *testing.T, status int, body []byte) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(status)
		w.Write(body)
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestZipDownloadAndExtract(t *testing.T) {
	archive := zipArchive(t, map[string]string{
		"hello.txt":       "hello from archive",
		"nested/deep.txt": "nested entry",
	})
	srv := serveBytes(t, http.StatusOK, archive)

	workDir := t.TempDir()
	e := executor.New(executor.Config{WorkDir: workDir})

	res := e.Execute(t.Context(), protocol.Action{Type: protocol.ActionZipFile, Data: srv.URL + "/archive.zip"})
	assert.Contains(t, res.Output, "Successfully downloaded and extracted zip")

	data, err := os.ReadFile(filepath.Join(workDir, "hello.txt"))
	require.NoError(t, err)
	assert.Equal(t, "hello from archive", string(data))

	data, err = os.ReadFile(filepath.Join(workDir, "nested", "deep.txt"))
	require.NoError(t, err)
	assert.Equal(t, "nested entry", string(data))
}

func TestZipDownloadNotFound(t *testing.T) {
	srv := serveBytes(t, http.StatusNotFound, []byte("no such archive"))

	workDir := t.TempDir()
	e := executor.New(executor.Config{WorkDir: workDir})

	res := e.Execute(t.Context(), protocol.Action{Type: protocol.ActionZipFile, Data: srv.URL + "/archive.zip"})
	assert.Contains(t, res.Output, "404")
	assert.Contains(t, res.Output, "no such archive")

	// nothing extracted, nothing left behind
	entries, err := os.ReadDir(workDir)
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestZipEntryEscapingWorkDirRefused(t *testing.T) {
	archive := zipArchive(t, map[string]string{
		"../escape.txt": "should never land",
	})
	srv := serveBytes(t, http.StatusOK, archive)

	parent := t.TempDir()
	workDir := filepath.Join(parent, "work")
	require.NoError(t, os.Mkdir(workDir, 0755))
	e := executor.New(executor.Config{WorkDir: workDir})

	res := e.Execute(t.Context(), protocol.Action{Type: protocol.ActionZipFile, Data: srv.URL + "/archive.zip"})
	assert.Contains(t, res.Output, "Failed to extract zip")

	_, err := os.Stat(filepath.Join(parent, "escape.txt"))
	assert.True(t, os.IsNotExist(err))
}

func TestZipBadURL(t *testing.T) {
	e := executor.New(executor.Config{WorkDir: t.TempDir()})

	res := e.Execute(t.Context(), protocol.Action{Type: protocol.ActionZipFile, Data: "http://127.0.0.1:1/archive.zip"})
	assert.Contains(t, res.Output, "Failed to download zip")
}
