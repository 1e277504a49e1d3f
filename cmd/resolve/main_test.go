package main

import (
	"bytes"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/iconidentify/igrabba/internal/domain"
)

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	cmd := newRootCommand()
	var out, errOut bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&errOut)
	cmd.SetArgs(args)
	err := cmd.Execute()
	return out.String(), err
}

func TestResolve_EmbeddedPostJSON(t *testing.T) {
	page, err := os.ReadFile("../../pkg/instagram/testdata/shared_data_carousel.html")
	require.NoError(t, err)

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html")
		w.Write(page)
	}))
	defer srv.Close()

	out, err := execute(t, "--base-url", srv.URL, "--no-ytdlp", "--format", "json",
		"https://instagram.com/p/CxYz123/?igsh=abc")
	require.NoError(t, err)

	var res resolution
	require.NoError(t, json.Unmarshal([]byte(out), &res))
	assert.Equal(t, "https://www.instagram.com/p/CxYz123/", res.URL)
	assert.Equal(t, domain.ContentKindPost, res.Kind)
	assert.Equal(t, "CxYz123", res.ContentID)
	assert.Equal(t, "embedded", res.Strategy)
	require.Len(t, res.Assets, 3)
	assert.Equal(t, "https://scontent.cdninstagram.com/v/one.jpg", res.Assets[0].Locator)
	assert.Equal(t, domain.LocatorRemote, res.Assets[0].Kind)
}

func TestResolve_ReelWithTool(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("shell script fake requires a unix shell")
	}
	bin := filepath.Join(t.TempDir(), "yt-dlp")
	script := `#!/bin/sh
while [ $# -gt 0 ]; do
  if [ "$1" = "--output" ]; then shift; out="$1"; fi
  shift
done
f=$(echo "$out" | sed 's/%(ext)s/mp4/')
printf 'video' > "$f"
`
	require.NoError(t, os.WriteFile(bin, []byte(script), 0o755))
	tempDir := t.TempDir()

	out, err := execute(t, "--ytdlp", bin, "--temp-dir", tempDir, "https://www.instagram.com/reel/Rl99/")
	require.NoError(t, err)

	assert.True(t, strings.HasPrefix(out, "video Rl99 (found by ytdlp)\n"), out)
	assert.Contains(t, out, ".mp4")

	// Tool output is removed without --keep.
	entries, err := os.ReadDir(tempDir)
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestResolve_Unclassifiable(t *testing.T) {
	_, err := execute(t, "https://www.instagram.com/explore/")
	assert.True(t, errors.Is(err, domain.ErrClassification), "err = %v", err)
}

func TestResolve_InvalidFormat(t *testing.T) {
	_, err := execute(t, "--format", "xml", "https://www.instagram.com/p/A/")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid format")
}

func TestResolve_RequiresOneArg(t *testing.T) {
	_, err := execute(t)
	assert.Error(t, err)
}
