package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/site-auditor/internal/audit"
)

func writeConfig(t *testing.T) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "siteaudit.yaml")
	body := `
logging:
  development: false
  level: error
browser:
  enabled: false
ai:
  enabled: false
  cache: none
snapshots:
  backend: none
dispatcher:
  workers: 1
  queue_depth: 2
`
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestAuditCommandPrintsCompletedAudit(t *testing.T) {
	site := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		fmt.Fprint(w, `<html><head><title>Only page</title></head><body><h1>Hi</h1><a href="/next">next</a></body></html>`)
	}))
	defer site.Close()

	var out bytes.Buffer
	cmd := newRootCmd()
	cmd.SetOut(&out)
	cmd.SetArgs([]string{"--config", writeConfig(t), "audit", site.URL, "--single-page"})
	require.NoError(t, cmd.ExecuteContext(context.Background()))

	var got audit.Audit
	require.NoError(t, json.Unmarshal(out.Bytes(), &got))
	require.Equal(t, audit.StatusCompleted, got.Status)
	require.False(t, got.Options.MultiPage)
	require.NotNil(t, got.Report)
	require.Len(t, got.Report.Pages, 1)
	require.NotNil(t, got.Score)
}

func TestAuditCommandReportsFailure(t *testing.T) {
	site := httptest.NewServer(http.NotFoundHandler())
	url := site.URL
	site.Close()

	var out bytes.Buffer
	cmd := newRootCmd()
	cmd.SetOut(&out)
	cmd.SetArgs([]string{"--config", writeConfig(t), "audit", url})
	err := cmd.ExecuteContext(context.Background())
	require.ErrorIs(t, err, ErrAuditFailed)

	var got audit.Audit
	require.NoError(t, json.Unmarshal(out.Bytes(), &got))
	require.Equal(t, audit.StatusFailed, got.Status)
	require.NotNil(t, got.Error)
}

func TestAuditCommandRequiresURL(t *testing.T) {
	cmd := newRootCmd()
	cmd.SetOut(&bytes.Buffer{})
	cmd.SetErr(&bytes.Buffer{})
	cmd.SetArgs([]string{"--config", writeConfig(t), "audit"})
	require.Error(t, cmd.Execute())
}

func TestRootRejectsBadConfig(t *testing.T) {
	cmd := newRootCmd()
	cmd.SetOut(&bytes.Buffer{})
	cmd.SetErr(&bytes.Buffer{})
	cmd.SetArgs([]string{"--config", filepath.Join(t.TempDir(), "missing.yaml"), "audit", "https://example.com"})
	require.ErrorContains(t, cmd.Execute(), "load config")
}
