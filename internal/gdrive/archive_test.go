package gdrive

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"google.golang.org/api/option"
)

type driveCall struct {
	method string
	path   string
}

func newFakeDrive(t *testing.T) (*httptest.Server, func() []driveCall) {
	t.Helper()
	var mu sync.Mutex
	var calls []driveCall
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		calls = append(calls, driveCall{method: r.Method, path: r.URL.Path})
		mu.Unlock()
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{"id": "file-1", "name": "m1_report.pdf"})
	}))
	t.Cleanup(server.Close)
	return server, func() []driveCall {
		mu.Lock()
		defer mu.Unlock()
		return append([]driveCall(nil), calls...)
	}
}

func writeReport(t *testing.T) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "m1_report.pdf")
	if err := os.WriteFile(path, []byte("%PDF-1.3 fake"), 0o644); err != nil {
		t.Fatalf("write report: %v", err)
	}
	return path
}

func TestArchiveCreatesThenUpdates(t *testing.T) {
	server, calls := newFakeDrive(t)
	ctx := context.Background()

	a, err := NewArchiverWithOptions(ctx, "folder-1",
		option.WithEndpoint(server.URL+"/"),
		option.WithoutAuthentication(),
		option.WithHTTPClient(server.Client()),
	)
	if err != nil {
		t.Fatalf("NewArchiverWithOptions failed: %v", err)
	}

	path := writeReport(t)
	if err := a.Archive(ctx, path, "m1_report.pdf"); err != nil {
		t.Fatalf("first Archive failed: %v", err)
	}
	if err := a.Archive(ctx, path, "m1_report.pdf"); err != nil {
		t.Fatalf("second Archive failed: %v", err)
	}

	got := calls()
	if len(got) != 2 {
		t.Fatalf("expected 2 drive calls, got %+v", got)
	}
	if got[0].method != http.MethodPost {
		t.Fatalf("expected create via POST, got %+v", got[0])
	}
	if got[1].method != http.MethodPatch || !strings.HasSuffix(got[1].path, "/files/file-1") {
		t.Fatalf("expected update of file-1 via PATCH, got %+v", got[1])
	}
	if a.fileIDs["m1_report.pdf"] != "file-1" {
		t.Fatalf("expected file id remembered, got %v", a.fileIDs)
	}
}

func TestArchiveMissingFile(t *testing.T) {
	server, calls := newFakeDrive(t)
	a, err := NewArchiverWithOptions(context.Background(), "folder-1",
		option.WithEndpoint(server.URL+"/"),
		option.WithoutAuthentication(),
	)
	if err != nil {
		t.Fatalf("NewArchiverWithOptions failed: %v", err)
	}

	err = a.Archive(context.Background(), filepath.Join(t.TempDir(), "missing.pdf"), "missing.pdf")
	if err == nil || !errors.Is(err, os.ErrNotExist) {
		t.Fatalf("expected not-exist error, got %v", err)
	}
	if len(calls()) != 0 {
		t.Fatal("expected no drive calls")
	}
}

func TestNewArchiverBadCredentials(t *testing.T) {
	if _, err := NewArchiver(context.Background(), filepath.Join(t.TempDir(), "nope.json"), "folder"); err == nil {
		t.Fatal("expected error for missing credentials file")
	}

	bad := filepath.Join(t.TempDir(), "creds.json")
	if err := os.WriteFile(bad, []byte("{not json"), 0o600); err != nil {
		t.Fatalf("write creds: %v", err)
	}
	if _, err := NewArchiver(context.Background(), bad, "folder"); err == nil || !strings.Contains(err.Error(), "parse credentials") {
		t.Fatalf("expected parse credentials error, got %v", err)
	}
}
