package signature

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/calebjordan/gca-chat-core/internal/config"
)

func TestBuildStore_FileBackendDefaultsToAuthDirSubdir(t *testing.T) {
	authDir := t.TempDir()
	store, err := BuildStore(context.Background(), config.SignatureCacheConfig{Backend: "file"}, authDir)
	if err != nil {
		t.Fatalf("BuildStore: %v", err)
	}
	defer store.Close()

	fs, ok := store.(*FileStore)
	if !ok {
		t.Fatalf("expected a *FileStore, got %T", store)
	}
	if want := filepath.Join(authDir, "signature-cache"); fs.baseDir != want {
		t.Errorf("expected base dir %s, got %s", want, fs.baseDir)
	}
}

func TestBuildStore_EmptyBackendDefaultsToFile(t *testing.T) {
	store, err := BuildStore(context.Background(), config.SignatureCacheConfig{}, t.TempDir())
	if err != nil {
		t.Fatalf("BuildStore: %v", err)
	}
	defer store.Close()

	if _, ok := store.(*FileStore); !ok {
		t.Errorf("expected a *FileStore, got %T", store)
	}
}

func TestBuildStore_PostgresBackendRequiresDSN(t *testing.T) {
	_, err := BuildStore(context.Background(), config.SignatureCacheConfig{Backend: "postgres"}, t.TempDir())
	if err == nil {
		t.Fatal("expected an error for a postgres backend with no DSN")
	}
}

func TestBuildStore_UnknownBackendErrors(t *testing.T) {
	_, err := BuildStore(context.Background(), config.SignatureCacheConfig{Backend: "sqlite"}, t.TempDir())
	if err == nil {
		t.Fatal("expected an error for an unknown backend")
	}
}
