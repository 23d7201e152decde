package store

import (
	"context"
	"path/filepath"
	"testing"
)

func TestEncryptDecryptBlobRoundtrip(t *testing.T) {
	blob, err := encryptBlob([]byte("hello world"), "roundtrip-key-123")
	if err != nil {
		t.Fatalf("encrypt: %v", err)
	}
	if string(blob[:4]) != "DMP1" {
		t.Fatalf("expected DMP1 magic prefix, got %q", blob[:4])
	}

	plain, err := decryptBlob(blob, "roundtrip-key-123")
	if err != nil {
		t.Fatalf("decrypt: %v", err)
	}
	if string(plain) != "hello world" {
		t.Errorf("expected roundtrip to preserve plaintext, got %q", plain)
	}
}

func TestEncryptBlob_RequiresSufficientKeyLength(t *testing.T) {
	if _, err := encryptBlob([]byte("data"), "short"); err == nil {
		t.Fatal("expected error for a too-short encryption key")
	}
}

func TestDumpAndRestoreRoundtrip(t *testing.T) {
	dir := t.TempDir()
	s := NewMemoryStore()
	ctx := context.Background()
	s.InsertOne(ctx, CollectionSecuritySettings, Doc{"_id": "cfg", "global_mode": "allow_all"})

	dumpPath, err := DumpToFile(s, filepath.Join(dir, "memory_dump.bin"), "unit-test-key-abcde")
	if err != nil {
		t.Fatalf("dump: %v", err)
	}

	restored := NewMemoryStore()
	version, err := RestoreFromFile(restored, dumpPath, "unit-test-key-abcde")
	if err != nil {
		t.Fatalf("restore: %v", err)
	}
	if version != 1 {
		t.Errorf("expected snapshot version 1, got %d", version)
	}

	doc, err := restored.FindOne(ctx, CollectionSecuritySettings, Filter{"_id": "cfg"})
	if err != nil {
		t.Fatalf("find after restore: %v", err)
	}
	if doc["global_mode"] != "allow_all" {
		t.Errorf("expected restored document to preserve fields, got %+v", doc)
	}
}

func TestFindLatestDumpPath_PrefersNewest(t *testing.T) {
	dir := t.TempDir()
	s := NewMemoryStore()
	ctx := context.Background()
	s.InsertOne(ctx, CollectionTiers, Doc{"_id": "t1"})

	first, err := DumpToFile(s, filepath.Join(dir, "memory_dump.bin"), "unit-test-key-abcde")
	if err != nil {
		t.Fatalf("first dump: %v", err)
	}

	latest, err := FindLatestDumpPath(filepath.Join(dir, "memory_dump.bin"))
	if err != nil {
		t.Fatalf("find latest: %v", err)
	}
	if latest != first {
		t.Errorf("expected latest dump to be %s, got %s", first, latest)
	}
}

func TestRestoreFromFile_NonexistentPath(t *testing.T) {
	restored := NewMemoryStore()
	if _, err := RestoreFromFile(restored, "/nonexistent/path/dump.bin", "whatever-key"); err == nil {
		t.Fatal("expected error restoring from a nonexistent file")
	}
}
