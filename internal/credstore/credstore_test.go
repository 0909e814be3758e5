package credstore

import (
	"bytes"
	"os"
	"testing"
)

func TestExportImportRoundTrip(t *testing.T) {
	s, err := New(t.TempDir(), "backup-passphrase")
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	payload := []byte("credential database bytes")
	if err := os.WriteFile(s.Path("o1"), payload, 0o600); err != nil {
		t.Fatalf("seed: %v", err)
	}

	blob, err := s.Export("o1")
	if err != nil {
		t.Fatalf("export: %v", err)
	}
	if bytes.Contains(blob, payload) {
		t.Fatal("exported blob must not carry the credentials in the clear")
	}

	if err := s.Delete("o1"); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if s.Exists("o1") {
		t.Fatal("credentials should be gone after delete")
	}

	if err := s.Import("o1", blob); err != nil {
		t.Fatalf("import: %v", err)
	}
	got, err := os.ReadFile(s.Path("o1"))
	if err != nil {
		t.Fatalf("read restored: %v", err)
	}
	if !bytes.Equal(got, payload) {
		t.Errorf("restored credentials differ from the original")
	}
}

func TestExportDisabledWithoutKey(t *testing.T) {
	s, err := New(t.TempDir(), "")
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	if _, err := s.Export("o1"); err == nil {
		t.Error("export must refuse to run without an encryption key")
	}
	if err := s.Import("o1", []byte("blob")); err == nil {
		t.Error("import must refuse to run without an encryption key")
	}
}

func TestImportRejectsTamperedBlob(t *testing.T) {
	s, err := New(t.TempDir(), "backup-passphrase")
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	if err := os.WriteFile(s.Path("o1"), []byte("credential database bytes"), 0o600); err != nil {
		t.Fatalf("seed: %v", err)
	}
	blob, err := s.Export("o1")
	if err != nil {
		t.Fatalf("export: %v", err)
	}
	blob[len(blob)-1] ^= 0xff
	if err := s.Import("o1", blob); err == nil {
		t.Error("a tampered blob must not restore")
	}
}
