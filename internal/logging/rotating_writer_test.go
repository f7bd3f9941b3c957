package logging

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestRotatingFileWriterNoRotation(t *testing.T) {
	path := filepath.Join(t.TempDir(), "app.log")

	w, err := NewRotatingFileWriter(path, 1024, 3)
	if err != nil {
		t.Fatalf("failed to create writer: %v", err)
	}
	defer func() { _ = w.Close() }()

	if _, err := w.Write([]byte("hello\n")); err != nil {
		t.Fatalf("write failed: %v", err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("failed to read log: %v", err)
	}
	if string(data) != "hello\n" {
		t.Errorf("log content = %q", data)
	}
	if _, err := os.Stat(path + ".1"); !os.IsNotExist(err) {
		t.Error("backup created without hitting the size limit")
	}
}

func TestRotatingFileWriterRotates(t *testing.T) {
	path := filepath.Join(t.TempDir(), "app.log")

	w, err := NewRotatingFileWriter(path, 10, 3)
	if err != nil {
		t.Fatalf("failed to create writer: %v", err)
	}
	defer func() { _ = w.Close() }()

	if _, err := w.Write([]byte("first gen\n")); err != nil {
		t.Fatalf("first write failed: %v", err)
	}
	// Exceeds the 10 byte limit, forcing rotation
	if _, err := w.Write([]byte("second gen\n")); err != nil {
		t.Fatalf("second write failed: %v", err)
	}

	backup, err := os.ReadFile(path + ".1")
	if err != nil {
		t.Fatalf("backup missing after rotation: %v", err)
	}
	if !strings.Contains(string(backup), "first gen") {
		t.Errorf("backup content = %q", backup)
	}

	current, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("failed to read current log: %v", err)
	}
	if !strings.Contains(string(current), "second gen") {
		t.Errorf("current content = %q", current)
	}
}

func TestRotatingFileWriterDropsOldestBackup(t *testing.T) {
	path := filepath.Join(t.TempDir(), "app.log")

	w, err := NewRotatingFileWriter(path, 4, 2)
	if err != nil {
		t.Fatalf("failed to create writer: %v", err)
	}
	defer func() { _ = w.Close() }()

	// Each write exceeds the limit, so each one rotates
	for _, line := range []string{"gen-1\n", "gen-2\n", "gen-3\n", "gen-4\n"} {
		if _, err := w.Write([]byte(line)); err != nil {
			t.Fatalf("write %q failed: %v", line, err)
		}
	}

	if _, err := os.Stat(path + ".3"); !os.IsNotExist(err) {
		t.Error("more backups kept than maxBackups allows")
	}
	if _, err := os.Stat(path + ".1"); err != nil {
		t.Errorf(".1 backup missing: %v", err)
	}
}

func TestRotatingFileWriterResumesExistingFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "app.log")
	if err := os.WriteFile(path, []byte("existing\n"), 0600); err != nil {
		t.Fatalf("failed to seed file: %v", err)
	}

	w, err := NewRotatingFileWriter(path, 1024, 2)
	if err != nil {
		t.Fatalf("failed to reopen writer: %v", err)
	}
	defer func() { _ = w.Close() }()

	if _, err := w.Write([]byte("appended\n")); err != nil {
		t.Fatalf("write failed: %v", err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("failed to read log: %v", err)
	}
	if string(data) != "existing\nappended\n" {
		t.Errorf("log content = %q, want append to existing content", data)
	}
}
