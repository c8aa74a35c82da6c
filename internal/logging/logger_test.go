package logging

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func resetForTest() {
	CloseAll()
	logsDir = ""
	opts = Options{}
}

// TestDebugModeWritesFiles checks that enabled categories create log files.
func TestDebugModeWritesFiles(t *testing.T) {
	defer resetForTest()

	tempDir := t.TempDir()
	err := Initialize(tempDir, Options{Debug: true, Level: "debug"})
	if err != nil {
		t.Fatalf("Initialize failed: %v", err)
	}

	Auth("challenge detected: %s", "email_code")
	Store("upserted %d conversations", 3)
	CloseAll()

	date := time.Now().Format("2006-01-02")
	for _, cat := range []Category{CategoryBoot, CategoryAuth, CategoryStore} {
		path := filepath.Join(tempDir, ".dmscout", "logs", date+"_"+string(cat)+".log")
		data, err := os.ReadFile(path)
		if err != nil {
			t.Fatalf("expected log file for %s: %v", cat, err)
		}
		if len(data) == 0 {
			t.Errorf("log file for %s is empty", cat)
		}
	}
}

// TestProductionModeIsSilent checks that no files are written when debug is off.
func TestProductionModeIsSilent(t *testing.T) {
	defer resetForTest()

	tempDir := t.TempDir()
	if err := Initialize(tempDir, Options{Debug: false}); err != nil {
		t.Fatalf("Initialize failed: %v", err)
	}

	Dispatch("sent message to %s", "c1")
	Intercept("decoded %d records", 10)

	if _, err := os.Stat(filepath.Join(tempDir, ".dmscout", "logs")); !os.IsNotExist(err) {
		t.Errorf("logs directory should not exist in production mode")
	}
}

// TestCategoryFilter checks that disabled categories are no-ops.
func TestCategoryFilter(t *testing.T) {
	defer resetForTest()

	tempDir := t.TempDir()
	err := Initialize(tempDir, Options{
		Debug:      true,
		Level:      "debug",
		Categories: map[string]bool{"dispatch": false},
	})
	if err != nil {
		t.Fatalf("Initialize failed: %v", err)
	}

	Dispatch("should not appear")
	Reconcile("should appear")
	CloseAll()

	date := time.Now().Format("2006-01-02")
	if _, err := os.Stat(filepath.Join(tempDir, ".dmscout", "logs", date+"_dispatch.log")); !os.IsNotExist(err) {
		t.Errorf("dispatch log file should not exist when category disabled")
	}
	data, err := os.ReadFile(filepath.Join(tempDir, ".dmscout", "logs", date+"_reconcile.log"))
	if err != nil {
		t.Fatalf("expected reconcile log file: %v", err)
	}
	if !strings.Contains(string(data), "should appear") {
		t.Errorf("reconcile log missing expected message")
	}
}

// TestLevelFilter checks that debug lines are dropped at info level.
func TestLevelFilter(t *testing.T) {
	defer resetForTest()

	tempDir := t.TempDir()
	if err := Initialize(tempDir, Options{Debug: true, Level: "info"}); err != nil {
		t.Fatalf("Initialize failed: %v", err)
	}

	AuthDebug("dropped line")
	Auth("kept line")
	CloseAll()

	date := time.Now().Format("2006-01-02")
	data, err := os.ReadFile(filepath.Join(tempDir, ".dmscout", "logs", date+"_auth.log"))
	if err != nil {
		t.Fatalf("expected auth log file: %v", err)
	}
	if strings.Contains(string(data), "dropped line") {
		t.Errorf("debug line should be filtered at info level")
	}
	if !strings.Contains(string(data), "kept line") {
		t.Errorf("info line missing")
	}
}
