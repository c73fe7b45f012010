package logging_test

import (
	"os"
	"path/filepath"
	"testing"

	"docsync/internal/config"
	"docsync/internal/logging"
)

func TestNewFromConfigCreatesLogDirectory(t *testing.T) {
	base := t.TempDir()
	cfg := config.Default()
	cfg.Paths.LogDir = filepath.Join(base, "logs")

	logger, err := logging.NewFromConfig(&cfg)
	if err != nil {
		t.Fatalf("NewFromConfig: %v", err)
	}
	if logger == nil {
		t.Fatal("expected a logger")
	}

	logger.Info("log sink check")
	if _, err := os.Stat(filepath.Join(cfg.Paths.LogDir, "docsync.log")); err != nil {
		t.Fatalf("expected log file: %v", err)
	}
}

func TestNewFromConfigNilConfigDefaults(t *testing.T) {
	logger, err := logging.NewFromConfig(nil)
	if err != nil {
		t.Fatalf("NewFromConfig(nil): %v", err)
	}
	if logger == nil {
		t.Fatal("expected a logger")
	}
}

func TestNewRejectsUnknownFormat(t *testing.T) {
	if _, err := logging.New(logging.Options{Format: "yaml"}); err == nil {
		t.Fatal("expected error for unsupported format")
	}
}
