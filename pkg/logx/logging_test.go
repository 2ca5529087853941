package logx

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestApplyKeepsFileAcrossLevelChange(t *testing.T) {
	t.Parallel()
	path := filepath.Join(t.TempDir(), "app.log")
	cfg := Config{Level: "info", File: FileConfig{Enabled: true, Path: path}}
	svc, log := New(cfg)
	defer svc.Close()

	log.Info("first", String("k", "v"))
	f := svc.file

	cfg.Level = "debug"
	if err := svc.Apply(cfg); err != nil {
		t.Fatalf("Apply: %v", err)
	}
	if svc.file != f {
		t.Fatalf("log file reopened on level change")
	}
	log.Debug("second")

	b, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	out := string(b)
	for _, want := range []string{`"message":"first"`, `"k":"v"`, `"message":"second"`} {
		if !strings.Contains(out, want) {
			t.Fatalf("log missing %s:\n%s", want, out)
		}
	}
}

func TestApplyReportsUnopenableFile(t *testing.T) {
	t.Parallel()
	svc, _ := New(Config{Level: "info"})
	defer svc.Close()

	bad := filepath.Join(t.TempDir(), "missing", "app.log")
	err := svc.Apply(Config{Level: "info", File: FileConfig{Enabled: true, Path: bad}})
	if err == nil || !strings.Contains(err.Error(), "missing") {
		t.Fatalf("err = %v, want open error", err)
	}
	if svc.file != nil {
		t.Fatalf("file set after failed open")
	}
}

func TestZeroLoggerIsNoop(t *testing.T) {
	t.Parallel()
	var l Logger
	if !l.IsZero() {
		t.Fatalf("zero logger not IsZero")
	}
	l.With(Int("n", 1)).Error("ignored")
}
