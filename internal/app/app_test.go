package app

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/blackwell-systems/fsauditd/internal/audit"
	"github.com/blackwell-systems/fsauditd/internal/store"
)

// testEnv is a config file plus the paths it points at.
type testEnv struct {
	dir       string
	config    string
	dbPath    string
	targets   string
	pidFile   string
	watchDir  string
	traceFile string
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	dir := t.TempDir()
	t.Setenv("XDG_CONFIG_HOME", dir)
	t.Setenv("FSAUDITD_CONFIG", "")

	env := &testEnv{
		dir:       dir,
		config:    filepath.Join(dir, "config.yaml"),
		dbPath:    filepath.Join(dir, "audit.db"),
		targets:   filepath.Join(dir, "targets.xml"),
		pidFile:   filepath.Join(dir, "fsauditd.pid"),
		watchDir:  filepath.Join(dir, "share"),
		traceFile: filepath.Join(dir, "security.xml"),
	}
	if err := os.Mkdir(env.watchDir, 0755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(env.traceFile, []byte("<Trace/>"), 0644); err != nil {
		t.Fatal(err)
	}

	cfg := "targets_file: " + env.targets + "\n" +
		"pid_file: " + env.pidFile + "\n" +
		"database:\n  driver: sqlite\n  dsn: " + env.dbPath + "\n" +
		"security:\n  log_path: " + env.traceFile + "\n" +
		"log:\n  level: error\n"
	if err := os.WriteFile(env.config, []byte(cfg), 0644); err != nil {
		t.Fatal(err)
	}
	return env
}

func (e *testEnv) writeTargets(t *testing.T, paths ...string) {
	t.Helper()
	doc := "<config>"
	for _, p := range paths {
		doc += "<directory><path>" + p + "</path></directory>"
	}
	doc += "</config>"
	if err := os.WriteFile(e.targets, []byte(doc), 0644); err != nil {
		t.Fatal(err)
	}
}

func (e *testEnv) seedEntries(t *testing.T, messages ...string) {
	t.Helper()
	st, err := store.New(e.dbPath)
	if err != nil {
		t.Fatal(err)
	}
	defer st.Close()
	if err := st.CreateSchema(); err != nil {
		t.Fatal(err)
	}
	for i, msg := range messages {
		_, err := st.Insert(context.Background(), &audit.Entry{
			Timestamp: time.Date(2024, 3, 1, 10, i, 0, 0, time.UTC),
			Username:  "alice",
			Role:      "admin",
			Point:     audit.DefaultPoint,
			Message:   msg,
			Source:    audit.DefaultSourceFS,
		})
		if err != nil {
			t.Fatal(err)
		}
	}
}

// executeCommand runs the root command with args and returns its output.
// Package-level flag variables are reset first.
func executeCommand(t *testing.T, args ...string) (string, error) {
	t.Helper()
	configPath = ""
	entriesLimit = 20
	entriesJSON = false
	runBackground, runDaemonChild, runStop = false, false, false
	runPIDFile, runLogFile = "", ""

	buf := &bytes.Buffer{}
	RootCmd.SetOut(buf)
	RootCmd.SetErr(buf)
	RootCmd.SetArgs(args)
	t.Cleanup(func() {
		RootCmd.SetOut(nil)
		RootCmd.SetErr(nil)
		RootCmd.SetArgs(nil)
	})
	err := RootCmd.Execute()
	return buf.String(), err
}
