package app

import (
	"testing"
)

func TestRootCommand(t *testing.T) {
	if RootCmd.Use != "fsauditd" {
		t.Errorf("expected Use to be 'fsauditd', got '%s'", RootCmd.Use)
	}
	if RootCmd.Short == "" {
		t.Error("expected Short description to be set")
	}
	if RootCmd.Long == "" {
		t.Error("expected Long description to be set")
	}
}

func TestRootCommandHasSubcommands(t *testing.T) {
	expectedCommands := []string{"run", "service", "entries", "targets", "status"}
	foundCommands := make(map[string]bool)
	for _, cmd := range RootCmd.Commands() {
		foundCommands[cmd.Name()] = true
	}

	for _, expected := range expectedCommands {
		if !foundCommands[expected] {
			t.Errorf("expected command '%s' to be registered", expected)
		}
	}
}

func TestRootCommandHasPersistentFlags(t *testing.T) {
	flag := RootCmd.PersistentFlags().Lookup("config")
	if flag == nil {
		t.Fatal("expected --config flag to be registered")
	}
	if flag.Usage == "" {
		t.Error("expected --config flag to have usage text")
	}
}

func TestServiceSubcommands(t *testing.T) {
	expected := map[string]bool{
		"install": false, "uninstall": false, "start": false,
		"stop": false, "restart": false, "status": false, "run": false,
	}
	for _, cmd := range serviceCmd.Commands() {
		if _, ok := expected[cmd.Name()]; ok {
			expected[cmd.Name()] = true
		}
	}
	for name, found := range expected {
		if !found {
			t.Errorf("expected 'service %s' to be registered", name)
		}
	}
	for _, cmd := range serviceCmd.Commands() {
		if cmd.Name() == "run" && !cmd.Hidden {
			t.Error("'service run' should be hidden")
		}
	}
}

func TestRunCommandFlags(t *testing.T) {
	tests := []struct {
		flagName     string
		shouldHidden bool
	}{
		{"background", false},
		{"daemon-child", true},
		{"pid-file", false},
		{"log-file", false},
		{"stop", false},
	}

	for _, tt := range tests {
		t.Run(tt.flagName, func(t *testing.T) {
			flag := runCmd.Flags().Lookup(tt.flagName)
			if flag == nil {
				t.Fatalf("expected flag '%s' to be registered", tt.flagName)
			}
			if flag.Hidden != tt.shouldHidden {
				t.Errorf("flag '%s' hidden = %v, want %v", tt.flagName, flag.Hidden, tt.shouldHidden)
			}
		})
	}
}

func TestUnknownCommandSuggests(t *testing.T) {
	_, err := executeCommand(t, "entires")
	if err == nil {
		t.Fatal("expected error for unknown command")
	}
}
