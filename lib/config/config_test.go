// Copyright 2026 The Ignition Authors
// SPDX-License-Identifier: Apache-2.0

package config_test

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/ignition-foundation/ignition/lib/config"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "ignition.yaml")
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}
	return path
}

func TestDefault(t *testing.T) {
	configuration := config.Default()
	if err := configuration.Validate(); err != nil {
		t.Fatalf("default configuration invalid: %v", err)
	}
	if configuration.Transition.MapKeyRetries != 2 {
		t.Errorf("MapKeyRetries = %d, want 2", configuration.Transition.MapKeyRetries)
	}
	if configuration.Console.Fallback != "memory" {
		t.Errorf("Fallback = %q, want memory", configuration.Console.Fallback)
	}
	if configuration.Report.Compression != "zstd" {
		t.Errorf("Compression = %q, want zstd", configuration.Report.Compression)
	}
}

func TestLoadFile(t *testing.T) {
	path := writeConfig(t, `
transition:
  map_key_retries: 5
console:
  fallback: discard
report:
  path: /tmp/report.bin
  compression: lz4
`)

	configuration, err := config.LoadFile(path)
	if err != nil {
		t.Fatalf("LoadFile: %v", err)
	}
	if configuration.Transition.MapKeyRetries != 5 {
		t.Errorf("MapKeyRetries = %d, want 5", configuration.Transition.MapKeyRetries)
	}
	if configuration.Console.Fallback != "discard" {
		t.Errorf("Fallback = %q, want discard", configuration.Console.Fallback)
	}
	// Unset fields keep defaults.
	if configuration.Console.MemoryLimit != 64*1024 {
		t.Errorf("MemoryLimit = %d, want %d", configuration.Console.MemoryLimit, 64*1024)
	}
	if configuration.Report.Compression != "lz4" {
		t.Errorf("Compression = %q, want lz4", configuration.Report.Compression)
	}
	if err := configuration.Validate(); err != nil {
		t.Fatalf("Validate: %v", err)
	}
}

func TestLoadFileExpandsPathVars(t *testing.T) {
	t.Setenv("IGNITION_REPORT_DIR", "/var/log/ignition")
	path := writeConfig(t, `
report:
  path: ${IGNITION_REPORT_DIR}/report.bin
`)

	configuration, err := config.LoadFile(path)
	if err != nil {
		t.Fatalf("LoadFile: %v", err)
	}
	if got := configuration.Report.Path; got != "/var/log/ignition/report.bin" {
		t.Errorf("Path = %q, want expanded", got)
	}
}

func TestLoadFileExpandsDefaultValue(t *testing.T) {
	path := writeConfig(t, `
report:
  path: ${IGNITION_UNSET_DIR:-/tmp}/report.bin
`)

	configuration, err := config.LoadFile(path)
	if err != nil {
		t.Fatalf("LoadFile: %v", err)
	}
	if got := configuration.Report.Path; got != "/tmp/report.bin" {
		t.Errorf("Path = %q, want default-expanded", got)
	}
}

func TestLoadFileMissing(t *testing.T) {
	if _, err := config.LoadFile(filepath.Join(t.TempDir(), "absent.yaml")); err == nil {
		t.Fatal("LoadFile(missing) succeeded, want error")
	}
}

func TestLoadEnvUnsetMeansDefaults(t *testing.T) {
	t.Setenv("IGNITION_CONFIG", "")

	configuration, err := config.Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if configuration.Transition.MapKeyRetries != 2 {
		t.Errorf("MapKeyRetries = %d, want default 2", configuration.Transition.MapKeyRetries)
	}
}

func TestValidateRejectsBadValues(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*config.Config)
	}{
		{"negative retries", func(c *config.Config) { c.Transition.MapKeyRetries = -1 }},
		{"unknown fallback", func(c *config.Config) { c.Console.Fallback = "serial" }},
		{"zero memory limit", func(c *config.Config) { c.Console.MemoryLimit = 0 }},
		{"unknown compression", func(c *config.Config) { c.Report.Compression = "gzip" }},
	}
	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			configuration := config.Default()
			test.mutate(configuration)
			if err := configuration.Validate(); err == nil {
				t.Error("Validate succeeded, want error")
			}
		})
	}
}
