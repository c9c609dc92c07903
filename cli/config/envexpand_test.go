package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestExpandEnv(t *testing.T) {
	t.Setenv("STAGEKIT_TEST_SET", "hello")
	t.Setenv("STAGEKIT_TEST_EMPTY", "")
	t.Setenv("STAGEKIT_TEST_B", "bob")

	tests := []struct {
		input string
		want  string
	}{
		{"value: ${STAGEKIT_TEST_SET}", "value: hello"},
		{"value: ${STAGEKIT_TEST_UNSET_12345}", "value: "},
		{"value: ${STAGEKIT_TEST_UNSET_12345:-fallback}", "value: fallback"},
		{"value: ${STAGEKIT_TEST_SET:-fallback}", "value: hello"},
		{"value: ${STAGEKIT_TEST_EMPTY:-fallback}", "value: fallback"},
		{"value: ${STAGEKIT_TEST_UNSET_12345:-}", "value: "},
		{"value: ${STAGEKIT_TEST_SET:?needed}", "value: hello"},
		{"${STAGEKIT_TEST_SET}:${STAGEKIT_TEST_B}", "hello:bob"},
		{"no variables here", "no variables here"},
		{"$STAGEKIT_TEST_SET", "$STAGEKIT_TEST_SET"},
		{"${not a ref}", "${not a ref}"},
	}
	for _, tt := range tests {
		got, err := ExpandEnv(tt.input)
		if err != nil || got != tt.want {
			t.Errorf("ExpandEnv(%q) = %q, %v; want %q", tt.input, got, err, tt.want)
		}
	}
}

func TestExpandEnv_Required(t *testing.T) {
	t.Setenv("STAGEKIT_TEST_EMPTY", "")

	_, err := ExpandEnv("url: ${STAGEKIT_TEST_UNSET_12345:?set the redis URL}\nsecret: ${STAGEKIT_TEST_EMPTY:?}")
	if err == nil {
		t.Fatal("expected error for missing required variables")
	}
	for _, want := range []string{
		"STAGEKIT_TEST_UNSET_12345: set the redis URL",
		"STAGEKIT_TEST_EMPTY: required but not set",
	} {
		if !strings.Contains(err.Error(), want) {
			t.Errorf("error %q missing %q", err, want)
		}
	}
}

func TestLoad_RequiredVariableMissing(t *testing.T) {
	path := filepath.Join(t.TempDir(), FileName)
	data := "adapter:\n  type: webhook\n  url: ${STAGEKIT_TEST_UNSET_12345:?webhook URL}\n"
	if err := os.WriteFile(path, []byte(data), 0o644); err != nil {
		t.Fatal(err)
	}
	_, err := Load(path)
	if err == nil || !strings.Contains(err.Error(), "webhook URL") {
		t.Errorf("Load() error = %v", err)
	}
}

func TestExpandEnv_NestedInYAML(t *testing.T) {
	t.Setenv("HOOK_TOKEN", "token123")
	t.Setenv("HOOK_SECRET", "secret")

	got, err := ExpandEnv("adapter:\n  headers:\n    Authorization: Bearer ${HOOK_TOKEN}\n  secret: ${HOOK_SECRET}")
	if err != nil {
		t.Fatal(err)
	}
	want := "adapter:\n  headers:\n    Authorization: Bearer token123\n  secret: secret"
	if got != want {
		t.Errorf("got:\n%s\nwant:\n%s", got, want)
	}
}
