package backend

import (
	"errors"
	"testing"

	"github.com/nextlevelbuilder/gatewaycore/internal/config"
)

func testConfig() *config.Config {
	return &config.Config{
		Backends: map[string]config.BackendSpec{
			"claude": {
				Command: "claude",
				ModelAliases: map[string]string{
					"sonnet": "claude-sonnet-4-5",
				},
				Serialize: true,
			},
			"codex": {
				Command:   "codex",
				Serialize: false,
			},
		},
	}
}

func TestResolveKnownBackend(t *testing.T) {
	r, err := Resolve("claude", testConfig())
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if r.BackendID != "claude" {
		t.Errorf("BackendID = %q, want claude", r.BackendID)
	}
	if r.Spec.Command != "claude" {
		t.Errorf("Spec.Command = %q, want claude", r.Spec.Command)
	}
}

func TestResolveUnknownBackend(t *testing.T) {
	_, err := Resolve("nope", testConfig())
	if err == nil {
		t.Fatal("expected an error for an unknown backend")
	}
	var unknown *UnknownBackendError
	if !errors.As(err, &unknown) {
		t.Fatalf("expected *UnknownBackendError, got %T", err)
	}
	if unknown.Provider != "nope" {
		t.Errorf("Provider = %q, want nope", unknown.Provider)
	}
}

func TestResolveModelAliasCaseInsensitive(t *testing.T) {
	r, err := Resolve("claude", testConfig())
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if got := r.ResolveModel("SONNET"); got != "claude-sonnet-4-5" {
		t.Errorf("ResolveModel(SONNET) = %q, want claude-sonnet-4-5", got)
	}
	if got := r.ResolveModel("unlisted-model"); got != "unlisted-model" {
		t.Errorf("ResolveModel(unlisted-model) = %q, want unchanged", got)
	}
}
