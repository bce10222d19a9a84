// Package backend resolves a named CLI backend to its declarative spec and
// serializes or parallelizes runs against it (§4.1, §4.2). It has no side
// effects beyond the run queue's own task chaining — no process spawning,
// no I/O — that is internal/process's job.
package backend

import (
	"fmt"

	"github.com/nextlevelbuilder/gatewaycore/internal/config"
)

// UnknownBackendError is returned by Resolve when provider names no
// configured backend. Fatal to the calling operation; callers surface it as
// a tool error rather than retrying.
type UnknownBackendError struct {
	Provider string
}

func (e *UnknownBackendError) Error() string {
	return fmt.Sprintf("unknown backend: %q", e.Provider)
}

// Resolved is the outcome of resolving a provider name against the config:
// the backend's own id (equal to provider, kept distinct for readability at
// call sites) and its immutable spec.
type Resolved struct {
	BackendID string
	Spec      config.BackendSpec
}

// Resolve looks provider up in cfg and returns its spec, or *UnknownBackendError
// if no such backend is configured. No side effects.
func Resolve(provider string, cfg *config.Config) (Resolved, error) {
	spec, ok := cfg.Backend(provider)
	if !ok {
		return Resolved{}, &UnknownBackendError{Provider: provider}
	}
	return Resolved{BackendID: provider, Spec: spec}, nil
}

// ResolveModel normalizes modelID through the resolved backend's
// modelAliases, case-insensitive, falling back to modelID unchanged.
func (r Resolved) ResolveModel(modelID string) string {
	return r.Spec.ResolveModelAlias(modelID)
}
