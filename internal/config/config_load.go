package config

import (
	"crypto/sha256"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/fsnotify/fsnotify"
	"github.com/titanous/json5"
)

// Default returns a Config with sensible defaults.
func Default() *Config {
	return &Config{
		Backends: map[string]BackendSpec{},
		Models:   map[string]ModelConfig{},
		Gateway: GatewayConfig{
			MaxMessageChars: 32000,
		},
		Sessions: SessionsConfig{
			Storage:      "~/.gatewaycore/sessions",
			RegistryPath: "~/.gatewaycore/subagents.json",
		},
		Subagents: SubagentsConfig{
			MaxConcurrent:       5,
			MaxRetained:         15,
			ReservationTTLSec:   30,
			ArchiveAfterMinutes: 60,
		},
		Queue: QueueConfig{
			DefaultMode:           "followup",
			StaleProcessThreshold: 10,
		},
	}
}

// Load reads config from a JSON5 file, then overlays env vars.
func Load(path string) (*Config, error) {
	cfg := Default()

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			cfg.applyEnvOverrides()
			return cfg, nil
		}
		return nil, fmt.Errorf("read config: %w", err)
	}

	if err := json5.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}

	cfg.applyEnvOverrides()
	return cfg, nil
}

// applyEnvOverrides overlays env vars onto the config. Env vars take
// precedence over file values. Only OPENCLAW_GATEWAY_TOKEN is overlaid here;
// OPENCLAW_CLAUDE_CLI_LOG_OUTPUT is read on demand by LogCLIOutput.
func (c *Config) applyEnvOverrides() {
	if v := os.Getenv("OPENCLAW_GATEWAY_TOKEN"); v != "" {
		c.Gateway.Token = v
	}
}

// LogCLIOutput reports whether OPENCLAW_CLAUDE_CLI_LOG_OUTPUT is truthy.
func LogCLIOutput() bool {
	v := os.Getenv("OPENCLAW_CLAUDE_CLI_LOG_OUTPUT")
	return v == "1" || v == "true" || v == "yes"
}

// Save writes the config to a JSON file.
func Save(path string, cfg *Config) error {
	cfg.mu.RLock()
	defer cfg.mu.RUnlock()

	data, err := json.MarshalIndent(cfg, "", "  ")
	if err != nil {
		return err
	}

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return err
	}

	return os.WriteFile(path, data, 0600)
}

// Hash returns a SHA-256 hash of the config for optimistic concurrency and
// for suppressing redundant reload-triggered rebuilds.
func (c *Config) Hash() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	data, _ := json.Marshal(c)
	h := sha256.Sum256(data)
	return fmt.Sprintf("%x", h[:8])
}

// ExpandHome replaces a leading ~ with the user home directory.
func ExpandHome(path string) string {
	if path == "" || path[0] != '~' {
		return path
	}
	home, _ := os.UserHomeDir()
	if len(path) > 1 && path[1] == '/' {
		return home + path[1:]
	}
	return home
}

// Watcher hot-reloads the config file on write, replacing cfg's contents in
// place via ReplaceFrom so existing holders of the *Config pointer observe
// the update without a restart. Mirrors the teacher's config-watch pattern
// at internal/config (fsnotify-driven, debounced by hash comparison).
type Watcher struct {
	path   string
	cfg    *Config
	watch  *fsnotify.Watcher
	onLoad func(*Config)
}

// NewWatcher starts watching path's directory for changes to path itself.
// Watching the directory (not the file) survives editors that replace the
// file via rename-on-save instead of writing in place.
func NewWatcher(path string, cfg *Config, onLoad func(*Config)) (*Watcher, error) {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("config watcher: %w", err)
	}
	dir := filepath.Dir(path)
	if err := w.Add(dir); err != nil {
		w.Close()
		return nil, fmt.Errorf("config watcher: watch %s: %w", dir, err)
	}
	cw := &Watcher{path: path, cfg: cfg, watch: w, onLoad: onLoad}
	go cw.run()
	return cw, nil
}

func (w *Watcher) run() {
	lastHash := w.cfg.Hash()
	for {
		select {
		case ev, ok := <-w.watch.Events:
			if !ok {
				return
			}
			if filepath.Clean(ev.Name) != filepath.Clean(w.path) {
				continue
			}
			if ev.Op&(fsnotify.Write|fsnotify.Create) == 0 {
				continue
			}
			reloaded, err := Load(w.path)
			if err != nil {
				slog.Warn("config reload failed", "path", w.path, "error", err)
				continue
			}
			if h := reloaded.Hash(); h == lastHash {
				continue
			} else {
				lastHash = h
			}
			w.cfg.ReplaceFrom(reloaded)
			if w.onLoad != nil {
				w.onLoad(w.cfg)
			}
			slog.Info("config reloaded", "path", w.path)
		case err, ok := <-w.watch.Errors:
			if !ok {
				return
			}
			slog.Warn("config watcher error", "error", err)
		}
	}
}

// Close stops the watcher.
func (w *Watcher) Close() error {
	return w.watch.Close()
}
