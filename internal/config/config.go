/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the specific language governing permissions and limitations under the License.
 */

package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strconv"
	"strings"
	"time"

	"github.com/zalando/go-keyring"
	"gopkg.in/yaml.v3"
)

// AppConfig is the user-editable configuration persisted to a YAML file in the user scope.
// Environment variables are treated as read-only overrides at runtime.
//
// config_version: bump when the structure changes in a backward-incompatible way.

type ProjectsConfig struct {
	BaseDir string `yaml:"base_dir"`
	Default string `yaml:"default"`
}

type RenderConfig struct {
	Workers    int      `yaml:"workers"`
	Command    []string `yaml:"command,omitempty"` // argv of the external scene renderer
	TimeoutSec int      `yaml:"timeout_sec"`
}

type BackendConfig struct {
	// DSN of the shared Postgres render ledger; empty disables it.
	DSN string `yaml:"dsn,omitempty"`
}

type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
	Source bool   `yaml:"source"`
	File   string `yaml:"file"`
}

type AppConfig struct {
	ConfigVersion int            `yaml:"config_version"`
	Projects      ProjectsConfig `yaml:"projects"`
	Render        RenderConfig   `yaml:"render"`
	Backend       BackendConfig  `yaml:"backend"`
	Logging       LoggingConfig  `yaml:"logging"`
}

// Defaults returns the application defaults.
func Defaults() AppConfig {
	return AppConfig{
		ConfigVersion: 1,
		Projects:      ProjectsConfig{BaseDir: "/opt/project/projects", Default: "test_project"},
		Render:        RenderConfig{Workers: 1, TimeoutSec: 1800},
		Logging:       LoggingConfig{Level: "info", Format: "console"},
	}
}

// Env var names used as overrides.
const (
	EnvProjectsDir      = "SW_PROJECTS_DIR"
	EnvProject          = "SW_PROJECT"
	EnvRenderWorkers    = "SW_RENDER_WORKERS"
	EnvRenderTimeoutSec = "SW_RENDER_TIMEOUT_SEC"
	EnvPGDSN            = "SW_PG_DSN"
	EnvDatabaseURL      = "DATABASE_URL"
	EnvLogLevel         = "SW_LOG_LEVEL"
	EnvLogFormat        = "SW_LOG_FORMAT"
	EnvLogSource        = "SW_LOG_SOURCE"
	EnvLogFile          = "SW_LOG_FILE"
)

// Providers whose API keys live in the OS keyring.
const (
	ProviderElevenLabs = "elevenlabs"
	ProviderHeyGen     = "heygen"
)

// providerEnv maps each provider to the env var that overrides its keyring entry.
var providerEnv = map[string]string{
	ProviderElevenLabs: "ELEVENLABS_API_KEY",
	ProviderHeyGen:     "HEYGEN_API_KEY",
}

const keyringService = "scenewright"

// ErrUnknownProvider is returned for provider names without a keyring slot.
var ErrUnknownProvider = errors.New("unknown provider")

// tokenStore abstracts keyring, so we can stub in tests.
var tokenStore TokenStore = osKeyring{}

type TokenStore interface {
	Get(service, key string) (string, error)
	Set(service, key, value string) error
	Delete(service, key string) error
}

// osKeyring implements TokenStore using the OS keyring via github.com/zalando/go-keyring.
type osKeyring struct{}

func (osKeyring) Get(service, key string) (string, error) { return keyring.Get(service, key) }
func (osKeyring) Set(service, key, value string) error    { return keyring.Set(service, key, value) }
func (osKeyring) Delete(service, key string) error        { return keyring.Delete(service, key) }

// ConfigPath returns the per-user config file path.
func ConfigPath() (string, error) {
	var base string
	switch runtime.GOOS {
	case "windows":
		base = os.Getenv("AppData")
		if base == "" { // fallback
			base = filepath.Join(os.Getenv("USERPROFILE"), "AppData", "Roaming")
		}
		base = filepath.Join(base, "Scenewright")
	case "darwin":
		base = filepath.Join(os.Getenv("HOME"), "Library", "Application Support", "Scenewright")
	default:
		if x := os.Getenv("XDG_CONFIG_HOME"); x != "" {
			base = filepath.Join(x, "scenewright")
		} else {
			base = filepath.Join(os.Getenv("HOME"), ".config", "scenewright")
		}
	}
	if base == "" {
		return "", errors.New("cannot resolve config directory")
	}
	return filepath.Join(base, "config.yaml"), nil
}

// Load reads the user config file (if present), applies defaults, and merges environment overrides.
// A malformed file is reported; a missing one is not.
func Load() (AppConfig, error) {
	cfg := Defaults()
	path, err := ConfigPath()
	if err != nil {
		return cfg, err
	}
	data, err := os.ReadFile(path)
	switch {
	case err == nil:
		var fileCfg AppConfig
		if err := yaml.Unmarshal(data, &fileCfg); err != nil {
			return cfg, fmt.Errorf("parse %s: %w", path, err)
		}
		mergeInto(&cfg, &fileCfg)
	case !errors.Is(err, os.ErrNotExist):
		return cfg, fmt.Errorf("read config: %w", err)
	}
	applyEnvOverrides(&cfg)
	return cfg, nil
}

// Save writes the user config YAML.
func Save(cfg AppConfig) error {
	path, err := ConfigPath()
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o600)
}

// APIKey returns the key for provider, preferring its env var over the keyring.
// An absent key yields "" and no error.
func APIKey(provider string) (string, error) {
	env, ok := providerEnv[provider]
	if !ok {
		return "", fmt.Errorf("%w: %s", ErrUnknownProvider, provider)
	}
	if v := strings.TrimSpace(os.Getenv(env)); v != "" {
		return v, nil
	}
	v, err := tokenStore.Get(keyringService, provider)
	if errors.Is(err, keyring.ErrNotFound) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("keyring get %s: %w", provider, err)
	}
	return v, nil
}

// SetAPIKey stores key for provider in the keyring; an empty key deletes it.
func SetAPIKey(provider, key string) error {
	if _, ok := providerEnv[provider]; !ok {
		return fmt.Errorf("%w: %s", ErrUnknownProvider, provider)
	}
	if key == "" {
		if err := tokenStore.Delete(keyringService, provider); err != nil && !errors.Is(err, keyring.ErrNotFound) {
			return fmt.Errorf("keyring delete %s: %w", provider, err)
		}
		return nil
	}
	if err := tokenStore.Set(keyringService, provider, key); err != nil {
		return fmt.Errorf("keyring set %s: %w", provider, err)
	}
	return nil
}

// RendererEnv returns KEY=value entries for every provider key that is set,
// for passing to an external renderer process.
func RendererEnv() ([]string, error) {
	var out []string
	for _, p := range []string{ProviderElevenLabs, ProviderHeyGen} {
		v, err := APIKey(p)
		if err != nil {
			return nil, err
		}
		if v != "" {
			out = append(out, providerEnv[p]+"="+v)
		}
	}
	return out, nil
}

func mergeInto(dst *AppConfig, src *AppConfig) {
	if src.ConfigVersion != 0 {
		dst.ConfigVersion = src.ConfigVersion
	}
	if s := strings.TrimSpace(src.Projects.BaseDir); s != "" {
		dst.Projects.BaseDir = s
	}
	if s := strings.TrimSpace(src.Projects.Default); s != "" {
		dst.Projects.Default = s
	}
	if src.Render.Workers > 0 {
		dst.Render.Workers = src.Render.Workers
	}
	if len(src.Render.Command) > 0 {
		dst.Render.Command = append([]string(nil), src.Render.Command...)
	}
	if src.Render.TimeoutSec > 0 {
		dst.Render.TimeoutSec = src.Render.TimeoutSec
	}
	if s := strings.TrimSpace(src.Backend.DSN); s != "" {
		dst.Backend.DSN = s
	}
	if strings.TrimSpace(src.Logging.Level) != "" {
		dst.Logging.Level = strings.ToLower(strings.TrimSpace(src.Logging.Level))
	}
	if strings.TrimSpace(src.Logging.Format) != "" {
		dst.Logging.Format = strings.ToLower(strings.TrimSpace(src.Logging.Format))
	}
	dst.Logging.Source = src.Logging.Source
	if strings.TrimSpace(src.Logging.File) != "" {
		dst.Logging.File = strings.TrimSpace(src.Logging.File)
	}
}

func parseBool(v string) bool {
	lv := strings.ToLower(v)
	return lv == "1" || lv == "true" || lv == "on" || lv == "yes"
}

func applyEnvOverrides(cfg *AppConfig) {
	if v := strings.TrimSpace(os.Getenv(EnvProjectsDir)); v != "" {
		cfg.Projects.BaseDir = v
	}
	if v := strings.TrimSpace(os.Getenv(EnvProject)); v != "" {
		cfg.Projects.Default = v
	}
	if v := strings.TrimSpace(os.Getenv(EnvRenderWorkers)); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			cfg.Render.Workers = n
		}
	}
	if v := strings.TrimSpace(os.Getenv(EnvRenderTimeoutSec)); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			cfg.Render.TimeoutSec = n
		}
	}
	if v := strings.TrimSpace(os.Getenv(EnvPGDSN)); v != "" {
		cfg.Backend.DSN = v
	} else if v := strings.TrimSpace(os.Getenv(EnvDatabaseURL)); v != "" {
		cfg.Backend.DSN = v
	}
	if v := strings.TrimSpace(os.Getenv(EnvLogLevel)); v != "" {
		cfg.Logging.Level = strings.ToLower(v)
	}
	if v := strings.TrimSpace(os.Getenv(EnvLogFormat)); v != "" {
		cfg.Logging.Format = strings.ToLower(v)
	}
	if v := strings.TrimSpace(os.Getenv(EnvLogSource)); v != "" {
		cfg.Logging.Source = parseBool(v)
	}
	if v := strings.TrimSpace(os.Getenv(EnvLogFile)); v != "" {
		cfg.Logging.File = v
	}
}

// EnvOverrideFor returns the env var name if the field is overridden by environment variables.
func EnvOverrideFor(key string) (string, bool) {
	var names []string
	switch key {
	case "projects.base_dir":
		names = []string{EnvProjectsDir}
	case "projects.default":
		names = []string{EnvProject}
	case "render.workers":
		names = []string{EnvRenderWorkers}
	case "render.timeout_sec":
		names = []string{EnvRenderTimeoutSec}
	case "backend.dsn":
		names = []string{EnvPGDSN, EnvDatabaseURL}
	case "logging.level":
		names = []string{EnvLogLevel}
	case "logging.format":
		names = []string{EnvLogFormat}
	case "logging.source":
		names = []string{EnvLogSource}
	case "logging.file":
		names = []string{EnvLogFile}
	}
	for _, n := range names {
		if os.Getenv(n) != "" {
			return n, true
		}
	}
	return "", false
}

// Timeout returns the per-scene render timeout.
func (r RenderConfig) Timeout() time.Duration {
	if r.TimeoutSec <= 0 {
		return time.Duration(Defaults().Render.TimeoutSec) * time.Second
	}
	return time.Duration(r.TimeoutSec) * time.Second
}

// ProjectDir returns <base_dir>/<name>, using the default project when name is empty.
func (c AppConfig) ProjectDir(name string) string {
	if strings.TrimSpace(name) == "" {
		name = c.Projects.Default
	}
	return filepath.Join(c.Projects.BaseDir, name)
}
