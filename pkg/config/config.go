// SPDX-License-Identifier: Apache-2.0

// Package config loads runtime configuration from defaults, an optional
// YAML file, and CIVITAS_ environment variables, in that order.
package config

import (
	"strings"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"

	cerr "github.com/govlegible/civitas/pkg/errors"
)

type Config struct {
	Log       LogConfig       `koanf:"log"`
	Telemetry TelemetryConfig `koanf:"telemetry"`
	Services  ServicesConfig  `koanf:"services"`
	Surface   SurfaceConfig   `koanf:"surface"`
	Evidence  EvidenceConfig  `koanf:"evidence"`
	Cases     CasesConfig     `koanf:"cases"`
	Adapters  AdaptersConfig  `koanf:"adapters"`
}

type LogConfig struct {
	Level  string `koanf:"level"`
	Format string `koanf:"format"` // json, text
}

type TelemetryConfig struct {
	Enabled      bool   `koanf:"enabled"`
	Exporter     string `koanf:"exporter"` // stdout, otlp
	OTLPEndpoint string `koanf:"otlp_endpoint"`
	OTLPInsecure bool   `koanf:"otlp_insecure"`
}

type ServicesConfig struct {
	Dir           string `koanf:"dir"`
	WatchInterval string `koanf:"watch_interval"` // Go duration; empty disables watching
}

type SurfaceConfig struct {
	Name      string `koanf:"name"`
	Version   string `koanf:"version"`
	Transport string `koanf:"transport"` // stdio, http
	Addr      string `koanf:"addr"`
}

type EvidenceConfig struct {
	Store string `koanf:"store"` // memory, sqlite
	Path  string `koanf:"path"`
}

type CasesConfig struct {
	Path string `koanf:"path"`
}

type AdaptersConfig struct {
	LLM     LLMAdapterConfig     `koanf:"llm"`
	Content ContentAdapterConfig `koanf:"content"`
}

type LLMAdapterConfig struct {
	Provider string `koanf:"provider"` // ollama, mock
	Model    string `koanf:"model"`
	BaseURL  string `koanf:"base_url"`
}

type ContentAdapterConfig struct {
	BaseURL string `koanf:"base_url"`
}

// Load reads configuration from path (optional) layered over defaults,
// then applies CIVITAS_ environment overrides
// (CIVITAS_SURFACE_TRANSPORT -> surface.transport).
func Load(path string) (*Config, error) {
	k := koanf.New(".")

	defaults := map[string]any{
		"log.level":               "info",
		"log.format":              "text",
		"telemetry.enabled":       false,
		"telemetry.exporter":      "stdout",
		"telemetry.otlp_insecure": true,
		"services.dir":            "services",
		"services.watch_interval": "2s",
		"surface.name":            "civitas",
		"surface.version":         "0.1.0",
		"surface.transport":       "stdio",
		"surface.addr":            ":8080",
		"evidence.store":          "memory",
		"evidence.path":           "civitas-evidence.db",
		"cases.path":              "civitas-cases.db",
		"adapters.llm.provider":   "ollama",
		"adapters.llm.model":      "qwen2.5-coder:7b-instruct-q5_K_M",
		"adapters.llm.base_url":   "http://localhost:11434",
	}
	for key, value := range defaults {
		if err := k.Set(key, value); err != nil {
			return nil, cerr.New(cerr.CodeInternal, "set config default", err)
		}
	}

	if path != "" {
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
			return nil, cerr.New(cerr.CodeConfiguration, "load config file", err).
				WithContext("path", path)
		}
	}

	if err := k.Load(env.Provider("CIVITAS_", ".", func(s string) string {
		return strings.Replace(strings.ToLower(
			strings.TrimPrefix(s, "CIVITAS_")), "_", ".", -1)
	}), nil); err != nil {
		return nil, cerr.New(cerr.CodeConfiguration, "load environment overrides", err)
	}

	var cfg Config
	if err := k.Unmarshal("", &cfg); err != nil {
		return nil, cerr.New(cerr.CodeConfiguration, "unmarshal config", err)
	}
	return &cfg, nil
}
