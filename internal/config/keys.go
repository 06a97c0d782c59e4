package config

import (
	"fmt"
	"os"
	"strconv"
)

type keyType int

const (
	kString keyType = iota
	kInt
)

type keySpec struct {
	key     string
	typ     keyType
	env     string
	apply   func(cfg *Config, v any)
	extract func(cfg Config) any
}

var specs = []keySpec{
	{
		key: "server.port", typ: kInt, env: "HAVEN_SERVER_PORT",
		apply:   func(cfg *Config, v any) { cfg.Server.Port = v.(int) },
		extract: func(cfg Config) any { return cfg.Server.Port },
	},
	{
		key: "ollama.base_url", typ: kString, env: "HAVEN_OLLAMA_BASE_URL",
		apply:   func(cfg *Config, v any) { cfg.Ollama.BaseURL = v.(string) },
		extract: func(cfg Config) any { return cfg.Ollama.BaseURL },
	},
	{
		key: "ollama.router_model", typ: kString, env: "HAVEN_OLLAMA_ROUTER_MODEL",
		apply:   func(cfg *Config, v any) { cfg.Ollama.RouterModel = v.(string) },
		extract: func(cfg Config) any { return cfg.Ollama.RouterModel },
	},
	{
		key: "ollama.casual_model", typ: kString, env: "HAVEN_OLLAMA_CASUAL_MODEL",
		apply:   func(cfg *Config, v any) { cfg.Ollama.CasualModel = v.(string) },
		extract: func(cfg Config) any { return cfg.Ollama.CasualModel },
	},
	{
		key: "ollama.support_model", typ: kString, env: "HAVEN_OLLAMA_SUPPORT_MODEL",
		apply:   func(cfg *Config, v any) { cfg.Ollama.SupportModel = v.(string) },
		extract: func(cfg Config) any { return cfg.Ollama.SupportModel },
	},
	{
		key: "ollama.profile_model", typ: kString, env: "HAVEN_OLLAMA_PROFILE_MODEL",
		apply:   func(cfg *Config, v any) { cfg.Ollama.ProfileModel = v.(string) },
		extract: func(cfg Config) any { return cfg.Ollama.ProfileModel },
	},
	{
		key: "storage.data_dir", typ: kString, env: "HAVEN_STORAGE_DATA_DIR",
		apply:   func(cfg *Config, v any) { cfg.Storage.DataDir = v.(string) },
		extract: func(cfg Config) any { return cfg.Storage.DataDir },
	},
	{
		key: "log.level", typ: kString, env: "HAVEN_LOG_LEVEL",
		apply:   func(cfg *Config, v any) { cfg.Log.Level = v.(string) },
		extract: func(cfg Config) any { return cfg.Log.Level },
	},
}

func applyBackend(cfg *Config, b Backend) error {
	for _, s := range specs {
		switch s.typ {
		case kString:
			v, ok, err := b.GetString(s.key)
			if err != nil {
				return fmt.Errorf("reading %s: %w", s.key, err)
			}
			if ok {
				s.apply(cfg, v)
			}
		case kInt:
			v, ok, err := b.GetInt(s.key)
			if err != nil {
				return fmt.Errorf("reading %s: %w", s.key, err)
			}
			if ok {
				s.apply(cfg, v)
			}
		}
	}
	return nil
}

func applyEnvOverrides(cfg *Config) {
	for _, s := range specs {
		if s.env == "" {
			continue
		}
		raw := os.Getenv(s.env)
		if raw == "" {
			continue
		}
		switch s.typ {
		case kString:
			s.apply(cfg, raw)
		case kInt:
			if i, err := strconv.Atoi(raw); err == nil {
				s.apply(cfg, i)
			} else {
				fmt.Fprintf(os.Stderr, "[WARN] could not parse integer from env var %s=%q: %v. Using default value.\n", s.env, raw, err)
			}
		}
	}
}
