package main

import (
	"context"
	"fmt"
	"os"

	"github.com/fwojciec/relay"
	"github.com/fwojciec/relay/anthropic"
	"github.com/fwojciec/relay/gemini"
	relayjson "github.com/fwojciec/relay/json"
)

// providerConfig is the resolved provider name and API key.
type providerConfig struct {
	name string
	key  string
}

// resolveConfig picks the provider and key. Env var values are passed in so
// env is only read in main.
func resolveConfig(providerFlag, apiKeyFlag, anthropicEnvKey, geminiEnvKey string) (providerConfig, error) {
	name := providerFlag
	if name == "" {
		switch {
		case anthropicEnvKey != "" && geminiEnvKey != "":
			return providerConfig{}, fmt.Errorf("multiple API keys found (ANTHROPIC_API_KEY, GEMINI_API_KEY): use -provider flag to select")
		case anthropicEnvKey != "":
			name = "anthropic"
		case geminiEnvKey != "":
			name = "gemini"
		default:
			return providerConfig{}, fmt.Errorf("no API key found: set ANTHROPIC_API_KEY or GEMINI_API_KEY (or use -provider and -api-key flags)")
		}
	}

	key := apiKeyFlag
	switch name {
	case "anthropic":
		if key == "" {
			key = anthropicEnvKey
		}
		if key == "" {
			return providerConfig{}, fmt.Errorf("ANTHROPIC_API_KEY not set (use -api-key flag or environment variable)")
		}
	case "gemini":
		if key == "" {
			key = geminiEnvKey
		}
		if key == "" {
			return providerConfig{}, fmt.Errorf("GEMINI_API_KEY not set (use -api-key flag or environment variable)")
		}
	default:
		return providerConfig{}, fmt.Errorf("unknown provider %q: must be \"anthropic\" or \"gemini\"", name)
	}
	return providerConfig{name: name, key: key}, nil
}

// resolveProvider constructs the provider selected by resolveConfig.
func resolveProvider(ctx context.Context, providerFlag, apiKeyFlag, anthropicEnvKey, geminiEnvKey string) (relay.Provider, error) {
	cfg, err := resolveConfig(providerFlag, apiKeyFlag, anthropicEnvKey, geminiEnvKey)
	if err != nil {
		return nil, err
	}
	if cfg.name == "anthropic" {
		return anthropic.New(cfg.key), nil
	}
	client, err := gemini.New(ctx, cfg.key)
	if err != nil {
		return nil, fmt.Errorf("gemini: %w", err)
	}
	return client, nil
}

// openReplay loads a recorded event log as a provider.
func openReplay(path string) (*relayjson.Replay, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("replay: %w", err)
	}
	defer f.Close()
	r, err := relayjson.NewReplay(f)
	if err != nil {
		return nil, fmt.Errorf("replay: %w", err)
	}
	return r, nil
}
