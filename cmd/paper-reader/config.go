// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package main

import (
	"fmt"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/pdiddy/paper-reader/internal/vault"
	"github.com/pdiddy/paper-reader/pkg/types"
)

// setDefaults registers every configuration key so that environment
// variables reach viper.Unmarshal.
func setDefaults() {
	defaults := map[string]any{
		"vault.root":                   "vault",
		"vault.dimensions":             0,
		"pipeline.max_concurrent":      4,
		"pipeline.force":               false,
		"pipeline.top_k":               3,
		"pipeline.enable_rag":          true,
		"pipeline.section_separator":   types.DefaultSectionSeparator,
		"pipeline.requests_per_second": 0.0,
		"pipeline.prompts_dir":         "",
		"completion.provider":          "openai",
		"completion.model":             "gpt-4o-mini",
		"completion.api_key":           "",
		"completion.base_url":          "",
		"completion.timeout":           "5m",
		"completion.max_retries":       5,
		"completion.max_tokens":        4096,
		"completion.temperature":       0.2,
		"embedding.provider":           "openai",
		"embedding.model":              "text-embedding-3-small",
		"embedding.api_key":            "",
		"embedding.base_url":           "",
		"embedding.timeout":            "1m",
		"embedding.max_retries":        5,
		"embedding.dimensions":         1536,
		"catalog.max_results":          20,
	}
	for k, v := range defaults {
		viper.SetDefault(k, v)
	}
}

// bindFlags binds command flags to configuration keys, flag name to key.
func bindFlags(cmd *cobra.Command, keys map[string]string) {
	for flag, key := range keys {
		viper.BindPFlag(key, cmd.Flags().Lookup(flag))
	}
}

// loadConfig resolves the configuration from file, environment, flags and
// the secrets directory, in increasing order of precedence for all but
// secrets, which only fill empty API keys.
func loadConfig() (types.Config, error) {
	var cfg types.Config
	if err := viper.Unmarshal(&cfg); err != nil {
		return cfg, fmt.Errorf("decoding configuration: %w", err)
	}
	loadedSecrets.Apply(&cfg)
	return cfg.WithDefaults(), nil
}

// openVault loads the configuration and opens the vault it names.
func openVault() (types.Config, *vault.Store, error) {
	cfg, err := loadConfig()
	if err != nil {
		return cfg, nil, err
	}
	store, err := vault.Open(cfg.Vault.Root, cfg.Vault.Dimensions)
	if err != nil {
		return cfg, nil, err
	}
	return cfg, store, nil
}
