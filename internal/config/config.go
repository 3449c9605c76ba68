// Copyright 2026 Cloudgate Authors.
// SPDX-License-Identifier: AGPL-3.0

package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

type (
	// AppConfig is the top-level config file shape (spec.md §6).
	AppConfig struct {
		Settings Settings  `yaml:"settings" json:"settings"`
		Projects []Project `yaml:"projects" json:"projects"`
	}

	Settings struct {
		Port uint16 `yaml:"port" json:"port"`
	}

	Project struct {
		APIToken            string              `yaml:"api_token" json:"api_token"`
		GoogleStorageTarget GoogleStorageTarget `yaml:"google_storage_target" json:"google_storage_target"`
		SlackLinkDub        *SlackLinkDub       `yaml:"slack_link_dub,omitempty" json:"slack_link_dub,omitempty"`
	}

	GoogleStorageTarget struct {
		CredentialsFile string `yaml:"credentials_file" json:"credentials_file"`
		BucketName      string `yaml:"bucket_name" json:"bucket_name"`
	}

	SlackLinkDub struct {
		Token             string   `yaml:"token" json:"token"`
		Targets           []string `yaml:"targets" json:"targets"`
		QRCode            bool     `yaml:"qr_code" json:"qr_code"`
		DefaultTextBefore string   `yaml:"default_text_before,omitempty" json:"default_text_before,omitempty"`
	}
)

// Load reads, extension-dispatches, and validates the config file at path.
func Load(path string) (*AppConfig, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("error reading config file: %w", err)
	}

	var cfg AppConfig
	switch ext := strings.ToLower(filepath.Ext(path)); ext {
	case ".yaml", ".yml":
		if err := yaml.Unmarshal(b, &cfg); err != nil {
			return nil, fmt.Errorf("error parsing yaml config file: %w", err)
		}
	case ".json":
		if err := json.Unmarshal(b, &cfg); err != nil {
			return nil, fmt.Errorf("error parsing json config file: %w", err)
		}
	default:
		return nil, fmt.Errorf("unsupported config file extension %q, expected .yaml, .yml or .json", ext)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return &cfg, nil
}

// Validate enforces the invariants from spec.md §3: at least one tenant,
// non-empty tokens/bucket, an existing regular-file credential, consistent
// Slack config, and (per spec.md §9) unique api_tokens across tenants.
func (c *AppConfig) Validate() error {
	if len(c.Projects) == 0 {
		return fmt.Errorf("at least one project must be configured")
	}

	seenTokens := make(map[string]bool, len(c.Projects))
	for i, p := range c.Projects {
		if err := p.validate(); err != nil {
			return fmt.Errorf("project %d (api_token %q): %w", i, p.APIToken, err)
		}
		if seenTokens[p.APIToken] {
			return fmt.Errorf("duplicate api_token %q across projects", p.APIToken)
		}
		seenTokens[p.APIToken] = true
	}
	return nil
}

func (p *Project) validate() error {
	if p.APIToken == "" {
		return fmt.Errorf("api_token must not be empty")
	}
	if p.GoogleStorageTarget.BucketName == "" {
		return fmt.Errorf("google_storage_target.bucket_name must not be empty")
	}
	if p.GoogleStorageTarget.CredentialsFile == "" {
		return fmt.Errorf("google_storage_target.credentials_file must not be empty")
	}
	info, err := os.Stat(p.GoogleStorageTarget.CredentialsFile)
	if err != nil {
		return fmt.Errorf("error stat'ing credentials_file: %w", err)
	}
	if !info.Mode().IsRegular() {
		return fmt.Errorf("credentials_file %q is not a regular file", p.GoogleStorageTarget.CredentialsFile)
	}
	if p.SlackLinkDub != nil {
		if p.SlackLinkDub.Token == "" {
			return fmt.Errorf("slack_link_dub.token must not be empty")
		}
		if len(p.SlackLinkDub.Targets) == 0 {
			return fmt.Errorf("slack_link_dub.targets must not be empty")
		}
	}
	return nil
}
