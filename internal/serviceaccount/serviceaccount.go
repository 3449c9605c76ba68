// Copyright 2026 Cloudgate Authors.
// SPDX-License-Identifier: AGPL-3.0

// Package serviceaccount loads and holds the Google service-account
// credential each tenant authenticates to GCS with.
package serviceaccount

import (
	"crypto/rsa"
	"encoding/json"
	"fmt"
	"os"

	"github.com/golang-jwt/jwt/v5"
)

// ServiceAccount is the immutable, per-tenant Google credential parsed from
// a service-account JSON key file (spec.md §3, §6).
type ServiceAccount struct {
	ClientEmail string
	TokenURI    string
	PrivateKey  *rsa.PrivateKey
}

type serviceAccountJSON struct {
	ClientEmail string `json:"client_email"`
	TokenURI    string `json:"token_uri"`
	PrivateKey  string `json:"private_key"`
}

const defaultTokenURI = "https://oauth2.googleapis.com/token"

// Load parses a service-account JSON key file from path.
func Load(path string) (*ServiceAccount, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("error reading service account file: %w", err)
	}

	var raw serviceAccountJSON
	if err := json.Unmarshal(b, &raw); err != nil {
		return nil, fmt.Errorf("error parsing service account json: %w", err)
	}
	if raw.ClientEmail == "" {
		return nil, fmt.Errorf("service account json is missing client_email")
	}
	if raw.PrivateKey == "" {
		return nil, fmt.Errorf("service account json is missing private_key")
	}

	key, err := jwt.ParseRSAPrivateKeyFromPEM([]byte(raw.PrivateKey))
	if err != nil {
		return nil, fmt.Errorf("error parsing private_key pem: %w", err)
	}

	tokenURI := raw.TokenURI
	if tokenURI == "" {
		tokenURI = defaultTokenURI
	}

	return &ServiceAccount{
		ClientEmail: raw.ClientEmail,
		TokenURI:    tokenURI,
		PrivateKey:  key,
	}, nil
}
