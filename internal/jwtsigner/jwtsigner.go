// Copyright 2026 Cloudgate Authors.
// SPDX-License-Identifier: AGPL-3.0

// Package jwtsigner builds and signs the Google service-account JWT
// bearer assertion (spec.md §4.1).
package jwtsigner

import (
	"fmt"
	"time"

	"github.com/cloudgate/upload-gateway/internal/serviceaccount"

	"github.com/golang-jwt/jwt/v5"
)

// MaxValidity is the hard cap spec.md §4.1 places on the requested
// assertion lifetime.
const MaxValidity = 60 * time.Minute

// Sign builds the standard Google service-account JWT bearer assertion:
// header {"alg":"RS256","typ":"JWT"}, claims {iss, scope, aud, exp, iat},
// RS256-signed with the service account's private key. validity is capped
// to MaxValidity.
func Sign(sa *serviceaccount.ServiceAccount, scope string, validity time.Duration) (string, error) {
	if validity > MaxValidity {
		validity = MaxValidity
	}

	now := time.Now()
	claims := jwt.MapClaims{
		"iss":   sa.ClientEmail,
		"scope": scope,
		"aud":   sa.TokenURI,
		"iat":   now.Unix(),
		"exp":   now.Add(validity).Unix(),
	}

	token := jwt.NewWithClaims(jwt.SigningMethodRS256, claims)
	signed, err := token.SignedString(sa.PrivateKey)
	if err != nil {
		return "", fmt.Errorf("error signing jwt assertion: %w", err)
	}
	return signed, nil
}
