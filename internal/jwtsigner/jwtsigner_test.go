// Copyright 2026 Cloudgate Authors.
// SPDX-License-Identifier: AGPL-3.0

package jwtsigner_test

import (
	"crypto/rand"
	"crypto/rsa"
	"testing"
	"time"

	"github.com/cloudgate/upload-gateway/internal/jwtsigner"
	"github.com/cloudgate/upload-gateway/internal/serviceaccount"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testServiceAccount(t *testing.T) (*serviceaccount.ServiceAccount, *rsa.PrivateKey) {
	t.Helper()
	key, err := rsa.GenerateKey(rand.Reader, 2048)
	require.NoError(t, err)
	return &serviceaccount.ServiceAccount{
		ClientEmail: "sa@project.iam.gserviceaccount.com",
		TokenURI:    "https://oauth2.googleapis.com/token",
		PrivateKey:  key,
	}, key
}

// TestSignVerifies covers R2: the JWT built by the signer verifies against
// the service account's public key with RS256.
func TestSignVerifies(t *testing.T) {
	sa, key := testServiceAccount(t)

	raw, err := jwtsigner.Sign(sa, "https://www.googleapis.com/auth/devstorage.read_write", time.Minute)
	require.NoError(t, err)

	claims := jwt.MapClaims{}
	token, err := jwt.ParseWithClaims(raw, &claims, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodRSA); !ok {
			return nil, assert.AnError
		}
		return &key.PublicKey, nil
	})
	require.NoError(t, err)
	assert.True(t, token.Valid)

	assert.Equal(t, sa.ClientEmail, claims["iss"])
	assert.Equal(t, sa.TokenURI, claims["aud"])
	assert.Equal(t, "https://www.googleapis.com/auth/devstorage.read_write", claims["scope"])

	iat, _ := claims.GetIssuedAt()
	exp, _ := claims.GetExpirationTime()
	assert.WithinDuration(t, iat.Time.Add(time.Minute), exp.Time, time.Second)
}

func TestSignCapsValidity(t *testing.T) {
	sa, key := testServiceAccount(t)

	raw, err := jwtsigner.Sign(sa, "scope", 10*time.Hour)
	require.NoError(t, err)

	claims := jwt.MapClaims{}
	_, err = jwt.ParseWithClaims(raw, &claims, func(t *jwt.Token) (any, error) {
		return &key.PublicKey, nil
	})
	require.NoError(t, err)

	iat, _ := claims.GetIssuedAt()
	exp, _ := claims.GetExpirationTime()
	assert.WithinDuration(t, iat.Time.Add(jwtsigner.MaxValidity), exp.Time, time.Second)
}
