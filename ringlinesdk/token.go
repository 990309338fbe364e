/* SPDX-License-Identifier: MPL-2.0
 * Copyright 2025 Tejus Pratap <tejzpr@gmail.com>
 *
 * See CONTRIBUTORS.md for full contributor list.
 */

package ringlinesdk

import (
	"fmt"
	"time"

	jose "github.com/go-jose/go-jose/v4"
	"github.com/go-jose/go-jose/v4/jwt"
)

// tokenSignatureAlgorithms are the signature algorithms accepted when
// parsing an access token.
var tokenSignatureAlgorithms = []jose.SignatureAlgorithm{
	jose.HS256,
	jose.RS256,
	jose.ES256,
}

// Identity is the caller identity carried in the access token.
type Identity struct {
	// UserID is the subject claim of the token.
	UserID string

	// Issuer is the token issuer, when present.
	Issuer string

	// Expiry is the token expiry, zero when the token carries none.
	Expiry time.Time
}

// Expired reports whether the token expiry has passed. Tokens without an
// expiry never expire client-side.
func (i Identity) Expired(now time.Time) bool {
	return !i.Expiry.IsZero() && now.After(i.Expiry)
}

// ParseToken extracts the identity claims from a signed access token.
// The signature is not verified here; the coordinator rejects forged tokens
// when the authentication frame is processed server-side.
func ParseToken(accessToken string) (Identity, error) {
	token, err := jwt.ParseSigned(accessToken, tokenSignatureAlgorithms)
	if err != nil {
		return Identity{}, fmt.Errorf("malformed access token: %w", err)
	}

	var claims jwt.Claims
	if err := token.UnsafeClaimsWithoutVerification(&claims); err != nil {
		return Identity{}, fmt.Errorf("failed to read token claims: %w", err)
	}

	if claims.Subject == "" {
		return Identity{}, fmt.Errorf("access token has no subject claim")
	}

	identity := Identity{
		UserID: claims.Subject,
		Issuer: claims.Issuer,
	}
	if claims.Expiry != nil {
		identity.Expiry = claims.Expiry.Time()
	}
	return identity, nil
}
