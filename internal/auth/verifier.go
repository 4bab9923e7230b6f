// Package auth verifies bearer tokens issued by the platform's identity
// service. This service never issues tokens; it only validates them.
package auth

import (
	"podium/internal/models"

	"github.com/golang-jwt/jwt/v5"
)

// Identity is the authenticated principal extracted from a token.
type Identity struct {
	UserID   uint
	Username string
	Avatar   string
}

// Verifier validates HMAC-signed JWTs against the shared secret and the
// expected issuer/audience.
type Verifier struct {
	secret   []byte
	issuer   string
	audience string
}

// NewVerifier builds a token verifier. Issuer and audience checks are
// enforced only when configured non-empty.
func NewVerifier(secret, issuer, audience string) *Verifier {
	return &Verifier{secret: []byte(secret), issuer: issuer, audience: audience}
}

// Verify parses and validates the token, failing closed on any defect:
// wrong signing method, bad signature, expiry, issuer or audience mismatch,
// or a missing user id claim.
func (v *Verifier) Verify(tokenString string) (*Identity, error) {
	if tokenString == "" {
		return nil, models.NewUnauthorizedError("Authorization required")
	}

	opts := []jwt.ParserOption{jwt.WithValidMethods([]string{"HS256", "HS384", "HS512"})}
	if v.issuer != "" {
		opts = append(opts, jwt.WithIssuer(v.issuer))
	}
	if v.audience != "" {
		opts = append(opts, jwt.WithAudience(v.audience))
	}

	token, err := jwt.Parse(tokenString, func(token *jwt.Token) (interface{}, error) {
		return v.secret, nil
	}, opts...)
	if err != nil || !token.Valid {
		return nil, models.NewUnauthorizedError("Invalid or expired token")
	}

	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok {
		return nil, models.NewUnauthorizedError("Invalid claims")
	}

	userIDFloat, ok := claims["user_id"].(float64)
	if !ok || userIDFloat <= 0 {
		return nil, models.NewUnauthorizedError("Invalid user ID in token")
	}

	identity := &Identity{UserID: uint(userIDFloat)}
	if username, ok := claims["username"].(string); ok {
		identity.Username = username
	}
	if avatar, ok := claims["avatar"].(string); ok {
		identity.Avatar = avatar
	}
	return identity, nil
}
