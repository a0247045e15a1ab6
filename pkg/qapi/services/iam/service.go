// Package iam verifies bearer tokens of the report API.
package iam

import (
	"errors"
	"fmt"

	"github.com/golang-jwt/jwt/v5"
)

var ErrUnauthorized = errors.New("authentication required")

// Principal is the verified subject of a token.
type Principal struct {
	Subject string
	Name    string
}

// IAMService verifies HS256 tokens. A service without a secret accepts every
// request.
type IAMService struct {
	secret   []byte
	audience string
}

func NewIAMService(secret, audience string) *IAMService {
	return &IAMService{secret: []byte(secret), audience: audience}
}

// Enabled reports whether requests must carry a token.
func (s *IAMService) Enabled() bool {
	return s != nil && len(s.secret) > 0
}

// ValidateToken verifies signature, expiry and audience.
func (s *IAMService) ValidateToken(tokenString string) (*Principal, error) {
	opts := []jwt.ParserOption{jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()})}
	if s.audience != "" {
		opts = append(opts, jwt.WithAudience(s.audience))
	}
	claims := jwt.MapClaims{}
	_, err := jwt.ParseWithClaims(tokenString, claims, func(*jwt.Token) (interface{}, error) {
		return s.secret, nil
	}, opts...)
	if err != nil {
		return nil, fmt.Errorf("invalid token: %w", err)
	}
	sub, err := claims.GetSubject()
	if err != nil || sub == "" {
		return nil, errors.New("invalid token: missing subject")
	}
	name, _ := claims["name"].(string)
	return &Principal{Subject: sub, Name: name}, nil
}

// Sign issues a token for subject. It is used by tests and operators to mint
// read tokens.
func (s *IAMService) Sign(subject string, claims jwt.MapClaims) (string, error) {
	mc := jwt.MapClaims{"sub": subject}
	if s.audience != "" {
		mc["aud"] = s.audience
	}
	for k, v := range claims {
		mc[k] = v
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, mc).SignedString(s.secret)
}
