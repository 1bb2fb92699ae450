package auth

import (
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// ClientToken identifies one browser client for the lifetime of its tab.
type ClientToken struct {
	ClientID  string
	Token     string
	ExpiresAt time.Time
}

// Claims represents JWT payload.
type Claims struct {
	ClientID string `json:"cid"`
	jwt.RegisteredClaims
}

// IssueClientToken signs an HS256 token naming clientID.
func IssueClientToken(clientID, issuer, key string, ttl time.Duration, now time.Time) (ClientToken, error) {
	if clientID == "" {
		return ClientToken{}, errors.New("client id required")
	}
	exp := now.Add(ttl)
	claims := Claims{
		ClientID: clientID,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    issuer,
			Subject:   clientID,
			ExpiresAt: jwt.NewNumericDate(exp),
			IssuedAt:  jwt.NewNumericDate(now),
		},
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(key))
	if err != nil {
		return ClientToken{}, err
	}
	return ClientToken{ClientID: clientID, Token: signed, ExpiresAt: exp}, nil
}

// Parse validates a token as of now and returns claims.
func Parse(tokenStr, key, issuer string, now time.Time) (Claims, error) {
	parsed, err := jwt.ParseWithClaims(tokenStr, &Claims{}, func(token *jwt.Token) (interface{}, error) {
		if token.Method != jwt.SigningMethodHS256 {
			return nil, errors.New("unexpected signing method")
		}
		return []byte(key), nil
	}, jwt.WithTimeFunc(func() time.Time { return now }))
	if err != nil {
		return Claims{}, err
	}
	claims, ok := parsed.Claims.(*Claims)
	if !ok || !parsed.Valid {
		return Claims{}, errors.New("invalid token")
	}
	if issuer != "" && claims.Issuer != issuer {
		return Claims{}, errors.New("issuer mismatch")
	}
	if claims.ClientID == "" {
		return Claims{}, errors.New("missing client id")
	}
	return *claims, nil
}
