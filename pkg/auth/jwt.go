package auth

import (
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

var (
	ErrInvalidToken = errors.New("invalid token")
)

const ScopePlayer = "player"

type Claims struct {
	SubjectID int64  `json:"subjectId"`
	Scope     string `json:"scope"`
	jwt.RegisteredClaims
}

// Signer issues and verifies player tokens. Secret and lifetime are passed
// in rather than read from global config so tests can build their own.
type Signer struct {
	secret []byte
	expire time.Duration
}

func NewSigner(secret string, expire time.Duration) *Signer {
	return &Signer{secret: []byte(secret), expire: expire}
}

func (s *Signer) GenerateToken(playerID int64) (string, error) {
	claims := Claims{
		SubjectID: playerID,
		Scope:     ScopePlayer,
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(s.expire)),
			IssuedAt:  jwt.NewNumericDate(time.Now()),
			Subject:   ScopePlayer,
		},
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(s.secret)
}

func (s *Signer) ParseToken(tokenString string) (*Claims, error) {
	token, err := jwt.ParseWithClaims(tokenString, &Claims{}, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, ErrInvalidToken
		}
		return s.secret, nil
	})
	if err != nil {
		return nil, err
	}
	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid {
		return nil, ErrInvalidToken
	}
	return claims, nil
}

func (s *Signer) ParsePlayerToken(tokenString string) (*Claims, error) {
	claims, err := s.ParseToken(tokenString)
	if err != nil {
		return nil, err
	}
	if claims.Scope != ScopePlayer || claims.SubjectID == 0 {
		return nil, ErrInvalidToken
	}
	return claims, nil
}
