package middleware

import (
	"crypto/rsa"
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/oakridge/school-admin/identity-access-service/internal/core/domain"
)

const tokenTTL = 24 * time.Hour

// TokenIssuer signs bearer tokens carrying the opaque session id. The role
// claim is informational for clients; authorization always re-reads the live
// session, never the token.
type TokenIssuer struct {
	privateKey *rsa.PrivateKey
}

func NewTokenIssuer(privateKey *rsa.PrivateKey) *TokenIssuer {
	return &TokenIssuer{privateKey: privateKey}
}

func (t *TokenIssuer) Issue(sess domain.Session) (string, error) {
	claims := jwt.MapClaims{
		"sid": sess.ID,
		"iat": time.Now().Unix(),
		"exp": time.Now().Add(tokenTTL).Unix(),
	}
	if sess.Principal != nil {
		claims["sub"] = sess.Principal.ID
	}
	if sess.Role != nil {
		claims["role"] = string(*sess.Role)
	}

	token := jwt.NewWithClaims(jwt.SigningMethodRS256, claims)
	return token.SignedString(t.privateKey)
}

// sessionIDFromToken verifies the token signature and extracts the session id.
func sessionIDFromToken(tokenString string, publicKey *rsa.PublicKey) (string, error) {
	token, err := jwt.Parse(tokenString, func(token *jwt.Token) (any, error) {
		if _, ok := token.Method.(*jwt.SigningMethodRSA); !ok {
			return nil, jwt.ErrSignatureInvalid
		}
		return publicKey, nil
	})
	if err != nil {
		return "", err
	}
	if !token.Valid {
		return "", errors.New("invalid token")
	}

	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok {
		return "", errors.New("invalid token claims")
	}

	sid, ok := claims["sid"].(string)
	if !ok || sid == "" {
		return "", errors.New("missing session id claim")
	}
	return sid, nil
}
