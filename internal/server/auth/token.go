package auth

import (
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/ekurs/phrasevault/internal/server/phrase"
	"github.com/ekurs/phrasevault/internal/shared"
)

// Claims binds a session descriptor to its user and tag. The tag travels as
// the hex identifier; no key material is ever embedded.
type Claims struct {
	jwt.RegisteredClaims
	UserID string
	TagID  string
}

// GenerateDescriptorToken signs a descriptor token for the given session.
func GenerateDescriptorToken(userID string, tagID phrase.Identifier, secretKey []byte, expiresAt time.Time) (string, error) {
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(expiresAt),
		},
		UserID: userID,
		TagID:  tagID.String(),
	})

	tokenString, err := token.SignedString(secretKey)
	if err != nil {
		return "", err
	}

	return tokenString, nil
}

// ParseDescriptorToken verifies the token signature and expiry and returns
// the user and tag it names. Any verification failure collapses into
// shared.ErrInvalidDescriptor; expiry keeps its own sentinel.
func ParseDescriptorToken(tokenString string, secretKey []byte) (string, phrase.Identifier, error) {
	claims := &Claims{}

	token, err := jwt.ParseWithClaims(tokenString, claims, func(t *jwt.Token) (interface{}, error) {
		return secretKey, nil
	})
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return "", phrase.Identifier{}, shared.ErrTimeoutExceeded
		}
		return "", phrase.Identifier{}, shared.ErrInvalidDescriptor
	}

	if !token.Valid {
		return "", phrase.Identifier{}, shared.ErrInvalidDescriptor
	}

	tagID, err := phrase.ParseIdentifier(claims.TagID)
	if err != nil {
		return "", phrase.Identifier{}, shared.ErrInvalidDescriptor
	}

	return claims.UserID, tagID, nil
}
