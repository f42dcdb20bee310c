package middlewarectx

import (
	"github.com/magabrotheeeer/entitlement-engine/internal/lib/jwt"
)

// TokenParser описывает проверку JWT токена и извлечение claims.
type TokenParser interface {
	ParseToken(tokenStr string) (*jwt.CustomClaims, error)
}
