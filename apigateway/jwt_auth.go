// Package gateway holds the HTTP middleware shared by the kaos API.
package gateway

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/adonese/kaos/apperr"
	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt"
)

const issuer = "kaos"

var errEmptyKey = errors.New("empty jwt key")

// JWTAuth signs and verifies HS256 bearer tokens.
type JWTAuth struct {
	Key []byte
}

// TokenClaims kaos standard claim
type TokenClaims struct {
	Username string `json:"username"`
	jwt.StandardClaims
}

// GenerateJWT issues a token for username valid for ttl.
func (j *JWTAuth) GenerateJWT(username string, ttl time.Duration) (string, error) {
	if len(j.Key) == 0 {
		return "", errEmptyKey
	}
	now := time.Now().UTC()
	claims := TokenClaims{
		Username: username,
		StandardClaims: jwt.StandardClaims{
			IssuedAt:  now.Unix(),
			ExpiresAt: now.Add(ttl).Unix(),
			Issuer:    issuer,
		},
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(j.Key)
}

// VerifyJWT parses tokenString and checks its signature and expiry.
func (j *JWTAuth) VerifyJWT(tokenString string) (*TokenClaims, error) {
	if len(j.Key) == 0 {
		return nil, errEmptyKey
	}
	token, err := jwt.ParseWithClaims(tokenString, &TokenClaims{}, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return j.Key, nil
	})
	if err != nil {
		return nil, err
	}
	claims, ok := token.Claims.(*TokenClaims)
	if !ok || !token.Valid {
		return nil, errors.New("token is invalid")
	}
	return claims, nil
}

// AuthMiddleware requires a valid "Authorization: Bearer <token>" header and
// stores the token's username under "username".
func (j *JWTAuth) AuthMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		h := strings.TrimSpace(c.GetHeader("Authorization"))
		if h == "" {
			abortUnauthorized(c, "empty header was sent")
			return
		}
		h = strings.TrimSpace(strings.TrimPrefix(h, "Bearer"))

		claims, err := j.VerifyJWT(h)
		var ve *jwt.ValidationError
		switch {
		case errors.As(err, &ve) && ve.Errors&jwt.ValidationErrorExpired != 0:
			abortUnauthorized(c, "Token has expired")
			return
		case err != nil:
			abortUnauthorized(c, "Malformed token")
			return
		}
		c.Set("username", claims.Username)
		c.Next()
	}
}

func abortUnauthorized(c *gin.Context, reason string) {
	e := apperr.WithFields(apperr.ErrUnauthorized, map[string]any{"Authorization": reason})
	c.AbortWithStatusJSON(http.StatusUnauthorized, apperr.Payload(e))
}
