package mw

import (
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
)

const (
	authorizationHeader = "Authorization"
	bearerPrefix        = "Bearer"

	// ActorKey is the gin context key holding the authenticated username.
	ActorKey = "actor"
)

var errMissingSubject = errors.New("token has no subject claim")

// ParseActor validates a session bearer token and returns the username it
// carries. The session layer signs tokens with the shared secret; the token
// only identifies the user, roles come from the identity collaborator.
func ParseActor(tokenString, secret string) (string, error) {
	token, err := jwt.Parse(tokenString, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method %v", t.Header["alg"])
		}
		return []byte(secret), nil
	})
	if err != nil {
		return "", err
	}
	subject, err := token.Claims.GetSubject()
	if err != nil || subject == "" {
		return "", errMissingSubject
	}
	return subject, nil
}

// Auth authenticates requests via the Authorization header and stores the
// actor username in the context for the handlers.
func Auth(secret string) gin.HandlerFunc {
	return func(c *gin.Context) {
		header := c.GetHeader(authorizationHeader)
		if header == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "missing authorization header"})
			return
		}

		fields := strings.Fields(header)
		if len(fields) != 2 || !strings.EqualFold(fields[0], bearerPrefix) {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "invalid authorization header"})
			return
		}

		actor, err := ParseActor(fields[1], secret)
		if err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "invalid or expired token"})
			return
		}

		c.Set(ActorKey, actor)
		c.Next()
	}
}

// OptionalAuth extracts the actor when a valid bearer token is present and
// passes the request through untouched otherwise. Read endpoints stay public;
// a recognized actor only widens what the rendered reservations reveal.
func OptionalAuth(secret string) gin.HandlerFunc {
	return func(c *gin.Context) {
		fields := strings.Fields(c.GetHeader(authorizationHeader))
		if len(fields) == 2 && strings.EqualFold(fields[0], bearerPrefix) {
			if actor, err := ParseActor(fields[1], secret); err == nil {
				c.Set(ActorKey, actor)
			}
		}
		c.Next()
	}
}

// Actor returns the authenticated username from the context.
func Actor(c *gin.Context) string {
	return c.GetString(ActorKey)
}
