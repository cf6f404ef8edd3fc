package server

import (
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/KlinikX/aione/internal/store"
)

const userKey = "user"

// bearerToken returns the token from "Authorization: Bearer" or ?token=.
// Browsers cannot set headers on a WebSocket handshake, hence the query.
func bearerToken(r *http.Request) string {
	if h := r.Header.Get("Authorization"); h != "" {
		scheme, token, ok := strings.Cut(h, " ")
		if ok && strings.EqualFold(scheme, "Bearer") {
			return strings.TrimSpace(token)
		}
	}
	return r.URL.Query().Get("token")
}

// requireUser rejects requests without a valid token and stores the user
// in the gin context
func requireUser(users store.UserStore, logger *slog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		token := bearerToken(c.Request)
		if token == "" {
			c.Header("WWW-Authenticate", "Bearer")
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"detail": "Not authenticated"})
			return
		}

		user, err := users.UserByToken(c.Request.Context(), token)
		if err != nil {
			if !errors.Is(err, store.ErrNotFound) && !errors.Is(err, store.ErrExpired) {
				logger.Error("Token lookup failed", slog.String("error", err.Error()))
				c.AbortWithStatusJSON(http.StatusServiceUnavailable, gin.H{"detail": "User store unavailable"})
				return
			}
			c.Header("WWW-Authenticate", "Bearer")
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"detail": "Invalid or expired token"})
			return
		}

		c.Set(userKey, user)
		c.Next()
	}
}

func currentUser(c *gin.Context) *store.User {
	if v, ok := c.Get(userKey); ok {
		if u, ok := v.(*store.User); ok {
			return u
		}
	}
	return nil
}
