package web

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"StoryLoom/server/internal/config"
)

type contextKey string

const playerIDKey contextKey = "player_id"

// Claims is the JWT payload carried by every authenticated request.
type Claims struct {
	PlayerID string `json:"player_id"`
	jwt.RegisteredClaims
}

// Auth verifies bearer tokens and resolves the calling player. With
// auth disabled (local development), the player id comes from the
// X-Player-ID header instead.
type Auth struct {
	secret   []byte
	disabled bool
}

// NewAuth builds an authenticator from the auth config section.
func NewAuth(cfg config.AuthConfig) *Auth {
	return &Auth{
		secret:   []byte(cfg.JWTSecret),
		disabled: cfg.Disabled,
	}
}

// IssueToken mints a signed token for a player. Used by the dev login
// endpoint; production deployments issue tokens upstream.
func (a *Auth) IssueToken(playerID string) (string, error) {
	claims := &Claims{
		PlayerID: playerID,
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(24 * time.Hour)),
			IssuedAt:  jwt.NewNumericDate(time.Now()),
		},
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(a.secret)
	if err != nil {
		return "", fmt.Errorf("failed to sign token: %w", err)
	}
	return signed, nil
}

// Middleware authenticates the request and stores the player id in the
// request context.
func (a *Auth) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		playerID, err := a.resolvePlayer(r)
		if err != nil {
			http.Error(w, err.Error(), http.StatusUnauthorized)
			return
		}
		ctx := context.WithValue(r.Context(), playerIDKey, playerID)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func (a *Auth) resolvePlayer(r *http.Request) (string, error) {
	if a.disabled {
		playerID := r.Header.Get("X-Player-ID")
		if playerID == "" {
			return "", fmt.Errorf("missing X-Player-ID header")
		}
		return playerID, nil
	}

	authHeader := r.Header.Get("Authorization")
	if authHeader == "" {
		return "", fmt.Errorf("missing authorization header")
	}
	tokenString := strings.TrimPrefix(authHeader, "Bearer ")
	if tokenString == authHeader {
		return "", fmt.Errorf("invalid authorization header")
	}

	claims := &Claims{}
	token, err := jwt.ParseWithClaims(tokenString, claims, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method")
		}
		return a.secret, nil
	})
	if err != nil || !token.Valid || claims.PlayerID == "" {
		return "", fmt.Errorf("invalid token")
	}
	return claims.PlayerID, nil
}

// PlayerID returns the authenticated player id from the request
// context.
func PlayerID(ctx context.Context) string {
	playerID, _ := ctx.Value(playerIDKey).(string)
	return playerID
}
