package httpapi

import (
	"errors"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

const (
	callerKey       = "caller_id"
	requestIDHeader = "X-Request-ID"
	// UserIDHeader carries the caller when no JWT secret is configured,
	// e.g. behind a gateway that already authenticated the user.
	UserIDHeader = "X-User-ID"
)

// RequestLogger tags each request with an id and logs it once served.
func RequestLogger(logger *slog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		id := c.GetHeader(requestIDHeader)
		if id == "" {
			id = uuid.NewString()
		}
		c.Header(requestIDHeader, id)

		c.Next()

		status := c.Writer.Status()
		attrs := []any{
			"method", c.Request.Method,
			"route", c.FullPath(),
			"status", status,
			"duration_ms", time.Since(start).Milliseconds(),
			"request_id", id,
		}
		if caller := c.GetString(callerKey); caller != "" {
			attrs = append(attrs, "caller", caller)
		}
		switch {
		case status >= http.StatusInternalServerError:
			logger.ErrorContext(c.Request.Context(), "http request", attrs...)
		case status >= http.StatusBadRequest:
			logger.InfoContext(c.Request.Context(), "http request", attrs...)
		default:
			logger.DebugContext(c.Request.Context(), "http request", attrs...)
		}
	}
}

// Auth resolves the caller. With a secret, a HS256 JWT whose subject is
// the user id is required, from the Authorization header or, for
// browsers opening a websocket, the token query parameter. Without one,
// the X-User-ID header is trusted.
func Auth(secret string) gin.HandlerFunc {
	return func(c *gin.Context) {
		id, err := resolveCaller(c, secret)
		if err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
				"error": gin.H{"kind": "UNAUTHENTICATED", "message": err.Error()},
			})
			return
		}
		c.Set(callerKey, id)
		c.Next()
	}
}

func resolveCaller(c *gin.Context, secret string) (string, error) {
	if secret == "" {
		id := strings.TrimSpace(c.GetHeader(UserIDHeader))
		if id == "" {
			return "", errors.New("X-User-ID header missing")
		}
		return id, nil
	}

	token := c.Query("token")
	if h := c.GetHeader("Authorization"); strings.HasPrefix(h, "Bearer ") {
		token = strings.TrimPrefix(h, "Bearer ")
	}
	if token == "" {
		return "", errors.New("authorization token missing")
	}
	return ParseToken(secret, token)
}

// IssueToken signs a token for userID valid for ttl.
func IssueToken(secret, userID string, ttl time.Duration) (string, error) {
	now := time.Now()
	claims := jwt.RegisteredClaims{
		Subject:   userID,
		Issuer:    "muzz-matching",
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(secret))
}

// ParseToken verifies token and returns its subject.
func ParseToken(secret, token string) (string, error) {
	parsed, err := jwt.ParseWithClaims(token, &jwt.RegisteredClaims{}, func(*jwt.Token) (any, error) {
		return []byte(secret), nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}), jwt.WithExpirationRequired())
	if err != nil {
		return "", errors.New("invalid or expired token")
	}
	sub, err := parsed.Claims.GetSubject()
	if err != nil || strings.TrimSpace(sub) == "" {
		return "", errors.New("token has no subject")
	}
	return sub, nil
}

func caller(c *gin.Context) string {
	return c.GetString(callerKey)
}
