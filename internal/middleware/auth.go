// Package middleware carries the bearer-token auth gate and the admin
// role gate, parsing an HS256 bearer token on each request.
package middleware

import (
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"

	"imagegateway/internal/apierr"
	"imagegateway/internal/models"
)

const (
	UserIDKey = "user_id"
	RoleKey   = "user_role"
)

type claims struct {
	Sub  string `json:"sub"`
	Role string `json:"role"`
	jwt.RegisteredClaims
}

// SignToken mints an HS256 bearer token carrying sub and role, expiring
// after ttlSeconds.
func SignToken(secret string, userID int64, role models.Role, ttlSeconds int64) (string, error) {
	now := time.Now()
	c := claims{
		Sub:  strconv.FormatInt(userID, 10),
		Role: string(role),
		RegisteredClaims: jwt.RegisteredClaims{
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(time.Duration(ttlSeconds) * time.Second)),
		},
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, c)
	return token.SignedString([]byte(secret))
}

// Auth validates the bearer token and stashes user id and role in the
// gin context. Missing/malformed headers -> auth_missing; bad signature
// or expiry -> auth_invalid.
func Auth(secret string) gin.HandlerFunc {
	return func(c *gin.Context) {
		header := c.GetHeader("Authorization")
		if header == "" {
			abort(c, apierr.New(apierr.KindAuthMissing, "missing authorization header"))
			return
		}

		parts := strings.SplitN(header, " ", 2)
		if len(parts) != 2 || parts[0] != "Bearer" || strings.TrimSpace(parts[1]) == "" {
			abort(c, apierr.New(apierr.KindAuthMissing, "invalid authorization header format"))
			return
		}

		tokenString := strings.TrimSpace(parts[1])
		parsed, err := jwt.ParseWithClaims(tokenString, &claims{}, func(t *jwt.Token) (interface{}, error) {
			if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
				return nil, jwt.ErrSignatureInvalid
			}
			return []byte(secret), nil
		}, jwt.WithValidMethods([]string{"HS256"}))
		if err != nil || !parsed.Valid {
			abort(c, apierr.New(apierr.KindAuthInvalid, "invalid or expired token"))
			return
		}

		cl, ok := parsed.Claims.(*claims)
		if !ok || cl.Sub == "" {
			abort(c, apierr.New(apierr.KindAuthInvalid, "missing subject claim"))
			return
		}
		userID, err := strconv.ParseInt(cl.Sub, 10, 64)
		if err != nil {
			abort(c, apierr.New(apierr.KindAuthInvalid, "malformed subject claim"))
			return
		}

		c.Set(UserIDKey, userID)
		c.Set(RoleKey, models.Role(cl.Role))
		c.Next()
	}
}

// RequireAdmin gates a route to users whose token role is admin. Must run
// after Auth.
func RequireAdmin() gin.HandlerFunc {
	return func(c *gin.Context) {
		role, _ := c.Get(RoleKey)
		if role != models.RoleAdmin {
			abort(c, apierr.New(apierr.KindForbidden, "admin role required"))
			return
		}
		c.Next()
	}
}

func abort(c *gin.Context, e *apierr.Error) {
	apierr.Abort(c, e.Kind, e.Message)
}

// UserID reads the authenticated user id set by Auth.
func UserID(c *gin.Context) int64 {
	v, _ := c.Get(UserIDKey)
	id, _ := v.(int64)
	return id
}

// Role reads the authenticated role set by Auth.
func Role(c *gin.Context) models.Role {
	v, _ := c.Get(RoleKey)
	role, _ := v.(models.Role)
	return role
}
