// Package control implements the control-plane HTTP surface: auth, users,
// quota, redemption, history, and reference-image intake.
package control

import (
	"crypto/sha256"
	"encoding/hex"
	"net/http"

	"github.com/gin-gonic/gin"
	"golang.org/x/crypto/bcrypt"

	"imagegateway/internal/apierr"
	"imagegateway/internal/middleware"
	"imagegateway/internal/store"
)

type AuthHandler struct {
	store      *store.Store
	jwtSecret  string
	tokenTTL   int64
}

func NewAuthHandler(s *store.Store, jwtSecret string, tokenTTLSeconds int64) *AuthHandler {
	return &AuthHandler{store: s, jwtSecret: jwtSecret, tokenTTL: tokenTTLSeconds}
}

type loginRequest struct {
	Username string `json:"username" binding:"required"`
	Password string `json:"password" binding:"required"`
}

// Login compares the client's SHA-256 hex digest against the bcrypt-wrapped
// digest stored server-side.
func (h *AuthHandler) Login(c *gin.Context) {
	var req loginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		apierr.Abort(c, apierr.KindBadRequest, "username and password are required")
		return
	}

	user, err := h.store.GetUserByUsername(req.Username)
	if err != nil {
		apierr.Abort(c, apierr.KindAuthInvalid, "用户名或密码错误")
		return
	}

	if !digestMatches(req.Password, user.PasswordDigest) {
		apierr.Abort(c, apierr.KindAuthInvalid, "用户名或密码错误")
		return
	}

	token, err := middleware.SignToken(h.jwtSecret, user.ID, user.Role, h.tokenTTL)
	if err != nil {
		apierr.Abort(c, apierr.KindInternal, err.Error())
		return
	}

	_ = h.store.LogUsage(user.ID, "login")

	c.JSON(http.StatusOK, gin.H{"token": token, "user": user})
}

// Me returns the authenticated caller's profile.
func (h *AuthHandler) Me(c *gin.Context) {
	user, err := h.store.GetUserByID(middleware.UserID(c))
	if err != nil {
		apierr.Abort(c, apierr.KindNotFound, "user not found")
		return
	}
	c.JSON(http.StatusOK, gin.H{"user": user})
}

// digestMatches compares a client-supplied SHA-256 hex digest of the
// plaintext password against the server's bcrypt hash of that same digest.
// The wire shape stays "client sends hex digest"; the server re-hashes it
// with bcrypt before comparing so the stored value is not a bare SHA-256.
func digestMatches(clientDigest, storedBcryptHash string) bool {
	if !isHexSHA256(clientDigest) {
		return false
	}
	return bcrypt.CompareHashAndPassword([]byte(storedBcryptHash), []byte(clientDigest)) == nil
}

func isHexSHA256(s string) bool {
	if len(s) != sha256.Size*2 {
		return false
	}
	_, err := hex.DecodeString(s)
	return err == nil
}

// HashPasswordDigest wraps a client-style SHA-256 hex digest in bcrypt for
// storage. Used by admin user-create/update.
func HashPasswordDigest(clientDigest string) (string, error) {
	out, err := bcrypt.GenerateFromPassword([]byte(clientDigest), bcrypt.DefaultCost)
	return string(out), err
}
