package control

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"imagegateway/internal/apierr"
	"imagegateway/internal/models"
	"imagegateway/internal/store"
)

type UsersHandler struct {
	store *store.Store
}

func NewUsersHandler(s *store.Store) *UsersHandler {
	return &UsersHandler{store: s}
}

func (h *UsersHandler) List(c *gin.Context) {
	users, err := h.store.ListUsers()
	if err != nil {
		apierr.Abort(c, apierr.KindInternal, err.Error())
		return
	}
	c.JSON(http.StatusOK, gin.H{"users": users})
}

type createUserRequest struct {
	Username string      `json:"username" binding:"required"`
	Password string      `json:"password" binding:"required"`
	Role     models.Role `json:"role" binding:"required"`
	Quota    int64       `json:"quota"`
}

func (h *UsersHandler) Create(c *gin.Context) {
	var req createUserRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		apierr.Abort(c, apierr.KindBadRequest, err.Error())
		return
	}
	if req.Role != models.RoleAdmin && req.Role != models.RoleUser {
		apierr.Abort(c, apierr.KindBadRequest, "role must be admin or user")
		return
	}

	digest, err := HashPasswordDigest(req.Password)
	if err != nil {
		apierr.Abort(c, apierr.KindInternal, err.Error())
		return
	}

	user, err := h.store.CreateUser(req.Username, digest, req.Role, req.Quota)
	if err == store.ErrDuplicate {
		apierr.Abort(c, apierr.KindConflict, "username already exists")
		return
	}
	if err != nil {
		apierr.Abort(c, apierr.KindInternal, err.Error())
		return
	}

	c.JSON(http.StatusOK, gin.H{"success": true, "id": user.ID})
}

type updateUserRequest struct {
	Quota    *int64  `json:"quota"`
	Password *string `json:"password"`
}

func (h *UsersHandler) Update(c *gin.Context) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		apierr.Abort(c, apierr.KindBadRequest, "invalid user id")
		return
	}

	var req updateUserRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		apierr.Abort(c, apierr.KindBadRequest, err.Error())
		return
	}

	var digest *string
	if req.Password != nil {
		hashed, err := HashPasswordDigest(*req.Password)
		if err != nil {
			apierr.Abort(c, apierr.KindInternal, err.Error())
			return
		}
		digest = &hashed
	}

	if err := h.store.UpdateUser(id, req.Quota, digest); err != nil {
		apierr.Abort(c, apierr.KindInternal, err.Error())
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true})
}

func (h *UsersHandler) Delete(c *gin.Context) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		apierr.Abort(c, apierr.KindBadRequest, "invalid user id")
		return
	}

	if err := h.store.DeleteUser(id); err == store.ErrNotFound {
		apierr.Abort(c, apierr.KindNotFound, "user not found")
		return
	} else if err != nil {
		apierr.Abort(c, apierr.KindInternal, err.Error())
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true})
}
