package handlers

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"tourbook/sessiond/internal/models"
	"tourbook/sessiond/internal/security"
)

type identityPayload struct {
	Email    string  `json:"email" binding:"required,email"`
	Role     string  `json:"role" binding:"required"`
	Username string  `json:"username"`
	Phone    *string `json:"phone"`
	DOB      *string `json:"dob"`
	Gender   *string `json:"gender"`
	Address  *string `json:"address"`
	Avatar   *string `json:"avatar"`
	Status   *string `json:"status"`
}

func (p identityPayload) toIdentity() (models.Identity, error) {
	role, err := models.ParseRole(p.Role)
	if err != nil {
		return models.Identity{}, err
	}
	return models.Identity{
		Email:    p.Email,
		Role:     role,
		Username: p.Username,
		Phone:    p.Phone,
		DOB:      p.DOB,
		Gender:   p.Gender,
		Address:  p.Address,
		Avatar:   p.Avatar,
		Status:   p.Status,
	}, nil
}

func identityResponse(id models.Identity) gin.H {
	return gin.H{
		"email":    id.Email,
		"role":     id.Role,
		"username": id.Username,
		"phone":    id.Phone,
		"dob":      id.DOB,
		"gender":   id.Gender,
		"address":  id.Address,
		"avatar":   id.Avatar,
		"status":   id.Status,
	}
}

type loginRequest struct {
	Identity identityPayload `json:"identity" binding:"required"`
	Token    string          `json:"token" binding:"required"`
	Remember bool            `json:"remember"`
}

func (h HandlerSet) Login(c *gin.Context) {
	var req loginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	identity, err := req.Identity.toIdentity()
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	h.manager.Login(c.Request.Context(), identity, req.Token, req.Remember)
	c.JSON(http.StatusOK, gin.H{"user": identityResponse(identity), "remember": req.Remember})
}

type logoutRequest struct {
	Role string `json:"role"`
}

func (h HandlerSet) Logout(c *gin.Context) {
	var req logoutRequest
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
	}

	if req.Role != "" {
		role, err := models.ParseRole(req.Role)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		h.manager.Logout(c.Request.Context(), role)
	} else {
		h.manager.Logout(c.Request.Context())
	}

	c.Status(http.StatusNoContent)
}

func (h HandlerSet) Refresh(c *gin.Context) {
	identity := h.manager.RefreshUser(c.Request.Context())
	if identity == nil {
		c.JSON(http.StatusOK, gin.H{"user": nil})
		return
	}
	c.JSON(http.StatusOK, gin.H{"user": identityResponse(*identity)})
}

func (h HandlerSet) Activity(c *gin.Context) {
	h.manager.Touch()
	c.Status(http.StatusNoContent)
}

func (h HandlerSet) Me(c *gin.Context) {
	if h.manager.Loading() {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "session_loading"})
		return
	}

	identity := h.manager.Current()
	if identity == nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthenticated"})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"user":     identityResponse(*identity),
		"remember": h.manager.Remembered(),
	})
}

func (h HandlerSet) Token(c *gin.Context) {
	token := h.manager.Token(c.Request.Context())
	if token == "" {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthenticated"})
		return
	}

	resp := gin.H{"token": token}
	if info, err := security.PeekToken(token); err == nil {
		resp["subject"] = info.Subject
		resp["role"] = info.Role
		if !info.ExpiresAt.IsZero() {
			resp["expiresAt"] = info.ExpiresAt.UTC().Format(time.RFC3339)
		}
	}
	c.JSON(http.StatusOK, resp)
}
