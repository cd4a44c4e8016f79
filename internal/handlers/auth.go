package handlers

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"medprep/api/internal/models"
	"medprep/api/internal/service"
)

type sessionInfoRequest struct {
	DeviceName string `json:"deviceName" binding:"required"`
	UserAgent  string `json:"userAgent"`
}

func (r *sessionInfoRequest) toInfo() *service.SessionInfo {
	if r == nil {
		return nil
	}
	return &service.SessionInfo{
		DeviceName: r.DeviceName,
		UserAgent:  r.UserAgent,
	}
}

type signupRequest struct {
	Email string `json:"email" binding:"required,email"`
}

func (h HandlerSet) Signup(c *gin.Context) {
	var req signupRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	if err := h.auth.Signup(c.Request.Context(), req.Email); err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"message": "verification email sent"})
}

type loginRequest struct {
	Email    string              `json:"email" binding:"required,email"`
	Password string              `json:"password" binding:"required"`
	Session  *sessionInfoRequest `json:"session"`
}

func (h HandlerSet) Login(c *gin.Context) {
	var req loginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	result, err := h.auth.Login(c.Request.Context(), req.Email, req.Password, req.Session.toInfo(), c.ClientIP())
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, toAuthResponse(result))
}

type verifyEmailRequest struct {
	Email   string              `json:"email" binding:"required,email"`
	Token   string              `json:"token" binding:"required"`
	Session *sessionInfoRequest `json:"session"`
}

func (h HandlerSet) VerifyEmail(c *gin.Context) {
	var req verifyEmailRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	result, err := h.auth.VerifyEmail(c.Request.Context(), req.Email, req.Token, req.Session.toInfo(), c.ClientIP())
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, toAuthResponse(result))
}

type completeProfileRequest struct {
	Email              string  `json:"email" binding:"required,email"`
	FirstName          string  `json:"firstName" binding:"required"`
	LastName           string  `json:"lastName" binding:"required"`
	Password           string  `json:"password" binding:"required,min=8"`
	MedicalCollegeName string  `json:"medicalCollegeName" binding:"required"`
	Role               string  `json:"role" binding:"omitempty,oneof=student admin"`
	Phone              *string `json:"phone"`
	MMBSPassingYear    *int    `json:"mmbsPassingYear" binding:"omitempty,gte=1950,lte=2100"`
}

func (h HandlerSet) CompleteProfile(c *gin.Context) {
	claims, ok := accessClaims(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "missing_token"})
		return
	}

	var req completeProfileRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	input := service.CompleteProfileInput{
		Email:              req.Email,
		FirstName:          req.FirstName,
		LastName:           req.LastName,
		Role:               models.UserRole(req.Role),
		MedicalCollegeName: req.MedicalCollegeName,
		Phone:              req.Phone,
		Password:           req.Password,
	}
	if req.MMBSPassingYear != nil {
		year := strconv.Itoa(*req.MMBSPassingYear)
		input.MBBSPassingYear = &year
	}

	user, err := h.auth.CompleteProfile(c.Request.Context(), claims.Subject, input)
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, toUserResponse(user))
}

type emailRequest struct {
	Email string `json:"email" binding:"required,email"`
}

func (h HandlerSet) ForgotPassword(c *gin.Context) {
	var req emailRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	if err := h.auth.SendForgotPassword(c.Request.Context(), req.Email); err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "password reset email sent"})
}

type resetPasswordRequest struct {
	Email       string `json:"email" binding:"required,email"`
	Token       string `json:"token" binding:"required"`
	NewPassword string `json:"newPassword" binding:"required,min=8"`
}

func (h HandlerSet) ResetPassword(c *gin.Context) {
	var req resetPasswordRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	if err := h.auth.ResetPassword(c.Request.Context(), req.Email, req.Token, req.NewPassword); err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "password updated"})
}

type refreshRequest struct {
	RefreshToken string `json:"refreshToken" binding:"required"`
}

func (h HandlerSet) Refresh(c *gin.Context) {
	var req refreshRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	accessToken, err := h.auth.RefreshToken(c.Request.Context(), req.RefreshToken)
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"accessToken": accessToken})
}

func (h HandlerSet) ResendVerification(c *gin.Context) {
	var req emailRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	if err := h.auth.ResendVerificationEmail(c.Request.Context(), req.Email); err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "verification email sent"})
}

func (h HandlerSet) ResendForgotPassword(c *gin.Context) {
	var req emailRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	if err := h.auth.ResendForgotPasswordEmail(c.Request.Context(), req.Email); err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "password reset email sent"})
}

// Logout without a session id terminates every active session of the caller.
func (h HandlerSet) Logout(c *gin.Context) {
	user, ok := currentUser(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "missing_token"})
		return
	}

	if err := h.auth.Logout(c.Request.Context(), user.ID, ""); err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "logged out"})
}

func (h HandlerSet) LogoutSession(c *gin.Context) {
	user, ok := currentUser(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "missing_token"})
		return
	}

	if err := h.auth.Logout(c.Request.Context(), user.ID, c.Param("sessionId")); err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "session terminated"})
}

func (h HandlerSet) TerminateAllSessions(c *gin.Context) {
	user, ok := currentUser(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "missing_token"})
		return
	}

	terminated, err := h.auth.TerminateAllSessions(c.Request.Context(), user.ID)
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "all sessions terminated", "terminatedCount": terminated})
}

func (h HandlerSet) CreateSession(c *gin.Context) {
	user, ok := currentUser(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "missing_token"})
		return
	}

	var req sessionInfoRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	sessions, err := h.auth.CreateSessionForUser(c.Request.Context(), user.ID, *req.toInfo(), c.ClientIP())
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"sessions": toSessionResponses(sessions)})
}

func (h HandlerSet) ListSessions(c *gin.Context) {
	user, ok := currentUser(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "missing_token"})
		return
	}

	sessions, err := h.auth.ListSessions(c.Request.Context(), user.ID)
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"sessions": toSessionResponses(sessions)})
}
