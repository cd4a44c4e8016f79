package handlers

import (
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"medprep/api/internal/models"
	"medprep/api/internal/security"
	"medprep/api/internal/service"
)

type userResponse struct {
	ID                 string    `json:"id"`
	Email              string    `json:"email"`
	FirstName          string    `json:"firstName"`
	LastName           string    `json:"lastName"`
	Role               string    `json:"role"`
	MedicalCollegeName string    `json:"medicalCollegeName"`
	Phone              *string   `json:"phone,omitempty"`
	MMBSPassingYear    *string   `json:"mmbsPassingYear,omitempty"`
	AvatarURL          *string   `json:"avatarURL,omitempty"`
	IsEmailVerified    bool      `json:"isEmailVerified"`
	IsProfileCompleted bool      `json:"isProfileCompleted"`
	CreatedAt          time.Time `json:"createdAt"`
	UpdatedAt          time.Time `json:"updatedAt"`
}

func toUserResponse(user models.User) userResponse {
	return userResponse{
		ID:                 user.ID,
		Email:              user.Email,
		FirstName:          user.FirstName,
		LastName:           user.LastName,
		Role:               string(user.Role),
		MedicalCollegeName: user.MedicalCollegeName,
		Phone:              user.Phone,
		MMBSPassingYear:    user.MBBSPassingYear,
		AvatarURL:          user.AvatarURL,
		IsEmailVerified:    user.IsEmailVerified,
		IsProfileCompleted: user.IsProfileCompleted,
		CreatedAt:          user.CreatedAt,
		UpdatedAt:          user.UpdatedAt,
	}
}

type sessionResponse struct {
	ID         string     `json:"id"`
	DeviceName string     `json:"deviceName"`
	UserAgent  string     `json:"userAgent,omitempty"`
	IPAddress  string     `json:"ipAddress,omitempty"`
	Status     string     `json:"status"`
	CreatedAt  time.Time  `json:"createdAt"`
	LastSeenAt time.Time  `json:"lastSeenAt"`
	RevokedAt  *time.Time `json:"revokedAt,omitempty"`
}

func toSessionResponses(sessions []models.Session) []sessionResponse {
	out := make([]sessionResponse, 0, len(sessions))
	for _, s := range sessions {
		out = append(out, sessionResponse{
			ID:         s.ID,
			DeviceName: s.DeviceName,
			UserAgent:  s.UserAgent,
			IPAddress:  s.IPAddress,
			Status:     string(s.Status),
			CreatedAt:  s.CreatedAt,
			LastSeenAt: s.LastSeenAt,
			RevokedAt:  s.RevokedAt,
		})
	}
	return out
}

type authResponse struct {
	AccessToken  string            `json:"accessToken"`
	RefreshToken string            `json:"refreshToken"`
	User         userResponse      `json:"user"`
	Sessions     []sessionResponse `json:"sessions"`
}

func toAuthResponse(result service.AuthResult) authResponse {
	return authResponse{
		AccessToken:  result.AccessToken,
		RefreshToken: result.RefreshToken,
		User:         toUserResponse(result.User),
		Sessions:     toSessionResponses(result.Sessions),
	}
}

// respondError translates domain errors into client-visible 4xx responses.
// Anything unclassified is logged and reported as a generic 500 so internal
// details never leak.
func (h HandlerSet) respondError(c *gin.Context, err error) {
	var conflict *service.SessionConflictError
	if errors.As(err, &conflict) {
		c.JSON(http.StatusConflict, gin.H{"error": conflict.Error()})
		return
	}

	switch {
	case errors.Is(err, service.ErrDuplicateEmail):
		c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
	case errors.Is(err, service.ErrNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
	case errors.Is(err, service.ErrInvalidToken),
		errors.Is(err, service.ErrAlreadyVerified),
		errors.Is(err, service.ErrAlreadyCompleted),
		errors.Is(err, service.ErrUnsupportedMedia):
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
	case errors.Is(err, service.ErrInvalidCredentials):
		c.JSON(http.StatusUnauthorized, gin.H{"error": err.Error()})
	case errors.Is(err, service.ErrProfileIncomplete),
		errors.Is(err, service.ErrNotVerified),
		errors.Is(err, service.ErrForbidden):
		c.JSON(http.StatusForbidden, gin.H{"error": err.Error()})
	case errors.Is(err, service.ErrResendCooldown):
		c.JSON(http.StatusTooManyRequests, gin.H{"error": err.Error()})
	default:
		h.log.Error().Err(err).Str("path", c.Request.URL.Path).Msg("request failed")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal server error"})
	}
}

func currentUser(c *gin.Context) (models.User, bool) {
	userVal, exists := c.Get("current_user")
	if !exists {
		return models.User{}, false
	}
	user, ok := userVal.(models.User)
	return user, ok
}

func accessClaims(c *gin.Context) (security.AccessClaims, bool) {
	claimsVal, exists := c.Get("access_claims")
	if !exists {
		return security.AccessClaims{}, false
	}
	claims, ok := claimsVal.(security.AccessClaims)
	return claims, ok
}
