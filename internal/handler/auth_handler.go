package handler

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/AnchalDevBytes/challan-maker/internal/middleware"
	"github.com/AnchalDevBytes/challan-maker/internal/models"
	"github.com/AnchalDevBytes/challan-maker/pkg/config"
	appErrors "github.com/AnchalDevBytes/challan-maker/pkg/errors"
	"github.com/AnchalDevBytes/challan-maker/pkg/response"
)

const refreshCookieName = "refreshToken"

type authService interface {
	InitiateSignup(ctx context.Context, req models.SignupRequest) error
	VerifySignup(ctx context.Context, req models.VerifyOTPRequest) (*models.AuthResponse, error)
	Login(ctx context.Context, req models.LoginRequest) (*models.AuthResponse, error)
	ForgotPassword(ctx context.Context, req models.ForgotPasswordRequest) error
	ResetPassword(ctx context.Context, req models.ResetPasswordRequest) error
	CurrentUser(ctx context.Context, userID string) (*models.UserInfo, error)
}

type sessionService interface {
	Refresh(ctx context.Context, incomingToken, ipAddress string) (*models.TokenPair, error)
	Revoke(ctx context.Context, token string)
}

// AuthHandler exposes signup, login, refresh and password reset endpoints.
type AuthHandler struct {
	auth   authService
	tokens sessionService
	cfg    config.AuthConfig
}

// NewAuthHandler constructs an AuthHandler instance.
func NewAuthHandler(auth authService, tokens sessionService, cfg config.AuthConfig) *AuthHandler {
	return &AuthHandler{auth: auth, tokens: tokens, cfg: cfg}
}

// Signup stages an account and emails a verification OTP.
func (h *AuthHandler) Signup(c *gin.Context) {
	var req models.SignupRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid request body"))
		return
	}

	if err := h.auth.InitiateSignup(c.Request.Context(), req); err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, gin.H{"message": "OTP sent to email"}, nil)
}

// VerifyOTP completes signup and starts a session.
func (h *AuthHandler) VerifyOTP(c *gin.Context) {
	var req models.VerifyOTPRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid request body"))
		return
	}
	req.IP = c.ClientIP()

	res, err := h.auth.VerifySignup(c.Request.Context(), req)
	if err != nil {
		response.Error(c, err)
		return
	}

	h.setRefreshCookie(c, res.RefreshToken)
	response.Created(c, res)
}

// Login authenticates with email and password and starts a session.
func (h *AuthHandler) Login(c *gin.Context) {
	var req models.LoginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid request body"))
		return
	}
	req.IP = c.ClientIP()

	res, err := h.auth.Login(c.Request.Context(), req)
	if err != nil {
		response.Error(c, err)
		return
	}

	h.setRefreshCookie(c, res.RefreshToken)
	response.JSON(c, http.StatusOK, res, nil)
}

// Refresh rotates the refresh token and returns a new access token. The
// refresh token is read from the httpOnly cookie, with a JSON body fallback
// for non-browser clients.
func (h *AuthHandler) Refresh(c *gin.Context) {
	token, err := c.Cookie(refreshCookieName)
	if err != nil || token == "" {
		var req models.RefreshRequest
		if err := c.ShouldBindJSON(&req); err != nil || req.RefreshToken == "" {
			response.Error(c, appErrors.Clone(appErrors.ErrInvalidToken, "missing refresh token"))
			return
		}
		token = req.RefreshToken
	}

	pair, err := h.tokens.Refresh(c.Request.Context(), token, c.ClientIP())
	if err != nil {
		h.clearRefreshCookie(c)
		response.Error(c, err)
		return
	}

	h.setRefreshCookie(c, pair.RefreshToken)
	response.JSON(c, http.StatusOK, models.RefreshResponse{AccessToken: pair.AccessToken, RefreshToken: pair.RefreshToken}, nil)
}

// Logout revokes the presented refresh token and clears the cookie. It always
// succeeds from the client's point of view.
func (h *AuthHandler) Logout(c *gin.Context) {
	token, _ := c.Cookie(refreshCookieName)
	h.tokens.Revoke(c.Request.Context(), token)
	h.clearRefreshCookie(c)
	response.JSON(c, http.StatusOK, gin.H{"message": "logged out"}, nil)
}

// ForgotPassword emails a reset OTP if the account exists.
func (h *AuthHandler) ForgotPassword(c *gin.Context) {
	var req models.ForgotPasswordRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid request body"))
		return
	}

	if err := h.auth.ForgotPassword(c.Request.Context(), req); err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, gin.H{"message": "if the account exists, an OTP has been sent"}, nil)
}

// ResetPassword sets a new password after OTP verification.
func (h *AuthHandler) ResetPassword(c *gin.Context) {
	var req models.ResetPasswordRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid request body"))
		return
	}

	if err := h.auth.ResetPassword(c.Request.Context(), req); err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, gin.H{"message": "password updated, please login again"}, nil)
}

// Me returns the authenticated user's profile.
func (h *AuthHandler) Me(c *gin.Context) {
	userID, ok := middleware.UserID(c)
	if !ok {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}

	info, err := h.auth.CurrentUser(c.Request.Context(), userID)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, info, nil)
}

func (h *AuthHandler) setRefreshCookie(c *gin.Context, token string) {
	c.SetSameSite(http.SameSiteLaxMode)
	c.SetCookie(refreshCookieName, token, int(h.cfg.RefreshExpiry.Seconds()), "/", h.cfg.CookieDomain, h.cfg.CookieSecure, true)
}

func (h *AuthHandler) clearRefreshCookie(c *gin.Context) {
	c.SetSameSite(http.SameSiteLaxMode)
	c.SetCookie(refreshCookieName, "", -1, "/", h.cfg.CookieDomain, h.cfg.CookieSecure, true)
}
