package service

import (
	"context"
	"crypto/rand"
	"database/sql"
	"errors"
	"fmt"
	"math/big"
	"time"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"

	"github.com/AnchalDevBytes/challan-maker/internal/models"
	appErrors "github.com/AnchalDevBytes/challan-maker/pkg/errors"
	"github.com/AnchalDevBytes/challan-maker/pkg/mailer"
)

type authUserRepository interface {
	FindByEmail(ctx context.Context, email string) (*models.User, error)
	FindByID(ctx context.Context, id string) (*models.User, error)
	UpdatePassword(ctx context.Context, id, passwordHash string, updatedAt time.Time) error
	UpsertPendingSignup(ctx context.Context, pending *models.PendingSignup) error
	FindPendingSignup(ctx context.Context, email string) (*models.PendingSignup, error)
	PromotePendingSignup(ctx context.Context, pending *models.PendingSignup) (*models.User, error)
	UpsertPasswordReset(ctx context.Context, reset *models.PasswordReset) error
	FindPasswordReset(ctx context.Context, email string) (*models.PasswordReset, error)
	DeletePasswordReset(ctx context.Context, email string) error
}

// AuthService provides signup, login and password reset use cases. Session
// issuance and rotation are delegated to the TokenService.
type AuthService struct {
	repo      authUserRepository
	tokens    *TokenService
	mail      mailer.Sender
	validator *validator.Validate
	logger    *zap.Logger
	otpExpiry time.Duration
}

// NewAuthService constructs an AuthService instance.
func NewAuthService(repo authUserRepository, tokens *TokenService, mail mailer.Sender, validate *validator.Validate, logger *zap.Logger, otpExpiry time.Duration) *AuthService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if validate == nil {
		validate = validator.New()
	}
	if otpExpiry <= 0 {
		otpExpiry = 10 * time.Minute
	}
	return &AuthService{repo: repo, tokens: tokens, mail: mail, validator: validate, logger: logger, otpExpiry: otpExpiry}
}

// InitiateSignup stages a new account and emails a verification OTP. The
// account is only created once the OTP is confirmed.
func (s *AuthService) InitiateSignup(ctx context.Context, req models.SignupRequest) error {
	if err := s.validator.Struct(req); err != nil {
		return appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid signup payload")
	}

	if _, err := s.repo.FindByEmail(ctx, req.Email); err == nil {
		return appErrors.Clone(appErrors.ErrConflict, "user already exists")
	} else if !errors.Is(err, sql.ErrNoRows) {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to check existing user")
	}

	passwordHash, err := bcrypt.GenerateFromPassword([]byte(req.Password), bcrypt.DefaultCost)
	if err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to hash password")
	}

	otp, err := generateOTP()
	if err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to generate OTP")
	}
	otpHash, err := bcrypt.GenerateFromPassword([]byte(otp), bcrypt.DefaultCost)
	if err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to hash OTP")
	}

	pending := &models.PendingSignup{
		Email:        req.Email,
		PasswordHash: string(passwordHash),
		OTPHash:      string(otpHash),
		ExpiresAt:    time.Now().UTC().Add(s.otpExpiry),
	}
	if req.Name != "" {
		name := req.Name
		pending.Name = &name
	}

	if err := s.repo.UpsertPendingSignup(ctx, pending); err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to stage signup")
	}

	body := fmt.Sprintf("Your OTP is %s. It is valid for %d minutes.", otp, int(s.otpExpiry.Minutes()))
	if err := s.mail.Send(ctx, req.Email, "Your Signup OTP", body); err != nil {
		return appErrors.Wrap(err, appErrors.ErrEmailDelivery.Code, appErrors.ErrEmailDelivery.Status, "failed to send signup OTP")
	}

	s.logger.Info("signup initiated", zap.String("email", req.Email))
	return nil
}

// VerifySignup confirms the OTP, creates the user and issues a session.
func (s *AuthService) VerifySignup(ctx context.Context, req models.VerifyOTPRequest) (*models.AuthResponse, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid verification payload")
	}

	pending, err := s.repo.FindPendingSignup(ctx, req.Email)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrInvalidOTP, "signup session expired")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load pending signup")
	}

	if bcrypt.CompareHashAndPassword([]byte(pending.OTPHash), []byte(req.OTP)) != nil {
		return nil, appErrors.Clone(appErrors.ErrInvalidOTP, "invalid OTP")
	}
	if time.Now().UTC().After(pending.ExpiresAt) {
		return nil, appErrors.Clone(appErrors.ErrInvalidOTP, "OTP expired")
	}

	user, err := s.repo.PromotePendingSignup(ctx, pending)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create user")
	}

	pair, err := s.tokens.Issue(ctx, user.ID, req.IP)
	if err != nil {
		return nil, err
	}

	s.logger.Info("signup verified", zap.String("user_id", user.ID))
	return authResponse(user, pair), nil
}

// Login authenticates a user and issues a session. Unknown emails, accounts
// without a password (external identity only) and wrong passwords all yield
// the same generic failure.
func (s *AuthService) Login(ctx context.Context, req models.LoginRequest) (*models.AuthResponse, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid login payload")
	}

	user, err := s.repo.FindByEmail(ctx, req.Email)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrInvalidCredentials, "")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to fetch user")
	}

	if user.PasswordHash == nil {
		return nil, appErrors.Clone(appErrors.ErrInvalidCredentials, "")
	}
	if bcrypt.CompareHashAndPassword([]byte(*user.PasswordHash), []byte(req.Password)) != nil {
		return nil, appErrors.Clone(appErrors.ErrInvalidCredentials, "")
	}

	pair, err := s.tokens.Issue(ctx, user.ID, req.IP)
	if err != nil {
		return nil, err
	}

	s.logger.Info("user logged in", zap.String("user_id", user.ID))
	return authResponse(user, pair), nil
}

// ForgotPassword stages a reset OTP. The response never reveals whether the
// email exists.
func (s *AuthService) ForgotPassword(ctx context.Context, req models.ForgotPasswordRequest) error {
	if err := s.validator.Struct(req); err != nil {
		return appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid payload")
	}

	if _, err := s.repo.FindByEmail(ctx, req.Email); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil
		}
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to fetch user")
	}

	otp, err := generateOTP()
	if err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to generate OTP")
	}
	otpHash, err := bcrypt.GenerateFromPassword([]byte(otp), bcrypt.DefaultCost)
	if err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to hash OTP")
	}

	reset := &models.PasswordReset{
		Email:     req.Email,
		OTPHash:   string(otpHash),
		ExpiresAt: time.Now().UTC().Add(s.otpExpiry),
	}
	if err := s.repo.UpsertPasswordReset(ctx, reset); err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to stage password reset")
	}

	body := fmt.Sprintf("Your password reset OTP is %s. It is valid for %d minutes.", otp, int(s.otpExpiry.Minutes()))
	if err := s.mail.Send(ctx, req.Email, "Reset Password OTP", body); err != nil {
		return appErrors.Wrap(err, appErrors.ErrEmailDelivery.Code, appErrors.ErrEmailDelivery.Status, "failed to send reset OTP")
	}

	s.logger.Info("password reset requested", zap.String("email", req.Email))
	return nil
}

// ResetPassword confirms the reset OTP, updates the password hash and kills
// every live session for the user.
func (s *AuthService) ResetPassword(ctx context.Context, req models.ResetPasswordRequest) error {
	if err := s.validator.Struct(req); err != nil {
		return appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid payload")
	}

	reset, err := s.repo.FindPasswordReset(ctx, req.Email)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return appErrors.Clone(appErrors.ErrInvalidOTP, "invalid or expired OTP")
		}
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load password reset")
	}

	if bcrypt.CompareHashAndPassword([]byte(reset.OTPHash), []byte(req.OTP)) != nil {
		return appErrors.Clone(appErrors.ErrInvalidOTP, "invalid OTP")
	}
	if time.Now().UTC().After(reset.ExpiresAt) {
		return appErrors.Clone(appErrors.ErrInvalidOTP, "OTP expired")
	}

	user, err := s.repo.FindByEmail(ctx, req.Email)
	if err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to fetch user")
	}

	newHash, err := bcrypt.GenerateFromPassword([]byte(req.NewPassword), bcrypt.DefaultCost)
	if err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to hash password")
	}

	if err := s.repo.UpdatePassword(ctx, user.ID, string(newHash), time.Now().UTC()); err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to update password")
	}

	if err := s.repo.DeletePasswordReset(ctx, req.Email); err != nil {
		s.logger.Warn("failed to delete consumed password reset", zap.Error(err))
	}
	if err := s.tokens.RevokeAllForUser(ctx, user.ID); err != nil {
		s.logger.Warn("failed to revoke sessions after password reset", zap.Error(err))
	}

	s.logger.Info("password reset completed", zap.String("user_id", user.ID))
	return nil
}

// CurrentUser loads the profile for an authenticated subject id.
func (s *AuthService) CurrentUser(ctx context.Context, userID string) (*models.UserInfo, error) {
	user, err := s.repo.FindByID(ctx, userID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrUnauthorized, "user no longer exists")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load user")
	}
	info := userInfo(user)
	return &info, nil
}

func authResponse(user *models.User, pair *models.TokenPair) *models.AuthResponse {
	return &models.AuthResponse{
		AccessToken:  pair.AccessToken,
		RefreshToken: pair.RefreshToken,
		User:         userInfo(user),
	}
}

func userInfo(user *models.User) models.UserInfo {
	return models.UserInfo{
		ID:     user.ID,
		Email:  user.Email,
		Name:   user.Name,
		Avatar: user.Avatar,
	}
}

func generateOTP() (string, error) {
	n, err := rand.Int(rand.Reader, big.NewInt(900000))
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("%06d", n.Int64()+100000), nil
}
