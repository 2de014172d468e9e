package sandbox

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/mail"
	"strings"

	"github.com/google/uuid"
	"github.com/qcom/banksession/internal/models"
	"github.com/sirupsen/logrus"
)

const minPasswordLength = 8

type AuthHandlers struct {
	bank                 *Bank
	issuer               *TokenIssuer
	registerIssuesTokens bool
	logger               *logrus.Logger
}

func NewAuthHandlers(bank *Bank, issuer *TokenIssuer, registerIssuesTokens bool, logger *logrus.Logger) *AuthHandlers {
	return &AuthHandlers{
		bank:                 bank,
		issuer:               issuer,
		registerIssuesTokens: registerIssuesTokens,
		logger:               logger,
	}
}

func (h *AuthHandlers) loginResponse(user *models.User) (*models.LoginResponse, error) {
	access, err := h.issuer.IssueAccess(user.ID, user.Email)
	if err != nil {
		return nil, err
	}
	refresh, err := h.issuer.IssueRefresh(user.ID, user.Email)
	if err != nil {
		return nil, err
	}

	return &models.LoginResponse{
		UserID:               user.ID,
		Email:                user.Email,
		AccessToken:          access.Token,
		RefreshToken:         refresh.Token,
		Fingerprint:          uuid.New().String(),
		AccessTokenDuration:  int64(h.issuer.AccessExpiry().Seconds()),
		RefreshTokenDuration: int64(h.issuer.RefreshExpiry().Seconds()),
	}, nil
}

func (h *AuthHandlers) Login(w http.ResponseWriter, r *http.Request) {
	var req models.LoginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondWithError(w, http.StatusBadRequest, "INVALID_REQUEST", "Invalid request body")
		return
	}

	user, err := h.bank.Authenticate(req.Email, req.Password)
	if err != nil {
		respondWithError(w, http.StatusUnauthorized, "INVALID_CREDENTIALS", "Invalid email or password")
		return
	}

	resp, err := h.loginResponse(user)
	if err != nil {
		h.logger.WithError(err).Error("Failed to generate tokens")
		respondWithError(w, http.StatusInternalServerError, "TOKEN_GENERATION_FAILED", "Failed to generate tokens")
		return
	}

	h.logger.WithField("user_id", user.ID).Info("User logged in")
	respondWithJSON(w, http.StatusOK, resp)
}

func (h *AuthHandlers) Register(w http.ResponseWriter, r *http.Request) {
	var req models.RegisterRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondWithError(w, http.StatusBadRequest, "INVALID_REQUEST", "Invalid request body")
		return
	}

	email := strings.TrimSpace(req.Email)
	if _, err := mail.ParseAddress(email); err != nil {
		respondWithError(w, http.StatusBadRequest, "INVALID_EMAIL", "Invalid email address")
		return
	}
	if len(req.Password) < minPasswordLength {
		respondWithError(w, http.StatusBadRequest, "WEAK_PASSWORD", "Password must be at least 8 characters")
		return
	}
	if req.ConfirmPassword != "" && req.ConfirmPassword != req.Password {
		respondWithError(w, http.StatusBadRequest, "PASSWORD_MISMATCH", "Passwords do not match")
		return
	}

	user, err := h.bank.CreateUser(email, req.Password)
	if errors.Is(err, ErrEmailTaken) {
		respondWithError(w, http.StatusConflict, "EMAIL_TAKEN", "Email already registered")
		return
	}
	if err != nil {
		h.logger.WithError(err).Error("Failed to create user")
		respondWithError(w, http.StatusInternalServerError, "USER_CREATION_FAILED", "Failed to create user")
		return
	}

	h.logger.WithField("user_id", user.ID).Info("User registered")

	if !h.registerIssuesTokens {
		respondWithJSON(w, http.StatusCreated, models.LoginResponse{UserID: user.ID, Email: user.Email})
		return
	}

	resp, err := h.loginResponse(user)
	if err != nil {
		h.logger.WithError(err).Error("Failed to generate tokens")
		respondWithError(w, http.StatusInternalServerError, "TOKEN_GENERATION_FAILED", "Failed to generate tokens")
		return
	}
	respondWithJSON(w, http.StatusCreated, resp)
}

func (h *AuthHandlers) RenewToken(w http.ResponseWriter, r *http.Request) {
	var req models.RenewTokenRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondWithError(w, http.StatusBadRequest, "INVALID_REQUEST", "Invalid request body")
		return
	}

	if !req.Renewable() {
		respondWithError(w, http.StatusBadRequest, "MISSING_TOKEN", "Access and refresh tokens are required")
		return
	}

	claims, err := h.issuer.VerifyRenewal(req.AccessToken, req.RefreshToken)
	if err != nil {
		h.logger.WithError(err).Debug("Renewal rejected")
		respondWithError(w, http.StatusUnauthorized, "INVALID_TOKEN", "Invalid refresh token")
		return
	}

	if h.bank.IsRevoked(claims.ID) {
		respondWithError(w, http.StatusUnauthorized, "TOKEN_REVOKED", "Refresh token has been revoked")
		return
	}

	if _, err := h.bank.GetUser(claims.Subject); err != nil {
		respondWithError(w, http.StatusUnauthorized, "INVALID_TOKEN", "Invalid refresh token")
		return
	}

	access, err := h.issuer.IssueAccess(claims.Subject, claims.Email)
	if err != nil {
		h.logger.WithError(err).Error("Failed to generate access token")
		respondWithError(w, http.StatusInternalServerError, "TOKEN_GENERATION_FAILED", "Failed to generate tokens")
		return
	}

	respondWithJSON(w, http.StatusOK, models.RenewTokenResponse{
		AccessToken:         access.Token,
		AccessTokenDuration: int64(h.issuer.AccessExpiry().Seconds()),
	})
}

// Logout accepts a valid access token, a valid refresh token, or both. An
// expired access token is ignored so the refresh token can still be revoked.
func (h *AuthHandlers) Logout(w http.ResponseWriter, r *http.Request) {
	var req models.LogoutRequest
	_ = json.NewDecoder(r.Body).Decode(&req)

	var subject string
	if token, problem := bearerToken(r); problem == "" {
		if claims, err := h.issuer.VerifyAccess(token); err == nil {
			subject = claims.Subject
		}
	}

	if req.RefreshToken != "" {
		refresh, err := h.issuer.VerifyRefresh(req.RefreshToken)
		switch {
		case err != nil:
			h.logger.WithError(err).Debug("Ignoring invalid refresh token on logout")
		case subject != "" && refresh.Subject != subject:
			h.logger.WithField("user_id", subject).Warn("Refresh token on logout belongs to another user")
		default:
			h.bank.Revoke(refresh.ID, refresh.ExpiresAt.Time)
			subject = refresh.Subject
		}
	}

	if subject == "" {
		respondWithError(w, http.StatusUnauthorized, "UNAUTHORIZED", "Invalid token")
		return
	}

	h.logger.WithField("user_id", subject).Info("User logged out")
	respondWithJSON(w, http.StatusOK, map[string]string{
		"message": "Logged out successfully",
	})
}

func (h *AuthHandlers) Profile(w http.ResponseWriter, r *http.Request) {
	claims, ok := claimsFrom(r.Context())
	if !ok {
		respondWithError(w, http.StatusUnauthorized, "UNAUTHORIZED", "Invalid token")
		return
	}

	user, err := h.bank.GetUser(claims.Subject)
	if err != nil {
		respondWithError(w, http.StatusUnauthorized, "UNAUTHORIZED", "Unknown user")
		return
	}
	respondWithJSON(w, http.StatusOK, user)
}
