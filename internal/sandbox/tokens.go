package sandbox

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/qcom/banksession/internal/config"
	"github.com/sirupsen/logrus"
)

const (
	tokenTypeAccess  = "access"
	tokenTypeRefresh = "refresh"
)

var (
	ErrInvalidToken  = errors.New("invalid token")
	ErrTokenMismatch = errors.New("access and refresh tokens belong to different users")
)

// TokenIssuer signs and verifies the HS256 credentials the sandbox hands out.
type TokenIssuer struct {
	secretKey     []byte
	accessExpiry  time.Duration
	refreshExpiry time.Duration
	logger        *logrus.Logger
}

func NewTokenIssuer(cfg *config.JWTConfig, logger *logrus.Logger) (*TokenIssuer, error) {
	secretKey := []byte(cfg.SecretKey)
	if len(secretKey) < 32 {
		return nil, fmt.Errorf("secret key must be at least 32 bytes")
	}

	return &TokenIssuer{
		secretKey:     secretKey,
		accessExpiry:  cfg.AccessExpiry,
		refreshExpiry: cfg.RefreshExpiry,
		logger:        logger,
	}, nil
}

type Claims struct {
	Email string `json:"email"`
	Type  string `json:"type"`
	jwt.RegisteredClaims
}

type IssuedToken struct {
	Token     string
	ID        string
	ExpiresAt time.Time
}

func (s *TokenIssuer) sign(userID, email, tokenType string, expiry time.Duration) (*IssuedToken, error) {
	now := time.Now()
	jti := uuid.New().String()

	claims := &Claims{
		Email: email,
		Type:  tokenType,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   userID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(expiry)),
			ID:        jti,
		},
	}

	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.secretKey)
	if err != nil {
		s.logger.WithError(err).Errorf("Failed to sign %s token", tokenType)
		return nil, fmt.Errorf("failed to sign %s token: %w", tokenType, err)
	}
	return &IssuedToken{Token: signed, ID: jti, ExpiresAt: claims.ExpiresAt.Time}, nil
}

func (s *TokenIssuer) IssueAccess(userID, email string) (*IssuedToken, error) {
	return s.sign(userID, email, tokenTypeAccess, s.accessExpiry)
}

func (s *TokenIssuer) IssueRefresh(userID, email string) (*IssuedToken, error) {
	return s.sign(userID, email, tokenTypeRefresh, s.refreshExpiry)
}

func (s *TokenIssuer) keyFunc(token *jwt.Token) (interface{}, error) {
	if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
		return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
	}
	return s.secretKey, nil
}

func (s *TokenIssuer) parse(tokenString, tokenType string, opts ...jwt.ParserOption) (*Claims, error) {
	token, err := jwt.ParseWithClaims(tokenString, &Claims{}, s.keyFunc, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to parse token: %w", err)
	}

	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid {
		return nil, ErrInvalidToken
	}
	if claims.Type != tokenType {
		return nil, fmt.Errorf("%w: expected %s token", ErrInvalidToken, tokenType)
	}
	return claims, nil
}

// VerifyAccess checks signature, expiry and type of an access token.
func (s *TokenIssuer) VerifyAccess(tokenString string) (*Claims, error) {
	return s.parse(tokenString, tokenTypeAccess)
}

func (s *TokenIssuer) VerifyRefresh(tokenString string) (*Claims, error) {
	return s.parse(tokenString, tokenTypeRefresh)
}

// VerifyRenewal checks a renewal pair. The access token may be expired but must
// carry a valid signature and the same subject as the refresh token.
func (s *TokenIssuer) VerifyRenewal(accessToken, refreshToken string) (*Claims, error) {
	refresh, err := s.VerifyRefresh(refreshToken)
	if err != nil {
		return nil, err
	}

	access, err := s.parse(accessToken, tokenTypeAccess, jwt.WithoutClaimsValidation())
	if err != nil {
		return nil, err
	}
	if access.Subject != refresh.Subject {
		return nil, ErrTokenMismatch
	}
	return refresh, nil
}

func (s *TokenIssuer) AccessExpiry() time.Duration { return s.accessExpiry }

func (s *TokenIssuer) RefreshExpiry() time.Duration { return s.refreshExpiry }
