package models

// TokenKind names one half of a credential pair. The value doubles as the storage key.
type TokenKind string

const (
	AccessToken  TokenKind = "accessToken"
	RefreshToken TokenKind = "refreshToken"
)

// Kinds lists every credential kind a store holds.
var Kinds = []TokenKind{AccessToken, RefreshToken}

type CredentialPair struct {
	AccessToken  string `json:"accessToken"`
	RefreshToken string `json:"refreshToken"`
}

// Renewable reports whether both halves are present.
func (p CredentialPair) Renewable() bool {
	return p.AccessToken != "" && p.RefreshToken != ""
}

type LoginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type RegisterRequest struct {
	Email           string `json:"email"`
	Password        string `json:"password"`
	ConfirmPassword string `json:"confirmPassword,omitempty"`
}

type LoginResponse struct {
	UserID               string `json:"userId"`
	Email                string `json:"email"`
	AccessToken          string `json:"accessToken,omitempty"`
	RefreshToken         string `json:"refreshToken,omitempty"`
	Fingerprint          string `json:"fingerprint,omitempty"`
	AccessTokenDuration  int64  `json:"accessTokenDuration,omitempty"`
	RefreshTokenDuration int64  `json:"refreshTokenDuration,omitempty"`
}

// Credentials returns the token pair carried by the response, possibly empty.
func (r *LoginResponse) Credentials() CredentialPair {
	return CredentialPair{AccessToken: r.AccessToken, RefreshToken: r.RefreshToken}
}

type RenewTokenRequest = CredentialPair

type RenewTokenResponse struct {
	AccessToken         string `json:"accessToken"`
	AccessTokenDuration int64  `json:"accessTokenDuration,omitempty"`
	// RefreshToken is set only by deployments that rotate refresh tokens.
	RefreshToken string `json:"refreshToken,omitempty"`
}

type LogoutRequest struct {
	RefreshToken string `json:"refreshToken,omitempty"`
}

// ErrorBody is the structured error payload returned on failure statuses.
type ErrorBody struct {
	Message string `json:"message"`
	Code    string `json:"code,omitempty"`
}
