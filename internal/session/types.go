package session

import (
	"context"
	"net/http"
	"time"

	"github.com/qcom/banksession/internal/apiclient"
	"github.com/qcom/banksession/internal/config"
	"github.com/qcom/banksession/internal/metrics"
	"github.com/qcom/banksession/internal/models"
	"github.com/qcom/banksession/internal/service"
)

type State int

const (
	Anonymous State = iota
	Authenticating
	Authenticated
)

func (s State) String() string {
	switch s {
	case Authenticating:
		return "authenticating"
	case Authenticated:
		return "authenticated"
	default:
		return "anonymous"
	}
}

// API is the part of the backend the controller drives. *apiclient.Client
// implements it.
type API interface {
	Login(ctx context.Context, req models.LoginRequest) (*models.LoginResponse, error)
	Register(ctx context.Context, req models.RegisterRequest) (*models.LoginResponse, error)
	RenewToken(ctx context.Context, req models.RenewTokenRequest) (*models.RenewTokenResponse, error)
	Logout(ctx context.Context, req models.LogoutRequest) error
	GetProfile(ctx context.Context) (*models.User, error)
}

var _ API = (*apiclient.Client)(nil)

type Navigator interface {
	Navigate(route string)
}

type NavigatorFunc func(route string)

func (f NavigatorFunc) Navigate(route string) { f(route) }

type nopNavigator struct{}

func (nopNavigator) Navigate(string) {}

// RegistrationPolicy decides what a successful registration does to the session.
type RegistrationPolicy string

const (
	// RegistrationRequiresLogin leaves the session anonymous; the user logs in next.
	RegistrationRequiresLogin RegistrationPolicy = "require-login"
	// RegistrationSignsIn authenticates right away, with the credentials from the
	// registration response or, failing that, a login with the same password.
	RegistrationSignsIn RegistrationPolicy = "sign-in"
)

// Result reports the outcome of an expected-to-fail operation. Error holds a
// message fit for display; Err the underlying failure.
type Result struct {
	Success      bool
	Error        string
	Err          error
	NonRenewable bool
}

const (
	MessagePasswordMismatch  = "Passwords do not match"
	MessageNotRenewable      = "Session cannot be renewed"
	MessageRenewalSuperseded = "Session changed during renewal"
)

// ErrSessionExpired is returned by Authorized when the session was lost while
// preparing the call.
var ErrSessionExpired = &apiclient.APIError{
	Message: "Your session has expired, please log in again",
	Status:  http.StatusUnauthorized,
	Code:    "SESSION_EXPIRED",
}

type Options struct {
	Policy        RegistrationPolicy
	LandingRoute  string
	LoginRoute    string
	LogoutTimeout time.Duration
	// RenewalSkew enables proactive renewal in Authorized when the inspector
	// sees the access credential expire within this window.
	RenewalSkew time.Duration
	Inspector   *service.TokenInspector
	Metrics     *metrics.Metrics
}

func OptionsFromConfig(cfg config.SessionConfig) Options {
	return Options{
		Policy:        RegistrationPolicy(cfg.RegistrationPolicy),
		LandingRoute:  cfg.LandingRoute,
		LoginRoute:    cfg.LoginRoute,
		LogoutTimeout: cfg.LogoutTimeout,
		RenewalSkew:   cfg.RenewalSkew,
		Inspector:     service.NewTokenInspector(),
	}
}
