package guard

import (
	"github.com/qcom/banksession/internal/session"
	"github.com/qcom/banksession/internal/signal"
)

// Guard decides whether a view may be entered. It reads the authentication
// signal only; it never touches stored credentials.
type Guard struct {
	authenticated signal.Signal[bool]
	nav           session.Navigator
	loginRoute    string
	landingRoute  string
}

func New(authenticated signal.Signal[bool], nav session.Navigator, loginRoute, landingRoute string) *Guard {
	return &Guard{
		authenticated: authenticated,
		nav:           nav,
		loginRoute:    loginRoute,
		landingRoute:  landingRoute,
	}
}

// ForController builds a guard over ctrl's authentication signal.
func ForController(ctrl *session.Controller, nav session.Navigator, opts session.Options) *Guard {
	login, landing := opts.LoginRoute, opts.LandingRoute
	if login == "" {
		login = "/login"
	}
	if landing == "" {
		landing = "/dashboard"
	}
	return New(ctrl.IsAuthenticated(), nav, login, landing)
}

// RequireAuth allows entry to a protected view. Anonymous callers are sent to
// the login view.
func (g *Guard) RequireAuth() bool {
	if g.authenticated.Get() {
		return true
	}
	g.nav.Navigate(g.loginRoute)
	return false
}

// RedirectIfAuthenticated returns true when the caller was sent to the landing
// view, which is what login and register views do for a live session.
func (g *Guard) RedirectIfAuthenticated() bool {
	if !g.authenticated.Get() {
		return false
	}
	g.nav.Navigate(g.landingRoute)
	return true
}
