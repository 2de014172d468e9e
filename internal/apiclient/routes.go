package apiclient

import (
	"path"
	"slices"
	"strings"
)

// Routes maps each backend capability to its path under the base URL.
type Routes struct {
	Login             string
	Register          string
	RenewToken        string
	Logout            string
	Profile           string
	CreateAccount     string
	ListAccounts      string
	GetAccount        string
	DeleteAccount     string
	CreateTransaction string
	Transactions      string
}

var CanonicalRoutes = Routes{
	Login:             "/login",
	Register:          "/register",
	RenewToken:        "/renew-token",
	Logout:            "/logout",
	Profile:           "/profile",
	CreateAccount:     "/create-account",
	ListAccounts:      "/all-accounts",
	GetAccount:        "/account",
	DeleteAccount:     "/delete-account",
	CreateTransaction: "/create-transaction",
	Transactions:      "/transactions",
}

// LegacyRoutes is the naming used by older gateway releases.
var LegacyRoutes = func() Routes {
	r := CanonicalRoutes
	r.ListAccounts = "/get-all-accounts"
	r.GetAccount = "/get-account"
	return r
}()

// routeTable is the single source of endpoint classification: true means the
// route requires the access credential. Both route variants are listed.
var routeTable = map[string]bool{
	"/login":              false,
	"/register":           false,
	"/renew-token":        false,
	"/logout":             true,
	"/profile":            true,
	"/create-account":     true,
	"/all-accounts":       true,
	"/get-all-accounts":   true,
	"/account":            true,
	"/get-account":        true,
	"/delete-account":     true,
	"/create-transaction": true,
	"/transactions":       true,
}

// NormalizePath strips query and fragment, forces a leading slash and cleans
// dot segments and trailing slashes.
func NormalizePath(p string) string {
	if i := strings.IndexAny(p, "?#"); i >= 0 {
		p = p[:i]
	}
	if !strings.HasPrefix(p, "/") {
		p = "/" + p
	}
	return path.Clean(p)
}

// IsProtected reports whether calls to p carry the access credential.
// Paths missing from the route table are treated as protected.
func IsProtected(p string) bool {
	protected, ok := routeTable[NormalizePath(p)]
	if !ok {
		return true
	}
	return protected
}

// PublicRoutes returns the normalized paths that never carry a credential.
func PublicRoutes() []string {
	var out []string
	for p, protected := range routeTable {
		if !protected {
			out = append(out, p)
		}
	}
	slices.Sort(out)
	return out
}
