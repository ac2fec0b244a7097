// Package gate implements the edge access decision: a cheap, presence-only
// check that runs before any handler. It never validates the artifact; every
// protected handler verifies the session again.
package gate

import (
	"net/url"
	"strings"
)

// Decision is the outcome of classifying one request.
type Decision int

const (
	Allow Decision = iota
	RedirectToLogin
	RedirectToApp
)

func (d Decision) String() string {
	switch d {
	case Allow:
		return "allow"
	case RedirectToLogin:
		return "redirect_login"
	case RedirectToApp:
		return "redirect_app"
	default:
		return "unknown"
	}
}

// RedirectParam carries the originally requested path to the login page.
const RedirectParam = "redirectedFrom"

var (
	defaultPublicPaths = []string{"/", "/auth/login", "/auth/signup"}

	// Handled by their own verification, or carrying no user data.
	defaultPassThroughPrefixes = []string{
		"/api/",
		"/health",
		"/metrics",
		"/swagger/",
		"/_next/",
		"/static/",
		"/assets/",
		"/favicon.ico",
		"/robots.txt",
	}
)

// Config lists the route classes. Exempt paths bypass the gate entirely and
// should stay a short, reviewed list.
type Config struct {
	LoginPath           string
	AppPath             string
	PublicPaths         []string
	PassThroughPrefixes []string
	ExemptPaths         []string
}

// Gate classifies paths with map lookups and a short prefix scan.
type Gate struct {
	loginPath   string
	appPath     string
	public      map[string]struct{}
	exempt      map[string]struct{}
	passThrough []string
}

func New(cfg Config) *Gate {
	if cfg.LoginPath == "" {
		cfg.LoginPath = "/auth/login"
	}
	if cfg.AppPath == "" {
		cfg.AppPath = "/dashboard"
	}
	if cfg.PublicPaths == nil {
		cfg.PublicPaths = defaultPublicPaths
	}
	if cfg.PassThroughPrefixes == nil {
		cfg.PassThroughPrefixes = defaultPassThroughPrefixes
	}

	g := &Gate{
		loginPath:   cfg.LoginPath,
		appPath:     cfg.AppPath,
		public:      toSet(cfg.PublicPaths),
		exempt:      toSet(cfg.ExemptPaths),
		passThrough: cfg.PassThroughPrefixes,
	}
	g.public[cfg.LoginPath] = struct{}{}
	return g
}

func toSet(paths []string) map[string]struct{} {
	m := make(map[string]struct{}, len(paths))
	for _, p := range paths {
		m[normalize(p)] = struct{}{}
	}
	return m
}

// normalize drops a trailing slash so "/dashboard/" and "/dashboard" are
// classified alike.
func normalize(p string) string {
	if p == "" {
		return "/"
	}
	if len(p) > 1 {
		p = strings.TrimRight(p, "/")
		if p == "" {
			return "/"
		}
	}
	return p
}

// Decide classifies path given whether a non-empty session cookie was sent.
func (g *Gate) Decide(path string, cookiePresent bool) Decision {
	p := normalize(path)
	if _, ok := g.exempt[p]; ok {
		return Allow
	}
	for _, prefix := range g.passThrough {
		if matchPrefix(path, p, prefix) {
			return Allow
		}
	}
	if _, ok := g.public[p]; ok {
		if cookiePresent {
			return RedirectToApp
		}
		return Allow
	}
	if cookiePresent {
		return Allow
	}
	return RedirectToLogin
}

// matchPrefix treats a prefix ending in "/" as a directory and any other
// prefix as a path segment, so "/health" covers "/health/ready" but not
// "/healthcare".
func matchPrefix(path, normalized, prefix string) bool {
	if strings.HasSuffix(prefix, "/") {
		return strings.HasPrefix(path, prefix) || normalized == strings.TrimRight(prefix, "/")
	}
	return normalized == prefix || strings.HasPrefix(path, prefix+"/")
}

// LoginRedirect returns the login URL remembering the requested path.
func (g *Gate) LoginRedirect(requested string) string {
	v := url.Values{}
	v.Set(RedirectParam, SafeRedirectPath(requested))
	return g.loginPath + "?" + v.Encode()
}

// AppPath is the landing page for signed-in users.
func (g *Gate) AppPath() string { return g.appPath }

// LoginPath is the page unauthenticated users are sent to.
func (g *Gate) LoginPath() string { return g.loginPath }

// IsPublic reports whether path is reachable without a session.
func (g *Gate) IsPublic(path string) bool {
	_, ok := g.public[normalize(path)]
	return ok
}

// ExemptPaths returns the configured exempt list for startup logging.
func (g *Gate) ExemptPaths() []string {
	out := make([]string, 0, len(g.exempt))
	for p := range g.exempt {
		out = append(out, p)
	}
	return out
}

// SafeRedirectPath reduces target to a same-origin absolute path. Anything
// that could leave the origin ("//host", "/\host", absolute URLs) becomes "/".
func SafeRedirectPath(target string) string {
	if target == "" || !strings.HasPrefix(target, "/") {
		return "/"
	}
	if strings.HasPrefix(target, "//") || strings.HasPrefix(target, "/\\") {
		return "/"
	}
	u, err := url.Parse(target)
	if err != nil || u.Scheme != "" || u.Host != "" {
		return "/"
	}
	if strings.ContainsAny(target, "\r\n") {
		return "/"
	}
	return target
}
