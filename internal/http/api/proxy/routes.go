// Package proxy exposes the credential-gated relay endpoints.
package proxy

// domainScope selects how a route derives the domain it must authorize.
type domainScope int

const (
	// scopeNone skips the entitlement check.
	scopeNone domainScope = iota
	// scopePathDomain authorizes against a domain path parameter.
	scopePathDomain
	// scopeEmailDomain authorizes against the domain part of an email
	// path parameter.
	scopeEmailDomain
	// scopePostFilter calls upstream unfiltered and trims the result to
	// the caller's entitled domains.
	scopePostFilter
)

// Route is one relay endpoint: inbound path, credential requirement,
// entitlement rule, and the upstream resource it maps to.
type Route struct {
	// Name identifies the route in audit records.
	Name string
	// Path is the gin route pattern under the version prefix.
	Path string
	// Param names the path parameter carrying the domain or account.
	Param string
	// RequiresKey rejects anonymous callers with 401 when true.
	RequiresKey bool
	// Scope selects the entitlement rule.
	Scope domainScope
	// Upstream is the upstream resource prefix; the escaped parameter is
	// appended when Param is set. Empty means the route answers locally.
	Upstream string
	// PassQuery lists inbound query parameters forwarded upstream.
	PassQuery []string
	// ValidateASCII rejects non-ASCII parameter values even when the
	// route is otherwise unscoped.
	ValidateASCII bool
}

// routes is the full relay surface. Order matters only for readability;
// every route runs the same pipeline.
var routes = []Route{
	{
		Name:        "breached-domain",
		Path:        "/breacheddomain/:domain",
		Param:       "domain",
		RequiresKey: true,
		Scope:       scopePathDomain,
		Upstream:    "breacheddomain",
	},
	{
		Name:          "breached-account",
		Path:          "/breachedaccount/*account",
		Param:         "account",
		Scope:         scopeNone,
		Upstream:      "breachedaccount",
		ValidateASCII: true,
	},
	{
		Name:        "paste-account",
		Path:        "/pasteaccount/*account",
		Param:       "account",
		RequiresKey: true,
		Scope:       scopeEmailDomain,
		Upstream:    "pasteaccount",
	},
	{
		Name:        "subscribed-domains",
		Path:        "/subscribeddomains",
		RequiresKey: true,
		Scope:       scopePostFilter,
		Upstream:    "subscribeddomains",
	},
	{
		Name:        "stealer-logs-by-email",
		Path:        "/stealerlogsbyemail/*email",
		Param:       "email",
		RequiresKey: true,
		Scope:       scopeEmailDomain,
		Upstream:    "stealerlogsbyemail",
	},
	{
		Name:        "stealer-logs-by-website-domain",
		Path:        "/stealerlogsbywebsitedomain/:domain",
		Param:       "domain",
		RequiresKey: true,
		Scope:       scopePathDomain,
		Upstream:    "stealerlogsbywebsitedomain",
	},
	{
		Name:        "stealer-logs-by-email-domain",
		Path:        "/stealerlogsbyemaildomain/:domain",
		Param:       "domain",
		RequiresKey: true,
		Scope:       scopePathDomain,
		Upstream:    "stealerlogsbyemaildomain",
	},
	{
		Name:      "breaches",
		Path:      "/breaches",
		Scope:     scopeNone,
		Upstream:  "breaches",
		PassQuery: []string{"Domain", "IsSpamList"},
	},
	{
		Name:     "single-breach",
		Path:     "/breach/:name",
		Param:    "name",
		Scope:    scopeNone,
		Upstream: "breach",
	},
	{
		Name:     "latest-breach",
		Path:     "/latestbreach",
		Scope:    scopeNone,
		Upstream: "latestbreach",
	},
	{
		Name:     "data-classes",
		Path:     "/dataclasses",
		Scope:    scopeNone,
		Upstream: "dataclasses",
	},
	{
		Name:        "subscription-status",
		Path:        "/subscription/status",
		RequiresKey: true,
		Scope:       scopeNone,
		Upstream:    "subscription/status",
	},
	{
		Name:        "group-names",
		Path:        "/group-names",
		RequiresKey: true,
		Scope:       scopeNone,
	},
}
