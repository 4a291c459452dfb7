package proxy

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/dtusecurity/pwned-proxy/internal/access"
	"github.com/dtusecurity/pwned-proxy/internal/audit"
	"github.com/dtusecurity/pwned-proxy/internal/hibp"
	"github.com/dtusecurity/pwned-proxy/internal/models"
	"github.com/dtusecurity/pwned-proxy/internal/ratelimit"

	"github.com/gin-gonic/gin"
	log "github.com/sirupsen/logrus"
	"gorm.io/gorm"
)

// Dispatcher runs the fixed per-request pipeline for every relay route:
// authenticate, throttle, entitlement check, upstream fetch, relay, audit.
type Dispatcher struct {
	db     *gorm.DB
	auth   *access.Authenticator
	authz  *access.Authorizer
	limits *ratelimit.Manager
	client *hibp.Client
	audit  *audit.Logger
}

// NewDispatcher constructs a Dispatcher.
func NewDispatcher(db *gorm.DB, auth *access.Authenticator, authz *access.Authorizer, limits *ratelimit.Manager, client *hibp.Client, auditLogger *audit.Logger) *Dispatcher {
	return &Dispatcher{
		db:     db,
		auth:   auth,
		authz:  authz,
		limits: limits,
		client: client,
		audit:  auditLogger,
	}
}

// Register mounts every relay route on the given router group.
func (d *Dispatcher) Register(r gin.IRouter) {
	for _, route := range routes {
		r.GET(route.Path, d.handle(route))
	}
}

// handle builds the pipeline handler for one route. Exactly one audit
// record is written per request, carrying the final status code.
func (d *Dispatcher) handle(route Route) gin.HandlerFunc {
	return func(c *gin.Context) {
		var key *models.APIKey
		defer func() {
			// A panic unwinds through here before the recovery middleware
			// writes 500, so the outward status is not trustworthy yet.
			if r := recover(); r != nil {
				d.audit.Record(key, route.Name, http.StatusInternalServerError)
				panic(r)
			}
			d.audit.Record(key, route.Name, c.Writer.Status())
		}()

		resolved, errAuth := d.auth.Authenticate(c.Request.Context(), c.Request.Header)
		if errAuth != nil {
			if errors.Is(errAuth, access.ErrInvalidAPIKey) {
				c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid api key"})
				return
			}
			log.WithError(errAuth).Warn("proxy: authentication lookup failed")
			c.JSON(http.StatusInternalServerError, gin.H{"error": "authentication failed"})
			return
		}
		key = resolved
		if route.RequiresKey && key == nil {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "missing api key"})
			return
		}

		if key != nil && !d.throttle(c, key) {
			return
		}

		param := pathParam(c, route.Param)
		target := ""
		switch route.Scope {
		case scopePathDomain:
			if param == "" {
				c.JSON(http.StatusBadRequest, gin.H{"error": "missing domain"})
				return
			}
			target = param
		case scopeEmailDomain:
			domain, errSplit := emailDomain(param)
			if errSplit != nil {
				c.JSON(http.StatusBadRequest, gin.H{"error": errSplit.Error()})
				return
			}
			target = domain
		case scopePostFilter, scopeNone:
			if route.Param != "" && param == "" {
				c.JSON(http.StatusBadRequest, gin.H{"error": "missing " + route.Param})
				return
			}
			if route.ValidateASCII && !isASCII(param) {
				c.JSON(http.StatusBadRequest, gin.H{"error": "parameter must be ascii"})
				return
			}
		}
		if target != "" {
			errAuthz := d.authz.Authorize(c.Request.Context(), key.ID, target)
			if errAuthz != nil {
				if errors.Is(errAuthz, access.ErrDomainNotAllowed) {
					c.JSON(http.StatusForbidden, gin.H{"error": "domain not allowed"})
					return
				}
				log.WithError(errAuthz).Warn("proxy: entitlement check failed")
				c.JSON(http.StatusInternalServerError, gin.H{"error": "authorization failed"})
				return
			}
		}

		if route.Upstream == "" {
			d.serveGroupNames(c)
			return
		}

		resourcePath := route.Upstream
		if route.Param != "" {
			resourcePath += "/" + url.PathEscape(param)
		}
		var query url.Values
		for _, name := range route.PassQuery {
			if v := c.Query(name); v != "" {
				if query == nil {
					query = url.Values{}
				}
				query.Set(name, v)
			}
		}

		resp, errFetch := d.client.Fetch(c.Request.Context(), resourcePath, query)
		if errFetch != nil {
			d.answerUpstreamError(c, errFetch)
			return
		}

		if route.Scope == scopePostFilter && resp.StatusCode == http.StatusOK {
			d.relayFiltered(c, key, resp)
			return
		}
		hibp.Relay(c, resp)
	}
}

// throttle enforces the per-key quota. It answers 429 with Retry-After and
// returns false when the key is over quota.
func (d *Dispatcher) throttle(c *gin.Context, key *models.APIKey) bool {
	result, errAllow := d.limits.Allow(c.Request.Context(), ratelimit.KeyForDigest(key.KeyDigest))
	if errAllow != nil {
		log.WithError(errAllow).Warn("proxy: rate limit check failed, allowing request")
		return true
	}
	if result.Allowed {
		return true
	}
	retryAfter := int(result.RetryAfter(time.Now()).Seconds())
	if retryAfter < 1 {
		retryAfter = 1
	}
	c.Header("Retry-After", strconv.Itoa(retryAfter))
	c.JSON(http.StatusTooManyRequests, gin.H{"error": "rate limit exceeded"})
	return false
}

// serveGroupNames answers with the full list of group names. Any valid
// credential may call this; the list is not scoped to the caller's group.
func (d *Dispatcher) serveGroupNames(c *gin.Context) {
	var names []string
	errFind := d.db.WithContext(c.Request.Context()).Model(&models.Group{}).
		Order("name ASC").
		Pluck("name", &names).Error
	if errFind != nil {
		log.WithError(errFind).Warn("proxy: list group names failed")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "list group names failed"})
		return
	}
	if names == nil {
		names = []string{}
	}
	c.JSON(http.StatusOK, names)
}

// relayFiltered trims an upstream subscribeddomains payload to the
// caller's entitled domains. The comparison is case insensitive and the
// result may be empty; it is still a 200.
func (d *Dispatcher) relayFiltered(c *gin.Context, key *models.APIKey, resp *hibp.UpstreamResponse) {
	var entries []hibp.SubscribedDomain
	if errDecode := json.Unmarshal(resp.Body, &entries); errDecode != nil {
		log.WithError(errDecode).Warn("proxy: decode subscribeddomains payload failed")
		c.JSON(http.StatusBadGateway, gin.H{"error": "invalid upstream payload"})
		return
	}

	entitled, errLoad := d.authz.EntitledDomains(c.Request.Context(), key.ID)
	if errLoad != nil {
		log.WithError(errLoad).Warn("proxy: load entitlements failed")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "authorization failed"})
		return
	}
	allowed := make(map[string]struct{}, len(entitled))
	for name := range entitled {
		allowed[strings.ToLower(name)] = struct{}{}
	}

	filtered := make([]hibp.SubscribedDomain, 0, len(entries))
	for _, entry := range entries {
		if _, ok := allowed[strings.ToLower(entry.DomainName)]; ok {
			filtered = append(filtered, entry)
		}
	}
	c.JSON(http.StatusOK, filtered)
}

// answerUpstreamError maps fetch failures: a missing shared key is a
// server misconfiguration, a transport failure is a bad gateway. Neither
// fabricates an upstream payload.
func (d *Dispatcher) answerUpstreamError(c *gin.Context, errFetch error) {
	var transportErr *hibp.TransportError
	switch {
	case errors.Is(errFetch, hibp.ErrKeyNotConfigured):
		log.Warn("proxy: upstream api key not configured")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "upstream api key not configured"})
	case errors.As(errFetch, &transportErr):
		log.WithError(errFetch).Warn("proxy: upstream unreachable")
		c.JSON(http.StatusBadGateway, gin.H{"error": "upstream unreachable"})
	default:
		log.WithError(errFetch).Warn("proxy: upstream fetch failed")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "upstream fetch failed"})
	}
}

// pathParam reads a route parameter, trimming the leading slash gin keeps
// on wildcard captures.
func pathParam(c *gin.Context, name string) string {
	if name == "" {
		return ""
	}
	return strings.TrimSpace(strings.TrimPrefix(c.Param(name), "/"))
}

// emailDomain extracts the domain part of an email-like parameter: the
// text after the last "@". Non-ASCII input and input without "@" are
// validation failures.
func emailDomain(account string) (string, error) {
	if account == "" {
		return "", errors.New("missing email")
	}
	if !isASCII(account) {
		return "", errors.New("email must be ascii")
	}
	at := strings.LastIndex(account, "@")
	if at < 0 || at == len(account)-1 {
		return "", errors.New("malformed email")
	}
	return account[at+1:], nil
}

// isASCII reports whether s contains only ASCII bytes.
func isASCII(s string) bool {
	for i := 0; i < len(s); i++ {
		if s[i] > 127 {
			return false
		}
	}
	return true
}
