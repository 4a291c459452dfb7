package hibp

import (
	"encoding/json"
	"time"

	"github.com/gin-gonic/gin"
)

// SubscribedDomain mirrors one item of the upstream subscribeddomains
// payload.
type SubscribedDomain struct {
	DomainName                 string `json:"DomainName"`
	PwnCount                   *int64 `json:"PwnCount"`
	PwnCountExcludingSpamLists *int64 `json:"PwnCountExcludingSpamLists"`

	PwnCountExcludingSpamListsAtLastSubscriptionRenewal *int64 `json:"PwnCountExcludingSpamListsAtLastSubscriptionRenewal"`

	NextSubscriptionRenewal *time.Time `json:"NextSubscriptionRenewal"`
}

// Relay writes an upstream response to the outward connection: the status
// code unchanged, the body as JSON when it parses and raw text otherwise,
// and Retry-After as the only forwarded header.
func Relay(c *gin.Context, resp *UpstreamResponse) {
	if resp == nil {
		return
	}
	if retryAfter := resp.Header.Get("Retry-After"); retryAfter != "" {
		c.Header("Retry-After", retryAfter)
	}
	if len(resp.Body) > 0 && json.Valid(resp.Body) {
		c.Data(resp.StatusCode, "application/json", resp.Body)
		return
	}
	c.Data(resp.StatusCode, "text/plain; charset=utf-8", resp.Body)
}
