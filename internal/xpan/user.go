package xpan

import (
	"context"
	"net/http"
	"net/url"
)

// UserInfo returns the account behind the access token.
func (c *Client) UserInfo(ctx context.Context) (*UserInfo, error) {
	return call[UserInfo](ctx, c, &request{
		method:  http.MethodGet,
		service: servicePan,
		path:    "/rest/2.0/xpan/nas",
		params:  url.Values{"method": {"uinfo"}},
	})
}

// Quota returns the account's storage usage.
func (c *Client) Quota(ctx context.Context) (*Quota, error) {
	return call[Quota](ctx, c, &request{
		method:  http.MethodGet,
		service: servicePan,
		path:    "/api/quota",
		params:  url.Values{"checkfree": {"1"}, "checkexpire": {"1"}},
	})
}
