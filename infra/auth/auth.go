// Package auth builds HTTP clients for the routing, solver and geocoding
// services, optionally authenticated with OAuth2 client credentials.
package auth

import (
	"context"
	"net/http"
	"time"

	"golang.org/x/oauth2"
)

// NewHTTPClient returns a client with the given timeout. When conf is
// enabled every request carries a bearer token fetched and refreshed
// through the client credentials flow.
func NewHTTPClient(conf Conf, timeout time.Duration) *http.Client {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	base := &http.Client{Timeout: timeout}
	if !conf.Enabled() {
		return base
	}
	ctx := context.WithValue(context.Background(), oauth2.HTTPClient, base)
	c := conf.toOauth2Config().Client(ctx)
	c.Timeout = timeout
	return c
}
