// Package transport performs the single HTTP exchange of a provider call.
package transport

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"chatbridge/internal/errs"
	"chatbridge/internal/provider"
)

const (
	DefaultHTTPTimeout     = 60 * time.Second
	defaultDialTimeout     = 10 * time.Second
	defaultKeepAlive       = 30 * time.Second
	defaultIdleConnTimeout = 90 * time.Second
)

// NewHTTPClient builds the client used for provider calls. timeout bounds a
// whole non-streaming exchange and only the wait for response headers of a
// streaming one; a zero timeout leaves both to the caller's context.
func NewHTTPClient(timeout time.Duration) *http.Client {
	return &http.Client{
		Timeout:   timeout,
		Transport: newTransport(http.ProxyFromEnvironment, timeout),
	}
}

func newTransport(proxy func(*http.Request) (*url.URL, error), headerTimeout time.Duration) *http.Transport {
	return &http.Transport{
		Proxy:                 proxy,
		ResponseHeaderTimeout: headerTimeout,
		DialContext:           (&net.Dialer{Timeout: defaultDialTimeout, KeepAlive: defaultKeepAlive}).DialContext,
		ForceAttemptHTTP2:     true,
		MaxIdleConns:          50,
		IdleConnTimeout:       defaultIdleConnTimeout,
		TLSHandshakeTimeout:   10 * time.Second,
		ExpectContinueTimeout: 1 * time.Second,
	}
}

// Client sends normalized requests, directly or through a caller-supplied relay.
type Client struct {
	http *http.Client

	mu     sync.Mutex
	relays map[string]*http.Client
}

// New wraps an HTTP client. A nil client gets NewHTTPClient(DefaultHTTPTimeout).
func New(client *http.Client) *Client {
	if client == nil {
		client = NewHTTPClient(DefaultHTTPTimeout)
	}
	return &Client{
		http:   client,
		relays: make(map[string]*http.Client),
	}
}

// Do executes out. relayURL is used as an HTTP proxy for this call when
// non-empty. A context that ends before or during the exchange yields
// *errs.CancelledError; any other failure is a wrapped network error.
// On success the caller owns the response body.
func (c *Client) Do(ctx context.Context, out provider.Outbound, relayURL string) (*http.Response, error) {
	if err := ctx.Err(); err != nil {
		return nil, &errs.CancelledError{Err: err}
	}

	client, err := c.clientFor(relayURL)
	if err != nil {
		return nil, err
	}
	if out.Stream {
		client = withoutTimeout(client)
	}

	method := out.Method
	if method == "" {
		method = http.MethodPost
	}
	req, err := http.NewRequestWithContext(ctx, method, out.URL, bytes.NewReader(out.Body))
	if err != nil {
		return nil, fmt.Errorf("construct request: %w", err)
	}
	for k, vs := range out.Header {
		req.Header[k] = append([]string(nil), vs...)
	}

	resp, err := client.Do(req) //nolint:gosec // URL comes from the provider policy table or operator configuration.
	if err != nil {
		if cerr := Cancelled(ctx, err); cerr != nil {
			return nil, cerr
		}
		return nil, fmt.Errorf("send request: %w", err)
	}
	return resp, nil
}

// Cancelled translates err into *errs.CancelledError when it stems from ctx
// ending; it returns nil otherwise.
func Cancelled(ctx context.Context, err error) error {
	if err == nil {
		return nil
	}
	if errs.IsCancelled(err) {
		return err
	}
	if ctxErr := ctx.Err(); ctxErr != nil {
		return &errs.CancelledError{Err: ctxErr}
	}
	if errors.Is(err, context.Canceled) {
		return &errs.CancelledError{Err: err}
	}
	return nil
}

func (c *Client) clientFor(relayURL string) (*http.Client, error) {
	relayURL = strings.TrimSpace(relayURL)
	if relayURL == "" {
		return c.http, nil
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if client, ok := c.relays[relayURL]; ok {
		return client, nil
	}

	u, err := url.Parse(relayURL)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return nil, errs.Configuration("", "relay_url", fmt.Sprintf("%q is not an absolute URL", relayURL))
	}

	client := &http.Client{
		Timeout:   c.http.Timeout,
		Transport: newTransport(http.ProxyURL(u), c.http.Timeout),
	}
	c.relays[relayURL] = client
	return client, nil
}

// withoutTimeout returns a copy of client sharing its transport but without
// the whole-exchange deadline, so a stream lasts as long as ctx allows.
func withoutTimeout(client *http.Client) *http.Client {
	if client.Timeout == 0 {
		return client
	}
	cp := *client
	cp.Timeout = 0
	return &cp
}
