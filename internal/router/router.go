// Package router binds provider policies to the credential, transport and
// response collaborators and runs one chat call end to end.
package router

import (
	"context"
	"errors"
	"log/slog"

	"chatbridge/internal/credential"
	"chatbridge/internal/errs"
	"chatbridge/internal/models"
	"chatbridge/internal/provider"
	"chatbridge/internal/response"
	"chatbridge/internal/transport"
)

// Notifier receives every error a call returns.
type Notifier func(code, message string, err error)

// Option configures a Router.
type Option func(*Router)

// WithNotifier installs a best-effort error observer.
func WithNotifier(n Notifier) Option {
	return func(r *Router) { r.notify = n }
}

// Router dispatches unified requests to the appropriate provider.
type Router struct {
	registry    *provider.Registry
	credentials *credential.Resolver
	transport   *transport.Client
	responses   *response.Resolver
	notify      Notifier
}

// New constructs a router from its collaborators.
func New(registry *provider.Registry, credentials *credential.Resolver, client *transport.Client, responses *response.Resolver, opts ...Option) *Router {
	r := &Router{
		registry:    registry,
		credentials: credentials,
		transport:   client,
		responses:   responses,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Endpoint is a Router bound to one provider policy.
type Endpoint struct {
	router *Router
	policy provider.Policy
}

// Endpoint returns the endpoint for provider id.
func (r *Router) Endpoint(id string) (*Endpoint, error) {
	p, err := r.registry.Resolve(id)
	if err != nil {
		r.report(err)
		return nil, err
	}
	return &Endpoint{router: r, policy: p}, nil
}

// Chat routes req to the provider named by req.Provider.
func (r *Router) Chat(ctx context.Context, req models.UnifiedChatRequest, onChunk func(string)) (*models.UnifiedChatResponse, error) {
	ep, err := r.Endpoint(req.Provider)
	if err != nil {
		return nil, err
	}
	return ep.Chat(ctx, req, onChunk)
}

// Policy returns the policy the endpoint is bound to.
func (e *Endpoint) Policy() provider.Policy { return e.policy }

// Chat performs one provider call. When req.Stream is set, onChunk receives
// each delta in order and the returned response carries the accumulated text.
func (e *Endpoint) Chat(ctx context.Context, req models.UnifiedChatRequest, onChunk func(string)) (*models.UnifiedChatResponse, error) {
	resp, err := e.chat(ctx, req, onChunk)
	if err != nil {
		// Once ctx has ended any failure is reported as cancellation, since the
		// underlying error is usually a side effect of the aborted exchange.
		if cerr := transport.Cancelled(ctx, err); cerr != nil {
			err = cerr
		}
		e.router.report(err)
		return nil, err
	}
	return resp, nil
}

func (e *Endpoint) chat(ctx context.Context, req models.UnifiedChatRequest, onChunk func(string)) (*models.UnifiedChatResponse, error) {
	p := e.policy
	req.Provider = p.ID

	if err := provider.Validate(req, p); err != nil {
		return nil, err
	}

	auth, err := e.router.credentials.Resolve(ctx, p, req.Credential)
	if err != nil {
		return nil, err
	}

	out, err := provider.Normalize(req, p, auth)
	if err != nil {
		return nil, err
	}

	relay := ""
	if p.Relayable {
		relay = req.Options.RelayURL
	}

	slog.Debug("dispatching chat request",
		"provider", p.ID,
		"model", req.Model,
		"stream", req.Stream,
		"relay", relay != "",
	)

	httpResp, err := e.router.transport.Do(ctx, out, relay)
	if err != nil {
		return nil, attribute(err, p.ID)
	}
	defer httpResp.Body.Close()

	var text string
	if req.Stream {
		text, err = e.router.responses.Stream(ctx, p, httpResp, onChunk)
	} else {
		text, err = e.router.responses.Text(p, httpResp)
	}
	if err != nil {
		return nil, attribute(err, p.ID)
	}
	return &models.UnifiedChatResponse{Text: text}, nil
}

func (r *Router) report(err error) {
	if r.notify == nil || err == nil {
		return
	}
	defer func() {
		if rec := recover(); rec != nil {
			slog.Warn("error notifier panicked", "panic", rec)
		}
	}()
	r.notify(errs.Code(err), err.Error(), err)
}

func attribute(err error, providerID string) error {
	if apiErr, ok := errs.AsAPIError(err); ok && apiErr.Provider == "" {
		apiErr.Provider = providerID
	}
	var cfgErr *errs.ConfigurationError
	if errors.As(err, &cfgErr) && cfgErr.Provider == "" {
		cfgErr.Provider = providerID
	}
	return err
}

// Providers lists the registered provider policies ordered by id.
func (r *Router) Providers() []provider.Policy { return r.registry.List() }
