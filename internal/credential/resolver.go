// Package credential supplies the value placed in a provider's auth header:
// static keys pass through, service accounts go through the token Forge.
package credential

import (
	"context"
	"errors"

	"chatbridge/internal/errs"
	"chatbridge/internal/models"
	"chatbridge/internal/provider"
)

// Resolver picks the credential strategy for a policy.
type Resolver struct {
	forge *Forge
}

// NewResolver creates a Resolver. A nil forge gets one with default options.
func NewResolver(forge *Forge) *Resolver {
	if forge == nil {
		forge = NewForge(ForgeOptions{})
	}
	return &Resolver{forge: forge}
}

// Forge returns the token forge backing service-account providers.
func (r *Resolver) Forge() *Forge { return r.forge }

// Resolve returns the auth value for p: the configured key for static-key
// schemes, "" for unauthenticated providers, or a fresh OAuth2 access token.
func (r *Resolver) Resolve(ctx context.Context, p provider.Policy, cred models.Credential) (string, error) {
	switch p.Auth {
	case provider.AuthEmpty:
		return "", nil
	case provider.AuthJWTOAuth2:
		if cred.ServiceAccount == nil {
			return "", errs.Configuration(p.ID, "service_account", "must be provided")
		}
		tok, err := r.forge.Token(ctx, *cred.ServiceAccount)
		if err != nil {
			return "", attribute(err, p.ID)
		}
		return tok, nil
	default:
		return cred.APIKey, nil
	}
}

func attribute(err error, providerID string) error {
	var cfgErr *errs.ConfigurationError
	if errors.As(err, &cfgErr) && cfgErr.Provider == "" {
		cfgErr.Provider = providerID
	}
	var credErr *errs.CredentialError
	if errors.As(err, &credErr) && credErr.Provider == "" {
		credErr.Provider = providerID
	}
	return err
}
