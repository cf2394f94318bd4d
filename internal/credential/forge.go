package credential

import (
	"context"
	"crypto/rsa"
	"crypto/x509"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"chatbridge/internal/errs"
	"chatbridge/internal/models"
)

const (
	// DefaultTokenURL is the OAuth2 endpoint service-account assertions are exchanged at.
	DefaultTokenURL = "https://oauth2.googleapis.com/token"
	// DefaultSafetyMargin is how long before expiry a cached token is refreshed.
	DefaultSafetyMargin = 5 * time.Minute

	cloudPlatformScope = "https://www.googleapis.com/auth/cloud-platform"
	jwtBearerGrant     = "urn:ietf:params:oauth:grant-type:jwt-bearer"
	assertionLifetime  = time.Hour
	maxErrorBody       = 64 * 1024
)

// Token is a cached OAuth2 access token.
type Token struct {
	Value  string
	Expiry time.Time
}

// validAt reports whether the token may still be used at now.
func (t Token) validAt(now time.Time, margin time.Duration) bool {
	return t.Value != "" && now.Before(t.Expiry.Add(-margin))
}

// ForgeOptions configures a Forge.
type ForgeOptions struct {
	TokenURL     string        // Default DefaultTokenURL.
	SafetyMargin time.Duration // Default DefaultSafetyMargin.
	Client       *http.Client  // Default http.DefaultClient.
}

// Forge mints RS256 assertions for service accounts, exchanges them for
// access tokens and caches the result per account email.
//
// Refreshes are not coordinated: concurrent callers that all observe a stale
// entry each perform an exchange and the last one stored wins.
type Forge struct {
	tokenURL string
	margin   time.Duration
	client   *http.Client

	mu    sync.Mutex
	cache map[string]Token

	// nowFunc is used for testing; defaults to time.Now.
	nowFunc func() time.Time
}

// NewForge creates a Forge.
func NewForge(opts ForgeOptions) *Forge {
	if opts.TokenURL == "" {
		opts.TokenURL = DefaultTokenURL
	}
	if opts.SafetyMargin <= 0 {
		opts.SafetyMargin = DefaultSafetyMargin
	}
	if opts.Client == nil {
		opts.Client = http.DefaultClient
	}

	return &Forge{
		tokenURL: opts.TokenURL,
		margin:   opts.SafetyMargin,
		client:   opts.Client,
		cache:    make(map[string]Token),
		nowFunc:  time.Now,
	}
}

// SetNowFunc overrides the time source (for testing).
func (f *Forge) SetNowFunc(fn func() time.Time) { f.nowFunc = fn }

// TokenURL returns the endpoint assertions are exchanged at; it is also the
// assertion audience.
func (f *Forge) TokenURL() string { return f.tokenURL }

// Token returns a valid access token for sa, exchanging a fresh assertion
// when the cached one is missing or inside the safety margin.
func (f *Forge) Token(ctx context.Context, sa models.ServiceAccount) (string, error) {
	if field := sa.MissingField(); field != "" {
		return "", errs.Configuration("", "service_account."+field, "must be provided")
	}

	key := sa.ClientEmail
	f.mu.Lock()
	cached, ok := f.cache[key]
	f.mu.Unlock()

	now := f.nowFunc()
	if ok && cached.validAt(now, f.margin) {
		return cached.Value, nil
	}

	slog.Debug("refreshing access token", "account", key)

	assertion, err := f.Assertion(sa, now)
	if err != nil {
		return "", err
	}

	tok, err := f.exchange(ctx, assertion, now)
	if err != nil {
		return "", err
	}

	f.mu.Lock()
	f.cache[key] = tok
	f.mu.Unlock()

	return tok.Value, nil
}

// Invalidate drops the cached token for the account email.
func (f *Forge) Invalidate(email string) {
	f.mu.Lock()
	delete(f.cache, email)
	f.mu.Unlock()
}

// Assertion builds the signed JWT for sa issued at iat.
func (f *Forge) Assertion(sa models.ServiceAccount, iat time.Time) (string, error) {
	key, err := ParsePrivateKey(sa.PrivateKey)
	if err != nil {
		return "", err
	}

	claims := jwt.MapClaims{
		"iss":   sa.ClientEmail,
		"scope": cloudPlatformScope,
		"aud":   f.tokenURL,
		"iat":   iat.Unix(),
		"exp":   iat.Add(assertionLifetime).Unix(),
	}

	signed, err := jwt.NewWithClaims(jwt.SigningMethodRS256, claims).SignedString(key)
	if err != nil {
		return "", fmt.Errorf("sign assertion: %w", err)
	}
	return signed, nil
}

// ParsePrivateKey decodes a PEM private key as found in service-account files.
// Armor lines, literal "\n" escapes and whitespace are stripped before the
// remainder is base64-decoded and parsed as PKCS8 (PKCS1 is accepted too).
func ParsePrivateKey(pemText string) (*rsa.PrivateKey, error) {
	text := strings.ReplaceAll(pemText, `\n`, "\n")

	var b strings.Builder
	for _, line := range strings.Split(text, "\n") {
		line = strings.TrimSpace(line)
		if strings.HasPrefix(line, "-----") {
			continue
		}
		b.WriteString(strings.Join(strings.Fields(line), ""))
	}

	der, err := base64.StdEncoding.DecodeString(b.String())
	if err != nil {
		return nil, errs.Configuration("", "service_account.private_key", "is not valid base64: "+err.Error())
	}

	parsed, err := x509.ParsePKCS8PrivateKey(der)
	if err != nil {
		rsaKey, pkcs1Err := x509.ParsePKCS1PrivateKey(der)
		if pkcs1Err != nil {
			return nil, errs.Configuration("", "service_account.private_key", "is not a PKCS8 key: "+err.Error())
		}
		return rsaKey, nil
	}

	rsaKey, ok := parsed.(*rsa.PrivateKey)
	if !ok {
		return nil, errs.Configuration("", "service_account.private_key", fmt.Sprintf("must be an RSA key, got %T", parsed))
	}
	return rsaKey, nil
}

type tokenResponse struct {
	AccessToken string `json:"access_token"`
	ExpiresIn   int64  `json:"expires_in"`
	TokenType   string `json:"token_type"`
}

func (f *Forge) exchange(ctx context.Context, assertion string, now time.Time) (Token, error) {
	form := url.Values{
		"grant_type": {jwtBearerGrant},
		"assertion":  {assertion},
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, f.tokenURL, strings.NewReader(form.Encode()))
	if err != nil {
		return Token{}, &errs.CredentialError{Err: fmt.Errorf("construct token request: %w", err)}
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("Accept", "application/json")

	resp, err := f.client.Do(req)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return Token{}, &errs.CancelledError{Err: ctxErr}
		}
		return Token{}, &errs.CredentialError{Err: fmt.Errorf("token request failed: %w", err)}
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return Token{}, &errs.CancelledError{Err: ctxErr}
		}
		return Token{}, &errs.CredentialError{StatusCode: resp.StatusCode, Err: fmt.Errorf("read token response: %w", err)}
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return Token{}, &errs.CredentialError{StatusCode: resp.StatusCode, Body: string(body)}
	}

	var parsed tokenResponse
	if err := json.Unmarshal(body, &parsed); err != nil {
		return Token{}, &errs.CredentialError{StatusCode: resp.StatusCode, Body: string(body), Err: fmt.Errorf("decode token response: %w", err)}
	}
	if parsed.AccessToken == "" {
		return Token{}, &errs.CredentialError{StatusCode: resp.StatusCode, Body: string(body), Err: errors.New("response has no access_token")}
	}

	lifetime := time.Duration(parsed.ExpiresIn) * time.Second
	if lifetime <= 0 {
		lifetime = assertionLifetime
	}
	return Token{Value: parsed.AccessToken, Expiry: now.Add(lifetime)}, nil
}
