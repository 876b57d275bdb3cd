// Package webhook provides a Transport that posts each message as JSON to an
// HTTP endpoint, such as a mail provider's send API.
package webhook

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/clientcredentials"

	"github.com/cecil-the-coder/mail-dispatch-kit/internal/httpclient"
	"github.com/cecil-the-coder/mail-dispatch-kit/pkg/types"
)

// Config configures the webhook transport
type Config struct {
	URL     string            `json:"url" yaml:"url" mapstructure:"url"`
	Method  string            `json:"method,omitempty" yaml:"method,omitempty" mapstructure:"method"`
	From    string            `json:"from,omitempty" yaml:"from,omitempty" mapstructure:"from"`
	Headers map[string]string `json:"headers,omitempty" yaml:"headers,omitempty" mapstructure:"headers"`
	Timeout time.Duration     `json:"timeout,omitempty" yaml:"timeout,omitempty" mapstructure:"timeout"`

	// Token is sent as a static bearer token
	Token string `json:"-" yaml:"token,omitempty" mapstructure:"token"`

	// OAuth2 enables the client credentials flow; it takes precedence over Token
	OAuth2 *OAuth2Config `json:"oauth2,omitempty" yaml:"oauth2,omitempty" mapstructure:"oauth2"`
}

// OAuth2Config holds client credentials for the token endpoint
type OAuth2Config struct {
	TokenURL     string   `json:"token_url" yaml:"token_url" mapstructure:"token_url"`
	ClientID     string   `json:"client_id" yaml:"client_id" mapstructure:"client_id"`
	ClientSecret string   `json:"-" yaml:"client_secret,omitempty" mapstructure:"client_secret"`
	Scopes       []string `json:"scopes,omitempty" yaml:"scopes,omitempty" mapstructure:"scopes"`
}

// Validate checks the endpoint and credentials
func (c Config) Validate() error {
	if c.URL == "" {
		return fmt.Errorf("%w: webhook url is required", types.ErrInvalidConfig)
	}
	if !strings.HasPrefix(c.URL, "http://") && !strings.HasPrefix(c.URL, "https://") {
		return fmt.Errorf("%w: webhook url %q must be http or https", types.ErrInvalidConfig, c.URL)
	}
	switch strings.ToUpper(c.Method) {
	case "", http.MethodPost, http.MethodPut:
	default:
		return fmt.Errorf("%w: webhook method %q not supported", types.ErrInvalidConfig, c.Method)
	}
	if c.OAuth2 != nil {
		if c.OAuth2.TokenURL == "" || c.OAuth2.ClientID == "" {
			return fmt.Errorf("%w: oauth2 token_url and client_id are required", types.ErrInvalidConfig)
		}
	}
	return nil
}

// Payload is the JSON body posted for each message
type Payload struct {
	ID      string `json:"id"`
	From    string `json:"from,omitempty"`
	To      string `json:"to"`
	Subject string `json:"subject"`
	Body    string `json:"body"`
}

// Transport posts messages to a webhook
type Transport struct {
	name   string
	cfg    Config
	client *httpclient.Client
}

// New creates a webhook transport
func New(name string, cfg Config) (*Transport, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if cfg.Method == "" {
		cfg.Method = http.MethodPost
	}
	cfg.Method = strings.ToUpper(cfg.Method)

	clientCfg := httpclient.Config{
		Timeout: cfg.Timeout,
		Headers: cfg.Headers,
	}
	if source := tokenSource(cfg); source != nil {
		clientCfg.RoundTripper = func(base http.RoundTripper) http.RoundTripper {
			return &oauth2.Transport{Source: source, Base: base}
		}
	}

	return &Transport{
		name:   name,
		cfg:    cfg,
		client: httpclient.New(clientCfg),
	}, nil
}

// tokenSource returns the configured token source, or nil for anonymous calls
func tokenSource(cfg Config) oauth2.TokenSource {
	if cfg.OAuth2 != nil {
		cc := &clientcredentials.Config{
			ClientID:     cfg.OAuth2.ClientID,
			ClientSecret: cfg.OAuth2.ClientSecret,
			TokenURL:     cfg.OAuth2.TokenURL,
			Scopes:       cfg.OAuth2.Scopes,
		}
		// Token fetches outlive any single Send, so they run on a background context
		return cc.TokenSource(context.Background())
	}
	if cfg.Token != "" {
		return oauth2.StaticTokenSource(&oauth2.Token{AccessToken: cfg.Token, TokenType: "Bearer"})
	}
	return nil
}

// Name implements types.NamedTransport
func (t *Transport) Name() string { return t.name }

// Stats returns HTTP counters for this transport
func (t *Transport) Stats() httpclient.Stats { return t.client.Stats() }

// Send implements types.Transport. A 2xx response is a delivery; any other
// status is returned as an *httpclient.APIError.
func (t *Transport) Send(ctx context.Context, msg types.Message) (bool, error) {
	if err := msg.Validate(); err != nil {
		return false, err
	}

	req, err := httpclient.NewJSONRequest(ctx, t.cfg.Method, t.cfg.URL, Payload{
		ID:      msg.ID,
		From:    t.cfg.From,
		To:      msg.To,
		Subject: msg.Subject,
		Body:    msg.Body,
	})
	if err != nil {
		return false, err
	}
	if msg.ID != "" {
		req.Header.Set("Idempotency-Key", msg.ID)
	}

	resp, err := t.client.Do(ctx, req)
	if err != nil {
		return false, fmt.Errorf("webhook %s: %w", t.name, err)
	}
	defer httpclient.Drain(resp.Body)

	if !httpclient.IsSuccess(resp.StatusCode) {
		return false, fmt.Errorf("webhook %s: %w", t.name, httpclient.NewAPIError(resp))
	}
	return true, nil
}
