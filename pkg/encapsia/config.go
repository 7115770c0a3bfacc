package encapsia

import (
	"crypto/tls"
	"fmt"
	"net"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/hashicorp/go-hclog"
)

// Default retry parametrization. The connect timeout sits slightly above a
// multiple of the initial TCP retransmit value of 3 seconds; the read timeout
// bounds the gap between two chunks of data, not the entire transfer.
const (
	DefaultConnectTimeout = 6*time.Second + 50*time.Millisecond
	DefaultReadTimeout    = 300 * time.Second
	DefaultMaxRetries     = 3
	DefaultMinRetryDelay  = 500 * time.Millisecond
	DefaultMaxRetryDelay  = 60 * time.Second
)

// Config contains configuration for an Encapsia API client.
type Config struct {
	// BaseURL is the server URL, e.g. "https://myserver.encapsia.com".
	// A bare host is assumed to be https.
	BaseURL string `json:"baseUrl"`

	// Token is the session token used as a Bearer credential.
	// Keep it in an environment variable or the credentials store.
	Token string `json:"-"` // Don't marshal the token to JSON

	// Version is the API version path segment. Default: "v1".
	Version string `json:"version,omitempty"`

	// UserAgent overrides the default encapsia-go user agent.
	UserAgent string `json:"userAgent,omitempty"`

	// TLSVerify controls TLS certificate verification.
	// Set to false only for development/testing with self-signed certs.
	TLSVerify *bool `json:"tlsVerify,omitempty"`

	// ConnectTimeout bounds connection establishment.
	ConnectTimeout time.Duration `json:"connectTimeout,omitempty"`

	// ReadTimeout bounds the wait between two chunks of response data.
	ReadTimeout time.Duration `json:"readTimeout,omitempty"`

	// MaxRetries is how many times a recoverable failure is attempted.
	MaxRetries int `json:"maxRetries,omitempty"`

	// MinRetryDelay and MaxRetryDelay bound the jittered exponential
	// backoff between attempts.
	MinRetryDelay time.Duration `json:"minRetryDelay,omitempty"`
	MaxRetryDelay time.Duration `json:"maxRetryDelay,omitempty"`

	// Logger receives debug output. Defaults to a null logger.
	Logger hclog.Logger `json:"-"`
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() *Config {
	tlsVerify := true
	return &Config{
		Version:        "v1",
		TLSVerify:      &tlsVerify,
		ConnectTimeout: DefaultConnectTimeout,
		ReadTimeout:    DefaultReadTimeout,
		MaxRetries:     DefaultMaxRetries,
		MinRetryDelay:  DefaultMinRetryDelay,
		MaxRetryDelay:  DefaultMaxRetryDelay,
	}
}

// normalize applies defaults and canonicalizes the base URL.
func (c *Config) normalize() {
	defaults := DefaultConfig()
	if !strings.Contains(c.BaseURL, "://") && c.BaseURL != "" {
		c.BaseURL = "https://" + c.BaseURL
	}
	c.BaseURL = strings.TrimRight(c.BaseURL, "/")
	if c.Version == "" {
		c.Version = defaults.Version
	}
	if c.UserAgent == "" {
		c.UserAgent = "encapsia-go/" + Version
	}
	if c.TLSVerify == nil {
		c.TLSVerify = defaults.TLSVerify
	}
	if c.ConnectTimeout == 0 {
		c.ConnectTimeout = defaults.ConnectTimeout
	}
	if c.ReadTimeout == 0 {
		c.ReadTimeout = defaults.ReadTimeout
	}
	if c.MaxRetries == 0 {
		c.MaxRetries = defaults.MaxRetries
	}
	if c.MinRetryDelay == 0 {
		c.MinRetryDelay = defaults.MinRetryDelay
	}
	if c.MaxRetryDelay == 0 {
		c.MaxRetryDelay = defaults.MaxRetryDelay
	}
	if c.Logger == nil {
		c.Logger = hclog.NewNullLogger()
	}
}

// Validate checks if the configuration is valid.
func (c *Config) Validate() error {
	if c.BaseURL == "" {
		return fmt.Errorf("base URL is required")
	}

	parsedURL, err := url.Parse(c.BaseURL)
	if err != nil {
		return fmt.Errorf("invalid base URL: %w", err)
	}
	if parsedURL.Scheme != "http" && parsedURL.Scheme != "https" {
		return fmt.Errorf("base URL must use http or https scheme, got: %s", parsedURL.Scheme)
	}

	if c.Token == "" {
		return fmt.Errorf("token is required")
	}

	if c.ConnectTimeout < 0 {
		return fmt.Errorf("connect timeout must be non-negative, got: %v", c.ConnectTimeout)
	}
	if c.ReadTimeout < 0 {
		return fmt.Errorf("read timeout must be non-negative, got: %v", c.ReadTimeout)
	}
	if c.MaxRetries < 1 {
		return fmt.Errorf("max retries must be at least 1, got: %d", c.MaxRetries)
	}
	if c.MinRetryDelay < 0 || c.MaxRetryDelay < c.MinRetryDelay {
		return fmt.Errorf("retry delay bounds invalid: min %v, max %v", c.MinRetryDelay, c.MaxRetryDelay)
	}

	return nil
}

// NewHTTPClient creates a configured HTTP client for this config.
func (c *Config) NewHTTPClient() *http.Client {
	dialer := &net.Dialer{
		Timeout: c.ConnectTimeout,
	}
	transport := &http.Transport{
		DialContext:           dialer.DialContext,
		MaxIdleConns:          100,
		MaxIdleConnsPerHost:   10,
		IdleConnTimeout:       90 * time.Second,
		ResponseHeaderTimeout: c.ReadTimeout,
	}

	if c.TLSVerify != nil && !*c.TLSVerify {
		transport.TLSClientConfig = &tls.Config{
			InsecureSkipVerify: true,
		}
	}

	return &http.Client{
		Transport: transport,
		// The server uses redirects to signal "not found" on some blob
		// endpoints; they must surface, not be followed.
		CheckRedirect: func(req *http.Request, via []*http.Request) error {
			return http.ErrUseLastResponse
		},
	}
}
