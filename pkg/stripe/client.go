package stripe

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	stripego "github.com/stripe/stripe-go/v78"
	"github.com/stripe/stripe-go/v78/client"

	"github.com/angelmondragon/orderflow-backend/pkg/config"
	"github.com/angelmondragon/orderflow-backend/pkg/logger"
)

const (
	testEnv = "test"
	liveEnv = "live"

	defaultRequestTimeout = 10 * time.Second
	maxNetworkRetries     = 5
)

var (
	errAPIKeyRequired   = errors.New("stripe api key is required")
	errInvalidStripeEnv = fmt.Errorf("stripe environment must be %q or %q", testEnv, liveEnv)
)

// Client wraps Stripe's API client for one environment.
type Client struct {
	api         *client.API
	environment string
}

// NewClient validates the key against the environment and builds backends that
// share one bounded HTTP client. Stripe retries network failures itself up to
// MaxNetworkRetries; callers should still send idempotency keys on writes.
func NewClient(ctx context.Context, cfg config.StripeConfig, timeout time.Duration, logg *logger.Logger) (*Client, error) {
	env, err := normalizeEnv(cfg.Environment())
	if err != nil {
		return nil, err
	}

	apiKey := strings.TrimSpace(cfg.APIKey)
	if apiKey == "" {
		return nil, errAPIKeyRequired
	}
	if err := validateAPIKey(env, apiKey); err != nil {
		return nil, err
	}

	backendCfg := backendConfig(timeout, cfg.MaxNetworkRetries)
	api := client.New(apiKey, &stripego.Backends{
		API:     stripego.GetBackendWithConfig(stripego.APIBackend, backendCfg),
		Connect: stripego.GetBackendWithConfig(stripego.ConnectBackend, backendCfg),
		Uploads: stripego.GetBackendWithConfig(stripego.UploadsBackend, backendCfg),
	})

	if logg != nil {
		ctx = logg.WithFields(ctx, map[string]any{
			"stripe_env":     env,
			"stripe_retries": *backendCfg.MaxNetworkRetries,
		})
		logg.Info(ctx, "stripe client initialized")
	}

	return &Client{
		api:         api,
		environment: env,
	}, nil
}

// API returns the underlying Stripe API client.
func (c *Client) API() *client.API {
	if c == nil {
		return nil
	}
	return c.api
}

// Environment reports the normalized Stripe environment in use.
func (c *Client) Environment() string {
	if c == nil {
		return ""
	}
	return c.environment
}

// Live reports whether the client moves real money.
func (c *Client) Live() bool {
	return c.Environment() == liveEnv
}

func backendConfig(timeout time.Duration, retries int64) *stripego.BackendConfig {
	if timeout <= 0 {
		timeout = defaultRequestTimeout
	}
	if retries < 0 {
		retries = 0
	}
	if retries > maxNetworkRetries {
		retries = maxNetworkRetries
	}
	return &stripego.BackendConfig{
		HTTPClient:        &http.Client{Timeout: timeout},
		MaxNetworkRetries: stripego.Int64(retries),
		EnableTelemetry:   stripego.Bool(false),
	}
}

func normalizeEnv(raw string) (string, error) {
	env := strings.TrimSpace(strings.ToLower(raw))
	if env == "" {
		env = testEnv
	}
	switch env {
	case testEnv, liveEnv:
		return env, nil
	default:
		return "", errInvalidStripeEnv
	}
}

// validateAPIKey rejects live keys in test mode and the reverse.
func validateAPIKey(env, key string) error {
	var prefixes []string
	switch env {
	case testEnv:
		prefixes = []string{"sk_test_", "rk_test_"}
	case liveEnv:
		prefixes = []string{"sk_live_", "rk_live_"}
	default:
		return errInvalidStripeEnv
	}
	for _, prefix := range prefixes {
		if strings.HasPrefix(key, prefix) {
			return nil
		}
	}
	return fmt.Errorf("stripe environment %q requires a secret or restricted key (%s)", env, strings.Join(prefixes, "/"))
}
