// Package confluence provides the Confluence Cloud plugin.
//
// The plugin wraps a single REST connector speaking the Confluence
// Cloud REST API under /wiki/rest/api with Bearer token auth.
// Connecting performs an authenticated probe against /user/current.
package confluence

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/skillsd/skillsd/internal/breaker"
	"github.com/skillsd/skillsd/internal/connector"
	"github.com/skillsd/skillsd/internal/log"
	"github.com/skillsd/skillsd/internal/plugin"
	"github.com/skillsd/skillsd/internal/transport"
)

const pluginVersion = "1.0.0"

// Config configures the Confluence plugin.
type Config struct {
	// BaseURL is the Confluence site URL (e.g. https://your-domain.atlassian.net).
	BaseURL string

	// APIToken is the token sent as a Bearer credential.
	APIToken string

	// RequestsPerSecond caps the outbound request rate. Zero disables
	// rate limiting.
	RequestsPerSecond float64

	// Burst is the rate limiter burst size.
	Burst int

	// Timeout bounds a single request. Zero selects the transport
	// default.
	Timeout time.Duration

	// Headers are applied to every request in addition to the JSON
	// defaults.
	Headers map[string]string

	// Breaker configures the circuit breaker. Zero values select the
	// defaults.
	Breaker breaker.Config

	// Transport overrides the HTTP transport when set. Nil selects the
	// standard HTTP transport built from BaseURL and APIToken.
	Transport transport.Transport
}

// Connector is the managed Confluence Cloud connection.
type Connector struct {
	*connector.REST
}

// NewConnector creates the Confluence connector. The token is expected
// to be already resolved through the secrets layer.
func NewConnector(cfg Config, logger *slog.Logger) (*Connector, error) {
	if cfg.BaseURL == "" {
		return nil, fmt.Errorf("confluence plugin requires base_url (e.g. https://your-domain.atlassian.net)")
	}
	if cfg.APIToken == "" {
		return nil, fmt.Errorf("confluence plugin requires api_token")
	}

	tr := cfg.Transport
	if tr == nil {
		baseURL := strings.TrimSuffix(cfg.BaseURL, "/") + "/wiki/rest/api"

		headers := map[string]string{
			"Accept":       "application/json",
			"Content-Type": "application/json",
		}
		for k, v := range cfg.Headers {
			headers[k] = v
		}

		httpTransport, err := transport.NewHTTPTransport(&transport.HTTPConfig{
			BaseURL: baseURL,
			Timeout: cfg.Timeout,
			Headers: headers,
			Auth: &transport.AuthConfig{
				Type:  "bearer",
				Token: cfg.APIToken,
			},
		})
		if err != nil {
			return nil, fmt.Errorf("confluence transport: %w", err)
		}

		if cfg.RequestsPerSecond > 0 {
			httpTransport.SetRateLimiter(transport.NewTokenBucketLimiter(cfg.RequestsPerSecond, cfg.Burst))
		}

		tr = httpTransport
	}

	return &Connector{
		REST: connector.NewREST("confluence", tr, cfg.Breaker, logger),
	}, nil
}

// Connect probes /user/current under the breaker. A failed probe leaves
// the connector registered and unhealthy.
func (c *Connector) Connect(ctx context.Context) error {
	return c.ConnectWith(ctx, func(ctx context.Context) (interface{}, error) {
		resp, err := c.Send(ctx, "GET", "/user/current", nil, nil)
		if err != nil {
			return nil, err
		}

		var me User
		if err := c.DecodeJSON(resp, &me); err != nil {
			return nil, err
		}

		c.Logger().Info("confluence authenticated", log.String("account_id", me.AccountID))
		return c.Transport(), nil
	})
}

// Disconnect releases the connection. HTTP has nothing to hang up.
func (c *Connector) Disconnect(ctx context.Context) error {
	return c.DisconnectWith(ctx, nil)
}

// Execute runs a named operation with the given inputs under the
// circuit breaker. An optional "extract" input applies a jq expression
// to the transformed response.
func (c *Connector) Execute(ctx context.Context, operation string, inputs map[string]interface{}) (*connector.Result, error) {
	return c.Do(ctx, operation, func(ctx context.Context) (*connector.Result, error) {
		result, err := c.dispatch(ctx, operation, inputs)
		if err != nil {
			return nil, err
		}
		return c.Extract(ctx, inputs, result)
	})
}

func (c *Connector) dispatch(ctx context.Context, operation string, inputs map[string]interface{}) (*connector.Result, error) {
	switch operation {
	case "get_page":
		return c.getPage(ctx, inputs)
	case "search_pages":
		return c.searchPages(ctx, inputs)
	case "create_page":
		return c.createPage(ctx, inputs)
	default:
		return nil, connector.NewUnknownOperationError(c.Name(), operation)
	}
}

// Operations returns the list of available operations.
func (c *Connector) Operations() []connector.OperationInfo {
	return []connector.OperationInfo{
		{Name: "get_page", Description: "Get page content and metadata", Category: "pages", Tags: []string{"read"}},
		{Name: "search_pages", Description: "Search content with CQL", Category: "search", Tags: []string{"read", "paginated"}},
		{Name: "create_page", Description: "Create a new page", Category: "pages", Tags: []string{"write"}},
	}
}

// Plugin adapts the Confluence connector to the daemon plugin contract.
type Plugin struct {
	conn *Connector
}

// New creates the Confluence plugin.
func New(cfg Config, logger *slog.Logger) (*Plugin, error) {
	conn, err := NewConnector(cfg, logger)
	if err != nil {
		return nil, err
	}

	return &Plugin{conn: conn}, nil
}

// Name returns "confluence".
func (p *Plugin) Name() string { return "confluence" }

// Version returns the plugin version.
func (p *Plugin) Version() string { return pluginVersion }

// Connector returns the managed connection for registry wiring.
func (p *Plugin) Connector() *Connector { return p.conn }

// Startup connects the Confluence connector.
func (p *Plugin) Startup(ctx context.Context) error {
	return p.conn.Connect(ctx)
}

// Shutdown disconnects the Confluence connector.
func (p *Plugin) Shutdown(ctx context.Context) error {
	return p.conn.Disconnect(ctx)
}

// HealthCheck derives plugin health from connector state.
func (p *Plugin) HealthCheck(ctx context.Context) plugin.Health {
	return plugin.HealthFromConnector(p.conn)
}

// Execute runs a named operation through the connector.
func (p *Plugin) Execute(ctx context.Context, operation string, inputs map[string]interface{}) (*connector.Result, error) {
	return p.conn.Execute(ctx, operation, inputs)
}

// Operations returns the connector's operation list.
func (p *Plugin) Operations() []connector.OperationInfo {
	return p.conn.Operations()
}

// Router exposes read-only plugin introspection, mounted by the daemon
// under /confluence/. Operation execution stays on the daemon's guarded
// execute endpoint.
func (p *Plugin) Router() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /operations", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]interface{}{
			"plugin":     p.Name(),
			"operations": p.Operations(),
		})
	})

	mux.HandleFunc("GET /status", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(p.conn.Status())
	})

	return mux
}
