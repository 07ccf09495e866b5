// Package jira provides the Jira Cloud plugin.
//
// The plugin wraps a single REST connector speaking the Jira Cloud
// platform API (v3) with Basic auth (email:api_token). Connecting
// performs an authenticated probe against /myself so credential
// problems surface at startup instead of on the first operation.
package jira

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

// Config configures the Jira plugin.
type Config struct {
	// BaseURL is the Jira site URL (e.g. https://your-domain.atlassian.net).
	BaseURL string

	// Email is the Atlassian account email for Basic auth.
	Email string

	// APIToken is the API token paired with Email.
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
	// standard HTTP transport built from BaseURL and the auth fields.
	Transport transport.Transport
}

// Connector is the managed Jira Cloud connection.
type Connector struct {
	*connector.REST
}

// NewConnector creates the Jira connector. The credentials are expected
// to be already resolved through the secrets layer.
func NewConnector(cfg Config, logger *slog.Logger) (*Connector, error) {
	if cfg.BaseURL == "" {
		return nil, fmt.Errorf("jira plugin requires base_url (e.g. https://your-domain.atlassian.net)")
	}
	if cfg.Email == "" {
		return nil, fmt.Errorf("jira plugin requires email for basic auth")
	}
	if cfg.APIToken == "" {
		return nil, fmt.Errorf("jira plugin requires api_token")
	}

	tr := cfg.Transport
	if tr == nil {
		baseURL := strings.TrimSuffix(cfg.BaseURL, "/") + "/rest/api/3"

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
				Type:     "basic",
				Username: cfg.Email,
				Password: cfg.APIToken,
			},
		})
		if err != nil {
			return nil, fmt.Errorf("jira transport: %w", err)
		}

		if cfg.RequestsPerSecond > 0 {
			httpTransport.SetRateLimiter(transport.NewTokenBucketLimiter(cfg.RequestsPerSecond, cfg.Burst))
		}

		tr = httpTransport
	}

	return &Connector{
		REST: connector.NewREST("jira", tr, cfg.Breaker, logger),
	}, nil
}

// Connect probes /myself under the breaker. A failed probe leaves the
// connector registered and unhealthy.
func (c *Connector) Connect(ctx context.Context) error {
	return c.ConnectWith(ctx, func(ctx context.Context) (interface{}, error) {
		resp, err := c.Send(ctx, "GET", "/myself", nil, nil)
		if err != nil {
			return nil, err
		}

		var me User
		if err := c.DecodeJSON(resp, &me); err != nil {
			return nil, err
		}

		c.Logger().Info("jira authenticated", log.String("account_id", me.AccountID))
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
	case "get_issue":
		return c.getIssue(ctx, inputs)
	case "search_issues":
		return c.searchIssues(ctx, inputs)
	case "create_issue":
		return c.createIssue(ctx, inputs)
	case "add_comment":
		return c.addComment(ctx, inputs)
	case "list_projects":
		return c.listProjects(ctx, inputs)
	case "add_attachment":
		return c.addAttachment(ctx, inputs)
	default:
		return nil, connector.NewUnknownOperationError(c.Name(), operation)
	}
}

// Operations returns the list of available operations.
func (c *Connector) Operations() []connector.OperationInfo {
	return []connector.OperationInfo{
		{Name: "get_issue", Description: "Get issue details", Category: "issues", Tags: []string{"read"}},
		{Name: "search_issues", Description: "Search issues with JQL", Category: "search", Tags: []string{"read", "paginated"}},
		{Name: "create_issue", Description: "Create a new issue", Category: "issues", Tags: []string{"write"}},
		{Name: "add_comment", Description: "Add a comment to an issue", Category: "comments", Tags: []string{"write"}},
		{Name: "list_projects", Description: "List accessible projects", Category: "projects", Tags: []string{"read"}},
		{Name: "add_attachment", Description: "Add an attachment to an issue", Category: "attachments", Tags: []string{"write"}},
	}
}

// Plugin adapts the Jira connector to the daemon plugin contract.
type Plugin struct {
	conn *Connector
}

// New creates the Jira plugin.
func New(cfg Config, logger *slog.Logger) (*Plugin, error) {
	conn, err := NewConnector(cfg, logger)
	if err != nil {
		return nil, err
	}

	return &Plugin{conn: conn}, nil
}

// Name returns "jira".
func (p *Plugin) Name() string { return "jira" }

// Version returns the plugin version.
func (p *Plugin) Version() string { return pluginVersion }

// Connector returns the managed connection for registry wiring.
func (p *Plugin) Connector() *Connector { return p.conn }

// Startup connects the Jira connector.
func (p *Plugin) Startup(ctx context.Context) error {
	return p.conn.Connect(ctx)
}

// Shutdown disconnects the Jira connector.
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
// under /jira/. Operation execution stays on the daemon's guarded
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
