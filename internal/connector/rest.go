package connector

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"strings"

	"github.com/skillsd/skillsd/internal/breaker"
	"github.com/skillsd/skillsd/internal/jq"
	"github.com/skillsd/skillsd/internal/transport"
)

// REST extends BaseConnector for connectors that speak JSON over HTTP.
// It owns the transport, translates transport failures into the
// connector error taxonomy, and supplies the URL, body, and response
// helpers shared by all REST connectors.
type REST struct {
	*BaseConnector

	tr        transport.Transport
	extractor *jq.Executor
}

// NewREST creates the shared core for a JSON-over-HTTP connector.
// Authentication and retries are the transport's concern.
func NewREST(name string, tr transport.Transport, cfg breaker.Config, logger *slog.Logger) *REST {
	return &REST{
		BaseConnector: NewBase(name, cfg, logger),
		tr:            tr,
		extractor:     jq.NewExecutor(0, 0),
	}
}

// Transport returns the underlying transport.
func (r *REST) Transport() transport.Transport {
	return r.tr
}

// BuildURL expands a path template against the inputs. Templates use
// {param} placeholders (e.g. "/issue/{issue_key}"); a placeholder with
// no matching input is a validation error.
func (r *REST) BuildURL(pathTemplate string, inputs map[string]interface{}) (string, error) {
	path := pathTemplate

	for key, value := range inputs {
		placeholder := "{" + key + "}"
		if strings.Contains(path, placeholder) {
			path = strings.ReplaceAll(path, placeholder, url.PathEscape(fmt.Sprint(value)))
		}
	}

	if start := strings.Index(path, "{"); start >= 0 {
		if end := strings.Index(path, "}"); end > start {
			return "", &Error{
				Type:      ErrorTypeValidation,
				Connector: r.Name(),
				Message:   fmt.Sprintf("missing required parameter: %s", path[start+1:end]),
			}
		}
	}

	return path, nil
}

// QueryString encodes inputs as a query string, skipping path parameters
// and nil values. Returns "" when nothing remains.
func (r *REST) QueryString(inputs map[string]interface{}, pathParams []string) string {
	skip := make(map[string]bool, len(pathParams)+1)
	for _, param := range pathParams {
		skip[param] = true
	}
	// "extract" is consumed by Extract, never forwarded upstream.
	skip["extract"] = true

	values := url.Values{}
	for key, value := range inputs {
		if skip[key] || value == nil {
			continue
		}
		values.Add(key, fmt.Sprint(value))
	}

	if len(values) == 0 {
		return ""
	}

	return "?" + values.Encode()
}

// Send executes a request through the transport. Transport failures come
// back as coded connector errors so the breaker accounting upstream can
// tell downstream faults from caller mistakes.
func (r *REST) Send(ctx context.Context, method, path string, headers map[string]string, body []byte) (*transport.Response, error) {
	resp, err := r.tr.Execute(ctx, &transport.Request{
		Method:  method,
		URL:     path,
		Headers: headers,
		Body:    body,
	})
	if err != nil {
		return nil, r.wrapTransportError(err)
	}

	return resp, nil
}

// MarshalBody encodes a request body. Encoding failures are caller
// mistakes, not downstream faults.
func (r *REST) MarshalBody(operation string, v interface{}) ([]byte, error) {
	body, err := json.Marshal(v)
	if err != nil {
		return nil, &Error{
			Type:      ErrorTypeValidation,
			Connector: r.Name(),
			Operation: operation,
			Message:   "failed to encode request body",
			Cause:     err,
		}
	}

	return body, nil
}

// DecodeJSON unmarshals a response body. An empty body is not an error;
// the target is left untouched.
func (r *REST) DecodeJSON(resp *transport.Response, target interface{}) error {
	if resp == nil || len(resp.Body) == 0 {
		return nil
	}

	if err := json.Unmarshal(resp.Body, target); err != nil {
		return &Error{
			Type:      ErrorTypeTransform,
			Connector: r.Name(),
			Message:   "failed to decode response",
			Cause:     err,
		}
	}

	return nil
}

// Result wraps a transformed response and its transport envelope into an
// operation result.
func (r *REST) Result(resp *transport.Response, response interface{}) *Result {
	result := &Result{Response: response}
	if resp != nil {
		result.RawResponse = resp.Body
		result.StatusCode = resp.StatusCode
		result.Metadata = resp.Metadata
	}

	return result
}

// Extract applies an optional jq expression from the inputs ("extract")
// to the result's response. The response is normalized through
// encoding/json first since jq evaluates the JSON view, not Go types.
// A failed extraction is a transform error; the raw response is
// preserved either way.
func (r *REST) Extract(ctx context.Context, inputs map[string]interface{}, result *Result) (*Result, error) {
	expr, _ := inputs["extract"].(string)
	if expr == "" {
		return result, nil
	}

	normalized, err := normalizeJSON(result.Response)
	if err != nil {
		return nil, &Error{
			Type:      ErrorTypeTransform,
			Connector: r.Name(),
			Message:   "failed to normalize response for extraction",
			Cause:     err,
		}
	}

	extracted, err := r.extractor.Execute(ctx, expr, normalized)
	if err != nil {
		return nil, &Error{
			Type:      ErrorTypeTransform,
			Connector: r.Name(),
			Message:   fmt.Sprintf("extract expression failed: %s", expr),
			Cause:     err,
		}
	}

	result.Response = extracted
	return result, nil
}

func normalizeJSON(v interface{}) (interface{}, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}

	var normalized interface{}
	if err := json.Unmarshal(data, &normalized); err != nil {
		return nil, err
	}

	return normalized, nil
}

// RequireInputs checks that every required parameter is present.
func (r *REST) RequireInputs(operation string, inputs map[string]interface{}, required ...string) error {
	for _, param := range required {
		if _, ok := inputs[param]; !ok {
			return &Error{
				Type:      ErrorTypeValidation,
				Connector: r.Name(),
				Operation: operation,
				Message:   fmt.Sprintf("missing required parameter: %s", param),
			}
		}
	}

	return nil
}

// wrapTransportError maps the transport error taxonomy onto the
// connector taxonomy.
func (r *REST) wrapTransportError(err error) *Error {
	var terr *transport.Error
	if !errors.As(err, &terr) {
		return &Error{
			Type:      ErrorTypeConnection,
			Connector: r.Name(),
			Message:   "transport failure",
			Cause:     err,
		}
	}

	var errType ErrorType
	switch terr.Type {
	case transport.ErrorTypeAuth:
		errType = ErrorTypeAuth
	case transport.ErrorTypeRateLimit:
		errType = ErrorTypeRateLimit
	case transport.ErrorTypeServer:
		errType = ErrorTypeServer
	case transport.ErrorTypeTimeout:
		errType = ErrorTypeTimeout
	case transport.ErrorTypeConnection:
		errType = ErrorTypeConnection
	case transport.ErrorTypeCancelled:
		errType = ErrorTypeCancelled
	case transport.ErrorTypeInvalidReq:
		errType = ErrorTypeValidation
	case transport.ErrorTypeClient:
		errType = ClassifyHTTPStatus(terr.StatusCode)
	default:
		errType = ErrorTypeConnection
	}

	return &Error{
		Type:       errType,
		Connector:  r.Name(),
		Message:    terr.Message,
		StatusCode: terr.StatusCode,
		Cause:      err,
	}
}
