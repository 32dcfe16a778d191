package http

import (
	"context"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/hashicorp/go-retryablehttp"
	"github.com/vitrinehq/vitrine/internal/infrastructure/resilience"
	"github.com/vitrinehq/vitrine/internal/shared/types"
	"golang.org/x/time/rate"
)

// Client wraps resty with rate limiting and per-host circuit breakers
type Client struct {
	Resty    *resty.Client
	Limiter  *rate.Limiter
	Breakers *resilience.Group
}

// NewClient creates a production-ready HTTP client
func NewClient() *Client {
	retryClient := retryablehttp.NewClient()
	retryClient.RetryMax = 3
	retryClient.RetryWaitMin = 1 * time.Second
	retryClient.RetryWaitMax = 30 * time.Second
	retryClient.Logger = nil

	restyClient := resty.New()
	restyClient.
		SetTimeout(30*time.Second).
		SetHeader("User-Agent", "Vitrine-HTTP/1.0")
	restyClient.SetTransport(retryClient.HTTPClient.Transport)

	// One breaker per upstream host so a flapping API does not take
	// every fragment's requests down with it.
	breakers := resilience.NewGroup("http", resilience.Settings{
		MaxRequests: 5,
		Interval:    60 * time.Second,
		Timeout:     30 * time.Second,
		ReadyToTrip: func(counts resilience.Counts) bool {
			return counts.ConsecutiveFailures >= 10 ||
				(counts.Requests >= 20 && float64(counts.TotalFailures)/float64(counts.Requests) > 0.7)
		},
	})

	return &Client{
		Resty:    restyClient,
		Limiter:  rate.NewLimiter(rate.Limit(50), 100),
		Breakers: breakers,
	}
}

// Provider implements outbound HTTP for fragments. The sandbox has no fetch
// or XMLHttpRequest; requests leave through this service, rate limited and
// behind per-host circuit breakers.
type Provider struct {
	client *Client
}

// NewProvider creates an HTTP provider
func NewProvider() *Provider {
	return &Provider{client: NewClient()}
}

// NewProviderWithClient creates an HTTP provider around an existing client
func NewProviderWithClient(client *Client) *Provider {
	return &Provider{client: client}
}

// Definition returns service metadata
func (h *Provider) Definition() types.Service {
	return types.Service{
		ID:          "http",
		Name:        "HTTP Service",
		Description: "Outbound HTTP requests with retry, rate limiting, and per-host circuit breakers",
		Category:    types.CategoryHTTP,
		Capabilities: []string{
			"get",
			"post",
			"put",
			"delete",
			"head",
			"retry",
			"rate_limiting",
			"circuit_breaker",
		},
		Tools: h.getTools(),
	}
}

func (h *Provider) getTools() []types.Tool {
	urlParam := types.Parameter{Name: "url", Type: "string", Description: "Request URL (http or https)", Required: true}
	headersParam := types.Parameter{Name: "headers", Type: "object", Description: "Request headers", Required: false}
	queryParam := types.Parameter{Name: "query", Type: "object", Description: "Query string parameters", Required: false}
	dataParam := types.Parameter{Name: "data", Type: "any", Description: "Request body", Required: true}
	jsonParam := types.Parameter{Name: "json", Type: "boolean", Description: "Send body as JSON (default true)", Required: false}

	return []types.Tool{
		{
			ID:          "http.get",
			Name:        "HTTP GET",
			Description: "Execute a GET request",
			Parameters:  []types.Parameter{urlParam, headersParam, queryParam},
			Returns:     "object",
		},
		{
			ID:          "http.post",
			Name:        "HTTP POST",
			Description: "Execute a POST request",
			Parameters:  []types.Parameter{urlParam, dataParam, headersParam, jsonParam},
			Returns:     "object",
		},
		{
			ID:          "http.put",
			Name:        "HTTP PUT",
			Description: "Execute a PUT request",
			Parameters:  []types.Parameter{urlParam, dataParam, headersParam, jsonParam},
			Returns:     "object",
		},
		{
			ID:          "http.delete",
			Name:        "HTTP DELETE",
			Description: "Execute a DELETE request",
			Parameters:  []types.Parameter{urlParam, headersParam},
			Returns:     "object",
		},
		{
			ID:          "http.head",
			Name:        "HTTP HEAD",
			Description: "Execute a HEAD request, returning headers only",
			Parameters:  []types.Parameter{urlParam, headersParam},
			Returns:     "object",
		},
		{
			ID:          "http.breakers",
			Name:        "Breaker States",
			Description: "Report circuit breaker state per host",
			Parameters:  []types.Parameter{},
			Returns:     "object",
		},
	}
}

// Execute runs an HTTP operation
func (h *Provider) Execute(ctx context.Context, toolID string, params map[string]interface{}, fragCtx *types.Context) (*types.Result, error) {
	switch toolID {
	case "http.get":
		return h.request(ctx, "GET", params, false)
	case "http.post":
		return h.request(ctx, "POST", params, true)
	case "http.put":
		return h.request(ctx, "PUT", params, true)
	case "http.delete":
		return h.request(ctx, "DELETE", params, false)
	case "http.head":
		return h.request(ctx, "HEAD", params, false)
	case "http.breakers":
		return h.breakerStates()
	default:
		return failure(fmt.Sprintf("unknown tool: %s", toolID))
	}
}

func (h *Provider) request(ctx context.Context, method string, params map[string]interface{}, withBody bool) (*types.Result, error) {
	rawURL, ok := params["url"].(string)
	if !ok || rawURL == "" {
		return failure("url required")
	}

	host, err := validateURL(rawURL)
	if err != nil {
		return failure(err.Error())
	}

	if err := h.client.Limiter.Wait(ctx); err != nil {
		return failure(fmt.Sprintf("rate limit: %v", err))
	}

	req := h.client.Resty.R().SetContext(ctx)

	if headers, ok := params["headers"].(map[string]interface{}); ok {
		for k, v := range headers {
			req.SetHeader(k, fmt.Sprint(v))
		}
	}
	if query, ok := params["query"].(map[string]interface{}); ok {
		for k, v := range query {
			req.SetQueryParam(k, fmt.Sprint(v))
		}
	}

	if withBody {
		data, ok := params["data"]
		if !ok {
			return failure("data required")
		}
		useJSON := true
		if j, ok := params["json"].(bool); ok {
			useJSON = j
		}
		if useJSON {
			req.SetHeader("Content-Type", "application/json")
			req.SetBody(data)
		} else {
			dataMap, ok := data.(map[string]interface{})
			if !ok {
				return failure("data must be object for form encoding")
			}
			formData := make(map[string]string, len(dataMap))
			for k, v := range dataMap {
				formData[k] = fmt.Sprint(v)
			}
			req.SetFormData(formData)
		}
	}

	result, err := h.client.Breakers.Do(ctx, host, func() (interface{}, error) {
		return req.Execute(method, rawURL)
	})
	if err == resilience.ErrCircuitOpen {
		return failure(fmt.Sprintf("host unavailable: circuit breaker open for %s", host))
	}
	if err != nil {
		return failure(fmt.Sprintf("request failed: %v", err))
	}

	return success(responseToMap(result.(*resty.Response)))
}

func (h *Provider) breakerStates() (*types.Result, error) {
	states := h.client.Breakers.States()
	byHost := make(map[string]interface{}, len(states))
	for host, state := range states {
		byHost[host] = state.String()
	}

	return success(map[string]interface{}{
		"hosts": byHost,
		"count": len(byHost),
	})
}

// validateURL rejects anything but absolute http(s) URLs and returns the host
func validateURL(rawURL string) (string, error) {
	parsed, err := url.Parse(rawURL)
	if err != nil {
		return "", fmt.Errorf("invalid url: %v", err)
	}

	scheme := strings.ToLower(parsed.Scheme)
	if scheme != "http" && scheme != "https" {
		return "", fmt.Errorf("unsupported scheme: %s", parsed.Scheme)
	}
	if parsed.Hostname() == "" {
		return "", fmt.Errorf("url host required")
	}

	return parsed.Hostname(), nil
}

func responseToMap(resp *resty.Response) map[string]interface{} {
	result := map[string]interface{}{
		"status":      resp.StatusCode(),
		"status_text": resp.Status(),
		"body":        resp.String(),
		"size":        len(resp.Body()),
		"time":        resp.Time().Milliseconds(),
	}

	headers := make(map[string]string)
	for k, v := range resp.Header() {
		if len(v) > 0 {
			headers[k] = v[0]
		}
	}
	result["headers"] = headers

	return result
}

func success(data map[string]interface{}) (*types.Result, error) {
	return &types.Result{Success: true, Data: data}, nil
}

func failure(message string) (*types.Result, error) {
	errMsg := message
	return &types.Result{Success: false, Error: &errMsg}, fmt.Errorf("%s", message)
}
