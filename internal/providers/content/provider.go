package content

import (
	"context"
	"fmt"

	"github.com/microcosm-cc/bluemonday"
	"github.com/vitrinehq/vitrine/internal/shared/types"
)

// Provider implements HTML parsing for fragments. The sandbox has no DOM
// parser; fragments fetch markup through the http service and hand it here
// for extraction.
type Provider struct {
	sanitizer *bluemonday.Policy
}

// NewProvider creates a content provider
func NewProvider() *Provider {
	return &Provider{
		sanitizer: bluemonday.UGCPolicy(),
	}
}

// Definition returns service metadata
func (p *Provider) Definition() types.Service {
	htmlParam := types.Parameter{Name: "html", Type: "string", Description: "HTML content", Required: true}

	return types.Service{
		ID:          "content",
		Name:        "Content Service",
		Description: "HTML parsing with CSS selectors, XPath, and charset detection",
		Category:    types.CategoryContent,
		Capabilities: []string{
			"text_extraction",
			"css_selectors",
			"xpath_queries",
			"metadata",
			"charset_detection",
			"sanitization",
		},
		Tools: []types.Tool{
			{
				ID:          "content.text",
				Name:        "Extract Text",
				Description: "Extract visible text from HTML",
				Parameters: []types.Parameter{
					htmlParam,
					{Name: "normalize", Type: "boolean", Description: "Collapse whitespace (default true)", Required: false},
				},
				Returns: "object",
			},
			{
				ID:          "content.title",
				Name:        "Extract Title",
				Description: "Get page title from HTML",
				Parameters:  []types.Parameter{htmlParam},
				Returns:     "object",
			},
			{
				ID:          "content.links",
				Name:        "Extract Links",
				Description: "Get deduplicated links from HTML",
				Parameters: []types.Parameter{
					htmlParam,
					{Name: "absolute_only", Type: "boolean", Description: "Only absolute URLs (default false)", Required: false},
				},
				Returns: "object",
			},
			{
				ID:          "content.select",
				Name:        "CSS Select",
				Description: "Find elements by CSS selector",
				Parameters: []types.Parameter{
					htmlParam,
					{Name: "selector", Type: "string", Description: "CSS selector", Required: true},
					{Name: "all", Type: "boolean", Description: "Get all matches (default false)", Required: false},
					{Name: "limit", Type: "number", Description: "Max results (default 100)", Required: false},
				},
				Returns: "object",
			},
			{
				ID:          "content.attribute",
				Name:        "Extract Attribute",
				Description: "Extract an attribute from matching elements",
				Parameters: []types.Parameter{
					htmlParam,
					{Name: "selector", Type: "string", Description: "CSS selector", Required: true},
					{Name: "attribute", Type: "string", Description: "Attribute name", Required: true},
				},
				Returns: "object",
			},
			{
				ID:          "content.xpath",
				Name:        "XPath Query",
				Description: "Query HTML using XPath expressions",
				Parameters: []types.Parameter{
					htmlParam,
					{Name: "xpath", Type: "string", Description: "XPath expression", Required: true},
					{Name: "all", Type: "boolean", Description: "Get all matches (default false)", Required: false},
				},
				Returns: "object",
			},
			{
				ID:          "content.metadata",
				Name:        "Extract Metadata",
				Description: "Extract meta tags grouped by standard, open graph, and twitter",
				Parameters:  []types.Parameter{htmlParam},
				Returns:     "object",
			},
			{
				ID:          "content.sanitize",
				Name:        "Sanitize HTML",
				Description: "Strip unsafe markup, keeping user-generated content tags",
				Parameters:  []types.Parameter{htmlParam},
				Returns:     "object",
			},
		},
	}
}

// Execute runs a content operation
func (p *Provider) Execute(ctx context.Context, toolID string, params map[string]interface{}, fragCtx *types.Context) (*types.Result, error) {
	switch toolID {
	case "content.text":
		return p.text(params)
	case "content.title":
		return p.title(params)
	case "content.links":
		return p.links(params)
	case "content.select":
		return p.selectCSS(params)
	case "content.attribute":
		return p.attribute(params)
	case "content.xpath":
		return p.xpath(params)
	case "content.metadata":
		return p.metadata(params)
	case "content.sanitize":
		return p.sanitize(params)
	default:
		return failure(fmt.Sprintf("unknown tool: %s", toolID))
	}
}

func success(data map[string]interface{}) (*types.Result, error) {
	return &types.Result{Success: true, Data: data}, nil
}

func failure(message string) (*types.Result, error) {
	errMsg := message
	return &types.Result{Success: false, Error: &errMsg}, fmt.Errorf("%s", message)
}
