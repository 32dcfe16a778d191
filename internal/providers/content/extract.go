package content

import (
	"bytes"
	"fmt"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/antchfx/htmlquery"
	"github.com/saintfish/chardet"
	"github.com/vitrinehq/vitrine/internal/shared/types"
	"golang.org/x/net/html"
	"golang.org/x/net/html/charset"
)

// maxHTMLSize limits HTML input to 10MB
const maxHTMLSize = 10 * 1024 * 1024

func (p *Provider) text(params map[string]interface{}) (*types.Result, error) {
	raw, ok := params["html"].(string)
	if !ok || raw == "" {
		return failure("html parameter required")
	}

	doc, err := loadHTML(raw)
	if err != nil {
		return failure(fmt.Sprintf("parse failed: %v", err))
	}

	normalize := true
	if n, ok := params["normalize"].(bool); ok {
		normalize = n
	}

	text := doc.Find("body").Text()
	if normalize {
		text = strings.Join(strings.Fields(text), " ")
	} else {
		text = strings.TrimSpace(text)
	}

	return success(map[string]interface{}{
		"text":       text,
		"length":     len(text),
		"word_count": len(strings.Fields(text)),
	})
}

func (p *Provider) title(params map[string]interface{}) (*types.Result, error) {
	raw, ok := params["html"].(string)
	if !ok || raw == "" {
		return failure("html parameter required")
	}

	doc, err := loadHTML(raw)
	if err != nil {
		return failure(fmt.Sprintf("parse failed: %v", err))
	}

	title := strings.TrimSpace(doc.Find("title").First().Text())
	return success(map[string]interface{}{
		"title": title,
		"found": title != "",
	})
}

func (p *Provider) links(params map[string]interface{}) (*types.Result, error) {
	raw, ok := params["html"].(string)
	if !ok || raw == "" {
		return failure("html parameter required")
	}

	doc, err := loadHTML(raw)
	if err != nil {
		return failure(fmt.Sprintf("parse failed: %v", err))
	}

	absoluteOnly := false
	if a, ok := params["absolute_only"].(bool); ok {
		absoluteOnly = a
	}

	seen := make(map[string]bool)
	links := make([]map[string]interface{}, 0)

	doc.Find("a[href]").Each(func(i int, s *goquery.Selection) {
		href := strings.TrimSpace(s.AttrOr("href", ""))
		if href == "" || href == "#" || seen[href] {
			return
		}
		absolute := strings.HasPrefix(href, "http://") || strings.HasPrefix(href, "https://")
		if absoluteOnly && !absolute {
			return
		}
		seen[href] = true
		links = append(links, map[string]interface{}{
			"href":     href,
			"text":     strings.TrimSpace(s.Text()),
			"absolute": absolute,
		})
	})

	return success(map[string]interface{}{
		"links": links,
		"count": len(links),
	})
}

func (p *Provider) selectCSS(params map[string]interface{}) (*types.Result, error) {
	raw, ok := params["html"].(string)
	if !ok || raw == "" {
		return failure("html parameter required")
	}
	selector, ok := params["selector"].(string)
	if !ok || selector == "" {
		return failure("selector parameter required")
	}

	doc, err := loadHTML(raw)
	if err != nil {
		return failure(fmt.Sprintf("parse failed: %v", err))
	}

	all := false
	if a, ok := params["all"].(bool); ok {
		all = a
	}
	limit := 100
	if l, ok := params["limit"].(float64); ok && l > 0 {
		limit = int(l)
	}

	selection := doc.Find(selector)
	if selection.Length() == 0 {
		return success(map[string]interface{}{
			"matches": []map[string]interface{}{},
			"count":   0,
		})
	}

	if !all {
		selection = selection.First()
	}

	matches := make([]map[string]interface{}, 0, selection.Length())
	selection.EachWithBreak(func(i int, s *goquery.Selection) bool {
		if len(matches) >= limit {
			return false
		}
		outer, _ := goquery.OuterHtml(s)
		matches = append(matches, map[string]interface{}{
			"text": strings.TrimSpace(s.Text()),
			"html": outer,
		})
		return true
	})

	return success(map[string]interface{}{
		"matches": matches,
		"count":   len(matches),
	})
}

func (p *Provider) attribute(params map[string]interface{}) (*types.Result, error) {
	raw, ok := params["html"].(string)
	if !ok || raw == "" {
		return failure("html parameter required")
	}
	selector, ok := params["selector"].(string)
	if !ok || selector == "" {
		return failure("selector parameter required")
	}
	attribute, ok := params["attribute"].(string)
	if !ok || attribute == "" {
		return failure("attribute parameter required")
	}

	doc, err := loadHTML(raw)
	if err != nil {
		return failure(fmt.Sprintf("parse failed: %v", err))
	}

	values := make([]string, 0)
	doc.Find(selector).Each(func(i int, s *goquery.Selection) {
		if val, exists := s.Attr(attribute); exists {
			values = append(values, val)
		}
	})

	return success(map[string]interface{}{
		"values": values,
		"count":  len(values),
	})
}

func (p *Provider) xpath(params map[string]interface{}) (*types.Result, error) {
	raw, ok := params["html"].(string)
	if !ok || raw == "" {
		return failure("html parameter required")
	}
	expr, ok := params["xpath"].(string)
	if !ok || expr == "" {
		return failure("xpath parameter required")
	}

	doc, err := loadHTMLNode(raw)
	if err != nil {
		return failure(fmt.Sprintf("parse failed: %v", err))
	}

	all := false
	if a, ok := params["all"].(bool); ok {
		all = a
	}

	if all {
		nodes, err := htmlquery.QueryAll(doc, expr)
		if err != nil {
			return failure(fmt.Sprintf("xpath query failed: %v", err))
		}

		results := make([]map[string]interface{}, 0, len(nodes))
		for _, node := range nodes {
			results = append(results, map[string]interface{}{
				"text": nodeText(node),
				"html": htmlquery.OutputHTML(node, true),
			})
		}
		return success(map[string]interface{}{
			"matches": results,
			"count":   len(results),
		})
	}

	node, err := htmlquery.Query(doc, expr)
	if err != nil {
		return failure(fmt.Sprintf("xpath query failed: %v", err))
	}
	if node == nil {
		return success(map[string]interface{}{
			"matches": []map[string]interface{}{},
			"count":   0,
		})
	}

	return success(map[string]interface{}{
		"matches": []map[string]interface{}{
			{
				"text": nodeText(node),
				"html": htmlquery.OutputHTML(node, true),
			},
		},
		"count": 1,
	})
}

func (p *Provider) metadata(params map[string]interface{}) (*types.Result, error) {
	raw, ok := params["html"].(string)
	if !ok || raw == "" {
		return failure("html parameter required")
	}

	doc, err := loadHTML(raw)
	if err != nil {
		return failure(fmt.Sprintf("parse failed: %v", err))
	}

	standard := make(map[string]string)
	openGraph := make(map[string]string)
	twitter := make(map[string]string)

	doc.Find("meta").Each(func(i int, s *goquery.Selection) {
		name := s.AttrOr("name", "")
		property := s.AttrOr("property", "")
		content := s.AttrOr("content", "")
		if content == "" {
			return
		}

		switch {
		case strings.HasPrefix(property, "og:"):
			openGraph[strings.TrimPrefix(property, "og:")] = content
		case strings.HasPrefix(name, "twitter:"):
			twitter[strings.TrimPrefix(name, "twitter:")] = content
		case name != "":
			standard[name] = content
		}
	})

	return success(map[string]interface{}{
		"standard":   standard,
		"open_graph": openGraph,
		"twitter":    twitter,
		"title":      strings.TrimSpace(doc.Find("title").First().Text()),
	})
}

func (p *Provider) sanitize(params map[string]interface{}) (*types.Result, error) {
	raw, ok := params["html"].(string)
	if !ok || raw == "" {
		return failure("html parameter required")
	}
	if len(raw) > maxHTMLSize {
		return failure(fmt.Sprintf("html exceeds maximum size of %d bytes", maxHTMLSize))
	}

	clean := p.sanitizer.Sanitize(raw)
	return success(map[string]interface{}{
		"html":    clean,
		"removed": len(raw) - len(clean),
	})
}

func validateHTML(raw string) error {
	if len(raw) == 0 {
		return fmt.Errorf("html content required")
	}
	if len(raw) > maxHTMLSize {
		return fmt.Errorf("html exceeds maximum size of %d bytes", maxHTMLSize)
	}
	return nil
}

func detectCharset(data []byte) string {
	detector := chardet.NewTextDetector()
	result, err := detector.DetectBest(data)
	if err != nil || result == nil {
		return "utf-8"
	}
	return strings.ToLower(result.Charset)
}

// loadHTML parses markup into a goquery document with charset detection
func loadHTML(raw string) (*goquery.Document, error) {
	if err := validateHTML(raw); err != nil {
		return nil, err
	}

	data := []byte(raw)
	reader := bytes.NewReader(data)
	utf8Reader, err := charset.NewReader(reader, detectCharset(data))
	if err != nil {
		return goquery.NewDocumentFromReader(strings.NewReader(raw))
	}

	return goquery.NewDocumentFromReader(utf8Reader)
}

// loadHTMLNode parses markup into an xpath-compatible node tree
func loadHTMLNode(raw string) (*html.Node, error) {
	if err := validateHTML(raw); err != nil {
		return nil, err
	}

	data := []byte(raw)
	reader := bytes.NewReader(data)
	utf8Reader, err := charset.NewReader(reader, detectCharset(data))
	if err != nil {
		return htmlquery.Parse(strings.NewReader(raw))
	}

	return htmlquery.Parse(utf8Reader)
}

func nodeText(n *html.Node) string {
	var buf bytes.Buffer
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.TextNode {
			buf.WriteString(n.Data)
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(n)
	return strings.TrimSpace(buf.String())
}
