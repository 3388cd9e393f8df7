package builtin

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"regexp"
	"strings"
	"time"

	"conductor/internal/logging"
	"conductor/internal/tools"

	"golang.org/x/net/html"
)

var (
	collapseNewlines = regexp.MustCompile(`\n{3,}`)
	collapseSpaces   = regexp.MustCompile(`[ \t]{2,}`)
)

// WebFetchTool returns a tool that fetches a web page and converts its
// content to a compact markdown rendering the model can read.
func WebFetchTool() *tools.Tool {
	return &tools.Tool{
		Name:        "web_fetch",
		Description: "Fetch a web page and convert its content to markdown",
		Execute:     executeWebFetch,
		Schema: tools.ToolSchema{
			Required: []string{"url"},
			Properties: map[string]tools.Property{
				"url": {
					Type:        "string",
					Description: "The URL to fetch",
				},
				"max_length": {
					Type:        "integer",
					Description: "Maximum content length in characters (default: 50000)",
					Default:     50000,
				},
			},
		},
	}
}

func executeWebFetch(ctx context.Context, args map[string]any) (string, error) {
	url, _ := args["url"].(string)
	if url == "" {
		return "", fmt.Errorf("url is required")
	}

	maxLength := 50000
	if ml, hasML := intArg(args, "max_length"); hasML && ml > 0 {
		maxLength = ml
	}

	logging.ToolsDebug("web_fetch: url=%s, max_length=%d", url, maxLength)

	ctx, cancel := context.WithTimeout(ctx, 60*time.Second)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, "GET", url, nil)
	if err != nil {
		return "", fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("User-Agent", "Mozilla/5.0 (compatible; conductor/1.0)")
	req.Header.Set("Accept", "text/html,application/xhtml+xml,application/xml;q=0.9,*/*;q=0.8")

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("failed to fetch URL: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("HTTP %d: %s", resp.StatusCode, resp.Status)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, 2<<20)) // 2MB cap
	if err != nil {
		return "", fmt.Errorf("failed to read response: %w", err)
	}

	contentType := resp.Header.Get("Content-Type")

	// Plain text and markdown pass through untouched.
	if strings.Contains(contentType, "text/plain") ||
		strings.Contains(contentType, "text/markdown") {
		return truncate(string(body), maxLength), nil
	}

	markdown, err := htmlToMarkdown(string(body))
	if err != nil {
		return "", fmt.Errorf("failed to convert to markdown: %w", err)
	}

	logging.Tools("web_fetch completed: %s (%d chars)", url, len(markdown))
	return truncate(markdown, maxLength), nil
}

func truncate(s string, max int) string {
	if len(s) > max {
		return s[:max] + "\n\n[...truncated...]"
	}
	return s
}

// htmlToMarkdown converts HTML to a simplified markdown format.
func htmlToMarkdown(htmlContent string) (string, error) {
	doc, err := html.Parse(strings.NewReader(htmlContent))
	if err != nil {
		return "", err
	}

	var sb strings.Builder
	renderNode(doc, &sb, 0)

	return cleanMarkdown(sb.String()), nil
}

func renderNode(n *html.Node, sb *strings.Builder, depth int) {
	if depth > 50 {
		return
	}

	switch n.Type {
	case html.TextNode:
		if text := strings.TrimSpace(n.Data); text != "" {
			sb.WriteString(text)
			sb.WriteString(" ")
		}
	case html.ElementNode:
		switch n.Data {
		case "script", "style", "noscript", "iframe", "svg", "nav", "footer", "header":
			return
		case "title", "h1":
			sb.WriteString("\n\n# ")
		case "h2":
			sb.WriteString("\n\n## ")
		case "h3":
			sb.WriteString("\n\n### ")
		case "h4", "h5", "h6":
			sb.WriteString("\n\n#### ")
		case "p", "div":
			sb.WriteString("\n\n")
		case "br":
			sb.WriteString("\n")
		case "li":
			sb.WriteString("\n- ")
		case "code":
			sb.WriteString("`")
		case "pre":
			sb.WriteString("\n\n```\n")
		case "strong", "b":
			sb.WriteString("**")
		case "em", "i":
			sb.WriteString("*")
		case "a":
			if href := nodeAttr(n, "href"); href != "" && !strings.HasPrefix(href, "#") {
				sb.WriteString("[")
			}
		case "img":
			if alt := nodeAttr(n, "alt"); alt != "" {
				fmt.Fprintf(sb, "[Image: %s]", alt)
			}
			return
		}
	}

	for c := n.FirstChild; c != nil; c = c.NextSibling {
		renderNode(c, sb, depth+1)
	}

	if n.Type == html.ElementNode {
		switch n.Data {
		case "title", "h1", "h2", "h3", "h4", "h5", "h6":
			sb.WriteString("\n\n")
		case "code":
			sb.WriteString("`")
		case "pre":
			sb.WriteString("\n```\n\n")
		case "strong", "b":
			sb.WriteString("**")
		case "em", "i":
			sb.WriteString("*")
		case "a":
			if href := nodeAttr(n, "href"); href != "" && !strings.HasPrefix(href, "#") {
				fmt.Fprintf(sb, "](%s)", href)
			}
		}
	}
}

func nodeAttr(n *html.Node, key string) string {
	for _, attr := range n.Attr {
		if attr.Key == key {
			return attr.Val
		}
	}
	return ""
}

func cleanMarkdown(s string) string {
	s = collapseNewlines.ReplaceAllString(s, "\n\n")
	s = collapseSpaces.ReplaceAllString(s, " ")

	lines := strings.Split(s, "\n")
	for i, line := range lines {
		lines[i] = strings.TrimSpace(line)
	}
	return strings.TrimSpace(strings.Join(lines, "\n"))
}
