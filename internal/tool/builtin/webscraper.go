package builtin

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"regexp"
	"strings"

	"github.com/parley-ai/parley/internal/tool"
)

const maxScrapeBytes = 2 << 20

var (
	scriptRe = regexp.MustCompile(`(?is)<(script|style|noscript)[^>]*>.*?</(script|style|noscript)>`)
	tagRe    = regexp.MustCompile(`(?s)<[^>]*>`)
	spaceRe  = regexp.MustCompile(`[ \t]+`)
	blankRe  = regexp.MustCompile(`\n{3,}`)
	titleRe  = regexp.MustCompile(`(?is)<title[^>]*>(.*?)</title>`)
	metaRe   = regexp.MustCompile(`(?is)<meta[^>]+name=["']description["'][^>]+content=["']([^"']*)["']`)
)

// WebScraper returns a tool that fetches a page and extracts its text
func WebScraper(client *http.Client) tool.Tool {
	return tool.Tool{
		Name:        "web_scraper",
		Description: "Fetch a web page and extract its readable text content",
		Schema: tool.ObjectSchema(map[string]tool.Property{
			"url":       {Type: "string", Description: "Page URL to fetch"},
			"max_chars": {Type: "integer", Description: "Truncate extracted text to this many characters, default 2000"},
		}, "url"),
		Executor: tool.ExecutorFunc(func(ctx context.Context, args map[string]interface{}) (string, error) {
			pageURL := args["url"].(string)
			maxChars := 2000
			if n, ok := args["max_chars"].(float64); ok && n > 0 {
				maxChars = int(n)
			}

			page, err := fetchPage(ctx, client, pageURL)
			if err != nil {
				return "", err
			}

			text := htmlToText(page)
			if len(text) > maxChars {
				text = text[:maxChars] + "..."
			}

			var sb strings.Builder
			fmt.Fprintf(&sb, "Content from %s:\n", pageURL)
			if title := extractTitle(page); title != "" {
				fmt.Fprintf(&sb, "Title: %s\n", title)
			}
			fmt.Fprintf(&sb, "\n%s", text)
			return sb.String(), nil
		}),
	}
}

func fetchPage(ctx context.Context, client *http.Client, rawURL string) (string, error) {
	parsed, err := url.Parse(rawURL)
	if err != nil || (parsed.Scheme != "http" && parsed.Scheme != "https") {
		return "", fmt.Errorf("invalid url %q", rawURL)
	}

	req, err := http.NewRequestWithContext(ctx, "GET", rawURL, nil)
	if err != nil {
		return "", err
	}
	req.Header.Set("User-Agent", "parley/1.0")

	resp, err := client.Do(req)
	if err != nil {
		return "", fmt.Errorf("fetch %s: %w", rawURL, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("fetch %s: unexpected status %d", rawURL, resp.StatusCode)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxScrapeBytes))
	if err != nil {
		return "", fmt.Errorf("read %s: %w", rawURL, err)
	}
	return string(body), nil
}

func htmlToText(page string) string {
	text := scriptRe.ReplaceAllString(page, " ")
	text = tagRe.ReplaceAllString(text, "\n")
	text = strings.NewReplacer("&amp;", "&", "&lt;", "<", "&gt;", ">", "&quot;", `"`, "&#39;", "'", "&nbsp;", " ").Replace(text)
	text = spaceRe.ReplaceAllString(text, " ")

	lines := strings.Split(text, "\n")
	kept := lines[:0]
	for _, line := range lines {
		if trimmed := strings.TrimSpace(line); trimmed != "" {
			kept = append(kept, trimmed)
		}
	}
	text = strings.Join(kept, "\n")
	return blankRe.ReplaceAllString(text, "\n\n")
}

func extractTitle(page string) string {
	if m := titleRe.FindStringSubmatch(page); m != nil {
		return strings.TrimSpace(m[1])
	}
	return ""
}

func extractMetaDescription(page string) string {
	if m := metaRe.FindStringSubmatch(page); m != nil {
		return strings.TrimSpace(m[1])
	}
	return ""
}
