package builtin

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"github.com/tidwall/gjson"

	"github.com/parley-ai/parley/internal/tool"
)

const defaultSearchURL = "https://api.duckduckgo.com/"

// WebSearch returns an instant-answer search tool
func WebSearch(client *http.Client, baseURL string) tool.Tool {
	if baseURL == "" {
		baseURL = defaultSearchURL
	}

	return tool.Tool{
		Name:        "web_search",
		Description: "Search the web for information on any topic",
		Schema: tool.ObjectSchema(map[string]tool.Property{
			"query":       {Type: "string", Description: "Search query"},
			"max_results": {Type: "integer", Description: "Maximum number of results, default 5"},
		}, "query"),
		Executor: tool.ExecutorFunc(func(ctx context.Context, args map[string]interface{}) (string, error) {
			query := args["query"].(string)
			maxResults := 5
			if n, ok := args["max_results"].(float64); ok && n > 0 {
				maxResults = int(n)
			}

			q := url.Values{}
			q.Set("q", query)
			q.Set("format", "json")
			q.Set("no_html", "1")

			body, err := fetchJSON(ctx, client, baseURL+"?"+q.Encode())
			if err != nil {
				return "", fmt.Errorf("search %q: %w", query, err)
			}

			var sb strings.Builder
			fmt.Fprintf(&sb, "Search results for %q:\n", query)

			if abstract := gjson.GetBytes(body, "AbstractText").String(); abstract != "" {
				fmt.Fprintf(&sb, "\n%s\n", abstract)
				if src := gjson.GetBytes(body, "AbstractURL").String(); src != "" {
					fmt.Fprintf(&sb, "Source: %s\n", src)
				}
			}

			count := 0
			for _, topic := range gjson.GetBytes(body, "RelatedTopics").Array() {
				text := topic.Get("Text").String()
				if text == "" {
					continue
				}
				count++
				fmt.Fprintf(&sb, "\n%d. %s", count, text)
				if u := topic.Get("FirstURL").String(); u != "" {
					fmt.Fprintf(&sb, " (%s)", u)
				}
				if count >= maxResults {
					break
				}
			}

			if count == 0 && gjson.GetBytes(body, "AbstractText").String() == "" {
				return fmt.Sprintf("No results found for %q", query), nil
			}
			return sb.String(), nil
		}),
	}
}
