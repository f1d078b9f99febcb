package builtin

import (
	"context"
	"fmt"
	"net/http"
	"strings"

	"github.com/parley-ai/parley/internal/tool"
)

// URLSummarizer returns a tool that fetches a page and produces a
// compact summary (title, description, leading sentences).
func URLSummarizer(client *http.Client) tool.Tool {
	return tool.Tool{
		Name:        "url_summarizer",
		Description: "Fetch a web page and summarize its content",
		Schema: tool.ObjectSchema(map[string]tool.Property{
			"url":           {Type: "string", Description: "Page URL to summarize"},
			"max_sentences": {Type: "integer", Description: "Number of leading sentences to include, default 3"},
		}, "url"),
		Executor: tool.ExecutorFunc(func(ctx context.Context, args map[string]interface{}) (string, error) {
			pageURL := args["url"].(string)
			maxSentences := 3
			if n, ok := args["max_sentences"].(float64); ok && n > 0 {
				maxSentences = int(n)
			}

			page, err := fetchPage(ctx, client, pageURL)
			if err != nil {
				return "", err
			}

			var sb strings.Builder
			fmt.Fprintf(&sb, "Summary of %s:\n", pageURL)
			if title := extractTitle(page); title != "" {
				fmt.Fprintf(&sb, "Title: %s\n", title)
			}
			if desc := extractMetaDescription(page); desc != "" {
				fmt.Fprintf(&sb, "Description: %s\n", desc)
			}

			text := htmlToText(page)
			if lead := leadingSentences(text, maxSentences); lead != "" {
				fmt.Fprintf(&sb, "\n%s", lead)
			}
			return sb.String(), nil
		}),
	}
}

func leadingSentences(text string, n int) string {
	text = strings.Join(strings.Fields(text), " ")

	count := 0
	for i, r := range text {
		if r == '.' || r == '!' || r == '?' {
			count++
			if count >= n {
				return text[:i+1]
			}
		}
	}
	if len(text) > 600 {
		return text[:600] + "..."
	}
	return text
}
