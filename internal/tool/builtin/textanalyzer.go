package builtin

import (
	"context"
	"fmt"
	"regexp"
	"sort"
	"strings"

	"github.com/parley-ai/parley/internal/tool"
)

var sentenceSplitRe = regexp.MustCompile(`[.!?]+`)

// TextAnalyzer returns a tool computing basic text metrics
func TextAnalyzer() tool.Tool {
	return tool.Tool{
		Name:        "text_analyzer",
		Description: "Analyze text for word count, sentence count, reading time and frequent words",
		Schema: tool.ObjectSchema(map[string]tool.Property{
			"text": {Type: "string", Description: "Text to analyze"},
		}, "text"),
		Executor: tool.ExecutorFunc(func(ctx context.Context, args map[string]interface{}) (string, error) {
			text := args["text"].(string)
			if strings.TrimSpace(text) == "" {
				return "", fmt.Errorf("text is empty")
			}
			return analyzeText(text), nil
		}),
	}
}

func analyzeText(text string) string {
	words := strings.Fields(text)
	wordCount := len(words)

	sentenceCount := 0
	for _, s := range sentenceSplitRe.Split(text, -1) {
		if strings.TrimSpace(s) != "" {
			sentenceCount++
		}
	}

	avgWords := 0.0
	if sentenceCount > 0 {
		avgWords = float64(wordCount) / float64(sentenceCount)
	}

	// 200 wpm reading speed
	readingMinutes := float64(wordCount) / 200.0

	var sb strings.Builder
	sb.WriteString("Text analysis:\n")
	fmt.Fprintf(&sb, "- Characters: %d\n", len(text))
	fmt.Fprintf(&sb, "- Words: %d\n", wordCount)
	fmt.Fprintf(&sb, "- Sentences: %d\n", sentenceCount)
	fmt.Fprintf(&sb, "- Average words per sentence: %.1f\n", avgWords)
	fmt.Fprintf(&sb, "- Estimated reading time: %.1f minutes\n", readingMinutes)

	if top := topWords(words, 5); len(top) > 0 {
		fmt.Fprintf(&sb, "- Frequent words: %s\n", strings.Join(top, ", "))
	}
	return sb.String()
}

func topWords(words []string, n int) []string {
	stop := map[string]bool{
		"the": true, "a": true, "an": true, "and": true, "or": true,
		"is": true, "are": true, "was": true, "were": true, "to": true,
		"of": true, "in": true, "on": true, "at": true, "for": true,
		"it": true, "this": true, "that": true, "with": true, "as": true,
	}

	freq := make(map[string]int)
	for _, w := range words {
		w = strings.ToLower(strings.Trim(w, ".,!?;:\"'()[]"))
		if len(w) < 2 || stop[w] {
			continue
		}
		freq[w]++
	}

	type wc struct {
		word  string
		count int
	}
	counts := make([]wc, 0, len(freq))
	for w, c := range freq {
		if c > 1 {
			counts = append(counts, wc{w, c})
		}
	}
	sort.Slice(counts, func(i, j int) bool {
		if counts[i].count != counts[j].count {
			return counts[i].count > counts[j].count
		}
		return counts[i].word < counts[j].word
	})

	if len(counts) > n {
		counts = counts[:n]
	}
	out := make([]string, len(counts))
	for i, c := range counts {
		out[i] = fmt.Sprintf("%s (%d)", c.word, c.count)
	}
	return out
}
