package builtin

import (
	"context"
	"crypto/md5"
	"encoding/hex"
	"fmt"
	"regexp"
	"strings"
	"sync"

	"github.com/parley-ai/parley/internal/tool"
)

var shortenableURLRe = regexp.MustCompile(`^https?://\S+$`)

type shortLink struct {
	originalURL string
	clicks      int
}

// URLShortener maps URLs to short codes kept in process memory. A code
// is the first six hex characters of the URL's MD5, extended on
// collision.
type URLShortener struct {
	mu    sync.Mutex
	links map[string]*shortLink
}

// NewURLShortener creates an empty URLShortener
func NewURLShortener() *URLShortener {
	return &URLShortener{links: make(map[string]*shortLink)}
}

// Tool returns the url_shortener tool definition
func (u *URLShortener) Tool() tool.Tool {
	return tool.Tool{
		Name:        "url_shortener",
		Description: "Shorten a URL to a short code, or expand a previously created short code",
		Schema: tool.ObjectSchema(map[string]tool.Property{
			"input": {Type: "string", Description: "URL to shorten, or a short code to expand"},
		}, "input"),
		Executor: tool.ExecutorFunc(func(ctx context.Context, args map[string]interface{}) (string, error) {
			input := strings.TrimSpace(args["input"].(string))
			if input == "" {
				return "", fmt.Errorf("provide a URL to shorten or a short code to expand")
			}
			if shortenableURLRe.MatchString(input) {
				return u.shorten(input), nil
			}
			if len(input) <= 10 && isAlphanumeric(input) {
				return u.expand(input)
			}
			return "", fmt.Errorf("input is neither a valid http(s) URL nor a short code")
		}),
	}
}

func (u *URLShortener) shorten(originalURL string) string {
	u.mu.Lock()
	defer u.mu.Unlock()

	for code, link := range u.links {
		if link.originalURL == originalURL {
			return fmt.Sprintf("URL already shortened.\nShort code: %s\nOriginal: %s", code, originalURL)
		}
	}

	code := shortCode(originalURL)
	for u.links[code] != nil {
		code = shortCode(originalURL + fmt.Sprint(len(u.links)))
	}
	u.links[code] = &shortLink{originalURL: originalURL}

	return fmt.Sprintf("URL shortened.\nShort code: %s\nOriginal: %s\nUse the code to expand it later.", code, originalURL)
}

func (u *URLShortener) expand(code string) (string, error) {
	u.mu.Lock()
	defer u.mu.Unlock()

	link, ok := u.links[code]
	if !ok {
		return "", fmt.Errorf("short code %q not found", code)
	}
	link.clicks++

	return fmt.Sprintf("Short code: %s\nOriginal URL: %s\nClicks: %d", code, link.originalURL, link.clicks), nil
}

func shortCode(url string) string {
	sum := md5.Sum([]byte(url))
	return hex.EncodeToString(sum[:])[:6]
}

func isAlphanumeric(s string) bool {
	for _, r := range s {
		switch {
		case r >= 'a' && r <= 'z':
		case r >= 'A' && r <= 'Z':
		case r >= '0' && r <= '9':
		default:
			return false
		}
	}
	return true
}
