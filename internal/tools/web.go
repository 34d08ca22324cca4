package tools

import (
	"context"
	"fmt"
	"html"
	"io"
	"net/http"
	"net/url"
	"regexp"
	"strings"
	"time"
)

const (
	browseTimeout      = 10 * time.Second
	browseMaxChars     = 8000
	browseMaxRedirects = 3
	browseBodyCap      = 1 << 20 // 1 MB raw HTML is plenty for 8k chars of text
	browseUserAgent    = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/115.0.0.0 Safari/537.36"
)

// HTML extraction. Go's RE2 has no backreferences, so one pattern per
// stripped element.
var (
	reTitle    = regexp.MustCompile(`(?is)<title[^>]*>(.*?)</title>`)
	reScript   = regexp.MustCompile(`(?is)<script[\s\S]*?</script>`)
	reStyle    = regexp.MustCompile(`(?is)<style[\s\S]*?</style>`)
	reNav      = regexp.MustCompile(`(?is)<nav[\s\S]*?</nav>`)
	reFooter   = regexp.MustCompile(`(?is)<footer[\s\S]*?</footer>`)
	reHeader   = regexp.MustCompile(`(?is)<header[\s\S]*?</header>`)
	reIframe   = regexp.MustCompile(`(?is)<iframe[\s\S]*?</iframe>`)
	reNoscript = regexp.MustCompile(`(?is)<noscript[\s\S]*?</noscript>`)
	reComment  = regexp.MustCompile(`<!--[\s\S]*?-->`)
	reBlockEnd = regexp.MustCompile(`(?i)</(?:p|div|h[1-6]|li|ul|ol|tr|article|section|blockquote)>`)
	reBreak    = regexp.MustCompile(`(?i)<br\s*/?>`)
	reTag      = regexp.MustCompile(`<[^>]+>`)
	reBlankRun = regexp.MustCompile(`\n{3,}`)
	reSpaceRun = regexp.MustCompile(`[ \t]{2,}`)
)

// BrowseURLTool fetches a page and returns its title plus extracted text.
type BrowseURLTool struct {
	client *http.Client
}

func NewBrowseURLTool() *BrowseURLTool {
	return &BrowseURLTool{
		client: &http.Client{
			Timeout: browseTimeout,
			CheckRedirect: func(req *http.Request, via []*http.Request) error {
				if len(via) >= browseMaxRedirects {
					return fmt.Errorf("stopped after %d redirects", browseMaxRedirects)
				}
				return nil
			},
		},
	}
}

func (t *BrowseURLTool) Name() string { return "browse_url" }

func (t *BrowseURLTool) Description() string {
	return "Visit a specific URL and extract its text content. Use this with URLs."
}

func (t *BrowseURLTool) Parameters() map[string]interface{} {
	return map[string]interface{}{
		"type": "object",
		"properties": map[string]interface{}{
			"url": map[string]interface{}{
				"type":        "string",
				"description": "The URL to visit (must start with http/https).",
			},
		},
		"required": []string{"url"},
	}
}

func (t *BrowseURLTool) Execute(ctx context.Context, args map[string]interface{}) *Result {
	rawURL, _ := args["url"].(string)
	if rawURL == "" {
		return ErrorResult("Error: url is required.")
	}

	parsed, err := url.Parse(rawURL)
	if err != nil || (parsed.Scheme != "http" && parsed.Scheme != "https") || parsed.Host == "" {
		return ErrorResult(fmt.Sprintf("Error browsing page: invalid URL '%s' (must start with http/https).", rawURL))
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return ErrorResult(fmt.Sprintf("Error browsing page: Failed to fetch page: %v", err))
	}
	req.Header.Set("User-Agent", browseUserAgent)
	req.Header.Set("Accept", "text/html,application/xhtml+xml,application/xml;q=0.9,*/*;q=0.8")

	resp, err := t.client.Do(req)
	if err != nil {
		return ErrorResult(fmt.Sprintf("Error browsing page: Failed to fetch page: %v", err))
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return ErrorResult(fmt.Sprintf("Error browsing page: Failed to fetch page: HTTP %d", resp.StatusCode))
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, browseBodyCap))
	if err != nil {
		return ErrorResult(fmt.Sprintf("Error browsing page: Failed to fetch page: %v", err))
	}

	title, content := extractPage(string(body))
	if content == "" {
		content = "No textual content found."
	}

	return NewResult(fmt.Sprintf("Title: %s\nURL: %s\n\n[Page Content]:\n%s", title, resp.Request.URL, content))
}

// extractPage returns the page title and a plain-text rendering of the
// body, capped at browseMaxChars.
func extractPage(doc string) (title, content string) {
	title = "No Title"
	if m := reTitle.FindStringSubmatch(doc); len(m) == 2 {
		if s := strings.TrimSpace(html.UnescapeString(reTag.ReplaceAllString(m[1], ""))); s != "" {
			title = s
		}
	}

	s := reScript.ReplaceAllString(doc, "")
	s = reStyle.ReplaceAllString(s, "")
	s = reNoscript.ReplaceAllString(s, "")
	s = reIframe.ReplaceAllString(s, "")
	s = reNav.ReplaceAllString(s, "")
	s = reFooter.ReplaceAllString(s, "")
	s = reHeader.ReplaceAllString(s, "")
	s = reComment.ReplaceAllString(s, "")

	s = reBreak.ReplaceAllString(s, "\n")
	s = reBlockEnd.ReplaceAllString(s, "\n\n")
	s = reTag.ReplaceAllString(s, " ")
	s = html.UnescapeString(s)

	var lines []string
	for _, line := range strings.Split(s, "\n") {
		line = strings.TrimSpace(reSpaceRun.ReplaceAllString(line, " "))
		lines = append(lines, line)
	}
	s = strings.TrimSpace(reBlankRun.ReplaceAllString(strings.Join(lines, "\n"), "\n\n"))

	if len(s) > browseMaxChars {
		s = s[:browseMaxChars] + "\n...[Content Truncated]"
	}
	return title, s
}
