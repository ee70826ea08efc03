package tools

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	htmltomarkdown "github.com/JohannesKaufmann/html-to-markdown/v2"
	"github.com/PuerkitoBio/goquery"
)

const braveSearchEndpoint = "https://api.search.brave.com/res/v1/web/search"
const defaultUserAgent = "completions"
const maxFetchBytes = 5 << 20
const maxBrowseLinks = 50

// SearchWebTool searches the web and returns structured text results for the model.
type SearchWebTool struct {
	Client   *http.Client
	Provider string
	APIKey   string
	// Endpoint overrides the Brave API URL.
	Endpoint string
}

// Name returns the tool name.
func (t SearchWebTool) Name() string {
	return NameSearchWeb
}

// Execute performs a provider-backed web search and returns text results.
func (t SearchWebTool) Execute(ctx context.Context, call Call) (*Result, error) {
	args, err := decodeArgs[SearchWebArgs](call)
	if err != nil {
		return nil, err
	}
	query, err := requireString("query", args.Query)
	if err != nil {
		return nil, err
	}

	provider := strings.ToLower(strings.TrimSpace(t.Provider))
	if provider == "" {
		provider = "brave"
	}
	if provider != "brave" {
		return nil, fmt.Errorf("unsupported tools.search.provider %q", provider)
	}
	if strings.TrimSpace(t.APIKey) == "" {
		return nil, errors.New("tools.search.api_key is required")
	}
	if t.Client == nil {
		return nil, errors.New("http client is required")
	}

	endpoint := t.Endpoint
	if endpoint == "" {
		endpoint = braveSearchEndpoint
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("create search request: %w", err)
	}
	q := req.URL.Query()
	q.Set("q", query)
	if args.Count > 0 {
		q.Set("count", strconv.Itoa(min(args.Count, 20)))
	}
	req.URL.RawQuery = q.Encode()
	req.Header.Set("Accept", "application/json")
	req.Header.Set("X-Subscription-Token", t.APIKey)
	req.Header.Set("User-Agent", defaultUserAgent)

	resp, err := t.Client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("execute search request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxFetchBytes))
	if err != nil {
		return nil, fmt.Errorf("read search response: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("search request failed: %s", resp.Status)
	}

	var payload struct {
		Web struct {
			Results []struct {
				Title       string `json:"title"`
				URL         string `json:"url"`
				Description string `json:"description"`
			} `json:"results"`
		} `json:"web"`
	}
	if err := json.Unmarshal(body, &payload); err != nil {
		return nil, fmt.Errorf("decode search response: %w", err)
	}
	if len(payload.Web.Results) == 0 {
		return &Result{Output: "no results"}, nil
	}

	var out strings.Builder
	for i, result := range payload.Web.Results {
		if i > 0 {
			out.WriteString("\n\n")
		}
		title := strings.TrimSpace(result.Title)
		if title == "" {
			title = "(untitled)"
		}
		out.WriteString(fmt.Sprintf("%d. %s\n", i+1, title))
		out.WriteString("URL: ")
		out.WriteString(strings.TrimSpace(result.URL))
		description := strings.TrimSpace(result.Description)
		if description != "" {
			out.WriteString("\nSnippet: ")
			out.WriteString(description)
		}
	}
	return &Result{Output: out.String()}, nil
}

// RetrieveWebTool fetches a URL and returns its content as markdown.
type RetrieveWebTool struct {
	Client *http.Client
}

// Name returns the tool name.
func (t RetrieveWebTool) Name() string {
	return NameRetrieveWeb
}

// Execute fetches the page, converting HTML bodies to markdown.
func (t RetrieveWebTool) Execute(ctx context.Context, call Call) (*Result, error) {
	args, err := decodeArgs[RetrieveWebArgs](call)
	if err != nil {
		return nil, err
	}
	rawURL, err := requireString("url", args.URL)
	if err != nil {
		return nil, err
	}

	page, err := fetch(ctx, t.Client, rawURL)
	if err != nil {
		return nil, err
	}
	if !page.isHTML() {
		return &Result{Output: string(page.body)}, nil
	}
	markdown, err := htmltomarkdown.ConvertString(string(page.body))
	if err != nil {
		return nil, fmt.Errorf("convert html to markdown: %w", err)
	}
	return &Result{Output: strings.TrimSpace(markdown)}, nil
}

// BrowseWebTool opens a page and returns its title, markdown content, and links.
type BrowseWebTool struct {
	Client *http.Client
}

// Name returns the tool name.
func (t BrowseWebTool) Name() string {
	return NameBrowseWeb
}

// Execute fetches an HTML page and summarizes it for navigation.
func (t BrowseWebTool) Execute(ctx context.Context, call Call) (*Result, error) {
	args, err := decodeArgs[BrowseWebArgs](call)
	if err != nil {
		return nil, err
	}
	rawURL, err := requireString("url", args.URL)
	if err != nil {
		return nil, err
	}

	page, err := fetch(ctx, t.Client, rawURL)
	if err != nil {
		return nil, err
	}
	if !page.isHTML() {
		return nil, fmt.Errorf("browse_web expects an HTML page, got %q", page.contentType)
	}

	doc, err := goquery.NewDocumentFromReader(strings.NewReader(string(page.body)))
	if err != nil {
		return nil, fmt.Errorf("parse html: %w", err)
	}
	title := strings.TrimSpace(doc.Find("title").First().Text())

	var links []string
	seen := map[string]bool{}
	doc.Find("a[href]").EachWithBreak(func(_ int, sel *goquery.Selection) bool {
		href, _ := sel.Attr("href")
		resolved := resolveLink(page.url, href)
		if resolved == "" || seen[resolved] {
			return true
		}
		seen[resolved] = true
		text := strings.Join(strings.Fields(sel.Text()), " ")
		if text == "" {
			text = resolved
		}
		links = append(links, fmt.Sprintf("- [%s](%s)", text, resolved))
		return len(links) < maxBrowseLinks
	})

	doc.Find("script, style, noscript").Remove()
	bodyHTML, err := doc.Find("body").Html()
	if err != nil {
		return nil, fmt.Errorf("render body: %w", err)
	}
	markdown, err := htmltomarkdown.ConvertString(bodyHTML)
	if err != nil {
		return nil, fmt.Errorf("convert html to markdown: %w", err)
	}

	var out strings.Builder
	out.WriteString("URL: ")
	out.WriteString(page.url.String())
	if title != "" {
		out.WriteString("\nTitle: ")
		out.WriteString(title)
	}
	out.WriteString("\n\n")
	out.WriteString(strings.TrimSpace(markdown))
	if len(links) > 0 {
		out.WriteString("\n\nLinks:\n")
		out.WriteString(strings.Join(links, "\n"))
	}
	return &Result{Output: out.String()}, nil
}

// ParseFileTool downloads a text-like file and returns its contents.
type ParseFileTool struct {
	Client *http.Client
}

// Name returns the tool name.
func (t ParseFileTool) Name() string {
	return NameParseFile
}

// Execute downloads the file. Plain text formats are returned verbatim,
// HTML is converted to markdown, and anything else is rejected.
func (t ParseFileTool) Execute(ctx context.Context, call Call) (*Result, error) {
	args, err := decodeArgs[ParseFileArgs](call)
	if err != nil {
		return nil, err
	}
	rawURL, err := requireString("url", args.URL)
	if err != nil {
		return nil, err
	}

	file, err := fetch(ctx, t.Client, rawURL)
	if err != nil {
		return nil, err
	}
	switch {
	case file.isHTML():
		markdown, err := htmltomarkdown.ConvertString(string(file.body))
		if err != nil {
			return nil, fmt.Errorf("convert html to markdown: %w", err)
		}
		return &Result{Output: strings.TrimSpace(markdown)}, nil
	case file.isText():
		return &Result{Output: string(file.body)}, nil
	default:
		return nil, fmt.Errorf("unsupported file type %q", file.contentType)
	}
}

type fetchedPage struct {
	url         *url.URL
	contentType string
	body        []byte
}

func (p fetchedPage) isHTML() bool {
	return p.contentType == "text/html" || p.contentType == "application/xhtml+xml"
}

func (p fetchedPage) isText() bool {
	switch p.contentType {
	case "application/json", "text/csv", "application/csv", "text/markdown", "application/xml":
		return true
	}
	return strings.HasPrefix(p.contentType, "text/")
}

func fetch(ctx context.Context, client *http.Client, rawURL string) (fetchedPage, error) {
	if client == nil {
		return fetchedPage{}, errors.New("http client is required")
	}
	parsed, err := url.Parse(rawURL)
	if err != nil || (parsed.Scheme != "http" && parsed.Scheme != "https") || parsed.Host == "" {
		return fetchedPage{}, fmt.Errorf("url must be an absolute http(s) URL: %q", rawURL)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, parsed.String(), nil)
	if err != nil {
		return fetchedPage{}, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("User-Agent", defaultUserAgent)
	req.Header.Set("Accept", "text/html, text/markdown, text/plain, application/json, */*;q=0.5")

	resp, err := client.Do(req)
	if err != nil {
		return fetchedPage{}, fmt.Errorf("execute request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxFetchBytes))
	if err != nil {
		return fetchedPage{}, fmt.Errorf("read response body: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fetchedPage{}, fmt.Errorf("fetch %s failed: %s", parsed, resp.Status)
	}

	contentType := resp.Header.Get("Content-Type")
	if mediaType, _, err := mime.ParseMediaType(contentType); err == nil {
		contentType = mediaType
	}
	if contentType == "" {
		contentType = http.DetectContentType(body)
		if mediaType, _, err := mime.ParseMediaType(contentType); err == nil {
			contentType = mediaType
		}
	}
	finalURL := parsed
	if resp.Request != nil && resp.Request.URL != nil {
		finalURL = resp.Request.URL
	}
	return fetchedPage{url: finalURL, contentType: strings.ToLower(contentType), body: body}, nil
}

func resolveLink(base *url.URL, href string) string {
	href = strings.TrimSpace(href)
	if href == "" || strings.HasPrefix(href, "#") || strings.HasPrefix(href, "javascript:") || strings.HasPrefix(href, "mailto:") {
		return ""
	}
	ref, err := url.Parse(href)
	if err != nil {
		return ""
	}
	resolved := base.ResolveReference(ref)
	if resolved.Scheme != "http" && resolved.Scheme != "https" {
		return ""
	}
	resolved.Fragment = ""
	return resolved.String()
}
