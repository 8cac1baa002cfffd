package toolkit

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
)

const (
	websearchName        = "websearch"
	websearchDescription = "使用网络搜索获取最新信息。参数：搜索查询字符串。"
)

// searchResultLimit caps how many hits make it into the payload.
const searchResultLimit = 5

// Websearch queries an external search API and renders the top hits as a
// numbered digest.
type Websearch struct {
	endpoint string
	apiKey   string
	client   *http.Client
}

// NewWebsearch creates a web search tool against the given endpoint. The
// API key is optional; when set it travels as a bearer token.
func NewWebsearch(endpoint, apiKey string) *Websearch {
	return &Websearch{endpoint: endpoint, apiKey: apiKey, client: http.DefaultClient}
}

func (w *Websearch) Name() string        { return websearchName }
func (w *Websearch) Description() string { return websearchDescription }

// CanHandle always claims the question: search is the fallback capability.
func (w *Websearch) CanHandle(string) bool { return true }

type searchHit struct {
	Title   string `json:"title"`
	Snippet string `json:"snippet"`
	URL     string `json:"url"`
}

type searchResponse struct {
	Results []searchHit `json:"results"`
}

// Run performs the search and returns the formatted digest.
func (w *Websearch) Run(ctx context.Context, input string) (string, error) {
	query := strings.TrimSpace(input)
	if query == "" {
		return "", fmt.Errorf("empty search query")
	}

	u, err := url.Parse(w.endpoint)
	if err != nil {
		return "", fmt.Errorf("parse endpoint: %w", err)
	}
	q := u.Query()
	q.Set("q", query)
	q.Set("count", strconv.Itoa(searchResultLimit))
	u.RawQuery = q.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return "", fmt.Errorf("new request: %w", err)
	}
	if w.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+w.apiKey)
	}

	resp, err := w.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("do request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("search API: status %d", resp.StatusCode)
	}

	var result searchResponse
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return "", fmt.Errorf("decode: %w", err)
	}

	hits := result.Results
	if len(hits) > searchResultLimit {
		hits = hits[:searchResultLimit]
	}
	parts := make([]string, len(hits))
	for i, h := range hits {
		parts[i] = fmt.Sprintf("%d. %s\n   %s\n   %s", i+1, h.Title, h.Snippet, h.URL)
	}
	return fmt.Sprintf("搜索结果（查询: %s）:\n\n%s", query, strings.Join(parts, "\n\n")), nil
}
