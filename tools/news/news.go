package news

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"github.com/mohammad-safakhou/opsassist/config"
	"github.com/mohammad-safakhou/opsassist/internal/httpx"
	"github.com/mohammad-safakhou/opsassist/internal/tool"
)

// Tool fetches news headlines and searches articles via newsapi.org.
type Tool struct {
	cfg  config.NewsConfig
	http *httpx.Client
}

// New creates the news tool.
func New(cfg config.NewsConfig, client *httpx.Client) *Tool {
	return &Tool{cfg: cfg, http: client}
}

func (t *Tool) Name() string { return "news" }

func (t *Tool) Description() string {
	return "Get latest news headlines by topic, category, or search query"
}

func (t *Tool) ParameterSchema() map[string]interface{} {
	return map[string]interface{}{
		"type": "object",
		"properties": map[string]interface{}{
			"action": map[string]interface{}{
				"type":        "string",
				"enum":        []interface{}{"headlines", "search"},
				"description": "Action: 'headlines' for top headlines, 'search' for searching articles",
			},
			"query": map[string]interface{}{
				"type":        "string",
				"description": "Search query (required for search, optional for headlines)",
			},
			"category": map[string]interface{}{
				"type":        "string",
				"enum":        []interface{}{"business", "entertainment", "general", "health", "science", "sports", "technology"},
				"description": "News category (for headlines action)",
			},
			"country": map[string]interface{}{
				"type":        "string",
				"description": "2-letter country code (e.g., 'us', 'gb', 'in')",
				"default":     "us",
			},
			"limit": map[string]interface{}{
				"type":        "integer",
				"description": "Maximum number of articles to return",
				"default":     5,
			},
		},
		"required": []interface{}{"action"},
	}
}

type article struct {
	Source struct {
		Name string `json:"name"`
	} `json:"source"`
	Title       string `json:"title"`
	Description string `json:"description"`
	URL         string `json:"url"`
	PublishedAt string `json:"publishedAt"`
}

type apiResponse struct {
	Status       string    `json:"status"`
	Message      string    `json:"message"`
	TotalResults int       `json:"totalResults"`
	Articles     []article `json:"articles"`
}

// Execute fetches news articles. Failures never escape the envelope.
func (t *Tool) Execute(ctx context.Context, params map[string]interface{}) tool.Result {
	if err := tool.ValidateParams(t, params); err != nil {
		return tool.Fail("%v", err)
	}
	if t.cfg.APIKey == "" {
		return tool.Fail("news API key is not configured")
	}

	action, _ := tool.StringParam(params, "action")
	switch action {
	case "headlines":
		return t.headlines(ctx, params)
	case "search":
		return t.search(ctx, params)
	default:
		return tool.Fail("unknown action: %s", action)
	}
}

func (t *Tool) baseURL() string {
	if t.cfg.BaseURL != "" {
		return strings.TrimRight(t.cfg.BaseURL, "/")
	}
	return "https://newsapi.org/v2"
}

func (t *Tool) headlines(ctx context.Context, params map[string]interface{}) tool.Result {
	q := url.Values{}
	q.Set("apiKey", t.cfg.APIKey)
	country, ok := tool.StringParam(params, "country")
	if !ok || country == "" {
		country = "us"
	}
	q.Set("country", country)
	q.Set("pageSize", fmt.Sprintf("%d", tool.IntParam(params, "limit", 5)))
	if category, ok := tool.StringParam(params, "category"); ok && category != "" {
		q.Set("category", category)
	}
	if query, ok := tool.StringParam(params, "query"); ok && query != "" {
		q.Set("q", query)
	}
	return t.fetch(ctx, fmt.Sprintf("%s/top-headlines?%s", t.baseURL(), q.Encode()))
}

func (t *Tool) search(ctx context.Context, params map[string]interface{}) tool.Result {
	query, ok := tool.StringParam(params, "query")
	if !ok || query == "" {
		return tool.Fail("search query is required for search action")
	}
	q := url.Values{}
	q.Set("apiKey", t.cfg.APIKey)
	q.Set("q", query)
	q.Set("sortBy", "publishedAt")
	q.Set("language", "en")
	q.Set("pageSize", fmt.Sprintf("%d", tool.IntParam(params, "limit", 5)))
	return t.fetch(ctx, fmt.Sprintf("%s/everything?%s", t.baseURL(), q.Encode()))
}

func (t *Tool) fetch(ctx context.Context, reqURL string) tool.Result {
	var out apiResponse
	if err := t.http.DoJSON(ctx, http.MethodGet, reqURL, nil, nil, &out); err != nil {
		if httpx.IsTransient(err) {
			return tool.FailTransient("news API error: %v", err)
		}
		return tool.Fail("news API error: %v", err)
	}
	if out.Status != "ok" {
		msg := out.Message
		if msg == "" {
			msg = "unknown error"
		}
		return tool.Fail("news API error: %s", msg)
	}

	articles := make([]map[string]interface{}, 0, len(out.Articles))
	for _, a := range out.Articles {
		articles = append(articles, map[string]interface{}{
			"title":        orDefault(a.Title, "No title"),
			"source":       orDefault(a.Source.Name, "Unknown"),
			"description":  orDefault(a.Description, "No description"),
			"url":          a.URL,
			"published_at": a.PublishedAt,
		})
	}
	return tool.Ok(map[string]interface{}{
		"total_results": out.TotalResults,
		"articles":      articles,
	})
}

func orDefault(s, def string) string {
	if s == "" {
		return def
	}
	return s
}
