package github

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

// Tool searches GitHub repositories and fetches repository details.
type Tool struct {
	cfg  config.GitHubConfig
	http *httpx.Client
}

// New creates the github tool.
func New(cfg config.GitHubConfig, client *httpx.Client) *Tool {
	return &Tool{cfg: cfg, http: client}
}

func (t *Tool) Name() string { return "github" }

func (t *Tool) Description() string {
	return "Search GitHub repositories, get repository information including stars, description, and language"
}

func (t *Tool) ParameterSchema() map[string]interface{} {
	return map[string]interface{}{
		"type": "object",
		"properties": map[string]interface{}{
			"action": map[string]interface{}{
				"type":        "string",
				"enum":        []interface{}{"search", "get_repo"},
				"description": "Action to perform: 'search' for searching repos, 'get_repo' for getting specific repo info",
			},
			"query": map[string]interface{}{
				"type":        "string",
				"description": "Search query (for search action) or 'owner/repo' (for get_repo action)",
			},
			"limit": map[string]interface{}{
				"type":        "integer",
				"description": "Maximum number of results to return (default: 5)",
				"default":     5,
			},
		},
		"required": []interface{}{"action", "query"},
	}
}

// Execute runs one GitHub API request. Failures never escape the envelope.
func (t *Tool) Execute(ctx context.Context, params map[string]interface{}) tool.Result {
	if err := tool.ValidateParams(t, params); err != nil {
		return tool.Fail("%v", err)
	}

	action, _ := tool.StringParam(params, "action")
	query, _ := tool.StringParam(params, "query")
	limit := tool.IntParam(params, "limit", 5)

	switch action {
	case "search":
		return t.search(ctx, query, limit)
	case "get_repo":
		return t.getRepo(ctx, query)
	default:
		return tool.Fail("unknown action: %s", action)
	}
}

func (t *Tool) headers() map[string]string {
	h := map[string]string{"Accept": "application/vnd.github.v3+json"}
	if t.cfg.Token != "" {
		h["Authorization"] = "token " + t.cfg.Token
	}
	return h
}

func (t *Tool) baseURL() string {
	if t.cfg.BaseURL != "" {
		return strings.TrimRight(t.cfg.BaseURL, "/")
	}
	return "https://api.github.com"
}

type repoItem struct {
	FullName        string   `json:"full_name"`
	Description     string   `json:"description"`
	StargazersCount int      `json:"stargazers_count"`
	ForksCount      int      `json:"forks_count"`
	Language        string   `json:"language"`
	OpenIssuesCount int      `json:"open_issues_count"`
	CreatedAt       string   `json:"created_at"`
	UpdatedAt       string   `json:"updated_at"`
	HTMLURL         string   `json:"html_url"`
	Topics          []string `json:"topics"`
}

func (t *Tool) search(ctx context.Context, query string, limit int) tool.Result {
	params := url.Values{}
	params.Set("q", query)
	params.Set("sort", "stars")
	params.Set("order", "desc")
	params.Set("per_page", fmt.Sprintf("%d", limit))

	var out struct {
		TotalCount int        `json:"total_count"`
		Items      []repoItem `json:"items"`
	}
	reqURL := fmt.Sprintf("%s/search/repositories?%s", t.baseURL(), params.Encode())
	if err := t.http.DoJSON(ctx, http.MethodGet, reqURL, t.headers(), nil, &out); err != nil {
		return classify("GitHub API error", err)
	}

	repos := make([]map[string]interface{}, 0, len(out.Items))
	for i, item := range out.Items {
		if i >= limit {
			break
		}
		repos = append(repos, map[string]interface{}{
			"name":        item.FullName,
			"description": orDefault(item.Description, "No description"),
			"stars":       item.StargazersCount,
			"language":    orDefault(item.Language, "Unknown"),
			"url":         item.HTMLURL,
		})
	}
	return tool.Ok(map[string]interface{}{
		"total_count":  out.TotalCount,
		"repositories": repos,
	})
}

func (t *Tool) getRepo(ctx context.Context, repoPath string) tool.Result {
	var item repoItem
	reqURL := fmt.Sprintf("%s/repos/%s", t.baseURL(), repoPath)
	if err := t.http.DoJSON(ctx, http.MethodGet, reqURL, t.headers(), nil, &item); err != nil {
		return classify("GitHub API error", err)
	}

	topics := item.Topics
	if topics == nil {
		topics = []string{}
	}
	return tool.Ok(map[string]interface{}{
		"name":        item.FullName,
		"description": orDefault(item.Description, "No description"),
		"stars":       item.StargazersCount,
		"forks":       item.ForksCount,
		"language":    orDefault(item.Language, "Unknown"),
		"open_issues": item.OpenIssuesCount,
		"created_at":  item.CreatedAt,
		"updated_at":  item.UpdatedAt,
		"url":         item.HTMLURL,
		"topics":      topics,
	})
}

func classify(prefix string, err error) tool.Result {
	if httpx.IsTransient(err) {
		return tool.FailTransient("%s: %v", prefix, err)
	}
	return tool.Fail("%s: %v", prefix, err)
}

func orDefault(s, def string) string {
	if s == "" {
		return def
	}
	return s
}
