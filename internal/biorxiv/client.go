package biorxiv

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/andresuchdata/paperview/backend-go/internal/config"
)

const defaultBaseURL = "https://api.biorxiv.org"

// Client talks to the bioRxiv details API. The monthly archive dumps
// carry no article metadata, so titles and authorship come from here.
type Client struct {
	baseURL string
	server  string
	http    *http.Client
}

// ArticleDetail is one preprint version as reported by the details API
type ArticleDetail struct {
	DOI                    string `json:"doi"`
	Title                  string `json:"title"`
	Authors                string `json:"authors"`
	AuthorCorresponding    string `json:"author_corresponding"`
	AuthorCorrespondingIns string `json:"author_corresponding_institution"`
	Date                   string `json:"date"`
	Version                string `json:"version"`
	Type                   string `json:"type"`
	License                string `json:"license"`
	Category               string `json:"category"`
	Abstract               string `json:"abstract"`
	Published              string `json:"published"`
	Server                 string `json:"server"`
}

type statusMessage struct {
	Status string `json:"status"`
	Count  int    `json:"count"`
	Total  int    `json:"total"`
}

type detailsResponse struct {
	Messages   []statusMessage `json:"messages"`
	Collection []ArticleDetail `json:"collection"`
}

func NewClient(cfg config.BiorxivConfig) *Client {
	baseURL := cfg.BaseURL
	if baseURL == "" {
		baseURL = defaultBaseURL
	}
	timeout := time.Duration(cfg.TimeoutMS) * time.Millisecond
	if timeout <= 0 {
		timeout = 30 * time.Second
	}

	return &Client{
		baseURL: baseURL,
		server:  "biorxiv",
		http:    &http.Client{Timeout: timeout},
	}
}

// Details fetches every version of one preprint. The DOI goes into the
// path as-is; the API expects its slash unescaped.
func (c *Client) Details(ctx context.Context, doi string) ([]ArticleDetail, error) {
	url := fmt.Sprintf("%s/details/%s/%s", c.baseURL, c.server, doi)
	resp, err := c.get(ctx, url)
	if err != nil {
		return nil, err
	}
	return resp.Collection, nil
}

// DetailsByInterval pages through the preprints posted between two
// YYYY-MM-DD dates. The API serves fixed-size pages addressed by a
// numeric cursor; max caps the number of articles fetched, 0 means all.
func (c *Client) DetailsByInterval(ctx context.Context, start, end string, max int) ([]ArticleDetail, error) {
	var articles []ArticleDetail
	cursor := 0

	for {
		url := fmt.Sprintf("%s/details/%s/%s/%s/%d", c.baseURL, c.server, start, end, cursor)
		resp, err := c.get(ctx, url)
		if err != nil {
			return nil, err
		}
		if len(resp.Collection) == 0 {
			return articles, nil
		}

		articles = append(articles, resp.Collection...)
		if max > 0 && len(articles) >= max {
			return articles[:max], nil
		}
		if len(resp.Messages) > 0 && resp.Messages[0].Total > 0 && len(articles) >= resp.Messages[0].Total {
			return articles, nil
		}

		cursor += len(resp.Collection)
	}
}

func (c *Client) get(ctx context.Context, url string) (*detailsResponse, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}

	res, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("biorxiv request failed: %w", err)
	}
	defer res.Body.Close()

	if res.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(res.Body, 512))
		return nil, fmt.Errorf("biorxiv returned %d: %s", res.StatusCode, body)
	}

	var parsed detailsResponse
	if err := json.NewDecoder(res.Body).Decode(&parsed); err != nil {
		return nil, fmt.Errorf("decode biorxiv response: %w", err)
	}
	if len(parsed.Messages) > 0 && parsed.Messages[0].Status != "ok" {
		return nil, fmt.Errorf("biorxiv status %q", parsed.Messages[0].Status)
	}

	return &parsed, nil
}
