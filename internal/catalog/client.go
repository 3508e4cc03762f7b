package catalog

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/patrickmn/go-cache"

	"github.com/foxzi/tplsync/internal/config"
	"github.com/foxzi/tplsync/internal/models"
)

var (
	// ErrFeedUnavailable is returned when the feed cannot be fetched
	ErrFeedUnavailable = errors.New("community feed unavailable")
	// ErrFeedParse is returned when the feed payload is not valid JSON
	ErrFeedParse = errors.New("failed to parse community feed")
	// ErrNotFound is returned when no application or template body exists
	ErrNotFound = errors.New("not found in community feed")
)

const feedCacheKey = "feed"

// maxBodySize limits feed and template downloads
const maxBodySize = 64 << 20

// Client reads the Community Applications feed
type Client struct {
	feedURL    string
	userAgent  string
	httpClient *http.Client
	cache      *cache.Cache
	logger     *slog.Logger
}

// NewClient creates a feed client. The parsed feed is cached for cfg.CacheTTL.
func NewClient(cfg config.CommunityConfig, logger *slog.Logger) *Client {
	ttl := cfg.CacheTTL
	if ttl <= 0 {
		ttl = cache.NoExpiration
	}
	return &Client{
		feedURL:   cfg.FeedURL,
		userAgent: cfg.UserAgent,
		httpClient: &http.Client{
			Timeout: cfg.Timeout,
		},
		cache:  cache.New(ttl, 10*time.Minute),
		logger: logger.With("component", "catalog"),
	}
}

// get performs a GET request and returns the body
func (c *Client) get(ctx context.Context, url string) ([]byte, int, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, 0, fmt.Errorf("create request: %w", err)
	}
	if c.userAgent != "" {
		req.Header.Set("User-Agent", c.userAgent)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, 0, fmt.Errorf("do request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, resp.StatusCode, fmt.Errorf("HTTP %d", resp.StatusCode)
	}

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxBodySize))
	if err != nil {
		return nil, resp.StatusCode, fmt.Errorf("read response: %w", err)
	}
	return data, resp.StatusCode, nil
}

// FetchFeed returns the parsed feed, from cache when fresh
func (c *Client) FetchFeed(ctx context.Context) (*Feed, error) {
	if cached, ok := c.cache.Get(feedCacheKey); ok {
		return cached.(*Feed), nil
	}

	start := time.Now()
	data, _, err := c.get(ctx, c.feedURL)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrFeedUnavailable, err)
	}

	var feed Feed
	if err := json.Unmarshal(data, &feed); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrFeedParse, err)
	}

	c.cache.SetDefault(feedCacheKey, &feed)
	c.logger.Info("community feed fetched",
		"applications", len(feed.Applications),
		"duration", time.Since(start),
	)
	return &feed, nil
}

// InvalidateCache drops the cached feed
func (c *Client) InvalidateCache() {
	c.cache.Delete(feedCacheKey)
}

// FindByRepository returns the first application whose normalized repository
// equals the normalized repo, or ErrNotFound
func (c *Client) FindByRepository(ctx context.Context, repo string) (*App, error) {
	feed, err := c.FetchFeed(ctx)
	if err != nil {
		return nil, err
	}

	want := NormalizeRepository(repo)
	if want == "" {
		return nil, ErrNotFound
	}
	for i := range feed.Applications {
		if NormalizeRepository(string(feed.Applications[i].Repository)) == want {
			return &feed.Applications[i], nil
		}
	}
	return nil, ErrNotFound
}

// Search returns applications matching query by name, repository, overview
// or category
func (c *Client) Search(ctx context.Context, query string) ([]App, error) {
	feed, err := c.FetchFeed(ctx)
	if err != nil {
		return nil, err
	}

	var result []App
	for i := range feed.Applications {
		if feed.Applications[i].Matches(query) {
			result = append(result, feed.Applications[i])
		}
	}
	return result, nil
}

// FetchBody downloads a template document. A 404 yields ErrNotFound.
func (c *Client) FetchBody(ctx context.Context, url string) (string, error) {
	data, status, err := c.get(ctx, url)
	if err != nil {
		if status == http.StatusNotFound {
			return "", ErrNotFound
		}
		return "", fmt.Errorf("%w: %v", ErrFeedUnavailable, err)
	}
	return string(data), nil
}

// Body returns the template document of an app: the feed's embedded template
// when present, else the document at TemplateURL, else one synthesized from
// the app's fields
func (c *Client) Body(ctx context.Context, app *App) (string, error) {
	if body := app.Template.String(); body != "" {
		return body, nil
	}

	if url := app.TemplateURL.String(); url != "" {
		body, err := c.FetchBody(ctx, url)
		if err == nil && body != "" {
			return body, nil
		}
		c.logger.Warn("template body unavailable, synthesizing",
			"repository", app.Repository.String(),
			"url", url,
			"error", err,
		)
	}

	return app.BuildXML()
}

// FindTemplate looks up repo and converts the match into a community
// template record
func (c *Client) FindTemplate(ctx context.Context, repo string) (*models.Template, error) {
	app, err := c.FindByRepository(ctx, repo)
	if err != nil {
		return nil, err
	}

	body, err := c.Body(ctx, app)
	if err != nil {
		return nil, err
	}
	return app.ToTemplate(body), nil
}
