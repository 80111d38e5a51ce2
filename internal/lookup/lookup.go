package lookup

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/dgraph-io/ristretto"

	"github.com/lumilinkco/mochi/internal/config"
)

// Emote is one chat emote as returned by the emote API.
type Emote struct {
	Code     string `json:"code"`
	URL      string `json:"url"`
	Animated bool   `json:"animated"`
}

// Game is one title as returned by the game directory API.
type Game struct {
	Name    string `json:"name"`
	Summary string `json:"summary"`
	Year    int    `json:"year"`
}

// Client performs emote and game lookups against external APIs with a
// TTL'd in-process cache in front, so repeated chat commands do not
// hammer the upstream services.
type Client struct {
	httpClient *http.Client
	emoteBase  string
	gameBase   string
	cache      *ristretto.Cache
	ttl        time.Duration
}

func NewClient(cfg config.LookupConfig) (*Client, error) {
	cache, err := ristretto.NewCache(&ristretto.Config{
		NumCounters: 10_000,
		MaxCost:     1 << 20,
		BufferItems: 64,
	})
	if err != nil {
		return nil, fmt.Errorf("create lookup cache: %w", err)
	}

	ttl := time.Duration(cfg.CacheTTLSec) * time.Second
	if ttl <= 0 {
		ttl = time.Duration(config.DefaultLookupCacheTTLSec) * time.Second
	}

	return &Client{
		httpClient: &http.Client{Timeout: 10 * time.Second},
		emoteBase:  strings.TrimRight(cfg.EmoteBaseURL, "/"),
		gameBase:   strings.TrimRight(cfg.GameBaseURL, "/"),
		cache:      cache,
		ttl:        ttl,
	}, nil
}

// Emote resolves an emote code, serving from cache when possible.
func (c *Client) Emote(ctx context.Context, code string) (*Emote, error) {
	code = strings.TrimSpace(code)
	if code == "" {
		return nil, fmt.Errorf("empty emote code")
	}
	if c.emoteBase == "" {
		return nil, fmt.Errorf("emote lookup not configured")
	}

	cacheKey := "emote:" + strings.ToLower(code)
	if v, ok := c.cache.Get(cacheKey); ok {
		e := v.(Emote)
		return &e, nil
	}

	var e Emote
	reqURL := c.emoteBase + "/emotes/" + url.PathEscape(code)
	if err := c.getJSON(ctx, reqURL, &e); err != nil {
		return nil, err
	}
	c.cache.SetWithTTL(cacheKey, e, 1, c.ttl)
	return &e, nil
}

// Game searches the game directory, serving from cache when possible.
func (c *Client) Game(ctx context.Context, name string) (*Game, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, fmt.Errorf("empty game name")
	}
	if c.gameBase == "" {
		return nil, fmt.Errorf("game lookup not configured")
	}

	cacheKey := "game:" + strings.ToLower(name)
	if v, ok := c.cache.Get(cacheKey); ok {
		g := v.(Game)
		return &g, nil
	}

	var g Game
	reqURL := c.gameBase + "/games?q=" + url.QueryEscape(name)
	if err := c.getJSON(ctx, reqURL, &g); err != nil {
		return nil, err
	}
	c.cache.SetWithTTL(cacheKey, g, 1, c.ttl)
	return &g, nil
}

// Wait blocks until pending cache writes are visible. Tests use it to
// avoid racing ristretto's buffered admission.
func (c *Client) Wait() {
	c.cache.Wait()
}

func (c *Client) getJSON(ctx context.Context, reqURL string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("lookup request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return fmt.Errorf("not found")
	}
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("lookup status %d", resp.StatusCode)
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode lookup response: %w", err)
	}
	return nil
}
