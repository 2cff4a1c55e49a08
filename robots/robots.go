// Package robots answers whether a page URL may be fetched under the
// target host's robots.txt. Verdicts fail open: a host whose robots.txt
// cannot be fetched or parsed allows everything.
package robots

import (
	"context"
	"net/http"
	"net/url"
	"sync"
	"time"

	"github.com/temoto/robotstxt"
)

// Checker fetches and caches robots.txt per host.
// Safe for concurrent use.
type Checker struct {
	agent  string
	client *http.Client

	mu    sync.Mutex
	cache map[string]*robotstxt.RobotsData
}

// New creates a Checker matching the given user-agent token.
func New(agent string) *Checker {
	return &Checker{
		agent:  agent,
		client: &http.Client{Timeout: 10 * time.Second},
		cache:  make(map[string]*robotstxt.RobotsData),
	}
}

// Allowed reports whether rawURL may be fetched.
func (c *Checker) Allowed(ctx context.Context, rawURL string) bool {
	u, err := url.Parse(rawURL)
	if err != nil {
		return true
	}

	data := c.group(ctx, u)
	if data == nil {
		return true
	}
	path := u.Path
	if path == "" {
		path = "/"
	}
	return data.TestAgent(path, c.agent)
}

func (c *Checker) group(ctx context.Context, u *url.URL) *robotstxt.RobotsData {
	key := u.Scheme + "://" + u.Host

	c.mu.Lock()
	if data, ok := c.cache[key]; ok {
		c.mu.Unlock()
		return data
	}
	c.mu.Unlock()

	data := c.fetch(ctx, key+"/robots.txt")

	c.mu.Lock()
	c.cache[key] = data
	c.mu.Unlock()
	return data
}

func (c *Checker) fetch(ctx context.Context, robotsURL string) *robotstxt.RobotsData {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, robotsURL, nil)
	if err != nil {
		return nil
	}
	resp, err := c.client.Do(req)
	if err != nil {
		return nil
	}
	defer resp.Body.Close()

	// FromResponse already maps 4xx to allow-all and 5xx to deny-all.
	data, err := robotstxt.FromResponse(resp)
	if err != nil {
		return nil
	}
	return data
}
