package gateway

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"

	"github.com/nicktill/damwatch/pkg/config"
	"github.com/nicktill/damwatch/pkg/table"
)

// Config is everything the client needs to reach one gateway. It is the
// only place credentials live.
type Config struct {
	BaseURL   string
	GatewayID string
	NodeIDs   []string
	Username  string
	Password  string
	// Months is how many calendar months, current one included, of dated
	// files to download.
	Months  int
	Timeout time.Duration
}

// ConfigFrom extracts the gateway settings from the process config.
func ConfigFrom(c config.Config) Config {
	return Config{
		BaseURL:   c.GatewayBaseURL,
		GatewayID: c.GatewayID,
		NodeIDs:   c.GatewayNodes,
		Username:  c.GatewayUsername,
		Password:  c.GatewayPassword,
		Months:    c.GatewayMonths,
		Timeout:   c.GatewayTimeout,
	}
}

// FetchStats counts what discovery and download produced.
type FetchStats struct {
	Nodes          int `json:"nodes"`
	NodesFailed    int `json:"nodes_failed"`
	Links          int `json:"links"`
	Selected       int `json:"selected"`
	Downloaded     int `json:"downloaded"`
	DownloadFailed int `json:"download_failed"`
}

// Client lists and downloads node files from a Loadsensing gateway.
// Requests run one at a time and are never retried.
type Client struct {
	cfg    Config
	http   *resty.Client
	logger *slog.Logger
}

// New creates a client for cfg.
func New(cfg Config, logger *slog.Logger) *Client {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.Months < 1 {
		cfg.Months = config.DefaultGatewayMonths
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = config.DefaultGatewayTimeout
	}
	cfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")

	httpClient := resty.New().
		SetTimeout(cfg.Timeout).
		SetRetryCount(0).
		SetHeader("User-Agent", "damwatch")
	if cfg.Username != "" {
		httpClient.SetBasicAuth(cfg.Username, cfg.Password)
	}

	return &Client{cfg: cfg, http: httpClient, logger: logger}
}

// NodeURL is the directory listing page of one node.
func (c *Client) NodeURL(node string) string {
	return fmt.Sprintf("%s/%s/dataserver/node/view/%s", c.cfg.BaseURL, c.cfg.GatewayID, node)
}

// FileURL resolves a listing href against the gateway base URL.
func (c *Client) FileURL(href string) string {
	if strings.HasPrefix(href, "http://") || strings.HasPrefix(href, "https://") {
		return href
	}
	if !strings.HasPrefix(href, "/") {
		href = "/" + href
	}
	return c.cfg.BaseURL + href
}

// DiscoverLinks reads the listing of every configured node. A node whose
// listing fails, or that lists no data file, is left out.
func (c *Client) DiscoverLinks(ctx context.Context, stats *FetchStats) (map[string][]Link, error) {
	out := make(map[string][]Link)
	for _, node := range c.cfg.NodeIDs {
		if err := ctx.Err(); err != nil {
			return out, err
		}
		stats.Nodes++

		links, err := c.listNode(ctx, node)
		if err != nil {
			stats.NodesFailed++
			c.logger.Warn("failed to list node files", "node", node, "error", err)
			continue
		}
		stats.Links += len(links)
		if len(links) > 0 {
			out[node] = links
		}
	}
	return out, nil
}

func (c *Client) listNode(ctx context.Context, node string) ([]Link, error) {
	resp, err := c.http.R().
		SetContext(ctx).
		SetDoNotParseResponse(true).
		Get(c.NodeURL(node))
	if err != nil {
		return nil, err
	}
	body := resp.RawBody()
	defer body.Close()

	if resp.StatusCode() != http.StatusOK {
		return nil, fmt.Errorf("listing returned %s", resp.Status())
	}

	hrefs, err := ParseLinks(body)
	if err != nil {
		return nil, err
	}
	links := make([]Link, 0, len(hrefs))
	for _, href := range hrefs {
		links = append(links, NewLink(node, href))
	}
	return links, nil
}

// Download fetches every link. Only 200 responses are kept; anything
// else is logged and skipped. Nodes keep their link order.
func (c *Client) Download(ctx context.Context, links map[string][]Link, stats *FetchStats) (map[string][]table.RawPayload, error) {
	out := make(map[string][]table.RawPayload, len(links))
	for _, node := range sortedNodes(links) {
		for _, link := range links[node] {
			if err := ctx.Err(); err != nil {
				return out, err
			}

			resp, err := c.http.R().SetContext(ctx).Get(c.FileURL(link.Href))
			if err != nil {
				stats.DownloadFailed++
				c.logger.Warn("download failed", "node", node, "file", link.Filename, "error", err)
				continue
			}
			if resp.StatusCode() != http.StatusOK {
				stats.DownloadFailed++
				c.logger.Warn("download rejected", "node", node, "file", link.Filename, "status", resp.StatusCode())
				continue
			}

			stats.Downloaded++
			out[node] = append(out[node], table.RawPayload{
				NodeID:   node,
				Filename: link.Filename,
				Data:     resp.Body(),
			})
		}
	}
	return out, nil
}

// Fetch discovers, selects and downloads the files of the configured
// months as of now. Only context cancellation is returned as an error;
// every other failure reduces the result.
func (c *Client) Fetch(ctx context.Context, now time.Time) (map[string][]table.RawPayload, FetchStats, error) {
	var stats FetchStats

	links, err := c.DiscoverLinks(ctx, &stats)
	if err != nil {
		return nil, stats, err
	}

	selected := make(map[string][]Link, len(links))
	for node, nodeLinks := range links {
		keep := SelectLinks(nodeLinks, now, c.cfg.Months)
		stats.Selected += len(keep)
		if len(keep) > 0 {
			selected[node] = keep
		}
	}

	payloads, err := c.Download(ctx, selected, &stats)
	if err != nil {
		return nil, stats, err
	}

	c.logger.Info("gateway fetch complete",
		"nodes", stats.Nodes,
		"nodes_failed", stats.NodesFailed,
		"links", stats.Links,
		"selected", stats.Selected,
		"downloaded", stats.Downloaded,
		"download_failed", stats.DownloadFailed,
	)
	return payloads, stats, nil
}
