// Package mediawiki renders wikitext to HTML through a MediaWiki api.php endpoint.
package mediawiki

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/gocolly/colly/v2"
	"go.uber.org/zap"

	"github.com/JakeFAU/wikicorpus/internal/corpus"
	"github.com/JakeFAU/wikicorpus/internal/policy/retry"
)

const defaultTimeout = 30 * time.Second

// Config controls collector behavior.
type Config struct {
	Endpoint  string
	Variant   corpus.Variant
	UserAgent string
	Timeout   time.Duration
}

// Waiter throttles outgoing calls.
type Waiter interface {
	Wait(ctx context.Context, endpoint string) error
}

// Client implements corpus.Renderer using the Colly collector.
type Client struct {
	cfg           Config
	limiter       Waiter
	retry         *retry.Policy
	baseCollector *colly.Collector
	logger        *zap.Logger
}

type collectorHooks interface {
	OnResponse(colly.ResponseCallback)
	OnError(colly.ErrorCallback)
}

// New builds a Client. limiter may be nil; a nil policy means one attempt per call.
func New(cfg Config, limiter Waiter, policy *retry.Policy, logger *zap.Logger) (*Client, error) {
	if cfg.Endpoint == "" {
		return nil, errors.New("render endpoint is required")
	}
	if cfg.Variant == "" {
		return nil, errors.New("render variant is required")
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = defaultTimeout
	}
	if policy == nil {
		policy = retry.New(retry.Config{MaxAttempts: 1})
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	opts := []colly.CollectorOption{
		colly.Async(false),
		colly.AllowURLRevisit(),
		colly.IgnoreRobotsTxt(),
		colly.MaxBodySize(0),
	}
	if cfg.UserAgent != "" {
		opts = append(opts, colly.UserAgent(cfg.UserAgent))
	}
	c := colly.NewCollector(opts...)
	c.WithTransport(newHTTPTransport())
	c.SetRequestTimeout(cfg.Timeout)

	return &Client{
		cfg:           cfg,
		limiter:       limiter,
		retry:         policy,
		baseCollector: c,
		logger:        logger.Named("renderer"),
	}, nil
}

// Render posts markup to the parse API and returns the rendered HTML. Every
// failure wraps corpus.ErrRender.
func (c *Client) Render(ctx context.Context, markup string) (string, error) {
	for attempt := 1; ; attempt++ {
		html, err := c.renderOnce(ctx, markup)
		if err == nil {
			return html, nil
		}
		if !c.retry.ShouldRetry(err, attempt) {
			return "", err
		}
		c.logger.Debug("retrying render", zap.Int("attempt", attempt), zap.Error(err))
		if werr := c.retry.Wait(ctx, attempt); werr != nil {
			return "", fmt.Errorf("%w: %w", corpus.ErrRender, werr)
		}
	}
}

func (c *Client) renderOnce(ctx context.Context, markup string) (string, error) {
	if c.limiter != nil {
		if err := c.limiter.Wait(ctx, c.cfg.Endpoint); err != nil {
			return "", fmt.Errorf("%w: %w", corpus.ErrRender, err)
		}
	}

	var (
		body    []byte
		respErr error
	)
	collector := c.baseCollector.Clone()
	collector.Context = ctx
	c.configureCollectorHooks(collector, &body, &respErr)

	if err := runCollector(ctx, func() error {
		return collector.Post(c.cfg.Endpoint, c.form(markup))
	}, &respErr); err != nil {
		return "", fmt.Errorf("%w: %w", corpus.ErrRender, err)
	}
	return decodeParse(body)
}

func (c *Client) form(markup string) map[string]string {
	return map[string]string{
		"action":             "parse",
		"format":             "json",
		"contentmodel":       "wikitext",
		"uselang":            string(c.cfg.Variant),
		"disablelimitreport": "1",
		"disableeditsection": "1",
		"text":               markup,
	}
}

func (c *Client) configureCollectorHooks(hooks collectorHooks, body *[]byte, respErr *error) {
	hooks.OnResponse(func(r *colly.Response) {
		*body = append([]byte(nil), r.Body...)
	})
	hooks.OnError(func(r *colly.Response, err error) {
		if r != nil && r.StatusCode != 0 {
			*respErr = fmt.Errorf("status %d: %w", r.StatusCode, err)
			return
		}
		*respErr = err
	})
}

// runCollector returns as soon as ctx ends. The collector carries the same
// ctx, so the abandoned post goroutine exits once the transport sees the
// cancellation.
func runCollector(ctx context.Context, post func() error, respErr *error) error {
	done := make(chan error, 1)
	go func() {
		done <- post()
	}()

	select {
	case <-ctx.Done():
		return fmt.Errorf("render canceled: %w", ctx.Err())
	case err := <-done:
		if *respErr != nil {
			return fmt.Errorf("render response failed: %w", *respErr)
		}
		if err != nil {
			return fmt.Errorf("render post failed: %w", err)
		}
		return nil
	}
}

type parseResponse struct {
	Parse *struct {
		Title  string `json:"title"`
		PageID int64  `json:"pageid"`
		Text   struct {
			HTML *string `json:"*"`
		} `json:"text"`
	} `json:"parse"`
	Error *struct {
		Code string `json:"code"`
		Info string `json:"info"`
	} `json:"error"`
}

func decodeParse(body []byte) (string, error) {
	var resp parseResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return "", fmt.Errorf("%w: decode response: %w", corpus.ErrRender, err)
	}
	if resp.Error != nil {
		return "", fmt.Errorf("%w: api error %s: %s", corpus.ErrRender, resp.Error.Code, resp.Error.Info)
	}
	if resp.Parse == nil || resp.Parse.Text.HTML == nil {
		return "", fmt.Errorf("%w: response has no parse.text", corpus.ErrRender)
	}
	return *resp.Parse.Text.HTML, nil
}

func newHTTPTransport() *http.Transport {
	return &http.Transport{
		Proxy: http.ProxyFromEnvironment,
		DialContext: (&net.Dialer{
			Timeout:   10 * time.Second,
			KeepAlive: 30 * time.Second,
		}).DialContext,
		TLSHandshakeTimeout:   15 * time.Second,
		ExpectContinueTimeout: 1 * time.Second,
		MaxIdleConns:          100,
		MaxIdleConnsPerHost:   64,
		IdleConnTimeout:       90 * time.Second,
	}
}
