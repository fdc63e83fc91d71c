// Package fetch acquires the rendered catalog grid from the upstream host.
//
// The catalog exposes no stable API. A session starts at the catalog page,
// which yields a request token and the term selector; the grid itself comes
// back from a form POST as JSON wrapping a markup fragment.
package fetch

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/gocolly/colly/v2"

	"github.com/Appile1/FCCU-Advisior/config"
	"github.com/Appile1/FCCU-Advisior/models"
)

// fallbackToken is accepted by the grid endpoint when the catalog page stops
// embedding a token input. Observed to work across terms.
const fallbackToken = "FFCCEB852C16EC9C9F4DB28054C02272DAA09A9A"

// Client issues catalog requests with retry and metrics.
type Client struct {
	cfg       *config.Config
	collector *colly.Collector
	Metrics   *Metrics
}

// NewClient builds a fetch client configured from cfg.
func NewClient(cfg *config.Config) (*Client, error) {
	parsed, err := url.Parse(cfg.BaseURL)
	if err != nil {
		return nil, fmt.Errorf("parse base url: %w", err)
	}
	if parsed.Host == "" {
		return nil, fmt.Errorf("base url must include a host")
	}

	collector := colly.NewCollector(
		colly.AllowedDomains(parsed.Host),
		colly.UserAgent(cfg.UserAgent),
		colly.AllowURLRevisit(),
	)
	collector.SetRequestTimeout(cfg.Timeout)
	collector.WithTransport(&http.Transport{
		Proxy: http.ProxyFromEnvironment,
		DialContext: (&net.Dialer{
			Timeout:   cfg.Timeout,
			KeepAlive: 30 * time.Second,
		}).DialContext,
		MaxIdleConns:        10,
		IdleConnTimeout:     90 * time.Second,
		TLSHandshakeTimeout: 10 * time.Second,
	})

	return &Client{
		cfg:       cfg,
		collector: collector,
		Metrics:   NewMetrics(),
	}, nil
}

// Session carries what the grid endpoint needs from the catalog page: the
// request token and the selectable terms in page order (newest first).
type Session struct {
	Token string
	Terms []models.TermRef
}

// LatestTerm returns the first selectable term.
func (s *Session) LatestTerm() (models.TermRef, bool) {
	if s == nil || len(s.Terms) == 0 {
		return models.TermRef{}, false
	}
	return s.Terms[0], true
}

// FindTerm returns the term matching code, if the page offers it.
func (s *Session) FindTerm(code string) (models.TermRef, bool) {
	if s == nil {
		return models.TermRef{}, false
	}
	for _, term := range s.Terms {
		if term.TermCode == code {
			return term, true
		}
	}
	return models.TermRef{}, false
}

// Bootstrap loads the catalog page and scrapes the request token and term
// selector from it. A missing token degrades to the known fallback; a
// missing term selector is fatal, since no grid can be requested without a
// term.
func (c *Client) Bootstrap(ctx context.Context) (*Session, error) {
	sess := &Session{}

	err := c.withRetry(ctx, "bootstrap", func() error {
		col := c.collector.Clone()
		c.instrument(col, "bootstrap")

		var token string
		var terms []models.TermRef
		col.OnHTML(`input[name='TOKEN'], input[name='token']`, func(e *colly.HTMLElement) {
			if token == "" {
				token = strings.TrimSpace(e.Attr("value"))
			}
		})
		col.OnHTML(`select#empower_global_term_id option`, func(e *colly.HTMLElement) {
			code := strings.TrimSpace(e.Attr("value"))
			if code == "" {
				return
			}
			terms = append(terms, models.TermRef{
				TermCode: code,
				TermName: strings.TrimSpace(e.Text),
			})
		})

		var reqErr error
		col.OnError(func(r *colly.Response, err error) {
			status := 0
			if r != nil {
				status = r.StatusCode
			}
			reqErr = classifyError(err, status)
		})

		if err := col.Visit(c.cfg.CatalogURL()); err != nil {
			return classifyError(err, 0)
		}
		col.Wait()

		if reqErr != nil {
			return reqErr
		}
		if len(terms) == 0 {
			return fmt.Errorf("term selector not found in catalog page")
		}

		sess.Token = token
		sess.Terms = terms
		return nil
	})
	if err != nil {
		return nil, err
	}

	if sess.Token == "" {
		slog.Warn("request token not found in catalog page, using fallback")
		sess.Token = fallbackToken
	}
	return sess, nil
}

type listResponse struct {
	HTML string `json:"html"`
}

// FetchGrid requests the rendered grid markup for one term.
func (c *Client) FetchGrid(ctx context.Context, sess *Session, term models.TermRef) (string, error) {
	var markup string

	err := c.withRetry(ctx, "grid", func() error {
		col := c.collector.Clone()
		c.instrument(col, "grid")

		var body []byte
		col.OnResponse(func(r *colly.Response) {
			body = r.Body
		})

		var reqErr error
		col.OnError(func(r *colly.Response, err error) {
			status := 0
			if r != nil {
				status = r.StatusCode
			}
			reqErr = classifyError(err, status)
		})

		payload := map[string]string{
			"method":                 "GetList",
			"fuseaction":             "CourseCatalog",
			"token":                  sess.Token,
			"empower_global_term_id": term.TermCode,
			"status":                 "1",
		}
		if err := col.Post(c.cfg.ListURL(), payload); err != nil {
			return classifyError(err, 0)
		}
		col.Wait()

		if reqErr != nil {
			return reqErr
		}

		var decoded listResponse
		if err := json.Unmarshal(body, &decoded); err != nil {
			return fmt.Errorf("decode grid response: %w", err)
		}
		if decoded.HTML == "" {
			return fmt.Errorf("grid response carried no markup")
		}
		markup = decoded.HTML
		return nil
	})

	return markup, err
}

// instrument wires request headers and metrics onto a per-call collector.
func (c *Client) instrument(col *colly.Collector, phase string) {
	col.OnRequest(func(r *colly.Request) {
		r.Ctx.Put("start", time.Now())
		r.Headers.Set("Accept", "application/json, text/javascript, */*; q=0.01")
		r.Headers.Set("Origin", c.cfg.BaseURL)
		r.Headers.Set("Referer", c.cfg.CatalogURL())
		r.Headers.Set("X-Requested-With", "XMLHttpRequest")
		c.Metrics.IncRequest(phase)
	})
	col.OnResponse(func(r *colly.Response) {
		if start, ok := r.Request.Ctx.GetAny("start").(time.Time); ok {
			c.Metrics.ObserveDuration(time.Since(start))
		}
	})
}

// withRetry runs attempt with exponential backoff on retryable failures.
func (c *Client) withRetry(ctx context.Context, phase string, attempt func() error) error {
	for try := 0; ; try++ {
		if err := ctx.Err(); err != nil {
			return err
		}

		err := attempt()
		if err == nil {
			return nil
		}
		c.Metrics.IncError(errorTypeLabel(err))

		if try >= c.cfg.MaxRetries || !retryable(err) {
			return err
		}
		c.Metrics.IncRetries()
		slog.Debug("retrying fetch",
			slog.String("phase", phase),
			slog.Int("attempt", try+1),
			slog.Any("error", err),
		)

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(c.backoff(try + 1)):
		}
	}
}

func (c *Client) backoff(attempt int) time.Duration {
	if attempt <= 0 {
		attempt = 1
	}

	base := c.cfg.RetryBackoff
	if base <= 0 {
		base = 100 * time.Millisecond
	}

	delay := base * time.Duration(1<<(attempt-1))
	if max := c.cfg.RetryBackoffMax; max > 0 && delay > max {
		delay = max
	}
	return delay
}
