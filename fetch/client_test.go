package fetch

import (
	"context"
	"errors"
	"net"
	"net/http"
	"testing"
	"time"

	"github.com/jarcoal/httpmock"

	"github.com/Appile1/FCCU-Advisior/config"
	"github.com/Appile1/FCCU-Advisior/models"
)

func termRef(code string) models.TermRef {
	return models.TermRef{TermCode: code, TermName: "Term " + code}
}

func testConfig() *config.Config {
	cfg := config.DefaultConfig()
	cfg.BaseURL = "http://example.test"
	cfg.CatalogPath = "/catalog"
	cfg.ListPath = "/list"
	cfg.MaxRetries = 0
	cfg.Timeout = 2 * time.Second
	return cfg
}

func newTestClient(t *testing.T, cfg *config.Config) (*Client, *httpmock.MockTransport) {
	t.Helper()

	client, err := NewClient(cfg)
	if err != nil {
		t.Fatalf("new client: %v", err)
	}
	transport := httpmock.NewMockTransport()
	client.collector.WithTransport(transport)
	return client, transport
}

const catalogPage = `<html><body>
	<form>
		<input type="hidden" name="TOKEN" value="abc123">
		<select id="empower_global_term_id">
			<option value="2261">Spring 2026</option>
			<option value="2253">Fall 2025</option>
		</select>
	</form>
</body></html>`

// htmlResponder tags the body as HTML so element callbacks fire.
func htmlResponder(body string) httpmock.Responder {
	header := http.Header{}
	header.Set("Content-Type", "text/html; charset=utf-8")
	return httpmock.NewStringResponder(http.StatusOK, body).HeaderSet(header)
}

func TestBootstrap(t *testing.T) {
	cfg := testConfig()
	client, transport := newTestClient(t, cfg)
	transport.RegisterResponder("GET", cfg.CatalogURL(), htmlResponder(catalogPage))

	sess, err := client.Bootstrap(context.Background())
	if err != nil {
		t.Fatalf("Bootstrap() error = %v", err)
	}

	if sess.Token != "abc123" {
		t.Errorf("token = %q, want %q", sess.Token, "abc123")
	}
	if len(sess.Terms) != 2 {
		t.Fatalf("terms = %v, want 2 entries", sess.Terms)
	}

	latest, ok := sess.LatestTerm()
	if !ok || latest.TermCode != "2261" || latest.TermName != "Spring 2026" {
		t.Errorf("latest term = %+v, ok = %v", latest, ok)
	}

	if _, ok := sess.FindTerm("2253"); !ok {
		t.Errorf("FindTerm(2253) should succeed")
	}
	if _, ok := sess.FindTerm("9999"); ok {
		t.Errorf("FindTerm(9999) should fail")
	}
}

func TestBootstrapTokenFallback(t *testing.T) {
	page := `<html><body>
		<select id="empower_global_term_id">
			<option value="2261">Spring 2026</option>
		</select>
	</body></html>`

	cfg := testConfig()
	client, transport := newTestClient(t, cfg)
	transport.RegisterResponder("GET", cfg.CatalogURL(), htmlResponder(page))

	sess, err := client.Bootstrap(context.Background())
	if err != nil {
		t.Fatalf("Bootstrap() error = %v", err)
	}
	if sess.Token != fallbackToken {
		t.Errorf("token = %q, want fallback", sess.Token)
	}
}

func TestBootstrapNoTermSelector(t *testing.T) {
	cfg := testConfig()
	client, transport := newTestClient(t, cfg)
	transport.RegisterResponder("GET", cfg.CatalogURL(),
		htmlResponder(`<html><body>maintenance</body></html>`))

	if _, err := client.Bootstrap(context.Background()); err == nil {
		t.Fatalf("expected error when term selector is absent")
	}
}

func TestFetchGrid(t *testing.T) {
	cfg := testConfig()
	client, transport := newTestClient(t, cfg)
	transport.RegisterResponder("POST", cfg.ListURL(),
		httpmock.NewStringResponder(http.StatusOK, `{"html": "<div class=\"ui-grid-row\"></div>"}`))

	sess := &Session{Token: "abc123"}
	markup, err := client.FetchGrid(context.Background(), sess, termRef("2261"))
	if err != nil {
		t.Fatalf("FetchGrid() error = %v", err)
	}
	if markup != `<div class="ui-grid-row"></div>` {
		t.Errorf("markup = %q", markup)
	}
}

func TestFetchGridBadJSON(t *testing.T) {
	cfg := testConfig()
	client, transport := newTestClient(t, cfg)
	transport.RegisterResponder("POST", cfg.ListURL(),
		httpmock.NewStringResponder(http.StatusOK, `<html>not json</html>`))

	if _, err := client.FetchGrid(context.Background(), &Session{Token: "t"}, termRef("2261")); err == nil {
		t.Fatalf("expected decode error for non-JSON body")
	}
}

func TestFetchGridEmptyMarkup(t *testing.T) {
	cfg := testConfig()
	client, transport := newTestClient(t, cfg)
	transport.RegisterResponder("POST", cfg.ListURL(),
		httpmock.NewStringResponder(http.StatusOK, `{"html": ""}`))

	if _, err := client.FetchGrid(context.Background(), &Session{Token: "t"}, termRef("2261")); err == nil {
		t.Fatalf("expected error when grid response carries no markup")
	}
}

func TestWithRetryGivesUpOnNonRetryable(t *testing.T) {
	cfg := testConfig()
	cfg.MaxRetries = 5
	cfg.RetryBackoff = time.Millisecond
	client, _ := newTestClient(t, cfg)

	calls := 0
	err := client.withRetry(context.Background(), "test", func() error {
		calls++
		return errors.New("decode failure")
	})
	if err == nil {
		t.Fatalf("expected error")
	}
	if calls != 1 {
		t.Errorf("calls = %d, want 1 for non-retryable failure", calls)
	}
}

func TestWithRetryRetriesTimeouts(t *testing.T) {
	cfg := testConfig()
	cfg.MaxRetries = 2
	cfg.RetryBackoff = time.Millisecond
	cfg.RetryBackoffMax = 2 * time.Millisecond
	client, _ := newTestClient(t, cfg)

	calls := 0
	err := client.withRetry(context.Background(), "test", func() error {
		calls++
		if calls < 3 {
			return ErrTimeout{Err: context.DeadlineExceeded}
		}
		return nil
	})
	if err != nil {
		t.Fatalf("withRetry error = %v", err)
	}
	if calls != 3 {
		t.Errorf("calls = %d, want 3", calls)
	}
}

func TestWithRetryHonorsContext(t *testing.T) {
	cfg := testConfig()
	cfg.MaxRetries = 10
	cfg.RetryBackoff = time.Hour
	client, _ := newTestClient(t, cfg)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := client.withRetry(ctx, "test", func() error {
		return ErrTimeout{Err: context.DeadlineExceeded}
	})
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("err = %v, want context.Canceled", err)
	}
}

func TestClassifyError(t *testing.T) {
	tests := []struct {
		name       string
		err        error
		statusCode int
		expected   string
	}{
		{name: "context timeout", err: context.DeadlineExceeded, statusCode: 0, expected: "timeout"},
		{name: "net timeout", err: &net.DNSError{IsTimeout: true}, statusCode: 0, expected: "timeout"},
		{name: "connection", err: &net.OpError{Op: "dial", Net: "tcp", Err: errors.New("connection refused")}, statusCode: 0, expected: "connection"},
		{name: "forbidden", err: nil, statusCode: http.StatusForbidden, expected: "forbidden"},
		{name: "not found", err: nil, statusCode: http.StatusNotFound, expected: "not_found"},
		{name: "rate limited", err: nil, statusCode: http.StatusTooManyRequests, expected: "rate_limited"},
		{name: "server error", err: nil, statusCode: http.StatusBadGateway, expected: "upstream_status"},
		{name: "other", err: errors.New("some other error"), statusCode: 0, expected: "other"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := errorTypeLabel(classifyError(tt.err, tt.statusCode)); got != tt.expected {
				t.Fatalf("classifyError(%v, %d) = %q, want %q", tt.err, tt.statusCode, got, tt.expected)
			}
		})
	}
}

func TestRetryable(t *testing.T) {
	if retryable(ErrUpstreamStatus{Status: http.StatusForbidden}) {
		t.Errorf("403 should not be retryable")
	}
	if retryable(ErrUpstreamStatus{Status: http.StatusNotFound}) {
		t.Errorf("404 should not be retryable")
	}
	if !retryable(ErrUpstreamStatus{Status: http.StatusTooManyRequests}) {
		t.Errorf("429 should be retryable")
	}
	if !retryable(ErrUpstreamStatus{Status: http.StatusBadGateway}) {
		t.Errorf("502 should be retryable")
	}
	if !retryable(ErrTimeout{Err: context.DeadlineExceeded}) {
		t.Errorf("timeouts should be retryable")
	}
	if retryable(errors.New("decode failure")) {
		t.Errorf("arbitrary errors should not be retryable")
	}
}

func TestBackoffCapped(t *testing.T) {
	cfg := testConfig()
	cfg.RetryBackoff = 200 * time.Millisecond
	cfg.RetryBackoffMax = 500 * time.Millisecond
	client, _ := newTestClient(t, cfg)

	if delay := client.backoff(4); delay > cfg.RetryBackoffMax {
		t.Fatalf("delay %v exceeds max %v", delay, cfg.RetryBackoffMax)
	}
}
