package deliver

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"time"

	"github.com/dotcommander/beacon/internal/envelope"
	"github.com/dotcommander/beacon/internal/hookconfig"
)

// DefaultTimeout bounds the worst-case latency a delivery adds to the host
// agent. Chosen to stay well under typical hook timeouts.
const DefaultTimeout = 5 * time.Second

const userAgent = "beacon-hook/1.0"

// ErrorKind classifies delivery failures so callers can branch (or journal)
// on the category without string matching.
type ErrorKind string

const (
	// KindTimeout covers request deadlines and client-side timeouts.
	KindTimeout ErrorKind = "timeout"
	// KindTransport covers connection refusal, DNS failure, and any other
	// error before an HTTP status was received.
	KindTransport ErrorKind = "transport"
	// KindStatus means the server answered with anything but HTTP 200.
	KindStatus ErrorKind = "status"
)

// Error is the typed failure returned by Send. It never escapes the hook
// boundary: handlers inspect it, record it, and discard it.
type Error struct {
	Kind   ErrorKind
	Status int
	URL    string
	Err    error
}

func (e *Error) Error() string {
	switch e.Kind {
	case KindStatus:
		return fmt.Sprintf("server rejected event: status %d", e.Status)
	case KindTimeout:
		return fmt.Sprintf("delivery timed out: %v", e.Err)
	default:
		return fmt.Sprintf("delivery transport error: %v", e.Err)
	}
}

func (e *Error) Unwrap() error { return e.Err }

// Options are the query-level intents attached to a delivery. They signal
// server-side behavior (AI summary, TTS notification, completion
// announcement); the envelope itself is identical either way.
type Options struct {
	Summarize bool
	Notify    bool
	Announce  bool
}

// Gated applies the configuration's feature flags. A caller cannot force a
// feature the configuration has disabled; a flag survives only when both the
// request and the config allow it.
func (o Options) Gated(cfg hookconfig.Config) Options {
	return Options{
		Summarize: o.Summarize && cfg.FeatureEnabled(hookconfig.FeatureSummarize),
		Notify:    o.Notify && cfg.FeatureEnabled(hookconfig.FeatureTTSNotifications),
		Announce:  o.Announce && cfg.FeatureEnabled(hookconfig.FeatureCompletionAnnouncements),
	}
}

// Client posts envelopes to one resolved events URL. Single best-effort
// attempt per call: no retries, no queuing. Event durability is traded for
// host-agent responsiveness on purpose.
type Client struct {
	url        string
	httpClient *http.Client
}

// New returns a client for the given events URL. A non-positive timeout
// falls back to DefaultTimeout.
func New(eventsURL string, timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &Client{
		url:        eventsURL,
		httpClient: &http.Client{Timeout: timeout},
	}
}

// URL returns the resolved events URL this client posts to.
func (c *Client) URL() string { return c.url }

// Send posts one envelope. nil means exactly HTTP 200; every failure is a
// *Error. Nothing is ever raised past this boundary: timeouts, refused
// connections, and bad statuses all come back as values.
func (c *Client) Send(ctx context.Context, env envelope.Envelope, opts Options) error {
	body, err := json.Marshal(env)
	if err != nil {
		return &Error{Kind: KindTransport, URL: c.url, Err: fmt.Errorf("encode envelope: %w", err)}
	}

	target, err := buildURL(c.url, opts)
	if err != nil {
		return &Error{Kind: KindTransport, URL: c.url, Err: err}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, target, bytes.NewReader(body))
	if err != nil {
		return &Error{Kind: KindTransport, URL: target, Err: err}
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("User-Agent", userAgent)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return &Error{Kind: classify(err), URL: target, Err: err}
	}
	defer func() { _ = resp.Body.Close() }()
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))

	if resp.StatusCode != http.StatusOK {
		return &Error{Kind: KindStatus, Status: resp.StatusCode, URL: target}
	}
	return nil
}

// buildURL appends the enabled intents as boolean query parameters.
func buildURL(eventsURL string, opts Options) (string, error) {
	u, err := url.Parse(eventsURL)
	if err != nil {
		return "", fmt.Errorf("parse events url: %w", err)
	}
	q := u.Query()
	if opts.Summarize {
		q.Set("summarize", "true")
	}
	if opts.Notify {
		q.Set("notify", "true")
	}
	if opts.Announce {
		q.Set("announce", "true")
	}
	u.RawQuery = q.Encode()
	return u.String(), nil
}

func classify(err error) ErrorKind {
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return KindTimeout
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return KindTimeout
	}
	return KindTransport
}
