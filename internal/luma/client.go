package luma

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/google/go-querystring/query"

	"github.com/diagnosis/luma-gate/internal/metrics"
	"github.com/diagnosis/luma-gate/pkg/config"
	"github.com/diagnosis/luma-gate/pkg/logger"
)

// RetryPolicy bounds retries of transient failures. The delay doubles
// on every retry starting from Base and is capped at Cap.
type RetryPolicy struct {
	MaxAttempts int
	Base        time.Duration
	Cap         time.Duration
}

func (p RetryPolicy) delay(retry int) time.Duration {
	d := p.Base
	for i := 0; i < retry; i++ {
		d *= 2
		if d >= p.Cap {
			return p.Cap
		}
	}
	if d > p.Cap {
		return p.Cap
	}
	return d
}

// Client speaks the platform wire protocol: password sign-in and the
// admin guest lookup, with uniform retry handling for both.
type Client struct {
	baseURL   string
	userAgent string
	client    *http.Client
	retry     RetryPolicy
}

func NewClient(cfg config.APIConfig) *Client {
	return &Client{
		baseURL:   strings.TrimRight(cfg.BaseURL, "/"),
		userAgent: cfg.UserAgent,
		client: &http.Client{
			Timeout: cfg.Timeout,
		},
		retry: RetryPolicy{
			MaxAttempts: cfg.RetryMax,
			Base:        cfg.RetryBase,
			Cap:         cfg.RetryCap,
		},
	}
}

// SignIn authenticates the operator account. The session token is the
// response cookies joined into one Cookie header value. 401/403 maps
// to ErrAuthRejected and is never retried.
func (c *Client) SignIn(ctx context.Context, email, password string) (*Session, error) {
	body, err := json.Marshal(signInRequest{Email: email, Password: password})
	if err != nil {
		return nil, fmt.Errorf("failed to encode sign-in request: %w", err)
	}

	var session *Session
	err = c.withRetry(ctx, "sign_in", func(ctx context.Context) error {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/auth/sign-in-with-password", bytes.NewReader(body))
		if err != nil {
			return fmt.Errorf("failed to create sign-in request: %w", err)
		}
		req.Header.Set("Content-Type", "application/json")
		req.Header.Set("Accept", "application/json")
		req.Header.Set("User-Agent", c.userAgent)

		resp, err := c.client.Do(req)
		if err != nil {
			return fmt.Errorf("sign-in request failed: %w", err)
		}
		defer resp.Body.Close()

		switch resp.StatusCode {
		case http.StatusOK:
			cookies := resp.Cookies()
			if len(cookies) == 0 {
				return fmt.Errorf("sign-in response carried no session cookies")
			}
			session = &Session{
				Token:     joinCookies(cookies),
				ExpiresAt: earliestExpiry(cookies),
			}
			return nil
		case http.StatusUnauthorized, http.StatusForbidden:
			return ErrAuthRejected
		default:
			return apiError(resp)
		}
	})
	if err != nil {
		return nil, err
	}
	return session, nil
}

// GetGuest fetches the registration matching eventID and proxyKey.
// 404 maps to ErrGuestNotFound and 401/403 to ErrUnauthorized, both
// terminal; 5xx and transport failures are retried per policy.
func (c *Client) GetGuest(ctx context.Context, sessionToken, eventID, proxyKey string) (*GuestRecord, error) {
	params, err := query.Values(guestQuery{EventAPIID: eventID, ProxyKey: proxyKey})
	if err != nil {
		return nil, fmt.Errorf("failed to encode guest query: %w", err)
	}

	var guest *GuestRecord
	err = c.withRetry(ctx, "get_guest", func(ctx context.Context) error {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/event/admin/get-guest?"+params.Encode(), nil)
		if err != nil {
			return fmt.Errorf("failed to create guest request: %w", err)
		}
		req.Header.Set("Accept", "application/json")
		req.Header.Set("User-Agent", c.userAgent)
		req.Header.Set("Cookie", sessionToken)

		resp, err := c.client.Do(req)
		if err != nil {
			return fmt.Errorf("guest request failed: %w", err)
		}
		defer resp.Body.Close()

		switch resp.StatusCode {
		case http.StatusOK:
			var envelope guestEnvelope
			if err := json.NewDecoder(resp.Body).Decode(&envelope); err != nil {
				return fmt.Errorf("failed to decode guest response: %w", err)
			}
			if envelope.Guest == nil {
				return fmt.Errorf("guest response missing guest object")
			}
			guest = envelope.Guest
			return nil
		case http.StatusUnauthorized, http.StatusForbidden:
			return ErrUnauthorized
		case http.StatusNotFound:
			return ErrGuestNotFound
		default:
			return apiError(resp)
		}
	})
	if err != nil {
		return nil, err
	}
	return guest, nil
}

// withRetry runs one platform call until it succeeds, fails terminally
// or the policy is exhausted. Caller cancellation always aborts.
func (c *Client) withRetry(ctx context.Context, op string, fn func(context.Context) error) error {
	var err error
	for attempt := 0; attempt < c.retry.MaxAttempts; attempt++ {
		if attempt > 0 {
			delay := c.retry.delay(attempt - 1)
			logger.DebugContext(ctx, "retrying platform call", "op", op, "attempt", attempt+1, "delay", delay.String())
			if werr := sleepCtx(ctx, delay); werr != nil {
				return werr
			}
		}

		start := time.Now()
		err = fn(ctx)
		metrics.APIRequestDuration.WithLabelValues(op).Observe(time.Since(start).Seconds())

		if err == nil {
			metrics.APIRequestsTotal.WithLabelValues(op, "ok").Inc()
			return nil
		}
		if ctx.Err() != nil {
			metrics.APIRequestsTotal.WithLabelValues(op, "error").Inc()
			return err
		}
		if !retryable(err) {
			metrics.APIRequestsTotal.WithLabelValues(op, "error").Inc()
			return err
		}
		metrics.APIRequestsTotal.WithLabelValues(op, "retry").Inc()
	}
	return fmt.Errorf("%s failed after %d attempts: %w", op, c.retry.MaxAttempts, err)
}

func retryable(err error) bool {
	if errors.Is(err, ErrAuthRejected) || errors.Is(err, ErrUnauthorized) || errors.Is(err, ErrGuestNotFound) {
		return false
	}
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr.Status >= 500
	}
	return true
}

func apiError(resp *http.Response) error {
	data, err := io.ReadAll(io.LimitReader(resp.Body, 4096))
	if err != nil {
		return &APIError{Status: resp.StatusCode}
	}

	var m apiMessage
	if err := json.Unmarshal(data, &m); err == nil && m.Message != "" {
		return &APIError{Status: resp.StatusCode, Message: m.Message}
	}
	return &APIError{Status: resp.StatusCode, Message: strings.TrimSpace(string(data))}
}

func joinCookies(cookies []*http.Cookie) string {
	parts := make([]string, 0, len(cookies))
	for _, c := range cookies {
		parts = append(parts, c.Name+"="+c.Value)
	}
	return strings.Join(parts, "; ")
}

// earliestExpiry picks the soonest Expires attribute across the session
// cookies, ignoring ones without an expiry.
func earliestExpiry(cookies []*http.Cookie) *time.Time {
	var earliest *time.Time
	for _, c := range cookies {
		if c.Expires.IsZero() {
			continue
		}
		e := c.Expires.UTC()
		if earliest == nil || e.Before(*earliest) {
			earliest = &e
		}
	}
	return earliest
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
