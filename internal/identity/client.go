package identity

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/roxdxebec/jenga-biz/internal/domain"
	"github.com/roxdxebec/jenga-biz/internal/observability/metrics"
	"github.com/roxdxebec/jenga-biz/internal/reliability/circuitbreaker"
)

// StatusError is a non-2xx answer from the provider's admin API.
type StatusError struct {
	Op     string
	Status int
	Body   string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("identity provider %s: status %d: %s", e.Op, e.Status, e.Body)
}

// Client talks to the identity provider's admin API using a service key.
type Client struct {
	baseURL    string
	serviceKey string
	httpClient *http.Client
	breaker    *circuitbreaker.CircuitBreaker
	logger     *slog.Logger
}

// NewClient creates an admin API client. Outbound calls are traced and
// guarded by a circuit breaker that only counts transport errors and 5xx.
func NewClient(baseURL, serviceKey string, logger *slog.Logger) *Client {
	if logger == nil {
		logger = slog.Default()
	}
	breaker := circuitbreaker.NewCircuitBreaker(5, 1, 30*time.Second)
	breaker.SetStateChangeCallback(func(from, to circuitbreaker.State) {
		logger.Warn("identity provider circuit state changed",
			slog.String("from", from.String()),
			slog.String("to", to.String()),
		)
		metrics.SetIdentityCircuitState(int(to))
	})
	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		serviceKey: serviceKey,
		httpClient: &http.Client{
			Timeout:   10 * time.Second,
			Transport: otelhttp.NewTransport(http.DefaultTransport),
		},
		breaker: breaker,
		logger:  logger,
	}
}

type adminUser struct {
	ID           string         `json:"id"`
	Email        string         `json:"email"`
	CreatedAt    time.Time      `json:"created_at"`
	UserMetadata map[string]any `json:"user_metadata,omitempty"`
}

type createUserRequest struct {
	Email        string         `json:"email"`
	Password     string         `json:"password"`
	EmailConfirm bool           `json:"email_confirm"`
	UserMetadata map[string]any `json:"user_metadata,omitempty"`
}

func (c *Client) CreateUser(ctx context.Context, in domain.NewIdentity) (*domain.Identity, error) {
	var user adminUser
	err := c.do(ctx, "create_user", http.MethodPost, "/admin/users", createUserRequest{
		Email:        in.Email,
		Password:     in.Password,
		EmailConfirm: true,
		UserMetadata: in.Metadata,
	}, &user)
	if err != nil {
		return nil, err
	}
	if user.ID == "" {
		return nil, fmt.Errorf("identity provider create_user: response without id")
	}
	return toIdentity(user), nil
}

func (c *Client) DeleteUser(ctx context.Context, id string) error {
	return c.do(ctx, "delete_user", http.MethodDelete, "/admin/users/"+url.PathEscape(id), nil, nil)
}

func (c *Client) GetUser(ctx context.Context, id string) (*domain.Identity, error) {
	var user adminUser
	if err := c.do(ctx, "get_user", http.MethodGet, "/admin/users/"+url.PathEscape(id), nil, &user); err != nil {
		return nil, err
	}
	return toIdentity(user), nil
}

func toIdentity(u adminUser) *domain.Identity {
	return &domain.Identity{ID: u.ID, Email: u.Email, Metadata: u.UserMetadata, CreatedAt: u.CreatedAt}
}

func (c *Client) do(ctx context.Context, op, method, path string, in, out any) error {
	var body io.Reader
	if in != nil {
		data, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("marshal %s request: %w", op, err)
		}
		body = bytes.NewReader(data)
	}

	call := func() error {
		req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
		if err != nil {
			return fmt.Errorf("build %s request: %w", op, err)
		}
		req.Header.Set("Authorization", "Bearer "+c.serviceKey)
		req.Header.Set("apikey", c.serviceKey)
		if in != nil {
			req.Header.Set("Content-Type", "application/json")
		}

		resp, err := c.httpClient.Do(req)
		if err != nil {
			return fmt.Errorf("identity provider %s: %w", op, err)
		}
		defer resp.Body.Close()

		if resp.StatusCode == http.StatusNotFound {
			return fmt.Errorf("identity provider %s: %w", op, domain.ErrNotFound)
		}
		if resp.StatusCode < 200 || resp.StatusCode > 299 {
			snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
			return &StatusError{Op: op, Status: resp.StatusCode, Body: strings.TrimSpace(string(snippet))}
		}
		if out != nil {
			if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
				return fmt.Errorf("decode %s response: %w", op, err)
			}
		}
		return nil
	}

	err := c.breaker.Execute(call, countsAgainstBreaker)
	if err != nil && !errors.Is(err, domain.ErrNotFound) {
		c.logger.Warn("identity provider call failed",
			slog.String("operation", op),
			slog.String("error", err.Error()),
		)
	}
	return err
}

// countsAgainstBreaker ignores client errors; they say nothing about the
// provider's health.
func countsAgainstBreaker(err error) bool {
	if errors.Is(err, domain.ErrNotFound) {
		return false
	}
	var se *StatusError
	if errors.As(err, &se) {
		return se.Status >= 500
	}
	return true
}
