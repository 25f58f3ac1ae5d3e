// Package trello implements the board reader over the Trello REST API.
package trello

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"github.com/evanschultz/cardclock/internal/app"
	"github.com/evanschultz/cardclock/internal/domain"
)

// Client defaults.
const (
	DefaultBaseURL           = "https://api.trello.com"
	DefaultTimeout           = 30 * time.Second
	DefaultRequestsPerSecond = 10.0
	DefaultBurst             = 10
	actionsFetchLimit        = 1000
	maxErrorBodyBytes        = 4096
)

const (
	listFields   = "id,name,idBoard"
	cardFields   = "id,name,idBoard,idList,due,dueComplete,idMembers"
	memberFields = "id,fullName,username"
)

// Client reads boards, lists, cards and members. Every request is throttled and retried per policy.
type Client struct {
	baseURL    string
	apiKey     string
	token      string
	httpClient *http.Client
	limiter    *rate.Limiter
	retry      RetryPolicy
	metrics    *Metrics
	now        func() time.Time
}

// Option configures a Client.
type Option func(*Client)

// WithBaseURL overrides the API root.
func WithBaseURL(baseURL string) Option {
	return func(c *Client) {
		if baseURL = strings.TrimRight(strings.TrimSpace(baseURL), "/"); baseURL != "" {
			c.baseURL = baseURL
		}
	}
}

// WithHTTPClient replaces the HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		if hc != nil {
			c.httpClient = hc
		}
	}
}

// WithTimeout sets the per-request timeout on the HTTP client.
func WithTimeout(d time.Duration) Option {
	return func(c *Client) {
		if d > 0 {
			c.httpClient.Timeout = d
		}
	}
}

// WithRateLimit sets the token bucket that throttles outgoing requests.
func WithRateLimit(requestsPerSecond float64, burst int) Option {
	return func(c *Client) {
		if requestsPerSecond <= 0 || burst <= 0 {
			return
		}
		c.limiter = rate.NewLimiter(rate.Limit(requestsPerSecond), burst)
	}
}

// WithRetryPolicy replaces the retry policy. Zero fields take defaults.
func WithRetryPolicy(policy RetryPolicy) Option {
	return func(c *Client) {
		c.retry = policy.normalized()
	}
}

// WithMetrics records request and retry counters.
func WithMetrics(m *Metrics) Option {
	return func(c *Client) {
		c.metrics = m
	}
}

// NewClient constructs a client authenticated with an API key and member token.
func NewClient(apiKey, token string, opts ...Option) *Client {
	c := &Client{
		baseURL:    DefaultBaseURL,
		apiKey:     strings.TrimSpace(apiKey),
		token:      strings.TrimSpace(token),
		httpClient: &http.Client{Timeout: DefaultTimeout},
		limiter:    rate.NewLimiter(rate.Limit(DefaultRequestsPerSecond), DefaultBurst),
		retry:      DefaultRetryPolicy(),
		now:        time.Now,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(c)
		}
	}
	return c
}

var _ app.BoardReader = (*Client)(nil)

// GetList returns one list.
func (c *Client) GetList(ctx context.Context, listID string) (domain.List, error) {
	var out listDTO
	if err := c.get(ctx, "get_list", "/1/lists/"+url.PathEscape(listID), url.Values{"fields": {listFields}}, &out); err != nil {
		return domain.List{}, err
	}
	return out.toDomain(), nil
}

// ListLists returns the open lists of a board.
func (c *Client) ListLists(ctx context.Context, boardID string) ([]domain.List, error) {
	var out []listDTO
	if err := c.get(ctx, "list_lists", "/1/boards/"+url.PathEscape(boardID)+"/lists", url.Values{"fields": {listFields}}, &out); err != nil {
		return nil, err
	}
	lists := make([]domain.List, 0, len(out))
	for _, l := range out {
		list := l.toDomain()
		if list.BoardID == "" {
			list.BoardID = boardID
		}
		lists = append(lists, list)
	}
	return lists, nil
}

// ListCards returns the cards in a list.
func (c *Client) ListCards(ctx context.Context, listID string) ([]domain.Card, error) {
	var out []cardDTO
	if err := c.get(ctx, "list_cards", "/1/lists/"+url.PathEscape(listID)+"/cards", url.Values{"fields": {cardFields}}, &out); err != nil {
		return nil, err
	}
	cards := make([]domain.Card, 0, len(out))
	for _, card := range out {
		cards = append(cards, card.toDomain())
	}
	return cards, nil
}

// GetCard returns one card.
func (c *Client) GetCard(ctx context.Context, cardID string) (domain.Card, error) {
	var out cardDTO
	if err := c.get(ctx, "get_card", "/1/cards/"+url.PathEscape(cardID), url.Values{"fields": {cardFields}}, &out); err != nil {
		return domain.Card{}, err
	}
	return out.toDomain(), nil
}

// ListCardActions returns creation, move and update actions for a card, newest first.
func (c *Client) ListCardActions(ctx context.Context, cardID string) ([]domain.Action, error) {
	var out []actionDTO
	query := url.Values{
		"filter": {actionFilter},
		"limit":  {strconv.Itoa(actionsFetchLimit)},
	}
	if err := c.get(ctx, "card_actions", "/1/cards/"+url.PathEscape(cardID)+"/actions", query, &out); err != nil {
		return nil, err
	}
	actions := make([]domain.Action, 0, len(out))
	for _, a := range out {
		action := a.toDomain()
		if action.CardID == "" {
			action.CardID = cardID
		}
		actions = append(actions, action)
	}
	return actions, nil
}

// ListCustomFields returns the board's custom field definitions.
func (c *Client) ListCustomFields(ctx context.Context, boardID string) ([]domain.CustomFieldDefinition, error) {
	var out []customFieldDTO
	if err := c.get(ctx, "custom_fields", "/1/boards/"+url.PathEscape(boardID)+"/customFields", nil, &out); err != nil {
		return nil, err
	}
	defs := make([]domain.CustomFieldDefinition, 0, len(out))
	for _, d := range out {
		defs = append(defs, d.toDomain())
	}
	return defs, nil
}

// ListCardCustomFieldValues returns the card's custom field values.
func (c *Client) ListCardCustomFieldValues(ctx context.Context, cardID string) ([]domain.CustomFieldValue, error) {
	var out []customFieldItemDTO
	if err := c.get(ctx, "card_custom_fields", "/1/cards/"+url.PathEscape(cardID)+"/customFieldItems", nil, &out); err != nil {
		return nil, err
	}
	values := make([]domain.CustomFieldValue, 0, len(out))
	for _, v := range out {
		values = append(values, v.toDomain())
	}
	return values, nil
}

// GetMember returns one member.
func (c *Client) GetMember(ctx context.Context, memberID string) (domain.Member, error) {
	var out memberDTO
	if err := c.get(ctx, "get_member", "/1/members/"+url.PathEscape(memberID), url.Values{"fields": {memberFields}}, &out); err != nil {
		return domain.Member{}, err
	}
	return out.toDomain(), nil
}

// get issues a throttled GET with retries and decodes the JSON body into result.
func (c *Client) get(ctx context.Context, operation, endpoint string, query url.Values, result any) error {
	if c.apiKey == "" || c.token == "" {
		return fmt.Errorf("%w: trello api key and token are required", app.ErrAuthRequired)
	}
	for attempt := 1; ; attempt++ {
		waitStart := c.now()
		if err := c.limiter.Wait(ctx); err != nil {
			return fmt.Errorf("throttle %s: %w", endpoint, err)
		}
		c.metrics.observeWait(c.now().Sub(waitStart).Seconds())

		statusCode, retryAfter, err := c.do(ctx, endpoint, query, result)
		c.metrics.observeRequest(operation, statusCode)
		if err == nil {
			return nil
		}
		if ctx.Err() != nil || !c.retry.Retryable(statusCode, err) {
			return err
		}
		if attempt >= c.retry.MaxAttempts {
			return &RetryExhaustedError{Endpoint: endpoint, Attempts: attempt, Err: err}
		}
		c.metrics.observeRetry(operation)
		if err := sleep(ctx, c.retry.Backoff(attempt, retryAfter)); err != nil {
			return fmt.Errorf("retry %s: %w", endpoint, err)
		}
	}
}

// do performs one attempt. statusCode is zero when no response arrived.
func (c *Client) do(ctx context.Context, endpoint string, query url.Values, result any) (int, time.Duration, error) {
	params := url.Values{}
	for k, v := range query {
		params[k] = v
	}
	params.Set("key", c.apiKey)
	params.Set("token", c.token)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+endpoint+"?"+params.Encode(), nil)
	if err != nil {
		return 0, 0, err
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return 0, 0, fmt.Errorf("request %s: %w", endpoint, err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode >= http.StatusBadRequest {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBodyBytes))
		retryAfter, _ := parseRetryAfter(resp.Header.Get("Retry-After"), c.now())
		return resp.StatusCode, retryAfter, &StatusError{Endpoint: endpoint, StatusCode: resp.StatusCode, Body: string(body)}
	}
	if err := json.NewDecoder(resp.Body).Decode(result); err != nil {
		return resp.StatusCode, 0, fmt.Errorf("decode %s: %w", endpoint, err)
	}
	return resp.StatusCode, 0, nil
}
