package trello

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"go.uber.org/goleak"

	"github.com/evanschultz/cardclock/internal/app"
	"github.com/evanschultz/cardclock/internal/domain"
)

// newTestClient points a fast, non-throttling client at srv.
func newTestClient(srv *httptest.Server, opts ...Option) *Client {
	base := []Option{
		WithBaseURL(srv.URL),
		WithHTTPClient(srv.Client()),
		WithRateLimit(1000, 100),
		WithRetryPolicy(RetryPolicy{
			MaxAttempts: 3,
			Backoff:     func(int, time.Duration) time.Duration { return time.Millisecond },
		}),
	}
	return NewClient("key-1", "tok-1", append(base, opts...)...)
}

func TestClientListCardActionsDecodesKinds(t *testing.T) {
	defer goleak.VerifyNone(t)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/1/cards/c1/actions" {
			t.Errorf("unexpected path %q", r.URL.Path)
		}
		q := r.URL.Query()
		if q.Get("filter") != "createCard,updateCard:idList,updateCard" || q.Get("limit") != "1000" {
			t.Errorf("unexpected query %v", q)
		}
		if q.Get("key") != "key-1" || q.Get("token") != "tok-1" {
			t.Errorf("missing credentials in query %v", q)
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`[
			{"id":"a4","type":"updateCard","date":"2025-06-05T10:00:00.000Z","data":{"card":{"id":"c1","name":"x"},"old":{"name":"y"}}},
			{"id":"a3","type":"updateCard","date":"2025-06-04T10:00:00.000Z","data":{"card":{"id":"c1","dueComplete":true},"old":{"dueComplete":false}}},
			{"id":"a2","type":"updateCard","date":"2025-06-03T10:00:00.000Z","data":{"card":{"id":"c1"},"old":{"idList":"l1"},"listBefore":{"id":"l1","name":"To Do"},"listAfter":{"id":"l2","name":"Doing"}}},
			{"id":"a1","type":"createCard","date":"2025-06-02T10:00:00.000Z","data":{"card":{"id":"c1"},"list":{"id":"l1","name":"To Do"}}}
		]`))
	}))
	defer srv.Close()

	actions, err := newTestClient(srv).ListCardActions(context.Background(), "c1")
	if err != nil {
		t.Fatalf("ListCardActions() error = %v", err)
	}
	kinds := []domain.ActionKind{domain.ActionOther, domain.ActionCompleted, domain.ActionMoved, domain.ActionCreated}
	if len(actions) != len(kinds) {
		t.Fatalf("expected %d actions, got %d", len(kinds), len(actions))
	}
	for i, want := range kinds {
		if actions[i].Kind != want {
			t.Fatalf("actions[%d].Kind = %q, want %q", i, actions[i].Kind, want)
		}
	}
	moved := actions[2]
	if moved.ListBefore != (domain.ListRef{ID: "l1", Name: "To Do"}) || moved.ListAfter != (domain.ListRef{ID: "l2", Name: "Doing"}) {
		t.Fatalf("unexpected move %#v", moved)
	}
	if actions[3].List.ID != "l1" || actions[3].CardID != "c1" {
		t.Fatalf("unexpected create %#v", actions[3])
	}
	if !actions[1].Date.Equal(time.Date(2025, time.June, 4, 10, 0, 0, 0, time.UTC)) {
		t.Fatalf("unexpected completion date %s", actions[1].Date)
	}
}

func TestClientDecodesCardsAndCustomFields(t *testing.T) {
	defer goleak.VerifyNone(t)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		switch r.URL.Path {
		case "/1/lists/l1/cards":
			_, _ = w.Write([]byte(`[{"id":"c1","idBoard":"b1","idList":"l1","name":"One","due":"2025-06-06T17:00:00.000Z","dueComplete":true,"idMembers":["m1","m2"]},{"id":"c2","idBoard":"b1","idList":"l1","name":"Two","due":null,"idMembers":[]}]`))
		case "/1/boards/b1/customFields":
			_, _ = w.Write([]byte(`[{"id":"f1","name":"Size","type":"list","options":[{"id":"o1","value":{"text":"Small"}},{"id":"o2","value":{"text":"Large"}}]}]`))
		case "/1/cards/c1/customFieldItems":
			_, _ = w.Write([]byte(`[{"id":"i1","idCustomField":"f1","idValue":"o2"},{"id":"i2","idCustomField":"f2","value":{"number":"3"}}]`))
		case "/1/members/m1":
			_, _ = w.Write([]byte(`{"id":"m1","fullName":"Ada Lovelace","username":"ada"}`))
		default:
			http.NotFound(w, r)
		}
	}))
	defer srv.Close()
	client := newTestClient(srv)
	ctx := context.Background()

	cards, err := client.ListCards(ctx, "l1")
	if err != nil {
		t.Fatalf("ListCards() error = %v", err)
	}
	if len(cards) != 2 || cards[0].Due == nil || !cards[0].DueComplete || len(cards[0].MemberIDs) != 2 || cards[1].Due != nil {
		t.Fatalf("unexpected cards %#v", cards)
	}

	fields, err := client.ListCustomFields(ctx, "b1")
	if err != nil {
		t.Fatalf("ListCustomFields() error = %v", err)
	}
	if value, ok := fields[0].OptionValue("o2"); !ok || value != "Large" {
		t.Fatalf("OptionValue(o2) = %q, %t", value, ok)
	}

	values, err := client.ListCardCustomFieldValues(ctx, "c1")
	if err != nil {
		t.Fatalf("ListCardCustomFieldValues() error = %v", err)
	}
	if values[0].OptionID != "o2" || values[1].Text != "3" {
		t.Fatalf("unexpected values %#v", values)
	}

	member, err := client.GetMember(ctx, "m1")
	if err != nil {
		t.Fatalf("GetMember() error = %v", err)
	}
	if member.DisplayName() != "Ada Lovelace" {
		t.Fatalf("DisplayName() = %q", member.DisplayName())
	}
	if _, err := client.GetMember(ctx, "missing"); !errors.Is(err, app.ErrNotFound) {
		t.Fatalf("GetMember(missing) error = %v, want ErrNotFound", err)
	}
}

func TestClientHonoursRetryAfterHint(t *testing.T) {
	defer goleak.VerifyNone(t)
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) < 3 {
			w.Header().Set("Retry-After", "2")
			http.Error(w, "slow down", http.StatusTooManyRequests)
			return
		}
		_, _ = w.Write([]byte(`{"id":"l1","idBoard":"b1","name":"Doing"}`))
	}))
	defer srv.Close()

	var (
		mu    sync.Mutex
		hints []time.Duration
	)
	client := newTestClient(srv, WithRetryPolicy(RetryPolicy{
		MaxAttempts: 3,
		Backoff: func(_ int, retryAfter time.Duration) time.Duration {
			mu.Lock()
			hints = append(hints, retryAfter)
			mu.Unlock()
			return time.Millisecond
		},
	}))
	list, err := client.GetList(context.Background(), "l1")
	if err != nil {
		t.Fatalf("GetList() error = %v", err)
	}
	if list.Name != "Doing" || list.BoardID != "b1" {
		t.Fatalf("unexpected list %#v", list)
	}
	if calls.Load() != 3 {
		t.Fatalf("expected 3 attempts, got %d", calls.Load())
	}
	if len(hints) != 2 || hints[0] != 2*time.Second {
		t.Fatalf("unexpected retry hints %v", hints)
	}
}

func TestClientRetryExhaustedIsFetchFailure(t *testing.T) {
	defer goleak.VerifyNone(t)
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		http.Error(w, "unavailable", http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	registry := prometheus.NewRegistry()
	metrics := NewMetrics(registry)
	client := newTestClient(srv, WithMetrics(metrics))

	_, err := client.ListCardActions(context.Background(), "c1")
	if !errors.Is(err, app.ErrFetchFailed) {
		t.Fatalf("ListCardActions() error = %v, want ErrFetchFailed", err)
	}
	var exhausted *RetryExhaustedError
	if !errors.As(err, &exhausted) || exhausted.Attempts != 3 {
		t.Fatalf("expected RetryExhaustedError after 3 attempts, got %#v", err)
	}
	var status *StatusError
	if !errors.As(err, &status) || status.StatusCode != http.StatusServiceUnavailable {
		t.Fatalf("expected wrapped StatusError, got %v", err)
	}
	if calls.Load() != 3 {
		t.Fatalf("expected 3 attempts, got %d", calls.Load())
	}
	if got := testutil.ToFloat64(metrics.retries.WithLabelValues("card_actions")); got != 2 {
		t.Fatalf("retries_total = %v, want 2", got)
	}
	if got := testutil.ToFloat64(metrics.requests.WithLabelValues("card_actions", "503")); got != 3 {
		t.Fatalf("requests_total = %v, want 3", got)
	}
}

func TestClientDoesNotRetryTerminalResponses(t *testing.T) {
	defer goleak.VerifyNone(t)
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		http.Error(w, "invalid token", http.StatusUnauthorized)
	}))
	defer srv.Close()

	_, err := newTestClient(srv).GetCard(context.Background(), "c1")
	if !errors.Is(err, app.ErrAuthRequired) {
		t.Fatalf("GetCard() error = %v, want ErrAuthRequired", err)
	}
	if errors.Is(err, app.ErrFetchFailed) {
		t.Fatal("terminal response must not be reported as exhausted retries")
	}
	if calls.Load() != 1 {
		t.Fatalf("expected a single attempt, got %d", calls.Load())
	}
}

func TestClientRequiresCredentials(t *testing.T) {
	client := NewClient("key", "")
	if _, err := client.GetCard(context.Background(), "c1"); !errors.Is(err, app.ErrAuthRequired) {
		t.Fatalf("GetCard() error = %v, want ErrAuthRequired", err)
	}
}

func TestClientStopsBackoffOnCancel(t *testing.T) {
	defer goleak.VerifyNone(t)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "slow down", http.StatusTooManyRequests)
	}))
	defer srv.Close()

	client := newTestClient(srv, WithRetryPolicy(RetryPolicy{
		MaxAttempts: 5,
		Backoff:     func(int, time.Duration) time.Duration { return time.Hour },
	}))
	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	_, err := client.GetList(ctx, "l1")
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("GetList() error = %v, want context.DeadlineExceeded", err)
	}
	if errors.Is(err, app.ErrFetchFailed) {
		t.Fatal("cancellation must not be reported as a fetch failure")
	}
}

func TestParseRetryAfter(t *testing.T) {
	now := time.Date(2025, time.June, 2, 9, 0, 0, 0, time.UTC)
	cases := []struct {
		value string
		want  time.Duration
		ok    bool
	}{
		{"3", 3 * time.Second, true},
		{" 0 ", 0, true},
		{now.Add(10 * time.Second).Format(http.TimeFormat), 10 * time.Second, true},
		{now.Add(-time.Minute).Format(http.TimeFormat), 0, true},
		{"-1", 0, false},
		{"soon", 0, false},
		{"", 0, false},
	}
	for _, tc := range cases {
		got, ok := parseRetryAfter(tc.value, now)
		if got != tc.want || ok != tc.ok {
			t.Fatalf("parseRetryAfter(%q) = %s, %t, want %s, %t", tc.value, got, ok, tc.want, tc.ok)
		}
	}
}

func TestExponentialBackoff(t *testing.T) {
	backoff := ExponentialBackoff(100*time.Millisecond, time.Second)
	cases := []struct {
		attempt int
		hint    time.Duration
		want    time.Duration
	}{
		{1, 0, 100 * time.Millisecond},
		{2, 0, 200 * time.Millisecond},
		{3, 0, 400 * time.Millisecond},
		{6, 0, time.Second},
		{1, 300 * time.Millisecond, 300 * time.Millisecond},
		{1, 5 * time.Second, time.Second},
	}
	for _, tc := range cases {
		if got := backoff(tc.attempt, tc.hint); got != tc.want {
			t.Fatalf("backoff(%d, %s) = %s, want %s", tc.attempt, tc.hint, got, tc.want)
		}
	}
}

func TestDefaultRetryable(t *testing.T) {
	transport := errors.New("connection reset")
	cases := []struct {
		status int
		err    error
		want   bool
	}{
		{http.StatusTooManyRequests, transport, true},
		{http.StatusBadGateway, transport, true},
		{0, transport, true},
		{http.StatusBadRequest, transport, false},
		{http.StatusNotFound, transport, false},
		{0, context.Canceled, false},
		{0, nil, false},
	}
	for _, tc := range cases {
		if got := DefaultRetryable(tc.status, tc.err); got != tc.want {
			t.Fatalf("DefaultRetryable(%d, %v) = %t, want %t", tc.status, tc.err, got, tc.want)
		}
	}
}
