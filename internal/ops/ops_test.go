package ops

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/plateshare/plateshare/internal/cache"
	"github.com/plateshare/plateshare/internal/session"
	"github.com/plateshare/plateshare/pkg/client"
	"github.com/plateshare/plateshare/pkg/domain"
)

// eventBackend serves an events list and join/leave endpoints whose behavior
// the tests script.
type eventBackend struct {
	events     []domain.Event
	joinStatus int           // 0 means success
	joinGate   chan struct{} // when non-nil, join blocks until closed
	joinCalls  atomic.Int64
	qrCalls    atomic.Int64
}

func (b *eventBackend) handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/event", func(w http.ResponseWriter, _ *http.Request) {
		json.NewEncoder(w).Encode(b.events) //nolint:errcheck
	})
	mux.HandleFunc("/event/", func(w http.ResponseWriter, r *http.Request) {
		switch {
		case strings.HasSuffix(r.URL.Path, "/join"):
			b.joinCalls.Add(1)
			if b.joinGate != nil {
				<-b.joinGate
			}
			if b.joinStatus != 0 {
				w.WriteHeader(b.joinStatus)
				json.NewEncoder(w).Encode(map[string]string{"error": "join failed"}) //nolint:errcheck
				return
			}
			json.NewEncoder(w).Encode(b.events[0]) //nolint:errcheck
		case strings.HasSuffix(r.URL.Path, "/leave"):
			json.NewEncoder(w).Encode(b.events[0]) //nolint:errcheck
		default:
			http.NotFound(w, r)
		}
	})
	mux.HandleFunc("/activity/user", func(w http.ResponseWriter, _ *http.Request) {
		json.NewEncoder(w).Encode([]domain.Activity{}) //nolint:errcheck
	})
	mux.HandleFunc("/qr/generate", func(w http.ResponseWriter, _ *http.Request) {
		b.qrCalls.Add(1)
		json.NewEncoder(w).Encode(map[string]domain.QRCode{ //nolint:errcheck
			"qrCode": {ID: "q-new", EventID: "evt1", Type: domain.QRVolunteer, IsActive: true},
		})
	})
	return mux
}

type fixture struct {
	ops     *Operations
	cache   *cache.Cache
	api     *client.Client
	backend *eventBackend
}

func setup(t *testing.T, backend *eventBackend) *fixture {
	t.Helper()
	srv := httptest.NewServer(backend.handler())
	t.Cleanup(srv.Close)

	store := session.NewStore(t.TempDir())
	if err := store.Save(domain.Session{
		Token: "tok",
		User:  domain.User{ID: "u2", WalletAddress: "0xU2", Role: domain.RoleVolunteer},
	}); err != nil {
		t.Fatal(err)
	}

	api := client.New(srv.URL, "tok")
	c := cache.New()

	// Prime the cache the way pages do, registering fetchers for
	// revalidation along the way.
	ctx := context.Background()
	if _, err := cache.Read(ctx, c, cache.KeyEvents, func(ctx context.Context) ([]domain.Event, error) {
		return api.ListEvents(ctx)
	}, cache.ReadOptions{}); err != nil {
		t.Fatalf("prime events: %v", err)
	}
	if _, err := cache.Read(ctx, c, cache.KeyUserActivities, func(ctx context.Context) ([]domain.Activity, error) {
		return api.UserActivities(ctx)
	}, cache.ReadOptions{}); err != nil {
		t.Fatalf("prime activities: %v", err)
	}

	return &fixture{ops: New(api, c, store), cache: c, api: api, backend: backend}
}

func eventsInCache(t *testing.T, c *cache.Cache) []domain.Event {
	t.Helper()
	events, ok := cache.Peek[[]domain.Event](c, cache.KeyEvents)
	if !ok {
		t.Fatal("events key not populated")
	}
	return events
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("condition not met within deadline")
}

func TestJoinEvent_OptimisticThenRollbackOnFailure(t *testing.T) {
	backend := &eventBackend{
		events: []domain.Event{{
			ID: "evt1", Title: "Market rescue", Capacity: 10,
			Participants: []domain.Participant{{UserID: "u1"}},
		}},
		joinStatus: http.StatusInternalServerError,
		joinGate:   make(chan struct{}),
	}
	f := setup(t, backend)

	done := make(chan error, 1)
	go func() { done <- f.ops.JoinEvent(context.Background(), "evt1") }()

	// The optimistic write is visible before the network call resolves.
	waitFor(t, func() bool {
		events, ok := cache.Peek[[]domain.Event](f.cache, cache.KeyEvents)
		return ok && len(events) == 1 && events[0].HasParticipant("u2")
	})

	close(backend.joinGate)
	err := <-done
	if err == nil {
		t.Fatal("expected join failure")
	}

	// Rollback: revalidation restored the pre-mutation server state.
	events := eventsInCache(t, f.cache)
	if events[0].HasParticipant("u2") {
		t.Error("u2 still in participants after rollback")
	}
	if !events[0].HasParticipant("u1") {
		t.Error("u1 missing after rollback")
	}
	acts, _ := cache.Peek[[]domain.Activity](f.cache, cache.KeyUserActivities)
	if len(acts) != 0 {
		t.Errorf("placeholder activity survived rollback: %+v", acts)
	}
}

func TestJoinEvent_SuccessRevalidates(t *testing.T) {
	backend := &eventBackend{
		events: []domain.Event{{ID: "evt1", Title: "Market rescue", Capacity: 10}},
	}
	f := setup(t, backend)

	// Server reflects the join on subsequent list fetches.
	backend.events[0].Participants = []domain.Participant{{UserID: "u2", WalletAddress: "0xU2"}}

	if err := f.ops.JoinEvent(context.Background(), "evt1"); err != nil {
		t.Fatalf("JoinEvent() error: %v", err)
	}
	events := eventsInCache(t, f.cache)
	if !events[0].HasParticipant("u2") {
		t.Error("u2 not in participants after confirmed join")
	}
	if got := backend.joinCalls.Load(); got != 1 {
		t.Errorf("join calls = %d, want 1", got)
	}
}

func TestJoinEvent_CapacityGuard(t *testing.T) {
	backend := &eventBackend{
		events: []domain.Event{{
			ID: "evt1", Capacity: 1,
			Participants: []domain.Participant{{UserID: "u1"}},
		}},
	}
	f := setup(t, backend)

	err := f.ops.JoinEvent(context.Background(), "evt1")
	if !errors.Is(err, ErrEventFull) {
		t.Fatalf("JoinEvent() = %v, want ErrEventFull", err)
	}
	if got := backend.joinCalls.Load(); got != 0 {
		t.Errorf("join calls = %d, want 0 (guarded locally)", got)
	}
	if eventsInCache(t, f.cache)[0].HasParticipant("u2") {
		t.Error("optimistic write applied despite guard")
	}
}

func TestJoinEvent_AlreadyJoined(t *testing.T) {
	backend := &eventBackend{
		events: []domain.Event{{
			ID: "evt1", Capacity: 5,
			Participants: []domain.Participant{{UserID: "u2"}},
		}},
	}
	f := setup(t, backend)

	if err := f.ops.JoinEvent(context.Background(), "evt1"); !errors.Is(err, ErrAlreadyJoined) {
		t.Fatalf("JoinEvent() = %v, want ErrAlreadyJoined", err)
	}
	if got := backend.joinCalls.Load(); got != 0 {
		t.Errorf("join calls = %d, want 0", got)
	}
}

func TestLeaveEvent_RemovesParticipantOptimistically(t *testing.T) {
	backend := &eventBackend{
		events: []domain.Event{{
			ID: "evt1", Capacity: 5,
			Participants: []domain.Participant{{UserID: "u2"}},
		}},
	}
	f := setup(t, backend)

	// Server list reflects the leave afterwards.
	backend.events[0].Participants = nil

	if err := f.ops.LeaveEvent(context.Background(), "evt1"); err != nil {
		t.Fatalf("LeaveEvent() error: %v", err)
	}
	if eventsInCache(t, f.cache)[0].HasParticipant("u2") {
		t.Error("u2 still in participants after leave")
	}
}

func TestGenerateQR_IdempotentPerType(t *testing.T) {
	existing := &domain.QRCode{ID: "q1", EventID: "evt1", Type: domain.QRVolunteer, IsActive: true}
	backend := &eventBackend{
		events: []domain.Event{{
			ID: "evt1", Capacity: 5,
			QRCodes: &domain.EventQRCodes{Volunteer: existing},
		}},
	}
	f := setup(t, backend)

	qr, err := f.ops.GenerateQR(context.Background(), "evt1", domain.QRVolunteer)
	if err != nil {
		t.Fatalf("GenerateQR() error: %v", err)
	}
	if qr.ID != "q1" {
		t.Errorf("qr.ID = %q, want existing %q", qr.ID, "q1")
	}
	if got := backend.qrCalls.Load(); got != 0 {
		t.Errorf("generate calls = %d, want 0 (existing code reused)", got)
	}

	// A type without an existing code does hit the server.
	qr, err = f.ops.GenerateQR(context.Background(), "evt1", domain.QRRecipient)
	if err != nil {
		t.Fatalf("GenerateQR(recipient) error: %v", err)
	}
	if qr.ID != "q-new" {
		t.Errorf("qr.ID = %q, want %q", qr.ID, "q-new")
	}
	if got := backend.qrCalls.Load(); got != 1 {
		t.Errorf("generate calls = %d, want 1", got)
	}
}

func TestGenerateQR_UnknownType(t *testing.T) {
	f := setup(t, &eventBackend{events: []domain.Event{{ID: "evt1"}}})
	if _, err := f.ops.GenerateQR(context.Background(), "evt1", "staff"); err == nil {
		t.Fatal("expected error for unknown QR type")
	}
}
