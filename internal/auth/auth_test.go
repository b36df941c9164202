package auth

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/crypto"

	"github.com/plateshare/plateshare/internal/session"
	"github.com/plateshare/plateshare/internal/wallet"
	"github.com/plateshare/plateshare/pkg/client"
	"github.com/plateshare/plateshare/pkg/domain"
)

// authServer is a handshake backend that counts nonce and verify calls.
type authServer struct {
	nonceCalls  atomic.Int64
	verifyCalls atomic.Int64
	nonceDelay  time.Duration
	rejectSig   bool
}

func (s *authServer) handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/auth/nonce", func(w http.ResponseWriter, _ *http.Request) {
		s.nonceCalls.Add(1)
		time.Sleep(s.nonceDelay)
		json.NewEncoder(w).Encode(map[string]string{"nonce": "n1"}) //nolint:errcheck
	})
	mux.HandleFunc("/auth/verify", func(w http.ResponseWriter, r *http.Request) {
		s.verifyCalls.Add(1)
		var req map[string]string
		json.NewDecoder(r.Body).Decode(&req) //nolint:errcheck
		if s.rejectSig || req["signature"] == "" {
			w.WriteHeader(http.StatusUnauthorized)
			json.NewEncoder(w).Encode(map[string]string{"error": "invalid signature"}) //nolint:errcheck
			return
		}
		json.NewEncoder(w).Encode(domain.Session{ //nolint:errcheck
			Token: "t1",
			User:  domain.User{ID: "u1", WalletAddress: req["address"]},
		})
	})
	return mux
}

func testWallet(t *testing.T) *wallet.LocalWallet {
	t.Helper()
	key, err := crypto.GenerateKey()
	if err != nil {
		t.Fatal(err)
	}
	return wallet.FromKey(key)
}

func TestAuthenticate_HappyPath(t *testing.T) {
	backend := &authServer{}
	srv := httptest.NewServer(backend.handler())
	defer srv.Close()

	store := session.NewStore(t.TempDir())
	api := client.New(srv.URL, "")
	redirected := false
	a := New(api, testWallet(t), store, func() { redirected = true })

	if err := a.Authenticate(context.Background()); err != nil {
		t.Fatalf("Authenticate() error: %v", err)
	}
	if !store.IsAuthenticated() {
		t.Error("session not persisted after handshake")
	}
	if store.Token() != "t1" {
		t.Errorf("token = %q, want %q", store.Token(), "t1")
	}
	if store.Session().User.ID != "u1" {
		t.Errorf("user id = %q, want %q", store.Session().User.ID, "u1")
	}
	if !redirected {
		t.Error("redirect not invoked on success")
	}
}

func TestAuthenticate_ConcurrentCallsAreSingleAttempt(t *testing.T) {
	backend := &authServer{nonceDelay: 150 * time.Millisecond}
	srv := httptest.NewServer(backend.handler())
	defer srv.Close()

	a := New(client.New(srv.URL, ""), testWallet(t), session.NewStore(t.TempDir()), nil)

	const n = 5
	var wg sync.WaitGroup
	errs := make([]error, n)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			errs[i] = a.Authenticate(context.Background())
		}(i)
	}
	wg.Wait()

	if got := backend.nonceCalls.Load(); got != 1 {
		t.Errorf("nonce requests = %d, want 1", got)
	}
	if got := backend.verifyCalls.Load(); got != 1 {
		t.Errorf("verify requests = %d, want 1", got)
	}

	var inflight, succeeded int
	for _, err := range errs {
		switch {
		case err == nil:
			succeeded++
		case errors.Is(err, ErrInFlight):
			inflight++
		default:
			t.Errorf("unexpected error: %v", err)
		}
	}
	if succeeded != 1 || inflight != n-1 {
		t.Errorf("succeeded=%d inflight=%d, want 1 and %d", succeeded, inflight, n-1)
	}
}

func TestAuthenticate_SkipsWhenSessionValid(t *testing.T) {
	backend := &authServer{}
	srv := httptest.NewServer(backend.handler())
	defer srv.Close()

	store := session.NewStore(t.TempDir())
	// Opaque token: assumed valid locally.
	if err := store.Save(domain.Session{Token: "existing", User: domain.User{ID: "u1"}}); err != nil {
		t.Fatal(err)
	}

	redirected := false
	a := New(client.New(srv.URL, ""), testWallet(t), store, func() { redirected = true })
	if err := a.Authenticate(context.Background()); err != nil {
		t.Fatalf("Authenticate() error: %v", err)
	}
	if got := backend.nonceCalls.Load(); got != 0 {
		t.Errorf("nonce requests = %d, want 0 (short-circuit)", got)
	}
	if !redirected {
		t.Error("redirect not invoked on short-circuit")
	}
	if store.Token() != "existing" {
		t.Errorf("token = %q, want unchanged %q", store.Token(), "existing")
	}
}

func TestAuthenticate_VerifyFailureLeavesSessionUnchanged(t *testing.T) {
	backend := &authServer{rejectSig: true}
	srv := httptest.NewServer(backend.handler())
	defer srv.Close()

	store := session.NewStore(t.TempDir())
	a := New(client.New(srv.URL, ""), testWallet(t), store, nil)

	err := a.Authenticate(context.Background())
	if err == nil {
		t.Fatal("expected verification failure")
	}
	var authErr *Error
	if !errors.As(err, &authErr) || authErr.Stage != StageVerify {
		t.Errorf("error = %v, want stage %q", err, StageVerify)
	}
	if store.IsAuthenticated() {
		t.Error("session persisted despite failed verification")
	}
}

func TestAuthenticate_NonceFailure(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	a := New(client.New(srv.URL, ""), testWallet(t), session.NewStore(t.TempDir()), nil)
	err := a.Authenticate(context.Background())
	var authErr *Error
	if !errors.As(err, &authErr) || authErr.Stage != StageNonce {
		t.Fatalf("error = %v, want stage %q", err, StageNonce)
	}
}

func TestMessageTemplate(t *testing.T) {
	got := fmt.Sprintf(MessageTemplate, "n1")
	want := "Sign this message to authenticate with Plateshare: n1"
	if got != want {
		t.Errorf("message = %q, want %q", got, want)
	}
}
