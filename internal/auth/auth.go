// Package auth implements the wallet handshake: fetch a one-time nonce for
// the wallet address, sign it off-band, submit the signature for
// verification, and persist the resulting session.
package auth

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/plateshare/plateshare/internal/session"
	"github.com/plateshare/plateshare/internal/wallet"
	"github.com/plateshare/plateshare/pkg/client"
)

// MessageTemplate is the fixed sign-in message. The nonce is embedded
// verbatim; the server recovers the signer from the exact same string.
const MessageTemplate = "Sign this message to authenticate with Plateshare: %s"

// ErrInFlight means an authentication attempt for this address is already
// running. Callers treat it as a no-op.
var ErrInFlight = errors.New("authentication already in flight")

// Stage identifies where the handshake failed.
type Stage string

const (
	StageNonce  Stage = "nonce"
	StageSign   Stage = "signature"
	StageVerify Stage = "verification"
)

// Error is a handshake failure with the stage it happened at. Each stage
// produces a distinct user-facing message; all of them leave the stored
// session untouched.
type Error struct {
	Stage Stage
	Err   error
}

func (e *Error) Error() string {
	switch e.Stage {
	case StageNonce:
		return fmt.Sprintf("could not fetch sign-in challenge: %v", e.Err)
	case StageSign:
		return fmt.Sprintf("wallet declined to sign: %v", e.Err)
	default:
		return fmt.Sprintf("signature verification failed: %v", e.Err)
	}
}

func (e *Error) Unwrap() error { return e.Err }

// Authenticator drives the handshake. At most one attempt runs per address;
// concurrent calls for the same address return ErrInFlight.
type Authenticator struct {
	api    *client.Client
	wallet wallet.Signer
	store  *session.Store

	// redirect is invoked once a valid session is in place (either freshly
	// verified or already stored). Optional.
	redirect func()

	mu       sync.Mutex
	inflight map[string]bool
}

// New creates an Authenticator. redirect may be nil.
func New(api *client.Client, w wallet.Signer, store *session.Store, redirect func()) *Authenticator {
	return &Authenticator{
		api:      api,
		wallet:   w,
		store:    store,
		redirect: redirect,
		inflight: make(map[string]bool),
	}
}

// Authenticate runs the full handshake for the connected wallet. If a valid
// session already exists it skips the handshake and redirects directly.
func (a *Authenticator) Authenticate(ctx context.Context) error {
	if !a.wallet.Connected() {
		return errors.New("auth.Authenticate: wallet not connected")
	}
	address := a.wallet.Address()

	a.mu.Lock()
	if a.inflight[address] {
		a.mu.Unlock()
		return ErrInFlight
	}
	a.inflight[address] = true
	a.mu.Unlock()
	defer func() {
		a.mu.Lock()
		delete(a.inflight, address)
		a.mu.Unlock()
	}()

	// Idempotent short-circuit: stored session still good, wallet connected.
	if a.store.Valid() == nil {
		a.api.SetToken(a.store.Token())
		if a.redirect != nil {
			a.redirect()
		}
		return nil
	}

	nonce, err := a.api.GetNonce(ctx, address)
	if err != nil {
		return &Error{Stage: StageNonce, Err: err}
	}

	msg := fmt.Sprintf(MessageTemplate, nonce.Nonce)
	sig, err := a.wallet.SignMessage(msg)
	if err != nil {
		return &Error{Stage: StageSign, Err: err}
	}

	sess, err := a.api.Verify(ctx, address, sig)
	if err != nil {
		return &Error{Stage: StageVerify, Err: err}
	}

	if err := a.store.Save(*sess); err != nil {
		return fmt.Errorf("auth.Authenticate: persist session: %w", err)
	}
	a.api.SetToken(sess.Token)
	if a.redirect != nil {
		a.redirect()
	}
	return nil
}

// EnsureSession is the single re-authentication entry point: it returns nil
// when the stored session is valid and runs the handshake otherwise.
func (a *Authenticator) EnsureSession(ctx context.Context) error {
	if a.store.Valid() == nil {
		a.api.SetToken(a.store.Token())
		return nil
	}
	err := a.Authenticate(ctx)
	if errors.Is(err, ErrInFlight) {
		return nil
	}
	return err
}

// Logout destroys the stored session.
func (a *Authenticator) Logout() error {
	a.api.SetToken("")
	if err := a.store.Clear(); err != nil {
		return fmt.Errorf("auth.Logout: %w", err)
	}
	return nil
}
