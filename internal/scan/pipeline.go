// Package scan drives the scan-to-reward chain: a scanned payload is
// verified, recorded as an activity, and minted into a reward, strictly in
// that order. One scan runs at a time; the same payload is not processed
// twice in a row; a failure at any stage aborts the whole chain and re-arms
// scanning after a short cooldown.
package scan

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/plateshare/plateshare/pkg/client"
	"github.com/plateshare/plateshare/pkg/domain"
)

// State is the pipeline's UI-visible stage.
type State int

const (
	StateScanning State = iota
	StateVerifying
	StateRecording
	StateMinting
	StateComplete
	StateError
)

func (s State) String() string {
	switch s {
	case StateScanning:
		return "scanning"
	case StateVerifying:
		return "verifying"
	case StateRecording:
		return "recording"
	case StateMinting:
		return "minting"
	case StateComplete:
		return "complete"
	default:
		return "error"
	}
}

const (
	// ErrorCooldown is how long scanning stays disabled after a failure.
	ErrorCooldown = 3 * time.Second
	// CompleteDelay is how long the success screen shows before navigation.
	CompleteDelay = 2 * time.Second
)

var (
	// ErrScanBusy means a scan is already being processed.
	ErrScanBusy = errors.New("scan already in progress")
	// ErrDuplicateScan means the payload equals the previous scan's.
	ErrDuplicateScan = errors.New("duplicate scan")
	// ErrCoolingDown means a failure cooldown has not elapsed yet.
	ErrCoolingDown = errors.New("scanner cooling down")
)

// Result aggregates everything the chain produced, for hand-off to the
// dashboard after navigation.
type Result struct {
	QRCode   *domain.QRCode   `json:"qrCode"`
	Activity *domain.Activity `json:"activity"`
	NFT      *domain.NFT      `json:"nft"`
}

// Pipeline runs scan chains against the API. Safe for concurrent use; only
// one chain runs at a time.
type Pipeline struct {
	api *client.Client

	// OnStage, when set, is called on every state transition. Called from
	// the scanning goroutine; implementations must be safe for that.
	OnStage func(State)

	mu            sync.Mutex
	state         State
	lastPayload   string
	cooldownUntil time.Time
	now           func() time.Time
}

// New creates a pipeline in the scanning state.
func New(api *client.Client) *Pipeline {
	return &Pipeline{api: api, state: StateScanning, now: time.Now}
}

// State returns the current stage. An elapsed error cooldown reads as
// scanning again.
func (p *Pipeline) State() State {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.state == StateError && !p.now().Before(p.cooldownUntil) {
		p.state = StateScanning
	}
	return p.state
}

// CooldownRemaining reports how long until scanning re-arms, zero when armed.
func (p *Pipeline) CooldownRemaining() time.Duration {
	p.mu.Lock()
	defer p.mu.Unlock()
	if d := p.cooldownUntil.Sub(p.now()); d > 0 {
		return d
	}
	return 0
}

func (p *Pipeline) setState(s State) {
	p.mu.Lock()
	p.state = s
	cb := p.OnStage
	p.mu.Unlock()
	if cb != nil {
		cb(s)
	}
}

// admit decides whether a payload may start a chain.
func (p *Pipeline) admit(payload string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	now := p.now()
	if p.state == StateError && !now.Before(p.cooldownUntil) {
		p.state = StateScanning
	}
	switch {
	case p.state == StateError && now.Before(p.cooldownUntil):
		return ErrCoolingDown
	case p.state != StateScanning && p.state != StateComplete:
		return ErrScanBusy
	case payload == p.lastPayload:
		return ErrDuplicateScan
	}
	p.lastPayload = payload
	p.state = StateVerifying
	return nil
}

// fail records the failure, clears the suppression token so the same code
// may be retried, and starts the cooldown.
func (p *Pipeline) fail() {
	p.mu.Lock()
	p.state = StateError
	p.lastPayload = ""
	p.cooldownUntil = p.now().Add(ErrorCooldown)
	cb := p.OnStage
	p.mu.Unlock()
	if cb != nil {
		cb(StateError)
	}
}

// Process runs the full chain for a scanned payload. Stages are strictly
// sequential; there is no retry: any failure aborts the chain and the
// caller needs a fresh scan.
func (p *Pipeline) Process(ctx context.Context, payload string, quantity int, notes string) (*Result, error) {
	if payload == "" {
		return nil, fmt.Errorf("scan.Process: empty payload")
	}
	if quantity <= 0 {
		quantity = 1
	}
	if err := p.admit(payload); err != nil {
		return nil, fmt.Errorf("scan.Process: %w", err)
	}
	if cb := p.OnStage; cb != nil {
		cb(StateVerifying)
	}

	qr, err := p.api.VerifyQR(ctx, payload)
	if err != nil {
		p.fail()
		return nil, fmt.Errorf("scan.Process: verify code: %w", err)
	}
	eventID := qr.EventID
	if eventID == "" && qr.Event != nil {
		eventID = qr.Event.ID
	}

	p.setState(StateRecording)
	activity, err := p.api.RecordActivity(ctx, client.RecordActivityRequest{
		EventID:  eventID,
		QRCodeID: qr.ID,
		Quantity: quantity,
		Notes:    notes,
	})
	if err != nil {
		p.fail()
		return nil, fmt.Errorf("scan.Process: record activity: %w", err)
	}

	p.setState(StateMinting)
	nft, err := p.api.MintNFT(ctx, activity.ID)
	if err != nil {
		p.fail()
		return nil, fmt.Errorf("scan.Process: mint reward: %w", err)
	}

	p.setState(StateComplete)
	return &Result{QRCode: qr, Activity: activity, NFT: nft}, nil
}

// Reset re-arms the pipeline and clears the suppression token. The UI calls
// this when leaving the success screen.
func (p *Pipeline) Reset() {
	p.mu.Lock()
	p.state = StateScanning
	p.lastPayload = ""
	p.cooldownUntil = time.Time{}
	p.mu.Unlock()
}
