// Package ops implements the mutation operations. Every operation follows
// the same discipline: rewrite the affected cache keys to the intended end
// state, issue the network call, then revalidate every touched key together
// whether the call succeeded or failed. Success swaps optimistic data for
// authoritative server data; failure discards it the same way, because the
// server never saw the optimistic write.
package ops

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"github.com/plateshare/plateshare/internal/cache"
	"github.com/plateshare/plateshare/internal/session"
	"github.com/plateshare/plateshare/pkg/client"
	"github.com/plateshare/plateshare/pkg/domain"
)

var (
	// ErrNotAuthenticated means the operation needs a session and none exists.
	ErrNotAuthenticated = errors.New("not authenticated")
	// ErrEventFull means the participant list already reached capacity.
	ErrEventFull = errors.New("event is full")
	// ErrAlreadyJoined means the user is already on the participant list.
	ErrAlreadyJoined = errors.New("already joined")
	// ErrNotJoined means the user is not on the participant list.
	ErrNotJoined = errors.New("not joined")
)

// Operations binds the API client, the cache and the session together.
type Operations struct {
	api   *client.Client
	cache *cache.Cache
	store *session.Store
}

// New creates the operations service.
func New(api *client.Client, c *cache.Cache, store *session.Store) *Operations {
	return &Operations{api: api, cache: c, store: store}
}

func (o *Operations) currentUser() (domain.User, error) {
	sess := o.store.Session()
	if sess == nil {
		return domain.User{}, ErrNotAuthenticated
	}
	return sess.User, nil
}

// JoinEvent adds the current user to the event. The events list and the
// user's activity list are rewritten together before the network call and
// revalidated together after it.
func (o *Operations) JoinEvent(ctx context.Context, eventID string) error {
	user, err := o.currentUser()
	if err != nil {
		return fmt.Errorf("ops.JoinEvent: %w", err)
	}

	if events, ok := cache.Peek[[]domain.Event](o.cache, cache.KeyEvents); ok {
		for _, e := range events {
			if e.ID != eventID {
				continue
			}
			if e.HasParticipant(user.ID) {
				return fmt.Errorf("ops.JoinEvent: %w", ErrAlreadyJoined)
			}
			// Local guard; the server stays authoritative and its
			// rejection rolls back like any other failure.
			if e.IsFull() {
				return fmt.Errorf("ops.JoinEvent: %w", ErrEventFull)
			}
		}
	}

	participant := domain.Participant{UserID: user.ID, WalletAddress: user.WalletAddress, Name: user.Name}
	placeholder := domain.Activity{
		ID:      "pending-" + uuid.NewString(),
		EventID: eventID,
		UserID:  user.ID,
	}
	o.cache.MutateMany(map[string]cache.UpdateFunc{
		cache.KeyEvents: updateEvent(eventID, func(e domain.Event) domain.Event {
			ps := e.Participants
			e.Participants = append(ps[:len(ps):len(ps)], participant)
			return e
		}),
		cache.KeyUserActivities: appendActivity(placeholder),
	})

	_, callErr := o.api.JoinEvent(ctx, eventID)
	revErr := o.cache.RevalidateAll(ctx, cache.KeyEvents, cache.KeyUserActivities)
	if callErr != nil {
		return fmt.Errorf("ops.JoinEvent: %w", callErr)
	}
	if revErr != nil {
		return fmt.Errorf("ops.JoinEvent: revalidate: %w", revErr)
	}
	return nil
}

// LeaveEvent removes the current user from the event.
func (o *Operations) LeaveEvent(ctx context.Context, eventID string) error {
	user, err := o.currentUser()
	if err != nil {
		return fmt.Errorf("ops.LeaveEvent: %w", err)
	}

	if events, ok := cache.Peek[[]domain.Event](o.cache, cache.KeyEvents); ok {
		for _, e := range events {
			if e.ID == eventID && !e.HasParticipant(user.ID) {
				return fmt.Errorf("ops.LeaveEvent: %w", ErrNotJoined)
			}
		}
	}

	o.cache.MutateMany(map[string]cache.UpdateFunc{
		cache.KeyEvents: updateEvent(eventID, func(e domain.Event) domain.Event {
			kept := e.Participants[:0:0]
			for _, p := range e.Participants {
				if !p.Is(user.ID) {
					kept = append(kept, p)
				}
			}
			e.Participants = kept
			return e
		}),
		cache.KeyUserActivities: func(current any) any {
			acts, _ := current.([]domain.Activity)
			kept := acts[:0:0]
			for _, a := range acts {
				if a.EventID != eventID {
					kept = append(kept, a)
				}
			}
			return kept
		},
	})

	_, callErr := o.api.LeaveEvent(ctx, eventID)
	revErr := o.cache.RevalidateAll(ctx, cache.KeyEvents, cache.KeyUserActivities)
	if callErr != nil {
		return fmt.Errorf("ops.LeaveEvent: %w", callErr)
	}
	if revErr != nil {
		return fmt.Errorf("ops.LeaveEvent: revalidate: %w", revErr)
	}
	return nil
}

// CreateEvent creates an event, optimistically appending it to the list
// under a temporary id.
func (o *Operations) CreateEvent(ctx context.Context, req client.EventRequest) (*domain.Event, error) {
	user, err := o.currentUser()
	if err != nil {
		return nil, fmt.Errorf("ops.CreateEvent: %w", err)
	}

	draft := domain.Event{
		ID:           "pending-" + uuid.NewString(),
		Title:        req.Title,
		Description:  req.Description,
		Date:         req.Date,
		Location:     req.Location,
		Capacity:     req.Capacity,
		ActivityType: req.ActivityType,
		CreatedBy:    user.ID,
	}
	o.cache.Mutate(cache.KeyEvents, func(current any) any {
		events, _ := current.([]domain.Event)
		return append(events, draft)
	})

	created, callErr := o.api.CreateEvent(ctx, req)
	revErr := o.cache.RevalidateAll(ctx, cache.KeyEvents)
	if callErr != nil {
		return nil, fmt.Errorf("ops.CreateEvent: %w", callErr)
	}
	if revErr != nil {
		return nil, fmt.Errorf("ops.CreateEvent: revalidate: %w", revErr)
	}
	return created, nil
}

// UpdateEvent updates an event in place.
func (o *Operations) UpdateEvent(ctx context.Context, eventID string, req client.EventRequest) error {
	o.cache.Mutate(cache.KeyEvents, updateEvent(eventID, func(e domain.Event) domain.Event {
		e.Title = req.Title
		e.Description = req.Description
		e.Date = req.Date
		e.Location = req.Location
		e.Capacity = req.Capacity
		e.ActivityType = req.ActivityType
		return e
	}))

	_, callErr := o.api.UpdateEvent(ctx, eventID, req)
	revErr := o.cache.RevalidateAll(ctx, cache.KeyEvents)
	if callErr != nil {
		return fmt.Errorf("ops.UpdateEvent: %w", callErr)
	}
	if revErr != nil {
		return fmt.Errorf("ops.UpdateEvent: revalidate: %w", revErr)
	}
	return nil
}

// DeleteEvent removes an event.
func (o *Operations) DeleteEvent(ctx context.Context, eventID string) error {
	o.cache.Mutate(cache.KeyEvents, func(current any) any {
		events, _ := current.([]domain.Event)
		kept := events[:0:0]
		for _, e := range events {
			if e.ID != eventID {
				kept = append(kept, e)
			}
		}
		return kept
	})

	callErr := o.api.DeleteEvent(ctx, eventID)
	revErr := o.cache.RevalidateAll(ctx, cache.KeyEvents)
	if callErr != nil {
		return fmt.Errorf("ops.DeleteEvent: %w", callErr)
	}
	if revErr != nil {
		return fmt.Errorf("ops.DeleteEvent: revalidate: %w", revErr)
	}
	return nil
}

// GenerateQR creates the event's code for a type. When the cached event
// already carries a code of that type, it is returned as-is: generation is
// idempotent per (event, type) and the server upserts to match.
func (o *Operations) GenerateQR(ctx context.Context, eventID string, qrType domain.QRType) (*domain.QRCode, error) {
	if !domain.ValidQRType(qrType) {
		return nil, fmt.Errorf("ops.GenerateQR: unknown type %q", qrType)
	}

	if events, ok := cache.Peek[[]domain.Event](o.cache, cache.KeyEvents); ok {
		for _, e := range events {
			if e.ID == eventID {
				if existing := e.QRCodeFor(qrType); existing != nil {
					return existing, nil
				}
			}
		}
	}

	// Pending placeholder so the event row shows the code being issued.
	o.cache.Mutate(cache.KeyEvents, updateEvent(eventID, func(e domain.Event) domain.Event {
		e.QRCodes = setQRCode(e.QRCodes, qrType, &domain.QRCode{EventID: eventID, Type: qrType})
		return e
	}))

	qr, callErr := o.api.GenerateQR(ctx, client.GenerateQRRequest{EventID: eventID, Type: qrType})
	revErr := o.cache.RevalidateAll(ctx, cache.KeyEvents)
	if callErr != nil {
		return nil, fmt.Errorf("ops.GenerateQR: %w", callErr)
	}
	if revErr != nil {
		return nil, fmt.Errorf("ops.GenerateQR: revalidate: %w", revErr)
	}
	return qr, nil
}

// MintNFT requests minting for an activity, optimistically marking it
// verified while the mint is in flight.
func (o *Operations) MintNFT(ctx context.Context, activityID string) (*domain.NFT, error) {
	o.cache.Mutate(cache.KeyUserActivities, func(current any) any {
		acts, _ := current.([]domain.Activity)
		out := make([]domain.Activity, len(acts))
		copy(out, acts)
		for i := range out {
			if out[i].ID == activityID {
				out[i].Verified = true
			}
		}
		return out
	})

	nft, callErr := o.api.MintNFT(ctx, activityID)
	revErr := o.cache.RevalidateAll(ctx, cache.KeyUserActivities, cache.KeyUserNFTs)
	if callErr != nil {
		return nil, fmt.Errorf("ops.MintNFT: %w", callErr)
	}
	if revErr != nil {
		return nil, fmt.Errorf("ops.MintNFT: revalidate: %w", revErr)
	}
	return nft, nil
}

// UpdateRole changes another user's role and refreshes the profile key.
func (o *Operations) UpdateRole(ctx context.Context, userID string, role domain.Role) error {
	callErr := o.api.UpdateRole(ctx, userID, role)
	revErr := o.cache.RevalidateAll(ctx, cache.KeyUser)
	if callErr != nil {
		return fmt.Errorf("ops.UpdateRole: %w", callErr)
	}
	if revErr != nil {
		return fmt.Errorf("ops.UpdateRole: revalidate: %w", revErr)
	}
	return nil
}

// updateEvent returns an UpdateFunc that rewrites one event in the cached
// list, copying the slice so subscribed readers never see in-place edits.
func updateEvent(eventID string, rewrite func(domain.Event) domain.Event) cache.UpdateFunc {
	return func(current any) any {
		events, _ := current.([]domain.Event)
		out := make([]domain.Event, len(events))
		copy(out, events)
		for i := range out {
			if out[i].ID == eventID {
				out[i] = rewrite(out[i])
			}
		}
		return out
	}
}

func appendActivity(a domain.Activity) cache.UpdateFunc {
	return func(current any) any {
		acts, _ := current.([]domain.Activity)
		return append(acts[:len(acts):len(acts)], a)
	}
}

func setQRCode(codes *domain.EventQRCodes, t domain.QRType, qr *domain.QRCode) *domain.EventQRCodes {
	out := domain.EventQRCodes{}
	if codes != nil {
		out = *codes
	}
	switch t {
	case domain.QRVolunteer:
		out.Volunteer = qr
	case domain.QRRecipient:
		out.Recipient = qr
	}
	return &out
}
