package domain

import "time"

// Activity records a user's participation in an event; it is the unit that
// earns rewards. Created on join or on a completed QR scan, it transitions
// from unverified to verified, and may gain an NFT reference after minting.
type Activity struct {
	ID           string    `json:"_id"`
	Event        *Event    `json:"event,omitempty"`
	EventID      string    `json:"eventId,omitempty"`
	UserID       string    `json:"user,omitempty"`
	Quantity     int       `json:"quantity"`
	Notes        string    `json:"notes,omitempty"`
	Verified     bool      `json:"verified"`
	NFTID        string    `json:"nftId,omitempty"`
	RewardAmount float64   `json:"rewardAmount,omitempty"`
	CreatedAt    time.Time `json:"createdAt,omitzero"`
}
