package domain

import "time"

// QRType distinguishes who a code attests for.
type QRType string

const (
	QRVolunteer QRType = "volunteer"
	QRRecipient QRType = "recipient"
)

// ValidQRType reports whether t is a known code type.
func ValidQRType(t QRType) bool {
	return t == QRVolunteer || t == QRRecipient
}

// QRCode is a scannable participation token tied to an event and a role.
// Immutable once issued except for UsedCount and IsActive.
type QRCode struct {
	ID        string    `json:"id"`
	EventID   string    `json:"eventId"`
	Event     *Event    `json:"event,omitempty"`
	Type      QRType    `json:"type"`
	IPFSCid   string    `json:"ipfsCid,omitempty"`
	QRImage   string    `json:"qrImage,omitempty"`
	ExpiresAt time.Time `json:"expiresAt"`
	UsedCount int       `json:"usedCount"`
	IsActive  bool      `json:"isActive"`
}

// Expired reports whether the code's validity window has passed.
func (q QRCode) Expired(now time.Time) bool {
	return !q.ExpiresAt.IsZero() && now.After(q.ExpiresAt)
}
