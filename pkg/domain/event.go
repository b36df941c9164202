package domain

import "time"

// ActivityType classifies what kind of work an event involves.
type ActivityType string

const (
	ActivityRescue       ActivityType = "rescue"
	ActivityDistribution ActivityType = "distribution"
	ActivityCooking      ActivityType = "cooking"
)

// EventQRCodes holds the per-role codes generated for an event.
type EventQRCodes struct {
	Volunteer *QRCode `json:"volunteer,omitempty"`
	Recipient *QRCode `json:"recipient,omitempty"`
}

// Event is a scheduled food-rescue event.
type Event struct {
	ID           string        `json:"id"`
	Title        string        `json:"title"`
	Description  string        `json:"description,omitempty"`
	Date         time.Time     `json:"date"`
	Location     string        `json:"location,omitempty"`
	Capacity     int           `json:"capacity"`
	ActivityType ActivityType  `json:"activityType"`
	Participants []Participant `json:"participants"`
	CreatedBy    string        `json:"createdBy"`
	QRCodes      *EventQRCodes `json:"qrCodes,omitempty"`
}

// HasParticipant reports whether the user already joined the event.
func (e Event) HasParticipant(userID string) bool {
	for _, p := range e.Participants {
		if p.Is(userID) {
			return true
		}
	}
	return false
}

// IsFull reports whether the participant list has reached capacity.
// Capacity 0 means unlimited.
func (e Event) IsFull() bool {
	return e.Capacity > 0 && len(e.Participants) >= e.Capacity
}

// QRCodeFor returns the event's code for the given type, if one exists.
func (e Event) QRCodeFor(t QRType) *QRCode {
	if e.QRCodes == nil {
		return nil
	}
	switch t {
	case QRVolunteer:
		return e.QRCodes.Volunteer
	case QRRecipient:
		return e.QRCodes.Recipient
	}
	return nil
}
