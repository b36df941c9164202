package domain

import (
	"encoding/json"
	"fmt"
)

// Participant is a member of an event's participant list. The API serializes
// participants in two shapes: a bare user id string, or an embedded user
// object. Both are resolved here, once, at the decoding boundary; the rest of
// the codebase only ever sees the normalized form.
type Participant struct {
	UserID        string `json:"_id"`
	WalletAddress string `json:"walletAddress,omitempty"`
	Name          string `json:"name,omitempty"`
}

func (p *Participant) UnmarshalJSON(data []byte) error {
	var id string
	if err := json.Unmarshal(data, &id); err == nil {
		*p = Participant{UserID: id}
		return nil
	}

	var obj struct {
		ID            string `json:"_id"`
		WalletAddress string `json:"walletAddress"`
		Name          string `json:"name"`
	}
	if err := json.Unmarshal(data, &obj); err != nil {
		return fmt.Errorf("participant: unrecognized shape: %w", err)
	}
	*p = Participant{UserID: obj.ID, WalletAddress: obj.WalletAddress, Name: obj.Name}
	return nil
}

// Is reports whether the participant refers to the given user id.
func (p Participant) Is(userID string) bool {
	return p.UserID == userID
}
