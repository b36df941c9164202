package domain

import "time"

// NFT is a minted participation reward.
type NFT struct {
	ID         string    `json:"id"`
	NFTTokenID string    `json:"nftTokenId"`
	ActivityID string    `json:"activityId,omitempty"`
	Name       string    `json:"name,omitempty"`
	ImageURL   string    `json:"imageUrl,omitempty"`
	IPFSCid    string    `json:"ipfsCid,omitempty"`
	MintedAt   time.Time `json:"mintedAt,omitzero"`
}

// RewardEntry is one line of the token reward history.
type RewardEntry struct {
	ID         string    `json:"id"`
	ActivityID string    `json:"activityId,omitempty"`
	Amount     float64   `json:"amount"`
	TxHash     string    `json:"txHash,omitempty"`
	CreatedAt  time.Time `json:"createdAt,omitzero"`
}
