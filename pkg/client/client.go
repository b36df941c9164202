package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/google/uuid"

	"github.com/plateshare/plateshare/pkg/domain"
)

// DefaultTimeout is the fixed per-request timeout. A request that exceeds it
// fails with a network-kind error, treated identically to a connection loss.
const DefaultTimeout = 10 * time.Second

// Client is the Plateshare API client. The zero token is valid: unauthenticated
// endpoints (nonce, verify) work without one, and SetToken upgrades the client
// in place after login.
type Client struct {
	baseURL    string
	token      string
	httpClient *http.Client
}

// New creates a new API client.
func New(baseURL, token string) *Client {
	return &Client{
		baseURL: baseURL,
		token:   token,
		httpClient: &http.Client{
			Timeout: DefaultTimeout,
		},
	}
}

// SetToken replaces the bearer token used on subsequent requests.
func (c *Client) SetToken(token string) {
	c.token = token
}

// --- Auth ---

// NonceResponse is the one-time challenge issued for a wallet address.
type NonceResponse struct {
	Nonce string `json:"nonce"`
}

// GetNonce requests a one-time nonce bound to the wallet address.
func (c *Client) GetNonce(ctx context.Context, address string) (*NonceResponse, error) {
	var res NonceResponse
	if err := c.post(ctx, "/auth/nonce", map[string]string{"address": address}, &res); err != nil {
		return nil, fmt.Errorf("client.GetNonce: %w", err)
	}
	return &res, nil
}

// Verify submits the signed nonce for verification and returns the session.
func (c *Client) Verify(ctx context.Context, address, signature string) (*domain.Session, error) {
	var session domain.Session
	body := map[string]string{"address": address, "signature": signature}
	if err := c.post(ctx, "/auth/verify", body, &session); err != nil {
		return nil, fmt.Errorf("client.Verify: %w", err)
	}
	return &session, nil
}

// GetUser returns the authenticated user's profile.
func (c *Client) GetUser(ctx context.Context) (*domain.User, error) {
	var u domain.User
	if err := c.get(ctx, "/user", &u); err != nil {
		return nil, fmt.Errorf("client.GetUser: %w", err)
	}
	return &u, nil
}

// UpdateRole changes a user's role. Organizer/admin only.
func (c *Client) UpdateRole(ctx context.Context, userID string, role domain.Role) error {
	body := map[string]string{"role": string(role)}
	if err := c.doRequest(ctx, http.MethodPut, "/user/"+url.PathEscape(userID)+"/role", body, nil); err != nil {
		return fmt.Errorf("client.UpdateRole: %w", err)
	}
	return nil
}

// --- Events ---

// ListEvents fetches all events.
func (c *Client) ListEvents(ctx context.Context) ([]domain.Event, error) {
	var events []domain.Event
	if err := c.get(ctx, "/event", &events); err != nil {
		return nil, fmt.Errorf("client.ListEvents: %w", err)
	}
	return events, nil
}

// GetEvent fetches a single event by id.
func (c *Client) GetEvent(ctx context.Context, id string) (*domain.Event, error) {
	var e domain.Event
	if err := c.get(ctx, "/event/"+url.PathEscape(id), &e); err != nil {
		return nil, fmt.Errorf("client.GetEvent: %w", err)
	}
	return &e, nil
}

// EventRequest is the payload for creating or updating an event.
type EventRequest struct {
	Title        string              `json:"title"`
	Description  string              `json:"description,omitempty"`
	Date         time.Time           `json:"date"`
	Location     string              `json:"location,omitempty"`
	Capacity     int                 `json:"capacity"`
	ActivityType domain.ActivityType `json:"activityType"`
}

// CreateEvent creates a new event.
func (c *Client) CreateEvent(ctx context.Context, req EventRequest) (*domain.Event, error) {
	var created domain.Event
	if err := c.post(ctx, "/event", req, &created); err != nil {
		return nil, fmt.Errorf("client.CreateEvent: %w", err)
	}
	return &created, nil
}

// UpdateEvent updates an existing event.
func (c *Client) UpdateEvent(ctx context.Context, id string, req EventRequest) (*domain.Event, error) {
	var updated domain.Event
	if err := c.doRequest(ctx, http.MethodPut, "/event/"+url.PathEscape(id), req, &updated); err != nil {
		return nil, fmt.Errorf("client.UpdateEvent: %w", err)
	}
	return &updated, nil
}

// DeleteEvent deletes an event.
func (c *Client) DeleteEvent(ctx context.Context, id string) error {
	if err := c.doRequest(ctx, http.MethodDelete, "/event/"+url.PathEscape(id), nil, nil); err != nil {
		return fmt.Errorf("client.DeleteEvent: %w", err)
	}
	return nil
}

// JoinEvent adds the authenticated user to the event's participants.
func (c *Client) JoinEvent(ctx context.Context, id string) (*domain.Event, error) {
	var e domain.Event
	if err := c.post(ctx, "/event/"+url.PathEscape(id)+"/join", nil, &e); err != nil {
		return nil, fmt.Errorf("client.JoinEvent: %w", err)
	}
	return &e, nil
}

// LeaveEvent removes the authenticated user from the event's participants.
func (c *Client) LeaveEvent(ctx context.Context, id string) (*domain.Event, error) {
	var e domain.Event
	if err := c.post(ctx, "/event/"+url.PathEscape(id)+"/leave", nil, &e); err != nil {
		return nil, fmt.Errorf("client.LeaveEvent: %w", err)
	}
	return &e, nil
}

// --- QR codes ---

// GenerateQRRequest is the payload for generating an event code.
type GenerateQRRequest struct {
	EventID string        `json:"eventId"`
	Type    domain.QRType `json:"type"`
}

// qrEnvelope matches the server's {"qrCode": ...} wrapping.
type qrEnvelope struct {
	QRCode *domain.QRCode `json:"qrCode"`
}

// GenerateQR creates (or returns the existing) code for an event and type.
// The server upserts per (event, type), so repeated calls are idempotent.
func (c *Client) GenerateQR(ctx context.Context, req GenerateQRRequest) (*domain.QRCode, error) {
	var env qrEnvelope
	if err := c.post(ctx, "/qr/generate", req, &env); err != nil {
		return nil, fmt.Errorf("client.GenerateQR: %w", err)
	}
	if env.QRCode == nil {
		return nil, fmt.Errorf("client.GenerateQR: empty response")
	}
	return env.QRCode, nil
}

// VerifyQR submits a raw scanned payload and resolves it to its code and event.
func (c *Client) VerifyQR(ctx context.Context, code string) (*domain.QRCode, error) {
	var env qrEnvelope
	if err := c.post(ctx, "/qr/verify", map[string]string{"code": code}, &env); err != nil {
		return nil, fmt.Errorf("client.VerifyQR: %w", err)
	}
	if env.QRCode == nil {
		return nil, fmt.Errorf("client.VerifyQR: empty response")
	}
	return env.QRCode, nil
}

// --- Activities ---

// RecordActivityRequest is the payload for recording a scan-attested activity.
type RecordActivityRequest struct {
	EventID  string `json:"eventId"`
	QRCodeID string `json:"qrCodeId"`
	Quantity int    `json:"quantity"`
	Notes    string `json:"notes,omitempty"`
}

// RecordActivity creates an activity record for a verified scan.
func (c *Client) RecordActivity(ctx context.Context, req RecordActivityRequest) (*domain.Activity, error) {
	var env struct {
		Activity *domain.Activity `json:"activity"`
	}
	if err := c.post(ctx, "/activity/record", req, &env); err != nil {
		return nil, fmt.Errorf("client.RecordActivity: %w", err)
	}
	if env.Activity == nil {
		return nil, fmt.Errorf("client.RecordActivity: empty response")
	}
	return env.Activity, nil
}

// MintNFT requests NFT minting for an activity.
func (c *Client) MintNFT(ctx context.Context, activityID string) (*domain.NFT, error) {
	var nft domain.NFT
	if err := c.post(ctx, "/activity/mint/"+url.PathEscape(activityID), nil, &nft); err != nil {
		return nil, fmt.Errorf("client.MintNFT: %w", err)
	}
	return &nft, nil
}

// UserActivities returns the authenticated user's activity records.
func (c *Client) UserActivities(ctx context.Context) ([]domain.Activity, error) {
	var acts []domain.Activity
	if err := c.get(ctx, "/activity/user", &acts); err != nil {
		return nil, fmt.Errorf("client.UserActivities: %w", err)
	}
	return acts, nil
}

// --- NFTs and rewards ---

// UserNFTs returns the authenticated user's minted NFTs.
func (c *Client) UserNFTs(ctx context.Context) ([]domain.NFT, error) {
	var nfts []domain.NFT
	if err := c.get(ctx, "/nft/user", &nfts); err != nil {
		return nil, fmt.Errorf("client.UserNFTs: %w", err)
	}
	return nfts, nil
}

// GetNFT fetches a single NFT by id.
func (c *Client) GetNFT(ctx context.Context, id string) (*domain.NFT, error) {
	var nft domain.NFT
	if err := c.get(ctx, "/nft/"+url.PathEscape(id), &nft); err != nil {
		return nil, fmt.Errorf("client.GetNFT: %w", err)
	}
	return &nft, nil
}

// RewardHistory returns the authenticated user's token reward history.
func (c *Client) RewardHistory(ctx context.Context) ([]domain.RewardEntry, error) {
	var entries []domain.RewardEntry
	if err := c.get(ctx, "/rewards/history", &entries); err != nil {
		return nil, fmt.Errorf("client.RewardHistory: %w", err)
	}
	return entries, nil
}

// --- Transport ---

func (c *Client) post(ctx context.Context, path string, body any, out any) error {
	return c.doRequest(ctx, http.MethodPost, path, body, out)
}

func (c *Client) doRequest(ctx context.Context, method, path string, body any, out any) error {
	var reqBody io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("marshal body: %w", err)
		}
		reqBody = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reqBody)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}
	req.Header.Set("X-Request-ID", uuid.NewString())

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("do request: %w", err)
	}
	defer resp.Body.Close() //nolint:errcheck // best-effort close

	if resp.StatusCode >= 400 {
		respBody, readErr := io.ReadAll(io.LimitReader(resp.Body, 1<<20)) // 1 MB max error body
		if readErr != nil {
			return &HTTPError{StatusCode: resp.StatusCode, Message: fmt.Sprintf("failed to read body: %v", readErr)}
		}
		var apiErr struct {
			Error string `json:"error"`
		}
		if json.Unmarshal(respBody, &apiErr) == nil && apiErr.Error != "" {
			return &HTTPError{StatusCode: resp.StatusCode, Message: apiErr.Error}
		}
		return &HTTPError{StatusCode: resp.StatusCode, Message: string(respBody)}
	}

	if out != nil {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return fmt.Errorf("decode response: %w", err)
		}
	}
	return nil
}

func (c *Client) get(ctx context.Context, path string, out any) error {
	return c.doRequest(ctx, http.MethodGet, path, nil, out)
}
