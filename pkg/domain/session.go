package domain

// Session is the authenticated state persisted between runs. It is created
// by a successful signature verification and destroyed on logout. Expiry is
// owned by the server; the client only inspects the token's exp claim.
type Session struct {
	Token string `json:"token"`
	User  User   `json:"user"`
}
