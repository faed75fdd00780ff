package models

// Session identifies a share room. The ID doubles as the broadcast topic key.
type Session struct {
	SessionID string    `json:"sessionId"`
	CreatedAt UnixMilli `json:"createdAt"`
}
