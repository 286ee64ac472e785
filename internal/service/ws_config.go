package service

import "fmt"

// WSConfig holds WebSocket URL base for responses.
type WSConfig struct {
	BaseURL string
}

// CallURL returns the session-scoped WebSocket URL for a session and user
// (e.g. wss://host/ws/call/sessionID/userID).
func (c *WSConfig) CallURL(sessionID, userID string) string {
	if c == nil || c.BaseURL == "" {
		return fmt.Sprintf("/ws/call/%s/%s", sessionID, userID)
	}
	base := c.BaseURL
	if base[len(base)-1] == '/' {
		base = base[:len(base)-1]
	}
	return fmt.Sprintf("%s/ws/call/%s/%s", base, sessionID, userID)
}
