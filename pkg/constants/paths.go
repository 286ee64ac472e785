package constants

// Пути health, ready и WebSocket каналов.
const (
	PathHealth     = "/health"
	PathReady      = "/ready"
	PathWSPresence = "/ws/presence/:user_id"
	PathWSCall     = "/ws/call/:session_id/:user_id"
)
