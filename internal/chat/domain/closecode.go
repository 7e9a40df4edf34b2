package domain

// WebSocket close codes sent by the server. 4000-4999 are application codes.
const (
	CloseNormal       = 1000
	CloseGoingAway    = 1001 // server shutdown
	CloseInvalidToken = 4001 // malformed, invalid or revoked: log in again
	CloseTokenExpired = 4002 // refresh, then reconnect
	CloseSlowConsumer = 4008 // outbound queue overflowed
)
