package domain

// ConnectionState is the lifecycle of the realtime channel.
// A process starts Disconnected, moves to Connecting when a connect
// attempt starts, to Connected on handshake success, and back to
// Disconnected on error or explicit disconnect.
type ConnectionState string

const (
	StateDisconnected ConnectionState = "disconnected"
	StateConnecting   ConnectionState = "connecting"
	StateConnected    ConnectionState = "connected"
)
