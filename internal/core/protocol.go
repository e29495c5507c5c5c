package core

// Outgoing relay events.
const (
	EventJoinChat                = "JoinChat"
	EventLeaveChat               = "LeaveChat"
	EventRelayIceCandidate       = "RelayIceCandidate"
	EventRelaySessionDescription = "RelaySessionDescription"
)

// Incoming relay events.
const (
	EventAddToCall          = "AddToCall"
	EventRemoveFromCall     = "RemoveFromCall"
	EventSessionDescription = "SessionDescription"
	EventIceCandidate       = "IceCandidate"
)

// Raised locally by the signaling adapter, never sent on the wire.
const (
	EventConnected    = "connected"
	EventDisconnected = "disconnected"
	EventReconnected  = "reconnected"
)
