package domain

// Role is decided by the relay when a peer is added and never changes.
type Role int

const (
	RoleAnswerer Role = iota
	RoleOfferer
)

// RoleFor maps the relay's shouldInitiate flag onto a role.
func RoleFor(shouldInitiate bool) Role {
	if shouldInitiate {
		return RoleOfferer
	}
	return RoleAnswerer
}

func (r Role) String() string {
	if r == RoleOfferer {
		return "offerer"
	}
	return "answerer"
}

type NegotiationState int

const (
	StateNew NegotiationState = iota
	StateHaveLocalOffer
	StateHaveRemoteAnswer
	StateHaveRemoteOffer
	StateHaveLocalAnswer
	StateStable
	StateClosed
)

var stateNames = [...]string{
	StateNew:              "new",
	StateHaveLocalOffer:   "have-local-offer",
	StateHaveRemoteAnswer: "have-remote-answer",
	StateHaveRemoteOffer:  "have-remote-offer",
	StateHaveLocalAnswer:  "have-local-answer",
	StateStable:           "stable",
	StateClosed:           "closed",
}

func (s NegotiationState) String() string {
	if s < 0 || int(s) >= len(stateNames) {
		return "unknown"
	}
	return stateNames[s]
}

var (
	offererPath  = []NegotiationState{StateNew, StateHaveLocalOffer, StateHaveRemoteAnswer, StateStable}
	answererPath = []NegotiationState{StateNew, StateHaveRemoteOffer, StateHaveLocalAnswer, StateStable}
)

// Path returns the ordered states a connection of this role walks through.
func (r Role) Path() []NegotiationState {
	if r == RoleOfferer {
		return offererPath
	}
	return answererPath
}

func (r Role) position(s NegotiationState) int {
	for i, p := range r.Path() {
		if p == s {
			return i
		}
	}
	return -1
}

// CanAdvance reports whether moving from one state to another keeps the
// role's path monotonic. Closed is reachable from anywhere, nothing leaves it.
func CanAdvance(r Role, from, to NegotiationState) bool {
	if from == StateClosed {
		return false
	}
	if to == StateClosed {
		return true
	}
	i, j := r.position(from), r.position(to)
	return i >= 0 && j > i
}

// HasRemoteDescription reports whether a remote description has been applied
// by the time a connection of this role sits in state s.
func (r Role) HasRemoteDescription(s NegotiationState) bool {
	switch r {
	case RoleOfferer:
		return s == StateHaveRemoteAnswer || s == StateStable
	default:
		return s == StateHaveRemoteOffer || s == StateHaveLocalAnswer || s == StateStable
	}
}
