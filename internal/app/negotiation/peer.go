// Package negotiation drives the offer/answer/candidate exchange with a
// single remote participant.
//
// A Peer is not safe for concurrent use; the session controller owns it and
// touches it from its event loop only.
package negotiation

import (
	"errors"
	"time"

	"github.com/dkeye/VoiceChat/internal/core"
	"github.com/dkeye/VoiceChat/internal/domain"
)

// Result describes what a transition produced for the relay.
type Result struct {
	// Outbound is the local description to relay, if any.
	Outbound *domain.SessionDescription
	// Flushed counts buffered candidates applied by this transition.
	Flushed int
	// Buffered is true when a candidate was queued instead of applied.
	Buffered bool
	From, To domain.NegotiationState
}

// Changed reports whether the transition moved the state.
func (r Result) Changed() bool { return r.From != r.To }

// Peer is the negotiation with one remote participant over one connection.
type Peer struct {
	id    domain.PeerID
	role  domain.Role
	state domain.NegotiationState
	conn  core.MediaConnection

	pending []domain.Candidate
	remote  core.RemoteMedia
	stall   *time.Timer
}

// New returns a peer in the new state. Its role is fixed for its lifetime.
func New(id domain.PeerID, role domain.Role, conn core.MediaConnection) *Peer {
	return &Peer{id: id, role: role, state: domain.StateNew, conn: conn}
}

func (p *Peer) ID() domain.PeerID              { return p.id }
func (p *Peer) Role() domain.Role              { return p.role }
func (p *Peer) State() domain.NegotiationState { return p.state }
func (p *Peer) Closed() bool                   { return p.state == domain.StateClosed }
func (p *Peer) Stable() bool                   { return p.state == domain.StateStable }
func (p *Peer) Pending() int                   { return len(p.pending) }
func (p *Peer) Remote() core.RemoteMedia       { return p.remote }

func (p *Peer) advance(to domain.NegotiationState) {
	if domain.CanAdvance(p.role, p.state, to) {
		p.state = to
	}
}

// Start attaches the local stream and, for the offerer, produces and applies
// the offer. The returned Result carries the offer to relay.
func (p *Peer) Start(stream core.LocalStream) (Result, error) {
	res := Result{From: p.state, To: p.state}
	if p.Closed() {
		return res, domain.NewPeerError("start", p.id, domain.ErrPeerClosed, nil)
	}
	if stream != nil {
		if err := p.conn.AddLocalStream(stream); err != nil {
			return res, domain.NewPeerError("attach local stream", p.id, domain.ErrLocalDescriptionApply, err)
		}
	}
	if p.role != domain.RoleOfferer {
		return res, nil
	}
	return p.offer(res)
}

// RetryOffer re-runs offer creation for an offerer whose first attempt failed.
func (p *Peer) RetryOffer() (Result, error) {
	res := Result{From: p.state, To: p.state}
	if p.Closed() {
		return res, domain.NewPeerError("retry offer", p.id, domain.ErrPeerClosed, nil)
	}
	if p.role != domain.RoleOfferer || p.state != domain.StateNew {
		return res, domain.NewPeerError("retry offer", p.id, domain.ErrUnexpectedDescription, nil)
	}
	return p.offer(res)
}

func (p *Peer) offer(res Result) (Result, error) {
	offer, err := p.conn.CreateOffer()
	if err != nil {
		return res, domain.NewPeerError("create offer", p.id, domain.ErrOfferCreation, err)
	}
	if err := p.conn.SetLocalDescription(offer); err != nil {
		return res, domain.NewPeerError("set local offer", p.id, domain.ErrLocalDescriptionApply, err)
	}
	p.advance(domain.StateHaveLocalOffer)
	res.Outbound = &offer
	res.To = p.state
	return res, nil
}

// ApplyRemoteDescription applies the remote side's offer or answer. For an
// offer it also produces, applies and returns the local answer. On failure
// the state is left where the failing step found it.
func (p *Peer) ApplyRemoteDescription(d domain.SessionDescription) (Result, error) {
	res := Result{From: p.state, To: p.state}
	if p.Closed() {
		return res, domain.NewPeerError("set remote description", p.id, domain.ErrPeerClosed, nil)
	}
	if err := d.Validate(); err != nil {
		return res, domain.NewPeerError("set remote description", p.id, domain.ErrUnexpectedDescription, err)
	}

	var next domain.NegotiationState
	switch {
	case d.Type == domain.SDPTypeOffer && p.role == domain.RoleAnswerer && p.state == domain.StateNew:
		next = domain.StateHaveRemoteOffer
	case d.Type == domain.SDPTypeAnswer && p.role == domain.RoleOfferer && p.state == domain.StateHaveLocalOffer:
		next = domain.StateHaveRemoteAnswer
	default:
		return res, domain.NewPeerError("set remote description", p.id, domain.ErrUnexpectedDescription,
			errors.New(string(d.Type)+" for "+p.role.String()+" in "+p.state.String()))
	}

	if err := p.conn.SetRemoteDescription(d); err != nil {
		return res, domain.NewPeerError("set remote description", p.id, domain.ErrRemoteDescriptionApply, err)
	}
	p.advance(next)
	res.To = p.state

	flushed, flushErr := p.flush()
	res.Flushed = flushed

	if d.Type == domain.SDPTypeAnswer {
		p.advance(domain.StateStable)
		res.To = p.state
		return res, flushErr
	}

	answer, err := p.conn.CreateAnswer()
	if err != nil {
		return res, errors.Join(domain.NewPeerError("create answer", p.id, domain.ErrAnswerCreation, err), flushErr)
	}
	if err := p.conn.SetLocalDescription(answer); err != nil {
		return res, errors.Join(domain.NewPeerError("set local answer", p.id, domain.ErrLocalDescriptionApply, err), flushErr)
	}
	p.advance(domain.StateHaveLocalAnswer)
	p.advance(domain.StateStable)
	res.Outbound = &answer
	res.To = p.state
	return res, flushErr
}

// AddRemoteCandidate applies c, or queues it until a remote description has
// been applied. Queued candidates keep their arrival order.
func (p *Peer) AddRemoteCandidate(c domain.Candidate) (Result, error) {
	res := Result{From: p.state, To: p.state}
	if p.Closed() {
		return res, domain.NewPeerError("add candidate", p.id, domain.ErrPeerClosed, nil)
	}
	if !p.role.HasRemoteDescription(p.state) {
		p.pending = append(p.pending, c)
		res.Buffered = true
		return res, nil
	}
	if err := p.conn.AddICECandidate(c); err != nil {
		return res, domain.NewPeerError("add candidate", p.id, domain.ErrCandidateApply, err)
	}
	return res, nil
}

func (p *Peer) flush() (int, error) {
	pending := p.pending
	p.pending = nil
	var errs []error
	applied := 0
	for _, c := range pending {
		if err := p.conn.AddICECandidate(c); err != nil {
			errs = append(errs, domain.NewPeerError("flush candidate", p.id, domain.ErrCandidateApply, err))
			continue
		}
		applied++
	}
	return applied, errors.Join(errs...)
}

// AttachRemote takes ownership of m and returns the handle it replaced, if
// any. The caller detaches the returned handle.
func (p *Peer) AttachRemote(m core.RemoteMedia) core.RemoteMedia {
	prev := p.remote
	if prev == m {
		return nil
	}
	p.remote = m
	return prev
}

// ArmStallTimer calls fire if the peer has not been disarmed within d.
// A zero duration disables the watchdog.
func (p *Peer) ArmStallTimer(d time.Duration, fire func()) {
	p.disarm()
	if d <= 0 {
		return
	}
	p.stall = time.AfterFunc(d, fire)
}

// Disarm stops the stall watchdog.
func (p *Peer) Disarm() { p.disarm() }

func (p *Peer) disarm() {
	if p.stall != nil {
		p.stall.Stop()
		p.stall = nil
	}
}

// Close detaches remote media and closes the connection. Idempotent; it
// returns the detached handle so the caller can notify the renderer.
func (p *Peer) Close() (core.RemoteMedia, error) {
	if p.Closed() {
		return nil, nil
	}
	p.disarm()
	p.state = domain.StateClosed
	p.pending = nil
	remote := p.remote
	p.remote = nil
	if remote != nil {
		remote.Detach()
	}
	if err := p.conn.Close(); err != nil {
		return remote, domain.NewPeerError("close", p.id, domain.ErrPeerClosed, err)
	}
	return remote, nil
}
