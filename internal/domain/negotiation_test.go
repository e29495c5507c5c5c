package domain

import (
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRoleFor(t *testing.T) {
	assert.Equal(t, RoleOfferer, RoleFor(true))
	assert.Equal(t, RoleAnswerer, RoleFor(false))
}

func TestCanAdvanceIsMonotonicAlongPath(t *testing.T) {
	for _, role := range []Role{RoleOfferer, RoleAnswerer} {
		path := role.Path()
		for i, from := range path {
			for j, to := range path {
				assert.Equal(t, j > i, CanAdvance(role, from, to), "%s %s -> %s", role, from, to)
			}
			assert.True(t, CanAdvance(role, from, StateClosed))
		}
		for _, to := range path {
			assert.False(t, CanAdvance(role, StateClosed, to))
		}
	}
}

func TestCanAdvanceRejectsOtherRolesStates(t *testing.T) {
	assert.False(t, CanAdvance(RoleOfferer, StateNew, StateHaveRemoteOffer))
	assert.False(t, CanAdvance(RoleAnswerer, StateNew, StateHaveLocalOffer))
}

func TestHasRemoteDescription(t *testing.T) {
	cases := []struct {
		role  Role
		state NegotiationState
		want  bool
	}{
		{RoleOfferer, StateNew, false},
		{RoleOfferer, StateHaveLocalOffer, false},
		{RoleOfferer, StateHaveRemoteAnswer, true},
		{RoleOfferer, StateStable, true},
		{RoleAnswerer, StateNew, false},
		{RoleAnswerer, StateHaveRemoteOffer, true},
		{RoleAnswerer, StateHaveLocalAnswer, true},
		{RoleAnswerer, StateStable, true},
		{RoleAnswerer, StateClosed, false},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.want, tc.role.HasRemoteDescription(tc.state), "%s in %s", tc.role, tc.state)
	}
}

func TestStateString(t *testing.T) {
	assert.Equal(t, "have-local-offer", StateHaveLocalOffer.String())
	assert.Equal(t, "unknown", NegotiationState(42).String())
}

func TestValidateChatName(t *testing.T) {
	require.ErrorIs(t, ValidateChatName(""), ErrChatNameEmpty)
	require.ErrorIs(t, ValidateChatName(ChatName(strings.Repeat("x", MaxChatNameLen+1))), ErrChatNameTooLong)
	require.NoError(t, ValidateChatName("lobby"))
}

func TestSessionDescriptionValidate(t *testing.T) {
	require.NoError(t, SessionDescription{Type: SDPTypeOffer, SDP: "v=0"}.Validate())
	require.ErrorIs(t, SessionDescription{Type: "rollback", SDP: "v=0"}.Validate(), ErrUnsupportedSDPType)
	require.ErrorIs(t, SessionDescription{Type: SDPTypeAnswer}.Validate(), ErrEmptySDP)
}

func TestPeerErrorWrapsKindAndCause(t *testing.T) {
	cause := errors.New("ice agent closed")
	err := NewPeerError("create offer", "p1", ErrOfferCreation, cause)

	require.ErrorIs(t, err, ErrOfferCreation)
	require.ErrorIs(t, err, cause)
	assert.Contains(t, err.Error(), "peer p1")
	assert.False(t, IsRetryable(err))
	assert.True(t, IsRetryable(NewPeerError("watchdog", "p1", ErrNegotiationStalled, nil)))
}

func TestConstraintsKinds(t *testing.T) {
	assert.Equal(t, []MediaKind{MediaKindAudio, MediaKindVideo}, Constraints{Audio: true, Video: true}.Kinds())
	assert.Empty(t, Constraints{}.Kinds())
}
