package domain

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestMessageStatus_CanAdvance(t *testing.T) {
	req := require.New(t)

	// Forward moves are allowed
	req.True(StatusSent.CanAdvance(StatusDelivered))
	req.True(StatusSent.CanAdvance(StatusRead))
	req.True(StatusDelivered.CanAdvance(StatusRead))

	// The lattice never goes backwards
	req.False(StatusDelivered.CanAdvance(StatusSent))
	req.False(StatusRead.CanAdvance(StatusDelivered))
	req.False(StatusRead.CanAdvance(StatusSent))

	// Same status is not an advance
	req.False(StatusSent.CanAdvance(StatusSent))
	req.False(StatusRead.CanAdvance(StatusRead))

	// Unknown statuses never advance anywhere
	req.False(MessageStatus("archived").CanAdvance(StatusRead))
	req.False(StatusSent.CanAdvance(MessageStatus("archived")))
}

func TestMessageStatus_Valid(t *testing.T) {
	req := require.New(t)
	req.True(StatusSent.Valid())
	req.True(StatusDelivered.Valid())
	req.True(StatusRead.Valid())
	req.False(MessageStatus("").Valid())
	req.False(MessageStatus("seen").Valid())
}

func TestSignalKind_Valid(t *testing.T) {
	req := require.New(t)
	req.True(SignalOffer.Valid())
	req.True(SignalAnswer.Valid())
	req.True(SignalICE.Valid())
	req.True(SignalEnd.Valid())
	req.False(SignalKind("hangup").Valid())
}
