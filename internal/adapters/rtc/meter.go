package rtc

import (
	"sync/atomic"

	"github.com/pion/rtp"

	"github.com/dkeye/VoiceChat/internal/domain"
	"github.com/dkeye/VoiceChat/internal/metrics"
)

// Meter is the playout end of a remote track. The client has no speaker, so
// playing a packet means accounting for it.
type Meter struct {
	kind    domain.MediaKind
	metrics *metrics.Metrics

	packets atomic.Uint64
	bytes   atomic.Uint64
}

var _ Sink = (*Meter)(nil)

func NewMeter(kind domain.MediaKind, m *metrics.Metrics) *Meter {
	return &Meter{kind: kind, metrics: m}
}

func (mt *Meter) WriteRTP(pkt *rtp.Packet) error {
	n := len(pkt.Payload)
	mt.packets.Add(1)
	mt.bytes.Add(uint64(n))
	mt.metrics.Playout(string(mt.kind), n)
	return nil
}

func (mt *Meter) Packets() uint64 { return mt.packets.Load() }
func (mt *Meter) Bytes() uint64   { return mt.bytes.Load() }
