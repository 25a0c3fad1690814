package link

//
//Copyright 2018 Telenor Digital AS
//
//Licensed under the Apache License, Version 2.0 (the "License");
//you may not use this file except in compliance with the License.
//You may obtain a copy of the License at
//
//http://www.apache.org/licenses/LICENSE-2.0
//
//Unless required by applicable law or agreed to in writing, software
//distributed under the License is distributed on an "AS IS" BASIS,
//WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
//See the License for the specific language governing permissions and
//limitations under the License.
//
import (
	"bytes"
	"errors"
	"testing"
	"time"

	"github.com/Primary-Survey/rtklink/corrections"
	"github.com/Primary-Survey/rtklink/protocol"
)

// collectSink gathers everything the receiver forwards.
type collectSink struct {
	written []byte
	calls   int
	fail    bool
}

func (c *collectSink) WriteCorrection(payload []byte) error {
	c.calls++
	if c.fail {
		return errors.New("gnss port gone")
	}
	c.written = append(c.written, payload...)
	return nil
}

func newTestReceiver(config ReceiverConfig, sink corrections.Sink) *Receiver {
	return NewReceiver(config, &captureTransport{}, sink, NewHealth())
}

func mustPacket(t *testing.T, messageType protocol.MessageType, networkID int, seq int, payload []byte) []byte {
	t.Helper()
	packet, err := protocol.NewPacket(messageType, networkID, seq, payload)
	if err != nil {
		t.Fatalf("Unable to build packet: %v", err)
	}
	buffer, err := packet.MarshalBinary()
	if err != nil {
		t.Fatalf("Unable to marshal packet: %v", err)
	}
	return buffer
}

func TestReceiverForwardsOwnNetworkOnly(t *testing.T) {
	sink := &collectSink{}
	rx := newTestReceiver(ReceiverConfig{NetworkID: 18, Packetized: true}, sink)

	rx.handlePacket(mustPacket(t, protocol.TypeCorrections, 19, 1, []byte("FOREIGN")))
	if sink.calls != 0 {
		t.Fatal("Foreign-network corrections must not reach the sink")
	}
	if rx.health.Snapshot().BytesTransferred != 0 {
		t.Fatal("Foreign-network corrections must not count as received")
	}

	rx.handlePacket(mustPacket(t, protocol.TypeCorrections, 18, 2, []byte("RTCM")))
	if !bytes.Equal(sink.written, []byte("RTCM")) {
		t.Fatalf("Expected RTCM forwarded, got %q", sink.written)
	}
	if got := rx.health.Snapshot().BytesTransferred; got != 4 {
		t.Fatalf("Expected 4 correction bytes counted, got %d", got)
	}
}

func TestReceiverDropsGarbage(t *testing.T) {
	sink := &collectSink{}
	rx := newTestReceiver(ReceiverConfig{NetworkID: 18, Packetized: true}, sink)

	rx.handlePacket([]byte("not a packet at all"))
	rx.handlePacket([]byte{0x00})
	rx.handlePacket(nil)

	if sink.calls != 0 {
		t.Fatal("Garbage must not reach the sink")
	}
}

func TestReceiverIgnoresUnknownTypes(t *testing.T) {
	sink := &collectSink{}
	rx := newTestReceiver(ReceiverConfig{NetworkID: 18, Packetized: true}, sink)

	rx.handlePacket(mustPacket(t, protocol.MessageType(99), 18, 1, []byte("future")))
	if sink.calls != 0 {
		t.Fatal("Unknown packet types must be ignored")
	}
	if rx.health.Snapshot().BytesTransferred != 0 {
		t.Fatal("Unknown packet types must not count as corrections")
	}
}

func TestReceiverHeartbeatPacket(t *testing.T) {
	rx := newTestReceiver(ReceiverConfig{NetworkID: 18, Packetized: true}, &collectSink{})

	payload := protocol.EncodeStationID("BASE-01", protocol.DefaultStationIDLength)
	rx.handlePacket(mustPacket(t, protocol.TypeHeartbeat, 18, 42, payload))

	s := rx.health.Snapshot()
	if s.Heartbeats != 1 || s.LastHeartbeatFrom != "BASE-01" || s.LastHeartbeatSeq != 42 {
		t.Fatalf("Heartbeat not recorded: %+v", s)
	}
	if s.BytesTransferred != 0 {
		t.Fatal("Heartbeats must not count as correction bytes")
	}
}

func TestReceiverTransparentStream(t *testing.T) {
	sink := &collectSink{}
	rx := newTestReceiver(ReceiverConfig{NetworkID: 18}, sink)

	frame := protocol.EncodeHeartbeat("BASE-01", time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC), 1)
	var stream []byte
	stream = append(stream, []byte("RTCMTEST1")...)
	stream = append(stream, frame...)
	stream = append(stream, []byte("RTCMTEST2")...)

	// Byte-by-byte delivery, the worst the radio can do.
	for _, b := range stream {
		rx.demux.Feed([]byte{b})
	}

	if !bytes.Equal(sink.written, []byte("RTCMTEST1RTCMTEST2")) {
		t.Fatalf("Corrections mangled: %q", sink.written)
	}
	s := rx.health.Snapshot()
	if s.Heartbeats != 1 || s.LastHeartbeatFrom != "BASE-01" || s.LastHeartbeatSeq != 1 {
		t.Fatalf("Heartbeat not dispatched: %+v", s)
	}
}

func TestReceiverSurvivesSinkFailure(t *testing.T) {
	sink := &collectSink{fail: true}
	rx := newTestReceiver(ReceiverConfig{NetworkID: 18, Packetized: true}, sink)

	rx.handlePacket(mustPacket(t, protocol.TypeCorrections, 18, 1, []byte("RTCM")))
	rx.handlePacket(mustPacket(t, protocol.TypeCorrections, 18, 2, []byte("MORE")))

	if sink.calls != 2 {
		t.Fatalf("Sink failures must not stop forwarding, got %d calls", sink.calls)
	}
	if got := rx.health.Snapshot().BytesTransferred; got != 8 {
		t.Fatalf("Bytes count as received regardless of the sink, got %d", got)
	}
}
