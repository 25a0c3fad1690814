package main

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
	"sync"
	"testing"
	"time"

	"github.com/Primary-Survey/rtklink/corrections"
	"github.com/Primary-Survey/rtklink/link"
	"github.com/Primary-Survey/rtklink/server"
)

// memLink is an in-memory radio: everything sent on one end shows up on the
// reads of the other.
type memLink struct {
	wire chan []byte
}

func newMemLink() *memLink {
	return &memLink{wire: make(chan []byte, 64)}
}

func (m *memLink) Start() error { return nil }
func (m *memLink) Stop()        {}
func (m *memLink) Send(payload []byte) error {
	buf := make([]byte, len(payload))
	copy(buf, payload)
	m.wire <- buf
	return nil
}
func (m *memLink) Read(buf []byte) (int, error) {
	select {
	case payload := <-m.wire:
		return copy(buf, payload), nil
	case <-time.After(10 * time.Millisecond):
		return 0, nil
	}
}
func (m *memLink) Connected() bool { return true }

// scriptSource hands out a fixed list of chunks, one per poll.
type scriptSource struct {
	mutex  sync.Mutex
	chunks [][]byte
}

func (s *scriptSource) Start() error    { return nil }
func (s *scriptSource) Stop()           {}
func (s *scriptSource) Connected() bool { return true }
func (s *scriptSource) ReadChunk() []byte {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	if len(s.chunks) == 0 {
		return nil
	}
	chunk := s.chunks[0]
	s.chunks = s.chunks[1:]
	return chunk
}

// memSink collects forwarded corrections.
type memSink struct {
	mutex   sync.Mutex
	written []byte
}

func (m *memSink) WriteCorrection(payload []byte) error {
	m.mutex.Lock()
	defer m.mutex.Unlock()
	m.written = append(m.written, payload...)
	return nil
}

func (m *memSink) bytes() []byte {
	m.mutex.Lock()
	defer m.mutex.Unlock()
	out := make([]byte, len(m.written))
	copy(out, m.written)
	return out
}

func waitFor(t *testing.T, what string, check func() bool) {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		if check() {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("Timed out waiting for %s", what)
}

func TestRelayEndToEndTransparent(t *testing.T) {
	radio := newMemLink()
	source := &scriptSource{chunks: [][]byte{
		[]byte("RTCMTEST1"),
		[]byte("RTCMTEST2"),
	}}
	sink := &memSink{}

	txHealth := link.NewHealth()
	tx := link.NewTransmitter(link.TransmitterConfig{
		StationID:         "BASE-01",
		NetworkID:         18,
		HeartbeatEnabled:  true,
		HeartbeatInterval: 250 * time.Millisecond,
	}, radio, source, txHealth)

	rxHealth := link.NewHealth()
	rx := link.NewReceiver(link.ReceiverConfig{NetworkID: 18}, radio, sink, rxHealth)

	if err := rx.Start(); err != nil {
		t.Fatalf("Receiver start failed: %v", err)
	}
	defer rx.Stop()
	if err := tx.Start(); err != nil {
		t.Fatalf("Transmitter start failed: %v", err)
	}
	defer tx.Stop()

	waitFor(t, "corrections at the sink", func() bool {
		return bytes.Equal(sink.bytes(), []byte("RTCMTEST1RTCMTEST2"))
	})
	waitFor(t, "a heartbeat", func() bool {
		return rxHealth.Snapshot().Heartbeats > 0
	})

	s := rxHealth.Snapshot()
	if s.LastHeartbeatFrom != "BASE-01" {
		t.Fatalf("Heartbeat attributed to %q", s.LastHeartbeatFrom)
	}
	if s.BytesTransferred != 18 {
		t.Fatalf("Expected 18 correction bytes on the receive side, got %d", s.BytesTransferred)
	}
	if !rxHealth.IsRecentlyActive(time.Second, time.Now()) {
		t.Fatal("Receive side should be active")
	}
}

func TestRelayEndToEndPacketized(t *testing.T) {
	radio := newMemLink()
	source := &scriptSource{chunks: [][]byte{make([]byte, 450)}}
	sink := &memSink{}

	tx := link.NewTransmitter(link.TransmitterConfig{
		StationID:         "BASE-01",
		NetworkID:         18,
		Packetized:        true,
		MaxPayloadBytes:   200,
		HeartbeatEnabled:  true,
		HeartbeatInterval: 250 * time.Millisecond,
	}, radio, source, link.NewHealth())

	rxHealth := link.NewHealth()
	rx := link.NewReceiver(link.ReceiverConfig{NetworkID: 18, Packetized: true}, radio, sink, rxHealth)

	if err := rx.Start(); err != nil {
		t.Fatalf("Receiver start failed: %v", err)
	}
	defer rx.Stop()
	if err := tx.Start(); err != nil {
		t.Fatalf("Transmitter start failed: %v", err)
	}
	defer tx.Stop()

	waitFor(t, "the full chunk at the sink", func() bool {
		return len(sink.bytes()) == 450
	})
	waitFor(t, "a heartbeat", func() bool {
		return rxHealth.Snapshot().Heartbeats > 0
	})
	if from := rxHealth.Snapshot().LastHeartbeatFrom; from != "BASE-01" {
		t.Fatalf("Heartbeat attributed to %q", from)
	}
}

func TestRelayIgnoresForeignNetwork(t *testing.T) {
	radio := newMemLink()
	source := &scriptSource{chunks: [][]byte{[]byte("FOREIGN-CORRECTIONS")}}
	sink := &memSink{}

	// Base on network 19, rover on 18. Nothing must get through.
	tx := link.NewTransmitter(link.TransmitterConfig{
		StationID:         "OTHER",
		NetworkID:         19,
		Packetized:        true,
		MaxPayloadBytes:   200,
		HeartbeatEnabled:  true,
		HeartbeatInterval: 250 * time.Millisecond,
	}, radio, source, link.NewHealth())

	rxHealth := link.NewHealth()
	rx := link.NewReceiver(link.ReceiverConfig{NetworkID: 18, Packetized: true}, radio, sink, rxHealth)

	if err := rx.Start(); err != nil {
		t.Fatalf("Receiver start failed: %v", err)
	}
	defer rx.Stop()
	if err := tx.Start(); err != nil {
		t.Fatalf("Transmitter start failed: %v", err)
	}
	defer tx.Stop()

	// Give the foreign traffic time to arrive and be dropped. At a 250ms
	// heartbeat interval this covers several packets.
	time.Sleep(700 * time.Millisecond)

	if got := sink.bytes(); len(got) != 0 {
		t.Fatalf("Foreign corrections reached the sink: %q", got)
	}
	if s := rxHealth.Snapshot(); s.Heartbeats != 0 || s.BytesTransferred != 0 {
		t.Fatalf("Foreign traffic recorded: %+v", s)
	}
}

func TestNewServerRejectsInvalidConfig(t *testing.T) {
	cfg := server.NewDefaultConfig()
	cfg.Mode = "repeater"
	if _, err := NewServer(cfg); err == nil {
		t.Fatal("Expected an error for an invalid mode")
	}
}

func TestNewServerWiring(t *testing.T) {
	cfg := server.NewDefaultConfig()
	cfg.Mode = server.ModeBase
	cfg.SimulateCorrections = true
	cfg.StatusEnabled = false
	cfg.DebugPort = 0

	relay, err := NewServer(cfg)
	if err != nil {
		t.Fatalf("NewServer failed: %v", err)
	}
	if relay.transmitter == nil || relay.receiver != nil {
		t.Fatal("Base mode should wire a transmitter, not a receiver")
	}
	if _, ok := relay.source.(*corrections.SimulatedSource); !ok {
		t.Fatalf("Expected a simulated source, got %T", relay.source)
	}

	cfg = server.NewDefaultConfig()
	cfg.StatusEnabled = false
	cfg.DebugPort = 0
	relay, err = NewServer(cfg)
	if err != nil {
		t.Fatalf("NewServer failed: %v", err)
	}
	if relay.receiver == nil || relay.transmitter != nil {
		t.Fatal("Rover mode should wire a receiver, not a transmitter")
	}
}
