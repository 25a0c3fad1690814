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
	"time"

	"github.com/ExploratoryEngineering/logging"
	"github.com/Primary-Survey/rtklink/corrections"
	"github.com/Primary-Survey/rtklink/monitoring"
	"github.com/Primary-Survey/rtklink/protocol"
)

// ReceiverConfig holds the rover's receive parameters.
type ReceiverConfig struct {
	NetworkID      int
	Packetized     bool
	ReadChunkBytes int
}

// defaultReadChunkBytes is the transport read size when none is configured.
const defaultReadChunkBytes = 512

// readRetryDelay is the pause after a transport read error before trying
// again, so a dead radio doesn't spin the loop.
const readRetryDelay = 500 * time.Millisecond

// Receiver is the rover side of the link: it reads from the transport,
// separates heartbeats from correction data and forwards the corrections to
// the sink. A malformed or foreign packet is dropped and counted, never an
// error; the stream must survive anything the radio delivers.
type Receiver struct {
	config      ReceiverConfig
	transport   Transport
	sink        corrections.Sink
	health      *Health
	demux       *protocol.StreamDemux
	terminate   chan bool
	lastResyncs int
}

// NewReceiver creates a receiver.
func NewReceiver(config ReceiverConfig, transport Transport, sink corrections.Sink, health *Health) *Receiver {
	if config.ReadChunkBytes <= 0 {
		config.ReadChunkBytes = defaultReadChunkBytes
	}
	ret := &Receiver{
		config:    config,
		transport: transport,
		sink:      sink,
		health:    health,
		terminate: make(chan bool),
	}
	ret.demux = protocol.NewStreamDemux(ret.forwardCorrections, ret.handleFrame)
	return ret
}

// Start launches the receive loop.
func (r *Receiver) Start() error {
	mode := "transparent"
	if r.config.Packetized {
		mode = "packetized"
	}
	logging.Info("Receiver starting on network %d (%s)", r.config.NetworkID, mode)
	go r.readerLoop()
	return nil
}

// Stop terminates the receive loop.
func (r *Receiver) Stop() {
	close(r.terminate)
}

func (r *Receiver) readerLoop() {
	buf := make([]byte, r.config.ReadChunkBytes)
	for {
		select {
		case <-r.terminate:
			return
		default:
		}
		n, err := r.transport.Read(buf)
		if err != nil {
			logging.Warning("Link read error: %v", err)
			r.health.RecordFailure(err)
			monitoring.LinkRxErrors.Increment()
			select {
			case <-r.terminate:
				return
			case <-time.After(readRetryDelay):
			}
			continue
		}
		if n == 0 {
			// Timed-out read; nothing arrived.
			continue
		}
		r.health.RecordActivity()
		if r.config.Packetized {
			r.handlePacket(buf[:n])
			continue
		}
		r.demux.Feed(buf[:n])
		if resyncs := r.demux.Resyncs(); resyncs > r.lastResyncs {
			monitoring.DemuxResyncs.Add(int64(resyncs - r.lastResyncs))
			r.lastResyncs = resyncs
		}
	}
}

// handlePacket dispatches one received packet. Unknown types are ignored so
// newer base stations can talk to older rovers.
func (r *Receiver) handlePacket(buffer []byte) {
	var packet protocol.Packet
	if err := packet.UnmarshalBinary(buffer); err != nil {
		logging.Debug("Dropping undecodable packet (%d bytes): %v", len(buffer), err)
		monitoring.LinkRxRejected.Increment()
		return
	}
	if int(packet.NetworkID) != r.config.NetworkID {
		monitoring.LinkRxForeign.Increment()
		return
	}
	switch packet.Type {
	case protocol.TypeHeartbeat:
		r.health.RecordHeartbeat(protocol.DecodeStationID(packet.Payload), int(packet.Seq))
		monitoring.LinkRxHeartbeats.Increment()
		logging.Debug("Heartbeat %d received", packet.Seq)
	case protocol.TypeCorrections:
		r.forwardCorrections(packet.Payload)
	default:
	}
}

// forwardCorrections delivers correction bytes to the sink. The bytes count
// as received even when the sink write fails; the link did its job.
func (r *Receiver) forwardCorrections(payload []byte) {
	if len(payload) == 0 {
		return
	}
	r.health.RecordData(len(payload))
	monitoring.LinkRxBytes.Add(int64(len(payload)))
	if err := r.sink.WriteCorrection(payload); err != nil {
		logging.Warning("Correction sink write failed: %v", err)
		monitoring.SinkErrors.Increment()
	}
}

func (r *Receiver) handleFrame(frame []byte) {
	hb, err := protocol.DecodeHeartbeat(frame)
	if err != nil {
		monitoring.LinkRxRejected.Increment()
		return
	}
	r.health.RecordHeartbeat(hb.StationID, hb.Seq)
	monitoring.LinkRxHeartbeats.Increment()
	logging.Debug("Heartbeat from %s (seq %d) received", hb.StationID, hb.Seq)
}
