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

// TransmitterConfig holds the base station's transmit parameters.
type TransmitterConfig struct {
	StationID         string
	NetworkID         int
	Packetized        bool
	MaxPayloadBytes   int
	HeartbeatInterval time.Duration
	HeartbeatEnabled  bool
	PollInterval      time.Duration
}

// minHeartbeatInterval is the floor for the heartbeat cadence. Anything
// faster would waste airtime the corrections need.
const minHeartbeatInterval = 200 * time.Millisecond

// minPayloadBytes is the floor for the per-packet payload size. Below this
// the header overhead dominates and the link degenerates.
const minPayloadBytes = 16

// defaultPollInterval is the source polling cadence when none is configured.
const defaultPollInterval = 20 * time.Millisecond

// Transmitter is the base station side of the link: it drains the correction
// source, forwards the bytes over the transport and interleaves periodic
// heartbeats. Corrections always go out before a pending heartbeat; a
// heartbeat is never allowed to delay correction data.
type Transmitter struct {
	config        TransmitterConfig
	transport     Transport
	source        corrections.Source
	health        *Health
	terminate     chan bool
	dataSeq       int
	hbSeq         int
	nextHeartbeat time.Time
}

// NewTransmitter creates a transmitter. Out-of-range config values are
// clamped, not rejected.
func NewTransmitter(config TransmitterConfig, transport Transport, source corrections.Source, health *Health) *Transmitter {
	if config.HeartbeatInterval < minHeartbeatInterval {
		config.HeartbeatInterval = minHeartbeatInterval
	}
	if config.MaxPayloadBytes < minPayloadBytes {
		config.MaxPayloadBytes = minPayloadBytes
	}
	if config.PollInterval <= 0 {
		config.PollInterval = defaultPollInterval
	}
	return &Transmitter{
		config:    config,
		transport: transport,
		source:    source,
		health:    health,
		terminate: make(chan bool),
	}
}

// Start launches the transmit loop.
func (t *Transmitter) Start() error {
	mode := "transparent"
	if t.config.Packetized {
		mode = "packetized"
	}
	logging.Info("Transmitter starting for station %s on network %d (%s)",
		t.config.StationID, t.config.NetworkID, mode)
	t.nextHeartbeat = time.Now()
	go t.transmitLoop()
	return nil
}

// Stop terminates the transmit loop.
func (t *Transmitter) Stop() {
	close(t.terminate)
}

func (t *Transmitter) transmitLoop() {
	for {
		select {
		case <-t.terminate:
			return
		default:
		}
		sent := false
		if chunk := t.source.ReadChunk(); len(chunk) > 0 {
			t.sendCorrections(chunk)
			sent = true
		}
		t.maybeHeartbeat(time.Now())
		if sent {
			// More corrections may be queued; drain them before sleeping.
			continue
		}
		select {
		case <-t.terminate:
			return
		case <-time.After(t.config.PollInterval):
		}
	}
}

// sendCorrections forwards one source chunk over the link. In packetized
// mode the chunk is fragmented to the payload limit; a failed fragment
// aborts the rest of the chunk since the receiver has no use for a hole.
func (t *Transmitter) sendCorrections(chunk []byte) {
	if !t.config.Packetized {
		if err := t.transport.Send(chunk); err != nil {
			logging.Warning("Correction send failed: %v", err)
			t.health.RecordFailure(err)
			monitoring.LinkTxErrors.Increment()
			return
		}
		t.health.RecordData(len(chunk))
		monitoring.LinkTxChunks.Increment()
		return
	}

	for offset := 0; offset < len(chunk); offset += t.config.MaxPayloadBytes {
		end := offset + t.config.MaxPayloadBytes
		if end > len(chunk) {
			end = len(chunk)
		}
		t.dataSeq++
		packet, err := protocol.NewPacket(protocol.TypeCorrections, t.config.NetworkID, t.dataSeq, chunk[offset:end])
		if err != nil {
			logging.Error("Invalid correction packet: %v", err)
			return
		}
		buffer, err := packet.MarshalBinary()
		if err != nil {
			logging.Error("Unable to marshal correction packet: %v", err)
			return
		}
		if err := t.transport.Send(buffer); err != nil {
			logging.Warning("Correction packet %d send failed: %v", packet.Seq, err)
			t.health.RecordFailure(err)
			monitoring.LinkTxErrors.Increment()
			return
		}
		t.health.RecordData(len(buffer))
		monitoring.LinkTxPackets.Increment()
	}
}

// maybeHeartbeat sends a heartbeat when one is due. The next deadline
// advances even when the send fails so a dead link doesn't turn into a
// heartbeat flood once it recovers.
func (t *Transmitter) maybeHeartbeat(now time.Time) {
	if !t.config.HeartbeatEnabled || now.Before(t.nextHeartbeat) {
		return
	}
	t.nextHeartbeat = now.Add(t.config.HeartbeatInterval)
	t.hbSeq++

	var buffer []byte
	if t.config.Packetized {
		packet, err := protocol.NewPacket(protocol.TypeHeartbeat, t.config.NetworkID, t.hbSeq,
			protocol.EncodeStationID(t.config.StationID, protocol.DefaultStationIDLength))
		if err != nil {
			logging.Error("Invalid heartbeat packet: %v", err)
			return
		}
		buffer, err = packet.MarshalBinary()
		if err != nil {
			logging.Error("Unable to marshal heartbeat packet: %v", err)
			return
		}
	} else {
		buffer = protocol.EncodeHeartbeat(t.config.StationID, now, t.hbSeq)
	}

	if err := t.transport.Send(buffer); err != nil {
		logging.Warning("Heartbeat %d send failed: %v", t.hbSeq, err)
		t.health.RecordFailure(err)
		monitoring.LinkTxErrors.Increment()
		return
	}
	t.health.RecordData(len(buffer))
	monitoring.LinkTxHeartbeats.Increment()
	logging.Debug("Heartbeat %d sent", t.hbSeq)
}
