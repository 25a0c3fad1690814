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
	"sync"
	"time"
)

// Snapshot is a point-in-time copy of the link health state. On the
// transmit side BytesTransferred counts every byte written to the radio; on
// the receive side it counts only correction bytes, so heartbeat traffic
// never masks a stalled correction stream. The heartbeat fields are only
// populated on the receive side.
type Snapshot struct {
	Connected         bool
	BytesTransferred  int64
	LastActivity      time.Time
	Heartbeats        int64
	LastHeartbeat     time.Time
	LastHeartbeatFrom string
	LastHeartbeatSeq  int
	LastError         string
}

// Health tracks traffic counters and liveness for one radio link. All
// mutation happens on the goroutine that owns the transport; the status
// reporting path reads through Snapshot. The mutex guards only this struct
// and is never held across a blocking transport call.
type Health struct {
	mutex   sync.Mutex
	current Snapshot
	clock   func() time.Time
}

// NewHealth creates a zeroed health tracker.
func NewHealth() *Health {
	return &Health{
		current: Snapshot{LastHeartbeatSeq: -1},
		clock:   time.Now,
	}
}

// RecordData notes a successful transfer of n payload bytes.
func (h *Health) RecordData(n int) {
	h.recordData(n, h.clock())
}

func (h *Health) recordData(n int, now time.Time) {
	h.mutex.Lock()
	defer h.mutex.Unlock()
	h.current.Connected = true
	h.current.BytesTransferred += int64(n)
	h.current.LastActivity = now
}

// RecordActivity notes traffic that proves the link is alive without moving
// the byte counter. The receiver calls this for every read, heartbeats
// included, so liveness gates on recent traffic of any kind.
func (h *Health) RecordActivity() {
	h.recordActivity(h.clock())
}

func (h *Health) recordActivity(now time.Time) {
	h.mutex.Lock()
	defer h.mutex.Unlock()
	h.current.Connected = true
	h.current.LastActivity = now
}

// RecordHeartbeat notes a received heartbeat. It deliberately doesn't touch
// the data counters: heartbeats prove the RF path, not the correction flow.
func (h *Health) RecordHeartbeat(stationID string, seq int) {
	h.recordHeartbeat(stationID, seq, h.clock())
}

func (h *Health) recordHeartbeat(stationID string, seq int, now time.Time) {
	h.mutex.Lock()
	defer h.mutex.Unlock()
	h.current.Heartbeats++
	h.current.LastHeartbeat = now
	if stationID != "" {
		h.current.LastHeartbeatFrom = stationID
	}
	if seq >= 0 {
		h.current.LastHeartbeatSeq = seq
	}
}

// RecordFailure marks the link down after a transport I/O error. Counters
// and timestamps are kept; the next successful transfer reconnects.
func (h *Health) RecordFailure(err error) {
	h.mutex.Lock()
	defer h.mutex.Unlock()
	h.current.Connected = false
	if err != nil {
		h.current.LastError = err.Error()
	}
}

// IsRecentlyActive reports whether the link has seen traffic within the
// timeout. This is the externally visible liveness predicate: an open
// transport can stay silent indefinitely, so raw connectedness means little.
func (h *Health) IsRecentlyActive(timeout time.Duration, now time.Time) bool {
	h.mutex.Lock()
	defer h.mutex.Unlock()
	if h.current.LastActivity.IsZero() {
		return false
	}
	return now.Sub(h.current.LastActivity) <= timeout
}

// Snapshot returns a copy of the current state.
func (h *Health) Snapshot() Snapshot {
	h.mutex.Lock()
	defer h.mutex.Unlock()
	return h.current
}
