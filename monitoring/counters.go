package monitoring

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
	"expvar"
)

// Counter is a monotonically increasing process counter published via
// expvar on the debug endpoint.
type Counter struct {
	name  string
	total *expvar.Int
}

// Increment adds one to the counter.
func (c *Counter) Increment() {
	c.total.Add(1)
}

// Add adds n to the counter.
func (c *Counter) Add(n int64) {
	c.total.Add(n)
}

// Value returns the current count.
func (c *Counter) Value() int64 {
	return c.total.Value()
}

func newCounter(name string) *Counter {
	return &Counter{name, expvar.NewInt(name)}
}

// These are the counters exposed by the relay process.
var (
	LinkTxPackets    *Counter // Correction packets sent (packetized mode)
	LinkTxChunks     *Counter // Correction chunks sent (transparent mode)
	LinkTxHeartbeats *Counter // Heartbeats sent
	LinkTxErrors     *Counter // Failed sends of either kind
	LinkRxBytes      *Counter // Correction bytes delivered to the sink
	LinkRxHeartbeats *Counter // Heartbeats received
	LinkRxErrors     *Counter // Transport read failures
	LinkRxRejected   *Counter // Undecodable received packets
	LinkRxForeign    *Counter // Valid packets for another network ID
	DemuxResyncs     *Counter // False-positive frame starts dropped
	SinkErrors       *Counter // Correction sink write failures
	TelemetrySent    *Counter // Telemetry messages published
)

func init() {
	LinkTxPackets = newCounter("link.tx.packets")
	LinkTxChunks = newCounter("link.tx.chunks")
	LinkTxHeartbeats = newCounter("link.tx.heartbeats")
	LinkTxErrors = newCounter("link.tx.errors")
	LinkRxBytes = newCounter("link.rx.bytes")
	LinkRxHeartbeats = newCounter("link.rx.heartbeats")
	LinkRxErrors = newCounter("link.rx.errors")
	LinkRxRejected = newCounter("link.rx.rejected")
	LinkRxForeign = newCounter("link.rx.foreign")
	DemuxResyncs = newCounter("link.rx.resyncs")
	SinkErrors = newCounter("corrections.sink.errors")
	TelemetrySent = newCounter("telemetry.sent")
}
