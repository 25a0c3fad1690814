package protocol

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
import "bytes"

// DataFunc receives correction byte spans in stream order. The slice is only
// valid for the duration of the call.
type DataFunc func(data []byte)

// FrameFunc receives complete heartbeat frames, delimiters included. The
// slice is only valid for the duration of the call.
type FrameFunc func(frame []byte)

// StreamDemux incrementally splits a transparent-serial byte stream into
// heartbeat frames and correction data. The radio may split any in-flight
// write across arbitrarily many reads, so the demultiplexer is resumable
// across Feed calls and buffers only bytes it cannot classify yet: a
// possibly-partial frame, or a stream tail that could be the start of one.
//
// The accumulator is owned by the single reader goroutine that calls Feed;
// it needs no locking as long as that ownership is respected.
type StreamDemux struct {
	pending []byte
	onData  DataFunc
	onFrame FrameFunc
	resyncs int
}

// NewStreamDemux creates a demultiplexer delivering correction data to
// onData and heartbeat frames to onFrame.
func NewStreamDemux(onData DataFunc, onFrame FrameFunc) *StreamDemux {
	return &StreamDemux{onData: onData, onFrame: onFrame}
}

// Resyncs returns how many false-positive prefix matches have been dropped.
// Resync events are observability only, never errors.
func (d *StreamDemux) Resyncs() int {
	return d.resyncs
}

// Feed consumes one received chunk. Correction data is emitted immediately
// and in order; only control-plane bytes are ever held back, and only until
// the next chunk resolves them.
func (d *StreamDemux) Feed(chunk []byte) {
	if len(chunk) == 0 {
		return
	}
	d.pending = append(d.pending, chunk...)

	for {
		start := bytes.Index(d.pending, FramePrefix)
		if start < 0 {
			// No frame start anywhere. Everything except a tail that could be
			// the beginning of a prefix split across reads is data.
			d.emitData(len(d.pending) - prefixOverlap(d.pending))
			return
		}
		if start > 0 {
			// Bytes ahead of the frame start are unambiguous correction data.
			d.emitData(start)
			continue
		}

		// Buffer starts with the frame prefix; look for the terminator.
		rel := bytes.Index(d.pending[len(FramePrefix):], FrameSuffix)
		if rel < 0 {
			if len(d.pending) > MaxFrameLength {
				d.resync()
				continue
			}
			// Incomplete frame; the terminator may be in the next read.
			return
		}
		frameLen := len(FramePrefix) + rel + len(FrameSuffix)
		if frameLen > MaxFrameLength {
			d.resync()
			continue
		}
		frame := d.pending[:frameLen]
		d.pending = d.pending[frameLen:]
		d.onFrame(frame)
	}
}

// emitData forwards the first n pending bytes as correction data.
func (d *StreamDemux) emitData(n int) {
	if n <= 0 {
		return
	}
	data := d.pending[:n]
	d.pending = d.pending[n:]
	d.onData(data)
}

// resync drops a single byte as data after a false-positive prefix match.
// Advancing one byte at a time preserves every byte of the stream,
// guarantees forward progress and keeps the accumulator bounded even on a
// line full of prefix-like garbage.
func (d *StreamDemux) resync() {
	d.resyncs++
	d.emitData(1)
}

// prefixOverlap returns the length of the longest suffix of buf that is a
// proper prefix of the heartbeat frame prefix. Those bytes can't be flushed
// as data yet: the rest of the prefix may arrive in the next read.
func prefixOverlap(buf []byte) int {
	max := len(FramePrefix) - 1
	if len(buf) < max {
		max = len(buf)
	}
	for n := max; n > 0; n-- {
		if bytes.HasSuffix(buf, FramePrefix[:n]) {
			return n
		}
	}
	return 0
}
