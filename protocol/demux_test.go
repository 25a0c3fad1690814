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
import (
	"bytes"
	"testing"
	"time"
)

type demuxCapture struct {
	data   bytes.Buffer
	frames []HeartbeatFrame
}

func newCapturedDemux() (*StreamDemux, *demuxCapture) {
	capture := &demuxCapture{}
	demux := NewStreamDemux(
		func(data []byte) {
			capture.data.Write(data)
		},
		func(frame []byte) {
			hb, err := DecodeHeartbeat(frame)
			if err != nil {
				panic("demux emitted an unframed heartbeat: " + err.Error())
			}
			capture.frames = append(capture.frames, hb)
		})
	return demux, capture
}

func TestDemuxInterleavedAtEverySplitPoint(t *testing.T) {
	ts := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	frame := EncodeHeartbeat("BASE-01", ts, 1)

	stream := append([]byte{}, []byte("RTCMTEST1")...)
	stream = append(stream, frame...)
	stream = append(stream, []byte("RTCMTEST2")...)

	// Feeding the stream split at every possible point (including inside the
	// frame prefix) must always reassemble the same data and the same frame.
	for split := 0; split <= len(stream); split++ {
		demux, capture := newCapturedDemux()
		demux.Feed(stream[:split])
		demux.Feed(stream[split:])

		if got := capture.data.String(); got != "RTCMTEST1RTCMTEST2" {
			t.Fatalf("Split %d: wrong data %q", split, got)
		}
		if len(capture.frames) != 1 {
			t.Fatalf("Split %d: expected 1 frame, got %d", split, len(capture.frames))
		}
		if capture.frames[0].StationID != "BASE-01" || capture.frames[0].Seq != 1 {
			t.Fatalf("Split %d: wrong frame %+v", split, capture.frames[0])
		}
	}

	// Byte-by-byte delivery is the worst case the radio can produce.
	demux, capture := newCapturedDemux()
	for _, b := range stream {
		demux.Feed([]byte{b})
	}
	if capture.data.String() != "RTCMTEST1RTCMTEST2" || len(capture.frames) != 1 {
		t.Fatalf("Byte-by-byte: data %q, %d frames", capture.data.String(), len(capture.frames))
	}
}

func TestDemuxBackToBackFrames(t *testing.T) {
	ts := time.Now()
	stream := append([]byte{}, EncodeHeartbeat("A", ts, 1)...)
	stream = append(stream, EncodeHeartbeat("B", ts, 2)...)

	demux, capture := newCapturedDemux()
	demux.Feed(stream)

	if capture.data.Len() != 0 {
		t.Fatalf("No data expected, got %q", capture.data.String())
	}
	if len(capture.frames) != 2 || capture.frames[0].StationID != "A" || capture.frames[1].StationID != "B" {
		t.Fatalf("Unexpected frames: %+v", capture.frames)
	}
}

func TestDemuxResyncOnMissingTerminator(t *testing.T) {
	// A stream that merely starts with the frame prefix and never terminates
	// must degrade to data, one byte at a time, without unbounded buffering.
	for _, extra := range []int{0, 1, 57, 400} {
		stream := append([]byte{}, FramePrefix...)
		stream = append(stream, bytes.Repeat([]byte{'A'}, MaxFrameLength+extra)...)

		demux, capture := newCapturedDemux()
		demux.Feed(stream)

		if len(capture.frames) != 0 {
			t.Fatalf("extra=%d: no frames expected", extra)
		}
		if !bytes.Equal(capture.data.Bytes(), stream) {
			t.Fatalf("extra=%d: stream not preserved (%d of %d bytes)",
				extra, capture.data.Len(), len(stream))
		}
		if demux.Resyncs() == 0 {
			t.Fatalf("extra=%d: expected resync events", extra)
		}
		if len(demux.pending) > MaxFrameLength {
			t.Fatalf("extra=%d: accumulator grew to %d bytes", extra, len(demux.pending))
		}
	}
}

func TestDemuxResyncOnOversizedFrame(t *testing.T) {
	// Prefix and terminator present, but too far apart: a false positive.
	stream := append([]byte{}, FramePrefix...)
	stream = append(stream, bytes.Repeat([]byte{'B'}, MaxFrameLength)...)
	stream = append(stream, FrameSuffix...)
	stream = append(stream, []byte("tail")...)

	demux, capture := newCapturedDemux()
	demux.Feed(stream)

	if len(capture.frames) != 0 {
		t.Fatal("Oversized candidates aren't heartbeats")
	}
	if !bytes.Equal(capture.data.Bytes(), stream) {
		t.Fatalf("Stream not preserved: %d of %d bytes", capture.data.Len(), len(stream))
	}
}

func TestDemuxHoldsPartialPrefixOnly(t *testing.T) {
	demux, capture := newCapturedDemux()

	// Data ending in a partial prefix: the tail must be retained, the rest
	// emitted immediately.
	chunk := append([]byte("data"), FramePrefix[:3]...)
	demux.Feed(chunk)
	if capture.data.String() != "data" {
		t.Fatalf("Expected only the unambiguous bytes, got %q", capture.data.String())
	}

	// The next chunk disambiguates: it wasn't a frame after all.
	demux.Feed([]byte("xyz"))
	if capture.data.String() != "data"+string(FramePrefix[:3])+"xyz" {
		t.Fatalf("Held tail should be flushed as data, got %q", capture.data.String())
	}
	if len(capture.frames) != 0 {
		t.Fatal("No frames expected")
	}
}
