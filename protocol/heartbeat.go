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
	"strconv"
	"strings"
	"time"
)

// Heartbeat framing for the transparent serial transport. The frames are
// multiplexed with the RTCM correction bytes on the same wire; STX/ETX
// delimiters let the receiver strip them without line-based parsing.
var (
	FramePrefix = []byte{0x02, 'R', 'T', 'K', 'H', 'B', ','}
	FrameSuffix = []byte{0x03}
)

// MaxFrameLength bounds a heartbeat frame on the wire. Anything longer that
// happens to start with the frame prefix is foreign data, not a heartbeat.
const MaxFrameLength = 200

// maxFieldLength caps each sanitized field inside a heartbeat frame.
const maxFieldLength = 40

// HeartbeatFrame holds the decoded heartbeat fields. Seq is -1 when the
// frame did not carry a parseable sequence number; receipt of the frame
// still proves the link is alive, so field-level failures are not errors.
type HeartbeatFrame struct {
	StationID string
	Timestamp string
	Seq       int
}

// EncodeHeartbeat builds a heartbeat frame. The timestamp is rendered in UTC
// at second precision and the sequence number is masked to 16 bits to match
// the packet header's sequence space.
func EncodeHeartbeat(stationID string, ts time.Time, seq int) []byte {
	var buf bytes.Buffer
	buf.Write(FramePrefix)
	buf.WriteString(cleanField(stationID))
	buf.WriteByte(',')
	buf.WriteString(cleanField(ts.UTC().Truncate(time.Second).Format(time.RFC3339)))
	buf.WriteByte(',')
	buf.WriteString(strconv.Itoa(seq & 0xFFFF))
	buf.Write(FrameSuffix)
	return buf.Bytes()
}

// FindFrameBounds locates the next complete heartbeat frame in buf at or
// after startAt and returns its start and exclusive end. This is the
// classification step the demultiplexer runs before any field decoding.
func FindFrameBounds(buf []byte, startAt int) (int, int, bool) {
	if startAt < 0 {
		startAt = 0
	}
	if startAt >= len(buf) {
		return 0, 0, false
	}
	rel := bytes.Index(buf[startAt:], FramePrefix)
	if rel < 0 {
		return 0, 0, false
	}
	start := startAt + rel
	suffix := bytes.Index(buf[start+len(FramePrefix):], FrameSuffix)
	if suffix < 0 {
		return 0, 0, false
	}
	end := start + len(FramePrefix) + suffix + len(FrameSuffix)
	return start, end, true
}

// DecodeHeartbeat strips the frame delimiters and splits the body into
// station ID, timestamp and sequence number. Only a buffer that isn't a
// delimited frame at all is an error.
func DecodeHeartbeat(frame []byte) (HeartbeatFrame, error) {
	if len(frame) < len(FramePrefix)+len(FrameSuffix) ||
		!bytes.HasPrefix(frame, FramePrefix) ||
		!bytes.HasSuffix(frame, FrameSuffix) {
		return HeartbeatFrame{}, ErrNotHeartbeat
	}
	body := frame[len(FramePrefix) : len(frame)-len(FrameSuffix)]
	parts := bytes.SplitN(body, []byte{','}, 3)

	hb := HeartbeatFrame{Seq: -1}
	if len(parts) > 0 {
		hb.StationID = decodeField(parts[0])
	}
	if len(parts) > 1 {
		hb.Timestamp = decodeField(parts[1])
	}
	if len(parts) > 2 {
		if seq, err := strconv.Atoi(strings.TrimSpace(string(parts[2]))); err == nil {
			hb.Seq = seq
		}
	}
	return hb, nil
}

// cleanField keeps heartbeat fields parseable on the wire: printable ASCII
// only, commas replaced so they can't split the body, length capped. An
// empty result falls back to "BASE".
func cleanField(value string) string {
	var b strings.Builder
	for _, ch := range strings.TrimSpace(value) {
		if ch < 0x20 || ch > 0x7E {
			continue
		}
		if ch == ',' {
			b.WriteByte('_')
			continue
		}
		b.WriteRune(ch)
	}
	safe := b.String()
	if safe == "" {
		return "BASE"
	}
	if len(safe) > maxFieldLength {
		return safe[:maxFieldLength]
	}
	return safe
}

func decodeField(raw []byte) string {
	cleaned := make([]byte, 0, len(raw))
	for _, b := range raw {
		if b > 0x7F {
			continue
		}
		cleaned = append(cleaned, b)
	}
	return strings.TrimSpace(string(cleaned))
}
