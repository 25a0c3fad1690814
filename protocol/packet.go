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
	"encoding/binary"
)

// MessageType is the payload discriminator in the packet header.
type MessageType byte

// Packet types on the packetized radio link. Receivers ignore unknown values
// so new types can be introduced without breaking deployed rovers.
const (
	TypeHeartbeat   MessageType = 1
	TypeCorrections MessageType = 2
)

// Version is the wire format version. Receivers reject every other value.
const Version byte = 1

// HeaderLength is the fixed packet header size (magic, version, network ID,
// type, sequence). Buffers shorter than this are rejected outright.
const HeaderLength = 8

var packetMagic = []byte("RTK")

// Packet is a single unit on the packetized radio link: an 8-byte header
// followed by the payload.
type Packet struct {
	Type      MessageType
	NetworkID uint8
	Seq       uint16
	Payload   []byte
}

// NewPacket creates a packet. The network ID is range checked and the
// sequence number masked to 16 bits.
func NewPacket(messageType MessageType, networkID int, seq int, payload []byte) (Packet, error) {
	if networkID < 0 || networkID > 255 {
		return Packet{}, ErrInvalidNetworkID
	}
	return Packet{
		Type:      messageType,
		NetworkID: uint8(networkID),
		Seq:       uint16(seq & 0xFFFF),
		Payload:   payload,
	}, nil
}

// MarshalBinary marshals the packet into a byte buffer. The payload is
// appended as is; fragmenting to the radio MTU is the transmitter's job.
func (p *Packet) MarshalBinary() ([]byte, error) {
	buffer := make([]byte, HeaderLength+len(p.Payload))
	pos := copy(buffer, packetMagic)
	buffer[pos] = Version
	buffer[pos+1] = p.NetworkID
	buffer[pos+2] = byte(p.Type)
	binary.BigEndian.PutUint16(buffer[pos+3:], p.Seq)
	copy(buffer[HeaderLength:], p.Payload)
	return buffer, nil
}

// UnmarshalBinary extracts the header fields and payload. Truncated buffers,
// foreign magic and unsupported versions yield an error, never a panic. The
// payload aliases the input buffer.
func (p *Packet) UnmarshalBinary(data []byte) error {
	if len(data) < HeaderLength {
		return ErrBufferTruncated
	}
	if !bytes.Equal(data[0:len(packetMagic)], packetMagic) {
		return ErrUnknownMagic
	}
	if data[3] != Version {
		return ErrUnsupportedVersion
	}
	p.NetworkID = data[4]
	p.Type = MessageType(data[5])
	p.Seq = binary.BigEndian.Uint16(data[6:8])
	p.Payload = data[HeaderLength:]
	return nil
}

// DefaultStationIDLength is the payload size limit for station IDs carried
// in heartbeat packets.
const DefaultStationIDLength = 32

// EncodeStationID converts a station ID into a heartbeat packet payload.
// Non-ASCII characters are dropped and the result is truncated to maxLen.
func EncodeStationID(stationID string, maxLen int) []byte {
	cleaned := make([]byte, 0, len(stationID))
	for _, ch := range stationID {
		if ch > 0x7F {
			continue
		}
		cleaned = append(cleaned, byte(ch))
	}
	cleaned = bytes.TrimSpace(cleaned)
	if len(cleaned) > maxLen {
		cleaned = cleaned[:maxLen]
	}
	return cleaned
}

// DecodeStationID converts a heartbeat packet payload back into a station
// ID. An empty or all-garbage payload decodes to "unknown".
func DecodeStationID(payload []byte) string {
	cleaned := make([]byte, 0, len(payload))
	for _, b := range payload {
		if b > 0x7F {
			continue
		}
		cleaned = append(cleaned, b)
	}
	cleaned = bytes.TrimSpace(cleaned)
	if len(cleaned) == 0 {
		return "unknown"
	}
	return string(cleaned)
}
