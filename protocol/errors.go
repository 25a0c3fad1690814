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
import "errors"

// Errors returned by the codecs. A decode error means the buffer is dropped;
// it is never a transport failure.
var (
	// ErrBufferTruncated is returned when a buffer is too short to hold a packet
	ErrBufferTruncated = errors.New("buffer too short")
	// ErrUnknownMagic is returned when a buffer doesn't start with the protocol magic
	ErrUnknownMagic = errors.New("unknown protocol magic")
	// ErrUnsupportedVersion is returned for packets from a different protocol version
	ErrUnsupportedVersion = errors.New("unsupported protocol version")
	// ErrInvalidNetworkID is returned when a network ID is outside 0..255
	ErrInvalidNetworkID = errors.New("network id out of range")
	// ErrNotHeartbeat is returned when a buffer isn't a delimited heartbeat frame
	ErrNotHeartbeat = errors.New("not a heartbeat frame")
)
