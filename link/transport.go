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

// Transport is the byte pipe the radio variants expose to the protocol
// layer. The transmitter and receiver treat every I/O error as "this
// send/read failed", record it on the health tracker and retry on their
// next cycle; nothing at this boundary is fatal.
type Transport interface {
	// Start prepares the transport. Implementations open the underlying
	// device lazily where possible so the process can boot without hardware.
	Start() error
	// Stop closes the transport and releases the device.
	Stop()
	// Send writes payload as a single unit (one over-the-air packet on
	// packetized radios, a raw write on transparent radios).
	Send(payload []byte) error
	// Read blocks until bytes arrive (one packet on packetized radios),
	// the read times out (n == 0, nil error) or the transport fails.
	Read(buf []byte) (int, error)
	// Connected reports whether the last operation on the device succeeded.
	Connected() bool
}
