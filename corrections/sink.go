package corrections

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
	"io"
	"sync"

	"github.com/ExploratoryEngineering/logging"
	serial "github.com/tarm/goserial"
)

// Sink consumes demultiplexed correction bytes on the rover side, typically
// by forwarding them to the GNSS receiver. Implementations must not block
// indefinitely; a failed write is logged by the caller and processing
// continues.
type Sink interface {
	WriteCorrection(payload []byte) error
}

// SinkFunc adapts a function to the Sink interface.
type SinkFunc func(payload []byte) error

// WriteCorrection calls f.
func (f SinkFunc) WriteCorrection(payload []byte) error {
	return f(payload)
}

// DiscardSink drops correction bytes. Used when no GNSS receiver is
// configured so the link can still be exercised and measured.
var DiscardSink = SinkFunc(func(payload []byte) error {
	return nil
})

// SerialSinkConfig holds the parameters for the rover's GNSS receiver UART.
type SerialSinkConfig struct {
	Port string
	Baud int
}

// SerialSink forwards correction bytes to the GNSS receiver. The port opens
// lazily and reopens after errors, mirroring the link transports.
type SerialSink struct {
	cfg   SerialSinkConfig
	mutex sync.Mutex
	port  io.ReadWriteCloser
}

// NewSerialSink creates a serial correction sink.
func NewSerialSink(cfg SerialSinkConfig) *SerialSink {
	return &SerialSink{cfg: cfg}
}

// WriteCorrection writes payload to the receiver.
func (s *SerialSink) WriteCorrection(payload []byte) error {
	if len(payload) == 0 {
		return nil
	}
	s.mutex.Lock()
	defer s.mutex.Unlock()
	if s.port == nil {
		port, err := serial.OpenPort(&serial.Config{Name: s.cfg.Port, Baud: s.cfg.Baud})
		if err != nil {
			return err
		}
		s.port = port
		logging.Info("GNSS correction sink opened on %s", s.cfg.Port)
	}
	if _, err := s.port.Write(payload); err != nil {
		s.closePortLocked()
		return err
	}
	return nil
}

// Connected reports whether the receiver port is open.
func (s *SerialSink) Connected() bool {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	return s.port != nil
}

// Close releases the port.
func (s *SerialSink) Close() {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	s.closePortLocked()
}

func (s *SerialSink) closePortLocked() {
	if s.port == nil {
		return
	}
	if err := s.port.Close(); err != nil {
		logging.Debug("Error closing sink port: %v", err)
	}
	s.port = nil
}
