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
	"encoding/binary"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/ExploratoryEngineering/logging"
	serial "github.com/tarm/goserial"
)

// Source produces correction bytes on the base station side. ReadChunk
// returns whatever is available right now, possibly nothing; the transmit
// scheduler polls it once per cycle and must never be blocked by it.
type Source interface {
	Start() error
	Stop()
	ReadChunk() []byte
	Connected() bool
}

// SerialSourceConfig holds the parameters for a GNSS receiver emitting
// RTCM corrections on a UART.
type SerialSourceConfig struct {
	Port       string
	Baud       int
	ChunkBytes int
}

// sourceRetryDelay is the pause before reopening a failed correction port.
const sourceRetryDelay = 500 * time.Millisecond

// defaultChunkBytes is the read size when none is configured.
const defaultChunkBytes = 512

// SerialSource reads correction bytes from a GNSS receiver. The blocking
// serial reads run on an internal goroutine; ReadChunk drains a buffered
// channel so the caller's cycle never stalls on the receiver.
type SerialSource struct {
	cfg       SerialSourceConfig
	chunks    chan []byte
	terminate chan bool
	mutex     sync.Mutex
	port      io.ReadWriteCloser
	connected bool
}

// NewSerialSource creates a serial correction source.
func NewSerialSource(cfg SerialSourceConfig) *SerialSource {
	if cfg.ChunkBytes <= 0 {
		cfg.ChunkBytes = defaultChunkBytes
	}
	return &SerialSource{
		cfg:       cfg,
		chunks:    make(chan []byte, 16),
		terminate: make(chan bool),
	}
}

// Start launches the reader goroutine.
func (s *SerialSource) Start() error {
	logging.Info("Correction source on %s @ %d baud", s.cfg.Port, s.cfg.Baud)
	go s.readerLoop()
	return nil
}

// Stop stops the reader and closes the port.
func (s *SerialSource) Stop() {
	close(s.terminate)
	s.mutex.Lock()
	defer s.mutex.Unlock()
	s.closePortLocked()
	s.connected = false
}

// Connected reports whether the receiver port is delivering bytes.
func (s *SerialSource) Connected() bool {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	return s.connected
}

// ReadChunk returns the next buffered chunk, or nothing if the receiver has
// been quiet.
func (s *SerialSource) ReadChunk() []byte {
	select {
	case chunk := <-s.chunks:
		return chunk
	default:
		return nil
	}
}

func (s *SerialSource) readerLoop() {
	buf := make([]byte, s.cfg.ChunkBytes)
	for {
		select {
		case <-s.terminate:
			return
		default:
		}
		port, err := s.currentPort()
		if err != nil {
			select {
			case <-s.terminate:
				return
			case <-time.After(sourceRetryDelay):
			}
			continue
		}
		n, err := port.Read(buf)
		if err != nil {
			logging.Warning("Correction serial read error: %v", err)
			s.fail()
			continue
		}
		if n == 0 {
			continue
		}
		chunk := make([]byte, n)
		copy(chunk, buf[:n])
		select {
		case s.chunks <- chunk:
		default:
			// The scheduler is behind; corrections age fast, drop this one.
			logging.Debug("Correction backlog full, dropping %d bytes", n)
		}
	}
}

func (s *SerialSource) currentPort() (io.ReadWriteCloser, error) {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	if s.port != nil {
		return s.port, nil
	}
	for _, candidate := range s.candidatePorts() {
		if !portExists(candidate) {
			continue
		}
		port, err := serial.OpenPort(&serial.Config{Name: candidate, Baud: s.cfg.Baud})
		if err != nil {
			logging.Debug("Correction serial open failed on %s: %v", candidate, err)
			continue
		}
		s.port = port
		s.connected = true
		s.cfg.Port = candidate
		logging.Info("Correction serial opened on %s", candidate)
		return port, nil
	}
	s.connected = false
	return nil, os.ErrNotExist
}

// candidatePorts probes the configured port first, then the places a GNSS
// receiver usually shows up, skipping devices that look like the LoRa radio
// so the two never fight over a port.
func (s *SerialSource) candidatePorts() []string {
	var ports []string
	seen := make(map[string]bool)
	add := func(port string) {
		p := strings.TrimSpace(port)
		if p != "" && !seen[p] {
			seen[p] = true
			ports = append(ports, p)
		}
	}
	add(s.cfg.Port)
	for _, pattern := range []string{
		"/dev/serial/by-id/*u-blox*",
		"/dev/serial/by-id/*UBLOX*",
		"/dev/serial/by-id/*GNSS*",
		"/dev/serial/by-id/*",
	} {
		matches, _ := filepath.Glob(pattern)
		sort.Strings(matches)
		for _, m := range matches {
			if isLikelyRadioPort(m) {
				continue
			}
			add(m)
		}
	}
	for _, fallback := range []string{
		"/dev/ttyACM0", "/dev/ttyACM1", "/dev/ttyUSB0", "/dev/ttyUSB1", "/dev/serial0", "/dev/ttyAMA0",
	} {
		add(fallback)
	}
	return ports
}

func isLikelyRadioPort(port string) bool {
	lowered := strings.ToLower(port)
	for _, marker := range []string{"cp210", "usb_to_uart", "silicon_labs", "sx126", "lora", "ebyte", "e22", "rf95"} {
		if strings.Contains(lowered, marker) {
			return true
		}
	}
	return false
}

func (s *SerialSource) fail() {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	s.connected = false
	s.closePortLocked()
}

func (s *SerialSource) closePortLocked() {
	if s.port == nil {
		return
	}
	if err := s.port.Close(); err != nil {
		logging.Debug("Error closing correction port: %v", err)
	}
	s.port = nil
}

func portExists(port string) bool {
	if !strings.HasPrefix(port, "/dev/") {
		return true
	}
	_, err := os.Stat(port)
	return err == nil
}

// SimulatedSourceConfig holds the parameters for the synthetic source.
type SimulatedSourceConfig struct {
	Interval   time.Duration
	ChunkBytes int
}

// SimulatedSource emits synthetic correction chunks on a fixed cadence. The
// chunks are shaped like RTCM3 framing (0xD3 preamble, 10-bit length, 3-byte
// trailer) so byte accounting downstream behaves like the real stream, but
// the body is filler, not valid RTCM.
type SimulatedSource struct {
	cfg    SimulatedSourceConfig
	mutex  sync.Mutex
	nextAt time.Time
	seq    uint32
	active bool
}

// NewSimulatedSource creates a simulated correction source.
func NewSimulatedSource(cfg SimulatedSourceConfig) *SimulatedSource {
	if cfg.Interval <= 0 {
		cfg.Interval = time.Second
	}
	if cfg.ChunkBytes <= 0 {
		cfg.ChunkBytes = 64
	}
	return &SimulatedSource{cfg: cfg}
}

// Start arms the cadence timer.
func (s *SimulatedSource) Start() error {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	s.active = true
	s.nextAt = time.Now()
	logging.Info("Simulated correction source, %d bytes every %v", s.cfg.ChunkBytes, s.cfg.Interval)
	return nil
}

// Stop disables the source.
func (s *SimulatedSource) Stop() {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	s.active = false
}

// Connected is always true while the source runs.
func (s *SimulatedSource) Connected() bool {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	return s.active
}

// ReadChunk returns a synthetic chunk when the cadence timer has expired.
func (s *SimulatedSource) ReadChunk() []byte {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	if !s.active {
		return nil
	}
	now := time.Now()
	if now.Before(s.nextAt) {
		return nil
	}
	s.nextAt = now.Add(s.cfg.Interval)
	s.seq++
	return buildSyntheticChunk(s.seq, s.cfg.ChunkBytes)
}

func buildSyntheticChunk(seq uint32, size int) []byte {
	if size < 10 {
		size = 10
	}
	chunk := make([]byte, size)
	chunk[0] = 0xD3
	bodyLen := size - 6
	chunk[1] = byte(bodyLen >> 8 & 0x03)
	chunk[2] = byte(bodyLen)
	binary.BigEndian.PutUint32(chunk[3:], seq)
	for i := 7; i < size-3; i++ {
		chunk[i] = byte(i)
	}
	return chunk
}
