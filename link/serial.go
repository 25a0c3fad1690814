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
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"github.com/ExploratoryEngineering/logging"
	serial "github.com/tarm/goserial"
)

// SerialConfig holds the parameters for a transparent serial radio.
type SerialConfig struct {
	Port string
	Baud int
}

// TransparentSerialLink drives a transparent-mode radio over a UART. The
// radio is a raw byte pipe with no framing of its own, which is why the
// heartbeat frames are multiplexed in-band by the protocol layer.
type TransparentSerialLink struct {
	cfg       SerialConfig
	mutex     sync.Mutex
	port      io.ReadWriteCloser
	connected bool
}

// NewTransparentSerialLink creates a transparent serial link. The port is
// opened lazily on first use.
func NewTransparentSerialLink(cfg SerialConfig) *TransparentSerialLink {
	return &TransparentSerialLink{cfg: cfg}
}

// Start logs intent only; opening is deferred to the first Send or Read so
// the process can boot before the radio is plugged in.
func (l *TransparentSerialLink) Start() error {
	logging.Info("Transparent serial link on %s @ %d baud", l.cfg.Port, l.cfg.Baud)
	return nil
}

// Stop closes the port.
func (l *TransparentSerialLink) Stop() {
	l.mutex.Lock()
	defer l.mutex.Unlock()
	l.closePortLocked()
	l.connected = false
}

// Connected reports whether the last port operation succeeded.
func (l *TransparentSerialLink) Connected() bool {
	l.mutex.Lock()
	defer l.mutex.Unlock()
	return l.connected
}

// Send writes payload to the radio. Write errors close the port; the next
// call reopens it.
func (l *TransparentSerialLink) Send(payload []byte) error {
	if len(payload) == 0 {
		return nil
	}
	port, err := l.currentPort()
	if err != nil {
		return err
	}
	if _, err := port.Write(payload); err != nil {
		logging.Warning("Serial write error on %s: %v", l.cfg.Port, err)
		l.fail()
		return err
	}
	l.setConnected()
	return nil
}

// Read blocks until the radio delivers bytes. Read errors close the port;
// the next call reopens it.
func (l *TransparentSerialLink) Read(buf []byte) (int, error) {
	port, err := l.currentPort()
	if err != nil {
		return 0, err
	}
	n, err := port.Read(buf)
	if err != nil {
		logging.Warning("Serial read error on %s: %v", l.cfg.Port, err)
		l.fail()
		return 0, err
	}
	l.setConnected()
	return n, nil
}

func (l *TransparentSerialLink) currentPort() (io.ReadWriteCloser, error) {
	l.mutex.Lock()
	defer l.mutex.Unlock()
	if l.port != nil {
		return l.port, nil
	}
	return l.openPortLocked()
}

// openPortLocked probes the configured port first, then the usual places a
// USB radio shows up. The scan makes field setups survive the radio moving
// between USB ports across reboots.
func (l *TransparentSerialLink) openPortLocked() (io.ReadWriteCloser, error) {
	var attempts []string
	for _, candidate := range l.candidatePorts() {
		if !portExists(candidate) {
			continue
		}
		attempts = append(attempts, candidate)
		port, err := serial.OpenPort(&serial.Config{Name: candidate, Baud: l.cfg.Baud})
		if err != nil {
			logging.Warning("Serial open failed on %s: %v", candidate, err)
			continue
		}
		l.port = port
		l.connected = true
		l.cfg.Port = candidate
		logging.Info("Serial link opened on %s @ %d baud", candidate, l.cfg.Baud)
		return port, nil
	}
	l.connected = false
	if len(attempts) > 0 {
		return nil, fmt.Errorf("no serial radio on candidate ports: %s", strings.Join(attempts, ", "))
	}
	return nil, fmt.Errorf("no serial radio: no candidate ports found")
}

func (l *TransparentSerialLink) candidatePorts() []string {
	var ports []string
	seen := make(map[string]bool)
	add := func(port string) {
		p := strings.TrimSpace(port)
		if p != "" && !seen[p] {
			seen[p] = true
			ports = append(ports, p)
		}
	}
	add(l.cfg.Port)
	for _, pattern := range []string{
		"/dev/serial/by-id/*CP2102*",
		"/dev/serial/by-id/*USB_to_UART*",
		"/dev/serial/by-id/*",
	} {
		matches, _ := filepath.Glob(pattern)
		sort.Strings(matches)
		for _, m := range matches {
			add(m)
		}
	}
	for _, fallback := range []string{"/dev/ttyUSB0", "/dev/ttyUSB1", "/dev/serial0", "/dev/ttyS0"} {
		add(fallback)
	}
	return ports
}

func (l *TransparentSerialLink) fail() {
	l.mutex.Lock()
	defer l.mutex.Unlock()
	l.connected = false
	l.closePortLocked()
}

func (l *TransparentSerialLink) setConnected() {
	l.mutex.Lock()
	defer l.mutex.Unlock()
	l.connected = true
}

func (l *TransparentSerialLink) closePortLocked() {
	if l.port == nil {
		return
	}
	if err := l.port.Close(); err != nil {
		logging.Debug("Error closing serial port: %v", err)
	}
	l.port = nil
}

// portExists checks for the device node. Paths outside /dev are allowed as
// is for test and development setups.
func portExists(port string) bool {
	if !strings.HasPrefix(port, "/dev/") {
		return true
	}
	_, err := os.Stat(port)
	return err == nil
}
