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
	"sync"

	"github.com/ExploratoryEngineering/logging"
	"github.com/dtn7/rf95modem-go/rf95"
)

// PacketRadio is the minimal driver surface for packet-oriented radio
// modules: each Transmit is one over-the-air packet and each Receive
// returns exactly one received packet.
type PacketRadio interface {
	Begin() error
	Transmit(payload []byte) error
	Receive(buf []byte) (int, error)
	End()
}

// PacketizedRadioLink adapts a PacketRadio driver to the Transport
// interface. The radio is brought up lazily and torn down on errors so the
// next operation reinitializes it.
type PacketizedRadioLink struct {
	radio     PacketRadio
	mutex     sync.Mutex
	begun     bool
	connected bool
}

// NewPacketizedRadioLink creates a packetized link on top of a radio driver.
func NewPacketizedRadioLink(radio PacketRadio) *PacketizedRadioLink {
	return &PacketizedRadioLink{radio: radio}
}

// Start logs intent only; the radio is initialized on first use.
func (l *PacketizedRadioLink) Start() error {
	logging.Info("Packetized radio link starting")
	return nil
}

// Stop shuts the radio down.
func (l *PacketizedRadioLink) Stop() {
	l.mutex.Lock()
	defer l.mutex.Unlock()
	if l.begun {
		l.radio.End()
		l.begun = false
	}
	l.connected = false
}

// Connected reports whether the last radio operation succeeded.
func (l *PacketizedRadioLink) Connected() bool {
	l.mutex.Lock()
	defer l.mutex.Unlock()
	return l.connected
}

// Send transmits payload as a single packet.
func (l *PacketizedRadioLink) Send(payload []byte) error {
	if len(payload) == 0 {
		return nil
	}
	if err := l.ensureBegun(); err != nil {
		return err
	}
	if err := l.radio.Transmit(payload); err != nil {
		logging.Warning("Radio transmit error: %v", err)
		l.fail()
		return err
	}
	l.setConnected()
	return nil
}

// Read blocks until the radio delivers a packet into buf.
func (l *PacketizedRadioLink) Read(buf []byte) (int, error) {
	if err := l.ensureBegun(); err != nil {
		return 0, err
	}
	n, err := l.radio.Receive(buf)
	if err != nil {
		logging.Warning("Radio receive error: %v", err)
		l.fail()
		return 0, err
	}
	l.setConnected()
	return n, nil
}

func (l *PacketizedRadioLink) ensureBegun() error {
	l.mutex.Lock()
	defer l.mutex.Unlock()
	if l.begun {
		return nil
	}
	if err := l.radio.Begin(); err != nil {
		l.connected = false
		logging.Warning("Radio init failed: %v", err)
		return err
	}
	l.begun = true
	l.connected = true
	return nil
}

func (l *PacketizedRadioLink) fail() {
	l.mutex.Lock()
	defer l.mutex.Unlock()
	l.connected = false
	if l.begun {
		l.radio.End()
		l.begun = false
	}
}

func (l *PacketizedRadioLink) setConnected() {
	l.mutex.Lock()
	defer l.mutex.Unlock()
	l.connected = true
}

// RF95Radio drives an rf95modem (AT-command LoRa modem firmware over a
// serial device) as a packet radio. The modem delivers one LoRa packet per
// Read and sends one per Write, which is exactly the PacketRadio contract.
type RF95Radio struct {
	device string
	modem  *rf95.Modem
}

// NewRF95Radio creates a driver for the modem at the given serial device.
func NewRF95Radio(device string) *RF95Radio {
	return &RF95Radio{device: device}
}

// Begin opens the modem.
func (r *RF95Radio) Begin() error {
	modem, err := rf95.OpenModem(r.device)
	if err != nil {
		return err
	}
	r.modem = modem
	if mtu, err := modem.Mtu(); err == nil {
		logging.Info("rf95modem on %s ready, MTU %d", r.device, mtu)
	}
	return nil
}

// Transmit sends one packet.
func (r *RF95Radio) Transmit(payload []byte) error {
	_, err := r.modem.Write(payload)
	return err
}

// Receive blocks until the modem delivers one packet.
func (r *RF95Radio) Receive(buf []byte) (int, error) {
	return r.modem.Read(buf)
}

// End closes the modem.
func (r *RF95Radio) End() {
	if r.modem != nil {
		if err := r.modem.Close(); err != nil {
			logging.Debug("Error closing rf95modem: %v", err)
		}
		r.modem = nil
	}
}
