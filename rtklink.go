package main

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
	"errors"

	"github.com/ExploratoryEngineering/logging"
	"github.com/ExploratoryEngineering/pubsub"
	"github.com/Primary-Survey/rtklink/corrections"
	"github.com/Primary-Survey/rtklink/link"
	"github.com/Primary-Survey/rtklink/monitoring"
	"github.com/Primary-Survey/rtklink/server"
)

// Server is the main relay process. It wires the correction source or sink,
// the radio link and the telemetry outputs for one station, base or rover.
type Server struct {
	config      *server.Configuration
	health      *link.Health
	router      pubsub.EventRouter
	transport   link.Transport
	source      corrections.Source
	sink        *corrections.SerialSink
	transmitter *link.Transmitter
	receiver    *link.Receiver
	reporter    *server.Reporter
	mqtt        *server.MQTTPublisher
	status      *server.StatusServer
	monitoring  *monitoring.Endpoint
}

func (c *Server) setupLogging() {
	logging.SetLogLevel(c.config.LogLevel)

	if c.config.Syslog {
		logging.EnableSyslog()
		logging.Debug("Using syslog for logs, log level is %d", c.config.LogLevel)
	} else {
		logging.EnableStderr(c.config.PlainLog)
		logging.Debug("Using stderr for logs, log level is %d", c.config.LogLevel)
	}
}

func (c *Server) checkConfig() error {
	if err := c.config.Validate(); err != nil {
		logging.Error("Invalid configuration: %v Exiting", err)
		return errors.New("invalid configuration")
	}
	return nil
}

// NewServer creates a new relay server with the given configuration. The
// configuration is checked before the server is created, logging is
// initialized.
func NewServer(config *server.Configuration) (*Server, error) {
	c := &Server{config: config}
	c.setupLogging()

	if err := c.checkConfig(); err != nil {
		return nil, err
	}
	logging.Info("This is the rtklink correction relay (%s mode)", config.Mode)

	c.health = link.NewHealth()
	c.router = pubsub.NewEventRouter(5)

	switch config.LinkTransport {
	case server.TransportSerial:
		c.transport = link.NewTransparentSerialLink(link.SerialConfig{
			Port: config.LinkPort,
			Baud: config.LinkBaud,
		})
	case server.TransportRF95:
		c.transport = link.NewPacketizedRadioLink(link.NewRF95Radio(config.LinkPort))
	}

	correctionsConnected := func() bool { return false }

	if config.Mode == server.ModeBase {
		if config.SimulateCorrections {
			c.source = corrections.NewSimulatedSource(corrections.SimulatedSourceConfig{})
		} else {
			c.source = corrections.NewSerialSource(corrections.SerialSourceConfig{
				Port: config.GNSSPort,
				Baud: config.GNSSBaud,
			})
		}
		correctionsConnected = c.source.Connected
		c.transmitter = link.NewTransmitter(link.TransmitterConfig{
			StationID:         config.StationID,
			NetworkID:         config.NetworkID,
			Packetized:        config.Packetized(),
			MaxPayloadBytes:   config.MaxPayloadBytes,
			HeartbeatInterval: config.HeartbeatInterval,
			HeartbeatEnabled:  config.HeartbeatEnabled,
		}, c.transport, c.source, c.health)
	} else {
		var sink corrections.Sink = corrections.DiscardSink
		if config.GNSSPort != "" {
			c.sink = corrections.NewSerialSink(corrections.SerialSinkConfig{
				Port: config.GNSSPort,
				Baud: config.GNSSBaud,
			})
			sink = c.sink
			correctionsConnected = c.sink.Connected
		} else {
			logging.Warning("No GNSS port configured. Received corrections will be discarded")
		}
		c.receiver = link.NewReceiver(link.ReceiverConfig{
			NetworkID:      config.NetworkID,
			Packetized:     config.Packetized(),
			ReadChunkBytes: config.ReceiveChunkBytes,
		}, c.transport, sink, c.health)
	}

	c.reporter = server.NewReporter(config.StationID, config.Mode,
		config.TelemetryInterval, config.CorrectionTimeout,
		c.health, correctionsConnected, &c.router)

	if config.MQTTEnabled {
		c.mqtt = server.NewMQTTPublisher(config, &c.router)
	}
	if config.StatusEnabled {
		c.status = server.NewStatusServer(config, c.reporter, &c.router)
	}
	if config.DebugPort > 0 {
		c.monitoring = monitoring.NewEndpoint(config.OnlyLoopback, config.DebugPort, config.ProfilingEndpoint)
	}
	return c, nil
}

// Start launches the relay.
func (c *Server) Start() error {
	if err := c.transport.Start(); err != nil {
		return err
	}
	if c.source != nil {
		if err := c.source.Start(); err != nil {
			return err
		}
	}
	if c.transmitter != nil {
		if err := c.transmitter.Start(); err != nil {
			return err
		}
	}
	if c.receiver != nil {
		if err := c.receiver.Start(); err != nil {
			return err
		}
	}
	if err := c.reporter.Start(); err != nil {
		return err
	}
	if c.mqtt != nil {
		if err := c.mqtt.Start(); err != nil {
			return err
		}
	}
	if c.status != nil {
		if err := c.status.Start(); err != nil {
			return err
		}
	}
	if c.monitoring != nil {
		if err := c.monitoring.Start(); err != nil {
			return err
		}
	}
	return nil
}

// Shutdown stops the relay. The transmit and receive loops stop first so
// nothing touches the transport while it closes.
func (c *Server) Shutdown() {
	if c.transmitter != nil {
		c.transmitter.Stop()
	}
	if c.receiver != nil {
		c.receiver.Stop()
	}
	if c.source != nil {
		c.source.Stop()
	}
	if c.sink != nil {
		c.sink.Close()
	}
	c.reporter.Stop()
	if c.mqtt != nil {
		c.mqtt.Stop()
	}
	if c.status != nil {
		if err := c.status.Shutdown(); err != nil {
			logging.Warning("Unable to shut down status server: %v", err)
		}
	}
	if c.monitoring != nil {
		if err := c.monitoring.Shutdown(); err != nil {
			logging.Warning("Unable to shut down monitoring endpoint: %v", err)
		}
	}
	c.transport.Stop()
}
