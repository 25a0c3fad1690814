package server

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
	"time"

	"github.com/ExploratoryEngineering/logging"
	"github.com/spf13/viper"
)

// Process modes. A base station reads corrections from a GNSS receiver and
// transmits; a rover receives and forwards corrections to its receiver.
const (
	ModeBase  = "base"
	ModeRover = "rover"
)

// Link transport selection.
const (
	TransportSerial = "serial" // transparent serial radio (E22 and friends)
	TransportRF95   = "rf95"   // rf95modem AT-command packet radio
)

// Configuration holds the configuration for the relay process.
type Configuration struct {
	Mode      string // base or rover
	StationID string
	NetworkID int

	LinkTransport string // serial or rf95
	LinkPort      string // radio serial device, empty for auto-detection
	LinkBaud      int

	MaxPayloadBytes   int
	ReceiveChunkBytes int
	HeartbeatInterval time.Duration
	HeartbeatEnabled  bool
	CorrectionTimeout time.Duration

	GNSSPort            string // GNSS receiver device, empty for auto-detection
	GNSSBaud            int
	SimulateCorrections bool // synthetic corrections instead of a receiver

	TelemetryInterval time.Duration

	MQTTEnabled  bool
	MQTTEndpoint string
	MQTTPort     int
	MQTTTLS      bool
	MQTTUsername string
	MQTTPassword string
	MQTTClientID string
	MQTTTopic    string

	StatusEnabled     bool
	StatusPort        int
	DebugPort         int
	OnlyLoopback      bool // bind status/debug to loopback only
	ProfilingEndpoint bool // Turn on profiling endpoint - for testing

	LogLevel uint
	PlainLog bool // Fancy stderr logs with emojis and colors
	Syslog   bool
}

// This is the default configuration
const (
	DefaultMode              = ModeRover
	DefaultStationID         = "BASE"
	DefaultNetworkID         = 18
	DefaultLinkTransport     = TransportSerial
	DefaultLinkBaud          = 57600
	DefaultMaxPayload        = 200
	DefaultReceiveChunk      = 512
	DefaultHeartbeatInterval = 5 * time.Second
	DefaultCorrectionTimeout = 10 * time.Second
	DefaultGNSSBaud          = 115200
	DefaultTelemetryInterval = 5 * time.Second
	DefaultMQTTPort          = 1883
	DefaultMQTTTopic         = "rtklink"
	DefaultStatusPort        = 8080
	DefaultDebugPort         = 8081
	DefaultLogLevel          = 0
)

// NewDefaultConfig returns the default configuration: a rover with
// heartbeats, telemetry and the status server enabled and no MQTT.
func NewDefaultConfig() *Configuration {
	return &Configuration{
		Mode:              DefaultMode,
		StationID:         DefaultStationID,
		NetworkID:         DefaultNetworkID,
		LinkTransport:     DefaultLinkTransport,
		LinkBaud:          DefaultLinkBaud,
		MaxPayloadBytes:   DefaultMaxPayload,
		ReceiveChunkBytes: DefaultReceiveChunk,
		HeartbeatInterval: DefaultHeartbeatInterval,
		HeartbeatEnabled:  true,
		CorrectionTimeout: DefaultCorrectionTimeout,
		GNSSBaud:          DefaultGNSSBaud,
		TelemetryInterval: DefaultTelemetryInterval,
		MQTTPort:          DefaultMQTTPort,
		MQTTClientID:      "rtklink",
		MQTTTopic:         DefaultMQTTTopic,
		StatusEnabled:     true,
		StatusPort:        DefaultStatusPort,
		DebugPort:         DefaultDebugPort,
		LogLevel:          DefaultLogLevel,
	}
}

// Packetized reports whether the selected link transport is packet oriented.
// The transparent serial transport carries a byte stream; everything else
// moves whole packets.
func (cfg *Configuration) Packetized() bool {
	return cfg.LinkTransport != TransportSerial
}

// Validate checks the configuration for inconsistencies and errors. This
// function logs the warnings using the logger package as well.
func (cfg *Configuration) Validate() error {
	if cfg.Mode != ModeBase && cfg.Mode != ModeRover {
		return fmt.Errorf("unknown mode %q (use %s or %s)", cfg.Mode, ModeBase, ModeRover)
	}
	if cfg.LinkTransport != TransportSerial && cfg.LinkTransport != TransportRF95 {
		return fmt.Errorf("unknown link transport %q (use %s or %s)", cfg.LinkTransport, TransportSerial, TransportRF95)
	}
	if cfg.NetworkID < 0 || cfg.NetworkID > 255 {
		return fmt.Errorf("network ID %d out of range 0-255", cfg.NetworkID)
	}
	if cfg.MaxPayloadBytes < 16 {
		return fmt.Errorf("max payload of %d bytes is below the 16 byte minimum", cfg.MaxPayloadBytes)
	}
	if cfg.MQTTEnabled && cfg.MQTTEndpoint == "" {
		return fmt.Errorf("MQTT is enabled but no endpoint is set")
	}
	if cfg.Mode == ModeBase && cfg.SimulateCorrections {
		logging.Warning("Transmitting SIMULATED corrections. Rovers will not get a fix from this")
	}
	if cfg.StationID == DefaultStationID {
		logging.Warning("Using the default station ID (%s). Set a unique one when running several base stations", cfg.StationID)
	}
	return nil
}

// LoadFile merges a YAML configuration file into the configuration. Values
// in the file override the defaults; command line flags parsed afterwards
// override the file.
func (cfg *Configuration) LoadFile(filename string) error {
	v := viper.New()
	v.SetConfigFile(filename)
	v.SetEnvPrefix("rtklink")
	v.AutomaticEnv()

	v.SetDefault("mode", cfg.Mode)
	v.SetDefault("station.id", cfg.StationID)
	v.SetDefault("link.network", cfg.NetworkID)
	v.SetDefault("link.transport", cfg.LinkTransport)
	v.SetDefault("link.port", cfg.LinkPort)
	v.SetDefault("link.baud", cfg.LinkBaud)
	v.SetDefault("link.maxpayload", cfg.MaxPayloadBytes)
	v.SetDefault("link.readchunk", cfg.ReceiveChunkBytes)
	v.SetDefault("link.heartbeat.interval", cfg.HeartbeatInterval)
	v.SetDefault("link.heartbeat.enabled", cfg.HeartbeatEnabled)
	v.SetDefault("link.timeout", cfg.CorrectionTimeout)
	v.SetDefault("gnss.port", cfg.GNSSPort)
	v.SetDefault("gnss.baud", cfg.GNSSBaud)
	v.SetDefault("gnss.simulate", cfg.SimulateCorrections)
	v.SetDefault("telemetry.interval", cfg.TelemetryInterval)
	v.SetDefault("mqtt.enabled", cfg.MQTTEnabled)
	v.SetDefault("mqtt.endpoint", cfg.MQTTEndpoint)
	v.SetDefault("mqtt.port", cfg.MQTTPort)
	v.SetDefault("mqtt.tls", cfg.MQTTTLS)
	v.SetDefault("mqtt.username", cfg.MQTTUsername)
	v.SetDefault("mqtt.password", cfg.MQTTPassword)
	v.SetDefault("mqtt.clientid", cfg.MQTTClientID)
	v.SetDefault("mqtt.topic", cfg.MQTTTopic)
	v.SetDefault("status.enabled", cfg.StatusEnabled)
	v.SetDefault("status.port", cfg.StatusPort)
	v.SetDefault("debug.port", cfg.DebugPort)

	if err := v.ReadInConfig(); err != nil {
		return err
	}

	cfg.Mode = v.GetString("mode")
	cfg.StationID = v.GetString("station.id")
	cfg.NetworkID = v.GetInt("link.network")
	cfg.LinkTransport = v.GetString("link.transport")
	cfg.LinkPort = v.GetString("link.port")
	cfg.LinkBaud = v.GetInt("link.baud")
	cfg.MaxPayloadBytes = v.GetInt("link.maxpayload")
	cfg.ReceiveChunkBytes = v.GetInt("link.readchunk")
	cfg.HeartbeatInterval = v.GetDuration("link.heartbeat.interval")
	cfg.HeartbeatEnabled = v.GetBool("link.heartbeat.enabled")
	cfg.CorrectionTimeout = v.GetDuration("link.timeout")
	cfg.GNSSPort = v.GetString("gnss.port")
	cfg.GNSSBaud = v.GetInt("gnss.baud")
	cfg.SimulateCorrections = v.GetBool("gnss.simulate")
	cfg.TelemetryInterval = v.GetDuration("telemetry.interval")
	cfg.MQTTEnabled = v.GetBool("mqtt.enabled")
	cfg.MQTTEndpoint = v.GetString("mqtt.endpoint")
	cfg.MQTTPort = v.GetInt("mqtt.port")
	cfg.MQTTTLS = v.GetBool("mqtt.tls")
	cfg.MQTTUsername = v.GetString("mqtt.username")
	cfg.MQTTPassword = v.GetString("mqtt.password")
	cfg.MQTTClientID = v.GetString("mqtt.clientid")
	cfg.MQTTTopic = v.GetString("mqtt.topic")
	cfg.StatusEnabled = v.GetBool("status.enabled")
	cfg.StatusPort = v.GetInt("status.port")
	cfg.DebugPort = v.GetInt("debug.port")

	logging.Info("Loaded configuration from %s", filename)
	return nil
}
