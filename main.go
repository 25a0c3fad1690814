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
	"flag"
	"os"
	"os/signal"

	"github.com/ExploratoryEngineering/logging"
	"github.com/Primary-Survey/rtklink/server"
)

var config = server.NewDefaultConfig()
var configFile = ""

func init() {
	flag.StringVar(&configFile, "config", "", "YAML configuration file (flags override it)")
	flag.StringVar(&config.Mode, "mode", server.DefaultMode, "Process mode (base or rover)")
	flag.StringVar(&config.StationID, "station", server.DefaultStationID, "Station ID sent in heartbeats")
	flag.IntVar(&config.NetworkID, "network", server.DefaultNetworkID, "Network ID (0-255) shared by base and rovers")
	flag.StringVar(&config.LinkTransport, "link-transport", server.DefaultLinkTransport, "Radio link transport (serial or rf95)")
	flag.StringVar(&config.LinkPort, "link-port", "", "Radio serial device (auto-detected when empty)")
	flag.IntVar(&config.LinkBaud, "link-baud", server.DefaultLinkBaud, "Radio serial baud rate")
	flag.IntVar(&config.MaxPayloadBytes, "max-payload", server.DefaultMaxPayload, "Max payload bytes per packet (packetized transports)")
	flag.IntVar(&config.ReceiveChunkBytes, "read-chunk", server.DefaultReceiveChunk, "Receive buffer size in bytes")
	flag.DurationVar(&config.HeartbeatInterval, "heartbeat-interval", server.DefaultHeartbeatInterval, "Heartbeat interval")
	flag.BoolVar(&config.HeartbeatEnabled, "heartbeat", true, "Send heartbeats (base mode)")
	flag.DurationVar(&config.CorrectionTimeout, "correction-timeout", server.DefaultCorrectionTimeout, "Link considered stale after this long without traffic")
	flag.StringVar(&config.GNSSPort, "gnss-port", "", "GNSS receiver serial device (auto-detected when empty)")
	flag.IntVar(&config.GNSSBaud, "gnss-baud", server.DefaultGNSSBaud, "GNSS receiver baud rate")
	flag.BoolVar(&config.SimulateCorrections, "simulate", false, "Transmit synthetic corrections (for testing)")
	flag.DurationVar(&config.TelemetryInterval, "telemetry-interval", server.DefaultTelemetryInterval, "Telemetry publish interval")
	flag.BoolVar(&config.MQTTEnabled, "mqtt", false, "Publish telemetry to MQTT")
	flag.StringVar(&config.MQTTEndpoint, "mqtt-endpoint", "", "MQTT broker host")
	flag.IntVar(&config.MQTTPort, "mqtt-port", server.DefaultMQTTPort, "MQTT broker port")
	flag.BoolVar(&config.MQTTTLS, "mqtt-tls", false, "Use TLS for the MQTT connection")
	flag.StringVar(&config.MQTTUsername, "mqtt-username", "", "MQTT username")
	flag.StringVar(&config.MQTTPassword, "mqtt-password", "", "MQTT password")
	flag.StringVar(&config.MQTTClientID, "mqtt-clientid", "rtklink", "MQTT client ID")
	flag.StringVar(&config.MQTTTopic, "mqtt-topic", server.DefaultMQTTTopic, "MQTT topic for telemetry")
	flag.BoolVar(&config.StatusEnabled, "status", true, "Enable the HTTP status server")
	flag.IntVar(&config.StatusPort, "status-port", server.DefaultStatusPort, "HTTP status server port")
	flag.IntVar(&config.DebugPort, "debug-port", server.DefaultDebugPort, "Debug/monitoring endpoint port")
	flag.BoolVar(&config.OnlyLoopback, "only-loopback", false, "Bind status and debug endpoints to loopback only")
	flag.BoolVar(&config.ProfilingEndpoint, "pprof", false, "Turn on profiling endpoint (in monitoring; /debug/pprof/profile)")
	flag.UintVar(&config.LogLevel, "loglevel", server.DefaultLogLevel, "Log level to use (0 = debug, 1 = info, 2 = warning, 3 = error)")
	flag.BoolVar(&config.PlainLog, "plainlog", false, "Use plain-text stderr logs")
	flag.BoolVar(&config.Syslog, "syslog", false, "Send logs to syslog")
}

func main() {
	// Two passes so the file loads between the defaults and the flags: the
	// first pass picks up -config, the second reapplies any explicit flags
	// on top of the file's values.
	flag.Parse()
	if configFile != "" {
		if err := config.LoadFile(configFile); err != nil {
			logging.Error("Unable to load configuration from %s: %v", configFile, err)
			os.Exit(1)
		}
		flag.Parse()
	}

	relay, err := NewServer(config)
	if err != nil {
		return
	}

	terminator := make(chan bool)

	if err := relay.Start(); err != nil {
		logging.Error("Relay did not start: %v", err)
		return
	}
	defer func() {
		logging.Info("Relay is shutting down...")
		relay.Shutdown()
		logging.Info("Relay has shut down")
	}()

	sigch := make(chan os.Signal, 2)
	signal.Notify(sigch, os.Interrupt, os.Kill)
	go func() {
		sig := <-sigch
		logging.Debug("Caught signal '%v'", sig)
		terminator <- true
	}()

	<-terminator
}
