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
	"crypto/tls"
	"encoding/json"
	"fmt"
	"time"

	"github.com/ExploratoryEngineering/logging"
	"github.com/ExploratoryEngineering/pubsub"
	mqtt "github.com/eclipse/paho.mqtt.golang"
)

// MQTTPublisher forwards telemetry from the event router to an MQTT broker.
// Broker trouble never touches the relay itself: messages that can't be
// delivered are dropped and the publisher reconnects on the next one.
type MQTTPublisher struct {
	config    *Configuration
	router    *pubsub.EventRouter
	client    mqtt.Client
	terminate chan bool
}

// NewMQTTPublisher creates a publisher for the broker in the configuration.
func NewMQTTPublisher(config *Configuration, router *pubsub.EventRouter) *MQTTPublisher {
	return &MQTTPublisher{
		config:    config,
		router:    router,
		terminate: make(chan bool),
	}
}

// Start connects to the broker and launches the forwarding loop.
func (m *MQTTPublisher) Start() error {
	opts := mqtt.NewClientOptions()
	proto := "tcp"
	if m.config.MQTTTLS {
		proto = "ssl"
	}
	opts.AddBroker(fmt.Sprintf("%s://%s:%d", proto, m.config.MQTTEndpoint, m.config.MQTTPort))
	opts.SetClientID(m.config.MQTTClientID)
	opts.SetKeepAlive(2 * time.Second)
	opts.SetPingTimeout(1 * time.Second)
	opts.SetWriteTimeout(1 * time.Second)
	// Auto reconnect blocks publishes until a connection is available;
	// telemetry ages fast so drop and retry on the next message instead.
	opts.SetAutoReconnect(false)
	opts.SetCleanSession(true)
	if m.config.MQTTUsername != "" {
		opts.SetUsername(m.config.MQTTUsername)
	}
	if m.config.MQTTPassword != "" {
		opts.SetPassword(m.config.MQTTPassword)
	}
	if m.config.MQTTTLS {
		opts.SetTLSConfig(&tls.Config{})
	}
	m.client = mqtt.NewClient(opts)

	if token := m.client.Connect(); token.Wait() && token.Error() != nil {
		// The loop retries on each message; an unreachable broker at boot
		// isn't fatal.
		logging.Warning("Unable to connect to MQTT broker %s:%d: %v",
			m.config.MQTTEndpoint, m.config.MQTTPort, token.Error())
	}

	go m.forwardLoop()
	return nil
}

// Stop terminates the forwarding loop and disconnects.
func (m *MQTTPublisher) Stop() {
	close(m.terminate)
}

func (m *MQTTPublisher) forwardLoop() {
	events := m.router.Subscribe(TelemetryRoute)
	defer m.router.Unsubscribe(events)
	for {
		select {
		case <-m.terminate:
			if m.client != nil {
				m.client.Disconnect(250)
			}
			return
		case event := <-events:
			msg, ok := event.(TelemetryMessage)
			if !ok {
				logging.Warning("Didn't receive a TelemetryMessage type on channel but got %T. Silently dropping it.", event)
				continue
			}
			m.send(msg)
		}
	}
}

func (m *MQTTPublisher) send(msg TelemetryMessage) {
	if !m.client.IsConnected() {
		if token := m.client.Connect(); token.Wait() && token.Error() != nil {
			logging.Info("MQTT broker still unreachable: %v", token.Error())
			return
		}
	}
	bytes, err := json.Marshal(msg)
	if err != nil {
		logging.Warning("Unable to marshal %T into JSON: %v. Silently dropping it.", msg, err)
		return
	}
	token := m.client.Publish(m.config.MQTTTopic, 1, false, bytes)
	token.Wait()
	if err := token.Error(); err != nil {
		logging.Info("Unable to send message to MQTT server %s:%d: %v",
			m.config.MQTTEndpoint, m.config.MQTTPort, err)
	}
}
