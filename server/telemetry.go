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
	"sync"
	"time"

	"github.com/ExploratoryEngineering/logging"
	"github.com/ExploratoryEngineering/pubsub"
	"github.com/Primary-Survey/rtklink/link"
	"github.com/Primary-Survey/rtklink/monitoring"
)

// TelemetryType identifies the telemetry message schema. Consumers should
// check it before decoding the rest.
const TelemetryType = "relay.telemetry.v1"

// TelemetryRoute is the event router key telemetry is published on.
const TelemetryRoute = "telemetry"

// TelemetryMessage is the periodic status report published on the event
// router and from there to MQTT and the websocket.
type TelemetryMessage struct {
	Type                 string `json:"type"`
	Device               string `json:"device"`
	Mode                 string `json:"mode"`
	Timestamp            string `json:"timestamp"`
	LinkConnected        bool   `json:"linkConnected"`
	LinkActive           bool   `json:"linkActive"`
	BytesTransferred     int64  `json:"bytesTransferred"`
	LastActivity         string `json:"lastActivity,omitempty"`
	Heartbeats           int64  `json:"heartbeats"`
	LastHeartbeat        string `json:"lastHeartbeat,omitempty"`
	LastHeartbeatFrom    string `json:"lastHeartbeatFrom,omitempty"`
	LastHeartbeatSeq     int    `json:"lastHeartbeatSeq"`
	CorrectionsConnected bool   `json:"correctionsConnected"`
	LastError            string `json:"lastError,omitempty"`
}

// Reporter samples the link health on a fixed cadence and publishes the
// snapshot as telemetry. The corrections callback reports the local GNSS
// side: the source on a base station, the sink's health is not observable
// so rovers report the link state there.
type Reporter struct {
	device      string
	mode        string
	interval    time.Duration
	timeout     time.Duration
	health      *link.Health
	corrections func() bool
	router      *pubsub.EventRouter
	terminate   chan bool
	mutex       sync.Mutex
	latest      TelemetryMessage
}

// NewReporter creates a telemetry reporter.
func NewReporter(device, mode string, interval, timeout time.Duration, health *link.Health, corrections func() bool, router *pubsub.EventRouter) *Reporter {
	if interval <= 0 {
		interval = DefaultTelemetryInterval
	}
	if corrections == nil {
		corrections = func() bool { return false }
	}
	return &Reporter{
		device:      device,
		mode:        mode,
		interval:    interval,
		timeout:     timeout,
		health:      health,
		corrections: corrections,
		router:      router,
		terminate:   make(chan bool),
	}
}

// Start launches the reporting loop.
func (r *Reporter) Start() error {
	logging.Info("Telemetry reporter for %s publishing every %v", r.device, r.interval)
	go r.reportLoop()
	return nil
}

// Stop terminates the reporting loop.
func (r *Reporter) Stop() {
	close(r.terminate)
}

// Latest returns the most recently published message.
func (r *Reporter) Latest() TelemetryMessage {
	r.mutex.Lock()
	defer r.mutex.Unlock()
	return r.latest
}

func (r *Reporter) reportLoop() {
	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()
	for {
		select {
		case <-r.terminate:
			return
		case <-ticker.C:
			r.publish(time.Now())
		}
	}
}

func (r *Reporter) publish(now time.Time) {
	msg := r.build(now)
	r.mutex.Lock()
	r.latest = msg
	r.mutex.Unlock()
	r.router.Publish(TelemetryRoute, msg)
	monitoring.TelemetrySent.Increment()
}

func (r *Reporter) build(now time.Time) TelemetryMessage {
	s := r.health.Snapshot()
	return TelemetryMessage{
		Type:                 TelemetryType,
		Device:               r.device,
		Mode:                 r.mode,
		Timestamp:            utcString(now),
		LinkConnected:        s.Connected,
		LinkActive:           r.health.IsRecentlyActive(r.timeout, now),
		BytesTransferred:     s.BytesTransferred,
		LastActivity:         utcString(s.LastActivity),
		Heartbeats:           s.Heartbeats,
		LastHeartbeat:        utcString(s.LastHeartbeat),
		LastHeartbeatFrom:    s.LastHeartbeatFrom,
		LastHeartbeatSeq:     s.LastHeartbeatSeq,
		CorrectionsConnected: r.corrections(),
		LastError:            s.LastError,
	}
}

// utcString renders a timestamp for telemetry. Zero times render empty so
// the JSON field is omitted rather than showing year one.
func utcString(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Truncate(time.Second).Format(time.RFC3339)
}
