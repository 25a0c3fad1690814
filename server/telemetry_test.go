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
	"testing"
	"time"

	"github.com/ExploratoryEngineering/pubsub"
	"github.com/Primary-Survey/rtklink/link"
)

func TestTelemetryMessage(t *testing.T) {
	health := link.NewHealth()
	health.RecordData(1024)
	health.RecordHeartbeat("BASE-01", 3)

	router := pubsub.NewEventRouter(5)
	reporter := NewReporter("rover-7", ModeRover, time.Second, 10*time.Second,
		health, func() bool { return true }, &router)

	ch := router.Subscribe(TelemetryRoute)
	defer router.Unsubscribe(ch)

	now := time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)
	reporter.publish(now)

	raw := <-ch
	msg, ok := raw.(TelemetryMessage)
	if !ok {
		t.Fatalf("Expected TelemetryMessage on the router, got %T", raw)
	}
	if msg.Type != TelemetryType {
		t.Fatalf("Wrong type marker: %s", msg.Type)
	}
	if msg.Device != "rover-7" || msg.Mode != ModeRover {
		t.Fatalf("Identity wrong: %s/%s", msg.Device, msg.Mode)
	}
	if !msg.LinkConnected || msg.BytesTransferred != 1024 {
		t.Fatalf("Link state wrong: %+v", msg)
	}
	if msg.Heartbeats != 1 || msg.LastHeartbeatFrom != "BASE-01" || msg.LastHeartbeatSeq != 3 {
		t.Fatalf("Heartbeat state wrong: %+v", msg)
	}
	if !msg.CorrectionsConnected {
		t.Fatal("Corrections callback ignored")
	}
	if msg.Timestamp != "2024-01-01T12:00:00Z" {
		t.Fatalf("Timestamp not RFC3339 UTC: %s", msg.Timestamp)
	}

	if got := reporter.Latest(); got != msg {
		t.Fatalf("Latest() differs from published message: %+v", got)
	}
}

func TestTelemetryLivenessTimeout(t *testing.T) {
	health := link.NewHealth()
	router := pubsub.NewEventRouter(5)
	reporter := NewReporter("rover-7", ModeRover, time.Second, 10*time.Second,
		health, nil, &router)

	now := time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)
	msg := reporter.build(now)
	if msg.LinkActive {
		t.Fatal("No traffic means not active")
	}
	if msg.LastActivity != "" || msg.LastHeartbeat != "" {
		t.Fatal("Zero timestamps should render empty")
	}

	health.RecordData(1)
	msg = reporter.build(time.Now())
	if !msg.LinkActive {
		t.Fatal("Fresh traffic means active")
	}
}
