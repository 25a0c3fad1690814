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
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/ExploratoryEngineering/logging"
	"github.com/ExploratoryEngineering/pubsub"
	"golang.org/x/net/websocket"
)

// wsKeepAliveInterval is how long the live socket stays quiet before a
// keepalive message goes out.
const wsKeepAliveInterval = 30 * time.Second

// StatusServer exposes the relay status over HTTP: the latest telemetry as
// JSON on /status and a live stream over websocket on /live.
type StatusServer struct {
	config   *Configuration
	reporter *Reporter
	router   *pubsub.EventRouter
	srv      *http.Server
}

// wsMessage is the envelope for the live websocket stream.
type wsMessage struct {
	Type    string            `json:"type"`
	Message string            `json:"message,omitempty"`
	Data    *TelemetryMessage `json:"data,omitempty"`
}

// NewStatusServer creates the status server.
func NewStatusServer(config *Configuration, reporter *Reporter, router *pubsub.EventRouter) *StatusServer {
	s := &StatusServer{config: config, reporter: reporter, router: router}

	host := ""
	if config.OnlyLoopback {
		host = "localhost"
	}
	mux := http.NewServeMux()
	mux.HandleFunc("/status", s.statusHandler)
	mux.Handle("/live", websocket.Handler(s.liveHandler))
	s.srv = &http.Server{
		Addr:    fmt.Sprintf("%s:%d", host, config.StatusPort),
		Handler: mux,
	}
	return s
}

// Start launches the server.
func (s *StatusServer) Start() error {
	logging.Info("Status server on port %d", s.config.StatusPort)
	go func() {
		if err := s.srv.ListenAndServe(); err != http.ErrServerClosed {
			logging.Error("Unable to listen and serve status: %v", err)
		}
	}()
	return nil
}

// Shutdown stops the server. There is a 2 second timeout.
func (s *StatusServer) Shutdown() error {
	ctx, cancelFunc := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancelFunc()
	return s.srv.Shutdown(ctx)
}

func (s *StatusServer) statusHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	latest := s.reporter.Latest()
	if err := json.NewEncoder(w).Encode(latest); err != nil {
		logging.Warning("Unable to marshal status: %v", err)
	}
}

// Handler for websocket with live telemetry stream
func (s *StatusServer) liveHandler(ws *websocket.Conn) {
	defer ws.Close()

	events := s.router.Subscribe(TelemetryRoute)
	defer s.router.Unsubscribe(events)

	for {
		var out wsMessage
		select {
		case event := <-events:
			msg, ok := event.(TelemetryMessage)
			if !ok {
				continue
			}
			out = wsMessage{Type: "telemetry", Data: &msg}
		case <-time.After(wsKeepAliveInterval):
			out = wsMessage{Type: "keepalive", Message: "still here"}
		}
		if err := json.NewEncoder(ws).Encode(out); err != nil {
			logging.Debug("Live status client gone: %v", err)
			return
		}
	}
}
