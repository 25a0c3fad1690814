package monitoring

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
	"errors"
	"expvar"
	"fmt"
	"net/http"
	"net/http/pprof"
	"time"

	"github.com/ExploratoryEngineering/logging"
)

// This is the default endpoint for the expvar package. The location isn't
// ideal (/varz) but this is the default for Go so it makes sense to use it
// as is.
const defaultEndpoint = "/debug/vars"

// Endpoint serves the process counters (and optionally pprof) over HTTP for
// local diagnostics.
type Endpoint struct {
	srv  *http.Server
	port int
	mux  *http.ServeMux
}

// NewEndpoint returns a new Endpoint instance.
func NewEndpoint(loopbackOnly bool, port int, profiling bool) *Endpoint {
	ret := &Endpoint{port: port}

	host := ""
	if loopbackOnly {
		host = "localhost"
	}
	ret.mux = http.NewServeMux()
	ret.mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("This is the monitoring endpoint"))
	})
	ret.mux.Handle(defaultEndpoint, expvar.Handler())
	if profiling {
		ret.mux.HandleFunc("/debug/pprof/", pprof.Index)
		ret.mux.HandleFunc("/debug/pprof/cmdline", pprof.Cmdline)
		ret.mux.HandleFunc("/debug/pprof/profile", pprof.Profile)
		ret.mux.HandleFunc("/debug/pprof/symbol", pprof.Symbol)
	}
	ret.srv = &http.Server{
		Addr:    fmt.Sprintf("%s:%d", host, port),
		Handler: ret,
	}
	return ret
}

// Start launches the server.
func (m *Endpoint) Start() error {
	if m.srv == nil {
		return errors.New("no valid server")
	}
	logging.Info("Monitoring endpoint on port %d", m.port)
	go func() {
		if err := m.srv.ListenAndServe(); err != http.ErrServerClosed {
			logging.Error("Unable to listen and serve: %v", err)
		}
	}()
	return nil
}

func (m *Endpoint) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	m.mux.ServeHTTP(w, r)
}

// Shutdown stops the server. There is a 2 second timeout.
func (m *Endpoint) Shutdown() error {
	if m.srv == nil {
		return errors.New("server not launched yet")
	}
	ctx, cancelFunc := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancelFunc()
	return m.srv.Shutdown(ctx)
}
