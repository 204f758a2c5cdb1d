// Package monitoring exposes a running device and its submitters through an
// HTTP API.
package monitoring

import (
	"net"
	"net/http"
	"slices"
	"strconv"
	"sync"
	"time"

	// Registers the /debug/pprof handlers on http.DefaultServeMux.
	_ "net/http/pprof"

	"github.com/gorilla/mux"
	log "github.com/sirupsen/logrus"

	"github.com/sarchlab/copyengine/sim"
)

// A Buffer is a bounded queue whose level is worth watching, such as the
// scrub ring.
type Buffer interface {
	Name() string
	Size() int
	Capacity() int
}

// A Submitter issues work and reports how far it has completed.
type Submitter interface {
	Name() string
	LastSubmitted() uint64
	UpdateProgress() (uint64, error)
	Paused() bool
}

// Monitor serves the state of the registered device parts over HTTP.
type Monitor struct {
	lock       sync.Mutex
	engine     sim.Engine
	components []sim.Component
	buffers    []Buffer
	submitters []Submitter
	portNumber int

	progressBarsLock sync.Mutex
	progressBars     []*ProgressBar
}

// NewMonitor creates a Monitor that listens on a random port.
func NewMonitor() *Monitor {
	return &Monitor{}
}

// WithPortNumber picks the port of the server. Ports below 1000 are not
// used; 0 or less means a random port.
func (m *Monitor) WithPortNumber(portNumber int) *Monitor {
	if portNumber > 0 && portNumber < 1000 {
		log.WithField("port", portNumber).
			Warn("monitor port is reserved, using a random port")
		portNumber = 0
	}

	m.portNumber = max(portNumber, 0)

	return m
}

// RegisterEngine registers the engine that drives the device.
func (m *Monitor) RegisterEngine(e sim.Engine) {
	m.lock.Lock()
	m.engine = e
	m.lock.Unlock()
}

// RegisterComponent makes a component visible through the API.
func (m *Monitor) RegisterComponent(c sim.Component) {
	m.lock.Lock()
	m.components = append(m.components, c)
	m.lock.Unlock()
}

// RegisterBuffer registers a buffer whose level is reported.
func (m *Monitor) RegisterBuffer(b Buffer) {
	m.lock.Lock()
	m.buffers = append(m.buffers, b)
	m.lock.Unlock()
}

// RegisterSubmitter registers a submitter whose progress is reported.
func (m *Monitor) RegisterSubmitter(s Submitter) {
	m.lock.Lock()
	m.submitters = append(m.submitters, s)
	m.lock.Unlock()
}

// CreateProgressBar creates a bar that is listed until it is completed.
func (m *Monitor) CreateProgressBar(name string, total uint64) *ProgressBar {
	bar := &ProgressBar{
		ID:        sim.GetIDGenerator().Generate(),
		Name:      name,
		StartTime: time.Now(),
		Total:     total,
	}

	m.progressBarsLock.Lock()
	m.progressBars = append(m.progressBars, bar)
	m.progressBarsLock.Unlock()

	return bar
}

// CompleteProgressBar stops listing a bar.
func (m *Monitor) CompleteProgressBar(pb *ProgressBar) {
	m.progressBarsLock.Lock()
	defer m.progressBarsLock.Unlock()

	m.progressBars = slices.DeleteFunc(m.progressBars, func(b *ProgressBar) bool {
		return b == pb
	})
}

// Router returns the handler of the monitoring API.
func (m *Monitor) Router() http.Handler {
	r := mux.NewRouter()

	api := r.PathPrefix("/api").Subrouter()
	api.HandleFunc("/now", m.now)
	api.HandleFunc("/tick/{name}", m.tick)
	api.HandleFunc("/list_components", m.listComponents)
	api.HandleFunc("/components", m.listComponents)
	api.HandleFunc("/component/{name}", m.componentDetails)
	api.HandleFunc("/field/{json}", m.fieldValue)
	api.HandleFunc("/hangdetector/buffers", m.bufferLevels)
	api.HandleFunc("/submitters", m.listSubmitters)
	api.HandleFunc("/progress", m.listProgressBars)
	api.HandleFunc("/resource", m.resources)
	api.HandleFunc("/profile", m.cpuProfile)

	r.PathPrefix("/debug/pprof/").Handler(http.DefaultServeMux)

	return r
}

// StartServer serves the API in the background and returns the port.
func (m *Monitor) StartServer() int {
	listener, err := net.Listen("tcp", ":"+strconv.Itoa(m.portNumber))
	if err != nil {
		log.WithError(err).Panic("cannot start the monitoring server")
	}

	port := listener.Addr().(*net.TCPAddr).Port
	log.Infof("monitoring with http://localhost:%d", port)

	go func() {
		if err := http.Serve(listener, m.Router()); err != nil {
			log.WithError(err).Error("monitoring server stopped")
		}
	}()

	return port
}
