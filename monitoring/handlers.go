package monitoring

import (
	"bytes"
	"cmp"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os"
	"runtime/pprof"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/google/pprof/profile"
	"github.com/gorilla/mux"
	"github.com/shirou/gopsutil/process"
	log "github.com/sirupsen/logrus"
	"github.com/syifan/goseth"

	"github.com/sarchlab/copyengine/sim"
)

func (m *Monitor) now(w http.ResponseWriter, _ *http.Request) {
	m.lock.Lock()
	engine := m.engine
	m.lock.Unlock()

	if engine == nil {
		http.Error(w, "no engine registered", http.StatusNotFound)
		return
	}

	writeJSON(w, map[string]sim.VTimeInSec{"now": engine.CurrentTime()})
}

func (m *Monitor) listComponents(w http.ResponseWriter, _ *http.Request) {
	m.lock.Lock()
	names := make([]string, 0, len(m.components))
	for _, c := range m.components {
		names = append(names, c.Name())
	}
	m.lock.Unlock()

	writeJSON(w, names)
}

func (m *Monitor) component(name string) (sim.Component, bool) {
	m.lock.Lock()
	defer m.lock.Unlock()

	i := slices.IndexFunc(m.components, func(c sim.Component) bool {
		return c.Name() == name
	})
	if i < 0 {
		return nil, false
	}

	return m.components[i], true
}

func (m *Monitor) tick(w http.ResponseWriter, r *http.Request) {
	c, ok := m.component(mux.Vars(r)["name"])
	if !ok {
		http.Error(w, "component not found", http.StatusNotFound)
		return
	}

	ticking, ok := c.(interface{ TickLater() })
	if !ok {
		http.Error(w, "component does not tick", http.StatusMethodNotAllowed)
		return
	}

	ticking.TickLater()
}

func (m *Monitor) componentDetails(w http.ResponseWriter, r *http.Request) {
	c, ok := m.component(mux.Vars(r)["name"])
	if !ok {
		http.Error(w, "component not found", http.StatusNotFound)
		return
	}

	serialize(w, c, nil)
}

type fieldReq struct {
	CompName  string `json:"comp_name,omitempty"`
	FieldName string `json:"field_name,omitempty"`
}

func (m *Monitor) fieldValue(w http.ResponseWriter, r *http.Request) {
	var req fieldReq
	if err := json.Unmarshal([]byte(mux.Vars(r)["json"]), &req); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	c, ok := m.component(req.CompName)
	if !ok {
		http.Error(w, "component not found", http.StatusNotFound)
		return
	}

	serialize(w, c, strings.Split(req.FieldName, "."))
}

// serialize writes one level of c, starting at the field path if given.
func serialize(w http.ResponseWriter, c sim.Component, path []string) {
	s := goseth.NewSerializer()
	s.SetRoot(c)
	s.SetMaxDepth(1)

	if path != nil {
		if err := s.SetEntryPoint(path); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
	}

	var buf bytes.Buffer
	if err := s.Serialize(&buf); err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	writeBody(w, buf.Bytes())
}

type bufferRsp struct {
	Buffer string `json:"buffer"`
	Level  int    `json:"level"`
	Cap    int    `json:"cap"`
}

type bufferQuery struct {
	byLevel bool
	limit   int
	offset  int
}

func parseBufferQuery(r *http.Request) (q bufferQuery, err error) {
	values := r.URL.Query()

	switch values.Get("sort") {
	case "", "percent":
	case "level":
		q.byLevel = true
	default:
		return q, fmt.Errorf("cannot sort buffers by %q, use level or percent",
			values.Get("sort"))
	}

	for name, dst := range map[string]*int{"limit": &q.limit, "offset": &q.offset} {
		s := values.Get(name)
		if s == "" {
			continue
		}

		if *dst, err = strconv.Atoi(s); err != nil {
			return q, fmt.Errorf("bad %s: %w", name, err)
		}

		if *dst < 0 {
			return q, errors.New(name + " must not be negative")
		}
	}

	return q, nil
}

func fillRatio(b Buffer) float64 {
	return float64(b.Size()) / float64(b.Capacity())
}

// bufferLevels lists the fullest buffers first, which is where a hang shows.
func (m *Monitor) bufferLevels(w http.ResponseWriter, r *http.Request) {
	q, err := parseBufferQuery(r)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	m.lock.Lock()
	buffers := slices.Clone(m.buffers)
	m.lock.Unlock()

	byLevel := func(a, b Buffer) int { return cmp.Compare(b.Size(), a.Size()) }
	byRatio := func(a, b Buffer) int { return cmp.Compare(fillRatio(b), fillRatio(a)) }

	first, second := byRatio, byLevel
	if q.byLevel {
		first, second = byLevel, byRatio
	}

	slices.SortStableFunc(buffers, func(a, b Buffer) int {
		return cmp.Or(first(a, b), second(a, b))
	})

	start := min(q.offset, len(buffers))
	end := len(buffers)
	if q.limit > 0 {
		end = min(end, start+q.limit)
	}

	rsp := make([]bufferRsp, 0, end-start)
	for _, b := range buffers[start:end] {
		rsp = append(rsp, bufferRsp{Buffer: b.Name(), Level: b.Size(), Cap: b.Capacity()})
	}

	writeJSON(w, rsp)
}

type submitterRsp struct {
	Name          string `json:"name"`
	LastSubmitted uint64 `json:"last_submitted"`
	LastCompleted uint64 `json:"last_completed"`
	Paused        bool   `json:"paused"`
	Error         string `json:"error,omitempty"`
}

// listSubmitters also harvests progress, so a stuck caller does not freeze
// the numbers.
func (m *Monitor) listSubmitters(w http.ResponseWriter, _ *http.Request) {
	m.lock.Lock()
	submitters := slices.Clone(m.submitters)
	m.lock.Unlock()

	rsp := make([]submitterRsp, 0, len(submitters))
	for _, s := range submitters {
		completed, err := s.UpdateProgress()

		entry := submitterRsp{
			Name:          s.Name(),
			LastSubmitted: s.LastSubmitted(),
			LastCompleted: completed,
			Paused:        s.Paused(),
		}
		if err != nil {
			entry.Error = err.Error()
		}

		rsp = append(rsp, entry)
	}

	writeJSON(w, rsp)
}

func (m *Monitor) listProgressBars(w http.ResponseWriter, _ *http.Request) {
	m.progressBarsLock.Lock()
	views := make([]progressView, 0, len(m.progressBars))
	for _, b := range m.progressBars {
		views = append(views, b.view())
	}
	m.progressBarsLock.Unlock()

	writeJSON(w, views)
}

type resourceRsp struct {
	CPUPercent float64 `json:"cpu_percent"`
	MemorySize uint64  `json:"memory_size"`
}

func (m *Monitor) resources(w http.ResponseWriter, _ *http.Request) {
	var rsp resourceRsp

	err := func() error {
		p, err := process.NewProcess(int32(os.Getpid()))
		if err != nil {
			return err
		}

		if rsp.CPUPercent, err = p.CPUPercent(); err != nil {
			return err
		}

		mem, err := p.MemoryInfo()
		if err != nil {
			return err
		}

		rsp.MemorySize = mem.RSS

		return nil
	}()
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	writeJSON(w, rsp)
}

// cpuProfile samples the process for a second.
func (m *Monitor) cpuProfile(w http.ResponseWriter, _ *http.Request) {
	var buf bytes.Buffer
	if err := pprof.StartCPUProfile(&buf); err != nil {
		http.Error(w, err.Error(), http.StatusConflict)
		return
	}

	time.Sleep(time.Second)
	pprof.StopCPUProfile()

	prof, err := profile.ParseData(buf.Bytes())
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	writeJSON(w, prof)
}

func writeJSON(w http.ResponseWriter, v any) {
	data, err := json.Marshal(v)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	writeBody(w, data)
}

func writeBody(w http.ResponseWriter, data []byte) {
	if _, err := w.Write(data); err != nil {
		log.WithError(err).Debug("monitoring client went away")
	}
}
