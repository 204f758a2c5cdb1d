package cmd

import (
	"context"
	"fmt"

	"github.com/pkg/browser"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"
	"gvisor.dev/gvisor/pkg/abi/nvgpu"

	"github.com/sarchlab/copyengine/datarecording"
	"github.com/sarchlab/copyengine/gpu"
	"github.com/sarchlab/copyengine/memory"
	"github.com/sarchlab/copyengine/monitoring"
	"github.com/sarchlab/copyengine/rm"
	"github.com/sarchlab/copyengine/tracing"
)

// env holds what every command shares: the devices, the optional monitor and
// the optional trace.
type env struct {
	devices  []*gpu.Device
	monitor  *monitoring.Monitor
	recorder datarecording.DataRecorder
	tracer   *tracing.DBTracer
	cancel   context.CancelFunc
}

func newEnv(ctx context.Context) (*env, context.Context) {
	ctx, cancel := context.WithCancel(ctx)
	e := &env{cancel: cancel}

	for i := 0; i < numDevices; i++ {
		b := gpu.MakeBuilder().
			WithFBSize(fbSizeMB*memory.MB).
			WithSysmemSize(fbSizeMB*memory.MB).
			WithCopyEngines(numCEs, nvgpu.HOPPER_DMA_COPY_A).
			WithFragmentation(fragment).
			WithLogger(logrus.WithField("gpu", i))
		if cfg.Secure {
			b = b.WithConfidentialCompute([]byte(secret))
		}

		dev := b.Build(fmt.Sprintf("GPU[%d]", i))
		dev.Start(ctx)
		e.devices = append(e.devices, dev)
	}

	if traceDB != "" {
		e.recorder = datarecording.New(traceDB)
		e.tracer = tracing.NewDBTracer(tracing.NewWallClock(), e.recorder)
	}

	if monitorPort >= 0 {
		e.monitor = monitoring.NewMonitor().WithPortNumber(monitorPort)
		e.monitor.RegisterEngine(e.devices[0].Engine())

		for _, dev := range e.devices {
			for _, c := range dev.Components() {
				e.monitor.RegisterComponent(c)
			}
		}

		port := e.monitor.StartServer()
		if openMonitor {
			url := fmt.Sprintf("http://localhost:%d/api/progress", port)
			if err := browser.OpenURL(url); err != nil {
				logrus.WithError(err).Warn("cannot open browser")
			}
		}
	}

	return e, ctx
}

// watchable submitters can be traced and monitored.
type watchable interface {
	tracing.NamedHookable
	monitoring.Submitter
}

// watch traces and monitors a submitter.
func (e *env) watch(s watchable) {
	if e.tracer != nil {
		tracing.CollectTrace(s, e.tracer)
	}

	if e.monitor != nil {
		e.monitor.RegisterSubmitter(s)
	}
}

// forEachDevice runs f on every device concurrently and returns the first
// error.
func (e *env) forEachDevice(
	ctx context.Context,
	f func(ctx context.Context, dev *gpu.Device) error,
) error {
	g, ctx := errgroup.WithContext(ctx)

	for _, dev := range e.devices {
		g.Go(func() error {
			if err := f(ctx, dev); err != nil {
				return fmt.Errorf("%s: %w", dev.Name(), err)
			}

			return nil
		})
	}

	return g.Wait()
}

func (e *env) close() error {
	e.cancel()

	if e.tracer != nil {
		e.tracer.Terminate()
		return e.recorder.Close()
	}

	return nil
}

func parseAperture(s string) (rm.Aperture, error) {
	switch s {
	case "vidmem":
		return rm.ApertureVidmem, nil
	case "sysmem":
		return rm.ApertureSysmem, nil
	default:
		return 0, fmt.Errorf("unknown aperture %q", s)
	}
}

// readBack returns the content of an allocation.
func readBack(dev *gpu.Device, m *rm.MemDesc) ([]byte, error) {
	out := make([]byte, 0, m.Size)

	for off := uint64(0); off < m.Size; {
		n := m.ContiguousRun(off)

		data, err := dev.Storage(m.Aperture).Read(m.PhysAddr(off), n)
		if err != nil {
			return nil, err
		}

		out = append(out, data...)
		off += n
	}

	return out, nil
}

// writeAll stores data into an allocation.
func writeAll(dev *gpu.Device, m *rm.MemDesc, data []byte) error {
	for off := uint64(0); off < uint64(len(data)); {
		n := min(m.ContiguousRun(off), uint64(len(data))-off)

		err := dev.Storage(m.Aperture).Write(m.PhysAddr(off), data[off:off+n])
		if err != nil {
			return err
		}

		off += n
	}

	return nil
}
