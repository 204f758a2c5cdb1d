package submit_test

import (
	"bytes"
	"context"
	"errors"
	"sync"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"gvisor.dev/gvisor/pkg/abi/nvgpu"

	"github.com/sarchlab/copyengine/ccsl"
	"github.com/sarchlab/copyengine/channel"
	"github.com/sarchlab/copyengine/config"
	"github.com/sarchlab/copyengine/gpu"
	"github.com/sarchlab/copyengine/memory"
	"github.com/sarchlab/copyengine/pushbuffer"
	"github.com/sarchlab/copyengine/rm"
	"github.com/sarchlab/copyengine/status"
	"github.com/sarchlab/copyengine/submit"
	"github.com/sarchlab/copyengine/tracing"
)

type recordingEncoder struct {
	lock     *sync.Mutex
	descs    *[]pushbuffer.WorkDescriptor
	passes   *int
	failures *int
}

var errEncode = errors.New("encode failure")

func (e recordingEncoder) Encode(
	ctx context.Context,
	desc pushbuffer.WorkDescriptor,
	t pushbuffer.Target,
) ([]uint32, error) {
	e.lock.Lock()
	defer e.lock.Unlock()

	switch {
	case *e.failures == 0:
	case *e.passes > 0:
		*e.passes--
	default:
		*e.failures--
		return nil, errEncode
	}

	*e.descs = append(*e.descs, desc)

	return pushbuffer.CEEncoder{}.Encode(ctx, desc, t)
}

var _ = Describe("Submitter", func() {
	var (
		dev      *gpu.Device
		cfg      config.Config
		builder  submit.Builder
		s        *submit.Submitter
		ctx      context.Context
		sched    channel.SchedulingContext
		lock     sync.Mutex
		descs    []pushbuffer.WorkDescriptor
		passes   int
		failures int
	)

	alloc := func(size uint64, a rm.Aperture, contiguous bool) *rm.MemDesc {
		m, err := dev.AllocMemory(size, a, contiguous)
		Expect(err).NotTo(HaveOccurred())

		return m
	}

	read := func(m *rm.MemDesc, offset, n uint64) []byte {
		var out []byte

		for _, c := range submit.Split(nil, 0, m, offset, n, n) {
			data, err := dev.Storage(m.Aperture).Read(m.PhysAddr(c.DstOffset), c.Length)
			Expect(err).NotTo(HaveOccurred())
			out = append(out, data...)
		}

		return out
	}

	lengths := func() []uint64 {
		out := make([]uint64, len(descs))
		for i, d := range descs {
			out[i] = d.Bytes()
		}

		return out
	}

	build := func() {
		var err error
		s, err = builder.Build("GPU.Submitter")
		Expect(err).NotTo(HaveOccurred())

		sched = s.InterruptStrategy()
	}

	BeforeEach(func() {
		dev = gpu.MakeBuilder().
			WithFBSize(16*memory.MB).
			WithSysmemSize(16*memory.MB).
			WithCopyEngines(2, nvgpu.HOPPER_DMA_COPY_A).
			WithFragmentation(true).
			Build("GPU")
		ctx = context.Background()
		descs = nil
		passes, failures = 0, 0

		cfg = config.Default()
		cfg.Slots = 8
		cfg.Timeout = time.Second

		builder = submit.MakeBuilder().
			WithAllocator(dev).
			WithConfig(cfg).
			WithEngine(dev.EngineInstances(nvgpu.HOPPER_DMA_COPY_A)[0]).
			WithEncoder(func(
				*channel.Channel,
				*ccsl.Session,
				channel.SchedulingContext,
			) pushbuffer.Encoder {
				return recordingEncoder{
					lock:     &lock,
					descs:    &descs,
					passes:   &passes,
					failures: &failures,
				}
			})
	})

	Context("with the default line length", func() {
		BeforeEach(func() {
			build()
		})

		It("should split a memset of scattered pages per page", func() {
			dst := alloc(3*rm.PageSize, rm.ApertureVidmem, false)
			Expect(dst.Pages[1]).NotTo(Equal(dst.Pages[0] + rm.PageSize))

			workID, err := s.Memset(ctx, sched, submit.MemsetRequest{
				Dst:     dst,
				Length:  dst.Size,
				Pattern: 0xAB,
			})

			Expect(err).NotTo(HaveOccurred())
			Expect(lengths()).To(Equal([]uint64{4096, 4096, 4096}))

			for i, d := range descs {
				m := d.(pushbuffer.Memset)
				Expect(m.Final).To(Equal(i == 2))
				Expect(m.Pipelined).To(Equal(i > 0))
				Expect(m.Payload).To(Equal(workID))
				Expect(m.Dst.Addr).To(Equal(dst.Pages[i]))
				Expect(m.Dst.Physical).To(BeTrue())
			}

			completed, err := s.UpdateProgress()
			Expect(err).NotTo(HaveOccurred())
			Expect(completed).To(BeNumerically(">=", workID))
			Expect(read(dst, 0, dst.Size)).
				To(Equal(bytes.Repeat([]byte{0xAB, 0, 0, 0}, 3*1024)))
		})

		It("should fill unaligned ranges alike however they are split", func() {
			for _, contiguous := range []bool{true, false} {
				dst := alloc(2*rm.PageSize, rm.ApertureVidmem, contiguous)
				descs = nil

				_, err := s.Memset(ctx, sched, submit.MemsetRequest{
					Dst:     dst,
					Length:  rm.PageSize + 1,
					Pattern: 0x11223344,
				})

				Expect(err).NotTo(HaveOccurred())
				Expect(read(dst, 0, rm.PageSize+1)).
					To(Equal(bytes.Repeat([]byte{0x44}, int(rm.PageSize)+1)))
				Expect(read(dst, rm.PageSize+1, 1)).To(Equal([]byte{0}))

				for _, d := range descs {
					Expect(d.(pushbuffer.Memset).ByteFill).To(BeTrue())
				}
			}
		})

		It("should bound copies by the smaller contiguous run", func() {
			src := alloc(3*rm.PageSize, rm.ApertureSysmem, true)
			dst := alloc(3*rm.PageSize, rm.ApertureVidmem, false)
			data := bytes.Repeat([]byte("copy me!"), 3*512)
			Expect(dev.Storage(rm.ApertureSysmem).Write(src.Base, data)).
				To(Succeed())

			_, err := s.Memcopy(ctx, sched, submit.MemcopyRequest{
				Src:    src,
				Dst:    dst,
				Length: src.Size,
			})

			Expect(err).NotTo(HaveOccurred())
			Expect(lengths()).To(Equal([]uint64{4096, 4096, 4096}))
			Expect(read(dst, 0, dst.Size)).To(Equal(data))
		})

		It("should reject bad ranges before submitting anything", func() {
			dst := alloc(rm.PageSize, rm.ApertureVidmem, true)

			for _, req := range []submit.MemsetRequest{
				{Dst: nil, Length: 4},
				{Dst: dst, Offset: rm.PageSize, Length: 4},
				{Dst: dst, Length: 0},
				{Dst: dst, Offset: 4, Length: rm.PageSize},
			} {
				_, err := s.Memset(ctx, sched, req)
				Expect(err).To(MatchError(status.ErrInvalidArgument))
			}

			_, err := s.Memcopy(ctx, sched, submit.MemcopyRequest{
				Src: dst, Dst: dst, DstOffset: 8, Length: rm.PageSize,
			})
			Expect(err).To(MatchError(status.ErrInvalidArgument))
			Expect(descs).To(BeEmpty())
			Expect(s.LastSubmitted()).To(BeZero())
		})

		It("should track asynchronous requests", func() {
			dst := alloc(rm.PageSize, rm.ApertureVidmem, true)

			workID, err := s.Memset(ctx, sched, submit.MemsetRequest{
				Dst:    dst,
				Length: dst.Size,
				Flags:  submit.FlagAsync,
			})
			Expect(err).NotTo(HaveOccurred())

			first, err := s.UpdateProgress()
			Expect(err).NotTo(HaveOccurred())
			second, err := s.UpdateProgress()
			Expect(err).NotTo(HaveOccurred())
			Expect(second).To(Equal(first))

			Eventually(func() bool {
				s.ServiceInterrupts()
				done, err := s.CheckProgress(workID)
				Expect(err).NotTo(HaveOccurred())

				return done
			}).Should(BeTrue())
		})

		It("should trace requests and their sub-operations", func() {
			steps := tracing.NewStepCountTracer(tracing.KindIs("memset"))
			tracing.CollectTrace(s, steps)
			dst := alloc(2*rm.PageSize, rm.ApertureVidmem, false)

			_, err := s.Memset(ctx, sched, submit.MemsetRequest{
				Dst:    dst,
				Length: dst.Size,
			})

			Expect(err).NotTo(HaveOccurred())
			Expect(steps.GetStepCount("sub-op")).To(Equal(uint64(2)))
			Expect(steps.GetTaskCount("sub-op")).To(Equal(uint64(1)))
		})

		It("should refuse requests while paused", func() {
			dst := alloc(rm.PageSize, rm.ApertureVidmem, true)
			req := submit.MemsetRequest{Dst: dst, Length: dst.Size}

			Expect(s.PauseSubmission(ctx, sched, false)).To(Succeed())
			Expect(s.PauseSubmission(ctx, sched, true)).To(Succeed())

			_, err := s.Memset(ctx, sched, req)
			Expect(err).To(MatchError(status.ErrBusyRetry))

			s.ResumeSubmission()
			Expect(s.Paused()).To(BeTrue())
			s.ResumeSubmission()

			_, err = s.Memset(ctx, sched, req)
			Expect(err).NotTo(HaveOccurred())
			Expect(s.ResumeSubmission).To(Panic())
		})

		It("should switch engines only when paused and drained", func() {
			dst := alloc(rm.PageSize, rm.ApertureVidmem, true)
			req := submit.MemsetRequest{Dst: dst, Length: dst.Size}

			_, err := s.Memset(ctx, sched, req)
			Expect(err).NotTo(HaveOccurred())
			Expect(s.SetEngineInstance(1)).To(MatchError(status.ErrInvalidState))

			req.Flags = submit.FlagAsync
			_, err = s.Memset(ctx, sched, req)
			Expect(err).NotTo(HaveOccurred())

			Expect(s.PauseSubmission(ctx, sched, false)).To(Succeed())
			Expect(s.SetEngineInstance(1)).To(MatchError(status.ErrInvalidState))
			s.ResumeSubmission()

			Expect(s.PauseSubmission(ctx, sched, true)).To(Succeed())
			Expect(s.SetEngineInstance(7)).To(MatchError(status.ErrInvalidArgument))
			Expect(s.SetEngineInstance(1)).To(Succeed())
			s.ResumeSubmission()

			Expect(s.Engine().ID).To(Equal(uint32(1)))
			sched = s.InterruptStrategy()

			req.Flags = 0
			workID, err := s.Memset(ctx, sched, req)
			Expect(err).NotTo(HaveOccurred())
			Expect(workID).To(Equal(uint64(3)))
		})

		It("should not count a request that failed to issue", func() {
			dst := alloc(2*rm.PageSize, rm.ApertureVidmem, false)
			req := submit.MemsetRequest{Dst: dst, Length: dst.Size}
			failures = 1

			_, err := s.Memset(ctx, sched, req)
			Expect(err).To(MatchError(errEncode))
			Expect(s.LastSubmitted()).To(BeZero())

			Expect(s.PauseSubmission(ctx, sched, true)).To(Succeed())
			Expect(s.SetEngineInstance(1)).To(Succeed())
			s.ResumeSubmission()
			sched = s.InterruptStrategy()

			workID, err := s.Memset(ctx, sched, req)
			Expect(err).NotTo(HaveOccurred())
			Expect(workID).To(Equal(uint64(1)))
		})

		It("should reuse the payload of a request that failed part way", func() {
			dst := alloc(2*rm.PageSize, rm.ApertureVidmem, false)
			req := submit.MemsetRequest{Dst: dst, Length: dst.Size, Pattern: 0x5A}
			passes, failures = 1, 1

			_, err := s.Memset(ctx, sched, req)
			Expect(err).To(MatchError(errEncode))
			Expect(descs).To(HaveLen(1))
			Expect(descs[0].Common().Final).To(BeFalse())
			Expect(s.LastSubmitted()).To(BeZero())
			Expect(s.PauseSubmission(ctx, sched, true)).To(Succeed())
			s.ResumeSubmission()

			workID, err := s.Memset(ctx, sched, req)
			Expect(err).NotTo(HaveOccurred())
			Expect(workID).To(Equal(uint64(1)))
			Expect(descs[2].Common().Payload).To(Equal(workID))
			Expect(read(dst, 0, dst.Size)).
				To(Equal(bytes.Repeat([]byte{0x5A, 0, 0, 0}, 2*1024)))
		})

		It("should not be used after destroy", func() {
			dst := alloc(rm.PageSize, rm.ApertureVidmem, true)

			Expect(s.Destroy()).To(Succeed())
			Expect(s.Destroy()).To(Succeed())

			_, err := s.Memset(ctx, sched, submit.MemsetRequest{
				Dst: dst, Length: dst.Size,
			})
			Expect(err).To(MatchError(status.ErrInvalidState))
		})
	})

	It("should cut at the maximum line length", func() {
		builder = builder.WithMaxLineLength(4096)
		build()
		dst := alloc(10000, rm.ApertureVidmem, true)

		_, err := s.Memset(ctx, sched, submit.MemsetRequest{
			Dst:    dst,
			Length: dst.Size,
		})

		Expect(err).NotTo(HaveOccurred())
		Expect(lengths()).To(Equal([]uint64{4096, 4096, 1808}))
	})

	It("should break long pipelined runs", func() {
		cfg.MaxPipelinedOps = 2
		builder = builder.WithConfig(cfg).WithMaxLineLength(1024)
		build()
		dst := alloc(5*1024, rm.ApertureVidmem, true)

		_, err := s.Memset(ctx, sched, submit.MemsetRequest{
			Dst:    dst,
			Length: dst.Size,
		})

		Expect(err).NotTo(HaveOccurred())

		pipelined := make([]bool, len(descs))
		for i, d := range descs {
			pipelined[i] = d.Common().Pipelined
		}

		Expect(pipelined).To(Equal([]bool{false, true, true, false, true}))
	})

	It("should address virtually when asked to", func() {
		builder = builder.WithVirtual(true)
		build()
		dst := alloc(rm.PageSize, rm.ApertureSysmem, true)

		_, err := s.Memset(ctx, sched, submit.MemsetRequest{
			Dst:     dst,
			Length:  dst.Size,
			Pattern: 0x01020304,
		})

		Expect(err).NotTo(HaveOccurred())
		m := descs[0].(pushbuffer.Memset)
		Expect(m.Dst.Physical).To(BeFalse())
		Expect(m.Dst.Addr).To(Equal(rm.IdentityVA(rm.ApertureSysmem, dst.Base)))
		Expect(read(dst, 0, 4)).To(Equal([]byte{4, 3, 2, 1}))
	})

	It("should not address virtually without a VA space", func() {
		dev = gpu.MakeBuilder().WithoutVASpace().Build("GPU")
		builder = builder.WithAllocator(dev).
			WithEngine(dev.EngineInstances(nvgpu.HOPPER_DMA_COPY_A)[0])
		build()
		dst := alloc(rm.PageSize, rm.ApertureVidmem, true)

		_, err := s.Memset(ctx, sched, submit.MemsetRequest{
			Dst:    dst,
			Length: dst.Size,
			Flags:  submit.FlagVirtual,
		})
		Expect(err).To(MatchError(status.ErrNotSupported))

		_, err = builder.WithVirtual(true).Build("GPU.Virtual")
		Expect(err).To(MatchError(status.ErrNotSupported))
	})
})
