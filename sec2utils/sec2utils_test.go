package sec2utils_test

import (
	"bytes"
	"context"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"gvisor.dev/gvisor/pkg/abi/nvgpu"

	"github.com/sarchlab/copyengine/channel"
	"github.com/sarchlab/copyengine/config"
	"github.com/sarchlab/copyengine/gpu"
	"github.com/sarchlab/copyengine/memory"
	"github.com/sarchlab/copyengine/rm"
	"github.com/sarchlab/copyengine/sec2utils"
	"github.com/sarchlab/copyengine/sim"
	"github.com/sarchlab/copyengine/status"
)

var _ = Describe("Sec2Utils", func() {
	var (
		devBuilder gpu.Builder
		dev        *gpu.Device
		cfg        config.Config
		ctx        context.Context
	)

	alloc := func(size uint64, a rm.Aperture, contiguous bool) *rm.MemDesc {
		m, err := dev.AllocMemory(size, a, contiguous)
		Expect(err).NotTo(HaveOccurred())

		return m
	}

	readPages := func(m *rm.MemDesc) []byte {
		var out []byte

		for off := uint64(0); off < m.Size; off += rm.PageSize {
			n := min(rm.PageSize, m.Size-off)
			data, err := dev.Storage(m.Aperture).Read(m.PhysAddr(off), n)
			Expect(err).NotTo(HaveOccurred())
			out = append(out, data...)
		}

		return out
	}

	build := func() (*sec2utils.Sec2Utils, error) {
		dev = devBuilder.Build("GPU")

		return sec2utils.MakeBuilder().
			WithAllocator(dev).
			WithConfig(cfg).
			Build("GPU.Sec2Utils")
	}

	BeforeEach(func() {
		devBuilder = gpu.MakeBuilder().
			WithFBSize(16*memory.MB).
			WithSysmemSize(16*memory.MB).
			WithCopyEngines(2, nvgpu.HOPPER_DMA_COPY_A).
			WithConfidentialCompute([]byte("device secret")).
			WithFragmentation(true)
		ctx = context.Background()

		cfg = config.Default()
		cfg.Slots = 8
		cfg.Timeout = time.Second
		cfg.Sec2MaxLineLength = rm.PageSize
	})

	It("should need a device in confidential computing mode", func() {
		devBuilder = devBuilder.WithConfidentialCompute(nil)

		_, err := build()
		Expect(err).To(MatchError(status.ErrInsufficientResources))
	})

	It("should need a VA space", func() {
		devBuilder = devBuilder.WithoutVASpace()

		_, err := build()
		Expect(err).To(MatchError(status.ErrNotSupported))
	})

	Context("with a SEC2 engine", func() {
		var (
			u        *sec2utils.Sec2Utils
			launches []gpu.LaunchInfo
		)

		BeforeEach(func() {
			var err error
			u, err = build()
			Expect(err).NotTo(HaveOccurred())

			launches = nil
			dev.Sec2().AcceptHook(sim.HookFunc(func(ctx sim.HookCtx) {
				if ctx.Pos == gpu.HookPosLaunch {
					launches = append(launches, ctx.Item.(gpu.LaunchInfo))
				}
			}))
		})

		AfterEach(func() {
			Expect(u.Destroy()).To(Succeed())
		})

		It("should run signed memsets on scattered pages", func() {
			dst := alloc(3*rm.PageSize, rm.ApertureVidmem, false)

			_, err := u.Memset(ctx, u.InterruptStrategy(),
				sec2utils.MemsetRequest{
					Dst: dst, Length: dst.Size, Pattern: 0x11223344,
				})

			Expect(err).NotTo(HaveOccurred())
			Expect(launches).To(HaveLen(3))
			Expect(launches[0].Kind).To(Equal("memset"))
			Expect(readPages(dst)).
				To(Equal(bytes.Repeat([]byte{0x44, 0x33, 0x22, 0x11}, 3*1024)))
		})

		It("should repeat the low byte of unaligned memsets", func() {
			dst := alloc(rm.PageSize, rm.ApertureSysmem, true)

			_, err := u.Memset(ctx, u.InterruptStrategy(),
				sec2utils.MemsetRequest{
					Dst: dst, Offset: 1, Length: 6, Pattern: 0x11223344,
				})
			Expect(err).NotTo(HaveOccurred())

			got, err := dev.Storage(rm.ApertureSysmem).Read(dst.Base, 8)
			Expect(err).NotTo(HaveOccurred())
			Expect(got).To(Equal([]byte{0, 0x44, 0x44, 0x44, 0x44, 0x44, 0x44, 0}))
		})

		It("should copy between apertures", func() {
			data := bytes.Repeat([]byte("sec2"), 2*1024)
			src := alloc(2*rm.PageSize, rm.ApertureSysmem, true)
			dst := alloc(2*rm.PageSize, rm.ApertureVidmem, false)
			Expect(dev.Storage(rm.ApertureSysmem).Write(src.Base, data)).
				To(Succeed())

			_, err := u.Memcopy(ctx, u.InterruptStrategy(),
				sec2utils.MemcopyRequest{Src: src, Dst: dst, Length: src.Size})

			Expect(err).NotTo(HaveOccurred())
			Expect(launches).To(HaveLen(2))
			Expect(launches[1].Kind).To(Equal("copy"))
			Expect(readPages(dst)).To(Equal(data))
		})
	})

	It("should block while the tag rings are full", func() {
		cfg.TagSlots = 2
		u, err := build()
		Expect(err).NotTo(HaveOccurred())

		defer func() { Expect(u.Destroy()).To(Succeed()) }()

		dst := alloc(2*rm.PageSize, rm.ApertureVidmem, false)
		done := make(chan error, 1)

		go func() {
			_, err := u.Memset(ctx, channel.CooperativeYieldStrategy{},
				sec2utils.MemsetRequest{Dst: dst, Length: dst.Size, Pattern: 3})
			done <- err
		}()

		Consistently(done, 100*time.Millisecond).ShouldNot(Receive())

		var result error

		Eventually(func() bool {
			dev.ServiceInterrupts()

			select {
			case result = <-done:
				return true
			default:
				return false
			}
		}).Should(BeTrue())

		Expect(result).NotTo(HaveOccurred())
		Expect(readPages(dst)).
			To(Equal(bytes.Repeat([]byte{3, 0, 0, 0}, 2*1024)))
	})
})
