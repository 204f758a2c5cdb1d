package tracing

import (
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"go.uber.org/mock/gomock"

	"github.com/sarchlab/copyengine/sim"
)

var _ = Describe("Api", func() {
	var (
		mockCtrl *gomock.Controller
		domain   *MockNamedHookable
	)

	BeforeEach(func() {
		mockCtrl = gomock.NewController(GinkgoT())
		domain = NewMockNamedHookable(mockCtrl)
	})

	AfterEach(func() {
		mockCtrl.Finish()
	})

	Context("with hooks", func() {
		BeforeEach(func() {
			domain.EXPECT().NumHooks().Return(1).AnyTimes()
		})

		It("should panic if ID is not given", func() {
			Expect(func() {
				StartTask("", "123", domain, "kind", "what", nil)
			}).Should(Panic())
		})

		It("should panic if domain's name is empty", func() {
			domain.EXPECT().Name().Return("").AnyTimes()
			Expect(func() {
				StartTask("id", "123", domain, "kind", "what", nil)
			}).Should(Panic())
		})

		It("should panic if kind is empty", func() {
			Expect(func() {
				StartTask("id", "123", domain, "", "what", nil)
			}).Should(Panic())
		})

		It("should panic if what is empty", func() {
			Expect(func() {
				StartTask("id", "123", domain, "kind", "", nil)
			}).Should(Panic())
		})

		It("should locate the task at the domain", func() {
			domain.EXPECT().Name().Return("GPU.CeUtils").AnyTimes()
			domain.EXPECT().
				InvokeHook(gomock.Any()).
				Do(func(ctx sim.HookCtx) {
					Expect(ctx.Pos).To(Equal(HookPosTaskStart))
					task := ctx.Item.(Task)
					Expect(task.Location).To(Equal("GPU.CeUtils"))
					Expect(task.ParentID).To(Equal("123"))
				})

			StartTask("id", "123", domain, "memset", "vidmem", nil)
		})

		It("should carry one step", func() {
			domain.EXPECT().
				InvokeHook(gomock.Any()).
				Do(func(ctx sim.HookCtx) {
					Expect(ctx.Pos).To(Equal(HookPosTaskStep))
					Expect(ctx.Item.(Task).Steps).To(HaveLen(1))
				})

			AddTaskStep("id", domain, "sub-op")
		})
	})

	It("should panic if domain is nil", func() {
		Expect(func() {
			StartTask("id", "123", nil, "kind", "what", nil)
		}).Should(Panic())
	})

	It("should not invoke hooks when there are none", func() {
		domain.EXPECT().NumHooks().Return(0).AnyTimes()

		StartTask("", "", domain, "", "", nil)
		AddTaskStep("id", domain, "step")
		EndTask("id", domain)
	})
})

type domainBase struct {
	sim.HookableBase
}

func (d *domainBase) Name() string {
	return "Domain"
}

var _ = Describe("Tracers", func() {
	var (
		mockCtrl   *gomock.Controller
		timeTeller *MockTimeTeller
		domain     *domainBase
		now        sim.VTimeInSec
	)

	BeforeEach(func() {
		mockCtrl = gomock.NewController(GinkgoT())
		timeTeller = NewMockTimeTeller(mockCtrl)
		timeTeller.EXPECT().
			CurrentTime().
			DoAndReturn(func() sim.VTimeInSec { return now }).
			AnyTimes()
		domain = &domainBase{}
		now = 0
	})

	AfterEach(func() {
		mockCtrl.Finish()
	})

	It("should count steps of filtered tasks", func() {
		t := NewStepCountTracer(KindIs("memset"))
		CollectTrace(domain, t)

		StartTask("1", "", domain, "memset", "vidmem", nil)
		StartTask("2", "", domain, "memcopy", "vidmem", nil)
		AddTaskStep("1", domain, "sub-op")
		AddTaskStep("1", domain, "sub-op")
		AddTaskStep("2", domain, "sub-op")
		EndTask("1", domain)
		EndTask("2", domain)

		Expect(t.GetStepNames()).To(Equal([]string{"sub-op"}))
		Expect(t.GetStepCount("sub-op")).To(Equal(uint64(2)))
		Expect(t.GetTaskCount("sub-op")).To(Equal(uint64(1)))
	})

	It("should average task durations", func() {
		t := NewAverageTimeTracer(timeTeller, KindIs("memset"))
		CollectTrace(domain, t)

		StartTask("1", "", domain, "memset", "vidmem", nil)
		now = 2
		StartTask("2", "", domain, "memset", "vidmem", nil)
		EndTask("1", domain)
		now = 6
		EndTask("2", domain)
		EndTask("3", domain)

		Expect(t.TotalCount()).To(Equal(uint64(2)))
		Expect(t.AverageTime()).To(Equal(sim.VTimeInSec(3)))
	})

	It("should store finished tasks", func() {
		recorder := NewMockDataRecorder(mockCtrl)
		recorder.EXPECT().CreateTable("trace", gomock.Any())
		recorder.EXPECT().CreateTable("trace_steps", gomock.Any())

		t := NewDBTracer(timeTeller, recorder)
		CollectTrace(domain, t)

		StartTask("1", "", domain, "memset", "vidmem", nil)
		StartTask("2", "", domain, "memset", "vidmem", nil)
		now = 1
		AddTaskStep("1", domain, "sub-op")

		recorder.EXPECT().InsertData("trace", taskTableEntry{
			ID:        "1",
			Kind:      "memset",
			What:      "vidmem",
			Location:  "Domain",
			StartTime: 0,
			EndTime:   2,
			NumSteps:  1,
		})
		recorder.EXPECT().InsertData("trace_steps", stepTableEntry{
			TaskID: "1",
			Time:   1,
			What:   "sub-op",
		})

		now = 2
		EndTask("1", domain)

		recorder.EXPECT().Flush()
		t.Terminate()
		EndTask("2", domain)
	})
})
