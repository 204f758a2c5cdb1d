package sim

import (
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"go.uber.org/mock/gomock"
)

var _ = Describe("Ticking Component", func() {
	var (
		mockCtrl *gomock.Controller
		engine   *MockEngine
		ticker   *MockTicker
		tc       *TickingComponent
	)

	BeforeEach(func() {
		mockCtrl = gomock.NewController(GinkgoT())
		engine = NewMockEngine(mockCtrl)
		ticker = NewMockTicker(mockCtrl)
		tc = NewTickingComponent("TC", engine, 1, ticker)
	})

	AfterEach(func() {
		mockCtrl.Finish()
	})

	It("should schedule a tick in the next cycle", func() {
		engine.EXPECT().CurrentTime().Return(VTimeInSec(10))
		engine.EXPECT().Schedule(gomock.Any()).
			Do(func(e Event) {
				Expect(e.Time()).To(Equal(VTimeInSec(11)))
			})

		tc.TickLater()
	})

	It("should tick when the ticker make progress in a tick", func() {
		engine.EXPECT().CurrentTime().Return(VTimeInSec(10))
		engine.EXPECT().Schedule(gomock.Any()).
			Do(func(e Event) {
				Expect(e.Time()).To(Equal(VTimeInSec(11)))
			})
		ticker.EXPECT().Tick().Return(true)

		Expect(tc.Handle(tickEvent{time: 10, handler: tc})).To(Succeed())
	})

	It("should not tick if there is another tick scheduled in the future", func() {
		engine.EXPECT().CurrentTime().Return(VTimeInSec(10)).Times(2)
		engine.EXPECT().Schedule(gomock.Any()).Times(1)
		ticker.EXPECT().Tick().Return(true).Times(2)

		Expect(tc.Handle(tickEvent{time: 10, handler: tc})).To(Succeed())
		Expect(tc.Handle(tickEvent{time: 10, handler: tc})).To(Succeed())
	})

	It("should stop ticking if no progress is made", func() {
		ticker.EXPECT().Tick().Return(false)

		Expect(tc.Handle(tickEvent{time: 10, handler: tc})).To(Succeed())
	})
})

var _ = Describe("Hooks", func() {
	It("should count hooks and call them in order", func() {
		var (
			base  HookableBase
			calls []string
		)
		base.AcceptHook(HookFunc(func(HookCtx) { calls = append(calls, "a") }))
		base.AcceptHook(HookFunc(func(HookCtx) { calls = append(calls, "b") }))

		base.InvokeHook(HookCtx{})

		Expect(base.NumHooks()).To(Equal(2))
		Expect(calls).To(Equal([]string{"a", "b"}))
	})

	It("should allow a hook to add another hook", func() {
		var base HookableBase
		base.AcceptHook(HookFunc(func(HookCtx) {
			base.AcceptHook(HookFunc(func(HookCtx) {}))
		}))

		base.InvokeHook(HookCtx{})

		Expect(base.NumHooks()).To(Equal(2))
	})
})

var _ = Describe("Names", func() {
	It("should reject bad names", func() {
		Expect(func() { NameMustBeValid("") }).To(Panic())
		Expect(func() { NameMustBeValid("GPU 0") }).To(Panic())
		Expect(func() { NameMustBeValid("GPU[0].CE[1]") }).NotTo(Panic())
	})

	It("should hand out distinct IDs", func() {
		gen := GetIDGenerator()
		Expect(gen.Generate()).NotTo(Equal(gen.Generate()))
	})
})
