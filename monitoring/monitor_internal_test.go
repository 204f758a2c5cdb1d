package monitoring

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"go.uber.org/mock/gomock"

	"github.com/sarchlab/copyengine/ring"
	"github.com/sarchlab/copyengine/sim"
)

type sampleComponent struct {
	*sim.ComponentBase

	Level   int
	tickers int
}

func (c *sampleComponent) Handle(_ sim.Event) error {
	return nil
}

func (c *sampleComponent) TickLater() {
	c.tickers++
}

type idleComponent struct {
	*sim.ComponentBase
}

func (c *idleComponent) Handle(_ sim.Event) error {
	return nil
}

var _ = Describe("Monitor", func() {
	var (
		mockCtrl *gomock.Controller
		m        *Monitor
		comp     *sampleComponent
	)

	get := func(path string) *httptest.ResponseRecorder {
		rec := httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodGet, path, nil)
		m.Router().ServeHTTP(rec, req)

		return rec
	}

	decode := func(rec *httptest.ResponseRecorder, v any) {
		Expect(rec.Code).To(Equal(http.StatusOK))
		Expect(json.Unmarshal(rec.Body.Bytes(), v)).To(Succeed())
	}

	BeforeEach(func() {
		mockCtrl = gomock.NewController(GinkgoT())
		m = NewMonitor()

		comp = &sampleComponent{
			ComponentBase: sim.NewComponentBase("GPU.CE[0]"),
			Level:         3,
		}
		m.RegisterComponent(comp)
		m.RegisterComponent(&idleComponent{
			ComponentBase: sim.NewComponentBase("GPU.FrontEnd"),
		})
	})

	AfterEach(func() {
		mockCtrl.Finish()
	})

	It("should list components", func() {
		var names []string
		decode(get("/api/components"), &names)

		Expect(names).To(Equal([]string{"GPU.CE[0]", "GPU.FrontEnd"}))
	})

	It("should serialize a component", func() {
		rec := get("/api/component/GPU.CE[0]")

		Expect(rec.Code).To(Equal(http.StatusOK))
		Expect(rec.Body.Len()).To(BeNumerically(">", 0))
	})

	It("should report unknown components", func() {
		Expect(get("/api/component/GPU.CE[9]").Code).
			To(Equal(http.StatusNotFound))
		Expect(get("/api/tick/GPU.CE[9]").Code).
			To(Equal(http.StatusNotFound))
	})

	It("should tick ticking components only", func() {
		Expect(get("/api/tick/GPU.CE[0]").Code).To(Equal(http.StatusOK))
		Expect(comp.tickers).To(Equal(1))

		Expect(get("/api/tick/GPU.FrontEnd").Code).
			To(Equal(http.StatusMethodNotAllowed))
	})

	It("should report the time of the engine", func() {
		Expect(get("/api/now").Code).To(Equal(http.StatusNotFound))

		m.RegisterEngine(sim.NewSerialEngine())

		var rsp map[string]float64
		decode(get("/api/now"), &rsp)
		Expect(rsp).To(HaveKeyWithValue("now", 0.0))
	})

	Context("buffers", func() {
		BeforeEach(func() {
			small := ring.NewRing[int]("Scrub.Ring", 4)
			large := ring.NewRing[int]("Other.Ring", 10)

			for i := 0; i < 3; i++ {
				small.Push(i)
			}

			for i := 0; i < 5; i++ {
				large.Push(i)
			}

			m.RegisterBuffer(large)
			m.RegisterBuffer(small)
		})

		It("should sort by fill percentage", func() {
			var rsp []bufferRsp
			decode(get("/api/hangdetector/buffers"), &rsp)

			Expect(rsp).To(Equal([]bufferRsp{
				{Buffer: "Scrub.Ring", Level: 3, Cap: 4},
				{Buffer: "Other.Ring", Level: 5, Cap: 10},
			}))
		})

		It("should sort by level and page", func() {
			var rsp []bufferRsp
			decode(get("/api/hangdetector/buffers?sort=level&limit=1"), &rsp)
			Expect(rsp).To(HaveLen(1))
			Expect(rsp[0].Buffer).To(Equal("Other.Ring"))

			decode(get("/api/hangdetector/buffers?sort=level&offset=5"), &rsp)
			Expect(rsp).To(BeEmpty())
		})

		It("should reject bad parameters", func() {
			Expect(get("/api/hangdetector/buffers?sort=name").Code).
				To(Equal(http.StatusBadRequest))
			Expect(get("/api/hangdetector/buffers?limit=x").Code).
				To(Equal(http.StatusBadRequest))
			Expect(get("/api/hangdetector/buffers?offset=-1").Code).
				To(Equal(http.StatusBadRequest))
		})
	})

	It("should report submitter progress", func() {
		ok := NewMockSubmitter(mockCtrl)
		ok.EXPECT().Name().Return("GPU.CeUtils").AnyTimes()
		ok.EXPECT().UpdateProgress().Return(uint64(7), nil)
		ok.EXPECT().LastSubmitted().Return(uint64(9))
		ok.EXPECT().Paused().Return(false)

		broken := NewMockSubmitter(mockCtrl)
		broken.EXPECT().Name().Return("GPU.Sec2Utils").AnyTimes()
		broken.EXPECT().UpdateProgress().Return(uint64(0), errors.New("gone"))
		broken.EXPECT().LastSubmitted().Return(uint64(1))
		broken.EXPECT().Paused().Return(true)

		m.RegisterSubmitter(ok)
		m.RegisterSubmitter(broken)

		var rsp []submitterRsp
		decode(get("/api/submitters"), &rsp)

		Expect(rsp).To(Equal([]submitterRsp{
			{Name: "GPU.CeUtils", LastSubmitted: 9, LastCompleted: 7},
			{Name: "GPU.Sec2Utils", LastSubmitted: 1, Paused: true, Error: "gone"},
		}))
	})

	It("should list progress bars until they complete", func() {
		bar := m.CreateProgressBar("Scrub", 0)
		bar.IncrementTotal(8)
		bar.IncrementInProgress(5)
		bar.MoveInProgressToFinished(2)

		var rsp []map[string]any
		decode(get("/api/progress"), &rsp)

		Expect(rsp).To(HaveLen(1))
		Expect(rsp[0]).To(HaveKeyWithValue("name", "Scrub"))
		Expect(rsp[0]).To(HaveKeyWithValue("total", 8.0))
		Expect(rsp[0]).To(HaveKeyWithValue("finished", 2.0))
		Expect(rsp[0]).To(HaveKeyWithValue("in_progress", 3.0))

		m.CompleteProgressBar(bar)
		decode(get("/api/progress"), &rsp)
		Expect(rsp).To(BeEmpty())
	})

	It("should report the resources of the process", func() {
		var rsp resourceRsp
		decode(get("/api/resource"), &rsp)

		Expect(rsp.MemorySize).To(BeNumerically(">", 0))
	})
})
