package monitoring_test

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/sarchlab/vmsim/monitoring"
	"github.com/sarchlab/vmsim/timing/config"
	"github.com/sarchlab/vmsim/timing/driver"
	"github.com/sarchlab/vmsim/timing/mem"
	"github.com/sarchlab/vmsim/timing/stream"
)

var _ = Describe("Monitor", func() {
	var (
		m      *monitoring.Monitor
		server *httptest.Server
	)

	BeforeEach(func() {
		m = monitoring.NewMonitor().WithBudget(1_000_000).WithUpdateInterval(1)
		server = httptest.NewServer(m.Router())
	})

	AfterEach(func() {
		server.Close()
	})

	run := func(n int) {
		sys, err := driver.NewSystem(config.Default())
		Expect(err).NotTo(HaveOccurred())

		d := driver.New(sys, stream.Sequential(mem.Read, 0, 64, n),
			driver.WithTickBudget(1_000_000))
		d.AcceptHook(m)

		_, err = d.Run()
		Expect(err).NotTo(HaveOccurred())
	}

	get := func(path string, v any) int {
		rsp, err := http.Get(server.URL + path)
		Expect(err).NotTo(HaveOccurred())
		defer rsp.Body.Close()

		if v != nil && rsp.StatusCode == http.StatusOK {
			Expect(json.NewDecoder(rsp.Body).Decode(v)).To(Succeed())
		}

		return rsp.StatusCode
	}

	It("should report the configuring state before the run", func() {
		var now struct {
			Tick   uint64 `json:"tick"`
			State  string `json:"state"`
			Budget uint64 `json:"budget"`
		}

		Expect(get("/api/now", &now)).To(Equal(http.StatusOK))
		Expect(now.State).To(Equal("Configuring"))
		Expect(now.Budget).To(Equal(uint64(1_000_000)))
	})

	It("should follow the driver", func() {
		run(4)

		s := m.Snapshot()
		Expect(s.State).To(Equal("Stopped"))
		Expect(s.Stats.Requests).To(Equal(uint64(4)))
		Expect(s.Report).NotTo(BeNil())
		Expect(s.Report.Cause).To(Equal(driver.CauseStreamExhausted))
		Expect(s.Tick).To(Equal(s.Report.StoppingTick))
	})

	It("should serve the statistics of a component", func() {
		run(4)

		var dcache struct {
			Misses uint64
		}
		Expect(get("/api/component/dcache", &dcache)).To(Equal(http.StatusOK))
		Expect(dcache.Misses).To(Equal(uint64(4)))

		Expect(get("/api/component/l3", nil)).To(Equal(http.StatusNotFound))
	})

	It("should serve a single field of a component", func() {
		run(4)

		path := "/api/field/" + url.PathEscape(`{"comp_name":"dcache","field_name":"Misses"}`)
		Expect(get(path, nil)).To(Equal(http.StatusOK))

		path = "/api/field/" + url.PathEscape(`{"comp_name":"l3"}`)
		Expect(get(path, nil)).To(Equal(http.StatusNotFound))

		Expect(get("/api/field/not-json", nil)).To(Equal(http.StatusBadRequest))
	})

	It("should serve the whole snapshot", func() {
		run(2)

		var s monitoring.Snapshot
		Expect(get("/api/stats", &s)).To(Equal(http.StatusOK))
		Expect(s.Stats.MemCtrl.Reads).To(Equal(uint64(2)))
	})

	It("should only allow GET", func() {
		rsp, err := http.Post(server.URL+"/api/now", "application/json", nil)
		Expect(err).NotTo(HaveOccurred())
		defer rsp.Body.Close()

		Expect(rsp.StatusCode).To(Equal(http.StatusMethodNotAllowed))
	})
})
