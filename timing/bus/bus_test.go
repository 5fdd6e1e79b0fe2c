package bus_test

import (
	"errors"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"go.uber.org/mock/gomock"

	"github.com/sarchlab/vmsim/timing/bus"
	"github.com/sarchlab/vmsim/timing/clock"
)

var _ = Describe("Bus", func() {
	var (
		mockCtrl *gomock.Controller
		server   *MockServer
		clk      *clock.Clock
		b        *bus.Bus
		icache   *bus.Port
		dcache   *bus.Port
	)

	BeforeEach(func() {
		mockCtrl = gomock.NewController(GinkgoT())
		server = NewMockServer(mockCtrl)

		clk = clock.New(0)
		b = bus.New("MemBus", clk)
		icache = b.ConnectPort("ICache.MemSide")
		dcache = b.ConnectPort("DCache.MemSide")
		b.SetDownstream(server)
	})

	AfterEach(func() {
		mockCtrl.Finish()
	})

	It("should number ports in connection order", func() {
		Expect(icache.ID()).To(Equal(0))
		Expect(dcache.ID()).To(Equal(1))
		Expect(b.Ports()).To(HaveLen(2))
		Expect(dcache.Bus()).To(BeIdenticalTo(b))
	})

	It("should serve a lone transaction without arbitration delay", func() {
		server.EXPECT().Serve(uint64(0x40), false).Return(uint64(65), nil)

		dcache.Submit(bus.NewTransaction("r1", 0x40, false, false))
		grants, err := b.Arbitrate()

		Expect(err).NotTo(HaveOccurred())
		Expect(grants).To(HaveLen(1))
		Expect(grants[0].ArbitrationDelay).To(Equal(uint64(0)))
		Expect(grants[0].Latency).To(Equal(uint64(65)))
		Expect(b.Pending()).To(Equal(0))
	})

	It("should grant the lowest port first and delay each contender by one tick", func() {
		gomock.InOrder(
			server.EXPECT().Serve(uint64(0x1000), false).Return(uint64(10), nil),
			server.EXPECT().Serve(uint64(0x2000), false).Return(uint64(10), nil),
			server.EXPECT().Serve(uint64(0x3000), true).Return(uint64(10), nil),
		)

		dcache.Submit(bus.NewTransaction("d", 0x2000, false, false))
		dcache.Submit(bus.NewTransaction("d", 0x3000, true, true))
		icache.Submit(bus.NewTransaction("i", 0x1000, false, false))

		grants, err := b.Arbitrate()
		Expect(err).NotTo(HaveOccurred())
		Expect(grants).To(HaveLen(3))

		Expect(grants[0].Txn.PortID).To(Equal(0))
		Expect(grants[1].Txn.Addr).To(Equal(uint64(0x2000)))
		Expect(grants[2].Txn.Writeback).To(BeTrue())

		Expect(grants[0].Latency).To(Equal(uint64(10)))
		Expect(grants[1].Latency).To(Equal(uint64(11)))
		Expect(grants[2].Latency).To(Equal(uint64(12)))

		stats := b.Stats()
		Expect(stats.Transactions).To(Equal(uint64(3)))
		Expect(stats.Writebacks).To(Equal(uint64(1)))
		Expect(stats.Contended).To(Equal(uint64(2)))
		Expect(stats.ArbitrationTicks).To(Equal(uint64(3)))
	})

	It("should start a new arbitration window on a new tick", func() {
		server.EXPECT().Serve(gomock.Any(), gomock.Any()).Return(uint64(5), nil).Times(2)

		icache.Submit(bus.NewTransaction("a", 0x0, false, false))
		_, err := b.Arbitrate()
		Expect(err).NotTo(HaveOccurred())

		clk.Advance(5)
		icache.Submit(bus.NewTransaction("b", 0x40, false, false))
		grants, err := b.Arbitrate()
		Expect(err).NotTo(HaveOccurred())
		Expect(grants[0].ArbitrationDelay).To(Equal(uint64(0)))
	})

	It("should record the submission tick", func() {
		server.EXPECT().Serve(gomock.Any(), gomock.Any()).Return(uint64(1), nil)

		clk.Advance(7)
		icache.Submit(bus.NewTransaction("a", 0x0, false, false))
		grants, _ := b.Arbitrate()
		Expect(grants[0].Txn.SubmitTick).To(Equal(uint64(7)))
	})

	Describe("Route", func() {
		It("should count transactions already granted in the same tick", func() {
			server.EXPECT().Serve(gomock.Any(), gomock.Any()).Return(uint64(3), nil).Times(2)

			first, err := b.Route(bus.NewTransaction("a", 0x0, false, false), 1)
			Expect(err).NotTo(HaveOccurred())
			Expect(first.Latency).To(Equal(uint64(3)))

			second, err := b.Route(bus.NewTransaction("b", 0x40, false, false), 0)
			Expect(err).NotTo(HaveOccurred())
			Expect(second.Latency).To(Equal(uint64(4)))
		})

		It("should reject unknown ports", func() {
			_, err := b.Route(bus.NewTransaction("a", 0x0, false, false), 5)
			Expect(err).To(MatchError(bus.ErrUnknownPort))
		})
	})

	Describe("Failures", func() {
		It("should fail without downstream", func() {
			lone := bus.New("Lone", clk)
			p := lone.ConnectPort("p")
			p.Submit(bus.NewTransaction("a", 0x0, false, false))

			_, err := lone.Arbitrate()
			Expect(err).To(MatchError(bus.ErrNoDownstream))
		})

		It("should return the grants made before a downstream error", func() {
			failure := errors.New("boom")
			gomock.InOrder(
				server.EXPECT().Serve(uint64(0x0), false).Return(uint64(2), nil),
				server.EXPECT().Serve(uint64(0x40), false).Return(uint64(0), failure),
			)

			icache.Submit(bus.NewTransaction("a", 0x0, false, false))
			dcache.Submit(bus.NewTransaction("b", 0x40, false, false))
			dcache.Submit(bus.NewTransaction("c", 0x80, false, false))

			grants, err := b.Arbitrate()
			Expect(err).To(MatchError(failure))
			Expect(grants).To(HaveLen(1))
			Expect(b.Pending()).To(Equal(0))
		})
	})
})
