package clock_test

import (
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"github.com/sarchlab/akita/v4/sim"

	"github.com/sarchlab/vmsim/timing/clock"
)

var _ = Describe("Clock", func() {
	var clk *clock.Clock

	BeforeEach(func() {
		clk = clock.New(2 * sim.GHz)
	})

	It("should start at tick 0", func() {
		Expect(clk.Now()).To(Equal(uint64(0)))
	})

	It("should default to 2GHz", func() {
		Expect(clock.New(0).Freq()).To(Equal(clock.DefaultFreq))
	})

	It("should advance", func() {
		Expect(clk.Advance(3)).To(Equal(uint64(3)))
		Expect(clk.Advance(4)).To(Equal(uint64(7)))
	})

	It("should never move backwards", func() {
		clk.AdvanceTo(100)
		Expect(clk.AdvanceTo(50)).To(Equal(uint64(100)))
		Expect(clk.AdvanceTo(120)).To(Equal(uint64(120)))
	})

	It("should convert ticks to seconds", func() {
		clk.Advance(2_000_000_000)
		Expect(clk.Seconds()).To(BeNumerically("~", 1.0, 1e-12))
	})

	It("should round nanoseconds up to whole ticks", func() {
		Expect(clk.TicksFromNanoseconds(32.5)).To(Equal(uint64(65)))
		Expect(clk.TicksFromNanoseconds(1.2)).To(Equal(uint64(3)))
		Expect(clock.TicksFromNanoseconds(sim.GHz, 0)).To(Equal(uint64(0)))
	})
})
