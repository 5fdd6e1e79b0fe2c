package loader_test

import (
	"os"
	"path/filepath"
	"strings"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/sarchlab/vmsim/loader"
	"github.com/sarchlab/vmsim/timing/mem"
)

var _ = Describe("Trace", func() {
	It("should parse kinds and addresses", func() {
		t, err := loader.Parse(strings.NewReader(`
# kind address
I 0x400000
R 0x7fff0010   # stack
W 4096
load 0x10
`))
		Expect(err).NotTo(HaveOccurred())
		Expect(t.Len()).To(Equal(4))

		first, ok := t.Next()
		Expect(ok).To(BeTrue())
		Expect(first.Kind).To(Equal(mem.InstFetch))
		Expect(first.VAddr).To(Equal(uint64(0x400000)))
		Expect(first.ID).NotTo(BeEmpty())

		_, _ = t.Next()
		third, _ := t.Next()
		Expect(third.Kind).To(Equal(mem.Write))
		Expect(third.VAddr).To(Equal(uint64(4096)))
		Expect(t.Remaining()).To(Equal(1))

		fourth, _ := t.Next()
		Expect(fourth.Kind).To(Equal(mem.Read))

		_, ok = t.Next()
		Expect(ok).To(BeFalse())
	})

	It("should report the failing line", func() {
		_, err := loader.Parse(strings.NewReader("I 0x0\nX 0x10\n"))
		Expect(err).To(MatchError(ContainSubstring("line 2")))

		_, err = loader.Parse(strings.NewReader("R zzz\n"))
		Expect(err).To(MatchError(ContainSubstring("invalid address")))

		_, err = loader.Parse(strings.NewReader("R 0x0 extra\n"))
		Expect(err).To(MatchError(ContainSubstring("line 1")))
	})

	It("should load trace files", func() {
		path := filepath.Join(GinkgoT().TempDir(), "app.trace")
		Expect(os.WriteFile(path, []byte("I 0x0\nI 0x4\n"), 0644)).To(Succeed())

		t, err := loader.Load(path)
		Expect(err).NotTo(HaveOccurred())
		Expect(t.Path).To(Equal(path))
		Expect(t.Len()).To(Equal(2))
	})

	It("should fail on missing files", func() {
		_, err := loader.Load(filepath.Join(GinkgoT().TempDir(), "none.trace"))
		Expect(err).To(HaveOccurred())
	})
})
