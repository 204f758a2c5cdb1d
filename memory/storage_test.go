package memory_test

import (
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/sarchlab/copyengine/memory"
)

var _ = Describe("Storage", func() {
	It("should read and write in single unit", func() {
		storage := memory.NewStorage(4 * memory.KB)
		Expect(storage.Write(0, []byte{1, 2, 3, 4})).To(Succeed())

		res, _ := storage.Read(0, 2)
		Expect(res).To(Equal([]byte{1, 2}))

		res, _ = storage.Read(1, 2)
		Expect(res).To(Equal([]byte{2, 3}))
	})

	It("should read and write across units", func() {
		storage := memory.NewStorage(8 * memory.KB)
		Expect(storage.Write(4094, []byte{1, 2, 3, 4})).To(Succeed())

		res, _ := storage.Read(4094, 4)
		Expect(res).To(Equal([]byte{1, 2, 3, 4}))
	})

	It("should return error if accessing over the capacity", func() {
		storage := memory.NewStorage(4 * memory.KB)
		err := storage.Write(4096, []byte{1})
		Expect(err).To(MatchError(memory.ErrOutOfRange))

		_, err = storage.Read(4095, 2)
		Expect(err).To(MatchError(memory.ErrOutOfRange))
	})

	It("should fill with a pattern", func() {
		storage := memory.NewStorage(16 * memory.KB)
		Expect(storage.Fill(4094, 6, 0xDDCCBBAA)).To(Succeed())

		res, _ := storage.Read(4094, 6)
		Expect(res).To(Equal([]byte{0xAA, 0xBB, 0xCC, 0xDD, 0xAA, 0xBB}))
	})

	It("should zero partial and whole units", func() {
		storage := memory.NewStorage(16 * memory.KB)
		Expect(storage.Fill(0, 3*memory.KB*4, 0xFFFFFFFF)).To(Succeed())

		Expect(storage.Zero(100, 8192)).To(Succeed())

		res, _ := storage.Read(96, 8)
		Expect(res).To(Equal([]byte{0xFF, 0xFF, 0xFF, 0xFF, 0, 0, 0, 0}))

		res, _ = storage.Read(8290, 4)
		Expect(res).To(Equal([]byte{0, 0, 0xFF, 0xFF}))
	})
})
