package types

import (
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
)

var _ = Describe("Function", func() {
	It("should reject duplicate slot names", func() {
		_, err := NewFunction(FunctionSpec{
			Name:         "dup",
			ExecutorType: ExecutorTypePython,
			Inputs: []FunctionInput{
				{Name: "in", Description: "first"},
				{Name: "in", Description: "second"},
			},
		}, "alice")
		Expect(err).To(HaveOccurred())
	})

	It("should expose declared slot names", func() {
		function := mockFunction(FunctionSpec{
			Name:         "two-slots",
			ExecutorType: ExecutorTypePython,
			Inputs:       []FunctionInput{{Name: "left"}, {Name: "right"}},
			Outputs:      []FunctionOutput{{Name: "merged"}},
		}, "alice")

		Expect(function.InputNames()).To(ConsistOf("left", "right"))
		Expect(function.OutputNames()).To(ConsistOf("merged"))
	})

	Describe("Accessible", func() {
		It("should open public functions to everyone", func() {
			function := mockFunction(FunctionSpec{Name: "pub", ExecutorType: ExecutorTypePython, Public: true}, "alice")

			Expect(function.Accessible("alice")).To(BeTrue())
			Expect(function.Accessible("mallory")).To(BeTrue())
		})

		It("should restrict private functions to the owner", func() {
			function := mockFunction(FunctionSpec{Name: "priv", ExecutorType: ExecutorTypePython}, "alice")

			Expect(function.Accessible("alice")).To(BeTrue())
			Expect(function.Accessible("mallory")).To(BeFalse())
		})
	})

	Describe("Executor", func() {
		It("should pair engines with the payload types they run", func() {
			Expect(ExecutorMesaPy.Supports(ExecutorTypePython)).To(BeTrue())
			Expect(ExecutorMesaPy.Supports(ExecutorTypeNative)).To(BeFalse())
			Expect(ExecutorBuiltin.Supports(ExecutorTypeNative)).To(BeTrue())
			Expect(ExecutorBuiltin.Supports(ExecutorTypePython)).To(BeFalse())
		})

		It("should reject unknown engines", func() {
			Expect(Executor("jvm").Valid()).To(BeFalse())
			Expect(ExecutorMesaPy.Valid()).To(BeTrue())
		})
	})
})
