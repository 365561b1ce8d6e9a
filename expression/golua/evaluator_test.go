package golua_test

import (
	"context"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"github.com/rite-engine/rite/expression"
	. "github.com/rite-engine/rite/expression/golua"
)

var _ = Describe("type Evaluator", func() {
	var (
		ctx       context.Context
		cancel    context.CancelFunc
		evaluator Evaluator
	)

	BeforeEach(func() {
		ctx, cancel = context.WithTimeout(context.Background(), 3*time.Second)
	})

	AfterEach(func() {
		cancel()
	})

	Describe("func Evaluate()", func() {
		It("evaluates boolean expressions", func() {
			v, err := evaluator.Evaluate(ctx, "1 < 2", nil)

			Expect(err).ShouldNot(HaveOccurred())
			Expect(v).To(Equal(true))
		})

		It("evaluates arithmetic", func() {
			v, err := evaluator.Evaluate(ctx, "6 * 7", nil)

			Expect(err).ShouldNot(HaveOccurred())
			Expect(v).To(Equal(42.0))
		})

		It("evaluates string expressions", func() {
			v, err := evaluator.Evaluate(ctx, `"pre" .. "paid"`, nil)

			Expect(err).ShouldNot(HaveOccurred())
			Expect(v).To(Equal("prepaid"))
		})

		It("exposes scope fields as globals", func() {
			v, err := evaluator.Evaluate(
				ctx,
				"total > 100 and express",
				map[string]any{
					"total":   150.0,
					"express": true,
				},
			)

			Expect(err).ShouldNot(HaveOccurred())
			Expect(v).To(Equal(true))
		})

		It("exposes nested maps as tables", func() {
			v, err := evaluator.Evaluate(
				ctx,
				`order.customer.tier == "gold"`,
				map[string]any{
					"order": map[string]any{
						"customer": map[string]any{
							"tier": "gold",
						},
					},
				},
			)

			Expect(err).ShouldNot(HaveOccurred())
			Expect(v).To(Equal(true))
		})

		It("exposes slices as one-based arrays", func() {
			v, err := evaluator.Evaluate(
				ctx,
				"items[1]",
				map[string]any{
					"items": []any{"first", "second"},
				},
			)

			Expect(err).ShouldNot(HaveOccurred())
			Expect(v).To(Equal("first"))
		})

		It("returns tables as maps", func() {
			v, err := evaluator.Evaluate(ctx, `{ amount = 5 }`, nil)

			Expect(err).ShouldNot(HaveOccurred())
			Expect(v).To(Equal(map[string]any{"amount": 5.0}))
		})

		It("reports a missing field as nil", func() {
			v, err := evaluator.Evaluate(ctx, "missing", nil)

			Expect(err).ShouldNot(HaveOccurred())
			Expect(v).To(BeNil())
			Expect(expression.Truthy(v)).To(BeFalse())
		})

		It("returns an error for a malformed expression", func() {
			_, err := evaluator.Evaluate(ctx, "1 +", nil)
			Expect(err).Should(HaveOccurred())
		})

		It("does not leak state between evaluations", func() {
			_, err := evaluator.Evaluate(ctx, "1", map[string]any{"leak": true})
			Expect(err).ShouldNot(HaveOccurred())

			v, err := evaluator.Evaluate(ctx, "leak", nil)
			Expect(err).ShouldNot(HaveOccurred())
			Expect(v).To(BeNil())
		})
	})
})

var _ = Describe("func Truthy()", func() {
	It("treats nil, false, zero and empty strings as falsy", func() {
		Expect(expression.Truthy(nil)).To(BeFalse())
		Expect(expression.Truthy(false)).To(BeFalse())
		Expect(expression.Truthy(0)).To(BeFalse())
		Expect(expression.Truthy(0.0)).To(BeFalse())
		Expect(expression.Truthy("")).To(BeFalse())
	})

	It("treats everything else as truthy", func() {
		Expect(expression.Truthy(true)).To(BeTrue())
		Expect(expression.Truthy(1.0)).To(BeTrue())
		Expect(expression.Truthy("no")).To(BeTrue())
		Expect(expression.Truthy(map[string]any{})).To(BeTrue())
	})
})
