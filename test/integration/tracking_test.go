//go:build integration

package integration

import (
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/eliteGoblin/focusd/focustrack/internal/rules"
)

var _ = Describe("Activity tracking", func() {
	var h *harness

	BeforeEach(func() {
		h = newHarness(t0)
		_, err := h.classifier.Seed(h.ctx, rules.NewRegistry())
		Expect(err).NotTo(HaveOccurred())
	})

	Describe("sampling", func() {
		It("records one interval per focus span without overlap", func() {
			h.probe.Focus("code", "main.go")
			h.sampleNow()
			h.tickFor(10 * time.Minute)

			h.probe.Focus("firefox", "docs")
			h.tickFor(20 * time.Minute)

			h.probe.Blank()
			h.tickFor(tick)

			got := h.activity(t0)
			Expect(got).To(HaveLen(2))
			Expect(got[0].AppName).To(Equal("code"))
			Expect(got[0].Start).To(BeTemporally("==", t0))
			Expect(got[0].End).To(BeTemporally("==", t0.Add(10*time.Minute+tick)))
			Expect(got[1].AppName).To(Equal("firefox"))
			Expect(got[1].Start).To(BeTemporally("==", got[0].End))
			Expect(got[1].End).To(BeTemporally("==", t0.Add(30*time.Minute)))

			for i := 1; i < len(got); i++ {
				Expect(got[i].Start).NotTo(BeTemporally("<", got[i-1].End))
			}

			// The user was active from t0 to the last focused sample at t0+30m.
			summary, err := h.aggregator.Aggregate(h.ctx, t0)
			Expect(err).NotTo(HaveOccurred())
			Expect(summary.TotalWorkTime).To(Equal(30 * time.Minute))
			Expect(summary.TotalWorkTime).To(Equal(got[0].Duration() + got[1].Duration()))
		})

		It("ends the interval at the last input when the user goes idle", func() {
			h.probe.Focus("code", "main.go")
			h.sampleNow()
			h.tickFor(10 * time.Minute)

			h.probe.Idle(5 * time.Minute)
			h.tickFor(tick)

			got := h.activity(t0)
			Expect(got).To(HaveLen(1))
			Expect(got[0].End).To(BeTemporally("==", t0.Add(10*time.Minute+tick-5*time.Minute)))
		})

		It("classifies intervals with the seeded rules", func() {
			h.probe.Focus("code", "main.go")
			h.sampleNow()
			h.tickFor(time.Minute)
			h.probe.Blank()
			h.tickFor(tick)

			got := h.activity(t0)
			Expect(got).To(HaveLen(1))
			Expect(got[0].CategoryID).NotTo(BeNil())
			Expect(got[0].ProductivityScore).To(BeNumerically("~", 0.9))
		})
	})

	Describe("crash recovery", func() {
		It("persists the checkpointed interval exactly once", func() {
			h.probe.Focus("code", "main.go")
			h.sampleNow()
			h.tickFor(2 * time.Minute)
			Expect(h.sampler.Checkpoint(h.ctx)).To(Succeed())

			// The process dies without closing the interval.
			Expect(h.store.Close()).To(Succeed())
			h.clock.Advance(time.Hour)
			h.open()

			recovered, err := h.sampler.Recover(h.ctx)
			Expect(err).NotTo(HaveOccurred())
			Expect(recovered).To(BeTrue())

			got := h.activity(t0)
			Expect(got).To(HaveLen(1))
			Expect(got[0].End).To(BeTemporally("==", t0.Add(2*time.Minute)))

			recovered, err = h.sampler.Recover(h.ctx)
			Expect(err).NotTo(HaveOccurred())
			Expect(recovered).To(BeFalse())
			Expect(h.activity(t0)).To(HaveLen(1))
		})
	})

	Describe("daily aggregation", func() {
		It("is idempotent", func() {
			h.insert("code", t0, 30*time.Minute)

			first, err := h.aggregator.Aggregate(h.ctx, t0)
			Expect(err).NotTo(HaveOccurred())
			stored, err := h.store.GetSummary(h.ctx, first.Date)
			Expect(err).NotTo(HaveOccurred())

			h.clock.Advance(time.Minute)
			second, err := h.aggregator.Aggregate(h.ctx, t0)
			Expect(err).NotTo(HaveOccurred())
			Expect(second.SameValues(first)).To(BeTrue())

			again, err := h.store.GetSummary(h.ctx, first.Date)
			Expect(err).NotTo(HaveOccurred())
			Expect(again.UpdatedAt).To(BeTemporally("==", stored.UpdatedAt))
		})

		It("splits an interval across midnight", func() {
			midnight := time.Date(2024, 3, 12, 0, 0, 0, 0, time.UTC)
			h.insert("code", midnight.Add(-10*time.Minute), 20*time.Minute)

			before, err := h.aggregator.Aggregate(h.ctx, midnight.Add(-time.Hour))
			Expect(err).NotTo(HaveOccurred())
			after, err := h.aggregator.Aggregate(h.ctx, midnight)
			Expect(err).NotTo(HaveOccurred())

			Expect(before.TotalWorkTime).To(Equal(10 * time.Minute))
			Expect(after.TotalWorkTime).To(Equal(10 * time.Minute))
		})

		It("picks the app with the most time", func() {
			h.insert("AppB", t0, 25*time.Minute)
			h.insert("AppA", t0.Add(time.Hour), 40*time.Minute)

			summary, err := h.aggregator.Aggregate(h.ctx, t0)
			Expect(err).NotTo(HaveOccurred())
			Expect(summary.MostUsedApp).To(Equal("AppA"))
			Expect(summary.TotalWorkTime).To(Equal(65 * time.Minute))
		})
	})

	Describe("category deletion", func() {
		It("keeps intervals and clears their category", func() {
			h.probe.Focus("code", "main.go")
			h.sampleNow()
			h.tickFor(time.Minute)
			h.probe.Blank()
			h.tickFor(tick)
			Expect(h.activity(t0)[0].CategoryID).NotTo(BeNil())

			Expect(h.classifier.DeleteCategory(h.ctx, "Development")).To(Succeed())

			got := h.activity(t0)
			Expect(got).To(HaveLen(1))
			Expect(got[0].CategoryID).To(BeNil())
			Expect(h.classifier.Classify("code", "").CategoryID).To(BeNil())
		})
	})
})
