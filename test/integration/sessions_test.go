//go:build integration

package integration

import (
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/eliteGoblin/focusd/focustrack/internal/domain"
)

var _ = Describe("Focus sessions", func() {
	var h *harness

	BeforeEach(func() {
		h = newHarness(t0)
	})

	It("excludes paused time from a completed session", func() {
		s, err := h.sessions.Start(h.ctx, 25*time.Minute, nil)
		Expect(err).NotTo(HaveOccurred())

		h.clock.Advance(10 * time.Minute)
		_, err = h.sessions.Pause(h.ctx)
		Expect(err).NotTo(HaveOccurred())
		h.clock.Advance(30 * time.Minute)
		_, err = h.sessions.Resume(h.ctx)
		Expect(err).NotTo(HaveOccurred())
		h.clock.Advance(12 * time.Minute)

		done, err := h.sessions.Complete(h.ctx)
		Expect(err).NotTo(HaveOccurred())
		Expect(done.Elapsed).To(Equal(22 * time.Minute))

		stored, err := h.store.GetSession(h.ctx, s.ID)
		Expect(err).NotTo(HaveOccurred())
		Expect(stored.Status).To(Equal(domain.StatusCompleted))
		Expect(stored.Elapsed).To(Equal(22 * time.Minute))
		Expect(*stored.End).To(BeTemporally("==", t0.Add(52*time.Minute)))

		summary, err := h.aggregator.Aggregate(h.ctx, t0)
		Expect(err).NotTo(HaveOccurred())
		Expect(summary.CompletedPomodoros).To(Equal(1))
		Expect(summary.InterruptedPomodoros).To(Equal(0))
	})

	It("rejects pause while idle without writing a row", func() {
		_, err := h.sessions.Pause(h.ctx)
		Expect(err).To(MatchError(domain.ErrInvalidTransition))
		Expect(err.Error()).To(Equal("cannot pause session: current state is idle"))

		sessions, err := h.store.ListSessions(h.ctx, h.day(t0))
		Expect(err).NotTo(HaveOccurred())
		Expect(sessions).To(BeEmpty())
	})

	It("rejects a second start and leaves the running session untouched", func() {
		first, err := h.sessions.Start(h.ctx, 25*time.Minute, nil)
		Expect(err).NotTo(HaveOccurred())

		h.clock.Advance(time.Minute)
		_, err = h.sessions.Start(h.ctx, 50*time.Minute, nil)
		Expect(err).To(MatchError(domain.ErrInvalidTransition))

		stored, err := h.store.GetSession(h.ctx, first.ID)
		Expect(err).NotTo(HaveOccurred())
		Expect(stored.Status).To(Equal(domain.StatusRunning))
		Expect(stored.Planned).To(Equal(25 * time.Minute))
		Expect(stored.Start).To(BeTemporally("==", t0))
	})

	It("refuses to complete a session that ran too short", func() {
		_, err := h.sessions.Start(h.ctx, 25*time.Minute, nil)
		Expect(err).NotTo(HaveOccurred())
		h.clock.Advance(5 * time.Minute)

		_, err = h.sessions.Complete(h.ctx)
		Expect(err).To(MatchError(domain.ErrTooShort))

		interrupted, err := h.sessions.Interrupt(h.ctx, "phone call")
		Expect(err).NotTo(HaveOccurred())
		Expect(interrupted.Status).To(Equal(domain.StatusInterrupted))
		Expect(interrupted.Notes).To(Equal("phone call"))
	})

	It("survives a process restart", func() {
		s, err := h.sessions.Start(h.ctx, 25*time.Minute, nil)
		Expect(err).NotTo(HaveOccurred())
		Expect(h.sessions.AttachTag(h.ctx, "writing")).To(Succeed())
		h.clock.Advance(8 * time.Minute)
		_, err = h.sessions.Pause(h.ctx)
		Expect(err).NotTo(HaveOccurred())

		Expect(h.store.Close()).To(Succeed())
		h.clock.Advance(time.Hour)
		h.open()

		current, err := h.sessions.Current(h.ctx)
		Expect(err).NotTo(HaveOccurred())
		Expect(current).NotTo(BeNil())
		Expect(current.ID).To(Equal(s.ID))
		Expect(current.Status).To(Equal(domain.StatusPaused))
		Expect(current.ElapsedAt(h.clock.Now())).To(Equal(8 * time.Minute))
		Expect(current.Tags).To(ConsistOf("writing"))
	})
})
