//go:build integration

package integration

import (
	"context"
	"os"
	"path/filepath"
	"time"

	"github.com/jonboulle/clockwork"
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"go.uber.org/zap"

	"github.com/eliteGoblin/focusd/focustrack/internal/domain"
	"github.com/eliteGoblin/focusd/focustrack/internal/infra"
)

var _ = Describe("Encrypted storage", func() {
	var (
		ctx     context.Context
		dataDir string
		clock   clockwork.FakeClock
	)

	BeforeEach(func() {
		ctx = context.Background()
		clock = clockwork.NewFakeClockAt(t0)
		tmpDir, err := os.MkdirTemp("", "focustrack-encrypted-*")
		Expect(err).NotTo(HaveOccurred())
		DeferCleanup(os.RemoveAll, tmpDir)
		dataDir = filepath.Join(tmpDir, "data")
	})

	It("generates a key on first open and reuses it", func() {
		store, err := infra.OpenDataStore(ctx, dataDir, true, clock, zap.NewNop())
		Expect(err).NotTo(HaveOccurred())
		_, err = store.InsertInterval(ctx, domain.ActivityInterval{AppName: "code", Start: t0, End: t0.Add(time.Minute)})
		Expect(err).NotTo(HaveOccurred())
		Expect(store.Close()).To(Succeed())

		info, err := os.Stat(infra.NewFileKeyProvider(dataDir).Path())
		Expect(err).NotTo(HaveOccurred())
		Expect(info.Mode().Perm()).To(Equal(os.FileMode(0600)))

		reopened, err := infra.OpenDataStore(ctx, dataDir, true, clock, zap.NewNop())
		Expect(err).NotTo(HaveOccurred())
		defer reopened.Close()
		got, err := reopened.ListActivity(ctx, domain.TimeRange{From: t0, To: t0.Add(time.Hour)})
		Expect(err).NotTo(HaveOccurred())
		Expect(got).To(HaveLen(1))
	})

	It("cannot be read without the key", func() {
		store, err := infra.OpenDataStore(ctx, dataDir, true, clock, zap.NewNop())
		Expect(err).NotTo(HaveOccurred())
		Expect(store.Close()).To(Succeed())

		_, err = infra.OpenStore(ctx, infra.StoreOptions{Path: filepath.Join(dataDir, infra.DatabaseName), Clock: clock})
		Expect(err).To(HaveOccurred())
	})

	It("keeps backups encrypted and restorable", func() {
		store, err := infra.OpenDataStore(ctx, dataDir, true, clock, zap.NewNop())
		Expect(err).NotTo(HaveOccurred())
		_, err = store.InsertInterval(ctx, domain.ActivityInterval{AppName: "code", Start: t0, End: t0.Add(time.Minute)})
		Expect(err).NotTo(HaveOccurred())

		bm := infra.NewBackupManager(store, filepath.Join(dataDir, "backups"), 2, clock, zap.NewNop())
		record, err := bm.Backup(ctx)
		Expect(err).NotTo(HaveOccurred())
		Expect(bm.Verify(*record)).To(Succeed())

		_, err = store.InsertInterval(ctx, domain.ActivityInterval{AppName: "firefox", Start: t0.Add(time.Hour), End: t0.Add(2 * time.Hour)})
		Expect(err).NotTo(HaveOccurred())
		dbPath := store.Path()
		Expect(store.Close()).To(Succeed())

		Expect(bm.Restore(*record, dbPath)).To(Succeed())

		restored, err := infra.OpenDataStore(ctx, dataDir, true, clock, zap.NewNop())
		Expect(err).NotTo(HaveOccurred())
		defer restored.Close()
		got, err := restored.ListActivity(ctx, domain.TimeRange{From: t0, To: t0.Add(24 * time.Hour)})
		Expect(err).NotTo(HaveOccurred())
		Expect(got).To(HaveLen(1))
		Expect(got[0].AppName).To(Equal("code"))
	})
})
