package infra

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/jonboulle/clockwork"
	"go.uber.org/zap"
)

const (
	manifestName     = "manifest.json"
	backupFilePrefix = "focustrack-"
	backupTimeLayout = "20060102-150405"
)

// BackupRecord describes one database snapshot.
type BackupRecord struct {
	File          string    `json:"file"`
	SHA256        string    `json:"sha256"`
	SizeBytes     int64     `json:"size_bytes"`
	CreatedAt     time.Time `json:"created_at"`
	SchemaVersion int       `json:"schema_version"`
}

// BackupManifest lists snapshots, oldest first.
type BackupManifest struct {
	Backups []BackupRecord `json:"backups"`
}

// BackupManager takes consistent database snapshots with VACUUM INTO,
// records their checksums and keeps the newest maxBackups.
type BackupManager struct {
	store      *Store
	dir        string
	maxBackups int
	clock      clockwork.Clock
	logger     *zap.Logger
}

// NewBackupManager creates a backup manager writing into dir.
func NewBackupManager(store *Store, dir string, maxBackups int, clock clockwork.Clock, logger *zap.Logger) *BackupManager {
	if maxBackups <= 0 {
		maxBackups = 1
	}
	return &BackupManager{
		store:      store,
		dir:        dir,
		maxBackups: maxBackups,
		clock:      clock,
		logger:     logger,
	}
}

// Dir returns the backup directory.
func (bm *BackupManager) Dir() string {
	return bm.dir
}

// Backup writes a new snapshot and prunes old ones.
func (bm *BackupManager) Backup(ctx context.Context) (*BackupRecord, error) {
	if err := os.MkdirAll(bm.dir, 0700); err != nil {
		return nil, fmt.Errorf("failed to create backup directory: %w", err)
	}

	now := bm.clock.Now()
	name := backupFilePrefix + now.UTC().Format(backupTimeLayout) + ".db"
	path := filepath.Join(bm.dir, name)
	// Two backups in the same second would collide.
	if _, err := os.Stat(path); err == nil {
		name = fmt.Sprintf("%s%s-%d.db", backupFilePrefix, now.UTC().Format(backupTimeLayout), now.UnixNano()%1e9)
		path = filepath.Join(bm.dir, name)
	}

	if err := bm.store.BackupTo(ctx, path); err != nil {
		return nil, err
	}

	sha, err := computeSHA256(path)
	if err != nil {
		return nil, fmt.Errorf("failed to compute SHA256: %w", err)
	}
	info, err := os.Stat(path)
	if err != nil {
		return nil, err
	}
	_ = os.Chmod(path, 0600)

	record := BackupRecord{
		File:          name,
		SHA256:        sha,
		SizeBytes:     info.Size(),
		CreatedAt:     now,
		SchemaVersion: SchemaVersion(),
	}

	manifest, err := bm.loadManifest()
	if err != nil {
		return nil, err
	}
	manifest.Backups = append(manifest.Backups, record)
	pruned := bm.prune(manifest)
	if err := bm.saveManifest(manifest); err != nil {
		return nil, err
	}

	bm.logger.Info("database backup created",
		zap.String("file", name),
		zap.Int64("size_bytes", record.SizeBytes),
		zap.Int("pruned", pruned))
	return &record, nil
}

// List returns recorded snapshots, oldest first.
func (bm *BackupManager) List() ([]BackupRecord, error) {
	manifest, err := bm.loadManifest()
	if err != nil {
		return nil, err
	}
	return manifest.Backups, nil
}

// Latest returns the newest snapshot, nil when none.
func (bm *BackupManager) Latest() (*BackupRecord, error) {
	backups, err := bm.List()
	if err != nil || len(backups) == 0 {
		return nil, err
	}
	latest := backups[len(backups)-1]
	return &latest, nil
}

// Verify checks a snapshot file against its recorded checksum.
func (bm *BackupManager) Verify(record BackupRecord) error {
	sha, err := computeSHA256(filepath.Join(bm.dir, record.File))
	if err != nil {
		return fmt.Errorf("failed to read backup %s: %w", record.File, err)
	}
	if sha != record.SHA256 {
		return fmt.Errorf("backup %s is corrupted: checksum mismatch", record.File)
	}
	return nil
}

// Restore copies a verified snapshot over dst. The daemon must be stopped.
func (bm *BackupManager) Restore(record BackupRecord, dst string) error {
	if err := bm.Verify(record); err != nil {
		return err
	}
	// Stale WAL files would be replayed onto the restored database.
	for _, suffix := range []string{"-wal", "-shm"} {
		if err := os.Remove(dst + suffix); err != nil && !errors.Is(err, os.ErrNotExist) {
			return fmt.Errorf("failed to remove %s: %w", dst+suffix, err)
		}
	}
	return copyFile(filepath.Join(bm.dir, record.File), dst)
}

// prune drops the oldest snapshots beyond maxBackups and returns how many
// were removed.
func (bm *BackupManager) prune(manifest *BackupManifest) int {
	sort.SliceStable(manifest.Backups, func(i, j int) bool {
		return manifest.Backups[i].CreatedAt.Before(manifest.Backups[j].CreatedAt)
	})
	excess := len(manifest.Backups) - bm.maxBackups
	if excess <= 0 {
		return 0
	}
	for _, old := range manifest.Backups[:excess] {
		if err := os.Remove(filepath.Join(bm.dir, old.File)); err != nil && !errors.Is(err, os.ErrNotExist) {
			bm.logger.Warn("failed to remove old backup", zap.String("file", old.File), zap.Error(err))
		}
	}
	manifest.Backups = append([]BackupRecord(nil), manifest.Backups[excess:]...)
	return excess
}

func (bm *BackupManager) loadManifest() (*BackupManifest, error) {
	data, err := os.ReadFile(filepath.Join(bm.dir, manifestName))
	if errors.Is(err, os.ErrNotExist) {
		return &BackupManifest{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read backup manifest: %w", err)
	}
	var manifest BackupManifest
	if err := json.Unmarshal(data, &manifest); err != nil {
		return nil, fmt.Errorf("failed to parse backup manifest: %w", err)
	}
	return &manifest, nil
}

func (bm *BackupManager) saveManifest(manifest *BackupManifest) error {
	data, err := json.MarshalIndent(manifest, "", "  ")
	if err != nil {
		return err
	}
	tmp := filepath.Join(bm.dir, manifestName+".tmp")
	if err := os.WriteFile(tmp, data, 0600); err != nil {
		return fmt.Errorf("failed to write backup manifest: %w", err)
	}
	return os.Rename(tmp, filepath.Join(bm.dir, manifestName))
}

// BackupTo writes a consistent copy of the database to dst. Encrypted
// stores are exported with sqlcipher_export so the copy keeps the key.
func (s *Store) BackupTo(ctx context.Context, dst string) error {
	if s.key == nil {
		if _, err := s.db.ExecContext(ctx, `VACUUM INTO ?`, dst); err != nil {
			return persistErr("backup database", err)
		}
		return nil
	}

	conn, err := s.db.Conn(ctx)
	if err != nil {
		return persistErr("backup database", err)
	}
	defer conn.Close()

	attach := fmt.Sprintf(`ATTACH DATABASE ? AS backup KEY "%s"`, keyLiteral(s.key))
	if _, err := conn.ExecContext(ctx, attach, dst); err != nil {
		return persistErr("attach backup database", err)
	}
	_, exportErr := conn.ExecContext(ctx, `SELECT sqlcipher_export('backup')`)
	if _, err := conn.ExecContext(ctx, `DETACH DATABASE backup`); err != nil && exportErr == nil {
		exportErr = err
	}
	if exportErr != nil {
		return persistErr("export backup database", exportErr)
	}
	return nil
}

// computeSHA256 calculates SHA256 hash of a file
func computeSHA256(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", err
	}
	defer f.Close()

	h := sha256.New()
	if _, err := io.Copy(h, f); err != nil {
		return "", err
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}

// copyFile copies a file from src to dst using atomic write pattern.
// Writes to temp file first, syncs, then renames to avoid corruption.
func copyFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	tmp := dst + ".tmp"
	out, err := os.OpenFile(tmp, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0600)
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		os.Remove(tmp)
		return err
	}
	if err := out.Sync(); err != nil {
		out.Close()
		os.Remove(tmp)
		return err
	}
	if err := out.Close(); err != nil {
		os.Remove(tmp)
		return err
	}
	return os.Rename(tmp, dst)
}
