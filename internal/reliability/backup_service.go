package reliability

import (
	"archive/tar"
	"compress/gzip"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/rs/zerolog"
)

const backupPrefix = "backups/"

// BackupMetadata describes one backup archive.
type BackupMetadata struct {
	Timestamp time.Time          `json:"timestamp"`
	Databases []DatabaseMetadata `json:"databases"`
}

// DatabaseMetadata describes a single database file inside a backup.
type DatabaseMetadata struct {
	Name      string `json:"name"`
	Filename  string `json:"filename"`
	SizeBytes int64  `json:"size_bytes"`
	Checksum  string `json:"checksum"`
}

// BackupService archives the SQLite databases into a tar.gz with per-file
// sha256 checksums and uploads it to the object store, pruning old backups
// past the retention count.
type BackupService struct {
	client    *R2Client
	dbPaths   map[string]string // name -> path
	retention int
	log       zerolog.Logger
}

// NewBackupService creates a backup service for the given named database files.
func NewBackupService(client *R2Client, dbPaths map[string]string, retention int, log zerolog.Logger) *BackupService {
	return &BackupService{
		client:    client,
		dbPaths:   dbPaths,
		retention: retention,
		log:       log.With().Str("component", "backup").Logger(),
	}
}

// Run creates and uploads one backup, then prunes old ones.
func (s *BackupService) Run(ctx context.Context) error {
	timestamp := time.Now().UTC()
	key := fmt.Sprintf("%ssentinel-%s.tar.gz", backupPrefix, timestamp.Format("20060102-150405"))

	archive, err := os.CreateTemp("", "sentinel-backup-*.tar.gz")
	if err != nil {
		return fmt.Errorf("failed to create temp archive: %w", err)
	}
	defer os.Remove(archive.Name())
	defer archive.Close()

	meta, err := s.writeArchive(archive, timestamp)
	if err != nil {
		return fmt.Errorf("failed to build backup archive: %w", err)
	}

	if _, err := archive.Seek(0, io.SeekStart); err != nil {
		return fmt.Errorf("failed to rewind archive: %w", err)
	}
	if err := s.client.Upload(ctx, key, archive); err != nil {
		return err
	}

	s.log.Info().
		Str("key", key).
		Int("databases", len(meta.Databases)).
		Msg("Backup uploaded")

	return s.prune(ctx)
}

// writeArchive streams the databases and a metadata.json into the tar.gz.
func (s *BackupService) writeArchive(w io.Writer, timestamp time.Time) (*BackupMetadata, error) {
	gz := gzip.NewWriter(w)
	tw := tar.NewWriter(gz)

	meta := &BackupMetadata{Timestamp: timestamp}

	for name, path := range s.dbPaths {
		info, err := os.Stat(path)
		if err != nil {
			// A database that does not exist yet is skipped, not fatal.
			s.log.Warn().Err(err).Str("database", name).Msg("Skipping missing database")
			continue
		}

		checksum, err := fileChecksum(path)
		if err != nil {
			return nil, fmt.Errorf("failed to checksum %s: %w", name, err)
		}

		filename := filepath.Base(path)
		if err := addFileToTar(tw, path, filename, info); err != nil {
			return nil, fmt.Errorf("failed to archive %s: %w", name, err)
		}

		meta.Databases = append(meta.Databases, DatabaseMetadata{
			Name:      name,
			Filename:  filename,
			SizeBytes: info.Size(),
			Checksum:  checksum,
		})
	}

	metaBytes, err := json.MarshalIndent(meta, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("failed to encode metadata: %w", err)
	}
	hdr := &tar.Header{
		Name:    "metadata.json",
		Mode:    0644,
		Size:    int64(len(metaBytes)),
		ModTime: timestamp,
	}
	if err := tw.WriteHeader(hdr); err != nil {
		return nil, fmt.Errorf("failed to write metadata header: %w", err)
	}
	if _, err := tw.Write(metaBytes); err != nil {
		return nil, fmt.Errorf("failed to write metadata: %w", err)
	}

	if err := tw.Close(); err != nil {
		return nil, fmt.Errorf("failed to finalize tar: %w", err)
	}
	if err := gz.Close(); err != nil {
		return nil, fmt.Errorf("failed to finalize gzip: %w", err)
	}

	return meta, nil
}

// prune keeps only the newest retention backups.
func (s *BackupService) prune(ctx context.Context) error {
	if s.retention <= 0 {
		return nil
	}

	keys, err := s.client.List(ctx, backupPrefix)
	if err != nil {
		return err
	}
	if len(keys) <= s.retention {
		return nil
	}

	for _, key := range keys[:len(keys)-s.retention] {
		if err := s.client.Delete(ctx, key); err != nil {
			s.log.Warn().Err(err).Str("key", key).Msg("Failed to prune old backup")
			continue
		}
		s.log.Debug().Str("key", key).Msg("Pruned old backup")
	}

	return nil
}

func addFileToTar(tw *tar.Writer, path, name string, info os.FileInfo) error {
	hdr, err := tar.FileInfoHeader(info, "")
	if err != nil {
		return err
	}
	hdr.Name = name

	if err := tw.WriteHeader(hdr); err != nil {
		return err
	}

	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()

	_, err = io.Copy(tw, f)
	return err
}

func fileChecksum(path string) (string, error) {
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
