package conversion

import (
	"archive/zip"
	"context"
	"fmt"
	"os"

	"docbridge/models"
	"docbridge/services"

	"github.com/google/uuid"
)

// archiveWriter streams converted outputs into a zip on disk as the batch
// produces them, so at most one document's bytes sit in memory at a time.
type archiveWriter struct {
	file *os.File
	zw   *zip.Writer
}

func newArchiveWriter(dir string, jobID uuid.UUID) (*archiveWriter, error) {
	f, err := os.CreateTemp(dir, "batch-"+jobID.String()+"-*.zip")
	if err != nil {
		return nil, fmt.Errorf("create archive file: %w", err)
	}
	return &archiveWriter{file: f, zw: zip.NewWriter(f)}, nil
}

// add appends one entry. A failed writer is unusable; the caller discards it.
func (w *archiveWriter) add(name string, data []byte) error {
	entry, err := w.zw.Create(name)
	if err == nil {
		_, err = entry.Write(data)
	}
	if err != nil {
		return fmt.Errorf("write archive entry %q: %w", name, err)
	}
	return nil
}

// finish writes the central directory and returns the file path. The caller
// owns removal of the returned file.
func (w *archiveWriter) finish() (string, error) {
	name := w.file.Name()
	if err := w.zw.Close(); err != nil {
		w.file.Close()
		os.Remove(name)
		return "", fmt.Errorf("finalize archive: %w", err)
	}
	if err := w.file.Close(); err != nil {
		os.Remove(name)
		return "", fmt.Errorf("close archive: %w", err)
	}
	return name, nil
}

// discard drops the partial file. Safe on a nil writer.
func (w *archiveWriter) discard() {
	if w == nil {
		return
	}
	w.zw.Close()
	w.file.Close()
	os.Remove(w.file.Name())
}

// sealArchive finalizes the streamed zip, hands it to the artifact store,
// and removes the local copy.
func (s *Service) sealArchive(jobID uuid.UUID, archive *archiveWriter) (*models.ArchiveInfo, error) {
	archivePath, err := archive.finish()
	if err != nil {
		return nil, err
	}
	defer services.Cleanup(archivePath)

	ctx, cancel := context.WithTimeout(context.Background(), s.cfg.ServiceTimeout)
	defer cancel()

	key := "batches/" + jobID.String() + ".zip"
	return s.store.PutArchive(ctx, key, archivePath)
}
