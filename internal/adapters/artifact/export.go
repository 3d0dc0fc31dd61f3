package artifact

import (
	"context"
	"fmt"

	"github.com/okian/listenproof/internal/domain/model"
	"github.com/okian/listenproof/pkg/logger"
	"github.com/okian/listenproof/pkg/metrics"
)

// SourceTEE marks files produced inside the trusted execution environment.
const SourceTEE = "TEE"

// Exporter seals a contribution and uploads it.
type Exporter struct {
	uploader   Uploader
	passphrase string
	log        logger.Logger
}

// Option configures an Exporter.
type Option func(*Exporter)

// WithLogger sets the logger.
func WithLogger(l logger.Logger) Option {
	return func(e *Exporter) {
		if l != nil {
			e.log = l
		}
	}
}

// NewExporter creates an Exporter.
func NewExporter(u Uploader, passphrase string, opts ...Option) *Exporter {
	e := &Exporter{uploader: u, passphrase: passphrase, log: logger.Nop()}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Export seals raw, uploads it to fileURL and returns the file description
// carried in the proof metadata.
func (e *Exporter) Export(ctx context.Context, raw []byte, fileID int64, fileURL string) (model.FileInfo, error) {
	bucket, key, err := ParseLocation(fileURL)
	if err != nil {
		return model.FileInfo{}, err
	}
	sealed, err := Seal(raw, e.passphrase)
	if err != nil {
		return model.FileInfo{}, err
	}

	info := model.FileInfo{
		ID:     fileID,
		Source: SourceTEE,
		URL:    fileURL,
		Checksums: model.Checksums{
			Encrypted: Checksum(sealed),
			Decrypted: Checksum(raw),
		},
	}
	if err := e.uploader.Put(ctx, bucket, key, sealed); err != nil {
		metrics.RecordArtifactUpload("failed", 0)
		return model.FileInfo{}, fmt.Errorf("export file %d: %w", fileID, err)
	}
	metrics.RecordArtifactUpload("ok", len(sealed))
	e.log.Info(ctx, "exported sealed contribution",
		logger.String("bucket", bucket),
		logger.String("key", key),
		logger.Int("bytes", len(sealed)),
	)
	return info, nil
}
