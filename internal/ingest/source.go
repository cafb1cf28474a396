package ingest

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"

	"github.com/autotaghq/autotag/internal/autotagerrors"
	"github.com/autotaghq/autotag/internal/models"
)

// FileSource loads record sets from the local filesystem.
type FileSource struct {
	maxRecords int
}

// NewFileSource creates a FileSource. maxRecords caps the number of rows a
// single run may carry; 0 disables the cap.
func NewFileSource(maxRecords int) *FileSource {
	return &FileSource{maxRecords: maxRecords}
}

// Load reads and validates the record set at sourceRef.
//
// A missing file or a file that fails validation is an InvalidInputError and
// is not retried. Other I/O faults are transient and surface as
// TransientDependencyError so the run's validation retry policy applies.
func (s *FileSource) Load(ctx context.Context, sourceRef string) ([]models.SourceRecord, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	file, err := os.Open(sourceRef)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, autotagerrors.NewInvalidInputError(fmt.Sprintf("record set %q does not exist", sourceRef))
		}

		return nil, autotagerrors.NewTransientDependencyError("source", "failed to open record set", err)
	}
	defer func() { _ = file.Close() }()

	info, err := file.Stat()
	if err != nil {
		return nil, autotagerrors.NewTransientDependencyError("source", "failed to stat record set", err)
	}

	if info.Size() == 0 {
		return nil, autotagerrors.NewInvalidInputError(fmt.Sprintf("record set %q is empty", sourceRef))
	}

	records, err := ParseCSV(file)
	if err != nil {
		return nil, err
	}

	if s.maxRecords > 0 && len(records) > s.maxRecords {
		return nil, autotagerrors.NewInvalidInputError(
			fmt.Sprintf("record set has %d rows, exceeding the limit of %d", len(records), s.maxRecords))
	}

	return records, nil
}
