// Package storage provides a pluggable blob store for case documents. The
// engine treats it as opaque content addressed by object key; new uploads get
// unique keys, deletion is idempotent.
package storage

import (
	"fmt"
	"io"
	"path"
	"time"

	"github.com/google/uuid"

	"github.com/caplatform/backend/pkg/config"
)

// Store is the blob backend used by document intake.
type Store interface {
	// Upload writes a new object under key.
	Upload(key string, r io.Reader, contentType string, size int64) error
	// SignedURL returns a short-lived download URL for key.
	SignedURL(key string, expiresInSeconds int) (string, error)
	// Delete removes an object. Deleting a missing object is not an error.
	Delete(key string) error
	// BulkDelete removes multiple objects in one call.
	BulkDelete(keys []string) error
}

// MakeObjectKey builds a tidy, per-case object key:
// case/<caseID>/<timestamp>-<random>-<filename>
func MakeObjectKey(caseID, filename string) string {
	prefix := fmt.Sprintf("%d-%s", time.Now().UnixNano(), uuid.NewString()[:8])
	return path.Join("case", caseID, prefix+"-"+filename)
}

// New selects a backend from configuration.
func New(cfg config.Storage) (Store, error) {
	switch cfg.Backend {
	case "supabase":
		return NewSupabase(cfg), nil
	case "local", "":
		return NewLocal(cfg.Dir)
	default:
		return nil, fmt.Errorf("unknown storage backend %q", cfg.Backend)
	}
}
