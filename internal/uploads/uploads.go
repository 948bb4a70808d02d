// Package uploads validates project images and stores them under the public
// upload directory.
package uploads

import (
	"context"
	"crypto/md5"
	"encoding/hex"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"portfolio/internal/apperr"
	"portfolio/internal/filecache"
	"portfolio/internal/store"
)

// MaxSize is the largest accepted image, in bytes.
const MaxSize = 5 * 1024 * 1024

// URLPrefix is where stored images are served from.
const URLPrefix = "/uploads/"

// AllowedTypes lists the accepted MIME types in display order.
var AllowedTypes = []string{"image/jpeg", "image/png", "image/gif", "image/webp", "image/avif"}

var (
	unsafeChars = regexp.MustCompile(`[^a-zA-Z0-9]`)
	safeExt     = regexp.MustCompile(`^\.[A-Za-z0-9]+$`)
	typeExt     = map[string]string{
		"image/jpeg": ".jpg",
		"image/png":  ".png",
		"image/gif":  ".gif",
		"image/webp": ".webp",
		"image/avif": ".avif",
	}
)

// Upload is one file of a batch.
type Upload struct {
	Name        string
	ContentType string
	Size        int64
	Body        io.Reader
}

// Records is the persistence the service needs.
type Records interface {
	ProjectExists(ctx context.Context, id string) (bool, error)
	AddFile(ctx context.Context, projectID, url string) (store.File, error)
}

// Service stores image batches for projects.
type Service struct {
	dir     string
	records Records
	logger  *slog.Logger
}

// NewService stores files under dir and records them through records.
func NewService(dir string, records Records, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{dir: filepath.Clean(dir), records: records, logger: logger}
}

// Dir returns the upload directory.
func (s *Service) Dir() string { return s.dir }

// Save stores every upload for projectID and returns the recorded files.
// Files are persisted one by one: when a later file fails after earlier ones
// were recorded, the recorded files are returned together with a
// partial-batch error wrapping the failure.
func (s *Service) Save(ctx context.Context, projectID string, batch []Upload) ([]store.File, error) {
	if strings.TrimSpace(projectID) == "" || len(batch) == 0 {
		return nil, apperr.Validation("projectId and images are required")
	}
	exists, err := s.records.ProjectExists(ctx, projectID)
	if err != nil {
		return nil, fmt.Errorf("check project %s: %w", projectID, err)
	}
	if !exists {
		return nil, store.ErrNotFound
	}
	if err := os.MkdirAll(s.dir, 0o755); err != nil {
		return nil, fmt.Errorf("create upload dir: %w", err)
	}

	saved := []store.File{}
	for i, u := range batch {
		f, err := s.saveOne(ctx, projectID, u)
		if err != nil {
			s.logger.Warn("upload failed", "project_id", projectID, "index", i, "name", u.Name, "saved", len(saved), "error", err)
			if len(saved) > 0 {
				return saved, apperr.Wrap(apperr.KindPartialBatch,
					fmt.Sprintf("%d of %d files uploaded", len(saved), len(batch)), err)
			}
			return nil, err
		}
		saved = append(saved, f)
	}
	s.logger.Info("files uploaded", "project_id", projectID, "count", len(saved))
	return saved, nil
}

func (s *Service) saveOne(ctx context.Context, projectID string, u Upload) (store.File, error) {
	if err := Validate(u.ContentType, u.Size); err != nil {
		return store.File{}, err
	}
	data, err := io.ReadAll(io.LimitReader(u.Body, MaxSize+1))
	if err != nil {
		return store.File{}, fmt.Errorf("read %s: %w", u.Name, err)
	}
	if err := Validate(u.ContentType, int64(len(data))); err != nil {
		return store.File{}, err
	}

	name := DeriveName(u.Name, u.ContentType, data)
	if err := filecache.WriteFileAtomic(filepath.Join(s.dir, name), data); err != nil {
		return store.File{}, fmt.Errorf("store %s: %w", name, err)
	}
	f, err := s.records.AddFile(ctx, projectID, URLPrefix+name)
	if err != nil {
		return store.File{}, fmt.Errorf("record %s: %w", name, err)
	}
	return f, nil
}

// Validate checks the MIME type and size of a single file.
func Validate(contentType string, size int64) error {
	if !Allowed(contentType) {
		return apperr.Validation(fmt.Sprintf("File type not allowed: %s. Allowed types: %s",
			contentType, strings.Join(AllowedTypes, ", ")))
	}
	if size > MaxSize {
		return apperr.Validation(fmt.Sprintf("File too large: %dMB. Maximum size: %dMB",
			(size+512*1024)/(1024*1024), MaxSize/(1024*1024)))
	}
	return nil
}

// Allowed reports whether contentType is an accepted image type.
func Allowed(contentType string) bool {
	_, ok := typeExt[contentType]
	return ok
}

// DeriveName builds the stored file name: the sanitised base name, the first
// eight hex digits of the content's md5 and the original extension. An
// extension that is not purely alphanumeric is replaced by one derived from
// contentType.
func DeriveName(original, contentType string, data []byte) string {
	base := filepath.Base(strings.ReplaceAll(original, `\`, "/"))
	ext := filepath.Ext(base)
	stem := strings.TrimSuffix(base, ext)
	if !safeExt.MatchString(ext) {
		ext = typeExt[contentType]
	}
	sum := md5.Sum(data)
	return unsafeChars.ReplaceAllString(stem, "_") + "_" + hex.EncodeToString(sum[:])[:8] + ext
}
