// Package storage keeps knowledge base files in a bucket directory on the
// local filesystem.
package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"mime"
	"net/url"
	"os"
	"path"
	"path/filepath"
	"sort"
	"strings"
	"time"

	apperrors "github.com/autocrm-inc/autocrm/internal/shared/errors"
	"github.com/autocrm-inc/autocrm/internal/shared/logger"
)

const DefaultBucket = "knowledge_base"

type Object struct {
	Path        string    `json:"path"`
	Size        int64     `json:"size"`
	ContentType string    `json:"content_type"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// Bucket is a flat namespace of files under root/name.
type Bucket struct {
	dir           string
	name          string
	publicBaseURL string
	maxBytes      int64
	logger        logger.Interface
}

// NewBucket creates the bucket directory if needed. maxBytes caps uploads;
// zero means no limit.
func NewBucket(root, name, publicBaseURL string, maxBytes int64, log logger.Interface) (*Bucket, error) {
	if name == "" {
		name = DefaultBucket
	}
	if log == nil {
		log = logger.NewNop()
	}
	dir := filepath.Join(root, name)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create bucket directory: %w", err)
	}
	return &Bucket{
		dir:           dir,
		name:          name,
		publicBaseURL: strings.TrimRight(publicBaseURL, "/"),
		maxBytes:      maxBytes,
		logger:        log.With("bucket", name),
	}, nil
}

func (b *Bucket) Name() string {
	return b.name
}

// resolve maps an object path to a file inside the bucket.
func (b *Bucket) resolve(p string) (string, error) {
	clean := path.Clean("/" + strings.ReplaceAll(p, "\\", "/"))
	if clean == "/" || strings.HasPrefix(path.Base(clean), ".") {
		return "", apperrors.NewValidationError("invalid object path", p)
	}
	return filepath.Join(b.dir, filepath.FromSlash(clean[1:])), nil
}

// List returns the objects whose path starts with prefix, sorted by path.
func (b *Bucket) List(ctx context.Context, prefix string) ([]Object, error) {
	var out []Object
	err := filepath.WalkDir(b.dir, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if err := ctx.Err(); err != nil {
			return err
		}
		if d.IsDir() || strings.HasPrefix(d.Name(), ".") {
			return nil
		}
		rel, err := filepath.Rel(b.dir, p)
		if err != nil {
			return err
		}
		rel = filepath.ToSlash(rel)
		if !strings.HasPrefix(rel, prefix) {
			return nil
		}
		info, err := d.Info()
		if err != nil {
			return err
		}
		out = append(out, Object{
			Path:        rel,
			Size:        info.Size(),
			ContentType: contentType(rel),
			UpdatedAt:   info.ModTime().UTC(),
		})
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to list bucket %s: %w", b.name, err)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Path < out[j].Path })
	return out, nil
}

// Upload stores r at p. Existing objects are never overwritten.
func (b *Bucket) Upload(ctx context.Context, p string, r io.Reader) (Object, error) {
	target, err := b.resolve(p)
	if err != nil {
		return Object{}, err
	}
	if err := os.MkdirAll(filepath.Dir(target), 0o755); err != nil {
		return Object{}, fmt.Errorf("failed to create directory: %w", err)
	}

	f, err := os.OpenFile(target, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
	if err != nil {
		if errors.Is(err, fs.ErrExist) {
			return Object{}, apperrors.NewConflictError("object already exists", p)
		}
		return Object{}, fmt.Errorf("failed to create object: %w", err)
	}

	src := r
	if b.maxBytes > 0 {
		src = io.LimitReader(r, b.maxBytes+1)
	}
	n, copyErr := io.Copy(f, readerWithContext{ctx: ctx, r: src})
	closeErr := f.Close()
	if copyErr == nil && b.maxBytes > 0 && n > b.maxBytes {
		copyErr = apperrors.NewValidationError("file too large", fmt.Sprintf("limit is %d bytes", b.maxBytes))
	}
	if err := errors.Join(copyErr, closeErr); err != nil {
		_ = os.Remove(target)
		if apperrors.IsAppError(copyErr) {
			return Object{}, copyErr
		}
		return Object{}, fmt.Errorf("failed to write object: %w", err)
	}

	rel := filepath.ToSlash(strings.TrimPrefix(target, b.dir+string(filepath.Separator)))
	b.logger.Infow("object uploaded", "path", rel, "size", n)
	return Object{Path: rel, Size: n, ContentType: contentType(rel), UpdatedAt: time.Now().UTC()}, nil
}

// Download opens the object at p.
func (b *Bucket) Download(_ context.Context, p string) (io.ReadCloser, Object, error) {
	target, err := b.resolve(p)
	if err != nil {
		return nil, Object{}, err
	}
	f, err := os.Open(target)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, Object{}, apperrors.NewNotFoundError("object not found", p)
		}
		return nil, Object{}, fmt.Errorf("failed to open object: %w", err)
	}
	info, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, Object{}, fmt.Errorf("failed to stat object: %w", err)
	}
	return f, Object{Path: p, Size: info.Size(), ContentType: contentType(p), UpdatedAt: info.ModTime().UTC()}, nil
}

// Delete removes the object at p. Removing a missing object is not an
// error.
func (b *Bucket) Delete(_ context.Context, p string) error {
	target, err := b.resolve(p)
	if err != nil {
		return err
	}
	if err := os.Remove(target); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("failed to delete object: %w", err)
	}
	b.logger.Infow("object deleted", "path", p)
	return nil
}

// PublicURL returns the URL the object is served at.
func (b *Bucket) PublicURL(p string) string {
	segments := strings.Split(strings.TrimPrefix(path.Clean("/"+p), "/"), "/")
	for i, s := range segments {
		segments[i] = url.PathEscape(s)
	}
	return b.publicBaseURL + "/" + url.PathEscape(b.name) + "/" + strings.Join(segments, "/")
}

func contentType(p string) string {
	switch strings.ToLower(path.Ext(p)) {
	case ".md", ".markdown":
		return "text/markdown; charset=utf-8"
	}
	if t := mime.TypeByExtension(path.Ext(p)); t != "" {
		return t
	}
	return "application/octet-stream"
}

type readerWithContext struct {
	ctx context.Context
	r   io.Reader
}

func (r readerWithContext) Read(p []byte) (int, error) {
	if err := r.ctx.Err(); err != nil {
		return 0, err
	}
	return r.r.Read(p)
}
