// Package blob stores attachment bytes on the local filesystem behind the
// ports.BlobStore contract: clients first obtain a short-lived upload target, PUT the
// bytes to it and receive a storage ID to register against an expense.
package blob

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"gastos/internal/core"
	"gastos/internal/ports"
)

var ErrUploadExpired = fmt.Errorf("%w: upload target expired or unknown", core.ErrInvalidInput)

type LocalStore struct {
	dir     string
	baseURL string
	ttl     time.Duration
	now     func() time.Time

	mu      sync.Mutex
	pending map[string]time.Time
}

var _ ports.BlobStore = (*LocalStore)(nil)

type meta struct {
	ContentType string    `json:"content_type"`
	Size        int64     `json:"size"`
	StoredAt    time.Time `json:"stored_at"`
}

// NewLocalStore keeps blobs under dir. baseURL is the public origin used to build
// upload and download URLs.
func NewLocalStore(dir, baseURL string, ttl time.Duration) (*LocalStore, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create blob directory: %w", err)
	}
	return &LocalStore{
		dir:     dir,
		baseURL: strings.TrimRight(baseURL, "/"),
		ttl:     ttl,
		now:     time.Now,
		pending: make(map[string]time.Time),
	}, nil
}

func (s *LocalStore) CreateUploadTarget(ctx context.Context) (ports.UploadTarget, error) {
	if err := ctx.Err(); err != nil {
		return ports.UploadTarget{}, err
	}
	token := uuid.NewString()
	expires := s.now().Add(s.ttl)

	s.mu.Lock()
	s.sweepLocked()
	s.pending[token] = expires
	s.mu.Unlock()

	return ports.UploadTarget{
		URL:       s.baseURL + "/blobs/upload/" + token,
		Token:     token,
		ExpiresAt: expires,
	}, nil
}

// Put consumes the upload token and writes r to a new blob.
func (s *LocalStore) Put(ctx context.Context, token string, r io.Reader, contentType string) (string, error) {
	if !s.claim(token) {
		return "", ErrUploadExpired
	}

	ref := uuid.NewString()
	tmp, err := os.CreateTemp(s.dir, ".upload-*")
	if err != nil {
		return "", core.Persistence("create blob", err)
	}
	defer os.Remove(tmp.Name())

	n, err := io.Copy(tmp, &ctxReader{ctx: ctx, r: r})
	if cerr := tmp.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		return "", core.Persistence("write blob", err)
	}

	m, err := json.Marshal(meta{ContentType: contentType, Size: n, StoredAt: s.now().UTC()})
	if err != nil {
		return "", fmt.Errorf("encode blob metadata: %w", err)
	}
	if err := os.WriteFile(s.metaPath(ref), m, 0o644); err != nil {
		return "", core.Persistence("write blob metadata", err)
	}
	if err := os.Rename(tmp.Name(), s.dataPath(ref)); err != nil {
		os.Remove(s.metaPath(ref))
		return "", core.Persistence("commit blob", err)
	}
	return ref, nil
}

func (s *LocalStore) DownloadURL(_ context.Context, ref string) (string, error) {
	if err := validRef(ref); err != nil {
		return "", err
	}
	return s.baseURL + "/blobs/" + ref, nil
}

func (s *LocalStore) Open(_ context.Context, ref string) (io.ReadCloser, ports.BlobInfo, error) {
	if err := validRef(ref); err != nil {
		return nil, ports.BlobInfo{}, err
	}
	raw, err := os.ReadFile(s.metaPath(ref))
	if errors.Is(err, fs.ErrNotExist) {
		return nil, ports.BlobInfo{}, fmt.Errorf("blob %s: %w", ref, core.ErrNotFound)
	}
	if err != nil {
		return nil, ports.BlobInfo{}, core.Persistence("read blob metadata", err)
	}
	var m meta
	if err := json.Unmarshal(raw, &m); err != nil {
		return nil, ports.BlobInfo{}, core.Persistence("decode blob metadata", err)
	}
	f, err := os.Open(s.dataPath(ref))
	if errors.Is(err, fs.ErrNotExist) {
		return nil, ports.BlobInfo{}, fmt.Errorf("blob %s: %w", ref, core.ErrNotFound)
	}
	if err != nil {
		return nil, ports.BlobInfo{}, core.Persistence("open blob", err)
	}
	return f, ports.BlobInfo{ContentType: m.ContentType, Size: m.Size}, nil
}

// Delete removes the blob. Deleting a missing blob succeeds.
func (s *LocalStore) Delete(ctx context.Context, ref string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := validRef(ref); err != nil {
		return err
	}
	for _, p := range []string{s.dataPath(ref), s.metaPath(ref)} {
		if err := os.Remove(p); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return core.Persistence("delete blob", err)
		}
	}
	return nil
}

func (s *LocalStore) claim(token string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	exp, ok := s.pending[token]
	if !ok {
		return false
	}
	delete(s.pending, token)
	return s.now().Before(exp)
}

func (s *LocalStore) sweepLocked() {
	now := s.now()
	for token, exp := range s.pending {
		if !now.Before(exp) {
			delete(s.pending, token)
		}
	}
}

func (s *LocalStore) dataPath(ref string) string { return filepath.Join(s.dir, ref+".bin") }
func (s *LocalStore) metaPath(ref string) string { return filepath.Join(s.dir, ref+".json") }

// validRef accepts only canonical UUIDs so a ref can never escape the blob directory.
func validRef(ref string) error {
	id, err := uuid.Parse(ref)
	if err != nil || id.String() != ref {
		return fmt.Errorf("%w: malformed storage id", core.ErrInvalidInput)
	}
	return nil
}

type ctxReader struct {
	ctx context.Context
	r   io.Reader
}

func (c *ctxReader) Read(p []byte) (int, error) {
	if err := c.ctx.Err(); err != nil {
		return 0, err
	}
	return c.r.Read(p)
}
