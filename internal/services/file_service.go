package services

import (
	"context"
	"errors"
	"fmt"
	"io"

	"gastos/internal/core"
	"gastos/internal/log"
	"gastos/internal/ports"
)

// FileService manages attachments: blobs in the blob store, metadata rows in the
// data store.
type FileService struct {
	store  ports.Store
	blobs  ports.BlobStore
	logger *log.Logger
}

func NewFileService(store ports.Store, blobs ports.BlobStore, logger *log.Logger) *FileService {
	if logger == nil {
		logger = log.Discard()
	}
	return &FileService{store: store, blobs: blobs, logger: logger.WithComponent(log.ComponentFiles)}
}

func (s *FileService) CreateUploadTarget(ctx context.Context) (ports.UploadTarget, error) {
	t, err := s.blobs.CreateUploadTarget(ctx)
	if err != nil {
		return ports.UploadTarget{}, fmt.Errorf("create upload target: %w", err)
	}
	return t, nil
}

// Upload stores the bytes for a previously issued upload token and returns the
// storage ID to register.
func (s *FileService) Upload(ctx context.Context, token string, r io.Reader, contentType string) (string, error) {
	ref, err := s.blobs.Put(ctx, token, r, contentType)
	if err != nil {
		return "", fmt.Errorf("store upload: %w", err)
	}
	s.logger.DebugContext(ctx, "Blob uploaded", log.FieldBlobRef, ref, log.FieldOperation, log.OpUpload)
	return ref, nil
}

// Register attaches an uploaded blob to an expense of the same owner. Size and
// content type are taken from the stored blob, not from the caller.
func (s *FileService) Register(ctx context.Context, f core.ExpenseFile) (core.ExpenseFile, error) {
	if err := f.Validate(); err != nil {
		return core.ExpenseFile{}, err
	}
	if _, err := s.store.GetExpense(ctx, f.OwnerID, f.ExpenseID); err != nil {
		return core.ExpenseFile{}, fmt.Errorf("get expense: %w", err)
	}
	rc, info, err := s.blobs.Open(ctx, f.BlobRef)
	if errors.Is(err, core.ErrNotFound) {
		return core.ExpenseFile{}, fmt.Errorf("%w: %s", core.ErrUnknownBlob, f.BlobRef)
	}
	if err != nil {
		return core.ExpenseFile{}, fmt.Errorf("open blob: %w", err)
	}
	rc.Close()
	f.SizeBytes = info.Size
	if info.ContentType != "" {
		f.ContentType = info.ContentType
	}
	id, err := s.store.InsertFile(ctx, f)
	if err != nil {
		return core.ExpenseFile{}, fmt.Errorf("save file: %w", err)
	}
	saved, err := s.store.GetFile(ctx, f.OwnerID, id)
	if err != nil {
		return core.ExpenseFile{}, fmt.Errorf("reload file: %w", err)
	}
	s.logger.InfoContext(ctx, "File registered",
		log.FieldUserID, f.OwnerID,
		log.FieldExpenseID, f.ExpenseID,
		log.FieldFileID, id,
		log.FieldBlobRef, f.BlobRef)
	return saved, nil
}

func (s *FileService) List(ctx context.Context, ownerID string, expenseID int64) ([]core.ExpenseFile, error) {
	if _, err := s.store.GetExpense(ctx, ownerID, expenseID); err != nil {
		return nil, fmt.Errorf("get expense: %w", err)
	}
	files, err := s.store.ListFiles(ctx, ownerID, expenseID)
	if err != nil {
		return nil, fmt.Errorf("list files: %w", err)
	}
	return files, nil
}

func (s *FileService) URL(ctx context.Context, ownerID string, fileID int64) (string, error) {
	f, err := s.store.GetFile(ctx, ownerID, fileID)
	if err != nil {
		return "", fmt.Errorf("get file: %w", err)
	}
	url, err := s.blobs.DownloadURL(ctx, f.BlobRef)
	if err != nil {
		return "", fmt.Errorf("download url: %w", err)
	}
	return url, nil
}

func (s *FileService) Open(ctx context.Context, ref string) (io.ReadCloser, ports.BlobInfo, error) {
	return s.blobs.Open(ctx, ref)
}

// Delete removes the file row first; the blob follows and falls back to a
// tombstone.
func (s *FileService) Delete(ctx context.Context, ownerID string, fileID int64) error {
	f, err := s.store.GetFile(ctx, ownerID, fileID)
	if err != nil {
		return fmt.Errorf("get file: %w", err)
	}
	if err := s.store.DeleteFile(ctx, fileID); err != nil {
		return fmt.Errorf("delete file: %w", err)
	}
	removeBlob(ctx, s.store, s.blobs, s.logger, f.BlobRef, fmt.Sprintf("file %d deleted", fileID))
	s.logger.InfoContext(ctx, "File deleted", log.FieldUserID, ownerID, log.FieldFileID, fileID)
	return nil
}
