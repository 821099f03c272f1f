package services

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"sync"
	"time"

	"gastos/internal/core"
	"gastos/internal/memory"
	"gastos/internal/ports"
)

var errBlobDown = errors.New("blob backend unavailable")

type fakeBlobs struct {
	mu      sync.Mutex
	data    map[string][]byte
	types   map[string]string
	next    int
	failDel bool
	deleted []string
}

func newFakeBlobs() *fakeBlobs {
	return &fakeBlobs{data: map[string][]byte{}, types: map[string]string{}}
}

func (f *fakeBlobs) CreateUploadTarget(context.Context) (ports.UploadTarget, error) {
	return ports.UploadTarget{URL: "http://blobs.test/upload/t", Token: "t", ExpiresAt: time.Now().Add(time.Minute)}, nil
}

func (f *fakeBlobs) Put(_ context.Context, token string, r io.Reader, contentType string) (string, error) {
	if token != "t" {
		return "", fmt.Errorf("%w: bad token", core.ErrInvalidInput)
	}
	b, err := io.ReadAll(r)
	if err != nil {
		return "", err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.next++
	ref := fmt.Sprintf("blob-%d", f.next)
	f.data[ref] = b
	f.types[ref] = contentType
	return ref, nil
}

func (f *fakeBlobs) DownloadURL(_ context.Context, ref string) (string, error) {
	return "http://blobs.test/" + ref, nil
}

func (f *fakeBlobs) Open(_ context.Context, ref string) (io.ReadCloser, ports.BlobInfo, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	b, ok := f.data[ref]
	if !ok {
		return nil, ports.BlobInfo{}, core.ErrNotFound
	}
	return io.NopCloser(bytes.NewReader(b)), ports.BlobInfo{ContentType: f.types[ref], Size: int64(len(b))}, nil
}

func (f *fakeBlobs) Delete(_ context.Context, ref string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failDel {
		return errBlobDown
	}
	delete(f.data, ref)
	f.deleted = append(f.deleted, ref)
	return nil
}

func (f *fakeBlobs) setFailDelete(v bool) {
	f.mu.Lock()
	f.failDel = v
	f.mu.Unlock()
}

func (f *fakeBlobs) has(ref string) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	_, ok := f.data[ref]
	return ok
}

type recordingPublisher struct {
	mu     sync.Mutex
	events []core.ExpenseEvent
	err    error
}

func (p *recordingPublisher) PublishExpenseEvent(_ context.Context, ev core.ExpenseEvent) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, ev)
	return p.err
}

func (p *recordingPublisher) types() []core.EventType {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]core.EventType, len(p.events))
	for i, ev := range p.events {
		out[i] = ev.Type
	}
	return out
}

// flakyStore fails inserts dated on any of the given days.
type flakyStore struct {
	*memory.Store
	failOn map[string]bool
}

func (s *flakyStore) InsertExpense(ctx context.Context, in core.ExpenseInput) (int64, error) {
	if s.failOn[in.Date.Format(time.DateOnly)] {
		return 0, core.Persistence("insert expense", errors.New("disk full"))
	}
	return s.Store.InsertExpense(ctx, in)
}

func day(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func input(owner, name, category string, cents int64, date time.Time) core.ExpenseInput {
	return core.ExpenseInput{
		OwnerID:  owner,
		Name:     name,
		Amount:   core.Money{Cents: cents},
		Category: category,
		Date:     date,
	}
}
