package imageoffload

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"directory/internal/cloudinary"
	"directory/internal/profile"
	"directory/internal/queue"
)

type fakeUploader struct {
	calls int
	err   error
	// during runs while the upload is in flight.
	during func()
}

func (f *fakeUploader) UploadDataURL(_ context.Context, dataURL string) (*cloudinary.UploadResult, error) {
	f.calls++
	if f.during != nil {
		f.during()
	}
	if f.err != nil {
		return nil, f.err
	}
	return &cloudinary.UploadResult{PublicID: "people/x", SecureURL: "https://res.cloudinary.com/demo/x.png"}, nil
}

func seed(t *testing.T, img profile.Image) (*profile.FileStore, profile.Profile) {
	t.Helper()
	s, err := profile.OpenFileStore(filepath.Join(t.TempDir(), "users.json"))
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	p, err := s.Upsert(context.Background(), profile.Profile{
		ID: "user_1", Name: "Ada", Email: "ada@campus.edu", Role: profile.RoleTeacher, Image: img,
	})
	if err != nil {
		t.Fatalf("seed: %v", err)
	}
	return s, p
}

func TestHandle_RewritesInlineImage(t *testing.T) {
	ctx := context.Background()
	s, seeded := seed(t, profile.InlineImage([]byte("\x89PNG\r\n\x1a\n"), ""))
	up := &fakeUploader{}
	o := New(s, up, nil)

	if err := o.Handle(ctx, queue.Message{Type: queue.TypeProfileSaved, Body: []byte("user_1")}); err != nil {
		t.Fatalf("handle: %v", err)
	}
	p, _, _ := s.Get(ctx, "user_1")
	if p.Image.Kind != profile.ImageURL || p.Image.URL != "https://res.cloudinary.com/demo/x.png" {
		t.Fatalf("image not rewritten: %+v", p.Image)
	}
	if !p.CreatedAt.Equal(seeded.CreatedAt) {
		t.Fatalf("createdAt changed")
	}
}

func TestHandle_Skips(t *testing.T) {
	ctx := context.Background()
	s, _ := seed(t, profile.URLImage("https://example.com/a.png"))
	up := &fakeUploader{}
	o := New(s, up, nil)

	msgs := []queue.Message{
		{Type: queue.TypeProfileSaved, Body: []byte("user_1")},
		{Type: queue.TypeProfileSaved, Body: []byte("ghost")},
		{Type: queue.TypeProfileDeleted, Body: []byte("user_1")},
	}
	for _, m := range msgs {
		if err := o.Handle(ctx, m); err != nil {
			t.Fatalf("handle %+v: %v", m, err)
		}
	}
	if up.calls != 0 {
		t.Fatalf("uploader should not be called, got %d calls", up.calls)
	}
}

func TestHandle_UploadFailureKeepsInlineImage(t *testing.T) {
	ctx := context.Background()
	s, _ := seed(t, profile.InlineImage([]byte("GIF89a"), "image/gif"))
	o := New(s, &fakeUploader{err: errors.New("boom")}, nil)
	if err := o.Handle(ctx, queue.Message{Type: queue.TypeProfileSaved, Body: []byte("user_1")}); err == nil {
		t.Fatalf("expected error")
	}
	p, _, _ := s.Get(ctx, "user_1")
	if p.Image.Kind != profile.ImageInline {
		t.Fatalf("inline image lost: %+v", p.Image)
	}
}

func TestHandle_ProfileDeletedDuringUpload(t *testing.T) {
	ctx := context.Background()
	s, _ := seed(t, profile.InlineImage([]byte("GIF89a"), "image/gif"))
	up := &fakeUploader{during: func() {
		if ok, err := s.Delete(ctx, "user_1"); err != nil || !ok {
			t.Errorf("delete: %v %v", ok, err)
		}
	}}
	if err := New(s, up, nil).Handle(ctx, queue.Message{Type: queue.TypeProfileSaved, Body: []byte("user_1")}); err != nil {
		t.Fatalf("handle: %v", err)
	}
	if p, found, _ := s.Get(ctx, "user_1"); found {
		t.Fatalf("deleted profile came back: %+v", p)
	}
	if list, _ := s.List(ctx); len(list) != 0 {
		t.Fatalf("expected empty store, got %+v", list)
	}
}

func TestHandle_ProfileEditedDuringUpload(t *testing.T) {
	ctx := context.Background()
	s, seeded := seed(t, profile.InlineImage([]byte("GIF89a"), "image/gif"))
	up := &fakeUploader{during: func() {
		time.Sleep(2 * time.Millisecond)
		edited := seeded
		edited.Name = "Ada Lovelace"
		if _, err := s.Upsert(ctx, edited); err != nil {
			t.Errorf("edit: %v", err)
		}
	}}
	if err := New(s, up, nil).Handle(ctx, queue.Message{Type: queue.TypeProfileSaved, Body: []byte("user_1")}); err != nil {
		t.Fatalf("handle: %v", err)
	}
	p, _, _ := s.Get(ctx, "user_1")
	if p.Name != "Ada Lovelace" {
		t.Fatalf("admin edit lost: %+v", p)
	}
	if p.Image.Kind != profile.ImageInline {
		t.Fatalf("stale rewrite applied: %+v", p.Image)
	}
}

func TestRun_DrainsQueue(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	s, _ := seed(t, profile.InlineImage([]byte("GIF89a"), "image/gif"))
	up := &fakeUploader{}
	q := queue.NewInMemory(4)
	msgs, _ := q.Consume(ctx)

	done := make(chan struct{})
	go func() {
		New(s, up, nil).Run(ctx, msgs)
		close(done)
	}()
	if err := q.Publish(ctx, queue.Message{Type: queue.TypeProfileSaved, Body: []byte("user_1")}); err != nil {
		t.Fatalf("publish: %v", err)
	}
	for i := 0; i < 200; i++ {
		p, _, _ := s.Get(context.Background(), "user_1")
		if p.Image.Kind == profile.ImageURL {
			break
		}
		time.Sleep(5 * time.Millisecond)
	}
	cancel()
	<-done
	if up.calls != 1 {
		t.Fatalf("expected one upload, got %d", up.calls)
	}
}
