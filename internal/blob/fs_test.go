package blob

import (
	"context"
	"errors"
	"io"
	"strings"
	"testing"
)

func newFSStore(t *testing.T) *Filesystem {
	t.Helper()
	store, err := NewFilesystem(t.TempDir())
	if err != nil {
		t.Fatalf("NewFilesystem: %v", err)
	}
	return store
}

func TestFilesystemRoundTrip(t *testing.T) {
	store := newFSStore(t)
	ctx := context.Background()

	body := `{"rows":3}`
	put, err := store.Put(ctx, "intake/batch-1.json", strings.NewReader(body), PutOptions{
		ContentType: "application/json",
		Metadata:    map[string]string{"batch": "batch-1"},
	})
	if err != nil {
		t.Fatalf("Put: %v", err)
	}
	if put.Size != int64(len(body)) {
		t.Fatalf("size = %d, want %d", put.Size, len(body))
	}
	if put.ETag == "" {
		t.Fatalf("expected etag")
	}

	info, rc, err := store.Get(ctx, "intake/batch-1.json")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	defer rc.Close()
	data, err := io.ReadAll(rc)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if string(data) != body {
		t.Fatalf("body = %q, want %q", data, body)
	}
	if info.ContentType != "application/json" || info.Metadata["batch"] != "batch-1" {
		t.Fatalf("metadata lost: %+v", info)
	}
	if info.ETag != put.ETag {
		t.Fatalf("etag changed between put and get")
	}

	head, err := store.Head(ctx, "intake/batch-1.json")
	if err != nil {
		t.Fatalf("Head: %v", err)
	}
	if head.Size != put.Size || head.ETag != put.ETag {
		t.Fatalf("head disagrees with put: %+v", head)
	}
}

func TestFilesystemPutIsCreateOnly(t *testing.T) {
	store := newFSStore(t)
	ctx := context.Background()

	if _, err := store.Put(ctx, "k", strings.NewReader("a"), PutOptions{}); err != nil {
		t.Fatalf("first put: %v", err)
	}
	if _, err := store.Put(ctx, "k", strings.NewReader("b"), PutOptions{}); err == nil {
		t.Fatalf("expected error on duplicate put")
	}

	_, rc, err := store.Get(ctx, "k")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	defer rc.Close()
	data, _ := io.ReadAll(rc)
	if string(data) != "a" {
		t.Fatalf("original content overwritten: %q", data)
	}
}

func TestFilesystemRejectsBadKeys(t *testing.T) {
	store := newFSStore(t)
	ctx := context.Background()

	for _, key := range []string{"", "  ", "../escape", "a/../../b", "/abs"} {
		if _, err := store.Put(ctx, key, strings.NewReader("x"), PutOptions{}); err == nil {
			t.Fatalf("key %q accepted", key)
		}
	}
}

func TestFilesystemDelete(t *testing.T) {
	store := newFSStore(t)
	ctx := context.Background()

	if _, err := store.Put(ctx, "k", strings.NewReader("a"), PutOptions{}); err != nil {
		t.Fatalf("Put: %v", err)
	}
	existed, err := store.Delete(ctx, "k")
	if err != nil || !existed {
		t.Fatalf("Delete = (%v, %v), want (true, nil)", existed, err)
	}
	existed, err = store.Delete(ctx, "k")
	if err != nil || existed {
		t.Fatalf("second Delete = (%v, %v), want (false, nil)", existed, err)
	}
	if _, err := store.Head(ctx, "k"); err == nil {
		t.Fatalf("Head succeeded after delete")
	}
}

func TestFilesystemListByPrefix(t *testing.T) {
	store := newFSStore(t)
	ctx := context.Background()

	for _, key := range []string{"intake/b.json", "intake/a.json", "audit/x.json"} {
		if _, err := store.Put(ctx, key, strings.NewReader("{}"), PutOptions{}); err != nil {
			t.Fatalf("Put %s: %v", key, err)
		}
	}

	infos, err := store.List(ctx, "intake/")
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(infos) != 2 {
		t.Fatalf("got %d blobs, want 2", len(infos))
	}
	if infos[0].Key != "intake/a.json" || infos[1].Key != "intake/b.json" {
		t.Fatalf("keys not sorted: %v, %v", infos[0].Key, infos[1].Key)
	}

	all, err := store.List(ctx, "")
	if err != nil {
		t.Fatalf("List all: %v", err)
	}
	if len(all) != 3 {
		t.Fatalf("got %d blobs, want 3", len(all))
	}
}

func TestFilesystemPresignGETOnly(t *testing.T) {
	store := newFSStore(t)
	ctx := context.Background()

	url, err := store.PresignURL(ctx, "k", SignedURLOptions{Method: "GET"})
	if err != nil {
		t.Fatalf("PresignURL: %v", err)
	}
	if !strings.HasSuffix(url, "/k") {
		t.Fatalf("unexpected url %q", url)
	}
	if _, err := store.PresignURL(ctx, "k", SignedURLOptions{Method: "PUT"}); !errors.Is(err, ErrUnsupported) {
		t.Fatalf("expected ErrUnsupported for PUT, got %v", err)
	}
}
