package blob

import (
	"context"
	"io"
	"strings"
	"testing"
)

func stores(t *testing.T) map[string]Store {
	t.Helper()
	fsStore, err := NewFilesystem(t.TempDir())
	if err != nil {
		t.Fatalf("NewFilesystem: %v", err)
	}
	return map[string]Store{
		"memory": NewMemory(),
		"fs":     fsStore,
	}
}

func TestPutGetRoundTrip(t *testing.T) {
	for name, store := range stores(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			info, err := store.Put(ctx, "documents/a/report.pdf", strings.NewReader("hello"), PutOptions{ContentType: "application/pdf"})
			if err != nil {
				t.Fatalf("put: %v", err)
			}
			if info.Size != 5 {
				t.Fatalf("size = %d, want 5", info.Size)
			}
			if info.ETag == "" {
				t.Fatal("etag not computed")
			}

			got, rc, err := store.Get(ctx, "documents/a/report.pdf")
			if err != nil {
				t.Fatalf("get: %v", err)
			}
			defer rc.Close()
			data, err := io.ReadAll(rc)
			if err != nil {
				t.Fatalf("read: %v", err)
			}
			if string(data) != "hello" {
				t.Fatalf("content = %q", data)
			}
			if got.ContentType != "application/pdf" {
				t.Fatalf("content type = %q", got.ContentType)
			}
		})
	}
}

func TestPutIsCreateOnly(t *testing.T) {
	for name, store := range stores(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			if _, err := store.Put(ctx, "k", strings.NewReader("one"), PutOptions{}); err != nil {
				t.Fatalf("put: %v", err)
			}
			if _, err := store.Put(ctx, "k", strings.NewReader("two"), PutOptions{}); err == nil {
				t.Fatal("second put on same key must fail")
			}
		})
	}
}

func TestDeleteReportsPresence(t *testing.T) {
	for name, store := range stores(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			if _, err := store.Put(ctx, "k", strings.NewReader("x"), PutOptions{}); err != nil {
				t.Fatalf("put: %v", err)
			}
			existed, err := store.Delete(ctx, "k")
			if err != nil || !existed {
				t.Fatalf("delete existing: existed=%v err=%v", existed, err)
			}
			existed, err = store.Delete(ctx, "k")
			if err != nil || existed {
				t.Fatalf("delete missing: existed=%v err=%v", existed, err)
			}
			if _, err := store.Head(ctx, "k"); err == nil {
				t.Fatal("head should fail after delete")
			}
		})
	}
}

func TestListFiltersByPrefix(t *testing.T) {
	for name, store := range stores(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			for _, key := range []string{"documents/a/1", "documents/b/2", "images/c"} {
				if _, err := store.Put(ctx, key, strings.NewReader("x"), PutOptions{}); err != nil {
					t.Fatalf("put %s: %v", key, err)
				}
			}
			infos, err := store.List(ctx, "documents/")
			if err != nil {
				t.Fatalf("list: %v", err)
			}
			if len(infos) != 2 {
				t.Fatalf("listed %d blobs, want 2", len(infos))
			}
			if infos[0].Key > infos[1].Key {
				t.Fatal("listing not sorted by key")
			}
		})
	}
}

func TestFilesystemRejectsTraversal(t *testing.T) {
	store, err := NewFilesystem(t.TempDir())
	if err != nil {
		t.Fatalf("NewFilesystem: %v", err)
	}
	ctx := context.Background()
	for _, key := range []string{"", "../escape", "/abs", "a/../../b"} {
		if _, err := store.Put(ctx, key, strings.NewReader("x"), PutOptions{}); err == nil {
			t.Fatalf("key %q should be rejected", key)
		}
	}
}

func TestOpenSelectsDriverFromEnv(t *testing.T) {
	t.Setenv("VETCORE_BLOB_DRIVER", "memory")
	store, err := Open(context.Background())
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	if store.Driver() != DriverMemory {
		t.Fatalf("driver = %s, want %s", store.Driver(), DriverMemory)
	}

	t.Setenv("VETCORE_BLOB_DRIVER", "fs")
	t.Setenv("VETCORE_BLOB_FS_ROOT", t.TempDir())
	store, err = Open(context.Background())
	if err != nil {
		t.Fatalf("Open fs: %v", err)
	}
	if store.Driver() != DriverFilesystem {
		t.Fatalf("driver = %s, want %s", store.Driver(), DriverFilesystem)
	}

	t.Setenv("VETCORE_BLOB_DRIVER", "carrier-pigeon")
	if _, err := Open(context.Background()); err == nil {
		t.Fatal("unknown driver must error")
	}
}

func TestOpenS3RequiresBucket(t *testing.T) {
	t.Setenv("VETCORE_BLOB_DRIVER", "s3")
	t.Setenv("VETCORE_BLOB_S3_BUCKET", "")
	if _, err := Open(context.Background()); err == nil {
		t.Fatal("s3 driver without bucket must error")
	}
}
