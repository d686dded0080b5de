package blob

import (
	"bytes"
	"context"
	"testing"
)

func TestJoinKey(t *testing.T) {
	cases := map[[2]string]string{
		{"", "a/b"}:        "a/b",
		{"base", "a/b"}:    "base/a/b",
		{"/base/", "/a"}:   "base/a",
		{"base", ""}:       "base",
		{" base ", " a b"}: "base/a b",
	}
	for in, want := range cases {
		if got := JoinKey(in[0], in[1]); got != want {
			t.Fatalf("JoinKey(%q,%q)=%q, want %q", in[0], in[1], got, want)
		}
	}
}

func TestLocalStoreRoundTrip(t *testing.T) {
	store, err := New(Config{Provider: "local", LocalDir: t.TempDir(), BasePrefix: "mainai"})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	ctx := context.Background()

	key := "uploads/unit/123/photo.jpg"
	payload := []byte{0xff, 0xd8, 0xff, 0xe0}
	if err := store.Put(ctx, key, "image/jpeg", payload); err != nil {
		t.Fatalf("Put: %v", err)
	}

	ok, err := store.Exists(ctx, key)
	if err != nil || !ok {
		t.Fatalf("Exists: ok=%v err=%v", ok, err)
	}

	got, err := store.Get(ctx, key)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if !bytes.Equal(got, payload) {
		t.Fatal("payload mismatch")
	}

	ok, err = store.Exists(ctx, "uploads/unit/123/missing.jpg")
	if err != nil || ok {
		t.Fatalf("expected missing object, ok=%v err=%v", ok, err)
	}
}

func TestNewRejectsUnknownProvider(t *testing.T) {
	if _, err := New(Config{Provider: "s3"}); err == nil {
		t.Fatal("expected error for unsupported provider")
	}
	if _, err := New(Config{Provider: "local"}); err == nil {
		t.Fatal("expected error when local dir is missing")
	}
}
