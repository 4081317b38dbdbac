package memory

import (
	"context"
	"testing"
)

func TestKVStoreLifecycle(t *testing.T) {
	ctx := context.Background()
	store := NewKVStore()

	if _, ok, _ := store.Get(ctx, "token"); ok {
		t.Fatalf("expected empty store")
	}
	if err := store.Set(ctx, "token", "abc"); err != nil {
		t.Fatalf("set: %v", err)
	}
	value, ok, err := store.Get(ctx, "token")
	if err != nil || !ok || value != "abc" {
		t.Fatalf("expected abc, got %q ok=%v err=%v", value, ok, err)
	}

	_ = store.Delete(ctx, "token")
	if _, ok, _ := store.Get(ctx, "token"); ok {
		t.Fatalf("expected value removed")
	}
}
