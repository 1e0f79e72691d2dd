package mycache

import (
	"context"
	"errors"
	"testing"
)

func TestGetMultiAggregatesValuesAndErrors(t *testing.T) {
	errNotFound := errors.New("not found")
	getter := GetterFunc(func(ctx context.Context, key string, dest Sink, cc *CacheControl) error {
		if key == "missing" {
			return errNotFound
		}
		return dest.SetString("value-of-" + key)
	})
	g := NewGroup(NewRegistry(), "g", NewPeerEndpoint("self", 1), newFakeLocalCache(), getter, GroupOptions{})

	values, errs := g.GetMulti(context.Background(), []string{"a", "b", "missing"})

	if string(values["a"]) != "value-of-a" || string(values["b"]) != "value-of-b" {
		t.Fatalf("unexpected values: %v", values)
	}
	if _, ok := values["missing"]; ok {
		t.Fatal("missing key should not appear in values")
	}
	if !errors.Is(errs["missing"], errNotFound) {
		t.Fatalf("errs[missing] = %v, want errNotFound", errs["missing"])
	}
	if len(errs) != 1 {
		t.Fatalf("len(errs) = %d, want 1", len(errs))
	}
}

func TestGetMultiEmptyKeysReturnsEmptyMaps(t *testing.T) {
	g := NewGroup(NewRegistry(), "g", NewPeerEndpoint("self", 1), newFakeLocalCache(),
		GetterFunc(func(ctx context.Context, key string, dest Sink, cc *CacheControl) error { return nil }), GroupOptions{})

	values, errs := g.GetMulti(context.Background(), nil)
	if len(values) != 0 || len(errs) != 0 {
		t.Fatalf("expected empty maps for empty key list, got values=%v errs=%v", values, errs)
	}
}

func TestGetMultiRespectsCancellation(t *testing.T) {
	getter := GetterFunc(func(ctx context.Context, key string, dest Sink, cc *CacheControl) error {
		if err := ctx.Err(); err != nil {
			return err
		}
		return dest.SetString("v")
	})
	g := NewGroup(NewRegistry(), "g", NewPeerEndpoint("self", 1), newFakeLocalCache(), getter, GroupOptions{})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, errs := g.GetMulti(ctx, []string{"a"})
	if !errors.Is(errs["a"], context.Canceled) {
		t.Fatalf("errs[a] = %v, want context.Canceled", errs["a"])
	}
}
