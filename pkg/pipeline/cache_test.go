package pipeline

import (
	"context"
	"errors"
	"testing"
)

type fakeReleaser struct {
	calls int
	err   error
}

func (f *fakeReleaser) ReleaseCache(context.Context) error {
	f.calls++
	return f.err
}

func TestModelCacheEvictAll(t *testing.T) {
	cache := NewModelCache(4)
	a := &fakeReleaser{}
	b := &fakeReleaser{err: errors.New("backend gone")}
	c := &fakeReleaser{}
	cache.Register("a", a)
	cache.Register("b", b)
	cache.Register("c", c)

	cache.EvictAll(context.Background())

	// One failing backend must not stop the sweep.
	if a.calls != 1 || b.calls != 1 || c.calls != 1 {
		t.Errorf("release calls = %d, %d, %d; want 1 each", a.calls, b.calls, c.calls)
	}
}

func TestModelCacheBounded(t *testing.T) {
	cache := NewModelCache(2)
	oldest := &fakeReleaser{}
	cache.Register("oldest", oldest)
	cache.Register("second", &fakeReleaser{})
	cache.Register("third", &fakeReleaser{})

	if got := cache.Len(); got != 2 {
		t.Errorf("Len() = %d, want capacity 2", got)
	}
	if oldest.calls != 1 {
		t.Errorf("evicted entry release calls = %d, want 1", oldest.calls)
	}

	// The dropped entry must not be swept again.
	cache.EvictAll(context.Background())
	if oldest.calls != 1 {
		t.Errorf("dropped entry swept after overflow: %d calls", oldest.calls)
	}
}

func TestModelCacheReregister(t *testing.T) {
	cache := NewModelCache(2)
	first := &fakeReleaser{}
	second := &fakeReleaser{}
	cache.Register("stt", first)
	cache.Register("stt", second)

	if got := cache.Len(); got != 1 {
		t.Errorf("Len() = %d, want 1 after re-registration", got)
	}
	cache.EvictAll(context.Background())
	if first.calls != 0 || second.calls != 1 {
		t.Errorf("calls = %d, %d; want the replacement swept only", first.calls, second.calls)
	}
}
