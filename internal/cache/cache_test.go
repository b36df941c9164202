package cache

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("condition not met within deadline")
}

func TestRead_FetchesOnceWhileFresh(t *testing.T) {
	c := New()
	var calls atomic.Int64
	fetch := func(ctx context.Context) (int, error) {
		calls.Add(1)
		return 42, nil
	}

	for i := 0; i < 3; i++ {
		got, err := Read(context.Background(), c, "k", fetch, ReadOptions{})
		if err != nil {
			t.Fatalf("Read() error: %v", err)
		}
		if got != 42 {
			t.Fatalf("Read() = %d, want 42", got)
		}
	}
	if got := calls.Load(); got != 1 {
		t.Errorf("fetch calls = %d, want 1", got)
	}
}

func TestRead_ConcurrentReadsShareOneFlight(t *testing.T) {
	c := New()
	var calls atomic.Int64
	release := make(chan struct{})
	fetch := func(ctx context.Context) (string, error) {
		calls.Add(1)
		<-release
		return "v", nil
	}

	const n = 4
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := Read(context.Background(), c, "k", fetch, ReadOptions{}); err != nil {
				t.Errorf("Read() error: %v", err)
			}
		}()
	}
	waitFor(t, func() bool { return calls.Load() == 1 })
	close(release)
	wg.Wait()

	if got := calls.Load(); got != 1 {
		t.Errorf("fetch calls = %d, want 1 (deduplicated)", got)
	}
}

func TestRead_StaleServedWhileRevalidating(t *testing.T) {
	c := New()
	now := time.Now()
	c.SetClock(func() time.Time { return now })

	var value atomic.Int64
	value.Store(1)
	fetch := func(ctx context.Context) (int64, error) {
		return value.Load(), nil
	}
	opts := ReadOptions{FreshFor: 30 * time.Second, DedupInterval: 5 * time.Second}

	if got, _ := Read(context.Background(), c, "k", fetch, opts); got != 1 {
		t.Fatalf("initial Read() = %d, want 1", got)
	}

	// Advance past the freshness window; server now has a new value.
	now = now.Add(time.Minute)
	value.Store(2)

	// Stale read returns the previous value immediately.
	if got, _ := Read(context.Background(), c, "k", fetch, opts); got != 1 {
		t.Errorf("stale Read() = %d, want previous value 1", got)
	}

	// The background refresh lands shortly after.
	waitFor(t, func() bool {
		v, ok := Peek[int64](c, "k")
		return ok && v == 2
	})
}

func TestRead_StaleDedupWindow(t *testing.T) {
	c := New()
	now := time.Now()
	c.SetClock(func() time.Time { return now })

	var calls atomic.Int64
	fetch := func(ctx context.Context) (int, error) {
		calls.Add(1)
		return 7, nil
	}
	opts := ReadOptions{FreshFor: 30 * time.Second, DedupInterval: 5 * time.Second}

	Read(context.Background(), c, "k", fetch, opts) //nolint:errcheck
	now = now.Add(time.Minute)

	// Several stale reads inside one dedup window trigger one refresh.
	for i := 0; i < 3; i++ {
		Read(context.Background(), c, "k", fetch, opts) //nolint:errcheck
	}
	waitFor(t, func() bool { return calls.Load() == 2 })
	time.Sleep(20 * time.Millisecond)
	if got := calls.Load(); got != 2 {
		t.Errorf("fetch calls = %d, want 2 (initial + one refresh)", got)
	}
}

func TestRead_FailureKeepsStaleData(t *testing.T) {
	c := New()
	now := time.Now()
	c.SetClock(func() time.Time { return now })

	failing := atomic.Bool{}
	fetch := func(ctx context.Context) (string, error) {
		if failing.Load() {
			return "", errors.New("backend down")
		}
		return "good", nil
	}
	opts := ReadOptions{FreshFor: 30 * time.Second, DedupInterval: time.Millisecond}

	if got, err := Read(context.Background(), c, "k", fetch, opts); err != nil || got != "good" {
		t.Fatalf("Read() = %q, %v", got, err)
	}

	failing.Store(true)
	now = now.Add(time.Minute)

	got, err := Read(context.Background(), c, "k", fetch, opts)
	if err != nil {
		t.Fatalf("stale Read() error: %v, want nil (stale data available)", err)
	}
	if got != "good" {
		t.Errorf("stale Read() = %q, want last-known-good %q", got, "good")
	}
	waitFor(t, func() bool { return c.LastError("k") != nil })
}

func TestRead_FirstFetchFailure(t *testing.T) {
	c := New()
	fetch := func(ctx context.Context) (string, error) {
		return "", errors.New("boom")
	}
	_, err := Read(context.Background(), c, "k", fetch, ReadOptions{})
	if err == nil {
		t.Fatal("expected error when no cached data exists")
	}
}

func TestMutate_Synchronous(t *testing.T) {
	c := New()
	c.Mutate("k", func(current any) any {
		if current != nil {
			t.Errorf("current = %v, want nil for unpopulated key", current)
		}
		return []string{"a"}
	})
	v, ok := Peek[[]string](c, "k")
	if !ok || len(v) != 1 || v[0] != "a" {
		t.Errorf("Peek() = %v, %v, want [a]", v, ok)
	}
	if c.Version("k") != 1 {
		t.Errorf("Version = %d, want 1", c.Version("k"))
	}
}

func TestMutateMany_AllApplied(t *testing.T) {
	c := New()
	c.MutateMany(map[string]UpdateFunc{
		"a": func(any) any { return 1 },
		"b": func(any) any { return 2 },
	})
	if v, _ := Peek[int](c, "a"); v != 1 {
		t.Errorf("a = %d, want 1", v)
	}
	if v, _ := Peek[int](c, "b"); v != 2 {
		t.Errorf("b = %d, want 2", v)
	}
}

func TestRevalidate_ReplacesOptimisticValue(t *testing.T) {
	c := New()
	fetch := func(ctx context.Context) (string, error) { return "server", nil }
	Read(context.Background(), c, "k", fetch, ReadOptions{}) //nolint:errcheck

	c.Mutate("k", func(any) any { return "optimistic" })
	if v, _ := Peek[string](c, "k"); v != "optimistic" {
		t.Fatalf("after Mutate = %q, want optimistic", v)
	}

	if err := c.Revalidate(context.Background(), "k"); err != nil {
		t.Fatalf("Revalidate() error: %v", err)
	}
	if v, _ := Peek[string](c, "k"); v != "server" {
		t.Errorf("after Revalidate = %q, want server", v)
	}
}

func TestRevalidate_StaleFlightCannotOverwriteNewerMutation(t *testing.T) {
	c := New()
	started := make(chan struct{}, 2)
	release := make(chan struct{})
	fetch := func(ctx context.Context) (any, error) {
		started <- struct{}{}
		<-release
		return "stale-server-view", nil
	}

	// Populate, then mark the value optimistic. The stale read below spawns
	// a background refresh; Revalidate starts a second, explicit flight.
	c.Mutate("k", func(any) any { return "v1" })
	if _, err := c.Read(context.Background(), "k", fetch, ReadOptions{}); err != nil {
		t.Fatal(err)
	}

	done := make(chan error, 1)
	go func() { done <- c.Revalidate(context.Background(), "k") }()
	<-started
	<-started

	// A mutation lands while the revalidation fetch is in flight.
	c.Mutate("k", func(any) any { return "newer-optimistic" })
	close(release)
	if err := <-done; err != nil {
		t.Fatalf("Revalidate() error: %v", err)
	}

	if v, _ := Peek[string](c, "k"); v != "newer-optimistic" {
		t.Errorf("value = %q, want newer-optimistic (stale flight discarded)", v)
	}
}

func TestOnFocus_RefreshesOptedInKeys(t *testing.T) {
	c := New()
	now := time.Now()
	c.SetClock(func() time.Time { return now })

	var focusCalls, plainCalls atomic.Int64
	Read(context.Background(), c, "focus", func(ctx context.Context) (any, error) { //nolint:errcheck
		focusCalls.Add(1)
		return "x", nil
	}, ReadOptions{RevalidateOnFocus: true})
	Read(context.Background(), c, "plain", func(ctx context.Context) (any, error) { //nolint:errcheck
		plainCalls.Add(1)
		return "y", nil
	}, ReadOptions{})

	now = now.Add(time.Minute)
	c.OnFocus()

	waitFor(t, func() bool { return focusCalls.Load() == 2 })
	if got := plainCalls.Load(); got != 1 {
		t.Errorf("plain key refreshed on focus: calls = %d, want 1", got)
	}
}
