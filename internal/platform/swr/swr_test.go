package swr

import (
	"context"
	"errors"
	"strconv"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

type contact struct {
	ID   string
	Name string
}

func TestInvokeStoresValueOnSuccess(t *testing.T) {
	cache := New[[]contact](Options{})
	handle := cache.Invoke(context.Background(), "contacts/list", func(context.Context) ([]contact, error) {
		return []contact{{ID: "1", Name: "Ada"}}, nil
	})
	defer handle.Release()

	value, err := handle.Wait(context.Background())
	if err != nil {
		t.Fatalf("wait: %v", err)
	}
	if len(value) != 1 || value[0].Name != "Ada" {
		t.Fatalf("unexpected value %v", value)
	}

	snap := handle.Snapshot()
	if !snap.HasData || snap.Loading || snap.Err != nil {
		t.Fatalf("expected settled ready snapshot, got %+v", snap)
	}
}

func TestInvokeKeepsAbsentDistinctFromEmpty(t *testing.T) {
	cache := New[[]contact](Options{})

	release := make(chan struct{})
	handle := cache.Invoke(context.Background(), "contacts/list", func(context.Context) ([]contact, error) {
		<-release
		return []contact{}, nil
	})
	defer handle.Release()

	snap := handle.Snapshot()
	if snap.HasData {
		t.Fatal("expected no data before first resolution")
	}
	if !snap.Loading {
		t.Fatal("expected loading before first resolution")
	}

	close(release)
	if _, err := handle.Wait(context.Background()); err != nil {
		t.Fatalf("wait: %v", err)
	}
	snap = handle.Snapshot()
	if !snap.HasData {
		t.Fatal("expected empty collection to count as data")
	}
	if len(snap.Current) != 0 {
		t.Fatalf("expected empty collection, got %v", snap.Current)
	}
}

func TestInvokeFailureLeavesNoData(t *testing.T) {
	cache := New[[]contact](Options{})
	fetchErr := errors.New("backend down")
	handle := cache.Invoke(context.Background(), "contacts/list", func(context.Context) ([]contact, error) {
		return nil, fetchErr
	})
	defer handle.Release()

	if _, err := handle.Wait(context.Background()); !errors.Is(err, fetchErr) {
		t.Fatalf("expected fetch error, got %v", err)
	}
	snap := handle.Snapshot()
	if snap.HasData || snap.Loading {
		t.Fatalf("expected errored no-data state, got %+v", snap)
	}
	if !errors.Is(snap.Err, fetchErr) {
		t.Fatalf("expected recorded error, got %v", snap.Err)
	}
}

func TestConcurrentInvokesShareSingleFetch(t *testing.T) {
	cache := New[[]contact](Options{})

	var executions atomic.Int64
	release := make(chan struct{})
	fetcher := func(context.Context) ([]contact, error) {
		executions.Add(1)
		<-release
		return []contact{{ID: "1", Name: "Ada"}}, nil
	}

	first := cache.Invoke(context.Background(), "contacts/list", fetcher)
	defer first.Release()
	second := cache.Invoke(context.Background(), "contacts/list", fetcher)
	defer second.Release()

	if first != second {
		t.Fatal("expected both invokes to share one handle")
	}

	var wg sync.WaitGroup
	results := make([][]contact, 2)
	for i, handle := range []*Handle[[]contact]{first, second} {
		wg.Add(1)
		go func() {
			defer wg.Done()
			value, err := handle.Wait(context.Background())
			if err != nil {
				t.Errorf("wait: %v", err)
				return
			}
			results[i] = value
		}()
	}
	close(release)
	wg.Wait()

	if got := executions.Load(); got != 1 {
		t.Fatalf("expected exactly one fetch execution, got %d", got)
	}
	if len(results[0]) != 1 || len(results[1]) != 1 || results[0][0] != results[1][0] {
		t.Fatalf("expected both callers to observe the same value, got %v and %v", results[0], results[1])
	}
}

func TestFreshHandleIsLoadingBeforeFirstSettle(t *testing.T) {
	cache := New[int](Options{})

	release := make(chan struct{})
	handle := cache.Invoke(context.Background(), "slow", func(context.Context) (int, error) {
		<-release
		return 7, nil
	})
	defer handle.Release()

	snapshot := handle.Snapshot()
	if !snapshot.Loading || snapshot.HasData {
		t.Fatalf("expected a loading no-data snapshot, got %+v", snapshot)
	}

	close(release)
	if value, err := handle.Wait(context.Background()); err != nil || value != 7 {
		t.Fatalf("wait: value %d err %v", value, err)
	}
}

func TestRacingInvokersObserveTheResolvedValue(t *testing.T) {
	cache := New[int](Options{})

	// Fresh key each round so every round races handle creation itself.
	for round := 0; round < 200; round++ {
		key := "contacts/get?id=" + strconv.Itoa(round)
		const invokers = 8

		var wg sync.WaitGroup
		values := make([]int, invokers)
		waitErrs := make([]error, invokers)
		for i := 0; i < invokers; i++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				handle := cache.Invoke(context.Background(), key, func(context.Context) (int, error) {
					return 42, nil
				})
				defer handle.Release()
				values[i], waitErrs[i] = handle.Wait(context.Background())
			}()
		}
		wg.Wait()

		for i := 0; i < invokers; i++ {
			if waitErrs[i] != nil || values[i] != 42 {
				t.Fatalf("round %d invoker %d: value %d err %v", round, i, values[i], waitErrs[i])
			}
		}
	}
}

func TestRefreshKeepsStaleValueWhileLoading(t *testing.T) {
	cache := New[[]contact](Options{})

	var calls atomic.Int64
	release := make(chan struct{})
	handle := cache.Invoke(context.Background(), "contacts/list", func(context.Context) ([]contact, error) {
		if calls.Add(1) == 1 {
			return []contact{{ID: "1", Name: "Ada"}}, nil
		}
		<-release
		return []contact{{ID: "1", Name: "Ada"}, {ID: "2", Name: "Grace"}}, nil
	})
	defer handle.Release()

	if _, err := handle.Wait(context.Background()); err != nil {
		t.Fatalf("initial wait: %v", err)
	}

	handle.Refresh(context.Background())

	snap := handle.Snapshot()
	if !snap.Loading {
		t.Fatal("expected loading during refresh")
	}
	if !snap.HasData || len(snap.Current) != 1 {
		t.Fatalf("expected stale value during refresh, got %+v", snap)
	}

	close(release)
	value, err := handle.Wait(context.Background())
	if err != nil {
		t.Fatalf("refresh wait: %v", err)
	}
	if len(value) != 2 {
		t.Fatalf("expected refreshed value, got %v", value)
	}
}

func TestRefreshFailureKeepsCurrent(t *testing.T) {
	cache := New[[]contact](Options{})

	fetchErr := errors.New("backend down")
	var calls atomic.Int64
	handle := cache.Invoke(context.Background(), "contacts/list", func(context.Context) ([]contact, error) {
		if calls.Add(1) == 1 {
			return []contact{{ID: "1"}}, nil
		}
		return nil, fetchErr
	})
	defer handle.Release()

	if _, err := handle.Wait(context.Background()); err != nil {
		t.Fatalf("initial wait: %v", err)
	}

	handle.Refresh(context.Background())
	value, err := handle.Wait(context.Background())
	if !errors.Is(err, fetchErr) {
		t.Fatalf("expected refresh failure, got %v", err)
	}
	if len(value) != 1 || value[0].ID != "1" {
		t.Fatalf("expected stale value preserved, got %v", value)
	}

	snap := handle.Snapshot()
	if !snap.HasData || !errors.Is(snap.Err, fetchErr) {
		t.Fatalf("expected errored stale snapshot, got %+v", snap)
	}
}

func TestRefreshAfterErrorClearsErrorOnSuccess(t *testing.T) {
	cache := New[[]contact](Options{})

	var calls atomic.Int64
	handle := cache.Invoke(context.Background(), "contacts/list", func(context.Context) ([]contact, error) {
		if calls.Add(1) == 1 {
			return nil, errors.New("backend down")
		}
		return []contact{{ID: "1"}}, nil
	})
	defer handle.Release()

	if _, err := handle.Wait(context.Background()); err == nil {
		t.Fatal("expected initial failure")
	}

	handle.Refresh(context.Background())
	value, err := handle.Wait(context.Background())
	if err != nil {
		t.Fatalf("recovery wait: %v", err)
	}
	if len(value) != 1 {
		t.Fatalf("expected recovered value, got %v", value)
	}
	if snap := handle.Snapshot(); snap.Err != nil {
		t.Fatalf("expected error cleared after success, got %v", snap.Err)
	}
}

func TestSupersededCompletionIsDiscarded(t *testing.T) {
	cache := New[string](Options{})

	releaseFirst := make(chan struct{})
	var calls atomic.Int64
	handle := cache.Invoke(context.Background(), "contacts/get?id=1", func(context.Context) (string, error) {
		if calls.Add(1) == 1 {
			<-releaseFirst
			return "old", nil
		}
		return "new", nil
	})
	defer handle.Release()

	// Second generation overtakes the blocked first fetch.
	handle.Refresh(context.Background())
	value, err := handle.Wait(context.Background())
	if err != nil {
		t.Fatalf("wait: %v", err)
	}
	if value != "new" {
		t.Fatalf("expected newer generation to win, got %q", value)
	}

	// Let the stale generation finish; its result must not overwrite.
	close(releaseFirst)
	deadline := time.After(2 * time.Second)
	for calls.Load() < 2 {
		select {
		case <-deadline:
			t.Fatal("stale fetch never completed")
		case <-time.After(time.Millisecond):
		}
	}
	// Give the stale settle path a moment to run before asserting.
	time.Sleep(10 * time.Millisecond)
	if snap := handle.Snapshot(); snap.Current != "new" {
		t.Fatalf("expected stale completion discarded, got %q", snap.Current)
	}
}

func TestSubscribeSignalsOnEverySettle(t *testing.T) {
	cache := New[int](Options{})

	updates, cancel := cache.Subscribe("counter")
	defer cancel()

	var value atomic.Int64
	handle := cache.Invoke(context.Background(), "counter", func(context.Context) (int, error) {
		return int(value.Add(1)), nil
	})
	defer handle.Release()

	select {
	case <-updates:
	case <-time.After(2 * time.Second):
		t.Fatal("expected notification after initial fetch")
	}

	handle.Refresh(context.Background())
	select {
	case <-updates:
	case <-time.After(2 * time.Second):
		t.Fatal("expected notification after refresh")
	}
}

func TestRefreshPrefixTargetsMatchingKeys(t *testing.T) {
	cache := New[int](Options{})

	var listFetches, otherFetches atomic.Int64
	list := cache.Invoke(context.Background(), "contacts/list?owner=o1", func(context.Context) (int, error) {
		return int(listFetches.Add(1)), nil
	})
	defer list.Release()
	tagged := cache.Invoke(context.Background(), "contacts/list?owner=o1&tag=vip", func(context.Context) (int, error) {
		return int(listFetches.Add(1)), nil
	})
	defer tagged.Release()
	other := cache.Invoke(context.Background(), "contacts/list?owner=o2", func(context.Context) (int, error) {
		return int(otherFetches.Add(1)), nil
	})
	defer other.Release()

	for _, handle := range []*Handle[int]{list, tagged, other} {
		if _, err := handle.Wait(context.Background()); err != nil {
			t.Fatalf("wait: %v", err)
		}
	}

	refreshed := cache.RefreshPrefix(context.Background(), "contacts/list?owner=o1")
	if refreshed != 2 {
		t.Fatalf("expected 2 refreshed handles, got %d", refreshed)
	}
	for _, handle := range []*Handle[int]{list, tagged} {
		if _, err := handle.Wait(context.Background()); err != nil {
			t.Fatalf("wait after refresh: %v", err)
		}
	}
	if got := listFetches.Load(); got != 4 {
		t.Fatalf("expected matching handles refetched, got %d fetches", got)
	}
	if got := otherFetches.Load(); got != 1 {
		t.Fatalf("expected non-matching handle untouched, got %d fetches", got)
	}
}

func TestEvictRespectsReferences(t *testing.T) {
	cache := New[int](Options{})

	handle := cache.Invoke(context.Background(), "counter", func(context.Context) (int, error) {
		return 1, nil
	})
	if _, err := handle.Wait(context.Background()); err != nil {
		t.Fatalf("wait: %v", err)
	}

	if cache.Evict("counter") {
		t.Fatal("expected referenced handle to survive eviction")
	}
	handle.Release()
	if !cache.Evict("counter") {
		t.Fatal("expected unreferenced handle to be evicted")
	}
	if cache.Len() != 0 {
		t.Fatalf("expected empty cache, got %d handles", cache.Len())
	}
}

func TestSweepRemovesIdleHandles(t *testing.T) {
	cache := New[int](Options{})

	handle := cache.Invoke(context.Background(), "counter", func(context.Context) (int, error) {
		return 1, nil
	})
	if _, err := handle.Wait(context.Background()); err != nil {
		t.Fatalf("wait: %v", err)
	}
	handle.Release()

	if removed := cache.Sweep(time.Hour); removed != 0 {
		t.Fatalf("expected fresh handle to survive sweep, removed %d", removed)
	}
	if removed := cache.Sweep(-time.Second); removed != 1 {
		t.Fatalf("expected idle handle to be swept, removed %d", removed)
	}
}

func TestWaitHonorsContext(t *testing.T) {
	cache := New[int](Options{})

	block := make(chan struct{})
	defer close(block)
	handle := cache.Invoke(context.Background(), "counter", func(context.Context) (int, error) {
		<-block
		return 1, nil
	})
	defer handle.Release()

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	if _, err := handle.Wait(ctx); !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("expected deadline error, got %v", err)
	}
}

func TestFetcherTimeoutSurfacesAsError(t *testing.T) {
	cache := New[int](Options{FetchTimeout: 20 * time.Millisecond})

	handle := cache.Invoke(context.Background(), "counter", func(ctx context.Context) (int, error) {
		<-ctx.Done()
		return 0, ctx.Err()
	})
	defer handle.Release()

	if _, err := handle.Wait(context.Background()); !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("expected fetch timeout, got %v", err)
	}
}
