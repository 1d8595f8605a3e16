package registry

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRegisterDuplicate(t *testing.T) {
	r := New()
	first := make(chan string, 1)
	second := make(chan string, 1)

	require.NoError(t, r.Register("alice", first))
	err := r.Register("alice", second)
	require.ErrorIs(t, err, ErrIdentityInUse)

	// The first session is unaffected.
	sink, ok := r.Lookup("alice")
	require.True(t, ok)
	sink <- "hello"
	assert.Equal(t, "hello", <-first)
	assert.Equal(t, 1, r.Count())
}

func TestUnregisterIdempotent(t *testing.T) {
	r := New()
	require.NoError(t, r.Register("alice", make(chan string, 1)))

	r.Unregister("alice")
	r.Unregister("alice") // absent: must be a silent no-op
	r.Unregister("never-registered")
	assert.Equal(t, 0, r.Count())
}

func TestLookupMissing(t *testing.T) {
	r := New()
	_, ok := r.Lookup("ghost")
	assert.False(t, ok)
}

func TestBroadcastReachesAllSinks(t *testing.T) {
	r := New()
	a := make(chan string, 4)
	b := make(chan string, 4)
	require.NoError(t, r.Register("a", a))
	require.NoError(t, r.Register("b", b))

	r.Broadcast("one")
	r.Broadcast("two")

	assert.Equal(t, "one", <-a)
	assert.Equal(t, "two", <-a)
	assert.Equal(t, "one", <-b)
	assert.Equal(t, "two", <-b)

	delivered, dropped := r.Stats()
	assert.Equal(t, uint64(4), delivered)
	assert.Equal(t, uint64(0), dropped)
}

func TestBroadcastFullSinkDoesNotBlockOthers(t *testing.T) {
	r := New()

	var evicted []string
	var mu sync.Mutex
	done := make(chan struct{})
	r.SetOverflowHandler(func(identity string) {
		mu.Lock()
		evicted = append(evicted, identity)
		mu.Unlock()
		close(done)
	})

	stuck := make(chan string, 1)
	stuck <- "already full"
	healthy := make(chan string, 4)
	require.NoError(t, r.Register("stuck", stuck))
	require.NoError(t, r.Register("healthy", healthy))

	broadcastDone := make(chan struct{})
	go func() {
		r.Broadcast("line")
		close(broadcastDone)
	}()

	select {
	case <-broadcastDone:
	case <-time.After(time.Second):
		t.Fatal("broadcast blocked on a full sink")
	}

	assert.Equal(t, "line", <-healthy)

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("overflow handler not invoked")
	}
	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, []string{"stuck"}, evicted)

	_, dropped := r.Stats()
	assert.Equal(t, uint64(1), dropped)
}

func TestConcurrentRegisterSameIdentity(t *testing.T) {
	r := New()

	const attempts = 16
	errs := make(chan error, attempts)
	var wg sync.WaitGroup
	for i := 0; i < attempts; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			errs <- r.Register("contested", make(chan string, 1))
		}()
	}
	wg.Wait()
	close(errs)

	var ok, rejected int
	for err := range errs {
		if err == nil {
			ok++
		} else {
			rejected++
		}
	}
	assert.Equal(t, 1, ok)
	assert.Equal(t, attempts-1, rejected)
	assert.Equal(t, 1, r.Count())
}
