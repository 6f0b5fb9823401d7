package correlator

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/BRO3886/docbatch/internal/decoder"
	"github.com/BRO3886/docbatch/internal/query"
	"github.com/BRO3886/docbatch/internal/transport"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeTransport hands every async send to handle on its own goroutine.
// The index is the dispatch order, which matches the request slot.
type fakeTransport struct {
	mu     sync.Mutex
	sent   int
	handle func(i int, req transport.Request, done transport.Callback)
}

func (f *fakeTransport) SendSync(ctx context.Context, req transport.Request) (*transport.Response, error) {
	return nil, errors.New("not used")
}

func (f *fakeTransport) SendAsync(ctx context.Context, req transport.Request, done transport.Callback) {
	f.mu.Lock()
	i := f.sent
	f.sent++
	f.mu.Unlock()
	go f.handle(i, req, done)
}

func counterRequests(t *testing.T, n int) []transport.Request {
	t.Helper()
	reqs := make([]transport.Request, n)
	for i := range reqs {
		req, err := query.IndexDocument("test", query.CounterDocument(i))
		require.NoError(t, err)
		reqs[i] = req
	}
	return reqs
}

// echoID answers with an _id derived from the request's counter field.
func echoID(req transport.Request) *transport.Response {
	var doc map[string]string
	_ = json.Unmarshal(req.Body, &doc)
	body := fmt.Sprintf(`{"_index":"test","_id":"id-%s","result":"created"}`, doc["customCountField"])
	return &transport.Response{Status: 201, Body: []byte(body)}
}

func TestRunBatchEmpty(t *testing.T) {
	c := New(&fakeTransport{})
	outcomes, err := c.RunBatch(context.Background(), nil)
	require.NoError(t, err)
	assert.NotNil(t, outcomes)
	assert.Empty(t, outcomes)
}

func TestRunBatchAllSucceed(t *testing.T) {
	ft := &fakeTransport{handle: func(i int, req transport.Request, done transport.Callback) {
		// finish in reverse order
		time.Sleep(time.Duration(5-i) * 2 * time.Millisecond)
		done(echoID(req), nil)
	}}
	c := New(ft, WithTimeout(time.Second))

	outcomes, err := c.RunBatch(context.Background(), counterRequests(t, 5))
	require.NoError(t, err)
	require.Len(t, outcomes, 5)

	seen := map[string]bool{}
	for i, o := range outcomes {
		assert.Equal(t, i, o.Index)
		assert.True(t, o.OK())
		assert.Equal(t, fmt.Sprintf("id-%d", i), o.ID)
		seen[o.ID] = true
	}
	assert.Len(t, seen, 5)
}

func TestRunBatchPartialFailure(t *testing.T) {
	ft := &fakeTransport{handle: func(i int, req transport.Request, done transport.Callback) {
		switch i {
		case 1, 3:
			done(nil, &transport.TransportError{Method: req.Method, Path: req.Path, StatusCode: 503})
		case 2:
			done(&transport.Response{Status: 201, Body: []byte(`{"result":"created"}`)}, nil)
		default:
			done(echoID(req), nil)
		}
	}}
	c := New(ft)

	outcomes, err := c.RunBatch(context.Background(), counterRequests(t, 5))
	require.NoError(t, err)
	require.Len(t, outcomes, 5)

	for _, i := range []int{0, 4} {
		assert.True(t, outcomes[i].OK(), "slot %d", i)
	}
	for _, i := range []int{1, 3} {
		var te *transport.TransportError
		assert.True(t, errors.As(outcomes[i].Err, &te), "slot %d", i)
		assert.Empty(t, outcomes[i].ID)
	}
	var de *decoder.DecodeError
	assert.True(t, errors.As(outcomes[2].Err, &de))
	assert.Empty(t, outcomes[2].ID)
}

func TestRunBatchIgnoresDuplicateCompletions(t *testing.T) {
	release := make(chan struct{})
	ft := &fakeTransport{handle: func(i int, req transport.Request, done transport.Callback) {
		if i == 0 {
			done(echoID(req), nil)
			done(nil, errors.New("duplicate"))
			done(echoID(req), nil)
			return
		}
		<-release
		done(echoID(req), nil)
	}}
	c := New(ft)

	type result struct {
		outcomes []Outcome
		err      error
	}
	reqs := counterRequests(t, 2)
	resCh := make(chan result, 1)
	go func() {
		o, err := c.RunBatch(context.Background(), reqs)
		resCh <- result{o, err}
	}()

	select {
	case <-resCh:
		t.Fatal("batch completed before slot 1 resolved")
	case <-time.After(50 * time.Millisecond):
	}

	close(release)
	select {
	case res := <-resCh:
		require.NoError(t, res.err)
		assert.Equal(t, "id-0", res.outcomes[0].ID)
		assert.NoError(t, res.outcomes[0].Err)
		assert.Equal(t, "id-1", res.outcomes[1].ID)
	case <-time.After(time.Second):
		t.Fatal("batch did not complete")
	}
}

func TestRunBatchTimeout(t *testing.T) {
	pending := make(chan transport.Callback, 1)
	ft := &fakeTransport{handle: func(i int, req transport.Request, done transport.Callback) {
		pending <- done
	}}
	c := New(ft, WithTimeout(50*time.Millisecond))

	start := time.Now()
	outcomes, err := c.RunBatch(context.Background(), counterRequests(t, 1))
	elapsed := time.Since(start)

	var bte *BatchTimeoutError
	require.True(t, errors.As(err, &bte), "got %v", err)
	assert.Equal(t, []int{0}, bte.Unresolved)
	assert.Less(t, elapsed, 500*time.Millisecond)
	require.Len(t, outcomes, 1)
	assert.False(t, outcomes[0].OK())

	// a late completion must be a harmless no-op
	done := <-pending
	assert.NotPanics(t, func() {
		done(&transport.Response{Status: 201, Body: []byte(`{"_id":"late"}`)}, nil)
	})
	assert.Empty(t, outcomes[0].ID)
}

func TestRunBatchTimeoutKeepsResolvedSlots(t *testing.T) {
	ft := &fakeTransport{handle: func(i int, req transport.Request, done transport.Callback) {
		if i == 1 {
			return
		}
		done(echoID(req), nil)
	}}
	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	outcomes, err := New(ft).RunBatch(ctx, counterRequests(t, 3))

	var bte *BatchTimeoutError
	require.True(t, errors.As(err, &bte))
	assert.Equal(t, []int{1}, bte.Unresolved)
	assert.Equal(t, "id-0", outcomes[0].ID)
	assert.Equal(t, "id-2", outcomes[2].ID)
}

func TestRunBatchCancelled(t *testing.T) {
	ft := &fakeTransport{handle: func(i int, req transport.Request, done transport.Callback) {}}
	ctx, cancel := context.WithCancel(context.Background())
	time.AfterFunc(20*time.Millisecond, cancel)

	_, err := New(ft).RunBatch(ctx, counterRequests(t, 2))
	require.ErrorIs(t, err, context.Canceled)

	var bte *BatchTimeoutError
	assert.False(t, errors.As(err, &bte))
}

func TestRunBatchRecoversExtractorPanic(t *testing.T) {
	ft := &fakeTransport{handle: func(i int, req transport.Request, done transport.Callback) {
		done(echoID(req), nil)
	}}
	c := New(ft, WithExtractor(func(*transport.Response) (string, error) {
		panic("boom")
	}), WithTimeout(time.Second))

	outcomes, err := c.RunBatch(context.Background(), counterRequests(t, 3))
	require.NoError(t, err)
	for _, o := range outcomes {
		var de *decoder.DecodeError
		assert.True(t, errors.As(o.Err, &de))
		assert.Contains(t, o.Err.Error(), "boom")
	}
}

func TestRunBatchParallelCompletions(t *testing.T) {
	const n = 200
	gate := make(chan struct{})
	ft := &fakeTransport{handle: func(i int, req transport.Request, done transport.Callback) {
		<-gate
		if i%7 == 0 {
			done(nil, errors.New("refused"))
			return
		}
		done(echoID(req), nil)
		done(echoID(req), nil)
	}}
	c := New(ft, WithTimeout(5*time.Second))

	time.AfterFunc(10*time.Millisecond, func() { close(gate) })
	outcomes, err := c.RunBatch(context.Background(), counterRequests(t, n))
	require.NoError(t, err)
	require.Len(t, outcomes, n)

	for i, o := range outcomes {
		assert.Equal(t, i, o.Index)
		if i%7 == 0 {
			assert.Error(t, o.Err)
			continue
		}
		assert.Equal(t, fmt.Sprintf("id-%d", i), o.ID)
	}
}

func TestBatchStateRejectsOutOfRange(t *testing.T) {
	s := newBatchState(1)
	assert.False(t, s.resolve(Outcome{Index: -1}))
	assert.False(t, s.resolve(Outcome{Index: 1}))
	assert.True(t, s.resolve(Outcome{Index: 0, ID: "a"}))
	assert.False(t, s.resolve(Outcome{Index: 0, ID: "b"}))

	outcomes, unresolved := s.snapshot()
	assert.Equal(t, "a", outcomes[0].ID)
	assert.Empty(t, unresolved)
}
