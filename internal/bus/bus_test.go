package bus

import (
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

func TestPublish_SyncHandlerRunsInline(t *testing.T) {
	t.Parallel()
	b := New(nil)
	defer b.Close()

	var got []any
	b.Subscribe(KindTranscript, DispatchSync, func(p any) {
		got = append(got, p)
	})

	b.Publish(KindTranscript, "hello")
	// Sync dispatch completes before Publish returns, no waiting needed.
	if len(got) != 1 || got[0] != "hello" {
		t.Fatalf("handler saw %v, want [hello]", got)
	}
}

func TestPublish_AsyncHandlerRunsOffPublisherGoroutine(t *testing.T) {
	t.Parallel()
	b := New(nil)

	var mu sync.Mutex
	var got []string
	b.Subscribe(KindAnswerToken, DispatchAsync, func(p any) {
		mu.Lock()
		got = append(got, p.(string))
		mu.Unlock()
	})

	for _, tok := range []string{"a", "b", "c"} {
		b.Publish(KindAnswerToken, tok)
	}
	b.Close() // drains async queues

	mu.Lock()
	defer mu.Unlock()
	if len(got) != 3 || got[0] != "a" || got[1] != "b" || got[2] != "c" {
		t.Fatalf("async handler saw %v, want [a b c] in publish order", got)
	}
}

func TestPublish_OnlyMatchingKindDelivered(t *testing.T) {
	t.Parallel()
	b := New(nil)
	defer b.Close()

	var transcripts, errors atomic.Int64
	b.Subscribe(KindTranscript, DispatchSync, func(any) { transcripts.Add(1) })
	b.Subscribe(KindError, DispatchSync, func(any) { errors.Add(1) })

	b.Publish(KindTranscript, "t")
	b.Publish(KindTranscript, "t")
	b.Publish(KindError, "e")

	if transcripts.Load() != 2 || errors.Load() != 1 {
		t.Errorf("transcripts = %d, errors = %d, want 2 and 1",
			transcripts.Load(), errors.Load())
	}
}

func TestPublish_PanickingHandlerDoesNotKillPublisher(t *testing.T) {
	t.Parallel()
	b := New(nil)
	defer b.Close()

	var after atomic.Int64
	b.Subscribe(KindTranscript, DispatchSync, func(any) { panic("bad subscriber") })
	b.Subscribe(KindTranscript, DispatchSync, func(any) { after.Add(1) })

	b.Publish(KindTranscript, "x")

	if after.Load() != 1 {
		t.Error("subscriber after the panicking one was not invoked")
	}
}

func TestUnsubscribe_StopsDelivery(t *testing.T) {
	t.Parallel()
	b := New(nil)
	defer b.Close()

	var n atomic.Int64
	sub := b.Subscribe(KindStatus, DispatchSync, func(any) { n.Add(1) })

	b.Publish(KindStatus, "started")
	sub.Unsubscribe()
	b.Publish(KindStatus, "stopped")

	if n.Load() != 1 {
		t.Errorf("handler ran %d times, want 1 after unsubscribe", n.Load())
	}
}

func TestUnsubscribe_DrainsAsyncQueue(t *testing.T) {
	t.Parallel()
	b := New(nil)
	defer b.Close()

	var n atomic.Int64
	sub := b.Subscribe(KindAnswerToken, DispatchAsync, func(any) {
		time.Sleep(time.Millisecond)
		n.Add(1)
	})

	for range 5 {
		b.Publish(KindAnswerToken, "tok")
	}
	sub.Unsubscribe()

	if n.Load() != 5 {
		t.Errorf("handler ran %d times, want all 5 queued events drained", n.Load())
	}
}

func TestPublish_AfterCloseIsNoOp(t *testing.T) {
	t.Parallel()
	b := New(nil)

	var n atomic.Int64
	b.Subscribe(KindTranscript, DispatchSync, func(any) { n.Add(1) })
	b.Close()

	b.Publish(KindTranscript, "late")
	if n.Load() != 0 {
		t.Error("handler ran after Close")
	}
}

func TestPublish_ConcurrentPublishers(t *testing.T) {
	t.Parallel()
	b := New(nil)

	var n atomic.Int64
	b.Subscribe(KindTranscript, DispatchAsync, func(any) { n.Add(1) })

	var wg sync.WaitGroup
	for range 4 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for range 10 {
				b.Publish(KindTranscript, "x")
			}
		}()
	}
	wg.Wait()
	b.Close()

	// 40 publishes into a 64-deep queue: nothing may be shed.
	if n.Load() != 40 {
		t.Errorf("handler ran %d times, want 40", n.Load())
	}
}
