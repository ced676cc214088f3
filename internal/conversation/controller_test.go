package conversation

import (
	"context"
	"errors"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"supportdesk/internal/ratelimit"
	"supportdesk/internal/ticket"
)

type fakeStore struct {
	detailsFn func(ctx context.Context, id string) (*ticket.Details, error)
	sendFn    func(ctx context.Context, id, content string, atts []ticket.AttachmentInput) (*ticket.Message, error)
	updateFn  func(ctx context.Context, id string, status ticket.Status) error

	sends     int32
	updates   int32
	markReads int32
}

func (f *fakeStore) TicketDetails(ctx context.Context, id string) (*ticket.Details, error) {
	return f.detailsFn(ctx, id)
}

func (f *fakeStore) SendMessage(ctx context.Context, id, content string, atts []ticket.AttachmentInput) (*ticket.Message, error) {
	atomic.AddInt32(&f.sends, 1)
	if f.sendFn != nil {
		return f.sendFn(ctx, id, content, atts)
	}
	return &ticket.Message{ID: "srv-1", Content: content}, nil
}

func (f *fakeStore) UpdateStatus(ctx context.Context, id string, status ticket.Status) error {
	atomic.AddInt32(&f.updates, 1)
	if f.updateFn != nil {
		return f.updateFn(ctx, id, status)
	}
	return nil
}

func (f *fakeStore) MarkRead(ctx context.Context, id string) error {
	atomic.AddInt32(&f.markReads, 1)
	return nil
}

type fakeSub struct {
	mu        sync.Mutex
	fn        func()
	cancelled int
}

func (s *fakeSub) SubscribeInserts(ticketID string, fn func()) (func(), error) {
	s.mu.Lock()
	s.fn = fn
	s.mu.Unlock()
	return func() {
		s.mu.Lock()
		s.cancelled++
		s.mu.Unlock()
	}, nil
}

func (s *fakeSub) fireInsert() {
	s.mu.Lock()
	fn := s.fn
	s.mu.Unlock()
	if fn != nil {
		fn()
	}
}

func details(msgs ...ticket.Message) *ticket.Details {
	d := &ticket.Details{}
	d.ID = "T1"
	d.Status = ticket.StatusOpen
	d.Messages = append([]ticket.Message{}, msgs...)
	return d
}

func msg(id, content string) ticket.Message {
	return ticket.Message{ID: id, TicketID: "T1", Content: content, CreatedAt: time.Now()}
}

func staticDetails(d *ticket.Details) func(context.Context, string) (*ticket.Details, error) {
	return func(context.Context, string) (*ticket.Details, error) {
		cp := *d
		cp.Messages = append([]ticket.Message(nil), d.Messages...)
		return &cp, nil
	}
}

func hasOptimistic(msgs []ticket.Message) bool {
	for _, m := range msgs {
		if strings.HasPrefix(m.ID, OptimisticPrefix) {
			return true
		}
	}
	return false
}

func TestLoadPopulatesSnapshotAndMarksReadOnce(t *testing.T) {
	store := &fakeStore{detailsFn: staticDetails(details(msg("A", "hi"), msg("B", "hello")))}
	c := New(store, &fakeSub{}, nil, nil)

	if err := c.Load(context.Background(), "T1"); err != nil {
		t.Fatalf("load: %v", err)
	}
	snap := c.Snapshot()
	if snap == nil || len(snap.Messages) != 2 {
		t.Fatalf("snapshot = %+v, want 2 messages", snap)
	}
	if c.Loading() {
		t.Fatal("loading flag should be cleared after settle")
	}

	// Silent reloads must not repeat the read receipt.
	c.Refetch(context.Background())
	c.Refetch(context.Background())
	if n := atomic.LoadInt32(&store.markReads); n != 1 {
		t.Fatalf("markRead called %d times, want 1", n)
	}
}

func TestLoadFailureClearsSnapshotAndRetainsError(t *testing.T) {
	boom := errors.New("connection refused")
	store := &fakeStore{detailsFn: func(context.Context, string) (*ticket.Details, error) { return nil, boom }}
	c := New(store, &fakeSub{}, nil, nil)

	err := c.Load(context.Background(), "T1")
	var fe *FetchFailedError
	if !errors.As(err, &fe) {
		t.Fatalf("err = %v, want FetchFailedError", err)
	}
	if c.Snapshot() != nil {
		t.Fatal("snapshot should be cleared on fetch failure")
	}
	if c.Err() == nil {
		t.Fatal("error should be retained for display")
	}
	if n := atomic.LoadInt32(&store.markReads); n != 0 {
		t.Fatal("failed load must not mark the ticket read")
	}
}

func TestSendAppendsOptimisticEntrySynchronously(t *testing.T) {
	store := &fakeStore{detailsFn: staticDetails(details(msg("A", "hi")))}
	c := New(store, &fakeSub{}, nil, &ticket.Profile{ID: "u1", FullName: "Dana"})
	c.Load(context.Background(), "T1")

	var seen bool
	store.sendFn = func(context.Context, string, string, []ticket.AttachmentInput) (*ticket.Message, error) {
		// The placeholder must already be visible before the remote call
		// resolves.
		snap := c.Snapshot()
		if len(snap.Messages) == 2 && hasOptimistic(snap.Messages) {
			seen = true
		}
		return &ticket.Message{ID: "srv-2"}, nil
	}

	if err := c.SendMessage(context.Background(), "hello", nil); err != nil {
		t.Fatalf("send: %v", err)
	}
	if !seen {
		t.Fatal("optimistic entry was not appended before the network call")
	}
}

func TestSendFailureRemovesExactlyThePlaceholder(t *testing.T) {
	store := &fakeStore{detailsFn: staticDetails(details(msg("A", "hi"), msg("B", "hello")))}
	c := New(store, &fakeSub{}, nil, nil)
	c.Load(context.Background(), "T1")

	store.sendFn = func(context.Context, string, string, []ticket.AttachmentInput) (*ticket.Message, error) {
		return nil, errors.New("boom")
	}

	err := c.SendMessage(context.Background(), "will fail", nil)
	var se *SendFailedError
	if !errors.As(err, &se) {
		t.Fatalf("err = %v, want SendFailedError", err)
	}
	snap := c.Snapshot()
	if len(snap.Messages) != 2 {
		t.Fatalf("message count = %d, want pre-send count 2", len(snap.Messages))
	}
	if hasOptimistic(snap.Messages) {
		t.Fatal("placeholder should be rolled back on failure")
	}
	if snap.Messages[0].ID != "A" || snap.Messages[1].ID != "B" {
		t.Fatal("rollback must not remove any other message")
	}
}

func TestSendSuccessEndToEnd(t *testing.T) {
	base := details(msg("A", "hi"), msg("B", "hello"))
	store := &fakeStore{detailsFn: staticDetails(base)}
	c := New(store, &fakeSub{}, nil, nil)
	c.Load(context.Background(), "T1")

	store.sendFn = func(_ context.Context, _, content string, _ []ticket.AttachmentInput) (*ticket.Message, error) {
		// Server confirms the message; the next refetch returns it.
		base.Messages = append(base.Messages, msg("C", content))
		return &ticket.Message{ID: "C", Content: content}, nil
	}

	if err := c.SendMessage(context.Background(), "hello there", nil); err != nil {
		t.Fatalf("send: %v", err)
	}
	snap := c.Snapshot()
	if len(snap.Messages) != 3 {
		t.Fatalf("message count = %d, want 3", len(snap.Messages))
	}
	if hasOptimistic(snap.Messages) {
		t.Fatal("reconciliation should supersede the placeholder")
	}
	if snap.Messages[2].ID != "C" || snap.Messages[2].Content != "hello there" {
		t.Fatalf("final message = %+v, want server-confirmed C", snap.Messages[2])
	}
}

func TestSendRejectsEmptyMessage(t *testing.T) {
	store := &fakeStore{detailsFn: staticDetails(details())}
	c := New(store, &fakeSub{}, nil, nil)
	c.Load(context.Background(), "T1")

	if err := c.SendMessage(context.Background(), "   \n\t ", nil); !errors.Is(err, ErrEmptyMessage) {
		t.Fatalf("err = %v, want ErrEmptyMessage", err)
	}
	if n := atomic.LoadInt32(&store.sends); n != 0 {
		t.Fatal("validation rejection must never reach the network")
	}
}

func TestSendAttachmentOnlyIsAllowed(t *testing.T) {
	store := &fakeStore{detailsFn: staticDetails(details())}
	c := New(store, &fakeSub{}, nil, nil)
	c.Load(context.Background(), "T1")

	att := []ticket.AttachmentInput{{FileName: "report.pdf", FileURL: "https://files/1", FileType: "application/pdf", FileSize: 1024}}
	if err := c.SendMessage(context.Background(), "", att); err != nil {
		t.Fatalf("attachment-only send should pass validation: %v", err)
	}
}

func TestSendRateLimited(t *testing.T) {
	store := &fakeStore{detailsFn: staticDetails(details())}
	limiter := ratelimit.New(1, time.Minute)
	c := New(store, &fakeSub{}, limiter, nil)
	c.Load(context.Background(), "T1")

	if err := c.SendMessage(context.Background(), "first", nil); err != nil {
		t.Fatalf("first send: %v", err)
	}
	err := c.SendMessage(context.Background(), "second", nil)
	var rl *RateLimitedError
	if !errors.As(err, &rl) {
		t.Fatalf("err = %v, want RateLimitedError", err)
	}
	if rl.RetryAfter <= 0 {
		t.Fatalf("RetryAfter = %v, want a positive cooldown", rl.RetryAfter)
	}
	if n := atomic.LoadInt32(&store.sends); n != 1 {
		t.Fatalf("sends = %d; the gated call must not reach the network", n)
	}
	if hasOptimistic(c.Snapshot().Messages) {
		t.Fatal("gated send must not leave a placeholder behind")
	}
}

func TestUpdateStatusOptimisticWithRollback(t *testing.T) {
	store := &fakeStore{detailsFn: staticDetails(details())}
	c := New(store, &fakeSub{}, nil, nil)
	c.Load(context.Background(), "T1")

	store.updateFn = func(context.Context, string, ticket.Status) error {
		return errors.New("forbidden")
	}
	err := c.UpdateStatus(context.Background(), ticket.StatusResolved)
	var se *StatusUpdateFailedError
	if !errors.As(err, &se) {
		t.Fatalf("err = %v, want StatusUpdateFailedError", err)
	}
	if got := c.Snapshot().Status; got != ticket.StatusOpen {
		t.Fatalf("status = %q, want rollback to open", got)
	}

	store.updateFn = nil
	if err := c.UpdateStatus(context.Background(), ticket.StatusPending); err != nil {
		t.Fatalf("update: %v", err)
	}
	if got := c.Snapshot().Status; got != ticket.StatusPending {
		t.Fatalf("status = %q, want pending", got)
	}
}

func TestUpdateStatusIdenticalIsNoop(t *testing.T) {
	store := &fakeStore{detailsFn: staticDetails(details())}
	c := New(store, &fakeSub{}, nil, nil)
	c.Load(context.Background(), "T1")

	if err := c.UpdateStatus(context.Background(), ticket.StatusOpen); err != nil {
		t.Fatalf("no-op update: %v", err)
	}
	if n := atomic.LoadInt32(&store.updates); n != 0 {
		t.Fatal("identical status must not hit the store")
	}
}

func TestRemoteInsertTriggersSilentReload(t *testing.T) {
	base := details(msg("A", "hi"))
	store := &fakeStore{detailsFn: staticDetails(base)}
	sub := &fakeSub{}
	c := New(store, sub, nil, nil)
	c.Load(context.Background(), "T1")

	base.Messages = append(base.Messages, msg("B", "from the agent"))
	sub.fireInsert()

	snap := c.Snapshot()
	if len(snap.Messages) != 2 {
		t.Fatalf("message count = %d, want 2 after push reconciliation", len(snap.Messages))
	}
	if c.Loading() {
		t.Fatal("push reconciliation must not flicker the loading flag")
	}
}

func TestStaleReconciliationIsDiscarded(t *testing.T) {
	store := &fakeStore{}
	sub := &fakeSub{}
	c := New(store, sub, nil, nil)

	initial := details(msg("A", "hi"))
	store.detailsFn = staticDetails(initial)
	c.Load(context.Background(), "T1")

	// Two overlapping silent reloads complete out of order: the one issued
	// later applies first, and the earlier one must then be discarded.
	firstGate := make(chan *ticket.Details)
	secondDone := make(chan struct{})
	calls := 0
	var mu sync.Mutex
	store.detailsFn = func(context.Context, string) (*ticket.Details, error) {
		mu.Lock()
		calls++
		n := calls
		mu.Unlock()
		if n == 1 {
			return <-firstGate, nil
		}
		return details(msg("A", "hi"), msg("B", "new"), msg("C", "newest")), nil
	}

	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		sub.fireInsert() // issued first, completes last
	}()
	go func() {
		defer wg.Done()
		// Make sure the first fetch is already in flight before issuing.
		for {
			mu.Lock()
			started := calls >= 1
			mu.Unlock()
			if started {
				break
			}
			time.Sleep(time.Millisecond)
		}
		sub.fireInsert()
		close(secondDone)
	}()

	<-secondDone
	firstGate <- details(msg("A", "hi"), msg("B", "new")) // stale result
	wg.Wait()

	if got := len(c.Snapshot().Messages); got != 3 {
		t.Fatalf("message count = %d; stale fetch overwrote a newer snapshot", got)
	}
}

func TestCloseUnsubscribesAndRejectsWork(t *testing.T) {
	store := &fakeStore{detailsFn: staticDetails(details())}
	sub := &fakeSub{}
	c := New(store, sub, nil, nil)
	c.Load(context.Background(), "T1")

	c.Close()
	sub.mu.Lock()
	cancelled := sub.cancelled
	sub.mu.Unlock()
	if cancelled != 1 {
		t.Fatalf("cancelled = %d, want 1", cancelled)
	}
	if err := c.SendMessage(context.Background(), "late", nil); !errors.Is(err, ErrNoTicket) {
		t.Fatalf("err = %v, want ErrNoTicket after Close", err)
	}
}
