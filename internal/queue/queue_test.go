package queue

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"

	"fintrack/internal/core"
	"fintrack/internal/localstore"
	"fintrack/internal/log"
)

func newTestQueue(t *testing.T) (*Queue, *localstore.Memory) {
	t.Helper()
	store := localstore.NewMemory()
	q := New(store, Config{}, log.Discard())
	seq := 0
	q.newID = func() string { seq++; return fmt.Sprintf("op-%d", seq) }
	q.now = func() time.Time { return time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC) }
	return q, store
}

func expense(id string) *core.Expense {
	return &core.Expense{
		ID:          id,
		Date:        core.NewDate(2025, 6, 1),
		Description: "lunch " + id,
		Amount:      core.Cents(1200),
		CategoryID:  "food",
	}
}

func enqueueN(t *testing.T, q *Queue, n int) []string {
	t.Helper()
	ids := make([]string, 0, n)
	for i := 0; i < n; i++ {
		id, err := q.Enqueue(context.Background(), NewCreate(expense(fmt.Sprintf("e%d", i))))
		if err != nil {
			t.Fatalf("enqueue: %v", err)
		}
		ids = append(ids, id)
	}
	return ids
}

func TestCountAfterEnqueueAndDequeue(t *testing.T) {
	q, _ := newTestQueue(t)
	ctx := context.Background()
	ids := enqueueN(t, q, 4)

	if n, _ := q.Count(ctx); n != 4 {
		t.Fatalf("expected 4, got %d", n)
	}
	if err := q.Dequeue(ctx, ids[1]); err != nil {
		t.Fatalf("dequeue: %v", err)
	}
	if n, _ := q.Count(ctx); n != 3 {
		t.Fatalf("expected 3, got %d", n)
	}
	if err := q.Dequeue(ctx, "missing"); err != nil {
		t.Fatalf("dequeue of missing id should be a no-op: %v", err)
	}
}

func TestEnqueueAssignsFreshFields(t *testing.T) {
	q, _ := newTestQueue(t)
	ctx := context.Background()

	op := NewCreate(expense("e1"))
	op.ID = "caller-chosen"
	op.RetryCount = 7
	id, _ := q.Enqueue(ctx, op)
	// Same logical mutation again: no deduplication.
	q.Enqueue(ctx, NewCreate(expense("e1")))

	all, err := q.All(ctx)
	if err != nil {
		t.Fatalf("all: %v", err)
	}
	if len(all) != 2 {
		t.Fatalf("expected 2 entries, got %d", len(all))
	}
	if id != "op-1" || all[0].ID != "op-1" || all[0].RetryCount != 0 || all[0].Timestamp.IsZero() {
		t.Fatalf("unexpected first entry %+v", all[0])
	}
	if all[0].ID == all[1].ID {
		t.Fatal("ids must be unique")
	}
}

func TestEnqueueRejectsMismatchedPayload(t *testing.T) {
	q, _ := newTestQueue(t)
	bad := QueuedOperation{Type: OpDelete, Entity: core.EntityExpense, Payload: RecordPayload{Record: expense("x")}}
	if _, err := q.Enqueue(context.Background(), bad); err == nil {
		t.Fatal("expected validation error")
	}
}

func TestIncrementRetryExhaustion(t *testing.T) {
	q, _ := newTestQueue(t)
	ctx := context.Background()
	id := enqueueN(t, q, 1)[0]

	want := []bool{true, true, false}
	for i, w := range want {
		got, err := q.IncrementRetry(ctx, id)
		if err != nil {
			t.Fatalf("call %d: %v", i+1, err)
		}
		if got != w {
			t.Fatalf("call %d: expected %v, got %v", i+1, w, got)
		}
	}
	if n, _ := q.Count(ctx); n != 0 {
		t.Fatalf("expected entry removed, count=%d", n)
	}
	if ok, err := q.IncrementRetry(ctx, id); ok || err != nil {
		t.Fatalf("absent id: expected false,nil got %v,%v", ok, err)
	}

	dead, err := q.DeadLetters(ctx)
	if err != nil {
		t.Fatalf("dead letters: %v", err)
	}
	if len(dead) != 1 || dead[0].Operation.ID != id || dead[0].Operation.RetryCount != 3 {
		t.Fatalf("unexpected dead letters %+v", dead)
	}
}

func TestNextRetry(t *testing.T) {
	cases := []struct {
		in        int
		wantCount int
		wantRetry bool
	}{
		{0, 1, true},
		{1, 2, true},
		{2, 3, false},
		{5, 6, false},
	}
	for _, tc := range cases {
		count, retry := nextRetry(tc.in, 3)
		if count != tc.wantCount || retry != tc.wantRetry {
			t.Errorf("nextRetry(%d) = %d,%v want %d,%v", tc.in, count, retry, tc.wantCount, tc.wantRetry)
		}
	}
}

func TestProcessQueueAllSucceed(t *testing.T) {
	q, _ := newTestQueue(t)
	ctx := context.Background()
	enqueueN(t, q, 5)

	var order []string
	res, err := q.ProcessQueue(ctx, func(_ context.Context, op QueuedOperation) (bool, error) {
		order = append(order, op.ID)
		return true, nil
	})
	if err != nil {
		t.Fatalf("process: %v", err)
	}
	if res != (Result{Success: 5, Failed: 0}) {
		t.Fatalf("unexpected result %+v", res)
	}
	if n, _ := q.Count(ctx); n != 0 {
		t.Fatalf("expected empty queue, got %d", n)
	}
	if strings.Join(order, ",") != "op-1,op-2,op-3,op-4,op-5" {
		t.Fatalf("expected FIFO order, got %v", order)
	}
}

func TestProcessQueueAllFailOnce(t *testing.T) {
	q, _ := newTestQueue(t)
	ctx := context.Background()
	enqueueN(t, q, 2)

	res, err := q.ProcessQueue(ctx, func(context.Context, QueuedOperation) (bool, error) {
		return false, errors.New("network down")
	})
	if err != nil {
		t.Fatalf("process: %v", err)
	}
	if res != (Result{}) {
		t.Fatalf("expected {0,0}, got %+v", res)
	}
	all, _ := q.All(ctx)
	if len(all) != 2 {
		t.Fatalf("expected items kept, got %d", len(all))
	}
	for _, op := range all {
		if op.RetryCount != 1 {
			t.Fatalf("expected retryCount 1, got %d", op.RetryCount)
		}
	}
}

func TestProcessQueueCountsExhaustedAsFailed(t *testing.T) {
	q, _ := newTestQueue(t)
	ctx := context.Background()
	enqueueN(t, q, 2)

	fail := func(context.Context, QueuedOperation) (bool, error) { return false, nil }
	var last Result
	for i := 0; i < 3; i++ {
		res, err := q.ProcessQueue(ctx, fail)
		if err != nil {
			t.Fatalf("pass %d: %v", i, err)
		}
		last = res
	}
	if last != (Result{Failed: 2}) {
		t.Fatalf("third pass should drop both, got %+v", last)
	}
	dead, _ := q.DeadLetters(ctx)
	if len(dead) != 2 || dead[0].LastError == "" {
		t.Fatalf("expected two dead letters with cause, got %+v", dead)
	}
}

func TestCorruptQueue(t *testing.T) {
	q, store := newTestQueue(t)
	ctx := context.Background()
	store.SetItem(ctx, StorageKey, "{not json")

	all, err := q.All(ctx)
	if !errors.Is(err, ErrCorruptQueue) {
		t.Fatalf("expected ErrCorruptQueue, got %v", err)
	}
	if all == nil || len(all) != 0 {
		t.Fatalf("expected empty slice, got %v", all)
	}
	if n, err := q.Count(ctx); n != 0 || err != nil {
		t.Fatalf("count on corrupt queue: %d, %v", n, err)
	}

	// Writers overwrite the corrupt value.
	if _, err := q.Enqueue(ctx, NewDelete(core.EntityCard, "c1")); err != nil {
		t.Fatalf("enqueue over corrupt: %v", err)
	}
	if all, err := q.All(ctx); err != nil || len(all) != 1 {
		t.Fatalf("expected recovered queue, got %d, %v", len(all), err)
	}
}

type failingStore struct {
	localstore.Storage
}

func (failingStore) SetItem(context.Context, string, string) error {
	return errors.New("quota exceeded")
}

func TestStorageWriteFailureIsReturned(t *testing.T) {
	q := New(failingStore{localstore.NewMemory()}, Config{}, log.Discard())
	_, err := q.Enqueue(context.Background(), NewCreate(expense("e1")))
	if err == nil || !strings.Contains(err.Error(), "quota exceeded") {
		t.Fatalf("expected wrapped storage error, got %v", err)
	}
}

func TestObserversSeeCounts(t *testing.T) {
	q, _ := newTestQueue(t)
	ctx := context.Background()

	var seen []int
	unsub := q.Subscribe(func(n int) { seen = append(seen, n) })

	ids := enqueueN(t, q, 2)
	q.Dequeue(ctx, ids[0])
	q.Clear(ctx)
	unsub()
	enqueueN(t, q, 1)

	want := []int{1, 2, 1, 0}
	if fmt.Sprint(seen) != fmt.Sprint(want) {
		t.Fatalf("expected %v, got %v", want, seen)
	}
}

func TestTaggedUnionRoundTrip(t *testing.T) {
	q, _ := newTestQueue(t)
	ctx := context.Background()

	pct := 50
	budget := &core.Budget{ID: "b1", CategoryID: "food", Amount: core.Cents(10000), Period: core.Monthly, RolloverEnabled: true, RolloverPercentage: &pct}
	q.Enqueue(ctx, NewUpdate(budget))
	q.Enqueue(ctx, NewDelete(core.EntityRepayment, "r9"))

	all, err := q.All(ctx)
	if err != nil {
		t.Fatalf("all: %v", err)
	}
	rec, ok := all[0].Record()
	if !ok {
		t.Fatal("expected record payload")
	}
	got, ok := rec.(*core.Budget)
	if !ok || got.RolloverPercentage == nil || *got.RolloverPercentage != 50 {
		t.Fatalf("unexpected budget payload %#v", rec)
	}
	if all[1].TargetID() != "r9" || all[1].Type != OpDelete {
		t.Fatalf("unexpected delete entry %+v", all[1])
	}
}

func TestRequeueDeadLetter(t *testing.T) {
	q, _ := newTestQueue(t)
	ctx := context.Background()
	id := enqueueN(t, q, 1)[0]
	for i := 0; i < 3; i++ {
		q.IncrementRetry(ctx, id)
	}

	newID, err := q.Requeue(ctx, id)
	if err != nil {
		t.Fatalf("requeue: %v", err)
	}
	all, _ := q.All(ctx)
	if len(all) != 1 || all[0].ID != newID || all[0].RetryCount != 0 {
		t.Fatalf("unexpected queue after requeue %+v", all)
	}
	if dead, _ := q.DeadLetters(ctx); len(dead) != 0 {
		t.Fatalf("dead letter should be removed, got %d", len(dead))
	}
	if _, err := q.Requeue(ctx, "nope"); err == nil {
		t.Fatal("expected error for unknown dead letter")
	}
}

// flakyStore fails the next readFailures GetItem calls and the next
// writeFailures SetItem calls for key.
type flakyStore struct {
	*localstore.Memory
	key           string
	readFailures  int
	writeFailures int
}

func (s *flakyStore) GetItem(ctx context.Context, key string) (string, bool, error) {
	if key == s.key && s.readFailures > 0 {
		s.readFailures--
		return "", false, errors.New("database is locked")
	}
	return s.Memory.GetItem(ctx, key)
}

func (s *flakyStore) SetItem(ctx context.Context, key, value string) error {
	if key == s.key && s.writeFailures > 0 {
		s.writeFailures--
		return errors.New("database is locked")
	}
	return s.Memory.SetItem(ctx, key, value)
}

func TestReadFailureKeepsPendingOperations(t *testing.T) {
	ctx := context.Background()
	store := &flakyStore{Memory: localstore.NewMemory(), key: StorageKey}
	q := New(store, Config{}, log.Discard())
	ids := enqueueN(t, q, 3)

	tests := []struct {
		name string
		call func() error
	}{
		{"enqueue", func() error {
			_, err := q.Enqueue(ctx, NewCreate(expense("e9")))
			return err
		}},
		{"dequeue", func() error { return q.Dequeue(ctx, ids[0]) }},
		{"record failure", func() error {
			retry, err := q.RecordFailure(ctx, ids[1], errors.New("boom"))
			if retry {
				t.Error("retry must be false when the queue could not be read")
			}
			return err
		}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			store.readFailures = 1
			err := tt.call()
			if err == nil || !strings.Contains(err.Error(), "database is locked") {
				t.Fatalf("expected wrapped read error, got %v", err)
			}
			all, err := q.All(ctx)
			if err != nil {
				t.Fatalf("all: %v", err)
			}
			if len(all) != 3 {
				t.Fatalf("expected 3 pending operations, got %d", len(all))
			}
			for _, op := range all {
				if op.RetryCount != 0 {
					t.Fatalf("retry count changed on failed read: %+v", op)
				}
			}
		})
	}
	if dead, _ := q.DeadLetters(ctx); len(dead) != 0 {
		t.Fatalf("nothing should be dead-lettered, got %d", len(dead))
	}
}

func TestProcessQueueStopsOnReadFailure(t *testing.T) {
	ctx := context.Background()
	store := &flakyStore{Memory: localstore.NewMemory(), key: StorageKey}
	q := New(store, Config{}, log.Discard())
	enqueueN(t, q, 2)

	calls := 0
	exec := func(ctx context.Context, op QueuedOperation) (bool, error) {
		calls++
		// Snapshot already taken; the first write-path read fails.
		store.readFailures = 1
		return false, errors.New("503")
	}
	res, err := q.ProcessQueue(ctx, exec)
	if err == nil {
		t.Fatal("expected read error to abort the pass")
	}
	if res.Failed != 0 || calls != 1 {
		t.Fatalf("expected no failures counted after one call, got %+v calls=%d", res, calls)
	}
	if n, _ := q.Count(ctx); n != 2 {
		t.Fatalf("expected both operations kept, got %d", n)
	}
}

func TestDeadLetterReadFailureKeepsList(t *testing.T) {
	ctx := context.Background()
	store := &flakyStore{Memory: localstore.NewMemory(), key: DeadLetterKey}
	q := New(store, Config{}, log.Discard())
	ids := enqueueN(t, q, 2)
	for i := 0; i < 3; i++ {
		q.IncrementRetry(ctx, ids[0])
	}

	for i := 0; i < 2; i++ {
		q.IncrementRetry(ctx, ids[1])
	}
	store.readFailures = 1
	if _, err := q.IncrementRetry(ctx, ids[1]); err == nil {
		t.Fatal("expected dead-letter read error")
	}
	dead, err := q.DeadLetters(ctx)
	if err != nil {
		t.Fatalf("dead letters: %v", err)
	}
	if len(dead) != 1 || dead[0].Operation.ID != ids[0] {
		t.Fatalf("existing dead letter lost: %+v", dead)
	}
	all, _ := q.All(ctx)
	if len(all) != 1 || all[0].ID != ids[1] || all[0].RetryCount != 2 {
		t.Fatalf("operation must stay queued when dead-lettering fails: %+v", all)
	}
}

func TestRequeueKeepsDeadLetterWhenEnqueueFails(t *testing.T) {
	ctx := context.Background()
	store := &flakyStore{Memory: localstore.NewMemory(), key: StorageKey}
	q := New(store, Config{}, log.Discard())
	id := enqueueN(t, q, 1)[0]
	for i := 0; i < 3; i++ {
		q.IncrementRetry(ctx, id)
	}

	store.writeFailures = 1
	if _, err := q.Requeue(ctx, id); err == nil {
		t.Fatal("expected enqueue failure")
	}
	dead, _ := q.DeadLetters(ctx)
	if len(dead) != 1 || dead[0].Operation.ID != id {
		t.Fatalf("dead letter must survive a failed requeue, got %+v", dead)
	}
	if n, _ := q.Count(ctx); n != 0 {
		t.Fatalf("queue should be empty, got %d", n)
	}
}

func TestPending(t *testing.T) {
	q, _ := newTestQueue(t)
	ctx := context.Background()
	q.Enqueue(ctx, NewCreate(expense("e1")))
	q.Enqueue(ctx, NewDelete(core.EntityCard, "c1"))

	tests := []struct {
		entity core.Entity
		id     string
		want   bool
	}{
		{core.EntityExpense, "e1", true},
		{core.EntityCard, "c1", true},
		{core.EntityExpense, "c1", false},
		{core.EntityExpense, "e2", false},
	}
	for _, tt := range tests {
		got, err := q.Pending(ctx, tt.entity, tt.id)
		if err != nil || got != tt.want {
			t.Errorf("Pending(%s, %s) = %v, %v; want %v", tt.entity, tt.id, got, err, tt.want)
		}
	}
}
