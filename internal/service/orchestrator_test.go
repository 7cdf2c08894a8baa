package service

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/loopmarket/push-relay/internal/cache"
	"github.com/loopmarket/push-relay/internal/domain"
	"github.com/loopmarket/push-relay/internal/push"
	"github.com/loopmarket/push-relay/internal/repository"
)

// fakeNotificationRepo is an in-memory stand-in for the gorm repository.
type fakeNotificationRepo struct {
	mu        sync.Mutex
	rows      map[string]*domain.Notification
	byKey     map[string]*domain.Notification
	createErr error
	findErr   error
}

func newFakeNotificationRepo() *fakeNotificationRepo {
	return &fakeNotificationRepo{
		rows:  make(map[string]*domain.Notification),
		byKey: make(map[string]*domain.Notification),
	}
}

func (r *fakeNotificationRepo) Create(_ context.Context, n *domain.Notification) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.createErr != nil {
		return r.createErr
	}

	clone := *n
	clone.CreatedAt = time.Now()
	r.rows[clone.ID] = &clone
	r.byKey[clone.DedupeKey] = &clone
	return nil
}

func (r *fakeNotificationRepo) GetByID(_ context.Context, id string) (*domain.Notification, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	n, ok := r.rows[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	clone := *n
	return &clone, nil
}

func (r *fakeNotificationRepo) FindRecentByKey(_ context.Context, dedupeKey string, _ time.Time) (*domain.Notification, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.findErr != nil {
		return nil, r.findErr
	}
	n, ok := r.byKey[dedupeKey]
	if !ok {
		return nil, domain.ErrNotFound
	}
	clone := *n
	return &clone, nil
}

func (r *fakeNotificationRepo) UpdateDelivery(_ context.Context, id string, status domain.DeliveryStatus, method domain.DeliveryMethod) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	n, ok := r.rows[id]
	if !ok {
		return domain.ErrNotFound
	}
	if n.Status.IsTerminal() {
		return domain.ErrConflict
	}
	n.Status = status
	n.Method = method
	return nil
}

func (r *fakeNotificationRepo) MarkRead(_ context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	n, ok := r.rows[id]
	if !ok {
		return domain.ErrNotFound
	}
	n.Read = true
	return nil
}

func (r *fakeNotificationRepo) ListByRecipient(_ context.Context, params repository.ListParams) ([]domain.Notification, int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	var out []domain.Notification
	for _, n := range r.rows {
		if n.RecipientID == params.RecipientID {
			out = append(out, *n)
		}
	}
	return out, int64(len(out)), nil
}

func (r *fakeNotificationRepo) createCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.rows)
}

func (r *fakeNotificationRepo) onlyRow(t *testing.T) *domain.Notification {
	t.Helper()

	r.mu.Lock()
	defer r.mu.Unlock()

	if len(r.rows) != 1 {
		t.Fatalf("stored rows = %d, want 1", len(r.rows))
	}
	for _, n := range r.rows {
		clone := *n
		return &clone
	}
	return nil
}

// fakeAttemptWriter captures attempt records synchronously.
type fakeAttemptWriter struct {
	mu       sync.Mutex
	attempts []domain.DeliveryAttempt
}

func (w *fakeAttemptWriter) Record(a domain.DeliveryAttempt) {
	w.mu.Lock()
	w.attempts = append(w.attempts, a)
	w.mu.Unlock()
}

func (w *fakeAttemptWriter) recorded() []domain.DeliveryAttempt {
	w.mu.Lock()
	defer w.mu.Unlock()
	out := make([]domain.DeliveryAttempt, len(w.attempts))
	copy(out, w.attempts)
	return out
}

// fakeTransport replays a scripted sequence of send outcomes.
type fakeTransport struct {
	mu          sync.Mutex
	available   bool
	outcomes    []fakeSendOutcome
	calls       int
	lastContent push.RenderedNotification
}

type fakeSendOutcome struct {
	result *push.SendResult
	err    error
}

func newFakeTransport(outcomes ...fakeSendOutcome) *fakeTransport {
	return &fakeTransport{available: true, outcomes: outcomes}
}

func (f *fakeTransport) IsAvailable() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.available
}

func (f *fakeTransport) SendToUser(_ context.Context, _ string, n push.RenderedNotification) (*push.SendResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.lastContent = n
	idx := f.calls
	f.calls++
	if idx >= len(f.outcomes) {
		return &push.SendResult{SentCount: 1}, nil
	}
	out := f.outcomes[idx]
	return out.result, out.err
}

func (f *fakeTransport) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

func sendOK(sent int) fakeSendOutcome {
	return fakeSendOutcome{result: &push.SendResult{SentCount: sent}}
}

func sendNoEndpoints() fakeSendOutcome {
	return fakeSendOutcome{result: &push.SendResult{Reason: push.ReasonNoActiveEndpoints}}
}

func sendAllFailed(failed int) fakeSendOutcome {
	return fakeSendOutcome{result: &push.SendResult{FailedCount: failed}}
}

func sendErr(transient bool) fakeSendOutcome {
	return fakeSendOutcome{err: &push.TransportError{Message: "gateway down", Transient: transient}}
}

type orchestratorFixture struct {
	repo      *fakeNotificationRepo
	attempts  *fakeAttemptWriter
	transport *fakeTransport
	dedupe    *cache.DedupeCache
	orch      *Orchestrator
}

func newOrchestratorFixture(t *testing.T, transport *fakeTransport) *orchestratorFixture {
	t.Helper()

	repo := newFakeNotificationRepo()
	attempts := &fakeAttemptWriter{}
	dedupe := cache.NewDedupeCache(30 * time.Second)

	orch, err := NewOrchestrator(repo, attempts, transport, dedupe, nil, 30*time.Second, nil)
	if err != nil {
		t.Fatalf("NewOrchestrator() error = %v", err)
	}

	return &orchestratorFixture{
		repo:      repo,
		attempts:  attempts,
		transport: transport,
		dedupe:    dedupe,
		orch:      orch,
	}
}

func chatRequest(conversationID, senderID string) domain.Request {
	return domain.Request{
		Type:  domain.TypeChatMessage,
		Title: "New Message",
		Body:  "hello there",
		Payload: map[string]any{
			domain.PayloadConversationID: conversationID,
			domain.PayloadSenderID:       senderID,
		},
		Route: "/chat/" + conversationID,
	}
}

func TestSubmitStoresAndDelivers(t *testing.T) {
	t.Parallel()

	fx := newOrchestratorFixture(t, newFakeTransport(sendOK(2)))

	res, err := fx.orch.Submit(context.Background(), "user-1", chatRequest("conv-1", "user-2"))
	if err != nil {
		t.Fatalf("Submit() error = %v", err)
	}

	if !res.Stored || !res.Delivered || res.Duplicate || res.Batched {
		t.Fatalf("result = %+v, want stored and delivered", res)
	}
	if res.Status != domain.StatusDelivered {
		t.Fatalf("status = %s, want DELIVERED", res.Status)
	}

	row := fx.repo.onlyRow(t)
	if row.Status != domain.StatusDelivered {
		t.Fatalf("row status = %s, want DELIVERED", row.Status)
	}
	if row.Method != domain.MethodPush {
		t.Fatalf("row method = %s, want PUSH", row.Method)
	}
	if row.Payload["route"] != "/chat/conv-1" {
		t.Fatalf("route = %v, want /chat/conv-1", row.Payload["route"])
	}

	attempts := fx.attempts.recorded()
	if len(attempts) != 1 {
		t.Fatalf("attempts = %d, want 1", len(attempts))
	}
	if attempts[0].AttemptNumber != 1 || !attempts[0].Success || attempts[0].SentCount != 2 {
		t.Fatalf("attempt = %+v, want successful attempt 1 with sent=2", attempts[0])
	}

	if got := fx.transport.lastContent.Data["type"]; got != "CHAT_MESSAGE" {
		t.Fatalf("rendered type = %q, want CHAT_MESSAGE", got)
	}
	if got := fx.transport.lastContent.Data["conversation_id"]; got != "conv-1" {
		t.Fatalf("rendered conversation_id = %q, want conv-1", got)
	}
}

func TestSubmitSuppressesCachedDuplicate(t *testing.T) {
	t.Parallel()

	fx := newOrchestratorFixture(t, newFakeTransport(sendOK(1), sendOK(1)))
	req := chatRequest("conv-1", "user-2")

	if _, err := fx.orch.Submit(context.Background(), "user-1", req); err != nil {
		t.Fatalf("first Submit() error = %v", err)
	}

	res, err := fx.orch.Submit(context.Background(), "user-1", req)
	if err != nil {
		t.Fatalf("second Submit() error = %v", err)
	}

	if !res.Duplicate {
		t.Fatal("second submit must be reported as a duplicate")
	}
	if fx.repo.createCount() != 1 {
		t.Fatalf("stored rows = %d, want exactly 1", fx.repo.createCount())
	}
	if fx.transport.callCount() != 1 {
		t.Fatalf("transport calls = %d, want 1", fx.transport.callCount())
	}
}

func TestSubmitDistinctSendersAreNotDuplicates(t *testing.T) {
	t.Parallel()

	fx := newOrchestratorFixture(t, newFakeTransport(sendOK(1), sendOK(1)))

	if _, err := fx.orch.Submit(context.Background(), "user-1", chatRequest("conv-1", "user-2")); err != nil {
		t.Fatalf("Submit() error = %v", err)
	}
	res, err := fx.orch.Submit(context.Background(), "user-1", chatRequest("conv-1", "user-3"))
	if err != nil {
		t.Fatalf("Submit() error = %v", err)
	}

	if res.Duplicate {
		t.Fatal("a different sender in the same conversation must not be suppressed")
	}
	if fx.repo.createCount() != 2 {
		t.Fatalf("stored rows = %d, want 2", fx.repo.createCount())
	}
}

func TestSubmitSuppressesDurableDuplicateAfterRestart(t *testing.T) {
	t.Parallel()

	fx := newOrchestratorFixture(t, newFakeTransport(sendOK(1)))
	req := chatRequest("conv-1", "user-2")

	first, err := fx.orch.Submit(context.Background(), "user-1", req)
	if err != nil {
		t.Fatalf("first Submit() error = %v", err)
	}

	// A restart drops the in-memory cache but keeps the stored row.
	restarted, err := NewOrchestrator(fx.repo, fx.attempts, fx.transport,
		cache.NewDedupeCache(30*time.Second), nil, 30*time.Second, nil)
	if err != nil {
		t.Fatalf("NewOrchestrator() error = %v", err)
	}

	res, err := restarted.Submit(context.Background(), "user-1", req)
	if err != nil {
		t.Fatalf("second Submit() error = %v", err)
	}

	if !res.Duplicate {
		t.Fatal("durable window check must still suppress the duplicate")
	}
	if res.NotificationID != first.NotificationID {
		t.Fatalf("duplicate id = %q, want original %q", res.NotificationID, first.NotificationID)
	}
	if fx.repo.createCount() != 1 {
		t.Fatalf("stored rows = %d, want 1", fx.repo.createCount())
	}
}

func TestSubmitProceedsWhenDurableCheckFails(t *testing.T) {
	t.Parallel()

	fx := newOrchestratorFixture(t, newFakeTransport(sendOK(1)))
	fx.repo.findErr = errors.New("connection reset")

	res, err := fx.orch.Submit(context.Background(), "user-1", chatRequest("conv-1", "user-2"))
	if err != nil {
		t.Fatalf("Submit() error = %v", err)
	}
	if res.Duplicate || !res.Stored {
		t.Fatalf("result = %+v, want treated as new", res)
	}
}

func TestSubmitStoreFailureIsHardError(t *testing.T) {
	t.Parallel()

	fx := newOrchestratorFixture(t, newFakeTransport(sendOK(1)))
	fx.repo.createErr = errors.New("disk full")

	_, err := fx.orch.Submit(context.Background(), "user-1", chatRequest("conv-1", "user-2"))
	if err == nil {
		t.Fatal("expected error when the store rejects the notification")
	}
	if fx.transport.callCount() != 0 {
		t.Fatalf("transport calls = %d, want 0: nothing may be sent without a stored row", fx.transport.callCount())
	}
}

func TestSubmitValidation(t *testing.T) {
	t.Parallel()

	fx := newOrchestratorFixture(t, newFakeTransport())

	if _, err := fx.orch.Submit(context.Background(), "  ", chatRequest("conv-1", "user-2")); !errors.Is(err, domain.ErrValidation) {
		t.Fatalf("blank recipient error = %v, want ErrValidation", err)
	}

	bad := domain.Request{Type: "TELEPATHY", Title: "t"}
	if _, err := fx.orch.Submit(context.Background(), "user-1", bad); !errors.Is(err, domain.ErrValidation) {
		t.Fatalf("invalid type error = %v, want ErrValidation", err)
	}
	if fx.repo.createCount() != 0 {
		t.Fatalf("stored rows = %d, want 0", fx.repo.createCount())
	}
}

func TestSubmitTransientFailureSchedulesRetry(t *testing.T) {
	t.Parallel()

	fx := newOrchestratorFixture(t, newFakeTransport(sendErr(true)))
	retries := newTestScheduler(t, fx.orch.RetryAttempt)
	fx.orch.SetRetryScheduler(retries)

	res, err := fx.orch.Submit(context.Background(), "user-1", chatRequest("conv-1", "user-2"))
	if err != nil {
		t.Fatalf("Submit() error = %v", err)
	}

	if res.Status != domain.StatusFailed {
		t.Fatalf("status = %s, want FAILED", res.Status)
	}
	if retries.PendingCount() != 1 {
		t.Fatalf("pending retries = %d, want 1", retries.PendingCount())
	}

	row := fx.repo.onlyRow(t)
	if row.Status != domain.StatusFailed {
		t.Fatalf("row status = %s, want FAILED", row.Status)
	}
}

func TestSubmitPermanentFailureIsNotRetried(t *testing.T) {
	t.Parallel()

	fx := newOrchestratorFixture(t, newFakeTransport(sendErr(false)))
	retries := newTestScheduler(t, fx.orch.RetryAttempt)
	fx.orch.SetRetryScheduler(retries)

	res, err := fx.orch.Submit(context.Background(), "user-1", chatRequest("conv-1", "user-2"))
	if err != nil {
		t.Fatalf("Submit() error = %v", err)
	}

	if res.Status != domain.StatusFailed {
		t.Fatalf("status = %s, want FAILED", res.Status)
	}
	if retries.PendingCount() != 0 {
		t.Fatalf("pending retries = %d, want 0", retries.PendingCount())
	}
}

func TestSubmitNoEndpointsSkips(t *testing.T) {
	t.Parallel()

	fx := newOrchestratorFixture(t, newFakeTransport(sendNoEndpoints()))
	retries := newTestScheduler(t, fx.orch.RetryAttempt)
	fx.orch.SetRetryScheduler(retries)

	res, err := fx.orch.Submit(context.Background(), "user-1", chatRequest("conv-1", "user-2"))
	if err != nil {
		t.Fatalf("Submit() error = %v", err)
	}

	if res.Status != domain.StatusSkipped {
		t.Fatalf("status = %s, want SKIPPED", res.Status)
	}
	if retries.PendingCount() != 0 {
		t.Fatal("a recipient without endpoints must never be retried")
	}

	row := fx.repo.onlyRow(t)
	if row.Status != domain.StatusSkipped || row.Method != domain.MethodNone {
		t.Fatalf("row = %s/%s, want SKIPPED/NONE", row.Status, row.Method)
	}

	attempts := fx.attempts.recorded()
	if len(attempts) != 1 || attempts[0].Success {
		t.Fatalf("attempts = %+v, want one unsuccessful record", attempts)
	}
	if attempts[0].Reason == nil || *attempts[0].Reason != push.ReasonNoActiveEndpoints {
		t.Fatalf("attempt reason = %v, want %q", attempts[0].Reason, push.ReasonNoActiveEndpoints)
	}
}

func TestSubmitAllEndpointsFailedIsRetriable(t *testing.T) {
	t.Parallel()

	fx := newOrchestratorFixture(t, newFakeTransport(sendAllFailed(3)))
	retries := newTestScheduler(t, fx.orch.RetryAttempt)
	fx.orch.SetRetryScheduler(retries)

	res, err := fx.orch.Submit(context.Background(), "user-1", chatRequest("conv-1", "user-2"))
	if err != nil {
		t.Fatalf("Submit() error = %v", err)
	}

	if res.Status != domain.StatusFailed {
		t.Fatalf("status = %s, want FAILED", res.Status)
	}
	if retries.PendingCount() != 1 {
		t.Fatalf("pending retries = %d, want 1", retries.PendingCount())
	}
}

func TestSubmitTransportUnavailable(t *testing.T) {
	t.Parallel()

	transport := newFakeTransport()
	transport.available = false
	fx := newOrchestratorFixture(t, transport)
	retries := newTestScheduler(t, fx.orch.RetryAttempt)
	fx.orch.SetRetryScheduler(retries)

	res, err := fx.orch.Submit(context.Background(), "user-1", chatRequest("conv-1", "user-2"))
	if err != nil {
		t.Fatalf("Submit() error = %v", err)
	}

	if res.Status != domain.StatusFailed {
		t.Fatalf("status = %s, want FAILED", res.Status)
	}
	if retries.PendingCount() != 0 {
		t.Fatal("unavailable transport must not be retried")
	}

	attempts := fx.attempts.recorded()
	if len(attempts) != 1 || attempts[0].Method != domain.MethodNone {
		t.Fatalf("attempts = %+v, want one NONE-method record", attempts)
	}
}

func TestSubmitBatchableTypeIsQueued(t *testing.T) {
	t.Parallel()

	fx := newOrchestratorFixture(t, newFakeTransport(sendOK(1)))

	batcher, err := NewBatcher(time.Hour, 10,
		map[domain.NotificationType]bool{domain.TypeChatMessage: true},
		fx.orch.FlushBatch, nil)
	if err != nil {
		t.Fatalf("NewBatcher() error = %v", err)
	}
	fx.orch.SetBatcher(batcher)

	res, err := fx.orch.Submit(context.Background(), "user-1", chatRequest("conv-1", "user-2"))
	if err != nil {
		t.Fatalf("Submit() error = %v", err)
	}

	if !res.Batched || !res.Delivered {
		t.Fatalf("result = %+v, want batched and accepted", res)
	}
	if fx.repo.createCount() != 0 {
		t.Fatal("batched request must not be persisted before the flush")
	}
	if batcher.PendingCount("user-1", domain.TypeChatMessage) != 1 {
		t.Fatalf("pending = %d, want 1", batcher.PendingCount("user-1", domain.TypeChatMessage))
	}

	batcher.FlushAll(context.Background())

	row := fx.repo.onlyRow(t)
	if row.Title != "New Message" {
		t.Fatalf("title = %q, want original title for a lone flushed request", row.Title)
	}
	if row.Status != domain.StatusDelivered {
		t.Fatalf("row status = %s, want DELIVERED", row.Status)
	}
}

func TestSubmitRepeatedChatMessagesBatchIntoSummary(t *testing.T) {
	t.Parallel()

	// Same conversation, same sender, three rapid submissions: every one is
	// absorbed into the open batch and the flush produces a single summary
	// record, not a passthrough of the first message.
	fx := newOrchestratorFixture(t, newFakeTransport(sendOK(1)))

	batcher, err := NewBatcher(time.Hour, 10,
		map[domain.NotificationType]bool{domain.TypeChatMessage: true},
		fx.orch.FlushBatch, nil)
	if err != nil {
		t.Fatalf("NewBatcher() error = %v", err)
	}
	fx.orch.SetBatcher(batcher)

	req := chatRequest("conv-1", "user-2")
	for i := 0; i < 3; i++ {
		res, err := fx.orch.Submit(context.Background(), "user-1", req)
		if err != nil {
			t.Fatalf("Submit() %d error = %v", i+1, err)
		}
		if res.Duplicate {
			t.Fatalf("submission %d reported duplicate, want it absorbed into the batch", i+1)
		}
		if !res.Batched {
			t.Fatalf("submission %d result = %+v, want batched", i+1, res)
		}
	}

	if got := batcher.PendingCount("user-1", domain.TypeChatMessage); got != 3 {
		t.Fatalf("pending = %d, want all 3 submissions queued", got)
	}

	batcher.FlushAll(context.Background())

	row := fx.repo.onlyRow(t)
	if row.Title != "3 New Messages" {
		t.Fatalf("title = %q, want %q", row.Title, "3 New Messages")
	}
	if row.Body != "you have 3 new messages" {
		t.Fatalf("body = %q, want %q", row.Body, "you have 3 new messages")
	}
	if fx.transport.callCount() != 1 {
		t.Fatalf("transport calls = %d, want 1", fx.transport.callCount())
	}
}

func TestSubmitStoreFailureDoesNotSuppressResubmission(t *testing.T) {
	t.Parallel()

	// The store rejects the first write; the producer retries the event.
	// The failed submission must not have claimed the duplicate key.
	fx := newOrchestratorFixture(t, newFakeTransport(sendOK(1)))
	fx.repo.createErr = errors.New("disk full")

	req := chatRequest("conv-1", "user-2")
	if _, err := fx.orch.Submit(context.Background(), "user-1", req); err == nil {
		t.Fatal("expected error from the failed store write")
	}

	fx.repo.createErr = nil

	res, err := fx.orch.Submit(context.Background(), "user-1", req)
	if err != nil {
		t.Fatalf("retried Submit() error = %v", err)
	}
	if res.Duplicate {
		t.Fatal("retried submission reported duplicate, but no row was ever stored")
	}
	if !res.Stored || res.Status != domain.StatusDelivered {
		t.Fatalf("result = %+v, want stored and delivered", res)
	}
	if fx.repo.createCount() != 1 {
		t.Fatalf("stored rows = %d, want 1", fx.repo.createCount())
	}
}

func TestFlushBatchPersistsSummary(t *testing.T) {
	t.Parallel()

	fx := newOrchestratorFixture(t, newFakeTransport(sendOK(1)))

	requests := []domain.Request{
		chatRequest("conv-1", "user-2"),
		chatRequest("conv-2", "user-3"),
		chatRequest("conv-1", "user-4"),
	}

	fx.orch.FlushBatch(context.Background(), "user-1", requests)

	row := fx.repo.onlyRow(t)
	if row.Title != "3 New Messages" {
		t.Fatalf("title = %q, want %q", row.Title, "3 New Messages")
	}
	if !strings.Contains(row.Body, "3 new messages") {
		t.Fatalf("body = %q, want a 3-message summary", row.Body)
	}
	if row.Status != domain.StatusDelivered {
		t.Fatalf("row status = %s, want DELIVERED", row.Status)
	}
	if fx.transport.callCount() != 1 {
		t.Fatalf("transport calls = %d, want exactly 1 for the whole batch", fx.transport.callCount())
	}
}

func TestFlushBatchStoreFailureDropsBatch(t *testing.T) {
	t.Parallel()

	fx := newOrchestratorFixture(t, newFakeTransport(sendOK(1)))
	fx.repo.createErr = errors.New("disk full")

	fx.orch.FlushBatch(context.Background(), "user-1", []domain.Request{
		chatRequest("conv-1", "user-2"),
	})

	if fx.transport.callCount() != 0 {
		t.Fatal("nothing may be sent when the batch row cannot be stored")
	}
}

func TestRetryAttemptFailThenSucceed(t *testing.T) {
	t.Parallel()

	// First attempt fails transiently, the retry lands.
	fx := newOrchestratorFixture(t, newFakeTransport(sendErr(true), sendOK(1)))

	res, err := fx.orch.Submit(context.Background(), "user-1", chatRequest("conv-1", "user-2"))
	if err != nil {
		t.Fatalf("Submit() error = %v", err)
	}
	if res.Status != domain.StatusFailed {
		t.Fatalf("status = %s, want FAILED", res.Status)
	}

	row := fx.repo.onlyRow(t)
	outcome := fx.orch.RetryAttempt(context.Background(), row, 2)

	if !outcome.Delivered {
		t.Fatalf("outcome = %+v, want delivered", outcome)
	}

	final := fx.repo.onlyRow(t)
	if final.Status != domain.StatusDelivered {
		t.Fatalf("final status = %s, want DELIVERED", final.Status)
	}

	attempts := fx.attempts.recorded()
	if len(attempts) != 2 {
		t.Fatalf("attempts = %d, want 2", len(attempts))
	}
	if attempts[0].AttemptNumber != 1 || attempts[0].Success {
		t.Fatalf("first attempt = %+v, want failed attempt 1", attempts[0])
	}
	if attempts[1].AttemptNumber != 2 || !attempts[1].Success {
		t.Fatalf("second attempt = %+v, want successful attempt 2", attempts[1])
	}
}

func TestRetryAttemptNoEndpointsOnFailedRowStaysFailed(t *testing.T) {
	t.Parallel()

	// The device registration disappeared between the initial failure and
	// the retry. FAILED cannot move to SKIPPED; the entry is just dropped.
	fx := newOrchestratorFixture(t, newFakeTransport(sendErr(true), sendNoEndpoints()))

	if _, err := fx.orch.Submit(context.Background(), "user-1", chatRequest("conv-1", "user-2")); err != nil {
		t.Fatalf("Submit() error = %v", err)
	}

	row := fx.repo.onlyRow(t)
	outcome := fx.orch.RetryAttempt(context.Background(), row, 2)

	if outcome.Delivered || outcome.Retriable {
		t.Fatalf("outcome = %+v, want terminal non-delivery", outcome)
	}

	final := fx.repo.onlyRow(t)
	if final.Status != domain.StatusFailed {
		t.Fatalf("final status = %s, want FAILED", final.Status)
	}
}

func newTestScheduler(t *testing.T, attempt RetryAttemptFunc) *RetryScheduler {
	t.Helper()

	s, err := NewRetryScheduler(2*time.Second, 30*time.Second, time.Second, 5, attempt, nil)
	if err != nil {
		t.Fatalf("NewRetryScheduler() error = %v", err)
	}
	return s
}
