package service

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/Strob0t/Hivemind/internal/adapter/memstore"
	"github.com/Strob0t/Hivemind/internal/config"
	"github.com/Strob0t/Hivemind/internal/domain/participant"
	"github.com/Strob0t/Hivemind/internal/domain/workitem"
	"github.com/Strob0t/Hivemind/internal/port/dispatch"
	"github.com/Strob0t/Hivemind/internal/port/messagequeue"
)

// mockQueue records published messages.
type mockQueue struct {
	mu        sync.Mutex
	published []publishedMsg
}

type publishedMsg struct {
	subject string
	data    []byte
}

func (q *mockQueue) Publish(_ context.Context, subject string, data []byte) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.published = append(q.published, publishedMsg{subject: subject, data: data})
	return nil
}

func (q *mockQueue) Subscribe(context.Context, string, messagequeue.Handler) (func(), error) {
	return func() {}, nil
}
func (q *mockQueue) Drain() error      { return nil }
func (q *mockQueue) Close() error      { return nil }
func (q *mockQueue) IsConnected() bool { return true }

func (q *mockQueue) count(subject string) int {
	q.mu.Lock()
	defer q.mu.Unlock()
	n := 0
	for _, m := range q.published {
		if m.subject == subject {
			n++
		}
	}
	return n
}

// scriptedReply is one participant's canned dispatch behavior.
type scriptedReply struct {
	resp  *dispatch.Response
	err   error
	delay time.Duration
	block bool // wait for ctx instead of answering
}

// fakeGateway answers dispatch requests from a script keyed by participant
// id. Unknown participants time out.
type fakeGateway struct {
	mu      sync.Mutex
	replies map[string]scriptedReply
	calls   map[string]int
}

func newFakeGateway() *fakeGateway {
	return &fakeGateway{replies: map[string]scriptedReply{}, calls: map[string]int{}}
}

func (g *fakeGateway) script(participantID string, r scriptedReply) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.replies[participantID] = r
}

func (g *fakeGateway) callCount(participantID string) int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.calls[participantID]
}

func (g *fakeGateway) Send(ctx context.Context, participantID string, _ dispatch.Request, _ time.Duration) (*dispatch.Response, error) {
	g.mu.Lock()
	g.calls[participantID]++
	r, ok := g.replies[participantID]
	g.mu.Unlock()

	if !ok {
		return nil, context.DeadlineExceeded
	}
	if r.block {
		<-ctx.Done()
		return nil, ctx.Err()
	}
	if r.delay > 0 {
		select {
		case <-time.After(r.delay):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if r.err != nil {
		return nil, r.err
	}
	return r.resp, nil
}

// env bundles a fully wired in-memory service stack for tests.
type env struct {
	store     *memstore.Store
	auditLog  *memstore.AuditLog
	queue     *mockQueue
	gateway   *fakeGateway
	items     *WorkItemService
	registry  *RegistryService
	health    *HealthService
	consensus *ConsensusService
	router    *RouterService
	ingest    *IngestService
}

func newEnv(t *testing.T) *env {
	t.Helper()
	cfg := config.Defaults()

	e := &env{
		store:    memstore.New(),
		auditLog: memstore.NewAuditLog(),
		queue:    &mockQueue{},
		gateway:  newFakeGateway(),
	}
	e.items = NewWorkItemService(e.store, e.auditLog, e.queue, nil)
	e.health = NewHealthService(e.store, e.auditLog, e.queue, nil, nil, cfg.Breaker, cfg.Weights)
	e.registry = NewRegistryService(e.store, e.health)
	e.consensus = NewConsensusService(e.store, e.auditLog, e.items, e.registry, e.health, e.gateway, e.queue, nil, nil, cfg.Consensus)
	e.router = NewRouterService(e.items, e.registry, e.health, e.consensus, e.gateway, nil, cfg.Router, cfg.Consensus)
	e.ingest = NewIngestService(e.items)
	return e
}

func (e *env) addItem(t *testing.T, id string, kind workitem.Kind, tags []string, deps ...string) *workitem.WorkItem {
	t.Helper()
	item := &workitem.WorkItem{ID: id, Kind: kind, Title: "item " + id, Tags: tags, DependsOn: deps}
	if _, err := e.items.Insert(context.Background(), item); err != nil {
		t.Fatalf("Insert(%s) error: %v", id, err)
	}
	return item
}

func (e *env) addParticipant(t *testing.T, id string, role participant.Role, weight float64, tags ...string) {
	t.Helper()
	_, err := e.registry.Register(context.Background(), participant.RegisterRequest{
		ID:         id,
		DomainTags: tags,
		Role:       role,
		Weight:     weight,
	})
	if err != nil {
		t.Fatalf("Register(%s) error: %v", id, err)
	}
}

func (e *env) mustStatus(t *testing.T, id string, want workitem.Status) {
	t.Helper()
	item, err := e.store.GetWorkItem(context.Background(), id)
	if err != nil {
		t.Fatalf("GetWorkItem(%s) error: %v", id, err)
	}
	if item.Status != want {
		t.Fatalf("work item %s status = %s, want %s", id, item.Status, want)
	}
}
