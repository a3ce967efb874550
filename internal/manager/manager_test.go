package manager

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/iotforge/device-registry/internal/announce"
	"github.com/iotforge/device-registry/internal/device"
	"github.com/iotforge/device-registry/internal/expose"
	"github.com/iotforge/device-registry/internal/localbus"
)

// memoryRepo is a minimal in-memory device.Repository for manager tests.
type memoryRepo struct {
	mappings   map[string]*device.InstanceMapping
	failCreate bool
}

func newMemoryRepo() *memoryRepo {
	return &memoryRepo{mappings: make(map[string]*device.InstanceMapping)}
}

func repoKey(clientID, serviceKey, serviceType string) string {
	return clientID + "|" + serviceKey + "|" + serviceType
}

func (r *memoryRepo) GetMapping(_ context.Context, clientID, serviceKey, serviceType string) (*device.InstanceMapping, error) {
	m, ok := r.mappings[repoKey(clientID, serviceKey, serviceType)]
	if !ok {
		return nil, device.ErrMappingNotFound
	}
	copied := *m
	return &copied, nil
}

func (r *memoryRepo) ListByClient(_ context.Context, clientID string) ([]device.InstanceMapping, error) {
	var out []device.InstanceMapping
	for _, m := range r.mappings {
		if m.ClientID == clientID {
			out = append(out, *m)
		}
	}
	return out, nil
}

func (r *memoryRepo) ReservedInstances(_ context.Context, serviceType string) ([]int, error) {
	var out []int
	for _, m := range r.mappings {
		if m.ServiceType == serviceType {
			out = append(out, m.DeviceInstance)
		}
	}
	return out, nil
}

func (r *memoryRepo) CreateMapping(_ context.Context, m *device.InstanceMapping) error {
	if r.failCreate {
		return errors.New("disk full")
	}
	copied := *m
	r.mappings[repoKey(m.ClientID, m.ServiceKey, m.ServiceType)] = &copied
	return nil
}

func (r *memoryRepo) SetCustomName(_ context.Context, clientID, serviceKey, serviceType, name string) error {
	m, ok := r.mappings[repoKey(clientID, serviceKey, serviceType)]
	if !ok {
		return device.ErrMappingNotFound
	}
	m.CustomName = name
	return nil
}

// capturePublisher records instance replies.
type capturePublisher struct {
	mu      sync.Mutex
	replies []capturedReply
	fail    bool
}

type capturedReply struct {
	topic     string
	instances map[string]int
}

func (p *capturePublisher) PublishJSON(topic string, v any) error {
	if p.fail {
		return errors.New("broker gone")
	}
	instances, _ := v.(map[string]int)
	p.mu.Lock()
	p.replies = append(p.replies, capturedReply{topic: topic, instances: instances})
	p.mu.Unlock()
	return nil
}

func (p *capturePublisher) replyCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.replies)
}

// captureJournal records lifecycle writes.
type captureJournal struct {
	registrations []string
	allocations   []string
}

func (j *captureJournal) WriteRegistration(event, clientID string, _ int) {
	j.registrations = append(j.registrations, event+":"+clientID)
}

func (j *captureJournal) WriteAllocation(clientID, serviceKey, _ string, _ int) {
	j.allocations = append(j.allocations, clientID+"/"+serviceKey)
}

type fixture struct {
	manager   *Manager
	repo      *memoryRepo
	bus       *localbus.MemoryBus
	publisher *capturePublisher
	journal   *captureJournal
	events    chan announce.Event
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	repo := newMemoryRepo()
	bus := localbus.NewMemoryBus("portal-test")
	publisher := &capturePublisher{}
	journal := &captureJournal{}
	events := make(chan announce.Event, 8)

	registry := device.NewRegistry(repo, nil)
	exposer := expose.NewExposer(bus, nil)

	return &fixture{
		manager:   New(registry, exposer, publisher, events, journal, nil),
		repo:      repo,
		bus:       bus,
		publisher: publisher,
		journal:   journal,
		events:    events,
	}
}

func connectEvent(clientID string, services map[string]string) announce.Event {
	return announce.Event{Kind: announce.EventConnect, ClientID: clientID, Services: services}
}

func disconnectEvent(clientID string) announce.Event {
	return announce.Event{Kind: announce.EventDisconnect, ClientID: clientID}
}

func TestManagerConnectRegistersAndReplies(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	f.manager.dispatch(ctx, connectEvent("fe001", map[string]string{
		"t1":    "temperature",
		"tank1": "tank",
	}))

	if len(f.publisher.replies) != 1 {
		t.Fatalf("published %d replies, want 1", len(f.publisher.replies))
	}
	reply := f.publisher.replies[0]
	if reply.topic != "device/fe001/DeviceInstance" {
		t.Errorf("reply topic = %s", reply.topic)
	}
	if len(reply.instances) != 2 {
		t.Fatalf("reply covers %d services, want 2", len(reply.instances))
	}
	if reply.instances["t1"] != 0 || reply.instances["tank1"] != 0 {
		t.Errorf("reply instances = %v, want both 0 (first of their types)", reply.instances)
	}

	if f.bus.Len() != 2 {
		t.Errorf("bus holds %d objects, want 2", f.bus.Len())
	}
	if _, _, ok := f.bus.Object("service/temperature/0"); !ok {
		t.Error("temperature service not exposed")
	}
	if _, _, ok := f.bus.Object("service/tank/0"); !ok {
		t.Error("tank service not exposed")
	}

	if len(f.journal.allocations) != 2 {
		t.Errorf("journalled %d allocations, want 2", len(f.journal.allocations))
	}
	if len(f.journal.registrations) != 1 || f.journal.registrations[0] != "connect:fe001" {
		t.Errorf("registrations = %v", f.journal.registrations)
	}
}

func TestManagerConnectStorageFailureIsAtomic(t *testing.T) {
	f := newFixture(t)
	f.repo.failCreate = true

	f.manager.dispatch(context.Background(), connectEvent("fe001", map[string]string{
		"t1": "temperature",
		"t2": "temperature",
	}))

	if len(f.publisher.replies) != 0 {
		t.Errorf("reply published despite storage failure: %v", f.publisher.replies)
	}
	if f.bus.Len() != 0 {
		t.Errorf("bus holds %d objects despite storage failure", f.bus.Len())
	}
	if len(f.journal.allocations) != 0 {
		t.Errorf("allocations journalled despite storage failure: %v", f.journal.allocations)
	}
}

func TestManagerReconnectKeepsInstances(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	services := map[string]string{"t1": "temperature"}

	f.manager.dispatch(ctx, connectEvent("fe001", services))
	f.manager.dispatch(ctx, disconnectEvent("fe001"))
	f.manager.dispatch(ctx, connectEvent("fe001", services))

	if len(f.publisher.replies) != 2 {
		t.Fatalf("published %d replies, want 2", len(f.publisher.replies))
	}
	if f.publisher.replies[0].instances["t1"] != f.publisher.replies[1].instances["t1"] {
		t.Errorf("instance changed across reconnect: %v then %v",
			f.publisher.replies[0].instances, f.publisher.replies[1].instances)
	}

	// Only the first connect allocated anything.
	if len(f.journal.allocations) != 1 {
		t.Errorf("journalled %d allocations, want 1", len(f.journal.allocations))
	}
	want := []string{"connect:fe001", "disconnect:fe001", "connect:fe001"}
	if len(f.journal.registrations) != len(want) {
		t.Fatalf("registrations = %v, want %v", f.journal.registrations, want)
	}
	for i, w := range want {
		if f.journal.registrations[i] != w {
			t.Errorf("registrations[%d] = %s, want %s", i, f.journal.registrations[i], w)
		}
	}
}

func TestManagerReannounceDropsWithdrawnService(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	f.manager.dispatch(ctx, connectEvent("fe001", map[string]string{
		"t1": "temperature",
		"t2": "temperature",
	}))
	f.manager.dispatch(ctx, connectEvent("fe001", map[string]string{
		"t1": "temperature",
	}))

	reply := f.publisher.replies[len(f.publisher.replies)-1]
	if len(reply.instances) != 1 {
		t.Errorf("reply = %v, want only t1", reply.instances)
	}
	if f.bus.Len() != 1 {
		t.Errorf("bus holds %d objects, want 1 after withdrawal", f.bus.Len())
	}

	// The withdrawn key keeps its persisted mapping for later.
	if _, ok := f.repo.mappings[repoKey("fe001", "t2", "temperature")]; !ok {
		t.Error("withdrawn service lost its persisted mapping")
	}
}

func TestManagerReannounceTypeChange(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	f.manager.dispatch(ctx, connectEvent("fe001", map[string]string{"s1": "temperature"}))
	f.manager.dispatch(ctx, connectEvent("fe001", map[string]string{"s1": "tank"}))

	if _, _, ok := f.bus.Object("service/temperature/0"); ok {
		t.Error("old-typed object still on the bus")
	}
	if _, _, ok := f.bus.Object("service/tank/0"); !ok {
		t.Error("new-typed object not exposed")
	}

	reply := f.publisher.replies[len(f.publisher.replies)-1]
	if reply.instances["s1"] != 0 {
		t.Errorf("tank instance = %d, want 0", reply.instances["s1"])
	}

	// Both identities persist; a type change is a new composite key.
	if len(f.repo.mappings) != 2 {
		t.Errorf("%d persisted mappings, want 2", len(f.repo.mappings))
	}
}

func TestManagerDisconnectIgnoresServices(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	f.manager.dispatch(ctx, connectEvent("fe001", map[string]string{
		"t1": "temperature",
		"t2": "temperature",
	}))

	// A disconnect claiming only one service still tears down everything.
	event := disconnectEvent("fe001")
	event.Services = map[string]string{"t1": "temperature"}
	f.manager.dispatch(ctx, event)

	if f.bus.Len() != 0 {
		t.Errorf("bus holds %d objects after disconnect, want 0", f.bus.Len())
	}
	if len(f.publisher.replies) != 1 {
		t.Errorf("disconnect produced a reply: %v", f.publisher.replies)
	}
}

func TestManagerDisconnectUnknownClient(t *testing.T) {
	f := newFixture(t)

	f.manager.dispatch(context.Background(), disconnectEvent("ghost"))

	if len(f.journal.registrations) != 1 || f.journal.registrations[0] != "disconnect:ghost" {
		t.Errorf("registrations = %v", f.journal.registrations)
	}
}

func TestManagerReplyFailureKeepsState(t *testing.T) {
	f := newFixture(t)
	f.publisher.fail = true

	f.manager.dispatch(context.Background(), connectEvent("fe001", map[string]string{
		"t1": "temperature",
	}))

	// The broker publish failed but the registration is committed.
	if f.bus.Len() != 1 {
		t.Errorf("bus holds %d objects, want 1", f.bus.Len())
	}
	if _, ok := f.repo.mappings[repoKey("fe001", "t1", "temperature")]; !ok {
		t.Error("mapping not persisted")
	}
}

func TestManagerInstanceUniquenessAcrossClients(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	f.manager.dispatch(ctx, connectEvent("fe001", map[string]string{"t1": "temperature"}))
	f.manager.dispatch(ctx, connectEvent("fe002", map[string]string{"t1": "temperature"}))

	first := f.publisher.replies[0].instances["t1"]
	second := f.publisher.replies[1].instances["t1"]
	if first == second {
		t.Errorf("both clients got instance %d for the same type", first)
	}
}

func TestManagerRunStopsOnCancel(t *testing.T) {
	f := newFixture(t)
	ctx, cancel := context.WithCancel(context.Background())

	done := make(chan error, 1)
	go func() { done <- f.manager.Run(ctx) }()

	f.events <- connectEvent("fe001", map[string]string{"t1": "temperature"})

	deadline := time.After(2 * time.Second)
	for f.publisher.replyCount() == 0 {
		select {
		case <-deadline:
			t.Fatal("event not processed")
		case <-time.After(10 * time.Millisecond):
		}
	}

	cancel()
	select {
	case err := <-done:
		if !errors.Is(err, context.Canceled) {
			t.Errorf("Run returned %v, want context.Canceled", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not stop on cancel")
	}
}

func TestManagerRunStopsOnClosedChannel(t *testing.T) {
	f := newFixture(t)

	done := make(chan error, 1)
	go func() { done <- f.manager.Run(context.Background()) }()

	close(f.events)
	select {
	case err := <-done:
		if err != nil {
			t.Errorf("Run returned %v, want nil", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not stop on closed channel")
	}
}
