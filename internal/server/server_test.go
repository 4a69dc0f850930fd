package server

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/aceteam-ai/conduit/internal/blob"
	"github.com/aceteam-ai/conduit/internal/models"
	"github.com/aceteam-ai/conduit/internal/queue"
	"github.com/aceteam-ai/conduit/internal/store/postgres"
)

type fakeDedup struct {
	reservations map[string]string
}

func newFakeDedup() *fakeDedup { return &fakeDedup{reservations: map[string]string{}} }

func (f *fakeDedup) Reserve(ctx context.Context, fingerprint, jobID string) (string, bool, error) {
	if existing, ok := f.reservations[fingerprint]; ok {
		return existing, true, nil
	}
	f.reservations[fingerprint] = jobID
	return jobID, false, nil
}

type fakeQueue struct {
	enqueued []enqueuedJob
	jobs     map[string]map[string]string
	err      error
}

type enqueuedJob struct {
	Type    string
	Payload map[string]any
	Opts    queue.EnqueueOptions
}

func newFakeQueue() *fakeQueue { return &fakeQueue{jobs: map[string]map[string]string{}} }

func (f *fakeQueue) Enqueue(ctx context.Context, jobType string, payload map[string]any, opts queue.EnqueueOptions) (string, error) {
	if f.err != nil {
		return "", f.err
	}
	id := opts.JobID
	if id == "" {
		id = "generated-id"
	}
	f.enqueued = append(f.enqueued, enqueuedJob{Type: jobType, Payload: payload, Opts: opts})
	f.jobs[id] = map[string]string{"state": "queued"}
	return id, nil
}

func (f *fakeQueue) GetJob(ctx context.Context, jobID string) (map[string]string, error) {
	fields, ok := f.jobs[jobID]
	if !ok {
		return nil, nil
	}
	return fields, nil
}

type fakeEvents struct {
	event *queue.Event
	err   error
}

func (f *fakeEvents) WaitUntilFinished(ctx context.Context, jobID string, timeout time.Duration) (*queue.Event, error) {
	return f.event, f.err
}

type fakeChannelStore struct {
	channels map[string]*models.ActivatedChannel
}

func newFakeChannelStore() *fakeChannelStore {
	return &fakeChannelStore{channels: map[string]*models.ActivatedChannel{}}
}

func (f *fakeChannelStore) GetActivatedChannel(ctx context.Context, channelID string) (*models.ActivatedChannel, error) {
	c, ok := f.channels[channelID]
	if !ok {
		return nil, nil
	}
	cp := *c
	return &cp, nil
}

func (f *fakeChannelStore) ListActivatedChannelsByGuild(ctx context.Context, guildID string, limit int) ([]models.ActivatedChannel, error) {
	var out []models.ActivatedChannel
	for _, c := range f.channels {
		if c.GuildID == guildID {
			out = append(out, *c)
		}
	}
	return out, nil
}

func (f *fakeChannelStore) UpsertActivatedChannel(ctx context.Context, c models.ActivatedChannel) error {
	cp := c
	f.channels[c.ChannelID] = &cp
	return nil
}

func (f *fakeChannelStore) DeleteActivatedChannel(ctx context.Context, channelID string) error {
	delete(f.channels, channelID)
	return nil
}

type fakeDenylistStore struct {
	entries []models.DenylistEntry
}

func (f *fakeDenylistStore) ListDenylistEntries(ctx context.Context) ([]models.DenylistEntry, error) {
	return f.entries, nil
}

func (f *fakeDenylistStore) CreateDenylistEntry(ctx context.Context, e models.DenylistEntry) error {
	f.entries = append(f.entries, e)
	return nil
}

func (f *fakeDenylistStore) DeleteDenylistEntry(ctx context.Context, id string) error {
	for i, e := range f.entries {
		if e.ID == id {
			f.entries = append(f.entries[:i], f.entries[i+1:]...)
			break
		}
	}
	return nil
}

type fakeDeliveryStore struct {
	delivered map[string]bool
	notFound  bool
}

func (f *fakeDeliveryStore) GetJobResult(ctx context.Context, jobID string) (*models.JobResult, error) {
	return nil, nil
}

func (f *fakeDeliveryStore) ConfirmDelivery(ctx context.Context, jobID string) error {
	if f.notFound {
		return postgres.ErrJobResultNotFound
	}
	if f.delivered == nil {
		f.delivered = map[string]bool{}
	}
	f.delivered[jobID] = true
	return nil
}

type fakeTelemetry struct {
	counts map[string]int64
}

func (f *fakeTelemetry) Aggregate(ctx context.Context) (map[string]int64, error) {
	return f.counts, nil
}

type fakeAttachments struct{}

func (fakeAttachments) StageAttachment(ctx context.Context, requestID string, index int, sourceURL, name string) (blob.StagedAttachment, error) {
	return blob.StagedAttachment{URL: "https://gateway.example.com/temp-attachments/" + requestID + "/staged", ContentHash: "hash-" + name}, nil
}

func newTestServer(t *testing.T) (*Server, *fakeQueue, *fakeDedup) {
	t.Helper()
	q := newFakeQueue()
	dd := newFakeDedup()
	s := NewServer(Config{}, Dependencies{
		Dedup:       dd,
		Queue:       q,
		Events:      &fakeEvents{},
		Channels:    newFakeChannelStore(),
		Denylist:    &fakeDenylistStore{},
		Delivery:    &fakeDeliveryStore{},
		Telemetry:   &fakeTelemetry{counts: map[string]int64{}},
		Attachments: fakeAttachments{},
	}, nil)
	return s, q, dd
}

func TestHandleGenerateEnqueuesAndReturns202(t *testing.T) {
	s, q, _ := newTestServer(t)
	ts := httptest.NewServer(s.Handler())
	defer ts.Close()

	body := `{"userId":"u1","personalityId":"p1","messageText":"hi"}`
	resp, err := http.Post(ts.URL+"/ai/generate", "application/json", strings.NewReader(body))
	if err != nil {
		t.Fatalf("POST: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusAccepted {
		t.Fatalf("status = %d, want 202", resp.StatusCode)
	}
	if len(q.enqueued) != 1 {
		t.Fatalf("enqueued count = %d, want 1", len(q.enqueued))
	}
	if q.enqueued[0].Type != queue.TypeLLMGeneration {
		t.Errorf("job type = %q, want %q", q.enqueued[0].Type, queue.TypeLLMGeneration)
	}
}

func TestHandleGenerateDeduplicatesIdenticalRequests(t *testing.T) {
	s, q, _ := newTestServer(t)
	ts := httptest.NewServer(s.Handler())
	defer ts.Close()

	body := `{"userId":"u1","personalityId":"p1","messageText":"hi"}`
	var jobIDs []string
	for i := 0; i < 2; i++ {
		resp, err := http.Post(ts.URL+"/ai/generate", "application/json", strings.NewReader(body))
		if err != nil {
			t.Fatalf("POST: %v", err)
		}
		var out map[string]any
		json.NewDecoder(resp.Body).Decode(&out)
		resp.Body.Close()
		jobIDs = append(jobIDs, out["jobId"].(string))
	}
	if jobIDs[0] != jobIDs[1] {
		t.Errorf("expected identical fingerprints to return the same job id, got %v", jobIDs)
	}
	if len(q.enqueued) != 1 {
		t.Errorf("expected only one enqueue for a deduplicated pair, got %d", len(q.enqueued))
	}
}

func TestHandleGenerateRejectsMissingFields(t *testing.T) {
	s, _, _ := newTestServer(t)
	ts := httptest.NewServer(s.Handler())
	defer ts.Close()

	resp, err := http.Post(ts.URL+"/ai/generate", "application/json", strings.NewReader(`{}`))
	if err != nil {
		t.Fatalf("POST: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", resp.StatusCode)
	}
	var out map[string]any
	json.NewDecoder(resp.Body).Decode(&out)
	if out["error"] != "VALIDATION_ERROR" {
		t.Errorf("error code = %v, want VALIDATION_ERROR", out["error"])
	}
}

func TestHandleGetJobNotFound(t *testing.T) {
	s, _, _ := newTestServer(t)
	ts := httptest.NewServer(s.Handler())
	defer ts.Close()

	resp, err := http.Get(ts.URL + "/ai/job/does-not-exist")
	if err != nil {
		t.Fatalf("GET: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusNotFound {
		t.Fatalf("status = %d, want 404", resp.StatusCode)
	}
}

func TestHandleGetJobFound(t *testing.T) {
	s, q, _ := newTestServer(t)
	q.jobs["job-1"] = map[string]string{"state": "completed"}
	ts := httptest.NewServer(s.Handler())
	defer ts.Close()

	resp, err := http.Get(ts.URL + "/ai/job/job-1")
	if err != nil {
		t.Fatalf("GET: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want 200", resp.StatusCode)
	}
}

func TestHandleConfirmDeliveryNotFound(t *testing.T) {
	s := NewServer(Config{}, Dependencies{
		Queue:    newFakeQueue(),
		Delivery: &fakeDeliveryStore{notFound: true},
	}, nil)
	ts := httptest.NewServer(s.Handler())
	defer ts.Close()

	resp, err := http.Post(ts.URL+"/ai/job/missing/confirm-delivery", "application/json", nil)
	if err != nil {
		t.Fatalf("POST: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusNotFound {
		t.Fatalf("status = %d, want 404", resp.StatusCode)
	}
}

func TestHandleConfirmDeliverySuccess(t *testing.T) {
	s, _, _ := newTestServer(t)
	ts := httptest.NewServer(s.Handler())
	defer ts.Close()

	resp, err := http.Post(ts.URL+"/ai/job/job-1/confirm-delivery", "application/json", nil)
	if err != nil {
		t.Fatalf("POST: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want 200", resp.StatusCode)
	}
}

func TestAuthMiddlewareRejectsMissingSecret(t *testing.T) {
	s := NewServer(Config{InternalServiceSecret: "topsecret"}, Dependencies{
		Queue: newFakeQueue(),
	}, nil)
	ts := httptest.NewServer(s.Handler())
	defer ts.Close()

	resp, err := http.Get(ts.URL + "/ai/job/anything")
	if err != nil {
		t.Fatalf("GET: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("status = %d, want 401", resp.StatusCode)
	}
}

func TestAuthMiddlewareAllowsPublicPaths(t *testing.T) {
	s := NewServer(Config{InternalServiceSecret: "topsecret"}, Dependencies{
		Queue: newFakeQueue(),
	}, nil)
	ts := httptest.NewServer(s.Handler())
	defer ts.Close()

	resp, err := http.Get(ts.URL + "/health")
	if err != nil {
		t.Fatalf("GET: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want 200", resp.StatusCode)
	}
}

func TestAuthMiddlewareAcceptsValidSecret(t *testing.T) {
	s := NewServer(Config{InternalServiceSecret: "topsecret"}, Dependencies{
		Queue: newFakeQueue(),
	}, nil)
	ts := httptest.NewServer(s.Handler())
	defer ts.Close()

	req, _ := http.NewRequest(http.MethodGet, ts.URL+"/ai/job/anything", nil)
	req.Header.Set("X-Internal-Service-Secret", "topsecret")
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("GET: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusNotFound {
		t.Fatalf("status = %d, want 404 (authenticated, just no such job)", resp.StatusCode)
	}
}

func TestHandleListChannels(t *testing.T) {
	s, _, _ := newTestServer(t)
	s.deps.Channels.(*fakeChannelStore).channels["c1"] = &models.ActivatedChannel{ChannelID: "c1", GuildID: "g1"}
	ts := httptest.NewServer(s.Handler())
	defer ts.Close()

	resp, err := http.Get(ts.URL + "/user/channel/list?guildId=g1")
	if err != nil {
		t.Fatalf("GET: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want 200", resp.StatusCode)
	}
}

func TestHandlePatchChannelOverridesMergeAndClear(t *testing.T) {
	s, _, _ := newTestServer(t)
	store := s.deps.Channels.(*fakeChannelStore)
	store.channels["c1"] = &models.ActivatedChannel{
		ChannelID: "c1", GuildID: "g1",
		ConfigOverrides: map[string]any{"temperature": 0.5, "keepMe": "yes"},
	}
	ts := httptest.NewServer(s.Handler())
	defer ts.Close()

	req, _ := http.NewRequest(http.MethodPatch, ts.URL+"/user/channel/c1/config-overrides",
		strings.NewReader(`{"temperature": 0.9, "keepMe": null}`))
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("PATCH: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want 200", resp.StatusCode)
	}

	updated, _ := store.GetActivatedChannel(context.Background(), "c1")
	if updated.ConfigOverrides["temperature"] != 0.9 {
		t.Errorf("temperature = %v, want 0.9", updated.ConfigOverrides["temperature"])
	}
	if _, exists := updated.ConfigOverrides["keepMe"]; exists {
		t.Error("expected keepMe to be cleared by a null patch value")
	}
}

func TestHandleDeleteChannelOverrides(t *testing.T) {
	s, _, _ := newTestServer(t)
	store := s.deps.Channels.(*fakeChannelStore)
	store.channels["c1"] = &models.ActivatedChannel{
		ChannelID: "c1", GuildID: "g1", ConfigOverrides: map[string]any{"a": 1},
	}
	ts := httptest.NewServer(s.Handler())
	defer ts.Close()

	req, _ := http.NewRequest(http.MethodDelete, ts.URL+"/user/channel/c1/config-overrides", nil)
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("DELETE: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want 200", resp.StatusCode)
	}
	updated, _ := store.GetActivatedChannel(context.Background(), "c1")
	if len(updated.ConfigOverrides) != 0 {
		t.Errorf("expected overrides cleared, got %v", updated.ConfigOverrides)
	}
}

func TestHandleCreateDenylistRejectsInvalidCombination(t *testing.T) {
	s, _, _ := newTestServer(t)
	ts := httptest.NewServer(s.Handler())
	defer ts.Close()

	body := `{"type":"GUILD","discordId":"123","scope":"CHANNEL","scopeId":"456"}`
	resp, err := http.Post(ts.URL+"/admin/denylist", "application/json", strings.NewReader(body))
	if err != nil {
		t.Fatalf("POST: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400 for type=GUILD with scope!=BOT", resp.StatusCode)
	}
}

func TestHandleCreateDenylistAccepted(t *testing.T) {
	s, _, _ := newTestServer(t)
	ts := httptest.NewServer(s.Handler())
	defer ts.Close()

	body := `{"type":"USER","discordId":"123","scope":"BOT","scopeId":"*","reason":"spam"}`
	resp, err := http.Post(ts.URL+"/admin/denylist", "application/json", strings.NewReader(body))
	if err != nil {
		t.Fatalf("POST: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("status = %d, want 201", resp.StatusCode)
	}
}

func TestHandleStopSequences(t *testing.T) {
	s, _, _ := newTestServer(t)
	s.deps.Telemetry.(*fakeTelemetry).counts["gpt-x"] = 3
	ts := httptest.NewServer(s.Handler())
	defer ts.Close()

	resp, err := http.Get(ts.URL + "/admin/stop-sequences")
	if err != nil {
		t.Fatalf("GET: %v", err)
	}
	defer resp.Body.Close()
	var out map[string]any
	json.NewDecoder(resp.Body).Decode(&out)
	counts := out["counts"].(map[string]any)
	if counts["gpt-x"].(float64) != 3 {
		t.Errorf("counts[gpt-x] = %v, want 3", counts["gpt-x"])
	}
}

func TestHandleHealth(t *testing.T) {
	s, _, _ := newTestServer(t)
	ts := httptest.NewServer(s.Handler())
	defer ts.Close()

	resp, err := http.Get(ts.URL + "/health")
	if err != nil {
		t.Fatalf("GET: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want 200", resp.StatusCode)
	}
}
