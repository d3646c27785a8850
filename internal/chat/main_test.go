package chat_test

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"slices"
	"sync"
	"time"

	"github.com/MegaGrindStone/chat-ui/internal/chat"
	"github.com/MegaGrindStone/chat-ui/internal/models"
	"github.com/google/uuid"
)

type mockBackend struct {
	mu       sync.Mutex
	requests []models.GenerateRequest

	generate func(ctx context.Context, req models.GenerateRequest) (models.Output, error)
}

type mockLister struct {
	mockBackend

	models []models.Model
	err    error
}

type mockStore struct {
	mu       sync.Mutex
	messages []models.Message
	seq      int

	appendErr error
	queryErr  error
}

type recordingObserver struct {
	mu     sync.Mutex
	events []chat.TurnEvent
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func replyWith(text string) func(context.Context, models.GenerateRequest) (models.Output, error) {
	return func(context.Context, models.GenerateRequest) (models.Output, error) {
		return models.ScalarOutput(text), nil
	}
}

func failWith(err error) func(context.Context, models.GenerateRequest) (models.Output, error) {
	return func(context.Context, models.GenerateRequest) (models.Output, error) {
		return models.Output{}, err
	}
}

func (m *mockBackend) Name() string { return "mock" }

func (m *mockBackend) Generate(ctx context.Context, req models.GenerateRequest) (models.Output, error) {
	m.mu.Lock()
	m.requests = append(m.requests, req)
	gen := m.generate
	m.mu.Unlock()

	if gen == nil {
		return models.ScalarOutput(""), nil
	}
	return gen(ctx, req)
}

func (m *mockBackend) Requests() []models.GenerateRequest {
	m.mu.Lock()
	defer m.mu.Unlock()
	return slices.Clone(m.requests)
}

func (m *mockLister) ListModels(context.Context) ([]models.Model, error) {
	return m.models, m.err
}

func (m *mockStore) Append(_ context.Context, msg models.Message) (models.Message, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.appendErr != nil {
		return models.Message{}, m.appendErr
	}
	if msg.ID == "" {
		msg.ID = uuid.New().String()
	}
	if msg.CreatedAt.IsZero() {
		// Strictly increasing timestamps keep ordering deterministic.
		m.seq++
		msg.CreatedAt = time.Date(2025, 1, 1, 0, 0, m.seq, 0, time.UTC)
	}
	msg.UpdatedAt = msg.CreatedAt
	m.messages = append(m.messages, msg)
	return msg, nil
}

func (m *mockStore) List(_ context.Context, filter models.MessageFilter, order models.SortOrder) ([]models.Message, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.queryErr != nil {
		return nil, m.queryErr
	}
	var out []models.Message
	for _, msg := range m.messages {
		if filter.Match(msg) {
			out = append(out, msg)
		}
	}
	models.SortMessages(out, order)
	return out, nil
}

func (m *mockStore) Query(ctx context.Context, conversationID string, order models.SortOrder) ([]models.Message, error) {
	return m.List(ctx, models.MessageFilter{ConversationID: conversationID}, order)
}

func (m *mockStore) All() []models.Message {
	m.mu.Lock()
	defer m.mu.Unlock()
	return slices.Clone(m.messages)
}

func (r *recordingObserver) OnTurnEvent(ev chat.TurnEvent) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, ev)
}

func (r *recordingObserver) States() []chat.TurnState {
	r.mu.Lock()
	defer r.mu.Unlock()
	states := make([]chat.TurnState, len(r.events))
	for i, ev := range r.events {
		states[i] = ev.State
	}
	return states
}

var errBackendDown = errors.New("connection refused")
