package chat

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/MegaGrindStone/chat-ui/internal/models"
)

// Store defines the append-only persistence of turns. Results are ordered by CreatedAt, newest first
// unless models.SortAscending is requested.
type Store interface {
	Append(ctx context.Context, msg models.Message) (models.Message, error)
	List(ctx context.Context, filter models.MessageFilter, order models.SortOrder) ([]models.Message, error)
	Query(ctx context.Context, conversationID string, order models.SortOrder) ([]models.Message, error)
}

// TurnState is a step of a single SendTurn call.
type TurnState string

const (
	StateIdle                     TurnState = "idle"
	StateNormalizing              TurnState = "normalizing"
	StateAwaitingPersistUser      TurnState = "awaiting_persist_user"
	StateAwaitingInference        TurnState = "awaiting_inference"
	StateAwaitingPersistAssistant TurnState = "awaiting_persist_assistant"
)

// TurnEvent is emitted to observers on every state transition of a turn.
type TurnEvent struct {
	Session   *Session
	State     TurnState
	InputType models.InputType

	// User is set from StateAwaitingInference on, once the user turn is persisted.
	User *models.Message
	// Placeholder is the streaming assistant turn shown during StateAwaitingInference. It is never
	// persisted and must be discarded when the turn returns to StateIdle.
	Placeholder *models.Message
	// Assistant is set on the final StateIdle event of a completed turn.
	Assistant *models.Message
	// InferenceFailed reports that Assistant carries the apology instead of a backend reply.
	InferenceFailed bool
	// Err is set on the final StateIdle event when a store failure aborted the turn.
	Err error
}

// Observer receives turn events synchronously, in order, from the goroutine running SendTurn.
type Observer interface {
	OnTurnEvent(ev TurnEvent)
}

// TurnResult holds the two turns persisted by a successful SendTurn.
type TurnResult struct {
	User            models.Message
	Assistant       models.Message
	InferenceFailed bool
}

const (
	// historyWindow is the number of most recent turns, including the new user turn, embedded in the
	// prompt.
	historyWindow = 6

	placeholderID = "streaming"

	apologyMessage = "I apologize, but I encountered an error processing your request. " +
		"Please make sure Ollama is running and try again."

	errLoggerKey = "err"
)

var (
	// ErrEmptyInput is returned for text input that is empty after trimming.
	ErrEmptyInput = errors.New("message is required")
	// ErrUnknownInputType is returned for input types other than text, voice and image.
	ErrUnknownInputType = errors.New("unknown input type")
	// ErrTurnInProgress is returned when the session already has a turn in flight. Such calls are
	// rejected, never queued.
	ErrTurnInProgress = errors.New("a turn is already in progress for this conversation")
)

// Orchestrator runs conversation turns: normalize, persist the user turn, ask the backend with recent
// history, persist the assistant turn.
type Orchestrator struct {
	store      Store
	gateway    Gateway
	normalizer Normalizer
	observers  []Observer

	logger *slog.Logger
}

// NewOrchestrator creates an Orchestrator persisting to store and generating through gateway.
func NewOrchestrator(store Store, gateway Gateway, logger *slog.Logger, observers ...Observer) Orchestrator {
	return Orchestrator{
		store:      store,
		gateway:    gateway,
		normalizer: NewNormalizer(gateway, logger),
		observers:  observers,
		logger:     logger.With(slog.String("module", "orchestrator")),
	}
}

// SendTurn runs one turn for sess. The user turn is persisted right after normalization, before the
// backend answers, so it exists even if inference fails. A failed inference is answered with a fixed
// apology turn carrying no processing time; only store failures are returned as errors. Calls on a
// session that already has a turn in flight fail with ErrTurnInProgress.
func (o Orchestrator) SendTurn(ctx context.Context, sess *Session, in Input) (TurnResult, error) {
	if !in.Type.Valid() {
		return TurnResult{}, fmt.Errorf("%w: %q", ErrUnknownInputType, in.Type)
	}
	if in.Type == models.InputTypeText && strings.TrimSpace(in.Text) == "" {
		return TurnResult{}, ErrEmptyInput
	}
	if !sess.tryBegin() {
		return TurnResult{}, ErrTurnInProgress
	}
	defer sess.end()

	start := time.Now()
	model := sess.Model()

	ev := TurnEvent{Session: sess, InputType: in.Type}
	o.emit(ev, StateNormalizing)

	text := o.normalizer.Normalize(ctx, in)

	o.emit(ev, StateAwaitingPersistUser)
	user, err := o.store.Append(ctx, models.Message{
		Role:           models.RoleUser,
		Content:        text,
		InputType:      in.Type,
		ConversationID: sess.ConversationID,
	})
	if err != nil {
		err = fmt.Errorf("failed to add user message: %w", err)
		ev.Err = err
		o.emit(ev, StateIdle)
		return TurnResult{}, err
	}
	ev.User = &user

	prompt := turnPrompt(model, text, o.history(ctx, sess, user))

	ev.Placeholder = &models.Message{
		ID:             placeholderID,
		Role:           models.RoleAssistant,
		ModelUsed:      model,
		ConversationID: sess.ConversationID,
		CreatedAt:      time.Now(),
	}
	o.emit(ev, StateAwaitingInference)

	reply, genErr := o.gateway.Generate(ctx, prompt, model)
	elapsed := time.Since(start)
	ev.Placeholder = nil

	am := models.Message{
		Role:           models.RoleAssistant,
		ModelUsed:      model,
		ConversationID: sess.ConversationID,
	}
	if genErr != nil {
		o.logger.Error("Inference failed",
			slog.String("conversationID", sess.ConversationID),
			slog.String(errLoggerKey, genErr.Error()))
		am.Content = apologyMessage
		ev.InferenceFailed = true
	} else {
		am.Content = reply
		seconds := elapsed.Seconds()
		am.ProcessingTime = &seconds
	}

	o.emit(ev, StateAwaitingPersistAssistant)
	assistant, err := o.store.Append(ctx, am)
	if err != nil {
		err = fmt.Errorf("failed to add assistant message: %w", err)
		ev.Err = err
		o.emit(ev, StateIdle)
		return TurnResult{}, err
	}
	ev.Assistant = &assistant
	o.emit(ev, StateIdle)

	return TurnResult{
		User:            user,
		Assistant:       assistant,
		InferenceFailed: ev.InferenceFailed,
	}, nil
}

// Messages returns the turns of sess that are still visible after its last clear, oldest first.
func (o Orchestrator) Messages(ctx context.Context, sess *Session) ([]models.Message, error) {
	msgs, err := o.store.Query(ctx, sess.ConversationID, models.SortAscending)
	if err != nil {
		return nil, fmt.Errorf("failed to get messages: %w", err)
	}

	clearedAt := sess.ClearedAt()
	if clearedAt.IsZero() {
		return msgs, nil
	}
	visible := msgs[:0]
	for _, msg := range msgs {
		if msg.CreatedAt.After(clearedAt) {
			visible = append(visible, msg)
		}
	}
	return visible, nil
}

// history returns the last historyWindow visible turns of sess, reduced to {role, content}. The user
// turn just persisted is always the final entry.
func (o Orchestrator) history(ctx context.Context, sess *Session, user models.Message) []models.HistoryEntry {
	msgs, err := o.Messages(ctx, sess)
	if err != nil {
		o.logger.Error("Failed to load history, continuing with the new turn only",
			slog.String("conversationID", sess.ConversationID),
			slog.String(errLoggerKey, err.Error()))
		msgs = nil
	}
	if len(msgs) == 0 || msgs[len(msgs)-1].ID != user.ID {
		msgs = append(msgs, user)
	}
	if len(msgs) > historyWindow {
		msgs = msgs[len(msgs)-historyWindow:]
	}

	entries := make([]models.HistoryEntry, len(msgs))
	for i, msg := range msgs {
		entries[i] = models.HistoryEntry{Role: msg.Role, Content: msg.Content}
	}
	return entries
}

func turnPrompt(model, text string, history []models.HistoryEntry) string {
	ctxJSON, _ := json.Marshal(history)
	return fmt.Sprintf("You are an AI assistant running on the %s model via Ollama. The user said: \"%s\". "+
		"Please provide a helpful, detailed response. Previous conversation context: %s",
		model, text, ctxJSON)
}

func (o Orchestrator) emit(ev TurnEvent, state TurnState) {
	ev.State = state
	for _, obs := range o.observers {
		obs.OnTurnEvent(ev)
	}
}
