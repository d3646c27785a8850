package handlers

import (
	"encoding/json"
	"errors"
	"fmt"
	"html/template"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/MegaGrindStone/chat-ui/internal/chat"
	"github.com/MegaGrindStone/chat-ui/internal/models"
	"github.com/gabriel-vasile/mimetype"
	"github.com/tmaxmax/go-sse"
)

type message struct {
	ID             string
	Role           string
	Content        string
	InputType      string
	Model          string
	ProcessingTime *float64
	Timestamp      time.Time

	StreamingState string
}

type homePageData struct {
	ConversationID string
	CurrentModel   string
	Models         []models.Model
	Messages       []message
	Busy           bool
}

type acceptedResponse struct {
	ConversationID string `json:"conversation_id"`
	InputType      string `json:"input_type"`
}

// SSE event types for turn updates.
var (
	messageSSEType     = sse.Type("message")
	placeholderSSEType = sse.Type("placeholder")
	stateSSEType       = sse.Type("state")
	turnErrorSSEType   = sse.Type("turnError")
	clearedSSEType     = sse.Type("cleared")
)

func newMessage(msg models.Message, streamingState string) message {
	return message{
		ID:             msg.ID,
		Role:           string(msg.Role),
		Content:        msg.Content,
		InputType:      string(msg.InputType),
		Model:          msg.ModelUsed,
		ProcessingTime: msg.ProcessingTime,
		Timestamp:      msg.CreatedAt,
		StreamingState: streamingState,
	}
}

// HandleHome renders the chat page of the conversation named by the conversation_id query parameter,
// or of a fresh conversation when it is absent. Only turns after the conversation's last clear are
// shown.
func (m Main) HandleHome(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != "/" {
		http.NotFound(w, r)
		return
	}

	conversationID := r.URL.Query().Get("conversation_id")
	if conversationID == "" {
		conversationID = m.sessions.newConversationID(time.Now())
	}
	sess := m.sessions.view(conversationID)

	msgs, err := m.orchestrator.Messages(r.Context(), sess)
	if err != nil {
		m.logger.Error("Failed to get messages",
			slog.String("conversationID", conversationID),
			slog.String(errLoggerKey, err.Error()))
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	views := make([]message, len(msgs))
	for i, msg := range msgs {
		views[i] = newMessage(msg, "ended")
	}

	data := homePageData{
		ConversationID: conversationID,
		CurrentModel:   sess.Model(),
		Models:         m.catalog.Models(r.Context()),
		Messages:       views,
		Busy:           sess.Busy(),
	}
	if err := m.templates.ExecuteTemplate(w, "home.html", data); err != nil {
		m.logger.Error("Failed to render home", slog.String(errLoggerKey, err.Error()))
		http.Error(w, err.Error(), http.StatusInternalServerError)
	}
}

// HandleMessages accepts one turn submission and runs it in the background, pushing its progress over
// SSE. The request is multipart (or url-encoded for text) with the fields conversation_id, model,
// input_type (text, voice or image), message and file. Voice and image turns require a file whose
// sniffed type matches the input type.
//
// It responds 202 once the turn is started, 400 for invalid submissions and 409 when the conversation
// already has a turn in flight. The 409 check is advisory: a turn that loses the race to another
// submission after the 202 is rejected by the orchestrator and reported as a turnError SSE event.
func (m Main) HandleMessages(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, maxUploadSize)
	if err := r.ParseMultipartForm(maxUploadSize); err != nil && !errors.Is(err, http.ErrNotMultipart) {
		m.logger.Warn("Invalid form", slog.String(errLoggerKey, err.Error()))
		http.Error(w, "Invalid form", http.StatusBadRequest)
		return
	}

	conversationID := r.FormValue("conversation_id")
	if conversationID == "" {
		http.Error(w, "conversation_id is required", http.StatusBadRequest)
		return
	}

	in, err := m.turnInput(r)
	if err != nil {
		m.logger.Warn("Invalid turn input",
			slog.String("conversationID", conversationID),
			slog.String(errLoggerKey, err.Error()))
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	sess := m.sessions.session(conversationID)
	if sess.Busy() {
		http.Error(w, chat.ErrTurnInProgress.Error(), http.StatusConflict)
		return
	}
	sess.SetModel(r.FormValue("model"))

	go m.runTurn(sess, in)

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusAccepted)
	_ = json.NewEncoder(w).Encode(acceptedResponse{
		ConversationID: conversationID,
		InputType:      string(in.Type),
	})
}

func (m Main) turnInput(r *http.Request) (chat.Input, error) {
	in := chat.Input{
		Type: models.InputType(r.FormValue("input_type")),
		Text: r.FormValue("message"),
	}
	if in.Type == "" {
		in.Type = models.InputTypeText
	}

	switch in.Type {
	case models.InputTypeText:
		if strings.TrimSpace(in.Text) == "" {
			return chat.Input{}, chat.ErrEmptyInput
		}
		return in, nil
	case models.InputTypeVoice, models.InputTypeImage:
	default:
		return chat.Input{}, fmt.Errorf("%w: %q", chat.ErrUnknownInputType, in.Type)
	}

	file, header, err := r.FormFile("file")
	if err != nil {
		return chat.Input{}, fmt.Errorf("file is required for %s input", in.Type)
	}
	defer file.Close()

	data, err := io.ReadAll(file)
	if err != nil {
		return chat.Input{}, fmt.Errorf("failed to read file: %w", err)
	}
	if len(data) == 0 {
		return chat.Input{}, fmt.Errorf("file is empty")
	}

	mtype := mimetype.Detect(data)
	kind := models.AttachmentImage
	if in.Type == models.InputTypeVoice {
		kind = models.AttachmentAudio
	}
	if !acceptsUpload(kind, mtype) {
		return chat.Input{}, fmt.Errorf("file of type %s is not valid %s input", mtype.String(), in.Type)
	}

	in.Attachment = &models.Attachment{
		Kind:     kind,
		Name:     header.Filename,
		MIMEType: mtype.String(),
		Data:     data,
	}
	return in, nil
}

// acceptsUpload reports whether a sniffed upload can fill the attachment slot of kind. Browsers record
// voice into WebM or Ogg containers, which sniff as video.
func acceptsUpload(kind models.AttachmentKind, mtype *mimetype.MIME) bool {
	switch kind {
	case models.AttachmentAudio:
		return strings.HasPrefix(mtype.String(), "audio/") || mtype.Is("video/webm") || mtype.Is("video/ogg")
	case models.AttachmentImage:
		return strings.HasPrefix(mtype.String(), "image/")
	}
	return false
}

func (m Main) runTurn(sess *chat.Session, in chat.Input) {
	res, err := m.orchestrator.SendTurn(m.turnCtx, sess, in)
	if err != nil {
		m.logger.Error("Turn failed",
			slog.String("conversationID", sess.ConversationID),
			slog.String(errLoggerKey, err.Error()))
		if errors.Is(err, chat.ErrTurnInProgress) {
			publishText(m.sseSrv, turnErrorSSEType, conversationTopic(sess.ConversationID), err.Error(), m.logger)
		}
		return
	}

	m.logger.Debug("Turn completed",
		slog.String("conversationID", sess.ConversationID),
		slog.String("inputType", string(in.Type)),
		slog.Bool("inferenceFailed", res.InferenceFailed))
}

// HandleClear hides the current turns of a conversation from its page and from future prompt history.
// Stored turns are kept and still show up in the history page and exports.
func (m Main) HandleClear(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	conversationID := r.FormValue("conversation_id")
	if conversationID == "" {
		http.Error(w, "conversation_id is required", http.StatusBadRequest)
		return
	}

	m.sessions.session(conversationID).Clear(time.Now())
	publishText(m.sseSrv, clearedSSEType, conversationTopic(conversationID), conversationID, m.logger)

	w.WriteHeader(http.StatusNoContent)
}

// turnPublisher is the chat.Observer that renders turn progress into SSE events on the conversation's
// topic.
type turnPublisher struct {
	sseSrv    *sse.Server
	templates *template.Template

	logger *slog.Logger
}

// OnTurnEvent implements chat.Observer.
func (p turnPublisher) OnTurnEvent(ev chat.TurnEvent) {
	topic := conversationTopic(ev.Session.ConversationID)

	publishText(p.sseSrv, stateSSEType, topic, string(ev.State), p.logger)

	switch ev.State {
	case chat.StateAwaitingInference:
		p.publishMessage(messageSSEType, topic, "user_message", newMessage(*ev.User, "ended"))
		p.publishMessage(placeholderSSEType, topic, "ai_message", newMessage(*ev.Placeholder, "loading"))
	case chat.StateIdle:
		if ev.Err != nil {
			publishText(p.sseSrv, turnErrorSSEType, topic, ev.Err.Error(), p.logger)
			return
		}
		if ev.Assistant != nil {
			p.publishMessage(messageSSEType, topic, "ai_message", newMessage(*ev.Assistant, "ended"))
		}
	default:
	}
}

func (p turnPublisher) publishMessage(typ sse.EventType, topic, tmpl string, msg message) {
	var sb strings.Builder
	if err := p.templates.ExecuteTemplate(&sb, tmpl, msg); err != nil {
		p.logger.Error("Failed to render message",
			slog.String("template", tmpl),
			slog.String(errLoggerKey, err.Error()))
		return
	}
	publishText(p.sseSrv, typ, topic, sb.String(), p.logger)
}

func publishText(srv *sse.Server, typ sse.EventType, topic, data string, logger *slog.Logger) {
	msg := sse.Message{
		Type: typ,
	}
	msg.AppendData(data)
	if err := srv.Publish(&msg, topic); err != nil {
		logger.Error("Failed to publish event",
			slog.String("topic", topic),
			slog.String(errLoggerKey, err.Error()))
	}
}
