package handlers

import (
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"time"

	"github.com/MegaGrindStone/chat-ui/internal/chat"
	"github.com/MegaGrindStone/chat-ui/internal/models"
)

type historyPageData struct {
	Filters       historyFilters
	Stats         chat.Stats
	Conversations []models.Conversation
	Messages      []message
	Models        []string
	InputTypes    []models.InputType
}

type historyFilters struct {
	Query     string
	Day       string
	Model     string
	InputType string
}

const dayLayout = "2006-01-02"

func parseHistoryFilters(q url.Values) (historyFilters, chat.SearchOptions, error) {
	f := historyFilters{
		Query:     q.Get("q"),
		Day:       q.Get("day"),
		Model:     q.Get("model"),
		InputType: q.Get("input_type"),
	}

	opts := chat.SearchOptions{
		Query:     f.Query,
		Model:     f.Model,
		InputType: models.InputType(f.InputType),
	}
	if f.Day != "" {
		day, err := time.ParseInLocation(dayLayout, f.Day, time.Local)
		if err != nil {
			return historyFilters{}, chat.SearchOptions{}, fmt.Errorf("invalid day %q", f.Day)
		}
		opts.Day = day
	}
	if opts.InputType != "" && !opts.InputType.Valid() {
		return historyFilters{}, chat.SearchOptions{}, fmt.Errorf("%w: %q", chat.ErrUnknownInputType, f.InputType)
	}
	return f, opts, nil
}

// HandleHistory renders every stored turn across conversations, narrowed by the q, day (YYYY-MM-DD),
// model and input_type query parameters, together with usage statistics of the matching turns.
func (m Main) HandleHistory(w http.ResponseWriter, r *http.Request) {
	filters, opts, err := parseHistoryFilters(r.URL.Query())
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	all, err := m.store.List(r.Context(), models.MessageFilter{}, models.SortDescending)
	if err != nil {
		m.logger.Error("Failed to list messages", slog.String(errLoggerKey, err.Error()))
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	msgs := chat.Search(all, opts)

	views := make([]message, len(msgs))
	for i, msg := range msgs {
		views[i] = newMessage(msg, "ended")
	}

	data := historyPageData{
		Filters:       filters,
		Stats:         chat.ComputeStats(msgs),
		Conversations: models.Conversations(msgs),
		Messages:      views,
		Models:        chat.UsedModels(all),
		InputTypes:    []models.InputType{models.InputTypeText, models.InputTypeVoice, models.InputTypeImage},
	}
	if err := m.templates.ExecuteTemplate(w, "history.html", data); err != nil {
		m.logger.Error("Failed to render history", slog.String(errLoggerKey, err.Error()))
		http.Error(w, err.Error(), http.StatusInternalServerError)
	}
}

// HandleExport downloads the visible turns of the conversation named by conversation_id as JSON.
func (m Main) HandleExport(w http.ResponseWriter, r *http.Request) {
	conversationID := r.URL.Query().Get("conversation_id")
	if conversationID == "" {
		http.Error(w, "conversation_id is required", http.StatusBadRequest)
		return
	}

	msgs, err := m.orchestrator.Messages(r.Context(), m.sessions.view(conversationID))
	if err != nil {
		m.logger.Error("Failed to get messages",
			slog.String("conversationID", conversationID),
			slog.String(errLoggerKey, err.Error()))
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	m.writeExport(w, "export", msgs)
}

// HandleHistoryExport downloads the stored turns matching the history filters as JSON, oldest first.
func (m Main) HandleHistoryExport(w http.ResponseWriter, r *http.Request) {
	_, opts, err := parseHistoryFilters(r.URL.Query())
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	all, err := m.store.List(r.Context(), models.MessageFilter{}, models.SortAscending)
	if err != nil {
		m.logger.Error("Failed to list messages", slog.String(errLoggerKey, err.Error()))
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	m.writeExport(w, "history", chat.Search(all, opts))
}

func (m Main) writeExport(w http.ResponseWriter, kind string, msgs []models.Message) {
	data, err := models.ExportMessages(msgs)
	if err != nil {
		m.logger.Error("Failed to export messages", slog.String(errLoggerKey, err.Error()))
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Content-Disposition",
		fmt.Sprintf("attachment; filename=%q", models.ExportFileName(kind, time.Now())))
	_, _ = w.Write(data)
}
