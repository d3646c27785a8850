package handlers

import (
	"bytes"
	"context"
	"fmt"
	"html/template"
	"log/slog"
	"net/http"
	"time"

	chatui "github.com/MegaGrindStone/chat-ui"
	"github.com/MegaGrindStone/chat-ui/internal/chat"
	"github.com/MegaGrindStone/chat-ui/internal/models"
	"github.com/tmaxmax/go-sse"
	"github.com/yuin/goldmark"
	highlighting "github.com/yuin/goldmark-highlighting"
	"github.com/yuin/goldmark/extension"
	"github.com/yuin/goldmark/renderer/html"
)

// Main handles the web surface of the chat application: the chat and history pages, turn submission,
// exports, the model catalog and the server-sent events that push turn progress to the browser.
type Main struct {
	sseSrv    *sse.Server
	templates *template.Template

	store        chat.Store
	orchestrator chat.Orchestrator
	catalog      *chat.Catalog
	sessions     *sessionRegistry

	// turnCtx is the parent of every background turn; it is cancelled on Shutdown.
	turnCtx    context.Context
	cancelTurn context.CancelFunc

	logger *slog.Logger
}

const (
	errLoggerKey = "err"

	// maxUploadSize bounds the multipart body of a turn submission.
	maxUploadSize = 32 << 20
)

// NewMain creates a new Main instance. It parses the HTML templates from the embedded filesystem, sets
// up the SSE server and builds the orchestrator, which reports every turn to the SSE publisher followed
// by the given observers.
func NewMain(
	gateway chat.Gateway,
	store chat.Store,
	catalog *chat.Catalog,
	defaultModel string,
	logger *slog.Logger,
	observers ...chat.Observer,
) (Main, error) {
	logger = logger.With(slog.String("module", "handlers"))

	tmpl, err := template.New("").Funcs(templateFuncs(logger)).ParseFS(
		chatui.TemplateFS,
		"templates/layout/*.html",
		"templates/pages/*.html",
		"templates/partials/*.html",
	)
	if err != nil {
		return Main{}, fmt.Errorf("failed to parse templates: %w", err)
	}

	sseSrv := &sse.Server{
		OnSession: func(s *sse.Session) (sse.Subscription, bool) {
			topics := []string{sse.DefaultTopic}

			// Turn updates are scoped to the conversation the page is showing.
			conversationID := s.Req.URL.Query().Get("conversation_id")
			if conversationID != "" {
				topics = append(topics, conversationTopic(conversationID))
			}

			return sse.Subscription{
				Client:      s,
				LastEventID: s.LastEventID,
				Topics:      topics,
			}, true
		},
	}

	publisher := turnPublisher{
		sseSrv:    sseSrv,
		templates: tmpl,
		logger:    logger,
	}

	turnCtx, cancel := context.WithCancel(context.Background())

	return Main{
		sseSrv:       sseSrv,
		templates:    tmpl,
		store:        store,
		orchestrator: chat.NewOrchestrator(store, gateway, logger, append([]chat.Observer{publisher}, observers...)...),
		catalog:      catalog,
		sessions:     newSessionRegistry(defaultModel),
		turnCtx:      turnCtx,
		cancelTurn:   cancel,
		logger:       logger,
	}, nil
}

func conversationTopic(conversationID string) string {
	return fmt.Sprintf("conversation-%s", conversationID)
}

// HandleSSE serves the server-sent event stream. Clients pass conversation_id to receive the turn
// updates of that conversation.
func (m Main) HandleSSE(w http.ResponseWriter, r *http.Request) {
	m.sseSrv.ServeHTTP(w, r)
}

// Shutdown cancels in-flight turns and gracefully terminates the SSE server. It broadcasts a close
// message to all connected clients and waits up to 5 seconds for connections to terminate. After the
// timeout, any remaining connections are forcefully closed.
func (m Main) Shutdown(ctx context.Context) error {
	m.cancelTurn()

	e := &sse.Message{Type: sse.Type("closeChat")}
	// The SSE format requires data on every event.
	e.AppendData("bye")

	_ = m.sseSrv.Publish(e)

	ctx, cancel := context.WithTimeout(ctx, time.Second*5)
	defer cancel()

	return m.sseSrv.Shutdown(ctx)
}

func templateFuncs(logger *slog.Logger) template.FuncMap {
	md := goldmark.New(
		goldmark.WithExtensions(
			extension.GFM,
			highlighting.NewHighlighting(
				highlighting.WithStyle("github"),
			),
		),
		goldmark.WithRendererOptions(
			html.WithHardWraps(),
		),
	)

	return template.FuncMap{
		"markdown": func(s string) template.HTML {
			var buf bytes.Buffer
			if err := md.Convert([]byte(s), &buf); err != nil {
				logger.Error("Failed to render markdown", slog.String(errLoggerKey, err.Error()))
				return template.HTML(template.HTMLEscapeString(s))
			}
			// Raw HTML in the source is omitted by the renderer.
			return template.HTML(buf.String())
		},
		"seconds": func(v *float64) string {
			if v == nil {
				return ""
			}
			return fmt.Sprintf("%.2fs", *v)
		},
		"sizeLabel": func(s models.SizeClass) string {
			return s.Info().Label
		},
		"formatTime": func(t time.Time) string {
			return t.Local().Format("2006-01-02 15:04:05")
		},
	}
}
