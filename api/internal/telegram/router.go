package telegram

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"
	"unicode/utf8"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"go.uber.org/zap"

	"dents-inspector/api/internal/damage"
	"dents-inspector/api/internal/vision"
)

// API is the part of *tgbotapi.BotAPI the router uses.
type API interface {
	Send(c tgbotapi.Chattable) (tgbotapi.Message, error)
	Request(c tgbotapi.Chattable) (*tgbotapi.APIResponse, error)
	GetFileDirectURL(fileID string) (string, error)
}

type Inspector interface {
	Inspect(ctx context.Context, archivePath string, backend vision.Client) ([]damage.Detection, error)
}

type Translator interface {
	Translate(ctx context.Context, in []damage.Detection) ([]damage.Enriched, error)
}

type Router struct {
	Bot        API
	Engines    *vision.Engines
	EngManager *vision.Manager
	Inspector  Inspector
	Translator Translator
	DB         *sql.DB
	Log        *zap.Logger

	// HTTP downloads archives from the Telegram file API.
	HTTP *http.Client
	// DownloadDir holds archives while they are inspected.
	DownloadDir string
	// MaxArchiveBytes rejects larger documents before downloading.
	MaxArchiveBytes int64
	// Timeout bounds one inspection.
	Timeout time.Duration
}

func (r *Router) logger() *zap.Logger {
	if r.Log == nil {
		return zap.NewNop()
	}
	return r.Log
}

// HandleUpdate routes one update: callback buttons, commands and archive
// documents. Other messages get a short usage hint.
func (r *Router) HandleUpdate(ctx context.Context, upd tgbotapi.Update) {
	if upd.CallbackQuery != nil {
		r.handleCallback(*upd.CallbackQuery)
		return
	}
	if upd.Message == nil {
		return
	}
	msg := upd.Message
	cid := msg.Chat.ID

	switch {
	case msg.IsCommand():
		r.HandleCommand(ctx, msg)
	case msg.Document != nil:
		r.acceptArchive(ctx, cid, msg.Document)
	case len(msg.Photo) > 0:
		r.send(cid, "Send the photos packed in one archive (.zip, .tar, .tar.gz or .tgz) as a file.")
	default:
		r.send(cid, startText)
	}
}

const startText = "Send an archive (.zip, .tar, .tar.gz, .tgz) with photos of a car as a document " +
	"and I will reply with the damages found.\nCommands: /health, /engine"

func (r *Router) HandleCommand(ctx context.Context, msg *tgbotapi.Message) {
	cid := msg.Chat.ID
	switch msg.Command() {
	case "start", "help":
		r.send(cid, startText)
	case "health":
		r.send(cid, r.health(ctx))
	case "engine":
		r.handleEngineCommand(cid, msg.CommandArguments())
	default:
		r.send(cid, "Unknown command")
	}
}

func (r *Router) health(ctx context.Context) string {
	if r.DB != nil {
		ctx, cancel := context.WithTimeout(ctx, 2*time.Second)
		defer cancel()
		if err := r.DB.PingContext(ctx); err != nil {
			return "⚠️ db: not ok: " + err.Error()
		}
	}
	return "✅ OK, engines: " + strings.Join(r.Engines.Names(), ", ")
}

// handleEngineCommand switches the chat's backend.
//
//	/engine
//	/engine gemini [model]
//	/engine gpt [model]
func (r *Router) handleEngineCommand(chatID int64, args string) {
	fields := strings.Fields(args)
	if len(fields) == 0 {
		cur := r.EngManager.Get(chatID)
		text := "No engine configured."
		if cur != nil {
			text = "Current engine: " + describe(cur)
		}
		msg := tgbotapi.NewMessage(chatID, text+"\nUsage: /engine {gemini|gpt} [model]")
		if kb, ok := engineKeyboard(r.Engines.Names()); ok {
			msg.ReplyMarkup = kb
		}
		_, _ = r.Bot.Send(msg)
		return
	}
	model := ""
	if len(fields) > 1 {
		model = fields[1]
	}
	text, err := r.selectEngine(chatID, fields[0], model)
	if err != nil {
		r.send(chatID, "❌ "+err.Error())
		return
	}
	r.send(chatID, text)
}

func (r *Router) selectEngine(chatID int64, name, model string) (string, error) {
	c, err := r.Engines.Get(name)
	if err != nil {
		return "", err
	}
	if model != "" {
		sw, ok := c.(vision.ModelSwitcher)
		if !ok {
			return "", fmt.Errorf("engine %s cannot switch models", c.Name())
		}
		c = sw.WithModel(model)
	}
	r.EngManager.Set(chatID, c)
	return "✅ Engine: " + describe(c), nil
}

func describe(c vision.Client) string {
	return c.Name() + " (" + c.Model() + ")"
}

func (r *Router) send(chatID int64, text string) {
	if _, err := r.Bot.Send(tgbotapi.NewMessage(chatID, text)); err != nil {
		r.logger().Warn("telegram send", zap.Int64("chat_id", chatID), zap.Error(err))
	}
}

// SendResult sends a report, trimmed to fit one Telegram message.
func (r *Router) SendResult(chatID int64, text string) {
	r.send(chatID, truncate(text, maxReportBytes))
}

const maxReportBytes = 3900

// truncate cuts s to at most n bytes on a rune boundary and marks the cut.
func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	for n > 0 && !utf8.RuneStart(s[n]) {
		n--
	}
	return s[:n] + "…"
}

func (r *Router) SendError(chatID int64, err error) {
	r.send(chatID, "⚠️ "+userMessage(err))
}

var errTooLarge = errors.New("archive is too large")
