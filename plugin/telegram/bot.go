// Package telegram implements the bot channel: a long-poll loop that
// turns incoming updates into router tasks and replies with the final
// response text.
package telegram

import (
	"context"
	"encoding/base64"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/pkg/errors"
	"golang.org/x/time/rate"

	"github.com/waspdev/waspd/ai/router"
	"github.com/waspdev/waspd/internal/profile"
)

// ChannelID identifies this channel in tasks and session records.
const ChannelID = "telegram"

// pollTimeout is the server-side long-poll timeout in seconds.
const pollTimeout = 30

// API is the slice of the bot API the channel uses. *tgbotapi.BotAPI
// satisfies it.
type API interface {
	GetUpdates(config tgbotapi.UpdateConfig) ([]tgbotapi.Update, error)
	Send(c tgbotapi.Chattable) (tgbotapi.Message, error)
	GetFile(config tgbotapi.FileConfig) (tgbotapi.File, error)
}

// Sessions clears per-channel conversation history for /clear.
type Sessions interface {
	ClearSessions(ctx context.Context, channelID string) error
}

// LocalModel reports the loaded local model for /model.
type LocalModel interface {
	Loaded() bool
	ModelID() string
}

// Bot drives the long-poll loop.
type Bot struct {
	api      API
	token    string
	router   *router.Router
	sessions Sessions
	model    LocalModel
	limiter  *rate.Limiter
	client   *http.Client
	offset   int

	// fileLink resolves a file record to its download URL. Swappable in
	// tests.
	fileLink func(tgbotapi.File) string
}

// NewBot connects to the bot API with the profile's token.
func NewBot(p *profile.Profile, rt *router.Router, sessions Sessions, model LocalModel) (*Bot, error) {
	if p.BotToken == "" {
		return nil, errors.New("bot token is not configured")
	}
	api, err := tgbotapi.NewBotAPI(p.BotToken)
	if err != nil {
		return nil, errors.Wrap(err, "failed to create bot")
	}
	return newBot(api, p.BotToken, p, rt, sessions, model), nil
}

func newBot(api API, token string, p *profile.Profile, rt *router.Router, sessions Sessions, model LocalModel) *Bot {
	interval := 2
	if p != nil && p.BotPollInterval > 0 {
		interval = p.BotPollInterval
	}
	b := &Bot{
		api:      api,
		token:    token,
		router:   rt,
		sessions: sessions,
		model:    model,
		limiter:  rate.NewLimiter(rate.Every(time.Duration(interval)*time.Second), 1),
		client: &http.Client{
			Timeout: 30 * time.Second,
			Transport: &http.Transport{
				DisableCompression: true,
			},
		},
	}
	b.fileLink = func(file tgbotapi.File) string { return file.Link(b.token) }
	return b
}

// Run polls for updates until ctx is cancelled. The offset cursor only
// moves forward, so every update is handled at most once.
func (b *Bot) Run(ctx context.Context) error {
	for {
		if err := b.limiter.Wait(ctx); err != nil {
			return err
		}

		cfg := tgbotapi.NewUpdate(b.offset)
		cfg.Timeout = pollTimeout
		updates, err := b.api.GetUpdates(cfg)
		if err != nil {
			slog.Warn("bot poll failed", "error", err)
			continue
		}

		for i := range updates {
			update := updates[i]
			if update.UpdateID >= b.offset {
				b.offset = update.UpdateID + 1
			}
			b.handleUpdate(ctx, update)
		}
	}
}

func (b *Bot) handleUpdate(ctx context.Context, update tgbotapi.Update) {
	if update.CallbackQuery != nil {
		b.handleCallback(ctx, update.CallbackQuery)
		return
	}

	msg := update.Message
	if msg == nil || msg.From == nil || msg.Chat == nil {
		return
	}
	chatID := msg.Chat.ID
	userID := strconv.FormatInt(msg.From.ID, 10)

	switch {
	case msg.IsCommand():
		b.reply(chatID, b.handleCommand(ctx, msg))
	case msg.Voice != nil:
		b.handleVoice(ctx, chatID, userID, msg)
	case msg.Text != "":
		go b.submitAndReply(ctx, chatID, userID, msg.Text, nil)
	}
}

func (b *Bot) handleCallback(ctx context.Context, query *tgbotapi.CallbackQuery) {
	if query.Message == nil || query.Message.Chat == nil {
		return
	}
	chatID := query.Message.Chat.ID
	userID := strconv.FormatInt(query.From.ID, 10)
	message := fmt.Sprintf("[CALLBACK:%s]", query.Data)
	go b.submitAndReply(ctx, chatID, userID, message, map[string]string{"kind": "callback"})
}

// handleVoice downloads the voice file and forwards it as an audio
// task, carrying the bytes base64-encoded in the task metadata so the
// executor can transcribe without a bot token. Transcription is the
// executor's business.
func (b *Bot) handleVoice(ctx context.Context, chatID int64, userID string, msg *tgbotapi.Message) {
	data, mimeType, err := b.downloadFile(ctx, msg.Voice.FileID)
	if err != nil {
		slog.Warn("failed to download voice message", "file_id", msg.Voice.FileID, "error", err)
		b.reply(chatID, "Failed to download voice message.")
		return
	}

	metadata := map[string]string{
		"kind":     "audio",
		"fileId":   msg.Voice.FileID,
		"mimeType": mimeType,
		"size":     strconv.Itoa(len(data)),
		"payload":  base64.StdEncoding.EncodeToString(data),
	}
	message := msg.Caption
	if message == "" {
		message = "[voice message]"
	}
	go b.submitAndReply(ctx, chatID, userID, message, metadata)
}

// submitAndReply submits one task and sends the terminal outcome back
// as a single message.
func (b *Bot) submitAndReply(ctx context.Context, chatID int64, userID, message string, metadata map[string]string) {
	events, unsubscribe := b.router.Subscribe()
	defer unsubscribe()

	task := router.NewTask(ChannelID, userID, message, metadata)
	if _, err := b.router.Submit(task); err != nil {
		b.reply(chatID, "Failed to submit request: "+err.Error())
		return
	}

	for {
		select {
		case ev, ok := <-events:
			if !ok {
				return
			}
			if ev.TaskID != task.ID {
				continue
			}
			switch ev.Type {
			case router.EventComplete:
				b.reply(chatID, ev.Response)
				return
			case router.EventError:
				b.reply(chatID, "Error: "+ev.Error)
				return
			case router.EventCancelled:
				b.reply(chatID, "Request cancelled.")
				return
			case router.EventDropped:
				b.reply(chatID, "Request dropped: "+ev.Reason)
				return
			}
		case <-ctx.Done():
			b.router.Cancel(task.ID)
			return
		}
	}
}

// handleCommand serves the slash commands synchronously; they never
// reach the router.
func (b *Bot) handleCommand(ctx context.Context, msg *tgbotapi.Message) string {
	switch msg.Command() {
	case "start":
		return "Hi! Send me a message and I will route it to a local or cloud model."
	case "help":
		return strings.Join([]string{
			"/start - introduction",
			"/help - this list",
			"/clear - forget this conversation",
			"/model - show the loaded local model",
			"/status - routing and queue state",
		}, "\n")
	case "clear":
		if err := b.sessions.ClearSessions(ctx, ChannelID); err != nil {
			slog.Error("failed to clear sessions", "channel", ChannelID, "error", err)
			return "Failed to clear the conversation."
		}
		return "Conversation cleared."
	case "model":
		if b.model == nil || !b.model.Loaded() {
			return "No local model loaded"
		}
		return "Local model: " + b.model.ModelID()
	case "status":
		s := b.router.Status()
		current := "idle"
		if s.Current != nil {
			current = fmt.Sprintf("%s (%s)", s.Current.ID, s.Current.Priority)
		}
		return fmt.Sprintf("mode: %s\nqueue: %d (urgent %d, normal %d, background %d)\ncurrent: %s",
			s.Config.Mode, s.QueueLen, s.UrgentCount, s.NormalCount, s.BackgroundCount, current)
	default:
		return "Unknown command"
	}
}

func (b *Bot) reply(chatID int64, text string) {
	if text == "" {
		return
	}
	if _, err := b.api.Send(tgbotapi.NewMessage(chatID, text)); err != nil {
		slog.Warn("failed to send message", "chat_id", chatID, "error", err)
	}
}

func (b *Bot) downloadFile(ctx context.Context, fileID string) ([]byte, string, error) {
	file, err := b.api.GetFile(tgbotapi.FileConfig{FileID: fileID})
	if err != nil {
		return nil, "", errors.Wrap(err, "failed to get file info")
	}
	fileURL := b.fileLink(file)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, fileURL, nil)
	if err != nil {
		return nil, "", errors.Wrap(err, "failed to create download request")
	}
	resp, err := b.client.Do(req)
	if err != nil {
		return nil, "", errors.Wrap(err, "failed to download file")
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, "", errors.Errorf("unexpected status %d downloading file", resp.StatusCode)
	}
	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, "", errors.Wrap(err, "failed to read file body")
	}

	mimeType := resp.Header.Get("Content-Type")
	if mimeType == "" {
		mimeType = http.DetectContentType(data)
	}
	return data, mimeType, nil
}

var _ API = (*tgbotapi.BotAPI)(nil)
