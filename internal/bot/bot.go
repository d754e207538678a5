package bot

import (
	"context"
	"errors"
	"fmt"
	"html"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"recurio/internal/model"
	"recurio/internal/service"
)

const (
	statusRunLimit = 5
	iconIdle       = "💤"
	iconDone       = "✅"
	iconCut        = "✂️"
)

// SyncFunc runs one pass over every connected workspace.
type SyncFunc func(ctx context.Context) []*service.SyncReport

// RunLister reads the sync audit log.
type RunLister interface {
	ListRecent(ctx context.Context, limit int) ([]model.SyncRun, error)
}

// Bot delivers sync reports to a Telegram chat and answers a few operator
// commands there.
type Bot struct {
	api    *tgbotapi.BotAPI
	chatID int64
	sync   SyncFunc
	runs   RunLister
	loc    *time.Location
	log    *slog.Logger

	mu      sync.Mutex
	running bool
}

func New(token string, chatID int64, syncFn SyncFunc, runs RunLister) (*Bot, error) {
	return newBot(token, tgbotapi.APIEndpoint, http.DefaultClient, chatID, syncFn, runs)
}

func newBot(token, endpoint string, client tgbotapi.HTTPClient, chatID int64, syncFn SyncFunc, runs RunLister) (*Bot, error) {
	api, err := tgbotapi.NewBotAPIWithClient(token, endpoint, client)
	if err != nil {
		return nil, fmt.Errorf("create bot api: %w", err)
	}
	log := slog.Default().With("component", "bot")
	log.Info("bot authorized", "account", api.Self.UserName)

	return &Bot{
		api:    api,
		chatID: chatID,
		sync:   syncFn,
		runs:   runs,
		loc:    time.Local,
		log:    log,
	}, nil
}

// Notify sends text to the configured chat.
func (b *Bot) Notify(_ context.Context, text string) error {
	if b.chatID == 0 {
		return errors.New("telegram chat id is not configured")
	}
	return b.sendText(b.chatID, text)
}

// Start begins polling updates until ctx is cancelled.
func (b *Bot) Start(ctx context.Context) error {
	updateConfig := tgbotapi.NewUpdate(0)
	updateConfig.Timeout = 60
	updates := b.api.GetUpdatesChan(updateConfig)

	b.log.Info("start polling updates")

	go func() {
		<-ctx.Done()
		b.api.StopReceivingUpdates()
	}()

	for update := range updates {
		if update.Message == nil || !b.allowed(update.Message.Chat) {
			continue
		}
		if err := b.handleMessage(ctx, update.Message); err != nil {
			b.log.Warn("handle message", "error", err)
		}
	}
	return nil
}

// allowed limits the bot to the configured chat, or to private chats when
// none is configured.
func (b *Bot) allowed(chat *tgbotapi.Chat) bool {
	if chat == nil {
		return false
	}
	if b.chatID != 0 {
		return chat.ID == b.chatID
	}
	return chat.IsPrivate()
}

func (b *Bot) handleMessage(ctx context.Context, msg *tgbotapi.Message) error {
	if !msg.IsCommand() {
		return b.sendText(msg.Chat.ID, "Send /help for the list of commands.")
	}
	b.log.Info("command", "chat", msg.Chat.ID, "command", msg.Command())

	switch msg.Command() {
	case "start", "help":
		return b.handleHelp(msg)
	case "sync":
		return b.handleSync(ctx, msg)
	case "status":
		return b.handleStatus(ctx, msg)
	default:
		return b.sendText(msg.Chat.ID, "Unknown command. See /help.")
	}
}

func (b *Bot) handleHelp(msg *tgbotapi.Message) error {
	text := fmt.Sprintf(
		"👋 <b>Recurio</b> spawns the next occurrence of completed recurring tasks.\n\n"+
			"• /sync · run a sync pass now\n"+
			"• /status · last %d passes\n"+
			"• /help · this message\n\n"+
			"This chat id is <code>%d</code>.",
		statusRunLimit, msg.Chat.ID,
	)
	return b.sendText(msg.Chat.ID, text)
}

func (b *Bot) handleSync(ctx context.Context, msg *tgbotapi.Message) error {
	if b.sync == nil {
		return b.sendText(msg.Chat.ID, "Sync is not available here.")
	}
	b.mu.Lock()
	if b.running {
		b.mu.Unlock()
		return b.sendText(msg.Chat.ID, "⏳ A sync pass is already running.")
	}
	b.running = true
	b.mu.Unlock()
	defer func() {
		b.mu.Lock()
		b.running = false
		b.mu.Unlock()
	}()

	reports := b.sync(ctx)
	if len(reports) == 0 {
		return b.sendText(msg.Chat.ID, iconIdle+" No connected workspace to sync.")
	}
	for _, report := range reports {
		if err := b.sendText(msg.Chat.ID, service.FormatSyncReport("", report, b.loc)); err != nil {
			return err
		}
	}
	return nil
}

func (b *Bot) handleStatus(ctx context.Context, msg *tgbotapi.Message) error {
	if b.runs == nil {
		return b.sendText(msg.Chat.ID, "No audit log configured.")
	}
	runs, err := b.runs.ListRecent(ctx, statusRunLimit)
	if err != nil {
		return b.sendText(msg.Chat.ID, fmt.Sprintf("Could not read the audit log: %s", escape(err.Error())))
	}
	return b.sendText(msg.Chat.ID, formatRuns(runs, b.loc))
}

func formatRuns(runs []model.SyncRun, loc *time.Location) string {
	if len(runs) == 0 {
		return iconIdle + " No sync passes recorded yet."
	}
	var sb strings.Builder
	sb.WriteString("📋 <b>Recent sync passes</b>\n")
	for _, run := range runs {
		icon := iconDone
		if run.Truncated {
			icon = iconCut
		}
		sb.WriteString(fmt.Sprintf("%s %s · %s · processed %d · created %d",
			icon, run.StartedAt.In(loc).Format("02.01.2006 15:04"), escape(orDash(run.Trigger)), run.Processed, run.Created))
		if run.Note != "" {
			sb.WriteString(fmt.Sprintf(" · <i>%s</i>", escape(run.Note)))
		}
		sb.WriteByte('\n')
	}
	return strings.TrimSpace(sb.String())
}

func orDash(s string) string {
	if strings.TrimSpace(s) == "" {
		return "-"
	}
	return s
}

func (b *Bot) sendText(chatID int64, text string) error {
	msg := tgbotapi.NewMessage(chatID, text)
	msg.ParseMode = tgbotapi.ModeHTML
	_, err := b.api.Send(msg)
	return err
}

func escape(s string) string {
	return html.EscapeString(s)
}
