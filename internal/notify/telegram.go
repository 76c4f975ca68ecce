package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/mymmrac/telego"
	tu "github.com/mymmrac/telego/telegoutil"

	"github.com/appforge-ai/appforge/internal/config"
	"github.com/appforge-ai/appforge/internal/pipeline"
	"github.com/appforge-ai/appforge/internal/store"
)

// Telegram pushes run outcomes to a chat. Outbound only; nothing is read
// back from Telegram.
type Telegram struct {
	bot    *telego.Bot
	chatID int64
	log    *slog.Logger
}

func NewTelegram(cfg config.TelegramConfig, log *slog.Logger) (*Telegram, error) {
	bot, err := telego.NewBot(cfg.Token)
	if err != nil {
		return nil, fmt.Errorf("create telegram bot: %w", err)
	}
	return &Telegram{bot: bot, chatID: cfg.ChatID, log: log}, nil
}

func (t *Telegram) RunFinished(ctx context.Context, run *store.PipelineRun) {
	if err := t.send(ctx, formatRun(run)); err != nil {
		t.log.Error("telegram notification failed", "run_id", run.ID, "error", err)
	}
}

func (t *Telegram) send(ctx context.Context, text string) error {
	for _, chunk := range chunkMessage(text, 4096) {
		msg := tu.Message(tu.ID(t.chatID), chunk)
		if _, err := t.bot.SendMessage(ctx, msg); err != nil {
			return fmt.Errorf("send message: %w", err)
		}
	}
	return nil
}

func formatRun(run *store.PipelineRun) string {
	switch run.Status {
	case "completed":
		var files []pipeline.File
		_ = json.Unmarshal(run.Files, &files)
		return fmt.Sprintf("Run %s completed: %d file(s) generated", run.ID, len(files))
	case "failed":
		msg := fmt.Sprintf("Run %s failed: %s", run.ID, run.Error)
		if run.RetrySuggestion != "" {
			msg += "\n" + run.RetrySuggestion
		}
		return msg
	default:
		return fmt.Sprintf("Run %s: %s", run.ID, run.Status)
	}
}
