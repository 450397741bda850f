package bot

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"shorts-gen/internal/logging"
	"shorts-gen/internal/model"
	"shorts-gen/internal/pipeline"
	"shorts-gen/internal/scheduler"
)

type TelegramBot struct {
	tg         *tgbotapi.BotAPI
	svc        *scheduler.Service
	log        *logging.Logger
	errorsPath string

	// cancelFunc stops the whole process on a critical memory alert
	cancelFunc context.CancelFunc
}

func NewTelegramBot(token string, svc *scheduler.Service, log *logging.Logger, errorsPath string, cancel context.CancelFunc) (*TelegramBot, error) {
	if token == "" {
		return nil, errors.New("TELEGRAM_BOT_TOKEN is empty")
	}
	api, err := tgbotapi.NewBotAPI(token)
	if err != nil {
		return nil, err
	}
	api.Debug = false
	b := &TelegramBot{
		tg:         api,
		svc:        svc,
		log:        log,
		errorsPath: errorsPath,
		cancelFunc: cancel,
	}
	svc.SetNotifier(b.notify)
	return b, nil
}

func (b *TelegramBot) Run(ctx context.Context) error {
	u := tgbotapi.NewUpdate(0)
	u.Timeout = 30
	updates := b.tg.GetUpdatesChan(u)
	b.log.Infof("telegram bot started as @%s", b.tg.Self.UserName)

	go b.runMemoryWatcher(ctx)

	for {
		select {
		case <-ctx.Done():
			b.tg.StopReceivingUpdates()
			return nil
		case upd := <-updates:
			switch {
			case upd.Message != nil && upd.Message.IsCommand():
				b.handleCommand(ctx, upd.Message)
			case upd.CallbackQuery != nil:
				b.handleCallback(ctx, upd.CallbackQuery)
			}
		}
	}
}

func (b *TelegramBot) handleCommand(ctx context.Context, msg *tgbotapi.Message) {
	chatID := msg.Chat.ID
	args := strings.TrimSpace(msg.CommandArguments())

	if b.svc.Config().PostsChatID == 0 {
		go b.savePostsChatID(ctx, chatID)
	}

	switch msg.Command() {
	case "start":
		b.replyText(chatID, "Hi! I turn topics into narrated vertical shorts. Type /help for the command list.")
	case "help":
		b.replyText(chatID, helpText)
	case "generate":
		b.cmdGenerate(ctx, chatID, args)
	case "schedule":
		b.replyText(chatID, formatSchedule(b.svc.Schedule(), time.Now()))
	case "videos":
		b.cmdVideos(ctx, chatID)
	case "errors":
		b.cmdErrors(chatID)
	case "status":
		b.replyText(chatID, formatStatus(b.svc.Status(), b.svc.QueueLen(ctx), readMemSnapshot(), time.Now()))
	case "dislike":
		b.cmdDislike(ctx, chatID, args)
	case "delete":
		b.cmdDelete(ctx, chatID, args)
	case "sync":
		b.cmdSync(ctx, chatID)
	case "chatid":
		b.replyText(chatID, fmt.Sprintf("Your chat ID: %d", chatID))
	case "setchat":
		b.savePostsChatID(ctx, chatID)
		b.replyText(chatID, "✅ Scheduled videos will be posted to this chat")
	default:
		b.replyText(chatID, "Unknown command. Use /help")
	}
}

const helpText = `Commands:
/generate [topic] - queue a video (random topic when empty)
/schedule - today's generation slots
/videos - recently staged videos
/dislike <video id> - stop reusing that video's stock clip for a while
/delete <video id> - remove a staged video
/status - worker, queue and memory status
/errors - last lines of errors.log
/sync - reconcile videos.json with storage
/chatid - show this chat's ID
/setchat - post scheduled videos to this chat`

func (b *TelegramBot) handleCallback(ctx context.Context, cb *tgbotapi.CallbackQuery) {
	if _, err := b.tg.Request(tgbotapi.NewCallback(cb.ID, "")); err != nil {
		b.log.Warnf("callback ack: %v", err)
	}
	if cb.Message == nil {
		return
	}
	chatID := cb.Message.Chat.ID

	action, videoID, ok := parseCallback(cb.Data)
	if !ok {
		b.replyText(chatID, "❌ Invalid button data")
		return
	}
	switch action {
	case "dislike":
		b.cmdDislike(ctx, chatID, videoID)
	case "delete":
		b.cmdDelete(ctx, chatID, videoID)
	default:
		b.replyText(chatID, "❌ Unknown action")
	}
}

// parseCallback splits "action:videoID" button data.
func parseCallback(data string) (action, id string, ok bool) {
	action, id, ok = strings.Cut(data, ":")
	if !ok || action == "" || id == "" {
		return "", "", false
	}
	return action, id, true
}

func (b *TelegramBot) cmdGenerate(ctx context.Context, chatID int64, topic string) {
	job, err := b.svc.Enqueue(ctx, topic, chatID, "bot")
	if err != nil {
		b.log.Errorf("cmdGenerate: %v", err)
		b.replyText(chatID, fmt.Sprintf("❌ Could not queue the job: %v", err))
		return
	}
	b.replyText(chatID, fmt.Sprintf("⏳ Queued %q (%d in queue). I'll send the video when it's ready.", job.Topic, b.svc.QueueLen(ctx)))
}

func (b *TelegramBot) cmdVideos(ctx context.Context, chatID int64) {
	videos, err := b.svc.Generator().ListVideos(ctx)
	if err != nil {
		b.log.Errorf("list videos: %v", err)
		b.replyText(chatID, "❌ Could not read videos.json")
		return
	}
	b.replyText(chatID, formatVideos(videos, 10))
}

func (b *TelegramBot) cmdDislike(ctx context.Context, chatID int64, videoID string) {
	if videoID == "" {
		b.replyText(chatID, "Usage: /dislike <video id>")
		return
	}
	v, err := b.svc.Generator().Dislike(ctx, videoID)
	if err != nil {
		b.log.Errorf("dislike %s: %v", videoID, err)
		b.replyText(chatID, fmt.Sprintf("❌ %v", err))
		return
	}
	b.replyText(chatID, fmt.Sprintf("👎 Clip %s from %s will not be reused for %s", v.VisualID, v.ID, formatHours(b.svc.Config().DislikedVisualGracePeriod)))
}

func (b *TelegramBot) cmdDelete(ctx context.Context, chatID int64, videoID string) {
	if videoID == "" {
		b.replyText(chatID, "Usage: /delete <video id>")
		return
	}
	if err := b.svc.Generator().DeleteVideo(ctx, videoID); err != nil {
		if errors.Is(err, pipeline.ErrVideoNotFound) {
			b.replyText(chatID, fmt.Sprintf("❌ No video %s", videoID))
			return
		}
		b.log.Errorf("delete %s: %v", videoID, err)
		b.replyText(chatID, fmt.Sprintf("❌ Delete failed: %v", err))
		return
	}
	b.replyText(chatID, fmt.Sprintf("🗑️ Deleted %s", videoID))
}

func (b *TelegramBot) cmdSync(ctx context.Context, chatID int64) {
	b.replyText(chatID, "🔄 Syncing videos.json with storage...")
	if err := b.svc.Generator().SyncWithS3(ctx); err != nil {
		b.log.Errorf("sync: %v", err)
		b.replyText(chatID, fmt.Sprintf("❌ Sync failed: %v", err))
		return
	}
	b.replyText(chatID, "✅ Sync complete")
}

func (b *TelegramBot) cmdErrors(chatID int64) {
	lines, err := TailLastNLines(b.errorsPath, 30)
	if err != nil {
		if os.IsNotExist(err) {
			b.replyText(chatID, "📋 errors.log is empty")
			return
		}
		b.log.Errorf("read errors.log: %v", err)
		b.replyText(chatID, "❌ Could not read errors.log")
		return
	}
	if len(lines) == 0 {
		b.replyText(chatID, "📋 errors.log is empty")
		return
	}
	b.replyText(chatID, truncateMessage("📋 errors.log:\n"+strings.Join(lines, "\n")))
}

func (b *TelegramBot) savePostsChatID(ctx context.Context, chatID int64) {
	if err := b.svc.SavePostsChatID(ctx, chatID); err != nil {
		b.log.Errorf("save posts_chat_id: %v", err)
		return
	}
	b.log.Infof("saved POSTS_CHAT_ID=%d", chatID)
}

// notify is the scheduler's Notifier: it sends the finished video with
// dislike and delete buttons, or just the text when there is no file.
func (b *TelegramBot) notify(chatID int64, text string, v *model.Video) {
	if v == nil || v.LocalPath == "" {
		b.replyText(chatID, truncateMessage(text))
		return
	}
	f, err := os.Open(v.LocalPath)
	if err != nil {
		b.log.Warnf("notify: open %s: %v", v.LocalPath, err)
		b.replyText(chatID, truncateMessage(text))
		return
	}
	defer f.Close()

	msg := tgbotapi.NewVideo(chatID, tgbotapi.FileReader{Name: v.ID + ".mp4", Reader: f})
	msg.Caption = truncateRunes(text, 1024)
	msg.SupportsStreaming = true
	msg.ReplyMarkup = videoKeyboard(v.ID)
	if _, err := b.tg.Send(msg); err != nil {
		b.log.Errorf("send video %s: %v", v.ID, err)
		b.replyText(chatID, truncateMessage(text))
	}
}

func videoKeyboard(videoID string) tgbotapi.InlineKeyboardMarkup {
	return tgbotapi.NewInlineKeyboardMarkup(
		tgbotapi.NewInlineKeyboardRow(
			tgbotapi.NewInlineKeyboardButtonData("👎 Dislike clip", "dislike:"+videoID),
			tgbotapi.NewInlineKeyboardButtonData("🗑️ Delete", "delete:"+videoID),
		),
	)
}

func (b *TelegramBot) replyText(chatID int64, text string) int {
	m := tgbotapi.NewMessage(chatID, text)
	sent, err := b.tg.Send(m)
	if err != nil {
		b.log.Warnf("send message to %d: %v", chatID, err)
	}
	return sent.MessageID
}
