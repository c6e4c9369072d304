// Package telegram adapts the Telegram Bot API to the engine: a long-poll
// loop turns private messages into engine events, and Notify sends status
// lines back. The engine never sees Telegram types.
package telegram

import (
	"context"
	"strings"
	"sync"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"go.uber.org/zap"

	"github.com/immanelg/tgpawn/internal/engine"
	"github.com/immanelg/tgpawn/internal/obslog"
)

// Handler consumes one inbound chat event.
type Handler func(ctx context.Context, ev engine.Event)

type Transport struct {
	bot     *tgbotapi.BotAPI
	handler Handler

	stopCh chan struct{}
	wg     sync.WaitGroup
}

func New(token string) (*Transport, error) {
	bot, err := tgbotapi.NewBotAPI(token)
	if err != nil {
		return nil, err
	}
	obslog.L().Info("telegram_authorized", zap.String("username", bot.Self.UserName))
	return &Transport{bot: bot, stopCh: make(chan struct{})}, nil
}

// OnEvent installs the inbound handler. Must be set before Run.
func (t *Transport) OnEvent(h Handler) { t.handler = h }

// Run long-polls for updates until Stop. Each message is handled on its own
// goroutine so a slow store transaction never blocks the poll loop.
func (t *Transport) Run(ctx context.Context) {
	u := tgbotapi.NewUpdate(0)
	u.Timeout = 60

	updates := t.bot.GetUpdatesChan(u)
	obslog.L().Info("telegram_polling")

	for {
		select {
		case <-t.stopCh:
			t.bot.StopReceivingUpdates()
			t.wg.Wait()
			return
		case <-ctx.Done():
			t.bot.StopReceivingUpdates()
			t.wg.Wait()
			return
		case update, ok := <-updates:
			if !ok {
				t.wg.Wait()
				return
			}
			msg := update.Message
			if msg == nil || msg.From == nil || msg.From.IsBot {
				continue
			}
			if !msg.Chat.IsPrivate() {
				continue
			}
			text := strings.TrimSpace(msg.Text)
			if text == "" {
				continue
			}
			ev := engine.Event{
				UserID:      msg.From.ID,
				DisplayName: displayName(msg.From),
				Text:        text,
			}
			t.wg.Add(1)
			go func() {
				defer t.wg.Done()
				t.handler(ctx, ev)
			}()
		}
	}
}

// Notify implements engine.Notifier. Delivery failures are logged only; an
// undeliverable message never rolls back committed game state.
func (t *Transport) Notify(ctx context.Context, userID int64, text string) {
	msg := tgbotapi.NewMessage(userID, text)
	if _, err := t.bot.Send(msg); err != nil {
		obslog.L().Warn("telegram_send_error", zap.Int64("user_id", userID), zap.Error(err))
	}
}

func (t *Transport) Stop() {
	close(t.stopCh)
}

func displayName(u *tgbotapi.User) string {
	name := strings.TrimSpace(u.FirstName + " " + u.LastName)
	if name == "" {
		name = u.UserName
	}
	return name
}
