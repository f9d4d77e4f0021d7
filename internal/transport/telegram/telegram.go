// Package telegram implements transport.Adapter on the Telegram Bot API.
package telegram

import (
	"context"
	"errors"
	"html"
	"strings"
	"sync"
	"time"

	tele "gopkg.in/telebot.v4"

	"craftbot/internal/transport"
	"craftbot/pkg/logx"
)

type Config struct {
	Token       string
	PollTimeout time.Duration
}

type Adapter struct {
	log logx.Logger
	bot *tele.Bot

	runMu    sync.Mutex
	running  bool
	stopOnce sync.Once
}

func New(cfg Config, log logx.Logger) (*Adapter, error) {
	if strings.TrimSpace(cfg.Token) == "" {
		return nil, errors.New("telegram token is empty")
	}
	timeout := cfg.PollTimeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	b, err := tele.NewBot(tele.Settings{
		Token:  cfg.Token,
		Poller: &tele.LongPoller{Timeout: timeout},
	})
	if err != nil {
		return nil, err
	}
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Adapter{log: log, bot: b}, nil
}

func (a *Adapter) Start(ctx context.Context) error {
	a.runMu.Lock()
	if a.running {
		a.runMu.Unlock()
		return nil
	}
	a.running = true
	a.runMu.Unlock()

	go func() {
		<-ctx.Done()
		a.stopOnce.Do(a.bot.Stop)
	}()
	go a.bot.Start()
	a.log.Info("telegram adapter started", logx.String("bot", a.bot.Me.Username))
	return nil
}

func (a *Adapter) Stop(ctx context.Context) error {
	_ = ctx
	a.runMu.Lock()
	defer a.runMu.Unlock()
	if !a.running {
		return nil
	}
	a.running = false
	a.stopOnce.Do(a.bot.Stop)
	return nil
}

func (a *Adapter) Handle(command string, fn func(ctx context.Context, cmd transport.Command) error) {
	if !strings.HasPrefix(command, "/") {
		command = "/" + command
	}
	a.bot.Handle(command, func(c tele.Context) error {
		m := c.Message()
		if m == nil || m.Sender == nil {
			return nil
		}
		cmd := transport.Command{
			ChatID:       m.Chat.ID,
			FromID:       m.Sender.ID,
			FromUsername: m.Sender.Username,
			Payload:      strings.TrimSpace(m.Payload),
		}
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		if err := fn(ctx, cmd); err != nil {
			a.log.Warn("command handler failed", logx.String("command", command), logx.Err(err))
		}
		return nil
	})
}

func (a *Adapter) SendText(ctx context.Context, to transport.ChatTarget, text string, opt *transport.SendOptions) (transport.MessageRef, error) {
	_ = ctx
	msg, err := a.bot.Send(tele.ChatID(to.ChatID), render(text, opt), sendOptions(opt))
	if err != nil {
		return transport.MessageRef{}, err
	}
	return transport.MessageRef{ChatID: msg.Chat.ID, MessageID: msg.ID}, nil
}

func (a *Adapter) EditText(ctx context.Context, ref transport.MessageRef, text string, opt *transport.SendOptions) error {
	_ = ctx
	_, err := a.bot.Edit(stored(ref), render(text, opt), sendOptions(opt))
	return err
}

func (a *Adapter) DeleteMessage(ctx context.Context, ref transport.MessageRef) error {
	_ = ctx
	return a.bot.Delete(stored(ref))
}

func stored(ref transport.MessageRef) tele.Editable {
	return &tele.Message{ID: ref.MessageID, Chat: &tele.Chat{ID: ref.ChatID}}
}

func render(text string, opt *transport.SendOptions) string {
	if opt != nil && opt.Monospace {
		return "<pre>" + html.EscapeString(text) + "</pre>"
	}
	return text
}

func sendOptions(opt *transport.SendOptions) *tele.SendOptions {
	out := &tele.SendOptions{}
	if opt != nil {
		if opt.Monospace {
			out.ParseMode = tele.ModeHTML
		}
		out.DisableWebPagePreview = opt.DisablePreview
	}
	return out
}
