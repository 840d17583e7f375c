// Package telegram delivers posts to the channel and relays interactive
// updates through telebot.
package telegram

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"hash/fnv"
	"net/http"
	"regexp"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/time/rate"
	tele "gopkg.in/telebot.v4"

	rtsup "moviebot/internal/runtime/supervisor"
	kit "moviebot/internal/transport"
	logx "moviebot/pkg/logx"
)

const (
	DefaultPollTimeout = 10 * time.Second
	DefaultSendTimeout = 30 * time.Second
	DefaultRatePerMin  = 20
)

var reToken = regexp.MustCompile(`^\d+:[A-Za-z0-9_-]{20,}$`)

type Config struct {
	Token string
	// ChannelID is "@username" or a numeric chat id.
	ChannelID   string
	PollTimeout time.Duration
	// SendTimeout bounds every Bot API call.
	SendTimeout time.Duration
	// RatePerMin caps channel posts. <= 0 uses DefaultRatePerMin.
	RatePerMin int
	// APIURL points at a self-hosted Bot API server. Empty uses api.telegram.org.
	APIURL string
}

// chatRef is a chat id or @username as accepted by the Bot API.
type chatRef string

func (c chatRef) Recipient() string { return string(c) }

type Adapter struct {
	cfg     Config
	log     logx.Logger
	bot     *tele.Bot
	channel chatRef
	limiter *rate.Limiter

	out     atomic.Value // chan<- kit.Update
	dropped atomic.Uint64

	runMu   sync.Mutex
	running bool
	sup     *rtsup.Supervisor

	menuMu   sync.Mutex
	menuHash uint64
}

// New validates the token shape and builds the bot without network calls;
// Ping checks that the token and channel actually work.
func New(cfg Config, log logx.Logger) (*Adapter, error) {
	token := strings.TrimSpace(cfg.Token)
	if token == "" {
		return nil, errors.New("telegram token is empty")
	}
	if !reToken.MatchString(token) {
		return nil, errors.New("telegram token is malformed (want <bot id>:<secret>)")
	}
	channel := strings.TrimSpace(cfg.ChannelID)
	if channel == "" {
		return nil, errors.New("telegram channel id is empty")
	}
	if cfg.PollTimeout <= 0 {
		cfg.PollTimeout = DefaultPollTimeout
	}
	if cfg.SendTimeout <= 0 {
		cfg.SendTimeout = DefaultSendTimeout
	}
	if cfg.RatePerMin <= 0 {
		cfg.RatePerMin = DefaultRatePerMin
	}
	if log.IsZero() {
		log = logx.Nop()
	}

	a := &Adapter{
		cfg:     cfg,
		log:     log,
		channel: chatRef(channel),
		limiter: rate.NewLimiter(rate.Every(time.Minute/time.Duration(cfg.RatePerMin)), 1),
	}
	b, err := tele.NewBot(tele.Settings{
		Token:   token,
		URL:     strings.TrimRight(cfg.APIURL, "/"),
		Poller:  &tele.LongPoller{Timeout: cfg.PollTimeout},
		Client:  &http.Client{Timeout: cfg.SendTimeout + cfg.PollTimeout},
		Offline: true,
		OnError: func(err error, c tele.Context) {
			a.log.Warn("telegram handler error", logx.Err(err))
		},
	})
	if err != nil {
		return nil, err
	}
	a.bot = b
	var nilOut chan<- kit.Update
	a.out.Store(nilOut)
	a.registerHandlers()
	return a, nil
}

// call runs fn but returns as soon as ctx is done. The HTTP client timeout
// bounds the abandoned call.
func call(ctx context.Context, fn func() error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	done := make(chan error, 1)
	go func() { done <- fn() }()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case err := <-done:
		return err
	}
}

// Ping resolves the bot identity and the destination channel.
func (a *Adapter) Ping(ctx context.Context) error {
	var me *tele.User
	err := call(ctx, func() error {
		raw, err := a.bot.Raw("getMe", map[string]string{})
		if err != nil {
			return err
		}
		var resp struct {
			Result *tele.User `json:"result"`
		}
		if err := json.Unmarshal(raw, &resp); err != nil {
			return err
		}
		me = resp.Result
		return nil
	})
	if err != nil {
		return fmt.Errorf("getMe: %w", err)
	}
	if me != nil {
		a.bot.Me = me
	}

	var chat *tele.Chat
	err = call(ctx, func() error {
		var err error
		if id, perr := strconv.ParseInt(string(a.channel), 10, 64); perr == nil {
			chat, err = a.bot.ChatByID(id)
		} else {
			chat, err = a.bot.ChatByUsername(string(a.channel))
		}
		return err
	})
	if err != nil {
		return fmt.Errorf("getChat %s: %w", a.channel, err)
	}
	a.log.Info("telegram ready",
		logx.String("bot", a.bot.Me.Username),
		logx.String("channel", string(a.channel)),
		logx.String("channel_title", chat.Title),
	)
	return nil
}

// Publish posts p to the channel: a photo with caption when p.PhotoURL is
// set, otherwise an HTML text message. Errors are *PublishError.
func (a *Adapter) Publish(ctx context.Context, p kit.Post) error {
	if p.PhotoURL == "" {
		return a.PublishText(ctx, p)
	}
	if err := a.limiter.Wait(ctx); err != nil {
		return &PublishError{Err: err}
	}
	photo := &tele.Photo{File: tele.FromURL(p.PhotoURL), Caption: p.Text}
	err := call(ctx, func() error {
		_, err := a.bot.Send(a.channel, photo, &tele.SendOptions{ParseMode: tele.ModeHTML})
		return err
	})
	return classify(err)
}

// PublishText posts p.Text without media.
func (a *Adapter) PublishText(ctx context.Context, p kit.Post) error {
	if err := a.limiter.Wait(ctx); err != nil {
		return &PublishError{Err: err}
	}
	err := call(ctx, func() error {
		_, err := a.bot.Send(a.channel, p.Text, &tele.SendOptions{ParseMode: tele.ModeHTML, DisableWebPagePreview: true})
		return err
	})
	return classify(err)
}

// SendLog implements logx.Sender.
func (a *Adapter) SendLog(ctx context.Context, chatID int64, text string) error {
	return call(ctx, func() error {
		_, err := a.bot.Send(&tele.Chat{ID: chatID}, text, &tele.SendOptions{DisableWebPagePreview: true})
		return err
	})
}

func sendOptions(opt *kit.SendOptions) *tele.SendOptions {
	so := &tele.SendOptions{DisableWebPagePreview: true}
	if opt == nil {
		return so
	}
	if opt.HTML {
		so.ParseMode = tele.ModeHTML
	}
	if rm, ok := opt.Markup.(*tele.ReplyMarkup); ok {
		so.ReplyMarkup = rm
	}
	return so
}

// SendText replies in chatID, splitting long text. Markup goes on the first chunk.
func (a *Adapter) SendText(ctx context.Context, chatID int64, text string, opt *kit.SendOptions) error {
	chat := &tele.Chat{ID: chatID}
	for i, chunk := range splitText(text, textLimit) {
		so := sendOptions(opt)
		if i > 0 {
			so.ReplyMarkup = nil
		}
		if err := call(ctx, func() error {
			_, err := a.bot.Send(chat, chunk, so)
			return err
		}); err != nil {
			return err
		}
	}
	return nil
}

func (a *Adapter) SendPhoto(ctx context.Context, chatID int64, photoURL, caption string, opt *kit.SendOptions) error {
	photo := &tele.Photo{File: tele.FromURL(photoURL), Caption: caption}
	return call(ctx, func() error {
		_, err := a.bot.Send(&tele.Chat{ID: chatID}, photo, sendOptions(opt))
		return err
	})
}

func (a *Adapter) AnswerCallback(ctx context.Context, callbackID, text string) error {
	return call(ctx, func() error {
		return a.bot.Respond(&tele.Callback{ID: callbackID}, &tele.CallbackResponse{Text: text})
	})
}

func (a *Adapter) Typing(ctx context.Context, chatID int64) error {
	return call(ctx, func() error {
		return a.bot.Notify(&tele.Chat{ID: chatID}, tele.Typing)
	})
}

// UpdateMenuCommands publishes the command menu (setMyCommands) when it changed.
func (a *Adapter) UpdateMenuCommands(ctx context.Context, cmds []kit.BotCommand) error {
	a.menuMu.Lock()
	defer a.menuMu.Unlock()

	h := fnv.New64a()
	list := make([]tele.Command, 0, len(cmds))
	for _, c := range cmds {
		if c.Command == "" {
			continue
		}
		desc := c.Description
		if desc == "" {
			desc = c.Command
		}
		list = append(list, tele.Command{Text: c.Command, Description: desc})
		_, _ = h.Write([]byte(c.Command + "\x00" + desc + "\x00"))
	}
	sum := h.Sum64()
	if sum == a.menuHash {
		return nil
	}
	if err := call(ctx, func() error { return a.bot.SetCommands(list) }); err != nil {
		return err
	}
	a.menuHash = sum
	a.log.Info("menu commands updated", logx.Int("count", len(list)))
	return nil
}
