package transport

import (
	"context"
	"errors"
)

// Post is one outgoing publication. Text is Telegram HTML. When PhotoURL is
// set the post is sent as a photo with Text as its caption.
type Post struct {
	Text     string
	PhotoURL string
}

// Publisher delivers posts to the configured channel.
type Publisher interface {
	Publish(ctx context.Context, p Post) error
	// PublishText sends p.Text only, ignoring PhotoURL.
	PublishText(ctx context.Context, p Post) error
}

type UpdateKind string

const (
	UpdateMessage  UpdateKind = "message"
	UpdateCallback UpdateKind = "callback"
)

// Update is an incoming interaction with the bot.
type Update struct {
	Kind     UpdateKind
	Message  *Message
	Callback *Callback
}

type Message struct {
	ID       int
	ChatID   int64
	FromID   int64
	FromName string
	Text     string
}

type Callback struct {
	ID        string
	FromID    int64
	FromName  string
	ChatID    int64
	MessageID int
	Data      string
}

// SendOptions carries reply options. Markup is adapter specific
// (Telegram: *telebot.ReplyMarkup).
type SendOptions struct {
	HTML   bool
	Markup any
}

// Replier answers interactive updates in arbitrary chats.
type Replier interface {
	SendText(ctx context.Context, chatID int64, text string, opt *SendOptions) error
	SendPhoto(ctx context.Context, chatID int64, photoURL, caption string, opt *SendOptions) error
	AnswerCallback(ctx context.Context, callbackID, text string) error
	Typing(ctx context.Context, chatID int64) error
}

// BotCommand is one entry of the bot command menu.
type BotCommand struct {
	Command     string
	Description string
}

// IsStructural reports whether err says the post itself was rejected (for
// example the photo URL), as opposed to a transient delivery failure.
func IsStructural(err error) bool {
	var se interface{ IsStructural() bool }
	return errors.As(err, &se) && se.IsStructural()
}
