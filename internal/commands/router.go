// Package commands answers interactive chat commands and inline buttons.
//
// Commands are read-only with respect to the channel: they never claim items
// in the dedup store and never post to the publish destination.
package commands

import (
	"context"
	"runtime/debug"
	"slices"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"moviebot/internal/catalog"
	rtsup "moviebot/internal/runtime/supervisor"
	"moviebot/internal/transport"
	logx "moviebot/pkg/logx"
)

type Access int

const (
	AccessEveryone Access = iota
	AccessOwnerOnly
)

type Command struct {
	Name        string
	Description string
	Usage       string
	Access      Access
	// Hidden keeps the command out of /help and the Telegram menu.
	Hidden  bool
	Timeout time.Duration
	Handle  HandlerFunc
}

// Request is one routed update.
type Request struct {
	Update   transport.Update
	ChatID   int64
	FromID   int64
	FromName string
	Command  string
	Args     []string
	ReqID    string
	Log      logx.Logger
}

// Catalog is the read side of the movie catalog used by commands.
type Catalog interface {
	Fetch(ctx context.Context, cat catalog.Category) ([]catalog.Item, error)
	Search(ctx context.Context, query string) ([]catalog.Item, error)
}

// Formatter renders an item the same way channel posts are rendered.
type Formatter interface {
	Format(it catalog.Item, cat catalog.Category) (transport.Post, error)
}

type Deps struct {
	Replier    transport.Replier
	Catalog    Catalog
	Formatter  Formatter
	Status     StatusSource
	Categories []catalog.Category
}

type Options struct {
	Owners  []int64
	Workers int
	Queue   int
	// Timeout applies to commands without their own.
	Timeout time.Duration
	// TopN is how many items the browse commands show.
	TopN int
}

type Router struct {
	deps Deps
	opt  Options
	log  logx.Logger

	mu       sync.RWMutex
	cmds     map[string]Command
	order    []string
	owners   []int64
	cats     map[string]catalog.Category
	callback map[string]string // callback data -> command name

	jobs chan func()
}

func New(deps Deps, opt Options, log logx.Logger) *Router {
	if log.IsZero() {
		log = logx.Nop()
	}
	if opt.Workers <= 0 {
		opt.Workers = 4
	}
	if opt.Queue <= 0 {
		opt.Queue = 64
	}
	if opt.Timeout <= 0 {
		opt.Timeout = 45 * time.Second
	}
	if opt.TopN <= 0 {
		opt.TopN = 3
	}
	r := &Router{
		deps:     deps,
		opt:      opt,
		log:      log.With(logx.String("comp", "commands")),
		cmds:     map[string]Command{},
		owners:   append([]int64(nil), opt.Owners...),
		cats:     map[string]catalog.Category{},
		callback: map[string]string{},
		jobs:     make(chan func(), opt.Queue),
	}
	for _, c := range deps.Categories {
		r.cats[c.Name] = c
	}
	r.registerBuiltins()
	return r
}

// Register adds or replaces a command.
func (r *Router) Register(c Command) {
	name := strings.ToLower(strings.TrimPrefix(strings.TrimSpace(c.Name), "/"))
	if name == "" || c.Handle == nil {
		return
	}
	c.Name = name
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.cmds[name]; !ok {
		r.order = append(r.order, name)
	}
	r.cmds[name] = c
}

// OnCallback routes inline button data to a registered command.
func (r *Router) OnCallback(data, command string) {
	r.mu.Lock()
	r.callback[data] = command
	r.mu.Unlock()
}

// SetOwners replaces the owner list used for owner-only commands.
func (r *Router) SetOwners(owners []int64) {
	cp := append([]int64(nil), owners...)
	r.mu.Lock()
	r.owners = cp
	r.mu.Unlock()
}

func (r *Router) isOwner(id int64) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return slices.Contains(r.owners, id)
}

func (r *Router) lookup(name string) (Command, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	c, ok := r.cmds[name]
	return c, ok
}

// Commands lists visible commands in registration order.
func (r *Router) Commands() []Command {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]Command, 0, len(r.order))
	for _, n := range r.order {
		if c := r.cmds[n]; !c.Hidden {
			out = append(out, c)
		}
	}
	return out
}

// MenuCommands returns the public commands for the Telegram command menu.
func (r *Router) MenuCommands() []transport.BotCommand {
	var out []transport.BotCommand
	for _, c := range r.Commands() {
		if c.Access != AccessEveryone {
			continue
		}
		out = append(out, transport.BotCommand{Command: c.Name, Description: c.Description})
	}
	return out
}

// Dispatch routes updates to a bounded worker pool until ctx is done or the
// channel closes.
func (r *Router) Dispatch(ctx context.Context, updates <-chan transport.Update) error {
	sup := rtsup.New(ctx,
		rtsup.WithLogger(r.log),
		rtsup.WithCancelOnError(false),
	)
	r.log.Info("command dispatcher started", logx.Int("workers", r.opt.Workers), logx.Int("queue", cap(r.jobs)))

	for i := 0; i < r.opt.Workers; i++ {
		idx := i
		sup.GoRestart("command.worker."+strconv.Itoa(idx), func(c context.Context) error {
			for {
				select {
				case <-c.Done():
					return nil
				case job := <-r.jobs:
					func() {
						defer func() {
							if rec := recover(); rec != nil {
								r.log.Error("panic in command job", logx.Int("worker", idx), logx.Any("panic", rec), logx.Stack(string(debug.Stack())))
							}
						}()
						job()
					}()
				}
			}
		},
			rtsup.WithRestartBackoff(200*time.Millisecond, 5*time.Second),
			rtsup.WithStopOnCleanExit(true),
		)
	}

	defer func() {
		wctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
		_ = sup.Stop(wctx)
		cancel()
		r.log.Info("command dispatcher stopped")
	}()

	for {
		select {
		case <-ctx.Done():
			return nil
		case up, ok := <-updates:
			if !ok {
				return nil
			}
			r.Route(ctx, up)
		}
	}
}

// Route resolves an update and queues its handler. Unknown input is ignored.
func (r *Router) Route(ctx context.Context, up transport.Update) {
	switch up.Kind {
	case transport.UpdateMessage:
		r.routeMessage(ctx, up)
	case transport.UpdateCallback:
		r.routeCallback(ctx, up)
	}
}

// parseCommand splits "/name@bot arg1 arg2" into a lower-case name and args.
func parseCommand(text string) (string, []string, bool) {
	text = strings.TrimSpace(text)
	if !strings.HasPrefix(text, "/") {
		return "", nil, false
	}
	parts := strings.Fields(text)
	word := strings.TrimPrefix(parts[0], "/")
	if i := strings.IndexByte(word, '@'); i >= 0 {
		word = word[:i]
	}
	if word == "" {
		return "", nil, false
	}
	return strings.ToLower(word), parts[1:], true
}

func (r *Router) routeMessage(ctx context.Context, up transport.Update) {
	msg := up.Message
	if msg == nil {
		return
	}
	name, args, ok := parseCommand(msg.Text)
	if !ok {
		return
	}
	cmd, ok := r.lookup(name)
	if !ok {
		_ = r.deps.Replier.SendText(ctx, msg.ChatID, "Unknown command. Try /help", nil)
		return
	}
	if cmd.Access == AccessOwnerOnly && !r.isOwner(msg.FromID) {
		_ = r.deps.Replier.SendText(ctx, msg.ChatID, "unauthorized", nil)
		return
	}
	req := r.newRequest(up, msg.ChatID, msg.FromID, msg.FromName, cmd.Name, args)
	if !r.enqueue(func() { _ = r.wrap(cmd)(ctx, req) }) {
		_ = r.deps.Replier.SendText(ctx, msg.ChatID, "busy, try again", nil)
	}
}

func (r *Router) routeCallback(ctx context.Context, up transport.Update) {
	cb := up.Callback
	if cb == nil {
		return
	}
	data := strings.TrimSpace(cb.Data)
	r.mu.RLock()
	name, ok := r.callback[data]
	r.mu.RUnlock()
	cmd, found := r.lookup(name)
	if !ok || !found {
		_ = r.deps.Replier.AnswerCallback(ctx, cb.ID, "")
		return
	}
	if cmd.Access == AccessOwnerOnly && !r.isOwner(cb.FromID) {
		_ = r.deps.Replier.AnswerCallback(ctx, cb.ID, "forbidden")
		return
	}
	req := r.newRequest(up, cb.ChatID, cb.FromID, cb.FromName, "cb:"+data, nil)
	if !r.enqueue(func() {
		// Stop the button's loading state before the slow part.
		_ = r.deps.Replier.AnswerCallback(ctx, cb.ID, "")
		_ = r.wrap(cmd)(ctx, req)
	}) {
		_ = r.deps.Replier.AnswerCallback(ctx, cb.ID, "busy")
	}
}

func (r *Router) newRequest(up transport.Update, chatID, fromID int64, fromName, command string, args []string) *Request {
	rid := uuid.NewString()[:8]
	return &Request{
		Update:   up,
		ChatID:   chatID,
		FromID:   fromID,
		FromName: fromName,
		Command:  command,
		Args:     args,
		ReqID:    rid,
		Log: r.log.With(
			logx.String("rid", rid),
			logx.Int64("chat_id", chatID),
			logx.Int64("from_id", fromID),
			logx.String("cmd", command),
		),
	}
}

func (r *Router) wrap(cmd Command) HandlerFunc {
	timeout := cmd.Timeout
	if timeout <= 0 {
		timeout = r.opt.Timeout
	}
	return Chain(cmd.Handle,
		MWPanicRecover(r.log),
		MWRequestLog(r.log),
		MWTimeout(timeout),
	)
}

func (r *Router) enqueue(fn func()) bool {
	select {
	case r.jobs <- fn:
		return true
	default:
		return false
	}
}
