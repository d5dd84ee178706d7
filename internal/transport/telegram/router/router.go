package router

import (
	"context"
	"runtime/debug"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	rtsup "livewatch/internal/runtime/supervisor"
	kit "livewatch/internal/transport"
	logx "livewatch/pkg/logx"
)

type Access int

const (
	AccessEveryone Access = iota
	AccessOwnerOnly
)

type Command struct {
	Name        string
	Aliases     []string
	Description string
	Usage       string
	Access      Access
	Timeout     time.Duration // optional per-command override
	Handle      HandlerFunc
}

type Request struct {
	Update  kit.Update
	Chat    kit.ChatTarget
	FromID  int64
	Command string
	Args    []string
	ReqID   string
	IsOwner bool

	Sender kit.Sender
	Logger logx.Logger
}

// Reply sends an HTML message back to the originating chat.
func (r *Request) Reply(ctx context.Context, text string) error {
	_, err := r.Sender.SendText(ctx, r.Chat, text, &kit.SendOptions{ParseMode: "HTML", DisablePreview: true})
	return err
}

type Options struct {
	Workers        int
	QueueSize      int
	DefaultTimeout time.Duration
}

// Router maps slash commands to handlers and runs them on a bounded pool.
type Router struct {
	log    logx.Logger
	sender kit.Sender
	opts   Options

	mu     sync.RWMutex
	cmds   map[string]*Command
	alias  map[string]*Command
	owners map[int64]struct{}

	runMu sync.Mutex
	sup   *rtsup.Supervisor
	jobs  chan func(ctx context.Context)
}

func New(sender kit.Sender, owners []int64, opts Options, log logx.Logger) *Router {
	if log.IsZero() {
		log = logx.Nop()
	}
	if opts.Workers <= 0 {
		opts.Workers = 4
	}
	if opts.QueueSize <= 0 {
		opts.QueueSize = 256
	}
	if opts.DefaultTimeout <= 0 {
		opts.DefaultTimeout = 30 * time.Second
	}
	r := &Router{
		log:    log,
		sender: sender,
		opts:   opts,
		cmds:   map[string]*Command{},
		alias:  map[string]*Command{},
	}
	r.SetOwners(owners)
	return r
}

// SetOwners replaces the owner list used for AccessOwnerOnly checks.
func (r *Router) SetOwners(owners []int64) {
	m := make(map[int64]struct{}, len(owners))
	for _, id := range owners {
		m[id] = struct{}{}
	}
	r.mu.Lock()
	r.owners = m
	r.mu.Unlock()
}

func (r *Router) isOwner(id int64) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.owners[id]
	return ok
}

// SetCommands replaces the registry. A help command is always added.
func (r *Router) SetCommands(cmds []Command) {
	all := append([]Command(nil), cmds...)
	all = append(all, Command{
		Name:        "help",
		Aliases:     []string{"start"},
		Description: "list commands",
		Usage:       "/help [command]",
		Handle: func(ctx context.Context, req *Request) error {
			return req.Reply(ctx, r.helpText(req.Args, req.IsOwner))
		},
	})

	byName := map[string]*Command{}
	alias := map[string]*Command{}
	for i := range all {
		c := &all[i]
		name := strings.ToLower(strings.TrimSpace(c.Name))
		if name == "" || c.Handle == nil {
			continue
		}
		c.Name = name
		byName[name] = c
		for _, a := range c.Aliases {
			a = strings.ToLower(strings.TrimSpace(a))
			if a == "" || strings.Contains(a, " ") {
				continue
			}
			if _, exists := alias[a]; !exists {
				alias[a] = c
			}
		}
	}

	r.mu.Lock()
	r.cmds = byName
	r.alias = alias
	r.mu.Unlock()
}

// Commands returns the registry sorted by name.
func (r *Router) Commands() []Command {
	r.mu.RLock()
	out := make([]Command, 0, len(r.cmds))
	for _, c := range r.cmds {
		out = append(out, *c)
	}
	r.mu.RUnlock()
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

func (r *Router) lookup(word string) (*Command, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if c, ok := r.cmds[word]; ok {
		return c, true
	}
	c, ok := r.alias[word]
	return c, ok
}

// Supervisor returns the worker pool supervisor, or nil when not running.
func (r *Router) Supervisor() *rtsup.Supervisor {
	r.runMu.Lock()
	defer r.runMu.Unlock()
	return r.sup
}

// DispatchLoop routes updates until ctx is done or updates is closed.
func (r *Router) DispatchLoop(ctx context.Context, updates <-chan kit.Update) error {
	sup := rtsup.NewSupervisor(ctx, rtsup.WithLogger(r.log.With(logx.String("comp", "telegram.router"))))
	jobs := make(chan func(ctx context.Context), r.opts.QueueSize)
	r.runMu.Lock()
	r.sup, r.jobs = sup, jobs
	r.runMu.Unlock()

	for i := 0; i < r.opts.Workers; i++ {
		idx := i
		sup.GoRestart0("command.worker."+strconv.Itoa(idx), func(c context.Context) {
			for {
				select {
				case <-c.Done():
					return
				case job := <-jobs:
					r.runJob(c, idx, job)
				}
			}
		}, rtsup.WithRestartBackoff(200*time.Millisecond, 5*time.Second), rtsup.WithStopOnCleanExit(true))
	}
	r.log.Info("command dispatcher started", logx.Int("workers", r.opts.Workers), logx.Int("queue", r.opts.QueueSize))

	defer func() {
		r.runMu.Lock()
		r.sup, r.jobs = nil, nil
		r.runMu.Unlock()
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
			r.route(ctx, up, jobs)
		}
	}
}

func (r *Router) runJob(ctx context.Context, idx int, job func(ctx context.Context)) {
	defer func() {
		if rec := recover(); rec != nil {
			r.log.Error("panic in command job", logx.Int("worker", idx), logx.Any("panic", rec), logx.String("stack", string(debug.Stack())))
		}
	}()
	job(ctx)
}

func (r *Router) route(ctx context.Context, up kit.Update, jobs chan<- func(ctx context.Context)) {
	req, cmd, ok := r.prepare(ctx, up)
	if !ok {
		return
	}
	timeout := cmd.Timeout
	if timeout <= 0 {
		timeout = r.opts.DefaultTimeout
	}
	final := Chain(cmd.Handle,
		MWPanicRecover(r.log),
		MWRequestLog(r.log),
		MWTimeout(timeout),
	)
	select {
	case jobs <- func(c context.Context) { _ = final(c, req) }:
	default:
		_, _ = r.sender.SendText(ctx, req.Chat, "busy, try again", nil)
	}
}

// prepare parses a message update into a request. Non-commands and
// unauthorized calls are answered or dropped here.
func (r *Router) prepare(ctx context.Context, up kit.Update) (*Request, *Command, bool) {
	if up.Kind != kit.UpdateMessage || up.Message == nil {
		return nil, nil, false
	}
	msg := up.Message
	word, args, ok := parseCommand(msg.Text)
	if !ok {
		return nil, nil, false
	}
	chat := kit.ChatTarget{ChatID: msg.ChatID, ThreadID: msg.ThreadID}
	cmd, found := r.lookup(word)
	if !found {
		if !msg.IsGroup {
			_, _ = r.sender.SendText(ctx, chat, "unknown command, try /help", nil)
		}
		return nil, nil, false
	}
	owner := r.isOwner(msg.FromID)
	if cmd.Access == AccessOwnerOnly && !owner {
		_, _ = r.sender.SendText(ctx, chat, "unauthorized", nil)
		return nil, nil, false
	}

	rid := newReqID()
	return &Request{
		Update:  up,
		Chat:    chat,
		FromID:  msg.FromID,
		Command: cmd.Name,
		Args:    args,
		ReqID:   rid,
		IsOwner: owner,
		Sender:  r.sender,
		Logger: r.log.With(
			logx.String("rid", rid),
			logx.Int64("chat_id", msg.ChatID),
			logx.Int64("from_id", msg.FromID),
			logx.String("cmd", cmd.Name),
		),
	}, cmd, true
}

// MenuCommands builds the platform command menu from the registry.
func (r *Router) MenuCommands() []kit.BotCommand {
	return buildMenu(r.Commands())
}

// PublishMenu pushes the command menu when the sender supports it.
func (r *Router) PublishMenu(ctx context.Context) error {
	up, ok := r.sender.(kit.CommandMenuUpdater)
	if !ok {
		return nil
	}
	cctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	return up.UpdateMenuCommands(cctx, r.MenuCommands())
}
