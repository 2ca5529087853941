// Package router dispatches operator chat commands to handlers.
package router

import (
	"context"
	"html"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	rtsup "github.com/shcheglovnd/us-visa-scheduler-telegram/internal/runtime/supervisor"
	kit "github.com/shcheglovnd/us-visa-scheduler-telegram/internal/transport"
	logx "github.com/shcheglovnd/us-visa-scheduler-telegram/pkg/logx"
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
	Access      Access
	Timeout     time.Duration
	Handle      HandlerFunc
}

type Request struct {
	Message kit.Message
	Chat    kit.ChatTarget
	Command string
	Args    []string
	ReqID   string
	Sender  kit.Sender
	Logger  logx.Logger
}

// Reply sends HTML text back to the chat the command came from.
func (r *Request) Reply(ctx context.Context, text string) error {
	_, err := r.Sender.SendText(ctx, r.Chat, text, &kit.SendOptions{ParseMode: "HTML", DisablePreview: true})
	return err
}

const defaultTimeout = 15 * time.Second

type CommandManager struct {
	mu     sync.RWMutex
	cmds   map[string]*Command
	list   []Command
	owners []int64

	log    logx.Logger
	sender kit.Sender
	jobs   chan func()
}

func NewCommandManager(log logx.Logger, sender kit.Sender, owners []int64) *CommandManager {
	if log.IsZero() {
		log = logx.Nop()
	}
	return &CommandManager{
		cmds:   map[string]*Command{},
		owners: append([]int64(nil), owners...),
		log:    log.With(logx.String("comp", "telegram.router")),
		sender: sender,
		jobs:   make(chan func(), 32),
	}
}

// SetOwners updates the owner list used for AccessOwnerOnly checks.
func (m *CommandManager) SetOwners(owners []int64) {
	cp := append([]int64(nil), owners...)
	m.mu.Lock()
	m.owners = cp
	m.mu.Unlock()
}

func (m *CommandManager) isOwner(id int64) bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, o := range m.owners {
		if o == id {
			return true
		}
	}
	return false
}

// SetCommands replaces the registry and, when the sender supports it,
// pushes the command menu. /help is always added.
func (m *CommandManager) SetCommands(ctx context.Context, cmds []Command) {
	cmds = append(cmds, Command{
		Name:        "help",
		Aliases:     []string{"start"},
		Description: "list commands",
		Access:      AccessEveryone,
		Handle: func(ctx context.Context, req *Request) error {
			return req.Reply(ctx, m.helpText())
		},
	})

	reg := map[string]*Command{}
	list := make([]Command, 0, len(cmds))
	for i := range cmds {
		c := cmds[i]
		name := sanitizeTelegramCommand(c.Name)
		if name == "" || c.Handle == nil {
			continue
		}
		c.Name = name
		list = append(list, c)
	}
	sort.SliceStable(list, func(i, j int) bool { return list[i].Name < list[j].Name })
	for i := range list {
		reg[list[i].Name] = &list[i]
		for _, a := range list[i].Aliases {
			if a = sanitizeTelegramCommand(a); a != "" {
				if _, taken := reg[a]; !taken {
					reg[a] = &list[i]
				}
			}
		}
	}

	m.mu.Lock()
	m.cmds = reg
	m.list = list
	m.mu.Unlock()

	if up, ok := m.sender.(kit.CommandMenuUpdater); ok {
		menu := make([]kit.BotCommand, 0, len(list))
		for _, c := range list {
			desc := c.Description
			if c.Access == AccessOwnerOnly {
				desc = "🔒 " + desc
			}
			menu = append(menu, kit.BotCommand{Command: c.Name, Description: desc})
		}
		go func() {
			cctx, cancel := context.WithTimeout(ctx, 5*time.Second)
			defer cancel()
			if err := up.UpdateMenuCommands(cctx, menu); err != nil {
				m.log.Warn("menu update failed", logx.Err(err))
			}
		}()
	}
}

func (m *CommandManager) helpText() string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var b strings.Builder
	b.WriteString("<b>Commands</b>\n")
	for _, c := range m.list {
		b.WriteString("/")
		b.WriteString(c.Name)
		if c.Description != "" {
			b.WriteString(" - ")
			b.WriteString(html.EscapeString(c.Description))
		}
		if c.Access == AccessOwnerOnly {
			b.WriteString(" (owner)")
		}
		b.WriteString("\n")
	}
	return strings.TrimRight(b.String(), "\n")
}

// DispatchLoop routes messages until ctx is done or in is closed.
// Handlers run on a small worker pool so a slow command does not block intake.
func (m *CommandManager) DispatchLoop(ctx context.Context, in <-chan kit.Message) error {
	const workers = 2
	sup := rtsup.NewSupervisor(ctx,
		rtsup.WithLogger(m.log),
		rtsup.WithCancelOnError(false),
	)
	for range workers {
		sup.GoRestart("command.worker", func(c context.Context) error {
			for {
				select {
				case <-c.Done():
					return nil
				case job := <-m.jobs:
					job()
				}
			}
		}, rtsup.WithRestartBackoff(200*time.Millisecond, 5*time.Second))
	}
	m.log.Info("command dispatcher started", logx.Int("workers", workers))

	defer func() {
		sup.Cancel()
		wctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
		_ = sup.Wait(wctx)
		cancel()
		m.log.Info("command dispatcher stopped")
	}()

	for {
		select {
		case <-ctx.Done():
			return nil
		case msg, ok := <-in:
			if !ok {
				return nil
			}
			m.route(ctx, msg)
		}
	}
}

func (m *CommandManager) route(ctx context.Context, msg kit.Message) {
	text := strings.TrimSpace(msg.Text)
	if !strings.HasPrefix(text, "/") {
		return
	}
	parts := strings.Fields(text)
	word := strings.TrimPrefix(parts[0], "/")
	if i := strings.IndexByte(word, '@'); i >= 0 {
		word = word[:i]
	}
	word = strings.ToLower(word)
	chat := kit.ChatTarget{ChatID: msg.ChatID, ThreadID: msg.ThreadID}

	m.mu.RLock()
	cmd, ok := m.cmds[word]
	m.mu.RUnlock()
	if !ok {
		_, _ = m.sender.SendText(ctx, chat, "unknown command, try /help", nil)
		return
	}
	if cmd.Access == AccessOwnerOnly && !m.isOwner(msg.FromID) {
		m.log.Warn("unauthorized command", logx.Int64("from_id", msg.FromID), logx.String("cmd", cmd.Name))
		_, _ = m.sender.SendText(ctx, chat, "unauthorized", nil)
		return
	}

	rid := uuid.NewString()[:8]
	req := &Request{
		Message: msg,
		Chat:    chat,
		Command: cmd.Name,
		Args:    parts[1:],
		ReqID:   rid,
		Sender:  m.sender,
		Logger: m.log.With(
			logx.String("rid", rid),
			logx.Int64("chat_id", msg.ChatID),
			logx.Int64("from_id", msg.FromID),
			logx.String("cmd", cmd.Name),
		),
	}
	timeout := cmd.Timeout
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	final := wrap(cmd.Handle, withReplyOnError(), withRecover(), withLog(), withTimeout(timeout))

	select {
	case m.jobs <- func() { _ = final(ctx, req) }:
	default:
		_, _ = m.sender.SendText(ctx, chat, "busy, try again", nil)
	}
}
