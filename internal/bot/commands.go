package bot

import (
	"context"
	"fmt"
	"html"
	"runtime"
	"sort"
	"strings"
	"time"

	"livewatch/internal/storage"
	"livewatch/internal/transport/telegram/router"
	logx "livewatch/pkg/logx"
)

// Commands returns the chat commands served by the bot.
func (b *Bot) Commands() []router.Command {
	return []router.Command{
		{Name: "status", Aliases: []string{"live"}, Description: "is the show live?", Handle: b.cmdStatus},
		{Name: "notable", Description: "notable streams live now", Handle: b.cmdNotable},
		{Name: "next", Aliases: []string{"when"}, Description: "when is the next show", Handle: b.cmdNext},
		{
			Name:        "subscribe",
			Aliases:     []string{"sub"},
			Description: "get notified",
			Usage:       "/subscribe [live|notable|thumbnail|all]",
			Handle:      b.cmdSubscribe,
		},
		{
			Name:        "unsubscribe",
			Aliases:     []string{"unsub", "stop"},
			Description: "stop notifications",
			Usage:       "/unsubscribe [live|notable|thumbnail|all]",
			Handle:      b.cmdUnsubscribe,
		},
		{Name: "subs", Description: "your subscriptions", Handle: b.cmdSubs},
		{
			Name:        "health",
			Description: "runtime health",
			Access:      router.AccessOwnerOnly,
			Timeout:     10 * time.Second,
			Handle:      b.cmdHealth,
		},
	}
}

func (b *Bot) cmdStatus(ctx context.Context, req *router.Request) error {
	return req.Reply(ctx, renderStatus(b.deps.Watcher.CurrentEventStatus(ctx)))
}

func (b *Bot) cmdNotable(ctx context.Context, req *router.Request) error {
	return req.Reply(ctx, renderNotableList(b.deps.Watcher.CurrentNotableStatus(ctx)))
}

func (b *Bot) cmdNext(ctx context.Context, req *router.Request) error {
	live := false
	if st := b.deps.Watcher.State(); st.LastStatus != nil {
		live = st.LastStatus.IsLive && st.LastStatus.IsEvent
	}
	now := b.deps.Clock.Now()
	return req.Reply(ctx, renderNext(b.deps.Watcher.NextOccurrence(), now, b.deps.Location, live))
}

// categoriesArg parses an optional category argument; empty or "all" means
// every category.
func categoriesArg(args []string) ([]storage.Category, error) {
	if len(args) == 0 || strings.EqualFold(args[0], "all") {
		return storage.Categories, nil
	}
	c, err := storage.ParseCategory(args[0])
	if err != nil {
		return nil, err
	}
	return []storage.Category{c}, nil
}

func (b *Bot) cmdSubscribe(ctx context.Context, req *router.Request) error {
	cats, err := categoriesArg(req.Args)
	if err != nil {
		return req.Reply(ctx, "unknown category, use live, notable, thumbnail or all")
	}
	var added []string
	for _, c := range cats {
		ok, err := b.deps.Store.AddSubscriber(ctx, c, req.Chat.ChatID)
		if err != nil {
			return fmt.Errorf("subscribe %s: %w", c, err)
		}
		if ok {
			added = append(added, string(c))
		}
	}
	if len(added) == 0 {
		return req.Reply(ctx, "You were already subscribed.")
	}
	req.Logger.Info("subscribed", logx.Strings("categories", added))
	return req.Reply(ctx, "🔔 Subscribed to: "+strings.Join(added, ", "))
}

func (b *Bot) cmdUnsubscribe(ctx context.Context, req *router.Request) error {
	cats, err := categoriesArg(req.Args)
	if err != nil {
		return req.Reply(ctx, "unknown category, use live, notable, thumbnail or all")
	}
	var removed []string
	for _, c := range cats {
		ok, err := b.deps.Store.RemoveSubscription(ctx, c, req.Chat.ChatID)
		if err != nil {
			return fmt.Errorf("unsubscribe %s: %w", c, err)
		}
		if ok {
			removed = append(removed, string(c))
		}
	}
	if len(removed) == 0 {
		return req.Reply(ctx, "You were not subscribed.")
	}
	req.Logger.Info("unsubscribed", logx.Strings("categories", removed))
	return req.Reply(ctx, "🔕 Unsubscribed from: "+strings.Join(removed, ", "))
}

func (b *Bot) cmdSubs(ctx context.Context, req *router.Request) error {
	subs, err := b.deps.Store.Subscriptions(ctx, req.Chat.ChatID)
	if err != nil {
		return err
	}
	return req.Reply(ctx, renderSubscriptions(subs))
}

func (b *Bot) cmdHealth(ctx context.Context, req *router.Request) error {
	return req.Reply(ctx, b.healthText(ctx))
}

func (b *Bot) healthText(ctx context.Context) string {
	now := b.deps.Clock.Now()
	st := b.deps.Watcher.State()
	var m runtime.MemStats
	runtime.ReadMemStats(&m)

	var out strings.Builder
	out.Grow(1024)
	out.WriteString("🏥 <b>Bot Health</b>\n")
	out.WriteString("━━━━━━━━━━━━━━━━━━━━\n")
	fmt.Fprintf(&out, "Uptime: %s\n", durRel(now.Sub(b.startedAt)))
	fmt.Fprintf(&out, "Goroutines: %d | Heap: %s\n\n", runtime.NumGoroutine(), fmtBytes(m.HeapInuse))

	out.WriteString("👀 Watcher\n")
	fmt.Fprintf(&out, "  • Running: %v\n", st.Running)
	if !st.LastPollAt.IsZero() {
		fmt.Fprintf(&out, "  • Last poll: %s ago\n", durRel(now.Sub(st.LastPollAt)))
	}
	if st.NextPollIn > 0 {
		fmt.Fprintf(&out, "  • Interval: %s\n", st.NextPollIn)
	}
	if b.deps.Source != nil {
		if snap, at := b.deps.Source.Cached(); snap != nil {
			fmt.Fprintf(&out, "  • Snapshot age: %s\n", durRel(now.Sub(at)))
		} else {
			out.WriteString("  • Snapshot: none yet\n")
		}
	}
	out.WriteString("\n")

	out.WriteString("🔔 Subscribers\n")
	if counts, err := b.deps.Store.Counts(ctx); err != nil {
		fmt.Fprintf(&out, "  • error: %s\n", html.EscapeString(err.Error()))
	} else {
		for _, c := range storage.Categories {
			fmt.Fprintf(&out, "  • %s: %d\n", c, counts[c])
		}
	}
	out.WriteString("\n")

	out.WriteString("📤 Deliveries\n")
	fmt.Fprintf(&out, "  • In flight: %d\n", b.deps.Dispatcher.InFlight())
	for _, d := range b.deps.Dispatcher.Recent(3) {
		fmt.Fprintf(&out, "  • %s %s: %d sent, %d failed, %d removed of %d\n",
			d.CreatedAt.In(b.deps.Location).Format("01-02 15:04"), d.Category, d.Sent, d.Failed, d.Unreachable, d.Total)
	}

	if b.deps.Runtime != nil {
		snaps := b.deps.Runtime()
		names := make([]string, 0, len(snaps))
		for name := range snaps {
			names = append(names, name)
		}
		sort.Strings(names)
		out.WriteString("\n🤖 Runtime\n")
		for _, name := range names {
			s := snaps[name]
			icon := "✅"
			if s.FirstError != "" {
				icon = "⚠️"
			}
			fmt.Fprintf(&out, "  • %s %s: %d active", icon, name, s.Active)
			if s.FirstError != "" {
				fmt.Fprintf(&out, " (%s)", html.EscapeString(s.FirstError))
			}
			out.WriteString("\n")
		}
	}
	if b.deps.Dropped != nil {
		if n := b.deps.Dropped(); n > 0 {
			fmt.Fprintf(&out, "\nEvent bus drops: %d\n", n)
		}
	}
	return strings.TrimRight(out.String(), "\n")
}
