package bot

import (
	"context"

	"livewatch/internal/notifier"
	"livewatch/internal/storage"
	"livewatch/internal/watch"
	logx "livewatch/pkg/logx"
)

// Consume turns watch events into notifications until ctx is done or in is
// closed. It must run on a single goroutine.
func (b *Bot) Consume(ctx context.Context, in <-chan watch.Event) {
	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-in:
			if !ok {
				return
			}
			b.handle(ctx, ev)
		}
	}
}

func (b *Bot) handle(ctx context.Context, ev watch.Event) {
	switch e := ev.(type) {
	case watch.StatusChanged:
		// The tracker must see every change, announced or not. Its platform
		// edges only ever accompany a went-live or event-started change.
		started := b.tracker.Observe(e.Previous, e.Current)
		if e.Diff.WentLive || e.Diff.EventStarted {
			b.fanout(ctx, storage.CategoryLive, renderWentLive(e.Current, started))
		}
	case watch.ThumbnailSignal:
		b.fanout(ctx, storage.CategoryThumbnail, renderThumbnail(e.Current))
	case watch.EntityWentLive:
		b.fanout(ctx, storage.CategoryNotable, renderNotable(e.ID, e.Person))
	default:
		b.log.Warn("unknown watch event", logx.String("kind", ev.Kind()))
	}
}

func (b *Bot) fanout(ctx context.Context, c storage.Category, text string) {
	ids, err := b.deps.Store.ListSubscribers(ctx, c)
	if err != nil {
		b.log.Error("list subscribers failed", logx.String("category", string(c)), logx.Err(err))
		return
	}
	if len(ids) == 0 {
		b.log.Debug("no subscribers", logx.String("category", string(c)))
		return
	}
	id, err := b.deps.Dispatcher.Dispatch(ids, notifier.Message{Text: text, ParseMode: "HTML"}, c)
	if err != nil {
		b.log.Warn("dispatch rejected", logx.String("category", string(c)), logx.Err(err))
		return
	}
	b.log.Info("notification dispatched",
		logx.String("dispatch", id),
		logx.String("category", string(c)),
		logx.Int("recipients", len(ids)),
	)
}
