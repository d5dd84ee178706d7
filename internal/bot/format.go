package bot

import (
	"fmt"
	"html"
	"sort"
	"strings"
	"time"

	"livewatch/internal/source"
	"livewatch/internal/storage"
	"livewatch/internal/watch"
)

func platformLabel(p watch.Platform) string {
	switch p {
	case source.YouTube:
		return "YouTube"
	case source.Floatplane:
		return "Floatplane"
	case source.Twitch:
		return "Twitch"
	default:
		return string(p)
	}
}

func platformList(ps []watch.Platform) string {
	names := make([]string, 0, len(ps))
	for _, p := range ps {
		names = append(names, platformLabel(p))
	}
	return strings.Join(names, ", ")
}

func titleOr(s, def string) string {
	if s = strings.TrimSpace(s); s == "" {
		return def
	}
	return s
}

// renderWentLive names the platforms that newly carry the event, or every live
// platform when none is new.
func renderWentLive(cur watch.LiveStatus, started []watch.Platform) string {
	var b strings.Builder
	if cur.IsEvent {
		b.WriteString("🔴 <b>The show is live!</b>\n")
		fmt.Fprintf(&b, "%s\n", html.EscapeString(titleOr(cur.Title, "(untitled)")))
	} else {
		b.WriteString("📺 <b>Live now</b> (not the main show yet)\n")
	}
	ps := started
	if len(ps) == 0 {
		ps = cur.LivePlatforms()
	}
	if len(ps) > 0 {
		fmt.Fprintf(&b, "On: %s\n", platformList(ps))
	}
	if cur.Thumbnail != "" {
		fmt.Fprintf(&b, "<a href=\"%s\">thumbnail</a>\n", html.EscapeString(cur.Thumbnail))
	}
	return strings.TrimRight(b.String(), "\n")
}

func renderThumbnail(cur watch.LiveStatus) string {
	var b strings.Builder
	b.WriteString("🖼 <b>New thumbnail posted</b>, the show should start soon.")
	if cur.Title != "" {
		fmt.Fprintf(&b, "\n%s", html.EscapeString(cur.Title))
	}
	if cur.Thumbnail != "" {
		fmt.Fprintf(&b, "\n<a href=\"%s\">thumbnail</a>", html.EscapeString(cur.Thumbnail))
	}
	return b.String()
}

func personName(id string, p watch.Person) string {
	return titleOr(p.Name, id)
}

func renderNotable(id string, p watch.Person) string {
	var b strings.Builder
	fmt.Fprintf(&b, "⭐ <b>%s is live</b>", html.EscapeString(personName(id, p)))
	if p.Title != "" {
		fmt.Fprintf(&b, "\n%s", html.EscapeString(p.Title))
	}
	if p.Game != "" {
		fmt.Fprintf(&b, "\nPlaying: %s", html.EscapeString(p.Game))
	}
	if p.Channel != "" {
		fmt.Fprintf(&b, "\nChannel: %s", html.EscapeString(p.Channel))
	}
	return b.String()
}

func renderStatus(st watch.LiveStatus) string {
	var b strings.Builder
	b.WriteString("📺 <b>Show status</b>\n")
	b.WriteString("━━━━━━━━━━━━━━━━━━━━\n")
	switch {
	case st.IsLive && st.IsEvent:
		b.WriteString("Status: 🔴 live\n")
		fmt.Fprintf(&b, "Title: %s\n", html.EscapeString(titleOr(st.Title, "(untitled)")))
		if st.StartedAt != "" {
			fmt.Fprintf(&b, "Started: %s\n", html.EscapeString(st.StartedAt))
		}
	case st.IsLive:
		b.WriteString("Status: 📺 live, not the main show\n")
	default:
		b.WriteString("Status: ⚫ offline\n")
	}
	for _, p := range source.Platforms {
		icon := "⚫"
		if st.PerPlatform[p] {
			icon = "🔴"
		}
		fmt.Fprintf(&b, "  • %s %s\n", icon, platformLabel(p))
	}
	if st.IsThumbnailFresh && !st.IsLive {
		b.WriteString("🖼 Fresh thumbnail, starting soon\n")
	}
	return strings.TrimRight(b.String(), "\n")
}

func renderNotableList(st watch.NotablePeopleStatus) string {
	if !st.HasAnyLive {
		return "⭐ No notable streams are live right now."
	}
	ids := make([]string, 0, len(st.People))
	for id, p := range st.People {
		if p.IsLive {
			ids = append(ids, id)
		}
	}
	sort.Strings(ids)
	var b strings.Builder
	fmt.Fprintf(&b, "⭐ <b>Live now</b> (%d)\n", len(ids))
	for _, id := range ids {
		p := st.People[id]
		fmt.Fprintf(&b, "  • %s", html.EscapeString(personName(id, p)))
		if p.Title != "" {
			fmt.Fprintf(&b, ": %s", html.EscapeString(p.Title))
		}
		if p.Game != "" {
			fmt.Fprintf(&b, " [%s]", html.EscapeString(p.Game))
		}
		b.WriteByte('\n')
	}
	return strings.TrimRight(b.String(), "\n")
}

func renderNext(nominal, now time.Time, loc *time.Location, live bool) string {
	if live {
		return "🔴 The show is live right now. See /status."
	}
	if nominal.IsZero() {
		return "🗓 No schedule is configured."
	}
	if loc == nil {
		loc = time.UTC
	}
	when := nominal.In(loc).Format("Mon 2 Jan 15:04 MST")
	if d := nominal.Sub(now); d > 0 {
		return fmt.Sprintf("🗓 Next show: <b>%s</b> (in %s)", when, durRel(d))
	}
	return fmt.Sprintf("🗓 The show was due <b>%s</b> (%s ago) and has not started yet.", when, durRel(now.Sub(nominal)))
}

func renderSubscriptions(subs []storage.Category) string {
	if len(subs) == 0 {
		return "You are not subscribed to anything. Try /subscribe."
	}
	names := make([]string, 0, len(subs))
	for _, c := range subs {
		names = append(names, string(c))
	}
	return "🔔 Subscribed to: " + strings.Join(names, ", ")
}

func durRel(d time.Duration) string {
	if d < 0 {
		d = -d
	}
	if d < time.Minute {
		return fmt.Sprintf("%ds", int(d.Seconds()))
	}
	if d < time.Hour {
		return fmt.Sprintf("%dm%ds", int(d.Minutes()), int(d.Seconds())%60)
	}
	if d < 48*time.Hour {
		return fmt.Sprintf("%dh%dm", int(d.Hours()), int(d.Minutes())%60)
	}
	return fmt.Sprintf("%dd%dh", int(d.Hours())/24, int(d.Hours())%24)
}

func fmtBytes(n uint64) string {
	const (
		KB = 1024
		MB = 1024 * KB
		GB = 1024 * MB
	)
	switch {
	case n >= GB:
		return fmt.Sprintf("%.1fGB", float64(n)/GB)
	case n >= MB:
		return fmt.Sprintf("%.1fMB", float64(n)/MB)
	case n >= KB:
		return fmt.Sprintf("%.1fKB", float64(n)/KB)
	default:
		return fmt.Sprintf("%dB", n)
	}
}
