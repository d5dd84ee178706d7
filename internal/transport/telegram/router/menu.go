package router

import (
	"fmt"
	"html"
	"strings"
	"unicode"

	kit "livewatch/internal/transport"
)

// sanitizeTelegramCommand converts a name into a Telegram-safe bot command.
// Telegram command names are restricted to [a-z0-9_]{1,32}.
func sanitizeTelegramCommand(s string) string {
	s = strings.TrimSpace(strings.ToLower(s))
	var b strings.Builder
	b.Grow(len(s))
	lastUnderscore := false
	for _, r := range s {
		switch {
		case (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9'):
			b.WriteRune(r)
			lastUnderscore = false
		case r == '_' || r == '-' || r == '/' || unicode.IsSpace(r):
			if b.Len() > 0 && !lastUnderscore {
				b.WriteRune('_')
				lastUnderscore = true
			}
		}
	}
	out := strings.Trim(b.String(), "_")
	if len(out) > 32 {
		out = strings.TrimRight(out[:32], "_")
	}
	if out != "" && out[0] >= '0' && out[0] <= '9' {
		out = "cmd_" + out
		if len(out) > 32 {
			out = strings.TrimRight(out[:32], "_")
		}
	}
	return out
}

func buildMenu(cmds []Command) []kit.BotCommand {
	out := make([]kit.BotCommand, 0, len(cmds))
	seen := map[string]bool{}
	for _, c := range cmds {
		name := sanitizeTelegramCommand(c.Name)
		if name == "" || seen[name] {
			continue
		}
		seen[name] = true
		desc := strings.ReplaceAll(strings.TrimSpace(c.Description), "\n", " ")
		if desc == "" {
			desc = name
		}
		if c.Access == AccessOwnerOnly {
			desc = "🔒 " + desc
		}
		if len(desc) > 256 {
			desc = desc[:256]
		}
		out = append(out, kit.BotCommand{Command: name, Description: desc})
		if len(out) >= 100 {
			break
		}
	}
	return out
}

// helpText lists the commands visible to the caller, or details one command.
func (r *Router) helpText(args []string, owner bool) string {
	if len(args) > 0 {
		word := strings.ToLower(strings.TrimPrefix(args[0], "/"))
		c, ok := r.lookup(word)
		if !ok || (c.Access == AccessOwnerOnly && !owner) {
			return "unknown command, try /help"
		}
		var b strings.Builder
		fmt.Fprintf(&b, "<b>/%s</b>", html.EscapeString(c.Name))
		if c.Description != "" {
			fmt.Fprintf(&b, " - %s", html.EscapeString(c.Description))
		}
		if c.Usage != "" {
			fmt.Fprintf(&b, "\nusage: <code>%s</code>", html.EscapeString(c.Usage))
		}
		if len(c.Aliases) > 0 {
			fmt.Fprintf(&b, "\naliases: %s", html.EscapeString(strings.Join(c.Aliases, ", ")))
		}
		return b.String()
	}

	var b strings.Builder
	b.WriteString("<b>Commands</b>\n")
	for _, c := range r.Commands() {
		if c.Access == AccessOwnerOnly && !owner {
			continue
		}
		fmt.Fprintf(&b, "/%s", html.EscapeString(c.Name))
		if c.Description != "" {
			fmt.Fprintf(&b, " - %s", html.EscapeString(c.Description))
		}
		b.WriteByte('\n')
	}
	return strings.TrimRight(b.String(), "\n")
}
