package tgui

import (
	"html"
	"strings"
)

// H is HTML that is safe to send with ParseMode=HTML. Values are treated as
// already escaped.
type H string

func (h H) String() string { return string(h) }

// Esc escapes text for Telegram HTML parse mode.
func Esc(s string) H { return H(html.EscapeString(s)) }

func wrap(tag string, inner H) H { return H("<" + tag + ">" + inner.String() + "</" + tag + ">") }

func B(s string) H { return wrap("b", Esc(s)) }

func I(s string) H { return wrap("i", Esc(s)) }

// Field renders "<b>label:</b> value".
func Field(label, value string) H {
	return B(label+":") + " " + Esc(value)
}

// Lines joins parts with newlines.
func Lines(parts ...H) H {
	ss := make([]string, 0, len(parts))
	for _, p := range parts {
		ss = append(ss, p.String())
	}
	return H(strings.Join(ss, "\n"))
}

// Plain strips the tags produced by this package and unescapes entities.
// Used when a message must be resent without parse mode.
func Plain(h H) string {
	s := h.String()
	for _, tag := range []string{"<b>", "</b>", "<i>", "</i>"} {
		s = strings.ReplaceAll(s, tag, "")
	}
	return html.UnescapeString(s)
}
