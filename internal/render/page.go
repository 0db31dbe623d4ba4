package render

import (
	"fmt"
	"html"
	"strings"
)

var themes = map[string]struct{ bg, fg, accent string }{
	"light": {"#ffffff", "#1f2328", "#0969da"},
	"dark":  {"#0d1117", "#e6edf3", "#58a6ff"},
}

// Page wraps heading-marked text ("#", "##", "-" bullets) in a standalone
// HTML card of the given width.
func Page(text, theme string, width int) string {
	colors, ok := themes[theme]
	if !ok {
		colors = themes["light"]
	}

	var body strings.Builder
	inList := false
	closeList := func() {
		if inList {
			body.WriteString("</ul>\n")
			inList = false
		}
	}
	for _, line := range strings.Split(text, "\n") {
		line = strings.TrimSpace(line)
		switch {
		case line == "":
			closeList()
		case strings.HasPrefix(line, "## "):
			closeList()
			fmt.Fprintf(&body, "<h2>%s</h2>\n", html.EscapeString(strings.TrimPrefix(line, "## ")))
		case strings.HasPrefix(line, "# "):
			closeList()
			fmt.Fprintf(&body, "<h1>%s</h1>\n", html.EscapeString(strings.TrimPrefix(line, "# ")))
		case strings.HasPrefix(line, "- "), strings.HasPrefix(line, "* "):
			if !inList {
				body.WriteString("<ul>\n")
				inList = true
			}
			fmt.Fprintf(&body, "<li>%s</li>\n", html.EscapeString(line[2:]))
		default:
			closeList()
			fmt.Fprintf(&body, "<p>%s</p>\n", html.EscapeString(line))
		}
	}
	closeList()

	return fmt.Sprintf(`<!DOCTYPE html>
<html><head><meta charset="utf-8"><style>
body{margin:0;background:%[1]s}
#card{width:%[4]dpx;box-sizing:border-box;padding:32px;background:%[1]s;color:%[2]s;font-family:-apple-system,"Segoe UI","PingFang SC","Noto Sans CJK SC",sans-serif;line-height:1.6}
h1{font-size:28px;margin:0 0 16px;color:%[3]s}
h2{font-size:20px;margin:20px 0 8px;color:%[3]s}
ul{padding-left:22px}
</style></head><body><div id="card">
%[5]s</div></body></html>`, colors.bg, colors.fg, colors.accent, width, body.String())
}
