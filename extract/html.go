package extract

import (
	"fmt"
	"html"
	"strings"
)

// documentStyle mirrors the style block the external converter injects into
// its enhanced output, so fallback results render comparably in the editor.
const documentStyle = `body { font-family: 'Segoe UI', Tahoma, Geneva, Verdana, sans-serif; line-height: 1.6; margin: 0; padding: 20px; }
.resume-container { max-width: 800px; margin: 0 auto; background: white; }
h1 { color: #333; margin: 0 0 4px 0; font-size: 1.6em; }
h2 { color: #333; margin-top: 20px; margin-bottom: 10px; border-bottom: 1px solid #ddd; }
p { margin: 8px 0; }
p.contact { color: #555; margin: 2px 0; font-size: 0.95em; }
ul { margin: 8px 0; padding-left: 20px; }`

// renderStyled builds the heuristic document. The classification pass is
// hardened with recover so a pathological input degrades to the plain
// rendering instead of failing the extraction.
func renderStyled(paragraphs []paragraph) (out string, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("styled rendering failed: %v", r)
		}
	}()

	kinds := classify(paragraphs)

	var b strings.Builder
	b.WriteString("<!DOCTYPE html>\n<html>\n<head>\n<meta charset=\"UTF-8\">\n<style>\n")
	b.WriteString(documentStyle)
	b.WriteString("\n</style>\n</head>\n<body>\n<div class=\"resume-container\">\n")

	inList := false
	closeList := func() {
		if inList {
			b.WriteString("</ul>\n")
			inList = false
		}
	}

	for i, p := range paragraphs {
		text := strings.TrimSpace(p.text)

		switch kinds[i] {
		case lineEmpty:
			continue
		case lineBullet:
			if !inList {
				b.WriteString("<ul>\n")
				inList = true
			}
			fmt.Fprintf(&b, "<li>%s</li>\n", html.EscapeString(stripBullet(text)))
		case lineName:
			closeList()
			fmt.Fprintf(&b, "<h1>%s</h1>\n", html.EscapeString(text))
		case lineContact:
			closeList()
			fmt.Fprintf(&b, "<p class=\"contact\">%s</p>\n", html.EscapeString(text))
		case lineHeading:
			closeList()
			fmt.Fprintf(&b, "<h2>%s</h2>\n", html.EscapeString(text))
		default:
			closeList()
			fmt.Fprintf(&b, "<p>%s</p>\n", html.EscapeString(text))
		}
	}
	closeList()

	b.WriteString("</div>\n</body>\n</html>\n")
	return b.String(), nil
}

// renderPlain is the inner fallback: every non-empty paragraph as <p>, no
// heuristics. It cannot fail.
func renderPlain(paragraphs []paragraph) string {
	var b strings.Builder
	b.WriteString("<!DOCTYPE html>\n<html>\n<head>\n<meta charset=\"UTF-8\">\n</head>\n<body>\n")

	for _, p := range paragraphs {
		text := strings.TrimSpace(p.text)
		if text == "" {
			continue
		}
		fmt.Fprintf(&b, "<p>%s</p>\n", html.EscapeString(text))
	}

	b.WriteString("</body>\n</html>\n")
	return b.String()
}
