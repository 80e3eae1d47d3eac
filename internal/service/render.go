package service

import (
	"fmt"
	"html"
	"strings"
	"time"

	"hydra/internal/models"
)

// RenderIngressLogsHTML renders one display page of captured requests,
// newest first, with cursor links for navigation. Values are escaped by
// hand because the document is assembled as a plain string.
func RenderIngressLogsHTML(items []models.IngressLog, limit int, hasNewer, hasOlder bool) string {
	var b strings.Builder

	b.WriteString("<!DOCTYPE html>\n<html>\n<head><title>hydra ingress log</title></head>\n<body>\n")
	b.WriteString("<h1>Captured requests</h1>\n<div class=\"nav\">\n")

	if hasNewer && len(items) > 0 {
		cursor := EncodeCursor(items[0].EventID)
		b.WriteString(fmt.Sprintf("<a href=\"?preceding=%s&amp;limit=%d\">Newer</a>\n", cursor, limit))
	}
	if hasOlder && len(items) > 0 {
		cursor := EncodeCursor(items[len(items)-1].EventID)
		b.WriteString(fmt.Sprintf("<a href=\"?following=%s&amp;limit=%d\">Older</a>\n", cursor, limit))
	}

	b.WriteString("</div>\n<table>\n")
	b.WriteString("<tr><th>Event ID</th><th>Captured</th><th>Remote</th><th>Method</th><th>Host</th><th>Path</th><th>Body</th></tr>\n")

	for _, log := range items {
		b.WriteString("<tr>")
		b.WriteString("<td>" + html.EscapeString(log.EventID) + "</td>")
		b.WriteString("<td>" + html.EscapeString(log.CapturedAt.UTC().Format(time.RFC3339)) + "</td>")
		b.WriteString("<td>" + html.EscapeString(log.RemoteAddr) + "</td>")
		b.WriteString("<td>" + html.EscapeString(log.Method) + "</td>")
		b.WriteString("<td>" + html.EscapeString(log.Host) + "</td>")
		b.WriteString("<td>" + html.EscapeString(log.Path) + "</td>")
		b.WriteString("<td><pre>" + html.EscapeString(string(log.Body)) + "</pre></td>")
		b.WriteString("</tr>\n")
	}

	b.WriteString("</table>\n</body>\n</html>\n")
	return b.String()
}
