package convo

import (
	"strings"

	"billing-agent/internal/store"
)

// warningMarker matches both the bare glyph and its emoji-presentation form.
const warningMarker = "⚠"

// latestReplyByKind scans newest-first for the latest successful reply
// tagged with kind. Replies starting with the warning marker are error
// replies and are never served from cache.
func latestReplyByKind(replies []store.ReplyRecord, kind string) (store.ReplyRecord, bool) {
	for _, rec := range replies {
		text := strings.TrimSpace(rec.Text)
		if text == "" || strings.HasPrefix(text, warningMarker) {
			continue
		}
		if tag, ok := rec.Meta["kind"].(string); ok && tag == kind {
			return rec, true
		}
	}
	return store.ReplyRecord{}, false
}
