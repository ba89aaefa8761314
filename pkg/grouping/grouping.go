// Package grouping turns a flat, multi-scope history into one row per conversation.
package grouping

import (
	"fmt"
	"sort"

	"github.com/go-go-golems/chatsync/pkg/messages"
)

// Row is one conversation in the conversation list.
type Row struct {
	Scope messages.Scope `json:"scope" yaml:"scope"`
	// Latest is the record with the highest safe timestamp, ties going to the higher id.
	Latest    messages.Message `json:"latest" yaml:"latest"`
	Timestamp int64            `json:"timestamp" yaml:"timestamp"`
	Count     int              `json:"count" yaml:"count"`
}

func (r Row) Title() string {
	switch r.Scope.Kind {
	case messages.ScopeAgent:
		return fmt.Sprintf("Agent %s", r.Scope.ID)
	case messages.ScopeChatbox:
		return fmt.Sprintf("Chatbox %s", r.Scope.ID)
	default:
		return "General"
	}
}

func (r Row) Preview() string {
	switch {
	case r.Latest.AssistantText != "" && !r.Latest.IsPlaceholder():
		return r.Latest.AssistantText
	case r.Latest.UserText != "":
		return r.Latest.UserText
	case r.Latest.Attachment != nil && r.Latest.Attachment.FileName != "":
		return r.Latest.Attachment.FileName
	case r.Latest.Attachment != nil:
		return string(r.Latest.Attachment.Kind)
	default:
		return ""
	}
}

func newer(a, b *messages.Message) bool {
	if a.Timestamp != b.Timestamp {
		return a.Timestamp > b.Timestamp
	}
	return messages.CompareIDs(a.ID, b.ID) > 0
}

// Group builds one row per agent id, one per chatbox id and one for all
// general records, most recent first. Ties go to the higher latest id, then
// to the scope text, so the order is the same for any input order.
func Group(records []messages.Message) []Row {
	byScope := map[string]*Row{}
	order := []string{}
	for i := range records {
		r := &records[i]
		if r.IsStale() || r.IsPlaceholder() {
			continue
		}
		key := r.Scope.String()
		row, ok := byScope[key]
		if !ok {
			row = &Row{Scope: r.Scope, Latest: *r, Timestamp: r.Timestamp}
			byScope[key] = row
			order = append(order, key)
		} else if newer(r, &row.Latest) {
			row.Latest = *r
			row.Timestamp = r.Timestamp
		}
		row.Count++
	}

	ret := make([]Row, 0, len(order))
	for _, key := range order {
		ret = append(ret, *byScope[key])
	}
	sort.SliceStable(ret, func(i, j int) bool {
		a, b := &ret[i], &ret[j]
		if a.Timestamp != b.Timestamp {
			return a.Timestamp > b.Timestamp
		}
		if c := messages.CompareIDs(a.Latest.ID, b.Latest.ID); c != 0 {
			return c > 0
		}
		return a.Scope.String() < b.Scope.String()
	})
	return ret
}
