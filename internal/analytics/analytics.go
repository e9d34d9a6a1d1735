package analytics

import (
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"time"

	"replybot/internal/storage"
)

// DailyStats summarises one UTC day of the interaction log.
type DailyStats struct {
	Date                string                       `json:"date"`
	TotalMessages       int                          `json:"total_messages"`
	UniqueConversations int                          `json:"unique_conversations"`
	UniqueSenders       int                          `json:"unique_senders"`
	Actions             map[string]int               `json:"actions"`
	Tagged              int                          `json:"tagged"`
	Conversations       map[string]ConversationStats `json:"conversations"`
}

type ConversationStats struct {
	ConversationID string         `json:"conversation_id"`
	Messages       int            `json:"messages"`
	Actions        map[string]int `json:"actions"`
}

// AnalyzeDailyLogs aggregates the events that fall on targetDate in its
// location. Events without a user message are not counted.
func AnalyzeDailyLogs(events []storage.Event, targetDate time.Time) *DailyStats {
	startOfDay := time.Date(targetDate.Year(), targetDate.Month(), targetDate.Day(), 0, 0, 0, 0, targetDate.Location())
	endOfDay := startOfDay.AddDate(0, 0, 1)

	stats := &DailyStats{
		Date:          startOfDay.Format("2006-01-02"),
		Actions:       make(map[string]int),
		Conversations: make(map[string]ConversationStats),
	}
	senders := make(map[string]bool)

	for _, event := range events {
		if event.Timestamp.Before(startOfDay) || !event.Timestamp.Before(endOfDay) {
			continue
		}
		if event.UserMessage == "" {
			continue
		}
		stats.TotalMessages++
		stats.Actions[event.Action]++
		if event.Tagged {
			stats.Tagged++
		}
		if event.SenderID != "" {
			senders[event.SenderID] = true
		}

		cs, ok := stats.Conversations[event.ConversationID]
		if !ok {
			cs = ConversationStats{ConversationID: event.ConversationID, Actions: make(map[string]int)}
		}
		cs.Messages++
		cs.Actions[event.Action]++
		stats.Conversations[event.ConversationID] = cs
	}

	stats.UniqueConversations = len(stats.Conversations)
	stats.UniqueSenders = len(senders)
	return stats
}

// GenerateReportSummary renders the stats as a short plain-text report.
func (ds *DailyStats) GenerateReportSummary() string {
	var b strings.Builder
	fmt.Fprintf(&b, "Activity for %s\n\n", ds.Date)
	fmt.Fprintf(&b, "Messages: %d\n", ds.TotalMessages)
	fmt.Fprintf(&b, "Conversations: %d\n", ds.UniqueConversations)
	fmt.Fprintf(&b, "Senders: %d\n", ds.UniqueSenders)
	fmt.Fprintf(&b, "Tagged replies: %d\n", ds.Tagged)

	if len(ds.Actions) > 0 {
		b.WriteString("\nActions:\n")
		for _, name := range sortedKeys(ds.Actions) {
			fmt.Fprintf(&b, "- %s: %d\n", name, ds.Actions[name])
		}
	}

	if len(ds.Conversations) > 0 {
		ids := make([]string, 0, len(ds.Conversations))
		for id := range ds.Conversations {
			ids = append(ids, id)
		}
		sort.Slice(ids, func(i, j int) bool {
			a, c := ds.Conversations[ids[i]], ds.Conversations[ids[j]]
			if a.Messages != c.Messages {
				return a.Messages > c.Messages
			}
			return ids[i] < ids[j]
		})
		b.WriteString("\nBusiest conversations:\n")
		for i, id := range ids {
			if i == 5 {
				break
			}
			fmt.Fprintf(&b, "- %s: %d messages\n", id, ds.Conversations[id].Messages)
		}
	}
	return b.String()
}

func (ds *DailyStats) ToJSON() (string, error) {
	data, err := json.MarshalIndent(ds, "", "  ")
	if err != nil {
		return "", err
	}
	return string(data), nil
}

func sortedKeys(m map[string]int) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
