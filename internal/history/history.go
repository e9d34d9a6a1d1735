package history

import (
	"sort"
	"strings"
	"sync"

	"replybot/internal/llm"
)

const (
	RoleUser      = llm.RoleUser
	RoleAssistant = llm.RoleAssistant
)

// Placeholder texts inserted by RepairAlternation.
const (
	PlaceholderUser      = "(no message)"
	PlaceholderAssistant = "(no reply)"
)

// Exchange is one turn of a conversation.
type Exchange struct {
	Role  string   `json:"role"`
	Parts []string `json:"parts"`
}

func (e Exchange) Text() string { return strings.Join(e.Parts, "\n") }

func (e Exchange) clone() Exchange {
	return Exchange{Role: e.Role, Parts: append([]string(nil), e.Parts...)}
}

// Store keeps the exchange log of every conversation and mirrors it to a
// snapshot file. Each conversation is expected to be mutated by a single
// worker at a time; the lock only guards the shared map and the snapshot.
type Store struct {
	mu            sync.RWMutex
	conversations map[string][]Exchange

	saveMu sync.Mutex
	path   string

	limit int
}

// NewStore creates an empty store. contextWindow is the number of exchange
// pairs kept per conversation.
func NewStore(path string, contextWindow int) *Store {
	if contextWindow < 1 {
		contextWindow = 1
	}
	return &Store{
		conversations: make(map[string][]Exchange),
		path:          path,
		limit:         2 * contextWindow,
	}
}

// Limit is the maximum number of exchanges kept per conversation.
func (s *Store) Limit() int { return s.limit }

func (s *Store) Append(id string, ex Exchange) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.conversations[id] = append(s.conversations[id], ex.clone())
}

func (s *Store) AppendUser(id, text string) {
	s.Append(id, Exchange{Role: RoleUser, Parts: []string{text}})
}

func (s *Store) AppendAssistant(id, text string) {
	s.Append(id, Exchange{Role: RoleAssistant, Parts: []string{text}})
}

// Trim enforces the length cap by dropping the oldest pairs. It returns the
// number of exchanges removed.
func (s *Store) Trim(id string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	before := len(s.conversations[id])
	s.conversations[id] = trim(s.conversations[id], s.limit)
	return before - len(s.conversations[id])
}

// RepairAlternation inserts placeholder turns so that no two consecutive
// exchanges share a role and the log starts with a user turn. It returns the
// number of placeholders inserted.
func (s *Store) RepairAlternation(id string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	before := len(s.conversations[id])
	s.conversations[id] = repair(s.conversations[id])
	return len(s.conversations[id]) - before
}

// Reset drops the conversation and persists the snapshot.
func (s *Store) Reset(id string) error {
	s.mu.Lock()
	delete(s.conversations, id)
	s.mu.Unlock()
	return s.Save()
}

// Get returns a copy of the conversation log.
func (s *Store) Get(id string) []Exchange {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return cloneAll(s.conversations[id])
}

// Recent returns a copy of the last n exchanges.
func (s *Store) Recent(id string, n int) []Exchange {
	s.mu.RLock()
	defer s.mu.RUnlock()
	es := s.conversations[id]
	if n >= 0 && len(es) > n {
		es = es[len(es)-n:]
	}
	return cloneAll(es)
}

func (s *Store) Len(id string) int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.conversations[id])
}

// Conversations lists the known conversation ids in sorted order.
func (s *Store) Conversations() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	ids := make([]string, 0, len(s.conversations))
	for id := range s.conversations {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// ToMessages converts exchanges into LLM chat messages.
func ToMessages(es []Exchange) []llm.Message {
	out := make([]llm.Message, 0, len(es))
	for _, e := range es {
		out = append(out, llm.Message{Role: e.Role, Content: e.Text()})
	}
	return out
}

func trim(es []Exchange, limit int) []Exchange {
	for len(es) > limit && len(es) >= 2 {
		es = es[2:]
	}
	// keep the backing array from growing without bound
	return append([]Exchange(nil), es...)
}

func repair(es []Exchange) []Exchange {
	if len(es) == 0 {
		return es
	}
	out := make([]Exchange, 0, len(es)+1)
	if es[0].Role == RoleAssistant {
		out = append(out, Exchange{Role: RoleUser, Parts: []string{PlaceholderUser}})
	}
	for i, e := range es {
		if i > 0 && es[i-1].Role == e.Role {
			out = append(out, placeholderFor(e.Role))
		}
		out = append(out, e)
	}
	return out
}

func placeholderFor(role string) Exchange {
	if role == RoleUser {
		return Exchange{Role: RoleAssistant, Parts: []string{PlaceholderAssistant}}
	}
	return Exchange{Role: RoleUser, Parts: []string{PlaceholderUser}}
}

func cloneAll(es []Exchange) []Exchange {
	out := make([]Exchange, 0, len(es))
	for _, e := range es {
		out = append(out, e.clone())
	}
	return out
}
