// Package policy holds the non-deterministic parts of the reply decision:
// which action to take, which emoji to use, whether to tag the sender and how
// long to pause before acting.
package policy

import (
	"fmt"
	"strings"
	"time"
)

type Action int

const (
	ActionIgnore Action = iota
	ActionReact
	ActionReply
)

func (a Action) String() string {
	switch a {
	case ActionReact:
		return "react"
	case ActionReply:
		return "reply"
	default:
		return "ignore"
	}
}

// Weights partitions [0,1): React first, then Reply, the remainder is Ignore.
type Weights struct {
	React float64
	Reply float64
}

func (w Weights) Validate() error {
	if w.React < 0 || w.Reply < 0 || w.React+w.Reply > 1 {
		return fmt.Errorf("weights react=%v reply=%v must be non-negative and sum to at most 1", w.React, w.Reply)
	}
	return nil
}

// Decide maps one uniform draw in [0,1) to an action.
func Decide(w Weights, draw float64) Action {
	switch {
	case draw < w.React:
		return ActionReact
	case draw < w.React+w.Reply:
		return ActionReply
	default:
		return ActionIgnore
	}
}

// Addressed reports whether a message explicitly targets the bot: it names
// the bot (case-insensitively) or carries an attachment.
func Addressed(body string, hasAttachments bool, names ...string) bool {
	if hasAttachments {
		return true
	}
	lower := strings.ToLower(body)
	for _, n := range names {
		n = strings.ToLower(strings.TrimSpace(n))
		if n != "" && strings.Contains(lower, n) {
			return true
		}
	}
	return false
}

type Config struct {
	Weights          Weights
	Emojis           []string
	TagProbability   float64
	ForceTagInGroups bool

	ReactBase   time.Duration
	ReactJitter time.Duration

	TypingBase    time.Duration
	TypingJitter  time.Duration
	TypingPerChar time.Duration
	TypingMax     time.Duration
}

type Policy struct {
	cfg Config
	rnd Rand
}

func New(cfg Config, rnd Rand) (*Policy, error) {
	if err := cfg.Weights.Validate(); err != nil {
		return nil, err
	}
	if cfg.Weights.React > 0 && len(cfg.Emojis) == 0 {
		return nil, fmt.Errorf("reactions enabled without an emoji set")
	}
	if rnd == nil {
		rnd = NewRand(0)
	}
	return &Policy{cfg: cfg, rnd: rnd}, nil
}

// NextAction draws the action for a message that should be answered.
func (p *Policy) NextAction() Action {
	return Decide(p.cfg.Weights, p.rnd.Float64())
}

// CanReact reports whether an emoji set is configured.
func (p *Policy) CanReact() bool { return len(p.cfg.Emojis) > 0 }

// Emoji picks a reaction uniformly from the configured set.
func (p *Policy) Emoji() string {
	if len(p.cfg.Emojis) == 0 {
		return ""
	}
	return p.cfg.Emojis[p.rnd.IntN(len(p.cfg.Emojis))]
}

// ShouldTag decides whether the reply mentions the original sender. Group
// conversations can force the tag so replies stay attributable.
func (p *Policy) ShouldTag(isGroup bool) bool {
	if isGroup && p.cfg.ForceTagInGroups {
		return true
	}
	return p.rnd.Float64() < p.cfg.TagProbability
}

// ReactDelay is the pause before a reaction is attached.
func (p *Policy) ReactDelay() time.Duration {
	return p.cfg.ReactBase + Uniform(p.rnd, 0, p.cfg.ReactJitter)
}

// TypingDelay grows with the reply length and is capped at TypingMax when
// a cap is configured.
func (p *Policy) TypingDelay(replyLen int) time.Duration {
	d := p.cfg.TypingBase + time.Duration(replyLen)*p.cfg.TypingPerChar + Uniform(p.rnd, 0, p.cfg.TypingJitter)
	if p.cfg.TypingMax > 0 && d > p.cfg.TypingMax {
		d = p.cfg.TypingMax
	}
	return d
}
