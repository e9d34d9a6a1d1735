package policy

import (
	"strings"
	"unicode"
)

// Verdict is the closed result of a respond/ignore classification.
type Verdict int

const (
	VerdictUnknown Verdict = iota
	VerdictYes
	VerdictNo
)

func (v Verdict) String() string {
	switch v {
	case VerdictYes:
		return "yes"
	case VerdictNo:
		return "no"
	default:
		return "unknown"
	}
}

// firstWord returns the leading word of free model output, upper-cased and
// stripped of surrounding punctuation and markup.
func firstWord(s string) string {
	fields := strings.FieldsFunc(s, func(r rune) bool {
		return !unicode.IsLetter(r)
	})
	if len(fields) == 0 {
		return ""
	}
	return strings.ToUpper(fields[0])
}

// ParseVerdict maps classifier output to YES, NO or UNKNOWN.
func ParseVerdict(s string) Verdict {
	switch firstWord(s) {
	case "YES":
		return VerdictYes
	case "NO":
		return VerdictNo
	default:
		return VerdictUnknown
	}
}

// ParseActionVerdict maps MESSAGE, REACTION or IGNORE to an Action. The
// second result is false for anything else.
func ParseActionVerdict(s string) (Action, bool) {
	switch firstWord(s) {
	case "MESSAGE":
		return ActionReply, true
	case "REACTION":
		return ActionReact, true
	case "IGNORE":
		return ActionIgnore, true
	default:
		return ActionIgnore, false
	}
}
