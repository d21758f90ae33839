package engine

import (
	"regexp"
	"strings"

	"capgen/internal/capability"
)

var quotedRe = regexp.MustCompile(`"([^"]+)"|'([^']+)'`)

// quotedValues extracts quoted phrases from a message, in order.
func quotedValues(message string) []string {
	var out []string
	for _, m := range quotedRe.FindAllStringSubmatch(message, -1) {
		if m[1] != "" {
			out = append(out, m[1])
		} else if m[2] != "" {
			out = append(out, m[2])
		}
	}
	return out
}

// seedValues pre-binds slots from phrases the user already quoted in the
// request ("add a medicine called 'Claritin'"), assigned in slot order.
// Anything not quoted stays unbound and is asked for explicitly.
func seedValues(target *capability.Capability, message string) map[string]string {
	quoted := quotedValues(message)
	if len(quoted) == 0 || len(target.Slots) == 0 {
		return nil
	}
	values := make(map[string]string)
	for i, slot := range target.Slots {
		if i >= len(quoted) {
			break
		}
		values[slot.Name] = quoted[i]
	}
	return values
}

// slotValue interprets a reply to a slot question: a quoted phrase wins,
// otherwise the whole trimmed message is the value.
func slotValue(message string) string {
	if quoted := quotedValues(message); len(quoted) > 0 {
		return quoted[0]
	}
	return strings.TrimSpace(message)
}
