package classify

import (
	"regexp"
	"strings"

	"github.com/ice-blockchain/go-rwsplit"
)

// HintKind is the kind of an inline routing marker.
type HintKind uint32

const (
	HintNone HintKind = iota
	HintMaster
	HintSlave
)

func (k HintKind) String() string {
	switch k {
	case HintMaster:
		return "master"
	case HintSlave:
		return "slave"
	default:
		return "none"
	}
}

// Hint is an inline routing marker. Replica is set only for SLAVE(name).
type Hint struct {
	Kind    HintKind
	Replica string
}

// RoutingType maps the hint to the routing type it forces.
func (h Hint) RoutingType() rwsplit.RoutingType {
	switch h.Kind {
	case HintMaster:
		return rwsplit.Master
	case HintSlave:
		return rwsplit.Slave
	default:
		return rwsplit.Auto
	}
}

var hintPattern = regexp.MustCompile(`(?i)/\*\s*(MASTER|SLAVE)\s*(?:\(\s*([^()\s]*)\s*\))?\s*\*/`)

// ParseHint returns the first routing marker of query.
func ParseHint(query string) Hint {
	// Cheap guard: every marker starts a block comment.
	if !strings.Contains(query, "/*") {
		return Hint{}
	}
	m := hintPattern.FindStringSubmatch(query)
	if m == nil {
		return Hint{}
	}
	if strings.EqualFold(m[1], "MASTER") {
		return Hint{Kind: HintMaster}
	}
	return Hint{Kind: HintSlave, Replica: m[2]}
}

// StripHints removes every routing marker from query.
func StripHints(query string) string {
	if !strings.Contains(query, "/*") {
		return query
	}
	return strings.TrimSpace(hintPattern.ReplaceAllString(query, ""))
}
