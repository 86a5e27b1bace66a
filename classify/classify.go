// Package classify decides whether a SQL statement reads or writes and
// extracts inline routing hints.
//
// Hints are dialect independent block-comment markers that may appear
// anywhere in the statement, case-insensitive:
//
//	/*MASTER*/ SELECT ...          -- force the primary
//	/*SLAVE*/ SELECT ...           -- force a replica
//	SELECT /*SLAVE(replica2)*/ ... -- force the replica named replica2
//
// Use StripHints before the statement reaches the driver.
package classify

import (
	"regexp"
	"strings"

	"github.com/ice-blockchain/go-rwsplit"
)

// Classification is the result of looking at the statement text.
type Classification uint32

const (
	Unknown Classification = iota // Pass through, no routing decision.
	Read
	Write
)

func (c Classification) String() string {
	switch c {
	case Read:
		return "read"
	case Write:
		return "write"
	default:
		return "unknown"
	}
}

// RoutingType maps Write to Master, Read to Slave and Unknown to Auto.
func (c Classification) RoutingType() rwsplit.RoutingType {
	switch c {
	case Read:
		return rwsplit.Slave
	case Write:
		return rwsplit.Master
	default:
		return rwsplit.Auto
	}
}

// CommandKind is the structural kind of the call site when the caller knows
// it (an Exec is a write even if its text is not recognised).
type CommandKind uint32

const (
	KindUnknown CommandKind = iota
	KindRead
	KindWrite
)

var writeKeywords = map[string]struct{}{
	"INSERT":   {},
	"UPDATE":   {},
	"DELETE":   {},
	"REPLACE":  {},
	"CREATE":   {},
	"ALTER":    {},
	"DROP":     {},
	"TRUNCATE": {},
	"GRANT":    {},
	"REVOKE":   {},
	"LOCK":     {},
	"UNLOCK":   {},
	"CALL":     {},
	"MERGE":    {},
	"UPSERT":   {},
}

var readKeywords = map[string]struct{}{
	"SELECT":   {},
	"SHOW":     {},
	"DESCRIBE": {},
	"EXPLAIN":  {},
}

// Locking reads serialize against writers and must see the latest committed
// state.
var lockingRead = regexp.MustCompile(
	`(?i)\bFOR\s+(?:NO\s+KEY\s+)?UPDATE\b|\bFOR\s+(?:KEY\s+)?SHARE\b|\bLOCK\s+IN\s+SHARE\s+MODE\b`)

// Classify returns the classification of query together with its routing
// hint. The hint is independent of the classification and takes precedence
// over it when routing.
func Classify(query string, kind CommandKind) (Classification, Hint) {
	hint := ParseHint(query)
	return classifyText(query, kind), hint
}

// classifyText reads '#' both as a MySQL line comment and as the
// PostgreSQL operator. A write under either reading wins, so a locking read
// never reaches a replica because of the dialect.
func classifyText(query string, kind CommandKind) Classification {
	hashComment := classifyNormalized(normalize(query, true))
	hashOperator := classifyNormalized(normalize(query, false))

	switch {
	case hashComment == Write || hashOperator == Write:
		return Write
	case hashComment == Read || hashOperator == Read:
		return Read
	}

	switch kind {
	case KindRead:
		return Read
	case KindWrite:
		return Write
	}
	return Unknown
}

func classifyNormalized(normalized string) Classification {
	if lockingRead.MatchString(normalized) {
		return Write
	}

	token := strings.ToUpper(firstToken(normalized))
	if _, ok := writeKeywords[token]; ok {
		return Write
	}
	if _, ok := readKeywords[token]; ok {
		return Read
	}
	return Unknown
}

func firstToken(s string) string {
	s = strings.TrimLeft(s, " \t\r\n\f\v(")
	end := strings.IndexFunc(s, func(r rune) bool {
		switch r {
		case ' ', '\t', '\r', '\n', '\f', '\v', '(', ';':
			return true
		}
		return false
	})
	if end < 0 {
		return s
	}
	return s[:end]
}

// normalize removes comments and blanks out string literal bodies so that
// keywords hidden in either do not affect classification. hashComments
// makes '#' start a line comment.
func normalize(query string, hashComments bool) string {
	var b strings.Builder
	b.Grow(len(query))

	for i := 0; i < len(query); {
		c := query[i]
		switch {
		case c == '/' && i+1 < len(query) && query[i+1] == '*':
			end := strings.Index(query[i+2:], "*/")
			if end < 0 {
				return b.String()
			}
			b.WriteByte(' ')
			i += end + 4
		case c == '-' && i+1 < len(query) && query[i+1] == '-', c == '#' && hashComments:
			end := strings.IndexByte(query[i:], '\n')
			if end < 0 {
				return b.String()
			}
			b.WriteByte(' ')
			i += end + 1
		case c == '\'' || c == '"' || c == '`':
			b.WriteByte(c)
			i++
			for i < len(query) {
				if query[i] == '\\' && c != '`' {
					i += 2
					continue
				}
				if query[i] == c {
					// Doubled quote is an escaped quote.
					if i+1 < len(query) && query[i+1] == c {
						i += 2
						continue
					}
					break
				}
				i++
			}
			if i < len(query) {
				b.WriteByte(c)
				i++
			}
		default:
			b.WriteByte(c)
			i++
		}
	}
	return b.String()
}
