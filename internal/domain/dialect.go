package domain

import (
	"fmt"
	"strings"
)

// Dialect selects the query language the model is asked to produce.
type Dialect string

const (
	DialectDocument   Dialect = "document"
	DialectRelational Dialect = "relational"
)

// ParseDialect accepts the canonical names plus the common store names.
func ParseDialect(s string) (Dialect, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "document", "mongodb", "mongo", "nosql":
		return DialectDocument, nil
	case "relational", "sql", "postgres", "postgresql", "mysql":
		return DialectRelational, nil
	default:
		return "", fmt.Errorf("domain: unknown dialect %q", s)
	}
}

// Mode selects the instruction template used for a request.
type Mode int

const (
	ModeChat Mode = iota
	ModeQueryGeneration
)

func (m Mode) String() string {
	switch m {
	case ModeChat:
		return "chat"
	case ModeQueryGeneration:
		return "query-generation"
	default:
		return fmt.Sprintf("mode(%d)", int(m))
	}
}
