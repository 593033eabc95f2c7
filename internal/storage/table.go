package storage

import (
	"fmt"
	"regexp"
)

// DefaultTable is the table name used by the SQL backends.
const DefaultTable = "prices"

var identRe = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)

// TableName validates a SQL table identifier, falling back to DefaultTable.
func TableName(name string) (string, error) {
	if name == "" {
		return DefaultTable, nil
	}
	if !identRe.MatchString(name) {
		return "", fmt.Errorf("invalid table name %q", name)
	}
	return name, nil
}
