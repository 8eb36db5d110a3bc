package store

import (
	"database/sql"
	"errors"
	"fmt"
	"strings"
)

// createSQL reads the original CREATE statement of the table from the engine
// catalog. The table may be qualified with an attached alias.
func (h *Handle) createSQL(table string) (string, error) {
	master, name := "sqlite_master", table
	if alias, bare, ok := strings.Cut(table, "."); ok {
		master, name = alias+".sqlite_master", bare
	}

	var create string
	err := h.db.QueryRow("SELECT sql FROM "+master+" WHERE type = 'table' AND name = ?", name).Scan(&create)
	if errors.Is(err, sql.ErrNoRows) {
		return "", fmt.Errorf("no such table %s", table)
	}
	if err != nil {
		return "", fmt.Errorf("can't read create statement for %s: %w", table, err)
	}
	return create, nil
}

// cutColumnDef rebuilds a CREATE statement without the definition of the
// given column. Definitions are matched on their leading identifier, not by
// substring, so dropping "id" leaves "id_long integer" alone. Only the first
// matching definition goes, table-level constraints naming the column stay
// and it is on the engine to reject the recreate if they dangle.
func cutColumnDef(create, column string) (string, error) {
	open := strings.Index(create, "(")
	closing := strings.LastIndex(create, ")")
	if open < 0 || closing < open {
		return "", fmt.Errorf("malformed create statement %q", create)
	}

	defs := splitDefs(create[open+1 : closing])
	kept := make([]string, 0, len(defs))
	found := false
	want := strings.ToLower(column)
	for _, def := range defs {
		if !found && leadIdent(def) == want {
			found = true
			continue
		}
		kept = append(kept, strings.TrimSpace(def))
	}
	if !found {
		return "", fmt.Errorf("create statement defines no column %s: %w", column, ErrNoColumn)
	}
	if len(kept) == 0 {
		return "", fmt.Errorf("create statement keeps no definitions without %s", column)
	}
	return create[:open+1] + strings.Join(kept, ", ") + create[closing:], nil
}

// splitDefs splits the body of a CREATE statement into its top-level
// definitions: commas inside parens, quotes or brackets don't count.
func splitDefs(body string) []string {
	var defs []string
	var quote byte
	depth, start := 0, 0
	for i := 0; i < len(body); i++ {
		c := body[i]
		switch {
		case quote != 0:
			if c == quote {
				// a doubled quote is an escape, not a terminator
				if (quote == '\'' || quote == '"') && i+1 < len(body) && body[i+1] == quote {
					i++
					continue
				}
				quote = 0
			}
		case c == '\'' || c == '"' || c == '`':
			quote = c
		case c == '[':
			quote = ']'
		case c == '(':
			depth++
		case c == ')':
			depth--
		case c == ',' && depth == 0:
			defs = append(defs, body[start:i])
			start = i + 1
		}
	}
	return append(defs, body[start:])
}

// leadIdent extracts the leading identifier of a definition, unquoted and
// lowercased. Empty result for definitions not starting with an identifier.
func leadIdent(def string) string {
	def = strings.TrimSpace(def)
	if def == "" {
		return ""
	}

	switch def[0] {
	case '"', '\'', '`':
		if end := strings.IndexByte(def[1:], def[0]); end >= 0 {
			return strings.ToLower(def[1 : 1+end])
		}
		return strings.ToLower(def[1:])
	case '[':
		if end := strings.IndexByte(def, ']'); end > 0 {
			return strings.ToLower(def[1:end])
		}
		return strings.ToLower(def[1:])
	}

	end := 0
	for end < len(def) {
		c := def[end]
		if c == '_' || c >= 'a' && c <= 'z' || c >= 'A' && c <= 'Z' || c >= '0' && c <= '9' {
			end++
			continue
		}
		break
	}
	return strings.ToLower(def[:end])
}
