// Package sqlguard enforces the read-only policy applied to every statement a
// relational adapter sends to a source.
package sqlguard

import (
	"errors"
	"fmt"
	"strings"
	"unicode"

	"github.com/ekaya-inc/ekaya-metagraph/pkg/apperrors"
)

var (
	// ErrMultipleStatements indicates the query contains multiple SQL statements.
	ErrMultipleStatements = errors.New("multiple SQL statements not allowed")
	// ErrEmptyStatement indicates the query has no executable text.
	ErrEmptyStatement = errors.New("empty statement")
)

// allowedVerbs are the statement verbs a read-only adapter accepts.
var allowedVerbs = map[string]bool{
	"select":   true,
	"with":     true,
	"explain":  true,
	"show":     true,
	"describe": true,
	"desc":     true,
}

// writeKeywords are rejected anywhere outside literals, identifiers and comments.
// "into" covers SELECT INTO and INTO OUTFILE.
var writeKeywords = map[string]bool{
	"insert":   true,
	"update":   true,
	"delete":   true,
	"merge":    true,
	"upsert":   true,
	"truncate": true,
	"drop":     true,
	"alter":    true,
	"create":   true,
	"grant":    true,
	"revoke":   true,
	"into":     true,
	"call":     true,
	"exec":     true,
	"execute":  true,
	"copy":     true,
	"lock":     true,
	"attach":   true,
	"detach":   true,
	"rename":   true,
}

// Policy describes the lexical rules of a dialect that matter to the guard.
type Policy struct {
	BacktickIdentifiers bool // MySQL `ident`
	BracketIdentifiers  bool // SQL Server [ident]
	BackslashEscapes    bool // MySQL '\'' inside string literals
	HashComments        bool // MySQL # comment
}

// Standard is the policy for dialects that only quote identifiers with double quotes.
var Standard = Policy{}

// ValidateReadOnly checks a statement and its parameters against the
// read-only policy and returns the statement with any trailing semicolon
// removed. Every rejection wraps apperrors.ErrUnsafeQuery.
func (p Policy) ValidateReadOnly(query string, params ...any) (string, error) {
	normalized := stripTrailingSemicolon(strings.TrimSpace(query))

	code := p.codeOnly(normalized)
	if strings.TrimSpace(code) == "" {
		return "", fmt.Errorf("%w: %w", apperrors.ErrUnsafeQuery, ErrEmptyStatement)
	}
	if strings.ContainsRune(code, ';') {
		return "", fmt.Errorf("%w: %w", apperrors.ErrUnsafeQuery, ErrMultipleStatements)
	}

	words := keywords(code)
	if len(words) == 0 || !allowedVerbs[words[0]] {
		first := ""
		if len(words) > 0 {
			first = words[0]
		}
		return "", fmt.Errorf("%w: statement verb %q is not a read verb", apperrors.ErrUnsafeQuery, first)
	}
	for _, w := range words {
		if writeKeywords[w] {
			return "", fmt.Errorf("%w: data-modifying keyword %q", apperrors.ErrUnsafeQuery, strings.ToUpper(w))
		}
	}

	if err := checkParameters(params); err != nil {
		return "", err
	}

	return normalized, nil
}

// codeOnly returns the statement with string literals, quoted identifiers
// and comments blanked out, leaving only text the server parses as code.
func (p Policy) codeOnly(sqlQuery string) string {
	const (
		stateNormal = iota
		stateSingleQuote
		stateDoubleQuote
		stateBacktick
		stateBracket
		stateLineComment
		stateBlockComment
	)

	var b strings.Builder
	b.Grow(len(sqlQuery))

	runes := []rune(sqlQuery)
	state := stateNormal

	for i := 0; i < len(runes); i++ {
		char := runes[i]
		next := rune(0)
		if i+1 < len(runes) {
			next = runes[i+1]
		}

		switch state {
		case stateNormal:
			switch {
			case char == '\'':
				state = stateSingleQuote
				b.WriteRune(' ')
			case char == '"':
				state = stateDoubleQuote
				b.WriteRune(' ')
			case char == '`' && p.BacktickIdentifiers:
				state = stateBacktick
				b.WriteRune(' ')
			case char == '[' && p.BracketIdentifiers:
				state = stateBracket
				b.WriteRune(' ')
			case char == '-' && next == '-':
				state = stateLineComment
				i++
			case char == '#' && p.HashComments:
				state = stateLineComment
			case char == '/' && next == '*':
				// MySQL executes /*! ... */ bodies, so they stay visible.
				if p.BacktickIdentifiers && i+2 < len(runes) && runes[i+2] == '!' {
					b.WriteRune(' ')
					i += 2
					continue
				}
				state = stateBlockComment
				i++
			default:
				b.WriteRune(char)
			}
		case stateSingleQuote:
			if char == '\\' && p.BackslashEscapes {
				i++
				continue
			}
			// A doubled '' exits and immediately re-enters the literal.
			if char == '\'' {
				state = stateNormal
			}
		case stateDoubleQuote:
			if char == '"' {
				state = stateNormal
			}
		case stateBacktick:
			if char == '`' {
				state = stateNormal
			}
		case stateBracket:
			if char == ']' && next == ']' {
				i++
				continue
			}
			if char == ']' {
				state = stateNormal
			}
		case stateLineComment:
			if char == '\n' {
				state = stateNormal
				b.WriteRune('\n')
			}
		case stateBlockComment:
			if char == '*' && next == '/' {
				state = stateNormal
				b.WriteRune(' ')
				i++
			}
		}
	}

	return b.String()
}

// keywords splits code into lower-cased words.
func keywords(code string) []string {
	return strings.FieldsFunc(strings.ToLower(code), func(r rune) bool {
		return !(unicode.IsLetter(r) || unicode.IsDigit(r) || r == '_' || r == '$' || r == '@')
	})
}

// stripTrailingSemicolon removes a trailing semicolon and any whitespace around it.
func stripTrailingSemicolon(sqlQuery string) string {
	sqlQuery = strings.TrimRight(sqlQuery, " \t\n\r")
	if strings.HasSuffix(sqlQuery, ";") {
		sqlQuery = strings.TrimSuffix(sqlQuery, ";")
		sqlQuery = strings.TrimRight(sqlQuery, " \t\n\r")
	}
	return sqlQuery
}
