// Package safety guards what tools may do with the data they are pointed at.
package safety

import (
	"encoding/json"
	"strings"
	"unicode"
)

// ToolError is a machine-readable error body for surfacing back to the agent as JSON.
type ToolError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// Error returns a compact, single-line JSON string to keep tool_result payloads small.
func (e ToolError) Error() string {
	b, _ := json.Marshal(e)
	return string(b)
}

// Error codes returned by ValidateReadOnlySQL.
const (
	CodeEmptyQuery         = "ERR_EMPTY_QUERY"
	CodeMultipleStatements = "ERR_MULTIPLE_STATEMENTS"
	CodeNotReadOnly        = "ERR_NOT_READ_ONLY"
	CodeUnterminated       = "ERR_UNTERMINATED_LITERAL"
)

var readOnlyLeaders = map[string]bool{
	"SELECT":  true,
	"WITH":    true,
	"EXPLAIN": true,
	"VALUES":  true,
}

var writeKeywords = map[string]bool{
	"INSERT": true, "UPDATE": true, "DELETE": true, "REPLACE": true, "UPSERT": true,
	"CREATE": true, "DROP": true, "ALTER": true, "TRUNCATE": true,
	"ATTACH": true, "DETACH": true, "PRAGMA": true, "VACUUM": true,
	"REINDEX": true, "ANALYZE": true, "GRANT": true, "REVOKE": true,
	"BEGIN": true, "COMMIT": true, "ROLLBACK": true, "SAVEPOINT": true, "RELEASE": true,
}

// ValidateReadOnlySQL accepts a single SELECT, WITH, EXPLAIN or VALUES
// statement containing no write keyword outside literals and comments. It
// returns a ToolError on violation. The executing connection should also be
// opened read-only; this check only shapes the error the model sees.
func ValidateReadOnlySQL(query string) error {
	words, statements, ok := scanSQL(query)
	if !ok {
		return ToolError{Code: CodeUnterminated, Message: "query has an unterminated string, identifier or comment"}
	}
	if len(words) == 0 {
		return ToolError{Code: CodeEmptyQuery, Message: "query is empty"}
	}
	if statements > 1 {
		return ToolError{Code: CodeMultipleStatements, Message: "only one statement per call is allowed"}
	}
	if !readOnlyLeaders[words[0]] {
		return ToolError{Code: CodeNotReadOnly, Message: "query must start with SELECT, WITH, EXPLAIN or VALUES"}
	}
	for _, w := range words {
		if writeKeywords[w] {
			return ToolError{Code: CodeNotReadOnly, Message: "query contains write keyword " + w}
		}
	}
	return nil
}

// scanSQL returns the upper-cased bare words outside literals and comments
// and the number of non-empty statements.
func scanSQL(q string) (words []string, statements int, ok bool) {
	var (
		word      strings.Builder
		sawTokens bool
	)
	endWord := func() {
		if word.Len() > 0 {
			words = append(words, strings.ToUpper(word.String()))
			word.Reset()
		}
	}
	rs := []rune(q)
	for i := 0; i < len(rs); i++ {
		r := rs[i]
		switch {
		case r == '-' && i+1 < len(rs) && rs[i+1] == '-':
			endWord()
			for i < len(rs) && rs[i] != '\n' {
				i++
			}
		case r == '/' && i+1 < len(rs) && rs[i+1] == '*':
			endWord()
			j := i + 2
			for ; j+1 < len(rs); j++ {
				if rs[j] == '*' && rs[j+1] == '/' {
					break
				}
			}
			if j+1 >= len(rs) {
				return nil, 0, false
			}
			i = j + 1
		case r == '\'' || r == '"' || r == '`' || r == '[':
			endWord()
			closer := r
			if r == '[' {
				closer = ']'
			}
			j := i + 1
			for ; j < len(rs); j++ {
				if rs[j] == closer {
					// Doubled quote is an escaped quote.
					if closer != ']' && j+1 < len(rs) && rs[j+1] == closer {
						j++
						continue
					}
					break
				}
			}
			if j >= len(rs) {
				return nil, 0, false
			}
			i = j
			sawTokens = true
		case r == ';':
			endWord()
			if sawTokens {
				statements++
				sawTokens = false
			}
		case unicode.IsLetter(r) || r == '_' || (word.Len() > 0 && unicode.IsDigit(r)):
			word.WriteRune(r)
			sawTokens = true
		default:
			endWord()
			if !unicode.IsSpace(r) {
				sawTokens = true
			}
		}
	}
	endWord()
	if sawTokens {
		statements++
	}
	return words, statements, true
}
