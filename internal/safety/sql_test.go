package safety_test

import (
	"errors"
	"testing"

	"github.com/petasbytes/toolstream/internal/safety"
)

func TestValidateReadOnlySQL(t *testing.T) {
	cases := []struct {
		name string
		sql  string
		code string // empty means allowed
	}{
		{"simple select", "SELECT * FROM users", ""},
		{"trailing semicolon", "select id from users;  ", ""},
		{"cte", "WITH t AS (SELECT 1) SELECT * FROM t", ""},
		{"explain", "EXPLAIN QUERY PLAN SELECT 1", ""},
		{"keyword inside literal", "SELECT 'drop table x; delete' AS s", ""},
		{"keyword inside quoted identifier", `SELECT "update" FROM t`, ""},
		{"keyword inside comment", "SELECT 1 -- then delete everything\n", ""},
		{"escaped quote", "SELECT 'it''s; fine'", ""},
		{"column named like keyword prefix", "SELECT updated_at, created FROM t", ""},
		{"empty", "   ", safety.CodeEmptyQuery},
		{"only comment", "/* nothing */", safety.CodeEmptyQuery},
		{"insert", "INSERT INTO t VALUES (1)", safety.CodeNotReadOnly},
		{"cte delete", "WITH x AS (SELECT 1) DELETE FROM t", safety.CodeNotReadOnly},
		{"pragma", "PRAGMA writable_schema=ON", safety.CodeNotReadOnly},
		{"stacked", "SELECT 1; DROP TABLE t", safety.CodeMultipleStatements},
		{"attach", "SELECT 1 FROM t WHERE 1 = (ATTACH 'x' AS y)", safety.CodeNotReadOnly},
		{"unterminated", "SELECT 'oops", safety.CodeUnterminated},
		{"unterminated comment", "SELECT 1 /* ", safety.CodeUnterminated},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			err := safety.ValidateReadOnlySQL(tc.sql)
			if tc.code == "" {
				if err != nil {
					t.Fatalf("expected allow, got %v", err)
				}
				return
			}
			var te safety.ToolError
			if !errors.As(err, &te) {
				t.Fatalf("expected ToolError %s, got %v", tc.code, err)
			}
			if te.Code != tc.code {
				t.Fatalf("code: got %s want %s", te.Code, tc.code)
			}
		})
	}
}

func TestToolError_JSON(t *testing.T) {
	err := safety.ToolError{Code: "ERR_X", Message: "m"}
	if got := err.Error(); got != `{"code":"ERR_X","message":"m"}` {
		t.Fatalf("unexpected: %s", got)
	}
}
