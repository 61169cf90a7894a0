package sqldb

import (
	"reflect"
	"testing"
)

func TestBindNamed(t *testing.T) {
	tests := []struct {
		name      string
		query     string
		params    []interface{}
		wantQuery string
		wantArgs  []interface{}
	}{
		{
			name:      "single placeholder",
			query:     "SELECT nom FROM clients WHERE id = @id",
			params:    []interface{}{7},
			wantQuery: "SELECT nom FROM clients WHERE id = ?",
			wantArgs:  []interface{}{7},
		},
		{
			name:      "placeholders bound in detection order",
			query:     "SELECT * FROM factures WHERE numero = @num OR client_id = @cid",
			params:    []interface{}{"F-2024-001", 3},
			wantQuery: "SELECT * FROM factures WHERE numero = ? OR client_id = ?",
			wantArgs:  []interface{}{"F-2024-001", 3},
		},
		{
			name:      "more placeholders than params leaves surplus untouched",
			query:     "SELECT * FROM clients WHERE nom = @nom AND ville = @ville",
			params:    []interface{}{"Atlas BTP"},
			wantQuery: "SELECT * FROM clients WHERE nom = ? AND ville = @ville",
			wantArgs:  []interface{}{"Atlas BTP"},
		},
		{
			name:      "no params",
			query:     "SELECT * FROM regions WHERE nom = @nom",
			params:    nil,
			wantQuery: "SELECT * FROM regions WHERE nom = @nom",
			wantArgs:  nil,
		},
		{
			name:      "no placeholders drops surplus params",
			query:     "SELECT COUNT(*) FROM factures",
			params:    []interface{}{1, 2},
			wantQuery: "SELECT COUNT(*) FROM factures",
			wantArgs:  []interface{}{},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			gotQuery, gotArgs := BindNamed(tt.query, tt.params)
			if gotQuery != tt.wantQuery {
				t.Errorf("query = %q, want %q", gotQuery, tt.wantQuery)
			}
			if len(gotArgs) != len(tt.wantArgs) {
				t.Fatalf("args = %v, want %v", gotArgs, tt.wantArgs)
			}
			if len(tt.wantArgs) > 0 && !reflect.DeepEqual(gotArgs, tt.wantArgs) {
				t.Errorf("args = %v, want %v", gotArgs, tt.wantArgs)
			}
		})
	}
}

func TestHasNamedParams(t *testing.T) {
	tests := []struct {
		name  string
		query string
		want  bool
	}{
		{
			name:  "bare placeholder",
			query: "SELECT nom FROM ArticleCiments WHERE nom LIKE @nom",
			want:  true,
		},
		{
			name:  "no placeholders",
			query: "SELECT nom FROM ArticleCiments WHERE nom LIKE '%CPJ45%'",
			want:  false,
		},
		{
			name:  "at-sign inside a string literal",
			query: "SELECT nom FROM clients WHERE email = 'contact@atlas.ma'",
			want:  false,
		},
		{
			name:  "placeholder next to a string literal",
			query: "SELECT nom FROM clients WHERE email = 'contact@atlas.ma' AND ville = @ville",
			want:  true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := HasNamedParams(tt.query); got != tt.want {
				t.Errorf("HasNamedParams(%q) = %v, want %v", tt.query, got, tt.want)
			}
		})
	}
}
