package dbutil

import "testing"

func TestRebind(t *testing.T) {
	tests := []struct {
		dialect Dialect
		in      string
		want    string
	}{
		{SQLite, "SELECT * FROM reports WHERE id = ?", "SELECT * FROM reports WHERE id = ?"},
		{Postgres, "SELECT * FROM reports WHERE id = ?", "SELECT * FROM reports WHERE id = $1"},
		{Postgres, "UPDATE t SET a = ?, b = ? WHERE id = ?", "UPDATE t SET a = $1, b = $2 WHERE id = $3"},
		{Postgres, "DELETE FROM reports", "DELETE FROM reports"},
	}
	for _, tt := range tests {
		if got := tt.dialect.Rebind(tt.in); got != tt.want {
			t.Errorf("%s.Rebind(%q) = %q, want %q", tt.dialect, tt.in, got, tt.want)
		}
	}
}
