package db

import "testing"

func TestMigrateURL(t *testing.T) {
	tests := []struct {
		in      string
		want    string
		wantErr bool
	}{
		{"postgres://u:p@localhost:5432/hostel?sslmode=disable", "pgx5://u:p@localhost:5432/hostel?sslmode=disable", false},
		{"postgresql://u@db/hostel", "pgx5://u@db/hostel", false},
		{"mysql://u@db/hostel", "", true},
	}
	for _, tt := range tests {
		got, err := migrateURL(tt.in)
		if (err != nil) != tt.wantErr {
			t.Errorf("migrateURL(%q) err = %v", tt.in, err)
			continue
		}
		if got != tt.want {
			t.Errorf("migrateURL(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestParseVersion(t *testing.T) {
	if v, err := parseVersion("0002_audit.sql"); err != nil || v != 2 {
		t.Errorf("parseVersion = %d, %v", v, err)
	}
	if _, err := parseVersion("audit.sql"); err == nil {
		t.Error("expected error for missing prefix")
	}
}
