package schema

import (
	"errors"
	"strings"
	"testing"
)

func TestMigrationsShipped(t *testing.T) {
	ms := Migrations()
	if err := Validate(ms); err != nil {
		t.Fatalf("shipped migrations are invalid: %v", err)
	}

	want := []struct {
		version     int
		description string
		table       string
	}{
		{1, "create_projects_table", "CREATE TABLE projects"},
		{2, "create_tasks_table", "CREATE TABLE tasks"},
	}
	if len(ms) != len(want) {
		t.Fatalf("got %d migrations, want %d", len(ms), len(want))
	}
	for i, w := range want {
		if ms[i].Version != w.version {
			t.Errorf("migration %d: version = %d, want %d", i, ms[i].Version, w.version)
		}
		if ms[i].Description != w.description {
			t.Errorf("migration %d: description = %q, want %q", i, ms[i].Description, w.description)
		}
		if ms[i].Kind != KindUp {
			t.Errorf("migration %d: kind = %s, want up", i, ms[i].Kind)
		}
		if !strings.Contains(ms[i].SQL, w.table) {
			t.Errorf("migration %d: sql does not contain %q", i, w.table)
		}
	}
}

func TestMigrationsReturnsCopy(t *testing.T) {
	ms := Migrations()
	ms[0].Description = "edited"
	ms[0].SQL = ""

	again := Migrations()
	if again[0].Description != "create_projects_table" {
		t.Fatalf("shipped registry was mutated through the returned slice: %q", again[0].Description)
	}
}

func TestValidate(t *testing.T) {
	up := func(v int, d string) Migration {
		return Migration{Version: v, Description: d, Kind: KindUp, SQL: "SELECT 1;"}
	}

	tests := []struct {
		name    string
		input   []Migration
		wantErr error
	}{
		{
			name:  "empty list",
			input: nil,
		},
		{
			name:  "gaps allowed",
			input: []Migration{up(1, "a"), up(5, "b"), up(9, "c")},
		},
		{
			name:    "version zero",
			input:   []Migration{up(0, "a")},
			wantErr: ErrInvalidVersion,
		},
		{
			name:    "duplicate version",
			input:   []Migration{up(1, "a"), up(1, "b")},
			wantErr: ErrVersionOrder,
		},
		{
			name:    "decreasing version",
			input:   []Migration{up(2, "a"), up(1, "b")},
			wantErr: ErrVersionOrder,
		},
		{
			name:    "blank description",
			input:   []Migration{up(1, "  ")},
			wantErr: ErrEmptyDescription,
		},
		{
			name:    "blank statement",
			input:   []Migration{{Version: 1, Description: "a", Kind: KindUp, SQL: "\n\t"}},
			wantErr: ErrEmptyStatement,
		},
		{
			name:    "down migration",
			input:   []Migration{{Version: 1, Description: "a", Kind: KindDown, SQL: "DROP TABLE x;"}},
			wantErr: ErrUnsupportedKind,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := Validate(tt.input)
			if tt.wantErr == nil {
				if err != nil {
					t.Fatalf("unexpected error: %v", err)
				}
				return
			}
			if !errors.Is(err, tt.wantErr) {
				t.Fatalf("got %v, want %v", err, tt.wantErr)
			}
		})
	}
}

func TestLatestAndPending(t *testing.T) {
	ms := Migrations()

	if got := Latest(ms); got != 2 {
		t.Errorf("Latest = %d, want 2", got)
	}
	if got := Latest(nil); got != 0 {
		t.Errorf("Latest(nil) = %d, want 0", got)
	}

	tests := []struct {
		watermark int
		want      []int
	}{
		{0, []int{1, 2}},
		{1, []int{2}},
		{2, nil},
		{7, nil},
	}
	for _, tt := range tests {
		pending := Pending(ms, tt.watermark)
		var got []int
		for _, m := range pending {
			got = append(got, m.Version)
		}
		if len(got) != len(tt.want) {
			t.Errorf("Pending(%d) = %v, want %v", tt.watermark, got, tt.want)
			continue
		}
		for i := range got {
			if got[i] != tt.want[i] {
				t.Errorf("Pending(%d) = %v, want %v", tt.watermark, got, tt.want)
				break
			}
		}
	}
}

func TestFind(t *testing.T) {
	ms := Migrations()
	m, ok := Find(ms, 2)
	if !ok || m.Description != "create_tasks_table" {
		t.Fatalf("Find(2) = %+v, %v", m, ok)
	}
	if _, ok := Find(ms, 3); ok {
		t.Fatal("Find(3) should miss")
	}
}

func TestChecksum(t *testing.T) {
	ms := Migrations()
	a, b := ms[0].Checksum(), ms[1].Checksum()
	if len(a) != 64 {
		t.Fatalf("checksum %q is not hex sha256", a)
	}
	if a == b {
		t.Errorf("distinct statements share checksum %s", a)
	}
	if got := Migrations()[0].Checksum(); got != a {
		t.Errorf("checksum not stable: %s then %s", a, got)
	}

	edited := ms[0]
	edited.SQL = "CREATE TABLE projects (id INTEGER PRIMARY KEY, title TEXT);"
	if edited.Checksum() == a {
		t.Error("edited statement kept its checksum")
	}
	renamed := ms[0]
	renamed.Description = "renamed"
	if renamed.Checksum() != a {
		t.Error("checksum must depend only on the statement")
	}
}
