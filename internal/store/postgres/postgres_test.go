package postgres

import (
	"reflect"
	"testing"
	"time"

	"github.com/alanyoungcy/spikebot/internal/domain"
)

func TestConnString(t *testing.T) {
	tests := []struct {
		name string
		cfg  ClientConfig
		want string
	}{
		{
			name: "explicit dsn wins",
			cfg:  ClientConfig{DSN: "postgres://u@db/x", Host: "ignored"},
			want: "postgres://u@db/x",
		},
		{
			name: "defaults",
			cfg:  ClientConfig{Host: "localhost", Database: "spikebot", User: "bot", Password: "pw"},
			want: "postgres://bot:pw@localhost:5432/spikebot?sslmode=disable",
		},
		{
			name: "custom port and sslmode",
			cfg:  ClientConfig{Host: "db", Port: 6543, Database: "d", User: "u", Password: "p", SSLMode: "require"},
			want: "postgres://u:p@db:6543/d?sslmode=require",
		},
		{
			name: "password is escaped",
			cfg:  ClientConfig{Host: "db", Database: "d", User: "u", Password: "p@ss word"},
			want: "postgres://u:p%40ss%20word@db:5432/d?sslmode=disable",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.cfg.connString(); got != tt.want {
				t.Errorf("connString() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestLoadMigrations(t *testing.T) {
	ms, err := loadMigrations()
	if err != nil {
		t.Fatal(err)
	}
	var names []string
	for _, m := range ms {
		if m.sql == "" {
			t.Errorf("%s is empty", m.name)
		}
		names = append(names, m.name)
	}
	want := []string{"001_alerts.sql", "002_subscribers.sql", "003_audit_log.sql"}
	if !reflect.DeepEqual(names, want) {
		t.Errorf("migrations = %v, want %v", names, want)
	}
}

func TestListQuery(t *testing.T) {
	since := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	until := since.Add(24 * time.Hour)

	tests := []struct {
		name      string
		opts      domain.ListOpts
		wantQuery string
		wantArgs  []any
	}{
		{
			name:      "no filters",
			wantQuery: "SELECT * FROM t WHERE 1=1 ORDER BY created_at DESC",
		},
		{
			name:      "all filters",
			opts:      domain.ListOpts{Since: &since, Until: &until, Limit: 10, Offset: 20},
			wantQuery: "SELECT * FROM t WHERE 1=1 AND created_at >= $1 AND created_at <= $2 ORDER BY created_at DESC LIMIT $3 OFFSET $4",
			wantArgs:  []any{since, until, 10, 20},
		},
		{
			name:      "limit only",
			opts:      domain.ListOpts{Limit: 5},
			wantQuery: "SELECT * FROM t WHERE 1=1 ORDER BY created_at DESC LIMIT $1",
			wantArgs:  []any{5},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			q, args := listQuery("SELECT * FROM t", "created_at", tt.opts)
			if q != tt.wantQuery {
				t.Errorf("query = %q\nwant    %q", q, tt.wantQuery)
			}
			if !reflect.DeepEqual(args, tt.wantArgs) {
				t.Errorf("args = %v, want %v", args, tt.wantArgs)
			}
		})
	}
}

func TestMigrationFilesOrdered(t *testing.T) {
	names, err := migrationFiles()
	if err != nil {
		t.Fatalf("migrationFiles: %v", err)
	}
	want := []string{"001_alerts.sql", "002_subscribers.sql", "003_audit_log.sql"}
	if !reflect.DeepEqual(names, want) {
		t.Errorf("migrationFiles() = %v, want %v", names, want)
	}
}
