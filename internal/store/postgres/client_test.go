package postgres

import "testing"

func TestOptionsDSN(t *testing.T) {
	tests := []struct {
		name string
		opts Options
		want string
	}{
		{
			name: "explicit dsn wins",
			opts: Options{DSN: "postgres://u:p@db:5432/quoter", Host: "ignored"},
			want: "postgres://u:p@db:5432/quoter",
		},
		{
			name: "built from parts with defaults",
			opts: Options{Host: "localhost", Database: "quoter", User: "u", Password: "p"},
			want: "postgres://u:p@localhost:5432/quoter?sslmode=disable",
		},
		{
			name: "custom port and sslmode",
			opts: Options{Host: "db", Port: 6432, Database: "quoter", User: "u", Password: "p", SSLMode: "require"},
			want: "postgres://u:p@db:6432/quoter?sslmode=require",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.opts.dsn(); got != tt.want {
				t.Fatalf("dsn() = %q, want %q", got, tt.want)
			}
		})
	}
}
