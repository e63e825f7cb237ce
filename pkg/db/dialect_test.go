package db

import "testing"

func TestDialectSelectsDriver(t *testing.T) {
	cases := []struct {
		name    string
		cfg     Config
		want    string
		wantErr bool
	}{
		{name: "postgres", cfg: Config{Type: "postgres", Host: "localhost", Port: "5432"}, want: "postgres"},
		{name: "sqlite", cfg: Config{Type: "sqlite", Name: "file::memory:"}, want: "sqlite"},
		{name: "mysql unsupported", cfg: Config{Type: "mysql"}, wantErr: true},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			dialector, err := Dialect(tc.cfg)
			if tc.wantErr {
				if err == nil {
					t.Fatalf("expected error for %q", tc.cfg.Type)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if dialector.Name() != tc.want {
				t.Fatalf("expected dialect %q, got %q", tc.want, dialector.Name())
			}
		})
	}
}
