package storage

import "testing"

func TestParseDSN(t *testing.T) {
	tests := []struct {
		name    string
		raw     string
		want    DSN
		wantErr bool
	}{
		{"bare path", "data/creds", DSN{Kind: KindBadger, Path: "data/creds"}, false},
		{"badger", "badger:///var/lib/pairmesh", DSN{Kind: KindBadger, Path: "/var/lib/pairmesh"}, false},
		{"sqlite", "sqlite://creds.db", DSN{Kind: KindSQLite, Path: "creds.db"}, false},
		{"upper scheme", "SQLITE://creds.db", DSN{Kind: KindSQLite, Path: "creds.db"}, false},
		{"memory", "memory://", DSN{Kind: KindMemory}, false},
		{"empty", "  ", DSN{}, true},
		{"sqlite without path", "sqlite://", DSN{}, true},
		{"unknown scheme", "mongodb://localhost", DSN{}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseDSN(tt.raw)
			if (err != nil) != tt.wantErr {
				t.Fatalf("ParseDSN(%q) error = %v, wantErr %v", tt.raw, err, tt.wantErr)
			}
			if got != tt.want {
				t.Errorf("ParseDSN(%q) = %+v, want %+v", tt.raw, got, tt.want)
			}
		})
	}
}
