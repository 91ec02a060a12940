package backend

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"finsight/internal/config"
	"finsight/internal/ledger"
)

func TestFromAppConfig(t *testing.T) {
	tests := []struct {
		name    string
		cfg     *config.Config
		want    Config
		wantErr bool
	}{
		{name: "nil config", cfg: nil, wantErr: true},
		{name: "unknown backend", cfg: &config.Config{DataBackend: "sheets"}, wantErr: true},
		{
			name: "sqlite",
			cfg:  &config.Config{DataBackend: "sqlite", SQLiteDBPath: "/tmp/f.db", SeedCSV: "seed.csv"},
			want: Config{Type: SQLiteBackend, SQLiteDBPath: "/tmp/f.db", SeedCSV: "seed.csv"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := FromAppConfig(tt.cfg)
			if (err != nil) != tt.wantErr {
				t.Fatalf("FromAppConfig() error = %v, wantErr %v", err, tt.wantErr)
			}
			if got != tt.want {
				t.Errorf("FromAppConfig() = %+v, want %+v", got, tt.want)
			}
		})
	}
}

func TestConfig_Validate(t *testing.T) {
	if err := (Config{Type: SQLiteBackend}).Validate(); err == nil {
		t.Error("sqlite without a path should be invalid")
	}
	if err := (Config{Type: "redis"}).Validate(); err == nil {
		t.Error("unknown backend type should be invalid")
	}
	if err := (Config{Type: MemoryBackend}).Validate(); err != nil {
		t.Errorf("memory backend Validate() error = %v", err)
	}
}

func TestCreateBackend_Memory(t *testing.T) {
	seed := filepath.Join(t.TempDir(), "seed.csv")
	csv := "id,user_id,category,amount,occurred_on,kind\nt1,u1,Food,12.50,2024-03-14,expense\n"
	if err := os.WriteFile(seed, []byte(csv), 0o600); err != nil {
		t.Fatal(err)
	}
	ctx := context.Background()

	res, err := NewFactory(nil).CreateBackend(ctx, Config{Type: MemoryBackend, SeedCSV: seed})
	if err != nil {
		t.Fatalf("CreateBackend() error = %v", err)
	}
	defer res.Close()

	txs, err := res.Store.FetchTransactions(ctx, ledger.Query{UserID: "u1"})
	if err != nil || len(txs) != 1 {
		t.Errorf("FetchTransactions() = %v, %v; want the seeded transaction", txs, err)
	}
}

func TestCreateBackend_SQLite(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "finsight.db")

	res, err := NewFactory(nil).CreateBackend(ctx, Config{Type: SQLiteBackend, SQLiteDBPath: path})
	if err != nil {
		t.Fatalf("CreateBackend() error = %v", err)
	}
	if err := res.Close(); err != nil {
		t.Errorf("Close() error = %v", err)
	}
	if _, err := os.Stat(path); err != nil {
		t.Errorf("database file not created: %v", err)
	}
}

func TestConnectAMQP_Disabled(t *testing.T) {
	client, err := NewFactory(nil).ConnectAMQP(context.Background(), AMQPConfig{})
	if err != nil || client != nil {
		t.Errorf("ConnectAMQP(empty) = %v, %v; want nil, nil", client, err)
	}
}
