package assets

import (
	"context"
	"log/slog"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/hugh/asset-shipper/internal/assets/types"
)

var scanTime = time.Date(2024, 6, 1, 12, 0, 30, 0, time.UTC)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelError}))
}

func ec2Type() types.TypeMetadata {
	return types.TypeMetadata{
		Name:        "ec2",
		DisplayName: "EC2 Instance",
		IDField:     "id",
		DocIDFields: []string{"id"},
	}
}

func newTestTranslator(t *testing.T, cfg TranslatorConfig) *Translator {
	t.Helper()
	if cfg.Type.Name == "" {
		cfg.Type = ec2Type()
	}
	if cfg.DataSource == "" {
		cfg.DataSource = "test"
	}
	if cfg.ScanTime.IsZero() {
		cfg.ScanTime = scanTime
	}
	tr, err := NewTranslator(context.Background(), cfg, testLogger())
	require.NoError(t, err)
	return tr
}

type fakeAccounts struct {
	names map[string]string
	calls int
	err   error
}

func (f *fakeAccounts) AccountName(_ context.Context, _, _, accountID string) (string, error) {
	f.calls++
	if f.err != nil {
		return "", f.err
	}
	return f.names[accountID], nil
}
