package export

import (
	"context"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"carebook/internal/domain"
	"carebook/internal/ledger"
	"carebook/internal/models"
	"carebook/internal/repository"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"
)

func setupExporter(t *testing.T, dir string) *Exporter {
	t.Helper()
	logger := zerolog.New(io.Discard)
	ctx := context.Background()

	store := repository.NewMemoryStore()
	users := repository.NewCollection[models.User](store, models.CollectionUsers)
	require.NoError(t, users.Create(ctx, "cg1", &models.User{
		ID:     "cg1",
		Role:   &models.CaregiverProfile{},
		Wallet: &models.Wallet{InitialBalance: 1000, Balance: 1000, Transactions: []models.WalletTransaction{}},
	}))

	led := ledger.NewService(store, nil, &logger)
	_, err := led.Credit(ctx, "cg1", 17000, "Earnings: Companionship on 2024-01-01", "a1")
	require.NoError(t, err)
	_, err = led.Withdraw(ctx, "cg1", 5000, "pix-1")
	require.NoError(t, err)

	return NewExporter(led, dir, &logger)
}

func TestStatement(t *testing.T) {
	e := setupExporter(t, t.TempDir())

	f, err := e.Statement(context.Background(), "cg1")
	require.NoError(t, err)
	defer f.Close()

	assert.Equal(t, []string{sheetName}, f.GetSheetList())

	title, err := f.GetCellValue(sheetName, "A1")
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(title, "Wallet statement: cg1"))

	header, err := f.GetRows(sheetName)
	require.NoError(t, err)
	require.GreaterOrEqual(t, len(header), 5)
	assert.Equal(t, statementHeaders, header[1])

	desc, _ := f.GetCellValue(sheetName, "B4")
	assert.Equal(t, "Earnings: Companionship on 2024-01-01", desc)
	running, _ := f.GetCellValue(sheetName, "F4")
	assert.Equal(t, "180", running)

	amount, _ := f.GetCellValue(sheetName, "E5")
	assert.Equal(t, "-50", amount)
	running, _ = f.GetCellValue(sheetName, "F5")
	assert.Equal(t, "130", running)

	balance, _ := f.GetCellValue(sheetName, "F7")
	assert.Equal(t, "130", balance)
	pending, _ := f.GetCellValue(sheetName, "F8")
	assert.Equal(t, "50", pending)
}

func TestStatement_UnknownUser(t *testing.T) {
	e := setupExporter(t, t.TempDir())
	_, err := e.Statement(context.Background(), "ghost")
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestSave(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "exports")
	e := setupExporter(t, dir)

	path, err := e.Save(context.Background(), "cg1")
	require.NoError(t, err)
	assert.Equal(t, dir, filepath.Dir(path))

	_, err = os.Stat(path)
	require.NoError(t, err)

	f, err := excelize.OpenFile(path)
	require.NoError(t, err)
	defer f.Close()
	desc, _ := f.GetCellValue(sheetName, "B3")
	assert.Equal(t, "Opening balance", desc)
}
