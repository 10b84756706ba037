package models

import (
	"encoding/json"
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMoney(t *testing.T) {
	t.Run("Percent", func(t *testing.T) {
		cost, err := MoneyFromFloat(200)
		require.NoError(t, err)
		assert.Equal(t, Money(3000), cost.Percent(DefaultFeeBasisPoints))
		assert.Equal(t, "170.00", (cost - cost.Percent(DefaultFeeBasisPoints)).String())
	})

	t.Run("JSON", func(t *testing.T) {
		raw, err := json.Marshal(struct {
			Amount Money `json:"amount"`
		}{Amount: 17000})
		require.NoError(t, err)
		assert.JSONEq(t, `{"amount":170.00}`, string(raw))

		var decoded struct {
			Amount Money `json:"amount"`
		}
		require.NoError(t, json.Unmarshal([]byte(`{"amount":12.34}`), &decoded))
		assert.Equal(t, Money(1234), decoded.Amount)
	})

	t.Run("RejectsStrings", func(t *testing.T) {
		var m Money
		assert.Error(t, json.Unmarshal([]byte(`"ten"`), &m))
	})

	t.Run("Range", func(t *testing.T) {
		m, err := MoneyFromFloat(MaxMoney.Float())
		require.NoError(t, err)
		assert.Equal(t, MaxMoney, m)

		for _, v := range []float64{1e300, -1e300, MaxMoney.Float() + 1, math.Inf(1), math.NaN()} {
			_, err := MoneyFromFloat(v)
			assert.ErrorIs(t, err, ErrMoneyOutOfRange, "%g", v)
		}

		var decoded Money
		err = json.Unmarshal([]byte(`1e300`), &decoded)
		assert.ErrorIs(t, err, ErrMoneyOutOfRange)
		assert.Zero(t, decoded)
	})
}

func TestParseClock(t *testing.T) {
	tests := []struct {
		in   string
		want int
		ok   bool
	}{
		{"09:00", 540, true},
		{"9:30", 570, true},
		{"24:00", 1440, true},
		{"24:01", 0, false},
		{"12:60", 0, false},
		{"noon", 0, false},
		{"1200", 0, false},
	}
	for _, tt := range tests {
		got, ok := ParseClock(tt.in)
		assert.Equal(t, tt.ok, ok, tt.in)
		assert.Equal(t, tt.want, got, tt.in)
	}
}

func TestAppointmentStartsAt(t *testing.T) {
	a := &Appointment{Date: "2024-01-15", Time: "09:30-11:00"}
	got, err := a.StartsAt(time.UTC)
	require.NoError(t, err)
	assert.Equal(t, time.Date(2024, 1, 15, 9, 30, 0, 0, time.UTC), got)

	a.Time = "14:00"
	got, err = a.StartsAt(time.UTC)
	require.NoError(t, err)
	assert.Equal(t, 14, got.Hour())

	a.Time = "whenever"
	_, err = a.StartsAt(time.UTC)
	assert.Error(t, err)
}

func TestValidDay(t *testing.T) {
	assert.True(t, ValidDay("2024-02-29"))
	assert.False(t, ValidDay("2023-02-29"))
	assert.False(t, ValidDay("2024-1-5"))
	assert.False(t, ValidDay("2024-01-05T10:00:00Z"))
}

func TestUserRoleRoundTrip(t *testing.T) {
	u := User{
		ID:   "cg-1",
		Name: "Ana",
		Role: &CaregiverProfile{
			Services: []ServiceOffering{{Name: "Companionship", Price: 20000}},
			Location: GeoPoint{Lat: 40.7, Lng: -74},
		},
	}
	raw, err := json.Marshal(u)
	require.NoError(t, err)
	assert.Contains(t, string(raw), `"role":"caregiver"`)

	var decoded User
	require.NoError(t, json.Unmarshal(raw, &decoded))
	profile, ok := decoded.Role.(*CaregiverProfile)
	require.True(t, ok)
	svc, found := profile.Service("Companionship")
	assert.True(t, found)
	assert.Equal(t, Money(20000), svc.Price)
}

func TestUserUnknownRole(t *testing.T) {
	var u User
	err := json.Unmarshal([]byte(`{"id":"x","role":"pilot"}`), &u)
	assert.Error(t, err)
}

func TestNormalizeUser(t *testing.T) {
	u := &User{ID: "c-1", Role: &ClientProfile{}}
	assert.True(t, NormalizeUser(u))
	require.NotNil(t, u.Wallet)
	assert.NotNil(t, u.Wallet.Transactions)
	assert.False(t, NormalizeUser(u))

	cg := &User{ID: "cg-1", Role: &CaregiverProfile{}}
	assert.True(t, NormalizeUser(cg))
	assert.NotNil(t, cg.Role.(*CaregiverProfile).BlockedDates)
}

func TestWalletExpected(t *testing.T) {
	w := &Wallet{
		InitialBalance: 1000,
		Transactions: []WalletTransaction{
			{Type: TxCredit, Amount: 500, Status: TxStatusCompleted},
			{Type: TxDebit, Amount: 300, Status: TxStatusProcessing},
		},
	}
	balance, pending := w.Expected()
	assert.Equal(t, Money(1200), balance)
	assert.Equal(t, Money(300), pending)
	assert.False(t, w.HasReference(TxCredit, ""))
}
