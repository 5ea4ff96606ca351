package domain

import (
	"encoding/json"
	"math"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseMoney(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		want    Money
		wantErr bool
	}{
		{"whole", "250", 25000, false},
		{"two decimals", "1250.00", 125000, false},
		{"one decimal", "0.5", 50, false},
		{"trailing zeros beyond scale", "10.500", 1050, false},
		{"negative", "-10.00", -1000, false},
		{"whitespace", " 42.10 ", 4210, false},
		{"sub-cent", "0.001", 0, true},
		{"garbage", "ten", 0, true},
		{"empty", "", 0, true},
		{"overflow", "92233720368547758.08", 0, true},
		{"exponent notation", "1e2", 10000, false},
		{"negative exponent in range", "125e-2", 125, false},
		{"tiny exponent", "0e-2000000000", 0, true},
		{"huge exponent", "1e2000000000", 0, true},
		{"sub-cent exponent", "1e-30", 0, true},
		{"too long", "1" + strings.Repeat("0", 80), 0, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseMoney(tt.input)
			if tt.wantErr {
				require.Error(t, err)
				assert.ErrorIs(t, err, ErrInvalidAmount)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestParseMoney_ExtremeExponentsReturnQuickly(t *testing.T) {
	for _, input := range []string{"0e-2000000000", "1e-2000000000", "1e2000000000", "-9e999999999"} {
		start := time.Now()
		_, err := ParseMoney(input)
		assert.ErrorIs(t, err, ErrInvalidAmount, input)
		assert.Less(t, time.Since(start), 100*time.Millisecond, input)
	}
}

func TestMoney_String(t *testing.T) {
	assert.Equal(t, "1250.00", Money(125000).String())
	assert.Equal(t, "0.05", Money(5).String())
	assert.Equal(t, "-1.50", Money(-150).String())
}

func TestMoney_AddSubOverflow(t *testing.T) {
	_, ok := Money(math.MaxInt64).Add(1)
	assert.False(t, ok)

	_, ok = Money(math.MinInt64).Sub(1)
	assert.False(t, ok)

	sum, ok := Money(100).Add(50)
	assert.True(t, ok)
	assert.Equal(t, Money(150), sum)

	diff, ok := Money(100).Sub(150)
	assert.True(t, ok)
	assert.Equal(t, Money(-50), diff)
}

func TestMoney_JSON(t *testing.T) {
	b, err := json.Marshal(struct {
		Amount Money `json:"amount"`
	}{Amount: 125000})
	require.NoError(t, err)
	assert.JSONEq(t, `{"amount":"1250.00"}`, string(b))

	var in struct {
		A Money `json:"a"`
		B Money `json:"b"`
	}
	require.NoError(t, json.Unmarshal([]byte(`{"a":"99.99","b":12.5}`), &in))
	assert.Equal(t, Money(9999), in.A)
	assert.Equal(t, Money(1250), in.B)

	err = json.Unmarshal([]byte(`{"a":"1.234"}`), &in)
	assert.ErrorIs(t, err, ErrInvalidAmount)
}

func TestParseTransactionKind(t *testing.T) {
	tests := []struct {
		input string
		want  TransactionKind
		ok    bool
	}{
		{"deposit", TransactionKindDeposit, true},
		{"WITHDRAW", TransactionKindWithdraw, true},
		{" Withdraw ", TransactionKindWithdraw, true},
		{"transfer", "TRANSFER", false},
		{"", "", false},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			got, ok := ParseTransactionKind(tt.input)
			assert.Equal(t, tt.ok, ok)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestTransactionKind_Apply(t *testing.T) {
	got, ok := TransactionKindDeposit.Apply(100000, 25000)
	assert.True(t, ok)
	assert.Equal(t, Money(125000), got)

	got, ok = TransactionKindWithdraw.Apply(10000, 15000)
	assert.True(t, ok)
	assert.Equal(t, Money(-5000), got)

	_, ok = TransactionKindDeposit.Apply(math.MaxInt64, 1)
	assert.False(t, ok)
}

func TestBuildIdempotencyKey(t *testing.T) {
	id := uuid.MustParse("550e8400-e29b-41d4-a716-446655440000")
	assert.Equal(t, "550e8400-e29b-41d4-a716-446655440000:atm-42", BuildIdempotencyKey(id, "atm-42"))
}

func TestNormalizePhone(t *testing.T) {
	assert.Equal(t, "0912345678", NormalizePhone("091-234-5678"))
	assert.Equal(t, "0912345678", NormalizePhone(" 091 234\t5678 "))
	assert.Equal(t, "+84912", NormalizePhone("+84 912"))
}
