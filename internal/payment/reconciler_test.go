package payment

import (
	"errors"
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/noah-isme/backend-caja/internal/common"
	"github.com/noah-isme/backend-caja/internal/money"
	"github.com/noah-isme/backend-caja/internal/pricing"
)

func orderTotal(minor int64) pricing.PricedOrder {
	return pricing.PricedOrder{GrandTotal: money.FromMinorUnits(minor, 2)}
}

func tendered(minor int64) *money.Money {
	m := money.FromMinorUnits(minor, 2)
	return &m
}

func fixedReconciler() Reconciler {
	at := time.Date(2024, 5, 20, 12, 0, 0, 0, time.UTC)
	return Reconciler{Now: func() time.Time { return at }}
}

func TestSettleCashComputesChange(t *testing.T) {
	r, err := fixedReconciler().Settle(orderTotal(15000), Instruction{Method: MethodCash, Tendered: tendered(20000)})
	require.NoError(t, err)
	require.Equal(t, "50.00", r.Change.String())
	require.Equal(t, int64(15000), r.Total.Minor())
	require.Equal(t, int64(20000), r.Tendered.Minor())
}

func TestSettleCashInsufficient(t *testing.T) {
	_, err := fixedReconciler().Settle(orderTotal(15000), Instruction{Method: MethodCash, Tendered: tendered(10000)})
	require.ErrorIs(t, err, common.ErrInsufficientPayment)
	var short *InsufficientPaymentError
	require.True(t, errors.As(err, &short))
	require.Equal(t, "50.00", short.Shortfall.String())

	appErr := common.FromError(err)
	require.Equal(t, "INSUFFICIENT_PAYMENT", appErr.Code)
	require.NotNil(t, appErr.Details)
}

func TestSettleCashRequiresTendered(t *testing.T) {
	_, err := fixedReconciler().Settle(orderTotal(100), Instruction{Method: MethodCash})
	require.ErrorIs(t, err, ErrTenderedRequired)
}

func TestSettleCashRejectsTenderOutOfRange(t *testing.T) {
	_, err := fixedReconciler().Settle(orderTotal(100), Instruction{Method: MethodCash, Tendered: tendered(math.MinInt64)})
	require.ErrorIs(t, err, ErrInvalidTender)
	require.ErrorIs(t, err, money.ErrOverflow)
	require.ErrorIs(t, err, common.ErrValidation)

	wide := money.FromMinorUnits(math.MaxInt64/10, 4)
	_, err = fixedReconciler().Settle(pricing.PricedOrder{GrandTotal: money.FromMinorUnits(math.MaxInt64/10, 2)}, Instruction{Method: MethodCash, Tendered: &wide})
	require.ErrorIs(t, err, ErrInvalidTender)
}

func TestSettleCardIgnoresTendered(t *testing.T) {
	for _, m := range []Method{MethodDebit, MethodCredit, MethodTransfer} {
		r, err := fixedReconciler().Settle(orderTotal(15000), Instruction{Method: m, Tendered: tendered(1)})
		require.NoError(t, err)
		require.True(t, r.Change.IsZero())
		require.Equal(t, int64(15000), r.Tendered.Minor())
		require.Equal(t, m, r.Method)
	}
}

func TestParseMethod(t *testing.T) {
	m, err := ParseMethod(" Efectivo ")
	require.NoError(t, err)
	require.Equal(t, MethodCash, m)
	_, err = ParseMethod("cheque")
	require.ErrorIs(t, err, ErrUnknownMethod)
	_, err = fixedReconciler().Settle(orderTotal(1), Instruction{Method: "cheque"})
	require.ErrorIs(t, err, common.ErrValidation)
}
