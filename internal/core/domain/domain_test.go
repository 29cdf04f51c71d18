package domain

import (
	"testing"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
)

func TestAccount_CanAbsorb(t *testing.T) {
	a := &Account{Balance: decimal.NewFromInt(100)}

	assert.True(t, a.CanAbsorb(decimal.NewFromInt(-100)))
	assert.True(t, a.CanAbsorb(decimal.NewFromInt(50)))
	assert.False(t, a.CanAbsorb(decimal.NewFromInt(-101)))
}

func TestAccount_IsOperable(t *testing.T) {
	for status, want := range map[AccountStatus]bool{
		AccountStatusActive:    true,
		AccountStatusSuspended: false,
		AccountStatusBlocked:   false,
		AccountStatusClosed:    false,
	} {
		a := &Account{Status: status}
		assert.Equal(t, want, a.IsOperable(), "status %s", status)
	}
}

func TestPromotionalCredit_IsActive(t *testing.T) {
	c := &PromotionalCredit{
		Status:         CreditStatusCredited,
		OverlayBalance: decimal.NewFromInt(25),
	}
	assert.True(t, c.IsActive())

	c.OverlayBalance = decimal.Zero
	assert.False(t, c.IsActive(), "drained credit is no longer active")

	c.OverlayBalance = decimal.NewFromInt(25)
	c.Status = CreditStatusFinalized
	assert.False(t, c.IsActive(), "finalized credit is no longer active")
}

func TestPromotionalCredit_RolloverSatisfied(t *testing.T) {
	c := &PromotionalCredit{
		RolloverTarget:   decimal.NewFromInt(500),
		RolloverProgress: decimal.NewFromInt(499),
	}
	assert.False(t, c.RolloverSatisfied())

	c.RolloverProgress = decimal.NewFromInt(500)
	assert.True(t, c.RolloverSatisfied())
}

func TestWallet_Available(t *testing.T) {
	w := &Wallet{
		BalanceTotal:  decimal.NewFromInt(1000),
		BalanceLocked: decimal.NewFromInt(300),
	}
	assert.True(t, w.Available().Equal(decimal.NewFromInt(700)))
}

func TestTransitTransfer_Slippage(t *testing.T) {
	tr := &TransitTransfer{Amount: decimal.NewFromInt(300)}
	assert.True(t, tr.Slippage().IsZero())

	confirmed := decimal.NewFromInt(295)
	tr.ConfirmedAmount = &confirmed
	assert.True(t, tr.Slippage().Equal(decimal.NewFromInt(-5)))
}

func TestCompoundOperation_LegsInLockOrder(t *testing.T) {
	ids := []uuid.UUID{
		uuid.MustParse("cccccccc-0000-0000-0000-000000000000"),
		uuid.MustParse("aaaaaaaa-0000-0000-0000-000000000000"),
		uuid.MustParse("bbbbbbbb-0000-0000-0000-000000000000"),
	}
	op := &CompoundOperation{Legs: []Leg{
		{AccountID: ids[0]},
		{AccountID: ids[1]},
		{AccountID: ids[2]},
	}}

	ordered := op.LegsInLockOrder()
	assert.Equal(t, ids[1], ordered[0].AccountID)
	assert.Equal(t, ids[2], ordered[1].AccountID)
	assert.Equal(t, ids[0], ordered[2].AccountID)

	// Input order untouched.
	assert.Equal(t, ids[0], op.Legs[0].AccountID)
}

func TestSettlementEntry_Turnover(t *testing.T) {
	creditID := uuid.New()

	stake := &SettlementEntry{CreditID: &creditID, Amount: decimal.NewFromInt(-40)}
	assert.True(t, stake.QualifiesForRollover())
	assert.True(t, stake.Turnover().Equal(decimal.NewFromInt(40)))

	win := &SettlementEntry{CreditID: &creditID, Amount: decimal.NewFromInt(80)}
	assert.False(t, win.QualifiesForRollover())
	assert.True(t, win.Turnover().IsZero())

	mainStake := &SettlementEntry{Amount: decimal.NewFromInt(-40)}
	assert.False(t, mainStake.QualifiesForRollover())
}
