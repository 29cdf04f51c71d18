package domain

import (
	"sort"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// OperationType tags the shape of a compound operation.
type OperationType string

const (
	// OperationTypeAdjustment is a plain balance change on one or more accounts.
	OperationTypeAdjustment OperationType = "ADJUSTMENT"
	// OperationTypeArbitrage is a multi-leg arbitrage bet; structurally it
	// requires at least two legs.
	OperationTypeArbitrage OperationType = "ARBITRAGE"
)

// Strategy tags how the legs relate to each other.
type Strategy string

const (
	StrategyNone   Strategy = ""
	StrategyValue  Strategy = "VALUE"
	StrategyMiddle Strategy = "MIDDLE"
)

// RegistrationMode describes how the legs were registered by the operator.
type RegistrationMode string

const (
	RegistrationModeSingle RegistrationMode = "SINGLE"
	RegistrationModePaired RegistrationMode = "PAIRED"
)

// Leg is one account/amount pair of a compound operation. ExpectedVersion
// is the account version the caller last observed; the mutator rejects the
// whole operation if it no longer matches. FundedByCredit marks a leg whose
// promotional/main split was already resolved by higher-level settlement,
// in which case overlay routing is bypassed and CreditAmount says how much
// of the stake came from the bonus.
type Leg struct {
	AccountID       uuid.UUID       `json:"account_id"`
	Delta           decimal.Decimal `json:"delta"`
	ExpectedVersion int64           `json:"expected_version"`
	FundedByCredit  bool            `json:"funded_by_credit"`
	CreditAmount    decimal.Decimal `json:"credit_amount"`
}

// CompoundOperation is an ephemeral proposal of balance changes across
// multiple accounts that must commit atomically. It is never persisted;
// it only moves through the validator and the mutator.
type CompoundOperation struct {
	Reference string           `json:"reference"`
	ProjectID uuid.UUID        `json:"project_id"`
	Type      OperationType    `json:"type"`
	Strategy  Strategy         `json:"strategy"`
	Mode      RegistrationMode `json:"mode"`
	AuditTag  string           `json:"audit_tag"`
	Legs      []Leg            `json:"legs"`
}

// LegsInLockOrder returns the legs sorted by account id. Every concurrent
// multi-leg commit locks accounts in this order, so operations touching
// overlapping account sets cannot deadlock.
func (op *CompoundOperation) LegsInLockOrder() []Leg {
	legs := make([]Leg, len(op.Legs))
	copy(legs, op.Legs)
	sort.Slice(legs, func(i, j int) bool {
		return legs[i].AccountID.String() < legs[j].AccountID.String()
	})
	return legs
}

// Violation codes, machine-checkable.
const (
	ViolationMinLegs           = "VAL_001"
	ViolationStrategyMode      = "VAL_002"
	ViolationUnknownAccount    = "VAL_003"
	ViolationCrossProject      = "VAL_004"
	ViolationInsufficientFunds = "VAL_005"
	ViolationAccountInoperable = "VAL_006"
	ViolationEmptyOperation    = "VAL_007"
	ViolationInvalidSplit      = "VAL_008"
)

// Violation is one structured validation failure: a machine-checkable
// code, a human-readable message and context fields for precise UI
// rendering or retry logic.
type Violation struct {
	Code    string         `json:"code"`
	Message string         `json:"message"`
	Context map[string]any `json:"context,omitempty"`
}

// ValidationResult is the validator's verdict on a compound operation.
// Valid=false must block any attempt to reach the mutator.
type ValidationResult struct {
	Valid      bool        `json:"valid"`
	Violations []Violation `json:"violations"`
}

// RouteTarget says where a balance delta lands.
type RouteTarget string

const (
	RouteTargetMain    RouteTarget = "MAIN"
	RouteTargetOverlay RouteTarget = "OVERLAY"
)

// RouteDecision is the overlay resolver's answer for a single delta.
// Credit is set only when Target is OVERLAY.
type RouteDecision struct {
	Target RouteTarget
	Credit *PromotionalCredit
}

// LegResult reports the outcome of one applied leg.
type LegResult struct {
	AccountID     uuid.UUID       `json:"account_id"`
	BalanceBefore decimal.Decimal `json:"balance_before"`
	BalanceAfter  decimal.Decimal `json:"balance_after"`
	NewVersion    int64           `json:"new_version"`
	RoutedTo      RouteTarget     `json:"routed_to"`
	CreditID      *uuid.UUID      `json:"credit_id,omitempty"`
}

// CommitResult reports a fully applied compound operation.
type CommitResult struct {
	Reference string      `json:"reference"`
	Legs      []LegResult `json:"legs"`
}
