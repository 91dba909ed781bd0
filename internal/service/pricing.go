package service

import (
	"fmt"

	"github.com/shopspring/decimal"
)

var depositRate = decimal.RequireFromString("0.5")

type CommissionPolicy interface {
	Commission(deposit int64) int64
}

// TieredCommission charges LowRate on deposits up to Threshold and HighRate above it.
type TieredCommission struct {
	Threshold int64
	LowRate   decimal.Decimal
	HighRate  decimal.Decimal
}

func (p TieredCommission) Commission(deposit int64) int64 {
	rate := p.HighRate
	if deposit <= p.Threshold {
		rate = p.LowRate
	}
	return decimal.NewFromInt(deposit).Mul(rate).RoundBank(0).IntPart()
}

type FixedCommission int64

func (f FixedCommission) Commission(int64) int64 { return int64(f) }

var DefaultCommission = TieredCommission{
	Threshold: 50000,
	LowRate:   decimal.RequireFromString("0.05"),
	HighRate:  decimal.RequireFromString("0.10"),
}

// NewCommissionPolicy resolves a configured policy name. fixed charges the
// given amount on every booking.
func NewCommissionPolicy(name string, fixed int64) (CommissionPolicy, error) {
	switch name {
	case "", "tiered":
		return DefaultCommission, nil
	case "fixed":
		if fixed < 0 {
			return nil, fmt.Errorf("fixed commission %d is negative: %w", fixed, ErrInvalidInput)
		}
		return FixedCommission(fixed), nil
	default:
		return nil, fmt.Errorf("unknown commission policy %q: %w", name, ErrInvalidInput)
	}
}

type Financials struct {
	Total       int64 `json:"total_amount"`
	Deposit     int64 `json:"deposit_amount"`
	Commission  int64 `json:"platform_commission"`
	AmountToPay int64 `json:"amount_to_pay"`
}

// ComputeFinancials prices a stay: the deposit is half the total rounded
// half-to-even, and the customer pays deposit plus commission.
func ComputeFinancials(pricePerNight int64, nights int, policy CommissionPolicy) Financials {
	total := pricePerNight * int64(nights)
	deposit := decimal.NewFromInt(total).Mul(depositRate).RoundBank(0).IntPart()
	commission := policy.Commission(deposit)
	return Financials{
		Total:       total,
		Deposit:     deposit,
		Commission:  commission,
		AmountToPay: deposit + commission,
	}
}

// Payout is what the owner receives at check-in, never negative.
func Payout(deposit, commission int64) int64 {
	if p := deposit - commission; p > 0 {
		return p
	}
	return 0
}
