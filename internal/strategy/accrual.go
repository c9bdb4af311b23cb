package strategy

// Accrual is one day's yield, interest and funding for a position.
type Accrual struct {
	AssetEarned  float64
	DebtInterest float64
	Carry        float64
	Funding      float64
}

// Accrue applies one day of lending yield, borrow interest and funding to
// pos in place. Yield compounds into AssetQty and interest into Debt;
// funding settles into Margin at the close price.
func Accrue(pos *Position, rates DayRates, close float64) Accrual {
	if pos == nil {
		return Accrual{}
	}
	earned := pos.AssetQty * (rates.LendAPY / 100) / 365
	interest := pos.Debt * (rates.BorrowAPY / 100) / 365
	funding := rates.Funding * pos.Contracts * close

	pos.AssetQty += earned
	pos.Debt += interest
	pos.Margin += funding

	return Accrual{
		AssetEarned:  earned,
		DebtInterest: interest,
		Carry:        earned*close - interest,
		Funding:      funding,
	}
}
