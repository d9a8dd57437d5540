package core

const (
	// MinPriceBP / MaxPriceBP bound accepted limit prices to 1%..99%.
	// 0 and 10000 are rejected: a price of 0 or 1 carries no risk for
	// one side and would let the book be spammed for free.
	MinPriceBP = 100
	MaxPriceBP = 9900
)

// ValidatePrice checks a YES probability price in basis points.
func ValidatePrice(priceBP int) error {
	if priceBP < MinPriceBP || priceBP > MaxPriceBP {
		return Errorf(KindValidation, "price must be between %d and %d basis points", MinPriceBP, MaxPriceBP)
	}
	return nil
}

// ValidateOrderSize checks the order amount against configured bounds.
func ValidateOrderSize(amountKopecks, minKopecks, maxKopecks int64) error {
	if amountKopecks < minKopecks {
		return Errorf(KindValidation, "order amount below minimum of %d.%02d rubles",
			minKopecks/KopecksPerRuble, minKopecks%KopecksPerRuble)
	}
	if amountKopecks > maxKopecks {
		return Errorf(KindValidation, "order amount above maximum of %d rubles",
			maxKopecks/KopecksPerRuble)
	}
	return nil
}

// IsPriceCompatible reports whether a YES order at yesBP can trade against
// a NO order at noBP. The two sides together must cover the full pot:
// yes + no >= 10000.
func IsPriceCompatible(yesBP, noBP int) bool {
	return yesBP+noBP >= PriceScaleBP
}

// SplitCost divides a fill amount between the two sides at the execution
// price (the resting order's YES price). The YES side pays
// floor(amount * price / 10000) and the NO side pays the remainder, so the
// two costs always reconstruct the amount exactly.
func SplitCost(amountKopecks int64, priceBP int) (yesCost, noCost int64) {
	yesCost = amountKopecks * int64(priceBP) / PriceScaleBP
	noCost = amountKopecks - yesCost
	return yesCost, noCost
}

// FeeFor computes the platform fee on a settled amount, flooring.
func FeeFor(amountKopecks int64, feeRateBP int) int64 {
	return amountKopecks * int64(feeRateBP) / PriceScaleBP
}
