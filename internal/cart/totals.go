package cart

import "github.com/shopspring/decimal"

func LineTotal(line LineItem) decimal.Decimal {
	return line.UnitPriceAtAdd.Mul(decimal.NewFromInt(int64(line.Quantity)))
}

// CartTotal is always derived from the lines; nothing keeps a running sum.
func CartTotal(lines []LineItem) decimal.Decimal {
	total := decimal.Zero
	for _, line := range lines {
		total = total.Add(LineTotal(line))
	}
	return total
}

func ItemCount(lines []LineItem) int {
	count := 0
	for _, line := range lines {
		count += line.Quantity
	}
	return count
}
