// Package pricing считает суммы позиций, корзины/заказа и предоплаты.
// Все суммы - целые гривны (decimal с нулем знаков после запятой).
package pricing

import "github.com/shopspring/decimal"

var hundred = decimal.NewFromInt(100)

// LineTotal возвращает сумму позиции: (цена + сумма цен допов) × количество
func LineTotal(price decimal.Decimal, additionPrices []decimal.Decimal, count int) decimal.Decimal {
	unit := price
	for _, p := range additionPrices {
		unit = unit.Add(p)
	}
	return unit.Mul(decimal.NewFromInt(int64(count)))
}

// Sum складывает суммы позиций
func Sum(totals ...decimal.Decimal) decimal.Decimal {
	sum := decimal.Zero
	for _, t := range totals {
		sum = sum.Add(t)
	}
	return sum
}

// PrepaymentAmount возвращает процент от суммы заказа, округленный до целых (половина вверх)
func PrepaymentAmount(total, percent decimal.Decimal) decimal.Decimal {
	return total.Mul(percent).Div(hundred).Round(0)
}

// FullPaymentAmount - полная оплата равна сумме заказа
func FullPaymentAmount(total decimal.Decimal) decimal.Decimal {
	return total
}
