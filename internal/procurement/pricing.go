package procurement

import "github.com/shopspring/decimal"

// steelDensityKGPerMM3 is the density of tool steel in kg per cubic millimetre.
const steelDensityKGPerMM3 = 7.85e-6

// SteelWeightKG computes the block weight from plate dimensions in millimetres.
func SteelWeightKG(widthMM, lengthMM, thicknessMM float64) float64 {
	if widthMM <= 0 || lengthMM <= 0 || thicknessMM <= 0 {
		return 0
	}
	return widthMM * lengthMM * thicknessMM * steelDensityKGPerMM3
}

// SteelUnitPrice prices one steel block from its dimensions and the per-kg
// rate, rounded to whole currency units.
func SteelUnitPrice(widthMM, lengthMM, thicknessMM float64, pricePerKG decimal.Decimal) decimal.Decimal {
	weight := SteelWeightKG(widthMM, lengthMM, thicknessMM)
	if weight == 0 {
		return decimal.Zero
	}
	return pricePerKG.Mul(decimal.NewFromFloat(weight)).Round(0)
}
