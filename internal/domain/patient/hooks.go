package patient

import (
	"context"
	"math/big"

	"github.com/dossiers/dossiers/internal/platform/collection"
)

const (
	// OperatorUnknown is stamped when the signed-in user has no email.
	OperatorUnknown = "Agent non identifié"
	// OperatorSystem is stamped for writes made without a user.
	OperatorSystem = "Système"
)

// BMI returns weight (kg) over height (m) squared, rounded to two decimals.
// It returns nil when either measurement is missing or zero.
func BMI(weight, height *float64) *float64 {
	if weight == nil || height == nil || *weight == 0 || *height == 0 {
		return nil
	}
	m := *height / 100
	v := round2(*weight / (m * m))
	return &v
}

// round2 rounds the exact binary value of v to two decimals, ties going up,
// then returns the nearest float64. 7.675 is stored as 7.67499... and
// rounds to 7.67, where math.Round(v*100) would give 7.68.
func round2(v float64) float64 {
	r := new(big.Rat).SetFloat64(v)
	if r == nil {
		return v
	}
	r.Mul(r, big.NewRat(100, 1)).Add(r, big.NewRat(1, 2))
	n := new(big.Int).Div(r.Num(), r.Denom())
	f, _ := new(big.Rat).SetFrac(n, big.NewInt(100)).Float64()
	return f
}

// ComputeBMI derives the bmi field from its weight and height siblings.
// Any client-supplied value is overwritten.
func ComputeBMI(_ context.Context, args collection.HookArgs) (any, error) {
	bmi := BMI(numberOf(args.SiblingData["weight"]), numberOf(args.SiblingData["height"]))
	if bmi == nil {
		return nil, nil
	}
	return *bmi, nil
}

func numberOf(v any) *float64 {
	f, ok := collection.ToFloat(v)
	if !ok {
		return nil
	}
	return &f
}

// StampOperator records who saved a care entry.
func StampOperator(_ context.Context, args collection.HookArgs) (any, error) {
	if args.User == nil {
		return OperatorSystem, nil
	}
	if args.User.Email == "" {
		return OperatorUnknown, nil
	}
	return args.User.Email, nil
}
