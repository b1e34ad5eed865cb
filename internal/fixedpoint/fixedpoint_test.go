package fixedpoint

import (
	"errors"
	"testing"

	"github.com/holiman/uint256"
)

func TestSqrtRatioAtTickBounds(t *testing.T) {
	cases := []struct {
		tick int32
		want string
	}{
		{tick: 0, want: "79228162514264337593543950336"},
		{tick: MinTick, want: "4295128739"},
		{tick: MaxTick, want: "1461446703485210103287273052203988822378723970342"},
	}
	for _, tc := range cases {
		got, err := SqrtRatioAtTick(tc.tick)
		if err != nil {
			t.Fatalf("tick %d: %v", tc.tick, err)
		}
		if got.Dec() != tc.want {
			t.Fatalf("tick %d: got %s want %s", tc.tick, got.Dec(), tc.want)
		}
	}

	if _, err := SqrtRatioAtTick(MaxTick + 1); !errors.Is(err, ErrTickOutOfRange) {
		t.Fatalf("expected out of range error, got %v", err)
	}
}

func TestTickAtSqrtRatioRoundTrip(t *testing.T) {
	for _, tick := range []int32{MinTick, -200000, -6932, -1, 0, 1, 60, 6932, 200000, MaxTick - 1} {
		sqrt, err := SqrtRatioAtTick(tick)
		if err != nil {
			t.Fatalf("sqrt ratio %d: %v", tick, err)
		}
		got, err := TickAtSqrtRatio(sqrt)
		if err != nil {
			t.Fatalf("tick at sqrt %d: %v", tick, err)
		}
		if got != tick {
			t.Fatalf("round trip mismatch: got %d want %d", got, tick)
		}
	}
}

func TestPriceAtTick(t *testing.T) {
	price, err := PriceAtTick(0)
	if err != nil {
		t.Fatalf("price at tick: %v", err)
	}
	if !price.Eq(One()) {
		t.Fatalf("price at tick 0: %s", price.Dec())
	}

	tick, err := TickAtPrice(One())
	if err != nil {
		t.Fatalf("tick at price: %v", err)
	}
	if tick != 0 {
		t.Fatalf("tick at price 1: %d", tick)
	}

	two := Units(2)
	tick, err = TickAtPrice(two)
	if err != nil {
		t.Fatalf("tick at price 2: %v", err)
	}
	// 1.0001^6931 < 2 < 1.0001^6932
	if tick != 6931 {
		t.Fatalf("tick at price 2: %d", tick)
	}
	below, _ := PriceAtTick(tick)
	above, _ := PriceAtTick(tick + 1)
	if below.Gt(two) || !above.Gt(two) {
		t.Fatalf("tick %d does not bracket price 2: %s %s", tick, below.Dec(), above.Dec())
	}
}

func TestRoundTicks(t *testing.T) {
	cases := []struct {
		tick, spacing, down, up int32
	}{
		{tick: 7, spacing: 60, down: 0, up: 60},
		{tick: -7, spacing: 60, down: -60, up: 0},
		{tick: 120, spacing: 60, down: 120, up: 120},
		{tick: MinTick, spacing: 60, down: -887220, up: -887220},
		{tick: 5, spacing: 1, down: 5, up: 5},
	}
	for _, tc := range cases {
		if got := RoundDownTick(tc.tick, tc.spacing); got != tc.down {
			t.Fatalf("round down %d/%d: got %d want %d", tc.tick, tc.spacing, got, tc.down)
		}
		if got := RoundUpTick(tc.tick, tc.spacing); got != tc.up {
			t.Fatalf("round up %d/%d: got %d want %d", tc.tick, tc.spacing, got, tc.up)
		}
	}
}

func TestMulDivGuards(t *testing.T) {
	if _, err := MulDiv(One(), One(), Zero()); !errors.Is(err, ErrDivideByZero) {
		t.Fatalf("expected divide by zero, got %v", err)
	}
	if _, err := MulDiv(Max(), Max(), uint256.NewInt(1)); !errors.Is(err, ErrOverflow) {
		t.Fatalf("expected overflow, got %v", err)
	}

	got, err := MulDiv(Max(), uint256.NewInt(2), uint256.NewInt(4))
	if err != nil {
		t.Fatalf("mul div with wide intermediate: %v", err)
	}
	want := new(uint256.Int).Rsh(Max(), 1)
	if !got.Eq(want) {
		t.Fatalf("wide mul div: got %s want %s", got.Dec(), want.Dec())
	}

	up, err := MulDivRoundingUp(uint256.NewInt(10), uint256.NewInt(1), uint256.NewInt(3))
	if err != nil || up.Uint64() != 4 {
		t.Fatalf("rounding up: %v %v", up, err)
	}
}

func TestSubClamp(t *testing.T) {
	if got := SubClamp(uint256.NewInt(1), uint256.NewInt(2)); !got.IsZero() {
		t.Fatalf("expected clamp to zero, got %s", got.Dec())
	}
	if got := SubClamp(uint256.NewInt(5), uint256.NewInt(2)); got.Uint64() != 3 {
		t.Fatalf("expected 3, got %s", got.Dec())
	}
	if got := Sum(Max(), uint256.NewInt(1)); !got.Eq(Max()) {
		t.Fatalf("expected saturated sum")
	}
}

func TestExp(t *testing.T) {
	got, err := Exp(Zero())
	if err != nil {
		t.Fatalf("exp 0: %v", err)
	}
	if !got.Eq(One()) {
		t.Fatalf("exp 0: %s", got.Dec())
	}

	got, err = Exp(One())
	if err != nil {
		t.Fatalf("exp 1: %v", err)
	}
	want, _ := ParseWad("2.718281828459045235")
	diff := SubClamp(want, got)
	if got.Gt(want) {
		diff = SubClamp(got, want)
	}
	if diff.Gt(uint256.NewInt(100)) {
		t.Fatalf("exp 1: got %s want ~%s", got.Dec(), want.Dec())
	}

	tenth, _ := ParseWad("0.1")
	got, err = Exp(tenth)
	if err != nil {
		t.Fatalf("exp 0.1: %v", err)
	}
	if FormatWad(got)[:12] != "1.1051709180" {
		t.Fatalf("exp 0.1: %s", FormatWad(got))
	}
}

func TestLiquidityAmountsRoundTrip(t *testing.T) {
	sqrtA, _ := SqrtRatioAtTick(-600)
	sqrtB, _ := SqrtRatioAtTick(600)
	sqrtP, _ := SqrtRatioAtTick(0)
	amount := Units(1000)

	l1, err := LiquidityForAmount1(sqrtA, sqrtB, amount)
	if err != nil {
		t.Fatalf("liquidity for amount1: %v", err)
	}
	got := Amount1ForLiquidity(sqrtA, sqrtB, l1)
	if got.Gt(amount) || SubClamp(amount, got).Gt(uint256.NewInt(2)) {
		t.Fatalf("amount1 round trip: got %s want %s", got.Dec(), amount.Dec())
	}

	l0, err := LiquidityForAmount0(sqrtA, sqrtB, amount)
	if err != nil {
		t.Fatalf("liquidity for amount0: %v", err)
	}
	got = Amount0ForLiquidity(sqrtA, sqrtB, l0)
	if got.Gt(amount) || SubClamp(amount, got).Gt(uint256.NewInt(2)) {
		t.Fatalf("amount0 round trip: got %s want %s", got.Dec(), amount.Dec())
	}

	// Spot inside the range uses the binding side.
	l, err := LiquidityForAmounts(sqrtP, sqrtA, sqrtB, amount, amount)
	if err != nil {
		t.Fatalf("liquidity for amounts: %v", err)
	}
	a0, a1 := AmountsForLiquidity(sqrtP, sqrtA, sqrtB, l)
	if a0.Gt(amount) || a1.Gt(amount) {
		t.Fatalf("amounts exceed budget: %s %s", a0.Dec(), a1.Dec())
	}

	// Spot below the range holds only token0; above holds only token1.
	below, _ := SqrtRatioAtTick(-1200)
	a0, a1 = AmountsForLiquidity(below, sqrtA, sqrtB, l)
	if a0.IsZero() || !a1.IsZero() {
		t.Fatalf("below range: %s %s", a0.Dec(), a1.Dec())
	}
	above, _ := SqrtRatioAtTick(1200)
	a0, a1 = AmountsForLiquidity(above, sqrtA, sqrtB, l)
	if !a0.IsZero() || a1.IsZero() {
		t.Fatalf("above range: %s %s", a0.Dec(), a1.Dec())
	}
}

func TestParseFormatWad(t *testing.T) {
	got, err := ParseWad("0.9")
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if got.Dec() != "900000000000000000" {
		t.Fatalf("parse 0.9: %s", got.Dec())
	}
	if FormatWad(got) != "0.9" {
		t.Fatalf("format: %s", FormatWad(got))
	}
	if _, err := ParseWad("-1"); err == nil {
		t.Fatalf("expected negative error")
	}
	if _, err := ParseWad("abc"); err == nil {
		t.Fatalf("expected parse error")
	}
}
