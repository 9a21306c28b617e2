package expression

import (
	"math"
	"strings"
	"testing"
)

func TestParseAndEval(t *testing.T) {
	env := Env{"x1": 2, "x2": 3, "theta_1": 0.5}
	tests := []struct {
		name string
		in   string
		want float64
	}{
		{"number", "42", 42},
		{"decimal", "0.25", 0.25},
		{"scientific", "1.5e-3", 0.0015},
		{"precedence", "1 + 2 * 3", 7},
		{"left associative minus", "10 - 4 - 3", 3},
		{"left associative division", "8 / 4 / 2", 1},
		{"parentheses", "(1 + 2) * 3", 9},
		{"symbols", "-theta_1 * x1 + x2", 2},
		{"caret power", "x1 ^ 3", 8},
		{"double star power", "x1 ** 3", 8},
		{"power right associative", "2 ^ 3 ^ 2", 512},
		{"unary minus binds looser than power", "-2 ^ 2", -4},
		{"negative exponent", "2 ^ -1", 0.5},
		{"function", "exp(0) + log10(100)", 3},
		{"two argument function", "max(x1, x2) - min(x1, x2)", 1},
		{"nested", "(- theta_1 * x1 + 0.5 * (x2 - 1))", 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			n, err := Parse(tt.in)
			if err != nil {
				t.Fatalf("Parse(%q) failed: %v", tt.in, err)
			}
			got, err := n.Eval(env)
			if err != nil {
				t.Fatalf("Eval failed: %v", err)
			}
			if math.Abs(got-tt.want) > 1e-12 {
				t.Errorf("%q = %v, want %v", tt.in, got, tt.want)
			}
		})
	}
}

func TestParseErrors(t *testing.T) {
	for _, in := range []string{
		"",
		"1 +",
		"(1 + 2",
		"1 2",
		"foo(1)",
		"exp(1, 2)",
		"2 $ 3",
		"1e",
		"1\xff",
		"\xffx",
		"2 * 1\uFFFD",
		"k1 * \xc3",
	} {
		if _, err := Parse(in); err == nil {
			t.Errorf("Parse(%q): expected error", in)
		}
	}
}

func TestParseInvalidUTF8(t *testing.T) {
	_, err := Parse("x + 1\xff")
	if err == nil || !strings.Contains(err.Error(), "invalid UTF-8") {
		t.Fatalf("expected invalid UTF-8 error, got %v", err)
	}
}

func TestParseNumberBeforeMultibyteRune(t *testing.T) {
	n, err := Parse("2.5")
	if err != nil {
		t.Fatal(err)
	}
	if n.Value != 2.5 {
		t.Errorf("expected 2.5, got %v", n.Value)
	}
	if _, err := Parse("2.5\u00b7x"); err == nil {
		t.Error("expected error for a multibyte operator")
	}
}

func TestEvalUnknownSymbol(t *testing.T) {
	n := MustParse("a + b")
	if _, err := n.Eval(Env{"a": 1}); err == nil {
		t.Fatal("expected error for unknown symbol")
	}
}

func TestOperands(t *testing.T) {
	n := MustParse("-k1 * x1 + k2 * x2 + exp(k1)")
	got := n.Operands()
	want := []string{"k1", "x1", "k2", "x2"}
	if len(got) != len(want) {
		t.Fatalf("expected %v, got %v", want, got)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("operand %d: expected %s, got %s", i, want[i], got[i])
		}
	}
}

func TestBindMatchesEval(t *testing.T) {
	n := MustParse("pow(x, 2) - y / 4 + abs(-z)")
	f, err := n.Bind([]string{"x", "y", "z"})
	if err != nil {
		t.Fatalf("Bind failed: %v", err)
	}
	want, err := n.Eval(Env{"x": 3, "y": 8, "z": 1})
	if err != nil {
		t.Fatalf("Eval failed: %v", err)
	}
	if got := f([]float64{3, 8, 1}); got != want {
		t.Errorf("bound = %v, eval = %v", got, want)
	}
	if _, err := n.Bind([]string{"x"}); err == nil {
		t.Error("expected Bind to fail for missing symbols")
	}
}
