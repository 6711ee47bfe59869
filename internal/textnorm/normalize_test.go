package textnorm

import (
	"reflect"
	"testing"
)

func TestNormalize(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{"empty", "", ""},
		{"case and whitespace", "  The  Revenue\tAct\n of 1964 ", "the revenue act of 1964"},
		{"smart quotes and dashes", "“Deficit—driven” isn’t", `"deficit-driven" isn't`},
		{"ocr hyphen break", "the long-term deficit re-\nduction program", "the long-term deficit reduction program"},
		{"ligature", "ﬁscal policy", "fiscal policy"},
		{"markup", "<p>Tax <b>Reform</b> Act</p><script>var x=1;</script>", "tax reform act"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Normalize(tt.in); got != tt.want {
				t.Errorf("Normalize(%q) = %q, want %q", tt.in, got, tt.want)
			}
		})
	}
}

func TestHasMarkup(t *testing.T) {
	if HasMarkup("revenue < outlays by 5 > 3") {
		t.Error("comparison operators should not count as markup")
	}
	if !HasMarkup("<div>text</div>") {
		t.Error("expected markup to be detected")
	}
}

func TestCountPhrase(t *testing.T) {
	text := "tax cut and a second tax cut; taxation is not a tax"
	if got := CountPhrase(text, "tax cut"); got != 2 {
		t.Errorf("expected 2 occurrences of 'tax cut', got %d", got)
	}
	if got := CountPhrase(text, "tax"); got != 3 {
		t.Errorf("expected 3 whole-word 'tax', got %d", got)
	}
	if got := CountPhrase(text, ""); got != 0 {
		t.Errorf("expected 0 for empty phrase, got %d", got)
	}
	if ContainsPhrase("surtaxes", "tax") {
		t.Error("expected no match inside a longer word")
	}
}

func TestWords(t *testing.T) {
	got := Words("public law 101-508, h.r. 5835")
	want := []string{"public", "law", "101", "508", "h", "r", "5835"}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("Words() = %v, want %v", got, want)
	}
}
