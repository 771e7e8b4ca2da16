package domain

import "testing"

func TestSeverity_OrdinalAndOrdering(t *testing.T) {
	order := []Severity{SeverityMild, SeverityModerate, SeveritySevere, SeverityLifeThreatening}
	for i, s := range order {
		if s.Ordinal() != i+1 {
			t.Fatalf("%s.Ordinal() = %d; want %d", s, s.Ordinal(), i+1)
		}
		if !s.Valid() {
			t.Fatalf("%s should be valid", s)
		}
	}
	if Severity("CATASTROPHIC").Valid() || Severity("").Ordinal() != 0 {
		t.Fatalf("unknown severities must have ordinal 0")
	}
	if !SeverityLifeThreatening.AtLeast(SeveritySevere) || SeverityMild.AtLeast(SeverityModerate) {
		t.Fatalf("AtLeast ordering broken")
	}
}

func TestParseDataKind(t *testing.T) {
	for in, want := range map[string]DataKind{
		"SIDE_EFFECTS":        KindSideEffects,
		"side-effects":        KindSideEffects,
		" oxidation_products": KindOxidationProducts,
	} {
		got, ok := ParseDataKind(in)
		if !ok || got != want {
			t.Fatalf("ParseDataKind(%q) = %q,%v; want %q", in, got, ok, want)
		}
	}
	if _, ok := ParseDataKind("usage"); ok {
		t.Fatalf("unexpected kind accepted")
	}
}

func TestDataKind_Tag(t *testing.T) {
	if KindSideEffects.Tag() != TagAllergenEffects {
		t.Fatalf("side effects tag = %q", KindSideEffects.Tag())
	}
	if KindOxidationProducts.Tag() != TagOxidationProducts {
		t.Fatalf("oxidation tag = %q", KindOxidationProducts.Tag())
	}
}
