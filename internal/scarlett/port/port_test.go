package port

import "testing"

func sampleLayout() []TypeCount {
	return []TypeCount{
		{Type: Analogue, Count: 2},
		{Type: SPDIF, Count: 2},
		{Type: ADAT, Count: 8},
	}
}

func TestWireIDOfUsesTypeBase(t *testing.T) {
	got := WireIDOf(SPDIF, 1)
	want := TypeBase[SPDIF] | 1
	if got != want {
		t.Errorf("WireIDOf(SPDIF, 1) = %#x, want %#x", got, want)
	}
}

func TestIndexOfZeroWireIDFails(t *testing.T) {
	if _, ok := IndexOf(sampleLayout(), 0); ok {
		t.Error("wire id 0 must decode as Off, not a port")
	}
}

func TestIndexOfUnknownWireIDFails(t *testing.T) {
	if _, ok := IndexOf(sampleLayout(), 0xFFF); ok {
		t.Error("expected unknown wire id to fail decoding")
	}
}

func TestFlattenAndIndexOfRoundTrip(t *testing.T) {
	layout := sampleLayout()
	for _, tc := range layout {
		for i := 0; i < tc.Count; i++ {
			flat := Flatten(layout, tc.Type, i)
			wireID := WireIDOf(tc.Type, i)
			got, ok := IndexOf(layout, wireID)
			if !ok {
				t.Fatalf("IndexOf(%s, %d) failed to decode wire id %#x", tc.Type, i, wireID)
			}
			if got != flat {
				t.Errorf("IndexOf(wire id for %s %d) = %d, want flat index %d", tc.Type, i, got, flat)
			}
		}
	}
}

func TestTypeAndIndexInverseOfFlatten(t *testing.T) {
	layout := sampleLayout()
	for _, tc := range layout {
		for i := 0; i < tc.Count; i++ {
			flat := Flatten(layout, tc.Type, i)
			gotType, gotIndex, err := TypeAndIndex(layout, flat)
			if err != nil {
				t.Fatalf("TypeAndIndex(%d): %v", flat, err)
			}
			if gotType != tc.Type || gotIndex != i {
				t.Errorf("TypeAndIndex(%d) = (%s, %d), want (%s, %d)", flat, gotType, gotIndex, tc.Type, i)
			}
		}
	}
}

func TestTypeAndIndexOutOfRangeFails(t *testing.T) {
	layout := sampleLayout()
	if _, _, err := TypeAndIndex(layout, Size(layout)); err == nil {
		t.Error("expected error for flat index at the total size boundary")
	}
}

func TestSizeSumsCounts(t *testing.T) {
	if got, want := Size(sampleLayout()), 12; got != want {
		t.Errorf("Size() = %d, want %d", got, want)
	}
}

func TestFormatPortNameAppliesOverride(t *testing.T) {
	got := FormatPortName(Analogue, 0, []int{3, 1})
	want := "Analogue 4"
	if got != want {
		t.Errorf("FormatPortName with override = %q, want %q", got, want)
	}
}

func TestFormatPortNameNoOverride(t *testing.T) {
	got := FormatPortName(ADAT, 2, nil)
	want := "ADAT 3"
	if got != want {
		t.Errorf("FormatPortName = %q, want %q", got, want)
	}
}

func TestFormatPortNameMixUsesLetters(t *testing.T) {
	got := FormatPortName(Mix, 2, nil)
	want := "Mix C"
	if got != want {
		t.Errorf("FormatPortName(Mix, 2) = %q, want %q", got, want)
	}
}

func TestFormatPortNameFixedLabelIgnoresIndex(t *testing.T) {
	if got := FormatPortName(Talkback, 5, nil); got != "Talkback" {
		t.Errorf("FormatPortName(Talkback, 5) = %q, want %q", got, "Talkback")
	}
}
