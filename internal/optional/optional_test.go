package optional

import (
	"encoding/json"
	"testing"
)

func TestValue_States(t *testing.T) {
	var untouched Value[string]
	if untouched.IsSet() || untouched.IsNull() || untouched.Ptr() != nil {
		t.Errorf("zero Value = %+v, want untouched", untouched)
	}

	null := Null[string]()
	if !null.IsSet() || !null.IsNull() {
		t.Errorf("Null() IsSet=%v IsNull=%v, want true/true", null.IsSet(), null.IsNull())
	}

	set := Of("crate 7")
	if !set.IsSet() || set.IsNull() || *set.Ptr() != "crate 7" {
		t.Errorf("Of() = %+v, want set to crate 7", set)
	}

	// Ptr returns a copy
	*set.Ptr() = "mutated"
	if *set.Ptr() != "crate 7" {
		t.Error("Ptr() exposed internal storage")
	}

	if FromPtr[string](nil).IsNull() != true {
		t.Error("FromPtr(nil) should be null")
	}
	s := "x"
	if got := FromPtr(&s).Ptr(); got == nil || *got != "x" {
		t.Errorf("FromPtr(&x).Ptr() = %v, want x", got)
	}
}

func TestValue_UnmarshalJSON(t *testing.T) {
	type patch struct {
		Label     Value[string]  `json:"label"`
		Threshold Value[float64] `json:"threshold"`
		CoreID    Value[int64]   `json:"core_id"`
	}

	var p patch
	if err := json.Unmarshal([]byte(`{"label":null,"threshold":25.5}`), &p); err != nil {
		t.Fatalf("Unmarshal() error = %v", err)
	}

	if !p.Label.IsNull() {
		t.Error("label: explicit null should clear")
	}
	if !p.Threshold.IsSet() || *p.Threshold.Ptr() != 25.5 {
		t.Errorf("threshold = %+v, want 25.5", p.Threshold)
	}
	if p.CoreID.IsSet() {
		t.Error("core_id: absent key should stay untouched")
	}

	if err := json.Unmarshal([]byte(`{"threshold":"hot"}`), &p); err == nil {
		t.Error("Unmarshal() expected type error, got nil")
	}
}

func TestEqual(t *testing.T) {
	a, b := "a", "b"
	tests := []struct {
		name    string
		value   Value[string]
		current *string
		want    bool
	}{
		{"both nil", Null[string](), nil, true},
		{"clear existing", Null[string](), &a, false},
		{"set from nil", Of("a"), nil, false},
		{"same", Of("a"), &a, true},
		{"different", Of("a"), &b, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Equal(tt.value, tt.current); got != tt.want {
				t.Errorf("Equal() = %v, want %v", got, tt.want)
			}
		})
	}
}
