package domain

import "testing"

func TestPhoneSubject(t *testing.T) {
	if got := PhoneSubject("+14155550123"); got != "phone_14155550123" {
		t.Errorf("PhoneSubject = %q", got)
	}
	if PhoneSubject("+447700900123") == PhoneSubject("+14155550123") {
		t.Error("different phones share a subject")
	}
}

func TestSplitDisplayName(t *testing.T) {
	tests := []struct {
		in, first, last string
	}{
		{"Ada Lovelace", "Ada", "Lovelace"},
		{"Ada King Lovelace", "Ada", "King Lovelace"},
		{"  Ada   ", "Ada", ""},
		{"", "", ""},
	}
	for _, tt := range tests {
		first, last := SplitDisplayName(tt.in)
		if first != tt.first || last != tt.last {
			t.Errorf("SplitDisplayName(%q) = %q, %q; want %q, %q", tt.in, first, last, tt.first, tt.last)
		}
	}
}
