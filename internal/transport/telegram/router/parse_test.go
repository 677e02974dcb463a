package router

import "testing"

func TestSplitCommand(t *testing.T) {
	tests := []struct {
		in, word, rest string
		ok             bool
	}{
		{"/list", "list", "", true},
		{"  /REMIND@my_bot чай через 5 минут ", "remind", "чай через 5 минут", true},
		{"/cancel\t12", "cancel", "12", true},
		{"hello", "", "", false},
		{"/", "", "", false},
	}
	for _, tt := range tests {
		w, r, ok := splitCommand(tt.in)
		if w != tt.word || r != tt.rest || ok != tt.ok {
			t.Fatalf("splitCommand(%q) = %q, %q, %v", tt.in, w, r, ok)
		}
	}
}

func TestSplitRemindArgs(t *testing.T) {
	tests := []struct {
		in, note, dur string
		ok            bool
	}{
		{"купить молоко через 5 минут", "купить молоко", "5 минут", true},
		{"перейти через дорогу через 2 часа", "перейти через дорогу", "2 часа", true},
		{"через 5 минут", "", "5 минут", true},
		{"купить молоко", "", "", false},
		{"купить через ", "", "", false},
	}
	for _, tt := range tests {
		n, d, ok := splitRemindArgs(tt.in)
		if n != tt.note || d != tt.dur || ok != tt.ok {
			t.Fatalf("splitRemindArgs(%q) = %q, %q, %v", tt.in, n, d, ok)
		}
	}
}
