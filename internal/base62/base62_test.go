package base62

import "testing"

func TestEncodeUint(t *testing.T) {
	tests := []struct {
		in   uint64
		want string
	}{
		{0, "0"},
		{1, "1"},
		{9, "9"},
		{10, "A"},
		{35, "Z"},
		{36, "a"},
		{61, "z"},
		{62, "10"},
		{124, "20"},
		{3843, "zz"},
		{3844, "100"},
	}
	for _, tt := range tests {
		if got := EncodeUint(tt.in); got != tt.want {
			t.Errorf("EncodeUint(%d) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestEncodeBytes(t *testing.T) {
	tests := []struct {
		desc string
		in   []byte
		want string
	}{
		{"empty", nil, ""},
		{"zero byte", []byte{0}, "0"},
		{"one", []byte{1}, "1"},
		{"single byte", []byte{62}, "10"},
		{"two bytes", []byte{1, 0}, EncodeUint(256)},
	}
	for _, tt := range tests {
		if got := EncodeBytes(tt.in); got != tt.want {
			t.Errorf("%s: EncodeBytes(%v) = %q, want %q", tt.desc, tt.in, got, tt.want)
		}
	}
}
