package phone

import "testing"

func TestIsValidFormat(t *testing.T) {
	cases := []struct {
		number string
		valid  bool
	}{
		{"08123456789", true},       // 11-digit local with leading 0
		{"6281234567890", true},     // 13-digit international
		{"+62-812-34567890", true},  // valid after stripping separators
		{"08888888888", false},      // 8+ repeated digit run
		{"11111111111", false},      // 8+ repeated digit run
		{"12345", false},            // too short
		{"01234567890", false},      // local numbers must start with 08
	}

	for _, tc := range cases {
		if got := IsValidFormat(tc.number); got != tc.valid {
			t.Errorf("IsValidFormat(%q) = %v, want %v", tc.number, got, tc.valid)
		}
	}
}

func TestNormalize(t *testing.T) {
	cases := []struct {
		in   string
		want string
	}{
		{"08123456789", "628123456789"},
		{"6281234567890", "6281234567890"},
		{"+62 812-3456-789", "628123456789"},
		{"81234567890", "6281234567890"},
	}

	for _, tc := range cases {
		if got := Normalize(tc.in); got != tc.want {
			t.Errorf("Normalize(%q) = %q, want %q", tc.in, got, tc.want)
		}
	}
}

func TestDigits(t *testing.T) {
	if got := Digits("+62 (812) 345-6789"); got != "628123456789" {
		t.Fatalf("Digits returned %q", got)
	}
}
