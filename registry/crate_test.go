package registry

import (
	"testing"
	"time"
)

func TestValidName(t *testing.T) {
	cases := []struct {
		name string
		want bool
	}{
		{"a", true},
		{"", false},
		{"foo-bar_baz", true},
		{"foo bar", false},
		{"core", false},
		{"Crate-Name9", true},
	}
	for _, c := range cases {
		if got := ValidName(c.name); got != c.want {
			t.Errorf("ValidName(%q) = %v, want %v", c.name, got, c.want)
		}
	}
	long := make([]byte, 65)
	for i := range long {
		long[i] = 'a'
	}
	if ValidName(string(long)) {
		t.Errorf("ValidName should reject 65-byte names")
	}
	ok64 := long[:64]
	if !ValidName(string(ok64)) {
		t.Errorf("ValidName should accept 64-byte names")
	}
}

func TestCanonicalName(t *testing.T) {
	cases := map[string]string{
		"Foo-Bar":  "foo-bar",
		"foo_bar":  "foo-bar",
		"FOO_BAR":  "foo-bar",
		"foo-bar":  "foo-bar",
	}
	for in, want := range cases {
		if got := CanonicalName(in); got != want {
			t.Errorf("CanonicalName(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestUserLocked(t *testing.T) {
	u := &User{}
	if u.Locked(time.Now()) {
		t.Fatal("unlocked user reported locked")
	}
	u.AccountLockReason = "spam"
	if !u.Locked(time.Now()) {
		t.Fatal("indefinite lock should report locked")
	}
}
