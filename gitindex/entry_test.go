package gitindex

import "testing"

func TestShardPath(t *testing.T) {
	cases := map[string]string{
		"f":      "1/f",
		"fo":     "2/fo",
		"foo":    "3/f/foo",
		"FooBar": "fo/ob/foobar",
		"ab":     "2/ab",
	}
	for name, want := range cases {
		if got := ShardPath(name); got != want {
			t.Errorf("ShardPath(%q) = %q, want %q", name, got, want)
		}
	}
}

func TestEncodeDecodeRoundTrip(t *testing.T) {
	entries := []Entry{
		{
			Name:  "foo",
			Vers:  "1.0.0",
			Cksum: "abc123",
			Deps: []Dependency{
				{Name: "bar", Req: "^1", Kind: "normal", DefaultFeatures: true},
			},
			Features: map[string][]string{"default": {"bar"}},
		},
		{Name: "foo", Vers: "1.1.0", Cksum: "def456", Yanked: true},
	}

	data, err := EncodeFile(entries)
	if err != nil {
		t.Fatalf("EncodeFile: %v", err)
	}
	got, err := DecodeFile(data)
	if err != nil {
		t.Fatalf("DecodeFile: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("got %d entries, want 2", len(got))
	}
	if got[1].Yanked != true || got[1].Vers != "1.1.0" {
		t.Fatalf("unexpected second entry: %+v", got[1])
	}
}

func TestNormalizeDefaultsKindAndDropsEmptyFeatures(t *testing.T) {
	entries := []Entry{
		{
			Name: "foo",
			Vers: "1.0.0",
			Deps: []Dependency{
				{Name: "z", Req: "1", Features: []string{"x", "", "y"}},
				{Name: "a", Req: "1"},
			},
		},
	}
	got := Normalize(entries)
	deps := got[0].Deps
	if len(deps) != 2 || deps[0].Name != "a" || deps[1].Name != "z" {
		t.Fatalf("deps not sorted: %+v", deps)
	}
	if deps[0].Kind != "normal" || deps[1].Kind != "normal" {
		t.Fatalf("kind not defaulted: %+v", deps)
	}
	if len(deps[1].Features) != 2 {
		t.Fatalf("empty feature not dropped: %+v", deps[1].Features)
	}
}
