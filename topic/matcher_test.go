package topic

import "testing"

func TestMatchesBasic(t *testing.T) {
	cases := []struct {
		filter, topic string
		want          bool
	}{
		{"a/b/c", "a/b/c", true},
		{"a/b/c", "a/b/d", false},
		{"a/+/c", "a/x/c", true},
		{"a/+/c", "a/x/y/c", false},
		{"a/#", "a/b/c", true},
		{"a/#", "a", true},
		{"#", "a/b/c", true},
		{"+/b", "a/b", true},
		{"+/+", "a/b", true},
		{"$SYS/stats", "$SYS/stats", true},
		{"+/stats", "$SYS/stats", false},
		{"#", "$SYS/stats", false},
		{"$SYS/#", "$SYS/stats", true},
	}
	for _, c := range cases {
		f, err := Compile(c.filter)
		if err != nil {
			t.Fatalf("Compile(%q): %v", c.filter, err)
		}
		if got := f.Matches(c.topic); got != c.want {
			t.Errorf("Filter(%q).Matches(%q) = %v, want %v", c.filter, c.topic, got, c.want)
		}
	}
}

func TestMatchedWildcards(t *testing.T) {
	f, err := Compile("sport/+/player1/#")
	if err != nil {
		t.Fatal(err)
	}
	got := f.MatchedWildcards("sport/tennis/player1/ranking/2024")
	want := []string{"tennis", "ranking/2024"}
	if len(got) != len(want) {
		t.Fatalf("got %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("capture %d = %q, want %q", i, got[i], want[i])
		}
	}
}

func TestShareGroup(t *testing.T) {
	f, err := Compile("$share/g1/sensors/+/temp")
	if err != nil {
		t.Fatal(err)
	}
	if f.ShareGroup() != "g1" {
		t.Errorf("ShareGroup() = %q, want g1", f.ShareGroup())
	}
	if !f.Matches("sensors/3/temp") {
		t.Error("expected shared-subscription filter to match the topic without the $share prefix")
	}
}

func TestCompileRejectsInvalid(t *testing.T) {
	for _, filter := range []string{"", "a/#/b", "a/b#", "a+/b"} {
		if _, err := Compile(filter); err == nil {
			t.Errorf("Compile(%q) succeeded, want error", filter)
		}
	}
}
