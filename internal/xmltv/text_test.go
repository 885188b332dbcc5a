package xmltv

import (
	"testing"

	"golang.org/x/text/language"
)

func TestExtract(t *testing.T) {
	var nilText *Text
	cases := []struct {
		name string
		in   any
		want string
	}{
		{"string", "Hello", "Hello"},
		{"text", Text{Value: "Bonjour", Lang: "fr"}, "Bonjour"},
		{"pointer", &Text{Value: "x"}, "x"},
		{"nil pointer", nilText, ""},
		{"slice", []Text{{Value: ""}, {Value: "second"}}, "second"},
		{"strings", []string{"", "b"}, "b"},
		{"nil", nil, ""},
		{"number", 42, ""},
		{"map", map[string]string{"a": "b"}, ""},
	}
	for _, tc := range cases {
		got := Extract(tc.in)
		if got != tc.want {
			t.Errorf("%s: Extract=%q want %q", tc.name, got, tc.want)
		}
		if again := Extract(got); again != got {
			t.Errorf("%s: Extract not idempotent: %q then %q", tc.name, got, again)
		}
	}
}

func TestPick(t *testing.T) {
	nodes := []Text{{Value: "Hello", Lang: "en"}, {Value: "Bonjour", Lang: "fr"}, {Value: "untagged"}}
	if got := Pick(nodes, []language.Tag{language.French}); got != "Bonjour" {
		t.Fatalf("Pick(fr)=%q", got)
	}
	if got := Pick(nodes, nil); got != "Hello" {
		t.Fatalf("Pick(nil)=%q", got)
	}
	if got := Pick([]Text{{Value: "only"}}, []language.Tag{language.German}); got != "only" {
		t.Fatalf("Pick untagged=%q", got)
	}
	if got := Pick(nil, nil); got != "" {
		t.Fatalf("Pick empty=%q", got)
	}
}

func TestParseLangs(t *testing.T) {
	got := ParseLangs("fr, en,,???")
	if len(got) != 2 || got[0].String() != "fr" || got[1].String() != "en" {
		t.Fatalf("ParseLangs=%v", got)
	}
}
