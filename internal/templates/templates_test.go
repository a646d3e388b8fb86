package templates

import (
	"testing"

	yaml "gopkg.in/yaml.v2"
)

func TestSetUnmarshalYAML(t *testing.T) {
	t.Parallel()

	var doc struct {
		One  Set `yaml:"one"`
		Many Set `yaml:"many"`
	}
	input := `
one: "single line"
many:
  - "first"
  - "second"
`
	if err := yaml.Unmarshal([]byte(input), &doc); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if len(doc.One) != 1 || doc.One[0] != "single line" {
		t.Fatalf("one = %v, want single element set", doc.One)
	}
	if len(doc.Many) != 2 || doc.Many[0] != "first" || doc.Many[1] != "second" {
		t.Fatalf("many = %v, want two elements", doc.Many)
	}
}

func TestSetUnmarshalYAMLRejectsMapping(t *testing.T) {
	t.Parallel()

	var doc struct {
		Bad Set `yaml:"bad"`
	}
	if err := yaml.Unmarshal([]byte("bad:\n  key: value\n"), &doc); err == nil {
		t.Fatalf("expected error for mapping value, got %v", doc.Bad)
	}
}

func TestRender(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name string
		set  Set
		data map[string]string
		want string
	}{
		{"substitution", Set{"hi %user%, score %score%"}, map[string]string{"user": "bob", "score": "7"}, "hi bob, score 7"},
		{"missing key stays literal", Set{"hi %user%"}, map[string]string{"other": "x"}, "hi %user%"},
		{"empty set", Set{}, map[string]string{"user": "bob"}, ""},
		{"no placeholders", Set{"static"}, nil, "static"},
	}
	for _, tc := range cases {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			if got := tc.set.Render(tc.data); got != tc.want {
				t.Fatalf("Render = %q, want %q", got, tc.want)
			}
		})
	}
}

func TestPickStaysWithinSet(t *testing.T) {
	t.Parallel()

	set := Set{"a", "b", "c"}
	seen := map[string]bool{}
	for i := 0; i < 100; i++ {
		picked := set.Pick()
		switch picked {
		case "a", "b", "c":
			seen[picked] = true
		default:
			t.Fatalf("picked %q outside the set", picked)
		}
	}
	if len(seen) < 2 {
		t.Fatalf("picks never varied: %v", seen)
	}
}
