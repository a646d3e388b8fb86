// Package templates renders user-facing notices from configured message
// templates. A template set is either a single string or a list of candidates,
// one of which is picked uniformly at random per occurrence. Placeholders use
// the %name% form.
package templates

import (
	"math/rand"
	"strings"
)

type Set []string

// UnmarshalYAML accepts both a bare string and a list of strings.
func (s *Set) UnmarshalYAML(unmarshal func(interface{}) error) error {
	var one string
	if err := unmarshal(&one); err == nil {
		*s = Set{one}
		return nil
	}
	var many []string
	if err := unmarshal(&many); err != nil {
		return err
	}
	*s = many
	return nil
}

func (s Set) Pick() string {
	switch len(s) {
	case 0:
		return ""
	case 1:
		return s[0]
	default:
		return s[rand.Intn(len(s))]
	}
}

// Render picks a candidate from the set and substitutes %key% placeholders.
func (s Set) Render(data map[string]string) string {
	return Render(s.Pick(), data)
}

func Render(template string, data map[string]string) string {
	if template == "" {
		return ""
	}
	pairs := make([]string, 0, len(data)*2)
	for key, value := range data {
		pairs = append(pairs, "%"+key+"%", value)
	}
	return strings.NewReplacer(pairs...).Replace(template)
}
