// Package naming converts raw file names into canonical naming styles.
package naming

import (
	"fmt"
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/goccy/go-yaml"
)

// Style represents a naming style applied to file base names.
type Style int

const (
	// AsIs leaves the name untouched.
	AsIs Style = iota
	// PascalCase produces "PlayerModel".
	PascalCase
	// CamelCase produces "playerModel".
	CamelCase
	// SnakeCase produces "player_model".
	SnakeCase
	// KebabCase produces "player-model".
	KebabCase
	// UpperCase produces "PLAYER MODEL" (no tokenization).
	UpperCase
	// LowerCase produces "player model" (no tokenization).
	LowerCase
)

var styleNames = map[Style]string{
	AsIs:       "as-is",
	PascalCase: "pascal",
	CamelCase:  "camel",
	SnakeCase:  "snake",
	KebabCase:  "kebab",
	UpperCase:  "upper",
	LowerCase:  "lower",
}

// String returns the canonical name of the style.
func (s Style) String() string {
	if name, ok := styleNames[s]; ok {
		return name
	}
	return "unknown"
}

// AllStyles returns the canonical names of every supported style, in declaration order.
func AllStyles() []string {
	out := make([]string, 0, len(styleNames))
	for s := AsIs; s <= LowerCase; s++ {
		out = append(out, s.String())
	}
	return out
}

// ParseStyle converts a style name to a Style.
// Accepts the canonical names ("pascal") and the long forms ("PascalCase"), case-insensitively.
func ParseStyle(name string) (Style, error) {
	n := strings.ToLower(strings.TrimSpace(name))
	n = strings.TrimSuffix(n, "case")
	n = strings.Trim(n, "-_ ")

	switch n {
	case "", "as-is", "asis", "as_is", "none":
		return AsIs, nil
	case "pascal":
		return PascalCase, nil
	case "camel":
		return CamelCase, nil
	case "snake":
		return SnakeCase, nil
	case "kebab":
		return KebabCase, nil
	case "upper":
		return UpperCase, nil
	case "lower":
		return LowerCase, nil
	}

	return AsIs, fmt.Errorf("unknown naming style %q", name)
}

// MarshalText implements encoding.TextMarshaler.
func (s Style) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (s *Style) UnmarshalText(text []byte) error {
	parsed, err := ParseStyle(string(text))
	if err != nil {
		return err
	}
	*s = parsed
	return nil
}

// MarshalYAML implements yaml.BytesMarshaler.
func (s Style) MarshalYAML() ([]byte, error) {
	return []byte(s.String()), nil
}

// UnmarshalYAML implements yaml.BytesUnmarshaler.
func (s *Style) UnmarshalYAML(data []byte) error {
	var name string
	if err := yaml.Unmarshal(data, &name); err != nil {
		return fmt.Errorf("decode naming style: %w", err)
	}
	return s.UnmarshalText([]byte(name))
}

// Apply converts raw into the given style.
//
// PascalCase and CamelCase tokenize on space, underscore and hyphen (and on
// existing humps, so already-converted names stay stable).
// SnakeCase and KebabCase instead detect lower-to-upper case transitions and
// keep every separator, so converting between the two families is not
// guaranteed to round-trip. Unknown styles return raw unchanged.
func Apply(raw string, style Style) string {
	switch style {
	case PascalCase:
		return toPascal(raw)
	case CamelCase:
		return lowerFirst(toPascal(raw))
	case SnakeCase:
		return toSnake(raw)
	case KebabCase:
		return strings.ReplaceAll(toSnake(raw), "_", "-")
	case UpperCase:
		return strings.ToUpper(raw)
	case LowerCase:
		return strings.ToLower(raw)
	case AsIs:
		return raw
	default:
		return raw
	}
}

// Tokens splits raw into words on space, underscore and hyphen, ignoring empty tokens.
func Tokens(raw string) []string {
	return strings.FieldsFunc(raw, isSeparator)
}

func isSeparator(r rune) bool {
	return r == ' ' || r == '_' || r == '-'
}

func toPascal(raw string) string {
	var b strings.Builder
	b.Grow(len(raw))
	for _, tok := range Tokens(raw) {
		for _, word := range splitHumps(tok) {
			b.WriteString(UpperFirst(strings.ToLower(word)))
		}
	}
	return b.String()
}

// splitHumps splits a token at lower/digit to upper transitions.
// "playerModel" -> ["player", "Model"]; "UIButton" stays whole.
func splitHumps(tok string) []string {
	var words []string
	start := 0
	prev := rune(-1)
	for i, r := range tok {
		if unicode.IsUpper(r) && prev != -1 && (unicode.IsLower(prev) || unicode.IsDigit(prev)) {
			words = append(words, tok[start:i])
			start = i
		}
		prev = r
	}
	return append(words, tok[start:])
}

// toSnake inserts an underscore at every lower/digit to upper transition,
// lower-cases the result and maps spaces and hyphens to underscores.
func toSnake(raw string) string {
	var b strings.Builder
	b.Grow(len(raw) + 4)

	prev := rune(-1)
	for _, r := range raw {
		if unicode.IsUpper(r) && prev != -1 && (unicode.IsLower(prev) || unicode.IsDigit(prev)) {
			b.WriteByte('_')
		}
		switch r {
		case ' ', '-':
			b.WriteByte('_')
		default:
			b.WriteRune(unicode.ToLower(r))
		}
		prev = r
	}
	return b.String()
}

// UpperFirst upper-cases the first rune of s.
func UpperFirst(s string) string {
	r, size := utf8.DecodeRuneInString(s)
	if r == utf8.RuneError {
		return s
	}
	return string(unicode.ToUpper(r)) + s[size:]
}

func lowerFirst(s string) string {
	r, size := utf8.DecodeRuneInString(s)
	if r == utf8.RuneError {
		return s
	}
	return string(unicode.ToLower(r)) + s[size:]
}
