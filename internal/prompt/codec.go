package prompt

import (
	"fmt"
	"strconv"
	"strings"
	"unicode/utf16"

	"github.com/ashureev/rolelink/internal/discord"
)

const (
	// MaxCustomIDLength is Discord's custom id ceiling in UTF-16 code units.
	MaxCustomIDLength = 100

	// SplitChar prefixes each schema field after the base segments.
	SplitChar = "\U0001D15D"

	sep          = ":"
	baseSegments = 6
)

// FieldKind is the type of a schema field.
type FieldKind int

const (
	FieldString FieldKind = iota
	FieldInt
)

// SchemaField declares one wizard-specific custom id field.
type SchemaField struct {
	Name string
	Kind FieldKind
}

// Schema is the ordered list of extra fields a wizard encodes.
type Schema []SchemaField

// Check reports whether extra matches the schema in arity, names and kinds,
// so that an identity carrying it encodes to a token Decode accepts.
func (s Schema) Check(extra []Field) error {
	if len(extra) != len(s) {
		return fmt.Errorf("%w: want %d fields, got %d", ErrMalformedToken, len(s), len(extra))
	}
	for i, f := range s {
		if extra[i].Name != f.Name {
			return fmt.Errorf("%w: field %d is %q, want %q", ErrMalformedToken, i, extra[i].Name, f.Name)
		}
		if f.Kind == FieldInt {
			if _, err := strconv.ParseInt(extra[i].Value, 10, 64); err != nil {
				return fmt.Errorf("%w: field %s is not an integer", ErrMalformedToken, f.Name)
			}
		}
	}
	return nil
}

// Field is a named extra value carried in a custom id.
type Field struct {
	Name  string
	Value string
}

// Identity is everything a custom id carries.
type Identity struct {
	Command   string
	Wizard    string
	UserID    discord.Snowflake
	MessageID discord.Snowflake
	Page      int
	Component string
	Extra     []Field
}

// Get returns the extra field called name, or "".
func (id Identity) Get(name string) string {
	for _, f := range id.Extra {
		if f.Name == name {
			return f.Value
		}
	}
	return ""
}

// Int returns the extra field called name as an integer, or 0.
func (id Identity) Int(name string) int64 {
	v, _ := strconv.ParseInt(id.Get(name), 10, 64)
	return v
}

// Route is the part of a custom id needed to find its wizard.
type Route struct {
	Command string
	Wizard  string
}

// Length returns the length of s as Discord counts it.
func Length(s string) int {
	return len(utf16.Encode([]rune(s)))
}

// Encode packs id into a custom id.
func Encode(id Identity) (string, error) {
	for _, seg := range []string{id.Command, id.Wizard, id.Component} {
		if strings.Contains(seg, sep) || strings.Contains(seg, SplitChar) {
			return "", fmt.Errorf("%w: segment %q contains a separator", ErrMalformedToken, seg)
		}
	}
	if id.Page < 0 {
		return "", fmt.Errorf("%w: negative page %d", ErrMalformedToken, id.Page)
	}

	var b strings.Builder
	b.WriteString(id.Command)
	b.WriteString(sep)
	b.WriteString(id.Wizard)
	b.WriteString(sep)
	b.WriteString(id.UserID.String())
	b.WriteString(sep)
	if id.MessageID != 0 {
		b.WriteString(id.MessageID.String())
	}
	b.WriteString(sep)
	b.WriteString(strconv.Itoa(id.Page))
	b.WriteString(sep)
	b.WriteString(id.Component)
	for _, f := range id.Extra {
		if strings.Contains(f.Value, SplitChar) {
			return "", fmt.Errorf("%w: field %s contains the split character", ErrMalformedToken, f.Name)
		}
		b.WriteString(SplitChar)
		b.WriteString(f.Value)
	}

	s := b.String()
	if n := Length(s); n > MaxCustomIDLength {
		return "", fmt.Errorf("%w: %d > %d", ErrTooLong, n, MaxCustomIDLength)
	}
	return s, nil
}

// Decode unpacks a custom id produced by Encode for a wizard using schema.
func Decode(customID string, schema Schema) (Identity, error) {
	var id Identity
	if Length(customID) > MaxCustomIDLength {
		return id, fmt.Errorf("%w: over length", ErrMalformedToken)
	}

	parts := strings.Split(customID, SplitChar)
	base := strings.Split(parts[0], sep)
	if len(base) != baseSegments {
		return id, fmt.Errorf("%w: want %d segments, got %d", ErrMalformedToken, baseSegments, len(base))
	}
	extras := parts[1:]
	if len(extras) != len(schema) {
		return id, fmt.Errorf("%w: want %d fields, got %d", ErrMalformedToken, len(schema), len(extras))
	}

	id.Command, id.Wizard, id.Component = base[0], base[1], base[5]
	if id.Wizard == "" {
		return id, fmt.Errorf("%w: empty wizard", ErrMalformedToken)
	}

	user, err := strconv.ParseUint(base[2], 10, 64)
	if err != nil {
		return id, fmt.Errorf("%w: user: %v", ErrMalformedToken, err)
	}
	id.UserID = discord.Snowflake(user)

	if base[3] != "" {
		msg, err := strconv.ParseUint(base[3], 10, 64)
		if err != nil {
			return id, fmt.Errorf("%w: message: %v", ErrMalformedToken, err)
		}
		id.MessageID = discord.Snowflake(msg)
	}

	if id.Page, err = strconv.Atoi(base[4]); err != nil || id.Page < 0 {
		return id, fmt.Errorf("%w: page %q", ErrMalformedToken, base[4])
	}

	for i, f := range schema {
		id.Extra = append(id.Extra, Field{Name: f.Name, Value: extras[i]})
	}
	if err := schema.Check(id.Extra); err != nil {
		return id, err
	}
	return id, nil
}

// Peek extracts the routing segments without knowing the wizard's schema.
func Peek(customID string) (Route, error) {
	head, _, _ := strings.Cut(customID, SplitChar)
	base := strings.Split(head, sep)
	if len(base) != baseSegments || base[1] == "" {
		return Route{}, ErrMalformedToken
	}
	return Route{Command: base[0], Wizard: base[1]}, nil
}
