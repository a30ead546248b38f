package symbol

import "strings"

// Name is a linkable symbol identifier after platform decoration has been removed.
type Name = string

type Kind string

const (
	KindCommand    Kind = "command"
	KindNonCommand Kind = "non_command"
)

// Param is one declared parameter. Suffix holds an array declarator such as "[4]",
// kept apart from Name so forwarding can pass the bare identifier.
type Param struct {
	Type   string `json:"type" yaml:"type"`
	Name   string `json:"name" yaml:"name"`
	Suffix string `json:"suffix,omitempty" yaml:"suffix,omitempty"`
}

// Decl renders the parameter the way it appears in a prototype.
func (p Param) Decl() string {
	return joinType(p.Type, p.Name) + p.Suffix
}

// Signature is a parsed C prototype. A nil *Signature on an Entry means the
// signature is unknown.
type Signature struct {
	Return string  `json:"return"`
	Params []Param `json:"params"`
}

// ParamList renders the parameter list without surrounding parentheses.
// An empty list renders as "void".
func (s *Signature) ParamList() string {
	if s == nil || len(s.Params) == 0 {
		return "void"
	}
	parts := make([]string, 0, len(s.Params))
	for _, p := range s.Params {
		parts = append(parts, p.Decl())
	}
	return strings.Join(parts, ", ")
}

// ArgList renders the call arguments in declared order.
func (s *Signature) ArgList() string {
	if s == nil {
		return ""
	}
	names := make([]string, 0, len(s.Params))
	for _, p := range s.Params {
		names = append(names, p.Name)
	}
	return strings.Join(names, ", ")
}

// Clone returns a deep copy so callers can rewrite types without aliasing.
func (s *Signature) Clone() *Signature {
	if s == nil {
		return nil
	}
	out := &Signature{Return: s.Return, Params: make([]Param, len(s.Params))}
	copy(out.Params, s.Params)
	return out
}

// Entry is one expected entry point.
type Entry struct {
	Name      Name       `json:"name"`
	Base      string     `json:"base"`
	Kind      Kind       `json:"kind"`
	Signature *Signature `json:"signature,omitempty"`
	Companion bool       `json:"companion,omitempty"`
	Origin    string     `json:"origin,omitempty"`
}

func (e Entry) HasSignature() bool {
	return e.Signature != nil
}

type DispositionKind string

const (
	Satisfied DispositionKind = "satisfied"
	Forward   DispositionKind = "forward"
	Stub      DispositionKind = "stub"
)

type StubReason string

const (
	ReasonOptionalExtension StubReason = "optional_extension"
)

// Disposition is the reconciliation outcome for a single Entry.
type Disposition struct {
	Entry  Entry           `json:"entry"`
	Kind   DispositionKind `json:"kind"`
	Target Name            `json:"target,omitempty"`
	Reason StubReason      `json:"reason,omitempty"`
	Rule   string          `json:"rule,omitempty"`
	Note   string          `json:"note,omitempty"`
}

func joinType(typ, name string) string {
	typ = strings.TrimSpace(typ)
	if name == "" {
		return typ
	}
	return typ + " " + name
}
