// Package symtab holds the compiled structural description of classes and
// triggers ("symbol tables") as delivered by the compiler, and the members
// that carry them.
package symtab

import (
	"encoding/json"
	"fmt"
	"strings"
)

// MemberKind distinguishes class members from trigger members.
type MemberKind string

const (
	MemberClass   MemberKind = "class"
	MemberTrigger MemberKind = "trigger"
)

// TriggerActive is the status of a trigger that fires.
const TriggerActive = "Active"

// Member is one compiled unit of the input feed.
type Member struct {
	ID          string       `json:"id"`
	Kind        MemberKind   `json:"kind"`
	DisplayName string       `json:"displayName"`
	Namespace   string       `json:"namespace,omitempty"`
	Status      string       `json:"status,omitempty"`
	SymbolTable *SymbolTable `json:"symbolTable"`
	// Digest identifies the raw symbol table content; empty when unknown.
	Digest string `json:"digest,omitempty"`
}

// Position is a 1-based source location.
type Position struct {
	Line   int `json:"line"`
	Column int `json:"column"`
}

// Before orders positions by line then column.
func (p Position) Before(o Position) bool {
	if p.Line != o.Line {
		return p.Line < o.Line
	}
	return p.Column < o.Column
}

type Parameter struct {
	Name string `json:"name"`
	Type string `json:"type"`
}

type Annotation struct {
	Name string `json:"name"`
}

// Method describes a constructor or a method. Constructors carry no return type.
// Parameters are read from either "parameters" or "parameterList".
type Method struct {
	Name        string       `json:"name"`
	ReturnType  string       `json:"returnType,omitempty"`
	Parameters  []Parameter  `json:"parameters"`
	Modifiers   []string     `json:"modifiers"`
	Annotations []Annotation `json:"annotations"`
	Location    Position     `json:"location"`
	References  []Position   `json:"references"`
}

func (m *Method) UnmarshalJSON(b []byte) error {
	type plain Method
	aux := struct {
		*plain
		ParameterList []Parameter `json:"parameterList"`
	}{plain: (*plain)(m)}
	if err := json.Unmarshal(b, &aux); err != nil {
		return err
	}
	if len(m.Parameters) == 0 {
		m.Parameters = aux.ParameterList
	}
	return nil
}

type Property struct {
	Name     string   `json:"name"`
	Type     string   `json:"type"`
	Location Position `json:"location"`
}

type Declaration struct {
	Modifiers []string `json:"modifiers"`
	Location  Position `json:"location"`
}

// ExternalMethod is a method invoked on an external reference target.
type ExternalMethod struct {
	Name       string     `json:"name"`
	References []Position `json:"references"`
}

// ExternalReference names a type used by the table's code.
type ExternalReference struct {
	Name      string           `json:"name"`
	Namespace string           `json:"namespace"`
	Methods   []ExternalMethod `json:"methods"`
}

// SymbolTable is the recursive structural description of one class or trigger.
// The compiler's spellings "parentClassName", "interfaceNames" and a
// table-level "modifiers" list are accepted alongside the canonical keys.
type SymbolTable struct {
	Namespace          string              `json:"namespace"`
	Name               string              `json:"name"`
	ParentClass        string              `json:"parentClass"`
	Interfaces         []string            `json:"interfaces"`
	TableDeclaration   *Declaration        `json:"tableDeclaration"`
	Constructors       []Method            `json:"constructors"`
	Methods            []Method            `json:"methods"`
	Properties         []Property          `json:"properties"`
	InnerClasses       []*SymbolTable      `json:"innerClasses"`
	ExternalReferences []ExternalReference `json:"externalReferences"`
}

func (t *SymbolTable) UnmarshalJSON(b []byte) error {
	type plain SymbolTable
	aux := struct {
		*plain
		ParentClassName string   `json:"parentClassName"`
		InterfaceNames  []string `json:"interfaceNames"`
		Modifiers       []string `json:"modifiers"`
	}{plain: (*plain)(t)}
	if err := json.Unmarshal(b, &aux); err != nil {
		return err
	}
	if t.ParentClass == "" {
		t.ParentClass = aux.ParentClassName
	}
	if len(t.Interfaces) == 0 {
		t.Interfaces = aux.InterfaceNames
	}
	if len(aux.Modifiers) > 0 {
		if t.TableDeclaration == nil {
			t.TableDeclaration = &Declaration{}
		}
		if len(t.TableDeclaration.Modifiers) == 0 {
			t.TableDeclaration.Modifiers = aux.Modifiers
		}
	}
	return nil
}

// Modifiers returns the table-level modifiers.
func (t *SymbolTable) Modifiers() []string {
	if t == nil || t.TableDeclaration == nil {
		return nil
	}
	return t.TableDeclaration.Modifiers
}

// FullName is namespace.name when namespaced, else name.
func FullName(namespace, name string) string {
	if namespace == "" {
		return name
	}
	return namespace + "." + name
}

// HasModifier reports whether modifiers contains m, ignoring case.
func HasModifier(modifiers []string, m string) bool {
	for _, it := range modifiers {
		if strings.EqualFold(it, m) {
			return true
		}
	}
	return false
}

// IsTest reports whether the modifiers mark test code.
func IsTest(modifiers []string) bool {
	return HasModifier(modifiers, "testMethod")
}

// AccessModifier returns the effective access level. When several are present
// the most restrictive wins.
func AccessModifier(modifiers []string) string {
	for _, m := range []string{"private", "protected", "public", "global"} {
		if HasModifier(modifiers, m) {
			return m
		}
	}
	return ""
}

// JoinList joins list values with the separator used for multi-valued fields.
func JoinList(values []string) string {
	return strings.Join(values, ";")
}

// SplitList is the inverse of JoinList, dropping empty entries.
func SplitList(s string) []string {
	if s == "" {
		return nil
	}
	parts := strings.Split(s, ";")
	out := parts[:0]
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

// DecodeMember validates raw against the member schema and decodes it.
func DecodeMember(raw []byte) (*Member, error) {
	if err := Validate(raw); err != nil {
		return nil, err
	}
	var m Member
	if err := json.Unmarshal(raw, &m); err != nil {
		return nil, fmt.Errorf("decode member: %w", err)
	}
	return &m, nil
}

// DecodeSymbolTable decodes a stored symbol table. Empty input or JSON null
// decodes to nil.
func DecodeSymbolTable(raw []byte) (*SymbolTable, error) {
	if len(raw) == 0 || string(raw) == "null" {
		return nil, nil
	}
	var t SymbolTable
	if err := json.Unmarshal(raw, &t); err != nil {
		return nil, fmt.Errorf("decode symbol table: %w", err)
	}
	return &t, nil
}
