package entity

import "fmt"

// Kind is the closed set of entity types a snapshot is made of.
type Kind int

const (
	KindSnapshot Kind = iota
	KindClass
	KindTrigger
	KindMethod
	KindProperty
	KindInterfaceImplementation
	KindMethodReference
	KindDeclaration
	KindMethodDeclaration
)

// CommitOrder lists every kind in the order a commit persists them. A kind's
// relationship targets always precede it.
var CommitOrder = []Kind{
	KindSnapshot,
	KindClass,
	KindTrigger,
	KindMethod,
	KindProperty,
	KindInterfaceImplementation,
	KindMethodReference,
	KindDeclaration,
	KindMethodDeclaration,
}

func (k Kind) String() string {
	switch k {
	case KindSnapshot:
		return "Snapshot"
	case KindClass:
		return "Class"
	case KindTrigger:
		return "Trigger"
	case KindMethod:
		return "Method"
	case KindProperty:
		return "Property"
	case KindInterfaceImplementation:
		return "InterfaceImplementation"
	case KindMethodReference:
		return "MethodReference"
	case KindDeclaration:
		return "Declaration"
	case KindMethodDeclaration:
		return "MethodDeclaration"
	}
	return fmt.Sprintf("Kind(%d)", int(k))
}

// Valid reports whether k is one of the declared kinds.
func (k Kind) Valid() bool {
	return k >= KindSnapshot && k <= KindMethodDeclaration
}

// IsGraphNode reports whether entities of this kind take part in the usage
// graph. Properties and declarations carry no reachability of their own.
func (k Kind) IsGraphNode() bool {
	switch k {
	case KindClass, KindTrigger, KindMethod:
		return true
	case KindSnapshot, KindProperty, KindInterfaceImplementation,
		KindMethodReference, KindDeclaration, KindMethodDeclaration:
		return false
	}
	return false
}

// ParseKind is the inverse of Kind.String.
func ParseKind(s string) (Kind, error) {
	for _, k := range CommitOrder {
		if k.String() == s {
			return k, nil
		}
	}
	return 0, fmt.Errorf("unknown entity kind %q", s)
}

func (k Kind) MarshalText() ([]byte, error) {
	if !k.Valid() {
		return nil, fmt.Errorf("marshal %s: invalid kind", k)
	}
	return []byte(k.String()), nil
}

func (k *Kind) UnmarshalText(b []byte) error {
	parsed, err := ParseKind(string(b))
	if err != nil {
		return err
	}
	*k = parsed
	return nil
}
