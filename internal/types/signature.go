package types

import (
	"strings"
)

// Signature is a concrete instantiation of a term's argument and return
// types.
type Signature struct {
	Args []Compound
	Ret  Compound
}

func (s Signature) String() string {
	args := make([]string, len(s.Args))
	for i, a := range s.Args {
		args[i] = a.String()
	}
	return "(args " + strings.Join(args, " ") + ") (ret " + s.Ret.String() + ")"
}

// Equal compares two signatures structurally.
func (s Signature) Equal(o Signature) bool {
	if len(s.Args) != len(o.Args) || !Equal(s.Ret, o.Ret) {
		return false
	}
	for i := range s.Args {
		if !Equal(s.Args[i], o.Args[i]) {
			return false
		}
	}
	return true
}
