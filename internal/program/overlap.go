package program

// Overlap reports whether two patterns may match a common value. It is a
// syntactic over-approximation: anything it cannot rule out overlaps.
func Overlap(a, b *Pattern) bool {
	if a.Kind == PAnd {
		for _, sub := range a.Args {
			if !Overlap(sub, b) {
				return false
			}
		}
		return true
	}
	if b.Kind == PAnd {
		return Overlap(b, a)
	}
	switch {
	case a.Kind == PVar || a.Kind == PWildcard || b.Kind == PVar || b.Kind == PWildcard:
		return true
	case a.Kind == PInt && b.Kind == PInt:
		return a.Value.Cmp(b.Value) == 0
	case a.Kind == PConst && b.Kind == PConst && a.Name == b.Name:
		return true
	case a.Kind == PVariant && b.Kind == PVariant:
		if a.Enum != b.Enum || a.Variant != b.Variant {
			return false
		}
		return argsOverlap(a.Args, b.Args)
	case a.Kind == PTerm && b.Kind == PTerm && a.Name == b.Name:
		return argsOverlap(a.Args, b.Args)
	}
	return true
}

func argsOverlap(a, b []*Pattern) bool {
	if len(a) != len(b) {
		return true
	}
	for i := range a {
		if !Overlap(a[i], b[i]) {
			return false
		}
	}
	return true
}

// RulesOverlap reports whether two rules of the same root may both match
// one invocation.
func RulesOverlap(a, b *Rule) bool {
	if a.Root != b.Root {
		return false
	}
	return argsOverlap(a.Args, b.Args)
}
