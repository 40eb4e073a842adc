package fsprog

// Arg is one syscall argument: either a literal or a reference to a variable.
type Arg struct {
	value      int64
	index      Index
	isVariable bool
}

// NewArg builds an argument from x. When isVariable is set and x is
// non-negative, x is taken as a variable index; otherwise x is a literal.
func NewArg(x int64, isVariable bool) Arg {
	if isVariable && x >= 0 {
		return Arg{index: Index(x), isVariable: true}
	}
	return Arg{value: x}
}

// Lit returns a literal argument.
func Lit(v int64) Arg { return Arg{value: v} }

// Ref returns an argument referencing variable i.
func Ref(i Index) Arg {
	if i < 0 {
		invariant("Ref", "negative variable index %d", i)
	}
	return Arg{index: i, isVariable: true}
}

func (a Arg) IsVariable() bool { return a.isVariable }

// Literal returns the literal value, if the argument is one.
func (a Arg) Literal() (int64, bool) {
	if a.isVariable {
		return 0, false
	}
	return a.value, true
}

// Index returns the referenced variable, if the argument is a reference.
func (a Arg) Index() (Index, bool) {
	if !a.isVariable {
		return 0, false
	}
	return a.index, true
}
