package types

// WrapperKind classifies the built-in wrapper contracts that are satisfied
// without an explicit binding.
type WrapperKind int

const (
	WrapperNone WrapperKind = iota
	WrapperLazy
	WrapperFunc
	WrapperMany
	WrapperTuple
)

func (k WrapperKind) String() string {
	switch k {
	case WrapperLazy:
		return "lazy"
	case WrapperFunc:
		return "func"
	case WrapperMany:
		return "many"
	case WrapperTuple:
		return "tuple"
	default:
		return "none"
	}
}

// Wrapper returns the wrapper kind of t, if any.
//
//	Lazy<T>                  deferred single value
//	Func<T>, Func<A1..An,T>  factory, optionally parameterised
//	IEnumerable<T>           every binding of T
//	Tuple<T1..Tn>            components resolved independently
func Wrapper(t Type) WrapperKind {
	if t.Marker {
		return WrapperNone
	}
	switch {
	case t.Name == "Lazy" && len(t.Args) == 1:
		return WrapperLazy
	case t.Name == "Func" && len(t.Args) >= 1:
		return WrapperFunc
	case (t.Name == "IEnumerable" || t.Name == "IReadOnlyCollection" || t.Name == "Many") && len(t.Args) == 1:
		return WrapperMany
	case (t.Name == "Tuple" || t.Name == "ValueTuple") && len(t.Args) >= 1:
		return WrapperTuple
	}
	return WrapperNone
}

// FuncParts splits a Func wrapper into argument types and the result type.
func FuncParts(t Type) (args []Type, result Type) {
	n := len(t.Args)
	return t.Args[:n-1], t.Args[n-1]
}
