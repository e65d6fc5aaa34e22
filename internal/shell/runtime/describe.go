package runtime

// Node is a JSON-friendly view of a resolved value.
type Node struct {
	Type        string      `json:"type,omitempty"`
	Constructor string      `json:"constructor,omitempty"`
	Factory     string      `json:"factory,omitempty"`
	Name        string      `json:"name,omitempty"`
	Value       any         `json:"value,omitempty"`
	Args        []Node      `json:"args,omitempty"`
	Injections  []Injection `json:"injections,omitempty"`
	Items       []Node      `json:"items,omitempty"`
}

// Injection is a member call recorded on an Instance.
type Injection struct {
	Member string `json:"member"`
	Args   []Node `json:"args,omitempty"`
}

// Describe converts a resolved value into a Node tree. Deferred values are
// not evaluated.
func Describe(v any) Node {
	switch x := v.(type) {
	case *Instance:
		n := Node{Type: x.Type, Constructor: x.Constructor, Factory: x.Factory, Args: describeArgs(x.Args)}
		for _, c := range x.Injections {
			n.Injections = append(n.Injections, Injection{Member: c.Member, Args: describeArgs(c.Args)})
		}
		return n
	case *Lazy:
		return Node{Type: "lazy"}
	case Func:
		return Node{Type: "func"}
	case []any:
		return Node{Type: "many", Items: describeItems(x)}
	case Tuple:
		return Node{Type: "tuple", Items: describeItems(x)}
	}
	return Node{Value: v}
}

func describeArgs(args []Arg) []Node {
	if len(args) == 0 {
		return nil
	}
	out := make([]Node, len(args))
	for i, a := range args {
		out[i] = Describe(a.Value)
		out[i].Name = a.Name
	}
	return out
}

func describeItems(items []any) []Node {
	out := make([]Node, len(items))
	for i, it := range items {
		out[i] = Describe(it)
	}
	return out
}
