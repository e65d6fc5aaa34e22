package diag

// Collector accumulates diagnostics for one definition. Reports with the
// same kind, location and message are kept once; hidden ones are dropped.
type Collector struct {
	overrides Overrides
	items     []Diagnostic
	seen      map[string]struct{}
}

// NewCollector creates a collector applying the given severity overrides.
func NewCollector(overrides Overrides) *Collector {
	return &Collector{
		overrides: overrides,
		seen:      make(map[string]struct{}),
	}
}

// Severity returns the effective severity for kind.
func (c *Collector) Severity(kind Kind) Severity {
	if s, ok := c.overrides[kind]; ok {
		return s
	}
	return DefaultSeverity(kind)
}

// Add records d with its severity recomputed from the kind. It returns
// false when the diagnostic was hidden or a duplicate.
func (c *Collector) Add(d Diagnostic) bool {
	d.Severity = c.Severity(d.Kind)
	if d.Severity == SeverityHidden {
		return false
	}
	key := string(d.Kind) + "|" + d.Location.String() + "|" + d.Message()
	if _, dup := c.seen[key]; dup {
		return false
	}
	c.seen[key] = struct{}{}
	c.items = append(c.items, d)
	return true
}

// Report is a shorthand for Add.
func (c *Collector) Report(kind Kind, loc Location, root, template string, params ...string) bool {
	return c.Add(Diagnostic{
		Kind:     kind,
		Template: template,
		Params:   params,
		Location: loc,
		Root:     root,
	})
}

// Items returns a copy of the collected diagnostics in emission order.
func (c *Collector) Items() []Diagnostic {
	out := make([]Diagnostic, len(c.items))
	copy(out, c.items)
	return out
}

// Len returns the number of collected diagnostics.
func (c *Collector) Len() int {
	return len(c.items)
}

// HasFatal reports whether any collected diagnostic is an error.
func (c *Collector) HasFatal() bool {
	for _, d := range c.items {
		if d.Fatal() {
			return true
		}
	}
	return false
}

// Count returns how many diagnostics of the given severity were collected.
func (c *Collector) Count(s Severity) int {
	n := 0
	for _, d := range c.items {
		if d.Severity == s {
			n++
		}
	}
	return n
}
