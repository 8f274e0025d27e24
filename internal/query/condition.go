package query

import "sort"

// Term is one element of a Condition group: an Assertion, a Negation or a
// nested *Condition.
type Term interface {
	term()
}

// Assertion is a single "property operator argument" predicate.
// Argument is nil, bool, a number, a string, a []any of those (IN/NOT_IN),
// or a *Condition (HAS/NOT_HAS).
type Assertion struct {
	Property string
	Operator Operator
	Argument any
}

func (Assertion) term() {}

// Sub returns the nested condition of a HAS/NOT_HAS assertion.
func (a Assertion) Sub() *Condition {
	c, _ := a.Argument.(*Condition)
	return c
}

// Negation inverts exactly one term.
type Negation struct {
	Term Term
}

func (Negation) term() {}

// Negate wraps t in a Negation.
func Negate(t Term) Negation { return Negation{Term: t} }

// Condition is an ordered list of OR-groups, each an ordered list of terms
// combined with AND. In an OR condition every appended term opens its own
// group; a NOT condition inverts the result.
type Condition struct {
	logic  Logic
	groups [][]Term
}

func (*Condition) term() {}

// NewCondition returns an empty AND condition.
func NewCondition() *Condition {
	return &Condition{logic: LogicAnd}
}

// NewLogic returns an empty condition with the given logic.
func NewLogic(logic Logic) *Condition {
	return &Condition{logic: logic}
}

// Logic returns the combination flag of the condition.
func (c *Condition) Logic() Logic {
	if c.logic == "" {
		return LogicAnd
	}
	return c.logic
}

// Inverted reports whether the condition is a NOT condition.
func (c *Condition) Inverted() bool { return c.logic == LogicNot }

// IsEmpty reports whether no terms were ever added.
func (c *Condition) IsEmpty() bool { return c == nil || len(c.groups) == 0 }

// Groups returns the OR-groups of the condition. Callers must not mutate them.
func (c *Condition) Groups() [][]Term {
	if c == nil {
		return nil
	}
	return c.groups
}

// Terms returns every top-level term in order, across groups.
func (c *Condition) Terms() []Term {
	var out []Term
	for _, g := range c.Groups() {
		out = append(out, g...)
	}
	return out
}

// Add appends terms following the group rule of the condition's logic.
func (c *Condition) Add(terms ...Term) *Condition {
	for _, t := range terms {
		if c.logic == LogicOr || len(c.groups) == 0 {
			c.groups = append(c.groups, []Term{t})
			continue
		}
		last := len(c.groups) - 1
		c.groups[last] = append(c.groups[last], t)
	}
	return c
}

// Where appends the assertion "prop op arg".
func (c *Condition) Where(prop string, op Operator, arg any) *Condition {
	return c.Add(Assertion{Property: prop, Operator: op, Argument: arg})
}

// Nest appends sub as a single nested term.
func (c *Condition) Nest(sub *Condition) *Condition {
	return c.Add(sub)
}

// Group calls build with the receiver so terms can be added inline.
func (c *Condition) Group(build func(*Condition)) *Condition {
	build(c)
	return c
}

// Match appends one EQ assertion per key, in key order.
func (c *Condition) Match(fields map[string]any) *Condition {
	keys := make([]string, 0, len(fields))
	for k := range fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		c.Eq(k, fields[k])
	}
	return c
}

// Present appends "prop NEQ nil".
func (c *Condition) Present(prop string) *Condition {
	return c.Where(prop, OpNeq, nil)
}

// And appends a nested AND condition populated by build.
func (c *Condition) And(build func(*Condition)) *Condition {
	return c.nested(LogicAnd, build)
}

// Or appends a nested OR condition populated by build.
func (c *Condition) Or(build func(*Condition)) *Condition {
	return c.nested(LogicOr, build)
}

// Not appends a nested NOT condition populated by build.
func (c *Condition) Not(build func(*Condition)) *Condition {
	return c.nested(LogicNot, build)
}

// Attach appends a nested condition tagged with logic that holds the
// top-level terms of sub.
func (c *Condition) Attach(logic Logic, sub *Condition) *Condition {
	return c.Nest(NewLogic(logic).Add(sub.Copy().Terms()...))
}

func (c *Condition) nested(logic Logic, build func(*Condition)) *Condition {
	sub := NewLogic(logic)
	build(sub)
	return c.Nest(sub)
}

// Has appends a HAS assertion on the relation prop.
func (c *Condition) Has(prop string, build func(*Condition)) *Condition {
	return c.relation(prop, OpHas, build)
}

// DoesntHave appends a NOT_HAS assertion on the relation prop.
func (c *Condition) DoesntHave(prop string, build func(*Condition)) *Condition {
	return c.relation(prop, OpNotHas, build)
}

func (c *Condition) relation(prop string, op Operator, build func(*Condition)) *Condition {
	sub := NewCondition()
	if build != nil {
		build(sub)
	}
	return c.Where(prop, op, sub)
}

func (c *Condition) Eq(prop string, v any) *Condition  { return c.Where(prop, OpEq, v) }
func (c *Condition) Neq(prop string, v any) *Condition { return c.Where(prop, OpNeq, v) }
func (c *Condition) Lt(prop string, v any) *Condition  { return c.Where(prop, OpLt, v) }
func (c *Condition) Lte(prop string, v any) *Condition { return c.Where(prop, OpLte, v) }
func (c *Condition) Gt(prop string, v any) *Condition  { return c.Where(prop, OpGt, v) }
func (c *Condition) Gte(prop string, v any) *Condition { return c.Where(prop, OpGte, v) }

func (c *Condition) In(prop string, vs ...any) *Condition {
	return c.Where(prop, OpIn, list(vs))
}

func (c *Condition) NotIn(prop string, vs ...any) *Condition {
	return c.Where(prop, OpNotIn, list(vs))
}

func (c *Condition) Contains(prop, s string) *Condition   { return c.Where(prop, OpContains, s) }
func (c *Condition) StartsWith(prop, s string) *Condition { return c.Where(prop, OpStarts, s) }

func list(vs []any) []any {
	if vs == nil {
		return []any{}
	}
	return vs
}

// Copy returns an independent tree: nested conditions are copied, leaf
// assertions are shared.
func (c *Condition) Copy() *Condition {
	if c == nil {
		return nil
	}
	out := &Condition{logic: c.logic, groups: make([][]Term, len(c.groups))}
	for i, g := range c.groups {
		ng := make([]Term, len(g))
		for j, t := range g {
			ng[j] = copyTerm(t)
		}
		out.groups[i] = ng
	}
	return out
}

func copyTerm(t Term) Term {
	switch v := t.(type) {
	case *Condition:
		return v.Copy()
	case Negation:
		return Negation{Term: copyTerm(v.Term)}
	default:
		return t
	}
}
