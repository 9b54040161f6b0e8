package harness

import (
	"fmt"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/roach88/quarry/internal/ir"
)

// DecodeError reports a malformed query document. Path locates the
// offending node, e.g. queries.filter.where.gt[1].
type DecodeError struct {
	Path    string
	Message string
}

func (e *DecodeError) Error() string {
	return fmt.Sprintf("%s: %s", e.Path, e.Message)
}

// queryOps are the keys that open a query node.
var queryOps = map[string]bool{
	"entity": true, "filter": true, "map": true, "flatMap": true, "concatMap": true,
	"sortBy": true, "groupByMap": true, "take": true, "drop": true, "distinct": true,
	"distinctOn": true, "nested": true, "union": true, "unionAll": true, "join": true,
	"where": true, "orderBy": true, "groupBy": true, "sql": true, "queryTag": true,
}

var binaryOps = map[string]ir.BinaryOperator{
	"eq": ir.OpEq, "neq": ir.OpNeq, "and": ir.OpAnd, "or": ir.OpOr,
	"lt": ir.OpLt, "lte": ir.OpLte, "gt": ir.OpGt, "gte": ir.OpGte,
	"add": ir.OpAdd, "sub": ir.OpSub, "mul": ir.OpMul, "div": ir.OpDiv, "mod": ir.OpMod,
	"concat": ir.OpConcat, "like": ir.OpLike, "contains": ir.OpContains,
}

var unaryOps = map[string]ir.UnaryOperator{
	"not": ir.OpNot, "neg": ir.OpNeg, "isEmpty": ir.OpIsEmpty, "nonEmpty": ir.OpNonEmpty,
}

var aggregations = map[string]ir.AggregationOperator{
	"min": ir.AggMin, "max": ir.AggMax, "avg": ir.AggAvg, "sum": ir.AggSum, "size": ir.AggSize,
}

// predicateMethods return booleans; every other method returns a value.
var predicateMethods = map[string]bool{"startsWith": true, "endsWith": true, "contains": true}

// ParseQuery decodes a YAML query document against the given tables.
func ParseQuery(src []byte, entities []*ir.Entity) (ir.Ast, error) {
	var doc any
	if err := yaml.Unmarshal(src, &doc); err != nil {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}
	return DecodeQuery(doc, entities)
}

// DecodeQuery builds an IR tree from a decoded YAML value.
//
// A query is a single-key mapping naming the operator:
//
//	map:
//	  from: {filter: {from: {entity: Person}, as: p, where: {gt: [p.age, 18]}}}
//	  as: p
//	  to: p.name
//
// At the top level an aggregation ({size: <query>}) or an emptiness test
// ({nonEmpty: <query>}) is also accepted.
//
// In expression position a string is a path rooted at a bound alias, a
// number or boolean is a literal, {str: ...} is a string literal and
// {param: {uid: ..., type: ...}} a bound parameter.
func DecodeQuery(doc any, entities []*ir.Entity) (out ir.Ast, err error) {
	d := &decoder{entities: map[string]*ir.Entity{}}
	for _, e := range entities {
		d.entities[e.Name] = e
	}
	defer func() {
		if r := recover(); r != nil {
			de, ok := r.(*DecodeError)
			if !ok {
				panic(r)
			}
			err = de
		}
	}()
	return d.statement("query", doc), nil
}

// statement decodes a top-level document: a query, an aggregation over a
// query, or an emptiness test of one.
func (d *decoder) statement(path string, v any) ir.Ast {
	op, arg, ok := single(v)
	if !ok || queryOps[op] {
		return d.query(path, v, scope{})
	}
	if agg, ok := aggregations[op]; ok {
		return ir.NewAggregation(agg, d.query(path+"."+op, arg, scope{}))
	}
	if op == "isEmpty" || op == "nonEmpty" {
		return ir.NewUnaryOp(unaryOps[op], d.query(path+"."+op, arg, scope{}))
	}
	d.fail(path, "expected a query, an aggregation or an emptiness test, got %s", describe(v))
	return nil
}

// scope maps the aliases in view to their row types. It is never mutated;
// with returns a copy.
type scope map[string]ir.Type

func (s scope) with(name string, t ir.Type) scope {
	out := make(scope, len(s)+1)
	for k, v := range s {
		out[k] = v
	}
	out[name] = t
	return out
}

type decoder struct {
	entities map[string]*ir.Entity
}

func (d *decoder) fail(path, format string, args ...any) {
	panic(&DecodeError{Path: path, Message: fmt.Sprintf(format, args...)})
}

// single returns the key and value of a one-key mapping.
func single(v any) (string, any, bool) {
	m, ok := v.(map[string]any)
	if !ok || len(m) != 1 {
		return "", nil, false
	}
	for k, val := range m {
		return k, val, true
	}
	return "", nil, false
}

func isQuery(v any) bool {
	op, _, ok := single(v)
	return ok && queryOps[op]
}

func (d *decoder) fields(path string, v any, required ...string) map[string]any {
	m, ok := v.(map[string]any)
	if !ok {
		d.fail(path, "expected a mapping, got %s", describe(v))
	}
	for _, name := range required {
		if _, ok := m[name]; !ok {
			d.fail(path, "%s is required", name)
		}
	}
	return m
}

func (d *decoder) str(path string, v any) string {
	s, ok := v.(string)
	if !ok || s == "" {
		d.fail(path, "expected a name, got %s", describe(v))
	}
	return s
}

func (d *decoder) list(path string, v any, n int) []any {
	l, ok := v.([]any)
	if !ok || (n > 0 && len(l) != n) {
		d.fail(path, "expected a list of %d, got %s", n, describe(v))
	}
	return l
}

func (d *decoder) query(path string, v any, s scope) ir.Ast {
	op, arg, ok := single(v)
	if !ok || !queryOps[op] {
		d.fail(path, "expected a query, got %s", describe(v))
	}
	path += "." + op

	switch op {
	case "entity":
		name := d.str(path, arg)
		e, ok := d.entities[name]
		if !ok {
			d.fail(path, "unknown entity %q", name)
		}
		return e
	case "filter", "map", "flatMap", "concatMap", "distinctOn", "sortBy", "groupByMap":
		return d.bodyOp(path, op, arg, s)
	case "take", "drop":
		f := d.fields(path, arg, "from", "count")
		head := d.query(path+".from", f["from"], s)
		count := d.expr(path+".count", f["count"], s)
		if op == "take" {
			return ir.NewTake(head, count)
		}
		return ir.NewDrop(head, count)
	case "distinct":
		return ir.NewDistinct(d.query(path, arg, s))
	case "nested":
		return ir.NewNested(d.query(path, arg, s))
	case "union", "unionAll":
		l := d.list(path, arg, 2)
		a, b := d.query(path+"[0]", l[0], s), d.query(path+"[1]", l[1], s)
		if op == "union" {
			return ir.NewUnion(a, b)
		}
		return ir.NewUnionAll(a, b)
	case "join":
		f := d.fields(path, arg, "from", "as", "on")
		kind := ir.InnerJoin
		if k, ok := f["kind"]; ok {
			kind = ir.JoinKind(d.str(path+".kind", k))
			if !ir.ValidJoinKinds[kind] {
				d.fail(path+".kind", "unknown join kind %q", kind)
			}
		}
		head := d.query(path+".from", f["from"], s)
		alias := ir.NewIdent(d.str(path+".as", f["as"]), head.Type())
		return ir.NewFlatJoin(kind, head, alias, d.expr(path+".on", f["on"], s.with(alias.Name, alias.Type())))
	case "where":
		return ir.NewFlatFilter(d.expr(path, arg, s))
	case "groupBy":
		return ir.NewFlatGroupBy(d.expr(path, arg, s))
	case "orderBy":
		f := d.fields(path, arg, "by")
		return ir.NewFlatSortBy(d.expr(path+".by", f["by"], s), d.ordering(path+".order", f["order"]))
	case "sql":
		f := d.fields(path, arg, "parts")
		var parts []string
		for i, p := range d.list(path+".parts", f["parts"], 0) {
			str, ok := p.(string)
			if !ok {
				d.fail(fmt.Sprintf("%s.parts[%d]", path, i), "expected text, got %s", describe(p))
			}
			parts = append(parts, str)
		}
		var params []ir.Ast
		if raw, ok := f["params"]; ok {
			for i, p := range d.list(path+".params", raw, 0) {
				params = append(params, d.expr(fmt.Sprintf("%s.params[%d]", path, i), p, s))
			}
		}
		pure, _ := f["pure"].(bool)
		return ir.NewInfix(parts, params, pure, d.rowType(path, f))
	case "queryTag":
		f := d.fields(path, arg, "uid")
		return ir.NewQueryTag(d.str(path+".uid", f["uid"]), d.rowType(path, f))
	}
	d.fail(path, "unsupported query operator")
	return nil
}

// bodyOp decodes the operators that bind an alias over their head.
func (d *decoder) bodyOp(path, op string, arg any, s scope) ir.Ast {
	f := d.fields(path, arg, "from")
	head := d.query(path+".from", f["from"], s)
	name := "_"
	if as, ok := f["as"]; ok {
		name = d.str(path+".as", as)
	}
	alias := ir.NewIdent(name, head.Type())
	inner := s.with(alias.Name, alias.Type())
	body := func(key string) ir.Ast {
		v, ok := f[key]
		if !ok {
			d.fail(path, "%s is required", key)
		}
		return d.expr(path+"."+key, v, inner)
	}

	switch op {
	case "filter":
		return ir.NewFilter(head, alias, body("where"))
	case "map":
		return ir.NewMap(head, alias, body("to"))
	case "flatMap":
		to, ok := f["to"]
		if !ok {
			d.fail(path, "to is required")
		}
		return ir.NewFlatMap(head, alias, d.query(path+".to", to, inner))
	case "concatMap":
		return ir.NewConcatMap(head, alias, body("to"), ir.Value)
	case "distinctOn":
		return ir.NewDistinctOn(head, alias, body("on"))
	case "sortBy":
		return ir.NewSortBy(head, alias, body("by"), d.ordering(path+".order", f["order"]))
	}
	return ir.NewGroupByMap(head, alias, body("by"), alias, body("to"))
}

// rowType returns the schema of the entity named by the optional `as` key.
func (d *decoder) rowType(path string, f map[string]any) ir.Type {
	as, ok := f["as"]
	if !ok {
		return ir.Unknown
	}
	name := d.str(path+".as", as)
	e, ok := d.entities[name]
	if !ok {
		d.fail(path+".as", "unknown entity %q", name)
	}
	return e.Type()
}

func (d *decoder) ordering(path string, v any) ir.Ordering {
	switch o := v.(type) {
	case nil:
		return ir.Asc
	case string:
		p := ir.PropertyOrdering(o)
		if !ir.ValidOrderings[p] {
			d.fail(path, "unknown ordering %q", o)
		}
		return p
	case []any:
		out := make(ir.TupleOrdering, len(o))
		for i, e := range o {
			out[i] = d.ordering(fmt.Sprintf("%s[%d]", path, i), e)
		}
		return out
	}
	d.fail(path, "expected an ordering, got %s", describe(v))
	return nil
}

func (d *decoder) expr(path string, v any, s scope) ir.Ast {
	switch val := v.(type) {
	case string:
		return d.ref(path, val, s)
	case []any:
		d.fail(path, "a list is not an expression; use tuple")
	case map[string]any:
		if _, ok := val["when"]; ok {
			return d.when(path, val, s)
		}
		return d.compound(path, val, s)
	}

	lit, err := ir.ToIRValue(v)
	if err != nil {
		d.fail(path, "%v", err)
	}
	return ir.NewConstant(lit)
}

func (d *decoder) compound(path string, v map[string]any, s scope) ir.Ast {
	op, arg, ok := single(v)
	if !ok {
		d.fail(path, "expected a single-key mapping, got keys %s", keys(v))
	}
	if queryOps[op] {
		return d.query(path, v, s)
	}
	path += "." + op

	if bop, ok := binaryOps[op]; ok {
		l := d.list(path, arg, 2)
		return ir.NewBinaryOp(d.expr(path+"[0]", l[0], s), bop, d.expr(path+"[1]", l[1], s))
	}
	if uop, ok := unaryOps[op]; ok {
		if uop == ir.OpIsEmpty || uop == ir.OpNonEmpty {
			return ir.NewUnaryOp(uop, d.query(path, arg, s))
		}
		return ir.NewUnaryOp(uop, d.expr(path, arg, s))
	}
	if agg, ok := aggregations[op]; ok {
		if isQuery(arg) {
			return ir.NewAggregation(agg, d.query(path, arg, s))
		}
		return ir.NewAggregation(agg, d.expr(path, arg, s))
	}

	switch op {
	case "str":
		str, ok := arg.(string)
		if !ok {
			d.fail(path, "expected text, got %s", describe(arg))
		}
		return ir.NewConstant(ir.IRString(str))
	case "param":
		f := d.fields(path, arg, "uid", "type")
		runtime := d.str(path+".type", f["type"])
		t := ir.Value
		if runtime == "bool" {
			t = ir.BooleanValue
		}
		return ir.NewScalarTag(d.str(path+".uid", f["uid"]), runtime, t)
	case "exprTag":
		return ir.NewExprTag(d.str(path, arg), ir.Value)
	case "tuple":
		var values []ir.Ast
		for i, e := range d.list(path, arg, 0) {
			values = append(values, d.expr(fmt.Sprintf("%s[%d]", path, i), e, s))
		}
		return ir.NewTuple(values...)
	case "call":
		f := d.fields(path, arg, "on", "method")
		method := d.str(path+".method", f["method"])
		t := ir.Value
		if predicateMethods[method] {
			t = ir.BooleanExpression
		}
		return ir.NewMethodCall(d.expr(path+".on", f["on"], s), method, d.args(path, f, s), t)
	case "fn":
		f := d.fields(path, arg, "name")
		return ir.NewGlobalCall(d.str(path+".name", f["name"]), d.args(path, f, s), ir.Value)
	}
	d.fail(path, "unknown operator %q", op)
	return nil
}

func (d *decoder) args(path string, f map[string]any, s scope) []ir.Ast {
	raw, ok := f["args"]
	if !ok {
		return nil
	}
	var out []ir.Ast
	for i, a := range d.list(path+".args", raw, 0) {
		out = append(out, d.expr(fmt.Sprintf("%s.args[%d]", path, i), a, s))
	}
	return out
}

func (d *decoder) when(path string, v map[string]any, s scope) ir.Ast {
	path += ".when"
	otherwise, ok := v["else"]
	if !ok || len(v) != 2 {
		d.fail(path, "when needs exactly the keys when and else")
	}
	var branches []ir.Branch
	for i, b := range d.list(path, v["when"], 0) {
		bp := fmt.Sprintf("%s[%d]", path, i)
		f := d.fields(bp, b, "if", "then")
		branches = append(branches, ir.Branch{
			Cond:   d.expr(bp+".if", f["if"], s),
			Result: d.expr(bp+".then", f["then"], s),
		})
	}
	return ir.NewWhen(branches, d.expr(path+".else", otherwise, s))
}

// ref resolves a dotted path rooted at a bound alias.
func (d *decoder) ref(path, text string, s scope) ir.Ast {
	parts := strings.Split(text, ".")
	t, ok := s[parts[0]]
	if !ok {
		d.fail(path, "identifier %q is not bound (use {str: ...} for text)", parts[0])
	}
	var out ir.Ast = ir.NewIdent(parts[0], t)
	for _, p := range parts[1:] {
		if p == "" {
			d.fail(path, "empty property in %q", text)
		}
		out = ir.NewProperty(out, p)
	}
	return out
}

func describe(v any) string {
	switch val := v.(type) {
	case nil:
		return "nothing"
	case map[string]any:
		return "mapping with keys " + keys(val)
	case []any:
		return fmt.Sprintf("list of %d", len(val))
	}
	return fmt.Sprintf("%T %v", v, v)
}

func keys(m map[string]any) string {
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	sort.Strings(out)
	return "[" + strings.Join(out, ", ") + "]"
}
