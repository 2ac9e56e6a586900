package rules

import (
	"fmt"
	"regexp"
	"sort"
	"strconv"
	"strings"

	"github.com/expr-lang/expr"
	"github.com/expr-lang/expr/vm"

	"github.com/openepi/sentinel/pkg/record"
)

// Kind is the dispatch tag for a rule method atom.
type Kind int

const (
	KindNotNull Kind = iota
	KindValue
	KindMatch
	KindSubMatch
	KindLowerMatch
	KindBetween
	KindCalc
	KindSum

	// Legacy composite counters: count condition hits across subform
	// rows, then check the count against between bounds.
	KindCountOccurrenceBetween
	KindCountOccurrenceInBetween
)

// legacyMethods maps documented legacy method names onto current atoms.
// Anything not in this table and not a current atom is rejected at load.
var legacyMethods = map[string]string{
	"count":                        "not_null",
	"count_occurence":              "sub_match",
	"count_occurence_in":           "match",
	"int_between":                  "between",
	"count_occurence,int_between":    "count_occurence,int_between",
	"count_occurence_in,int_between": "count_occurence_in,int_between",
}

type joinKind int

const (
	joinNone joinKind = iota
	joinAnd
	joinOr
)

// operand is one compiled method atom with its aligned columns and
// condition tokens.
type operand struct {
	kind       Kind
	columns    []string
	conditions []string
	low, high  float64
	program    *vm.Program
	envCols    map[string]string // sanitized identifier -> raw column
}

// Rule is a compiled, evaluable catalogue entry.
type Rule struct {
	Var  *Variable
	ops  []operand
	join joinKind

	secCol, secVal string
}

// Outcome is the result of evaluating one rule. Fired rules contribute
// Value under the rule id; boolean methods collapse Value to 1.
type Outcome struct {
	Fired bool
	Value any
}

var notFired = Outcome{Fired: false, Value: 0}

// Compile turns a Variable into an evaluable Rule.
func Compile(v *Variable) (*Rule, error) {
	method := strings.TrimSpace(v.Method)
	if mapped, ok := legacyMethods[method]; ok {
		method = mapped
		if v.Method == "count" && v.MultipleLink == "" {
			v.MultipleLink = "count"
		}
	}

	r := &Rule{Var: v}

	// Legacy counting composites carry "tokens;low,high" in the
	// condition: the first part is matched, the second bounds the count.
	if method == "count_occurence,int_between" || method == "count_occurence_in,int_between" {
		condParts := strings.Split(v.Condition, ";")
		tokens := splitList(strings.TrimSpace(condParts[0]))
		boundPart := strings.TrimSpace(condParts[0])
		if len(condParts) > 1 {
			boundPart = strings.TrimSpace(condParts[1])
		}
		low, high, err := parseBounds(boundPart)
		if err != nil {
			return nil, BoundsError(v.ID, v.Condition)
		}
		if len(tokens) == 0 {
			return nil, EmptyRuleError(v.ID)
		}
		op := operand{
			columns:    strings.Split(v.DBColumn, ","),
			conditions: tokens,
			low:        low,
			high:       high,
		}
		for i := range op.columns {
			op.columns[i] = strings.TrimSpace(op.columns[i])
		}
		op.kind = KindCountOccurrenceBetween
		if method == "count_occurence_in,int_between" {
			op.kind = KindCountOccurrenceInBetween
		}
		r.ops = []operand{op}
		r.join = joinNone
		if v.SecondaryCondition != "" {
			col, val, ok := strings.Cut(v.SecondaryCondition, ":")
			if !ok {
				return nil, SecondaryConditionError(v.ID, v.SecondaryCondition)
			}
			r.secCol, r.secVal = strings.TrimSpace(col), strings.TrimSpace(val)
		}
		return r, nil
	}

	var atoms []string
	switch {
	case strings.Contains(method, " and "):
		r.join = joinAnd
		atoms = strings.Split(method, " and ")
	case strings.Contains(method, " or "):
		r.join = joinOr
		atoms = strings.Split(method, " or ")
	default:
		r.join = joinNone
		atoms = []string{method}
	}

	cols := strings.Split(v.DBColumn, ";")
	conds := strings.Split(v.Condition, ";")

	for i, atom := range atoms {
		col := ""
		if i < len(cols) {
			col = strings.TrimSpace(cols[i])
		}
		cond := ""
		if i < len(conds) {
			cond = strings.TrimSpace(conds[i])
		}
		op, err := compileOperand(v, strings.TrimSpace(atom), col, cond)
		if err != nil {
			return nil, err
		}
		r.ops = append(r.ops, op)
	}

	if v.SecondaryCondition != "" {
		col, val, ok := strings.Cut(v.SecondaryCondition, ":")
		if !ok {
			return nil, SecondaryConditionError(v.ID, v.SecondaryCondition)
		}
		r.secCol, r.secVal = strings.TrimSpace(col), strings.TrimSpace(val)
	}

	return r, nil
}

func compileOperand(v *Variable, atom, col, cond string) (operand, error) {
	op := operand{
		columns:    strings.Split(col, ","),
		conditions: splitList(cond),
	}
	for i := range op.columns {
		op.columns[i] = strings.TrimSpace(op.columns[i])
	}

	switch atom {
	case "not_null":
		op.kind = KindNotNull
	case "value":
		op.kind = KindValue
	case "match":
		op.kind = KindMatch
	case "sub_match":
		op.kind = KindSubMatch
	case "lower_match":
		op.kind = KindLowerMatch
	case "between":
		op.kind = KindBetween
		low, high, err := parseBounds(cond)
		if err != nil {
			return op, BoundsError(v.ID, cond)
		}
		op.low, op.high = low, high
		src := v.Calculation
		if src == "" {
			src = "A"
		}
		if err := op.compileExpr(src); err != nil {
			return op, CalculationError(v.ID, v.Calculation, err)
		}
	case "calc":
		op.kind = KindCalc
		if err := op.compileExpr(v.Calculation); err != nil {
			return op, CalculationError(v.ID, v.Calculation, err)
		}
	case "sum":
		op.kind = KindSum
	default:
		return op, MethodError(v.ID, v.Method)
	}

	// A rule that can never evaluate anything is a configuration error.
	switch op.kind {
	case KindMatch, KindSubMatch, KindLowerMatch:
		if len(op.conditions) == 0 && v.Calculation == "" {
			return op, EmptyRuleError(v.ID)
		}
	case KindCalc:
		if v.Calculation == "" {
			return op, EmptyRuleError(v.ID)
		}
	}

	return op, nil
}

func parseBounds(cond string) (float64, float64, error) {
	parts := strings.Split(cond, ",")
	if len(parts) != 2 {
		return 0, 0, fmt.Errorf("expected low,high bounds, got %q", cond)
	}
	low, err := strconv.ParseFloat(strings.TrimSpace(parts[0]), 64)
	if err != nil {
		return 0, 0, err
	}
	high, err := strconv.ParseFloat(strings.TrimSpace(parts[1]), 64)
	if err != nil {
		return 0, 0, err
	}
	return low, high, nil
}

var identUnsafe = regexp.MustCompile(`[^A-Za-z0-9_]`)

// sanitizeIdent maps a form column name onto a valid expression
// identifier. Column names may contain "/" and "." which the expression
// grammar cannot carry.
func sanitizeIdent(col string) string {
	s := identUnsafe.ReplaceAllString(col, "_")
	if s == "" || (s[0] >= '0' && s[0] <= '9') {
		s = "_" + s
	}
	return s
}

// compileExpr compiles a calculation expression once, at catalogue load.
// Raw column names in the source are rewritten to their sanitized
// identifiers, longest name first so overlapping names cannot clobber
// each other.
func (op *operand) compileExpr(src string) error {
	src = strings.ReplaceAll(src, "Variable.to_date", "to_date")

	op.envCols = make(map[string]string, len(op.columns)+1)
	rewrite := make([]string, 0, len(op.columns))
	for _, col := range op.columns {
		if col == "" {
			continue
		}
		rewrite = append(rewrite, col)
	}
	sort.Slice(rewrite, func(i, j int) bool { return len(rewrite[i]) > len(rewrite[j]) })
	for _, col := range rewrite {
		ident := sanitizeIdent(col)
		op.envCols[ident] = col
		if ident != col {
			src = strings.ReplaceAll(src, col, ident)
		}
	}
	// Single-variable form: A stands for the first column's value.
	if len(op.columns) > 0 && op.columns[0] != "" {
		op.envCols["A"] = op.columns[0]
	}

	program, err := expr.Compile(src,
		expr.Env(map[string]any{}),
		expr.Function("to_date", exprToDate),
	)
	if err != nil {
		return err
	}
	op.program = program
	return nil
}

// exprToDate converts a date string to seconds since epoch. Unparseable
// input evaluates to 0 so bound checks simply fail instead of aborting
// the record.
func exprToDate(params ...any) (any, error) {
	if len(params) != 1 {
		return nil, fmt.Errorf("to_date takes one argument")
	}
	s := record.Stringify(params[0])
	t, err := record.ParseDate(s)
	if err != nil {
		return float64(0), nil
	}
	return float64(t.Unix()), nil
}

// env builds the expression environment from the payload. Missing columns
// bind to 0, which is the safe value for arithmetic; unknown identifiers
// in the expression are not in the env and surface as evaluation errors.
func (op *operand) env(p record.Payload) map[string]any {
	env := make(map[string]any, len(op.envCols))
	for ident, col := range op.envCols {
		if f, ok := p.Float(col); ok {
			env[ident] = f
			continue
		}
		if s := p.String(col); s != "" {
			env[ident] = s
			continue
		}
		env[ident] = float64(0)
	}
	return env
}

// Eval evaluates the rule against one payload, with the secondary
// condition gated on the same payload.
func (r *Rule) Eval(p record.Payload) (Outcome, error) {
	return r.eval(p, p)
}

func (r *Rule) eval(p, main record.Payload) (Outcome, error) {
	if !r.secondaryOK(main) {
		return notFired, nil
	}

	var combined Outcome
	for i, op := range r.ops {
		out, err := op.eval(p)
		if err != nil {
			return notFired, NewEvalError(r.Var.ID, err)
		}
		if i == 0 {
			combined = out
			if r.join == joinNone {
				return combined, nil
			}
			continue
		}
		switch r.join {
		case joinAnd:
			combined.Fired = combined.Fired && out.Fired
		case joinOr:
			combined.Fired = combined.Fired || out.Fired
		}
	}
	// Composite boolean forms collapse to 1.
	if combined.Fired {
		combined.Value = 1
	} else {
		combined.Value = 0
	}
	return combined, nil
}

func (r *Rule) secondaryOK(main record.Payload) bool {
	if r.secCol == "" {
		return true
	}
	return main.String(r.secCol) == r.secVal
}

func (op operand) eval(p record.Payload) (Outcome, error) {
	switch op.kind {
	case KindNotNull:
		for _, col := range op.columns {
			if p.Has(col) {
				return Outcome{Fired: true, Value: 1}, nil
			}
		}
		return notFired, nil

	case KindValue:
		for _, col := range op.columns {
			s := p.String(col)
			if s == "" || s == "0" {
				continue
			}
			if f, ok := p.Float(col); ok {
				return Outcome{Fired: true, Value: f}, nil
			}
			return Outcome{Fired: true, Value: s}, nil
		}
		return notFired, nil

	case KindMatch, KindCountOccurrenceInBetween:
		fired := matchAny(p, op.columns, op.conditions, func(v, tok string) bool {
			return v == tok
		})
		if op.kind == KindCountOccurrenceInBetween {
			return op.boundsOutcome(boolCount(fired)), nil
		}
		return boolOutcome(fired), nil

	case KindSubMatch, KindCountOccurrenceBetween:
		fired := matchAny(p, op.columns, op.conditions, func(v, tok string) bool {
			return strings.Contains(v, tok)
		})
		if op.kind == KindCountOccurrenceBetween {
			return op.boundsOutcome(boolCount(fired)), nil
		}
		return boolOutcome(fired), nil

	case KindLowerMatch:
		fired := matchAny(p, op.columns, op.conditions, func(v, tok string) bool {
			return normalize(v) == normalize(tok)
		})
		return boolOutcome(fired), nil

	case KindBetween:
		val, err := op.run(p)
		if err != nil {
			return notFired, err
		}
		return op.boundsOutcome(val), nil

	case KindCalc:
		val, err := op.run(p)
		if err != nil {
			return notFired, err
		}
		return Outcome{Fired: val != 0, Value: val}, nil

	case KindSum:
		for _, col := range op.columns {
			if n := p.Int(col); n != 0 {
				return Outcome{Fired: true, Value: n}, nil
			}
		}
		return Outcome{Fired: false, Value: 0}, nil
	}
	return notFired, fmt.Errorf("unhandled rule kind %d", op.kind)
}

func (op operand) run(p record.Payload) (float64, error) {
	out, err := expr.Run(op.program, op.env(p))
	if err != nil {
		return 0, err
	}
	switch t := out.(type) {
	case float64:
		return t, nil
	case int:
		return float64(t), nil
	case bool:
		if t {
			return 1, nil
		}
		return 0, nil
	default:
		return 0, fmt.Errorf("calculation produced %T, want number", out)
	}
}

func (op operand) boundsOutcome(val float64) Outcome {
	if op.low <= val && val < op.high {
		return Outcome{Fired: true, Value: 1}
	}
	return notFired
}

func matchAny(p record.Payload, cols, toks []string, pred func(v, tok string) bool) bool {
	for _, col := range cols {
		v := p.String(col)
		if v == "" {
			continue
		}
		for _, tok := range toks {
			if pred(v, tok) {
				return true
			}
		}
	}
	return false
}

func normalize(s string) string {
	return strings.ReplaceAll(strings.ToLower(s), "-", "_")
}

func boolOutcome(fired bool) Outcome {
	if fired {
		return Outcome{Fired: true, Value: 1}
	}
	return notFired
}

func boolCount(fired bool) float64 {
	if fired {
		return 1
	}
	return 0
}

// EvalRows evaluates the rule over the rows of a multi-row subform,
// applying the multiple_link selector. The secondary condition gates on
// the main form payload.
func (r *Rule) EvalRows(rows []record.Payload, main record.Payload) (Outcome, error) {
	if len(rows) == 0 {
		return notFired, nil
	}
	if !r.secondaryOK(main) {
		return notFired, nil
	}

	// Counting composites aggregate across rows before the bound check.
	if len(r.ops) == 1 {
		op := r.ops[0]
		if op.kind == KindCountOccurrenceBetween || op.kind == KindCountOccurrenceInBetween {
			var count float64
			for _, row := range rows {
				pred := func(v, tok string) bool { return strings.Contains(v, tok) }
				if op.kind == KindCountOccurrenceInBetween {
					pred = func(v, tok string) bool { return v == tok }
				}
				if matchAny(row, op.columns, op.conditions, pred) {
					count++
				}
			}
			return op.boundsOutcome(count), nil
		}
	}

	switch r.Var.MultipleLink {
	case "", "first":
		return r.eval(rows[0], main)
	case "last":
		return r.eval(rows[len(rows)-1], main)
	case "any":
		for _, row := range rows {
			out, err := r.eval(row, main)
			if err != nil {
				return notFired, err
			}
			if out.Fired {
				return Outcome{Fired: true, Value: 1}, nil
			}
		}
		return notFired, nil
	case "all":
		for _, row := range rows {
			out, err := r.eval(row, main)
			if err != nil {
				return notFired, err
			}
			if !out.Fired {
				return notFired, nil
			}
		}
		return Outcome{Fired: true, Value: 1}, nil
	case "count":
		count := 0
		for _, row := range rows {
			out, err := r.eval(row, main)
			if err != nil {
				return notFired, err
			}
			if out.Fired {
				count++
			}
		}
		return Outcome{Fired: count > 0, Value: count}, nil
	default:
		return notFired, MultipleLinkError(r.Var.ID, r.Var.MultipleLink)
	}
}
