package grammar

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
)

// StepKind classifies a parsed step.
type StepKind string

const (
	StepFind   StepKind = "find"
	StepAct    StepKind = "act"
	StepAssert StepKind = "assert"
)

// ActionKind is the closed set of actions a recorded step can perform.
type ActionKind string

const (
	ActionClick       ActionKind = "click"
	ActionTypeText    ActionKind = "typeText"
	ActionReplaceText ActionKind = "replaceText"
	ActionScrollTo    ActionKind = "scrollTo"

	// Selector-less navigation helpers that recorded tests interleave with
	// chain calls.
	ActionPressBack         ActionKind = "pressBack"
	ActionCloseSoftKeyboard ActionKind = "closeSoftKeyboard"
)

// AssertKind is the closed set of assertions.
type AssertKind string

const (
	AssertIsDisplayed  AssertKind = "isDisplayed"
	AssertDoesNotExist AssertKind = "doesNotExist"
	AssertMatchesText  AssertKind = "matchesText"
)

// StepDetail carries the action- or assertion-specific payload of a Step.
// Value holds the literal for typeText/replaceText/matchesText; Mode the
// match mode for matchesText.
type StepDetail struct {
	Action ActionKind `json:"action,omitempty"`
	Assert AssertKind `json:"assert,omitempty"`
	Value  string     `json:"value,omitempty"`
	Mode   MatchMode  `json:"mode,omitempty"`
}

// Step is one atomic element of a parsed method: locate a target
// (Selector), and either act on it or assert about it. The Step exclusively
// owns its Selector.
type Step struct {
	Kind     StepKind   `json:"kind"`
	Selector *Selector  `json:"selector,omitempty"`
	Detail   StepDetail `json:"detail"`
}

// Clone returns a deep copy of the step.
func (s Step) Clone() Step {
	out := s
	out.Selector = s.Selector.Clone()
	return out
}

// String renders the step back into source syntax.
func (s Step) String() string {
	switch s.Kind {
	case StepFind:
		return fmt.Sprintf("onView(%s);", s.Selector.String())
	case StepAct:
		switch s.Detail.Action {
		case ActionPressBack, ActionCloseSoftKeyboard:
			return fmt.Sprintf("%s();", s.Detail.Action)
		case ActionTypeText, ActionReplaceText:
			return fmt.Sprintf("onView(%s).perform(%s(%q));", s.Selector.String(), s.Detail.Action, s.Detail.Value)
		default:
			return fmt.Sprintf("onView(%s).perform(%s());", s.Selector.String(), s.Detail.Action)
		}
	case StepAssert:
		switch s.Detail.Assert {
		case AssertDoesNotExist:
			return fmt.Sprintf("onView(%s).check(doesNotExist());", s.Selector.String())
		case AssertMatchesText:
			return fmt.Sprintf("onView(%s).check(matches(withText(%s)));", s.Selector.String(), renderStringExpr(s.Detail.Value, s.Detail.Mode))
		default:
			return fmt.Sprintf("onView(%s).check(matches(isDisplayed()));", s.Selector.String())
		}
	}
	return ""
}

// Method is the parse result for one recorded test method: an ordered step
// list plus diagnostic notes that did not prevent parsing (for example
// duplicate leaf predicates inside one allOf, whose combined semantics are
// undefined).
type Method struct {
	Name  string   `json:"name"`
	Steps []Step   `json:"steps"`
	Notes []string `json:"notes,omitempty"`
}

// ParseError reports a statement that does not fit the chain grammar at
// all. The enclosing method is skipped; the batch continues.
type ParseError struct {
	Statement string
	Reason    string
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("parse error: %s (statement: %s)", e.Reason, e.Statement)
}

// UnsupportedConstructError reports a call name outside the fixed
// vocabulary. The enclosing method is skipped; the batch continues.
type UnsupportedConstructError struct {
	Construct string
	Statement string
}

func (e *UnsupportedConstructError) Error() string {
	return fmt.Sprintf("unsupported construct %q (statement: %s)", e.Construct, e.Statement)
}

// leafDispatch maps matcher call names to leaf selector kinds.
var leafDispatch = map[string]SelectorKind{
	"withId":                 KindByID,
	"withText":               KindByText,
	"withContentDescription": KindByContentDescription,
	"withClassName":          KindByClassNameContains,
	"withParentIndex":        KindByParentIndex,
}

// combinatorDispatch maps combinator call names to combinator kinds.
var combinatorDispatch = map[string]SelectorKind{
	"allOf":         KindAnd,
	"withParent":    KindWithParent,
	"hasDescendant": KindHasDescendant,
}

// ignoredMatchers are display-state matchers that carry no locating
// information inside a Find chain; they are dropped from the tree. As an
// assertion (check(matches(isDisplayed()))) the same name is meaningful and
// handled by the assertion parser instead.
var ignoredMatchers = map[string]bool{
	"isDisplayed":  true,
	"isEnabled":    true,
	"isNotEnabled": true,
	"isChecked":    true,
	"isNotChecked": true,
}

var (
	javaHeaderRe   = regexp.MustCompile(`public\s+void\s+(\w+)\s*\(`)
	kotlinHeaderRe = regexp.MustCompile(`fun\s+(\w+)\s*\(`)
	resourceIDRe   = regexp.MustCompile(`^(?:android\.)?R\.id\.(\w+)$`)
	sleepRe        = regexp.MustCompile(`^Thread\.sleep\(\d+\);?$`)
)

// ParseMethod parses the source text of one recorded test method (header
// plus body) into an ordered step list. It is a pure function of its input.
func ParseMethod(source string) (*Method, error) {
	name, body, err := splitMethod(source)
	if err != nil {
		return nil, err
	}
	m := &Method{Name: name}
	for _, stmt := range scanStatements(body) {
		steps, note, err := parseStatement(stmt)
		if err != nil {
			return nil, err
		}
		if note != "" {
			m.Notes = append(m.Notes, note)
		}
		m.Steps = append(m.Steps, steps...)
	}
	return m, nil
}

// splitMethod extracts the method name and the body between the outermost
// braces. Both Java and Kotlin headers are accepted.
func splitMethod(source string) (name, body string, err error) {
	lines := strings.Split(source, "\n")
	headerIdx := -1
	for i, line := range lines {
		if m := javaHeaderRe.FindStringSubmatch(line); m != nil {
			name = m[1]
			headerIdx = i
			break
		}
		if m := kotlinHeaderRe.FindStringSubmatch(line); m != nil {
			name = m[1]
			headerIdx = i
			break
		}
	}
	if headerIdx < 0 {
		return "", "", &ParseError{Statement: firstLine(source), Reason: "no method header found"}
	}

	var bodyLines []string
	depth := 0
	started := false
	for _, line := range lines[headerIdx:] {
		opens := strings.Count(line, "{")
		closes := strings.Count(line, "}")
		if !started {
			if opens == 0 {
				continue
			}
			started = true
			depth = opens - closes
			if idx := strings.IndexByte(line, '{'); idx+1 < len(line) {
				bodyLines = append(bodyLines, line[idx+1:])
			}
			if depth <= 0 {
				break
			}
			continue
		}
		depth += opens - closes
		if depth <= 0 {
			if idx := strings.LastIndexByte(line, '}'); idx > 0 {
				bodyLines = append(bodyLines, line[:idx])
			}
			break
		}
		bodyLines = append(bodyLines, line)
	}
	if !started {
		return "", "", &ParseError{Statement: firstLine(source), Reason: "method has no body"}
	}
	return name, strings.Join(bodyLines, "\n"), nil
}

func firstLine(s string) string {
	for _, line := range strings.Split(s, "\n") {
		if trimmed := strings.TrimSpace(line); trimmed != "" {
			return trimmed
		}
	}
	return ""
}

// parseStatement turns one normalized statement into zero or more steps.
// An empty slice with nil error means the statement is recognized but
// non-semantic (a pure timing wait). A perform call with several actions
// yields one Act step per action, each with its own selector copy.
func parseStatement(stmt string) ([]Step, string, error) {
	trimmed := strings.TrimSuffix(strings.TrimSpace(stmt), ";")

	if sleepRe.MatchString(stmt) {
		return nil, "", nil
	}
	switch trimmed {
	case "pressBack()", "Espresso.pressBack()":
		return []Step{{Kind: StepAct, Detail: StepDetail{Action: ActionPressBack}}}, "", nil
	case "closeSoftKeyboard()", "Espresso.closeSoftKeyboard()":
		return []Step{{Kind: StepAct, Detail: StepDetail{Action: ActionCloseSoftKeyboard}}}, "", nil
	}

	callName, args, rest, ok := splitCall(trimmed)
	if !ok {
		return nil, "", &ParseError{Statement: stmt, Reason: "statement is not a chain call"}
	}
	if trimCallPrefix(callName) != "onView" {
		return nil, "", &UnsupportedConstructError{Construct: callName, Statement: stmt}
	}

	selector, note, err := parseSelectorExpr(args, stmt)
	if err != nil {
		return nil, "", err
	}
	if selector == nil {
		return nil, "", &ParseError{Statement: stmt, Reason: "selector matches nothing after dropping state matchers"}
	}

	if rest == "" {
		return []Step{{Kind: StepFind, Selector: selector}}, note, nil
	}

	var steps []Step
	for rest != "" {
		if !strings.HasPrefix(rest, ".") {
			return nil, "", &ParseError{Statement: stmt, Reason: "unexpected text after selector"}
		}
		verb, verbArgs, tail, ok := splitCall(rest[1:])
		if !ok {
			return nil, "", &ParseError{Statement: stmt, Reason: "malformed chain tail"}
		}
		rest = tail

		switch verb {
		case "perform":
			for _, actionExpr := range splitTopLevelArgs(verbArgs) {
				detail, err := parseAction(actionExpr, stmt)
				if err != nil {
					return nil, "", err
				}
				steps = append(steps, Step{Kind: StepAct, Selector: selector.Clone(), Detail: detail})
			}
		case "check":
			detail, err := parseAssertion(verbArgs, stmt)
			if err != nil {
				return nil, "", err
			}
			steps = append(steps, Step{Kind: StepAssert, Selector: selector.Clone(), Detail: detail})
		default:
			return nil, "", &UnsupportedConstructError{Construct: verb, Statement: stmt}
		}
	}
	return steps, note, nil
}

func trimCallPrefix(name string) string {
	if idx := strings.LastIndexByte(name, '.'); idx >= 0 {
		return name[idx+1:]
	}
	return name
}

// parseSelectorExpr parses the argument text of onView(...) into a selector
// tree. Multiple top-level arguments combine as an implicit And.
func parseSelectorExpr(expr, stmt string) (*Selector, string, error) {
	parts := splitTopLevelArgs(expr)
	var children []*Selector
	var notes []string
	for _, part := range parts {
		node, err := parseSelectorNode(part, stmt)
		if err != nil {
			return nil, "", err
		}
		if node == nil {
			continue
		}
		children = append(children, node)
	}
	var root *Selector
	switch len(children) {
	case 0:
		return nil, "", nil
	case 1:
		root = children[0]
	default:
		root = &Selector{Kind: KindAnd, Children: children}
	}
	root.Walk(func(node *Selector, _ []int) {
		for _, kind := range node.DuplicateLeafKinds() {
			notes = append(notes, fmt.Sprintf("duplicate %s predicates inside one allOf have undefined combined semantics", kind))
		}
	})
	return root, strings.Join(notes, "; "), nil
}

func parseSelectorNode(expr, stmt string) (*Selector, error) {
	name, args, rest, ok := splitCall(expr)
	if !ok || rest != "" {
		return nil, &ParseError{Statement: stmt, Reason: fmt.Sprintf("malformed selector term %q", expr)}
	}
	name = strings.TrimPrefix(name, "ViewMatchers.")

	if ignoredMatchers[name] {
		return nil, nil
	}
	if kind, ok := combinatorDispatch[name]; ok {
		parts := splitTopLevelArgs(args)
		if len(parts) == 0 {
			return nil, &ParseError{Statement: stmt, Reason: fmt.Sprintf("%s requires at least one argument", name)}
		}
		var children []*Selector
		for _, part := range parts {
			child, err := parseSelectorNode(part, stmt)
			if err != nil {
				return nil, err
			}
			if child == nil {
				continue
			}
			children = append(children, child)
		}
		if len(children) == 0 {
			return nil, nil
		}
		if kind == KindAnd {
			if len(children) == 1 {
				return children[0], nil
			}
			return &Selector{Kind: KindAnd, Children: children}, nil
		}
		// withParent / hasDescendant take exactly one child; multiple
		// arguments combine as an implicit And.
		child := children[0]
		if len(children) > 1 {
			child = &Selector{Kind: KindAnd, Children: children}
		}
		return &Selector{Kind: kind, Children: []*Selector{child}}, nil
	}
	kind, ok := leafDispatch[name]
	if !ok {
		return nil, &UnsupportedConstructError{Construct: name, Statement: stmt}
	}
	return parseLeaf(kind, args, stmt)
}

func parseLeaf(kind SelectorKind, args, stmt string) (*Selector, error) {
	arg := strings.TrimSpace(args)
	switch kind {
	case KindByID:
		if m := resourceIDRe.FindStringSubmatch(arg); m != nil {
			return &Selector{Kind: KindByID, Value: m[1]}, nil
		}
		if v, ok := unquote(arg); ok {
			return &Selector{Kind: KindByID, Value: v}, nil
		}
		return nil, &ParseError{Statement: stmt, Reason: fmt.Sprintf("unrecognized id argument %q", arg)}
	case KindByText, KindByContentDescription:
		v, mode, ok := parseStringExpr(arg)
		if !ok {
			return nil, &ParseError{Statement: stmt, Reason: fmt.Sprintf("unrecognized string argument %q", arg)}
		}
		return &Selector{Kind: kind, Value: v, Mode: mode}, nil
	case KindByClassNameContains:
		v, _, ok := parseStringExpr(arg)
		if !ok {
			return nil, &ParseError{Statement: stmt, Reason: fmt.Sprintf("unrecognized class name argument %q", arg)}
		}
		return &Selector{Kind: KindByClassNameContains, Value: v}, nil
	case KindByParentIndex:
		n, err := strconv.Atoi(arg)
		if err != nil {
			return nil, &ParseError{Statement: stmt, Reason: fmt.Sprintf("withParentIndex argument %q is not an integer", arg)}
		}
		return &Selector{Kind: KindByParentIndex, Index: n}, nil
	}
	return nil, &ParseError{Statement: stmt, Reason: fmt.Sprintf("unhandled leaf kind %s", kind)}
}

func parseAction(args, stmt string) (StepDetail, error) {
	name, callArgs, rest, ok := splitCall(args)
	if !ok || rest != "" {
		return StepDetail{}, &ParseError{Statement: stmt, Reason: fmt.Sprintf("malformed action %q", args)}
	}
	switch name {
	case "click":
		return StepDetail{Action: ActionClick}, nil
	case "scrollTo":
		return StepDetail{Action: ActionScrollTo}, nil
	case "typeText", "replaceText":
		v, ok := unquote(strings.TrimSpace(callArgs))
		if !ok {
			return StepDetail{}, &ParseError{Statement: stmt, Reason: fmt.Sprintf("%s requires a string literal", name)}
		}
		action := ActionTypeText
		if name == "replaceText" {
			action = ActionReplaceText
		}
		return StepDetail{Action: action, Value: v}, nil
	}
	return StepDetail{}, &UnsupportedConstructError{Construct: name, Statement: stmt}
}

func parseAssertion(args, stmt string) (StepDetail, error) {
	name, callArgs, rest, ok := splitCall(args)
	if !ok || rest != "" {
		return StepDetail{}, &ParseError{Statement: stmt, Reason: fmt.Sprintf("malformed assertion %q", args)}
	}
	switch name {
	case "doesNotExist":
		return StepDetail{Assert: AssertDoesNotExist}, nil
	case "matches":
		inner, innerArgs, innerRest, ok := splitCall(callArgs)
		if !ok || innerRest != "" {
			return StepDetail{}, &ParseError{Statement: stmt, Reason: fmt.Sprintf("malformed matches argument %q", callArgs)}
		}
		switch strings.TrimPrefix(inner, "ViewMatchers.") {
		case "isDisplayed":
			return StepDetail{Assert: AssertIsDisplayed}, nil
		case "withText":
			v, mode, ok := parseStringExpr(strings.TrimSpace(innerArgs))
			if !ok {
				return StepDetail{}, &ParseError{Statement: stmt, Reason: fmt.Sprintf("unrecognized withText argument %q", innerArgs)}
			}
			return StepDetail{Assert: AssertMatchesText, Value: v, Mode: mode}, nil
		}
		return StepDetail{}, &UnsupportedConstructError{Construct: inner, Statement: stmt}
	}
	return StepDetail{}, &UnsupportedConstructError{Construct: name, Statement: stmt}
}
