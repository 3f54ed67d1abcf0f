package threshold

// Observation is one measured value for a metric key and subject
// (node, node/pool, index, or "cluster").
type Observation struct {
	Key     string
	Subject string
	Value   float64
}

// Evaluator applies a rule table to observations.
type Evaluator struct {
	rules map[string]Rule
}

// New returns an evaluator for rules. A nil slice selects DefaultRules.
func New(rules []Rule) *Evaluator {
	if rules == nil {
		rules = DefaultRules()
	}
	m := make(map[string]Rule, len(rules))
	for _, r := range rules {
		m[r.Key] = r
	}
	return &Evaluator{rules: m}
}

// Rule returns the rule for key.
func (e *Evaluator) Rule(key string) (Rule, bool) {
	r, ok := e.rules[key]
	return r, ok
}

// Evaluate classifies each observation in order. An observation produces at
// most one entry: an issue when the critical bound is crossed, otherwise a
// warning when the warning bound is. Keys without a rule are ignored.
func (e *Evaluator) Evaluate(obs []Observation) (issues, warnings []string) {
	issues = []string{}
	warnings = []string{}
	for _, o := range obs {
		r, ok := e.rules[o.Key]
		if !ok {
			continue
		}
		switch lvl := r.Level(o.Value); lvl {
		case LevelCritical:
			issues = append(issues, r.message(o, lvl))
		case LevelWarning:
			warnings = append(warnings, r.message(o, lvl))
		}
	}
	return issues, warnings
}
