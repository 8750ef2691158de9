package stats

import (
	"fmt"
	"strings"
	"testing"
)

/*
Utilities for checking the registry contents in tests. Each rule compares
the rendered value ('got') with the expected one.
*/
type RuleChecker struct {
	name    string
	checker func(got, expected interface{}) bool
}

func int64EqTest(got, expected interface{}) bool {
	if got == nil {
		return expected == nil
	}
	g, ok := got.(int64)
	if !ok {
		return false
	}
	return g == int64(expected.(int))
}

var Int64EqTest = RuleChecker{name: "int64EqTest", checker: int64EqTest}

func int64GTTest(got, expected interface{}) bool {
	g, ok := got.(int64)
	return ok && g > int64(expected.(int))
}

var Int64GTTest = RuleChecker{name: "int64GTTest", checker: int64GTTest}

var DoesNotExistTest = RuleChecker{name: "doesNotExistTest", checker: func(got, _ interface{}) bool { return got == nil }}

type Rule struct {
	Checker RuleChecker
	Value   interface{}
}

// VerifyStats fails t for every key whose rendered value breaks its rule.
// Only receivers built on the flat registry can be checked.
func VerifyStats(tag string, stat StatsReceiver, t *testing.T, contains map[string]Rule) {
	t.Helper()
	ds, ok := stat.(*defaultStatsReceiver)
	if !ok {
		t.Fatalf("%s: cannot verify stats of %T", tag, stat)
	}
	flat, ok := ds.registry.(*flatStatsRegistry)
	if !ok {
		t.Fatalf("%s: cannot verify stats of registry %T", tag, ds.registry)
	}

	all := flat.MarshalAll()
	var msg strings.Builder
	for key, rule := range contains {
		got := all[key]
		if rule.Checker.checker(got, rule.Value) {
			continue
		}
		if rule.Checker.name == DoesNotExistTest.name {
			fmt.Fprintf(&msg, "%s: found stat entry when there should not be one\n", key)
		} else {
			fmt.Fprintf(&msg, "%s: got %v, expected to pass %s with %v\n", key, got, rule.Checker.name, rule.Value)
		}
	}
	if msg.Len() > 0 {
		pretty, _ := flat.MarshalJSONPretty()
		t.Errorf("%s: stats registry error:\n%s%s", tag, msg.String(), pretty)
	}
}
