package testhelpers

import (
	"bytes"
	"encoding/json"
	"fmt"
	"reflect"
	"runtime"
	"strings"
	"testing"

	"github.com/scootdev/ensemble/common/stats"
)

/*
add new Checker functions here as needed.
Rendered stats are decoded from JSON, so 'got' values are float64.
*/

/*
returns true if a == b, b being a float64
*/
func FloatEqTest(a, b interface{}) bool {
	if b == nil && a == nil {
		return true
	}
	aflt, ok := a.(float64)
	return ok && aflt == b.(float64)
}

/*
returns true if a > b, b being a float64
*/
func FloatGTTest(a, b interface{}) bool {
	if b == nil && a == nil {
		return true
	}
	aflt, ok := a.(float64)
	return ok && aflt > b.(float64)
}

/*
returns true if a == b, b being an int
*/
func IntEqTest(a, b interface{}) bool {
	if b == nil && a == nil {
		return true
	}
	aflt, ok := a.(float64)
	return ok && aflt == float64(b.(int))
}

func DoesNotExist(a, b interface{}) bool {
	return a == nil
}

/*
defines the condition checker to use to validate the measurement.  Each Checker(a, b) implementation
will expect a to be the 'got' value and b to be the 'expected' value.
*/
type Rule struct {
	Checker func(interface{}, interface{}) bool
	Value   interface{}
}

/*
Verify that the rendered stats contain values for the keys in the contains map parameter and that
each entry conforms to the rule (condition) associated with that key.
Rendering resets an unlatched receiver's instruments.
*/
func VerifyStats(t *testing.T, stat stats.StatsReceiver, contains map[string]Rule) {
	t.Helper()
	var rendered map[string]interface{}
	if err := json.Unmarshal(stat.Render(false), &rendered); err != nil {
		t.Fatalf("couldn't decode rendered stats: %v", err)
	}

	failed := false
	var msg bytes.Buffer
	msg.WriteString("stats registry error:\n")
	for key, rule := range contains {
		checker := runtime.FuncForPC(reflect.ValueOf(rule.Checker).Pointer()).Name()
		gotValue, ok := rendered[key]
		if !ok {
			if !strings.Contains(checker, "DoesNotExist") {
				failed = true
				msg.WriteString(fmt.Sprintf("%s: no stat entry, and checker:%s\n", key, checker))
			}
		} else if rule.Checker != nil && !rule.Checker(gotValue, rule.Value) {
			failed = true
			msg.WriteString(fmt.Sprintf("%s: got %v, expected to pass %s with %v\n", key, gotValue, checker, rule.Value))
		}
	}
	if failed {
		t.Error(msg.String())
	}
}
