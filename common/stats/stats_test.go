package stats

import (
	"testing"
	"time"
)

func TestPrecisionChange(t *testing.T) {
	stat := DefaultStatsReceiver().(*defaultStatsReceiver)
	if stat.precision != time.Millisecond {
		t.Fatal("default precision should be millis")
	}
	statp := stat.Precision(time.Second).(*defaultStatsReceiver)
	if stat.precision != time.Millisecond {
		t.Fatal("default precision should still be millis")
	}
	if statp.precision != time.Second {
		t.Fatal("new precision should be seconds")
	}
}

func TestScopeChange(t *testing.T) {
	stat := DefaultStatsReceiver().(*defaultStatsReceiver)
	statp := stat.Scope("a/b", "c").(*defaultStatsReceiver)
	if len(stat.scope) != 0 {
		t.Fatal("default scope should still be empty")
	}
	if statp.scopedName("d") != "a_SLASH_b/c/d" {
		t.Fatal("invalid scope name: " + statp.scopedName("d"))
	}
	// sibling scopes must not share a backing array
	x := statp.Scope("x").(*defaultStatsReceiver)
	y := statp.Scope("y").(*defaultStatsReceiver)
	if x.scopedName() != "a_SLASH_b/c/x" || y.scopedName() != "a_SLASH_b/c/y" {
		t.Fatalf("scopes leaked: %s %s", x.scopedName(), y.scopedName())
	}
}

func TestRender(t *testing.T) {
	Time = NewTestTime(time.Unix(0, 0), 5*time.Millisecond)
	defer func() { Time = DefaultStatsTime() }()

	stat := DefaultStatsReceiver()
	stat.Counter("counter").Inc(1)
	stat.Scope("sub").Gauge("gauge").Update(2)
	stat.Latency("latency_ms").Time().Stop()

	VerifyStats("render", stat, t, map[string]Rule{
		"counter":          {Checker: Int64EqTest, Value: 1},
		"sub/gauge":        {Checker: Int64EqTest, Value: 2},
		"latency_ms.count": {Checker: Int64EqTest, Value: 1},
		"latency_ms.max":   {Checker: Int64EqTest, Value: 5},
		"missing":          {Checker: DoesNotExistTest},
	})

	stat.Remove("counter")
	VerifyStats("removed", stat, t, map[string]Rule{
		"counter": {Checker: DoesNotExistTest},
	})
	if len(stat.Render(true)) == 0 {
		t.Fatal("expected rendered json")
	}
}

func TestNilReceiver(t *testing.T) {
	stat := NilStatsReceiver()
	stat.Scope("a").Counter("c").Inc(3)
	stat.Latency("l").Time().Stop()
	if string(stat.Render(false)) != "{}" {
		t.Fatal("nil receiver should render an empty object")
	}
}
