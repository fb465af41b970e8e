package raktr

import (
	"testing"
	"time"
)

func TestOneOffTask(t *testing.T) {
	fired := 0
	task := &oneOffTask{body: func() { fired++ }}

	now := time.Now()
	if !task.due(now) {
		t.Fatal("oneOffTask should always be due")
	}
	task.run()
	if fired != 1 {
		t.Fatalf("expected body to run once, ran %d times", fired)
	}
	if !task.expired() {
		t.Fatal("oneOffTask should be expired after firing")
	}
}

func TestPersistentTask(t *testing.T) {
	task := &persistentTask{body: func() {}}
	now := time.Now()
	if !task.due(now) {
		t.Fatal("persistentTask should always be due")
	}
	task.run()
	if task.expired() {
		t.Fatal("persistentTask never expires")
	}
}

func TestPeriodicTaskFiresOnIntervalWithBoundedDrift(t *testing.T) {
	start := time.Now()
	task := newPeriodicTask(10*time.Second, func() {}, start)

	if task.due(start) {
		t.Fatal("periodic task should not be due immediately")
	}
	if !task.due(start.Add(10 * time.Second)) {
		t.Fatal("periodic task should be due once interval elapses")
	}

	task.run()
	want := start.Add(20 * time.Second)
	if !task.nextFire.Equal(want) {
		t.Fatalf("next fire should advance by interval from previous fire, not actual fire time: got %v want %v", task.nextFire, want)
	}
	if task.expired() {
		t.Fatal("periodic task never expires")
	}
}

func TestDelayedTaskFiresOnceThenExpires(t *testing.T) {
	start := time.Now()
	fired := 0
	task := newDelayedTask(5*time.Second, func() { fired++ }, start)

	if task.due(start) {
		t.Fatal("delayed task should not be due before its delay elapses")
	}

	later := start.Add(5 * time.Second)
	if !task.due(later) {
		t.Fatal("delayed task should be due once the delay elapses")
	}
	task.run()
	if fired != 1 {
		t.Fatalf("expected one fire, got %d", fired)
	}
	if !task.expired() {
		t.Fatal("delayed task should be expired after firing")
	}
	if task.due(later.Add(time.Hour)) {
		t.Fatal("a fired delayed task must never become due again")
	}
}
