package trace

import "testing"

func TestRingWriteAndSnapshot(t *testing.T) {
	var r Ring
	r.Write(Event{Timestamp: 1, Payload: 10})
	r.Write(Event{Timestamp: 2, Payload: 20})

	snap := r.Snapshot()
	if len(snap) != 2 {
		t.Fatalf("len(snapshot) = %d, want 2", len(snap))
	}
	if snap[0].Payload != 10 || snap[1].Payload != 20 {
		t.Fatalf("snapshot out of order: %+v", snap)
	}
	if r.Dropped() != 0 {
		t.Fatalf("Dropped() = %d, want 0", r.Dropped())
	}
}

func TestRingOverwritesOldestAndCountsDropped(t *testing.T) {
	var r Ring
	for i := 0; i < capacity+5; i++ {
		r.Write(Event{Timestamp: uint64(i), Payload: uint32(i)})
	}

	if r.Dropped() != 5 {
		t.Fatalf("Dropped() = %d, want 5", r.Dropped())
	}

	snap := r.Snapshot()
	if len(snap) != capacity {
		t.Fatalf("len(snapshot) = %d, want %d", len(snap), capacity)
	}
	if snap[0].Payload != 5 {
		t.Fatalf("oldest surviving entry payload = %d, want 5", snap[0].Payload)
	}
}

func TestProviderEnableDisableProbe(t *testing.T) {
	p := &Provider{name: "test"}
	if p.IsEnabled(SchedPick) {
		t.Fatal("probe enabled before EnableProbe")
	}

	p.EnableProbe(SchedPick)
	if !p.IsEnabled(SchedPick) {
		t.Fatal("probe not enabled after EnableProbe")
	}
	if p.IsEnabled(SchedResched) {
		t.Fatal("unrelated probe reported enabled")
	}

	p.DisableProbe(SchedPick)
	if p.IsEnabled(SchedPick) {
		t.Fatal("probe still enabled after DisableProbe")
	}
}

func TestRecordSkipsDisabledProbe(t *testing.T) {
	p := &Provider{name: "test"}
	perCPU[0] = Ring{}

	Record(0, p, SchedPick, 42, 100)
	if len(CPURing(0).Snapshot()) != 0 {
		t.Fatal("Record wrote an event for a disabled probe")
	}

	p.EnableProbe(SchedPick)
	Record(0, p, SchedPick, 42, 100)
	snap := CPURing(0).Snapshot()
	if len(snap) != 1 || snap[0].Payload != 42 {
		t.Fatalf("Record with enabled probe: snapshot = %+v", snap)
	}
}

func TestCounterIncAndValue(t *testing.T) {
	var c Counter
	c.Inc()
	c.Inc()
	c.Inc()
	if c.Value() != 3 {
		t.Fatalf("Value() = %d, want 3", c.Value())
	}
}
