package command

import "testing"

func TestCoalesceEmptyBatchIsNotApplied(t *testing.T) {
	c := Coalesce(nil)
	if c.Applied {
		t.Fatal("expected Applied=false for an empty batch")
	}
}

func TestCoalesceLastWriteWinsPerField(t *testing.T) {
	cmds := []Command{
		NewSetIntent(1, 100, IntentLong),
		NewSetArm(2, 101, true),
		NewSetIntent(3, 102, IntentShort),
	}
	c := Coalesce(cmds)

	if !c.HasIntent || c.Intent != IntentShort {
		t.Fatalf("expected last intent=Short, got %+v", c)
	}
	if !c.HasArm || !c.Arm {
		t.Fatalf("expected arm=true, got %+v", c)
	}
	if !c.Applied || c.LastID != 3 {
		t.Fatalf("expected Applied with LastID=3, got %+v", c)
	}
}

func TestCoalesceLastIDTracksMaxIDNotArrivalOrder(t *testing.T) {
	cmds := []Command{
		NewSetArm(5, 200, false),
		NewSetIntent(2, 199, IntentFlat),
	}
	c := Coalesce(cmds)
	if c.LastID != 5 {
		t.Fatalf("expected LastID=5 (max across the batch), got %d", c.LastID)
	}
}

func TestIntentStringNames(t *testing.T) {
	cases := map[Intent]string{
		IntentFlat:  "Flat",
		IntentLong:  "Long",
		IntentShort: "Short",
		IntentBoth:  "Both",
	}
	for intent, want := range cases {
		if got := intent.String(); got != want {
			t.Errorf("Intent(%d).String() = %q, want %q", intent, got, want)
		}
	}
}
