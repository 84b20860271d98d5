package progress

import (
	"testing"
	"time"

	"github.com/haasonsaas/assistant-core/pkg/models"
)

func twoSubtasks() []models.Subtask {
	return []models.Subtask{
		{ID: "t1", Action: "weather.query"},
		{ID: "t2", Action: "alarm.schedule_conditional", Dependencies: []string{"t1"}},
	}
}

func TestStart_InitializesAllSubtasksPending(t *testing.T) {
	tr := New(nil)
	id := tr.Start("exec-1", twoSubtasks())

	snap, err := tr.Status(id)
	if err != nil {
		t.Fatalf("Status: %v", err)
	}
	if snap.Counts.Total != 2 || snap.Counts.Pending != 2 {
		t.Fatalf("unexpected counts: %+v", snap.Counts)
	}
}

func TestUpdate_CountsInvariantHoldsAcrossTransitions(t *testing.T) {
	tr := New(nil)
	id := tr.Start("exec-1", twoSubtasks())

	if err := tr.Update(id, "t1", models.SubtaskExecuting, nil, ""); err != nil {
		t.Fatalf("Update: %v", err)
	}
	if err := tr.Update(id, "t1", models.SubtaskCompleted, &models.ToolResponse{Type: models.ResponseText}, ""); err != nil {
		t.Fatalf("Update: %v", err)
	}

	snap, _ := tr.Status(id)
	c := snap.Counts
	if sum := c.Pending + c.InProgress + c.Completed + c.Failed + c.Cancelled; sum != c.Total {
		t.Fatalf("counts invariant violated: %+v", c)
	}
	if c.Completed != 1 || c.Pending != 1 {
		t.Fatalf("unexpected counts after one completion: %+v", c)
	}
	if c.CompletionPercent() != 0.5 {
		t.Fatalf("expected 50%% completion, got %v", c.CompletionPercent())
	}
}

func TestUpdate_UnknownTrackerReturnsNotFound(t *testing.T) {
	tr := New(nil)
	if err := tr.Update("missing", "t1", models.SubtaskCompleted, nil, ""); err != ErrNotFound {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestCancel_MarksPendingAndExecutingSubtasksCancelled(t *testing.T) {
	tr := New(nil)
	id := tr.Start("exec-1", twoSubtasks())
	_ = tr.Update(id, "t1", models.SubtaskExecuting, nil, "")

	if err := tr.Cancel(id); err != nil {
		t.Fatalf("Cancel: %v", err)
	}

	snap, _ := tr.Status(id)
	if snap.Counts.Cancelled != 2 {
		t.Fatalf("expected both subtasks cancelled, got %+v", snap.Counts)
	}
	if !snap.Counts.IsDone() {
		t.Fatal("expected execution to be done after cancellation")
	}
}

func TestSubscribe_ReceivesNotificationOnEveryTransition(t *testing.T) {
	tr := New(nil)
	var received []Notification
	unsub := tr.Subscribe(func(n Notification) { received = append(received, n) })
	defer unsub()

	id := tr.Start("exec-1", twoSubtasks())
	_ = tr.Update(id, "t1", models.SubtaskCompleted, nil, "")
	_ = tr.Update(id, "t2", models.SubtaskCompleted, nil, "")

	if len(received) != 3 {
		t.Fatalf("expected 3 notifications (start + 2 updates), got %d", len(received))
	}
	last := received[len(received)-1]
	if !last.Done {
		t.Fatal("expected final notification to report Done")
	}
}

func TestStart_ZeroSubtasksIsImmediatelyDone(t *testing.T) {
	tr := New(nil)
	id := tr.Start("exec-empty", nil)

	snap, err := tr.Status(id)
	if err != nil {
		t.Fatalf("Status: %v", err)
	}
	if !snap.Counts.IsDone() {
		t.Fatal("expected zero-subtask execution to be immediately done")
	}
}

func TestCleanup_RemovesOnlyFinishedExecutionsOlderThanCutoff(t *testing.T) {
	tr := New(nil)
	doneID := tr.Start("exec-done", []models.Subtask{{ID: "t1", Action: "weather.query"}})
	_ = tr.Update(doneID, "t1", models.SubtaskCompleted, nil, "")
	activeID := tr.Start("exec-active", twoSubtasks())

	removed := tr.Cleanup(-time.Minute)
	if removed != 1 {
		t.Fatalf("expected 1 removed, got %d", removed)
	}
	if _, err := tr.Status(doneID); err != ErrNotFound {
		t.Fatalf("expected done tracker to be cleaned up, got err=%v", err)
	}
	if _, err := tr.Status(activeID); err != nil {
		t.Fatalf("expected active tracker to survive cleanup, got err=%v", err)
	}
}
