package graph

import "testing"

func TestSort_LinearChainProducesOneNodePerLevel(t *testing.T) {
	levels, err := Sort([]Node{
		{ID: "a"},
		{ID: "b", DependsOn: []string{"a"}},
		{ID: "c", DependsOn: []string{"b"}},
	})
	if err != nil {
		t.Fatalf("Sort: %v", err)
	}
	want := [][]string{{"a"}, {"b"}, {"c"}}
	if !equalLevels(levels, want) {
		t.Fatalf("levels = %v, want %v", levels, want)
	}
}

func TestSort_IndependentNodesShareOneLevel(t *testing.T) {
	levels, err := Sort([]Node{
		{ID: "a"},
		{ID: "b"},
		{ID: "c"},
	})
	if err != nil {
		t.Fatalf("Sort: %v", err)
	}
	if len(levels) != 1 || len(levels[0]) != 3 {
		t.Fatalf("levels = %v, want one level of 3", levels)
	}
}

func TestSort_DiamondDependencyOrdersCorrectly(t *testing.T) {
	levels, err := Sort([]Node{
		{ID: "a"},
		{ID: "b", DependsOn: []string{"a"}},
		{ID: "c", DependsOn: []string{"a"}},
		{ID: "d", DependsOn: []string{"b", "c"}},
	})
	if err != nil {
		t.Fatalf("Sort: %v", err)
	}
	want := [][]string{{"a"}, {"b", "c"}, {"d"}}
	if !equalLevels(levels, want) {
		t.Fatalf("levels = %v, want %v", levels, want)
	}
}

func TestSort_CycleReturnsCycleError(t *testing.T) {
	_, err := Sort([]Node{
		{ID: "a", DependsOn: []string{"b"}},
		{ID: "b", DependsOn: []string{"a"}},
	})
	if err == nil {
		t.Fatal("expected cycle error, got nil")
	}
	cycleErr, ok := err.(*CycleError)
	if !ok {
		t.Fatalf("expected *CycleError, got %T", err)
	}
	if len(cycleErr.Remaining) != 2 {
		t.Fatalf("Remaining = %v, want 2 nodes", cycleErr.Remaining)
	}
}

func TestSort_UnknownDependencyErrors(t *testing.T) {
	_, err := Sort([]Node{
		{ID: "a", DependsOn: []string{"ghost"}},
	})
	if err == nil {
		t.Fatal("expected error for unknown dependency, got nil")
	}
}

func TestSort_DuplicateIDErrors(t *testing.T) {
	_, err := Sort([]Node{{ID: "a"}, {ID: "a"}})
	if err == nil {
		t.Fatal("expected error for duplicate node id, got nil")
	}
}

func TestSort_EmptyNodeSetReturnsNoLevels(t *testing.T) {
	levels, err := Sort(nil)
	if err != nil {
		t.Fatalf("Sort: %v", err)
	}
	if levels != nil {
		t.Fatalf("levels = %v, want nil", levels)
	}
}

func equalLevels(got, want [][]string) bool {
	if len(got) != len(want) {
		return false
	}
	for i := range got {
		if len(got[i]) != len(want[i]) {
			return false
		}
		for j := range got[i] {
			if got[i][j] != want[i][j] {
				return false
			}
		}
	}
	return true
}
