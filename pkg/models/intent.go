package models

// IntentDefinition declares everything the pipeline needs to know about one
// intent: its slots, its confidence bar, and the tool action it ultimately
// dispatches to.
type IntentDefinition struct {
	ID                 string              `json:"id" yaml:"id"`
	Description        string              `json:"description" yaml:"description"`
	Examples           []string            `json:"examples,omitempty" yaml:"examples"`
	RequiredSlots      []string            `json:"required_slots,omitempty" yaml:"required_slots"`
	OptionalSlots      []string            `json:"optional_slots,omitempty" yaml:"optional_slots"`
	ToolAction         string              `json:"tool_action,omitempty" yaml:"tool_action"`
	ExpertDomain       string              `json:"expert_domain,omitempty" yaml:"expert_domain"`
	ConfidenceThreshold float64            `json:"confidence_threshold" yaml:"confidence_threshold"`
	MaxRAGExamples     int                 `json:"max_rag_examples,omitempty" yaml:"max_rag_examples"`
	SlotQuestions      map[string]string   `json:"slot_questions,omitempty" yaml:"slot_questions"`
	SlotPriority       map[string]int      `json:"slot_priority,omitempty" yaml:"slot_priority"`
}

// Validate enforces the IntentDefinition invariant from spec.md §3:
// required_slots and optional_slots must be disjoint.
func (d IntentDefinition) Validate() error {
	required := make(map[string]bool, len(d.RequiredSlots))
	for _, s := range d.RequiredSlots {
		required[s] = true
	}
	for _, s := range d.OptionalSlots {
		if required[s] {
			return &SlotOverlapError{Intent: d.ID, Slot: s}
		}
	}
	return nil
}

// SlotOverlapError reports an intent whose required and optional slot sets
// intersect.
type SlotOverlapError struct {
	Intent string
	Slot   string
}

func (e *SlotOverlapError) Error() string {
	return "intent " + e.Intent + ": slot " + e.Slot + " listed as both required and optional"
}

// IsInformational reports whether this intent has no dispatchable tool
// action (spec.md §3: tool_action "resolves in ToolRegistry or is null").
func (d IntentDefinition) IsInformational() bool {
	return d.ToolAction == ""
}
