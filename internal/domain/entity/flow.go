package entity

import "time"

// FlowState is the closed set of screens the classifier may report for
// the credential provisioning workflow. Unknown is the mandatory
// fallback for anything the model cannot place.
type FlowState string

const (
	StateUnknown         FlowState = "unknown"
	StateCredentialsList FlowState = "credentials_list"
	StateCreateForm      FlowState = "create_form"
	StateCreatedModal    FlowState = "created_modal"
	StateDone            FlowState = "done"
	StateError           FlowState = "error"
)

// ActionSpec is one candidate action for a state: what to do, and the
// state the workflow is expected to land in afterwards.
type ActionSpec struct {
	Target string
	Kind   ActionKind
	Text   string
	Expect FlowState
}

// ActionTableEntry holds the ordered candidates for a state. The table
// is configuration and is never mutated at runtime.
type ActionTableEntry struct {
	Actions []ActionSpec
}

type StepRecord struct {
	Step    int           `json:"step"`
	State   FlowState     `json:"state"`
	Action  string        `json:"action"`
	Result  string        `json:"result"`
	Elapsed time.Duration `json:"elapsed_ms"`
}

// FlowTrace is the append-only step history for one session. The flow
// flushes each record through the logger as it is appended, so a crash
// leaves a diagnosable history on disk.
type FlowTrace struct {
	records []StepRecord
}

func (t *FlowTrace) Append(r StepRecord) {
	t.records = append(t.records, r)
}

func (t *FlowTrace) Records() []StepRecord {
	out := make([]StepRecord, len(t.records))
	copy(out, t.records)
	return out
}

func (t *FlowTrace) Len() int {
	return len(t.records)
}

type FlowResult struct {
	Success      bool
	Message      string
	ArtifactPath string
	Steps        int
	Escalated    bool
}

// EscalationBundle is the evidence handed to a human when automation
// gives up on a (state, action) key.
type EscalationBundle struct {
	Question    string
	Reflection  string
	Trace       []StepRecord
	Screenshots []*Screenshot
	State       FlowState
	Target      string
}
