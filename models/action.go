package models

// ActionStatus reports how an agent action ended.
type ActionStatus string

const (
	ActionStatusCompleted ActionStatus = "completed"
	ActionStatusFailed    ActionStatus = "failed"
)

// ActionType classifies an agent action for trajectory consumers.
type ActionType string

const (
	ActionTypeNavigation ActionType = "web_navigation"
	ActionTypeExtraction ActionType = "web_extraction"
)

// Tab describes one open browser tab.
type Tab struct {
	URL   string `json:"url"`
	Title string `json:"title"`
}

// StepType identifies one kind of executable program step.
type StepType string

const (
	StepClick    StepType = "click"
	StepTypeText StepType = "type"
	StepPress    StepType = "press"
	StepHover    StepType = "hover"
	StepSelect   StepType = "select"
	StepScroll   StepType = "scroll"
	StepWait     StepType = "wait"
	StepWaitFor  StepType = "wait_for"
)

// ProgramStep is a single step of an LLM-generated action program.
// Which fields are meaningful depends on Type:
//
//	click/hover      Selector
//	type             Selector + Text
//	press            Key (e.g. "Enter", "Tab", "Escape"); Selector optional
//	select           Selector + Value
//	scroll           Pixels (negative scrolls up)
//	wait             Milliseconds
//	wait_for         Selector + Milliseconds (timeout)
type ProgramStep struct {
	Type         StepType `json:"type"`
	Selector     string   `json:"selector,omitempty"`
	Text         string   `json:"text,omitempty"`
	Key          string   `json:"key,omitempty"`
	Value        string   `json:"value,omitempty"`
	Pixels       int      `json:"pixels,omitempty"`
	Milliseconds int      `json:"milliseconds,omitempty"`
}

// ActionResult is the outcome of one engine instruction.
// Code holds the generated program text accumulated across attempts;
// Output is non-empty only for extraction-style engines.
type ActionResult struct {
	Instruction string `json:"instruction"`
	Code        string `json:"code"`
	Success     bool   `json:"success"`
	Output      string `json:"output"`
}

// AttemptLog records one code-generation + execution attempt.
type AttemptLog struct {
	Program      string `json:"program"`
	GenerationMs int64  `json:"generation_ms"`
	ExecutionMs  int64  `json:"execution_ms"`
	Prompt       string `json:"prompt,omitempty"`
	Model        string `json:"model"`
	Success      bool   `json:"success"`
	Error        string `json:"error,omitempty"`
}

// NavigationLog is the per-instruction log of the navigation engine:
// what was retrieved, with what, and how each attempt went.
type NavigationLog struct {
	OriginalInstruction string       `json:"original_instruction"`
	EngineInput         string       `json:"engine_input"`
	RetrievalQuery      string       `json:"retrieval_query"`
	RetrievedFragments  []string     `json:"retrieved_fragments"`
	RephraseMs          int64        `json:"rephrase_ms"`
	RetrievalMs         int64        `json:"retrieval_ms"`
	RetrieverName       string       `json:"retriever_name"`
	Attempts            []AttemptLog `json:"attempts"`
}

// TrajectoryStep is one recorded step of an objective run.
type TrajectoryStep struct {
	StepID      string       `json:"step_id"`
	Engine      string       `json:"engine"`
	ActionType  ActionType   `json:"action_type"`
	Instruction string       `json:"instruction"`
	Thoughts    string       `json:"thoughts,omitempty"`
	Code        string       `json:"code,omitempty"`
	Output      string       `json:"output,omitempty"`
	Status      ActionStatus `json:"status"`
	Error       string       `json:"error,omitempty"`
	Tabs        []Tab        `json:"tabs,omitempty"`
	FocusedTab  int          `json:"focused_tab"`
	DurationMs  int64        `json:"duration_ms"`
}
