package models

import (
	"regexp"
	"slices"
	"time"
)

// PipelineStatus is the lifecycle state of a whole pipeline run.
type PipelineStatus string

const (
	PipelineStatusPending PipelineStatus = "pending"
	PipelineStatusRunning PipelineStatus = "running"
	PipelineStatusSuccess PipelineStatus = "success"
	PipelineStatusFailed  PipelineStatus = "failed"
	PipelineStatusSkipped PipelineStatus = "skipped"
)

// IsTerminal returns true when no further stage execution is possible
// without an explicit operator retry.
func (s PipelineStatus) IsTerminal() bool {
	return s == PipelineStatusSuccess || s == PipelineStatusFailed || s == PipelineStatusSkipped
}

// StageStatus is the lifecycle state of a single stage slot.
type StageStatus string

const (
	StageStatusPending   StageStatus = "pending"
	StageStatusRunning   StageStatus = "running"
	StageStatusSuccess   StageStatus = "success"
	StageStatusFailed    StageStatus = "failed"
	StageStatusCancelled StageStatus = "cancelled"
)

// Canonical stage names. These double as the artifact namespace segments in
// the object store layout {date}/{stage}/{filename}.
const (
	StageResearch      = "research"
	StageScriptDrafts  = "script-drafts"
	StageScriptGen     = "script-gen"
	StageTTS           = "tts"
	StageAudioSegments = "audio-segments"
	StageVisualGen     = "visual-gen"
	StageThumbnails    = "thumbnails"
	StageRender        = "render"
)

// DefaultStageOrder returns the fixed production stage sequence.
func DefaultStageOrder() []string {
	return []string{
		StageResearch,
		StageScriptDrafts,
		StageScriptGen,
		StageTTS,
		StageAudioSegments,
		StageVisualGen,
		StageThumbnails,
		StageRender,
	}
}

// IsValidStage reports whether name is one of the canonical stage names.
func IsValidStage(name string) bool {
	return slices.Contains(DefaultStageOrder(), name)
}

var pipelineIDPattern = regexp.MustCompile(`^\d{4}-\d{2}-\d{2}$`)

// ValidatePipelineID checks that id is a real calendar date in YYYY-MM-DD form.
func ValidatePipelineID(id string) error {
	if id == "" {
		return ErrPipelineIDRequired
	}
	if !pipelineIDPattern.MatchString(id) {
		return ErrInvalidPipelineID
	}
	if _, err := time.Parse("2006-01-02", id); err != nil {
		return ErrInvalidPipelineID
	}
	return nil
}

// ArtifactType classifies stage outputs stored in the object store.
type ArtifactType string

const (
	ArtifactTypeAudio ArtifactType = "audio"
	ArtifactTypeVideo ArtifactType = "video"
	ArtifactTypeImage ArtifactType = "image"
	ArtifactTypeJSON  ArtifactType = "json"
	ArtifactTypeText  ArtifactType = "text"
)

// ArtifactRef points at one stage output in the object store. Refs are owned
// by the producing stage and never mutated after write.
type ArtifactRef struct {
	Type        ArtifactType `json:"type"`
	URL         string       `json:"url"`
	SizeBytes   int64        `json:"sizeBytes"`
	ContentType string       `json:"contentType"`
	GeneratedAt time.Time    `json:"generatedAt"`
	Stage       string       `json:"stage"`
}

// StageRecord is the per-stage slot inside PipelineState. Writes are
// last-writer-wins, but stages execute strictly sequentially so a slot never
// has concurrent writers.
type StageRecord struct {
	Status     StageStatus `json:"status"`
	StartTime  time.Time   `json:"startTime,omitzero"`
	EndTime    *time.Time  `json:"endTime,omitempty"`
	Provider   string      `json:"provider,omitempty"`
	Attempts   int         `json:"attempts,omitempty"`
	DurationMs int64       `json:"durationMs,omitempty"`
	Cost       float64     `json:"cost,omitempty"`
	Warnings   []string    `json:"warnings,omitempty"`
}

// PipelineError is one append-only entry in PipelineState.Errors.
type PipelineError struct {
	Code      string    `json:"code"`
	Message   string    `json:"message"`
	Stage     string    `json:"stage,omitempty"`
	Timestamp time.Time `json:"timestamp"`
	Severity  string    `json:"severity"`
}

// QualityContext accumulates degradation markers as the run progresses.
// It only ever grows: stages never remove prior degradations. All three
// members have set semantics; the slices are kept sorted and deduplicated.
type QualityContext struct {
	DegradedStages []string `json:"degradedStages"`
	FallbacksUsed  []string `json:"fallbacksUsed"`
	Flags          []string `json:"flags"`
}

func insertSorted(set []string, v string) []string {
	if v == "" {
		return set
	}
	idx, found := slices.BinarySearch(set, v)
	if found {
		return set
	}
	return slices.Insert(set, idx, v)
}

// AddDegraded records a degraded stage.
func (q *QualityContext) AddDegraded(stage string) {
	q.DegradedStages = insertSorted(q.DegradedStages, stage)
}

// AddFallback records a fallback provider use in "stage:provider" form.
func (q *QualityContext) AddFallback(stage, provider string) {
	q.FallbacksUsed = insertSorted(q.FallbacksUsed, stage+":"+provider)
}

// AddFlag records a named quality flag.
func (q *QualityContext) AddFlag(flag string) {
	q.Flags = insertSorted(q.Flags, flag)
}

// HasFlag reports whether flag is present.
func (q *QualityContext) HasFlag(flag string) bool {
	_, found := slices.BinarySearch(q.Flags, flag)
	return found
}

// HasFallbackFor reports whether any fallback was recorded for the stage.
func (q *QualityContext) HasFallbackFor(stage string) bool {
	prefix := stage + ":"
	for _, f := range q.FallbacksUsed {
		if len(f) > len(prefix) && f[:len(prefix)] == prefix {
			return true
		}
	}
	return false
}

// Merge unions other into q.
func (q *QualityContext) Merge(other QualityContext) {
	for _, s := range other.DegradedStages {
		q.DegradedStages = insertSorted(q.DegradedStages, s)
	}
	for _, f := range other.FallbacksUsed {
		q.FallbacksUsed = insertSorted(q.FallbacksUsed, f)
	}
	for _, f := range other.Flags {
		q.Flags = insertSorted(q.Flags, f)
	}
}

// IsEmpty reports whether no degradation of any kind was recorded.
func (q *QualityContext) IsEmpty() bool {
	return len(q.DegradedStages) == 0 && len(q.FallbacksUsed) == 0 && len(q.Flags) == 0
}

// Clone returns a deep copy of the context.
func (q QualityContext) Clone() QualityContext {
	return QualityContext{
		DegradedStages: slices.Clone(q.DegradedStages),
		FallbacksUsed:  slices.Clone(q.FallbacksUsed),
		Flags:          slices.Clone(q.Flags),
	}
}

// BufferDeployment records that a pre-rendered buffer video shipped for this
// date instead of (or in place of) the live pipeline output.
type BufferDeployment struct {
	BufferID   string    `json:"bufferId"`
	DeployedAt time.Time `json:"deployedAt"`
}

// PipelineState is the persisted state document for one run, one per
// pipeline id (YYYY-MM-DD).
type PipelineState struct {
	PipelineID       string                   `json:"pipelineId"`
	Status           PipelineStatus           `json:"status"`
	CurrentStage     string                   `json:"currentStage,omitempty"`
	StartTime        time.Time                `json:"startTime"`
	EndTime          *time.Time               `json:"endTime,omitempty"`
	Stages           map[string]*StageRecord  `json:"stages"`
	Artifacts        map[string][]ArtifactRef `json:"artifacts,omitempty"`
	QualityContext   QualityContext           `json:"qualityContext"`
	Errors           []PipelineError          `json:"errors"`
	Topic            string                   `json:"topic,omitempty"`
	BufferDeployment *BufferDeployment        `json:"bufferDeployment,omitempty"`
}

// NewPipelineState returns a pending state skeleton for the given id with
// empty slots for every stage in order.
func NewPipelineState(pipelineID string, stageOrder []string, now time.Time) *PipelineState {
	stages := make(map[string]*StageRecord, len(stageOrder))
	for _, name := range stageOrder {
		stages[name] = &StageRecord{Status: StageStatusPending}
	}
	return &PipelineState{
		PipelineID: pipelineID,
		Status:     PipelineStatusPending,
		StartTime:  now,
		Stages:     stages,
		Artifacts:  make(map[string][]ArtifactRef),
		Errors:     []PipelineError{},
	}
}

// Stage returns the slot for the named stage, creating a pending one if the
// state predates the stage's registration.
func (s *PipelineState) Stage(name string) *StageRecord {
	if s.Stages == nil {
		s.Stages = make(map[string]*StageRecord)
	}
	rec, ok := s.Stages[name]
	if !ok {
		rec = &StageRecord{Status: StageStatusPending}
		s.Stages[name] = rec
	}
	return rec
}

// AppendError appends to the append-only error log.
func (s *PipelineState) AppendError(e PipelineError) {
	s.Errors = append(s.Errors, e)
}

// AddArtifacts appends artifact refs produced by a stage.
func (s *PipelineState) AddArtifacts(stage string, refs []ArtifactRef) {
	if len(refs) == 0 {
		return
	}
	if s.Artifacts == nil {
		s.Artifacts = make(map[string][]ArtifactRef)
	}
	s.Artifacts[stage] = append(s.Artifacts[stage], refs...)
}

// HasCriticalError reports whether any logged error carries CRITICAL severity.
func (s *PipelineState) HasCriticalError() bool {
	for _, e := range s.Errors {
		if e.Severity == "CRITICAL" {
			return true
		}
	}
	return false
}

// PublishDecision is the three-valued routing verdict emitted after the last
// stage.
type PublishDecision string

const (
	DecisionAutoPublish            PublishDecision = "AUTO_PUBLISH"
	DecisionAutoPublishWithWarning PublishDecision = "AUTO_PUBLISH_WITH_WARNING"
	DecisionHumanReview            PublishDecision = "HUMAN_REVIEW"
)

// QualityReport is persisted under pipelines/{id}/quality after the decision
// engine runs.
type QualityReport struct {
	PipelineID string          `json:"pipelineId"`
	Decision   PublishDecision `json:"decision"`
	Reason     string          `json:"reason"`
	Context    QualityContext  `json:"context"`
	DecidedAt  time.Time       `json:"decidedAt"`
}
