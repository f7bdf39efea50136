package models

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// Task lifecycle states. A task holds exactly one at a time.
const (
	TaskStatusPending   = "pending"
	TaskStatusAssigned  = "assigned"
	TaskStatusCompleted = "completed"
	TaskStatusCredited  = "credited"
	TaskStatusFailed    = "failed"
	TaskStatusExpired   = "expired"
)

// QA duplicate kinds stored on the internal record.
const (
	QATypeNone      = "none"
	QATypeShadow    = "shadow"
	QATypeSpotCheck = "spot_check"
	QATypeBenchmark = "benchmark"
)

const (
	FundedByBuyer    = "buyer"
	FundedByPlatform = "platform"
)

// Output formats a worker may submit.
const (
	OutputFormatText     = "text"
	OutputFormatJSON     = "json"
	OutputFormatHTML     = "html"
	OutputFormatMarkdown = "markdown"
	OutputFormatCode     = "code"
)

// QA verdicts produced by the comparator.
const (
	VerdictPass = "pass"
	VerdictFlag = "flag"
	VerdictFail = "fail"
)

type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type TaskInput struct {
	Messages []Message      `json:"messages"`
	Context  map[string]any `json:"context,omitempty"`
}

type Constraints struct {
	TimeoutSeconds  int `json:"timeout_seconds"`
	MinOutputLength int `json:"min_output_length"`
}

type TaskOutput struct {
	Content string `json:"content"`
	Format  string `json:"format"`
}

type QADimensions struct {
	ContentOverlap float64 `json:"content_overlap"`
	LengthRatio    float64 `json:"length_ratio"`
	FormatMatch    float64 `json:"format_match"`
}

// QAResult is the comparator outcome persisted on a QA task.
type QAResult struct {
	Similarity      float64      `json:"similarity"`
	Verdict         string       `json:"verdict"`
	Dimensions      QADimensions `json:"dimensions"`
	ReferenceTaskID *uuid.UUID   `json:"reference_task_id,omitempty"`
	ComparedAt      time.Time    `json:"compared_at"`
}

// TaskInternal is platform-only bookkeeping. It is never serialized into any
// worker- or buyer-facing payload.
type TaskInternal struct {
	IsQA           bool            `json:"is_qa"`
	QAType         string          `json:"qa_type"`
	OriginalTaskID *uuid.UUID      `json:"original_task_id,omitempty"`
	ExpectedOutput json.RawMessage `json:"expected_output,omitempty"`
	QAResult       *QAResult       `json:"qa_result,omitempty"`
	FundedBy       string          `json:"funded_by"`
}

type Task struct {
	ID          uuid.UUID    `json:"id"`
	BuyerID     uuid.UUID    `json:"buyer_id"`
	Type        string       `json:"type"`
	Input       TaskInput    `json:"input"`
	Constraints Constraints  `json:"constraints"`
	PriceCents  int64        `json:"price_cents"`
	Status      string       `json:"status"`
	WorkerID    *uuid.UUID   `json:"worker_id,omitempty"`
	AssignedAt  *time.Time   `json:"assigned_at,omitempty"`
	Deadline    time.Time    `json:"deadline"`
	Output      *TaskOutput  `json:"output,omitempty"`
	CompletedAt *time.Time   `json:"completed_at,omitempty"`
	CreatedAt   time.Time    `json:"created_at"`
	Internal    TaskInternal `json:"-"`
}

// WorkerTaskView is the only shape of a task a worker ever sees.
type WorkerTaskView struct {
	ID          uuid.UUID   `json:"id"`
	Type        string      `json:"type"`
	Input       TaskInput   `json:"input"`
	Constraints Constraints `json:"constraints"`
	PriceCents  int64       `json:"price_cents"`
	Deadline    time.Time   `json:"deadline"`
}

func (t *Task) WorkerView() WorkerTaskView {
	return WorkerTaskView{
		ID:          t.ID,
		Type:        t.Type,
		Input:       t.Input,
		Constraints: t.Constraints,
		PriceCents:  t.PriceCents,
		Deadline:    t.Deadline,
	}
}

// BuyerTaskView is what the owning buyer sees when polling a task.
type BuyerTaskView struct {
	ID          uuid.UUID   `json:"id"`
	Type        string      `json:"type"`
	Status      string      `json:"status"`
	PriceCents  int64       `json:"price_cents"`
	Output      *TaskOutput `json:"output,omitempty"`
	Deadline    time.Time   `json:"deadline"`
	CreatedAt   time.Time   `json:"created_at"`
	CompletedAt *time.Time  `json:"completed_at,omitempty"`
}

func (t *Task) BuyerView() BuyerTaskView {
	return BuyerTaskView{
		ID:          t.ID,
		Type:        t.Type,
		Status:      t.Status,
		PriceCents:  t.PriceCents,
		Output:      t.Output,
		Deadline:    t.Deadline,
		CreatedAt:   t.CreatedAt,
		CompletedAt: t.CompletedAt,
	}
}

// QADuplicate returns a fresh pending, platform-funded copy of t linked back to it.
// Shadows keep the original deadline; spot-checks get a fresh execution window.
func (t *Task) QADuplicate(qaType string, now time.Time) *Task {
	origID := t.ID
	dup := &Task{
		ID:          uuid.New(),
		BuyerID:     t.BuyerID,
		Type:        t.Type,
		Input:       t.Input,
		Constraints: t.Constraints,
		PriceCents:  t.PriceCents,
		Status:      TaskStatusPending,
		Deadline:    t.Deadline,
		CreatedAt:   now,
		Internal: TaskInternal{
			IsQA:           true,
			QAType:         qaType,
			OriginalTaskID: &origID,
			FundedBy:       FundedByPlatform,
		},
	}
	if qaType == QATypeSpotCheck {
		dup.Deadline = now.Add(time.Duration(t.Constraints.TimeoutSeconds) * time.Second)
	}
	return dup
}

// ClaimOrder selects how eligible pending tasks are ranked for a claim.
type ClaimOrder int

const (
	// ClaimOrderFIFO ranks by creation time ascending.
	ClaimOrderFIFO ClaimOrder = iota
	// ClaimOrderPriceDesc ranks by price descending, then creation time ascending.
	ClaimOrderPriceDesc
)

// ClaimQuery describes which pending task a worker may take.
type ClaimQuery struct {
	WorkerID uuid.UUID
	Now      time.Time
	Accept   []string
	Reject   []string
	MinPrice int64
	Order    ClaimOrder
}

// Matches reports whether t is claimable under q, ignoring QA exclusivity.
func (q ClaimQuery) Matches(t *Task) bool {
	if t.Status != TaskStatusPending || !t.Deadline.After(q.Now) {
		return false
	}
	if t.PriceCents < q.MinPrice {
		return false
	}
	if len(q.Accept) > 0 && !contains(q.Accept, t.Type) {
		return false
	}
	return !contains(q.Reject, t.Type)
}

// ExpiredAssignment is one task reclaimed by timeout recovery and the worker that held it.
type ExpiredAssignment struct {
	TaskID   uuid.UUID
	WorkerID uuid.UUID
}

func contains(list []string, v string) bool {
	for _, s := range list {
		if s == v {
			return true
		}
	}
	return false
}
