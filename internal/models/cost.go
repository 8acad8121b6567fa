package models

import (
	"math"
	"sort"
	"time"
)

// RoundCost normalizes a USD amount to the 4-decimal precision used across
// all cost accounting.
func RoundCost(v float64) float64 {
	return math.Round(v*10000) / 10000
}

// TokenUsage counts LLM tokens for one API call.
type TokenUsage struct {
	Input  int `json:"input,omitempty"`
	Output int `json:"output,omitempty"`
}

// APICall is one billable call made by a stage.
type APICall struct {
	Service   string     `json:"service"`
	Tokens    TokenUsage `json:"tokens"`
	Cost      float64    `json:"cost"`
	Model     string     `json:"model,omitempty"`
	Timestamp time.Time  `json:"timestamp"`
}

// StageCosts is the per-stage roll-up inside a cost sheet.
type StageCosts struct {
	Calls    []APICall `json:"calls"`
	Subtotal float64   `json:"subtotal"`
}

// CostSheet is the persisted per-pipeline cost document
// (pipelines/{id}/costs).
type CostSheet struct {
	PipelineID string                 `json:"pipelineId"`
	Stages     map[string]*StageCosts `json:"stages"`
	Total      float64                `json:"total"`
	UpdatedAt  time.Time              `json:"updatedAt"`
}

// NewCostSheet returns an empty sheet for the pipeline.
func NewCostSheet(pipelineID string) *CostSheet {
	return &CostSheet{
		PipelineID: pipelineID,
		Stages:     make(map[string]*StageCosts),
	}
}

// Record appends a call under the stage and updates the roll-ups.
func (c *CostSheet) Record(stage string, call APICall) {
	if c.Stages == nil {
		c.Stages = make(map[string]*StageCosts)
	}
	sc, ok := c.Stages[stage]
	if !ok {
		sc = &StageCosts{}
		c.Stages[stage] = sc
	}
	call.Cost = RoundCost(call.Cost)
	sc.Calls = append(sc.Calls, call)
	sc.Subtotal = RoundCost(sc.Subtotal + call.Cost)
	c.Total = RoundCost(c.Total + call.Cost)
}

// StageTotal returns the subtotal for one stage.
func (c *CostSheet) StageTotal(stage string) float64 {
	if sc, ok := c.Stages[stage]; ok {
		return sc.Subtotal
	}
	return 0
}

// CostCategory buckets services for the daily roll-up.
type CostCategory string

const (
	CostCategoryLLM    CostCategory = "llm"
	CostCategoryTTS    CostCategory = "tts"
	CostCategoryRender CostCategory = "render"
	CostCategoryImage  CostCategory = "image"
	CostCategoryOther  CostCategory = "other"
)

// CostSummary is the aggregate view emitted for reporting.
type CostSummary struct {
	PipelineID string                   `json:"pipelineId"`
	Total      float64                  `json:"total"`
	ByCategory map[CostCategory]float64 `json:"byCategory"`
	ByStage    map[string]float64       `json:"byStage"`
	Services   []string                 `json:"services"`
}

// Summarize computes the roll-up from the sheet using the given
// service-to-category mapping.
func (c *CostSheet) Summarize(categorize func(service string) CostCategory) CostSummary {
	summary := CostSummary{
		PipelineID: c.PipelineID,
		Total:      c.Total,
		ByCategory: make(map[CostCategory]float64),
		ByStage:    make(map[string]float64),
	}
	seen := make(map[string]bool)
	for stage, sc := range c.Stages {
		summary.ByStage[stage] = sc.Subtotal
		for _, call := range sc.Calls {
			cat := categorize(call.Service)
			summary.ByCategory[cat] = RoundCost(summary.ByCategory[cat] + call.Cost)
			if !seen[call.Service] {
				seen[call.Service] = true
				summary.Services = append(summary.Services, call.Service)
			}
		}
	}
	sort.Strings(summary.Services)
	return summary
}

// BudgetStatus is the single mutable budget document (budget/current).
// Writers use optimistic read-modify-write; LastUpdated must be monotonic.
type BudgetStatus struct {
	InitialCredit    float64         `json:"initialCredit"`
	TotalSpent       float64         `json:"totalSpent"`
	Remaining        float64         `json:"remaining"`
	DaysOfRunway     int             `json:"daysOfRunway"`
	ProjectedMonthly float64         `json:"projectedMonthly"`
	CreditExpiration time.Time       `json:"creditExpiration"`
	IsWithinBudget   bool            `json:"isWithinBudget"`
	AlertsSent       map[string]bool `json:"alertsSent,omitempty"`
	LastUpdated      time.Time       `json:"lastUpdated"`
}

// QuotaUsage tracks consumed publish-API units for one date
// (youtube-quota/{date}).
type QuotaUsage struct {
	Date      string    `json:"date"`
	Used      int64     `json:"used"`
	Limit     int64     `json:"limit"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// Remaining returns the unspent units, never negative.
func (q *QuotaUsage) Remaining() int64 {
	if q.Used >= q.Limit {
		return 0
	}
	return q.Limit - q.Used
}
