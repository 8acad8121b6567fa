package models

import "time"

// ReviewStatus is the triage state of a review-queue item.
type ReviewStatus string

const (
	ReviewStatusPending  ReviewStatus = "pending"
	ReviewStatusApproved ReviewStatus = "approved"
	ReviewStatusRejected ReviewStatus = "rejected"
)

// ReviewItem is one entry in the human review queue (review-queue/{id}).
// Quality gates emit them when output needs eyes before publish.
type ReviewItem struct {
	ID         string            `json:"id"`
	PipelineID string            `json:"pipelineId"`
	Stage      string            `json:"stage"`
	Reason     string            `json:"reason"`
	Excerpt    string            `json:"excerpt,omitempty"`
	Details    map[string]string `json:"details,omitempty"`
	Status     ReviewStatus      `json:"status"`
	CreatedAt  time.Time         `json:"createdAt"`
}
