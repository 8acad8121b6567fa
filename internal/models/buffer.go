package models

import "time"

// BufferStatus is the lifecycle state of a pre-rendered buffer video.
type BufferStatus string

const (
	BufferStatusActive   BufferStatus = "active"
	BufferStatusDeployed BufferStatus = "deployed"
	BufferStatusArchived BufferStatus = "archived"
)

// BufferVideo is one entry in the emergency inventory. Created
// active/used=false, flipped to deployed/used=true when it ships, and
// promoted to archived after the retention period.
type BufferVideo struct {
	ID              string            `json:"id"`
	Topic           string            `json:"topic"`
	CreatedDate     time.Time         `json:"createdDate"`
	Status          BufferStatus      `json:"status"`
	Used            bool              `json:"used"`
	UsedDate        *time.Time        `json:"usedDate,omitempty"`
	DeploymentCount int               `json:"deploymentCount"`
	VideoURL        string            `json:"videoUrl"`
	ThumbnailURL    string            `json:"thumbnailUrl"`
	Metadata        map[string]string `json:"metadata,omitempty"`
}

// Deployable reports whether the buffer is a selection candidate.
func (b *BufferVideo) Deployable() bool {
	return b.Status == BufferStatusActive && !b.Used
}

// BufferHealthStatus grades the inventory level.
type BufferHealthStatus string

const (
	BufferHealthHealthy  BufferHealthStatus = "healthy"
	BufferHealthWarning  BufferHealthStatus = "warning"
	BufferHealthCritical BufferHealthStatus = "critical"
)

// BufferHealth is the monitor's aggregate view of the inventory.
type BufferHealth struct {
	AvailableCount int                `json:"availableCount"`
	DeployedCount  int                `json:"deployedCount"`
	ArchivedCount  int                `json:"archivedCount"`
	Status         BufferHealthStatus `json:"status"`
	CheckedAt      time.Time          `json:"checkedAt"`
}
