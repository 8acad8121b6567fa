package handlers

import (
	"context"
	"errors"
	"fmt"

	"github.com/danielgtaylor/huma/v2"
	"github.com/zerodaily/nexus/internal/incident"
	"github.com/zerodaily/nexus/internal/models"
)

// IncidentHandler handles incident read and resolution endpoints.
type IncidentHandler struct {
	log     *incident.Logger
	queries *incident.Queries
}

// NewIncidentHandler creates a new incident handler.
func NewIncidentHandler(log *incident.Logger, queries *incident.Queries) *IncidentHandler {
	return &IncidentHandler{log: log, queries: queries}
}

// Register registers the incident routes with the API.
func (h *IncidentHandler) Register(api huma.API) {
	huma.Register(api, huma.Operation{
		OperationID: "listIncidents",
		Method:      "GET",
		Path:        "/api/v1/incidents",
		Summary:     "List incidents",
		Description: "Returns incidents filtered by date, stage, or open status",
		Tags:        []string{"Incidents"},
	}, h.List)

	huma.Register(api, huma.Operation{
		OperationID: "getIncident",
		Method:      "GET",
		Path:        "/api/v1/incidents/{id}",
		Summary:     "Get incident",
		Description: "Returns an incident by ID",
		Tags:        []string{"Incidents"},
	}, h.GetByID)

	huma.Register(api, huma.Operation{
		OperationID: "resolveIncident",
		Method:      "POST",
		Path:        "/api/v1/incidents/{id}/resolve",
		Summary:     "Resolve incident",
		Description: "Closes an incident and attaches the post-mortem skeleton",
		Tags:        []string{"Incidents"},
	}, h.Resolve)
}

// ListIncidentsInput is the input for listing incidents.
type ListIncidentsInput struct {
	Date  string `query:"date" doc:"Filter by date (YYYY-MM-DD)"`
	Stage string `query:"stage" doc:"Filter by pipeline stage"`
	Open  bool   `query:"open" doc:"Only unresolved incidents"`
}

// ListIncidentsOutput is the output for listing incidents.
type ListIncidentsOutput struct {
	Body struct {
		Incidents []models.IncidentRecord `json:"incidents"`
	}
}

// List returns incidents matching the given filters. Open wins over stage,
// stage wins over date; with no filter the open incidents are returned.
func (h *IncidentHandler) List(ctx context.Context, input *ListIncidentsInput) (*ListIncidentsOutput, error) {
	var (
		records []models.IncidentRecord
		err     error
	)
	switch {
	case input.Open:
		records, err = h.queries.Open(ctx)
	case input.Stage != "":
		records, err = h.queries.ByStage(ctx, input.Stage)
	case input.Date != "":
		records, err = h.queries.ByDate(ctx, input.Date)
	default:
		records, err = h.queries.Open(ctx)
	}
	if err != nil {
		return nil, huma.Error500InternalServerError("failed to list incidents", err)
	}

	resp := &ListIncidentsOutput{}
	resp.Body.Incidents = records
	if resp.Body.Incidents == nil {
		resp.Body.Incidents = []models.IncidentRecord{}
	}
	return resp, nil
}

// GetIncidentInput is the input for getting an incident.
type GetIncidentInput struct {
	ID string `path:"id" doc:"Incident ID (YYYY-MM-DD-NNN)"`
}

// GetIncidentOutput is the output for getting an incident.
type GetIncidentOutput struct {
	Body models.IncidentRecord
}

// GetByID returns an incident by ID.
func (h *IncidentHandler) GetByID(ctx context.Context, input *GetIncidentInput) (*GetIncidentOutput, error) {
	rec, err := h.queries.Get(ctx, input.ID)
	if err != nil {
		if errors.Is(err, models.ErrIncidentNotFound) {
			return nil, huma.Error404NotFound(fmt.Sprintf("incident %s not found", input.ID))
		}
		return nil, huma.Error500InternalServerError("failed to get incident", err)
	}

	return &GetIncidentOutput{Body: *rec}, nil
}

// ResolveIncidentInput is the input for resolving an incident.
type ResolveIncidentInput struct {
	ID   string `path:"id" doc:"Incident ID (YYYY-MM-DD-NNN)"`
	Body struct {
		Type       models.ResolutionType `json:"type" enum:"retry,fallback,skip,manual,auto_recovered" doc:"How the incident was resolved"`
		ResolvedBy models.Resolver       `json:"resolvedBy,omitempty" enum:"system,operator," doc:"Who resolved it (defaults to operator)"`
		Notes      string                `json:"notes,omitempty" doc:"Free-form resolution notes"`
	}
}

// ResolveIncidentOutput is the output for resolving an incident.
type ResolveIncidentOutput struct {
	Body models.IncidentRecord
}

// Resolve closes an incident.
func (h *IncidentHandler) Resolve(ctx context.Context, input *ResolveIncidentInput) (*ResolveIncidentOutput, error) {
	resolution := models.Resolution{
		Type:       input.Body.Type,
		ResolvedBy: input.Body.ResolvedBy,
		Notes:      input.Body.Notes,
	}
	if resolution.ResolvedBy == "" {
		resolution.ResolvedBy = models.ResolvedByOperator
	}

	rec, err := h.log.ResolveIncident(ctx, input.ID, resolution)
	if err != nil {
		if errors.Is(err, models.ErrIncidentNotFound) {
			return nil, huma.Error404NotFound(fmt.Sprintf("incident %s not found", input.ID))
		}
		return nil, huma.Error500InternalServerError("failed to resolve incident", err)
	}

	// Resolution invalidates the read caches.
	h.queries.Invalidate()

	return &ResolveIncidentOutput{Body: *rec}, nil
}
