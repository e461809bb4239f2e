package handler

import (
	"time"

	"scholarship/internal/application/models"
	"scholarship/internal/application/ports"
	"scholarship/internal/application/service"
	docmodels "scholarship/internal/document/models"
	id "scholarship/pkg/domain"
)

// documentView replaces the storage locator with a fetchable URL.
type documentView struct {
	ID                 id.DocumentID                `json:"id"`
	ApplicationID      id.ApplicationID             `json:"application_id"`
	Type               docmodels.Type               `json:"type"`
	FileName           string                       `json:"file_name"`
	URL                string                       `json:"url"`
	VerificationStatus docmodels.VerificationStatus `json:"verification_status"`
	IssuedAt           *time.Time                   `json:"issued_at,omitempty"`
	ExpiresAt          *time.Time                   `json:"expires_at,omitempty"`
	ReuploadRequired   bool                         `json:"reupload_required"`
	Remarks            string                       `json:"remarks,omitempty"`
	VerifiedBy         *id.UserID                   `json:"verified_by,omitempty"`
	VerifiedAt         *time.Time                   `json:"verified_at,omitempty"`
	UpdatedAt          time.Time                    `json:"updated_at"`
}

type queryView struct {
	ID           id.QueryID         `json:"id"`
	Kind         models.QueryKind   `json:"kind"`
	RaisedBy     id.UserID          `json:"raised_by"`
	RaisedByRole id.Role            `json:"raised_by_role"`
	Field        string             `json:"field,omitempty"`
	Title        string             `json:"title"`
	Message      string             `json:"message"`
	Status       models.QueryStatus `json:"status"`
	Response     string             `json:"response,omitempty"`
	RaisedAt     time.Time          `json:"raised_at"`
	RespondedAt  *time.Time         `json:"responded_at,omitempty"`
}

type alertView struct {
	ID     id.AlertID      `json:"id"`
	Kind   ports.AlertKind `json:"kind"`
	Detail string          `json:"detail,omitempty"`
}

type submitResponse struct {
	Application *models.Application `json:"application"`
	Documents   []documentView      `json:"documents"`
	Alerts      []alertView         `json:"alerts,omitempty"`
}

type withdrawResponse struct {
	Application  *models.Application  `json:"application"`
	Disbursement *models.Disbursement `json:"withdrawal"`
}

type queueResponse struct {
	Items  []*models.Application `json:"items"`
	Total  int                   `json:"total"`
	Limit  int                   `json:"limit"`
	Offset int                   `json:"offset"`
}

func (h *Handler) toDocumentView(d *docmodels.Document) documentView {
	return documentView{
		ID:                 d.ID,
		ApplicationID:      d.ApplicationID,
		Type:               d.Type,
		FileName:           d.FileName,
		URL:                h.svc.FileURL(d.Locator),
		VerificationStatus: d.VerificationStatus,
		IssuedAt:           d.IssuedAt,
		ExpiresAt:          d.ExpiresAt,
		ReuploadRequired:   d.ReuploadRequired,
		Remarks:            d.Remarks,
		VerifiedBy:         d.VerifiedBy,
		VerifiedAt:         d.VerifiedAt,
		UpdatedAt:          d.UpdatedAt,
	}
}

func (h *Handler) toDocumentViews(docs []*docmodels.Document) []documentView {
	out := make([]documentView, 0, len(docs))
	for _, d := range docs {
		out = append(out, h.toDocumentView(d))
	}
	return out
}

func toQueryViews(queries []models.Query) []queryView {
	out := make([]queryView, 0, len(queries))
	for _, q := range queries {
		out = append(out, queryView{
			ID:           q.ID,
			Kind:         q.Kind,
			RaisedBy:     q.RaisedBy,
			RaisedByRole: q.RaisedByRole,
			Field:        q.Field,
			Title:        q.Title,
			Message:      q.Message,
			Status:       q.Status,
			Response:     q.Response,
			RaisedAt:     q.RaisedAt,
			RespondedAt:  q.RespondedAt,
		})
	}
	return out
}

func (h *Handler) toSubmitResponse(res *service.SubmitResult) submitResponse {
	resp := submitResponse{
		Application: res.Application,
		Documents:   h.toDocumentViews(res.Documents),
	}
	for _, a := range res.Alerts {
		resp.Alerts = append(resp.Alerts, alertView{ID: a.ID, Kind: a.Kind, Detail: a.Detail})
	}
	return resp
}
