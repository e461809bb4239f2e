// Package handler exposes the application lifecycle over HTTP. Handlers parse
// and shape transport data only; every decision is made by the service.
package handler

import (
	"context"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"

	"scholarship/internal/application/models"
	"scholarship/internal/application/ports"
	"scholarship/internal/application/service"
	docmodels "scholarship/internal/document/models"
	id "scholarship/pkg/domain"
	"scholarship/pkg/platform/httputil"
	"scholarship/pkg/platform/middleware/request"
	"scholarship/pkg/requestcontext"
)

// Service is the lifecycle surface the handler drives.
type Service interface {
	Submit(ctx context.Context, actor id.Actor, req service.SubmitRequest) (*service.SubmitResult, error)
	Renew(ctx context.Context, actor id.Actor, req service.SubmitRequest) (*service.SubmitResult, error)
	Resubmit(ctx context.Context, actor id.Actor, appID id.ApplicationID, req service.SubmitRequest) (*service.SubmitResult, error)
	Reset(ctx context.Context, actor id.Actor) error
	Forward(ctx context.Context, actor id.Actor, appID id.ApplicationID) (*models.Application, error)
	RaiseQuery(ctx context.Context, actor id.Actor, appID id.ApplicationID, req service.RaiseQueryRequest) (*models.Application, error)
	Approve(ctx context.Context, actor id.Actor, appID id.ApplicationID, amount decimal.Decimal) (*models.Application, error)
	Reject(ctx context.Context, actor id.Actor, appID id.ApplicationID, reason string) (*models.Application, error)
	OverrideStatus(ctx context.Context, actor id.Actor, appID id.ApplicationID, target models.Status, reason string) (*models.Application, error)
	Withdraw(ctx context.Context, actor id.Actor, appID id.ApplicationID, amount decimal.Decimal) (*service.WithdrawResult, error)
	VerifyDocument(ctx context.Context, actor id.Actor, docID id.DocumentID, decision docmodels.Decision, remarks string) (*docmodels.Document, error)
	ReuploadDocument(ctx context.Context, actor id.Actor, docID id.DocumentID, file ports.File) (*docmodels.Document, error)
	GetApplication(ctx context.Context, actor id.Actor, appID id.ApplicationID) (*models.Application, error)
	ListDocuments(ctx context.Context, actor id.Actor, appID id.ApplicationID) ([]*docmodels.Document, error)
	ListQueries(ctx context.Context, actor id.Actor, appID id.ApplicationID) ([]models.Query, error)
	ListDisbursements(ctx context.Context, actor id.Actor, appID id.ApplicationID) ([]*models.Disbursement, error)
	MyApplications(ctx context.Context, actor id.Actor) ([]*models.Application, error)
	Queue(ctx context.Context, actor id.Actor, filter models.QueueFilter) (*service.QueuePage, error)
	FileURL(locator string) string
}

const defaultMaxUploadBytes = 32 << 20

type Handler struct {
	svc            Service
	logger         *slog.Logger
	maxUploadBytes int64
}

type Option func(*Handler)

// WithMaxUploadBytes bounds the size of one multipart request body.
func WithMaxUploadBytes(n int64) Option {
	return func(h *Handler) {
		if n > 0 {
			h.maxUploadBytes = n
		}
	}
}

func New(svc Service, logger *slog.Logger, opts ...Option) *Handler {
	h := &Handler{
		svc:            svc,
		logger:         logger,
		maxUploadBytes: defaultMaxUploadBytes,
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// Register mounts the lifecycle routes. Authentication is applied by the
// caller; If-Match tokens are read here for every route.
func (h *Handler) Register(r chi.Router) {
	r.Group(func(r chi.Router) {
		r.Use(request.IfMatch)

		r.Route("/applications", func(r chi.Router) {
			r.Post("/", h.handleSubmit)
			r.Post("/renewals", h.handleRenew)
			r.Get("/mine", h.handleMine)
			r.Delete("/mine", h.handleReset)

			r.Route("/{applicationID}", func(r chi.Router) {
				r.Get("/", h.handleGet)
				r.Get("/documents", h.handleListDocuments)
				r.Get("/queries", h.handleListQueries)
				r.Post("/queries", h.handleRaiseQuery)
				r.Post("/resubmissions", h.handleResubmit)
				r.Post("/forward", h.handleForward)
				r.Post("/approve", h.handleApprove)
				r.Post("/reject", h.handleReject)
				r.Post("/status", h.handleOverride)
				r.Post("/withdrawals", h.handleWithdraw)
				r.Get("/withdrawals", h.handleListDisbursements)
			})
		})

		r.Get("/queue", h.handleQueue)
		r.Post("/documents/{documentID}/verification", h.handleVerifyDocument)
		r.Put("/documents/{documentID}/file", h.handleReupload)
	})
}

func (h *Handler) handleSubmit(w http.ResponseWriter, r *http.Request) {
	h.create(w, r, h.svc.Submit)
}

func (h *Handler) handleRenew(w http.ResponseWriter, r *http.Request) {
	h.create(w, r, h.svc.Renew)
}

func (h *Handler) create(w http.ResponseWriter, r *http.Request, run func(context.Context, id.Actor, service.SubmitRequest) (*service.SubmitResult, error)) {
	ctx := r.Context()
	req, err := h.parseSubmission(w, r)
	if err != nil {
		h.fail(ctx, w, "invalid submission", err)
		return
	}
	res, err := run(ctx, requestcontext.Actor(ctx), req)
	if err != nil {
		h.fail(ctx, w, "submission failed", err)
		return
	}
	h.writeApplication(w, http.StatusCreated, res.Application, h.toSubmitResponse(res))
}

func (h *Handler) handleResubmit(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	appID, ok := h.applicationID(w, r)
	if !ok {
		return
	}
	req, err := h.parseSubmission(w, r)
	if err != nil {
		h.fail(ctx, w, "invalid resubmission", err)
		return
	}
	res, err := h.svc.Resubmit(ctx, requestcontext.Actor(ctx), appID, req)
	if err != nil {
		h.fail(ctx, w, "resubmission failed", err)
		return
	}
	h.writeApplication(w, http.StatusOK, res.Application, h.toSubmitResponse(res))
}

func (h *Handler) handleReset(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if err := h.svc.Reset(ctx, requestcontext.Actor(ctx)); err != nil {
		h.fail(ctx, w, "reset failed", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) handleMine(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	apps, err := h.svc.MyApplications(ctx, requestcontext.Actor(ctx))
	if err != nil {
		h.fail(ctx, w, "list applications failed", err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, map[string]any{"applications": apps})
}

func (h *Handler) handleGet(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	appID, ok := h.applicationID(w, r)
	if !ok {
		return
	}
	app, err := h.svc.GetApplication(ctx, requestcontext.Actor(ctx), appID)
	if err != nil {
		h.fail(ctx, w, "get application failed", err)
		return
	}
	h.writeApplication(w, http.StatusOK, app, app)
}

func (h *Handler) handleListDocuments(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	appID, ok := h.applicationID(w, r)
	if !ok {
		return
	}
	docs, err := h.svc.ListDocuments(ctx, requestcontext.Actor(ctx), appID)
	if err != nil {
		h.fail(ctx, w, "list documents failed", err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, map[string]any{"documents": h.toDocumentViews(docs)})
}

func (h *Handler) handleListQueries(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	appID, ok := h.applicationID(w, r)
	if !ok {
		return
	}
	queries, err := h.svc.ListQueries(ctx, requestcontext.Actor(ctx), appID)
	if err != nil {
		h.fail(ctx, w, "list queries failed", err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, map[string]any{"queries": toQueryViews(queries)})
}

func (h *Handler) handleRaiseQuery(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	appID, ok := h.applicationID(w, r)
	if !ok {
		return
	}
	body, ok := httputil.DecodeAndPrepare[raiseQueryRequest](w, r, h.logger, ctx, requestcontext.RequestID(ctx))
	if !ok {
		return
	}
	app, err := h.svc.RaiseQuery(ctx, requestcontext.Actor(ctx), appID, service.RaiseQueryRequest{
		Field:   body.Field,
		Title:   body.Title,
		Message: body.Message,
	})
	if err != nil {
		h.fail(ctx, w, "raise query failed", err)
		return
	}
	h.writeApplication(w, http.StatusCreated, app, app)
}

func (h *Handler) handleForward(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	appID, ok := h.applicationID(w, r)
	if !ok {
		return
	}
	app, err := h.svc.Forward(ctx, requestcontext.Actor(ctx), appID)
	if err != nil {
		h.fail(ctx, w, "forward failed", err)
		return
	}
	h.writeApplication(w, http.StatusOK, app, app)
}

func (h *Handler) handleApprove(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	appID, ok := h.applicationID(w, r)
	if !ok {
		return
	}
	body, ok := httputil.DecodeAndPrepare[amountRequest](w, r, h.logger, ctx, requestcontext.RequestID(ctx))
	if !ok {
		return
	}
	app, err := h.svc.Approve(ctx, requestcontext.Actor(ctx), appID, body.Amount)
	if err != nil {
		h.fail(ctx, w, "approve failed", err)
		return
	}
	h.writeApplication(w, http.StatusOK, app, app)
}

func (h *Handler) handleReject(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	appID, ok := h.applicationID(w, r)
	if !ok {
		return
	}
	body, ok := httputil.DecodeAndPrepare[rejectRequest](w, r, h.logger, ctx, requestcontext.RequestID(ctx))
	if !ok {
		return
	}
	app, err := h.svc.Reject(ctx, requestcontext.Actor(ctx), appID, body.Reason)
	if err != nil {
		h.fail(ctx, w, "reject failed", err)
		return
	}
	h.writeApplication(w, http.StatusOK, app, app)
}

func (h *Handler) handleOverride(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	appID, ok := h.applicationID(w, r)
	if !ok {
		return
	}
	body, ok := httputil.DecodeAndPrepare[overrideRequest](w, r, h.logger, ctx, requestcontext.RequestID(ctx))
	if !ok {
		return
	}
	app, err := h.svc.OverrideStatus(ctx, requestcontext.Actor(ctx), appID, body.status, body.Reason)
	if err != nil {
		h.fail(ctx, w, "status override failed", err)
		return
	}
	h.writeApplication(w, http.StatusOK, app, app)
}

func (h *Handler) handleWithdraw(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	appID, ok := h.applicationID(w, r)
	if !ok {
		return
	}
	body, ok := httputil.DecodeAndPrepare[amountRequest](w, r, h.logger, ctx, requestcontext.RequestID(ctx))
	if !ok {
		return
	}
	res, err := h.svc.Withdraw(ctx, requestcontext.Actor(ctx), appID, body.Amount)
	if err != nil {
		h.fail(ctx, w, "withdrawal failed", err)
		return
	}
	h.writeApplication(w, http.StatusCreated, res.Application, withdrawResponse{
		Application:  res.Application,
		Disbursement: res.Disbursement,
	})
}

func (h *Handler) handleListDisbursements(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	appID, ok := h.applicationID(w, r)
	if !ok {
		return
	}
	rows, err := h.svc.ListDisbursements(ctx, requestcontext.Actor(ctx), appID)
	if err != nil {
		h.fail(ctx, w, "list withdrawals failed", err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, map[string]any{"withdrawals": rows})
}

func (h *Handler) handleQueue(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	filter, err := parseQueueFilter(r)
	if err != nil {
		h.fail(ctx, w, "invalid queue filter", err)
		return
	}
	page, err := h.svc.Queue(ctx, requestcontext.Actor(ctx), filter)
	if err != nil {
		h.fail(ctx, w, "queue failed", err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, queueResponse{
		Items:  page.Items,
		Total:  page.Total,
		Limit:  page.Limit,
		Offset: page.Offset,
	})
}

func (h *Handler) handleVerifyDocument(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	docID, ok := h.documentID(w, r)
	if !ok {
		return
	}
	body, ok := httputil.DecodeAndPrepare[verifyRequest](w, r, h.logger, ctx, requestcontext.RequestID(ctx))
	if !ok {
		return
	}
	doc, err := h.svc.VerifyDocument(ctx, requestcontext.Actor(ctx), docID, body.decision, body.Remarks)
	if err != nil {
		h.fail(ctx, w, "document verification failed", err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, h.toDocumentView(doc))
}

func (h *Handler) handleReupload(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	docID, ok := h.documentID(w, r)
	if !ok {
		return
	}
	file, err := h.parseReupload(w, r)
	if err != nil {
		h.fail(ctx, w, "invalid re-upload", err)
		return
	}
	doc, err := h.svc.ReuploadDocument(ctx, requestcontext.Actor(ctx), docID, file)
	if err != nil {
		h.fail(ctx, w, "document re-upload failed", err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, h.toDocumentView(doc))
}

func (h *Handler) applicationID(w http.ResponseWriter, r *http.Request) (id.ApplicationID, bool) {
	appID, err := id.ParseApplicationID(chi.URLParam(r, "applicationID"))
	if err != nil {
		httputil.WriteError(w, err)
		return id.ApplicationID{}, false
	}
	return appID, true
}

func (h *Handler) documentID(w http.ResponseWriter, r *http.Request) (id.DocumentID, bool) {
	docID, err := id.ParseDocumentID(chi.URLParam(r, "documentID"))
	if err != nil {
		httputil.WriteError(w, err)
		return id.DocumentID{}, false
	}
	return docID, true
}

// writeApplication writes body and exposes the application version as an
// ETag so clients can send it back in If-Match.
func (h *Handler) writeApplication(w http.ResponseWriter, status int, app *models.Application, body any) {
	if app != nil {
		w.Header().Set("ETag", strconv.Quote(strconv.FormatInt(app.Version, 10)))
	}
	httputil.WriteJSON(w, status, body)
}

func (h *Handler) fail(ctx context.Context, w http.ResponseWriter, msg string, err error) {
	h.logger.WarnContext(ctx, msg,
		"error", err,
		"request_id", requestcontext.RequestID(ctx),
	)
	httputil.WriteError(w, err)
}
