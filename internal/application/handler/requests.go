package handler

import (
	"errors"
	"io"
	"mime/multipart"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"scholarship/internal/application/models"
	"scholarship/internal/application/ports"
	"scholarship/internal/application/service"
	docmodels "scholarship/internal/document/models"
	profilemodels "scholarship/internal/profile/models"
	dErrors "scholarship/pkg/domain-errors"
	"scholarship/pkg/platform/httputil"
)

// multipartMemory is how much of a multipart body is buffered in memory
// before parts spill to temporary files.
const multipartMemory = 8 << 20

type raiseQueryRequest struct {
	Field   string `json:"field"`
	Title   string `json:"title"`
	Message string `json:"message"`
}

func (r *raiseQueryRequest) Validate() error {
	r.Title = strings.TrimSpace(r.Title)
	r.Message = strings.TrimSpace(r.Message)
	if r.Title == "" || r.Message == "" {
		return dErrors.New(dErrors.CodeValidation, "title and message are required")
	}
	return nil
}

type amountRequest struct {
	Amount decimal.Decimal `json:"amount"`
}

func (r *amountRequest) Validate() error {
	if !r.Amount.IsPositive() {
		return dErrors.New(dErrors.CodeValidation, "amount must be greater than zero")
	}
	return nil
}

type rejectRequest struct {
	Reason string `json:"reason"`
}

func (r *rejectRequest) Validate() error {
	r.Reason = strings.TrimSpace(r.Reason)
	if r.Reason == "" {
		return dErrors.New(dErrors.CodeValidation, "reason is required")
	}
	return nil
}

type overrideRequest struct {
	Status string `json:"status"`
	Reason string `json:"reason"`

	status models.Status
}

func (r *overrideRequest) Validate() error {
	status, err := models.ParseStatus(r.Status)
	if err != nil {
		return err
	}
	r.status = status
	r.Reason = strings.TrimSpace(r.Reason)
	return nil
}

type verifyRequest struct {
	Decision string `json:"decision"`
	Remarks  string `json:"remarks"`

	decision docmodels.Decision
}

func (r *verifyRequest) Validate() error {
	decision, err := docmodels.ParseDecision(r.Decision)
	if err != nil {
		return err
	}
	r.decision = decision
	return nil
}

// parseSubmission reads a multipart body with a JSON `profile` field and any
// number of `files` parts. Per-file metadata travels in the parallel
// `types`, `issued_at` and `expires_at` fields.
func (h *Handler) parseSubmission(w http.ResponseWriter, r *http.Request) (service.SubmitRequest, error) {
	form, err := h.parseMultipart(w, r)
	if err != nil {
		return service.SubmitRequest{}, err
	}
	raw := firstValue(form, "profile")
	if raw == "" {
		return service.SubmitRequest{}, dErrors.New(dErrors.CodeBadRequest, "profile field is required")
	}
	var profile profilemodels.Data
	if err := httputil.DecodeJSON(strings.NewReader(raw), &profile); err != nil {
		return service.SubmitRequest{}, err
	}

	headers := form.File["files"]
	files := make([]ports.File, 0, len(headers))
	for i, fh := range headers {
		file, err := readFile(fh, valueAt(form, "types", i), valueAt(form, "issued_at", i), valueAt(form, "expires_at", i))
		if err != nil {
			return service.SubmitRequest{}, err
		}
		files = append(files, file)
	}
	return service.SubmitRequest{Profile: profile, Files: files}, nil
}

// parseReupload reads a multipart body carrying exactly one `file` part.
func (h *Handler) parseReupload(w http.ResponseWriter, r *http.Request) (ports.File, error) {
	form, err := h.parseMultipart(w, r)
	if err != nil {
		return ports.File{}, err
	}
	headers := form.File["file"]
	if len(headers) != 1 {
		return ports.File{}, dErrors.New(dErrors.CodeBadRequest, "exactly one file is required")
	}
	return readFile(headers[0], firstValue(form, "type"), firstValue(form, "issued_at"), firstValue(form, "expires_at"))
}

func (h *Handler) parseMultipart(w http.ResponseWriter, r *http.Request) (*multipart.Form, error) {
	r.Body = http.MaxBytesReader(w, r.Body, h.maxUploadBytes)
	if err := r.ParseMultipartForm(multipartMemory); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			return nil, dErrors.New(dErrors.CodeValidation, "upload exceeds the size limit")
		}
		return nil, dErrors.Wrap(err, dErrors.CodeBadRequest, "invalid multipart body")
	}
	return r.MultipartForm, nil
}

func readFile(fh *multipart.FileHeader, docType, issuedAt, expiresAt string) (ports.File, error) {
	f, err := fh.Open()
	if err != nil {
		return ports.File{}, dErrors.Wrap(err, dErrors.CodeBadRequest, "unreadable file part")
	}
	defer f.Close()
	content, err := io.ReadAll(f)
	if err != nil {
		return ports.File{}, dErrors.Wrap(err, dErrors.CodeBadRequest, "unreadable file part")
	}

	file := ports.File{Name: fh.Filename, Content: content}
	if docType != "" {
		if file.Type, err = docmodels.ParseType(docType); err != nil {
			return ports.File{}, err
		}
	}
	if file.IssuedAt, err = parseDate(issuedAt, "issued_at"); err != nil {
		return ports.File{}, err
	}
	if file.ExpiresAt, err = parseDate(expiresAt, "expires_at"); err != nil {
		return ports.File{}, err
	}
	return file, nil
}

// parseDate accepts RFC 3339 timestamps or plain dates. Empty means unset.
func parseDate(s, field string) (*time.Time, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil, nil
	}
	for _, layout := range []string{time.RFC3339, time.DateOnly} {
		if t, err := time.Parse(layout, s); err == nil {
			t = t.UTC()
			return &t, nil
		}
	}
	return nil, dErrors.New(dErrors.CodeValidation, field+" must be a date (YYYY-MM-DD) or RFC 3339 timestamp")
}

func firstValue(form *multipart.Form, key string) string {
	return valueAt(form, key, 0)
}

func valueAt(form *multipart.Form, key string, i int) string {
	values := form.Value[key]
	if i < len(values) {
		return values[i]
	}
	return ""
}

func parseQueueFilter(r *http.Request) (models.QueueFilter, error) {
	q := r.URL.Query()
	filter := models.QueueFilter{
		Status:   models.Status(strings.TrimSpace(q.Get("status"))),
		District: strings.TrimSpace(q.Get("district")),
	}
	var err error
	if filter.Year, err = intParam(q.Get("year"), "year"); err != nil {
		return filter, err
	}
	if filter.Limit, err = intParam(q.Get("limit"), "limit"); err != nil {
		return filter, err
	}
	if filter.Offset, err = intParam(q.Get("offset"), "offset"); err != nil {
		return filter, err
	}
	return filter, nil
}

func intParam(s, name string) (int, error) {
	if s == "" {
		return 0, nil
	}
	n, err := strconv.Atoi(s)
	if err != nil {
		return 0, dErrors.New(dErrors.CodeBadRequest, name+" must be an integer")
	}
	return n, nil
}
