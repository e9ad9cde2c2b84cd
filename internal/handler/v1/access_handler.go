package v1

import (
	"github.com/careledger/careledger/internal/domain/access"
	"github.com/careledger/careledger/internal/service"
	"github.com/careledger/careledger/pkg/metrics"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

type AccessHandler struct {
	svc *service.AccessService
	col *metrics.Collector
}

func NewAccessHandler(svc *service.AccessService, col *metrics.Collector) *AccessHandler {
	return &AccessHandler{svc: svc, col: col}
}

type createAccessRequest struct {
	PatientID   uuid.UUID `json:"patient_id" binding:"required"`
	Reason      string    `json:"reason" binding:"required"`
	AccessLevel string    `json:"access_level" binding:"required"`
	RecordTypes []string  `json:"record_types" binding:"required"`
	ExpiryDays  int       `json:"expiry_days" binding:"required"`
}

type respondRequest struct {
	Approve bool   `json:"approve"`
	Note    string `json:"note"`
}

func (h *AccessHandler) Create(c *gin.Context) {
	caller := callerIdentity(c)
	var req createAccessRequest
	if !bindJSON(c, &req) {
		return
	}

	created, err := h.svc.CreateRequest(c.Request.Context(), &access.CreateRequestCommand{
		DoctorID:   caller.ID,
		PatientID:  req.PatientID,
		Reason:     req.Reason,
		Level:      access.Level(req.AccessLevel),
		Scope:      access.Scope(req.RecordTypes),
		ExpiryDays: req.ExpiryDays,
	}, caller, c.ClientIP())
	if err != nil {
		respondServiceError(c, err)
		return
	}

	h.col.AccessRequestsTotal.WithLabelValues(string(created.Status)).Inc()
	respondCreated(c, created)
}

func (h *AccessHandler) Respond(c *gin.Context) {
	requestID, ok := parseUUID(c, "id")
	if !ok {
		return
	}
	var req respondRequest
	if !bindJSON(c, &req) {
		return
	}

	updated, err := h.svc.Respond(c.Request.Context(), &access.RespondCommand{
		RequestID: requestID,
		Approve:   req.Approve,
		Note:      req.Note,
	}, callerIdentity(c), c.ClientIP())
	if err != nil {
		respondServiceError(c, err)
		return
	}

	h.col.AccessRequestsTotal.WithLabelValues(string(updated.Status)).Inc()
	respondOK(c, updated)
}

func (h *AccessHandler) Revoke(c *gin.Context) {
	requestID, ok := parseUUID(c, "id")
	if !ok {
		return
	}

	updated, err := h.svc.Revoke(c.Request.Context(), requestID, callerIdentity(c), c.ClientIP())
	if err != nil {
		respondServiceError(c, err)
		return
	}

	h.col.AccessRequestsTotal.WithLabelValues(string(updated.Status)).Inc()
	respondOK(c, updated)
}

func (h *AccessHandler) List(c *gin.Context) {
	reqs, err := h.svc.ListRequests(c.Request.Context(), callerIdentity(c))
	if err != nil {
		respondServiceError(c, err)
		return
	}
	respondOK(c, reqs)
}
