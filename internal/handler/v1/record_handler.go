package v1

import (
	"encoding/base64"
	"net/http"
	"time"

	"github.com/careledger/careledger/internal/domain/record"
	"github.com/careledger/careledger/internal/service"
	"github.com/careledger/careledger/pkg/metrics"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

type RecordHandler struct {
	svc       *service.RecordService
	handleTTL time.Duration
	maxUpload int64
	col       *metrics.Collector
}

func NewRecordHandler(svc *service.RecordService, handleTTL time.Duration, maxUpload int64, col *metrics.Collector) *RecordHandler {
	return &RecordHandler{svc: svc, handleTTL: handleTTL, maxUpload: maxUpload, col: col}
}

type createRecordRequest struct {
	PatientID  uuid.UUID `json:"patient_id" binding:"required"`
	Title      string    `json:"title" binding:"required"`
	RecordType string    `json:"record_type" binding:"required"`
	Tags       []string  `json:"tags"`
	Message    string    `json:"message" binding:"required"`
	FileName   string    `json:"file_name" binding:"required"`
	MediaType  string    `json:"media_type" binding:"required"`
	// Content is base64; multipart upload is handled by an edge proxy.
	Content string `json:"content" binding:"required"`
}

type appendVersionRequest struct {
	Message   string `json:"message" binding:"required"`
	FileName  string `json:"file_name" binding:"required"`
	MediaType string `json:"media_type" binding:"required"`
	Content   string `json:"content" binding:"required"`
}

func (h *RecordHandler) Create(c *gin.Context) {
	var req createRecordRequest
	if !bindJSON(c, &req) {
		return
	}
	content, err := base64.StdEncoding.DecodeString(req.Content)
	if err != nil {
		respondError(c, http.StatusBadRequest, "content must be base64 encoded")
		return
	}
	if int64(len(content)) > h.maxUpload {
		respondError(c, http.StatusRequestEntityTooLarge, "content exceeds the upload size limit")
		return
	}

	rec, v, err := h.svc.CreateRecord(c.Request.Context(), &record.CreateRecordCommand{
		PatientID: req.PatientID,
		Title:     req.Title,
		Type:      record.RecordType(req.RecordType),
		Tags:      req.Tags,
		Message:   req.Message,
		FileName:  req.FileName,
		MediaType: req.MediaType,
		Content:   content,
	}, callerIdentity(c), c.ClientIP())
	if err != nil {
		respondServiceError(c, err)
		return
	}

	h.col.RecordsCreatedTotal.Inc()
	h.col.VersionsCommittedTotal.WithLabelValues(string(v.Change)).Inc()
	respondCreated(c, gin.H{"record": rec, "version": v})
}

func (h *RecordHandler) AppendVersion(c *gin.Context) {
	recordID, ok := parseUUID(c, "id")
	if !ok {
		return
	}
	var req appendVersionRequest
	if !bindJSON(c, &req) {
		return
	}
	content, err := base64.StdEncoding.DecodeString(req.Content)
	if err != nil {
		respondError(c, http.StatusBadRequest, "content must be base64 encoded")
		return
	}
	if int64(len(content)) > h.maxUpload {
		respondError(c, http.StatusRequestEntityTooLarge, "content exceeds the upload size limit")
		return
	}

	v, err := h.svc.AppendVersion(c.Request.Context(), &record.AppendVersionCommand{
		RecordID:  recordID,
		Message:   req.Message,
		FileName:  req.FileName,
		MediaType: req.MediaType,
		Content:   content,
	}, callerIdentity(c), c.ClientIP())
	if err != nil {
		respondServiceError(c, err)
		return
	}

	h.col.VersionsCommittedTotal.WithLabelValues(string(v.Change)).Inc()
	respondCreated(c, v)
}

func (h *RecordHandler) ListVersions(c *gin.Context) {
	recordID, ok := parseUUID(c, "id")
	if !ok {
		return
	}
	versions, err := h.svc.ListVersions(c.Request.Context(), recordID, callerIdentity(c))
	if err != nil {
		respondServiceError(c, err)
		return
	}
	respondOK(c, versions)
}

func (h *RecordHandler) GetContentURL(c *gin.Context) {
	recordID, ok := parseUUID(c, "id")
	if !ok {
		return
	}
	versionNo := parseQueryInt(c, "version", 0)
	if versionNo <= 0 {
		respondError(c, http.StatusBadRequest, "version query parameter is required")
		return
	}

	url, err := h.svc.GetContentURL(c.Request.Context(), recordID, versionNo, h.handleTTL, callerIdentity(c))
	if err != nil {
		respondServiceError(c, err)
		return
	}
	respondOK(c, gin.H{"url": url, "expires_in": h.handleTTL.String()})
}

func (h *RecordHandler) ListPatientRecords(c *gin.Context) {
	patientID, ok := parseUUID(c, "id")
	if !ok {
		return
	}
	records, err := h.svc.ListRecords(c.Request.Context(), patientID, callerIdentity(c))
	if err != nil {
		respondServiceError(c, err)
		return
	}
	respondOK(c, records)
}

func (h *RecordHandler) GetCommitLog(c *gin.Context) {
	patientID, ok := parseUUID(c, "id")
	if !ok {
		return
	}
	limit := parseQueryInt(c, "limit", 0)

	commits, err := h.svc.GetCommitLog(c.Request.Context(), patientID, limit, callerIdentity(c))
	if err != nil {
		respondServiceError(c, err)
		return
	}
	respondOK(c, commits)
}
