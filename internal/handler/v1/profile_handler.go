package v1

import (
	"github.com/careledger/careledger/internal/service"
	"github.com/gin-gonic/gin"
)

type ProfileHandler struct {
	svc *service.StatsService
}

func NewProfileHandler(svc *service.StatsService) *ProfileHandler {
	return &ProfileHandler{svc: svc}
}

type endorseRequest struct {
	Skill string `json:"skill" binding:"required"`
}

func (h *ProfileHandler) GetProfile(c *gin.Context) {
	doctorID, ok := parseUUID(c, "id")
	if !ok {
		return
	}
	p, err := h.svc.GetProfile(c.Request.Context(), doctorID)
	if err != nil {
		respondServiceError(c, err)
		return
	}
	respondOK(c, p)
}

func (h *ProfileHandler) GetActivity(c *gin.Context) {
	doctorID, ok := parseUUID(c, "id")
	if !ok {
		return
	}
	summary, err := h.svc.GetActivitySummary(c.Request.Context(), doctorID)
	if err != nil {
		respondServiceError(c, err)
		return
	}
	respondOK(c, summary)
}

func (h *ProfileHandler) Endorse(c *gin.Context) {
	doctorID, ok := parseUUID(c, "id")
	if !ok {
		return
	}
	var req endorseRequest
	if !bindJSON(c, &req) {
		return
	}

	if err := h.svc.Endorse(c.Request.Context(), doctorID, req.Skill, callerIdentity(c)); err != nil {
		respondServiceError(c, err)
		return
	}
	respondCreated(c, gin.H{"endorsed": true})
}
