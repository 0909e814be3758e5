package handler

import (
	"encoding/base64"
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/blastline/blastline/internal/pkg/response"
	blastSvc "github.com/blastline/blastline/internal/service/blast"
	"github.com/blastline/blastline/internal/storage"
	"github.com/blastline/blastline/internal/storage/model"
)

type BlastHandler struct {
	service *blastSvc.Service
	log     *zap.Logger
}

func NewBlastHandler(service *blastSvc.Service, log *zap.Logger) *BlastHandler {
	return &BlastHandler{service: service, log: log}
}

func (h *BlastHandler) Register(r *gin.RouterGroup) {
	r.POST("/outlets/:id/blasts", h.create)
	r.GET("/outlets/:id/blasts", h.list)
	r.GET("/blasts/:id", h.get)
	r.GET("/blasts/:id/reports", h.reports)
}

type blastAttachmentRequest struct {
	Kind       string `json:"kind" binding:"required"`
	MimeType   string `json:"mime_type" binding:"required"`
	FileName   string `json:"file_name"`
	DataBase64 string `json:"data_base64" binding:"required"`
}

type createBlastRequest struct {
	Message     string                   `json:"message"`
	SendMode    string                   `json:"send_mode"`
	TargetIDs   []string                 `json:"target_ids" binding:"required,min=1"`
	Attachments []blastAttachmentRequest `json:"attachments"`
}

func (h *BlastHandler) create(c *gin.Context) {
	var req createBlastRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, http.StatusBadRequest, err)
		return
	}

	attachments := make([]blastSvc.AttachmentInput, 0, len(req.Attachments))
	for _, a := range req.Attachments {
		data, err := base64.StdEncoding.DecodeString(strings.TrimSpace(a.DataBase64))
		if err != nil {
			response.ErrorWithMessage(c, http.StatusBadRequest, "invalid base64 attachment")
			return
		}
		attachments = append(attachments, blastSvc.AttachmentInput{
			Kind:     a.Kind,
			MimeType: a.MimeType,
			FileName: a.FileName,
			Data:     data,
		})
	}

	blast, err := h.service.Create(c.Request.Context(), c.Param("id"), blastSvc.CreateInput{
		Message:     req.Message,
		SendMode:    model.SendMode(req.SendMode),
		TargetIDs:   req.TargetIDs,
		Attachments: attachments,
	})
	if err != nil {
		if errors.Is(err, blastSvc.ErrOutletBusy) {
			response.Error(c, http.StatusConflict, err)
			return
		}
		response.Error(c, http.StatusBadRequest, err)
		return
	}
	response.Success(c, http.StatusAccepted, blast)
}

func (h *BlastHandler) list(c *gin.Context) {
	blasts, err := h.service.ListByOutlet(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, http.StatusInternalServerError, err)
		return
	}
	response.Success(c, http.StatusOK, blasts)
}

func (h *BlastHandler) get(c *gin.Context) {
	blast, err := h.service.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			response.ErrorWithMessage(c, http.StatusNotFound, "blast not found")
			return
		}
		response.Error(c, http.StatusInternalServerError, err)
		return
	}
	response.Success(c, http.StatusOK, blast)
}

func (h *BlastHandler) reports(c *gin.Context) {
	reports, err := h.service.Reports(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, http.StatusInternalServerError, err)
		return
	}
	response.Success(c, http.StatusOK, reports)
}
