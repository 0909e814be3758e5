package handler

import (
	"io"
	"net/http"

	"github.com/gin-gonic/gin"
	qrcode "github.com/skip2/go-qrcode"
	"go.uber.org/zap"

	"github.com/blastline/blastline/internal/credstore"
	"github.com/blastline/blastline/internal/pkg/response"
	"github.com/blastline/blastline/internal/session"
)

type SessionHandler struct {
	manager *session.Manager
	creds   *credstore.Store
	log     *zap.Logger
}

func NewSessionHandler(manager *session.Manager, creds *credstore.Store, log *zap.Logger) *SessionHandler {
	return &SessionHandler{manager: manager, creds: creds, log: log}
}

func (h *SessionHandler) Register(r *gin.RouterGroup) {
	r.POST("/outlets/:id/session/connect", h.connect)
	r.GET("/outlets/:id/session/status", h.status)
	r.GET("/outlets/:id/session/qr", h.qr)
	r.GET("/outlets/:id/session/qr.png", h.qrPNG)
	r.POST("/outlets/:id/session/reset", h.reset)
	r.POST("/outlets/:id/session/disconnect", h.disconnect)
	r.POST("/outlets/:id/session/refresh", h.refresh)
	r.GET("/outlets/:id/session/verify", h.verify)
	r.POST("/outlets/:id/session/check-number", h.checkNumber)
	r.GET("/outlets/:id/session/backup", h.backup)
	r.POST("/outlets/:id/session/restore", h.restore)
}

func (h *SessionHandler) connect(c *gin.Context) {
	id := c.Param("id")
	if _, err := h.manager.EnsureConnection(c.Request.Context(), id); err != nil {
		response.Error(c, http.StatusBadGateway, err)
		return
	}
	status, err := h.manager.GetStatus(c.Request.Context(), id, true)
	if err != nil {
		response.Error(c, http.StatusInternalServerError, err)
		return
	}
	response.Success(c, http.StatusOK, status)
}

// status returns the persisted view. With ?live=true it reconciles against
// the actual connection first.
func (h *SessionHandler) status(c *gin.Context) {
	live := c.Query("live") == "true"
	status, err := h.manager.GetStatus(c.Request.Context(), c.Param("id"), live)
	if err != nil {
		response.Error(c, http.StatusInternalServerError, err)
		return
	}
	response.Success(c, http.StatusOK, status)
}

func (h *SessionHandler) qr(c *gin.Context) {
	id := c.Param("id")
	code, connected, err := h.manager.StartAndGetQR(c.Request.Context(), id)
	if err != nil {
		response.Error(c, http.StatusGatewayTimeout, err)
		return
	}
	if connected {
		response.Success(c, http.StatusOK, gin.H{"connected": true})
		return
	}
	response.Success(c, http.StatusOK, gin.H{"connected": false, "qr_code": code})
}

func (h *SessionHandler) qrPNG(c *gin.Context) {
	id := c.Param("id")
	code, connected, err := h.manager.StartAndGetQR(c.Request.Context(), id)
	if err != nil {
		response.Error(c, http.StatusGatewayTimeout, err)
		return
	}
	if connected {
		response.ErrorWithMessage(c, http.StatusConflict, "session already connected")
		return
	}
	png, err := qrcode.Encode(code, qrcode.Medium, 256)
	if err != nil {
		response.Error(c, http.StatusInternalServerError, err)
		return
	}
	c.Data(http.StatusOK, "image/png", png)
}

func (h *SessionHandler) reset(c *gin.Context) {
	id := c.Param("id")
	if err := h.manager.ResetSession(c.Request.Context(), id); err != nil {
		response.Error(c, http.StatusInternalServerError, err)
		return
	}
	response.Success(c, http.StatusOK, gin.H{"reset": true})
}

func (h *SessionHandler) disconnect(c *gin.Context) {
	id := c.Param("id")
	if err := h.manager.DisconnectSession(c.Request.Context(), id); err != nil {
		response.Error(c, http.StatusInternalServerError, err)
		return
	}
	response.Success(c, http.StatusOK, gin.H{"disconnected": true})
}

func (h *SessionHandler) refresh(c *gin.Context) {
	status, err := h.manager.ForceRefreshStatus(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, http.StatusInternalServerError, err)
		return
	}
	response.Success(c, http.StatusOK, status)
}

func (h *SessionHandler) verify(c *gin.Context) {
	alive := h.manager.VerifyLiveConnection(c.Request.Context(), c.Param("id"))
	response.Success(c, http.StatusOK, gin.H{"connected": alive})
}

// backup streams the outlet's credentials as an encrypted blob, for moving
// a paired session between hosts without re-scanning the QR.
func (h *SessionHandler) backup(c *gin.Context) {
	blob, err := h.creds.Export(c.Param("id"))
	if err != nil {
		response.Error(c, http.StatusBadRequest, err)
		return
	}
	c.Data(http.StatusOK, "application/octet-stream", blob)
}

func (h *SessionHandler) restore(c *gin.Context) {
	id := c.Param("id")
	blob, err := io.ReadAll(c.Request.Body)
	if err != nil || len(blob) == 0 {
		response.ErrorWithMessage(c, http.StatusBadRequest, "empty credential payload")
		return
	}
	// The running handle holds the old credential file open; stop it before
	// swapping the file underneath.
	if err := h.manager.DisconnectSession(c.Request.Context(), id); err != nil {
		response.Error(c, http.StatusInternalServerError, err)
		return
	}
	if err := h.creds.Import(id, blob); err != nil {
		response.Error(c, http.StatusBadRequest, err)
		return
	}
	response.Success(c, http.StatusOK, gin.H{"restored": true})
}

type checkNumberRequest struct {
	PhoneNumber string `json:"phone_number" binding:"required"`
}

func (h *SessionHandler) checkNumber(c *gin.Context) {
	var req checkNumberRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, http.StatusBadRequest, err)
		return
	}
	result, err := h.manager.CheckPhoneNumber(c.Request.Context(), c.Param("id"), req.PhoneNumber)
	if err != nil {
		response.Error(c, http.StatusBadRequest, err)
		return
	}
	response.Success(c, http.StatusOK, result)
}
