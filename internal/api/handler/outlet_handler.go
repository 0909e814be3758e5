package handler

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/blastline/blastline/internal/pkg/response"
	outletSvc "github.com/blastline/blastline/internal/service/outlet"
	"github.com/blastline/blastline/internal/storage"
)

type OutletHandler struct {
	service *outletSvc.Service
	log     *zap.Logger
}

func NewOutletHandler(service *outletSvc.Service, log *zap.Logger) *OutletHandler {
	return &OutletHandler{service: service, log: log}
}

func (h *OutletHandler) Register(r *gin.RouterGroup) {
	r.GET("/outlets", h.list)
	r.GET("/outlets/:id", h.get)
	r.POST("/outlets", h.create)
	r.PUT("/outlets/:id", h.update)
	r.DELETE("/outlets/:id", h.delete)
}

type outletRequest struct {
	Name             string `json:"name" binding:"required,min=2"`
	RegisteredNumber string `json:"registered_number"`
}

func (h *OutletHandler) create(c *gin.Context) {
	var req outletRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, http.StatusBadRequest, err)
		return
	}
	outlet, err := h.service.Create(c.Request.Context(), outletSvc.CreateInput{
		Name:             req.Name,
		RegisteredNumber: req.RegisteredNumber,
	})
	if err != nil {
		response.Error(c, http.StatusBadRequest, err)
		return
	}
	response.Success(c, http.StatusCreated, outlet)
}

func (h *OutletHandler) list(c *gin.Context) {
	outlets, err := h.service.List(c.Request.Context())
	if err != nil {
		response.Error(c, http.StatusInternalServerError, err)
		return
	}
	response.Success(c, http.StatusOK, outlets)
}

func (h *OutletHandler) get(c *gin.Context) {
	outlet, err := h.service.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			response.ErrorWithMessage(c, http.StatusNotFound, "outlet not found")
			return
		}
		response.Error(c, http.StatusInternalServerError, err)
		return
	}
	response.Success(c, http.StatusOK, outlet)
}

func (h *OutletHandler) update(c *gin.Context) {
	var req outletRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, http.StatusBadRequest, err)
		return
	}
	outlet, err := h.service.Update(c.Request.Context(), c.Param("id"), outletSvc.UpdateInput{
		Name:             req.Name,
		RegisteredNumber: req.RegisteredNumber,
	})
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			response.ErrorWithMessage(c, http.StatusNotFound, "outlet not found")
			return
		}
		response.Error(c, http.StatusBadRequest, err)
		return
	}
	response.Success(c, http.StatusOK, outlet)
}

func (h *OutletHandler) delete(c *gin.Context) {
	if err := h.service.Delete(c.Request.Context(), c.Param("id")); err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			response.ErrorWithMessage(c, http.StatusNotFound, "outlet not found")
			return
		}
		response.Error(c, http.StatusInternalServerError, err)
		return
	}
	response.Success(c, http.StatusOK, gin.H{"deleted": true})
}
