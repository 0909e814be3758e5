package handler

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/blastline/blastline/internal/pkg/response"
	customerSvc "github.com/blastline/blastline/internal/service/customer"
	"github.com/blastline/blastline/internal/storage"
)

type CustomerHandler struct {
	service *customerSvc.Service
	log     *zap.Logger
}

func NewCustomerHandler(service *customerSvc.Service, log *zap.Logger) *CustomerHandler {
	return &CustomerHandler{service: service, log: log}
}

func (h *CustomerHandler) Register(r *gin.RouterGroup) {
	r.GET("/outlets/:id/customers", h.list)
	r.POST("/outlets/:id/customers", h.create)
	r.GET("/customers/:id", h.get)
	r.PUT("/customers/:id", h.update)
	r.DELETE("/customers/:id", h.delete)
}

type customerRequest struct {
	Name        string `json:"name" binding:"required,min=1"`
	PhoneNumber string `json:"phone_number" binding:"required"`
}

func (h *CustomerHandler) create(c *gin.Context) {
	var req customerRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, http.StatusBadRequest, err)
		return
	}
	customer, err := h.service.Create(c.Request.Context(), c.Param("id"), customerSvc.Input{
		Name:        req.Name,
		PhoneNumber: req.PhoneNumber,
	})
	if err != nil {
		response.Error(c, http.StatusBadRequest, err)
		return
	}
	response.Success(c, http.StatusCreated, customer)
}

func (h *CustomerHandler) list(c *gin.Context) {
	customers, err := h.service.ListByOutlet(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, http.StatusInternalServerError, err)
		return
	}
	response.Success(c, http.StatusOK, customers)
}

func (h *CustomerHandler) get(c *gin.Context) {
	customer, err := h.service.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			response.ErrorWithMessage(c, http.StatusNotFound, "customer not found")
			return
		}
		response.Error(c, http.StatusInternalServerError, err)
		return
	}
	response.Success(c, http.StatusOK, customer)
}

func (h *CustomerHandler) update(c *gin.Context) {
	var req struct {
		Name        string `json:"name"`
		PhoneNumber string `json:"phone_number"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, http.StatusBadRequest, err)
		return
	}
	customer, err := h.service.Update(c.Request.Context(), c.Param("id"), customerSvc.Input{
		Name:        req.Name,
		PhoneNumber: req.PhoneNumber,
	})
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			response.ErrorWithMessage(c, http.StatusNotFound, "customer not found")
			return
		}
		response.Error(c, http.StatusBadRequest, err)
		return
	}
	response.Success(c, http.StatusOK, customer)
}

func (h *CustomerHandler) delete(c *gin.Context) {
	if err := h.service.Delete(c.Request.Context(), c.Param("id")); err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			response.ErrorWithMessage(c, http.StatusNotFound, "customer not found")
			return
		}
		response.Error(c, http.StatusInternalServerError, err)
		return
	}
	response.Success(c, http.StatusOK, gin.H{"deleted": true})
}
