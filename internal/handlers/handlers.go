package handlers

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"biblioteca/internal/models"
	"biblioteca/internal/services"
)

type LoanHandler struct {
	svc services.LoanService
}

func RegisterRoutes(r *gin.Engine, svc services.LoanService) {
	h := &LoanHandler{svc: svc}

	// Librarian endpoints
	r.POST("/readers", h.registerReader)
	r.PATCH("/readers/:id/status", h.setReaderStatus)
	r.POST("/materials", h.addMaterial)

	// Loan endpoints
	r.POST("/loans", h.createLoan)
	r.POST("/loans/:id/return", h.returnLoan)
	r.POST("/loans/sweep", h.sweepOverdue)

	// General endpoints
	r.GET("/materials", h.listMaterials)
	r.GET("/materials/:id/availability", h.materialAvailability)
	r.GET("/readers/:id/loans", h.listReaderLoans)
}

// statusFor maps a domain failure kind to an HTTP status, so clients get a
// meaningful code instead of a blanket 500.
func statusFor(err error) int {
	switch services.KindOf(err) {
	case services.KindNotFound:
		return http.StatusNotFound
	case services.KindAlreadyExists, services.KindAlreadyReturned, services.KindMaterialUnavailable:
		return http.StatusConflict
	case services.KindReaderSuspended, services.KindLoanLimitExceeded:
		return http.StatusUnprocessableEntity
	case services.KindInvalidRequest:
		return http.StatusBadRequest
	case services.KindRepositoryUnavailable:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

func renderError(c *gin.Context, err error) {
	c.JSON(statusFor(err), gin.H{
		"error": err.Error(),
		"kind":  services.KindOf(err),
	})
}

type registerReaderRequest struct {
	Name    string `json:"name" binding:"required"`
	Email   string `json:"email" binding:"required,email"`
	Address string `json:"address"`
	Zone    string `json:"zone" binding:"required"`
}

func (h *LoanHandler) registerReader(c *gin.Context) {
	var req registerReaderRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	reader, err := h.svc.RegisterReader(req.Name, req.Email, req.Address, models.Zone(req.Zone))
	if err != nil {
		renderError(c, err)
		return
	}
	c.JSON(http.StatusCreated, reader)
}

type setReaderStatusRequest struct {
	Status string `json:"status" binding:"required"`
}

func (h *LoanHandler) setReaderStatus(c *gin.Context) {
	readerID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid reader id"})
		return
	}

	var req setReaderStatusRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	reader, err := h.svc.SetReaderStatus(readerID, models.ReaderStatus(req.Status))
	if err != nil {
		renderError(c, err)
		return
	}
	c.JSON(http.StatusOK, reader)
}

type addMaterialRequest struct {
	Type       string     `json:"type" binding:"required"`
	Title      string     `json:"title" binding:"required"`
	Author     string     `json:"author"`
	Custodian  string     `json:"custodian"`
	AcquiredAt *time.Time `json:"acquired_at"`
}

func (h *LoanHandler) addMaterial(c *gin.Context) {
	var req addMaterialRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	var acquiredAt time.Time
	if req.AcquiredAt != nil {
		acquiredAt = *req.AcquiredAt
	}
	material, err := h.svc.AddMaterial(models.MaterialType(req.Type), req.Title, req.Author, req.Custodian, acquiredAt)
	if err != nil {
		renderError(c, err)
		return
	}
	c.JSON(http.StatusCreated, material)
}

type createLoanRequest struct {
	ReaderID    string   `json:"reader_id" binding:"required,uuid"`
	MaterialIDs []string `json:"material_ids" binding:"required,min=1"`
	Days        int      `json:"days"`
	RequestKey  string   `json:"request_key"`
}

func (h *LoanHandler) createLoan(c *gin.Context) {
	var req createLoanRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	readerID, err := uuid.Parse(req.ReaderID)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid reader id"})
		return
	}
	materialIDs := make([]uuid.UUID, 0, len(req.MaterialIDs))
	for _, raw := range req.MaterialIDs {
		id, err := uuid.Parse(raw)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid material id"})
			return
		}
		materialIDs = append(materialIDs, id)
	}

	loan, err := h.svc.CreateLoan(readerID, materialIDs, req.Days, req.RequestKey)
	if err != nil {
		renderError(c, err)
		return
	}
	c.JSON(http.StatusCreated, loan)
}

type returnLoanRequest struct {
	ReturnedAt *time.Time `json:"returned_at"`
}

func (h *LoanHandler) returnLoan(c *gin.Context) {
	loanID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid loan id"})
		return
	}

	// Body is optional: an empty body means "returned now".
	var req returnLoanRequest
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
	}
	var returnedAt time.Time
	if req.ReturnedAt != nil {
		returnedAt = *req.ReturnedAt
	}

	loan, err := h.svc.ReturnLoan(loanID, returnedAt)
	if err != nil {
		renderError(c, err)
		return
	}
	c.JSON(http.StatusOK, loan)
}

type sweepRequest struct {
	Reference *time.Time `json:"reference"`
}

func (h *LoanHandler) sweepOverdue(c *gin.Context) {
	var req sweepRequest
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
	}
	reference := time.Now().UTC()
	if req.Reference != nil {
		reference = *req.Reference
	}

	swept, err := h.svc.SweepOverdue(reference)
	if err != nil {
		renderError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"reference": reference,
		"count":     len(swept),
		"loans":     swept,
	})
}

func (h *LoanHandler) listMaterials(c *gin.Context) {
	materials, err := h.svc.ListMaterials()
	if err != nil {
		renderError(c, err)
		return
	}
	c.JSON(http.StatusOK, materials)
}

func (h *LoanHandler) materialAvailability(c *gin.Context) {
	materialID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid material id"})
		return
	}

	available, err := h.svc.MaterialAvailable(materialID)
	if err != nil {
		renderError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"material_id": materialID,
		"available":   available,
	})
}

func (h *LoanHandler) listReaderLoans(c *gin.Context) {
	readerID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid reader id"})
		return
	}

	loans, err := h.svc.ListReaderLoans(readerID)
	if err != nil {
		renderError(c, err)
		return
	}
	c.JSON(http.StatusOK, loans)
}
