package handlers

import (
	"fmt"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/mamadbah2/farmledger/internal/domain/errs"
	"github.com/mamadbah2/farmledger/internal/domain/models"
	"github.com/mamadbah2/farmledger/internal/domain/performance"
	"github.com/mamadbah2/farmledger/internal/pagination"
	ledgersvc "github.com/mamadbah2/farmledger/internal/service/ledger"
	metricssvc "github.com/mamadbah2/farmledger/internal/service/metrics"
	"github.com/mamadbah2/farmledger/internal/service/query"
	"github.com/mamadbah2/farmledger/internal/service/reporting"
	"github.com/mamadbah2/farmledger/internal/service/sales"
)

const xlsxContentType = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"

// LedgerHandler exposes the ledger, sale and metric operations over HTTP.
type LedgerHandler struct {
	ledgers   *ledgersvc.Service
	sales     *sales.Coordinator
	metrics   *metricssvc.Generator
	queries   *query.Service
	reporting *reporting.Service
	logger    *zap.Logger
}

// NewLedgerHandler constructs the HTTP handler adapter.
func NewLedgerHandler(ledgers *ledgersvc.Service, coordinator *sales.Coordinator, generator *metricssvc.Generator, queries *query.Service, reports *reporting.Service, logger *zap.Logger) *LedgerHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &LedgerHandler{
		ledgers:   ledgers,
		sales:     coordinator,
		metrics:   generator,
		queries:   queries,
		reporting: reports,
		logger:    logger,
	}
}

// stockEventRequest is the body of an append. Identity and remaining stock are
// assigned by the ledger.
type stockEventRequest struct {
	Kind          models.EventKind      `json:"kind"`
	Quantity      int                   `json:"quantity"`
	OccurredAt    models.OccurredAt     `json:"occurredAt"`
	CostBreakdown *models.CostBreakdown `json:"costBreakdown,omitempty"`
}

func ledgerKey(c *gin.Context) models.LedgerKey {
	return models.LedgerKey{FarmID: c.Param("farm"), Category: models.Category(c.Param("category"))}
}

func bindJSON(c *gin.Context, logger *zap.Logger, dst any) bool {
	if err := c.ShouldBindJSON(dst); err != nil {
		logger.Debug("invalid request body", zap.String("path", c.FullPath()), zap.Error(err))
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "invalid-body", "message": err.Error()})
		return false
	}
	return true
}

// paging reads page, page_size and seen, the total the client last displayed.
func paging(c *gin.Context) pagination.Request {
	var req pagination.Request
	req.Page, _ = strconv.Atoi(c.Query("page"))
	req.PageSize, _ = strconv.Atoi(c.Query("page_size"))
	req.Seen, _ = strconv.Atoi(c.Query("seen"))
	return req
}

// Provision creates the ledger of the addressed farm and category. An
// existing ledger answers 200 and is left untouched.
func (h *LedgerHandler) Provision(c *gin.Context) {
	l, created, err := h.ledgers.Provision(c.Request.Context(), ledgerKey(c))
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	status := http.StatusCreated
	if !created {
		status = http.StatusOK
	}
	c.JSON(status, l)
}

// Ledger returns the full ledger state.
func (h *LedgerHandler) Ledger(c *gin.Context) {
	l, err := h.ledgers.Ledger(c.Request.Context(), ledgerKey(c))
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, l)
}

// Verify checks the stored counters against the event history.
func (h *LedgerHandler) Verify(c *gin.Context) {
	if err := h.ledgers.Verify(c.Request.Context(), ledgerKey(c)); err != nil {
		respondError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"consistent": true})
}

// Reset deletes the ledger history; the client must send confirm=true.
func (h *LedgerHandler) Reset(c *gin.Context) {
	confirmed, _ := strconv.ParseBool(c.Query("confirm"))
	if err := h.ledgers.Reset(c.Request.Context(), ledgerKey(c), confirmed); err != nil {
		respondError(c, h.logger, err)
		return
	}
	c.Status(http.StatusNoContent)
}

// AppendEvent records a stock event.
func (h *LedgerHandler) AppendEvent(c *gin.Context) {
	var req stockEventRequest
	if !bindJSON(c, h.logger, &req) {
		return
	}

	l, err := h.ledgers.AppendStockEvent(c.Request.Context(), ledgerKey(c), models.StockEvent{
		Kind:          req.Kind,
		Quantity:      req.Quantity,
		OccurredAt:    req.OccurredAt,
		CostBreakdown: req.CostBreakdown,
	})
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusCreated, l)
}

// Events pages the stock events, newest first.
func (h *LedgerHandler) Events(c *gin.Context) {
	out, err := h.queries.Events(c.Request.Context(), ledgerKey(c), paging(c))
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, out)
}

// CommitSale records a sale and its stock decrement atomically. A replayed
// transaction id answers 200 with the original sale.
func (h *LedgerHandler) CommitSale(c *gin.Context) {
	var req sales.Request
	if !bindJSON(c, h.logger, &req) {
		return
	}
	if req.TransactionID == "" {
		req.TransactionID = c.GetHeader("Idempotency-Key")
	}

	receipt, err := h.sales.CommitSale(c.Request.Context(), ledgerKey(c), req)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	status := http.StatusCreated
	if receipt.Replayed {
		status = http.StatusOK
	}
	c.JSON(status, receipt)
}

// Sales pages the sales, newest first.
func (h *LedgerHandler) Sales(c *gin.Context) {
	out, err := h.queries.Sales(c.Request.Context(), ledgerKey(c), paging(c))
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, out)
}

// GenerateMetric stores the snapshot of the requested date. An existing
// snapshot for that date answers 200 and is left untouched.
func (h *LedgerHandler) GenerateMetric(c *gin.Context) {
	var in performance.Input
	if !bindJSON(c, h.logger, &in) {
		return
	}

	snap, created, err := h.metrics.GenerateMetricSnapshot(c.Request.Context(), ledgerKey(c), in)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	status := http.StatusCreated
	if !created {
		status = http.StatusOK
	}
	c.JSON(status, gin.H{"snapshot": snap, "created": created})
}

// Metrics pages the metric snapshots, latest date first.
func (h *LedgerHandler) Metrics(c *gin.Context) {
	out, err := h.queries.Metrics(c.Request.Context(), ledgerKey(c), paging(c))
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, out)
}

// Dashboard returns the headline figures of the ledger.
func (h *LedgerHandler) Dashboard(c *gin.Context) {
	d, err := h.reporting.BuildDashboard(c.Request.Context(), ledgerKey(c))
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, d)
}

// Export streams the ledger history as an XLSX workbook.
func (h *LedgerHandler) Export(c *gin.Context) {
	key := ledgerKey(c)
	if !key.Valid() {
		respondError(c, h.logger, errs.ErrInvalidKey)
		return
	}
	data, err := h.reporting.ExportWorkbook(c.Request.Context(), key)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	c.Header("Content-Disposition", fmt.Sprintf(`attachment; filename="%s_%s.xlsx"`, key.FarmID, key.Category))
	c.Data(http.StatusOK, xlsxContentType, data)
}
