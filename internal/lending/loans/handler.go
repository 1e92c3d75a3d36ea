package loans

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"libro-backend/internal/platform/apperr"
)

type Handler struct{ svc *Service }

func RegisterRoutes(r gin.IRoutes, svc *Service, listMW ...gin.HandlerFunc) {
	h := &Handler{svc: svc}

	// 呼び出し元のスライスにappendしない（複数登録で背後配列を共有するため）
	list := make([]gin.HandlerFunc, 0, len(listMW)+1)
	list = append(list, listMW...)
	list = append(list, h.ListLoans)

	r.POST("/loans/borrow", h.Borrow)
	r.POST("/loans/return", h.Return)
	r.GET("/loans", list...)
	r.GET("/loans/:loan_id", h.GetLoan)
}

// ---------- handlers ----------

func (h *Handler) Borrow(c *gin.Context) {
	var req BorrowRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, apperr.Body(apperr.CodeInvalidArgument, "invalid json or missing required fields"))
		return
	}

	res, err := h.svc.Borrow(c.Request.Context(), req)
	if err != nil {
		c.JSON(apperr.ToHTTPStatus(err), apperr.FromErr(err))
		return
	}

	c.Header("Location", "/loans/"+strconv.FormatInt(res.LoanID, 10))
	c.JSON(http.StatusCreated, res)
}

func (h *Handler) Return(c *gin.Context) {
	var req ReturnRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, apperr.Body(apperr.CodeInvalidArgument, "invalid json or missing required fields"))
		return
	}

	res, err := h.svc.Return(c.Request.Context(), req)
	if err != nil {
		c.JSON(apperr.ToHTTPStatus(err), apperr.FromErr(err))
		return
	}
	c.JSON(http.StatusOK, res)
}

func (h *Handler) GetLoan(c *gin.Context) {
	id, err := strconv.ParseInt(c.Param("loan_id"), 10, 64)
	if err != nil || id <= 0 {
		c.JSON(http.StatusBadRequest, apperr.Body(apperr.CodeInvalidArgument, "invalid loan_id"))
		return
	}
	res, err := h.svc.GetLoan(c.Request.Context(), id)
	if err != nil {
		c.JSON(apperr.ToHTTPStatus(err), apperr.FromErr(err))
		return
	}
	c.JSON(http.StatusOK, res)
}

func (h *Handler) ListLoans(c *gin.Context) {
	p := Page{
		Limit:  atoiDef(c.Query("limit"), 50),
		Offset: atoiDef(c.Query("offset"), 0),
	}
	res, err := h.svc.ListLoans(c.Request.Context(), p)
	if err != nil {
		c.JSON(apperr.ToHTTPStatus(err), apperr.FromErr(err))
		return
	}
	c.JSON(http.StatusOK, res)
}

func atoiDef(s string, d int) int {
	if s == "" {
		return d
	}
	v, err := strconv.Atoi(s)
	if err != nil {
		return d
	}
	return v
}
