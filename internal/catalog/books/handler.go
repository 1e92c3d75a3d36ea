package books

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"libro-backend/internal/platform/apperr"
)

type Handler struct{ svc *Service }

// listMW は一覧GETにだけ挟むミドルウェア（レスポンスキャッシュ等）。
// 単一取得や更新系はキャッシュを通さない。
func RegisterRoutes(r gin.IRoutes, svc *Service, listMW ...gin.HandlerFunc) {
	h := &Handler{svc: svc}

	// 呼び出し元のスライスにappendしない（複数登録で背後配列を共有するため）
	list := make([]gin.HandlerFunc, 0, len(listMW)+1)
	list = append(list, listMW...)
	list = append(list, h.ListBooks)

	r.POST("/books", h.CreateBook)
	r.GET("/books", list...)
	r.GET("/books/:book_id", h.GetBook)
	r.PUT("/books/:book_id", h.UpdateBook)
	r.DELETE("/books/:book_id", h.DeleteBook)
}

// ---------- handlers ----------

func (h *Handler) CreateBook(c *gin.Context) {
	var req CreateBookRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, apperr.Body(apperr.CodeInvalidArgument, "invalid json or missing required fields"))
		return
	}

	res, err := h.svc.CreateBook(c.Request.Context(), req)
	if err != nil {
		c.JSON(apperr.ToHTTPStatus(err), apperr.FromErr(err))
		return
	}

	c.Header("Location", "/books/"+strconv.FormatInt(res.BookID, 10))
	c.JSON(http.StatusCreated, res)
}

func (h *Handler) GetBook(c *gin.Context) {
	id, ok := paramID(c, "book_id")
	if !ok {
		return
	}
	res, err := h.svc.GetBook(c.Request.Context(), id)
	if err != nil {
		c.JSON(apperr.ToHTTPStatus(err), apperr.FromErr(err))
		return
	}
	c.JSON(http.StatusOK, res)
}

func (h *Handler) ListBooks(c *gin.Context) {
	p := Page{
		Limit:  atoiDef(c.Query("limit"), 50),
		Offset: atoiDef(c.Query("offset"), 0),
	}
	res, err := h.svc.ListBooks(c.Request.Context(), p)
	if err != nil {
		c.JSON(apperr.ToHTTPStatus(err), apperr.FromErr(err))
		return
	}
	c.JSON(http.StatusOK, res)
}

func (h *Handler) UpdateBook(c *gin.Context) {
	id, ok := paramID(c, "book_id")
	if !ok {
		return
	}
	var req UpdateBookRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, apperr.Body(apperr.CodeInvalidArgument, "invalid json"))
		return
	}
	res, err := h.svc.UpdateBook(c.Request.Context(), id, req)
	if err != nil {
		c.JSON(apperr.ToHTTPStatus(err), apperr.FromErr(err))
		return
	}
	c.JSON(http.StatusOK, res)
}

func (h *Handler) DeleteBook(c *gin.Context) {
	id, ok := paramID(c, "book_id")
	if !ok {
		return
	}
	if err := h.svc.DeleteBook(c.Request.Context(), id); err != nil {
		c.JSON(apperr.ToHTTPStatus(err), apperr.FromErr(err))
		return
	}
	c.JSON(http.StatusOK, gin.H{"detail": "book deleted"})
}

// ---------- helpers ----------

func paramID(c *gin.Context, name string) (int64, bool) {
	id, err := strconv.ParseInt(c.Param(name), 10, 64)
	if err != nil || id <= 0 {
		c.JSON(http.StatusBadRequest, apperr.Body(apperr.CodeInvalidArgument, "invalid "+name))
		return 0, false
	}
	return id, true
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
