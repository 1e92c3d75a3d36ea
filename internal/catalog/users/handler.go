package users

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
	list = append(list, h.ListUsers)

	r.POST("/users", h.CreateUser)
	r.GET("/users", list...)
	r.GET("/users/:user_id", h.GetUser)
}

func (h *Handler) CreateUser(c *gin.Context) {
	var req CreateUserRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, apperr.Body(apperr.CodeInvalidArgument, "invalid json or missing required fields"))
		return
	}

	res, err := h.svc.CreateUser(c.Request.Context(), req)
	if err != nil {
		c.JSON(apperr.ToHTTPStatus(err), apperr.FromErr(err))
		return
	}

	c.Header("Location", "/users/"+strconv.FormatInt(res.UserID, 10))
	c.JSON(http.StatusCreated, res)
}

func (h *Handler) GetUser(c *gin.Context) {
	id, err := strconv.ParseInt(c.Param("user_id"), 10, 64)
	if err != nil || id <= 0 {
		c.JSON(http.StatusBadRequest, apperr.Body(apperr.CodeInvalidArgument, "invalid user_id"))
		return
	}
	res, err := h.svc.GetUser(c.Request.Context(), id)
	if err != nil {
		c.JSON(apperr.ToHTTPStatus(err), apperr.FromErr(err))
		return
	}
	c.JSON(http.StatusOK, res)
}

func (h *Handler) ListUsers(c *gin.Context) {
	p := Page{
		Limit:  atoiDef(c.Query("limit"), 50),
		Offset: atoiDef(c.Query("offset"), 0),
	}
	res, err := h.svc.ListUsers(c.Request.Context(), p)
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
