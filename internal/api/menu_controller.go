package api

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"

	"fscabinet/server/internal/services"
)

// MenuController - публичное JSON API меню
type MenuController struct {
	menu *services.MenuService
}

// NewMenuController создает контроллер меню
func NewMenuController(menu *services.MenuService) *MenuController {
	return &MenuController{menu: menu}
}

type additionResponse struct {
	ID    uint            `json:"id"`
	Title string          `json:"title"`
	Price decimal.Decimal `json:"price"`
}

// MenuItemAdditions - видимые допы позиции
// GET /api/v1/menu/menu-items/:id/additions/
func (mc *MenuController) MenuItemAdditions(c *gin.Context) {
	id, ok := pathID(c)
	if !ok {
		return
	}
	additions, err := mc.menu.MenuItemAdditions(c.Request.Context(), id)
	if err != nil {
		respondError(c, err)
		return
	}
	out := make([]additionResponse, 0, len(additions))
	for _, a := range additions {
		out = append(out, additionResponse{ID: a.ID, Title: a.Title, Price: a.Price})
	}
	c.JSON(http.StatusOK, out)
}

// pathID разбирает :id из пути; некорректный id - 404
func pathID(c *gin.Context) (uint, bool) {
	id, err := strconv.ParseUint(c.Param("id"), 10, 64)
	if err != nil || id == 0 {
		respondError(c, services.ErrNotFound)
		return 0, false
	}
	return uint(id), true
}
