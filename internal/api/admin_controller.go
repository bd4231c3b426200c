package api

import (
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"

	"fscabinet/server/internal/services"
)

// AdminController - бэк-офис: меню, заказы, покупатели, корзины, настройки
type AdminController struct {
	menu     *services.MenuService
	orders   *services.OrderService
	carts    *services.CartService
	settings *services.SettingsService
	export   *services.ExportService
	loc      *time.Location
}

// NewAdminController создает контроллер админки
func NewAdminController(menu *services.MenuService, orders *services.OrderService, carts *services.CartService, settings *services.SettingsService, export *services.ExportService, loc *time.Location) *AdminController {
	if loc == nil {
		loc = time.UTC
	}
	return &AdminController{menu: menu, orders: orders, carts: carts, settings: settings, export: export, loc: loc}
}

// ========== Меню ==========

// UpdateMenu принудительно перечитывает меню из БД и оповещает остальные инстансы через Redis
// POST /api/v1/admin/update-menu
func (ac *AdminController) UpdateMenu(c *gin.Context) {
	if err := ac.menu.ForceReload(c.Request.Context()); err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"message":     "Menu updated successfully",
		"last_update": ac.menu.GetLastUpdate().Format(time.RFC3339),
	})
}

// GetMenuStatus возвращает, когда меню последний раз обновлялось
// GET /api/v1/admin/menu-status
func (ac *AdminController) GetMenuStatus(c *gin.Context) {
	snapshot, err := ac.menu.Snapshot(c.Request.Context())
	if err != nil {
		respondError(c, err)
		return
	}
	items := 0
	for _, category := range snapshot.Categories {
		items += len(category.MenuItems)
	}
	c.JSON(http.StatusOK, gin.H{
		"last_update":      snapshot.LoadedAt.Format(time.RFC3339),
		"categories_count": len(snapshot.Categories),
		"menu_items_count": items,
		"additions_count":  len(snapshot.Additions),
		"actions_count":    len(snapshot.Actions),
	})
}

// ListCategories GET /api/v1/admin/categories
func (ac *AdminController) ListCategories(c *gin.Context) {
	categories, err := ac.menu.ListCategories(c.Request.Context())
	respond(c, http.StatusOK, categories, err)
}

// CreateCategory POST /api/v1/admin/categories
func (ac *AdminController) CreateCategory(c *gin.Context) {
	var req services.CategoryRequest
	if !bindJSON(c, &req) {
		return
	}
	category, err := ac.menu.CreateCategory(c.Request.Context(), req)
	respond(c, http.StatusCreated, category, err)
}

// UpdateCategory PUT /api/v1/admin/categories/:id
func (ac *AdminController) UpdateCategory(c *gin.Context) {
	id, ok := pathID(c)
	if !ok {
		return
	}
	var req services.CategoryRequest
	if !bindJSON(c, &req) {
		return
	}
	category, err := ac.menu.UpdateCategory(c.Request.Context(), id, req)
	respond(c, http.StatusOK, category, err)
}

// DeleteCategory DELETE /api/v1/admin/categories/:id
func (ac *AdminController) DeleteCategory(c *gin.Context) {
	id, ok := pathID(c)
	if !ok {
		return
	}
	respondDeleted(c, ac.menu.DeleteCategory(c.Request.Context(), id))
}

// ListMenuItems GET /api/v1/admin/menu-items?category_id=
func (ac *AdminController) ListMenuItems(c *gin.Context) {
	var categoryID *uint
	if raw := c.Query("category_id"); raw != "" {
		id, err := strconv.ParseUint(raw, 10, 64)
		if err != nil {
			respondError(c, services.NewFieldError("category_id", services.CodeInvalid, "A valid integer is required."))
			return
		}
		v := uint(id)
		categoryID = &v
	}
	items, err := ac.menu.ListMenuItems(c.Request.Context(), categoryID)
	respond(c, http.StatusOK, items, err)
}

// CreateMenuItem POST /api/v1/admin/menu-items
func (ac *AdminController) CreateMenuItem(c *gin.Context) {
	var req services.MenuItemRequest
	if !bindJSON(c, &req) {
		return
	}
	item, err := ac.menu.CreateMenuItem(c.Request.Context(), req)
	respond(c, http.StatusCreated, item, err)
}

// UpdateMenuItem PUT /api/v1/admin/menu-items/:id
func (ac *AdminController) UpdateMenuItem(c *gin.Context) {
	id, ok := pathID(c)
	if !ok {
		return
	}
	var req services.MenuItemRequest
	if !bindJSON(c, &req) {
		return
	}
	item, err := ac.menu.UpdateMenuItem(c.Request.Context(), id, req)
	respond(c, http.StatusOK, item, err)
}

// DeleteMenuItem DELETE /api/v1/admin/menu-items/:id
func (ac *AdminController) DeleteMenuItem(c *gin.Context) {
	id, ok := pathID(c)
	if !ok {
		return
	}
	respondDeleted(c, ac.menu.DeleteMenuItem(c.Request.Context(), id))
}

// ListAdditions GET /api/v1/admin/additions
func (ac *AdminController) ListAdditions(c *gin.Context) {
	additions, err := ac.menu.ListAdditions(c.Request.Context())
	respond(c, http.StatusOK, additions, err)
}

// CreateAddition POST /api/v1/admin/additions
func (ac *AdminController) CreateAddition(c *gin.Context) {
	var req services.AdditionRequest
	if !bindJSON(c, &req) {
		return
	}
	addition, err := ac.menu.CreateAddition(c.Request.Context(), req)
	respond(c, http.StatusCreated, addition, err)
}

// UpdateAddition PUT /api/v1/admin/additions/:id
func (ac *AdminController) UpdateAddition(c *gin.Context) {
	id, ok := pathID(c)
	if !ok {
		return
	}
	var req services.AdditionRequest
	if !bindJSON(c, &req) {
		return
	}
	addition, err := ac.menu.UpdateAddition(c.Request.Context(), id, req)
	respond(c, http.StatusOK, addition, err)
}

// DeleteAddition DELETE /api/v1/admin/additions/:id
func (ac *AdminController) DeleteAddition(c *gin.Context) {
	id, ok := pathID(c)
	if !ok {
		return
	}
	respondDeleted(c, ac.menu.DeleteAddition(c.Request.Context(), id))
}

// ListActions GET /api/v1/admin/actions
func (ac *AdminController) ListActions(c *gin.Context) {
	actions, err := ac.menu.ListActions(c.Request.Context())
	respond(c, http.StatusOK, actions, err)
}

// CreateAction POST /api/v1/admin/actions
func (ac *AdminController) CreateAction(c *gin.Context) {
	var req services.ActionRequest
	if !bindJSON(c, &req) {
		return
	}
	action, err := ac.menu.CreateAction(c.Request.Context(), req)
	respond(c, http.StatusCreated, action, err)
}

// UpdateAction PUT /api/v1/admin/actions/:id
func (ac *AdminController) UpdateAction(c *gin.Context) {
	id, ok := pathID(c)
	if !ok {
		return
	}
	var req services.ActionRequest
	if !bindJSON(c, &req) {
		return
	}
	action, err := ac.menu.UpdateAction(c.Request.Context(), id, req)
	respond(c, http.StatusOK, action, err)
}

// DeleteAction DELETE /api/v1/admin/actions/:id
func (ac *AdminController) DeleteAction(c *gin.Context) {
	id, ok := pathID(c)
	if !ok {
		return
	}
	respondDeleted(c, ac.menu.DeleteAction(c.Request.Context(), id))
}

// ========== Заказы ==========

// parseOrderFilter читает фильтры списка заказов из query.
// Даты "YYYY-MM-DD" берутся в поясе заведения, "to" включает весь день.
func (ac *AdminController) parseOrderFilter(c *gin.Context) (services.OrderFilter, error) {
	filter := services.OrderFilter{
		PaymentMethod:  c.Query("payment_method"),
		DeliveryMethod: c.Query("delivery_method"),
		Search:         c.Query("search"),
	}
	verr := &services.ValidationError{}

	parseBool := func(name string) *bool {
		raw := c.Query(name)
		if raw == "" {
			return nil
		}
		v, err := strconv.ParseBool(raw)
		if err != nil {
			verr.Add(name, services.CodeInvalid, "Must be a valid boolean.")
			return nil
		}
		return &v
	}
	parseDate := func(name string, endOfDay bool) *time.Time {
		raw := c.Query(name)
		if raw == "" {
			return nil
		}
		if t, err := time.Parse(time.RFC3339, raw); err == nil {
			return &t
		}
		t, err := time.ParseInLocation("2006-01-02", raw, ac.loc)
		if err != nil {
			verr.Add(name, services.CodeInvalid, "Enter a valid date.")
			return nil
		}
		if endOfDay {
			t = t.AddDate(0, 0, 1)
		}
		return &t
	}
	parseInt := func(name string) int {
		raw := c.Query(name)
		if raw == "" {
			return 0
		}
		v, err := strconv.Atoi(raw)
		if err != nil || v < 0 {
			verr.Add(name, services.CodeInvalid, "Enter a non-negative integer.")
			return 0
		}
		return v
	}

	filter.IsRejected = parseBool("is_rejected")
	filter.Paid = parseBool("paid")
	filter.From = parseDate("from", false)
	filter.To = parseDate("to", true)
	filter.Limit = parseInt("limit")
	filter.Offset = parseInt("offset")

	if len(verr.Fields) > 0 {
		return filter, verr
	}
	return filter, nil
}

// ListOrders GET /api/v1/admin/orders
func (ac *AdminController) ListOrders(c *gin.Context) {
	filter, err := ac.parseOrderFilter(c)
	if err != nil {
		respondError(c, err)
		return
	}
	orders, total, err := ac.orders.ListOrders(c.Request.Context(), filter)
	if err != nil {
		respondError(c, err)
		return
	}

	out := make([]gin.H, 0, len(orders))
	for i := range orders {
		out = append(out, gin.H{
			"order":            orders[i],
			"total_amount":     orders[i].TotalAmount(),
			"payment_required": orders[i].IsPaymentRequired(),
		})
	}
	c.JSON(http.StatusOK, gin.H{"orders": out, "count": total})
}

// GetOrder GET /api/v1/admin/orders/:id
func (ac *AdminController) GetOrder(c *gin.Context) {
	id, ok := pathID(c)
	if !ok {
		return
	}
	order, err := ac.orders.GetOrder(c.Request.Context(), id)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"order":            order,
		"total_amount":     order.TotalAmount(),
		"payment_required": order.IsPaymentRequired(),
	})
}

// RejectOrder POST /api/v1/admin/orders/:id/reject
func (ac *AdminController) RejectOrder(c *gin.Context) {
	id, ok := pathID(c)
	if !ok {
		return
	}
	order, err := ac.orders.RejectOrder(c.Request.Context(), id)
	respond(c, http.StatusOK, order, err)
}

// ExportOrders выгружает заказы по тем же фильтрам в XLSX
// GET /api/v1/admin/orders/export
func (ac *AdminController) ExportOrders(c *gin.Context) {
	filter, err := ac.parseOrderFilter(c)
	if err != nil {
		respondError(c, err)
		return
	}
	data, count, err := ac.export.ExportOrdersXLSX(c.Request.Context(), filter)
	if err != nil {
		respondError(c, err)
		return
	}

	filename := fmt.Sprintf("orders_%s.xlsx", time.Now().In(ac.loc).Format("2006-01-02_1504"))
	log.Info().Int("orders", count).Str("file", filename).Msg("📊 Выгрузка заказов отдана")
	c.Header("Content-Disposition", fmt.Sprintf(`attachment; filename="%s"`, filename))
	c.Data(http.StatusOK, "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet", data)
}

// ========== Покупатели, корзины, настройки ==========

// ListCustomers GET /api/v1/admin/customers?search=&limit=&offset=
func (ac *AdminController) ListCustomers(c *gin.Context) {
	limit, _ := strconv.Atoi(c.Query("limit"))
	offset, _ := strconv.Atoi(c.Query("offset"))
	if offset < 0 {
		offset = 0
	}
	customers, total, err := ac.orders.ListCustomers(c.Request.Context(), c.Query("search"), limit, offset)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"customers": customers, "count": total})
}

// ListCarts GET /api/v1/admin/carts
func (ac *AdminController) ListCarts(c *gin.Context) {
	carts, err := ac.carts.ListCarts(c.Request.Context())
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"carts": carts, "count": len(carts)})
}

// GetSettings GET /api/v1/admin/settings
func (ac *AdminController) GetSettings(c *gin.Context) {
	settings, err := ac.settings.GetWithRecipients(c.Request.Context())
	respond(c, http.StatusOK, settings, err)
}

// UpdateSettings PATCH /api/v1/admin/settings
func (ac *AdminController) UpdateSettings(c *gin.Context) {
	var req services.UpdateSettingsRequest
	if !bindJSON(c, &req) {
		return
	}
	settings, err := ac.settings.Update(c.Request.Context(), req)
	respond(c, http.StatusOK, settings, err)
}

func respond(c *gin.Context, status int, body interface{}, err error) {
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(status, body)
}

func respondDeleted(c *gin.Context, err error) {
	if err != nil {
		respondError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}
