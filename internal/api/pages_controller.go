package api

import (
	"embed"
	"errors"
	"html/template"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"

	"fscabinet/server/internal/models"
	"fscabinet/server/internal/services"
)

//go:embed templates/*.html
var templatesFS embed.FS

// LoadTemplates разбирает встроенные HTML шаблоны витрины
func LoadTemplates() (*template.Template, error) {
	funcs := template.FuncMap{
		"money": func(d decimal.Decimal) string { return d.StringFixed(0) },
		"inCart": func(ids map[uint]bool, id uint) bool { return ids[id] },
		"deref": func(s *string) string {
			if s == nil {
				return ""
			}
			return *s
		},
	}
	return template.New("").Funcs(funcs).ParseFS(templatesFS, "templates/*.html")
}

// PagesController - HTML страницы витрины
type PagesController struct {
	menu      *services.MenuService
	carts     *services.CartService
	payments  *services.PaymentService
	settings  *services.SettingsService
	resultURL string
	serverURL string
}

// NewPagesController создает контроллер страниц; publicBaseURL - внешний адрес сайта для LiqPay
func NewPagesController(menu *services.MenuService, carts *services.CartService, payments *services.PaymentService, settings *services.SettingsService, publicBaseURL string) *PagesController {
	return &PagesController{
		menu:      menu,
		carts:     carts,
		payments:  payments,
		settings:  settings,
		resultURL: publicBaseURL + "/",
		serverURL: publicBaseURL + "/api/v1/order/payment/confirm/",
	}
}

type categoryView struct {
	models.MenuCategory
	OrderableNow bool
}

// common - данные шапки и подвала: контакты, график, сумма корзины
func (pc *PagesController) common(c *gin.Context, title string) (gin.H, error) {
	ctx := c.Request.Context()
	settings, err := pc.settings.Get(ctx)
	if err != nil {
		return nil, err
	}
	rc := requestContext(c)
	var total *decimal.Decimal
	if rc.Anonymous() {
		if total, err = pc.carts.CartTotal(ctx, rc.SessionKey); err != nil {
			return nil, err
		}
	}
	return gin.H{
		"Title":         title,
		"Settings":      settings,
		"CartTotal":     total,
		"Authenticated": rc.Authenticated,
	}, nil
}

// MenuPage - главная страница с меню
// GET /?category_id=
func (pc *PagesController) MenuPage(c *gin.Context) {
	ctx := c.Request.Context()
	data, err := pc.common(c, "Меню")
	if err != nil {
		respondError(c, err)
		return
	}
	snapshot, err := pc.menu.Snapshot(ctx)
	if err != nil {
		respondError(c, err)
		return
	}

	categories := snapshot.Categories
	var selected uint
	if raw := c.Query("category_id"); raw != "" {
		id, err := strconv.ParseUint(raw, 10, 64)
		if err != nil {
			respondError(c, services.ErrNotFound)
			return
		}
		category, ok := snapshot.Category(uint(id))
		if !ok {
			respondError(c, services.ErrNotFound)
			return
		}
		selected = category.ID
		categories = []models.MenuCategory{*category}
	}

	now := pc.carts.LocalNow()
	views := make([]categoryView, 0, len(categories))
	for i := range categories {
		views = append(views, categoryView{
			MenuCategory: categories[i],
			OrderableNow: categories[i].CanOrder && categories[i].CanOrderAt(now),
		})
	}

	inCart, err := pc.carts.MenuItemIDsInCart(ctx, requestContext(c).SessionKey)
	if err != nil {
		respondError(c, err)
		return
	}

	data["AllCategories"] = snapshot.Categories
	data["Categories"] = views
	data["SelectedCategory"] = selected
	data["Actions"] = snapshot.Actions
	data["Additions"] = snapshot.Additions
	data["InCart"] = inCart
	c.HTML(http.StatusOK, "menu.html", data)
}

// AdditionsPage - список всех допов
// GET /additions/
func (pc *PagesController) AdditionsPage(c *gin.Context) {
	data, err := pc.common(c, "Додатки")
	if err != nil {
		respondError(c, err)
		return
	}
	snapshot, err := pc.menu.Snapshot(c.Request.Context())
	if err != nil {
		respondError(c, err)
		return
	}
	data["Additions"] = snapshot.Additions
	c.HTML(http.StatusOK, "additions.html", data)
}

// CartPage - корзина. Позиции вне окна времени удаляются при открытии и показываются отдельно.
// GET /order/
func (pc *PagesController) CartPage(c *gin.Context) {
	ctx := c.Request.Context()
	rc := requestContext(c)

	evicted, err := pc.carts.EvictUnavailable(ctx, rc)
	if errors.Is(err, services.ErrNotFound) {
		c.Redirect(http.StatusFound, "/")
		return
	}
	if err != nil {
		respondError(c, err)
		return
	}

	cart, err := pc.carts.GetCart(ctx, rc.SessionKey)
	if errors.Is(err, services.ErrNotFound) {
		c.Redirect(http.StatusFound, "/")
		return
	}
	if err != nil {
		respondError(c, err)
		return
	}

	data, err := pc.common(c, "Кошик")
	if err != nil {
		respondError(c, err)
		return
	}
	data["Cart"] = cart
	data["Total"] = cart.TotalAmount()
	data["Evicted"] = evicted
	c.HTML(http.StatusOK, "cart.html", data)
}

// PaymentPage - форма оплаты LiqPay для текущего заказа сессии
// GET /order/payment/
func (pc *PagesController) PaymentPage(c *gin.Context) {
	form, order, err := pc.payments.CheckoutForm(c.Request.Context(), requestContext(c), pc.resultURL, pc.serverURL)
	if errors.Is(err, services.ErrNotFound) {
		c.Redirect(http.StatusFound, "/")
		return
	}
	if err != nil {
		respondError(c, err)
		return
	}

	data, err := pc.common(c, "Оплата")
	if err != nil {
		respondError(c, err)
		return
	}
	log.Debug().Uint("order_id", order.ID).Msg("💳 Показана форма оплаты")
	data["Form"] = form
	data["Order"] = order
	data["Transaction"] = order.Transaction
	data["OrderTotal"] = order.TotalAmount()
	c.HTML(http.StatusOK, "payment.html", data)
}
