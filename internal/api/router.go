package api

import (
	"fmt"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"

	"fscabinet/server/internal/services"
)

// RouterDeps - все, что нужно для сборки HTTP роутера
type RouterDeps struct {
	Menu     *services.MenuService
	Carts    *services.CartService
	Orders   *services.OrderService
	Payments *services.PaymentService
	Settings *services.SettingsService
	Auth     *services.AuthService
	Export   *services.ExportService
	Hub      *Hub
	Health   *HealthChecker

	SessionCookieName   string
	SessionCookieSecure bool
	PublicBaseURL       string
	Location            *time.Location
	RateLimitRPS        float64
	RateLimitBurst      int
}

// NewRouter собирает gin движок со всеми маршрутами витрины, API и админки
func NewRouter(deps RouterDeps) (*gin.Engine, error) {
	templates, err := LoadTemplates()
	if err != nil {
		return nil, fmt.Errorf("load templates: %w", err)
	}

	r := gin.New()
	r.SetHTMLTemplate(templates)

	// Health check до сессий, чтобы пробы балансировщика не получали cookie
	if deps.Health != nil {
		r.GET("/api/v1/health", deps.Health.Handler)
	}

	r.Use(RequestLogger(), gin.Recovery(), CORS())
	r.Use(SessionMiddleware(deps.SessionCookieName, deps.SessionCookieSecure))
	r.Use(Authenticate(deps.Auth))

	orderController := NewOrderController(deps.Carts, deps.Orders, deps.Payments)
	menuController := NewMenuController(deps.Menu)
	pagesController := NewPagesController(deps.Menu, deps.Carts, deps.Payments, deps.Settings, deps.PublicBaseURL)
	authController := NewAuthController(deps.Auth, deps.SessionCookieSecure)
	staffController := NewStaffController(deps.Auth)
	adminController := NewAdminController(deps.Menu, deps.Orders, deps.Carts, deps.Settings, deps.Export, deps.Location)

	// Страницы витрины
	paymentGuard := RedirectToPaymentIfNeeded(deps.Payments)
	r.GET("/", paymentGuard, pagesController.MenuPage)
	r.GET("/additions/", paymentGuard, pagesController.AdditionsPage)
	r.GET("/order/", RedirectIfAuthenticated("/"), paymentGuard, pagesController.CartPage)
	r.GET("/order/payment/", RedirectIfAuthenticated("/"), pagesController.PaymentPage)

	apiGroup := r.Group("/api/v1")

	// Публичное API ограничиваем по IP
	limiter := NewIPRateLimiter(deps.RateLimitRPS, deps.RateLimitBurst)

	// Коллбек LiqPay приходит от шлюза, без сессии и без лимита
	apiGroup.POST("/order/payment/confirm/", orderController.ConfirmPayment)

	orderGroup := apiGroup.Group("/order", limiter.Middleware(), ForbiddenForAuthenticated())
	{
		orderGroup.POST("/add-to-cart/", orderController.AddToCart)
		orderGroup.POST("/increase-count/", orderController.IncreaseCount)
		orderGroup.POST("/decrease-count/", orderController.DecreaseCount)
		orderGroup.POST("/remove-cart-item/", orderController.RemoveCartItem)
		orderGroup.POST("/remove-cart-item-addition/", orderController.RemoveCartItemAddition)
		orderGroup.POST("/clear/", orderController.ClearCart)
		orderGroup.POST("/create/", orderController.CreateOrder)
		orderGroup.POST("/reject/", orderController.RejectOrder)
	}

	menuGroup := apiGroup.Group("/menu", limiter.Middleware(), ForbiddenForAuthenticated())
	{
		menuGroup.GET("/menu-items/:id/additions/", menuController.MenuItemAdditions)
	}

	authGroup := apiGroup.Group("/auth")
	{
		authGroup.POST("/login", limiter.Middleware(), authController.Login)
		authGroup.POST("/logout", authController.Logout)
		authGroup.GET("/me", RequireStaff(), authController.Me)
	}

	adminGroup := apiGroup.Group("/admin", RequireStaff())
	{
		adminGroup.POST("/update-menu", adminController.UpdateMenu)
		adminGroup.GET("/menu-status", adminController.GetMenuStatus)

		adminGroup.GET("/categories", adminController.ListCategories)
		adminGroup.POST("/categories", adminController.CreateCategory)
		adminGroup.PUT("/categories/:id", adminController.UpdateCategory)
		adminGroup.DELETE("/categories/:id", adminController.DeleteCategory)

		adminGroup.GET("/menu-items", adminController.ListMenuItems)
		adminGroup.POST("/menu-items", adminController.CreateMenuItem)
		adminGroup.PUT("/menu-items/:id", adminController.UpdateMenuItem)
		adminGroup.DELETE("/menu-items/:id", adminController.DeleteMenuItem)

		adminGroup.GET("/additions", adminController.ListAdditions)
		adminGroup.POST("/additions", adminController.CreateAddition)
		adminGroup.PUT("/additions/:id", adminController.UpdateAddition)
		adminGroup.DELETE("/additions/:id", adminController.DeleteAddition)

		adminGroup.GET("/actions", adminController.ListActions)
		adminGroup.POST("/actions", adminController.CreateAction)
		adminGroup.PUT("/actions/:id", adminController.UpdateAction)
		adminGroup.DELETE("/actions/:id", adminController.DeleteAction)

		adminGroup.GET("/orders", adminController.ListOrders)
		adminGroup.GET("/orders/export", adminController.ExportOrders)
		adminGroup.GET("/orders/:id", adminController.GetOrder)
		adminGroup.POST("/orders/:id/reject", adminController.RejectOrder)

		adminGroup.GET("/customers", adminController.ListCustomers)
		adminGroup.GET("/carts", adminController.ListCarts)

		adminGroup.GET("/settings", adminController.GetSettings)
		adminGroup.PATCH("/settings", adminController.UpdateSettings)

		staffGroup := adminGroup.Group("/staff", RequireSuperuser())
		{
			staffGroup.GET("", staffController.GetStaff)
			staffGroup.POST("", staffController.CreateStaff)
			staffGroup.PUT("/:id", staffController.UpdateStaff)
		}

		if deps.Hub != nil {
			adminGroup.GET("/ws", ServeWS(deps.Hub))
		}
	}

	log.Info().Msg("✅ HTTP маршруты зарегистрированы")
	return r, nil
}
