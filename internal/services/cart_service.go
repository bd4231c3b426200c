package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"fscabinet/server/internal/database"
	"fscabinet/server/internal/models"
)

// AddToCartRequest - запрос на добавление позиции в корзину
type AddToCartRequest struct {
	MenuItemID  *uint  `json:"menu_item_id" validate:"required"`
	Count       *int   `json:"count" validate:"required,min=0,max=32767"`
	AdditionIDs []uint `json:"addition_ids"`
}

// CartItemRequest - запрос с id строки корзины
type CartItemRequest struct {
	CartItemID *uint `json:"cart_item_id" validate:"required"`
}

// RemoveAdditionRequest - запрос на удаление допа из строки корзины
type RemoveAdditionRequest struct {
	CartItemID *uint `json:"cart_item_id" validate:"required"`
	AdditionID *uint `json:"addition_id" validate:"required"`
}

// CartItemSummary - суммы после изменения строки корзины
type CartItemSummary struct {
	CartItemID          uint            `json:"cart_item_id"`
	Count               int             `json:"count"`
	CartItemTotalAmount decimal.Decimal `json:"cart_item_total_amount"`
	TotalAmount         decimal.Decimal `json:"total_amount"`
}

// CartOverview - корзина в списке админки
type CartOverview struct {
	ID          uint            `json:"id"`
	SessionKey  string          `json:"session_key"`
	ItemsCount  int             `json:"items_count"`
	TotalAmount decimal.Decimal `json:"total_amount"`
	CreatedAt   time.Time       `json:"created_at"`
	UpdatedAt   time.Time       `json:"updated_at"`
}

// CartService управляет корзиной анонимной сессии
type CartService struct {
	db *gorm.DB
	localClock
}

// NewCartService создает новый сервис корзины
func NewCartService(db *gorm.DB, loc *time.Location) *CartService {
	return &CartService{db: db, localClock: newLocalClock(loc)}
}

// SetClock подменяет источник времени
func (s *CartService) SetClock(c Clock) {
	s.clock = c
}

// LocalNow - текущее время заведения (страницы показывают по нему доступность разделов)
func (s *CartService) LocalNow() time.Time {
	return s.localNow()
}

// withCartContents подгружает строки корзины с позициями, категориями и допами
func withCartContents(db *gorm.DB) *gorm.DB {
	return db.
		Preload("Items", func(db *gorm.DB) *gorm.DB { return db.Order("cart_items.id") }).
		Preload("Items.MenuItem").
		Preload("Items.MenuItem.Category").
		Preload("Items.Additions", func(db *gorm.DB) *gorm.DB { return db.Order("additions.id") })
}

// findCart ищет корзину сессии (без содержимого)
func findCart(db *gorm.DB, sessionKey string) (*models.Cart, error) {
	var cart models.Cart
	if err := db.Where("session_key = ?", sessionKey).First(&cart).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to load cart: %w", err)
	}
	return &cart, nil
}

// loadCart загружает корзину со всем содержимым
func loadCart(db *gorm.DB, cartID uint) (*models.Cart, error) {
	var cart models.Cart
	if err := withCartContents(db).First(&cart, cartID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to load cart: %w", err)
	}
	return &cart, nil
}

// findCartItem ищет строку только внутри указанной корзины
func findCartItem(db *gorm.DB, cartID, cartItemID uint) (*models.CartItem, error) {
	var item models.CartItem
	err := db.Preload("Additions", func(db *gorm.DB) *gorm.DB { return db.Order("additions.id") }).
		Where("cart_id = ? AND id = ?", cartID, cartItemID).
		First(&item).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to load cart item: %w", err)
	}
	return &item, nil
}

// getOrCreateCart возвращает корзину сессии, создавая ее при первом обращении.
// Уникальный session_key + ON CONFLICT DO NOTHING: при гонке второй запрос просто перечитывает строку.
func getOrCreateCart(tx *gorm.DB, sessionKey string) (*models.Cart, error) {
	cart, err := findCart(tx, sessionKey)
	if err == nil {
		return cart, nil
	}
	if !errors.Is(err, ErrNotFound) {
		return nil, err
	}

	if err := tx.Clauses(clause.OnConflict{DoNothing: true}).Create(&models.Cart{SessionKey: sessionKey}).Error; err != nil {
		return nil, fmt.Errorf("failed to create cart: %w", err)
	}
	return findCart(tx, sessionKey)
}

// deleteCartItems удаляет строки вместе со связями на допы
func deleteCartItems(tx *gorm.DB, ids []uint) error {
	if len(ids) == 0 {
		return nil
	}
	if err := tx.Exec("DELETE FROM cart_item_additions WHERE cart_item_id IN ?", ids).Error; err != nil {
		return fmt.Errorf("failed to delete cart item additions: %w", err)
	}
	if err := tx.Where("id IN ?", ids).Delete(&models.CartItem{}).Error; err != nil {
		return fmt.Errorf("failed to delete cart items: %w", err)
	}
	return nil
}

// deleteCart удаляет корзину со всеми строками
func deleteCart(tx *gorm.DB, cartID uint) error {
	var ids []uint
	if err := tx.Model(&models.CartItem{}).Where("cart_id = ?", cartID).Pluck("id", &ids).Error; err != nil {
		return fmt.Errorf("failed to list cart items: %w", err)
	}
	if err := deleteCartItems(tx, ids); err != nil {
		return err
	}
	if err := tx.Delete(&models.Cart{}, cartID).Error; err != nil {
		return fmt.Errorf("failed to delete cart: %w", err)
	}
	return nil
}

// checkOrderable проверяет, что позицию можно заказать сейчас
func checkOrderable(item *models.MenuItem, localNow time.Time) error {
	if item.Category == nil || !item.Category.CanOrder {
		return NewDomainError(CodeMenuItemOrderNotAllowed)
	}
	if !item.Category.CanOrderAt(localNow) {
		return NewDomainError(CodeMenuItemOrderNotAllowedThisTime)
	}
	return nil
}

// allowedAdditions выбирает допы по id; каждый id должен входить в возможные допы позиции
func allowedAdditions(item *models.MenuItem, ids []uint) ([]models.Addition, error) {
	if len(ids) == 0 {
		return nil, nil
	}

	possible := make(map[uint]models.Addition, len(item.PossibleAdditions))
	for _, a := range item.PossibleAdditions {
		possible[a.ID] = a
	}

	seen := make(map[uint]bool, len(ids))
	additions := make([]models.Addition, 0, len(ids))
	for _, id := range ids {
		a, ok := possible[id]
		if !ok {
			return nil, NewDomainError(CodeAdditionNotAllowed)
		}
		if seen[id] {
			continue
		}
		seen[id] = true
		additions = append(additions, a)
	}
	return additions, nil
}

// AddToCart добавляет позицию с набором допов. Строка с тем же набором допов
// увеличивает количество, другой набор создает новую строку. Возвращает сумму корзины.
func (s *CartService) AddToCart(ctx context.Context, rc RequestContext, req AddToCartRequest) (decimal.Decimal, error) {
	if err := requireAnonymous(rc); err != nil {
		return decimal.Zero, err
	}
	if err := validateStruct(req); err != nil {
		return decimal.Zero, err
	}

	var item models.MenuItem
	err := s.db.WithContext(ctx).
		Preload("Category").
		Preload("PossibleAdditions").
		First(&item, *req.MenuItemID).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return decimal.Zero, ErrNotFound
		}
		return decimal.Zero, fmt.Errorf("failed to load menu item: %w", err)
	}

	additions, err := allowedAdditions(&item, req.AdditionIDs)
	if err != nil {
		return decimal.Zero, err
	}
	if err := checkOrderable(&item, s.localNow()); err != nil {
		return decimal.Zero, err
	}

	additionIDs := make([]uint, 0, len(additions))
	for _, a := range additions {
		additionIDs = append(additionIDs, a.ID)
	}
	key := models.AdditionsKeyFor(additionIDs)
	count := *req.Count

	var total decimal.Decimal
	err = database.Transaction(ctx, s.db, func(tx *gorm.DB) error {
		cart, err := getOrCreateCart(tx, rc.SessionKey)
		if err != nil {
			return err
		}

		var line models.CartItem
		err = tx.Where("cart_id = ? AND menu_item_id = ? AND additions_key = ?", cart.ID, item.ID, key).First(&line).Error
		switch {
		case err == nil:
			if err := tx.Model(&line).Update("count", gorm.Expr("count + ?", count)).Error; err != nil {
				return fmt.Errorf("failed to increase cart item count: %w", err)
			}
		case errors.Is(err, gorm.ErrRecordNotFound):
			line = models.CartItem{
				CartID:       cart.ID,
				MenuItemID:   item.ID,
				AdditionsKey: key,
				Count:        count,
				Additions:    additions,
			}
			// Допы уже существуют, создаем только связи
			if err := tx.Omit("MenuItem", "Additions.*").Create(&line).Error; err != nil {
				return fmt.Errorf("failed to create cart item: %w", err)
			}
		default:
			return fmt.Errorf("failed to find cart item: %w", err)
		}

		full, err := loadCart(tx, cart.ID)
		if err != nil {
			return err
		}
		total = full.TotalAmount()
		return nil
	})
	if err != nil {
		return decimal.Zero, err
	}

	log.Debug().Str("session", rc.SessionKey).Uint("menu_item_id", item.ID).Int("count", count).Msg("🛒 Позиция добавлена в корзину")
	return total, nil
}

// changeCount меняет количество строки на delta; уменьшение до нуля не выполняется
func (s *CartService) changeCount(ctx context.Context, rc RequestContext, req CartItemRequest, delta int) (CartItemSummary, error) {
	if err := requireAnonymous(rc); err != nil {
		return CartItemSummary{}, err
	}
	db := s.db.WithContext(ctx)

	cart, err := findCart(db, rc.SessionKey)
	if err != nil {
		return CartItemSummary{}, err
	}
	if err := validateStruct(req); err != nil {
		return CartItemSummary{}, err
	}

	line, err := findCartItem(db, cart.ID, *req.CartItemID)
	if err != nil {
		return CartItemSummary{}, err
	}

	if delta > 0 || line.Count > 1 {
		if err := db.Model(&models.CartItem{ID: line.ID}).Update("count", gorm.Expr("count + ?", delta)).Error; err != nil {
			return CartItemSummary{}, fmt.Errorf("failed to change cart item count: %w", err)
		}
	}

	return s.summary(db, cart.ID, line.ID)
}

// IncreaseCount увеличивает количество строки на 1
func (s *CartService) IncreaseCount(ctx context.Context, rc RequestContext, req CartItemRequest) (CartItemSummary, error) {
	return s.changeCount(ctx, rc, req, 1)
}

// DecreaseCount уменьшает количество строки на 1; при количестве 1 ничего не меняет
func (s *CartService) DecreaseCount(ctx context.Context, rc RequestContext, req CartItemRequest) (CartItemSummary, error) {
	return s.changeCount(ctx, rc, req, -1)
}

// summary считает суммы строки и корзины после изменения
func (s *CartService) summary(db *gorm.DB, cartID, cartItemID uint) (CartItemSummary, error) {
	cart, err := loadCart(db, cartID)
	if err != nil {
		return CartItemSummary{}, err
	}
	for i := range cart.Items {
		if cart.Items[i].ID == cartItemID {
			return CartItemSummary{
				CartItemID:          cartItemID,
				Count:               cart.Items[i].Count,
				CartItemTotalAmount: cart.Items[i].TotalAmount(),
				TotalAmount:         cart.TotalAmount(),
			}, nil
		}
	}
	return CartItemSummary{}, ErrNotFound
}

// RemoveCartItem удаляет строку корзины, возвращает сумму корзины
func (s *CartService) RemoveCartItem(ctx context.Context, rc RequestContext, req CartItemRequest) (decimal.Decimal, error) {
	if err := requireAnonymous(rc); err != nil {
		return decimal.Zero, err
	}
	db := s.db.WithContext(ctx)

	cart, err := findCart(db, rc.SessionKey)
	if err != nil {
		return decimal.Zero, err
	}
	if err := validateStruct(req); err != nil {
		return decimal.Zero, err
	}

	line, err := findCartItem(db, cart.ID, *req.CartItemID)
	if err != nil {
		return decimal.Zero, err
	}

	err = db.Transaction(func(tx *gorm.DB) error {
		return deleteCartItems(tx, []uint{line.ID})
	})
	if err != nil {
		return decimal.Zero, err
	}

	full, err := loadCart(db, cart.ID)
	if err != nil {
		return decimal.Zero, err
	}
	return full.TotalAmount(), nil
}

// RemoveCartItemAddition убирает доп из строки. Если в корзине уже есть строка
// с получившимся набором допов, строки объединяются (количество суммируется).
func (s *CartService) RemoveCartItemAddition(ctx context.Context, rc RequestContext, req RemoveAdditionRequest) (CartItemSummary, error) {
	if err := requireAnonymous(rc); err != nil {
		return CartItemSummary{}, err
	}
	db := s.db.WithContext(ctx)

	cart, err := findCart(db, rc.SessionKey)
	if err != nil {
		return CartItemSummary{}, err
	}
	if err := validateStruct(req); err != nil {
		return CartItemSummary{}, err
	}

	line, err := findCartItem(db, cart.ID, *req.CartItemID)
	if err != nil {
		return CartItemSummary{}, err
	}

	var removed *models.Addition
	remaining := make([]uint, 0, len(line.Additions))
	for i := range line.Additions {
		if line.Additions[i].ID == *req.AdditionID {
			removed = &line.Additions[i]
			continue
		}
		remaining = append(remaining, line.Additions[i].ID)
	}
	if removed == nil {
		return CartItemSummary{}, ErrNotFound
	}

	newKey := models.AdditionsKeyFor(remaining)
	resultID := line.ID

	err = database.Transaction(ctx, s.db, func(tx *gorm.DB) error {
		var twin models.CartItem
		err := tx.Where("cart_id = ? AND menu_item_id = ? AND additions_key = ? AND id <> ?",
			cart.ID, line.MenuItemID, newKey, line.ID).First(&twin).Error
		switch {
		case err == nil:
			if err := tx.Model(&twin).Update("count", gorm.Expr("count + ?", line.Count)).Error; err != nil {
				return fmt.Errorf("failed to merge cart items: %w", err)
			}
			resultID = twin.ID
			return deleteCartItems(tx, []uint{line.ID})
		case errors.Is(err, gorm.ErrRecordNotFound):
			if err := tx.Exec("DELETE FROM cart_item_additions WHERE cart_item_id = ? AND addition_id = ?", line.ID, removed.ID).Error; err != nil {
				return fmt.Errorf("failed to remove addition: %w", err)
			}
			// Только колонка: иначе gorm пересохранит загруженные допы и вернет удаленную связь
			return tx.Model(&models.CartItem{ID: line.ID}).Update("additions_key", newKey).Error
		default:
			return fmt.Errorf("failed to find cart item: %w", err)
		}
	})
	if err != nil {
		return CartItemSummary{}, err
	}

	return s.summary(db, cart.ID, resultID)
}

// ClearCart удаляет все строки корзины, сама корзина остается
func (s *CartService) ClearCart(ctx context.Context, rc RequestContext) error {
	if err := requireAnonymous(rc); err != nil {
		return err
	}
	db := s.db.WithContext(ctx)

	cart, err := findCart(db, rc.SessionKey)
	if err != nil {
		return err
	}

	return db.Transaction(func(tx *gorm.DB) error {
		var ids []uint
		if err := tx.Model(&models.CartItem{}).Where("cart_id = ?", cart.ID).Pluck("id", &ids).Error; err != nil {
			return fmt.Errorf("failed to list cart items: %w", err)
		}
		return deleteCartItems(tx, ids)
	})
}

// EvictUnavailable удаляет и возвращает строки, чьи категории сейчас вне окна заказа.
// Повторный вызов возвращает пустой список.
func (s *CartService) EvictUnavailable(ctx context.Context, rc RequestContext) ([]models.CartItem, error) {
	if err := requireAnonymous(rc); err != nil {
		return nil, err
	}
	db := s.db.WithContext(ctx)

	cart, err := findCart(db, rc.SessionKey)
	if err != nil {
		return nil, err
	}
	full, err := loadCart(db, cart.ID)
	if err != nil {
		return nil, err
	}

	now := s.localNow()
	evicted := make([]models.CartItem, 0)
	ids := make([]uint, 0)
	for _, line := range full.Items {
		category := line.MenuItem.Category
		if category != nil && !category.CanOrderAt(now) {
			evicted = append(evicted, line)
			ids = append(ids, line.ID)
		}
	}
	if len(ids) == 0 {
		return evicted, nil
	}

	if err := db.Transaction(func(tx *gorm.DB) error { return deleteCartItems(tx, ids) }); err != nil {
		return nil, err
	}

	log.Info().Str("session", rc.SessionKey).Int("evicted", len(ids)).Msg("⏰ Из корзины удалены позиции вне времени заказа")
	return evicted, nil
}

// GetCart возвращает корзину сессии с содержимым или ErrNotFound
func (s *CartService) GetCart(ctx context.Context, sessionKey string) (*models.Cart, error) {
	db := s.db.WithContext(ctx)
	cart, err := findCart(db, sessionKey)
	if err != nil {
		return nil, err
	}
	return loadCart(db, cart.ID)
}

// MenuItemIDsInCart - id позиций меню, которые уже лежат в корзине
func (s *CartService) MenuItemIDsInCart(ctx context.Context, sessionKey string) (map[uint]bool, error) {
	result := make(map[uint]bool)
	if sessionKey == "" {
		return result, nil
	}

	var ids []uint
	err := s.db.WithContext(ctx).
		Model(&models.CartItem{}).
		Joins("JOIN carts ON carts.id = cart_items.cart_id").
		Where("carts.session_key = ?", sessionKey).
		Pluck("cart_items.menu_item_id", &ids).Error
	if err != nil {
		return nil, fmt.Errorf("failed to list cart menu items: %w", err)
	}
	for _, id := range ids {
		result[id] = true
	}
	return result, nil
}

// CartTotal - сумма корзины сессии или nil, если корзины нет
func (s *CartService) CartTotal(ctx context.Context, sessionKey string) (*decimal.Decimal, error) {
	if sessionKey == "" {
		return nil, nil
	}
	cart, err := s.GetCart(ctx, sessionKey)
	if errors.Is(err, ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	total := cart.TotalAmount()
	return &total, nil
}

// ListCarts - все корзины с суммами (админка, только чтение)
func (s *CartService) ListCarts(ctx context.Context) ([]CartOverview, error) {
	var carts []models.Cart
	if err := withCartContents(s.db.WithContext(ctx)).Order("updated_at DESC").Find(&carts).Error; err != nil {
		return nil, fmt.Errorf("failed to list carts: %w", err)
	}

	result := make([]CartOverview, 0, len(carts))
	for i := range carts {
		result = append(result, CartOverview{
			ID:          carts[i].ID,
			SessionKey:  carts[i].SessionKey,
			ItemsCount:  len(carts[i].Items),
			TotalAmount: carts[i].TotalAmount(),
			CreatedAt:   carts[i].CreatedAt,
			UpdatedAt:   carts[i].UpdatedAt,
		})
	}
	return result, nil
}
