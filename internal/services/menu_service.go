package services

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"
	"gorm.io/datatypes"
	"gorm.io/gorm"

	"fscabinet/server/internal/models"
	"fscabinet/server/internal/utils"
)

const MenuUpdateChannel = "menu:update" // Канал для Pub/Sub обновлений меню

// MenuSnapshot - видимая часть меню для витрины
type MenuSnapshot struct {
	Categories []models.MenuCategory // show=true, по order_index, с видимыми позициями
	Additions  []models.Addition     // show=true
	Actions    []models.Action       // show=true, по order_index
	LoadedAt   time.Time
}

// Category возвращает раздел по id
func (m *MenuSnapshot) Category(id uint) (*models.MenuCategory, bool) {
	for i := range m.Categories {
		if m.Categories[i].ID == id {
			return &m.Categories[i], true
		}
	}
	return nil, false
}

// MenuService держит снимок меню в памяти и обновляет его после изменений в админке.
// Корзина и заказы всегда читают позиции из БД.
type MenuService struct {
	db             *gorm.DB
	redisUtil      *utils.RedisClient // Redis для Pub/Sub
	mu             sync.RWMutex
	snapshot       *MenuSnapshot
	updateInterval time.Duration
	stopOnce       sync.Once
	stop           chan struct{}
}

// NewMenuService создает новый сервис меню
func NewMenuService(db *gorm.DB, redisUtil *utils.RedisClient) *MenuService {
	return &MenuService{
		db:             db,
		redisUtil:      redisUtil,
		updateInterval: 5 * time.Minute, // Fallback: обновляем каждые 5 минут
		stop:           make(chan struct{}),
	}
}

// LoadMenu загружает меню из БД и атомарно заменяет снимок
func (ms *MenuService) LoadMenu(ctx context.Context) error {
	db := ms.db.WithContext(ctx)

	var categories []models.MenuCategory
	err := db.
		Preload("MenuItems", func(db *gorm.DB) *gorm.DB {
			return db.Where("show = ?", true).Order("id")
		}).
		Preload("MenuItems.PossibleAdditions", func(db *gorm.DB) *gorm.DB {
			return db.Where("show = ?", true).Order("additions.id")
		}).
		Where("show = ?", true).
		Order("order_index").
		Order("id").
		Find(&categories).Error
	if err != nil {
		return fmt.Errorf("failed to load categories: %w", err)
	}

	var additions []models.Addition
	if err := db.Where("show = ?", true).Order("id").Find(&additions).Error; err != nil {
		return fmt.Errorf("failed to load additions: %w", err)
	}

	var actions []models.Action
	if err := db.Where("show = ?", true).Order("order_index").Order("id").Find(&actions).Error; err != nil {
		return fmt.Errorf("failed to load actions: %w", err)
	}

	snapshot := &MenuSnapshot{
		Categories: categories,
		Additions:  additions,
		Actions:    actions,
		LoadedAt:   time.Now(),
	}

	ms.mu.Lock()
	ms.snapshot = snapshot
	ms.mu.Unlock()

	log.Debug().
		Int("categories", len(categories)).
		Int("additions", len(additions)).
		Int("actions", len(actions)).
		Msg("✅ Меню обновлено из БД")
	return nil
}

// Snapshot возвращает текущий снимок, при первом обращении загружает его
func (ms *MenuService) Snapshot(ctx context.Context) (*MenuSnapshot, error) {
	ms.mu.RLock()
	snapshot := ms.snapshot
	ms.mu.RUnlock()
	if snapshot != nil {
		return snapshot, nil
	}

	if err := ms.LoadMenu(ctx); err != nil {
		return nil, err
	}
	ms.mu.RLock()
	defer ms.mu.RUnlock()
	return ms.snapshot, nil
}

// GetLastUpdate возвращает время последнего обновления
func (ms *MenuService) GetLastUpdate() time.Time {
	ms.mu.RLock()
	defer ms.mu.RUnlock()
	if ms.snapshot == nil {
		return time.Time{}
	}
	return ms.snapshot.LoadedAt
}

// StartAutoReload запускает автоматическое обновление меню.
// Redis Pub/Sub для мгновенного обновления + таймер как fallback.
func (ms *MenuService) StartAutoReload(ctx context.Context) {
	if ms.redisUtil != nil {
		go ms.startPubSubListener(ctx)
		log.Info().Msg("📡 Redis Pub/Sub для меню запущен")
	}

	go func() {
		ticker := time.NewTicker(ms.updateInterval)
		defer ticker.Stop()

		for {
			select {
			case <-ticker.C:
				if err := ms.LoadMenu(ctx); err != nil {
					log.Warn().Err(err).Msg("⚠️ Ошибка автообновления меню")
				}
			case <-ms.stop:
				return
			case <-ctx.Done():
				return
			}
		}
	}()
	log.Info().Dur("interval", ms.updateInterval).Msg("🔄 Fallback автообновление меню запущено")
}

// startPubSubListener слушает Redis канал и перечитывает меню по событию
func (ms *MenuService) startPubSubListener(ctx context.Context) {
	ch, closeFn := ms.redisUtil.Subscribe(ctx, MenuUpdateChannel)
	defer func() {
		if err := closeFn(); err != nil {
			log.Warn().Err(err).Msg("⚠️ Ошибка закрытия Pub/Sub")
		}
	}()

	log.Info().Str("channel", MenuUpdateChannel).Msg("👂 Слушаем канал Redis")

	for {
		select {
		case msg, ok := <-ch:
			if !ok {
				return
			}
			if msg == nil {
				continue
			}
			log.Debug().Str("payload", msg.Payload).Msg("🔔 Получено событие обновления меню")
			if err := ms.LoadMenu(ctx); err != nil {
				log.Warn().Err(err).Msg("⚠️ Ошибка обновления меню по Pub/Sub")
			}
		case <-ms.stop:
			log.Info().Msg("🛑 Остановка Pub/Sub listener для меню")
			return
		case <-ctx.Done():
			return
		}
	}
}

// Stop останавливает автообновление
func (ms *MenuService) Stop() {
	ms.stopOnce.Do(func() { close(ms.stop) })
}

// PublishUpdate сообщает остальным инстансам, что меню изменилось
func (ms *MenuService) PublishUpdate(ctx context.Context) error {
	if ms.redisUtil == nil {
		return nil
	}
	return ms.redisUtil.Publish(ctx, MenuUpdateChannel, time.Now().UTC().Format(time.RFC3339))
}

// ForceReload перечитывает меню и оповещает другие инстансы
func (ms *MenuService) ForceReload(ctx context.Context) error {
	if err := ms.LoadMenu(ctx); err != nil {
		return err
	}
	if err := ms.PublishUpdate(ctx); err != nil {
		log.Warn().Err(err).Msg("⚠️ Не удалось опубликовать обновление меню")
	}
	return nil
}

// MenuItemAdditions - видимые допы позиции меню; ErrNotFound для неизвестной позиции
func (ms *MenuService) MenuItemAdditions(ctx context.Context, menuItemID uint) ([]models.Addition, error) {
	var item models.MenuItem
	err := ms.db.WithContext(ctx).
		Preload("PossibleAdditions", func(db *gorm.DB) *gorm.DB {
			return db.Where("show = ?", true).Order("additions.id")
		}).
		First(&item, menuItemID).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to load menu item: %w", err)
	}
	if item.PossibleAdditions == nil {
		return []models.Addition{}, nil
	}
	return item.PossibleAdditions, nil
}

// ========== Админка ==========

// CategoryRequest - создание/изменение раздела меню
type CategoryRequest struct {
	Name       string `json:"name" binding:"required,max=100"`
	Title      string `json:"title" binding:"required,max=100"`
	IconURL    string `json:"icon_url" binding:"max=255"`
	Show       bool   `json:"show"`
	OrderIndex *int   `json:"order_index"`
	FromTime   string `json:"from_time"` // "HH:MM" или "HH:MM:SS", пусто - без ограничения
	ToTime     string `json:"to_time"`
	CanOrder   bool   `json:"can_order"`
}

// MenuItemRequest - создание/изменение позиции меню
type MenuItemRequest struct {
	Title               string          `json:"title" binding:"required,max=100"`
	Price               decimal.Decimal `json:"price"`
	ImageURL            string          `json:"image_url" binding:"max=255"`
	Volume              *string         `json:"volume"`
	Description         *string         `json:"description"`
	Show                bool            `json:"show"`
	CategoryID          *uint           `json:"category_id"`
	PossibleAdditionIDs []uint          `json:"possible_addition_ids"`
}

// AdditionRequest - создание/изменение допа
type AdditionRequest struct {
	Title string          `json:"title" binding:"required,max=100"`
	Price decimal.Decimal `json:"price"`
	Show  bool            `json:"show"`
}

// ActionRequest - создание/изменение промо-баннера
type ActionRequest struct {
	Name       string `json:"name" binding:"max=100"`
	ImageURL   string `json:"image_url" binding:"max=255"`
	Show       bool   `json:"show"`
	OrderIndex *int   `json:"order_index"`
}

// ParseTimeOfDay разбирает "HH:MM[:SS]"; пустая строка - nil
func ParseTimeOfDay(value string) (*datatypes.Time, error) {
	if value == "" {
		return nil, nil
	}
	for _, layout := range []string{"15:04:05", "15:04"} {
		if t, err := time.Parse(layout, value); err == nil {
			dt := datatypes.NewTime(t.Hour(), t.Minute(), t.Second(), 0)
			return &dt, nil
		}
	}
	return nil, fmt.Errorf("invalid time of day %q", value)
}

func (ms *MenuService) changed(ctx context.Context, what string, id uint) {
	log.Info().Str("entity", what).Uint("id", id).Msg("📝 Меню изменено")
	if err := ms.ForceReload(ctx); err != nil {
		log.Warn().Err(err).Msg("⚠️ Не удалось перечитать меню")
	}
}

func notFoundOr(err error, format string) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return ErrNotFound
	}
	return fmt.Errorf(format, err)
}

func checkPrice(field string, price decimal.Decimal) error {
	if price.IsNegative() || !price.Equal(price.Truncate(0)) {
		return NewFieldError(field, CodeInvalid, "Ensure this value is a non-negative whole number.")
	}
	return nil
}

// ListCategories - все разделы (включая скрытые)
func (ms *MenuService) ListCategories(ctx context.Context) ([]models.MenuCategory, error) {
	var categories []models.MenuCategory
	if err := ms.db.WithContext(ctx).Order("order_index").Order("id").Find(&categories).Error; err != nil {
		return nil, fmt.Errorf("failed to list categories: %w", err)
	}
	return categories, nil
}

func (ms *MenuService) applyCategory(category *models.MenuCategory, req CategoryRequest) error {
	from, err := ParseTimeOfDay(req.FromTime)
	if err != nil {
		return NewFieldError("from_time", CodeInvalid, "Time has wrong format. Use HH:MM[:SS].")
	}
	to, err := ParseTimeOfDay(req.ToTime)
	if err != nil {
		return NewFieldError("to_time", CodeInvalid, "Time has wrong format. Use HH:MM[:SS].")
	}
	category.Name = req.Name
	category.Title = req.Title
	category.IconURL = req.IconURL
	category.Show = req.Show
	category.OrderIndex = req.OrderIndex
	category.FromTime = from
	category.ToTime = to
	category.CanOrder = req.CanOrder
	return nil
}

// CreateCategory создает раздел меню
func (ms *MenuService) CreateCategory(ctx context.Context, req CategoryRequest) (*models.MenuCategory, error) {
	var category models.MenuCategory
	if err := ms.applyCategory(&category, req); err != nil {
		return nil, err
	}
	if err := ms.db.WithContext(ctx).Create(&category).Error; err != nil {
		return nil, fmt.Errorf("failed to create category: %w", err)
	}
	ms.changed(ctx, "category", category.ID)
	return &category, nil
}

// UpdateCategory изменяет раздел меню
func (ms *MenuService) UpdateCategory(ctx context.Context, id uint, req CategoryRequest) (*models.MenuCategory, error) {
	db := ms.db.WithContext(ctx)
	var category models.MenuCategory
	if err := db.First(&category, id).Error; err != nil {
		return nil, notFoundOr(err, "failed to load category: %w")
	}
	if err := ms.applyCategory(&category, req); err != nil {
		return nil, err
	}
	if err := db.Save(&category).Error; err != nil {
		return nil, fmt.Errorf("failed to update category: %w", err)
	}
	ms.changed(ctx, "category", category.ID)
	return &category, nil
}

// DeleteCategory удаляет раздел; позиции остаются без категории
func (ms *MenuService) DeleteCategory(ctx context.Context, id uint) error {
	err := ms.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Model(&models.MenuItem{}).Where("category_id = ?", id).Update("category_id", nil).Error; err != nil {
			return fmt.Errorf("failed to detach menu items: %w", err)
		}
		result := tx.Delete(&models.MenuCategory{}, id)
		if result.Error != nil {
			return fmt.Errorf("failed to delete category: %w", result.Error)
		}
		if result.RowsAffected == 0 {
			return ErrNotFound
		}
		return nil
	})
	if err != nil {
		return err
	}
	ms.changed(ctx, "category", id)
	return nil
}

// ListMenuItems - все позиции с категориями и допами
func (ms *MenuService) ListMenuItems(ctx context.Context, categoryID *uint) ([]models.MenuItem, error) {
	query := ms.db.WithContext(ctx).Preload("Category").Preload("PossibleAdditions")
	if categoryID != nil {
		query = query.Where("category_id = ?", *categoryID)
	}
	var items []models.MenuItem
	if err := query.Order("id").Find(&items).Error; err != nil {
		return nil, fmt.Errorf("failed to list menu items: %w", err)
	}
	return items, nil
}

func (ms *MenuService) loadAdditions(db *gorm.DB, ids []uint) ([]models.Addition, error) {
	if len(ids) == 0 {
		return []models.Addition{}, nil
	}
	var additions []models.Addition
	if err := db.Where("id IN ?", ids).Find(&additions).Error; err != nil {
		return nil, fmt.Errorf("failed to load additions: %w", err)
	}
	unique := make(map[uint]struct{}, len(ids))
	for _, id := range ids {
		unique[id] = struct{}{}
	}
	if len(additions) != len(unique) {
		return nil, NewFieldError("possible_addition_ids", CodeInvalid, "Unknown addition id.")
	}
	return additions, nil
}

func (ms *MenuService) saveMenuItem(ctx context.Context, item *models.MenuItem, req MenuItemRequest) error {
	if err := checkPrice("price", req.Price); err != nil {
		return err
	}
	return ms.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if req.CategoryID != nil {
			var count int64
			if err := tx.Model(&models.MenuCategory{}).Where("id = ?", *req.CategoryID).Count(&count).Error; err != nil {
				return fmt.Errorf("failed to check category: %w", err)
			}
			if count == 0 {
				return NewFieldError("category_id", CodeInvalid, "Unknown category id.")
			}
		}
		additions, err := ms.loadAdditions(tx, req.PossibleAdditionIDs)
		if err != nil {
			return err
		}

		item.Title = req.Title
		item.Price = req.Price
		item.ImageURL = req.ImageURL
		item.Volume = req.Volume
		item.Description = req.Description
		item.Show = req.Show
		item.CategoryID = req.CategoryID
		item.Category = nil

		if err := tx.Omit("Category", "PossibleAdditions").Save(item).Error; err != nil {
			return fmt.Errorf("failed to save menu item: %w", err)
		}
		if err := tx.Model(item).Association("PossibleAdditions").Replace(additions); err != nil {
			return fmt.Errorf("failed to save possible additions: %w", err)
		}
		item.PossibleAdditions = additions
		return nil
	})
}

// CreateMenuItem создает позицию меню
func (ms *MenuService) CreateMenuItem(ctx context.Context, req MenuItemRequest) (*models.MenuItem, error) {
	var item models.MenuItem
	if err := ms.saveMenuItem(ctx, &item, req); err != nil {
		return nil, err
	}
	ms.changed(ctx, "menu_item", item.ID)
	return &item, nil
}

// UpdateMenuItem изменяет позицию меню
func (ms *MenuService) UpdateMenuItem(ctx context.Context, id uint, req MenuItemRequest) (*models.MenuItem, error) {
	var item models.MenuItem
	if err := ms.db.WithContext(ctx).First(&item, id).Error; err != nil {
		return nil, notFoundOr(err, "failed to load menu item: %w")
	}
	if err := ms.saveMenuItem(ctx, &item, req); err != nil {
		return nil, err
	}
	ms.changed(ctx, "menu_item", item.ID)
	return &item, nil
}

// DeleteMenuItem удаляет позицию вместе со строками корзин; в заказах остается снимок
func (ms *MenuService) DeleteMenuItem(ctx context.Context, id uint) error {
	err := ms.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var lineIDs []uint
		if err := tx.Model(&models.CartItem{}).Where("menu_item_id = ?", id).Pluck("id", &lineIDs).Error; err != nil {
			return fmt.Errorf("failed to list cart items: %w", err)
		}
		if err := deleteCartItems(tx, lineIDs); err != nil {
			return err
		}
		if err := tx.Model(&models.OrderItem{}).Where("menu_item_id = ?", id).Update("menu_item_id", nil).Error; err != nil {
			return fmt.Errorf("failed to detach order items: %w", err)
		}
		if err := tx.Exec("DELETE FROM menu_item_possible_additions WHERE menu_item_id = ?", id).Error; err != nil {
			return fmt.Errorf("failed to delete possible additions: %w", err)
		}
		result := tx.Delete(&models.MenuItem{}, id)
		if result.Error != nil {
			return fmt.Errorf("failed to delete menu item: %w", result.Error)
		}
		if result.RowsAffected == 0 {
			return ErrNotFound
		}
		return nil
	})
	if err != nil {
		return err
	}
	ms.changed(ctx, "menu_item", id)
	return nil
}

// ListAdditions - все допы
func (ms *MenuService) ListAdditions(ctx context.Context) ([]models.Addition, error) {
	var additions []models.Addition
	if err := ms.db.WithContext(ctx).Order("id").Find(&additions).Error; err != nil {
		return nil, fmt.Errorf("failed to list additions: %w", err)
	}
	return additions, nil
}

// CreateAddition создает доп
func (ms *MenuService) CreateAddition(ctx context.Context, req AdditionRequest) (*models.Addition, error) {
	if err := checkPrice("price", req.Price); err != nil {
		return nil, err
	}
	addition := models.Addition{Title: req.Title, Price: req.Price, Show: req.Show}
	if err := ms.db.WithContext(ctx).Create(&addition).Error; err != nil {
		return nil, fmt.Errorf("failed to create addition: %w", err)
	}
	ms.changed(ctx, "addition", addition.ID)
	return &addition, nil
}

// UpdateAddition изменяет доп
func (ms *MenuService) UpdateAddition(ctx context.Context, id uint, req AdditionRequest) (*models.Addition, error) {
	if err := checkPrice("price", req.Price); err != nil {
		return nil, err
	}
	db := ms.db.WithContext(ctx)
	var addition models.Addition
	if err := db.First(&addition, id).Error; err != nil {
		return nil, notFoundOr(err, "failed to load addition: %w")
	}
	addition.Title = req.Title
	addition.Price = req.Price
	addition.Show = req.Show
	if err := db.Save(&addition).Error; err != nil {
		return nil, fmt.Errorf("failed to update addition: %w", err)
	}
	ms.changed(ctx, "addition", addition.ID)
	return &addition, nil
}

// DeleteAddition удаляет доп из позиций меню и строк корзин; в заказах остается снимок
func (ms *MenuService) DeleteAddition(ctx context.Context, id uint) error {
	err := ms.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var lineIDs []uint
		if err := tx.Table("cart_item_additions").Where("addition_id = ?", id).Pluck("cart_item_id", &lineIDs).Error; err != nil {
			return fmt.Errorf("failed to list cart items: %w", err)
		}
		// Строки корзин с этим допом удаляются: набор допов строки больше не существует
		if err := deleteCartItems(tx, lineIDs); err != nil {
			return err
		}
		if err := tx.Exec("DELETE FROM menu_item_possible_additions WHERE addition_id = ?", id).Error; err != nil {
			return fmt.Errorf("failed to delete possible additions: %w", err)
		}
		if err := tx.Model(&models.AdditionItem{}).Where("addition_id = ?", id).Update("addition_id", nil).Error; err != nil {
			return fmt.Errorf("failed to detach addition items: %w", err)
		}
		result := tx.Delete(&models.Addition{}, id)
		if result.Error != nil {
			return fmt.Errorf("failed to delete addition: %w", result.Error)
		}
		if result.RowsAffected == 0 {
			return ErrNotFound
		}
		return nil
	})
	if err != nil {
		return err
	}
	ms.changed(ctx, "addition", id)
	return nil
}

// ListActions - все промо-баннеры
func (ms *MenuService) ListActions(ctx context.Context) ([]models.Action, error) {
	var actions []models.Action
	if err := ms.db.WithContext(ctx).Order("order_index").Order("id").Find(&actions).Error; err != nil {
		return nil, fmt.Errorf("failed to list actions: %w", err)
	}
	return actions, nil
}

// CreateAction создает промо-баннер
func (ms *MenuService) CreateAction(ctx context.Context, req ActionRequest) (*models.Action, error) {
	action := models.Action{Name: req.Name, ImageURL: req.ImageURL, Show: req.Show, OrderIndex: req.OrderIndex}
	if err := ms.db.WithContext(ctx).Create(&action).Error; err != nil {
		return nil, fmt.Errorf("failed to create action: %w", err)
	}
	ms.changed(ctx, "action", action.ID)
	return &action, nil
}

// UpdateAction изменяет промо-баннер
func (ms *MenuService) UpdateAction(ctx context.Context, id uint, req ActionRequest) (*models.Action, error) {
	db := ms.db.WithContext(ctx)
	var action models.Action
	if err := db.First(&action, id).Error; err != nil {
		return nil, notFoundOr(err, "failed to load action: %w")
	}
	action.Name = req.Name
	action.ImageURL = req.ImageURL
	action.Show = req.Show
	action.OrderIndex = req.OrderIndex
	if err := db.Save(&action).Error; err != nil {
		return nil, fmt.Errorf("failed to update action: %w", err)
	}
	ms.changed(ctx, "action", action.ID)
	return &action, nil
}

// DeleteAction удаляет промо-баннер
func (ms *MenuService) DeleteAction(ctx context.Context, id uint) error {
	result := ms.db.WithContext(ctx).Delete(&models.Action{}, id)
	if result.Error != nil {
		return fmt.Errorf("failed to delete action: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		return ErrNotFound
	}
	ms.changed(ctx, "action", id)
	return nil
}
