package services

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"fscabinet/server/internal/models"
)

func intRef(v int) *int { return &v }

func TestMenuSnapshotShowsOnlyVisible(t *testing.T) {
	env := newTestEnv(t)
	second := env.createCategory(t, func(c *models.MenuCategory) { c.Title = "Напої"; c.OrderIndex = intRef(2) })
	first := env.createCategory(t, func(c *models.MenuCategory) { c.Title = "Сніданки"; c.OrderIndex = intRef(1) })
	env.createCategory(t, func(c *models.MenuCategory) { c.Title = "Приховано"; c.Show = false })

	visibleAddition := env.createAddition(t, "Сироп", 10)
	hiddenAddition := env.createAddition(t, "Старий доп", 10)
	require.NoError(t, env.db.Model(&hiddenAddition).Update("show", false).Error)

	env.createMenuItem(t, "Омлет", 80, first, visibleAddition, hiddenAddition)
	hiddenItem := env.createMenuItem(t, "Сезонне", 80, first)
	require.NoError(t, env.db.Model(hiddenItem).Update("show", false).Error)
	env.createMenuItem(t, "Чай", 25, second)

	require.NoError(t, env.db.Create(&models.Action{Name: "Знижка", Show: true, OrderIndex: intRef(1)}).Error)
	require.NoError(t, env.db.Create(&models.Action{Name: "Стара акція", Show: false}).Error)

	require.NoError(t, env.menu.LoadMenu(env.ctx))
	snapshot, err := env.menu.Snapshot(env.ctx)
	require.NoError(t, err)

	require.Len(t, snapshot.Categories, 2)
	assert.Equal(t, "Сніданки", snapshot.Categories[0].Title)
	assert.Equal(t, "Напої", snapshot.Categories[1].Title)
	require.Len(t, snapshot.Categories[0].MenuItems, 1)
	assert.Equal(t, "Омлет", snapshot.Categories[0].MenuItems[0].Title)
	require.Len(t, snapshot.Categories[0].MenuItems[0].PossibleAdditions, 1)

	require.Len(t, snapshot.Additions, 1)
	assert.Equal(t, "Сироп", snapshot.Additions[0].Title)
	require.Len(t, snapshot.Actions, 1)
	assert.Equal(t, "Знижка", snapshot.Actions[0].Name)

	category, ok := snapshot.Category(second.ID)
	require.True(t, ok)
	assert.Equal(t, "Напої", category.Title)
	assert.False(t, env.menu.GetLastUpdate().IsZero())
}

func TestMenuItemAdditions(t *testing.T) {
	env := newTestEnv(t)
	category := env.createCategory(t, nil)
	syrup := env.createAddition(t, "Сироп", 10)
	hidden := env.createAddition(t, "Прихований", 5)
	require.NoError(t, env.db.Model(&hidden).Update("show", false).Error)
	item := env.createMenuItem(t, "Лате", 50, category, syrup, hidden)
	bare := env.createMenuItem(t, "Вода", 15, category)

	additions, err := env.menu.MenuItemAdditions(env.ctx, item.ID)
	require.NoError(t, err)
	require.Len(t, additions, 1)
	assert.Equal(t, syrup.ID, additions[0].ID)

	additions, err = env.menu.MenuItemAdditions(env.ctx, bare.ID)
	require.NoError(t, err)
	assert.NotNil(t, additions)
	assert.Empty(t, additions)

	_, err = env.menu.MenuItemAdditions(env.ctx, 9999)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestMenuAdminCRUDRefreshesSnapshot(t *testing.T) {
	env := newTestEnv(t)
	require.NoError(t, env.menu.LoadMenu(env.ctx))

	category, err := env.menu.CreateCategory(env.ctx, CategoryRequest{
		Name: "lunch", Title: "Обіди", Show: true, CanOrder: true, FromTime: "12:00", ToTime: "16:00",
	})
	require.NoError(t, err)
	require.NotNil(t, category.FromTime)
	assert.Equal(t, "12:00:00", category.FromTime.String())

	_, err = env.menu.CreateCategory(env.ctx, CategoryRequest{Name: "x", Title: "x", FromTime: "noon"})
	var ve *ValidationError
	require.True(t, errors.As(err, &ve))
	assert.Contains(t, ve.Fields, "from_time")

	addition, err := env.menu.CreateAddition(env.ctx, AdditionRequest{Title: "Соус", Price: dec(15), Show: true})
	require.NoError(t, err)

	_, err = env.menu.CreateAddition(env.ctx, AdditionRequest{Title: "Дробна ціна", Price: dec(15).Div(dec(2))})
	require.True(t, errors.As(err, &ve))

	item, err := env.menu.CreateMenuItem(env.ctx, MenuItemRequest{
		Title: "Борщ", Price: dec(95), Show: true, CategoryID: &category.ID, PossibleAdditionIDs: []uint{addition.ID},
	})
	require.NoError(t, err)
	require.Len(t, item.PossibleAdditions, 1)

	missing := uint(9999)
	_, err = env.menu.CreateMenuItem(env.ctx, MenuItemRequest{Title: "X", Price: dec(1), CategoryID: &missing})
	require.True(t, errors.As(err, &ve))
	assert.Contains(t, ve.Fields, "category_id")

	snapshot, err := env.menu.Snapshot(env.ctx)
	require.NoError(t, err)
	require.Len(t, snapshot.Categories, 1)
	require.Len(t, snapshot.Categories[0].MenuItems, 1)
	assert.Equal(t, "Борщ", snapshot.Categories[0].MenuItems[0].Title)

	updated, err := env.menu.UpdateMenuItem(env.ctx, item.ID, MenuItemRequest{Title: "Борщ з пампушками", Price: dec(110), Show: true, CategoryID: &category.ID})
	require.NoError(t, err)
	assert.Empty(t, updated.PossibleAdditions)

	_, err = env.menu.UpdateMenuItem(env.ctx, 9999, MenuItemRequest{Title: "X"})
	assert.ErrorIs(t, err, ErrNotFound)

	// Удаление раздела оставляет позицию без категории
	require.NoError(t, env.menu.DeleteCategory(env.ctx, category.ID))
	var stored models.MenuItem
	require.NoError(t, env.db.First(&stored, item.ID).Error)
	assert.Nil(t, stored.CategoryID)
	assert.ErrorIs(t, env.menu.DeleteCategory(env.ctx, category.ID), ErrNotFound)

	snapshot, err = env.menu.Snapshot(env.ctx)
	require.NoError(t, err)
	assert.Empty(t, snapshot.Categories)

	action, err := env.menu.CreateAction(env.ctx, ActionRequest{Name: "Акція", Show: true})
	require.NoError(t, err)
	_, err = env.menu.UpdateAction(env.ctx, action.ID, ActionRequest{Name: "Акція 2", Show: false})
	require.NoError(t, err)
	require.NoError(t, env.menu.DeleteAction(env.ctx, action.ID))
	assert.ErrorIs(t, env.menu.DeleteAction(env.ctx, action.ID), ErrNotFound)
}

func TestDeleteMenuItemKeepsOrderSnapshot(t *testing.T) {
	env := newTestEnv(t)
	category := env.createCategory(t, nil)
	syrup := env.createAddition(t, "Сироп", 10)
	item := env.createMenuItem(t, "Лате", 50, category, syrup)

	env.addToCart(t, testSession, item, 1, syrup.ID)
	order := env.createOrder(t, testSession, selfPickupRequest(models.PaymentCash))
	env.addToCart(t, otherSession, item, 1, syrup.ID)

	require.NoError(t, env.menu.DeleteAddition(env.ctx, syrup.ID))
	require.NoError(t, env.menu.DeleteMenuItem(env.ctx, item.ID))
	assert.ErrorIs(t, env.menu.DeleteMenuItem(env.ctx, item.ID), ErrNotFound)

	stored, err := env.orders.GetOrder(env.ctx, order.ID)
	require.NoError(t, err)
	require.Len(t, stored.Items, 1)
	assert.Nil(t, stored.Items[0].MenuItemID)
	assert.Equal(t, "Лате", stored.Items[0].Title)
	require.Len(t, stored.Items[0].Additions, 1)
	assert.Nil(t, stored.Items[0].Additions[0].AdditionID)

	cart, err := env.carts.GetCart(env.ctx, otherSession)
	require.NoError(t, err)
	assert.Empty(t, cart.Items)
}

func TestMenuReloadsOnPubSubEvent(t *testing.T) {
	env := newTestEnv(t)
	require.NoError(t, env.menu.LoadMenu(env.ctx))
	before := env.menu.GetLastUpdate()

	ctx, cancel := context.WithCancel(env.ctx)
	defer cancel()
	env.menu.StartAutoReload(ctx)
	defer env.menu.Stop()

	env.createCategory(t, func(c *models.MenuCategory) { c.Title = "Нова" })

	// Подписка устанавливается асинхронно: публикуем, пока снимок не обновится
	require.Eventually(t, func() bool {
		_ = env.menu.PublishUpdate(env.ctx)
		snapshot, err := env.menu.Snapshot(env.ctx)
		return err == nil && len(snapshot.Categories) == 1
	}, 2*time.Second, 20*time.Millisecond)
	assert.False(t, env.menu.GetLastUpdate().Before(before))
}

func TestParseTimeOfDay(t *testing.T) {
	got, err := ParseTimeOfDay("")
	require.NoError(t, err)
	assert.Nil(t, got)

	got, err = ParseTimeOfDay("07:30")
	require.NoError(t, err)
	assert.Equal(t, "07:30:00", got.String())

	_, err = ParseTimeOfDay("25:00")
	assert.Error(t, err)
}
