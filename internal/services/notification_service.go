package services

import (
	"bytes"
	"context"
	"embed"
	"fmt"
	htmltemplate "html/template"
	"strconv"
	texttemplate "text/template"
	"time"

	"github.com/rs/zerolog/log"
	"gorm.io/gorm"

	"fscabinet/server/internal/mailer"
	"fscabinet/server/internal/models"
)

//go:embed templates/new_order.txt templates/new_order.html
var notificationTemplates embed.FS

// Месяцы в родительном падеже для дат в письмах
var ukrainianMonths = [...]string{
	"січня", "лютого", "березня", "квітня", "травня", "червня",
	"липня", "серпня", "вересня", "жовтня", "листопада", "грудня",
}

// FormatUkrainianDateTime форматирует время как "01 листопада 2021 р. 20:00"
func FormatUkrainianDateTime(t time.Time) string {
	return fmt.Sprintf("%02d %s %d р. %02d:%02d", t.Day(), ukrainianMonths[t.Month()-1], t.Year(), t.Hour(), t.Minute())
}

type notificationItem struct {
	Title     string
	Volume    string
	Count     int
	Additions []models.AdditionItem
}

type notificationView struct {
	ID              uint
	Total           string
	Items           []notificationItem
	CustomerName    string
	Phone           string
	DeliveryMethod  string
	SelfPickupTime  string
	PaymentMethod   string
	PaymentRequired bool
	PaymentType     string
	PaymentAmount   string
	PaymentStatus   string
	Address         *models.DeliveryAddress
	PeoplesCount    string
	Comment         string
}

// NotificationService рассылает сотрудникам письма о новых заказах
type NotificationService struct {
	db       *gorm.DB
	settings *SettingsService
	mailer   mailer.Mailer
	loc      *time.Location
	text     *texttemplate.Template
	html     *htmltemplate.Template
}

// NewNotificationService создает сервис уведомлений
func NewNotificationService(db *gorm.DB, settings *SettingsService, m mailer.Mailer, loc *time.Location) (*NotificationService, error) {
	if loc == nil {
		loc = time.UTC
	}
	text, err := texttemplate.ParseFS(notificationTemplates, "templates/new_order.txt")
	if err != nil {
		return nil, fmt.Errorf("failed to parse text template: %w", err)
	}
	html, err := htmltemplate.ParseFS(notificationTemplates, "templates/new_order.html")
	if err != nil {
		return nil, fmt.Errorf("failed to parse html template: %w", err)
	}
	return &NotificationService{db: db, settings: settings, mailer: m, loc: loc, text: text, html: html}, nil
}

// RenderNewOrderNotification рендерит тему, текст и HTML письма (Items, Customer, DeliveryAddress и Transaction должны быть загружены)
func (s *NotificationService) RenderNewOrderNotification(order *models.Order) (mailer.Message, error) {
	view := s.buildView(order)

	var text bytes.Buffer
	if err := s.text.Execute(&text, view); err != nil {
		return mailer.Message{}, fmt.Errorf("failed to render text email: %w", err)
	}
	var html bytes.Buffer
	if err := s.html.Execute(&html, view); err != nil {
		return mailer.Message{}, fmt.Errorf("failed to render html email: %w", err)
	}

	return mailer.Message{
		Subject: fmt.Sprintf("Нове замовлення %d! Загальна сума: %s грн", order.ID, view.Total),
		Text:    text.String(),
		HTML:    html.String(),
	}, nil
}

func (s *NotificationService) buildView(order *models.Order) notificationView {
	view := notificationView{
		ID:             order.ID,
		Total:          order.TotalAmount().String(),
		DeliveryMethod: order.DeliveryMethod.Label(),
		PaymentMethod:  order.PaymentMethod.Label(),
		Comment:        order.CustomerComment,
		PeoplesCount:   "-",
		Items:          make([]notificationItem, 0, len(order.Items)),
	}
	if order.Customer != nil {
		view.CustomerName = order.Customer.Name
		view.Phone = order.Customer.PhoneNumber
	}
	if order.SelfPickupTime != nil {
		view.SelfPickupTime = FormatUkrainianDateTime(order.SelfPickupTime.In(s.loc))
	}
	if order.PeoplesCount != nil {
		view.PeoplesCount = strconv.Itoa(*order.PeoplesCount)
	}
	if order.DeliveryMethod == models.DeliveryCourier {
		view.Address = order.DeliveryAddress
	}
	if order.IsPaymentRequired() && order.Transaction != nil {
		view.PaymentRequired = true
		view.PaymentType = order.Transaction.Type.Label()
		view.PaymentAmount = order.Transaction.Amount.String()
		view.PaymentStatus = order.Transaction.Status.Label()
	}

	for _, item := range order.Items {
		ni := notificationItem{Title: item.Title, Count: item.Count, Additions: item.Additions}
		if item.Volume != nil {
			ni.Volume = *item.Volume
		}
		view.Items = append(view.Items, ni)
	}
	return view
}

// SendNewOrderNotification отправляет письмо всем активным сотрудникам из списка.
// Ошибки только логируются: уведомление не влияет на заказ.
func (s *NotificationService) SendNewOrderNotification(ctx context.Context, orderID uint) {
	order, err := loadOrder(s.db.WithContext(ctx), orderID)
	if err != nil {
		log.Error().Err(err).Uint("order_id", orderID).Msg("❌ Не удалось загрузить заказ для уведомления")
		return
	}

	msg, err := s.RenderNewOrderNotification(order)
	if err != nil {
		log.Error().Err(err).Uint("order_id", orderID).Msg("❌ Не удалось отрендерить письмо о заказе")
		return
	}

	emails, err := s.settings.NotificationEmails(ctx)
	if err != nil {
		log.Error().Err(err).Uint("order_id", orderID).Msg("❌ Не удалось получить список получателей")
		return
	}
	if len(emails) == 0 {
		log.Warn().Uint("order_id", orderID).Msg("⚠️ Нет получателей уведомлений о заказах")
		return
	}
	msg.To = emails

	if err := s.mailer.Send(ctx, msg); err != nil {
		log.Error().Err(err).Uint("order_id", orderID).Msg("❌ Unable to send new order notification")
		return
	}
	log.Info().Uint("order_id", orderID).Int("recipients", len(emails)).Msg("📧 Уведомление о заказе отправлено")
}
