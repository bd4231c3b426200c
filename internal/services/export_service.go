package services

import (
	"bytes"
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/xuri/excelize/v2"

	"fscabinet/server/internal/models"
)

const (
	exportSheet    = "Замовлення"
	exportMaxRows  = 10000
	exportPageSize = 500
)

var exportHeaders = []string{
	"ID", "Дата", "Ім'я", "Телефон", "Спосіб доставки", "Час самовивозу", "Адреса",
	"Спосіб оплати", "Позиції", "Загальна сума", "Тип оплати", "Розмір оплати", "Статус оплати",
	"Кількість осіб", "Коментар", "Відхилено",
}

// ExportService выгружает заказы в XLSX для бухгалтерии
type ExportService struct {
	orders *OrderService
	loc    *time.Location
}

// NewExportService создает сервис выгрузки
func NewExportService(orders *OrderService, loc *time.Location) *ExportService {
	if loc == nil {
		loc = time.UTC
	}
	return &ExportService{orders: orders, loc: loc}
}

// ExportOrdersXLSX выгружает заказы по фильтру (не больше exportMaxRows строк)
func (s *ExportService) ExportOrdersXLSX(ctx context.Context, filter OrderFilter) ([]byte, int, error) {
	f := excelize.NewFile()
	defer f.Close()

	if err := f.SetSheetName(f.GetSheetName(0), exportSheet); err != nil {
		return nil, 0, fmt.Errorf("ошибка создания листа: %w", err)
	}

	headerStyle, err := f.NewStyle(&excelize.Style{Font: &excelize.Font{Bold: true}})
	if err != nil {
		return nil, 0, fmt.Errorf("ошибка создания стиля: %w", err)
	}
	for i, h := range exportHeaders {
		cell, _ := excelize.CoordinatesToCellName(i+1, 1)
		if err := f.SetCellValue(exportSheet, cell, h); err != nil {
			return nil, 0, err
		}
	}
	lastHeader, _ := excelize.CoordinatesToCellName(len(exportHeaders), 1)
	if err := f.SetCellStyle(exportSheet, "A1", lastHeader, headerStyle); err != nil {
		return nil, 0, err
	}

	row := 2
	filter.Limit = exportPageSize
	filter.Offset = 0
	for row-2 < exportMaxRows {
		orders, _, err := s.orders.ListOrders(ctx, filter)
		if err != nil {
			return nil, 0, err
		}
		for i := range orders {
			values := s.orderRow(&orders[i])
			if err := f.SetSheetRow(exportSheet, fmt.Sprintf("A%d", row), &values); err != nil {
				return nil, 0, err
			}
			row++
		}
		if len(orders) < exportPageSize {
			break
		}
		filter.Offset += exportPageSize
	}

	_ = f.SetColWidth(exportSheet, "A", "A", 8)
	_ = f.SetColWidth(exportSheet, "B", "H", 20)
	_ = f.SetColWidth(exportSheet, "I", "I", 60)

	var buf bytes.Buffer
	if err := f.Write(&buf); err != nil {
		return nil, 0, fmt.Errorf("ошибка записи XLSX: %w", err)
	}

	log.Info().Int("orders", row-2).Msg("📊 Выгрузка заказов готова")
	return buf.Bytes(), row - 2, nil
}

func (s *ExportService) orderRow(order *models.Order) []interface{} {
	var name, phone string
	if order.Customer != nil {
		name = order.Customer.Name
		phone = order.Customer.PhoneNumber
	}

	var pickup string
	if order.SelfPickupTime != nil {
		pickup = FormatUkrainianDateTime(order.SelfPickupTime.In(s.loc))
	}

	var address string
	if a := order.DeliveryAddress; a != nil {
		parts := []string{a.Settlement, a.Street, a.BuildingNumber}
		if a.ApartmentNumber != "" {
			parts = append(parts, "кв. "+a.ApartmentNumber)
		}
		address = strings.Join(parts, ", ")
	}

	lines := make([]string, 0, len(order.Items))
	for _, item := range order.Items {
		line := fmt.Sprintf("%s - %d шт.", item.Title, item.Count)
		if len(item.Additions) > 0 {
			titles := make([]string, 0, len(item.Additions))
			for _, a := range item.Additions {
				titles = append(titles, a.Title)
			}
			line += " (" + strings.Join(titles, ", ") + ")"
		}
		lines = append(lines, line)
	}

	var trxType, trxAmount, trxStatus string
	if order.Transaction != nil {
		trxType = order.Transaction.Type.Label()
		trxAmount = order.Transaction.Amount.String()
		trxStatus = order.Transaction.Status.Label()
	}

	var peoples interface{}
	if order.PeoplesCount != nil {
		peoples = *order.PeoplesCount
	}

	total, _ := order.TotalAmount().Float64()
	rejected := "Ні"
	if order.IsRejected {
		rejected = "Так"
	}

	return []interface{}{
		order.ID,
		order.CreatedAt.In(s.loc).Format("02.01.2006 15:04"),
		name,
		phone,
		order.DeliveryMethod.Label(),
		pickup,
		address,
		order.PaymentMethod.Label(),
		strings.Join(lines, "\n"),
		total,
		trxType,
		trxAmount,
		trxStatus,
		peoples,
		order.CustomerComment,
		rejected,
	}
}
