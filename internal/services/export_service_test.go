package services

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"

	"fscabinet/server/internal/models"
)

func TestExportOrdersXLSX(t *testing.T) {
	env := newTestEnv(t)
	env.fillCart(t, testSession)
	pickup := env.createOrder(t, testSession, selfPickupRequest(models.PaymentCash))
	env.fillCart(t, otherSession)
	courier := env.createOrder(t, otherSession, courierRequest(models.PaymentLiqPay))

	export := NewExportService(env.orders, testLoc)
	data, count, err := export.ExportOrdersXLSX(env.ctx, OrderFilter{})
	require.NoError(t, err)
	assert.Equal(t, 2, count)

	f, err := excelize.OpenReader(bytes.NewReader(data))
	require.NoError(t, err)
	defer f.Close()

	rows, err := f.GetRows(exportSheet)
	require.NoError(t, err)
	require.Len(t, rows, 3)
	assert.Equal(t, exportHeaders[:4], rows[0][:4])

	byID := map[string][]string{}
	for _, row := range rows[1:] {
		byID[row[0]] = row
	}

	pickupRow := byID[itoa(pickup.ID)]
	require.NotNil(t, pickupRow)
	assert.Equal(t, "Олена", pickupRow[2])
	assert.Equal(t, "Самовивіз", pickupRow[4])
	assert.Contains(t, pickupRow[8], "Капучино - 1 шт.")
	assert.Equal(t, "30", pickupRow[9])

	courierRow := byID[itoa(courier.ID)]
	require.NotNil(t, courierRow)
	assert.Equal(t, "Київ, Хрещатик, 1, кв. 12", courierRow[6])
	assert.Equal(t, "LiqPay", courierRow[7])
	assert.Equal(t, "Повна оплата", courierRow[10])
	assert.Equal(t, "Не оплачено", courierRow[12])
}

func TestExportOrdersXLSXAppliesFilter(t *testing.T) {
	env := newTestEnv(t)
	env.fillCart(t, testSession)
	env.createOrder(t, testSession, selfPickupRequest(models.PaymentCash))

	rejected := true
	export := NewExportService(env.orders, testLoc)
	data, count, err := export.ExportOrdersXLSX(env.ctx, OrderFilter{IsRejected: &rejected})
	require.NoError(t, err)
	assert.Zero(t, count)

	f, err := excelize.OpenReader(bytes.NewReader(data))
	require.NoError(t, err)
	defer f.Close()
	rows, err := f.GetRows(exportSheet)
	require.NoError(t, err)
	assert.Len(t, rows, 1)
}
