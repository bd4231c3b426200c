package api

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"fscabinet/server/internal/services"
)

// StaffController - управление сотрудниками (только суперпользователь)
type StaffController struct {
	auth *services.AuthService
}

// NewStaffController создает контроллер сотрудников
func NewStaffController(auth *services.AuthService) *StaffController {
	return &StaffController{auth: auth}
}

// GetStaff возвращает список сотрудников
// GET /api/v1/admin/staff
func (sc *StaffController) GetStaff(c *gin.Context) {
	staff, err := sc.auth.ListStaff(c.Request.Context())
	if err != nil {
		respondError(c, err)
		return
	}
	out := make([]map[string]interface{}, 0, len(staff))
	for i := range staff {
		out = append(out, staff[i].ToMap())
	}
	c.JSON(http.StatusOK, gin.H{"staff": out, "count": len(out)})
}

// CreateStaff создает сотрудника
// POST /api/v1/admin/staff
func (sc *StaffController) CreateStaff(c *gin.Context) {
	var req services.CreateStaffRequest
	if !bindJSON(c, &req) {
		return
	}
	staff, err := sc.auth.CreateStaff(c.Request.Context(), req)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, staff.ToMap())
}

// UpdateStaff изменяет сотрудника (email, пароль, активность, роль)
// PUT /api/v1/admin/staff/:id
func (sc *StaffController) UpdateStaff(c *gin.Context) {
	var req services.UpdateStaffRequest
	if !bindJSON(c, &req) {
		return
	}
	staff, err := sc.auth.UpdateStaff(c.Request.Context(), c.Param("id"), req)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, staff.ToMap())
}
