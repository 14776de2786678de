package api

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"

	"csgo-case-tracker/internal/models"
	"csgo-case-tracker/internal/settings"
	"csgo-case-tracker/internal/steam"
	"csgo-case-tracker/internal/tracker"
	"csgo-case-tracker/internal/websocket"
)

type APIHandler struct {
	db       *gorm.DB
	tracker  *tracker.Tracker
	settings *settings.Store
	hub      *websocket.Hub
	log      *logrus.Logger
}

func SetupRoutes(r *gin.RouterGroup, db *gorm.DB, trk *tracker.Tracker, store *settings.Store, hub *websocket.Hub, log *logrus.Logger) {
	handler := &APIHandler{
		db:       db,
		tracker:  trk,
		settings: store,
		hub:      hub,
		log:      log,
	}

	accounts := r.Group("/accounts")
	{
		accounts.GET("", handler.ListAccounts)
		accounts.POST("", handler.AddAccount)
		accounts.DELETE("/:id", handler.DeleteAccount)
		accounts.GET("/:id/cases", handler.GetAccountCases)
		accounts.GET("/:id/history", handler.GetAccountHistory)
		accounts.POST("/:id/refresh", handler.RefreshAccount)
	}

	r.POST("/refresh", handler.RefreshAll)
	r.GET("/summary", handler.GetSummary)

	settingsRoutes := r.Group("/settings")
	{
		settingsRoutes.GET("", handler.GetSettings)
		settingsRoutes.PUT("", handler.UpdateSettings)
	}
}

type accountView struct {
	models.Account
	CaseCount  int     `json:"case_count"`
	TotalValue float64 `json:"total_value"`
}

func (h *APIHandler) ListAccounts(c *gin.Context) {
	var accounts []models.Account
	if err := h.db.Order("id").Find(&accounts).Error; err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to list accounts"})
		return
	}

	views := make([]accountView, 0, len(accounts))
	for _, account := range accounts {
		view := accountView{Account: account}

		var cases []models.CaseItem
		if err := h.db.Where("account_id = ?", account.ID).Find(&cases).Error; err == nil {
			for _, item := range cases {
				view.CaseCount += item.Quantity
				if item.UnitPrice != nil {
					view.TotalValue += *item.UnitPrice * float64(item.Quantity)
				}
			}
		}
		views = append(views, view)
	}

	c.JSON(http.StatusOK, gin.H{"accounts": views})
}

func (h *APIHandler) AddAccount(c *gin.Context) {
	var body struct {
		Identifier string `json:"identifier" binding:"required"`
	}
	if err := c.ShouldBindJSON(&body); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "identifier is required"})
		return
	}

	account, err := h.tracker.AddAccount(c.Request.Context(), body.Identifier)
	if err != nil {
		status := http.StatusInternalServerError
		switch {
		case errors.Is(err, steam.ErrIdentityNotFound), errors.Is(err, steam.ErrInvalidFormat):
			status = http.StatusNotFound
		case errors.Is(err, steam.ErrMissingCredential):
			status = http.StatusPreconditionFailed
		}
		c.JSON(status, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusCreated, gin.H{"account": account})
}

func (h *APIHandler) DeleteAccount(c *gin.Context) {
	var account models.Account
	if err := h.db.First(&account, c.Param("id")).Error; err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "Account not found"})
		return
	}

	h.db.Where("account_id = ?", account.ID).Delete(&models.CaseItem{})
	h.db.Where("account_id = ?", account.ID).Delete(&models.ValueSnapshot{})
	if err := h.db.Delete(&account).Error; err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to delete account"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"message": "Account deleted"})
}

func (h *APIHandler) GetAccountCases(c *gin.Context) {
	var account models.Account
	if err := h.db.First(&account, c.Param("id")).Error; err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "Account not found"})
		return
	}

	var cases []models.CaseItem
	if err := h.db.Where("account_id = ?", account.ID).Order("market_hash_name").Find(&cases).Error; err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to load cases"})
		return
	}

	currency := h.settings.Settings().Currency
	type caseView struct {
		models.CaseItem
		DisplayPrice string `json:"display_price"`
	}
	views := make([]caseView, 0, len(cases))
	for _, item := range cases {
		views = append(views, caseView{
			CaseItem:     item,
			DisplayPrice: steam.FormatPrice(item.UnitPrice, currency),
		})
	}

	c.JSON(http.StatusOK, gin.H{"account": account, "cases": views})
}

func (h *APIHandler) GetAccountHistory(c *gin.Context) {
	var snapshots []models.ValueSnapshot
	err := h.db.Where("account_id = ?", c.Param("id")).Order("taken_at ASC").Find(&snapshots).Error
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to load history"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"history": snapshots})
}

func (h *APIHandler) RefreshAccount(c *gin.Context) {
	var account models.Account
	if err := h.db.First(&account, c.Param("id")).Error; err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "Account not found"})
		return
	}

	report, err := h.tracker.RefreshAccount(c.Request.Context(), account.ID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"report": report})
}

func (h *APIHandler) RefreshAll(c *gin.Context) {
	summary, err := h.tracker.RefreshAll(c.Request.Context())
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"summary": summary})
}

func (h *APIHandler) GetSummary(c *gin.Context) {
	var cases []models.CaseItem
	if err := h.db.Find(&cases).Error; err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to load cases"})
		return
	}

	type lineItem struct {
		MarketHashName string   `json:"market_hash_name"`
		Quantity       int      `json:"quantity"`
		UnitPrice      *float64 `json:"unit_price"`
		Subtotal       float64  `json:"subtotal"`
	}
	byName := make(map[string]*lineItem)
	totalCases := 0
	totalValue := 0.0

	for _, item := range cases {
		line, ok := byName[item.MarketHashName]
		if !ok {
			line = &lineItem{MarketHashName: item.MarketHashName, UnitPrice: item.UnitPrice}
			byName[item.MarketHashName] = line
		}
		line.Quantity += item.Quantity
		totalCases += item.Quantity
		if item.UnitPrice != nil {
			line.Subtotal += *item.UnitPrice * float64(item.Quantity)
			totalValue += *item.UnitPrice * float64(item.Quantity)
		}
	}

	lines := make([]lineItem, 0, len(byName))
	for _, line := range byName {
		lines = append(lines, *line)
	}

	currency := h.settings.Settings().Currency
	c.JSON(http.StatusOK, gin.H{
		"total_cases":   totalCases,
		"total_value":   totalValue,
		"display_total": steam.FormatPrice(&totalValue, currency),
		"currency":      currency,
		"items":         lines,
	})
}

func (h *APIHandler) GetSettings(c *gin.Context) {
	overrides, err := h.settings.All()
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to load settings"})
		return
	}
	if key, ok := overrides[settings.KeyAPIKey]; ok && key != "" {
		overrides[settings.KeyAPIKey] = "********"
	}
	c.JSON(http.StatusOK, gin.H{"settings": overrides})
}

func (h *APIHandler) UpdateSettings(c *gin.Context) {
	var body map[string]string
	if err := c.ShouldBindJSON(&body); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid settings payload"})
		return
	}

	for key, value := range body {
		if err := h.settings.Set(key, value); err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to save setting " + key})
			return
		}
	}
	c.JSON(http.StatusOK, gin.H{"message": "Settings updated"})
}
