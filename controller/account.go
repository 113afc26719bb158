package controller

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"claude-relay/common/helper"
	"claude-relay/model"
)

// GetAccounts serves GET /api/account. Keys are redacted; the admin API is
// for managing credentials, not reading them back.
func GetAccounts(c *gin.Context) {
	accounts, err := model.ListAccounts()
	if err != nil {
		respondError(c, http.StatusInternalServerError, err.Error())
		return
	}
	for _, account := range accounts {
		account.Key = ""
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "data": accounts})
}

// AddAccount serves POST /api/account.
func AddAccount(c *gin.Context) {
	var account model.Account
	if err := c.ShouldBindJSON(&account); err != nil {
		respondError(c, http.StatusBadRequest, err.Error())
		return
	}
	if account.Provider == "" || account.Key == "" {
		respondError(c, http.StatusBadRequest, "provider and key are required")
		return
	}
	if account.Status == 0 {
		account.Status = model.AccountStatusEnabled
	}
	if account.Weight <= 0 {
		account.Weight = 1
	}
	if err := account.Insert(); err != nil {
		respondError(c, http.StatusInternalServerError, err.Error())
		return
	}
	accountPool.ForceRefresh(account.Provider)
	c.JSON(http.StatusOK, gin.H{"success": true, "data": gin.H{"id": account.Id}})
}

// UpdateAccount serves PUT /api/account/:id.
func UpdateAccount(c *gin.Context) {
	id, err := strconv.Atoi(c.Param("id"))
	if err != nil {
		respondError(c, http.StatusBadRequest, "invalid account id")
		return
	}
	account, err := model.GetAccountById(id)
	if err != nil {
		respondError(c, http.StatusNotFound, "account not found")
		return
	}

	var update model.Account
	if err := c.ShouldBindJSON(&update); err != nil {
		respondError(c, http.StatusBadRequest, err.Error())
		return
	}
	if update.Name != "" {
		account.Name = update.Name
	}
	if update.Key != "" {
		account.Key = update.Key
	}
	if update.BaseURL != "" {
		account.BaseURL = update.BaseURL
	}
	if update.Region != "" {
		account.Region = update.Region
	}
	if update.Weight > 0 {
		account.Weight = update.Weight
	}
	if update.Status != 0 {
		account.Status = update.Status
	}
	if err := account.Update(); err != nil {
		respondError(c, http.StatusInternalServerError, err.Error())
		return
	}
	accountPool.ForceRefresh(account.Provider)
	c.JSON(http.StatusOK, gin.H{"success": true})
}

// DeleteAccount serves DELETE /api/account/:id.
func DeleteAccount(c *gin.Context) {
	id, err := strconv.Atoi(c.Param("id"))
	if err != nil {
		respondError(c, http.StatusBadRequest, "invalid account id")
		return
	}
	account, err := model.GetAccountById(id)
	if err != nil {
		respondError(c, http.StatusNotFound, "account not found")
		return
	}
	if err := account.Delete(); err != nil {
		respondError(c, http.StatusInternalServerError, err.Error())
		return
	}
	accountPool.ForceRefresh(account.Provider)
	c.JSON(http.StatusOK, gin.H{"success": true})
}

// ResetAccountErrors serves POST /api/account/:id/reset. It clears the error
// counter so a previously failing credential re-enters rotation cleanly.
func ResetAccountErrors(c *gin.Context) {
	id, err := strconv.Atoi(c.Param("id"))
	if err != nil {
		respondError(c, http.StatusBadRequest, "invalid account id")
		return
	}
	if err := model.ResetAccountErrorCount(id); err != nil {
		respondError(c, http.StatusInternalServerError, err.Error())
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true})
}

func respondError(c *gin.Context, status int, message string) {
	c.JSON(status, gin.H{
		"success": false,
		"message": helper.MessageWithRequestId(message, c.GetString(helper.RequestIdKey)),
	})
}
