// controller/key_controller.go
package controller

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	bastion_errors "github.com/stronghold-io/bastion/errors"
	"github.com/stronghold-io/bastion/keymanager"
	"github.com/stronghold-io/bastion/util"
)

type KeyController struct {
	manager *keymanager.Manager
}

func NewKeyController(manager *keymanager.Manager) *KeyController {
	return &KeyController{manager: manager}
}

// RegisterRoutes registers the API routes for key management
func (kc *KeyController) RegisterRoutes(r *gin.RouterGroup) {
	keys := r.Group("/keys")
	{
		keys.POST("", kc.CreateKey)
		keys.GET("", kc.ListKeys)
		keys.POST("/rotate", kc.RotateKey)
		keys.POST("/:id/retire", kc.RetireKey)
	}
	crypto := r.Group("/crypto")
	{
		crypto.POST("/encrypt", kc.EncryptFields)
		crypto.POST("/decrypt", kc.DecryptFields)
	}
}

type createKeyRequest struct {
	Algorithm string `json:"algorithm"`
}

// CreateKey endpoint
func (kc *KeyController) CreateKey(c *gin.Context) {
	var req createKeyRequest
	if err := c.ShouldBindJSON(&req); err != nil && c.Request.ContentLength > 0 {
		util.RespondWithError(c, http.StatusBadRequest, "Invalid key data", bastion_errors.ErrInvalidKeyData)
		return
	}

	info, err := kc.manager.CreateKey(c, req.Algorithm)
	if err != nil {
		if errors.Is(err, bastion_errors.ErrActiveKeyExists) {
			util.RespondWithError(c, http.StatusConflict, "An active key already exists", err)
		} else {
			util.RespondWithError(c, http.StatusInternalServerError, "Failed to create key", err)
		}
		return
	}

	c.JSON(http.StatusCreated, info)
}

// ListKeys endpoint
func (kc *KeyController) ListKeys(c *gin.Context) {
	keys, err := kc.manager.ListKeys(c)
	if err != nil {
		util.RespondWithError(c, http.StatusInternalServerError, "Failed to list keys", err)
		return
	}
	c.JSON(http.StatusOK, keys)
}

// RotateKey endpoint
func (kc *KeyController) RotateKey(c *gin.Context) {
	info, err := kc.manager.RotateKey(c)
	if err != nil {
		if errors.Is(err, bastion_errors.ErrNoActiveKey) {
			util.RespondWithError(c, http.StatusConflict, "No active key to rotate", err)
		} else {
			util.RespondWithError(c, http.StatusInternalServerError, "Failed to rotate key", err)
		}
		return
	}

	c.JSON(http.StatusOK, info)
}

// RetireKey endpoint
func (kc *KeyController) RetireKey(c *gin.Context) {
	err := kc.manager.RetireKey(c, c.Param("id"))
	if err != nil {
		switch {
		case errors.Is(err, bastion_errors.ErrKeyNotFound):
			util.RespondWithError(c, http.StatusNotFound, "Key not found", err)
		case errors.Is(err, bastion_errors.ErrKeyNotRotated):
			util.RespondWithError(c, http.StatusConflict, "Key is still active: rotate first", err)
		case errors.Is(err, bastion_errors.ErrKeyRetired):
			util.RespondWithError(c, http.StatusConflict, "Key is already retired", err)
		default:
			util.RespondWithError(c, http.StatusInternalServerError, "Failed to retire key", err)
		}
		return
	}

	c.Status(http.StatusNoContent)
}

type fieldCryptoRequest struct {
	Data   map[string]interface{} `json:"data" binding:"required"`
	Fields []string               `json:"fields" binding:"required"`
}

// EncryptFields endpoint
func (kc *KeyController) EncryptFields(c *gin.Context) {
	var req fieldCryptoRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		util.RespondWithError(c, http.StatusBadRequest, "Invalid encryption request", err)
		return
	}

	encrypted, err := kc.manager.EncryptFields(c, req.Data, req.Fields)
	if err != nil {
		if errors.Is(err, bastion_errors.ErrNoActiveKey) {
			util.RespondWithError(c, http.StatusConflict, "No active encryption key", err)
		} else {
			util.RespondWithError(c, http.StatusInternalServerError, "Failed to encrypt fields", err)
		}
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": encrypted})
}

// DecryptFields endpoint
func (kc *KeyController) DecryptFields(c *gin.Context) {
	var req fieldCryptoRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		util.RespondWithError(c, http.StatusBadRequest, "Invalid decryption request", err)
		return
	}

	decrypted, err := kc.manager.DecryptFields(c, req.Data, req.Fields)
	if err != nil {
		util.RespondWithError(c, http.StatusInternalServerError, "Failed to decrypt fields", err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": decrypted})
}
