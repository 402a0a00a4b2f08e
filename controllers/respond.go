package controllers

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/kendall-kelly/bistro-api/config"
	"github.com/kendall-kelly/bistro-api/middleware"
	"github.com/kendall-kelly/bistro-api/services"
	"go.uber.org/zap"
)

func respondOK(c *gin.Context, status int, data interface{}) {
	c.JSON(status, gin.H{
		"success": true,
		"data":    data,
	})
}

func respondError(c *gin.Context, status int, code, message string) {
	c.JSON(status, gin.H{
		"success": false,
		"error": gin.H{
			"code":    code,
			"message": message,
		},
	})
}

func respondBindError(c *gin.Context, err error) {
	c.JSON(http.StatusBadRequest, gin.H{
		"success": false,
		"error": gin.H{
			"code":    "VALIDATION_ERROR",
			"message": "Invalid request data",
			"details": err.Error(),
		},
	})
}

// respondEngineError maps an engine failure to its HTTP status. Conflicts and
// consistency breaches get a generic message; the detail only goes to the log.
func respondEngineError(c *gin.Context, err error) {
	engineErr, ok := services.AsEngineError(err)
	if !ok {
		config.GetLogger().Error("unexpected engine failure",
			zap.String("path", c.Request.URL.Path),
			zap.Error(err),
		)
		respondError(c, http.StatusInternalServerError, "INTERNAL_ERROR", "An unexpected error occurred")
		return
	}

	switch engineErr.Kind {
	case services.KindValidation:
		respondError(c, http.StatusBadRequest, engineErr.Code, engineErr.Message)
	case services.KindBusinessRule:
		respondError(c, http.StatusUnprocessableEntity, engineErr.Code, engineErr.Message)
	case services.KindNotFound:
		respondError(c, http.StatusNotFound, engineErr.Code, engineErr.Message)
	case services.KindConflict:
		config.GetLogger().Warn("request lost a concurrent update",
			zap.String("path", c.Request.URL.Path),
			zap.Error(err),
		)
		respondError(c, http.StatusConflict, engineErr.Code, "The order was modified concurrently, please try again")
	default:
		config.GetLogger().Error("consistency invariant breached",
			zap.String("path", c.Request.URL.Path),
			zap.Error(err),
		)
		respondError(c, http.StatusInternalServerError, engineErr.Code, "The request could not be completed, please try again")
	}
}

// parseIDParam reads a positive numeric path parameter, writing a 400 when it is malformed
func parseIDParam(c *gin.Context, name string) (uint, bool) {
	raw := c.Param(name)
	id, err := strconv.ParseUint(raw, 10, 64)
	if err != nil || id == 0 {
		respondError(c, http.StatusBadRequest, "INVALID_ID", "Invalid "+name+": "+raw)
		return 0, false
	}
	return uint(id), true
}

// actorName identifies the caller in audit rows: the profile name when loaded, else the token subject
func actorName(c *gin.Context) string {
	if user, err := middleware.GetCurrentUser(c); err == nil {
		return user.Name
	}
	if auth0ID, err := middleware.GetUserID(c); err == nil {
		return auth0ID
	}
	return "system"
}

func engine(c *gin.Context) (*services.Engine, bool) {
	e := services.GetEngine()
	if e == nil {
		respondError(c, http.StatusServiceUnavailable, "ENGINE_UNAVAILABLE", "Order engine is not initialized")
		return nil, false
	}
	return e, true
}
