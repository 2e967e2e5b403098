package api

import (
	"marketplace-service/internal/apperr"
	"marketplace-service/internal/util"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

type successResponse struct {
	Success bool        `json:"success"`
	Data    interface{} `json:"data"`
}

type errorResponse struct {
	Success bool   `json:"success"`
	Error   string `json:"error"`
	Message string `json:"message"`
}

func respond(c *gin.Context, status int, data interface{}) {
	c.JSON(status, successResponse{Success: true, Data: data})
}

func respondError(c *gin.Context, err error) {
	status := apperr.HTTPStatus(err)
	code, message := apperr.CodeAndMessage(err)
	if status >= 500 {
		util.GetLogger().Error("Request failed",
			zap.String("method", c.Request.Method),
			zap.String("path", c.FullPath()),
			zap.Error(err))
	}
	c.JSON(status, errorResponse{Error: code, Message: message})
}

func abortWithError(c *gin.Context, err error) {
	respondError(c, err)
	c.Abort()
}
