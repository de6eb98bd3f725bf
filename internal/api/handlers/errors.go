package handlers

import (
	"github.com/gin-gonic/gin"

	"bess-intraday/internal/api/models"
)

func abortWith(c *gin.Context, status int, code, msg string) {
	c.AbortWithStatusJSON(status, models.ErrorResponse{
		Error: models.ErrorDetail{Code: code, Message: msg},
	})
}
