package utils

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

// ErrorResponse define la estructura estándar para las respuestas de error.
type ErrorResponse struct {
	Message string `json:"message"`
}

// SendSuccess envía una respuesta exitosa con un payload de datos.
func SendSuccess(c *gin.Context, statusCode int, data interface{}) {
	c.JSON(statusCode, gin.H{
		"data": data,
	})
}

// SendError envía una respuesta de error con un formato estandarizado.
// data es opcional y se añade junto al error (p.ej. el estado de un probe).
func SendError(c *gin.Context, statusCode int, message string, data ...interface{}) {
	body := gin.H{
		"error": ErrorResponse{
			Message: message,
		},
	}
	if len(data) > 0 {
		body["data"] = data[0]
	}
	c.JSON(statusCode, body)
}

func SendServiceUnavailable(c *gin.Context, message string, data ...interface{}) {
	SendError(c, http.StatusServiceUnavailable, message, data...)
}
