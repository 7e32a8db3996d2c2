package http

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/davicafu/auctionsearch/pkg/utils"
)

// ReadinessChecker lo implementa el startup.Sequencer.
type ReadinessChecker interface {
	IsReady() bool
}

// ItemCounter da el número de items proyectados (ItemRepository lo cumple).
type ItemCounter interface {
	Count(ctx context.Context) (int64, error)
}

type HealthHandler struct {
	ready         ReadinessChecker
	consumerState func() string
	items         ItemCounter
}

// NewHealthHandler: consumerState e items pueden ser nil.
func NewHealthHandler(ready ReadinessChecker, consumerState func() string, items ItemCounter) *HealthHandler {
	return &HealthHandler{ready: ready, consumerState: consumerState, items: items}
}

// Health responde mientras el proceso esté vivo, aunque las dependencias no lo estén.
func (h *HealthHandler) Health(c *gin.Context) {
	utils.SendSuccess(c, http.StatusOK, gin.H{"status": "ok"})
}

// Ready responde 503 hasta que el arranque haya terminado.
func (h *HealthHandler) Ready(c *gin.Context) {
	status := gin.H{"ready": h.ready.IsReady()}
	if h.consumerState != nil {
		status["consumer"] = h.consumerState()
	}

	if !h.ready.IsReady() {
		utils.SendServiceUnavailable(c, "starting", status)
		return
	}

	if h.items != nil {
		ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
		defer cancel()
		n, err := h.items.Count(ctx)
		if err != nil {
			utils.SendServiceUnavailable(c, "projection store unavailable", status)
			return
		}
		status["items"] = n
	}

	utils.SendSuccess(c, http.StatusOK, status)
}
