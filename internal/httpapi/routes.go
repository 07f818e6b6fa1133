package httpapi

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

// Register wires the JSON API onto r. Webhooks are registered by the caller.
func Register(r gin.IRouter, h Handlers) {
	r.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	r.GET("/readyz", h.Ready)

	v1 := r.Group("/v1")
	{
		v1.GET("/outcomes", h.ListOutcomeTypes)
		v1.POST("/dispositions", h.SubmitDisposition)

		q := v1.Group("/queue")
		{
			q.POST("/transitions", h.RecordTransition)
			q.POST("/enqueue", h.Enqueue)
		}
		v1.POST("/users/:user_id/reset", h.ResetUser)

		mon := v1.Group("/monitor")
		{
			mon.GET("/health", h.MonitorHealth)
			mon.POST("/run", h.RunMonitor)
		}

		reports := v1.Group("/reports")
		{
			reports.GET("/conversions", h.ConversionReport)
			reports.GET("/outcomes", h.OutcomeReport)
		}
	}
}
