package main

import (
	"net/http"

	"softphone-dialer/internal/httpapi"
	"softphone-dialer/internal/rbac"

	"github.com/gin-gonic/gin"
)

// registerRoutes wires HTTP routes to handlers.
// Keep this file free of business logic. Handlers should delegate to internal modules.
func registerRoutes(r *gin.Engine, h httpapi.Handlers, authMW gin.HandlerFunc, ws http.HandlerFunc, health gin.HandlerFunc) {
	// public
	r.GET("/healthz", health)

	authGroup := r.Group("/auth")
	{
		authGroup.POST("/login", h.Login)
		authGroup.POST("/refresh", h.Refresh)
	}

	// protected API group
	v1 := r.Group("/v1")
	v1.Use(authMW)
	{
		v1.GET("/me", h.Me)

		// Only the line's own agent, or a supervisor acting for them, may
		// drive the dialer or listen to its events.
		line := []gin.HandlerFunc{
			rbac.RequireAgent(h.AgentID),
			rbac.RequireAnyRole(rbac.RoleAgent, rbac.RoleSupervisor),
		}

		v1.GET("/ws", append(line, func(c *gin.Context) { ws(c.Writer, c.Request) })...)

		d := v1.Group("/dialer")
		d.Use(line...)
		{
			d.GET("/state", h.GetState)

			d.GET("/queue", h.GetQueue)
			d.POST("/queue/refresh", h.RefreshQueue)
			d.DELETE("/queue/:id", h.RemoveCall)
			d.POST("/queue/:id/schedule", h.ScheduleCall)
			d.POST("/filter", h.SetFilter)

			d.POST("/select/:id", h.SelectCall)
			d.DELETE("/select", h.DeselectCall)

			d.POST("/calls/:id/place", h.PlaceCall)
			d.POST("/calls/number", h.PlaceCallByNumber)
			d.POST("/calls/record", h.PlaceCallForRecord)

			d.POST("/hangup", h.HangUp)
			d.POST("/transfer", h.Transfer)
			d.POST("/digits", h.SendDigits)
			d.POST("/resolve", h.Resolve)
			d.POST("/outcome", h.LogOutcome)

			d.POST("/autodial/start", h.StartAutoDial)
			d.POST("/autodial/stop", h.StopAutoDial)

			d.GET("/report", h.Report)
		}

		if h.Demo != nil {
			demo := d.Group("/demo")
			{
				demo.POST("/ring", h.DemoRing)
				demo.POST("/remote-hangup", h.DemoRemoteHangup)
				demo.POST("/fail", h.DemoFail)
			}
		}
	}
}
