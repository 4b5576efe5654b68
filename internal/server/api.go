// Package server provides the hubwatch Gin-based REST API: the health
// report, usage aggregate queries, alert listing/lifecycle and the
// on-demand ingestion triggers. The routes are thin marshaling over the
// orchestrator and store — no business logic lives here.
package server

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/velden/hubwatch/internal/models"
	"github.com/velden/hubwatch/internal/orchestrator"
	"github.com/velden/hubwatch/internal/store"
	"github.com/velden/hubwatch/internal/usage"
)

// API bundles the dependencies the route handlers need.
type API struct {
	Store *store.Store
	Orch  *orchestrator.Orchestrator
	Agg   *usage.Aggregator
}

// RegisterRoutes wires the REST API onto the given engine.
func RegisterRoutes(r *gin.Engine, api *API) {
	r.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	g := r.Group("/api")
	{
		g.GET("/health", api.handleHealth)

		g.GET("/usage/global", api.handleUsageGlobal)
		g.GET("/usage/providers", api.handleUsageProviders)
		g.GET("/usage/agents", api.handleUsageAgents)
		g.GET("/usage/models", api.handleUsageModels)

		g.GET("/alerts", api.handleAlerts)
		g.POST("/alerts/:id/ack", api.handleAlertAction("ack"))
		g.POST("/alerts/:id/resolve", api.handleAlertAction("resolve"))

		g.GET("/workflows", api.handleWorkflows)
		g.GET("/agents", api.handleAgents)
		g.GET("/events", api.handleEvents)

		g.POST("/ingest/sessions", api.handleIngestSessions)
		g.POST("/seed", api.handleSeed)
	}
}

// handleHealth returns the composite runtime health view.
func (a *API) handleHealth(c *gin.Context) {
	c.JSON(http.StatusOK, a.Orch.Health())
}

// window resolves the ?range= query parameter, defaulting to 24h.
func window(c *gin.Context) (usage.Window, bool) {
	w, err := usage.ParseRange(c.Query("range"), time.Now())
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return usage.Window{}, false
	}
	return w, true
}

func (a *API) handleUsageGlobal(c *gin.Context) {
	w, ok := window(c)
	if !ok {
		return
	}
	totals, err := a.Agg.Totals(w)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": totals})
}

func (a *API) handleUsageProviders(c *gin.Context) {
	w, ok := window(c)
	if !ok {
		return
	}
	byProv, err := a.Agg.ByProvider(w)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": byProv})
}

func (a *API) handleUsageAgents(c *gin.Context) {
	w, ok := window(c)
	if !ok {
		return
	}
	byAgent, err := a.Agg.ByAgent(w)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": byAgent})
}

func (a *API) handleUsageModels(c *gin.Context) {
	w, ok := window(c)
	if !ok {
		return
	}
	byModel, err := a.Agg.ByModel(w)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": byModel})
}

// handleAlerts lists alert events, newest first.
//
//	GET /api/alerts?status=open&limit=20
func (a *API) handleAlerts(c *gin.Context) {
	limit := 0
	if ls := c.Query("limit"); ls != "" {
		n, err := strconv.Atoi(ls)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid limit"})
			return
		}
		limit = n
	}
	alerts, err := a.Store.Alerts(models.AlertStatus(c.Query("status")), limit)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": alerts})
}

// handleAlertAction applies the ack/resolve lifecycle transitions.
func (a *API) handleAlertAction(action string) gin.HandlerFunc {
	return func(c *gin.Context) {
		id, err := strconv.ParseUint(c.Param("id"), 10, 64)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid id"})
			return
		}
		if err := a.Store.UpdateAlertStatus(uint(id), action); err != nil {
			c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusOK, gin.H{"id": id, "action": action})
	}
}

func (a *API) handleWorkflows(c *gin.Context) {
	ws, err := a.Store.Workflows()
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": ws})
}

func (a *API) handleAgents(c *gin.Context) {
	as, err := a.Store.Agents()
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": as})
}

func (a *API) handleEvents(c *gin.Context) {
	events, err := a.Store.Events(100)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": events})
}

// handleIngestSessions triggers one parse pass over the session logs.
func (a *API) handleIngestSessions(c *gin.Context) {
	n, err := a.Orch.ParseSessions()
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"ingested": n})
}

// handleSeed triggers the seed fallback on demand.
func (a *API) handleSeed(c *gin.Context) {
	seeded, err := a.Orch.Seed()
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"seeded": seeded})
}
