package ingest

import (
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"time"

	"github.com/velden/hubwatch/internal/health"
	"github.com/velden/hubwatch/internal/models"
	"github.com/velden/hubwatch/internal/store"
)

// deployApp is one application entry in the Coolify-style status response.
type deployApp struct {
	Name           string  `json:"name"`
	Status         string  `json:"status"`
	RuntimeSeconds float64 `json:"runtime_seconds"`
}

// DeployPoller fetches deployment status from a Coolify-style endpoint
// and mirrors each application as an agent row keyed "deploy:<name>".
type DeployPoller struct {
	store  *store.Store
	state  *health.State
	url    string
	client *http.Client
}

// NewDeployPoller builds a poller with a bounded-timeout HTTP client.
// A timeout is treated exactly like a network error: mark the check
// unreachable and wait for the next tick.
func NewDeployPoller(st *store.Store, hs *health.State, url string, timeout time.Duration) *DeployPoller {
	return &DeployPoller{
		store:  st,
		state:  hs,
		url:    url,
		client: &http.Client{Timeout: timeout},
	}
}

// Enabled reports whether a deploy endpoint is configured.
func (dp *DeployPoller) Enabled() bool { return dp.url != "" }

// Ingest runs one deploy-status poll attempt. Failures never retry
// synchronously; they flag the health state and yield to the next tick.
func (dp *DeployPoller) Ingest() {
	if !dp.Enabled() {
		return
	}

	apps, err := dp.fetch()
	if err != nil {
		log.Printf("[deploy] %v", err)
		dp.state.SetCheck(health.SourceCoolify, health.CheckUnreachable)
		dp.state.RaiseIssue(health.IssueCoolifyUnreachable)
		if werr := dp.store.RecordEvent("warning", "deploy", "deploy status fetch failed", err.Error()); werr != nil {
			log.Printf("[deploy] event write failed: %v", werr)
		}
		return
	}

	now := time.Now()
	for _, app := range apps {
		agent := models.Agent{
			SessionKey:     "deploy:" + app.Name,
			AgentModel:     "",
			RuntimeSeconds: app.RuntimeSeconds,
			Status:         mapDeployStatus(app.Status),
			LastSeen:       now,
			CurrentTask:    app.Status,
		}
		if err := dp.store.UpsertAgent(agent); err != nil {
			log.Printf("[deploy] upsert %s: %v", app.Name, err)
		}
	}

	dp.state.SetCheck(health.SourceCoolify, health.CheckOK)
	dp.state.ClearIssue(health.IssueCoolifyUnreachable)
	dp.state.MarkActive(health.SourceCoolify)
	log.Printf("[deploy] %d applications", len(apps))
}

func (dp *DeployPoller) fetch() ([]deployApp, error) {
	resp, err := dp.client.Get(dp.url)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		return nil, fmt.Errorf("deploy endpoint returned %d", resp.StatusCode)
	}

	var apps []deployApp
	if err := json.NewDecoder(resp.Body).Decode(&apps); err != nil {
		return nil, fmt.Errorf("decoding deploy status: %w", err)
	}
	return apps, nil
}

// mapDeployStatus folds Coolify application states onto the agent enum.
func mapDeployStatus(s string) models.AgentStatus {
	switch s {
	case "running", "healthy":
		return models.AgentActive
	case "restarting", "starting", "deploying":
		return models.AgentWaiting
	case "exited", "stopped":
		return models.AgentOffline
	case "degraded", "unhealthy":
		return models.AgentBlocked
	default:
		return models.AgentIdle
	}
}
