package builtin

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"

	"planetoidgen/internal/agent"
	"planetoidgen/internal/messaging"
)

// ReportPath is the controller endpoint receiving finished tiles.
const ReportPath = "/internal/data/report"

type reportingSettings struct {
	Path string `yaml:"path"`
}

// DataReportingAgent tells the controller that a tile went through the
// pipeline. It is usually the last stage and reruns on every request.
type DataReportingAgent struct {
	url    string
	secret string
	client *http.Client
	logger *slog.Logger
}

func (a *DataReportingAgent) Title() string { return ReportingTitle }

func (a *DataReportingAgent) Description() string {
	return "Reports the finished tile to the controller for the requesting connection."
}

func (a *DataReportingAgent) Initialize(settings string, deps agent.Deps) error {
	s := reportingSettings{Path: ReportPath}
	if err := decodeSettings(ReportingTitle, settings, &s); err != nil {
		return err
	}
	if deps.ControllerURL == "" {
		return errors.Join(agent.ErrInvalidSettings, errors.New("controller url is not configured"))
	}

	deps = deps.WithDefaults()
	a.url = strings.TrimSuffix(deps.ControllerURL, "/") + "/" + strings.TrimPrefix(s.Path, "/")
	a.secret = deps.InternalSecret
	a.client = deps.HTTPClient
	a.logger = deps.Logger
	return nil
}

func (a *DataReportingAgent) Dependencies(z int16) ([]agent.Dependency, error) {
	return nil, nil
}

func (a *DataReportingAgent) Execute(ctx context.Context, job messaging.Job) error {
	body, err := messaging.EncodeJob(job)
	if err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, a.url, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	if a.secret != "" {
		req.Header.Set("Authorization", "Bearer "+a.secret)
	}

	a.logger.Debug("reporting tile", "job", job.String(), "connection_id", job.ConnectionID)
	resp, err := a.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusAccepted && resp.StatusCode != http.StatusOK {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("report endpoint returned status %d: %s", resp.StatusCode, strings.TrimSpace(string(msg)))
	}
	return nil
}
