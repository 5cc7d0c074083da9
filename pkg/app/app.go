// Package app defines the application manifest uploaded with each deploy.
package app

import (
	"encoding/json"
	"fmt"
)

// CronJob is a scheduled command declared by an app.
type CronJob struct {
	Name    string `json:"name"`
	Run     string `json:"run"`
	IsAsync bool   `json:"is_async"`
}

// App is the manifest carried in the "app" field of a deploy upload.
type App struct {
	Name     string            `json:"name"`
	Port     *int16            `json:"port"`
	Domains  []string          `json:"domains"`
	Env      map[string]string `json:"env"`
	CronJobs []CronJob         `json:"cron_jobs"`
}

// Parse decodes a manifest from its JSON representation.
func Parse(data []byte) (*App, error) {
	var a App
	if err := json.Unmarshal(data, &a); err != nil {
		return nil, fmt.Errorf("failed to parse app manifest: %w", err)
	}
	if a.Name == "" {
		return nil, fmt.Errorf("app manifest is missing a name")
	}
	return &a, nil
}
