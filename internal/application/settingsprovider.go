package application

import (
	"strings"
	"sync"

	"github.com/ericfisherdev/issuesync/internal/domain/model"
)

// RequestDefaults fill in blank target fields of incoming requests.
type RequestDefaults struct {
	Owner        string
	Repo         string
	ProjectTitle string
}

// SettingsProvider enables runtime hot-swap of the run settings and request
// defaults. It holds a mutex-protected copy of both so a configuration reload
// takes effect on the next request without restarting the process. Runs
// already in flight keep the settings value they were started with.
type SettingsProvider struct {
	mu       sync.RWMutex
	settings model.RunSettings
	defaults RequestDefaults
}

// NewSettingsProvider creates a provider with the given initial values.
func NewSettingsProvider(settings model.RunSettings, defaults RequestDefaults) *SettingsProvider {
	return &SettingsProvider{
		settings: settings,
		defaults: defaults,
	}
}

// Settings returns the current run settings.
func (p *SettingsProvider) Settings() model.RunSettings {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.settings
}

// Defaults returns the current request defaults.
func (p *SettingsProvider) Defaults() RequestDefaults {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.defaults
}

// Replace swaps both values. The next caller of Settings() or Defaults()
// receives the new values.
func (p *SettingsProvider) Replace(settings model.RunSettings, defaults RequestDefaults) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.settings = settings
	p.defaults = defaults
}

// HasToken returns true if the current settings carry an access token.
func (p *SettingsProvider) HasToken() bool {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return strings.TrimSpace(p.settings.Token) != ""
}

// ApplyDefaults returns req with blank owner, repo and project title replaced
// by the current defaults.
func (p *SettingsProvider) ApplyDefaults(req model.SyncRequest) model.SyncRequest {
	d := p.Defaults()
	return req.WithDefaults(d.Owner, d.Repo, d.ProjectTitle)
}
