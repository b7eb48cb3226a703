// Package roster loads the static Agent Profile definitions of spec §3
// (id, display name, system prompt template, voice id, default emotion)
// from YAML files on disk, the same format scenario templates use.
package roster

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"gopkg.in/yaml.v3"

	"github.com/gramyfied/eloquence-orchestrator/pkg/orchestrator"
)

// profileFile mirrors orchestrator.AgentProfile's on-disk shape.
type profileFile struct {
	ID               string             `yaml:"id"`
	DisplayName      string             `yaml:"display_name"`
	SystemPromptTmpl string             `yaml:"system_prompt_template"`
	VoiceID          orchestrator.Voice `yaml:"voice_id"`
	DefaultEmotion   orchestrator.Emotion `yaml:"default_emotion"`
}

// Roster is a directory of agent_profile_id.yaml files, loaded lazily and
// cached for the life of the process; profiles are static per spec §3, so
// there is nothing to invalidate the cache for.
type Roster struct {
	dir string

	mu       sync.RWMutex
	profiles map[string]orchestrator.AgentProfile
}

// New builds a Roster reading from dir. A zero-value default profile is
// always registered under the empty id, for sessions started with no
// agent_profile_id.
func New(dir string) *Roster {
	return &Roster{
		dir: dir,
		profiles: map[string]orchestrator.AgentProfile{
			"": defaultProfile(),
		},
	}
}

func defaultProfile() orchestrator.AgentProfile {
	return orchestrator.AgentProfile{
		ID:               "default",
		DisplayName:      "Eloquence",
		SystemPromptTmpl: "You are Eloquence, a patient, encouraging voice-coaching partner. Keep turns short and speakable.",
		VoiceID:          orchestrator.VoiceF1,
		DefaultEmotion:   orchestrator.EmotionEncouragement,
	}
}

// Resolve implements httpapi.AgentResolver: it returns the cached profile
// for id, loading {dir}/{id}.yaml on first request, and falls back to the
// default profile if id is unknown or fails to load.
func (r *Roster) Resolve(id string) orchestrator.AgentProfile {
	r.mu.RLock()
	p, ok := r.profiles[id]
	r.mu.RUnlock()
	if ok {
		return p
	}

	p, err := r.load(id)
	if err != nil {
		return r.profiles[""]
	}

	r.mu.Lock()
	r.profiles[id] = p
	r.mu.Unlock()
	return p
}

func (r *Roster) load(id string) (orchestrator.AgentProfile, error) {
	safe := filepath.Base(id) // defense against path traversal via a crafted agent_profile_id
	path := filepath.Join(r.dir, safe+".yaml")
	data, err := os.ReadFile(path)
	if err != nil {
		return orchestrator.AgentProfile{}, fmt.Errorf("roster: read %s: %w", path, err)
	}
	var pf profileFile
	if err := yaml.Unmarshal(data, &pf); err != nil {
		return orchestrator.AgentProfile{}, fmt.Errorf("roster: parse %s: %w", path, err)
	}
	if strings.TrimSpace(pf.ID) == "" {
		pf.ID = id
	}
	return orchestrator.AgentProfile{
		ID:               pf.ID,
		DisplayName:      pf.DisplayName,
		SystemPromptTmpl: pf.SystemPromptTmpl,
		VoiceID:          pf.VoiceID,
		DefaultEmotion:   pf.DefaultEmotion,
	}, nil
}
