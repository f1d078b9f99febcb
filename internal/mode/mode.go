package mode

import (
	"fmt"
	"sort"
	"strings"
	"sync"
)

// Mode binds a system prompt to the set of tools the assistant may use
type Mode struct {
	Name         string   `json:"name" mapstructure:"name"`
	Prompt       string   `json:"prompt" mapstructure:"prompt"`
	Description  string   `json:"description" mapstructure:"description"`
	ToolsEnabled []string `json:"tools_enabled" mapstructure:"tools_enabled"`
}

// AllTools is the wildcard entry enabling every registered tool
const AllTools = "all"

// DefaultMode is the mode every conversation starts in
const DefaultMode = "default"

// Registry holds the configured modes. Mode names are case-insensitive.
type Registry struct {
	mu    sync.RWMutex
	modes map[string]Mode
}

// NewRegistry creates a Registry from configured modes, falling back to
// the built-in set when none are given
func NewRegistry(modes map[string]Mode) *Registry {
	if len(modes) == 0 {
		modes = Defaults()
	}
	normalized := make(map[string]Mode, len(modes))
	for name, m := range modes {
		normalized[strings.ToLower(name)] = m
	}
	if _, ok := normalized[DefaultMode]; !ok {
		normalized[DefaultMode] = Defaults()[DefaultMode]
	}
	return &Registry{modes: normalized}
}

// Defaults returns the built-in mode set
func Defaults() map[string]Mode {
	return map[string]Mode{
		"default": {
			Name:         "Default",
			Prompt:       "You are a helpful, knowledgeable assistant, ready to assist with any questions or tasks.",
			Description:  "Standard assistant mode",
			ToolsEnabled: []string{AllTools},
		},
		"ceo": {
			Name:         "CEO Mode",
			Prompt:       "You think strategically, focus on business outcomes, make decisive recommendations, and prioritize efficiency and growth. Speak with authority and provide executive-level insights.",
			Description:  "Strategic business leadership mode",
			ToolsEnabled: []string{AllTools},
		},
		"casual": {
			Name:         "Casual Mode",
			Prompt:       "You are casual, friendly, and speak like you're talking to a close friend. Use informal language, be supportive, and maintain a relaxed, conversational tone.",
			Description:  "Casual and friendly conversation mode",
			ToolsEnabled: []string{"weather", "web_search"},
		},
		"legal": {
			Name:         "Legal Mode",
			Prompt:       "You provide precise, well-researched legal information, cite relevant laws and precedents, and maintain professional legal terminology. Always remind users to consult qualified legal professionals for specific advice.",
			Description:  "Professional legal assistance mode",
			ToolsEnabled: []string{"web_search", "web_scraper", "url_summarizer", "file_analyzer"},
		},
		"technical": {
			Name:         "Technical Mode",
			Prompt:       "You provide detailed technical explanations, code examples, debugging assistance, and system architecture advice. Focus on accuracy, best practices, and practical implementation.",
			Description:  "Technical development and engineering mode",
			ToolsEnabled: []string{"web_search", "text_analyzer", "command_executor", "file_analyzer"},
		},
		"creative": {
			Name:         "Creative Mode",
			Prompt:       "You think outside the box, provide innovative solutions, help with creative writing, brainstorming, and artistic projects. Be imaginative and inspiring.",
			Description:  "Creative and innovative thinking mode",
			ToolsEnabled: []string{"web_search", "text_analyzer", "file_analyzer"},
		},
	}
}

// Get returns a mode by name
func (r *Registry) Get(name string) (Mode, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	m, ok := r.modes[strings.ToLower(name)]
	if !ok {
		return Mode{}, fmt.Errorf("mode %s not found", name)
	}
	return m, nil
}

// Knows reports whether a mode is registered
func (r *Registry) Knows(name string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.modes[strings.ToLower(name)]
	return ok
}

// List returns the registered mode names, sorted
func (r *Registry) List() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := make([]string, 0, len(r.modes))
	for name := range r.modes {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// All returns every registered mode keyed by name
func (r *Registry) All() map[string]Mode {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make(map[string]Mode, len(r.modes))
	for name, m := range r.modes {
		out[name] = m
	}
	return out
}

// Enabled reports whether a tool may be dispatched under the given
// mode. Unknown modes enable nothing; the "all" wildcard enables
// everything.
func (r *Registry) Enabled(modeName, tool string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()

	m, ok := r.modes[strings.ToLower(modeName)]
	if !ok {
		return false
	}
	for _, t := range m.ToolsEnabled {
		if t == AllTools || t == tool {
			return true
		}
	}
	return false
}

// Prompt returns the system prompt for a mode, falling back to the
// default mode's prompt for unknown names
func (r *Registry) Prompt(modeName string) string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if m, ok := r.modes[strings.ToLower(modeName)]; ok {
		return m.Prompt
	}
	return r.modes[DefaultMode].Prompt
}
