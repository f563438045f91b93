// Package config loads process-wide configuration: the closed set of agent
// templates a deployment exposes, and the model-provider credentials those
// templates' models resolve against. It is deliberately separate from
// session.SessionState, which stays the opaque per-request blob the runtime
// never parses; config is process-wide and loaded once at startup.
package config

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"github.com/flowctl/agentrt/agent"
	"github.com/flowctl/agentrt/session"
	"github.com/flowctl/agentrt/tools"
)

// AgentConfig is the YAML-facing declaration of one agent template. Load
// converts it into a session.AgentTemplate, resolving HandleStepsFile
// against the YAML document's own directory and translating the
// source/file/native trichotomy into a session.HandleSteps value.
type AgentConfig struct {
	ID            agent.Ident `yaml:"id"`
	DisplayName   string      `yaml:"display_name"`
	Model         string      `yaml:"model"`
	SpawnerPrompt string      `yaml:"spawner_prompt,omitempty"`
	OutputMode    string      `yaml:"output_mode,omitempty"`

	Tools           []tools.Ident `yaml:"tools"`
	SpawnableAgents []agent.Ident `yaml:"spawnable_agents,omitempty"`

	SystemPrompt       string `yaml:"system_prompt,omitempty"`
	InstructionsPrompt string `yaml:"instructions_prompt,omitempty"`
	StepPrompt         string `yaml:"step_prompt,omitempty"`

	IncludeMessageHistory     bool `yaml:"include_message_history,omitempty"`
	InheritParentSystemPrompt bool `yaml:"inherit_parent_system_prompt,omitempty"`

	// HandleStepsSource is inline JavaScript source for this agent's
	// handleSteps generator. Mutually exclusive with HandleStepsFile and
	// NativeHandler.
	HandleStepsSource string `yaml:"handle_steps_source,omitempty"`

	// HandleStepsFile is a path (relative to the config file's directory,
	// if relative) to a JavaScript file containing the handleSteps
	// generator. Mutually exclusive with HandleStepsSource and
	// NativeHandler.
	HandleStepsFile string `yaml:"handle_steps_file,omitempty"`

	// NativeHandler names a Go-registered handleSteps implementation
	// instead of a JavaScript one, resolved via the nativeHandlers map
	// passed to Load. When set, HandleStepsSource/HandleStepsFile must be
	// empty and the sandbox is bypassed entirely for this agent.
	NativeHandler string `yaml:"native_handler,omitempty"`

	// ParentInstructions maps a parent agent id to extra guidance injected
	// into this template's prompt only when spawned by that specific
	// parent, per spec.md §3.
	ParentInstructions map[agent.Ident]string `yaml:"parent_instructions,omitempty"`
}

// ModelProvider holds the credentials and endpoint for one configured model
// provider (for example, "anthropic" or "openai").
type ModelProvider struct {
	Name         string `yaml:"name"`
	APIKey       string `yaml:"api_key"`
	BaseURL      string `yaml:"base_url,omitempty"`
	DefaultModel string `yaml:"default_model,omitempty"`
}

// document is the raw shape of agents.yaml before HandleSteps resolution.
type document struct {
	Agents    []AgentConfig   `yaml:"agents"`
	Providers []ModelProvider `yaml:"providers"`
}

// Config is the loaded process configuration: a closed set of
// session.AgentTemplate values ready to hand to the Orchestrator/Agent Loop,
// plus the model providers they resolve against.
type Config struct {
	Agents    map[agent.Ident]*session.AgentTemplate
	Providers []ModelProvider
}

// Template returns the template with the given id and whether one was
// found. It implements orchestrator.TemplateLookup.
func (c *Config) Template(id agent.Ident) (*session.AgentTemplate, bool) {
	t, ok := c.Agents[id]
	return t, ok
}

// Provider returns the named provider config and whether one was found.
func (c *Config) Provider(name string) (ModelProvider, bool) {
	for _, p := range c.Providers {
		if p.Name == name {
			return p, true
		}
	}
	return ModelProvider{}, false
}

// Load reads process configuration: it first loads envPath (typically
// ".env") into the process environment for local development convenience,
// silently skipping a missing file, then parses yamlPath as an agents.yaml
// document describing the available agent templates and model providers.
//
// nativeHandlers resolves an AgentConfig's NativeHandler name to the Go
// value session.HandleSteps.Native carries; it may be nil if no template
// uses a native handler.
//
// Provider API keys in yamlPath may reference environment variables using
// ${VAR} syntax; callers resolve them with ExpandEnv after Load returns.
func Load(envPath, yamlPath string, nativeHandlers map[string]any) (*Config, error) {
	if envPath != "" {
		if err := godotenv.Load(envPath); err != nil && !os.IsNotExist(err) {
			return nil, fmt.Errorf("config: load %s: %w", envPath, err)
		}
	}

	data, err := os.ReadFile(yamlPath)
	if err != nil {
		return nil, fmt.Errorf("config: read %s: %w", yamlPath, err)
	}

	var doc document
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("config: parse %s: %w", yamlPath, err)
	}

	baseDir := filepath.Dir(yamlPath)
	agents := make(map[agent.Ident]*session.AgentTemplate, len(doc.Agents))
	for _, a := range doc.Agents {
		tmpl, err := a.toTemplate(baseDir, nativeHandlers)
		if err != nil {
			return nil, err
		}
		if _, exists := agents[tmpl.ID]; exists {
			return nil, fmt.Errorf("config: duplicate agent template id %q", tmpl.ID)
		}
		agents[tmpl.ID] = tmpl
	}

	return &Config{Agents: agents, Providers: doc.Providers}, nil
}

func (a *AgentConfig) toTemplate(baseDir string, nativeHandlers map[string]any) (*session.AgentTemplate, error) {
	if a.ID == "" {
		return nil, fmt.Errorf("config: agent template is missing id")
	}

	handleSteps, err := a.toHandleSteps(baseDir, nativeHandlers)
	if err != nil {
		return nil, fmt.Errorf("config: agent %q: %w", a.ID, err)
	}

	outputMode := session.OutputModeLastMessage
	if a.OutputMode != "" {
		outputMode = session.OutputMode(a.OutputMode)
	}

	return &session.AgentTemplate{
		ID:            a.ID,
		DisplayName:   a.DisplayName,
		Model:         a.Model,
		SpawnerPrompt: a.SpawnerPrompt,
		OutputMode:    outputMode,

		ToolNames:       a.Tools,
		SpawnableAgents: a.SpawnableAgents,

		SystemPrompt:       a.SystemPrompt,
		InstructionsPrompt: a.InstructionsPrompt,
		StepPrompt:         a.StepPrompt,

		IncludeMessageHistory:     a.IncludeMessageHistory,
		InheritParentSystemPrompt: a.InheritParentSystemPrompt,

		HandleSteps: handleSteps,

		ParentInstructions: a.ParentInstructions,
	}, nil
}

func (a *AgentConfig) toHandleSteps(baseDir string, nativeHandlers map[string]any) (*session.HandleSteps, error) {
	sources := 0
	if a.HandleStepsSource != "" {
		sources++
	}
	if a.HandleStepsFile != "" {
		sources++
	}
	if a.NativeHandler != "" {
		sources++
	}
	switch sources {
	case 0:
		return nil, nil
	case 1:
		// fall through
	default:
		return nil, fmt.Errorf("must set exactly one of handle_steps_source, handle_steps_file, native_handler")
	}

	if a.NativeHandler != "" {
		handler, ok := nativeHandlers[a.NativeHandler]
		if !ok {
			return nil, fmt.Errorf("native handler %q is not registered", a.NativeHandler)
		}
		return &session.HandleSteps{Kind: session.HandleStepsNative, Native: handler}, nil
	}

	source := a.HandleStepsSource
	if a.HandleStepsFile != "" {
		path := a.HandleStepsFile
		if !filepath.IsAbs(path) {
			path = filepath.Join(baseDir, path)
		}
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read handle_steps_file %s: %w", path, err)
		}
		source = string(data)
	}
	return &session.HandleSteps{Kind: session.HandleStepsSandboxed, Source: source}, nil
}

// ExpandEnv expands ${VAR} references in s against the current process
// environment, leaving unmatched references untouched.
func ExpandEnv(s string) string {
	return os.Expand(s, func(key string) string {
		if v, ok := os.LookupEnv(key); ok {
			return v
		}
		return "${" + key + "}"
	})
}
