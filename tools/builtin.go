package tools

// Built-in tool identifiers, per spec.md §4.1's canonical example list plus
// the §4.3 dispatch-rule-6 local handler set.
const (
	EndTurn             Ident = "end_turn"
	WriteFile           Ident = "write_file"
	StrReplace          Ident = "str_replace"
	RunTerminalCommand  Ident = "run_terminal_command"
	SpawnAgents         Ident = "spawn_agents"
	SpawnAgentInline    Ident = "spawn_agent_inline"
	SetOutput           Ident = "set_output"
	SetMessages         Ident = "set_messages"
	ReadFiles           Ident = "read_files"
	CodeSearch          Ident = "code_search"
	Glob                Ident = "glob"
	ListDirectory       Ident = "list_directory"
	WebSearch           Ident = "web_search"
	RunFileChangeHooks  Ident = "run_file_change_hooks"
)

func schema(props string) []byte {
	return []byte(`{"type":"object","properties":{` + props + `},"additionalProperties":true}`)
}

// BuiltinTools returns the closed set of tools the runtime always advertises,
// each tagged per spec.md §4.1 (endsStep) and §4.3 (dispatch rules 1-3, 6).
func BuiltinTools() []*ToolSpec {
	return []*ToolSpec{
		{
			Name:         EndTurn,
			Description:  "Signal that the agent is finished producing output for this turn.",
			Input:        TypeSpec{Name: "EndTurnInput", Schema: schema(``)},
			EndsStep:     true,
			SilentResult: true,
		},
		{
			Name:        WriteFile,
			Description: "Create or overwrite a file with the given content.",
			Input: TypeSpec{Name: "WriteFileInput", Schema: schema(
				`"path":{"type":"string"},"content":{"type":"string"}`,
			)},
			EndsStep:          true,
			IsClientDelegated: true,
		},
		{
			Name:        StrReplace,
			Description: "Replace an exact substring occurrence within a file.",
			Input: TypeSpec{Name: "StrReplaceInput", Schema: schema(
				`"path":{"type":"string"},"old":{"type":"string"},"new":{"type":"string"}`,
			)},
			EndsStep:          true,
			IsClientDelegated: true,
		},
		{
			Name:        RunTerminalCommand,
			Description: "Run a shell command and return its output.",
			Input: TypeSpec{Name: "RunTerminalCommandInput", Schema: schema(
				`"command":{"type":"string"},"timeout_seconds":{"type":"number"}`,
			)},
			EndsStep:          true,
			IsClientDelegated: true,
		},
		{
			Name:        SpawnAgents,
			Description: "Spawn one or more child agents in parallel and collect their outputs in order.",
			Input: TypeSpec{Name: "SpawnAgentsInput", Schema: schema(
				`"agents":{"type":"array","items":{"type":"object","properties":{"agent_type":{"type":"string"},"prompt":{"type":"string"},"params":{"type":"object"}},"required":["agent_type","prompt"]}}`,
			)},
			EndsStep:     true,
			IsAgentSpawn: true,
		},
		{
			Name:        SpawnAgentInline,
			Description: "Spawn one child agent whose activity is stitched inline into this agent's stream.",
			Input: TypeSpec{Name: "SpawnAgentInlineInput", Schema: schema(
				`"agent_type":{"type":"string"},"prompt":{"type":"string"},"params":{"type":"object"}`,
			)},
			EndsStep:     true,
			IsAgentSpawn: true,
		},
		{
			Name:         SetOutput,
			Description:  "Set the agent's structured output.",
			Input:        TypeSpec{Name: "SetOutputInput", Schema: schema(``)},
			EndsStep:     true,
			SilentResult: true,
		},
		{
			Name:         SetMessages,
			Description:  "Replace the agent's message history.",
			Input:        TypeSpec{Name: "SetMessagesInput", Schema: schema(`"messages":{"type":"array"}`)},
			EndsStep:     true,
			SilentResult: true,
		},
		{
			Name:        ReadFiles,
			Description: "Read the contents of one or more project files.",
			Input: TypeSpec{Name: "ReadFilesInput", Schema: schema(
				`"paths":{"type":"array","items":{"type":"string"}}`,
			)},
			Handler: handleReadFiles,
		},
		{
			Name:        CodeSearch,
			Description: "Search project file contents for a pattern.",
			Input: TypeSpec{Name: "CodeSearchInput", Schema: schema(
				`"pattern":{"type":"string"},"paths":{"type":"array","items":{"type":"string"}}`,
			)},
			Handler: handleCodeSearch,
		},
		{
			Name:        Glob,
			Description: "List project files matching a glob pattern.",
			Input:       TypeSpec{Name: "GlobInput", Schema: schema(`"pattern":{"type":"string"}`)},
			Handler:     handleGlob,
		},
		{
			Name:        ListDirectory,
			Description: "List the contents of a project directory.",
			Input:       TypeSpec{Name: "ListDirectoryInput", Schema: schema(`"path":{"type":"string"}`)},
			Handler:     handleListDirectory,
		},
		{
			Name:        WebSearch,
			Description: "Search the web for a query.",
			Input:       TypeSpec{Name: "WebSearchInput", Schema: schema(`"query":{"type":"string"}`)},
			Handler:     handleWebSearch,
		},
		{
			Name:        RunFileChangeHooks,
			Description: "Run configured post-edit hooks (e.g. formatters, linters) for changed files.",
			Input: TypeSpec{Name: "RunFileChangeHooksInput", Schema: schema(
				`"paths":{"type":"array","items":{"type":"string"}}`,
			)},
			Handler: handleRunFileChangeHooks,
		},
	}
}
