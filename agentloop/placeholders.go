package agentloop

import (
	"regexp"
	"strconv"
	"strings"
)

// placeholderPattern matches the `{{NAME}}` template tokens spec.md's
// Glossary describes ("Placeholder... replaced at prompt-assembly time by
// dynamic content").
var placeholderPattern = regexp.MustCompile(`\{\{([A-Z_]+)\}\}`)

// PlaceholderData supplies the dynamic content substituted into a
// template's prompts, per spec.md §4.6 ("substituting current file-tree,
// git changes, remaining step count, etc.").
type PlaceholderData struct {
	FileTree       string
	GitChanges     string
	StepsRemaining int
	KnowledgeFiles string
	SystemInfo     string
}

// Render substitutes every recognized {{NAME}} placeholder in template with
// data's fields. Unrecognized placeholders are left verbatim, since
// spec.md's Glossary notes "the supported set is fixed per template kind";
// a template author referencing an unsupported name should see the literal
// token rather than silent data loss.
func Render(template string, data PlaceholderData) string {
	return placeholderPattern.ReplaceAllStringFunc(template, func(token string) string {
		name := strings.TrimSuffix(strings.TrimPrefix(token, "{{"), "}}")
		switch name {
		case "FILE_TREE":
			return data.FileTree
		case "GIT_CHANGES":
			return data.GitChanges
		case "STEPS_REMAINING":
			return strconv.Itoa(data.StepsRemaining)
		case "KNOWLEDGE_FILES":
			return data.KnowledgeFiles
		case "SYSTEM_INFO":
			return data.SystemInfo
		default:
			return token
		}
	})
}
