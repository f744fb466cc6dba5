package prompt

import "sort"

// Template names.
const (
	FixSystem = "fix-system.md"
	FixUser   = "fix.md"
)

// Response markers the delegate must emit.
const (
	DescMarker = "---FIX_DESC---"
	CodeMarker = "---FIXED_CODE---"
)

// builtinTemplates maps template filename to content.
var builtinTemplates = map[string]string{
	FixSystem: fixSystemTemplate,
	FixUser:   fixTemplate,
}

// BuiltinNames returns the built-in template names in sorted order.
func BuiltinNames() []string {
	names := make([]string, 0, len(builtinTemplates))
	for name := range builtinTemplates {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

const fixSystemTemplate = `You are an expert software engineer specializing in automated code repair.
When given a code snippet and an error, you must:
1. Provide a one-line fix description such as 'remove the import statement' or 'add the colon at the correct position'.
2. Provide the corrected code ONLY (no explanation, no markdown fences).
Return EXACTLY two sections separated by '---FIX_DESC---' and '---FIXED_CODE---'.`

const fixTemplate = `Bug Type: {{bug_type}}
File: {{file}}
Line: {{line}}
Error Message: {{message}}
{{#if language}}Language: {{language}}
{{/if}}
Code context (lines {{start}}-{{end}}):
` + "```" + `
{{context}}
` + "```" + `

Provide the fix description and the corrected version of ONLY the code context above.
Format:
---FIX_DESC---
<one-line description>
---FIXED_CODE---
<corrected code>
`
