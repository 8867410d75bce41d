package budget

import "strings"

// Frame lays out file content and the user prompt as one prompt string.
// Assemble must include content and userPrompt verbatim.
type Frame interface {
	Assemble(content, userPrompt string, truncated bool) string
}

// DefaultFrame uses bracketed section headers:
//
//	[REFERENCE FILE: notes/a.md]
//	...content...
//	[TRUNCATED: ...]
//
//	[TASK]
//	...prompt...
type DefaultFrame struct {
	// Source names the file in the header when set.
	Source string
}

const truncationNote = "[TRUNCATED: the rest of the file was cut to fit the context window]"

func (f DefaultFrame) Assemble(content, userPrompt string, truncated bool) string {
	var b strings.Builder
	b.Grow(len(content) + len(userPrompt) + 128)
	if f.Source != "" {
		b.WriteString("[REFERENCE FILE: ")
		b.WriteString(f.Source)
		b.WriteString("]\n")
	} else {
		b.WriteString("[REFERENCE FILE]\n")
	}
	b.WriteString(content)
	if !strings.HasSuffix(content, "\n") {
		b.WriteString("\n")
	}
	if truncated {
		b.WriteString(truncationNote)
		b.WriteString("\n")
	}
	b.WriteString("\n[TASK]\n")
	b.WriteString(userPrompt)
	return b.String()
}

// FrameFunc adapts a function to Frame.
type FrameFunc func(content, userPrompt string, truncated bool) string

func (f FrameFunc) Assemble(content, userPrompt string, truncated bool) string {
	return f(content, userPrompt, truncated)
}
