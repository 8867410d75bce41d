// Package budget packs file content and a user prompt into a token budget.
//
// Build finds the longest prefix of the content that fits next to the prompt
// and the framing text, and reports where the content was cut. The result
// always tokenizes to no more than the budget, even for tokenizers whose
// counts are not additive across the content/frame boundary.
package budget

import (
	"errors"
	"fmt"
	"unicode/utf8"
)

// TokenizeFunc returns the tokens of text. It must be deterministic and safe
// to call concurrently.
type TokenizeFunc func(text string) []int

// ErrContextTooSmall reports a budget that cannot hold the user prompt.
var ErrContextTooSmall = errors.New("context too small")

// ContextTooSmallError carries the budget and the tokens the prompt needs.
type ContextTooSmallError struct {
	Budget   int
	Required int
}

func (e *ContextTooSmallError) Error() string {
	return fmt.Sprintf("context too small: prompt needs %d tokens, budget is %d", e.Required, e.Budget)
}

func (e *ContextTooSmallError) Is(target error) bool { return target == ErrContextTooSmall }

// Result is an assembled prompt. CutoffOffset is the byte offset into the raw
// content where it was cut, always on a rune boundary; it equals len(raw)
// when nothing was dropped.
type Result struct {
	Prompt       string `json:"prompt"`
	CutoffOffset int    `json:"cutoff_offset"`
	Truncated    bool   `json:"truncated"`
	Tokens       int    `json:"tokens"`
	Budget       int    `json:"budget"`
}

type options struct {
	reserve int
	frame   Frame
}

// Option customizes Build.
type Option func(*options)

// WithReserve keeps n tokens of the context free, e.g. for the response.
func WithReserve(n int) Option {
	return func(o *options) {
		if n > 0 {
			o.reserve = n
		}
	}
}

// WithFrame sets the textual layout. The default is DefaultFrame{}.
func WithFrame(f Frame) Option {
	return func(o *options) {
		if f != nil {
			o.frame = f
		}
	}
}

// Build assembles raw and userPrompt into a prompt of at most contextLength
// (minus any reserve) tokens.
//
// Empty content yields exactly the user prompt. When the content does not
// fit, the longest fitting prefix is kept and the frame adds a truncation
// note. When not even the frame fits, the content is dropped. A budget too
// small for the user prompt alone fails with ErrContextTooSmall.
func Build(raw, userPrompt string, tokenize TokenizeFunc, contextLength int, opts ...Option) (*Result, error) {
	if tokenize == nil {
		return nil, errors.New("budget: nil tokenizer")
	}
	o := options{frame: DefaultFrame{}}
	for _, opt := range opts {
		opt(&o)
	}
	budget := contextLength - o.reserve
	count := func(s string) int { return len(tokenize(s)) }

	promptOnly := func(truncated bool) (*Result, error) {
		n := count(userPrompt)
		if n > budget {
			return nil, &ContextTooSmallError{Budget: budget, Required: n}
		}
		return &Result{Prompt: userPrompt, CutoffOffset: 0, Truncated: truncated, Tokens: n, Budget: budget}, nil
	}

	if raw == "" {
		return promptOnly(false)
	}

	full := o.frame.Assemble(raw, userPrompt, false)
	if n := count(full); n <= budget {
		return &Result{Prompt: full, CutoffOffset: len(raw), Truncated: false, Tokens: n, Budget: budget}, nil
	}
	// Content and prompt fit without framing: keep everything rather than cut.
	// A newline keeps them apart unless that one separator is what overflows.
	for _, compact := range []string{raw + "\n" + userPrompt, raw + userPrompt} {
		if n := count(compact); n <= budget {
			return &Result{Prompt: compact, CutoffOffset: len(raw), Truncated: false, Tokens: n, Budget: budget}, nil
		}
	}

	if n := count(userPrompt); n > budget {
		return nil, &ContextTooSmallError{Budget: budget, Required: n}
	}
	overhead := count(o.frame.Assemble("", userPrompt, true))
	if overhead > budget {
		return promptOnly(true)
	}

	bounds := runeBoundaries(raw)
	remaining := budget - overhead
	for remaining >= 0 {
		cut := bounds[maxFitting(raw, bounds, remaining, count)]
		prompt := o.frame.Assemble(raw[:cut], userPrompt, true)
		n := count(prompt)
		if n <= budget {
			return &Result{Prompt: prompt, CutoffOffset: cut, Truncated: true, Tokens: n, Budget: budget}, nil
		}
		if cut == 0 {
			break
		}
		// The boundary merged differently than the parts; shrink by the
		// overshoot and search again.
		remaining -= n - budget
	}
	return promptOnly(true)
}

// maxFitting binary-searches bounds for the largest index whose prefix fits
// in limit tokens. Index 0 (the empty prefix) always fits.
func maxFitting(raw string, bounds []int, limit int, count func(string) int) int {
	lo, hi := 0, len(bounds)-1
	for lo < hi {
		mid := (lo + hi + 1) / 2
		if count(raw[:bounds[mid]]) <= limit {
			lo = mid
		} else {
			hi = mid - 1
		}
	}
	return lo
}

// runeBoundaries returns every byte offset of s that starts a rune, plus len(s).
func runeBoundaries(s string) []int {
	out := make([]int, 0, utf8.RuneCountInString(s)+1)
	for i := range s {
		out = append(out, i)
	}
	return append(out, len(s))
}
