// Package prompt parses free-text generation requests such as
//
//	a fox in the snow --steps 30 --cfg 9
//
// into the parameters a worker expects. Words that are not options form
// the prompt. Unknown options are collected so the caller can report them.
package prompt

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/BranchIntl/gobroker/errors"
	"github.com/BranchIntl/gobroker/work"
	"github.com/google/shlex"
)

// Defaults used when an option is not given
const (
	DefaultCFG   = 7.5
	DefaultSteps = 50
)

// Parameter names in the dispatched payload
const (
	ParamPrompt = "prompt"
	ParamCFG    = "cfg"
	ParamSteps  = "steps"
)

// Request is a parsed generation request
type Request struct {
	Prompt string
	CFG    float64
	Steps  int
	// Unknown holds options that were not understood, as written
	Unknown []string
}

// Payload returns the request parameters in dispatch order
func (r Request) Payload() work.Payload {
	return work.Payload{
		{Name: ParamPrompt, Value: r.Prompt},
		{Name: ParamCFG, Value: r.CFG},
		{Name: ParamSteps, Value: r.Steps},
	}
}

// Parser turns text into a Request
type Parser struct {
	defaultCFG   float64
	defaultSteps int
}

// NewParser creates a parser with the standard defaults
func NewParser() *Parser {
	return &Parser{defaultCFG: DefaultCFG, defaultSteps: DefaultSteps}
}

// Parse splits input shell-style and reads the known options. Later
// occurrences of an option win.
func (p *Parser) Parse(input string) (Request, error) {
	tokens, err := shlex.Split(input)
	if err != nil {
		if strings.Contains(err.Error(), "quote") {
			return Request{}, errors.ErrUnclosedQuote
		}
		return Request{}, fmt.Errorf("failed to split prompt: %w", err)
	}

	req := Request{CFG: p.defaultCFG, Steps: p.defaultSteps}
	var words []string

	for i := 0; i < len(tokens); i++ {
		token := tokens[i]
		if !isOption(token) {
			words = append(words, token)
			continue
		}

		name, value, inline := strings.Cut(token, "=")
		switch name {
		case "--cfg", "--steps":
			if !inline {
				if i+1 >= len(tokens) {
					return Request{}, fmt.Errorf("%w: %s", errors.ErrMissingValue, name)
				}
				i++
				value = tokens[i]
			}
			if err := req.set(name, value); err != nil {
				return Request{}, err
			}
		default:
			req.Unknown = append(req.Unknown, token)
		}
	}

	req.Prompt = strings.Join(words, " ")
	if strings.TrimSpace(req.Prompt) == "" {
		return req, errors.ErrEmptyPrompt
	}
	return req, nil
}

func (r *Request) set(name, value string) error {
	switch name {
	case "--cfg":
		cfg, err := strconv.ParseFloat(value, 64)
		if err != nil {
			return fmt.Errorf("%w: --cfg %q", errors.ErrInvalidNumber, value)
		}
		r.CFG = cfg
	case "--steps":
		steps, err := strconv.Atoi(value)
		if err != nil {
			return fmt.Errorf("%w: --steps %q", errors.ErrInvalidNumber, value)
		}
		r.Steps = steps
	}
	return nil
}

// isOption reports whether a token looks like an option rather than a word.
// A lone dash and negative numbers are words.
func isOption(token string) bool {
	if len(token) < 2 || token[0] != '-' {
		return false
	}
	if _, err := strconv.ParseFloat(token, 64); err == nil {
		return false
	}
	return true
}

// HelpText explains the accepted syntax
func (p *Parser) HelpText() string {
	var b strings.Builder
	b.WriteString("usage: [--cfg CFG] [--steps STEPS] [prompt ...]\n\n")
	b.WriteString("positional arguments:\n")
	b.WriteString("  prompt         Text not assigned to an option is the prompt.\n\n")
	b.WriteString("options:\n")
	fmt.Fprintf(&b, "  --cfg CFG      Classifier free guidance, sometimes called style. (Defaults to %g)\n", p.defaultCFG)
	fmt.Fprintf(&b, "  --steps STEPS  Number of diffusion steps. More takes longer but usually looks better. (Defaults to %d)\n", p.defaultSteps)
	return b.String()
}
