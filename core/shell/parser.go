package shell

import "strings"

// RedirectKind is the direction of a redirection.
type RedirectKind int

const (
	RedirectInput RedirectKind = iota
	RedirectTruncate
	RedirectAppend
)

func (k RedirectKind) String() string {
	switch k {
	case RedirectInput:
		return "<"
	case RedirectAppend:
		return ">>"
	default:
		return ">"
	}
}

// Redirection connects a descriptor of a stage to a file. The file isn't
// opened until the stage is spawned.
type Redirection struct {
	Kind RedirectKind
	Fd   int
	Path string
}

// Stage is a single command of a pipeline.
type Stage struct {
	Name string
	Args []string
	// Assignments hold NAME=value pairs that prefix the command.
	Assignments  []string
	Redirections []Redirection
}

// Argv returns the command name followed by its arguments.
func (s *Stage) Argv() []string {
	return append([]string{s.Name}, s.Args...)
}

// Redirects reports whether the stage redirects descriptor fd.
func (s *Stage) Redirects(fd int) bool {
	for _, r := range s.Redirections {
		if r.Fd == fd {
			return true
		}
	}
	return false
}

// Pipeline is one parsed command line.
type Pipeline struct {
	Stages     []Stage
	Background bool
	Source     string
}

// AssignmentOnly reports whether the pipeline only sets variables.
func (p *Pipeline) AssignmentOnly() bool {
	return len(p.Stages) == 1 && p.Stages[0].Name == "" && len(p.Stages[0].Assignments) > 0
}

// Parse builds a pipeline from expanded tokens.
//
//	pipeline    := stage ('|' stage)* ['&']
//	stage       := word+ redirection*
//	redirection := ('<' | '>' | '>>' | [0-9]+'>' | [0-9]+'>>' | [0-9]+'<') word
func Parse(tokens []Token) (*Pipeline, error) {
	p := &Pipeline{}
	if n := len(tokens); n > 0 && tokens[n-1].Kind == Operator && tokens[n-1].Op == OpBackground {
		p.Background = true
		tokens = tokens[:n-1]
	}

	var cur Stage
	named := false
	for i := 0; i < len(tokens); i++ {
		tok := tokens[i]

		if tok.Kind == Word {
			switch {
			case !named && tok.Assign:
				cur.Assignments = append(cur.Assignments, tok.Value)
			case !named:
				cur.Name = tok.Value
				named = true
			default:
				cur.Args = append(cur.Args, tok.Value)
			}
			continue
		}

		switch {
		case tok.Op == OpBackground:
			return nil, &ParseError{Err: ErrMisplacedBackground, Pos: tok.Pos, Near: tok.Value}

		case tok.Op == OpPipe:
			if !named {
				return nil, &ParseError{Err: ErrEmptyStage, Pos: tok.Pos, Near: tok.Value}
			}
			p.Stages = append(p.Stages, cur)
			cur = Stage{}
			named = false

		case tok.Op.IsRedirect():
			if i+1 >= len(tokens) || tokens[i+1].Kind != Word {
				return nil, &ParseError{Err: ErrMissingRedirectTarget, Pos: tok.Pos, Near: tok.Value}
			}
			cur.Redirections = append(cur.Redirections, redirectionFor(tok, tokens[i+1].Value))
			i++
		}
	}

	switch {
	case named:
		p.Stages = append(p.Stages, cur)
	case len(p.Stages) == 0 && len(cur.Assignments) > 0 && len(cur.Redirections) == 0:
		p.Stages = append(p.Stages, cur)
	default:
		pos := 0
		if len(tokens) > 0 {
			pos = tokens[len(tokens)-1].Pos
		}
		return nil, &ParseError{Err: ErrEmptyStage, Pos: pos}
	}

	return p, nil
}

func redirectionFor(op Token, path string) Redirection {
	r := Redirection{Fd: op.Fd, Path: path}
	switch op.Op {
	case OpRedirectIn:
		r.Kind = RedirectInput
		if r.Fd < 0 {
			r.Fd = 0
		}
	case OpRedirectAppend:
		r.Kind = RedirectAppend
	default:
		r.Kind = RedirectTruncate
	}
	if r.Fd < 0 {
		r.Fd = 1
	}
	return r
}

// Compile tokenizes, expands and parses a line. It returns a nil pipeline
// without error when there is nothing to run.
func Compile(line string, exp *Expander) (*Pipeline, error) {
	tokens, err := Tokenize(line)
	if err != nil {
		return nil, err
	}
	if len(tokens) == 0 {
		return nil, nil
	}
	if exp != nil {
		if tokens, err = exp.Expand(tokens); err != nil {
			return nil, err
		}
		if len(tokens) == 0 {
			return nil, nil
		}
	}

	p, err := Parse(tokens)
	if err != nil {
		return nil, err
	}
	p.Source = strings.TrimSpace(line)
	return p, nil
}
