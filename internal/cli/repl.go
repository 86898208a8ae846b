package cli

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"
	"sync"

	"github.com/aretw0/appflow/internal/presentation/graph"
	"github.com/aretw0/appflow/internal/presentation/tui"
	"github.com/aretw0/appflow/pkg/flow"
	"github.com/aretw0/appflow/pkg/observability"
	"github.com/aretw0/appflow/pkg/schema"
	"github.com/aretw0/appflow/pkg/session"
	"gopkg.in/yaml.v3"
)

// errQuit ends a REPL on request.
var errQuit = errors.New("quit")

const helpText = `Type an event path followed by optional arguments, e.g.:

    increment
    add 3
    push a, b
    profile {email: ada@example.com, age: 36}

Commands:

    :state    show the state
    :actions  list the events available here
    :graph    print the flow as a Mermaid diagram
    :reset    start over
    :help     show this help
    q, quit, exit
`

// Command is one line of JSON mode input. Either Event or Command is set.
type Command struct {
	Event   string `json:"event,omitempty"`
	Args    []any  `json:"args,omitempty"`
	Command string `json:"command,omitempty"`
}

// Output kinds.
const (
	KindResult = "result"
	KindChange = "change"
)

// Output is one line of JSON mode output. Results answer an input line,
// changes report every commit, including the ones settling between inputs.
type Output struct {
	Kind    string       `json:"kind"`
	Session string       `json:"session"`
	Node    flow.NodeRef `json:"node"`
	State   any          `json:"state"`
	Actions []string     `json:"actions"`
	Error   string       `json:"error,omitempty"`
}

// REPL drives one session from line-oriented input.
type REPL struct {
	Sessions *session.Manager
	Session  *session.Session
	Out      io.Writer
	// Render turns markdown into terminal output.
	Render func(string) (string, error)
	// JSON switches input and output to NDJSON.
	JSON bool
	// Quiet suppresses prompts and the initial view.
	Quiet bool

	mu sync.Mutex // serialises JSON lines
}

// Run handles lines until input ends, a quit command arrives or ctx ends.
func (r *REPL) Run(ctx context.Context, lines <-chan string) error {
	if r.Render == nil {
		r.Render = tui.NewRenderer(false)
	}
	if r.JSON {
		stop := r.stream(ctx)
		defer stop()
	} else if !r.Quiet {
		r.show()
	}

	for {
		if !r.JSON && !r.Quiet {
			fmt.Fprint(r.Out, "> ")
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case line, ok := <-lines:
			if !ok {
				return io.EOF
			}
			err := r.Handle(ctx, line)
			if errors.Is(err, errQuit) {
				return nil
			}
			if err != nil {
				return err
			}
		}
	}
}

// stream writes every state change as a change line.
func (r *REPL) stream(ctx context.Context) func() {
	agg := observability.NewAggregator()
	agg.Add(r.Session.Machine)
	ctx, cancel := context.WithCancel(ctx)
	done := make(chan struct{})
	snapshots := agg.Watch(ctx)
	go func() {
		defer close(done)
		for s := range snapshots {
			r.writeJSON(Output{
				Kind:    KindChange,
				Session: r.Session.ID,
				Node:    s.Node,
				State:   s.State,
				Actions: r.Session.Machine.Actions(),
			})
		}
	}()
	return func() {
		cancel()
		<-done
	}
}

// Handle processes a single input line. Reducer errors are reported and do
// not end the session.
func (r *REPL) Handle(ctx context.Context, line string) error {
	line = strings.TrimSpace(line)
	if line == "" {
		return nil
	}
	if r.JSON {
		return r.handleJSON(ctx, line)
	}

	switch line {
	case "q", "quit", "exit":
		return errQuit
	case ":help":
		fmt.Fprint(r.Out, helpText)
		return nil
	case ":state":
		r.show()
		return nil
	case ":actions":
		fmt.Fprintln(r.Out, strings.Join(r.Session.Machine.Actions(), " "))
		return nil
	case ":graph":
		overlay := &graph.Overlay{Current: r.Session.Machine.Current().Index}
		fmt.Fprint(r.Out, graph.GenerateMermaid(r.Session.Machine.Inspect(), overlay))
		return nil
	case ":reset":
		if err := r.reset(ctx); err != nil {
			return err
		}
		r.show()
		return nil
	}

	event, args, err := ParseInput(line)
	if err != nil {
		printSystemMessage(r.Out, "Invalid arguments: %v", err)
		return nil
	}
	if !r.Session.Machine.Can(event) && !strings.HasPrefix(event, "#") && !strings.Contains(event, ".") {
		printSystemMessage(r.Out, "Unknown event '%s'. Available: %s", event, strings.Join(r.Session.Machine.Actions(), ", "))
		return nil
	}
	if err := r.dispatch(ctx, event, args); err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		printSystemMessage(r.Out, "Error: %v", err)
	}
	r.show()
	return nil
}

func (r *REPL) handleJSON(ctx context.Context, line string) error {
	var cmd Command
	if err := json.Unmarshal([]byte(line), &cmd); err != nil {
		r.writeJSON(Output{Kind: KindResult, Session: r.Session.ID, Error: fmt.Sprintf("invalid input: %v", err)})
		return nil
	}

	var err error
	switch {
	case cmd.Command == "quit":
		return errQuit
	case cmd.Command == "reset":
		err = r.reset(ctx)
	case cmd.Command == "state":
	case cmd.Command != "":
		err = fmt.Errorf("unknown command %q", cmd.Command)
	case cmd.Event == "":
		err = errors.New("event is required")
	default:
		args, _ := schema.Normalize(cmd.Args).([]any)
		err = r.dispatch(ctx, cmd.Event, args)
	}
	if err != nil && ctx.Err() != nil {
		return ctx.Err()
	}

	out := r.view()
	if err != nil {
		out.Error = err.Error()
	}
	r.writeJSON(out)
	return nil
}

func (r *REPL) dispatch(ctx context.Context, event string, args []any) error {
	f, err := r.Sessions.Dispatch(ctx, r.Session.ID, event, args...)
	if err != nil {
		return err
	}
	_, err = f.Await(ctx)
	return err
}

func (r *REPL) reset(ctx context.Context) error {
	return r.Sessions.WithLock(ctx, r.Session.ID, func(ctx context.Context) error {
		return r.Session.Machine.Reset(ctx)
	})
}

func (r *REPL) view() Output {
	m := r.Session.Machine
	return Output{
		Kind:    KindResult,
		Session: r.Session.ID,
		Node:    m.Current(),
		State:   m.GetState(),
		Actions: m.Actions(),
	}
}

func (r *REPL) show() {
	if r.Quiet {
		return
	}
	out, err := r.Render(tui.StateMarkdown(r.Session.Machine))
	if err != nil {
		out = tui.StateMarkdown(r.Session.Machine)
	}
	fmt.Fprint(r.Out, out)
}

func (r *REPL) writeJSON(v Output) {
	data, err := json.Marshal(v)
	if err != nil {
		data, _ = json.Marshal(Output{Kind: v.Kind, Session: v.Session, Error: err.Error()})
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	fmt.Fprintln(r.Out, string(data))
}

// ParseInput splits a text line into an event and its arguments. Arguments
// are read as a comma separated YAML flow sequence, so numbers, booleans,
// quoted strings, lists and maps keep their types.
func ParseInput(line string) (string, []any, error) {
	event, rest, _ := strings.Cut(strings.TrimSpace(line), " ")
	rest = strings.TrimSpace(rest)
	if rest == "" {
		return event, nil, nil
	}
	var args []any
	if err := yaml.Unmarshal([]byte("["+rest+"]"), &args); err != nil {
		return "", nil, err
	}
	return event, args, nil
}
