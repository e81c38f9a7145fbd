package workflow

import (
	"context"

	"github.com/finchat-labs/finflow/graph"
)

// errHandler receives control when a node fails hard. Recoverable worker
// failures are absorbed inside the executor and never land here: by the
// time this node runs the fault recorder has written State.Fault and the
// only remaining job is to make sure the responder sees a well-formed,
// unrecoverable failure.
type errHandler struct{}

func (n *errHandler) Run(ctx context.Context, s State) graph.NodeResult[State] {
	fault := s.Fault
	switch {
	case fault == nil:
		// Diverted without a recorded fault. Should not happen, but the
		// responder still needs something to render.
		fault = &Failure{
			Kind:    KindInternal,
			Node:    nodeErrors,
			Message: "diverted without a recorded fault",
		}
	case fault.Kind == "":
		f := *fault
		f.Kind = KindInternal
		fault = &f
	}
	if fault.Recoverable {
		f := *fault
		f.Recoverable = false
		fault = &f
	}
	return graph.NodeResult[State]{
		Delta: State{Fault: fault},
		Route: graph.Goto(nodeResponder),
	}
}
