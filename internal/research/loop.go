package research

import (
	"context"
	"fmt"

	"github.com/rs/zerolog/log"

	"deepresearch/internal/observability"
)

// loopState is the Agent Loop's state machine, logged at each transition.
type loopState int

const (
	stateNew loopState = iota
	stateGuarded
	stateClarified
	stateStep
	stateAnswering
	stateDone
)

func (s loopState) String() string {
	switch s {
	case stateNew:
		return "New"
	case stateGuarded:
		return "Guarded"
	case stateClarified:
		return "Clarified"
	case stateStep:
		return "Step"
	case stateAnswering:
		return "Answering"
	case stateDone:
		return "Done"
	default:
		return "Unknown"
	}
}

// Loop orchestrates a bounded sequence of planner-driven actions until the
// planner returns answer, then invokes the Answerer; or on step exhaustion,
// invokes the Answerer in final mode.
type Loop struct {
	Guardrail *Guardrail
	Clarifier *Clarifier
	Planner   *Planner
	Rewriter  *QueryRewriter
	Pipeline  *Pipeline
	Answerer  *Answerer
}

func (l *Loop) transition(ctx context.Context, from, to loopState) {
	observability.LoggerWithTrace(ctx).Debug().
		Str("from", from.String()).Str("to", to.String()).Msg("research_loop_transition")
}

// Run executes the full loop protocol against sc, writing every emitted
// event to w. It returns once the final answer stream has completed or a
// refusal/clarification has been emitted.
func (l *Loop) Run(ctx context.Context, sc *SystemContext, w StreamWriter) error {
	state := stateNew

	guardVerdict, usage, err := l.Guardrail.Check(ctx, sc)
	l.transition(ctx, state, stateGuarded)
	state = stateGuarded
	if err == nil {
		sc.ReportUsage("guardrail", usage)
	}
	if err == nil && !guardVerdict.Allow {
		if err := w.Write(Part{Type: PartTextDelta, Text: refusalMessage(guardVerdict.Reason)}); err != nil {
			return err
		}
		l.transition(ctx, state, stateDone)
		return l.finish(w)
	}

	clarifyVerdict, usage, err := l.Clarifier.Check(ctx, sc)
	l.transition(ctx, state, stateClarified)
	state = stateClarified
	if err == nil {
		sc.ReportUsage("clarifier", usage)
	}
	if err == nil && clarifyVerdict.NeedsClarification {
		if err := w.Write(Part{Type: PartClarification, ID: newEventID(), Reason: clarifyVerdict.Reason}); err != nil {
			return err
		}
		l.transition(ctx, state, stateDone)
		return l.finish(w)
	}

	for !sc.ShouldStop() {
		l.transition(ctx, state, stateStep)
		state = stateStep

		action, usage, err := l.Planner.Plan(ctx, sc)
		if err != nil {
			log.Ctx(ctx).Warn().Err(err).Msg("research_loop_planner_fatal")
			break
		}
		sc.ReportUsage("planner", usage)

		if action.Type == ActionAnswer {
			l.transition(ctx, state, stateAnswering)
			if err := l.Answerer.Answer(ctx, sc, false, w); err != nil {
				return err
			}
			l.transition(ctx, stateAnswering, stateDone)
			return l.finish(w)
		}

		feedback := action.Feedback
		sc.SetLastFeedback(&feedback)

		if err := w.Write(Part{
			Type:     PartNewAction,
			ID:       newEventID(),
			Action:   &action,
			Step:     sc.CurrentStep(),
			MaxSteps: sc.maxStepsForEvent(),
		}); err != nil {
			return err
		}
		if err := w.Write(Part{Type: PartUsage, ID: usageEventID, TotalTokens: sc.TotalTokens()}); err != nil {
			return err
		}

		rewritten, usage, err := l.Rewriter.Rewrite(ctx, sc, action.Query)
		if err == nil {
			sc.ReportUsage("query_rewriter", usage)
		} else {
			rewritten = action.Query
		}

		if err := l.Pipeline.Run(ctx, sc, rewritten, w); err != nil {
			log.Ctx(ctx).Warn().Err(err).Msg("research_loop_pipeline_degraded")
		}
		if err := w.Write(Part{Type: PartUsage, ID: usageEventID, TotalTokens: sc.TotalTokens()}); err != nil {
			return err
		}

		sc.IncrementStep()
	}

	l.transition(ctx, state, stateAnswering)
	if err := l.Answerer.Answer(ctx, sc, true, w); err != nil {
		return err
	}
	l.transition(ctx, stateAnswering, stateDone)
	return l.finish(w)
}

func (l *Loop) finish(w StreamWriter) error {
	return w.Write(Part{Type: PartFinish})
}

const usageEventID = "usage"

func refusalMessage(reason string) string {
	if reason == "" {
		return "I'm not able to help with that request."
	}
	return fmt.Sprintf("I'm not able to help with that request: %s", reason)
}

// maxStepsForEvent exposes the configured step budget for data-newAction
// events without making it part of SystemContext's public read surface
// beyond what 4.1 names.
func (c *SystemContext) maxStepsForEvent() int {
	return c.maxSteps
}
