package soapbox

import "github.com/juju/errors"

// Stage is one step of the call pipeline. The pipeline runs the stages in
// declaration order; every stage has a pre and a post hook slot.
type Stage int

const (
	StageParse Stage = iota
	StageDecompose
	StageResolve
	StageDeserialize
	StageCall
	StageSerialize
	StageEmit
	numStages
)

var stageNames = [...]string{
	StageParse:       "parse",
	StageDecompose:   "decompose",
	StageResolve:     "resolve",
	StageDeserialize: "deserialize",
	StageCall:        "call",
	StageSerialize:   "serialize",
	StageEmit:        "emit",
}

func (s Stage) String() string {
	if s >= 0 && s < numStages {
		return stageNames[s]
	}
	return "unknown"
}

// Hook observes or amends a call around a stage. A non-nil error turns into
// the call's fault (see FaultFromError).
type Hook func(mc *MethodContext) error

// Hooks holds the pre and post extension slots of every stage.
type Hooks struct {
	pre  [numStages][]Hook
	post [numStages][]Hook
}

// Before registers h to run before stage s.
func (h *Hooks) Before(s Stage, fn Hook) *Hooks {
	h.pre[s] = append(h.pre[s], fn)
	return h
}

// After registers h to run after stage s, also when the stage faulted.
func (h *Hooks) After(s Stage, fn Hook) *Hooks {
	h.post[s] = append(h.post[s], fn)
	return h
}

func (h *Hooks) runPre(s Stage, mc *MethodContext) error {
	if h == nil {
		return nil
	}
	return runHooks(h.pre[s], s, "before", mc)
}

func (h *Hooks) runPost(s Stage, mc *MethodContext) error {
	if h == nil {
		return nil
	}
	return runHooks(h.post[s], s, "after", mc)
}

func runHooks(hooks []Hook, s Stage, when string, mc *MethodContext) error {
	for _, fn := range hooks {
		if err := fn(mc); err != nil {
			return errors.Annotatef(err, "%s %s hook", when, s)
		}
	}
	return nil
}
