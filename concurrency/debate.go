package concurrency

import (
	"context"
	"fmt"
)

// Agent is one debate participant. othersPrior carries the previous
// round's outputs from every other agent (nil in round 1).
type Agent func(ctx context.Context, topic string, othersPrior []interface{}) (interface{}, error)

// Synthesize produces the debate's final result from the topic, the full
// round-by-round output history, and whether the final round converged.
type Synthesize func(topic string, history [][]interface{}, converged bool) (interface{}, error)

// Debate runs agents for rounds sequentially; within a round every agent
// runs concurrently, seeing the other agents' previous-round outputs (not
// their own). Convergence is judged on the final round: every agent's
// output agrees, either by agreeOn field or by string rendering if
// agreeOn is empty.
func Debate(ctx context.Context, agents []Agent, topic string, rounds int, agreeOn string, synth Synthesize) (interface{}, error) {
	if rounds < 1 {
		return nil, fmt.Errorf("concurrency: debate requires at least 1 round, got %d", rounds)
	}

	history := make([][]interface{}, 0, rounds)
	var priorRound []interface{}

	for round := 0; round < rounds; round++ {
		branches := make([]Branch, len(agents))
		for i, agent := range agents {
			i, agent := i, agent
			branches[i] = func(ctx context.Context) (interface{}, error) {
				others := othersExcluding(priorRound, i)
				return agent(ctx, topic, others)
			}
		}
		results := Collect(ctx, branches)
		roundOutputs := make([]interface{}, len(results))
		for i, r := range results {
			if r.Err != nil {
				return nil, fmt.Errorf("concurrency: debate round %d, agent %d: %w", round+1, i, r.Err)
			}
			roundOutputs[i] = r.Value
		}
		history = append(history, roundOutputs)
		priorRound = roundOutputs
	}

	converged := agreesAll(priorRound, agreeOn)
	return synth(topic, history, converged)
}

func othersExcluding(round []interface{}, exclude int) []interface{} {
	if round == nil {
		return nil
	}
	out := make([]interface{}, 0, len(round)-1)
	for i, v := range round {
		if i == exclude {
			continue
		}
		out = append(out, v)
	}
	return out
}

func agreesAll(round []interface{}, agreeOn string) bool {
	if len(round) == 0 {
		return true
	}
	first := agreeKey(round[0], agreeOn)
	for _, v := range round[1:] {
		if agreeKey(v, agreeOn) != first {
			return false
		}
	}
	return true
}
