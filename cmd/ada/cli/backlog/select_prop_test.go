package backlog

import (
	"fmt"
	"testing"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
)

// genBacklog generates random valid backlogs: dependencies only point to
// earlier features, so the graph is acyclic by construction.
func genBacklog() gopter.Gen {
	genOne := gopter.CombineGens(
		gen.IntRange(0, 2),  // 0 pending, 1 in_progress, 2 completed
		gen.IntRange(0, 10), // priority
		gen.Bool(),          // depend on the previous feature?
	)
	return gen.SliceOfN(8, genOne).Map(func(raw [][]any) []*Feature {
		features := make([]*Feature, 0, len(raw))
		for i, vals := range raw {
			status := []Status{StatusPending, StatusInProgress, StatusCompleted}[vals[0].(int)]
			f := &Feature{
				ID:       fmt.Sprintf("f%02d", i),
				Name:     fmt.Sprintf("feature %d", i),
				Category: CategoryFunctional,
				Priority: vals[1].(int),
				Status:   status,
			}
			if vals[2].(bool) && i > 0 {
				f.DependsOn = []string{features[i-1].ID}
			}
			features = append(features, f)
		}
		return features
	})
}

func runnableSet(features []*Feature) []int {
	completed := map[string]bool{}
	for _, f := range features {
		if f.Status == StatusCompleted {
			completed[f.ID] = true
		}
	}
	var out []int
	for i, f := range features {
		if f.Status != StatusPending && f.Status != StatusInProgress {
			continue
		}
		ready := true
		for _, dep := range f.DependsOn {
			if !completed[dep] {
				ready = false
			}
		}
		if ready {
			out = append(out, i)
		}
	}
	return out
}

func TestSelectNextProperties(t *testing.T) {
	params := gopter.DefaultTestParameters()
	params.MinSuccessfulTests = 200
	properties := gopter.NewProperties(params)

	properties.Property("selection is runnable and dominant", prop.ForAll(
		func(features []*Feature) bool {
			s := &Store{features: features}
			got := s.SelectNext()
			runnable := runnableSet(features)

			if got == nil {
				return len(runnable) == 0
			}

			gotIdx := -1
			for _, i := range runnable {
				if features[i].ID == got.ID {
					gotIdx = i
				}
			}
			if gotIdx == -1 {
				return false // selected something unrunnable
			}

			gotProg := got.Status == StatusInProgress
			for _, i := range runnable {
				other := features[i]
				otherProg := other.Status == StatusInProgress
				// No runnable in_progress feature may lose to a pending one.
				if otherProg && !gotProg {
					return false
				}
				if otherProg != gotProg {
					continue
				}
				if other.Priority > got.Priority {
					return false
				}
				if other.Priority == got.Priority && i < gotIdx {
					return false
				}
			}
			return true
		},
		genBacklog(),
	))

	properties.Property("selection is deterministic", prop.ForAll(
		func(features []*Feature) bool {
			s := &Store{features: features}
			a, b := s.SelectNext(), s.SelectNext()
			if a == nil || b == nil {
				return a == nil && b == nil
			}
			return a.ID == b.ID
		},
		genBacklog(),
	))

	properties.TestingRun(t)
}
