// Package scoring implements the pure, deterministic scoring model.
// Nothing in this package performs I/O; every
// function is a total function of its arguments so that journal folds
// are reproducible.
package scoring

import (
	"sort"
	"time"

	"verifyengine/internal/model"
)

// Applicable reports whether a method applies to a subject class.
func Applicable(method model.VerificationMethod, class model.SubjectClass) bool {
	score, ok := model.Scores[method]
	if !ok {
		return false
	}
	return score.ApplicableClasses[class]
}

// MaxMultiplier returns the method's maximum contributing completion
// count.
func MaxMultiplier(method model.VerificationMethod) int {
	return model.Scores[method].MaxMultiplier
}

// IsExpired reports whether a completion is expired at now (inclusive
// at exactly expires_at).
func IsExpired(c model.MethodCompletion, now time.Time) bool {
	return c.IsExpired(now)
}

// Score computes the trust score for a set of completions under a
// subject class: for every method applicable to class,
// sum min(live_count, max_multiplier) × base_points. Completions of
// non-applicable methods contribute zero — this can happen if a
// subject's class changes after a method was completed, which is not
// otherwise forbidden but must not silently inflate score.
func Score(completions map[model.VerificationMethod][]model.MethodCompletion, class model.SubjectClass, now time.Time) int {
	total := 0
	for method, cs := range completions {
		if !Applicable(method, class) {
			continue
		}
		live := 0
		for _, c := range cs {
			if c.Live(now) {
				live++
			}
		}
		max := model.Scores[method].MaxMultiplier
		if live > max {
			live = max
		}
		total += live * model.Scores[method].BasePoints
	}
	return total
}

// Level derives the qualitative verification band from score via a
// piecewise step function. Monotonic non-decreasing in
// score, and threshold-inclusive on the high side.
func Level(score int) model.Level {
	best := model.Unverified
	for level, threshold := range model.Thresholds {
		if score >= threshold && threshold >= model.Thresholds[best] {
			best = level
		}
	}
	return best
}

// NextLevelResult is the next_level query's output.
type NextLevelResult struct {
	CurrentLevel     model.Level
	TargetLevel      model.Level
	PointsNeeded     int
	ProgressPercent  float64
	SuggestedPaths   []Path
}

// Path is one ranked suggestion: a subset of not-yet-maxed applicable
// methods whose total added points covers the gap to TargetLevel.
type Path struct {
	Methods     []model.VerificationMethod
	TotalPoints int
	Effort      int // sum of per-method effort constants
}

// nextThreshold returns the smallest threshold strictly greater than
// score, and the level it belongs to; ok is false at Complete or beyond.
func nextThreshold(score int) (model.Level, int, bool) {
	type pair struct {
		level     model.Level
		threshold int
	}
	var pairs []pair
	for l, t := range model.Thresholds {
		pairs = append(pairs, pair{l, t})
	}
	sort.Slice(pairs, func(i, j int) bool { return pairs[i].threshold < pairs[j].threshold })
	for _, p := range pairs {
		if p.threshold > score {
			return p.level, p.threshold, true
		}
	}
	return "", 0, false
}

// NextLevel computes the target level, points needed, and up to 5 ranked
// candidate method subsets that would cross the gap.
// completedCounts maps method → current live completion count (so
// already-maxed methods are excluded from candidates).
func NextLevel(score int, class model.SubjectClass, completedCounts map[model.VerificationMethod]int) NextLevelResult {
	cur := Level(score)
	target, threshold, ok := nextThreshold(score)
	res := NextLevelResult{CurrentLevel: cur}
	if !ok {
		res.TargetLevel = cur
		res.ProgressPercent = 100
		return res
	}
	res.TargetLevel = target
	needed := threshold - score
	res.PointsNeeded = needed

	prevThreshold := model.Thresholds[cur]
	if threshold > prevThreshold {
		res.ProgressPercent = float64(score-prevThreshold) / float64(threshold-prevThreshold) * 100
	}

	// Candidate methods: applicable to class, not already at max
	// multiplier, each contributing its remaining headroom in points.
	var cands []candidate
	for _, m := range model.AllMethods {
		if !Applicable(m, class) {
			continue
		}
		sc := model.Scores[m]
		have := completedCounts[m]
		if have >= sc.MaxMultiplier {
			continue
		}
		remaining := sc.MaxMultiplier - have
		cands = append(cands, candidate{m, remaining * sc.BasePoints, int(sc.Effort) * remaining})
	}

	res.SuggestedPaths = suggestPaths(cands, needed)
	return res
}

type candidate struct {
	method model.VerificationMethod
	points int
	effort int
}

// suggestPaths finds small subsets of candidates whose total points
// cover `needed`, ranked by total-points ascending then
// estimated-effort ascending, with a deterministic lexicographic
// tie-break on method enum order. It searches subsets up
// to size 3 — sufficient for a ranked top-5 suggestion list without
// combinatorial blowup over the method table.
func suggestPaths(cands []candidate, needed int) []Path {
	if needed <= 0 {
		return nil
	}

	methodRank := make(map[model.VerificationMethod]int, len(model.AllMethods))
	for i, m := range model.AllMethods {
		methodRank[m] = i
	}

	var paths []Path
	n := len(cands)
	for i := 0; i < n; i++ {
		if cands[i].points >= needed {
			paths = append(paths, Path{Methods: []model.VerificationMethod{cands[i].method}, TotalPoints: cands[i].points, Effort: cands[i].effort})
			continue
		}
		for j := i + 1; j < n; j++ {
			sum := cands[i].points + cands[j].points
			if sum >= needed {
				paths = append(paths, Path{
					Methods:     sortMethods([]model.VerificationMethod{cands[i].method, cands[j].method}, methodRank),
					TotalPoints: sum,
					Effort:      cands[i].effort + cands[j].effort,
				})
				continue
			}
			for k := j + 1; k < n; k++ {
				sum3 := sum + cands[k].points
				if sum3 >= needed {
					paths = append(paths, Path{
						Methods:     sortMethods([]model.VerificationMethod{cands[i].method, cands[j].method, cands[k].method}, methodRank),
						TotalPoints: sum3,
						Effort:      cands[i].effort + cands[j].effort + cands[k].effort,
					})
				}
			}
		}
	}

	sort.SliceStable(paths, func(a, b int) bool {
		if paths[a].TotalPoints != paths[b].TotalPoints {
			return paths[a].TotalPoints < paths[b].TotalPoints
		}
		if paths[a].Effort != paths[b].Effort {
			return paths[a].Effort < paths[b].Effort
		}
		return lexLess(paths[a].Methods, paths[b].Methods, methodRank)
	})

	paths = dedupPaths(paths)
	if len(paths) > 5 {
		paths = paths[:5]
	}
	return paths
}

func sortMethods(ms []model.VerificationMethod, rank map[model.VerificationMethod]int) []model.VerificationMethod {
	sort.Slice(ms, func(i, j int) bool { return rank[ms[i]] < rank[ms[j]] })
	return ms
}

func lexLess(a, b []model.VerificationMethod, rank map[model.VerificationMethod]int) bool {
	for i := 0; i < len(a) && i < len(b); i++ {
		if rank[a[i]] != rank[b[i]] {
			return rank[a[i]] < rank[b[i]]
		}
	}
	return len(a) < len(b)
}

func pathKey(p Path) string {
	s := ""
	for _, m := range p.Methods {
		s += string(m) + ","
	}
	return s
}

func dedupPaths(paths []Path) []Path {
	seen := make(map[string]bool)
	var out []Path
	for _, p := range paths {
		k := pathKey(p)
		if seen[k] {
			continue
		}
		seen[k] = true
		out = append(out, p)
	}
	return out
}
