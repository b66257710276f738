package alfr

import (
	"errors"
	"math"
	"math/rand"
	"sort"
)

var negInf = float32(math.Inf(-1))

// errNoCandidates is returned when every token was filtered out.
var errNoCandidates = errors.New("no candidate tokens left after filtering")

// Sampler picks the next token from raw logits. Logit processors run in a
// fixed order: min-length, repetition penalty, n-gram ban; then, when
// sampling, temperature, top-k and top-p before the multinomial draw.
type Sampler struct {
	params *SamplingParams
	rng    *rand.Rand
}

// NewSampler creates a sampler with its own RNG source
func NewSampler(params *SamplingParams, seed int64) *Sampler {
	return &Sampler{
		params: params,
		rng:    rand.New(rand.NewSource(seed)),
	}
}

// Next samples the token that follows seq. logits is not modified.
func (s *Sampler) Next(logits []float32, seq *Sequence, eosID int) (int, error) {
	if len(logits) == 0 {
		return 0, errors.New("empty logits")
	}
	scores := make([]float32, len(logits))
	copy(scores, logits)

	if seq.Len() < s.params.MinLength && eosID >= 0 && eosID < len(scores) {
		scores[eosID] = negInf
	}

	if s.params.RepetitionPenalty != 1.0 {
		applyRepetitionPenalty(scores, seq.TokenIDs, float32(s.params.RepetitionPenalty))
	}

	for _, id := range seq.BannedNext() {
		if id >= 0 && id < len(scores) {
			scores[id] = negInf
		}
	}

	if !s.params.DoSample {
		idx := argmax(scores)
		if scores[idx] == negInf {
			return 0, errNoCandidates
		}
		return idx, nil
	}

	if s.params.Temperature != 1.0 {
		inv := float32(1.0 / s.params.Temperature)
		for i := range scores {
			scores[i] *= inv
		}
	}

	if s.params.TopK > 0 && s.params.TopK < len(scores) {
		topKFiltering(scores, s.params.TopK)
	}

	probs, ok := softmax(scores)
	if !ok {
		return 0, errNoCandidates
	}

	if s.params.TopP < 1.0 {
		topPFiltering(probs, float32(s.params.TopP))
	}

	return s.sampleMultinomial(probs), nil
}

// applyRepetitionPenalty divides positive scores and multiplies negative
// ones for every distinct token already in the sequence.
func applyRepetitionPenalty(scores []float32, tokenIDs []int, penalty float32) {
	seen := make(map[int]struct{}, len(tokenIDs))
	for _, id := range tokenIDs {
		if id < 0 || id >= len(scores) {
			continue
		}
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		if scores[id] > 0 {
			scores[id] /= penalty
		} else {
			scores[id] *= penalty
		}
	}
}

func argmax(scores []float32) int {
	best := 0
	for i := 1; i < len(scores); i++ {
		if scores[i] > scores[best] {
			best = i
		}
	}
	return best
}

// softmax converts scores to probabilities. It reports false when every
// score is -inf.
func softmax(scores []float32) ([]float32, bool) {
	maxScore := scores[argmax(scores)]
	if maxScore == negInf {
		return nil, false
	}

	probs := make([]float32, len(scores))
	var sum float32
	for i, v := range scores {
		probs[i] = float32(math.Exp(float64(v - maxScore)))
		sum += probs[i]
	}
	for i := range probs {
		probs[i] /= sum
	}
	return probs, true
}

type indexedScore struct {
	idx   int
	value float32
}

func sortedDesc(values []float32) []indexedScore {
	indexed := make([]indexedScore, len(values))
	for i, v := range values {
		indexed[i] = indexedScore{i, v}
	}
	sort.SliceStable(indexed, func(i, j int) bool {
		return indexed[i].value > indexed[j].value
	})
	return indexed
}

// topKFiltering sets every score outside the k highest to -inf
func topKFiltering(scores []float32, k int) {
	for _, item := range sortedDesc(scores)[k:] {
		scores[item.idx] = negInf
	}
}

// topPFiltering keeps the smallest set of tokens whose cumulative
// probability reaches p and zeroes the rest
func topPFiltering(probs []float32, p float32) {
	indexed := sortedDesc(probs)

	var cum float32
	cutoff := len(indexed)
	for i, item := range indexed {
		cum += item.value
		if cum >= p {
			cutoff = i + 1
			break
		}
	}

	for _, item := range indexed[cutoff:] {
		probs[item.idx] = 0
	}
}

// sampleMultinomial samples from an unnormalized probability distribution
func (s *Sampler) sampleMultinomial(probs []float32) int {
	cumProbs := make([]float32, len(probs))
	cumProbs[0] = probs[0]
	for i := 1; i < len(probs); i++ {
		cumProbs[i] = cumProbs[i-1] + probs[i]
	}

	r := s.rng.Float32() * cumProbs[len(cumProbs)-1]

	idx := sort.Search(len(cumProbs), func(i int) bool {
		return cumProbs[i] > r
	})
	if idx >= len(probs) {
		idx = len(probs) - 1
	}
	return idx
}
