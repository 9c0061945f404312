package quizengine

import (
	"math/rand"
	"sync"
	"time"
)

// RandomizedOptions is the outcome of shuffling one question's options
type RandomizedOptions struct {
	Options      []ParsedOption
	CorrectLabel string // empty when no option was marked correct
}

// OptionRandomizer shuffles options and relabels them A, B, C, ...
type OptionRandomizer struct {
	mu  sync.Mutex
	rng *rand.Rand
}

// NewOptionRandomizer creates a randomizer seeded from the clock
func NewOptionRandomizer() *OptionRandomizer {
	return NewSeededRandomizer(time.Now().UnixNano())
}

// NewSeededRandomizer creates a randomizer with a fixed seed
func NewSeededRandomizer(seed int64) *OptionRandomizer {
	return &OptionRandomizer{rng: rand.New(rand.NewSource(seed))}
}

// Randomize applies a Fisher-Yates shuffle and assigns canonical labels by
// position. The first option marked correct before the shuffle determines
// CorrectLabel; when none is marked, CorrectLabel is empty.
func (r *OptionRandomizer) Randomize(options []ParsedOption) RandomizedOptions {
	if len(options) == 0 {
		return RandomizedOptions{Options: []ParsedOption{}}
	}

	correctIdx := -1
	for i, opt := range options {
		if opt.IsCorrect {
			correctIdx = i
			break
		}
	}

	order := make([]int, len(options))
	for i := range order {
		order[i] = i
	}
	r.mu.Lock()
	for i := len(order) - 1; i > 0; i-- {
		j := r.rng.Intn(i + 1)
		order[i], order[j] = order[j], order[i]
	}
	r.mu.Unlock()

	result := RandomizedOptions{Options: make([]ParsedOption, len(options))}
	for pos, src := range order {
		label := canonicalLabel(pos)
		result.Options[pos] = ParsedOption{
			Label:     label,
			Text:      options[src].Text,
			IsCorrect: src == correctIdx,
		}
		if src == correctIdx {
			result.CorrectLabel = label
		}
	}
	return result
}

// Shuffle permutes n indexes with the randomizer's source.
func (r *OptionRandomizer) Shuffle(n int, swap func(i, j int)) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.rng.Shuffle(n, swap)
}

func canonicalLabel(pos int) string {
	return string(rune('A' + pos))
}
