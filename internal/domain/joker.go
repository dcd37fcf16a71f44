package domain

import "math/rand"

// EliminateOptions computes the reduced option set revealed by a joker.
//
// Up to two wrong options are removed at random. Then, with probability 0.5
// and only when the full set has an even size of at least four, the set is
// cut to exactly half the original size: all correct options first, topped
// up with surviving wrong options picked at random. Correct options are
// never removed and the result always keeps at least two options.
func EliminateOptions(options []Option, rnd *rand.Rand) []Option {
	var correct, wrong []Option
	for _, opt := range options {
		if opt.Correct {
			correct = append(correct, opt)
		} else {
			wrong = append(wrong, opt)
		}
	}

	removed := make(map[string]bool)
	removeCount := 2
	if len(wrong) < removeCount {
		removeCount = len(wrong)
	}
	if len(options)-removeCount < 2 {
		removeCount = len(options) - 2
		if removeCount < 0 {
			removeCount = 0
		}
	}
	for _, i := range rnd.Perm(len(wrong))[:removeCount] {
		removed[wrong[i].ID] = true
	}

	var available []Option
	for _, opt := range wrong {
		if !removed[opt.ID] {
			available = append(available, opt)
		}
	}

	if rnd.Float64() < 0.5 && len(options) >= 4 && len(options)%2 == 0 {
		target := len(options) / 2
		remaining := append([]Option(nil), correct...)
		needed := target - len(remaining)
		if needed > len(available) {
			needed = len(available)
		}
		if needed > 0 {
			for _, i := range rnd.Perm(len(available))[:needed] {
				remaining = append(remaining, available[i])
			}
		}
		return remaining
	}

	// Keep the original order: everything except the removed wrong options.
	remaining := make([]Option, 0, len(options)-len(removed))
	for _, opt := range options {
		if !removed[opt.ID] {
			remaining = append(remaining, opt)
		}
	}
	return remaining
}
