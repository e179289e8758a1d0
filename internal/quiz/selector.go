package quiz

import "math/rand/v2"

// nextIndex picks the next question index from the indices not yet used. It returns false when
// the pool is exhausted. The random draw depends only on the seed and how many questions were
// already used, so a resumed session repeats the same sequence.
func nextIndex(random bool, seed int64, poolSize int, used []int, current int) (int, bool) {
	unused := unusedIndices(poolSize, used)
	if len(unused) == 0 {
		return -1, false
	}

	if random {
		rng := rand.New(rand.NewPCG(uint64(seed), uint64(len(used))))
		return unused[rng.IntN(len(unused))], true
	}

	next := current + 1
	if next > poolSize-1 {
		next = poolSize - 1
	}
	for _, idx := range unused {
		if idx >= next {
			return idx, true
		}
	}
	return unused[0], true
}

// unusedIndices returns the indices in [0, poolSize) not present in used, ascending.
func unusedIndices(poolSize int, used []int) []int {
	taken := make(map[int]struct{}, len(used))
	for _, idx := range used {
		taken[idx] = struct{}{}
	}
	out := make([]int, 0, poolSize)
	for i := 0; i < poolSize; i++ {
		if _, ok := taken[i]; !ok {
			out = append(out, i)
		}
	}
	return out
}
