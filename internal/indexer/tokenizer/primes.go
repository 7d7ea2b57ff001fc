package tokenizer

// primeSource produces primes in ascending order. Emitted primes are retained
// so candidates can be trial-divided against earlier primes only.
type primeSource struct {
	known []uint64
}

func newPrimeSource() *primeSource {
	return &primeSource{known: []uint64{2, 3}}
}

// nextAfter returns the smallest prime strictly greater than n.
func (s *primeSource) nextAfter(n uint64) uint64 {
	for s.known[len(s.known)-1] <= n {
		s.grow()
	}
	// The caller's cursor always trails the newest prime, so scanning back
	// from the end finds the answer almost immediately.
	i := len(s.known) - 1
	for i > 0 && s.known[i-1] > n {
		i--
	}
	return s.known[i]
}

func (s *primeSource) grow() {
	candidate := s.known[len(s.known)-1] + 2
	for !s.isPrime(candidate) {
		candidate += 2
	}
	s.known = append(s.known, candidate)
}

func (s *primeSource) isPrime(n uint64) bool {
	for _, p := range s.known {
		if p*p > n {
			return true
		}
		if n%p == 0 {
			return false
		}
	}
	return true
}
