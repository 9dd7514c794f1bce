package queue

import (
	"fmt"
	"strconv"
	"strings"
	"sync"

	"jewelshot/internal/domain"
)

// DefaultWeights drains interactive work six times as often as low-priority
// work while still visiting every lane each cycle.
var DefaultWeights = map[domain.Lane]int{
	domain.LaneInteractive: 6,
	domain.LaneBatch:       3,
	domain.LaneLow:         1,
}

// ParseWeights reads "interactive=6,batch=3,low=1". Lanes that are not listed
// get weight 1.
func ParseWeights(raw string) (map[domain.Lane]int, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return DefaultWeights, nil
	}
	weights := make(map[domain.Lane]int)
	for _, lane := range domain.Lanes() {
		weights[lane] = 1
	}
	for _, part := range strings.Split(raw, ",") {
		name, value, ok := strings.Cut(strings.TrimSpace(part), "=")
		if !ok {
			return nil, fmt.Errorf("lane weight %q: expected lane=weight", part)
		}
		lane, err := domain.ParseLane(name)
		if err != nil || strings.TrimSpace(name) == "" {
			return nil, fmt.Errorf("lane weight %q: unknown lane", part)
		}
		w, err := strconv.Atoi(strings.TrimSpace(value))
		if err != nil || w <= 0 {
			return nil, fmt.Errorf("lane weight %q: weight must be a positive integer", part)
		}
		weights[lane] = w
	}
	return weights, nil
}

type laneWeight struct {
	lane    domain.Lane
	weight  int
	current int
}

// Selector picks lanes with smooth weighted round robin: over any cycle of
// sum(weights) picks each lane is chosen exactly weight times and picks of the
// same lane are spread out.
type Selector struct {
	mu    sync.Mutex
	lanes []*laneWeight
	total int
}

func NewSelector(weights map[domain.Lane]int) *Selector {
	s := &Selector{}
	for _, lane := range domain.Lanes() {
		w := weights[lane]
		if w <= 0 {
			w = 1
		}
		s.lanes = append(s.lanes, &laneWeight{lane: lane, weight: w})
		s.total += w
	}
	return s
}

// Next returns the lane to try first.
func (s *Selector) Next() domain.Lane {
	s.mu.Lock()
	defer s.mu.Unlock()
	var best *laneWeight
	for _, lw := range s.lanes {
		lw.current += lw.weight
		if best == nil || lw.current > best.current {
			best = lw
		}
	}
	best.current -= s.total
	return best.lane
}

// Order returns the lane picked by Next followed by the remaining lanes in
// priority order, so an empty lane never leaves a worker idle.
func (s *Selector) Order() []domain.Lane {
	first := s.Next()
	order := []domain.Lane{first}
	for _, lane := range domain.Lanes() {
		if lane != first {
			order = append(order, lane)
		}
	}
	return order
}
