package executor

import (
	"math"
	"slices"
)

// quantileEstimator is a streaming estimator of a single quantile, using the
// P-Square algorithm (Jain and Chlamtac, CACM 28(10), 1985): five markers
// track the minimum, p/2, p, (1+p)/2 and the maximum, and are nudged towards
// their ideal positions with a piecewise-parabolic fit as observations
// arrive. Memory and per-observation cost are constant.
//
// Not safe for concurrent use.
type quantileEstimator struct {
	p       float64
	height  [5]float64
	pos     [5]int
	want    [5]float64
	step    [5]float64
	count   int
	warmup  [5]float64
	started bool
}

func newQuantileEstimator(p float64) quantileEstimator {
	p = math.Max(0, math.Min(1, p))
	return quantileEstimator{
		p:    p,
		step: [5]float64{0, p / 2, p, (1 + p) / 2, 1},
	}
}

func (q *quantileEstimator) observe(x float64) {
	q.count++
	if !q.started {
		q.warmup[q.count-1] = x
		if q.count == len(q.warmup) {
			q.start()
		}
		return
	}

	var cell int
	switch {
	case x < q.height[0]:
		q.height[0] = x
	case x >= q.height[4]:
		q.height[4] = x
		cell = 3
	default:
		for cell < 3 && x >= q.height[cell+1] {
			cell++
		}
	}
	for i := cell + 1; i < 5; i++ {
		q.pos[i]++
	}
	for i := range q.want {
		q.want[i] += q.step[i]
	}

	for i := 1; i < 4; i++ {
		d := q.want[i] - float64(q.pos[i])
		if !(d >= 1 && q.pos[i+1]-q.pos[i] > 1) && !(d <= -1 && q.pos[i-1]-q.pos[i] < -1) {
			continue
		}
		dir := 1
		if d < 0 {
			dir = -1
		}
		if h := q.parabolic(i, dir); q.height[i-1] < h && h < q.height[i+1] {
			q.height[i] = h
		} else {
			q.height[i] = q.linear(i, dir)
		}
		q.pos[i] += dir
	}
}

func (q *quantileEstimator) start() {
	slices.Sort(q.warmup[:])
	q.height = q.warmup
	q.pos = [5]int{0, 1, 2, 3, 4}
	q.want = [5]float64{0, 2 * q.p, 4 * q.p, 2 + 2*q.p, 4}
	q.started = true
}

func (q *quantileEstimator) parabolic(i, dir int) float64 {
	d := float64(dir)
	n0, n1, n2 := float64(q.pos[i-1]), float64(q.pos[i]), float64(q.pos[i+1])
	return q.height[i] + d/(n2-n0)*
		((n1-n0+d)*(q.height[i+1]-q.height[i])/(n2-n1)+
			(n2-n1-d)*(q.height[i]-q.height[i-1])/(n1-n0))
}

func (q *quantileEstimator) linear(i, dir int) float64 {
	j := i + dir
	return q.height[i] + float64(dir)*(q.height[j]-q.height[i])/float64(q.pos[j]-q.pos[i])
}

// value returns the current estimate, or zero with no observations.
func (q *quantileEstimator) value() float64 {
	switch {
	case q.count == 0:
		return 0
	case !q.started:
		buf := slices.Clone(q.warmup[:q.count])
		slices.Sort(buf)
		return buf[int(float64(q.count-1)*q.p)]
	default:
		return q.height[2]
	}
}

// quantileSet tracks several quantiles of one stream, plus its sum and max.
//
// Not safe for concurrent use.
type quantileSet struct {
	estimators []quantileEstimator
	sum        float64
	max        float64
	count      int
}

func newQuantileSet(ps ...float64) *quantileSet {
	s := &quantileSet{estimators: make([]quantileEstimator, len(ps))}
	for i, p := range ps {
		s.estimators[i] = newQuantileEstimator(p)
	}
	return s
}

func (s *quantileSet) observe(x float64) {
	if s.count == 0 || x > s.max {
		s.max = x
	}
	s.count++
	s.sum += x
	for i := range s.estimators {
		s.estimators[i].observe(x)
	}
}

// quantile returns the estimate of the i-th configured quantile.
func (s *quantileSet) quantile(i int) float64 {
	if i < 0 || i >= len(s.estimators) {
		return 0
	}
	return s.estimators[i].value()
}

func (s *quantileSet) mean() float64 {
	if s.count == 0 {
		return 0
	}
	return s.sum / float64(s.count)
}
