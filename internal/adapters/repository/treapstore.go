package repository

import (
	"context"
	"fmt"
	"math"
	"math/rand/v2"
	"sync"
	"time"

	"github.com/okian/survcast/internal/domain/model"
	"github.com/okian/survcast/pkg/metrics"
)

// Treap-based, in-memory Worklist.
//
// Ordering: risk DESC, then patientID ASC. "less" means ranks earlier, so
// an in-order walk yields the worklist from most to least urgent. Subtree
// sizes give O(log n) rank lookups.

// riskScale is the fixed-point resolution of stored risk scores.
const riskScale = 1e12

type riskFP int64

func toFixedPoint(x float64) riskFP {
	if math.IsNaN(x) {
		return 0
	}
	return riskFP(math.Round(math.Max(0, math.Min(1, x)) * riskScale))
}

func toFloat(x riskFP) float64 {
	return float64(x) / riskScale
}

type record struct {
	risk riskFP
	a    model.Assessment
}

type node struct {
	id    string
	risk  riskFP
	prio  uint64
	left  *node
	right *node
	size  int
}

func nsize(n *node) int {
	if n == nil {
		return 0
	}
	return n.size
}

func fix(n *node) {
	if n != nil {
		n.size = 1 + nsize(n.left) + nsize(n.right)
	}
}

// less reports whether (aRisk, aID) is listed before (bRisk, bID).
func less(aRisk riskFP, aID string, bRisk riskFP, bID string) bool {
	if aRisk != bRisk {
		return aRisk > bRisk
	}
	return aID < bID
}

func rotateRight(y *node) *node {
	x := y.left
	y.left = x.right
	x.right = y
	fix(y)
	fix(x)
	return x
}

func rotateLeft(x *node) *node {
	y := x.right
	x.right = y.left
	y.left = x
	fix(x)
	fix(y)
	return y
}

func insert(n, nn *node) *node {
	if n == nil {
		return nn
	}
	if less(nn.risk, nn.id, n.risk, n.id) {
		n.left = insert(n.left, nn)
		if n.left.prio > n.prio {
			n = rotateRight(n)
		}
	} else {
		n.right = insert(n.right, nn)
		if n.right.prio > n.prio {
			n = rotateLeft(n)
		}
	}
	fix(n)
	return n
}

func deleteNode(n *node, id string, r riskFP) *node {
	if n == nil {
		return nil
	}
	switch {
	case r == n.risk && id == n.id:
		if n.left == nil {
			return n.right
		}
		if n.right == nil {
			return n.left
		}
		if n.left.prio > n.right.prio {
			n = rotateRight(n)
			n.right = deleteNode(n.right, id, r)
		} else {
			n = rotateLeft(n)
			n.left = deleteNode(n.left, id, r)
		}
	case less(r, id, n.risk, n.id):
		n.left = deleteNode(n.left, id, r)
	default:
		n.right = deleteNode(n.right, id, r)
	}
	fix(n)
	return n
}

// position is the zero-based in-order index of (id, r).
func position(n *node, id string, r riskFP) int {
	pos := 0
	for n != nil {
		switch {
		case r == n.risk && id == n.id:
			return pos + nsize(n.left)
		case less(r, id, n.risk, n.id):
			n = n.left
		default:
			pos += nsize(n.left) + 1
			n = n.right
		}
	}
	return -1
}

// collectTopN appends up to limit nodes in worklist order.
func collectTopN(n *node, limit int, out *[]*node) {
	if n == nil || len(*out) >= limit {
		return
	}
	collectTopN(n.left, limit, out)
	if len(*out) < limit {
		*out = append(*out, n)
	}
	if len(*out) < limit {
		collectTopN(n.right, limit, out)
	}
}

// TreapStore implements Worklist.
type TreapStore struct {
	mu   sync.RWMutex
	root *node
	byID map[string]record
	seed uint64
	rng  *rand.Rand
}

var _ Worklist = (*TreapStore)(nil)

// NewTreapStore constructs a treap store with configuration options.
func NewTreapStore(opts ...Option) *TreapStore {
	s := &TreapStore{
		byID: make(map[string]record),
		seed: uint64(time.Now().UnixNano()),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.rng = rand.New(rand.NewPCG(s.seed, s.seed^0x9e3779b97f4a7c15))
	metrics.UpdateWorklistSize(0)
	return s
}

// Record implements Worklist in O(log n) expected time.
func (s *TreapStore) Record(ctx context.Context, a model.Assessment) error {
	start := time.Now()
	defer func() {
		metrics.RecordRepositoryUpdateLatency(float64(time.Since(start).Milliseconds()))
	}()

	if a.PatientID == "" {
		return fmt.Errorf("%w: empty patient id", ErrInvalidAssessment)
	}
	if math.IsNaN(a.RiskScore) || a.RiskScore < 0 || a.RiskScore > 1 {
		return fmt.Errorf("%w: %s risk %v outside [0,1]", ErrInvalidAssessment, a.PatientID, a.RiskScore)
	}
	r := toFixedPoint(a.RiskScore)

	s.mu.Lock()
	if old, ok := s.byID[a.PatientID]; ok {
		s.root = deleteNode(s.root, a.PatientID, old.risk)
	}
	s.byID[a.PatientID] = record{risk: r, a: a}
	s.root = insert(s.root, &node{id: a.PatientID, risk: r, prio: s.rng.Uint64(), size: 1})
	n := len(s.byID)
	s.mu.Unlock()

	metrics.UpdateWorklistSize(n)
	return nil
}

// Rank implements Worklist in O(log n) expected time.
func (s *TreapStore) Rank(ctx context.Context, patientID string) (Entry, error) {
	start := time.Now()
	defer func() {
		metrics.RecordRepositoryQueryLatency(float64(time.Since(start).Milliseconds()))
	}()

	s.mu.RLock()
	defer s.mu.RUnlock()

	rec, ok := s.byID[patientID]
	if !ok {
		metrics.RecordErrorByComponent("repository", "not_found")
		return Entry{}, fmt.Errorf("%w: patient %s", ErrNotFound, patientID)
	}
	e := entry(rec)
	e.Rank = position(s.root, patientID, rec.risk) + 1
	return e, nil
}

// TopN implements Worklist.
func (s *TreapStore) TopN(ctx context.Context, n int) ([]Entry, error) {
	start := time.Now()
	defer func() {
		metrics.RecordRepositoryQueryLatency(float64(time.Since(start).Milliseconds()))
	}()

	if n < 1 {
		metrics.RecordErrorByComponent("repository", "invalid_limit")
		return nil, ErrInvalidLimit
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	nodes := make([]*node, 0, min(n, len(s.byID)))
	collectTopN(s.root, n, &nodes)
	out := make([]Entry, len(nodes))
	for i, nd := range nodes {
		out[i] = entry(s.byID[nd.id])
		out[i].Rank = i + 1
	}
	return out, nil
}

// Count implements Worklist.
func (s *TreapStore) Count(ctx context.Context) int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.byID)
}

func entry(rec record) Entry {
	return Entry{
		PatientID:               rec.a.PatientID,
		RiskScore:               toFloat(rec.risk),
		Tier:                    rec.a.Tier,
		PredictedSurvivalMonths: rec.a.PredictedSurvivalMonths,
		MedianReached:           rec.a.MedianReached,
		ScoredAt:                rec.a.ScoredAt,
	}
}
