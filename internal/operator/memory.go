package operator

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"sort"
	"sync"

	"github.com/converge-ai/support-platform/internal/model"
	"github.com/converge-ai/support-platform/pkg/metrics"
)

// MemoryPool is an in-memory Pool for tests and single-node deployments.
// Load mutations take the pool mutex for the whole read-check-write, which is
// the compare-and-swap discipline the invariant requires.
type MemoryPool struct {
	mu        sync.Mutex
	operators map[string]*model.Operator
}

// NewMemoryPool creates an empty pool.
func NewMemoryPool() *MemoryPool {
	return &MemoryPool{operators: make(map[string]*model.Operator)}
}

// LoadFile seeds the pool from a JSON file holding a list of operators.
func (p *MemoryPool) LoadFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read operator seed: %w", err)
	}

	var seed struct {
		Operators []model.Operator `json:"operators"`
	}
	if err := json.Unmarshal(data, &seed); err != nil {
		return fmt.Errorf("failed to parse operator seed: %w", err)
	}

	for i := range seed.Operators {
		op := seed.Operators[i]
		if op.MaxLoad <= 0 {
			op.MaxLoad = model.DefaultMaxLoad
		}
		p.Add(op)
	}
	return nil
}

// Add registers an operator, replacing any existing record with the same ID.
func (p *MemoryPool) Add(op model.Operator) {
	if op.MaxLoad <= 0 {
		op.MaxLoad = model.DefaultMaxLoad
	}
	p.mu.Lock()
	p.operators[op.ID] = &op
	p.mu.Unlock()

	metrics.OperatorLoad.WithLabelValues(op.TenantID, op.ID).Set(float64(op.CurrentLoad))
}

// ListAvailable returns online operators with spare capacity, deterministic
// order: load ascending, then creation time, then ID.
func (p *MemoryPool) ListAvailable(ctx context.Context, tenantID string) ([]model.Operator, error) {
	p.mu.Lock()
	var out []model.Operator
	for _, op := range p.operators {
		if op.TenantID == tenantID && op.HasCapacity() {
			out = append(out, *op)
		}
	}
	p.mu.Unlock()

	sort.Slice(out, func(i, j int) bool {
		a, b := out[i], out[j]
		if a.CurrentLoad != b.CurrentLoad {
			return a.CurrentLoad < b.CurrentLoad
		}
		if !a.CreatedAt.Equal(b.CreatedAt) {
			return a.CreatedAt.Before(b.CreatedAt)
		}
		return a.ID < b.ID
	})

	return out, nil
}

// AdjustLoad atomically applies delta with bound checking.
func (p *MemoryPool) AdjustLoad(ctx context.Context, operatorID string, delta int) (*model.Operator, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	op, ok := p.operators[operatorID]
	if !ok {
		return nil, ErrNotFound
	}

	next := op.CurrentLoad + delta
	if delta > 0 && (!op.Online || next > op.MaxLoad) {
		return nil, ErrSaturated
	}
	if next < 0 {
		next = 0
	}
	op.CurrentLoad = next

	metrics.OperatorLoad.WithLabelValues(op.TenantID, op.ID).Set(float64(op.CurrentLoad))

	cp := *op
	return &cp, nil
}

// SetAvailability flips the operator online or offline.
func (p *MemoryPool) SetAvailability(ctx context.Context, operatorID string, online bool) (*model.Operator, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	op, ok := p.operators[operatorID]
	if !ok {
		return nil, ErrNotFound
	}
	op.Online = online

	cp := *op
	return &cp, nil
}

// Get returns one operator.
func (p *MemoryPool) Get(ctx context.Context, operatorID string) (*model.Operator, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	op, ok := p.operators[operatorID]
	if !ok {
		return nil, ErrNotFound
	}

	cp := *op
	return &cp, nil
}
