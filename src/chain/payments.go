package chain

import (
	"bytes"
	"sync"
)

// ScheduleWindow is how many blocks ahead a payee counts as scheduled.
const ScheduleWindow = 8

// InmemPayments records which payee each block paid.
type InmemPayments struct {
	mu     sync.RWMutex
	payees map[int][]byte
}

// NewInmemPayments ...
func NewInmemPayments() *InmemPayments {
	return &InmemPayments{
		payees: make(map[int][]byte),
	}
}

// SetPayee records the payee of the block at height.
func (p *InmemPayments) SetPayee(height int, payee []byte) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.payees[height] = append([]byte(nil), payee...)
}

// PayeeAt implements Payments.
func (p *InmemPayments) PayeeAt(height int) ([]byte, bool) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	payee, ok := p.payees[height]
	return payee, ok
}

// IsScheduled implements Payments.
func (p *InmemPayments) IsScheduled(payee []byte, height int) bool {
	p.mu.RLock()
	defer p.mu.RUnlock()
	for h := height; h <= height+ScheduleWindow; h++ {
		if bytes.Equal(p.payees[h], payee) {
			return true
		}
	}
	return false
}

// Prune forgets payees of blocks below height.
func (p *InmemPayments) Prune(height int) {
	p.mu.Lock()
	defer p.mu.Unlock()
	for h := range p.payees {
		if h < height {
			delete(p.payees, h)
		}
	}
}
