// Package admission implements the AdmissionPolicy: weight accounting plus
// the TinyLFU admit/evict decision, grounded on the teacher's
// internal/cache/cache.go set()/isAdmissionControlAllowed() pair and
// internal/cache/db/eviction.go's sampled-victim selection, generalized
// from the teacher's "evict the whole group if over budget" rule to the
// spec's per-candidate accept/reject-with-reclaim algorithm.
package admission

import (
	"errors"
	"sort"

	"github.com/Borislavv/lfucache/internal/ledger"
	"github.com/Borislavv/lfucache/internal/sketch"
)

// ErrUnknownKey is returned by UpdateWeight for a key_id absent from the ledger.
var ErrUnknownKey = errors.New("admission: unknown key_id")

const defaultSampleSize = 5

// VictimSource samples candidate eviction victims from the store. Store
// implements this directly; admission never walks the store's own locking,
// it only asks for a small uniform sample of currently-held key_ids.
type VictimSource interface {
	SampleVictims(n int, exclude uint64) []uint64
}

// Candidate is the input to TryAdmit: a key proposed for insertion.
type Candidate struct {
	KeyID uint64
	Weight int64
}

// Decision is the admission verdict. Evicted lists the key_ids the caller
// (CommandExecutor) must remove from the store and TtlTicker.
type Decision struct {
	Admit   bool
	Evicted []uint64
}

// Policy is the AdmissionPolicy component (spec §4.D).
type Policy struct {
	cacheWeight int64
	sampleSize  int
	ledger      *ledger.Ledger
	estimator   *sketch.Estimator
	victims     VictimSource
}

// New builds a Policy bounded to cacheWeight, sampling up to sampleSize
// victims per eviction round (clamped to defaultSampleSize when <= 0).
func New(cacheWeight int64, sampleSize int, led *ledger.Ledger, est *sketch.Estimator, victims VictimSource) *Policy {
	if sampleSize <= 0 {
		sampleSize = defaultSampleSize
	}
	return &Policy{
		cacheWeight: cacheWeight,
		sampleSize:  sampleSize,
		ledger:      led,
		estimator:   est,
		victims:     victims,
	}
}

// TryAdmit runs the TinyLFU algorithm of spec §4.D steps 1-6.
func (p *Policy) TryAdmit(c Candidate) Decision {
	if c.Weight > p.cacheWeight {
		return Decision{Admit: false}
	}
	if p.ledger.UsedWeight()+c.Weight <= p.cacheWeight {
		p.ledger.Set(c.KeyID, c.Weight)
		return Decision{Admit: true}
	}

	selected, reclaimable, victimMax := p.selectVictims(c.Weight, c.KeyID)
	candidateEstimate := int(p.estimator.Estimate(c.KeyID)) + 1

	if candidateEstimate > victimMax && reclaimable >= c.Weight {
		for _, v := range selected {
			p.ledger.Delete(v)
		}
		p.ledger.Set(c.KeyID, c.Weight)
		return Decision{Admit: true, Evicted: selected}
	}
	return Decision{Admit: false}
}

// NoteDelete removes a key's weight bookkeeping, e.g. on an explicit Delete command.
func (p *Policy) NoteDelete(keyID uint64) {
	p.ledger.Delete(keyID)
}

func (p *Policy) WeightOf(keyID uint64) (int64, bool) {
	return p.ledger.WeightOf(keyID)
}

// UpdateWeight implements spec §4.D's update_weight contract used by upsert.
// A non-positive delta always applies directly; a positive delta that does
// not fit triggers the same victim-selection algorithm as TryAdmit, with
// keyID itself excluded from the victim pool.
func (p *Policy) UpdateWeight(keyID uint64, newWeight int64) (Decision, error) {
	old, ok := p.ledger.WeightOf(keyID)
	if !ok {
		return Decision{}, ErrUnknownKey
	}
	delta := newWeight - old
	if delta <= 0 {
		p.ledger.Set(keyID, newWeight)
		return Decision{Admit: true}, nil
	}
	if p.ledger.UsedWeight()+delta <= p.cacheWeight {
		p.ledger.Set(keyID, newWeight)
		return Decision{Admit: true}, nil
	}

	selected, reclaimable, victimMax := p.selectVictims(delta, keyID)
	candidateEstimate := int(p.estimator.Estimate(keyID)) + 1

	if candidateEstimate > victimMax && reclaimable >= delta {
		for _, v := range selected {
			p.ledger.Delete(v)
		}
		p.ledger.Set(keyID, newWeight)
		return Decision{Admit: true, Evicted: selected}, nil
	}
	return Decision{Admit: false}, nil
}

// selectVictims samples up to sampleSize keys (excluding exclude), sorts
// them by ascending frequency estimate, and walks them accumulating weight
// until need is covered. It returns the walked prefix, its total weight,
// and the highest estimate within that prefix.
func (p *Policy) selectVictims(need int64, exclude uint64) (selected []uint64, reclaimable int64, victimMax int) {
	sampled := p.victims.SampleVictims(p.sampleSize, exclude)
	if len(sampled) == 0 {
		return nil, 0, 0
	}

	estimates := make(map[uint64]int, len(sampled))
	for _, v := range sampled {
		estimates[v] = int(p.estimator.Estimate(v))
	}
	sort.Slice(sampled, func(i, j int) bool { return estimates[sampled[i]] < estimates[sampled[j]] })

	for _, v := range sampled {
		w, ok := p.ledger.WeightOf(v)
		if !ok {
			continue
		}
		selected = append(selected, v)
		reclaimable += w
		if estimates[v] > victimMax {
			victimMax = estimates[v]
		}
		if reclaimable >= need {
			break
		}
	}
	return selected, reclaimable, victimMax
}
