package docstore

import (
	"context"
	"sort"
	"sync"
	"time"
)

// memoryStore keeps every document in process memory. Used by the test
// suites and by memory-driver deployments.
type memoryStore struct {
	mu   sync.RWMutex
	data map[string]map[string]Fields // collection -> id -> fields
	now  func() int64
}

func NewMemoryStore() Store {
	return NewMemoryStoreAt(func() int64 { return time.Now().Unix() })
}

// NewMemoryStoreAt pins the store clock; tests use it to make server
// timestamps deterministic.
func NewMemoryStoreAt(now func() int64) Store {
	return &memoryStore{
		data: map[string]map[string]Fields{},
		now:  now,
	}
}

func (m *memoryStore) Get(_ context.Context, collection, id string) (Doc, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	f, ok := m.data[collection][id]
	if !ok {
		return Doc{}, ErrNotFound
	}
	return Doc{Collection: collection, ID: id, Fields: copyFields(f)}, nil
}

func (m *memoryStore) Set(_ context.Context, collection, id string, fields Fields, merge bool) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.apply(WriteOp{Collection: collection, ID: id, Fields: fields, Merge: merge})
	return nil
}

func (m *memoryStore) Delete(_ context.Context, collection, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.data[collection], id)
	return nil
}

func (m *memoryStore) BatchWrite(_ context.Context, ops []WriteOp) error {
	if err := validateBatch(ops); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, op := range ops {
		m.apply(op)
	}
	return nil
}

// apply assumes the write lock is held.
func (m *memoryStore) apply(op WriteOp) {
	coll := m.data[op.Collection]
	if coll == nil {
		coll = map[string]Fields{}
		m.data[op.Collection] = coll
	}
	if op.Delete {
		delete(coll, op.ID)
		return
	}
	fields := resolveTimestamps(op.Fields, m.now())
	if op.Merge {
		if existing, ok := coll[op.ID]; ok {
			merged := copyFields(existing)
			for k, v := range fields {
				merged[k] = v
			}
			coll[op.ID] = merged
			return
		}
	}
	coll[op.ID] = copyFields(fields)
}

func (m *memoryStore) Run(_ context.Context, q Query) ([]Doc, error) {
	if err := validateQuery(q); err != nil {
		return nil, err
	}
	m.mu.RLock()
	var out []Doc
	for id, fields := range m.data[q.Collection] {
		if matches(id, fields, q.Wheres) {
			out = append(out, Doc{Collection: q.Collection, ID: id, Fields: copyFields(fields)})
		}
	}
	m.mu.RUnlock()
	applyOrderLimit(&out, q)
	return out, nil
}

func copyFields(f Fields) Fields {
	out := make(Fields, len(f))
	for k, v := range f {
		if s, ok := v.([]string); ok {
			out[k] = append([]string(nil), s...)
			continue
		}
		if s, ok := v.([]interface{}); ok {
			out[k] = append([]interface{}(nil), s...)
			continue
		}
		out[k] = v
	}
	return out
}

// matches evaluates every predicate against one document. Shared by the
// memory and SQL backends so both resolve predicates identically.
func matches(id string, fields Fields, wheres []Where) bool {
	for _, w := range wheres {
		var val interface{}
		if w.Field == FieldID {
			val = id
		} else {
			val = fields[w.Field]
		}
		switch w.Op {
		case OpEqual:
			if !valueEqual(val, w.Value) {
				return false
			}
		case OpGreaterOrEqual:
			c, ok := compareValues(val, w.Value)
			if !ok || c < 0 {
				return false
			}
		case OpLess:
			c, ok := compareValues(val, w.Value)
			if !ok || c >= 0 {
				return false
			}
		case OpIn:
			if !stringIn(val, w.Value.([]string)) {
				return false
			}
		case OpArrayContainsAny:
			if !arrayContainsAny(val, w.Value.([]string)) {
				return false
			}
		}
	}
	return true
}

func applyOrderLimit(docs *[]Doc, q Query) {
	if q.OrderField != "" {
		sort.SliceStable(*docs, func(i, j int) bool {
			a := (*docs)[i].Fields[q.OrderField]
			b := (*docs)[j].Fields[q.OrderField]
			c, ok := compareValues(a, b)
			if !ok {
				return false
			}
			if q.Desc {
				return c > 0
			}
			return c < 0
		})
	}
	if q.LimitN > 0 && len(*docs) > q.LimitN {
		*docs = (*docs)[:q.LimitN]
	}
}

func valueEqual(a, b interface{}) bool {
	if c, ok := compareValues(a, b); ok {
		return c == 0
	}
	ab, aok := a.(bool)
	bb, bok := b.(bool)
	if aok && bok {
		return ab == bb
	}
	return a == b
}

// compareValues orders two scalar values, normalising numeric types.
func compareValues(a, b interface{}) (int, bool) {
	if af, ok := toFloat(a); ok {
		bf, ok := toFloat(b)
		if !ok {
			return 0, false
		}
		switch {
		case af < bf:
			return -1, true
		case af > bf:
			return 1, true
		}
		return 0, true
	}
	as, aok := a.(string)
	bs, bok := b.(string)
	if aok && bok {
		switch {
		case as < bs:
			return -1, true
		case as > bs:
			return 1, true
		}
		return 0, true
	}
	return 0, false
}

func toFloat(v interface{}) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	}
	return 0, false
}

func stringIn(val interface{}, set []string) bool {
	s, ok := val.(string)
	if !ok {
		return false
	}
	for _, x := range set {
		if x == s {
			return true
		}
	}
	return false
}

func arrayContainsAny(val interface{}, set []string) bool {
	members := toStringSlice(val)
	for _, m := range members {
		for _, x := range set {
			if m == x {
				return true
			}
		}
	}
	return false
}

func toStringSlice(v interface{}) []string {
	switch arr := v.(type) {
	case []string:
		return arr
	case []interface{}:
		out := make([]string, 0, len(arr))
		for _, e := range arr {
			if s, ok := e.(string); ok {
				out = append(out, s)
			}
		}
		return out
	}
	return nil
}
