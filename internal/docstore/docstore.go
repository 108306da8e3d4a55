// Package docstore is the contract this backend has with its hosted
// document store: per-document atomic get/set/merge, narrow query
// predicates, and bounded batched writes. There is no cross-document
// transaction; callers that need consistency across documents re-derive
// state instead of relying on one (see internal/grading).
package docstore

import (
	"context"
	"encoding/json"
	"errors"

	"github.com/google/uuid"
)

const (
	// MaxDisjunctions is the store's cap on values in a single "in" or
	// "array-contains-any" predicate. Enforced in front of every backend,
	// including the ones whose native engine would allow more.
	MaxDisjunctions = 10

	// MaxBatchOps is the store's per-batch write ceiling. Larger cascades
	// must be split by the caller.
	MaxBatchOps = 500
)

var (
	ErrNotFound     = errors.New("document not found")
	ErrFanoutLimit  = errors.New("query exceeds disjunction limit")
	ErrBatchTooBig  = errors.New("batch exceeds max operation count")
	ErrEmptyQuery   = errors.New("query has no predicates")
	ErrBadPredicate = errors.New("unsupported predicate")
)

// Fields is the schema-less document body. Numeric values normalise to
// float64, timestamps to unix seconds.
type Fields map[string]interface{}

// FieldID addresses the document id in a predicate, the way backends
// expose their key column.
const FieldID = "id"

type Op string

const (
	OpEqual            Op = "=="
	OpGreaterOrEqual   Op = ">="
	OpLess             Op = "<"
	OpIn               Op = "in"
	OpArrayContainsAny Op = "array-contains-any"
)

type Where struct {
	Field string
	Op    Op
	Value interface{}
}

type Query struct {
	Collection string
	Wheres     []Where
	OrderField string
	Desc       bool
	LimitN     int
}

func NewQuery(collection string) Query { return Query{Collection: collection} }

func (q Query) Where(field string, op Op, value interface{}) Query {
	q.Wheres = append(q.Wheres, Where{Field: field, Op: op, Value: value})
	return q
}

func (q Query) OrderBy(field string, desc bool) Query {
	q.OrderField = field
	q.Desc = desc
	return q
}

func (q Query) Limit(n int) Query {
	q.LimitN = n
	return q
}

type Doc struct {
	Collection string
	ID         string
	Fields     Fields
}

// DataTo decodes the document body into a tagged struct.
func (d Doc) DataTo(v interface{}) error {
	buf, err := json.Marshal(d.Fields)
	if err != nil {
		return err
	}
	return json.Unmarshal(buf, v)
}

// FieldsOf encodes a tagged struct into a document body.
func FieldsOf(v interface{}) (Fields, error) {
	buf, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	var f Fields
	if err := json.Unmarshal(buf, &f); err != nil {
		return nil, err
	}
	return f, nil
}

// WriteOp is one operation inside a batch. Delete wins over Fields.
type WriteOp struct {
	Collection string
	ID         string
	Fields     Fields
	Merge      bool
	Delete     bool
}

type Store interface {
	Get(ctx context.Context, collection, id string) (Doc, error)
	Set(ctx context.Context, collection, id string, fields Fields, merge bool) error
	Delete(ctx context.Context, collection, id string) error
	Run(ctx context.Context, q Query) ([]Doc, error)
	BatchWrite(ctx context.Context, ops []WriteOp) error
}

// serverTimestamp is the sentinel backends replace with their clock at
// write time.
type serverTimestamp struct{}

// ServerTimestamp marks a field for server-side time resolution.
var ServerTimestamp interface{} = serverTimestamp{}

// NewID returns a fresh document id.
func NewID() string { return uuid.NewString() }

func validateQuery(q Query) error {
	if len(q.Wheres) == 0 {
		return ErrEmptyQuery
	}
	for _, w := range q.Wheres {
		switch w.Op {
		case OpEqual, OpGreaterOrEqual, OpLess:
		case OpIn, OpArrayContainsAny:
			vals, ok := w.Value.([]string)
			if !ok {
				return ErrBadPredicate
			}
			if len(vals) == 0 {
				return ErrEmptyQuery
			}
			if len(vals) > MaxDisjunctions {
				return ErrFanoutLimit
			}
		default:
			return ErrBadPredicate
		}
	}
	return nil
}

func validateBatch(ops []WriteOp) error {
	if len(ops) > MaxBatchOps {
		return ErrBatchTooBig
	}
	return nil
}

// resolveTimestamps replaces ServerTimestamp sentinels with the given unix
// time. Returns a copy; the input is not mutated.
func resolveTimestamps(fields Fields, now int64) Fields {
	out := make(Fields, len(fields))
	for k, v := range fields {
		if _, ok := v.(serverTimestamp); ok {
			out[k] = now
			continue
		}
		out[k] = v
	}
	return out
}
