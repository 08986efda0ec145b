package aggregation

import (
	"sort"
	"sync"

	"github.com/aevon-lab/cohort/internal/core/partition"
	"github.com/aevon-lab/cohort/internal/core/row"
)

// Aggregate compiles spec against the iterator's columns and runs it.
func Aggregate(it row.Iterator, spec Spec) ([]AggregatedRow, error) {
	plan, err := Compile(spec, it.Columns())
	if err != nil {
		return nil, err
	}
	return plan.Aggregate(it)
}

// group is the accumulator state of one GroupKey.
type group struct {
	seq  int64 // input position of the group's first row
	key  GroupKey
	accs []Accumulator
}

// state is an isolated accumulator map. Nothing in it is shared between runs
// or shards.
type state struct {
	plan   *Plan
	index  map[string]*group
	groups []*group
}

func (p *Plan) newState() *state {
	return &state{plan: p, index: make(map[string]*group)}
}

func (p *Plan) keyOf(r row.Row) GroupKey {
	key := make(GroupKey, len(p.spec.GroupBy))
	for i, col := range p.spec.GroupBy {
		key[i] = r.Value(col)
	}
	return key
}

func (s *state) add(seq int64, key GroupKey, encoded []byte, r row.Row) {
	g, ok := s.index[string(encoded)]
	if !ok {
		g = &group{seq: seq, key: key, accs: make([]Accumulator, len(s.plan.reducers))}
		for i, cr := range s.plan.reducers {
			g.accs[i] = cr.agg.New(cr.spec)
		}
		s.index[string(encoded)] = g
		s.groups = append(s.groups, g)
	}
	for i, cr := range s.plan.reducers {
		if len(cr.spec.Where) > 0 && !cr.spec.Where.Match(r) {
			continue
		}
		if cr.star {
			g.accs[i].Add(row.Bool(true))
			continue
		}
		v := r.Value(cr.spec.Column)
		if v.IsNull() {
			continue
		}
		g.accs[i].Add(v)
	}
}

// Aggregate runs the plan over it in a single pass and returns one row per
// distinct GroupKey, minus groups rejected by having, in first-seen order.
// Iterator errors are returned unchanged.
func (p *Plan) Aggregate(it row.Iterator) ([]AggregatedRow, error) {
	st := p.newState()
	var seq int64
	var buf []byte
	for it.Next() {
		r := it.Row()
		key := p.keyOf(r)
		buf = buf[:0]
		for _, v := range key {
			buf = row.AppendKey(buf, v)
		}
		st.add(seq, key, buf, r)
		seq++
	}
	if err := it.Err(); err != nil {
		return nil, err
	}
	return p.finalize(st.groups), nil
}

type shardItem struct {
	seq     int64
	key     GroupKey
	encoded []byte
	row     row.Row
}

const shardBatchSize = 512

// AggregateSharded is Aggregate with rows spread over shards goroutines by
// GroupKey hash. Each shard owns a disjoint set of keys, so the result equals
// Aggregate's, including order.
func (p *Plan) AggregateSharded(it row.Iterator, shards int) ([]AggregatedRow, error) {
	if shards <= 1 {
		return p.Aggregate(it)
	}

	queues := make([]chan []shardItem, shards)
	states := make([]*state, shards)
	var wg sync.WaitGroup
	wg.Add(shards)
	for i := 0; i < shards; i++ {
		queues[i] = make(chan []shardItem, 4)
		states[i] = p.newState()
		go func(q <-chan []shardItem, st *state) {
			defer wg.Done()
			for batch := range q {
				for _, item := range batch {
					st.add(item.seq, item.key, item.encoded, item.row)
				}
			}
		}(queues[i], states[i])
	}

	pending := make([][]shardItem, shards)
	flush := func(i int) {
		if len(pending[i]) == 0 {
			return
		}
		queues[i] <- pending[i]
		pending[i] = make([]shardItem, 0, shardBatchSize)
	}

	var seq int64
	for it.Next() {
		r := it.Row()
		key := p.keyOf(r)
		encoded := key.Encode()
		i := partition.For(encoded, shards)
		pending[i] = append(pending[i], shardItem{seq: seq, key: key, encoded: encoded, row: r})
		if len(pending[i]) >= shardBatchSize {
			flush(i)
		}
		seq++
	}
	for i := range pending {
		flush(i)
		close(queues[i])
	}
	wg.Wait()

	if err := it.Err(); err != nil {
		return nil, err
	}

	var groups []*group
	for _, st := range states {
		groups = append(groups, st.groups...)
	}
	sort.Slice(groups, func(i, j int) bool { return groups[i].seq < groups[j].seq })
	return p.finalize(groups), nil
}

// finalize turns accumulator state into output rows: reducer results, then
// derived columns in declaration order, then the having filter.
func (p *Plan) finalize(groups []*group) []AggregatedRow {
	// a global aggregate over no rows still produces its single row
	if len(groups) == 0 && len(p.spec.GroupBy) == 0 {
		g := &group{accs: make([]Accumulator, len(p.reducers))}
		for i, cr := range p.reducers {
			g.accs[i] = cr.agg.New(cr.spec)
		}
		groups = []*group{g}
	}

	out := make([]AggregatedRow, 0, len(groups))
	nKey := len(p.spec.GroupBy)
	nRed := len(p.reducers)
	for _, g := range groups {
		vals := make([]row.Value, p.out.Len())
		copy(vals, g.key)
		for i, acc := range g.accs {
			vals[nKey+i] = acc.Result()
		}
		r := row.New(p.out, vals...)
		for i, fn := range p.derived {
			// later derived columns see the earlier ones
			vals[nKey+nRed+i] = fn(r)
			r = row.New(p.out, vals...)
		}
		if len(p.spec.Having) > 0 && !p.spec.Having.Match(r) {
			continue
		}
		out = append(out, AggregatedRow{Key: g.key, Row: r})
	}
	return out
}
