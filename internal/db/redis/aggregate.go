package redis

import (
	"context"
	"fmt"
	"strconv"

	"github.com/redis/rueidis"

	"github.com/kailas-cloud/redivec/internal/db"
)

// Aggregate runs a single-stage GROUPBY/REDUCE pipeline via FT.AGGREGATE.
// Row values on this path always arrive string-typed; the facade coerces
// them before they reach callers.
func (s *Store) Aggregate(ctx context.Context, req *db.AggregateRequest) (*db.AggregateResult, error) {
	if req.Index == "" {
		return nil, fmt.Errorf("index name is required")
	}
	if req.Query == "" {
		return nil, fmt.Errorf("query is required")
	}

	args := []string{req.Index, req.Query}

	if len(req.Load) > 0 {
		args = append(args, "LOAD", strconv.Itoa(len(req.Load)))
		for _, f := range req.Load {
			args = append(args, "@"+f)
		}
	}

	if req.GroupBy != "" {
		args = append(args, "GROUPBY", "1", "@"+req.GroupBy)
		if req.Reduce != "" {
			reduceAs := req.ReduceAs
			if reduceAs == "" {
				reduceAs = req.ReduceArg
			}
			args = append(args,
				"REDUCE", req.Reduce, "1", "@"+req.ReduceArg, "AS", reduceAs)
		}
	}

	if req.SortBy != "" {
		dir := "DESC"
		if req.SortAsc {
			dir = "ASC"
		}
		args = append(args, "SORTBY", "2", "@"+req.SortBy, dir)
	}

	if req.Limit > 0 {
		args = append(args, "LIMIT", "0", strconv.Itoa(req.Limit))
	}

	if len(req.Params) > 0 {
		args = append(args, "PARAMS", strconv.Itoa(len(req.Params)))
		args = append(args, req.Params...)
	}

	if req.Dialect > 0 {
		args = append(args, "DIALECT", strconv.Itoa(req.Dialect))
	}

	cmd := s.b().Arbitrary("FT.AGGREGATE").Args(args...).Build()
	raw, err := s.do(ctx, cmd).ToArray()
	if err != nil {
		if isRedisErr(err, "unknown index name") || isRedisErr(err, "no such index") {
			return nil, db.ErrIndexNotFound
		}
		return nil, &db.Error{Op: db.OpAggregate, Err: err}
	}

	return parseAggregateResult(raw)
}

// parseAggregateResult decodes the RESP2 FT.AGGREGATE reply:
// [total, row1, row2, ...] where each row is a flat [name, value, ...] array.
func parseAggregateResult(raw []rueidis.RedisMessage) (*db.AggregateResult, error) {
	if len(raw) == 0 {
		return &db.AggregateResult{}, nil
	}

	total, err := raw[0].AsInt64()
	if err != nil {
		return nil, fmt.Errorf("parse total: %w", err)
	}

	rows := make([]map[string]string, 0, len(raw)-1)
	for i := 1; i < len(raw); i++ {
		pairs, err := raw[i].ToArray()
		if err != nil {
			continue
		}
		rows = append(rows, parseFieldPairs(pairs))
	}

	return &db.AggregateResult{Total: int(total), Rows: rows}, nil
}
