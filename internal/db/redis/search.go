package redis

import (
	"context"
	"fmt"
	"strconv"

	"github.com/redis/rueidis"

	"github.com/kailas-cloud/redivec/internal/db"
)

// Search runs a rendered query via FT.SEARCH and parses the RESP2 reply.
func (s *Store) Search(ctx context.Context, req *db.SearchRequest) (*db.SearchResult, error) {
	if req.Index == "" {
		return nil, fmt.Errorf("index name is required")
	}
	if req.Query == "" {
		return nil, fmt.Errorf("query is required")
	}

	args := []string{req.Index, req.Query}

	if len(req.ReturnFields) > 0 {
		args = append(args, "RETURN", strconv.Itoa(len(req.ReturnFields)))
		args = append(args, req.ReturnFields...)
	}

	if req.SortBy != "" {
		dir := "DESC"
		if req.SortAsc {
			dir = "ASC"
		}
		args = append(args, "SORTBY", req.SortBy, dir)
	}

	args = append(args, "LIMIT", strconv.Itoa(req.Offset), strconv.Itoa(req.Limit))

	if len(req.Params) > 0 {
		args = append(args, "PARAMS", strconv.Itoa(len(req.Params)))
		args = append(args, req.Params...)
	}

	if req.Dialect > 0 {
		args = append(args, "DIALECT", strconv.Itoa(req.Dialect))
	}

	cmd := s.b().Arbitrary("FT.SEARCH").Args(args...).Build()
	raw, err := s.do(ctx, cmd).ToArray()
	if err != nil {
		if isRedisErr(err, "unknown index name") || isRedisErr(err, "no such index") {
			return nil, db.ErrIndexNotFound
		}
		return nil, &db.Error{Op: db.OpSearch, Err: err}
	}

	return parseSearchResult(raw)
}

// Count returns the number of matching documents via FT.SEARCH LIMIT 0 0.
func (s *Store) Count(ctx context.Context, index, query string, params []string) (int, error) {
	args := []string{index, query, "LIMIT", "0", "0"}
	if len(params) > 0 {
		args = append(args, "PARAMS", strconv.Itoa(len(params)))
		args = append(args, params...)
		args = append(args, "DIALECT", "2")
	}

	cmd := s.b().Arbitrary("FT.SEARCH").Args(args...).Build()
	raw, err := s.do(ctx, cmd).ToArray()
	if err != nil {
		if isRedisErr(err, "unknown index name") || isRedisErr(err, "no such index") {
			return 0, db.ErrIndexNotFound
		}
		return 0, &db.Error{Op: db.OpSearch, Err: err}
	}
	if len(raw) == 0 {
		return 0, nil
	}
	total, err := raw[0].AsInt64()
	if err != nil {
		return 0, fmt.Errorf("parse count: %w", err)
	}
	return int(total), nil
}

// parseSearchResult decodes the RESP2 FT.SEARCH reply:
// [total, key1, fields1, key2, fields2, ...] (2-stride).
func parseSearchResult(raw []rueidis.RedisMessage) (*db.SearchResult, error) {
	if len(raw) == 0 {
		return &db.SearchResult{}, nil
	}

	total, err := raw[0].AsInt64()
	if err != nil {
		return nil, fmt.Errorf("parse total: %w", err)
	}
	if total == 0 {
		return &db.SearchResult{Total: 0}, nil
	}

	entries := make([]db.SearchEntry, 0, total)
	for i := 1; i+1 < len(raw); i += 2 {
		key, err := raw[i].ToString()
		if err != nil {
			continue
		}

		fields, err := raw[i+1].ToArray()
		if err != nil {
			continue
		}

		entries = append(entries, db.SearchEntry{
			Key:    key,
			Fields: parseFieldPairs(fields),
		})
	}

	return &db.SearchResult{Total: int(total), Entries: entries}, nil
}

func parseFieldPairs(fields []rueidis.RedisMessage) map[string]string {
	m := make(map[string]string, len(fields)/2)
	for j := 0; j+1 < len(fields); j += 2 {
		name, err := fields[j].ToString()
		if err != nil {
			continue
		}
		value, err := fields[j+1].ToString()
		if err != nil {
			continue
		}
		m[name] = value
	}
	return m
}
