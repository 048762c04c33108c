package audit

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"
)

type stubReader struct {
	rows      []TimelineRow
	decisions []Decision
	err       error

	lastLimit  int
	lastOffset int
}

func (s *stubReader) TimelineWindow(ctx context.Context, f TimelineFilters, limit, offset int) ([]TimelineRow, error) {
	if s.err != nil {
		return nil, s.err
	}
	s.lastLimit = limit
	s.lastOffset = offset
	if offset >= len(s.rows) {
		return nil, nil
	}
	rows := s.rows[offset:]
	if len(rows) > limit {
		rows = rows[:limit]
	}
	return rows, nil
}

func (s *stubReader) TimelineAll(ctx context.Context, f TimelineFilters) ([]TimelineRow, error) {
	if s.err != nil {
		return nil, s.err
	}
	return s.rows, nil
}

func (s *stubReader) ListDecisions(ctx context.Context, f DecisionFilters, limit, offset int) ([]Decision, error) {
	if s.err != nil {
		return nil, s.err
	}
	if offset >= len(s.decisions) {
		return nil, nil
	}
	rows := s.decisions[offset:]
	if len(rows) > limit {
		rows = rows[:limit]
	}
	return rows, nil
}

func makeRows(n int) []TimelineRow {
	rows := make([]TimelineRow, n)
	base := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	for i := range rows {
		rows[i] = TimelineRow{
			At:     base.Add(time.Duration(i) * time.Minute),
			Actor:  "dashboard",
			Action: "grant.toggle",
			Entity: "profile",
		}
	}
	return rows
}

func TestTimelinePagingDetectsNextPage(t *testing.T) {
	repo := &stubReader{rows: makeRows(25)}
	svc := NewService(repo)

	result, err := svc.Timeline(context.Background(), TimelineFilters{Page: 1, PageSize: 20})
	if err != nil {
		t.Fatalf("timeline: %v", err)
	}
	if len(result.Rows) != 20 {
		t.Fatalf("expected 20 rows, got %d", len(result.Rows))
	}
	if !result.Paging.HasNext {
		t.Error("expected has_next on first page of 25 rows")
	}
	if result.Paging.NextPage != 2 {
		t.Errorf("expected next_page=2, got %d", result.Paging.NextPage)
	}
	if repo.lastLimit != 21 {
		t.Errorf("expected probe limit of page_size+1, got %d", repo.lastLimit)
	}
}

func TestTimelineLastPageHasNoNext(t *testing.T) {
	repo := &stubReader{rows: makeRows(25)}
	svc := NewService(repo)

	result, err := svc.Timeline(context.Background(), TimelineFilters{Page: 2, PageSize: 20})
	if err != nil {
		t.Fatalf("timeline: %v", err)
	}
	if len(result.Rows) != 5 {
		t.Fatalf("expected 5 rows, got %d", len(result.Rows))
	}
	if result.Paging.HasNext {
		t.Error("unexpected has_next on last page")
	}
	if result.Paging.PrevPage != 1 {
		t.Errorf("expected prev_page=1, got %d", result.Paging.PrevPage)
	}
}

func TestTimelineClampsPageSize(t *testing.T) {
	repo := &stubReader{rows: makeRows(120)}
	svc := NewService(repo)

	result, err := svc.Timeline(context.Background(), TimelineFilters{Page: 1, PageSize: 500})
	if err != nil {
		t.Fatalf("timeline: %v", err)
	}
	if result.Paging.PageSize != 50 {
		t.Errorf("expected page size clamped to 50, got %d", result.Paging.PageSize)
	}
}

func TestTimelinePropagatesRepositoryError(t *testing.T) {
	repo := &stubReader{err: errors.New("boom")}
	svc := NewService(repo)

	if _, err := svc.Timeline(context.Background(), TimelineFilters{}); err == nil {
		t.Fatal("expected error")
	}
}

func TestDecisionsPaging(t *testing.T) {
	decisions := make([]Decision, 30)
	for i := range decisions {
		decisions[i] = Decision{MemberID: int64(i + 1), Action: "read", Subject: "financeiro"}
	}
	svc := NewService(&stubReader{decisions: decisions})

	rows, paging, err := svc.Decisions(context.Background(), DecisionFilters{Page: 1, PageSize: 20})
	if err != nil {
		t.Fatalf("decisions: %v", err)
	}
	if len(rows) != 20 {
		t.Fatalf("expected 20 decisions, got %d", len(rows))
	}
	if !paging.HasNext {
		t.Error("expected has_next")
	}
}

func TestWriteCSVRendersHeaderAndRows(t *testing.T) {
	payload, err := WriteCSV(makeRows(2))
	if err != nil {
		t.Fatalf("write csv: %v", err)
	}
	lines := strings.Split(strings.TrimSpace(string(payload)), "\n")
	if len(lines) != 3 {
		t.Fatalf("expected header plus 2 rows, got %d lines", len(lines))
	}
	if lines[0] != "occurred_at,actor,action,entity,entity_id" {
		t.Errorf("unexpected header %q", lines[0])
	}
	if !strings.Contains(lines[1], "grant.toggle") {
		t.Errorf("row missing action: %q", lines[1])
	}
}
