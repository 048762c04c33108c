package audit

import (
	"context"
	"fmt"
)

// Reader defines the repository contract the timeline service needs.
type Reader interface {
	TimelineWindow(ctx context.Context, f TimelineFilters, limit, offset int) ([]TimelineRow, error)
	TimelineAll(ctx context.Context, f TimelineFilters) ([]TimelineRow, error)
	ListDecisions(ctx context.Context, f DecisionFilters, limit, offset int) ([]Decision, error)
}

// Service coordinates audit trail reads.
type Service struct {
	repo Reader
}

// NewService creates the audit timeline service.
func NewService(repo Reader) *Service {
	return &Service{repo: repo}
}

// Timeline fetches one page of admin actions. It asks for one row
// beyond the page to learn whether a next page exists.
func (s *Service) Timeline(ctx context.Context, filters TimelineFilters) (Result, error) {
	if s.repo == nil {
		return Result{}, fmt.Errorf("audit: repository not configured")
	}
	page, pageSize := clampPaging(filters.Page, filters.PageSize)
	offset := (page - 1) * pageSize
	rows, err := s.repo.TimelineWindow(ctx, filters, pageSize+1, offset)
	if err != nil {
		return Result{}, err
	}
	hasNext := len(rows) > pageSize
	if hasNext {
		rows = rows[:pageSize]
	}
	paging := PagingInfo{Page: page, PageSize: pageSize, HasNext: hasNext}
	if page > 1 {
		paging.PrevPage = page - 1
	}
	if hasNext {
		paging.NextPage = page + 1
	}
	return Result{Rows: rows, Paging: paging}, nil
}

// Export fetches the full filtered trail without paging.
func (s *Service) Export(ctx context.Context, filters TimelineFilters) ([]TimelineRow, error) {
	if s.repo == nil {
		return nil, fmt.Errorf("audit: repository not configured")
	}
	return s.repo.TimelineAll(ctx, filters)
}

// Decisions fetches one page of the decision log.
func (s *Service) Decisions(ctx context.Context, filters DecisionFilters) ([]Decision, PagingInfo, error) {
	if s.repo == nil {
		return nil, PagingInfo{}, fmt.Errorf("audit: repository not configured")
	}
	page, pageSize := clampPaging(filters.Page, filters.PageSize)
	offset := (page - 1) * pageSize
	rows, err := s.repo.ListDecisions(ctx, filters, pageSize+1, offset)
	if err != nil {
		return nil, PagingInfo{}, err
	}
	hasNext := len(rows) > pageSize
	if hasNext {
		rows = rows[:pageSize]
	}
	paging := PagingInfo{Page: page, PageSize: pageSize, HasNext: hasNext}
	if page > 1 {
		paging.PrevPage = page - 1
	}
	if hasNext {
		paging.NextPage = page + 1
	}
	return rows, paging, nil
}

func clampPaging(page, pageSize int) (int, int) {
	if pageSize <= 0 {
		pageSize = 20
	}
	if pageSize > 50 {
		pageSize = 50
	}
	if page <= 0 {
		page = 1
	}
	return page, pageSize
}
