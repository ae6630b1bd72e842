package steel

import (
	"context"
	"fmt"
	"time"

	"github.com/moldworks-erp/moldworks-erp/internal/shared"
)

// RepositoryPort defines data access methods for steel tags.
type RepositoryPort interface {
	GetTag(ctx context.Context, id int64) (Tag, error)
	UpdateTag(ctx context.Context, tag Tag) error
	CreateTag(ctx context.Context, tag Tag) (Tag, error)
	ListTagsByStatus(ctx context.Context, status Status) ([]Tag, error)
}

// AuditPort abstracts audit logging functionality.
type AuditPort interface {
	Record(ctx context.Context, log shared.AuditLog) error
}

// Service owns every steel tag status transition. A failed transition never
// mutates the tag.
type Service struct {
	repo  RepositoryPort
	audit AuditPort
	now   func() time.Time
}

// NewService builds Service instance.
func NewService(repo RepositoryPort, audit AuditPort) *Service {
	return &Service{repo: repo, audit: audit, now: time.Now}
}

// WithNow overrides the clock for testing.
func (s *Service) WithNow(now func() time.Time) {
	if now != nil {
		s.now = now
	}
}

// Register creates a new tag in AVAILABLE state.
func (s *Service) Register(ctx context.Context, tag Tag) (Tag, error) {
	if tag.TagNo == "" || tag.MaterialID == 0 {
		return Tag{}, fmt.Errorf("%w: tag number and material required", shared.ErrValidation)
	}
	tag.Status = StatusAvailable
	tag.CreatedAt = s.now()
	tag.UpdatedAt = tag.CreatedAt
	return s.repo.CreateTag(ctx, tag)
}

// Allocate reserves an AVAILABLE tag for a project.
func (s *Service) Allocate(ctx context.Context, tagID, projectID int64) (Tag, error) {
	if projectID == 0 {
		return Tag{}, ErrProjectRequired
	}
	return s.transition(ctx, tagID, ActionAllocate, func(tag *Tag) {
		tag.ProjectID = projectID
	})
}

// Issue moves an ALLOCATED tag into use and stamps the issue time.
func (s *Service) Issue(ctx context.Context, tagID int64) (Tag, error) {
	return s.transition(ctx, tagID, ActionIssue, func(tag *Tag) {
		issuedAt := s.now()
		tag.IssuedAt = &issuedAt
	})
}

// Complete marks an IN_USE tag as fully consumed. Terminal.
func (s *Service) Complete(ctx context.Context, tagID int64) (Tag, error) {
	return s.transition(ctx, tagID, ActionComplete, nil)
}

// Scrap writes off an IN_USE tag. Terminal.
func (s *Service) Scrap(ctx context.Context, tagID int64) (Tag, error) {
	return s.transition(ctx, tagID, ActionScrap, nil)
}

// Actions returns the legal actions for a tag's current state.
func (s *Service) Actions(ctx context.Context, tagID int64) ([]Action, error) {
	tag, err := s.repo.GetTag(ctx, tagID)
	if err != nil {
		return nil, err
	}
	return AvailableActions(tag.Status), nil
}

// ListByStatus lists tags in one lifecycle state.
func (s *Service) ListByStatus(ctx context.Context, status Status) ([]Tag, error) {
	return s.repo.ListTagsByStatus(ctx, status)
}

// transition loads the tag, resolves the table, applies the mutation, and
// persists. The mutation func runs only after the transition is validated.
func (s *Service) transition(ctx context.Context, tagID int64, action Action, mutate func(*Tag)) (Tag, error) {
	tag, err := s.repo.GetTag(ctx, tagID)
	if err != nil {
		return Tag{}, err
	}
	to, err := nextStatus(tag.Status, action)
	if err != nil {
		return Tag{}, err
	}
	from := tag.Status
	tag.Status = to
	if mutate != nil {
		mutate(&tag)
	}
	tag.UpdatedAt = s.now()
	if err := s.repo.UpdateTag(ctx, tag); err != nil {
		return Tag{}, err
	}
	if s.audit != nil {
		_ = s.audit.Record(ctx, shared.AuditLog{
			Module: "steel",
			Action: fmt.Sprintf("tag.%s", action),
			Ref:    fmt.Sprintf("%d", tag.ID),
			Meta:   map[string]any{"from": string(from), "to": string(to), "tag_no": tag.TagNo},
			At:     s.now(),
		})
	}
	return tag, nil
}
