package steel

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/moldworks-erp/moldworks-erp/internal/shared"
)

type memoryRepo struct {
	tags   map[int64]Tag
	nextID int64
}

func newMemoryRepo() *memoryRepo {
	return &memoryRepo{tags: make(map[int64]Tag)}
}

func (r *memoryRepo) GetTag(ctx context.Context, id int64) (Tag, error) {
	if tag, ok := r.tags[id]; ok {
		return tag, nil
	}
	return Tag{}, ErrTagNotFound
}

func (r *memoryRepo) UpdateTag(ctx context.Context, tag Tag) error {
	if _, ok := r.tags[tag.ID]; !ok {
		return ErrTagNotFound
	}
	r.tags[tag.ID] = tag
	return nil
}

func (r *memoryRepo) CreateTag(ctx context.Context, tag Tag) (Tag, error) {
	r.nextID++
	tag.ID = r.nextID
	r.tags[tag.ID] = tag
	return tag, nil
}

func (r *memoryRepo) ListTagsByStatus(ctx context.Context, status Status) ([]Tag, error) {
	var out []Tag
	for _, tag := range r.tags {
		if tag.Status == status {
			out = append(out, tag)
		}
	}
	return out, nil
}

func registerTag(t *testing.T, svc *Service) Tag {
	t.Helper()
	tag, err := svc.Register(context.Background(), Tag{TagNo: "ST-001", MaterialID: 1, Weight: 61.8})
	require.NoError(t, err)
	return tag
}

func TestRegisterStartsAvailable(t *testing.T) {
	svc := NewService(newMemoryRepo(), nil)

	tag := registerTag(t, svc)
	require.Equal(t, StatusAvailable, tag.Status)
	require.Nil(t, tag.IssuedAt)

	_, err := svc.Register(context.Background(), Tag{MaterialID: 1})
	require.ErrorIs(t, err, shared.ErrValidation)
}

func TestFullLifecycle(t *testing.T) {
	svc := NewService(newMemoryRepo(), nil)
	ctx := context.Background()
	tag := registerTag(t, svc)

	tag, err := svc.Allocate(ctx, tag.ID, 42)
	require.NoError(t, err)
	require.Equal(t, StatusAllocated, tag.Status)
	require.Equal(t, int64(42), tag.ProjectID)

	tag, err = svc.Issue(ctx, tag.ID)
	require.NoError(t, err)
	require.Equal(t, StatusInUse, tag.Status)
	require.NotNil(t, tag.IssuedAt)

	tag, err = svc.Complete(ctx, tag.ID)
	require.NoError(t, err)
	require.Equal(t, StatusUsed, tag.Status)
}

func TestScrapFromInUse(t *testing.T) {
	svc := NewService(newMemoryRepo(), nil)
	ctx := context.Background()
	tag := registerTag(t, svc)

	tag, err := svc.Allocate(ctx, tag.ID, 7)
	require.NoError(t, err)
	tag, err = svc.Issue(ctx, tag.ID)
	require.NoError(t, err)
	tag, err = svc.Scrap(ctx, tag.ID)
	require.NoError(t, err)
	require.Equal(t, StatusScrap, tag.Status)
}

func TestAllocateRequiresProject(t *testing.T) {
	svc := NewService(newMemoryRepo(), nil)
	tag := registerTag(t, svc)

	_, err := svc.Allocate(context.Background(), tag.ID, 0)
	require.ErrorIs(t, err, ErrProjectRequired)
}

func TestIllegalTransitionsRejected(t *testing.T) {
	repo := newMemoryRepo()
	svc := NewService(repo, nil)
	ctx := context.Background()

	// Seed one tag per state directly.
	states := []Status{StatusAvailable, StatusAllocated, StatusInUse, StatusUsed, StatusScrap}
	ids := make(map[Status]int64, len(states))
	for _, status := range states {
		tag, err := repo.CreateTag(ctx, Tag{TagNo: "ST-" + string(status), MaterialID: 1, Status: status})
		require.NoError(t, err)
		ids[status] = tag.ID
	}

	type attempt struct {
		status Status
		run    func(id int64) error
	}
	allocate := func(id int64) error { _, err := svc.Allocate(ctx, id, 1); return err }
	issue := func(id int64) error { _, err := svc.Issue(ctx, id); return err }
	complete := func(id int64) error { _, err := svc.Complete(ctx, id); return err }
	scrap := func(id int64) error { _, err := svc.Scrap(ctx, id); return err }

	illegal := []attempt{
		{StatusAvailable, issue}, {StatusAvailable, complete}, {StatusAvailable, scrap},
		{StatusAllocated, allocate}, {StatusAllocated, complete}, {StatusAllocated, scrap},
		{StatusInUse, allocate}, {StatusInUse, issue},
		{StatusUsed, allocate}, {StatusUsed, issue}, {StatusUsed, complete}, {StatusUsed, scrap},
		{StatusScrap, allocate}, {StatusScrap, issue}, {StatusScrap, complete}, {StatusScrap, scrap},
	}
	for _, a := range illegal {
		err := a.run(ids[a.status])
		require.ErrorIs(t, err, ErrIllegalTransition, "state %s", a.status)
		// The tag is untouched after a rejected action.
		tag, getErr := repo.GetTag(ctx, ids[a.status])
		require.NoError(t, getErr)
		require.Equal(t, a.status, tag.Status)
	}

	var illegalErr *IllegalTransitionError
	err := issue(ids[StatusAvailable])
	require.ErrorAs(t, err, &illegalErr)
	require.Equal(t, StatusAvailable, illegalErr.From)
	require.Equal(t, ActionIssue, illegalErr.Action)
}

func TestAvailableActions(t *testing.T) {
	require.Equal(t, []Action{ActionAllocate}, AvailableActions(StatusAvailable))
	require.Equal(t, []Action{ActionIssue}, AvailableActions(StatusAllocated))
	require.Equal(t, []Action{ActionComplete, ActionScrap}, AvailableActions(StatusInUse))
	require.Nil(t, AvailableActions(StatusUsed))
	require.Nil(t, AvailableActions(StatusScrap))
}
