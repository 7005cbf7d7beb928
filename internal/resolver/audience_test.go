package resolver

import (
	"context"
	"errors"
	"testing"

	"school-notification-service/internal/domain"
	"school-notification-service/pkg/xerrors"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeDirectory struct {
	all        []string
	byRole     map[domain.Role][]string
	byBranch   map[string][]string
	byClass    map[string][]string
	bySection  map[string][]string
	err        error
	lastSchool string
}

func (f *fakeDirectory) GetUser(ctx context.Context, userID string) (*domain.DirectoryUser, error) {
	return nil, xerrors.ErrNotFound
}

func (f *fakeDirectory) ActiveUserIDs(ctx context.Context, schoolID string) ([]string, error) {
	f.lastSchool = schoolID
	return f.all, f.err
}

func (f *fakeDirectory) ActiveUserIDsByRoles(ctx context.Context, schoolID string, roles []domain.Role) ([]string, error) {
	f.lastSchool = schoolID
	var out []string
	for _, r := range roles {
		out = append(out, f.byRole[r]...)
	}
	return out, f.err
}

func (f *fakeDirectory) ActiveUserIDsByBranches(ctx context.Context, schoolID string, branchIDs []string) ([]string, error) {
	var out []string
	for _, b := range branchIDs {
		out = append(out, f.byBranch[b]...)
	}
	return out, f.err
}

func (f *fakeDirectory) ActiveUserIDsByClasses(ctx context.Context, schoolID string, classIDs []string) ([]string, error) {
	var out []string
	for _, c := range classIDs {
		out = append(out, f.byClass[c]...)
	}
	return out, f.err
}

func (f *fakeDirectory) ActiveUserIDsBySections(ctx context.Context, schoolID string, sectionIDs []string) ([]string, error) {
	var out []string
	for _, s := range sectionIDs {
		out = append(out, f.bySection[s]...)
	}
	return out, f.err
}

func TestResolveAllUsers(t *testing.T) {
	dir := &fakeDirectory{all: []string{"u1", "u2", "u3"}}
	r := NewAudienceResolver(dir)

	ids, err := r.Resolve(context.Background(), &domain.Notification{
		SchoolID:   "school-1",
		TargetType: domain.TargetAllUsers,
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"u1", "u2", "u3"}, ids)
	assert.Equal(t, "school-1", dir.lastSchool)
}

func TestResolveSpecificRolesDeduplicates(t *testing.T) {
	// A user holding two targeted roles must appear once
	dir := &fakeDirectory{byRole: map[domain.Role][]string{
		domain.RoleTeacher:    {"u1", "u2"},
		domain.RoleAccountant: {"u2", "u3"},
	}}
	r := NewAudienceResolver(dir)

	ids, err := r.Resolve(context.Background(), &domain.Notification{
		SchoolID:    "school-1",
		TargetType:  domain.TargetSpecificRoles,
		TargetRoles: []domain.Role{domain.RoleTeacher, domain.RoleAccountant},
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"u1", "u2", "u3"}, ids)
}

func TestResolveSpecificUsersPassesIDsThrough(t *testing.T) {
	r := NewAudienceResolver(&fakeDirectory{})

	ids, err := r.Resolve(context.Background(), &domain.Notification{
		SchoolID:      "school-1",
		TargetType:    domain.TargetSpecificUsers,
		TargetUserIDs: []string{"u9", "u9", "u4"},
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"u9", "u4"}, ids)
}

func TestResolveClassWiseOverlap(t *testing.T) {
	// A teacher assigned to both classes appears once
	dir := &fakeDirectory{byClass: map[string][]string{
		"c1": {"s1", "s2", "t1"},
		"c2": {"s3", "t1"},
	}}
	r := NewAudienceResolver(dir)

	ids, err := r.Resolve(context.Background(), &domain.Notification{
		SchoolID:       "school-1",
		TargetType:     domain.TargetClassWise,
		TargetClassIDs: []string{"c1", "c2"},
	})
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"s1", "s2", "s3", "t1"}, ids)
	assert.Len(t, ids, 4)
}

func TestResolveEmptyAudienceIsValid(t *testing.T) {
	r := NewAudienceResolver(&fakeDirectory{})

	ids, err := r.Resolve(context.Background(), &domain.Notification{
		SchoolID:   "school-1",
		TargetType: domain.TargetAllUsers,
	})
	require.NoError(t, err)
	assert.Empty(t, ids)
}

func TestResolveUnknownTargetType(t *testing.T) {
	r := NewAudienceResolver(&fakeDirectory{})

	_, err := r.Resolve(context.Background(), &domain.Notification{
		SchoolID:   "school-1",
		TargetType: domain.TargetType("EVERYONE_EVER"),
	})
	assert.ErrorIs(t, err, xerrors.ErrInvalidTarget)
}

func TestResolveDirectoryError(t *testing.T) {
	dirErr := errors.New("directory down")
	r := NewAudienceResolver(&fakeDirectory{err: dirErr})

	_, err := r.Resolve(context.Background(), &domain.Notification{
		SchoolID:   "school-1",
		TargetType: domain.TargetAllUsers,
	})
	assert.ErrorIs(t, err, dirErr)
}
