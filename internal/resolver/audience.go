package resolver

import (
	"context"
	"fmt"

	"school-notification-service/internal/domain"
	"school-notification-service/internal/repository"
	"school-notification-service/pkg/xerrors"
)

// AudienceResolver expands a notification's targeting rule into the concrete
// set of recipient user ids. Resolution is a pure function of the current
// directory state; an empty match is a valid (empty) audience.
type AudienceResolver struct {
	directory repository.Directory
}

func NewAudienceResolver(directory repository.Directory) *AudienceResolver {
	return &AudienceResolver{directory: directory}
}

func (r *AudienceResolver) Resolve(ctx context.Context, n *domain.Notification) ([]string, error) {
	var (
		userIDs []string
		err     error
	)

	switch n.TargetType {
	case domain.TargetAllUsers:
		userIDs, err = r.directory.ActiveUserIDs(ctx, n.SchoolID)

	case domain.TargetSpecificRoles:
		userIDs, err = r.directory.ActiveUserIDsByRoles(ctx, n.SchoolID, n.TargetRoles)

	case domain.TargetSpecificUsers:
		// caller-supplied ids, taken as-is
		userIDs = n.TargetUserIDs

	case domain.TargetBranchWise:
		userIDs, err = r.directory.ActiveUserIDsByBranches(ctx, n.SchoolID, n.TargetBranchIDs)

	case domain.TargetClassWise:
		userIDs, err = r.directory.ActiveUserIDsByClasses(ctx, n.SchoolID, n.TargetClassIDs)

	case domain.TargetSectionWise:
		userIDs, err = r.directory.ActiveUserIDsBySections(ctx, n.SchoolID, n.TargetSectionIDs)

	default:
		return nil, xerrors.ErrInvalidTarget
	}

	if err != nil {
		return nil, fmt.Errorf("resolve %s audience: %w", n.TargetType, err)
	}
	return dedupe(userIDs), nil
}

func dedupe(ids []string) []string {
	seen := make(map[string]struct{}, len(ids))
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	return out
}
