package assignment

import "context"

// Authorizer decides whether a caller may assign plans. The engine only
// consumes the decision; how it is made belongs to the caller's auth layer.
type Authorizer interface {
	CanAssign(ctx context.Context, assigner AssignerID) (bool, error)
}

// AllowAll permits every non-blank assigner.
type AllowAll struct{}

func (AllowAll) CanAssign(_ context.Context, assigner AssignerID) (bool, error) {
	return assigner != "", nil
}

// AllowList permits only the listed assigners. An empty list permits nobody.
type AllowList map[AssignerID]bool

func NewAllowList(ids ...string) AllowList {
	al := make(AllowList, len(ids))
	for _, id := range ids {
		if id != "" {
			al[AssignerID(id)] = true
		}
	}
	return al
}

func (al AllowList) CanAssign(_ context.Context, assigner AssignerID) (bool, error) {
	return al[assigner], nil
}
