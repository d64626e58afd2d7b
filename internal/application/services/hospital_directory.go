package services

import (
	"context"
	"fmt"
	"time"

	"github.com/graph-gophers/dataloader/v7"

	"github.com/shivam13669/CRMManagementt-sub003/internal/domain/entities"
	"github.com/shivam13669/CRMManagementt-sub003/internal/domain/repositories"
	apperrors "github.com/shivam13669/CRMManagementt-sub003/pkg/errors"
)

// HospitalDirectory lists forwarding targets for one session. Concurrent
// lookups for the same scope share a single backend call.
type HospitalDirectory struct {
	loader *dataloader.Loader[string, []entities.Hospital]
}

// NewHospitalDirectory creates a directory reading from repo
func NewHospitalDirectory(repo repositories.HospitalRepository) *HospitalDirectory {
	batch := func(ctx context.Context, scopes []string) []*dataloader.Result[[]entities.Hospital] {
		results := make([]*dataloader.Result[[]entities.Hospital], len(scopes))
		seen := make(map[string]*dataloader.Result[[]entities.Hospital], len(scopes))
		for i, scope := range scopes {
			if res, ok := seen[scope]; ok {
				results[i] = res
				continue
			}
			hospitals, err := repo.ListHospitals(ctx, scope)
			res := &dataloader.Result[[]entities.Hospital]{Data: hospitals, Error: err}
			seen[scope] = res
			results[i] = res
		}
		return results
	}

	return &HospitalDirectory{
		loader: dataloader.NewBatchedLoader(batch,
			dataloader.WithCache[string, []entities.Hospital](&dataloader.NoCache[string, []entities.Hospital]{}),
			dataloader.WithWait[string, []entities.Hospital](5*time.Millisecond),
		),
	}
}

// List returns the hospitals actor may forward to. State admins only see
// hospitals of their own state.
func (d *HospitalDirectory) List(ctx context.Context, actor entities.ActorContext) ([]entities.Hospital, error) {
	if err := entities.Authorize(actor, entities.CapListHospitals, entities.Target{}); err != nil {
		return nil, err
	}

	scope := ""
	if actor.Role == entities.RoleStateAdmin {
		scope = actor.State
	} else if err := entities.Authorize(actor, entities.CapListAllHospitals, entities.Target{}); err != nil {
		return nil, err
	}

	hospitals, err := d.loader.Load(ctx, scope)()
	if err != nil {
		if apperrors.TypeOf(err) == "" {
			err = apperrors.NewFetchError("list hospitals", err)
		}
		return nil, err
	}

	out := make([]entities.Hospital, 0, len(hospitals))
	for _, h := range hospitals {
		if actor.InState(h.State) {
			out = append(out, h)
		}
	}
	return out, nil
}

// Find returns one hospital from actor's list
func (d *HospitalDirectory) Find(ctx context.Context, actor entities.ActorContext, hospitalID int64) (entities.Hospital, error) {
	hospitals, err := d.List(ctx, actor)
	if err != nil {
		return entities.Hospital{}, err
	}
	for _, h := range hospitals {
		if h.ID == hospitalID {
			return h, nil
		}
	}
	return entities.Hospital{}, apperrors.NewNotFoundError(fmt.Sprintf("hospital %d is not available for forwarding", hospitalID))
}
