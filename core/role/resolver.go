package role

import (
	"context"

	"github.com/kat-co/vala"
	"github.com/pkg/errors"
	"golang.org/x/sync/errgroup"

	"github.com/trezcool/shule/core"
	"github.com/trezcool/shule/core/backend"
)

// ErrAccessDenied is returned by a Gate when the caller lacks the required role.
var ErrAccessDenied = errors.New("permission denied")

type Resolver struct {
	provider backend.Provider
}

func NewResolver(provider backend.Provider) *Resolver {
	if err := vala.BeginValidation().Validate(
		vala.IsNotNil(provider, "provider"),
	).Check(); err != nil {
		panic(err)
	}
	return &Resolver{provider: provider}
}

// Resolve determines the role of the caller. A nil identity resolves to Unauthenticated without any backend call.
// While the backend client is not ready the result is Initializing with IsLoading set and a nil error.
// Backend failures are returned as *core.BackendError and are never retried here.
func (r *Resolver) Resolve(ctx context.Context, id *Identity) (Resolution, error) {
	snap := Snapshot{Authenticated: id != nil}
	if id == nil {
		return Resolve(snap), nil
	}

	client, err := r.provider.Client()
	if err != nil {
		if core.IsNotReady(err) {
			return Resolve(snap), nil
		}
		return Resolution{}, err
	}
	snap.ClientReady = true

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		profile, err := client.GetCallerUserProfile(gctx, id.Principal)
		if err != nil {
			return core.NewBackendError("getCallerUserProfile", err)
		}
		snap.Profile, snap.ProfileFetched = profile, true
		return nil
	})
	g.Go(func() error {
		isAdmin, err := client.IsCallerAdmin(gctx, id.Principal)
		if err != nil {
			return core.NewBackendError("isCallerAdmin", err)
		}
		snap.IsAdmin, snap.AdminFetched = isAdmin, true
		return nil
	})
	if err := g.Wait(); err != nil {
		return Resolution{}, err
	}

	if snap.Profile != nil {
		g, gctx = errgroup.WithContext(ctx)
		g.Go(func() error {
			student, err := client.GetMyStudentProfile(gctx, id.Principal)
			if err != nil {
				return core.NewBackendError("getMyStudentProfile", err)
			}
			snap.Student, snap.StudentFetched = student, true
			return nil
		})
		g.Go(func() error {
			teacher, err := client.GetMyTeacherProfile(gctx, id.Principal)
			if err != nil {
				return core.NewBackendError("getMyTeacherProfile", err)
			}
			snap.Teacher, snap.TeacherFetched = teacher, true
			return nil
		})
		if err := g.Wait(); err != nil {
			return Resolution{}, err
		}
	}

	return Resolve(snap), nil
}

// Gate restricts access to callers holding one of the required roles.
// An empty Gate only requires the resolution to be complete.
type Gate struct {
	RequireAdmin   bool
	RequireTeacher bool
	RequireStudent bool
}

func (g Gate) Check(res Resolution) error {
	if res.IsLoading {
		return core.ErrNotReady
	}
	if !(g.RequireAdmin || g.RequireTeacher || g.RequireStudent) {
		return nil
	}
	if (g.RequireAdmin && res.IsAdmin) || (g.RequireTeacher && res.IsTeacher) || (g.RequireStudent && res.IsStudent) {
		return nil
	}
	return ErrAccessDenied
}
