package firstrun

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"go.uber.org/zap"
	"golang.org/x/sys/unix"
)

// MarkerPolicy decides when the completion marker is persisted
type MarkerPolicy string

const (
	// MarkerAlways writes the marker before initialization runs, so a failed
	// initialization is never attempted again on later starts.
	MarkerAlways MarkerPolicy = "always"
	// MarkerOnSuccess writes the marker only once initialization succeeded,
	// a failed initialization is retried on the next start.
	MarkerOnSuccess MarkerPolicy = "on_success"
)

// ValidMarkerPolicies contains all valid marker policy values
var ValidMarkerPolicies = []MarkerPolicy{MarkerAlways, MarkerOnSuccess}

// Validate checks if the policy is a known value
func (p MarkerPolicy) Validate() error {
	switch p {
	case MarkerAlways, MarkerOnSuccess:
		return nil
	default:
		return fmt.Errorf("invalid marker_policy %q, valid values: %v", p, ValidMarkerPolicies)
	}
}

// MarkerError reports a failure reading or writing the marker state itself,
// as opposed to a failure of the initialization action.
type MarkerError struct {
	Op   string
	Path string
	Err  error
}

func (e *MarkerError) Error() string {
	return fmt.Sprintf("marker %s %s: %s", e.Op, e.Path, e.Err)
}

func (e *MarkerError) Unwrap() error {
	return e.Err
}

// Outcome is the result of EnsureInitialized
type Outcome int

const (
	// AlreadyDone means the marker was present and the action did not run
	AlreadyDone Outcome = iota
	// PerformedNow means the action ran during this call
	PerformedNow
)

func (o Outcome) String() string {
	switch o {
	case AlreadyDone:
		return "already_done"
	case PerformedNow:
		return "performed_now"
	default:
		return fmt.Sprintf("outcome(%d)", int(o))
	}
}

// Gate is the first-run gate backed by a marker file
type Gate struct {
	MarkerPath string
	Policy     MarkerPolicy
}

// NewGate creates a gate for the given marker path and policy.
// An empty policy means MarkerAlways.
func NewGate(markerPath string, policy MarkerPolicy) *Gate {
	if policy == "" {
		policy = MarkerAlways
	}
	return &Gate{MarkerPath: markerPath, Policy: policy}
}

// Initialized reports whether the marker file exists.
// Stat errors other than not-exist are returned as is.
func (g *Gate) Initialized() (bool, error) {
	if _, err := os.Stat(g.MarkerPath); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return false, nil
		}
		return false, &MarkerError{Op: "stat", Path: g.MarkerPath, Err: err}
	}
	return true, nil
}

// EnsureInitialized runs action once across process restarts. When the marker
// exists, action is not called and AlreadyDone is returned. Otherwise action
// runs and the marker is written according to the gate policy. The error of
// action is returned together with PerformedNow.
func (g *Gate) EnsureInitialized(ctx context.Context, action func(ctx context.Context) error) (Outcome, error) {
	return g.run(ctx, false, action)
}

// Force runs action regardless of the marker, then writes the marker
// according to the gate policy.
func (g *Gate) Force(ctx context.Context, action func(ctx context.Context) error) (Outcome, error) {
	return g.run(ctx, true, action)
}

func (g *Gate) run(ctx context.Context, force bool, action func(ctx context.Context) error) (Outcome, error) {
	// A present marker needs no lock, the marker directory may be read-only.
	if !force {
		done, err := g.Initialized()
		if err != nil {
			return AlreadyDone, err
		}
		if done {
			zlog.Debug("marker present, skipping initialization", zap.String("marker", g.MarkerPath))
			return AlreadyDone, nil
		}
	}

	unlock, err := g.lock()
	if err != nil {
		return AlreadyDone, err
	}
	defer unlock()

	// Checked again under the lock so two containers sharing the volume can't
	// both observe an absent marker.
	done, err := g.Initialized()
	if err != nil {
		return AlreadyDone, err
	}

	if done && !force {
		zlog.Debug("marker present, skipping initialization", zap.String("marker", g.MarkerPath))
		return AlreadyDone, nil
	}

	if g.Policy == MarkerAlways {
		if err := g.Mark(); err != nil {
			return AlreadyDone, err
		}
	}

	zlog.Info("running initialization",
		zap.String("marker", g.MarkerPath),
		zap.String("policy", string(g.Policy)),
		zap.Bool("forced", force))

	actionErr := action(ctx)

	if g.Policy == MarkerOnSuccess {
		if actionErr != nil {
			zlog.Warn("initialization failed, marker not written so the next start retries",
				zap.String("marker", g.MarkerPath),
				zap.Error(actionErr))
			return PerformedNow, actionErr
		}
		if err := g.Mark(); err != nil {
			return PerformedNow, err
		}
	}

	return PerformedNow, actionErr
}

// Mark creates the marker file, creating parent directories as needed.
// An existing marker is left untouched.
func (g *Gate) Mark() error {
	if err := os.MkdirAll(filepath.Dir(g.MarkerPath), 0755); err != nil {
		return &MarkerError{Op: "mkdir", Path: g.MarkerPath, Err: err}
	}

	f, err := os.OpenFile(g.MarkerPath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		return &MarkerError{Op: "create", Path: g.MarkerPath, Err: err}
	}
	if err := f.Close(); err != nil {
		return &MarkerError{Op: "close", Path: g.MarkerPath, Err: err}
	}

	zlog.Debug("marker written", zap.String("marker", g.MarkerPath))
	return nil
}

// Reset removes the marker so the next start initializes again.
// A missing marker is not an error.
func (g *Gate) Reset() error {
	if err := os.Remove(g.MarkerPath); err != nil && !errors.Is(err, os.ErrNotExist) {
		return &MarkerError{Op: "remove", Path: g.MarkerPath, Err: err}
	}
	zlog.Info("marker removed", zap.String("marker", g.MarkerPath))
	return nil
}

// LockPath is the file holding the advisory lock taken around the gate
func (g *Gate) LockPath() string {
	return g.MarkerPath + ".lock"
}

// lock takes an exclusive flock on LockPath, blocking until it is available
func (g *Gate) lock() (func(), error) {
	lockPath := g.LockPath()
	if err := os.MkdirAll(filepath.Dir(lockPath), 0755); err != nil {
		return nil, &MarkerError{Op: "mkdir", Path: lockPath, Err: err}
	}

	f, err := os.OpenFile(lockPath, os.O_CREATE|os.O_RDWR, 0644)
	if err != nil {
		return nil, &MarkerError{Op: "open", Path: lockPath, Err: err}
	}

	for {
		err = unix.Flock(int(f.Fd()), unix.LOCK_EX)
		if err != unix.EINTR {
			break
		}
	}
	if err != nil {
		f.Close()
		return nil, &MarkerError{Op: "lock", Path: lockPath, Err: err}
	}

	return func() {
		if err := unix.Flock(int(f.Fd()), unix.LOCK_UN); err != nil {
			zlog.Debug("failed to release lock", zap.String("path", lockPath), zap.Error(err))
		}
		f.Close()
	}, nil
}
