package workflow

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"
	"go.uber.org/zap"

	"github.com/example/ekyc/internal/auth"
	"github.com/example/ekyc/internal/document"
	"github.com/example/ekyc/internal/face"
	"github.com/example/ekyc/internal/logging"
	"github.com/example/ekyc/internal/repository"
	"github.com/example/ekyc/internal/session"
)

const (
	defaultRemoteTimeout = 60 * time.Second
	defaultSnapshotTTL   = 10 * time.Minute
)

// SnapshotCache caches sanitized session snapshots for cheap status reads.
type SnapshotCache interface {
	Set(ctx context.Context, key string, value interface{}, expiration time.Duration) error
	Get(ctx context.Context, key string) (string, error)
}

// DispositionRecorder persists terminal outcomes for audit.
type DispositionRecorder interface {
	Record(ctx context.Context, log *repository.DispositionLog) error
}

// Observer receives workflow lifecycle events, typically for metrics.
type Observer interface {
	SessionCreated()
	Transition(to session.Status)
	Disposition(status session.Status)
}

// StepResult is the outcome of a successful submission step.
type StepResult struct {
	Status session.Status
	Data   document.Fields
}

// FinalResult is the outcome of final verification. Success means the
// pipeline ran to a disposition; it says nothing about whether the person
// was approved. FinalStatus carries the disposition itself.
type FinalResult struct {
	Success     bool
	FinalStatus session.Status
	Reason      string
	Result      *session.VerificationResult
}

// Config collects the engine's collaborators. Audit, Cache, and Observer are
// optional.
type Config struct {
	Sessions  *session.Registry
	Documents document.Client
	Faces     face.Client
	Audit     DispositionRecorder
	Cache     SnapshotCache
	Observer  Observer
	Logger    *zap.Logger

	// RemoteTimeout bounds each collaborator call. Defaults to 60s.
	RemoteTimeout time.Duration
}

// Engine owns the session lifecycle: it validates that an operation is legal
// in the current status, calls the appropriate collaborator, commits the
// resulting state, and decides the terminal disposition. The session lock is
// never held across a remote call; state is validated up front and
// re-validated when the result is committed.
type Engine struct {
	sessions      *session.Registry
	documents     document.Client
	faces         face.Client
	audit         DispositionRecorder
	cache         SnapshotCache
	observer      Observer
	logger        *zap.Logger
	remoteTimeout time.Duration
	snapshotTTL   time.Duration
}

type nopObserver struct{}

func (nopObserver) SessionCreated()            {}
func (nopObserver) Transition(session.Status)  {}
func (nopObserver) Disposition(session.Status) {}

// NewEngine constructs the workflow engine.
func NewEngine(cfg Config) *Engine {
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	observer := cfg.Observer
	if observer == nil {
		observer = nopObserver{}
	}
	timeout := cfg.RemoteTimeout
	if timeout <= 0 {
		timeout = defaultRemoteTimeout
	}
	return &Engine{
		sessions:      cfg.Sessions,
		documents:     cfg.Documents,
		faces:         cfg.Faces,
		audit:         cfg.Audit,
		cache:         cfg.Cache,
		observer:      observer,
		logger:        logger.Named("workflow_engine"),
		remoteTimeout: timeout,
		snapshotTTL:   defaultSnapshotTTL,
	}
}

// CreateSession starts a new verification attempt.
func (e *Engine) CreateSession(ctx context.Context) session.Session {
	s := e.sessions.Create()
	e.observer.SessionCreated()
	e.cacheSnapshot(ctx, s)
	logging.WithOperation(e.logger, "workflow.create_session", s.ID).Info("session created")
	return s
}

// GetSession returns the sanitized view of a session, served from the
// snapshot cache when possible.
func (e *Engine) GetSession(ctx context.Context, id string) (session.Snapshot, error) {
	if e.cache != nil {
		cached, err := e.cache.Get(ctx, snapshotKey(id))
		if err == nil {
			var snap session.Snapshot
			if err := json.Unmarshal([]byte(cached), &snap); err == nil {
				return snap, nil
			}
			logging.WithOperation(e.logger, "workflow.get_session", id).Warn("failed to decode cached snapshot", zap.Error(err))
		} else if !errors.Is(err, redis.Nil) {
			logging.WithOperation(e.logger, "workflow.get_session", id).Warn("failed to read snapshot cache", zap.Error(err))
		}
	}

	s, err := e.sessions.Get(id)
	if err != nil {
		return session.Snapshot{}, err
	}
	e.cacheSnapshot(ctx, s)
	return s.Snapshot(), nil
}

// SubmitFrontID extracts the front side of the document. Legal from any
// non-terminal status; success resets the session to AWAITING_BACK_ID and
// clears every downstream artifact, so a mid-flow retry restarts the
// pipeline rather than patching it.
func (e *Engine) SubmitFrontID(ctx context.Context, id string, imageBytes []byte) (*StepResult, error) {
	const op = "workflow.submit_front_id"

	snap, err := e.sessions.Get(id)
	if err != nil {
		return nil, err
	}
	if snap.Status.Terminal() {
		return nil, fmt.Errorf("%w: cannot submit front image in status %s", ErrInvalidTransition, snap.Status)
	}

	fields, err := e.extractDocument(ctx, op, id, imageBytes, document.SideFront)
	if err != nil {
		return nil, err
	}

	updated, err := e.sessions.Update(id, func(s *session.Session) error {
		if s.Status.Terminal() {
			return fmt.Errorf("%w: session reached status %s while extraction was in flight", ErrInvalidTransition, s.Status)
		}
		s.FrontIDData = fields
		s.FrontIDImage = imageBytes
		s.BackIDData = nil
		s.SelfieImage = nil
		s.Result = nil
		s.Status = session.StatusAwaitingBackID
		return nil
	})
	if err != nil {
		return nil, err
	}

	e.observer.Transition(updated.Status)
	e.cacheSnapshot(ctx, updated)
	logging.WithOperation(e.logger, op, id).Info("front side extracted", zap.String("status", string(updated.Status)))
	return &StepResult{Status: updated.Status, Data: fields}, nil
}

// SubmitBackID extracts the back side. Legal only once front data is present.
func (e *Engine) SubmitBackID(ctx context.Context, id string, imageBytes []byte) (*StepResult, error) {
	const op = "workflow.submit_back_id"

	snap, err := e.sessions.Get(id)
	if err != nil {
		return nil, err
	}
	if snap.Status.Terminal() {
		return nil, fmt.Errorf("%w: cannot submit back image in status %s", ErrInvalidTransition, snap.Status)
	}
	if snap.FrontIDData == nil {
		return nil, fmt.Errorf("%w: front side must be processed first", ErrMissingData)
	}

	fields, err := e.extractDocument(ctx, op, id, imageBytes, document.SideBack)
	if err != nil {
		return nil, err
	}

	updated, err := e.sessions.Update(id, func(s *session.Session) error {
		if s.Status.Terminal() {
			return fmt.Errorf("%w: session reached status %s while extraction was in flight", ErrInvalidTransition, s.Status)
		}
		if s.FrontIDData == nil {
			return fmt.Errorf("%w: front side data disappeared while extraction was in flight", ErrMissingData)
		}
		s.BackIDData = fields
		s.Status = session.StatusAwaitingSelfie
		return nil
	})
	if err != nil {
		return nil, err
	}

	e.observer.Transition(updated.Status)
	e.cacheSnapshot(ctx, updated)
	logging.WithOperation(e.logger, op, id).Info("back side extracted", zap.String("status", string(updated.Status)))
	return &StepResult{Status: updated.Status, Data: fields}, nil
}

// SubmitSelfie runs the combined passive-liveness and face-match check on a
// fresh selfie against the stored front image. Legal in AWAITING_SELFIE and
// AWAITING_ACTIVE_LIVENESS so a later failure can be retried. A rejection
// resets the session to AWAITING_SELFIE and drops any stored selfie; a
// transport failure leaves the session untouched.
func (e *Engine) SubmitSelfie(ctx context.Context, id string, imageBytes []byte) (*StepResult, error) {
	const op = "workflow.submit_selfie"

	snap, err := e.sessions.Get(id)
	if err != nil {
		return nil, err
	}
	if snap.Status != session.StatusAwaitingSelfie && snap.Status != session.StatusAwaitingActiveLiveness {
		return nil, fmt.Errorf("%w: cannot submit selfie in status %s", ErrInvalidTransition, snap.Status)
	}
	if len(snap.FrontIDImage) == 0 {
		return nil, fmt.Errorf("%w: no stored document image to compare against", ErrMissingData)
	}

	opLogger := logging.WithOperation(e.logger, op, id)

	callCtx, cancel := context.WithTimeout(ctx, e.remoteTimeout)
	defer cancel()
	_, err = e.faces.CombinedCheck(callCtx, snap.FrontIDImage, imageBytes)
	if err != nil {
		var rej *face.RejectionError
		if !errors.As(err, &rej) {
			opLogger.Error("combined check transport failure", zap.Error(err))
			return nil, logging.NewOperationError(op, id, fmt.Errorf("%w: %v", ErrCollaboratorUnavailable, err))
		}

		reverted, revertErr := e.sessions.Update(id, func(s *session.Session) error {
			if s.Status != session.StatusAwaitingSelfie && s.Status != session.StatusAwaitingActiveLiveness {
				return fmt.Errorf("%w: session reached status %s while check was in flight", ErrInvalidTransition, s.Status)
			}
			s.SelfieImage = nil
			s.Status = session.StatusAwaitingSelfie
			return nil
		})
		if revertErr != nil {
			return nil, revertErr
		}
		e.observer.Transition(reverted.Status)
		e.cacheSnapshot(ctx, reverted)
		opLogger.Info("combined check rejected", zap.String("reason", rej.Reason))
		return nil, fmt.Errorf("%w: %s", ErrCollaboratorRejected, rej.Reason)
	}

	updated, err := e.sessions.Update(id, func(s *session.Session) error {
		if s.Status != session.StatusAwaitingSelfie && s.Status != session.StatusAwaitingActiveLiveness {
			return fmt.Errorf("%w: session reached status %s while check was in flight", ErrInvalidTransition, s.Status)
		}
		s.SelfieImage = imageBytes
		s.Status = session.StatusAwaitingActiveLiveness
		return nil
	})
	if err != nil {
		return nil, err
	}

	e.observer.Transition(updated.Status)
	e.cacheSnapshot(ctx, updated)
	opLogger.Info("passive liveness and match passed", zap.String("status", string(updated.Status)))
	return &StepResult{Status: updated.Status}, nil
}

// ConfirmActiveLiveness records the caller's attestation that the
// interactive challenge sequence completed. The challenge proof itself is
// produced by the sequencer; this is a pure transition.
func (e *Engine) ConfirmActiveLiveness(ctx context.Context, id string) (*StepResult, error) {
	const op = "workflow.confirm_active_liveness"

	updated, err := e.sessions.Update(id, func(s *session.Session) error {
		if s.Status != session.StatusAwaitingActiveLiveness {
			return fmt.Errorf("%w: cannot confirm active liveness in status %s", ErrInvalidTransition, s.Status)
		}
		s.Status = session.StatusActiveLivenessPassed
		return nil
	})
	if err != nil {
		return nil, err
	}

	e.observer.Transition(updated.Status)
	e.cacheSnapshot(ctx, updated)
	logging.WithOperation(e.logger, op, id).Info("active liveness confirmed")
	return &StepResult{Status: updated.Status}, nil
}

// RunFinalVerification matches the stored document and selfie images and
// decides the terminal disposition. The status moves to VERIFYING before the
// remote call is issued, which is what rejects a concurrent second
// invocation. An indeterminate failure at this last step routes to
// MANUAL_REVIEW rather than an automatic disposition; a clean remote answer
// of "not the same person" is REJECTED, reported as process success.
func (e *Engine) RunFinalVerification(ctx context.Context, id string) (*FinalResult, error) {
	const op = "workflow.run_final_verification"

	snap, err := e.sessions.Get(id)
	if err != nil {
		return nil, err
	}
	if snap.Status != session.StatusActiveLivenessPassed {
		return nil, fmt.Errorf("%w: cannot run final verification in status %s", ErrInvalidTransition, snap.Status)
	}
	if len(snap.FrontIDImage) == 0 || len(snap.SelfieImage) == 0 {
		return nil, fmt.Errorf("%w: document or selfie image absent", ErrMissingData)
	}

	// Claim the session. A concurrent call arriving after this point sees
	// VERIFYING and fails the status check above or here.
	claimed, err := e.sessions.Update(id, func(s *session.Session) error {
		if s.Status != session.StatusActiveLivenessPassed {
			return fmt.Errorf("%w: cannot run final verification in status %s", ErrInvalidTransition, s.Status)
		}
		if len(s.FrontIDImage) == 0 || len(s.SelfieImage) == 0 {
			return fmt.Errorf("%w: document or selfie image absent", ErrMissingData)
		}
		s.Status = session.StatusVerifying
		return nil
	})
	if err != nil {
		return nil, err
	}
	e.observer.Transition(claimed.Status)
	e.cacheSnapshot(ctx, claimed)

	opLogger := logging.WithOperation(e.logger, op, id)

	callCtx, cancel := context.WithTimeout(ctx, e.remoteTimeout)
	defer cancel()
	res, err := e.faces.Match(callCtx, claimed.FrontIDImage, claimed.SelfieImage)

	switch {
	case err != nil:
		opLogger.Error("final match transport failure, routing to manual review", zap.Error(err))
		return e.finalize(ctx, id, session.StatusManualReview, nil,
			fmt.Sprintf("face service unavailable: %v", err))
	case res.Error != "":
		opLogger.Warn("face service reported an error, routing to manual review", zap.String("reason", res.Error))
		result := &session.VerificationResult{Verified: false, Distance: res.Distance, Error: res.Error}
		return e.finalize(ctx, id, session.StatusManualReview, result, res.Error)
	case !res.Verified:
		opLogger.Info("faces did not match, rejecting", zap.Float64("distance", res.Distance))
		result := &session.VerificationResult{Verified: false, Distance: res.Distance}
		return e.finalize(ctx, id, session.StatusRejected, result, "faces did not match")
	default:
		opLogger.Info("faces matched, approving", zap.Float64("distance", res.Distance))
		result := &session.VerificationResult{Verified: true, Distance: res.Distance}
		return e.finalize(ctx, id, session.StatusApproved, result, "")
	}
}

func (e *Engine) finalize(ctx context.Context, id string, status session.Status, result *session.VerificationResult, reason string) (*FinalResult, error) {
	updated, err := e.sessions.Update(id, func(s *session.Session) error {
		s.Status = status
		s.Result = result
		return nil
	})
	if err != nil {
		return nil, err
	}

	e.observer.Transition(status)
	e.observer.Disposition(status)
	e.cacheSnapshot(ctx, updated)
	e.recordDisposition(ctx, updated, reason)

	return &FinalResult{
		Success:     true,
		FinalStatus: status,
		Reason:      reason,
		Result:      result,
	}, nil
}

func (e *Engine) recordDisposition(ctx context.Context, s session.Session, reason string) {
	if e.audit == nil {
		return
	}

	userID, _ := auth.GetUserID(ctx)
	log := &repository.DispositionLog{
		SessionID: s.ID,
		UserID:    userID,
		Status:    string(s.Status),
		Reason:    reason,
		CreatedAt: time.Now().UTC(),
	}
	if s.Result != nil {
		log.Verified = s.Result.Verified
		log.Distance = s.Result.Distance
	}

	// Audit is best effort; a write failure must not undo a disposition.
	if err := e.audit.Record(ctx, log); err != nil {
		logging.WithOperation(e.logger, "workflow.record_disposition", s.ID).Error("failed to persist disposition", zap.Error(err))
	}
}

func (e *Engine) extractDocument(ctx context.Context, op, id string, imageBytes []byte, side document.Side) (document.Fields, error) {
	callCtx, cancel := context.WithTimeout(ctx, e.remoteTimeout)
	defer cancel()

	fields, err := e.documents.Extract(callCtx, imageBytes, side)
	if err == nil {
		return fields, nil
	}

	opLogger := logging.WithOperation(e.logger, op, id)
	var rej *document.RejectionError
	if errors.As(err, &rej) {
		opLogger.Info("document extraction rejected", zap.String("side", string(side)), zap.String("reason", rej.Reason))
		return nil, fmt.Errorf("%w: %s", ErrCollaboratorRejected, rej.Reason)
	}
	opLogger.Error("document extraction transport failure", zap.String("side", string(side)), zap.Error(err))
	return nil, logging.NewOperationError(op, id, fmt.Errorf("%w: %v", ErrCollaboratorUnavailable, err))
}

func (e *Engine) cacheSnapshot(ctx context.Context, s session.Session) {
	if e.cache == nil {
		return
	}

	snap := s.Snapshot()
	serialized, err := json.Marshal(snap)
	if err != nil {
		logging.WithOperation(e.logger, "workflow.cache_snapshot", s.ID).Warn("failed to serialize snapshot", zap.Error(err))
		return
	}
	if err := e.cache.Set(ctx, snapshotKey(s.ID), string(serialized), e.snapshotTTL); err != nil {
		logging.WithOperation(e.logger, "workflow.cache_snapshot", s.ID).Warn("failed to cache snapshot", zap.Error(err))
	}
}

func snapshotKey(id string) string {
	return "kyc:session:" + id
}
