package usecase

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/example/photolabel/internal/classifier"
	"github.com/example/photolabel/internal/logging"
	"github.com/example/photolabel/internal/session"
	"github.com/example/photolabel/internal/upload"
	"github.com/example/photolabel/internal/workflow"
)

// ErrConflict reports an operation fired in a workflow state that does
// not permit it.
var ErrConflict = errors.New("operation not allowed in current state")

// ErrUnsupportedImage reports an upload that does not decode as an image.
var ErrUnsupportedImage = errors.New("unsupported image")

// ProviderError marks a failure of the external model so handlers can
// surface it as a fatal notice instead of a generic server error.
type ProviderError struct {
	Op  string
	Err error
}

func (e *ProviderError) Error() string {
	return fmt.Sprintf("model provider %s failed: %v", e.Op, e.Err)
}

func (e *ProviderError) Unwrap() error {
	return e.Err
}

// Spool is the slice of the upload spool the use case needs.
type Spool interface {
	Store(name string, data []byte) (*upload.StoredImage, error)
	Read(path string) ([]byte, error)
	Release(path string) error
	Preview(path string) ([]byte, error)
}

// WorkflowUseCase drives sessions through the classification workflow:
// model load, upload, classify, reset. All session mutation goes through
// here, serialized per session.
type WorkflowUseCase struct {
	store          session.Store
	spool          Spool
	provider       classifier.Provider
	logger         *zap.Logger
	sessionTTL     time.Duration
	retryAttempts  int
	initialBackoff time.Duration
	maxBackoff     time.Duration

	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

// NewWorkflowUseCase constructs a new use case instance.
func NewWorkflowUseCase(store session.Store, spool Spool, provider classifier.Provider, sessionTTL time.Duration, logger *zap.Logger) *WorkflowUseCase {
	return &WorkflowUseCase{
		store:          store,
		spool:          spool,
		provider:       provider,
		logger:         logger.Named("workflow_usecase"),
		sessionTTL:     sessionTTL,
		retryAttempts:  3,
		initialBackoff: 50 * time.Millisecond,
		maxBackoff:     time.Second,
	}
}

// Start creates a session, loads the model, and leaves the session
// awaiting an upload. A load failure is surfaced as a fatal notice and
// the session parks back in the initial state; no automatic retry.
func (uc *WorkflowUseCase) Start(ctx context.Context) (*View, error) {
	sessionID := uuid.NewString()
	opLogger := logging.WithOperation(uc.logger, "usecase.start", sessionID)

	sess := workflow.NewSession(sessionID)
	if err := sess.Advance(); err != nil {
		return nil, err
	}
	if err := uc.saveWithRetry(ctx, sessionID, "store.save.loading", sess); err != nil {
		opLogger.Error("failed to persist new session", zap.Error(err))
		return nil, err
	}

	if err := uc.provider.Load(ctx); err != nil {
		wrapped := logging.NewOperationError("usecase.load_model", sessionID, err)
		opLogger.Error("model load failed", zap.Error(wrapped))
		sess.SetState(workflow.StateInitial)
		sess.LastError = fmt.Sprintf("model load failed: %v", err)
		if saveErr := uc.saveWithRetry(ctx, sessionID, "store.save.load_failed", sess); saveErr != nil {
			opLogger.Error("failed to persist load failure", zap.Error(saveErr))
		}
		return uc.view(sess), &ProviderError{Op: "load", Err: err}
	}

	if err := sess.Advance(); err != nil {
		return nil, err
	}
	if err := uc.saveWithRetry(ctx, sessionID, "store.save.awaiting", sess); err != nil {
		opLogger.Error("failed to persist loaded session", zap.Error(err))
		return nil, err
	}

	opLogger.Info("session started", zap.String("provider", uc.provider.Name()))
	return uc.view(sess), nil
}

// Get returns the current view of a session.
func (uc *WorkflowUseCase) Get(ctx context.Context, sessionID string) (*View, error) {
	sess, err := uc.store.Get(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	return uc.view(sess), nil
}

// Upload attaches an image to the session. A selection of zero files is a
// no-op; uploading while an image is already attached replaces it and
// releases the old spool handle.
func (uc *WorkflowUseCase) Upload(ctx context.Context, sessionID, filename string, data []byte) (*View, error) {
	unlock := uc.lockSession(sessionID)
	defer unlock()

	sess, err := uc.store.Get(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	opLogger := logging.WithOperation(uc.logger, "usecase.upload", sessionID)

	if len(data) == 0 {
		// Empty selection leaves the workflow untouched.
		return uc.view(sess), nil
	}
	if sess.State != workflow.StateAwaitingUpload && sess.State != workflow.StateReady {
		return uc.view(sess), ErrConflict
	}

	stored, err := uc.spool.Store(filename, data)
	if err != nil {
		opLogger.Warn("rejected upload", zap.String("filename", filename), zap.Error(err))
		return uc.view(sess), fmt.Errorf("%w: %v", ErrUnsupportedImage, err)
	}

	if sess.HasImage() {
		if err := uc.spool.Release(sess.ImagePath); err != nil {
			opLogger.Warn("failed to release replaced image", zap.Error(err))
		}
	}
	sess.ImagePath = stored.Path
	sess.ImageName = stored.Name
	sess.LastError = ""
	if sess.State == workflow.StateAwaitingUpload {
		if err := sess.Advance(); err != nil {
			return nil, err
		}
	}

	if err := uc.saveWithRetry(ctx, sessionID, "store.save.uploaded", sess); err != nil {
		opLogger.Error("failed to persist upload", zap.Error(err))
		return nil, err
	}
	opLogger.Info("image attached",
		zap.String("filename", stored.Name),
		zap.Int("bytes", stored.Size),
		zap.Int("width", stored.Width),
		zap.Int("height", stored.Height))
	return uc.view(sess), nil
}

// Classify runs the model on the attached image. On failure the session
// returns to ready with the error recorded; it never stays parked in
// classifying.
func (uc *WorkflowUseCase) Classify(ctx context.Context, sessionID string) (*View, error) {
	unlock := uc.lockSession(sessionID)
	defer unlock()

	sess, err := uc.store.Get(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	opLogger := logging.WithOperation(uc.logger, "usecase.classify", sessionID)

	if sess.State != workflow.StateReady || !sess.HasImage() {
		return uc.view(sess), ErrConflict
	}

	if err := sess.Advance(); err != nil {
		return nil, err
	}
	if err := uc.saveWithRetry(ctx, sessionID, "store.save.classifying", sess); err != nil {
		opLogger.Error("failed to persist classifying state", zap.Error(err))
		return nil, err
	}

	image, err := uc.spool.Read(sess.ImagePath)
	if err == nil {
		var preds []classifier.Prediction
		preds, err = uc.provider.Classify(ctx, image)
		if err == nil {
			sess.Predictions = preds
			sess.LastError = ""
			if err := sess.Advance(); err != nil {
				return nil, err
			}
			if err := uc.saveWithRetry(ctx, sessionID, "store.save.complete", sess); err != nil {
				opLogger.Error("failed to persist result", zap.Error(err))
				return nil, err
			}
			opLogger.Info("classification complete", zap.Int("predictions", len(preds)))
			return uc.view(sess), nil
		}
	}

	wrapped := logging.NewOperationError("usecase.classify_image", sessionID, err)
	opLogger.Error("classification failed", zap.Error(wrapped))
	sess.Predictions = nil
	sess.LastError = fmt.Sprintf("classification failed: %v", err)
	sess.SetState(workflow.StateReady)
	if saveErr := uc.saveWithRetry(ctx, sessionID, "store.save.classify_failed", sess); saveErr != nil {
		opLogger.Error("failed to persist classify failure", zap.Error(saveErr))
	}
	return uc.view(sess), &ProviderError{Op: "classify", Err: err}
}

// Reset clears the result and the image, releasing the spool handle, and
// returns the session to awaiting_upload.
func (uc *WorkflowUseCase) Reset(ctx context.Context, sessionID string) (*View, error) {
	unlock := uc.lockSession(sessionID)
	defer unlock()

	sess, err := uc.store.Get(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	opLogger := logging.WithOperation(uc.logger, "usecase.reset", sessionID)

	// Reset makes sense whenever an image is held: from complete per the
	// workflow cycle, and from ready as the escape hatch after a failed
	// classification.
	if sess.State != workflow.StateComplete && sess.State != workflow.StateReady {
		return uc.view(sess), ErrConflict
	}

	if sess.HasImage() {
		if err := uc.spool.Release(sess.ImagePath); err != nil {
			opLogger.Warn("failed to release image", zap.Error(err))
		}
	}
	sess.ImagePath = ""
	sess.ImageName = ""
	sess.Predictions = nil
	sess.LastError = ""
	sess.SetState(workflow.StateAwaitingUpload)

	if err := uc.saveWithRetry(ctx, sessionID, "store.save.reset", sess); err != nil {
		opLogger.Error("failed to persist reset", zap.Error(err))
		return nil, err
	}
	opLogger.Info("session reset")
	return uc.view(sess), nil
}

// Preview returns the displayable preview of the attached image. Only
// valid while the workflow shows the image.
func (uc *WorkflowUseCase) Preview(ctx context.Context, sessionID string) ([]byte, error) {
	sess, err := uc.store.Get(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	if !workflow.ShowImage(sess.State) || !sess.HasImage() {
		return nil, ErrConflict
	}
	return uc.spool.Preview(sess.ImagePath)
}

// ReleaseSession frees the spooled image of an evicted session. Wired as
// the memory store's eviction hook.
func (uc *WorkflowUseCase) ReleaseSession(sess *workflow.Session) {
	if sess == nil || !sess.HasImage() {
		return
	}
	if err := uc.spool.Release(sess.ImagePath); err != nil {
		uc.logger.Warn("failed to release evicted session image",
			zap.String("session_id", sess.ID), zap.Error(err))
	}
}

func (uc *WorkflowUseCase) lockSession(sessionID string) func() {
	uc.mu.Lock()
	if uc.locks == nil {
		uc.locks = make(map[string]*sync.Mutex)
	}
	lock, ok := uc.locks[sessionID]
	if !ok {
		lock = &sync.Mutex{}
		uc.locks[sessionID] = lock
	}
	uc.mu.Unlock()

	lock.Lock()
	return lock.Unlock
}

func (uc *WorkflowUseCase) saveWithRetry(ctx context.Context, sessionID, operation string, sess *workflow.Session) error {
	return uc.withStoreRetry(ctx, sessionID, operation, func() error {
		return uc.store.Save(ctx, sess, uc.sessionTTL)
	})
}

func (uc *WorkflowUseCase) withStoreRetry(ctx context.Context, sessionID, operation string, fn func() error) error {
	if uc.retryAttempts <= 1 {
		err := fn()
		return logging.NewOperationError(operation, sessionID, err)
	}

	backoff := uc.initialBackoff
	opLogger := logging.WithOperation(uc.logger, operation, sessionID)
	var err error
	for attempt := 0; attempt < uc.retryAttempts; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return logging.NewOperationError(operation, sessionID, ctx.Err())
			case <-time.After(backoff):
			}
			if next := backoff * 2; next <= uc.maxBackoff {
				backoff = next
			}
		}

		err = fn()
		if err == nil {
			if attempt > 0 {
				opLogger.Info("store operation succeeded after retry", zap.Int("attempt", attempt+1))
			}
			return nil
		}

		if !isTransientError(err) || attempt == uc.retryAttempts-1 {
			opLogger.Error("store operation failed", zap.Error(err), zap.Int("attempt", attempt+1))
			return logging.NewOperationError(operation, sessionID, err)
		}

		opLogger.Warn("transient store error", zap.Error(err), zap.Int("attempt", attempt+1))
	}
	return logging.NewOperationError(operation, sessionID, err)
}

func isTransientError(err error) bool {
	if err == nil {
		return false
	}

	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}

	var netErr interface{ Timeout() bool }
	if errors.As(err, &netErr) && netErr.Timeout() {
		return true
	}

	var temporary interface{ Temporary() bool }
	if errors.As(err, &temporary) && temporary.Temporary() {
		return true
	}

	return false
}
