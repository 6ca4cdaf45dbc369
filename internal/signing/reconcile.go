package signing

import (
	"context"
	"errors"
	"fmt"

	"github.com/StudioVBG/TALOK-sub014/internal/domain"
	"github.com/StudioVBG/TALOK-sub014/internal/lifecycle"
)

// Reconcile recomputes the status of a document whose signatures were
// committed but whose transition was never recorded, and runs the lifecycle
// side effects when the status moves. It returns the names of failed tasks.
func (s *Service) Reconcile(ctx context.Context, documentID, correlationID string) (lifecycle.Transition, []string, error) {
	doc, err := s.deps.Documents.GetDocument(ctx, documentID)
	if err != nil {
		if errors.Is(err, domain.ErrDocumentNotFound) || errors.Is(err, domain.ErrNotFound) {
			return lifecycle.Transition{}, nil, domain.ErrDocumentNotFound
		}
		return lifecycle.Transition{}, nil, fmt.Errorf("load document: %w", err)
	}
	tr, err := s.deps.Lifecycle.Recompute(ctx, documentID)
	if err != nil {
		return lifecycle.Transition{}, nil, err
	}
	if !tr.Changed {
		return tr, nil, nil
	}
	s.log(ctx, documentID).Info("status reconciled", "from", tr.From, "to", tr.To)
	return tr, s.runTasks(ctx, s.lifecycleTasks(doc, tr, "system", correlationID, s.now())), nil
}
