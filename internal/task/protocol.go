package task

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/agentboard/agentboard/internal/board"
)

// The agent-facing claim/review protocol. It applies only to AI-optimized
// boards, whose columns carry workflow phases; free-form boards are purely
// positional and reject these operations.

// ClaimRequest asks for the next eligible task, or a specific one.
type ClaimRequest struct {
	BoardID      int64
	Agent        string
	Capabilities []string
	Identifier   string
}

// ProtocolResult pairs a task with the hook metadata the caller should run.
type ProtocolResult struct {
	Task Task
	Hook HookMetadata
}

// CompletionPayload carries completion metadata from the agent.
type CompletionPayload struct {
	Summary      string
	FilesChanged []string
}

func protocolColumns(ctx context.Context, q dbtx, boardID int64) (b board.Board, ready, doing, review, done board.Column, err error) {
	b, err = loadBoard(ctx, q, boardID)
	if err != nil {
		return
	}
	if !b.AIOptimized {
		err = fmt.Errorf("board %q is not AI-optimized", b.Name)
		return
	}
	if ready, err = loadColumnByPhase(ctx, q, boardID, board.PhaseReady); err != nil {
		return
	}
	if doing, err = loadColumnByPhase(ctx, q, boardID, board.PhaseDoing); err != nil {
		return
	}
	if review, err = loadColumnByPhase(ctx, q, boardID, board.PhaseReview); err != nil {
		return
	}
	done, err = loadColumnByPhase(ctx, q, boardID, board.PhaseDone)
	return
}

// NextEligible is the read-only preview of what Claim would pick.
func (s *Service) NextEligible(ctx context.Context, boardID int64, capabilities []string) (Task, bool, error) {
	_, ready, doing, review, _, err := protocolColumns(ctx, s.db, boardID)
	if err != nil {
		return Task{}, false, err
	}
	return nextEligibleTask(ctx, s.db, ready.ID, doing.ID, review.ID, capabilities, nowString())
}

// Claim atomically claims the next eligible task (or the requested one),
// leases it to the agent, and moves it to the doing column. Losing the
// conditional write to another agent reports ErrNoTasksAvailable; the caller
// may re-query.
func (s *Service) Claim(ctx context.Context, req ClaimRequest) (ProtocolResult, error) {
	if req.Agent == "" {
		return ProtocolResult{}, fmt.Errorf("agent is required")
	}
	var result ProtocolResult
	err := s.inTx(ctx, func(tx *sql.Tx, ev *eventBuffer) error {
		b, ready, doing, review, _, err := protocolColumns(ctx, tx, req.BoardID)
		if err != nil {
			return err
		}
		now := nowString()

		// The doing column's WIP gate doubles as the concurrency ceiling for
		// active agents; a full column means nothing can be claimed.
		if doing.WIPLimit > 0 {
			n, err := chargeableCount(ctx, tx, doing.ID)
			if err != nil {
				return err
			}
			if n >= doing.WIPLimit {
				return ErrNoTasksAvailable
			}
		}

		var candidate Task
		if req.Identifier != "" {
			t, err := taskByIdentifier(ctx, tx, req.Identifier)
			if err != nil {
				return err
			}
			if !t.Type.Chargeable() {
				return ErrNoTasksAvailable
			}
			if t.ColumnID != ready.ID || !claimable(t, now) || !capabilitiesCover(req.Capabilities, t.RequiredCapabilities) {
				return ErrNoTasksAvailable
			}
			satisfied, err := depsSatisfied(ctx, tx, t.Dependencies)
			if err != nil {
				return err
			}
			if !satisfied {
				return ErrNoTasksAvailable
			}
			busy, err := inProgressKeyFiles(ctx, tx, doing.ID, review.ID)
			if err != nil {
				return err
			}
			if keyFileConflict(t, busy) {
				return ErrNoTasksAvailable
			}
			candidate = t
		} else {
			t, found, err := nextEligibleTask(ctx, tx, ready.ID, doing.ID, review.ID, req.Capabilities, now)
			if err != nil {
				return err
			}
			if !found {
				return ErrNoTasksAvailable
			}
			candidate = t
		}

		expires := time.Now().UTC().Add(s.lease).Format(time.RFC3339)
		won, err := casClaim(ctx, tx, candidate.ID, req.Agent, now, expires)
		if err != nil {
			return err
		}
		if !won {
			return ErrNoTasksAvailable
		}
		candidate.Status = StatusInProgress
		candidate.AssignedToID = req.Agent
		candidate.ClaimedAt = now
		candidate.ClaimExpiresAt = expires

		if candidate.ColumnID != doing.ID {
			idx, err := appendIndex(ctx, tx, doing.ID)
			if err != nil {
				return err
			}
			if err := moveAcrossColumns(ctx, tx, &candidate, doing.ID, idx); err != nil {
				return err
			}
		}
		if err := insertHistory(ctx, tx, candidate.ID, "claimed", req.Agent, ""); err != nil {
			return err
		}
		ev.add(EventClaimed, candidate)
		if goal, err := repositionParentGoal(ctx, tx, candidate); err != nil {
			return err
		} else if goal != nil {
			ev.add(EventMoved, *goal)
		}
		result = ProtocolResult{
			Task: candidate,
			Hook: s.hooks.Metadata(TransitionClaim, candidate, b, req.Agent),
		}
		return nil
	})
	if err != nil {
		return ProtocolResult{}, err
	}
	return result, nil
}

// Unclaim releases a claim. Only the holder may release; the task returns to
// the ready column as open. The reason is audit-only.
func (s *Service) Unclaim(ctx context.Context, identifier, agent, reason string) (Task, error) {
	var out Task
	err := s.inTx(ctx, func(tx *sql.Tx, ev *eventBuffer) error {
		t, err := taskByIdentifier(ctx, tx, identifier)
		if err != nil {
			return err
		}
		if t.Status != StatusInProgress || t.AssignedToID == "" {
			return ErrNotClaimed
		}
		if t.AssignedToID != agent {
			return ErrNotAuthorized
		}
		_, ready, _, _, _, err := protocolColumns(ctx, tx, t.BoardID)
		if err != nil {
			return err
		}
		now := nowString()
		if _, err := tx.ExecContext(ctx, `UPDATE tasks
			SET status=?, assigned_to_id=NULL, claimed_at=NULL, claim_expires_at=NULL, updated_at=?
			WHERE id=?`, string(StatusOpen), now, t.ID); err != nil {
			return fmt.Errorf("unclaim task: %w", err)
		}
		t.Status = StatusOpen
		t.AssignedToID = ""
		t.ClaimedAt = ""
		t.ClaimExpiresAt = ""
		if t.ColumnID != ready.ID {
			idx, err := appendIndex(ctx, tx, ready.ID)
			if err != nil {
				return err
			}
			if err := moveAcrossColumns(ctx, tx, &t, ready.ID, idx); err != nil {
				return err
			}
		}
		if err := insertHistory(ctx, tx, t.ID, "unclaimed", agent, reasonDetail(reason)); err != nil {
			return err
		}
		ev.add(EventUnclaimed, t)
		if goal, err := repositionParentGoal(ctx, tx, t); err != nil {
			return err
		} else if goal != nil {
			ev.add(EventMoved, *goal)
		}
		out = t
		return nil
	})
	if err != nil {
		return Task{}, err
	}
	return out, nil
}

func reasonDetail(reason string) string {
	if reason == "" {
		return ""
	}
	detail, _ := json.Marshal(map[string]string{"reason": reason})
	return string(detail)
}

// Complete records completion by the claim holder and moves the task to
// review. Tasks that need no review auto-advance to done as completed, and
// their dependents are re-evaluated.
func (s *Service) Complete(ctx context.Context, identifier, agent string, payload CompletionPayload) (ProtocolResult, error) {
	var result ProtocolResult
	err := s.inTx(ctx, func(tx *sql.Tx, ev *eventBuffer) error {
		t, err := taskByIdentifier(ctx, tx, identifier)
		if err != nil {
			return err
		}
		if t.AssignedToID == "" || t.AssignedToID != agent {
			return ErrNotAuthorized
		}
		if t.Status != StatusInProgress && t.Status != StatusBlocked {
			return ErrInvalidStatus
		}
		b, _, _, review, done, err := protocolColumns(ctx, tx, t.BoardID)
		if err != nil {
			return err
		}
		now := nowString()
		detail, _ := json.Marshal(map[string]any{
			"summary":       payload.Summary,
			"files_changed": payload.FilesChanged,
		})

		if t.NeedsReview {
			if _, err := tx.ExecContext(ctx, `UPDATE tasks SET review_status=?, completed_by_id=?, updated_at=? WHERE id=?`,
				string(ReviewPending), agent, now, t.ID); err != nil {
				return fmt.Errorf("mark pending review: %w", err)
			}
			t.ReviewStatus = ReviewPending
			t.CompletedByID = agent
			idx, err := appendIndex(ctx, tx, review.ID)
			if err != nil {
				return err
			}
			if err := moveAcrossColumns(ctx, tx, &t, review.ID, idx); err != nil {
				return err
			}
			if err := insertHistory(ctx, tx, t.ID, "completed", agent, string(detail)); err != nil {
				return err
			}
			ev.add(EventReviewRequested, t)
		} else {
			if err := finishTask(ctx, tx, &t, agent, now, done, ev); err != nil {
				return err
			}
			if err := insertHistory(ctx, tx, t.ID, "completed", agent, string(detail)); err != nil {
				return err
			}
			ev.add(EventCompleted, t)
		}

		if goal, err := repositionParentGoal(ctx, tx, t); err != nil {
			return err
		} else if goal != nil {
			ev.add(EventMoved, *goal)
		}
		result = ProtocolResult{
			Task: t,
			Hook: s.hooks.Metadata(TransitionComplete, t, b, agent),
		}
		return nil
	})
	if err != nil {
		return ProtocolResult{}, err
	}
	return result, nil
}

// finishTask moves a task to done as completed and unblocks its direct
// dependents.
func finishTask(ctx context.Context, tx dbtx, t *Task, agent, now string, done board.Column, ev *eventBuffer) error {
	if _, err := tx.ExecContext(ctx, `UPDATE tasks SET status=?, completed_at=?, completed_by_id=?, updated_at=? WHERE id=?`,
		string(StatusCompleted), now, agent, now, t.ID); err != nil {
		return fmt.Errorf("complete task: %w", err)
	}
	t.Status = StatusCompleted
	t.CompletedAt = now
	t.CompletedByID = agent
	if t.ColumnID != done.ID {
		idx, err := appendIndex(ctx, tx, done.ID)
		if err != nil {
			return err
		}
		if err := moveAcrossColumns(ctx, tx, t, done.ID, idx); err != nil {
			return err
		}
	}
	opened, err := unblockDependents(ctx, tx, t.Identifier)
	if err != nil {
		return err
	}
	for _, dep := range opened {
		if err := insertHistory(ctx, tx, dep.ID, "unblocked", "", ""); err != nil {
			return err
		}
		ev.add(EventUnblocked, dep)
	}
	return nil
}

// SetReviewStatus records a reviewer's verdict on a task awaiting review.
// MarkReviewed applies the resulting transition.
func (s *Service) SetReviewStatus(ctx context.Context, identifier string, status ReviewStatus, reviewer string) (Task, error) {
	switch status {
	case ReviewApproved, ReviewChangesRequested, ReviewRejected:
	default:
		return Task{}, fmt.Errorf("invalid review status %q", status)
	}
	var out Task
	err := s.inTx(ctx, func(tx *sql.Tx, ev *eventBuffer) error {
		t, err := taskByIdentifier(ctx, tx, identifier)
		if err != nil {
			return err
		}
		_, _, _, review, _, err := protocolColumns(ctx, tx, t.BoardID)
		if err != nil {
			return err
		}
		if t.ColumnID != review.ID {
			return ErrInvalidColumn
		}
		if _, err := tx.ExecContext(ctx, `UPDATE tasks SET review_status=?, updated_at=? WHERE id=?`,
			string(status), nowString(), t.ID); err != nil {
			return fmt.Errorf("set review status: %w", err)
		}
		t.ReviewStatus = status
		detail, _ := json.Marshal(map[string]string{"review_status": string(status)})
		if err := insertHistory(ctx, tx, t.ID, "review_verdict", reviewer, string(detail)); err != nil {
			return err
		}
		out = t
		return nil
	})
	if err != nil {
		return Task{}, err
	}
	return out, nil
}

// MarkReviewed applies the recorded review verdict: approval advances the
// task to done as completed and unblocks dependents; changes requested or
// rejection return it to doing, preserving the original claim holder.
func (s *Service) MarkReviewed(ctx context.Context, identifier, reviewer string) (ProtocolResult, error) {
	var result ProtocolResult
	err := s.inTx(ctx, func(tx *sql.Tx, ev *eventBuffer) error {
		t, err := taskByIdentifier(ctx, tx, identifier)
		if err != nil {
			return err
		}
		b, _, doing, review, done, err := protocolColumns(ctx, tx, t.BoardID)
		if err != nil {
			return err
		}
		if t.ColumnID != review.ID {
			return ErrInvalidColumn
		}
		now := nowString()
		switch t.ReviewStatus {
		case ReviewApproved:
			if _, err := tx.ExecContext(ctx, `UPDATE tasks SET reviewed_at=?, updated_at=? WHERE id=?`,
				now, now, t.ID); err != nil {
				return fmt.Errorf("mark reviewed: %w", err)
			}
			t.ReviewedAt = now
			if err := finishTask(ctx, tx, &t, t.CompletedByID, now, done, ev); err != nil {
				return err
			}
		case ReviewChangesRequested, ReviewRejected:
			if _, err := tx.ExecContext(ctx, `UPDATE tasks SET reviewed_at=?, status=?, updated_at=? WHERE id=?`,
				now, string(StatusInProgress), now, t.ID); err != nil {
				return fmt.Errorf("mark reviewed: %w", err)
			}
			t.ReviewedAt = now
			t.Status = StatusInProgress
			idx, err := appendIndex(ctx, tx, doing.ID)
			if err != nil {
				return err
			}
			if err := moveAcrossColumns(ctx, tx, &t, doing.ID, idx); err != nil {
				return err
			}
		default:
			return ErrReviewNotPerformed
		}
		detail, _ := json.Marshal(map[string]string{"verdict": string(t.ReviewStatus)})
		if err := insertHistory(ctx, tx, t.ID, "reviewed", reviewer, string(detail)); err != nil {
			return err
		}
		ev.add(EventReviewed, t)
		if goal, err := repositionParentGoal(ctx, tx, t); err != nil {
			return err
		} else if goal != nil {
			ev.add(EventMoved, *goal)
		}
		result = ProtocolResult{
			Task: t,
			Hook: s.hooks.Metadata(TransitionReview, t, b, reviewer),
		}
		return nil
	})
	if err != nil {
		return ProtocolResult{}, err
	}
	return result, nil
}
