// internal/service/bulk_edit.go
package service

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"

	appErrors "github.com/gitter-badger/grapevine-go/internal/errors"
	"github.com/gitter-badger/grapevine-go/internal/model"
	"github.com/gitter-badger/grapevine-go/internal/repository"
)

// BulkEditBatch is one form submission's worth of field edits. The
// scheduled send time arrives as split date and time sub-fields that must
// recombine into a single timestamp. Empty fields mean "leave unchanged".
type BulkEditBatch struct {
	ScheduledSendDate   string `json:"scheduled_send_date"` // "2006-01-02"
	ScheduledSendTime   string `json:"scheduled_send_time"` // "15:04" or "15:04:05"
	CancelledAtSendTime string `json:"cancelled_at_send_time"`
	TransportName       string `json:"transport_name"`
}

// Clean recombines and validates the batch. A partial or malformed
// date/time combination fails the whole batch. The returned map holds the
// field deltas for the audit trail.
func (b BulkEditBatch) Clean() (repository.BulkChanges, map[string]string, error) {
	changes := repository.BulkChanges{}
	deltas := map[string]string{}

	hasDate := strings.TrimSpace(b.ScheduledSendDate) != ""
	hasTime := strings.TrimSpace(b.ScheduledSendTime) != ""
	if hasDate != hasTime {
		return changes, nil, &appErrors.ValidationError{
			Field:  "scheduled_send_time",
			Reason: "both date and time components are required",
		}
	}
	if hasDate {
		combined := strings.TrimSpace(b.ScheduledSendDate) + " " + strings.TrimSpace(b.ScheduledSendTime)
		ts, err := parseCombined(combined)
		if err != nil {
			return changes, nil, &appErrors.ValidationError{
				Field:  "scheduled_send_time",
				Reason: fmt.Sprintf("unparsable date/time combination %q", combined),
			}
		}
		changes.ScheduledSendTime = &ts
		deltas["scheduled_send_time"] = ts.Format(time.RFC3339)
	}

	if v := strings.TrimSpace(b.CancelledAtSendTime); v != "" {
		cancelled, err := strconv.ParseBool(v)
		if err != nil {
			return changes, nil, &appErrors.ValidationError{
				Field:  "cancelled_at_send_time",
				Reason: fmt.Sprintf("not a boolean: %q", v),
			}
		}
		changes.CancelledAtSendTime = &cancelled
		deltas["cancelled_at_send_time"] = strconv.FormatBool(cancelled)
	}

	if v := strings.TrimSpace(b.TransportName); v != "" {
		changes.TransportName = &v
		deltas["transport_name"] = v
	}

	return changes, deltas, nil
}

func parseCombined(combined string) (time.Time, error) {
	for _, layout := range []string{"2006-01-02 15:04:05", "2006-01-02 15:04"} {
		if ts, err := time.ParseInLocation(layout, combined, time.Local); err == nil {
			return ts, nil
		}
	}
	return time.Time{}, fmt.Errorf("no layout matched %q", combined)
}

// BulkEditService validates and atomically applies a batch of field edits
// across a set of Sendables.
type BulkEditService struct {
	SendableRepo repository.SendableRepositoryInterface
}

type EditSummary struct {
	Affected int `json:"affected"`
}

// ApplyBulkEdits applies the batch to every existing Sendable in targetIDs:
// all-or-nothing, one audit entry per affected Sendable recording the JSON
// field deltas and whether it was already sent. Target ids resolving to
// nothing are not an error; they are just not counted.
func (s *BulkEditService) ApplyBulkEdits(ctx context.Context, operator *model.Operator, batch BulkEditBatch, targetIDs []int) (*EditSummary, error) {
	if !operator.CanSend() {
		return nil, appErrors.ErrAccessDenied
	}

	changes, deltas, err := batch.Clean()
	if err != nil {
		return nil, err
	}
	if changes.Empty() || len(targetIDs) == 0 {
		return &EditSummary{Affected: 0}, nil
	}

	deltasJSON, err := json.Marshal(deltas)
	if err != nil {
		return nil, err
	}

	affected, err := s.SendableRepo.BulkUpdate(ctx, targetIDs, changes, operator.ID, string(deltasJSON))
	if err != nil {
		return nil, err
	}
	return &EditSummary{Affected: affected}, nil
}
