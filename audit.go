package rbac

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// AuditHook is called synchronously with every check result. A panicking
// hook is recovered and logged; the decision stands regardless.
type AuditHook func(*AccessCheckResult)

// AuditRecord is the persisted form of one access decision.
type AuditRecord struct {
	ID                 string         `json:"id"`
	TraceID            string         `json:"trace_id,omitempty"`
	PrincipalID        string         `json:"principal_id"`
	Resource           string         `json:"resource"`
	Action             string         `json:"action"`
	Allowed            bool           `json:"allowed"`
	MatchedRoles       []string       `json:"matched_roles"`
	MatchedPermissions []string       `json:"matched_permissions"`
	Reason             string         `json:"reason"`
	DurationMS         float64        `json:"duration_ms"`
	Context            map[string]any `json:"context,omitempty"`
	Timestamp          time.Time      `json:"timestamp"`
}

// AuditFilter narrows QueryDecisions. Zero-valued fields match everything.
type AuditFilter struct {
	PrincipalID string
	Resource    string
	Action      string
	Allowed     *bool
	Since       time.Time
	Until       time.Time
	Limit       int
}

// Matches checks one record against the filter, Limit excepted.
func (f AuditFilter) Matches(rec *AuditRecord) bool {
	if f.PrincipalID != "" && rec.PrincipalID != f.PrincipalID {
		return false
	}
	if f.Resource != "" && rec.Resource != f.Resource {
		return false
	}
	if f.Action != "" && rec.Action != f.Action {
		return false
	}
	if f.Allowed != nil && rec.Allowed != *f.Allowed {
		return false
	}
	if !f.Since.IsZero() && rec.Timestamp.Before(f.Since) {
		return false
	}
	if !f.Until.IsZero() && rec.Timestamp.After(f.Until) {
		return false
	}
	return true
}

func newAuditRecord(res *AccessCheckResult, traceID string) *AuditRecord {
	return &AuditRecord{
		ID:                 uuid.NewString(),
		TraceID:            traceID,
		PrincipalID:        res.PrincipalID,
		Resource:           res.Resource,
		Action:             res.Action,
		Allowed:            res.Allowed,
		MatchedRoles:       append([]string(nil), res.MatchedRoles...),
		MatchedPermissions: append([]string(nil), res.MatchedPermissions...),
		Reason:             res.Reason,
		DurationMS:         res.DurationMS,
		Context:            res.Context,
		Timestamp:          res.Timestamp,
	}
}

// audit feeds the synchronous hook, then hands the record to the
// non-blocking store queue when one is configured.
func (e *Engine) audit(ctx context.Context, res *AccessCheckResult) {
	if e.auditHook != nil {
		e.invokeHook(res)
	}
	if e.auditCh != nil {
		rec := newAuditRecord(res, e.traceIDFunc())
		select {
		case e.auditCh <- rec:
		default:
			e.auditDrops.Add(1)
			e.logger.Error("audit queue full, dropping record",
				"principal_id", res.PrincipalID,
				"resource", res.Resource,
				"dropped_total", e.auditDrops.Load())
		}
	}
}

func (e *Engine) invokeHook(res *AccessCheckResult) {
	defer func() {
		if r := recover(); r != nil {
			e.logger.Error("audit hook panicked",
				"principal_id", res.PrincipalID,
				"resource", res.Resource,
				"panic", fmt.Sprint(r))
		}
	}()
	e.auditHook(res)
}

func (e *Engine) startAuditWorker() {
	e.auditCh = make(chan *AuditRecord, e.auditQueueSize)
	e.auditStop = make(chan struct{})
	e.auditWG.Add(1)
	go func() {
		defer e.auditWG.Done()
		for {
			select {
			case rec := <-e.auditCh:
				e.persistAuditRecord(rec)
			case <-e.auditStop:
				// Drain whatever is buffered, then exit.
				for {
					select {
					case rec := <-e.auditCh:
						e.persistAuditRecord(rec)
					default:
						return
					}
				}
			}
		}
	}()
}

func (e *Engine) stopAuditWorker() {
	if e.auditStop == nil {
		return
	}
	close(e.auditStop)
	e.auditWG.Wait()
}

func (e *Engine) persistAuditRecord(rec *AuditRecord) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := e.auditStore.LogDecision(ctx, rec); err != nil {
		e.logger.Error("audit store write failed", "record_id", rec.ID, "error", err)
	}
}

// AuditDrops reports how many audit records were discarded because the
// queue was full.
func (e *Engine) AuditDrops() uint64 { return e.auditDrops.Load() }

// QueryAuditLog runs the filter against the configured audit store.
func (e *Engine) QueryAuditLog(ctx context.Context, filter AuditFilter) ([]*AuditRecord, error) {
	if e.auditStore == nil {
		return nil, fmt.Errorf("rbac: no audit store configured")
	}
	return e.auditStore.QueryDecisions(ctx, filter)
}
