package fsm

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/superfly/fsm"

	"github.com/pixelkit/bgremover/pkg/errors"
	"github.com/pixelkit/bgremover/pkg/security"
	"github.com/pixelkit/bgremover/pkg/session"
)

// Machine holds dependencies for FSM transitions
type Machine struct {
	sess      *session.Session
	saver     session.Saver
	validator *security.Validator

	mu     sync.Mutex
	result ProcessResponse
}

// NewMachine creates a new FSM machine driving sess, checking border requests
// with validator and saving through saver
func NewMachine(sess *session.Session, validator *security.Validator, saver session.Saver) *Machine {
	return &Machine{
		sess:      sess,
		saver:     saver,
		validator: validator,
	}
}

// Result returns the response as last recorded by a transition
func (m *Machine) Result() ProcessResponse {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.result
}

func (m *Machine) record(resp *ProcessResponse) *fsm.Response[ProcessResponse] {
	m.mu.Lock()
	m.result = *resp
	m.mu.Unlock()
	return fsm.NewResponse(resp)
}

// fail records the error and aborts; no state of this workflow is retried.
func (m *Machine) fail(resp *ProcessResponse, err error) error {
	resp.Status = StateFailed
	resp.ErrorMessage = session.Notice(err)
	m.record(resp)
	return fsm.Abort(err)
}

// handleIngest validates the input file and runs background removal on it
func (m *Machine) handleIngest(ctx context.Context, req *fsm.Request[ProcessRequest, ProcessResponse]) (*fsm.Response[ProcessResponse], error) {
	slog.Info("fsm_state_ingest", "input", req.Msg.InputPath)

	resp := req.W.Msg
	if resp == nil {
		resp = &ProcessResponse{}
	}
	resp.SessionID = m.sess.ID()

	f, err := session.OpenLocalFile(req.Msg.InputPath)
	if err != nil {
		slog.Error("input_open_failed", "input", req.Msg.InputPath, "error", err)
		return nil, m.fail(resp, err)
	}
	resp.Filename = f.Name()

	if err := m.sess.Ingest(ctx, f); err != nil {
		slog.Error("ingest_failed", "input", req.Msg.InputPath, "status", m.sess.Status(), "error", err)
		return nil, m.fail(resp, err)
	}

	snap := m.sess.Snapshot()
	resp.ProcessedRef = snap.ProcessedRef
	resp.Status = snap.Status.String()

	slog.Info("ingest_complete", "session_id", resp.SessionID, "processed_ref", resp.ProcessedRef, "size", snap.ProcessedSize)

	return m.record(resp), nil
}

// handleApplyBorder applies the requested border, or passes through when none was asked for
func (m *Machine) handleApplyBorder(ctx context.Context, req *fsm.Request[ProcessRequest, ProcessResponse]) (*fsm.Response[ProcessResponse], error) {
	slog.Info("fsm_state_apply_border", "input", req.Msg.InputPath, "requested", req.Msg.ApplyBorder)

	resp := req.W.Msg
	if resp == nil {
		return nil, fsm.Abort(fmt.Errorf("response not initialized"))
	}

	if !req.Msg.ApplyBorder {
		slog.Info("border_skipped", "session_id", resp.SessionID)
		return m.record(resp), nil
	}

	border := m.sess.Border()
	if req.Msg.BorderColor != "" {
		border.Color = req.Msg.BorderColor
	}
	if req.Msg.BorderThickness != 0 {
		border.Thickness = req.Msg.BorderThickness
	}
	if err := m.validator.ValidateBorder(security.Border{Color: border.Color, Thickness: border.Thickness}); err != nil {
		slog.Error("border_rejected", "session_id", resp.SessionID, "color", border.Color, "thickness", border.Thickness, "error", err)
		return nil, m.fail(resp, err)
	}
	m.sess.SetBorderColor(border.Color, false)
	m.sess.SetBorderThickness(border.Thickness)

	if err := m.sess.ApplyBorder(ctx); err != nil {
		slog.Error("apply_border_failed", "session_id", resp.SessionID, "error", err)
		return nil, m.fail(resp, err)
	}

	border = m.sess.Border()
	resp.BorderApplied = true
	resp.ProcessedRef = m.sess.Snapshot().ProcessedRef

	slog.Info("border_applied", "session_id", resp.SessionID, "color", border.Color, "thickness", border.Thickness)

	return m.record(resp), nil
}

// handleDownload saves the processed image
func (m *Machine) handleDownload(ctx context.Context, req *fsm.Request[ProcessRequest, ProcessResponse]) (*fsm.Response[ProcessResponse], error) {
	slog.Info("fsm_state_download", "input", req.Msg.InputPath)

	resp := req.W.Msg
	if resp == nil {
		return nil, fsm.Abort(fmt.Errorf("response not initialized"))
	}

	location, err := m.sess.Download(ctx, m.saver)
	if err != nil {
		return nil, m.fail(resp, err)
	}
	if location == "" {
		return nil, m.fail(resp, errors.Wrap(fmt.Errorf("no processed image"), "download skipped"))
	}
	resp.Location = location

	return m.record(resp), nil
}

// handleComplete marks the workflow as complete
func (m *Machine) handleComplete(ctx context.Context, req *fsm.Request[ProcessRequest, ProcessResponse]) (*fsm.Response[ProcessResponse], error) {
	slog.Info("fsm_state_complete", "input", req.Msg.InputPath)

	resp := req.W.Msg
	if resp == nil {
		resp = &ProcessResponse{}
	}
	resp.Status = StateComplete

	slog.Info("fsm_complete", "session_id", resp.SessionID, "location", resp.Location, "border_applied", resp.BorderApplied)

	return m.record(resp), nil
}
