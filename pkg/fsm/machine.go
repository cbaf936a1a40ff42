// Package fsm runs one upload session end to end as a superfly/fsm workflow:
// ingest the file (which removes its background), optionally apply a border,
// then download the result.
package fsm

import (
	"context"

	"github.com/pixelkit/bgremover/pkg/errors"
	"github.com/superfly/fsm"
)

// Register registers the processing FSM
func (m *Machine) Register(ctx context.Context, manager *fsm.Manager) (fsm.Start[ProcessRequest, ProcessResponse], fsm.Resume, error) {
	start, resume, err := fsm.Register[ProcessRequest, ProcessResponse](manager, "bgremover-process").
		Start(StateIngest, m.handleIngest).
		To(StateApplyBorder, m.handleApplyBorder).
		To(StateDownload, m.handleDownload).
		To(StateComplete, m.handleComplete).
		End(StateFailed).
		Build(ctx)

	if err != nil {
		return nil, nil, errors.Wrap(err, "failed to register FSM")
	}

	return start, resume, nil
}
