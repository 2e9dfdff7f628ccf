package poller

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	igerrors "ideagraph/internal/errors"
)

type scriptedPoller struct {
	source string
	err    error
	calls  int
}

func (p *scriptedPoller) Source() string { return p.source }

func (p *scriptedPoller) PollOnce(ctx context.Context) (TickResult, error) {
	p.calls++
	return TickResult{Fetched: 1}, p.err
}

func TestOrchestratorPausesDisabledPoller(t *testing.T) {
	o := NewOrchestrator(nil)
	o.Start(context.Background())
	defer o.Stop()

	p := &scriptedPoller{source: "mail", err: igerrors.Disabled("mail poller")}
	o.tick(p)
	o.tick(p)
	assert.Equal(t, 1, p.calls)
}

func TestOrchestratorKeepsTickingOnTransientErrors(t *testing.T) {
	o := NewOrchestrator(nil)
	o.Start(context.Background())
	defer o.Stop()

	p := &scriptedPoller{source: "github", err: igerrors.Transient(assert.AnError)}
	o.tick(p)
	o.tick(p)
	assert.Equal(t, 2, p.calls)
}

func TestOrchestratorStopsTicksAfterStop(t *testing.T) {
	o := NewOrchestrator(nil)
	o.Start(context.Background())

	p := &scriptedPoller{source: "teams"}
	require.NoError(t, o.Add(p, time.Minute))
	o.Stop()

	o.tick(p)
	assert.Zero(t, p.calls)
}

func TestOrchestratorRejectsNonPositiveInterval(t *testing.T) {
	o := NewOrchestrator(nil)
	assert.Error(t, o.Add(&scriptedPoller{source: "mail"}, 0))
}
