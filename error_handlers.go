package taskpool

import (
	lg "github.com/Andrej220/go-utils/zlog"
)

// reportInternalError reports an internal pool error.
//
// Internal errors are non-task failures such as a worker loop that died
// and had to be respawned, or a task that was executed outside the pool
// while queued. If no handler is registered the error is only logged.
func (p *Pool) reportInternalError(e error) {
	if p.opts.OnInternalError != nil {
		p.opts.OnInternalError(e)
		return
	}
	lg.FromContext(p.opts.Context).Error("Pool internal error",
		lg.String("pool", p.opts.Name),
		lg.Any("error", e),
	)
}

// reportTaskError reports the terminal error of a task.
//
// The error has already resolved the task, so observers see it through
// Await; the handler is an extra channel for the host.
func (p *Pool) reportTaskError(err error) {
	if p.opts.OnTaskError != nil {
		p.opts.OnTaskError(err)
	}
}
