package driver

import (
	"log"

	"github.com/sarchlab/akita/v4/sim"

	"github.com/sarchlab/vmsim/timing/mem"
)

// HookPosRequestDone is triggered after a request completes. The item is
// the mem.Request and the detail is a RequestDetail.
var HookPosRequestDone = &sim.HookPos{Name: "RequestDone"}

// HookPosStopped is triggered when the driver stops. The item is the
// ExitReport.
var HookPosStopped = &sim.HookPos{Name: "Stopped"}

// LogHook writes one line per completed request.
type LogHook struct {
	sim.LogHookBase
}

// NewLogHook creates a LogHook that writes to logger.
func NewLogHook(logger *log.Logger) *LogHook {
	h := &LogHook{}
	h.Logger = logger

	return h
}

// Func writes the request if the hook is triggered by a completed request.
func (h *LogHook) Func(ctx sim.HookCtx) {
	if ctx.Pos != HookPosRequestDone {
		return
	}

	req, ok := ctx.Item.(mem.Request)
	if !ok {
		return
	}

	detail, _ := ctx.Detail.(RequestDetail)

	h.Printf("%d-%d %s vaddr=0x%x paddr=0x%x tlb_hit=%t cache_hit=%t mem=%d",
		req.IssueTick, req.CompletionTick, req.Kind, req.VAddr, req.PAddr,
		detail.Translation.Hit, detail.Access.Hit, detail.MemLatency)
}
