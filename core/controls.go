package orchestration

// Cancel abandons the streaming reply, if any, and silences narration.
func (o *Orchestrator) Cancel() {
	o.sendMu.Lock()
	if active := o.ingestor.Active(); active != nil {
		active.Cancel()
	}
	o.sendMu.Unlock()

	o.narration.CancelAll()
}

// StopSpeaking silences narration without touching the streaming reply.
func (o *Orchestrator) StopSpeaking() {
	o.narration.CancelAll()
}

// Mute silences narration and drops sentences until Unmute.
func (o *Orchestrator) Mute() {
	o.muted.Store(true)
	o.narration.CancelAll()
}

func (o *Orchestrator) Unmute() {
	o.muted.Store(false)
}

func (o *Orchestrator) IsMuted() bool {
	return o.muted.Load()
}
