package orchestrator

import (
	"ai-screening-call-service/internal/models"
	"ai-screening-call-service/internal/service/classifier"
	"ai-screening-call-service/internal/service/speech"
)

// event is anything delivered to a session's loop.
type event interface{}

type fragmentEvent struct {
	fragment models.TranscriptFragment
}

type classifiedEvent struct {
	boundary *models.TurnBoundary
	result   classifier.Result
	err      error
}

type playbackEvent struct {
	job *speech.Job
}

type playbackTimeoutEvent struct {
	job *speech.Job
}

type transportLostEvent struct {
	err error
}

type snapshotEvent struct {
	reply chan models.CallSummary
}
