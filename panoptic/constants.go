package panoptic

const (
	// Reports emitted by the job doer before and after every stage pass.
	TOPIC_STAGE_REPORT = "topic.stage_report"

	DDOG_STAGE_RUN_COUNTER  = "announcer.stage.run"
	DDOG_STAGE_DURATION     = "announcer.stage.duration"
	DDOG_STAGE_ITEM_COUNTER = "announcer.stage.items"
)

type ReportPhase string

const (
	PhaseStarted  ReportPhase = "started"
	PhaseFinished ReportPhase = "finished"
)
