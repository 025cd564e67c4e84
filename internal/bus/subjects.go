package bus

const (
	SubjectAnyTaskScored = "missionmind.task.*.scored"
	SubjectAnyTaskRouted = "missionmind.task.*.routed"
	SubjectSweepStats    = "missionmind.task.sweep.stats"

	StreamName   = "MISSIONMIND_EVENTS"
	StreamMaxAge = "720h" // 30 days
)

func SubjectTaskScored(taskID string) string     { return "missionmind.task." + taskID + ".scored" }
func SubjectTaskRouted(taskID string) string     { return "missionmind.task." + taskID + ".routed" }
func SubjectTaskUnroutable(taskID string) string { return "missionmind.task." + taskID + ".unroutable" }
func SubjectRiskChanged(taskID string) string    { return "missionmind.task." + taskID + ".risk_changed" }
func SubjectQualityFailed(taskID string) string  { return "missionmind.task." + taskID + ".quality_failed" }
