package eventbus

import "fmt"

// Topic patterns for NATS pub/sub communication.

func TopicRunStarted(runID string) string {
	return fmt.Sprintf("events.run.%s.started", runID)
}

func TopicRunSuspended(runID string) string {
	return fmt.Sprintf("events.run.%s.suspended", runID)
}

func TopicRunResumed(runID string) string {
	return fmt.Sprintf("events.run.%s.resumed", runID)
}

func TopicRunCompleted(runID string) string {
	return fmt.Sprintf("events.run.%s.completed", runID)
}

func TopicRunFailed(runID string) string {
	return fmt.Sprintf("events.run.%s.failed", runID)
}

func TopicSkillSaved(skillID string) string {
	return fmt.Sprintf("events.skill.%s.saved", skillID)
}

func TopicSkillHit(skillID string) string {
	return fmt.Sprintf("events.skill.%s.hit", skillID)
}

func TopicMissionFired(missionID string) string {
	return fmt.Sprintf("events.mission.%s.fired", missionID)
}

const (
	TopicEventsAll     = "events.>"
	TopicEventsRun     = "events.run.>"
	TopicEventsSkill   = "events.skill.>"
	TopicEventsMission = "events.mission.>"
)
