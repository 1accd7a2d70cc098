package jobs

type JobType string

const (
	JobRepairDeleteExperience JobType = "repair_delete_experience"
	JobRepairDeletePlace      JobType = "repair_delete_place"
	JobRepairDeleteUser       JobType = "repair_delete_user"
)

// check to see if the job type is a known constant
func (t JobType) IsValid() bool {
	switch t {
	case JobRepairDeleteExperience, JobRepairDeletePlace, JobRepairDeleteUser:
		return true
	default:
		return false
	}
}

// IdempotencyKey is one key per target, so a target that keeps failing is only
// queued once.
func IdempotencyKey(t JobType, targetID string) string {
	return string(t) + ":" + targetID
}
