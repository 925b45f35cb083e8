package arena

// ActionClass selects a cooldown slot.
type ActionClass uint8

const (
	ClassTraining ActionClass = iota
	ClassBattle
	ClassRest
)

func (c ActionClass) String() string {
	switch c {
	case ClassTraining:
		return "training"
	case ClassBattle:
		return "battle"
	case ClassRest:
		return "rest"
	}
	return "unknown"
}

// Cooldown durations in seconds.
const (
	TrainingCooldown uint64 = 3600
	BattleCooldown   uint64 = 300
	RestCooldown     uint64 = 1800
)

// CooldownDuration returns the fixed duration of class.
func CooldownDuration(c ActionClass) uint64 {
	switch c {
	case ClassTraining:
		return TrainingCooldown
	case ClassBattle:
		return BattleCooldown
	case ClassRest:
		return RestCooldown
	}
	return 0
}

func classIndex(c ActionClass) int { return int(c) }

// IsEligible reports whether w may perform an action of class c at now.
func IsEligible(w *Waifu, c ActionClass, now uint64) bool {
	return now >= w.Cooldowns[classIndex(c)]
}

// EligibleAt returns the earliest time an action of class c is permitted.
func EligibleAt(w *Waifu, c ActionClass) uint64 {
	return w.Cooldowns[classIndex(c)]
}

// NextCooldown returns the cooldown timestamp to record after an action of class c at now.
// It never returns less than the current value.
func NextCooldown(w *Waifu, c ActionClass, now uint64) uint64 {
	next := now + CooldownDuration(c)
	if cur := w.Cooldowns[classIndex(c)]; cur > next {
		return cur
	}
	return next
}
