package expression

import "time"

// AnimationParams are the ambient settings that follow the current
// expression: how often the character blinks, how it breathes and which
// mouth it shows when silent.
type AnimationParams struct {
	BlinkIntervalMin   time.Duration
	BlinkIntervalMax   time.Duration
	BreathingSpeed     float64
	BreathingAmplitude float64
	DefaultMouth       string
}

var neutralParams = AnimationParams{
	BlinkIntervalMin:   3 * time.Second,
	BlinkIntervalMax:   6 * time.Second,
	BreathingSpeed:     1.0,
	BreathingAmplitude: 1.0,
	DefaultMouth:       "opened_mouth",
}

var paramsTable = map[Expression]AnimationParams{
	Neutral:   neutralParams,
	Happy:     {2500 * time.Millisecond, 5 * time.Second, 1.2, 0.8, "larger_mouth"},
	Surprised: {1500 * time.Millisecond, 3 * time.Second, 1.5, 1.2, "larger_mouth"},
	Sad:       {4 * time.Second, 7 * time.Second, 0.7, 1.3, "sad_mouth"},
	Angry:     {4 * time.Second, 8 * time.Second, 1.3, 1.1, "angry_mouth"},
	Confused:  {2 * time.Second, 4 * time.Second, 1.0, 1.0, "small_mouth"},
	Smug:      {3500 * time.Millisecond, 6500 * time.Millisecond, 0.9, 0.9, "small1_mouth"},
	Shy:       {2 * time.Second, 4 * time.Second, 1.1, 0.9, "opened_mouth"},
}

// ParamsFor returns the ambient parameters of e. Expressions without their
// own row share Neutral's.
func ParamsFor(e Expression) AnimationParams {
	if p, ok := paramsTable[e]; ok {
		return p
	}
	return neutralParams
}

// BreathingRange is the randomisation window a breathing cycle draws its
// speed (cycles per second) and amplitude (pixels) from.
type BreathingRange struct {
	SpeedMin, SpeedMax         float64
	AmplitudeMin, AmplitudeMax float64
}

// BreathingRangeFor groups expressions by arousal.
func BreathingRangeFor(e Expression) BreathingRange {
	switch e {
	case Happy, Playful:
		return BreathingRange{0.6, 0.8, 2.0, 3.0}
	case Worried:
		return BreathingRange{0.8, 1.2, 2.5, 3.5}
	case Sad, Disappointed:
		return BreathingRange{0.3, 0.4, 1.0, 1.5}
	case Angry, Annoyed:
		return BreathingRange{1.0, 1.5, 3.0, 4.0}
	case Thoughtful:
		return BreathingRange{0.4, 0.5, 1.5, 2.0}
	default:
		return BreathingRange{0.4, 0.6, 1.5, 2.5}
	}
}
