// Package bot implements the house AI: one Brain per tick drives every
// isAI=true player through the same action queue a remote agent would use,
// so the match engine never distinguishes a bot's moves from a human's.
package bot

// Personality tunes a bot's combat posture. Five variants ship, one per
// personality tag; the tag names are this package's own invention. There is
// deliberately no detection-radius field: the brain these tunings drive
// targets the nearest living enemy with no distance gate.
type Personality struct {
	Tag           string
	PreferredDist float64
	FleeHealth    int
	Accuracy      float64 // 1.0 = no extra spread penalty beyond the weapon's own
}

// Personalities is the static table keyed by tag.
var Personalities = map[string]Personality{
	"aggressive": {Tag: "aggressive", PreferredDist: 8, FleeHealth: 10, Accuracy: 0.55},
	"sniper":     {Tag: "sniper", PreferredDist: 22, FleeHealth: 30, Accuracy: 0.85},
	"cautious":   {Tag: "cautious", PreferredDist: 16, FleeHealth: 45, Accuracy: 0.65},
	"berserker":  {Tag: "berserker", PreferredDist: 4, FleeHealth: 0, Accuracy: 0.45},
	"tactical":   {Tag: "tactical", PreferredDist: 12, FleeHealth: 25, Accuracy: 0.7},
}

// GetPersonality returns a personality by tag, defaulting to "tactical",
// the table's most balanced entry, for an unset or unknown tag.
func GetPersonality(tag string) Personality {
	if p, ok := Personalities[tag]; ok {
		return p
	}
	return Personalities["tactical"]
}
