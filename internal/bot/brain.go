package bot

import (
	"log"
	"math"
	"math/rand"

	"arena-shooter/internal/combat"
	"arena-shooter/internal/config"
	"arena-shooter/internal/match"
)

type goalKind int

const (
	goalNone goalKind = iota
	goalGun
	goalRush
	goalHunt
)

// playerState is the brain's per-bot memory across ticks: goal commitment,
// target stickiness, strafe/wander timers and the overlay bookkeeping
// (stuck recovery, cached avoid direction). Reset whenever the bot respawns.
type playerState struct {
	goal       goalKind
	goalEndMs  int64
	targetID   string

	strafeSign     float64
	strafeChangeAt int64
	losLostAt      int64

	wanderAngle    float64
	wanderChangeAt int64

	lastStuckCheckAt int64
	stuckRefX        float64
	stuckRefZ        float64
	stuckStrikes     int
	recoverUntil     int64
	recoverAngle     float64

	cachedAvoidAngle float64
	cachedAvoidUntil int64

	recentHeadings [4]float64
	recentCount    int
	oscillateUntil int64
	oscillateAngle float64

	standoffUntil int64
	standoffAngle float64

	wasAlive bool
}

// Brain runs every AI player's decision for one tick. It is stateful across
// ticks (one playerState per bot id) but touches nothing the tick loop
// doesn't already own: it only ever calls ctx.Actions, never the physics
// world or Match directly, and reads the world through a narrow read-only
// facade: the players and pickups slices plus ctx.World's ray and
// inside-building queries.
type Brain struct {
	cfg    config.BotConfig
	match  config.MatchConfig
	states map[string]*playerState
	rng    *rand.Rand
}

// NewBrain constructs a brain sharing tuning constants across every bot it
// drives this match.
func NewBrain(botCfg config.BotConfig, matchCfg config.MatchConfig) *Brain {
	return &Brain{
		cfg:    botCfg,
		match:  matchCfg,
		states: make(map[string]*playerState),
	}
}

// Step is the BotStepFunc the engine calls at tick step 2. Each bot's
// decision is isolated behind a recover so one panicking brain only stops
// that player for the tick, per the failure-semantics contract.
func (b *Brain) Step(ctx match.BotContext) {
	if b.rng == nil {
		b.rng = rand.New(rand.NewSource(1))
	}
	for _, p := range ctx.Players {
		if !p.IsAI {
			continue
		}
		st := b.stateFor(p)
		if p.Alive && !st.wasAlive {
			*st = playerState{wasAlive: true}
		}
		st.wasAlive = p.Alive
		if !p.Alive {
			continue
		}
		b.decideOne(ctx, p, st)
	}
}

func (b *Brain) stateFor(p *match.Player) *playerState {
	st, ok := b.states[p.ID]
	if !ok {
		st = &playerState{}
		b.states[p.ID] = st
	}
	return st
}

func (b *Brain) decideOne(ctx match.BotContext, p *match.Player, st *playerState) {
	defer func() {
		if r := recover(); r != nil {
			log.Printf("bot %s: brain panicked: %v", p.ID, r)
		}
	}()

	personality := GetPersonality(p.PersonalityTag)
	enemy := b.selectTarget(ctx, p, st, personality)

	var moveAngle float64
	var moving bool

	switch {
	case enemy != nil && b.pickupCloserThanRush(ctx, p, enemy, personality):
		moveAngle, moving = b.seekPickup(ctx, p, st)
	case p.Weapon != "knife" && enemy != nil:
		moveAngle, moving = b.armedCombat(ctx, p, st, enemy, personality)
	case p.Weapon == "knife" && enemy != nil && b.dist(p, enemy) <= b.cfg.KnifeRushRadius:
		st.commit(goalRush, ctx.NowMs, b.cfg.GoalRushMS)
		moveAngle, moving = b.headingTo(p, enemy), true
		if b.dist(p, enemy) <= b.match.MeleeRange {
			ctx.Actions.Melee(p.ID)
		}
	case enemy != nil:
		st.commit(goalHunt, ctx.NowMs, b.cfg.GoalHuntMS)
		moveAngle, moving = b.headingTo(p, enemy), true
	default:
		moveAngle, moving = b.patrolOrWander(ctx, p, st)
	}

	if !moving {
		ctx.Actions.Stop(p.ID)
		return
	}

	moveAngle = b.applyOverlays(ctx, p, st, moveAngle)
	ctx.Actions.Move(p.ID, moveAngle)
}

func (st *playerState) commit(goal goalKind, nowMs int64, durationMs int) {
	if st.goal == goal && nowMs < st.goalEndMs {
		return
	}
	st.goal = goal
	st.goalEndMs = nowMs + int64(durationMs)
}

func (b *Brain) dist(p *match.Player, t *match.Player) float64 {
	return math.Hypot(t.X-p.X, t.Z-p.Z)
}

func (b *Brain) headingTo(p, t *match.Player) float64 {
	return math.Atan2(t.X-p.X, t.Z-p.Z)
}

// selectTarget sticks to the current target while it remains alive and
// farther than melee range, and otherwise picks the globally nearest living enemy, tie-broken toward lower
// health or a weaker weapon within a 2-unit distance band. There is no
// detection-radius gate: a bot always knows where every living enemy is.
func (b *Brain) selectTarget(ctx match.BotContext, p *match.Player, st *playerState, _ Personality) *match.Player {
	var current *match.Player
	if st.targetID != "" {
		for _, other := range ctx.Players {
			if other.ID == st.targetID && other.Alive {
				current = other
				break
			}
		}
	}
	if current != nil && b.dist(p, current) > b.match.MeleeRange {
		return current
	}

	var best *match.Player
	bestDist := math.MaxFloat64
	for _, other := range ctx.Players {
		if other.ID == p.ID || !other.Alive {
			continue
		}
		d := b.dist(p, other)
		if best == nil {
			best, bestDist = other, d
			continue
		}
		if math.Abs(d-bestDist) <= 2.0 {
			if weaponTier(other.Weapon) < weaponTier(best.Weapon) || other.Health < best.Health {
				best, bestDist = other, d
			}
			continue
		}
		if d < bestDist {
			best, bestDist = other, d
		}
	}
	if best != nil {
		st.targetID = best.ID
	}
	return best
}

func weaponTier(id string) int {
	switch id {
	case "knife":
		return 0
	case "pistol":
		return 1
	case "smg":
		return 2
	case "assault_rifle":
		return 3
	case "shotgun":
		return 4
	default:
		return 0
	}
}

// pickupCloserThanRush implements priority 2: unarmed, with a reachable
// pickup nearer than the enemy is, go get armed before committing to a rush.
func (b *Brain) pickupCloserThanRush(ctx match.BotContext, p *match.Player, enemy *match.Player, _ Personality) bool {
	if p.Weapon != "knife" {
		return false
	}
	nearest := b.nearestPickup(ctx, p)
	if nearest == nil {
		return false
	}
	pickupDist := math.Hypot(nearest.X-p.X, nearest.Z-p.Z)
	return pickupDist < b.dist(p, enemy)
}

func (b *Brain) nearestPickup(ctx match.BotContext, p *match.Player) *match.WeaponPickup {
	var best *match.WeaponPickup
	bestDist := math.MaxFloat64
	for _, pk := range ctx.Pickups {
		if pk.Taken {
			continue
		}
		d := math.Hypot(pk.X-p.X, pk.Z-p.Z)
		if best == nil || d < bestDist {
			best, bestDist = pk, d
		}
	}
	return best
}

func (b *Brain) seekPickup(ctx match.BotContext, p *match.Player, st *playerState) (float64, bool) {
	pk := b.nearestPickup(ctx, p)
	if pk == nil {
		return 0, false
	}
	st.commit(goalGun, ctx.NowMs, 1500)
	angle := math.Atan2(pk.X-p.X, pk.Z-p.Z)
	d := math.Hypot(pk.X-p.X, pk.Z-p.Z)
	if d <= b.match.PickupRadius+0.5 {
		ctx.Actions.Pickup(p.ID)
	}
	return angle, true
}

// armedCombat implements priority 3: aim at the enemy with personality-
// scaled jitter, fire when in range, and circle-strafe or close/flee based
// on distance to the personality's preferred engagement range.
func (b *Brain) armedCombat(ctx match.BotContext, p *match.Player, st *playerState, enemy *match.Player, personality Personality) (float64, bool) {
	weapon := combat.GetWeapon(p.Weapon)
	aim := b.headingTo(p, enemy)
	jitter := weapon.SpreadRad * (2 - personality.Accuracy) * (b.rng.Float64()*2 - 1)
	aim += jitter

	visible := hasLOS(ctx.World, p, enemy, weapon.RangeWorld)
	if visible && b.dist(p, enemy) <= weapon.RangeWorld {
		ctx.Actions.Shoot(p.ID, aim, personality.Accuracy)
		st.losLostAt = 0
	} else if !visible {
		if st.losLostAt == 0 {
			st.losLostAt = ctx.NowMs
		}
		if ctx.NowMs < st.standoffUntil {
			return st.standoffAngle, true
		}
		if ctx.NowMs-st.losLostAt >= int64(b.cfg.NoLOSStandoffMS) {
			side := math.Pi/2 + (b.rng.Float64()*2-1)*math.Pi/6
			if b.rng.Intn(2) == 0 {
				side = -side
			}
			st.standoffAngle = aim + side
			st.standoffUntil = ctx.NowMs + int64(b.cfg.NoLOSStandoffMS)/2
			return st.standoffAngle, true
		}
	}

	d := b.dist(p, enemy)
	switch {
	case d < b.cfg.KiteDistance:
		return aim + math.Pi, true // back off
	case d > personality.PreferredDist*0.9:
		return aim, true // close distance
	default:
		if ctx.NowMs >= st.strafeChangeAt {
			st.strafeChangeAt = ctx.NowMs + int64(b.cfg.StrafeChangeIntervalMS)
			st.strafeSign = -st.strafeSign
			if st.strafeSign == 0 {
				st.strafeSign = 1
			}
		}
		offset := 72.0 * math.Pi / 180 * st.strafeSign
		return aim + offset, true
	}
}

func hasLOS(world match.BotWorld, p, enemy *match.Player, maxLen float64) bool {
	dx, dz := enemy.X-p.X, enemy.Z-p.Z
	dist := math.Hypot(dx, dz)
	if dist < 1e-6 {
		return true
	}
	angle := math.Atan2(dx, dz)
	_, hit := world.RayFirstHit(p.X, p.Z, angle, math.Min(dist, maxLen)-0.01)
	return !hit
}

// patrolOrWander implements priority 6: wander with a periodically refreshed
// random heading, biased toward the arena centre so idle bots drift back
// into the fight instead of hugging the perimeter.
func (b *Brain) patrolOrWander(ctx match.BotContext, p *match.Player, st *playerState) (float64, bool) {
	if ctx.NowMs >= st.wanderChangeAt {
		lo, hi := b.cfg.WanderMinMS, b.cfg.WanderMaxMS
		if hi <= lo {
			hi = lo + 1
		}
		st.wanderChangeAt = ctx.NowMs + int64(lo+b.rng.Intn(hi-lo))

		// the arena is laid out around the world origin, so heading toward
		// (0, 0) with jitter pulls idle bots back toward the action instead
		// of camping the perimeter, biasing wander targets toward the center.
		toCenter := math.Atan2(-p.X, -p.Z)
		jitter := (b.rng.Float64()*2 - 1) * math.Pi / 2
		st.wanderAngle = toCenter + jitter
	}
	return st.wanderAngle, true
}

// applyOverlays runs the weakest-to-strongest overlay chain in reverse
// precedence (obstacle steering first, recovery override last so it wins),
// so each later overlay can override the ones already applied.
func (b *Brain) applyOverlays(ctx match.BotContext, p *match.Player, st *playerState, angle float64) float64 {
	angle = b.obstacleSteer(ctx, p, st, angle)
	angle = b.cachedAvoid(ctx, p, st, angle)
	angle = b.oscillationTurn(ctx, st, angle)
	angle = b.stuckRecovery(ctx, p, st, angle)
	st.recordHeading(angle)
	return angle
}

func (st *playerState) recordHeading(angle float64) {
	st.recentHeadings[st.recentCount%len(st.recentHeadings)] = angle
	st.recentCount++
}

// oscillationTurn forces a perpendicular turn once the heading has reversed
// (within 55 degrees of the opposite direction) at least three times in the
// recent window, breaking a back-and-forth hug against a wall or a strafing
// opponent.
func (b *Brain) oscillationTurn(ctx match.BotContext, st *playerState, angle float64) float64 {
	if ctx.NowMs < st.oscillateUntil {
		return st.oscillateAngle
	}
	const band = 55.0 * math.Pi / 180
	n := st.recentCount
	if n > len(st.recentHeadings) {
		n = len(st.recentHeadings)
	}
	reversals := 0
	for i := 0; i < n; i++ {
		reversed := normalizeAngleDiff(st.recentHeadings[i] + math.Pi - angle)
		if math.Abs(reversed) <= band {
			reversals++
		}
	}
	if reversals < 3 {
		return angle
	}
	st.oscillateAngle = angle + math.Pi/2
	st.oscillateUntil = ctx.NowMs + 1800
	return st.oscillateAngle
}

func normalizeAngleDiff(a float64) float64 {
	for a > math.Pi {
		a -= 2 * math.Pi
	}
	for a < -math.Pi {
		a += 2 * math.Pi
	}
	return a
}

// obstacleSteer replaces the chosen heading with the nearest clear heading
// within a small cone; if the immediate forward ray is short, escalates to
// an 8-way longest-clear scan.
func (b *Brain) obstacleSteer(ctx match.BotContext, p *match.Player, st *playerState, angle float64) float64 {
	lookahead := b.cfg.ObstacleLookahead
	if t, hit := ctx.World.RayFirstHit(p.X, p.Z, angle, lookahead); !hit || t >= lookahead {
		return angle
	}
	if t, hit := ctx.World.RayFirstHit(p.X, p.Z, angle, 1.5); hit && t < 1.5 {
		return b.longestClearDirection(ctx, p, lookahead*2.5)
	}
	const cone = math.Pi / 6
	const step = math.Pi / 18
	for off := step; off <= cone; off += step {
		if _, hit := ctx.World.RayFirstHit(p.X, p.Z, angle+off, lookahead); !hit {
			return angle + off
		}
		if _, hit := ctx.World.RayFirstHit(p.X, p.Z, angle-off, lookahead); !hit {
			return angle - off
		}
	}
	return b.longestClearDirection(ctx, p, lookahead*2.5)
}

func (b *Brain) longestClearDirection(ctx match.BotContext, p *match.Player, lookahead float64) float64 {
	bestAngle := 0.0
	bestDist := -1.0
	for i := 0; i < 8; i++ {
		a := float64(i) * math.Pi / 4
		t, hit := ctx.World.RayFirstHit(p.X, p.Z, a, lookahead)
		d := lookahead
		if hit {
			d = t
		}
		if d > bestDist {
			bestDist, bestAngle = d, a
		}
	}
	return bestAngle
}

// cachedAvoid reuses the last obstacle-steering result for 400ms as long as
// a short ray along it stays clear, avoiding jittery re-scans every tick.
func (b *Brain) cachedAvoid(ctx match.BotContext, p *match.Player, st *playerState, angle float64) float64 {
	if ctx.NowMs < st.cachedAvoidUntil {
		if _, hit := ctx.World.RayFirstHit(p.X, p.Z, st.cachedAvoidAngle, 1.0); !hit {
			return st.cachedAvoidAngle
		}
	}
	st.cachedAvoidAngle = angle
	st.cachedAvoidUntil = ctx.NowMs + int64(b.cfg.CachedAvoidDurationMS)
	return angle
}

// stuckRecovery overrides the heading entirely once a bot has moved less than
// StuckDistanceThreshold between two checks StuckCheckIntervalMS apart (a
// single short check is enough; StuckTimeThresholdMS is not consulted),
// escalating the recovery window on consecutive stucks and alternating the
// side it escapes toward.
func (b *Brain) stuckRecovery(ctx match.BotContext, p *match.Player, st *playerState, angle float64) float64 {
	if ctx.NowMs < st.recoverUntil {
		return st.recoverAngle
	}
	if ctx.NowMs < st.lastStuckCheckAt+int64(b.cfg.StuckCheckIntervalMS) {
		return angle
	}
	moved := math.Hypot(p.X-st.stuckRefX, p.Z-st.stuckRefZ)
	st.lastStuckCheckAt = ctx.NowMs
	prevRef := st.stuckRefX != 0 || st.stuckRefZ != 0
	st.stuckRefX, st.stuckRefZ = p.X, p.Z

	if !prevRef || moved >= b.cfg.StuckDistanceThreshold {
		st.stuckStrikes = 0
		return angle
	}

	st.stuckStrikes++
	perp := angle + math.Pi/2
	if st.stuckStrikes%2 == 0 {
		perp = angle - math.Pi/2
	}
	escape := perp
	if t, hit := ctx.World.RayFirstHit(p.X, p.Z, perp, b.cfg.ObstacleLookahead); hit && t < 1.0 {
		escape = b.longestClearDirection(ctx, p, b.cfg.ObstacleLookahead*2.5)
	}
	duration := int64(b.cfg.StuckCheckIntervalMS) * int64(st.stuckStrikes)
	st.recoverAngle = escape
	st.recoverUntil = ctx.NowMs + duration
	return escape
}
