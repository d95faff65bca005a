package match

import (
	"fmt"
	"log"
	"math"
	"math/rand"
	"sync"
	"sync/atomic"
	"time"

	"arena-shooter/internal/arena"
	"arena-shooter/internal/combat"
	"arena-shooter/internal/config"
	"arena-shooter/internal/physics"
)

// Phase is one state of the match lifecycle diagram in the engine's design
// doc: lobby -> countdown -> active -> finished.
type Phase string

const (
	PhaseLobby     Phase = "lobby"
	PhaseCountdown Phase = "countdown"
	PhaseActive    Phase = "active"
	PhaseFinished  Phase = "finished"
)

// EventSink receives the one-shot events the engine emits mid-tick (shot,
// hit) and at phase transitions (matchEnd). The gateway's websocket hub
// implements this to fan them out on the shooter channel.
type EventSink interface {
	Publish(Event)
}

type noopSink struct{}

func (noopSink) Publish(Event) {}

// BotWorld is the narrow read-only facade the bot brain gets instead of a
// pointer into the physics world, it can cast rays and test spawn points
// but never move a capsule directly. *physics.World satisfies this
// structurally.
type BotWorld interface {
	RayFirstHit(ox, oz, angleRad, maxLen float64) (t float64, ok bool)
	IsInsideBuilding(x, z, radius float64) bool
}

// BotContext is handed to the pre-tick bot hook: everything a brain needs to
// decide this tick's action, and nothing it could use to cheat or mutate
// state directly.
type BotContext struct {
	NowMs   int64
	DtSec   float64
	Players []*Player
	Pickups []*WeaponPickup
	World   BotWorld
	Actions *ActionQueue
}

// BotStepFunc runs every AI-controlled player's brain for one tick, queuing
// actions exactly as a remote agent's POST /action would.
type BotStepFunc func(ctx BotContext)

// Engine is the fixed-tick match simulation: the heart of the system. All
// mutation happens on the single goroutine started by Start, AddPlayer and
// RemovePlayer take the same lock so lobby/countdown joins never race a
// live tick.
type Engine struct {
	matchID string
	cfg     config.MatchConfig
	geo     *arena.Geometry
	world   *physics.World
	actions *ActionQueue
	sink    EventSink
	rng     *rand.Rand

	mu      sync.Mutex
	phase   Phase
	tick    uint64
	players map[string]*Player
	order   []string
	pickups []*WeaponPickup
	pickupN int

	startTimeMs       int64
	endTimeMs         int64
	countdownEndsAtMs int64
	lastTickAt        time.Time

	botStep BotStepFunc

	snapshot atomic.Pointer[Snapshot]

	stopOnce sync.Once
	stopCh   chan struct{}
}

// NewEngine constructs an engine in phase lobby, ready for AddPlayer calls.
// sink may be nil, in which case events are dropped.
func NewEngine(matchID string, cfg config.MatchConfig, geo *arena.Geometry, world *physics.World, sink EventSink) *Engine {
	if sink == nil {
		sink = noopSink{}
	}
	e := &Engine{
		matchID: matchID,
		cfg:     cfg,
		geo:     geo,
		world:   world,
		actions: NewActionQueue(),
		sink:    sink,
		rng:     rand.New(rand.NewSource(time.Now().UnixNano())),
		phase:   PhaseLobby,
		players: make(map[string]*Player),
		stopCh:  make(chan struct{}),
	}
	e.snapshot.Store(&Snapshot{MatchID: matchID, Phase: string(PhaseLobby)})
	return e
}

// MatchID returns the match's persistence/broadcast id (e.g. "shooter_3").
func (e *Engine) MatchID() string { return e.matchID }

// Actions exposes the pending-action intake for the gateway and bot brains.
func (e *Engine) Actions() *ActionQueue { return e.actions }

// Phase returns the current lifecycle phase.
func (e *Engine) Phase() Phase {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.phase
}

// PlayerCount returns the number of players who have ever joined (including
// the dead and eliminated).
func (e *Engine) PlayerCount() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return len(e.order)
}

// SetBotStep installs the pre-tick bot hook (step 2 of the tick order).
func (e *Engine) SetBotStep(fn BotStepFunc) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.botStep = fn
}

// Start launches the tick goroutine. Safe to call once per engine.
func (e *Engine) Start() {
	go e.runLoop()
}

// Stop halts the tick goroutine. Idempotent.
func (e *Engine) Stop() {
	e.stopOnce.Do(func() { close(e.stopCh) })
}

func (e *Engine) runLoop() {
	ticker := time.NewTicker(e.cfg.TickInterval())
	defer ticker.Stop()
	for {
		select {
		case <-e.stopCh:
			return
		case now := <-ticker.C:
			if e.onTick(now) {
				return
			}
		}
	}
}

// onTick dispatches one tick period's work by phase. Returns true once the
// match has reached finished and the loop should stop ticking.
func (e *Engine) onTick(now time.Time) bool {
	e.mu.Lock()
	defer e.mu.Unlock()

	switch e.phase {
	case PhaseActive:
		e.tickActive(now)
		return e.phase == PhaseFinished
	default:
		return false
	}
}

// AddPlayer registers a newly joined player at the given spawn point and
// creates its physics capsule. On the second distinct join while still in
// lobby, transitions to countdown (the lifecycle controller schedules the
// countdown-elapsed timer after this returns, reading CountdownEndsAtMs).
func (e *Engine) AddPlayer(p *Player, spawn arena.Vec3) {
	e.mu.Lock()
	defer e.mu.Unlock()

	p.SpawnAt(spawn.X, spawn.Y, spawn.Z)
	e.players[p.ID] = p
	e.order = append(e.order, p.ID)
	e.actions.Register(p.ID)
	e.world.CreateCapsule(p.ID, spawn.X, spawn.Z)

	if e.phase == PhaseLobby && len(e.order) >= 2 {
		e.phase = PhaseCountdown
		e.countdownEndsAtMs = nowMs(time.Now()) + int64(e.cfg.LobbyCountdownMS)
	}
}

// CountdownEndsAtMs returns when the countdown timer the lifecycle
// controller scheduled should fire (0 if not yet in countdown).
func (e *Engine) CountdownEndsAtMs() int64 {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.countdownEndsAtMs
}

// RemovePlayer drops a player entirely (disconnect before the match starts).
func (e *Engine) RemovePlayer(id string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if _, ok := e.players[id]; !ok {
		return
	}
	delete(e.players, id)
	for i, pid := range e.order {
		if pid == id {
			e.order = append(e.order[:i], e.order[i+1:]...)
			break
		}
	}
	e.actions.Unregister(id)
	e.world.Remove(id)
}

// GetPlayer returns a player by id, or nil.
func (e *Engine) GetPlayer(id string) *Player {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.players[id]
}

// StartMatch transitions countdown -> active. Called by the lifecycle
// controller once its countdown timer fires (after closing the betting
// window). Returns an error and changes nothing if not currently in
// countdown.
func (e *Engine) StartMatch(now time.Time) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.phase != PhaseCountdown {
		return fmt.Errorf("match %s: cannot start from phase %s", e.matchID, e.phase)
	}
	e.phase = PhaseActive
	e.startTimeMs = nowMs(now)
	e.endTimeMs = e.startTimeMs + int64(e.cfg.MatchDurationMS)
	e.lastTickAt = now
	e.tick = 0
	e.spawnInitialPickups()
	return nil
}

func nowMs(t time.Time) int64 { return t.UnixNano() / int64(time.Millisecond) }

// tickActive runs the strict per-tick order: bot step and action drain,
// movement, then shooting, then melee, then pickup, then respawn, then termination
// check, then snapshot. Caller holds e.mu.
func (e *Engine) tickActive(now time.Time) {
	nowMillis := nowMs(now)
	dt := now.Sub(e.lastTickAt).Seconds()
	if dt <= 0 {
		dt = e.cfg.TickInterval().Seconds()
	}
	e.lastTickAt = now
	e.tick++

	if e.shouldFinish(nowMillis) {
		e.finish(now)
		return
	}

	for _, id := range e.order {
		e.players[id].AccrueSurvival(dt)
	}

	if e.botStep != nil {
		e.runBotStep(nowMillis, dt)
	}

	actions := make(map[string]PendingSet, len(e.order))
	for _, id := range e.order {
		actions[id] = e.actions.Drain(id)
	}

	e.resolveMovement(actions, dt)
	e.resolveShooting(actions, nowMillis)
	e.resolveMelee(actions, nowMillis)
	e.resolvePickups()
	e.resolveRespawns(nowMillis)

	if e.shouldFinish(nowMillis) {
		e.finish(now)
		return
	}

	e.publishSnapshot(nowMillis)
}

func (e *Engine) runBotStep(nowMillis int64, dt float64) {
	players := make([]*Player, len(e.order))
	for i, id := range e.order {
		players[i] = e.players[id]
	}
	func() {
		defer func() {
			if r := recover(); r != nil {
				log.Printf("match %s: bot step panicked: %v", e.matchID, r)
			}
		}()
		e.botStep(BotContext{
			NowMs: nowMillis, DtSec: dt,
			Players: players, Pickups: e.pickups,
			World: e.world, Actions: e.actions,
		})
	}()
}

// inMatchCount counts players who have not been eliminated.
func (e *Engine) inMatchCount() int {
	n := 0
	for _, id := range e.order {
		if !e.players[id].Eliminated {
			n++
		}
	}
	return n
}

func (e *Engine) shouldFinish(nowMillis int64) bool {
	if nowMillis >= e.endTimeMs {
		return true
	}
	if len(e.order) < 2 {
		return false
	}
	return e.inMatchCount() <= 1
}

func (e *Engine) resolveMovement(actions map[string]PendingSet, dt float64) {
	for _, id := range e.order {
		p := e.players[id]
		set := actions[id]
		if !p.Alive || set.Move == nil {
			p.Moving = false
			continue
		}
		angle := set.Move.Angle
		dx := e.cfg.MovementSpeed * dt * math.Sin(angle)
		dz := e.cfg.MovementSpeed * dt * math.Cos(angle)
		x, z := e.world.MoveCapsule(id, dx, dz)
		p.X, p.Z = x, z
		p.Angle = angle
		p.Moving = true
	}
}

// livingTargets builds the combat.Target view of every currently alive
// player, used as the candidate pool for both shooting and melee.
func (e *Engine) livingTargets() []combat.Target {
	out := make([]combat.Target, 0, len(e.order))
	for _, id := range e.order {
		p := e.players[id]
		out = append(out, combat.Target{ID: p.ID, X: p.X, Y: p.Y, Z: p.Z, Radius: 0.5, Alive: p.Alive})
	}
	return out
}

func (e *Engine) resolveShooting(actions map[string]PendingSet, nowMillis int64) {
	targets := e.livingTargets()
	for i, id := range e.order {
		p := e.players[id]
		set := actions[id]
		// Gate on the pre-pass snapshot so a shooter killed earlier in this
		// pass still fires its shot this tick.
		if !targets[i].Alive || set.Shoot == nil {
			continue
		}
		w := combat.GetWeapon(p.Weapon)
		if !combat.CanFire(w, p.Ammo, p.LastShotMs, nowMillis) {
			continue
		}
		p.LastShotMs = nowMillis
		p.Ammo = combat.ConsumeAmmo(w, p.Ammo)

		accuracy := set.Shoot.Accuracy
		if accuracy <= 0 {
			accuracy = 1.0
		}
		pellets := combat.ResolveShot(p.X, p.Y, p.Z, set.Shoot.AimAngle, w, accuracy, id, targets, e.world.RayFirstHit, e.rng)
		for _, pellet := range pellets {
			e.sink.Publish(newShotEvent(ShotEvent{
				FromX: p.X, FromZ: p.Z, ToX: pellet.EndX, ToZ: pellet.EndZ,
				Weapon: w.ID, ShooterID: id, Hit: pellet.Hit,
			}))
			if pellet.Hit {
				e.applyHit(p, pellet.VictimID, pellet.Damage, w.ID, pellet.EndX, pellet.EndY, pellet.EndZ, nowMillis)
			}
		}

		if w.ID != "knife" && p.Ammo == 0 {
			dropped := p.Weapon
			p.DowngradeToKnife()
			e.respawnWeaponPickup(dropped)
		}
	}
}

func (e *Engine) resolveMelee(actions map[string]PendingSet, nowMillis int64) {
	targets := e.livingTargets()
	knifeDamage := combat.GetWeapon("knife").Damage
	for _, id := range e.order {
		p := e.players[id]
		set := actions[id]
		if !p.Alive || !set.Melee {
			continue
		}
		pellet := combat.ResolveMelee(p.X, p.Y, p.Z, id, targets, knifeDamage, e.cfg.MeleeRange)
		if pellet.Hit {
			e.applyHit(p, pellet.VictimID, pellet.Damage, "melee", pellet.EndX, pellet.EndY, pellet.EndZ, nowMillis)
		}
	}
}

// applyHit resolves one confirmed hit against a victim: damage, kill/death
// bookkeeping, weapon drop, and the HitEvent broadcast. Two shooters can hit
// each other in the same tick's pass since targets were snapshotted before
// either resolved, both are credited.
func (e *Engine) applyHit(shooter *Player, victimID string, damage int, weaponID string, x, y, z float64, nowMillis int64) {
	victim := e.players[victimID]
	if victim == nil || !victim.Alive {
		return
	}
	result := combat.ApplyDamage(victim.Health, victim.Lives, damage)
	killed := result.Killed
	if killed {
		victim.Kill(nowMillis, result)
		shooter.Kills++
		e.world.Remove(victim.ID)
		if victim.Weapon != "knife" {
			e.dropWeaponAt(victim.Weapon, victim.X, victim.Y, victim.Z)
		}
	} else {
		victim.Health = result.NewHealth
	}
	e.sink.Publish(newHitEvent(HitEvent{
		VictimID: victimID, Damage: damage, Weapon: weaponID, KillerID: shooter.ID,
		X: x, Y: y, Z: z, Killed: killed,
	}))
}

func (e *Engine) resolvePickups() {
	for _, id := range e.order {
		p := e.players[id]
		if !p.Alive {
			continue
		}
		for _, pk := range e.pickups {
			if pk.Taken {
				continue
			}
			dist := math.Hypot(pk.X-p.X, pk.Z-p.Z)
			if dist <= e.cfg.PickupRadius {
				pk.Taken = true
				p.Equip(pk.Type)
				break
			}
		}
	}
}

func (e *Engine) resolveRespawns(nowMillis int64) {
	for _, id := range e.order {
		p := e.players[id]
		if p.Alive || p.Eliminated {
			continue
		}
		if p.DiedAtMs+int64(e.cfg.RespawnDelayMS) > nowMillis {
			continue
		}
		point := e.respawnPointFor(p.X, p.Z)
		p.Respawn(point.X, point.Y, point.Z, nowMillis)
		e.world.CreateCapsule(p.ID, point.X, point.Z)
	}
}

// finish transitions to finished, builds the matchEnd event, and publishes
// the final snapshot. Caller holds e.mu.
func (e *Engine) finish(now time.Time) {
	e.phase = PhaseFinished
	e.endTimeMs = nowMs(now)

	players := make([]*Player, len(e.order))
	for i, id := range e.order {
		players[i] = e.players[id]
	}
	leaderboard := buildLeaderboard(players)

	var winnerID string
	isDraw := false
	if len(leaderboard) > 0 {
		winnerID = leaderboard[0].ID
		if len(leaderboard) > 1 && math.Abs(leaderboard[0].SurvivalTime-leaderboard[1].SurvivalTime) <= 0.05 {
			isDraw = true
		}
	}

	e.sink.Publish(newMatchEndEvent(MatchEndEvent{
		MatchID: e.matchID, Leaderboard: leaderboard, WinnerID: winnerID, IsDraw: isDraw,
	}))
	e.publishSnapshot(e.endTimeMs)
}

func (e *Engine) publishSnapshot(nowMillis int64) {
	remaining := float64(e.endTimeMs-nowMillis) / 1000.0
	if remaining < 0 {
		remaining = 0
	}
	minX, maxX, minZ, maxZ := e.world.Bounds()
	arenaView := ArenaView{MinX: minX, MaxX: maxX, MinZ: minZ, MaxZ: maxZ, MovementSpeed: e.cfg.MovementSpeed}

	players := make([]*Player, len(e.order))
	for i, id := range e.order {
		players[i] = e.players[id]
	}
	obstacles := append([]arena.AABB{}, e.geo.Buildings...)

	snap := ProduceSnapshot(e.matchID, string(e.phase), e.tick, remaining, arenaView, players, e.pickups, obstacles)
	e.snapshot.Store(&snap)
}

// GetSnapshot returns the most recently published spectator snapshot,
// lock-free with respect to the tick goroutine.
func (e *Engine) GetSnapshot() Snapshot {
	return *e.snapshot.Load()
}

// GetAgentSnapshot returns the per-agent view for playerID.
func (e *Engine) GetAgentSnapshot(playerID string) AgentSnapshot {
	return e.GetSnapshot().ForAgent(playerID)
}

// gunTypes is the subset of the weapon table pickups are drawn from, the
// knife is never a pickup, every player starts with one.
var gunTypes = []string{"pistol", "smg", "shotgun", "assault_rifle"}

func (e *Engine) nextPickupID() string {
	e.pickupN++
	return fmt.Sprintf("%s_pickup_%d", e.matchID, e.pickupN)
}

// spawnInitialPickups places roughly 5 guns at spawn points kept away from
// the joining players' starting positions and from each other. Called once
// at StartMatch, caller holds e.mu.
func (e *Engine) spawnInitialPickups() {
	const wanted = 5
	candidates := append([]arena.Vec3{}, e.geo.SpawnPoints...)
	e.rng.Shuffle(len(candidates), func(i, j int) { candidates[i], candidates[j] = candidates[j], candidates[i] })

	chosen := make([]arena.Vec3, 0, wanted)
	for _, c := range candidates {
		if len(chosen) >= wanted {
			break
		}
		if e.tooCloseToPlayers(c, e.cfg.MinSpawnSeparation) || e.tooCloseToPoints(c, chosen, e.cfg.MinSpawnSeparation) {
			continue
		}
		chosen = append(chosen, c)
	}

	for i, point := range chosen {
		wtype := gunTypes[i%len(gunTypes)]
		e.pickups = append(e.pickups, NewPickup(e.nextPickupID(), wtype, point.X, point.Y, point.Z))
	}
}

func (e *Engine) tooCloseToPlayers(p arena.Vec3, minDist float64) bool {
	for _, id := range e.order {
		pl := e.players[id]
		if math.Hypot(pl.X-p.X, pl.Z-p.Z) < minDist {
			return true
		}
	}
	return false
}

func (e *Engine) tooCloseToPoints(p arena.Vec3, points []arena.Vec3, minDist float64) bool {
	for _, q := range points {
		if math.Hypot(q.X-p.X, q.Z-p.Z) < minDist {
			return true
		}
	}
	return false
}

// dropWeaponAt places a pickup of weaponType exactly at the death position,
// the spot is known-valid since the victim was standing there alive.
func (e *Engine) dropWeaponAt(weaponType string, x, y, z float64) {
	e.pickups = append(e.pickups, NewPickup(e.nextPickupID(), weaponType, x, y, z))
}

// respawnWeaponPickup places a fresh pickup of weaponType at a random
// pickup-eligible spawn point, used when a weapon's ammo runs out.
func (e *Engine) respawnWeaponPickup(weaponType string) {
	point := e.pickupEligiblePoint()
	e.pickups = append(e.pickups, NewPickup(e.nextPickupID(), weaponType, point.X, point.Y, point.Z))
}

func (e *Engine) pickupEligiblePoint() arena.Vec3 {
	candidates := append([]arena.Vec3{}, e.geo.SpawnPoints...)
	e.rng.Shuffle(len(candidates), func(i, j int) { candidates[i], candidates[j] = candidates[j], candidates[i] })
	for _, c := range candidates {
		if !e.world.IsInsideBuilding(c.X, c.Z, 0.5) {
			return c
		}
	}
	return e.randomPointInBounds()
}

// respawnPointFor chooses an unoccupied spawn point at least
// MinRespawnDistance from the death position, retrying up to
// RespawnRetries times before falling back to any clear random point.
func (e *Engine) respawnPointFor(deathX, deathZ float64) arena.Vec3 {
	retries := e.cfg.RespawnRetries
	if retries <= 0 {
		retries = 15
	}
	for i := 0; i < retries; i++ {
		if len(e.geo.SpawnPoints) == 0 {
			break
		}
		c := e.geo.SpawnPoints[e.rng.Intn(len(e.geo.SpawnPoints))]
		if math.Hypot(c.X-deathX, c.Z-deathZ) < e.cfg.MinRespawnDistance {
			continue
		}
		if e.tooCloseToPlayers(c, 1.5) {
			continue
		}
		if e.world.IsInsideBuilding(c.X, c.Z, 0.5) {
			continue
		}
		return c
	}
	return e.randomPointInBounds()
}

// randomPointInBounds is the last-resort respawn/pickup fallback: any point
// in the playable area clear of buildings.
func (e *Engine) randomPointInBounds() arena.Vec3 {
	minX, maxX, minZ, maxZ := e.world.Bounds()
	for i := 0; i < 30; i++ {
		x := minX + e.rng.Float64()*(maxX-minX)
		z := minZ + e.rng.Float64()*(maxZ-minZ)
		if !e.world.IsInsideBuilding(x, z, 0.5) {
			return arena.Vec3{X: x, Y: e.floorY(), Z: z}
		}
	}
	return arena.Vec3{X: (minX + maxX) / 2, Y: e.floorY(), Z: (minZ + maxZ) / 2}
}

// floorY approximates the resting height used for fallback spawn points by
// reusing whatever Y a known spawn point carries, defaulting to 0.
func (e *Engine) floorY() float64 {
	if len(e.geo.SpawnPoints) > 0 {
		return e.geo.SpawnPoints[0].Y
	}
	return 0
}
