package match

import "sync"

// MoveAction is the payload of a queued move.
type MoveAction struct {
	Angle float64
}

// ShootAction is the payload of a queued shoot. Accuracy scales the
// weapon's inherent spread (1.0 = weapon spread only, used for remote
// agents; bot brains supply their personality's lower accuracy).
type ShootAction struct {
	AimAngle float64
	Accuracy float64
}

// PendingSet is the effective action set for one player for one tick: at
// most one of each kind, later writes overwrite earlier ones within the same
// tick. An ordinary FIFO queue would preserve stale duplicate moves the tick
// never needs, so each kind gets its own overwrite slot instead.
type PendingSet struct {
	Move   *MoveAction
	Shoot  *ShootAction
	Melee  bool
	Pickup bool
	Stop   bool
}

// ActionQueue holds one overwrite-slot per player, safe for concurrent
// writers (gateway workers, bot brains) and a single reader (the tick loop).
// A single mutex guards the slot map; the critical section is always a few
// field writes, never a blocking call, so contention stays cheap.
type ActionQueue struct {
	mu    sync.RWMutex
	slots map[string]*PendingSet
}

// NewActionQueue creates an empty queue.
func NewActionQueue() *ActionQueue {
	return &ActionQueue{slots: make(map[string]*PendingSet)}
}

// Register allocates a slot for a newly joined player.
func (q *ActionQueue) Register(playerID string) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if _, ok := q.slots[playerID]; !ok {
		q.slots[playerID] = &PendingSet{}
	}
}

// Unregister removes a player's slot (on leave/removal).
func (q *ActionQueue) Unregister(playerID string) {
	q.mu.Lock()
	defer q.mu.Unlock()
	delete(q.slots, playerID)
}

// enqueue applies mutate to the player's pending set. Safe for concurrent
// callers across different player ids; per-player writes are serialized by
// the queue's single lock, which is cheap since the critical section is a
// few field writes, not a blocking call.
func (q *ActionQueue) enqueue(playerID string, mutate func(*PendingSet)) {
	q.mu.Lock()
	defer q.mu.Unlock()
	set, ok := q.slots[playerID]
	if !ok {
		set = &PendingSet{}
		q.slots[playerID] = set
	}
	mutate(set)
}

// Move queues a move(angle) action, overwriting any previous move this tick.
func (q *ActionQueue) Move(playerID string, angle float64) {
	q.enqueue(playerID, func(s *PendingSet) { s.Move = &MoveAction{Angle: angle}; s.Stop = false })
}

// Shoot queues a shoot(aimAngle) action at the given accuracy (1.0 for
// remote agents; bot brains pass their personality's accuracy).
func (q *ActionQueue) Shoot(playerID string, aimAngle, accuracy float64) {
	q.enqueue(playerID, func(s *PendingSet) { s.Shoot = &ShootAction{AimAngle: aimAngle, Accuracy: accuracy} })
}

// Melee queues a melee action.
func (q *ActionQueue) Melee(playerID string) {
	q.enqueue(playerID, func(s *PendingSet) { s.Melee = true })
}

// Pickup queues an explicit (advisory) pickup action.
func (q *ActionQueue) Pickup(playerID string) {
	q.enqueue(playerID, func(s *PendingSet) { s.Pickup = true })
}

// Stop queues a stop, clearing any queued move.
func (q *ActionQueue) Stop(playerID string) {
	q.enqueue(playerID, func(s *PendingSet) { s.Stop = true; s.Move = nil })
}

// Drain atomically takes and clears the pending set for playerID, the
// engine calls this once per player at tick step 3. Actions enqueued after
// this call apply next tick.
func (q *ActionQueue) Drain(playerID string) PendingSet {
	q.mu.Lock()
	defer q.mu.Unlock()
	set, ok := q.slots[playerID]
	if !ok {
		return PendingSet{}
	}
	taken := *set
	*set = PendingSet{}
	return taken
}
