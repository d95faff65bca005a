package match

// WeaponPickup is a world-space gun spawn. Taken is terminal: once true the
// pickup never reopens, a new one is created instead (on death-drop or
// ammo-exhaustion respawn).
type WeaponPickup struct {
	ID    string
	Type  string
	X, Y, Z float64
	Taken bool
}

// NewPickup constructs an untaken pickup of the given weapon type.
func NewPickup(id, weaponType string, x, y, z float64) *WeaponPickup {
	return &WeaponPickup{ID: id, Type: weaponType, X: x, Y: y, Z: z}
}
