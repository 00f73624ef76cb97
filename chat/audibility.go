package chat

// canHear is the audibility policy: with a non-positive radius the channel
// is unbounded, otherwise the listener hears the sender iff their distance
// is strictly less than the radius. Radius filtering only applies between
// two physically located participants.
func canHear(pos Positioner, sender, listener string, radius int) bool {
	if radius <= 0 {
		return true
	}
	if pos == nil {
		return true
	}
	distance, spatial := pos.Distance(sender, listener)
	if !spatial {
		return true
	}
	return distance < float64(radius)
}
