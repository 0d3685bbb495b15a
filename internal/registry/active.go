// Package registry tracks which game instance currently owns each
// participant, so a user can never be wagering in two games at once.
package registry

import "sync"

// ActiveGames is an in-memory claim table between participants and game
// instances. Every operation runs inside a single critical section; the
// forward map (participant -> game) and reverse map (game -> participants)
// are never observable in an inconsistent state.
type ActiveGames struct {
	mu     sync.Mutex
	byUser map[string]string
	byGame map[string][]string
}

// NewActiveGames creates an empty claim table.
func NewActiveGames() *ActiveGames {
	return &ActiveGames{
		byUser: make(map[string]string),
		byGame: make(map[string][]string),
	}
}

// IsActive reports whether the participant is claimed by any game.
func (a *ActiveGames) IsActive(userID string) bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	_, ok := a.byUser[userID]
	return ok
}

// TryActivate claims every listed participant for gameID. The claim is
// all-or-nothing: if any participant is already claimed, nothing changes
// and false is returned.
func (a *ActiveGames) TryActivate(gameID string, userIDs []string) bool {
	users := dedupe(userIDs)

	a.mu.Lock()
	defer a.mu.Unlock()

	for _, id := range users {
		if _, claimed := a.byUser[id]; claimed {
			return false
		}
	}

	for _, id := range users {
		a.byUser[id] = gameID
	}
	a.byGame[gameID] = users
	return true
}

// TryAdd merges the listed participants into gameID's existing claim.
// It fails without mutation if any participant is already claimed by a
// different game. Participants already in gameID are accepted.
func (a *ActiveGames) TryAdd(gameID string, userIDs []string) bool {
	users := dedupe(userIDs)

	a.mu.Lock()
	defer a.mu.Unlock()

	for _, id := range users {
		if owner, claimed := a.byUser[id]; claimed && owner != gameID {
			return false
		}
	}

	existing := a.byGame[gameID]
	merged := make([]string, 0, len(existing)+len(users))
	seen := make(map[string]struct{}, len(existing)+len(users))
	for _, id := range existing {
		merged = append(merged, id)
		seen[id] = struct{}{}
	}
	for _, id := range users {
		if _, dup := seen[id]; dup {
			continue
		}
		merged = append(merged, id)
		seen[id] = struct{}{}
		a.byUser[id] = gameID
	}
	a.byGame[gameID] = merged
	return true
}

// Remove releases only the named participants from gameID. When the last
// participant leaves, the whole claim is destroyed.
func (a *ActiveGames) Remove(gameID string, userIDs []string) {
	users := dedupe(userIDs)

	a.mu.Lock()
	defer a.mu.Unlock()

	existing, ok := a.byGame[gameID]
	if !ok {
		return
	}

	drop := make(map[string]struct{}, len(users))
	for _, id := range users {
		drop[id] = struct{}{}
		if a.byUser[id] == gameID {
			delete(a.byUser, id)
		}
	}

	remaining := existing[:0]
	for _, id := range existing {
		if _, gone := drop[id]; !gone {
			remaining = append(remaining, id)
		}
	}

	if len(remaining) == 0 {
		delete(a.byGame, gameID)
		return
	}
	a.byGame[gameID] = remaining
}

// Clear releases every participant of gameID. Clearing an unknown or
// already-cleared game is a no-op.
func (a *ActiveGames) Clear(gameID string) {
	a.mu.Lock()
	defer a.mu.Unlock()

	users, ok := a.byGame[gameID]
	if !ok {
		return
	}

	for _, id := range users {
		if a.byUser[id] == gameID {
			delete(a.byUser, id)
		}
	}
	delete(a.byGame, gameID)
}

// Participants returns a copy of gameID's member set, in claim order.
func (a *ActiveGames) Participants(gameID string) []string {
	a.mu.Lock()
	defer a.mu.Unlock()

	users := a.byGame[gameID]
	out := make([]string, len(users))
	copy(out, users)
	return out
}

// dedupe removes duplicate IDs while preserving first-seen order.
func dedupe(ids []string) []string {
	seen := make(map[string]struct{}, len(ids))
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		if _, dup := seen[id]; dup {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	return out
}
