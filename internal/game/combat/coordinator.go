package combat

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/kmaitland/duskhall/internal/game/dice"
)

// CoordinatorOptions configures a Coordinator.
type CoordinatorOptions struct {
	// Src is the randomness source shared by all instances; required.
	Src dice.Source
	// TurnTimeout and TurnPause are passed to every instance. TurnTimeout
	// is required (> 0).
	TurnTimeout time.Duration
	TurnPause   time.Duration
	// Sink receives reward settlement writes; defaults to a no-op sink.
	Sink RewardSink
	// Broadcaster, Hooks, and Logger default to no-ops.
	Broadcaster Broadcaster
	Hooks       Hooks
	Logger      *zap.Logger
}

// Coordinator is the process-wide registry of active combat instances. It is
// the single source of truth mapping a world location to its fight and a
// participant to the fight they are in, and it enforces that a combatant
// belongs to at most one instance at a time.
//
// All methods are safe for concurrent use. The registry lock is never held
// while calling into an instance: instances end from their own loop goroutine
// and call back into the coordinator, so the two locks must never nest in
// both directions.
type Coordinator struct {
	src         dice.Source
	turnTimeout time.Duration
	turnPause   time.Duration
	sink        RewardSink
	broadcaster Broadcaster
	hooks       Hooks
	logger      *zap.Logger

	mu            sync.Mutex
	byID          map[string]*Instance
	byLocation    map[string]*Instance
	byParticipant map[string]*Instance
	wg            sync.WaitGroup
}

// NewCoordinator creates an empty Coordinator.
//
// Precondition: opts.Src must be non-nil and opts.TurnTimeout > 0.
func NewCoordinator(opts CoordinatorOptions) *Coordinator {
	if opts.Src == nil || opts.TurnTimeout <= 0 {
		panic("combat: NewCoordinator precondition violated: Src and TurnTimeout are required")
	}
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	sink := opts.Sink
	if sink == nil {
		sink = NopRewardSink{}
	}
	var broadcaster Broadcaster = NopBroadcaster{}
	if opts.Broadcaster != nil {
		broadcaster = opts.Broadcaster
	}
	var hooks Hooks = NopHooks{}
	if opts.Hooks != nil {
		hooks = opts.Hooks
	}
	return &Coordinator{
		src:           opts.Src,
		turnTimeout:   opts.TurnTimeout,
		turnPause:     opts.TurnPause,
		sink:          sink,
		broadcaster:   broadcaster,
		hooks:         hooks,
		logger:        logger,
		byID:          make(map[string]*Instance),
		byLocation:    make(map[string]*Instance),
		byParticipant: make(map[string]*Instance),
	}
}

// StartOrJoin starts a fight at locationID with the given combatants, or
// merges them into the fight already active there. New combatants joining an
// ongoing fight are slotted into the turn order by late-insert initiative;
// the fight does not restart.
//
// Precondition: every combatant must come from NewCombatant; a brand-new
// fight needs at least one living combatant per side.
// Postcondition: Returns the (possibly pre-existing) running instance, or an
// error and no registry change. A combatant already registered elsewhere
// fails the whole call with ErrAlreadyInCombat.
func (c *Coordinator) StartOrJoin(locationID string, combatants ...*Combatant) (*Instance, error) {
	if locationID == "" {
		return nil, fmt.Errorf("combat: location id must not be empty")
	}

	c.mu.Lock()
	existing := c.byLocation[locationID]
	for _, cbt := range combatants {
		if bound, ok := c.byParticipant[cbt.ID]; ok && bound != existing {
			c.mu.Unlock()
			return nil, fmt.Errorf("combatant %q: %w", cbt.ID, ErrAlreadyInCombat)
		}
	}

	if existing != nil {
		// Reserve the mappings before releasing the registry lock; the
		// joins below go through the instance's own lock.
		joiners := make([]*Combatant, 0, len(combatants))
		for _, cbt := range combatants {
			if c.byParticipant[cbt.ID] == existing {
				continue // already in this fight; nothing to merge
			}
			c.byParticipant[cbt.ID] = existing
			joiners = append(joiners, cbt)
		}
		c.mu.Unlock()

		for _, cbt := range joiners {
			if err := existing.AddParticipant(cbt); err != nil {
				c.mu.Lock()
				delete(c.byParticipant, cbt.ID)
				c.mu.Unlock()
				return nil, fmt.Errorf("joining fight at %q: %w", locationID, err)
			}
		}
		return existing, nil
	}

	inst := NewInstance(InstanceOptions{
		ID:                uuid.NewString(),
		LocationID:        locationID,
		Src:               c.src,
		TurnTimeout:       c.turnTimeout,
		TurnPause:         c.turnPause,
		Logger:            c.logger,
		Broadcaster:       c.broadcaster,
		Hooks:             c.hooks,
		OnEnded:           c.settleAndRemove,
		OnParticipantLeft: c.unbindParticipant,
	})
	for _, cbt := range combatants {
		if err := inst.AddParticipant(cbt); err != nil {
			c.mu.Unlock()
			return nil, err
		}
	}
	c.byID[inst.ID()] = inst
	c.byLocation[locationID] = inst
	for _, cbt := range combatants {
		c.byParticipant[cbt.ID] = inst
	}
	c.wg.Add(1)
	c.mu.Unlock()

	if err := inst.Start(); err != nil {
		c.mu.Lock()
		delete(c.byID, inst.ID())
		delete(c.byLocation, locationID)
		for _, cbt := range combatants {
			delete(c.byParticipant, cbt.ID)
		}
		c.wg.Done()
		c.mu.Unlock()
		return nil, err
	}

	c.logger.Info("combat started",
		zap.String("instance_id", inst.ID()),
		zap.String("location_id", locationID),
		zap.Int("combatants", len(combatants)),
	)
	return inst, nil
}

// InstanceFor returns the active instance the participant is in.
func (c *Coordinator) InstanceFor(participantID string) (*Instance, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	inst, ok := c.byParticipant[participantID]
	return inst, ok
}

// InstanceAt returns the active instance at the given location.
func (c *Coordinator) InstanceAt(locationID string) (*Instance, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	inst, ok := c.byLocation[locationID]
	return inst, ok
}

// SubmitAction routes a participant's action to their instance.
//
// Postcondition: Returns ErrNotInCombat when the participant has no active
// instance; otherwise the instance's SubmitAction result (ErrNotYourTurn,
// ErrInvalidTarget, ErrAlreadyEnded, or nil).
func (c *Coordinator) SubmitAction(participantID string, act Action) error {
	c.mu.Lock()
	inst, ok := c.byParticipant[participantID]
	c.mu.Unlock()
	if !ok {
		return ErrNotInCombat
	}
	return inst.SubmitAction(participantID, act)
}

// EndInstance cooperatively cancels the instance with the given id. The turn
// loop stops at its next safe point and the normal teardown path (settlement,
// registry removal) runs from there.
//
// Postcondition: Returns ErrNotInCombat when no such active instance exists.
func (c *Coordinator) EndInstance(instanceID string) error {
	c.mu.Lock()
	inst, ok := c.byID[instanceID]
	c.mu.Unlock()
	if !ok {
		return ErrNotInCombat
	}
	inst.Stop()
	return nil
}

// ActiveCount returns the number of registered instances.
func (c *Coordinator) ActiveCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.byID)
}

// Shutdown cancels every active instance and waits for all turn loops to
// unwind, bounded by ctx.
func (c *Coordinator) Shutdown(ctx context.Context) error {
	c.mu.Lock()
	instances := make([]*Instance, 0, len(c.byID))
	for _, inst := range c.byID {
		instances = append(instances, inst)
	}
	c.mu.Unlock()

	for _, inst := range instances {
		inst.Stop()
	}

	done := make(chan struct{})
	go func() {
		c.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("combat: shutdown: %w", ctx.Err())
	}
}

// unbindParticipant releases a combatant who left an ongoing fight (fled),
// freeing them to enter another instance immediately.
func (c *Coordinator) unbindParticipant(participantID string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.byParticipant, participantID)
}

// settleAndRemove is every instance's OnEnded callback. It runs settlement
// for the terminal fight and removes it from the registry. It executes on the
// instance's loop goroutine, exactly once per instance.
func (c *Coordinator) settleAndRemove(rep Report) {
	if err := Settle(context.Background(), rep, c.sink, c.logger); err != nil {
		c.logger.Error("reward settlement failed",
			zap.String("instance_id", rep.InstanceID),
			zap.Error(err),
		)
	}

	c.mu.Lock()
	inst, ok := c.byID[rep.InstanceID]
	if ok {
		delete(c.byID, rep.InstanceID)
		if c.byLocation[rep.LocationID] == inst {
			delete(c.byLocation, rep.LocationID)
		}
		for pid, bound := range c.byParticipant {
			if bound == inst {
				delete(c.byParticipant, pid)
			}
		}
		c.wg.Done()
	}
	c.mu.Unlock()

	c.logger.Info("combat instance removed",
		zap.String("instance_id", rep.InstanceID),
		zap.String("location_id", rep.LocationID),
		zap.Stringer("result", rep.Result),
	)
}
