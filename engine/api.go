package engine

import (
	"context"
	"fmt"

	"github.com/dogmatiq/dodeca/logging"
	"github.com/google/uuid"
	"github.com/rite-engine/rite/correlation"
	"github.com/rite-engine/rite/internal/mlog"
	"github.com/rite-engine/rite/message"
	"github.com/rite-engine/rite/persistence"
	"github.com/rite-engine/rite/process"
	"github.com/rite-engine/rite/timer"
)

// Deploy persists a process definition as a new version and activates it.
//
// The process keeps a stable uid across deployments of the same natural
// process ID. Activation atomically registers the new version's start-event
// subscriptions and start-timers, and withdraws those of the version it
// replaces.
func (e *Engine) Deploy(
	ctx context.Context,
	def *process.Definition,
) (*process.Version, error) {
	if err := def.Validate(); err != nil {
		return nil, err
	}

	ds, err := e.dataStore(ctx)
	if err != nil {
		return nil, err
	}

	processID, err := ds.ReserveUniqueKey(
		ctx,
		correlation.Hash(def.ProcessID),
		e.generateID(),
	)
	if err != nil {
		return nil, err
	}

	versionID := e.generateID()

	v, err := process.NewVersion(e.owner, processID, versionID, def)
	if err != nil {
		return nil, err
	}

	pk, err := e.opts.Marshaler.Marshal(def)
	if err != nil {
		return nil, fmt.Errorf(
			"unable to marshal definition of process %q: %w",
			def.ProcessID,
			err,
		)
	}

	batch := persistence.Batch{
		persistence.SaveProcessVersion{
			Version: persistence.ProcessVersion{
				ProcessID:  processID,
				VersionID:  versionID,
				NaturalID:  def.ProcessID,
				Definition: pk,
			},
		},
		persistence.ActivateProcessVersion{
			ProcessID: processID,
			VersionID: versionID,
		},
	}

	withdraw, err := e.withdrawStartTriggers(ctx, ds, processID)
	if err != nil {
		return nil, err
	}
	batch = append(batch, withdraw...)

	register, err := e.registerStartTriggers(v)
	if err != nil {
		return nil, err
	}
	batch = append(batch, register...)

	if err := ds.Persist(ctx, batch); err != nil {
		return nil, err
	}

	logging.Log(
		e.opts.Logger,
		"deployed process %s version %s (%s)",
		processID,
		versionID,
		def.ProcessID,
	)

	return v, nil
}

// registerStartTriggers returns the operations that register a version's
// start-event subscriptions and start-timers.
func (e *Engine) registerStartTriggers(
	v *process.Version,
) (persistence.Batch, error) {
	var batch persistence.Batch

	for _, el := range v.StartEvents() {
		switch {
		case el.TimerDescriptor != "":
			desc, err := timer.ParseDescriptor(el.TimerDescriptor)
			if err != nil {
				return nil, fmt.Errorf(
					"start event %q of process %q has a malformed timer: %w",
					el.ID,
					v.NaturalID(),
					err,
				)
			}

			batch = append(batch, persistence.SaveTimer{
				Timer: timer.New(
					desc,
					el.TimerDescriptor,
					e.now(),
					e.opts.TimerShards,
					v.ProcessID,
					v.VersionID,
					"", // no instance, firing creates one
					el.ID,
					1,
				),
			})

		case el.MessageRef != "":
			batch = append(batch, persistence.SaveSubscription{
				Subscription: persistence.Subscription{
					SubscriptionID:  v.VersionID + "/" + el.ID,
					CorrelationType: correlation.TypeMessage,
					CorrelationHash: correlation.Hash(el.MessageRef),
					ProcessID:       v.ProcessID,
					VersionID:       v.VersionID,
					ElementID:       el.ID,
					Condition:       el.Condition,
				},
			})
		}
	}

	return batch, nil
}

// withdrawStartTriggers returns the operations that remove the start-event
// subscriptions and start-timers of the process's currently active version.
func (e *Engine) withdrawStartTriggers(
	ctx context.Context,
	ds persistence.DataStore,
	processID string,
) (persistence.Batch, error) {
	prevID, err := ds.LoadActiveVersionID(ctx, processID)
	if err != nil {
		if _, ok := err.(persistence.UnknownProcessError); ok {
			return nil, nil
		}

		return nil, err
	}

	var batch persistence.Batch

	timers, err := ds.LoadTimers(ctx)
	if err != nil {
		return nil, err
	}

	for _, tm := range timers {
		if tm.VersionID == prevID && tm.InstanceID == "" {
			batch = append(batch, persistence.RemoveTimer{
				Timer: tm,
			})
		}
	}

	pv, err := ds.LoadProcessVersion(ctx, processID, prevID)
	if err != nil {
		return nil, err
	}

	def, err := unmarshalDefinition(e.opts, pv)
	if err != nil {
		return nil, err
	}

	v, err := process.NewVersion(e.owner, processID, prevID, def)
	if err != nil {
		return nil, err
	}

	for _, el := range v.StartEvents() {
		if el.MessageRef == "" {
			continue
		}

		subs, err := ds.LoadSubscriptions(
			ctx,
			correlation.TypeMessage,
			correlation.Hash(el.MessageRef),
		)
		if err != nil {
			return nil, err
		}

		for _, sub := range subs {
			if sub.VersionID == prevID && sub.ElementID == el.ID {
				batch = append(batch, persistence.RemoveSubscription{
					Subscription: sub,
				})
			}
		}
	}

	return batch, nil
}

// CreateInstance starts a new instance of the process's active version.
//
// It returns the uid of the new instance. The instance is created
// asynchronously; the uid is assigned before the command is queued.
func (e *Engine) CreateInstance(
	ctx context.Context,
	processID string,
	data map[string]any,
) (string, error) {
	ds, err := e.dataStore(ctx)
	if err != nil {
		return "", err
	}

	versionID, err := ds.LoadActiveVersionID(ctx, processID)
	if err != nil {
		return "", err
	}

	instanceID := e.generateID()

	if err := e.publish(ctx, message.CreateInstance{
		Owner:      e.owner,
		ProcessID:  processID,
		VersionID:  versionID,
		InstanceID: instanceID,
		Data:       data,
	}); err != nil {
		return "", err
	}

	return instanceID, nil
}

// Raise correlates an external message with the subscriptions awaiting it.
//
// A matching start-event subscription creates a new instance; a matching
// instance subscription triggers the awaiting event element. It returns the
// number of subscriptions matched.
func (e *Engine) Raise(
	ctx context.Context,
	key string,
	data map[string]any,
) (int, error) {
	return e.correlate(ctx, correlation.TypeMessage, key, data)
}

// Signal is like Raise but correlates on the signal namespace, which is
// broadcast-oriented: signals never carry an instance-specific business key.
func (e *Engine) Signal(
	ctx context.Context,
	key string,
	data map[string]any,
) (int, error) {
	return e.correlate(ctx, correlation.TypeSignal, key, data)
}

func (e *Engine) correlate(
	ctx context.Context,
	correlationType, key string,
	data map[string]any,
) (int, error) {
	ds, err := e.dataStore(ctx)
	if err != nil {
		return 0, err
	}

	registry := &correlation.Registry{
		Subscriptions: ds,
		Evaluator:     e.opts.Evaluator,
	}

	subs, err := registry.Match(ctx, correlationType, key, data)
	if err != nil {
		return 0, err
	}

	for _, sub := range subs {
		var m message.Message

		if sub.InstanceID == "" {
			m = message.CreateInstance{
				Owner:          e.owner,
				ProcessID:      sub.ProcessID,
				VersionID:      sub.VersionID,
				InstanceID:     e.generateID(),
				StartElementID: sub.ElementID,
				Data:           data,
			}
		} else {
			m = message.TriggerEvent{
				Owner:      e.owner,
				InstanceID: sub.InstanceID,
				ElementID:  sub.ElementID,
				Data:       data,
			}
		}

		if err := e.publish(ctx, m); err != nil {
			return 0, err
		}
	}

	return len(subs), nil
}

// RaiseEvent raises an event against a specific running instance, bypassing
// correlation.
func (e *Engine) RaiseEvent(
	ctx context.Context,
	instanceID, trigger string,
	data map[string]any,
) error {
	return e.publish(ctx, message.RaiseEvent{
		Owner:      e.owner,
		InstanceID: instanceID,
		Trigger:    trigger,
		Data:       data,
	})
}

// AddContext merges data into a running instance's process context.
func (e *Engine) AddContext(
	ctx context.Context,
	instanceID string,
	data map[string]any,
) error {
	return e.publish(ctx, message.AddContext{
		Owner:      e.owner,
		InstanceID: instanceID,
		Data:       data,
	})
}

// CommitJob reports the successful completion of a worker job.
func (e *Engine) CommitJob(
	ctx context.Context,
	instanceID, jobID string,
	output map[string]any,
) error {
	return e.publish(ctx, message.CommitJob{
		Owner:      e.owner,
		InstanceID: instanceID,
		JobID:      jobID,
		Output:     output,
	})
}

// FailJob reports a failed attempt at a worker job.
func (e *Engine) FailJob(
	ctx context.Context,
	instanceID, jobID, reason string,
) error {
	return e.publish(ctx, message.FailJob{
		Owner:      e.owner,
		InstanceID: instanceID,
		JobID:      jobID,
		Reason:     reason,
	})
}

// publish packs a command and hands it to the queue.
func (e *Engine) publish(ctx context.Context, m message.Message) error {
	p := e.packer.Pack(m)

	if err := e.queue.Publish(ctx, p); err != nil {
		return err
	}

	mlog.LogProduce(e.opts.Logger, p.Envelope)

	return nil
}

func (e *Engine) generateID() string {
	if e.opts.GenerateID != nil {
		return e.opts.GenerateID()
	}

	return uuid.NewString()
}
