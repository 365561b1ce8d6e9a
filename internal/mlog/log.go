package mlog

import (
	"fmt"
	"time"

	"github.com/dogmatiq/dodeca/logging"
	"github.com/rite-engine/rite/parcel"
)

// LogConsume logs a message indicating that a message is being consumed.
func LogConsume(
	log logging.Logger,
	env *parcel.Envelope,
	fc uint,
) {
	logging.LogString(
		log,
		String(
			[]IconWithLabel{
				MessageIDIcon.WithID(env.MessageID),
				CausationIDIcon.WithID(env.CausationID),
				CorrelationIDIcon.WithID(env.CorrelationID),
			},
			[]Icon{
				ConsumeIcon,
				retryIcon(fc),
			},
			string(env.MessageType),
			env.Description,
		),
	)
}

// LogProduce logs a message indicating that a message is being produced.
func LogProduce(
	log logging.Logger,
	env *parcel.Envelope,
) {
	logging.LogString(
		log,
		String(
			[]IconWithLabel{
				MessageIDIcon.WithID(env.MessageID),
				CausationIDIcon.WithID(env.CausationID),
				CorrelationIDIcon.WithID(env.CorrelationID),
			},
			[]Icon{
				ProduceIcon,
				"",
			},
			string(env.MessageType),
			env.Description,
		),
	)
}

// LogDiscard logs a message indicating that a stale command has been dropped
// because the receiving aggregate's state defines no handler for it.
func LogDiscard(
	log logging.Logger,
	env *parcel.Envelope,
	state string,
) {
	logging.LogString(
		log,
		String(
			[]IconWithLabel{
				MessageIDIcon.WithID(env.MessageID),
				CausationIDIcon.WithID(env.CausationID),
				CorrelationIDIcon.WithID(env.CorrelationID),
			},
			[]Icon{
				DiscardIcon,
				"",
			},
			string(env.MessageType),
			fmt.Sprintf("discarded in state %q", state),
		),
	)
}

// LogNack logs a message indicating that a message failed and will be
// redelivered.
func LogNack(
	log logging.Logger,
	env *parcel.Envelope,
	cause error,
	delay time.Duration,
) {
	logging.LogString(
		log,
		String(
			[]IconWithLabel{
				MessageIDIcon.WithID(env.MessageID),
				CausationIDIcon.WithID(env.CausationID),
				CorrelationIDIcon.WithID(env.CorrelationID),
			},
			[]Icon{
				ConsumeErrorIcon,
				ErrorIcon,
			},
			string(env.MessageType),
			cause.Error(),
			fmt.Sprintf("next retry in %s", delay),
		),
	)
}

// LogFromScope logs an informational message produced by a machine's command
// handler via its scope.
func LogFromScope(
	log logging.Logger,
	env *parcel.Envelope,
	f string, v []interface{},
) {
	logging.Log(
		log,
		String(
			[]IconWithLabel{
				MessageIDIcon.WithID(env.MessageID),
				CausationIDIcon.WithID(env.CausationID),
				CorrelationIDIcon.WithID(env.CorrelationID),
			},
			[]Icon{
				ConsumeIcon,
				"",
			},
			string(env.MessageType),
			fmt.Sprintf(f, v...),
		),
	)
}

// LogError logs a message indicating that the engine encountered an error
// outside the context of any specific message.
func LogError(
	log logging.Logger,
	err error,
) {
	logging.LogString(
		log,
		String(
			nil,
			[]Icon{
				SystemIcon,
				ErrorIcon,
			},
			err.Error(),
		),
	)
}
