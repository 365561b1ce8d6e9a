package mlog

import (
	"fmt"
	"io"

	"github.com/dogmatiq/iago/must"
)

const (
	// MessageIDIcon is the icon shown directly before a message ID.
	// It is an "equals sign", indicating that this message "has exactly" the
	// displayed ID.
	MessageIDIcon Icon = "="

	// CausationIDIcon is the icon shown directly before a message causation
	// ID. It is the mathematical "because" symbol, indicating that this
	// message happened "because of" the displayed ID.
	CausationIDIcon Icon = "∵"

	// CorrelationIDIcon is the icon shown directly before a message
	// correlation ID. It is the mathematical "member of set" symbol,
	// indicating that this message belongs to the set of messages that came
	// about because of the displayed ID.
	CorrelationIDIcon Icon = "⋲"

	// ConsumeIcon is the icon shown to indicate that a message is being
	// consumed. It is a downward pointing arrow, as such "inbound" messages
	// could be considered as being "downloaded" from the queue.
	ConsumeIcon Icon = "▼"

	// ConsumeErrorIcon is a variant of ConsumeIcon used when there is an
	// error condition. It is an hollow version of the regular consume icon,
	// indicating that the requirement remains "unfulfilled".
	ConsumeErrorIcon Icon = "▽"

	// ProduceIcon is the icon shown to indicate that a message is being
	// produced. It is an upward pointing arrow, as such "outbound" messages
	// could be considered as being "uploaded" to the queue.
	ProduceIcon Icon = "▲"

	// RetryIcon is an icon used instead of ConsumeIcon when a message is
	// being re-attempted. It is an open-circle with an arrow, indicating
	// that the message has "come around again".
	RetryIcon Icon = "↻"

	// DiscardIcon is the icon shown when a stale command is dropped because
	// the aggregate's current state defines no handler for it. It is a
	// downward-crossing zigzag, indicating the message "fell through".
	DiscardIcon Icon = "↯"

	// ErrorIcon is the icon shown when logging information about an error.
	// It is a heavy cross, indicating a failure.
	ErrorIcon Icon = "✖"

	// SystemIcon is an icon shown when a log message relates to the
	// internals of the engine. It is a sprocket, representing the inner
	// workings of the machine.
	SystemIcon Icon = "⚙"

	// SeparatorIcon is an icon used to separate strings of unrelated text
	// inside a log message. It is a large bullet, intended to have a large
	// visual impact.
	SeparatorIcon Icon = "●"
)

// Icon is a unicode symbol used as an icon in log messages.
type Icon string

func (i Icon) String() string {
	return string(i)
}

// WriteTo writes a string representation of the icon to w.
// If i is the zero-value, a single space is rendered.
func (i Icon) WriteTo(w io.Writer) (int64, error) {
	s := i.String()
	if i == "" {
		s = " "
	}

	n, err := io.WriteString(w, s)
	return int64(n), err
}

// WithLabel return an IconWithLabel containing this icon and the given label.
func (i Icon) WithLabel(f string, v ...interface{}) IconWithLabel {
	return IconWithLabel{
		i,
		formatLabel(fmt.Sprintf(f, v...)),
	}
}

// WithID return an IconWithLabel containing this icon and an ID as its label.
//
// The id is formatted using FormatID().
func (i Icon) WithID(id string) IconWithLabel {
	return i.WithLabel(FormatID(id))
}

// IconWithLabel is a container for an icon and its associated text label.
type IconWithLabel struct {
	Icon  Icon
	Label string
}

func (i IconWithLabel) String() string {
	return i.Icon.String() + " " + i.Label
}

// WriteTo writes a string representation of the icon and its label to w.
func (i IconWithLabel) WriteTo(w io.Writer) (_ int64, err error) {
	defer must.Recover(&err)

	n := must.WriteTo(w, i.Icon)
	n += must.WriteString(w, " ")
	n += must.WriteString(w, i.Label)

	return int64(n), err
}

// formatLabel formats a label for display.
func formatLabel(label string) string {
	if label == "" {
		return "-"
	}

	return label
}

func retryIcon(fc uint) Icon {
	if fc == 0 {
		return ""
	}

	return RetryIcon
}

func errorIcon(err error) Icon {
	if err == nil {
		return ""
	}

	return ErrorIcon
}
