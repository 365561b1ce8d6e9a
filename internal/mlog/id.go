package mlog

// FormatID abbreviates a message ID for logging.
//
// UUIDs are shortened to their leading group; any other ID is shown in full.
func FormatID(id string) string {
	const group = 8

	if len(id) == 36 && id[group] == '-' {
		return id[:group]
	}

	return id
}
