package persistence

import (
	"context"
)

// UniqueKeyRepository assigns idempotent, collision-free uids to
// externally-named entities.
type UniqueKeyRepository interface {
	// ReserveUniqueKey reserves the mapping of a natural-key hash to the
	// proposed uid, first-writer-wins.
	//
	// If the key is already reserved, the previously reserved uid is
	// returned; otherwise the proposed uid is recorded and returned. The
	// operation is idempotent under retries.
	ReserveUniqueKey(ctx context.Context, key, uid string) (string, error)
}
