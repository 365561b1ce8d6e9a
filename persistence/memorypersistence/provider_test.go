package memorypersistence_test

import (
	"context"

	"github.com/onsi/ginkgo/v2"
	"github.com/rite-engine/rite/persistence/internal/providertest"
	"github.com/rite-engine/rite/persistence/memorypersistence"
)

var _ = ginkgo.Describe("type Provider", func() {
	providertest.Declare(
		func(ctx context.Context) providertest.Out {
			return providertest.Out{
				Provider: &memorypersistence.Provider{},
			}
		},
		nil,
	)
})
