package boltpersistence_test

import (
	"context"
	"os"
	"path/filepath"

	"github.com/onsi/ginkgo/v2"
	"github.com/onsi/gomega"
	"github.com/rite-engine/rite/persistence"
	"github.com/rite-engine/rite/persistence/boltpersistence"
	"github.com/rite-engine/rite/persistence/internal/providertest"
	"go.etcd.io/bbolt"
)

var _ = ginkgo.Describe("type FileProvider", func() {
	var dir string

	providertest.Declare(
		func(ctx context.Context) providertest.Out {
			var err error
			dir, err = os.MkdirTemp("", "boltpersistence-")
			gomega.Expect(err).ShouldNot(gomega.HaveOccurred())

			return providertest.Out{
				Provider: &boltpersistence.FileProvider{
					Path: filepath.Join(dir, "rite.db"),
				},
			}
		},
		func() {
			os.RemoveAll(dir)
		},
	)
})

var _ = ginkgo.Describe("type Provider", func() {
	var (
		ctx    context.Context
		cancel context.CancelFunc
		dir    string
		db     *bbolt.DB
	)

	ginkgo.BeforeEach(func() {
		ctx, cancel = context.WithTimeout(
			context.Background(),
			providertest.DefaultTestTimeout,
		)

		var err error
		dir, err = os.MkdirTemp("", "boltpersistence-")
		gomega.Expect(err).ShouldNot(gomega.HaveOccurred())

		db, err = bbolt.Open(filepath.Join(dir, "rite.db"), 0600, nil)
		gomega.Expect(err).ShouldNot(gomega.HaveOccurred())
	})

	ginkgo.AfterEach(func() {
		db.Close()
		os.RemoveAll(dir)
		cancel()
	})

	ginkgo.It("does not close the caller's database", func() {
		p := &boltpersistence.Provider{
			DB: db,
		}

		ds, err := p.Open(ctx, "<owner>")
		gomega.Expect(err).ShouldNot(gomega.HaveOccurred())

		err = ds.Close()
		gomega.Expect(err).ShouldNot(gomega.HaveOccurred())

		// The database must still be usable after the data store is closed.
		err = db.View(func(*bbolt.Tx) error { return nil })
		gomega.Expect(err).ShouldNot(gomega.HaveOccurred())
	})

	ginkgo.It("retains state across data store sessions", func() {
		p := &boltpersistence.Provider{
			DB: db,
		}

		ds, err := p.Open(ctx, "<owner>")
		gomega.Expect(err).ShouldNot(gomega.HaveOccurred())

		uid, err := ds.ReserveUniqueKey(ctx, "<key>", "<uid-a>")
		gomega.Expect(err).ShouldNot(gomega.HaveOccurred())
		gomega.Expect(uid).To(gomega.Equal("<uid-a>"))

		err = ds.Close()
		gomega.Expect(err).ShouldNot(gomega.HaveOccurred())

		ds, err = p.Open(ctx, "<owner>")
		gomega.Expect(err).ShouldNot(gomega.HaveOccurred())
		defer ds.Close()

		uid, err = ds.ReserveUniqueKey(ctx, "<key>", "<uid-b>")
		gomega.Expect(err).ShouldNot(gomega.HaveOccurred())
		gomega.Expect(uid).To(gomega.Equal("<uid-a>"))
	})

	ginkgo.It("isolates the records of different owners", func() {
		p := &boltpersistence.Provider{
			DB: db,
		}

		a, err := p.Open(ctx, "<owner-a>")
		gomega.Expect(err).ShouldNot(gomega.HaveOccurred())
		defer a.Close()

		b, err := p.Open(ctx, "<owner-b>")
		gomega.Expect(err).ShouldNot(gomega.HaveOccurred())
		defer b.Close()

		err = a.Persist(ctx, persistence.Batch{
			persistence.SaveActiveInstance{
				ProcessID:  "<process>",
				InstanceID: "<instance>",
			},
		})
		gomega.Expect(err).ShouldNot(gomega.HaveOccurred())

		ids, err := b.LoadActiveInstances(ctx, "<process>")
		gomega.Expect(err).ShouldNot(gomega.HaveOccurred())
		gomega.Expect(ids).To(gomega.BeEmpty())
	})
})
