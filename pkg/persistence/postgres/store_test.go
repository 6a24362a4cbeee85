// Copyright 2025 UMH Systems GmbH
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package postgres_test

import (
	"context"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/united-manufacturing-hub/united-manufacturing-hub/acm-core/pkg/persistence"
	"github.com/united-manufacturing-hub/united-manufacturing-hub/acm-core/pkg/persistence/postgres"
	"github.com/united-manufacturing-hub/united-manufacturing-hub/acm-core/pkg/persistence/postgres/testutil"
	"github.com/united-manufacturing-hub/united-manufacturing-hub/acm-core/pkg/persistence/storetest"
)

var _ = Describe("Postgres store", func() {
	storetest.DescribeStore(func() persistence.Store {
		db, _ := testutil.NewStubDB()

		store, err := postgres.NewWithDB(context.Background(), db)
		Expect(err).NotTo(HaveOccurred())

		return store
	})

	It("creates both tables on start", func() {
		db, conn := testutil.NewStubDB()

		store, err := postgres.NewWithDB(context.Background(), db)
		Expect(err).NotTo(HaveOccurred())
		DeferCleanup(store.Close)

		Expect(conn.Execs).To(HaveLen(2))
		Expect(conn.Execs[0]).To(ContainSubstring("acm_instances"))
		Expect(conn.Execs[1]).To(ContainSubstring("acm_participants"))
	})

	It("upserts instead of duplicating rows", func() {
		db, conn := testutil.NewStubDB()

		store, err := postgres.NewWithDB(context.Background(), db)
		Expect(err).NotTo(HaveOccurred())
		DeferCleanup(store.Close)

		instance := storetest.NewInstance("i1")
		Expect(store.SaveInstance(context.Background(), instance)).To(Succeed())
		Expect(store.SaveInstance(context.Background(), instance)).To(Succeed())

		Expect(conn.Rows("acm_instances")).To(HaveLen(1))
	})

	It("fails when the database is unreachable", func() {
		db, conn := testutil.NewStubDB()
		conn.FailPing = true

		_, err := postgres.NewWithDB(context.Background(), db)
		Expect(err).To(MatchError(ContainSubstring("ping postgres")))
	})

	It("surfaces query errors", func() {
		db, conn := testutil.NewStubDB()

		store, err := postgres.NewWithDB(context.Background(), db)
		Expect(err).NotTo(HaveOccurred())
		DeferCleanup(store.Close)

		conn.FailQuery = true

		_, err = store.GetInstances(context.Background(), persistence.InstanceFilter{})
		Expect(err).To(MatchError(ContainSubstring("select acm_instances")))
	})
})
