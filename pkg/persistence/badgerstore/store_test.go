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

package badgerstore_test

import (
	"context"

	badger "github.com/dgraph-io/badger/v4"
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/united-manufacturing-hub/united-manufacturing-hub/acm-core/pkg/persistence"
	"github.com/united-manufacturing-hub/united-manufacturing-hub/acm-core/pkg/persistence/badgerstore"
	"github.com/united-manufacturing-hub/united-manufacturing-hub/acm-core/pkg/persistence/storetest"
)

var _ = Describe("Badger store", func() {
	storetest.DescribeStore(func() persistence.Store {
		store, err := badgerstore.OpenWithOptions(badger.DefaultOptions("").WithInMemory(true).WithLogger(nil))
		Expect(err).NotTo(HaveOccurred())

		return store
	})

	It("persists to disk across reopen", func() {
		dir := GinkgoT().TempDir()

		store, err := badgerstore.Open(dir)
		Expect(err).NotTo(HaveOccurred())
		Expect(store.SaveInstance(context.Background(), storetest.NewInstance("i1"))).To(Succeed())
		Expect(store.Close()).To(Succeed())

		store, err = badgerstore.Open(dir)
		Expect(err).NotTo(HaveOccurred())
		DeferCleanup(store.Close)

		got, err := store.GetInstance(context.Background(), "i1")
		Expect(err).NotTo(HaveOccurred())
		Expect(got.Name).To(Equal("composition-i1"))
	})
})
