/*
Copyright 2025 Ringflow Authors.

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

	http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/

package ringflow

import (
	"context"

	"github.com/typesense/typesense-go/typesense/api"

	"github.com/ringflow/ringflow/internal/search"
)

// Search performs a search on the specified collection using the provided query parameters.
//
// Parameters:
// - collection string: The name of the collection to search.
// - query *api.SearchCollectionParams: The search query parameters.
//
// Returns:
// - interface{}: The search results.
// - error: An error if the search operation fails.
func (r *Ringflow) Search(collection string, query *api.SearchCollectionParams) (interface{}, error) {
	return r.search.Search(context.Background(), collection, query)
}

// MultiSearch performs a multi-search operation across collections.
func (r *Ringflow) MultiSearch(searchParams *api.MultiSearchSearchesParameter) (*api.MultiSearchResult, error) {
	return r.search.MultiSearch(context.Background(), *searchParams)
}

// Reindex rebuilds the search collections from the lead store. The rebuild
// runs synchronously and returns its final progress report.
func (r *Ringflow) Reindex(ctx context.Context) (*search.ReindexProgress, error) {
	service := search.NewReindexService(r.search, r.datasource, search.ReindexConfig{})
	return service.StartReindex(ctx)
}
