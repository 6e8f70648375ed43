package storage

import (
	"context"
	"encoding/json"
	"strconv"
	"strings"
	"sync"

	"github.com/Azure/azure-sdk-for-go/sdk/azcore"
	"github.com/Azure/azure-sdk-for-go/sdk/azcore/runtime"
	"github.com/Azure/azure-sdk-for-go/sdk/data/aztables"
	"github.com/Azure/azure-sdk-for-go/sdk/storage/azqueue"
)

type fakeRow struct {
	data []byte
	etag azcore.ETag
}

type fakeTable struct {
	mu        sync.Mutex
	rows      map[string]fakeRow
	order     []string
	version   int
	conflicts int
	updates   int
	createErr error
	listErr   error
}

func newFakeTable() *fakeTable {
	return &fakeTable{rows: map[string]fakeRow{}}
}

func rowID(pk, rk string) string { return pk + "\x00" + rk }

func entityKeys(data []byte) (string, string) {
	var keys struct {
		PartitionKey string `json:"PartitionKey"`
		RowKey       string `json:"RowKey"`
	}
	_ = json.Unmarshal(data, &keys)
	return keys.PartitionKey, keys.RowKey
}

func (f *fakeTable) nextETag() azcore.ETag {
	f.version++
	return azcore.ETag("W/\"" + strconv.Itoa(f.version) + "\"")
}

func (f *fakeTable) NewListEntitiesPager(options *aztables.ListEntitiesOptions) *runtime.Pager[aztables.ListEntitiesResponse] {
	partition, filtered := "", false
	if options != nil && options.Filter != nil {
		raw := strings.TrimPrefix(*options.Filter, "PartitionKey eq '")
		raw = strings.TrimSuffix(raw, "'")
		partition, filtered = strings.ReplaceAll(raw, "''", "'"), true
	}
	return runtime.NewPager(runtime.PagingHandler[aztables.ListEntitiesResponse]{
		More: func(aztables.ListEntitiesResponse) bool { return false },
		Fetcher: func(ctx context.Context, _ *aztables.ListEntitiesResponse) (aztables.ListEntitiesResponse, error) {
			f.mu.Lock()
			defer f.mu.Unlock()
			if f.listErr != nil {
				return aztables.ListEntitiesResponse{}, f.listErr
			}
			var resp aztables.ListEntitiesResponse
			for _, id := range f.order {
				row, ok := f.rows[id]
				if !ok {
					continue
				}
				if filtered && !strings.HasPrefix(id, partition+"\x00") {
					continue
				}
				resp.Entities = append(resp.Entities, row.data)
			}
			return resp, nil
		},
	})
}

func (f *fakeTable) GetEntity(ctx context.Context, pk, rk string, _ *aztables.GetEntityOptions) (aztables.GetEntityResponse, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	row, ok := f.rows[rowID(pk, rk)]
	if !ok {
		return aztables.GetEntityResponse{}, &azcore.ResponseError{StatusCode: 404, ErrorCode: "ResourceNotFound"}
	}
	return aztables.GetEntityResponse{ETag: row.etag, Value: row.data}, nil
}

func (f *fakeTable) AddEntity(ctx context.Context, entity []byte, _ *aztables.AddEntityOptions) (aztables.AddEntityResponse, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.createErr != nil {
		return aztables.AddEntityResponse{}, f.createErr
	}
	id := rowID(entityKeys(entity))
	if _, exists := f.rows[id]; exists {
		return aztables.AddEntityResponse{}, &azcore.ResponseError{StatusCode: 409, ErrorCode: "EntityAlreadyExists"}
	}
	f.rows[id] = fakeRow{data: entity, etag: f.nextETag()}
	f.order = append(f.order, id)
	return aztables.AddEntityResponse{}, nil
}

func (f *fakeTable) UpdateEntity(ctx context.Context, entity []byte, options *aztables.UpdateEntityOptions) (aztables.UpdateEntityResponse, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.updates++
	id := rowID(entityKeys(entity))
	row, ok := f.rows[id]
	if !ok {
		return aztables.UpdateEntityResponse{}, &azcore.ResponseError{StatusCode: 404, ErrorCode: "ResourceNotFound"}
	}
	if f.conflicts > 0 {
		f.conflicts--
		// Simulate a concurrent writer bumping the version.
		row.etag = f.nextETag()
		f.rows[id] = row
		return aztables.UpdateEntityResponse{}, &azcore.ResponseError{StatusCode: 412, ErrorCode: "UpdateConditionNotSatisfied"}
	}
	if options != nil && options.IfMatch != nil && *options.IfMatch != azcore.ETagAny && *options.IfMatch != row.etag {
		return aztables.UpdateEntityResponse{}, &azcore.ResponseError{StatusCode: 412, ErrorCode: "UpdateConditionNotSatisfied"}
	}
	f.rows[id] = fakeRow{data: entity, etag: f.nextETag()}
	return aztables.UpdateEntityResponse{}, nil
}

func (f *fakeTable) DeleteEntity(ctx context.Context, pk, rk string, _ *aztables.DeleteEntityOptions) (aztables.DeleteEntityResponse, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	id := rowID(pk, rk)
	if _, ok := f.rows[id]; !ok {
		return aztables.DeleteEntityResponse{}, &azcore.ResponseError{StatusCode: 404, ErrorCode: "ResourceNotFound"}
	}
	delete(f.rows, id)
	return aztables.DeleteEntityResponse{}, nil
}

func (f *fakeTable) CreateTable(ctx context.Context, _ *aztables.CreateTableOptions) (aztables.CreateTableResponse, error) {
	return aztables.CreateTableResponse{}, &azcore.ResponseError{StatusCode: 409, ErrorCode: string(aztables.TableAlreadyExists)}
}

type fakeQueue struct {
	mu       sync.Mutex
	messages []string
	err      error
	created  bool
}

func (q *fakeQueue) EnqueueMessage(ctx context.Context, content string, _ *azqueue.EnqueueMessageOptions) (azqueue.EnqueueMessagesResponse, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.err != nil {
		return azqueue.EnqueueMessagesResponse{}, q.err
	}
	q.messages = append(q.messages, content)
	return azqueue.EnqueueMessagesResponse{}, nil
}

func (q *fakeQueue) Create(ctx context.Context, _ *azqueue.CreateOptions) (azqueue.CreateResponse, error) {
	q.created = true
	return azqueue.CreateResponse{}, nil
}
