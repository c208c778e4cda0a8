package orders

import (
	"context"
	"errors"
	"sort"
	"strconv"
	"strings"
	"sync"

	dyn "github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/shopspring/decimal"
)

// tableMock is a small in-memory DynamoDB covering the expressions the
// DynamoDBStore issues. It is not a general expression evaluator.
type tableMock struct {
	mu       sync.Mutex
	tables   map[string]map[string]map[string]types.AttributeValue
	pageSize int

	transactCalls int
	queryCalls    int
	scanCalls     int

	// transactErr, when set, is returned by the next TransactWriteItems call.
	transactErr error
	// getErrAfterTransact, when set, fails every GetItem once a transaction
	// has committed.
	getErrAfterTransact error
	committed           bool
}

// cancelled builds the exception DynamoDB returns when item failed its
// condition: one reason per item, "None" for the others.
func cancelled(n, failed int) *types.TransactionCanceledException {
	reasons := make([]types.CancellationReason, n)
	for i := range reasons {
		code := "None"
		if i == failed {
			code = "ConditionalCheckFailed"
		}
		reasons[i] = types.CancellationReason{Code: &code}
	}
	return &types.TransactionCanceledException{CancellationReasons: reasons}
}

func newTableMock() *tableMock {
	return &tableMock{tables: map[string]map[string]map[string]types.AttributeValue{}}
}

func sval(item map[string]types.AttributeValue, name string) string {
	if v, ok := item[name].(*types.AttributeValueMemberS); ok {
		return v.Value
	}
	return ""
}

func itemKey(item map[string]types.AttributeValue) string {
	if ak := sval(item, "approval_key"); ak != "" {
		return sval(item, "order_id") + "|" + ak
	}
	return sval(item, "order_id")
}

func (m *tableMock) table(name string) map[string]map[string]types.AttributeValue {
	t, ok := m.tables[name]
	if !ok {
		t = map[string]map[string]types.AttributeValue{}
		m.tables[name] = t
	}
	return t
}

func (m *tableMock) PutItem(ctx context.Context, params *dyn.PutItemInput, optFns ...func(*dyn.Options)) (*dyn.PutItemOutput, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	t := m.table(*params.TableName)
	k := itemKey(params.Item)
	if params.ConditionExpression != nil && strings.HasPrefix(*params.ConditionExpression, "attribute_not_exists") {
		if _, ok := t[k]; ok {
			return nil, &types.ConditionalCheckFailedException{}
		}
	}
	t[k] = params.Item
	return &dyn.PutItemOutput{}, nil
}

func (m *tableMock) GetItem(ctx context.Context, params *dyn.GetItemInput, optFns ...func(*dyn.Options)) (*dyn.GetItemOutput, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.committed && m.getErrAfterTransact != nil {
		return nil, m.getErrAfterTransact
	}
	item, ok := m.table(*params.TableName)[itemKey(params.Key)]
	if !ok {
		return &dyn.GetItemOutput{}, nil
	}
	return &dyn.GetItemOutput{Item: item}, nil
}

func (m *tableMock) UpdateItem(ctx context.Context, params *dyn.UpdateItemInput, optFns ...func(*dyn.Options)) (*dyn.UpdateItemOutput, error) {
	return nil, errors.New("UpdateItem not used by orders store")
}

// TransactWriteItems supports the status-guarded Update and the
// attribute_not_exists Put that AppendApproval issues.
func (m *tableMock) TransactWriteItems(ctx context.Context, params *dyn.TransactWriteItemsInput, optFns ...func(*dyn.Options)) (*dyn.TransactWriteItemsOutput, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.transactCalls++

	if m.transactErr != nil {
		err := m.transactErr
		m.transactErr = nil
		return nil, err
	}

	// check every condition first, then apply
	n := len(params.TransactItems)
	for i, it := range params.TransactItems {
		if u := it.Update; u != nil {
			cur, ok := m.table(*u.TableName)[itemKey(u.Key)]
			if !ok {
				return nil, cancelled(n, i)
			}
			if want, ok := u.ExpressionAttributeValues[":expected"]; ok {
				if sval(cur, "status") != want.(*types.AttributeValueMemberS).Value {
					return nil, cancelled(n, i)
				}
			}
		}
		if p := it.Put; p != nil && p.ConditionExpression != nil {
			if _, ok := m.table(*p.TableName)[itemKey(p.Item)]; ok {
				return nil, cancelled(n, i)
			}
		}
	}
	for _, it := range params.TransactItems {
		if u := it.Update; u != nil {
			cur := m.table(*u.TableName)[itemKey(u.Key)]
			next := make(map[string]types.AttributeValue, len(cur))
			for k, v := range cur {
				next[k] = v
			}
			next["status"] = u.ExpressionAttributeValues[":to"]
			next["updated_at"] = u.ExpressionAttributeValues[":ua"]
			m.table(*u.TableName)[itemKey(u.Key)] = next
		}
		if p := it.Put; p != nil {
			m.table(*p.TableName)[itemKey(p.Item)] = p.Item
		}
	}
	m.committed = true
	return &dyn.TransactWriteItemsOutput{}, nil
}

func (m *tableMock) Query(ctx context.Context, params *dyn.QueryInput, optFns ...func(*dyn.Options)) (*dyn.QueryOutput, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.queryCalls++

	var hashAttr, hashPlaceholder, rangeAttr string
	switch {
	case params.IndexName == nil:
		hashAttr, hashPlaceholder, rangeAttr = "order_id", ":id", "approval_key"
	case *params.IndexName == GSIRequester:
		hashAttr, hashPlaceholder, rangeAttr = "requester_id", ":requester", "created_at"
	case *params.IndexName == GSIStatus:
		hashAttr, hashPlaceholder, rangeAttr = "status", ":status", "created_at"
	case *params.IndexName == GSICreated:
		hashAttr, hashPlaceholder, rangeAttr = "list_pk", ":all", "created_at"
	default:
		return nil, errors.New("unknown index")
	}
	want := params.ExpressionAttributeValues[hashPlaceholder].(*types.AttributeValueMemberS).Value

	var matched []map[string]types.AttributeValue
	for _, item := range m.table(*params.TableName) {
		if sval(item, hashAttr) == want && matchesFilter(item, params.FilterExpression, params.ExpressionAttributeValues) {
			matched = append(matched, item)
		}
	}
	forward := params.ScanIndexForward == nil || *params.ScanIndexForward
	sort.Slice(matched, func(i, j int) bool {
		if forward {
			return sval(matched[i], rangeAttr) < sval(matched[j], rangeAttr)
		}
		return sval(matched[i], rangeAttr) > sval(matched[j], rangeAttr)
	})

	page, last := m.paginate(matched, params.ExclusiveStartKey)
	return &dyn.QueryOutput{Items: page, LastEvaluatedKey: last}, nil
}

func (m *tableMock) Scan(ctx context.Context, params *dyn.ScanInput, optFns ...func(*dyn.Options)) (*dyn.ScanOutput, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.scanCalls++

	var matched []map[string]types.AttributeValue
	for _, item := range m.table(*params.TableName) {
		if matchesFilter(item, params.FilterExpression, params.ExpressionAttributeValues) {
			matched = append(matched, item)
		}
	}
	sort.Slice(matched, func(i, j int) bool { return itemKey(matched[i]) < itemKey(matched[j]) })

	page, last := m.paginate(matched, params.ExclusiveStartKey)
	return &dyn.ScanOutput{Items: page, LastEvaluatedKey: last}, nil
}

// paginate slices items into pages of pageSize, using a synthetic offset
// attribute as the continuation key.
func (m *tableMock) paginate(items []map[string]types.AttributeValue, start map[string]types.AttributeValue) ([]map[string]types.AttributeValue, map[string]types.AttributeValue) {
	offset := 0
	if v, ok := start["__offset"].(*types.AttributeValueMemberN); ok {
		offset, _ = strconv.Atoi(v.Value)
	}
	if offset > len(items) {
		offset = len(items)
	}
	items = items[offset:]
	if m.pageSize <= 0 || len(items) <= m.pageSize {
		return items, nil
	}
	next := strconv.Itoa(offset + m.pageSize)
	return items[:m.pageSize], map[string]types.AttributeValue{"__offset": &types.AttributeValueMemberN{Value: next}}
}

func matchesFilter(item map[string]types.AttributeValue, expr *string, values map[string]types.AttributeValue) bool {
	if expr == nil || *expr == "" {
		return true
	}
	for _, cond := range strings.Split(*expr, " AND ") {
		switch cond {
		case "#s = :status":
			if sval(item, "status") != values[":status"].(*types.AttributeValueMemberS).Value {
				return false
			}
		case "cost <= :max_cost":
			cost, _ := item["cost"].(*types.AttributeValueMemberN)
			max := values[":max_cost"].(*types.AttributeValueMemberN)
			if cost == nil || decimal.RequireFromString(cost.Value).GreaterThan(decimal.RequireFromString(max.Value)) {
				return false
			}
		}
	}
	return true
}
