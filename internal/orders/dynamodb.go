package orders

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	dyn "github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/shopspring/decimal"

	"github.com/imrishuroy/po-approvals/internal/aws"
	"github.com/imrishuroy/po-approvals/internal/roles"
)

// GSI names on the orders table.
const (
	GSIRequester = "gsi-requester" // requester_id (HASH), created_at (RANGE)
	GSIStatus    = "gsi-status"    // status (HASH), created_at (RANGE)
	GSICreated   = "gsi-created"   // list_pk (HASH), created_at (RANGE)
)

// listPartition is the constant list_pk every order carries so that
// unfiltered listings read GSICreated newest first instead of scanning.
const listPartition = "ORDER"

// sortableTime is fixed width so lexical order equals chronological order.
const sortableTime = "2006-01-02T15:04:05.000000000Z07:00"

func formatTime(t time.Time) string {
	return t.UTC().Format(sortableTime)
}

func parseTime(s string) (time.Time, error) {
	return time.Parse(sortableTime, s)
}

// ddbDecimal stores a decimal as a DynamoDB number without float rounding.
type ddbDecimal struct {
	decimal.Decimal
}

func (d ddbDecimal) MarshalDynamoDBAttributeValue() (types.AttributeValue, error) {
	return &types.AttributeValueMemberN{Value: d.String()}, nil
}

func (d *ddbDecimal) UnmarshalDynamoDBAttributeValue(av types.AttributeValue) error {
	n, ok := av.(*types.AttributeValueMemberN)
	if !ok {
		return fmt.Errorf("cost: expected number attribute, got %T", av)
	}
	v, err := decimal.NewFromString(n.Value)
	if err != nil {
		return fmt.Errorf("cost: %w", err)
	}
	d.Decimal = v
	return nil
}

// orderItem is the DynamoDB representation of a PurchaseOrder.
type orderItem struct {
	OrderID     string     `dynamodbav:"order_id"`
	ItemName    string     `dynamodbav:"item_name"`
	Quantity    int        `dynamodbav:"quantity"`
	Cost        ddbDecimal `dynamodbav:"cost"`
	Description string     `dynamodbav:"description,omitempty"`
	VendorName  string     `dynamodbav:"vendor_name"`
	RequesterID string     `dynamodbav:"requester_id"`
	Status      string     `dynamodbav:"status"`
	CreatedAt   string     `dynamodbav:"created_at"`
	UpdatedAt   string     `dynamodbav:"updated_at"`
	ListPK      string     `dynamodbav:"list_pk"`
}

func toOrderItem(o *PurchaseOrder) orderItem {
	return orderItem{
		OrderID:     o.ID,
		ItemName:    o.ItemName,
		Quantity:    o.Quantity,
		Cost:        ddbDecimal{o.Cost},
		Description: o.Description,
		VendorName:  o.VendorName,
		RequesterID: o.RequesterID,
		Status:      string(o.Status),
		CreatedAt:   formatTime(o.CreatedAt),
		UpdatedAt:   formatTime(o.UpdatedAt),
		ListPK:      listPartition,
	}
}

func (it orderItem) toOrder() (*PurchaseOrder, error) {
	created, err := parseTime(it.CreatedAt)
	if err != nil {
		return nil, fmt.Errorf("created_at: %w", err)
	}
	updated, err := parseTime(it.UpdatedAt)
	if err != nil {
		return nil, fmt.Errorf("updated_at: %w", err)
	}
	return &PurchaseOrder{
		ID:          it.OrderID,
		ItemName:    it.ItemName,
		Quantity:    it.Quantity,
		Cost:        it.Cost.Decimal,
		Description: it.Description,
		VendorName:  it.VendorName,
		RequesterID: it.RequesterID,
		Status:      Status(it.Status),
		CreatedAt:   created,
		UpdatedAt:   updated,
	}, nil
}

// approvalItem is the DynamoDB representation of an ApprovalRecord.
// approval_key sorts records by decision time within an order.
type approvalItem struct {
	OrderID      string `dynamodbav:"order_id"`
	ApprovalKey  string `dynamodbav:"approval_key"`
	ApprovalID   string `dynamodbav:"approval_id"`
	ApproverID   string `dynamodbav:"approver_id"`
	ApproverRole string `dynamodbav:"approver_role"`
	Decision     string `dynamodbav:"decision"`
	Comment      string `dynamodbav:"comment,omitempty"`
	DecidedAt    string `dynamodbav:"decided_at"`
}

func toApprovalItem(r *ApprovalRecord) approvalItem {
	decided := formatTime(r.DecidedAt)
	return approvalItem{
		OrderID:      r.OrderID,
		ApprovalKey:  decided + "#" + r.ID,
		ApprovalID:   r.ID,
		ApproverID:   r.ApproverID,
		ApproverRole: string(r.ApproverRole),
		Decision:     string(r.Decision),
		Comment:      r.Comment,
		DecidedAt:    decided,
	}
}

func (it approvalItem) toRecord() (*ApprovalRecord, error) {
	decided, err := parseTime(it.DecidedAt)
	if err != nil {
		return nil, fmt.Errorf("decided_at: %w", err)
	}
	return &ApprovalRecord{
		ID:           it.ApprovalID,
		OrderID:      it.OrderID,
		ApproverID:   it.ApproverID,
		ApproverRole: roles.Role(it.ApproverRole),
		Decision:     Decision(it.Decision),
		Comment:      it.Comment,
		DecidedAt:    decided,
	}, nil
}

// DynamoDBStore implements Store on two tables: orders keyed by order_id,
// approvals keyed by (order_id, approval_key).
type DynamoDBStore struct {
	client         aws.DynamoDBAPI
	ordersTable    string
	approvalsTable string
}

// NewDynamoDBStore creates a new DynamoDB-backed Store.
func NewDynamoDBStore(client aws.DynamoDBAPI, ordersTable, approvalsTable string) *DynamoDBStore {
	return &DynamoDBStore{
		client:         client,
		ordersTable:    ordersTable,
		approvalsTable: approvalsTable,
	}
}

func (s *DynamoDBStore) CreateOrder(ctx context.Context, o *PurchaseOrder) error {
	item, err := attributevalue.MarshalMap(toOrderItem(o))
	if err != nil {
		return fmt.Errorf("marshal order item: %w", err)
	}

	_, err = s.client.PutItem(ctx, &dyn.PutItemInput{
		TableName:           &s.ordersTable,
		Item:                item,
		ConditionExpression: awsString("attribute_not_exists(order_id)"),
	})
	if err != nil {
		var ccf *types.ConditionalCheckFailedException
		if errors.As(err, &ccf) {
			return fmt.Errorf("%s: %w", o.ID, ErrOrderExists)
		}
		return fmt.Errorf("put item: %w", err)
	}
	return nil
}

func (s *DynamoDBStore) GetOrder(ctx context.Context, id string) (*PurchaseOrder, error) {
	out, err := s.client.GetItem(ctx, &dyn.GetItemInput{
		TableName:      &s.ordersTable,
		Key:            orderKey(id),
		ConsistentRead: awsBool(true),
	})
	if err != nil {
		return nil, fmt.Errorf("get item: %w", err)
	}
	if len(out.Item) == 0 {
		return nil, fmt.Errorf("%s: %w", id, ErrOrderNotFound)
	}
	return unmarshalOrder(out.Item)
}

// ListOrders picks the narrowest index: requester, then status, then the
// all-orders index. Remaining criteria become a filter.
func (s *DynamoDBStore) ListOrders(ctx context.Context, f ListFilter) ([]*PurchaseOrder, error) {
	limit := EffectiveLimit(f.Limit)
	expr := newFilterExpr()

	var keyCond, index string
	switch {
	case f.RequesterID != "":
		index = GSIRequester
		keyCond = "requester_id = :requester"
		expr.values[":requester"] = &types.AttributeValueMemberS{Value: f.RequesterID}
		if f.Status != "" {
			expr.add("#s = :status", ":status", &types.AttributeValueMemberS{Value: string(f.Status)})
			expr.names["#s"] = "status"
		}
	case f.Status != "":
		index = GSIStatus
		keyCond = "#s = :status"
		expr.names["#s"] = "status"
		expr.values[":status"] = &types.AttributeValueMemberS{Value: string(f.Status)}
	default:
		index = GSICreated
		keyCond = "list_pk = :all"
		expr.values[":all"] = &types.AttributeValueMemberS{Value: listPartition}
	}
	if f.MaxCost != nil {
		expr.add("cost <= :max_cost", ":max_cost", &types.AttributeValueMemberN{Value: f.MaxCost.String()})
	}

	items, err := s.queryIndex(ctx, index, keyCond, expr, limit)
	if err != nil {
		return nil, err
	}

	out := make([]*PurchaseOrder, 0, len(items))
	for _, item := range items {
		o, err := unmarshalOrder(item)
		if err != nil {
			return nil, err
		}
		out = append(out, o)
	}
	sortNewestFirst(out)
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (s *DynamoDBStore) queryIndex(ctx context.Context, index, keyCond string, expr *filterExpr, limit int) ([]map[string]types.AttributeValue, error) {
	input := &dyn.QueryInput{
		TableName:                 &s.ordersTable,
		IndexName:                 awsString(index),
		KeyConditionExpression:    awsString(keyCond),
		ExpressionAttributeValues: expr.values,
		ScanIndexForward:          awsBool(false),
	}
	if len(expr.names) > 0 {
		input.ExpressionAttributeNames = expr.names
	}
	if fe := expr.expression(); fe != "" {
		input.FilterExpression = awsString(fe)
	}

	var items []map[string]types.AttributeValue
	for {
		out, err := s.client.Query(ctx, input)
		if err != nil {
			return nil, fmt.Errorf("query %s: %w", index, err)
		}
		items = append(items, out.Items...)
		if len(items) >= limit || len(out.LastEvaluatedKey) == 0 {
			return items, nil
		}
		input.ExclusiveStartKey = out.LastEvaluatedKey
	}
}

func (s *DynamoDBStore) ListApprovals(ctx context.Context, orderID string) ([]*ApprovalRecord, error) {
	input := &dyn.QueryInput{
		TableName:              &s.approvalsTable,
		KeyConditionExpression: awsString("order_id = :id"),
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":id": &types.AttributeValueMemberS{Value: orderID},
		},
		ConsistentRead:   awsBool(true),
		ScanIndexForward: awsBool(true),
	}

	out := make([]*ApprovalRecord, 0)
	for {
		page, err := s.client.Query(ctx, input)
		if err != nil {
			return nil, fmt.Errorf("query approvals: %w", err)
		}
		for _, item := range page.Items {
			var it approvalItem
			if err := attributevalue.UnmarshalMap(item, &it); err != nil {
				return nil, fmt.Errorf("unmarshal approval: %w", err)
			}
			rec, err := it.toRecord()
			if err != nil {
				return nil, err
			}
			out = append(out, rec)
		}
		if len(page.LastEvaluatedKey) == 0 {
			break
		}
		input.ExclusiveStartKey = page.LastEvaluatedKey
	}
	sortOldestFirst(out)
	return out, nil
}

// AppendApproval issues one TransactWriteItems call: a conditional status
// update on the order and a put of the approval record. Either both land or
// neither does.
func (s *DynamoDBStore) AppendApproval(ctx context.Context, orderID string, from, to Status, rec *ApprovalRecord) (*PurchaseOrder, error) {
	if err := checkAppend(orderID, from, to, rec); err != nil {
		return nil, err
	}

	// The read happens before the write so nothing can fail once the
	// transaction has committed. Only status and updated_at ever change.
	cur, err := s.GetOrder(ctx, orderID)
	if err != nil {
		return nil, err
	}
	if cur.Status != from {
		return nil, fmt.Errorf("%s: expected %s, found %s: %w", orderID, from, cur.Status, ErrConcurrentModification)
	}

	recMap, err := attributevalue.MarshalMap(toApprovalItem(rec))
	if err != nil {
		return nil, fmt.Errorf("marshal approval item: %w", err)
	}

	transactItems := []types.TransactWriteItem{
		{
			Update: &types.Update{
				TableName:           &s.ordersTable,
				Key:                 orderKey(orderID),
				UpdateExpression:    awsString("SET #s = :to, updated_at = :ua"),
				ConditionExpression: awsString("attribute_exists(order_id) AND #s = :expected"),
				ExpressionAttributeNames: map[string]string{
					"#s": "status",
				},
				ExpressionAttributeValues: map[string]types.AttributeValue{
					":to":       &types.AttributeValueMemberS{Value: string(to)},
					":expected": &types.AttributeValueMemberS{Value: string(from)},
					":ua":       &types.AttributeValueMemberS{Value: formatTime(rec.DecidedAt)},
				},
			},
		},
		{
			Put: &types.Put{
				TableName:           &s.approvalsTable,
				Item:                recMap,
				ConditionExpression: awsString("attribute_not_exists(approval_key)"),
			},
		},
	}

	_, err = s.client.TransactWriteItems(ctx, &dyn.TransactWriteItemsInput{TransactItems: transactItems})
	if err != nil {
		var tce *types.TransactionCanceledException
		var tconf *types.TransactionConflictException
		switch {
		case errors.As(err, &tce):
			if lostRace(tce) {
				return nil, fmt.Errorf("%s: expected %s: %w", orderID, from, ErrConcurrentModification)
			}
			return nil, fmt.Errorf("transact write cancelled [%s]: %w", cancellationCodes(tce), err)
		case errors.As(err, &tconf):
			return nil, fmt.Errorf("%s: %w", orderID, ErrConcurrentModification)
		}
		return nil, fmt.Errorf("transact write: %w", err)
	}

	updated := cur.Clone()
	updated.Status = to
	updated.UpdatedAt = rec.DecidedAt.UTC()
	return updated, nil
}

// lostRace reports whether a cancellation was caused by a competing writer
// rather than by a throttle or a malformed request.
func lostRace(tce *types.TransactionCanceledException) bool {
	for _, r := range tce.CancellationReasons {
		if r.Code == nil {
			continue
		}
		switch *r.Code {
		case "ConditionalCheckFailed", "TransactionConflict":
			return true
		}
	}
	return false
}

func cancellationCodes(tce *types.TransactionCanceledException) string {
	codes := make([]string, 0, len(tce.CancellationReasons))
	for _, r := range tce.CancellationReasons {
		if r.Code != nil {
			codes = append(codes, *r.Code)
		}
	}
	return strings.Join(codes, ",")
}

func orderKey(id string) map[string]types.AttributeValue {
	return map[string]types.AttributeValue{
		"order_id": &types.AttributeValueMemberS{Value: id},
	}
}

func unmarshalOrder(item map[string]types.AttributeValue) (*PurchaseOrder, error) {
	var it orderItem
	if err := attributevalue.UnmarshalMap(item, &it); err != nil {
		return nil, fmt.Errorf("unmarshal order: %w", err)
	}
	return it.toOrder()
}

// filterExpr accumulates AND-ed filter conditions and their placeholders.
type filterExpr struct {
	conds  []string
	names  map[string]string
	values map[string]types.AttributeValue
}

func newFilterExpr() *filterExpr {
	return &filterExpr{
		names:  map[string]string{},
		values: map[string]types.AttributeValue{},
	}
}

func (e *filterExpr) add(cond, placeholder string, v types.AttributeValue) {
	e.conds = append(e.conds, cond)
	e.values[placeholder] = v
}

func (e *filterExpr) expression() string {
	return strings.Join(e.conds, " AND ")
}

func awsString(s string) *string { return &s }

func awsBool(b bool) *bool { return &b }
