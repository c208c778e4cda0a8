package auth

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	dyn "github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"

	"github.com/imrishuroy/po-approvals/internal/aws"
	"github.com/imrishuroy/po-approvals/internal/roles"
)

// ErrUserNotFound is returned by a Directory for an unknown user ID.
var ErrUserNotFound = errors.New("user not found")

// User is a directory entry. Profile management is out of scope; entries are
// written by cmd/seed.
type User struct {
	ID       string     `dynamodbav:"user_id" json:"id"`
	Username string     `dynamodbav:"username" json:"username"`
	Name     string     `dynamodbav:"name" json:"name"`
	Email    string     `dynamodbav:"email,omitempty" json:"email,omitempty"`
	Role     roles.Role `dynamodbav:"role" json:"role"`
	Active   bool       `dynamodbav:"is_active" json:"is_active"`
}

// Actor returns the engine's view of u.
func (u *User) Actor() roles.Actor {
	return roles.Actor{ID: u.ID, Name: u.Name, Role: u.Role, Active: u.Active}
}

// Directory resolves user IDs to users.
type Directory interface {
	LookupUser(ctx context.Context, id string) (*User, error)
}

// DynamoDBDirectory reads users from a table keyed by user_id.
type DynamoDBDirectory struct {
	client    aws.DynamoDBAPI
	tableName string
}

// NewDynamoDBDirectory returns a Directory over tableName.
func NewDynamoDBDirectory(client aws.DynamoDBAPI, tableName string) *DynamoDBDirectory {
	return &DynamoDBDirectory{client: client, tableName: tableName}
}

func (d *DynamoDBDirectory) LookupUser(ctx context.Context, id string) (*User, error) {
	out, err := d.client.GetItem(ctx, &dyn.GetItemInput{
		TableName: &d.tableName,
		Key: map[string]types.AttributeValue{
			"user_id": &types.AttributeValueMemberS{Value: id},
		},
	})
	if err != nil {
		return nil, fmt.Errorf("get user: %w", err)
	}
	if len(out.Item) == 0 {
		return nil, fmt.Errorf("%s: %w", id, ErrUserNotFound)
	}
	var u User
	if err := attributevalue.UnmarshalMap(out.Item, &u); err != nil {
		return nil, fmt.Errorf("unmarshal user: %w", err)
	}
	return &u, nil
}

// PutUser writes u, replacing any existing entry.
func (d *DynamoDBDirectory) PutUser(ctx context.Context, u *User) error {
	if !u.Role.IsValid() {
		return fmt.Errorf("user %s: unknown role %q", u.ID, u.Role)
	}
	item, err := attributevalue.MarshalMap(u)
	if err != nil {
		return fmt.Errorf("marshal user: %w", err)
	}
	if _, err := d.client.PutItem(ctx, &dyn.PutItemInput{TableName: &d.tableName, Item: item}); err != nil {
		return fmt.Errorf("put user: %w", err)
	}
	return nil
}

// StaticDirectory is an in-memory Directory for local runs and tests.
type StaticDirectory struct {
	mu    sync.RWMutex
	users map[string]*User
}

// NewStaticDirectory returns a directory holding users.
func NewStaticDirectory(users ...*User) *StaticDirectory {
	d := &StaticDirectory{users: make(map[string]*User, len(users))}
	for _, u := range users {
		d.users[u.ID] = u
	}
	return d
}

func (d *StaticDirectory) LookupUser(ctx context.Context, id string) (*User, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	u, ok := d.users[id]
	if !ok {
		return nil, fmt.Errorf("%s: %w", id, ErrUserNotFound)
	}
	c := *u
	return &c, nil
}

func (d *StaticDirectory) PutUser(ctx context.Context, u *User) error {
	if !u.Role.IsValid() {
		return fmt.Errorf("user %s: unknown role %q", u.ID, u.Role)
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	c := *u
	d.users[u.ID] = &c
	return nil
}
