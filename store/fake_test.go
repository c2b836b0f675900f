package store

import (
	"context"
	"reflect"
	"sort"
	"strings"
	"sync"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
)

// fakeClient is an in-memory stand-in for the DynamoDB client. It
// understands exactly the expression shapes this package emits:
// "#f = :v" equality filters, "SET <clauses>" updates, comma-separated
// projections, and the attribute_exists(id) condition.
type fakeClient struct {
	mu     sync.Mutex
	tables map[string]*fakeTable

	// unlisted tables exist but are hidden from ListTables, simulating
	// a collection created between the list and the create call.
	unlisted map[string]bool

	// fault injection
	listErr   error
	createErr map[string]error
	getErr    error
	putErr    error
	updateErr error
	deleteErr error
	scanErr   error

	// call recording
	createCalls []string
	getCalls    []*dynamodb.GetItemInput
	putCalls    []*dynamodb.PutItemInput
	updateCalls []*dynamodb.UpdateItemInput
	deleteCalls []*dynamodb.DeleteItemInput
	scanCalls   []*dynamodb.ScanInput
}

type fakeTable struct {
	order []string
	items map[string]map[string]types.AttributeValue
}

func newFakeClient(tables ...string) *fakeClient {
	f := &fakeClient{
		tables:    map[string]*fakeTable{},
		unlisted:  map[string]bool{},
		createErr: map[string]error{},
	}
	for _, t := range tables {
		f.tables[t] = &fakeTable{items: map[string]map[string]types.AttributeValue{}}
	}
	return f
}

func (f *fakeClient) seed(table, id string, item map[string]types.AttributeValue) {
	f.mu.Lock()
	defer f.mu.Unlock()
	t, ok := f.tables[table]
	if !ok {
		t = &fakeTable{items: map[string]map[string]types.AttributeValue{}}
		f.tables[table] = t
	}
	if _, exists := t.items[id]; !exists {
		t.order = append(t.order, id)
	}
	copied := map[string]types.AttributeValue{idField: &types.AttributeValueMemberS{Value: id}}
	for k, v := range item {
		copied[k] = v
	}
	t.items[id] = copied
}

func (f *fakeClient) item(table, id string) map[string]types.AttributeValue {
	f.mu.Lock()
	defer f.mu.Unlock()
	t, ok := f.tables[table]
	if !ok {
		return nil
	}
	return t.items[id]
}

func (f *fakeClient) ListTables(ctx context.Context, params *dynamodb.ListTablesInput, optFns ...func(*dynamodb.Options)) (*dynamodb.ListTablesOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.listErr != nil {
		return nil, f.listErr
	}
	var names []string
	for name := range f.tables {
		if !f.unlisted[name] {
			names = append(names, name)
		}
	}
	sort.Strings(names)
	return &dynamodb.ListTablesOutput{TableNames: names}, nil
}

func (f *fakeClient) CreateTable(ctx context.Context, params *dynamodb.CreateTableInput, optFns ...func(*dynamodb.Options)) (*dynamodb.CreateTableOutput, error) {
	name := aws.ToString(params.TableName)
	f.mu.Lock()
	defer f.mu.Unlock()
	f.createCalls = append(f.createCalls, name)
	if err := f.createErr[name]; err != nil {
		return nil, err
	}
	if _, exists := f.tables[name]; exists {
		return nil, &types.ResourceInUseException{Message: aws.String("table already exists: " + name)}
	}
	f.tables[name] = &fakeTable{items: map[string]map[string]types.AttributeValue{}}
	return &dynamodb.CreateTableOutput{}, nil
}

func (f *fakeClient) DescribeTable(ctx context.Context, params *dynamodb.DescribeTableInput, optFns ...func(*dynamodb.Options)) (*dynamodb.DescribeTableOutput, error) {
	name := aws.ToString(params.TableName)
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, exists := f.tables[name]; !exists {
		return nil, &types.ResourceNotFoundException{Message: aws.String("table not found: " + name)}
	}
	return &dynamodb.DescribeTableOutput{
		Table: &types.TableDescription{
			TableName:   aws.String(name),
			TableStatus: types.TableStatusActive,
		},
	}, nil
}

func (f *fakeClient) GetItem(ctx context.Context, params *dynamodb.GetItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.GetItemOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.getCalls = append(f.getCalls, params)
	if f.getErr != nil {
		return nil, f.getErr
	}
	t, ok := f.tables[aws.ToString(params.TableName)]
	if !ok {
		return nil, &types.ResourceNotFoundException{Message: aws.String("table not found")}
	}
	item := t.items[keyID(params.Key)]
	return &dynamodb.GetItemOutput{Item: item}, nil
}

func (f *fakeClient) PutItem(ctx context.Context, params *dynamodb.PutItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.PutItemOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.putCalls = append(f.putCalls, params)
	if f.putErr != nil {
		return nil, f.putErr
	}
	t, ok := f.tables[aws.ToString(params.TableName)]
	if !ok {
		return nil, &types.ResourceNotFoundException{Message: aws.String("table not found")}
	}
	id := keyID(params.Item)
	if _, exists := t.items[id]; !exists {
		t.order = append(t.order, id)
	}
	t.items[id] = params.Item
	return &dynamodb.PutItemOutput{}, nil
}

func (f *fakeClient) UpdateItem(ctx context.Context, params *dynamodb.UpdateItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.UpdateItemOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.updateCalls = append(f.updateCalls, params)
	if f.updateErr != nil {
		return nil, f.updateErr
	}
	t, ok := f.tables[aws.ToString(params.TableName)]
	if !ok {
		return nil, &types.ResourceNotFoundException{Message: aws.String("table not found")}
	}
	item, exists := t.items[keyID(params.Key)]
	if !exists {
		return nil, &types.ConditionalCheckFailedException{Message: aws.String("conditional check failed")}
	}
	applySet(item, params.UpdateExpression, params.ExpressionAttributeNames, params.ExpressionAttributeValues)
	return &dynamodb.UpdateItemOutput{}, nil
}

func (f *fakeClient) DeleteItem(ctx context.Context, params *dynamodb.DeleteItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.DeleteItemOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.deleteCalls = append(f.deleteCalls, params)
	if f.deleteErr != nil {
		return nil, f.deleteErr
	}
	t, ok := f.tables[aws.ToString(params.TableName)]
	if !ok {
		return nil, &types.ResourceNotFoundException{Message: aws.String("table not found")}
	}
	id := keyID(params.Key)
	if _, exists := t.items[id]; !exists {
		return nil, &types.ConditionalCheckFailedException{Message: aws.String("conditional check failed")}
	}
	delete(t.items, id)
	for i, existing := range t.order {
		if existing == id {
			t.order = append(t.order[:i], t.order[i+1:]...)
			break
		}
	}
	return &dynamodb.DeleteItemOutput{}, nil
}

func (f *fakeClient) Scan(ctx context.Context, params *dynamodb.ScanInput, optFns ...func(*dynamodb.Options)) (*dynamodb.ScanOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.scanCalls = append(f.scanCalls, params)
	if f.scanErr != nil {
		return nil, f.scanErr
	}
	t, ok := f.tables[aws.ToString(params.TableName)]
	if !ok {
		return nil, &types.ResourceNotFoundException{Message: aws.String("table not found")}
	}

	var items []map[string]types.AttributeValue
	for _, id := range t.order {
		item := t.items[id]
		if !matchesFilter(item, params.FilterExpression, params.ExpressionAttributeNames, params.ExpressionAttributeValues) {
			continue
		}
		items = append(items, project(item, params.ProjectionExpression, params.ExpressionAttributeNames))
	}
	return &dynamodb.ScanOutput{Items: items}, nil
}

// --- expression helpers, matching the shapes this package emits ---

func keyID(key map[string]types.AttributeValue) string {
	if v, ok := key[idField].(*types.AttributeValueMemberS); ok {
		return v.Value
	}
	return ""
}

func resolveName(token string, names map[string]string) string {
	if strings.HasPrefix(token, "#") {
		return names[token]
	}
	return token
}

func matchesFilter(item map[string]types.AttributeValue, filter *string, names map[string]string, values map[string]types.AttributeValue) bool {
	if filter == nil {
		return true
	}
	parts := strings.Split(*filter, " = ")
	field := resolveName(parts[0], names)
	want := values[parts[1]]
	have, ok := item[field]
	return ok && reflect.DeepEqual(have, want)
}

func project(item map[string]types.AttributeValue, projection *string, names map[string]string) map[string]types.AttributeValue {
	if projection == nil {
		return item
	}
	out := map[string]types.AttributeValue{}
	for _, token := range strings.Split(*projection, ", ") {
		field := resolveName(token, names)
		if v, ok := item[field]; ok {
			out[field] = v
		}
	}
	return out
}

func applySet(item map[string]types.AttributeValue, expr *string, names map[string]string, values map[string]types.AttributeValue) {
	clauses := strings.TrimPrefix(aws.ToString(expr), "SET ")
	for _, clause := range strings.Split(clauses, ", ") {
		parts := strings.Split(clause, " = ")
		if len(parts) != 2 {
			continue
		}
		item[resolveName(parts[0], names)] = values[parts[1]]
	}
}
