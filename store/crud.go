package store

import (
	"context"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"

	"github.com/jacentio/pergola/internal/docid"
)

// The CRUD surface is stateless: every operation takes a collection name
// and runs against the shared client. Operations assume the connection
// has reached Ready; issued earlier they fault at the store level.
//
// Error contracts follow two shapes. The fetch, insert, select, and bulk
// operations propagate store errors as-is. UpdateByID,
// UpdateByIDExpression, and DeleteByID swallow them: the cause is logged
// and the caller sees a bare false, with no way to tell "not found" from
// a store fault.

// UpdateExpression is a verbatim update for UpdateByIDExpression. The
// expression, name placeholders, and value placeholders pass through to
// the store untouched, so operator forms (ADD, REMOVE, list appends) are
// available without the merge wrapper.
type UpdateExpression struct {
	Expression string
	Names      map[string]string
	Values     map[string]any
}

// FetchOne returns the first document whose field equals value, or
// ErrNotFound. The identity field takes a direct key lookup after the
// value is coerced to canonical identity form.
func (c *Connection) FetchOne(ctx context.Context, field string, value any, collection string) (Document, error) {
	if field == idField {
		id, err := coerceID(value)
		if err != nil {
			return nil, err
		}
		out, err := c.client.GetItem(ctx, &dynamodb.GetItemInput{
			TableName: aws.String(c.table(collection)),
			Key:       idKey(id),
		})
		if err != nil {
			return nil, err
		}
		if out.Item == nil {
			return nil, ErrNotFound
		}
		return unmarshalDocument(out.Item)
	}

	input, err := scanByField(c.table(collection), field, value)
	if err != nil {
		return nil, err
	}

	paginator := dynamodb.NewScanPaginator(c.client, input)
	for paginator.HasMorePages() {
		page, err := paginator.NextPage(ctx)
		if err != nil {
			return nil, err
		}
		if len(page.Items) > 0 {
			return unmarshalDocument(page.Items[0])
		}
	}

	return nil, ErrNotFound
}

// FetchMany returns every document whose field equals value, in store
// order. No match yields an empty slice, not an error.
func (c *Connection) FetchMany(ctx context.Context, field string, value any, collection string) ([]Document, error) {
	if field == idField {
		id, err := coerceID(value)
		if err != nil {
			return nil, err
		}
		value = id
	}

	input, err := scanByField(c.table(collection), field, value)
	if err != nil {
		return nil, err
	}
	return c.scanAll(ctx, input)
}

// FetchAll returns every document in the collection.
func (c *Connection) FetchAll(ctx context.Context, collection string) ([]Document, error) {
	return c.scanAll(ctx, &dynamodb.ScanInput{
		TableName: aws.String(c.table(collection)),
	})
}

// Select returns every document in the collection projected to the
// identity field plus the requested field names.
func (c *Connection) Select(ctx context.Context, collection string, fields []string) ([]Document, error) {
	expr, names := buildProjection(fields)
	return c.scanAll(ctx, &dynamodb.ScanInput{
		TableName:                aws.String(c.table(collection)),
		ProjectionExpression:     aws.String(expr),
		ExpressionAttributeNames: names,
	})
}

// Insert persists a document, assigning a fresh identity when the
// document carries none. The persisted document is re-fetched by that
// identity and returned only when returnDocument is set; otherwise the
// result is nil.
func (c *Connection) Insert(ctx context.Context, doc Document, collection string, returnDocument bool) (Document, error) {
	stored := make(Document, len(doc)+1)
	for k, v := range doc {
		stored[k] = v
	}

	id := stored.ID()
	if id == "" {
		id = docid.New()
	} else {
		var err error
		if id, err = docid.Parse(id); err != nil {
			return nil, err
		}
	}
	stored[idField] = id

	item, err := marshalDocument(stored)
	if err != nil {
		return nil, err
	}

	if _, err := c.client.PutItem(ctx, &dynamodb.PutItemInput{
		TableName: aws.String(c.table(collection)),
		Item:      item,
	}); err != nil {
		return nil, err
	}

	if !returnDocument {
		return nil, nil
	}
	return c.FetchOne(ctx, idField, id, collection)
}

// UpdateByID merges fields into the document with the given identity
// (shallow field overwrite, not replacement). The identity field itself
// is never rewritten. Reports success as a bare boolean: any failure,
// including a missing document, is logged and comes back false.
func (c *Connection) UpdateByID(ctx context.Context, id string, fields Document, collection string) bool {
	canonical, err := docid.Parse(id)
	if err != nil {
		c.logger.Error("update by id failed", "collection", collection, "error", err)
		return false
	}

	expr, names, values, err := buildMergeExpression(fields)
	if err != nil {
		c.logger.Error("update by id failed", "collection", collection, "id", canonical, "error", err)
		return false
	}
	if expr == "" {
		return true
	}

	if _, err := c.client.UpdateItem(ctx, &dynamodb.UpdateItemInput{
		TableName:                 aws.String(c.table(collection)),
		Key:                       idKey(canonical),
		UpdateExpression:          aws.String(expr),
		ConditionExpression:       aws.String("attribute_exists(id)"),
		ExpressionAttributeNames:  names,
		ExpressionAttributeValues: values,
	}); err != nil {
		c.logger.Error("update by id failed", "collection", collection, "id", canonical, "error", err)
		return false
	}
	return true
}

// UpdateByIDExpression applies a verbatim update expression to the
// document with the given identity. Same swallowed-error boolean
// contract as UpdateByID.
func (c *Connection) UpdateByIDExpression(ctx context.Context, id string, update UpdateExpression, collection string) bool {
	canonical, err := docid.Parse(id)
	if err != nil {
		c.logger.Error("update by id expression failed", "collection", collection, "error", err)
		return false
	}

	values, err := marshalValues(update.Values)
	if err != nil {
		c.logger.Error("update by id expression failed", "collection", collection, "id", canonical, "error", err)
		return false
	}

	if _, err := c.client.UpdateItem(ctx, &dynamodb.UpdateItemInput{
		TableName:                 aws.String(c.table(collection)),
		Key:                       idKey(canonical),
		UpdateExpression:          aws.String(update.Expression),
		ConditionExpression:       aws.String("attribute_exists(id)"),
		ExpressionAttributeNames:  update.Names,
		ExpressionAttributeValues: values,
	}); err != nil {
		c.logger.Error("update by id expression failed", "collection", collection, "id", canonical, "error", err)
		return false
	}
	return true
}

// UpdateByField merges fields into the first document whose field equals
// value. Identity coercion applies when selecting by the identity field.
// Unlike UpdateByID, errors propagate, including ErrNotFound when no
// document matches.
func (c *Connection) UpdateByField(ctx context.Context, field string, value any, fields Document, collection string) error {
	target, err := c.FetchOne(ctx, field, value, collection)
	if err != nil {
		return err
	}

	expr, names, values, err := buildMergeExpression(fields)
	if err != nil {
		return err
	}
	if expr == "" {
		return nil
	}

	if _, err := c.client.UpdateItem(ctx, &dynamodb.UpdateItemInput{
		TableName:                 aws.String(c.table(collection)),
		Key:                       idKey(target.ID()),
		UpdateExpression:          aws.String(expr),
		ConditionExpression:       aws.String("attribute_exists(id)"),
		ExpressionAttributeNames:  names,
		ExpressionAttributeValues: values,
	}); err != nil {
		return fmt.Errorf("update %q by %s: %w", collection, field, err)
	}
	return nil
}

// DeleteByID deletes the document with the given identity. Swallowed-
// error boolean contract: false covers malformed identity, missing
// document, and store faults alike.
func (c *Connection) DeleteByID(ctx context.Context, id string, collection string) bool {
	canonical, err := docid.Parse(id)
	if err != nil {
		c.logger.Error("delete by id failed", "collection", collection, "error", err)
		return false
	}

	if _, err := c.client.DeleteItem(ctx, &dynamodb.DeleteItemInput{
		TableName:           aws.String(c.table(collection)),
		Key:                 idKey(canonical),
		ConditionExpression: aws.String("attribute_exists(id)"),
	}); err != nil {
		c.logger.Error("delete by id failed", "collection", collection, "id", canonical, "error", err)
		return false
	}
	return true
}

// ReplaceFieldValue rewrites field to newValue on every document
// currently holding oldValue. The identity field cannot be rewritten.
func (c *Connection) ReplaceFieldValue(ctx context.Context, collection, field string, oldValue, newValue any) error {
	if field == idField {
		return fmt.Errorf("pergola: the identity field cannot be replaced")
	}

	input, err := scanByField(c.table(collection), field, oldValue)
	if err != nil {
		return err
	}
	// Only identities are needed to address the rewrites.
	input.ProjectionExpression = aws.String(idField)

	matched, err := c.scanAll(ctx, input)
	if err != nil {
		return err
	}

	newAV, err := attributevalue.Marshal(newValue)
	if err != nil {
		return fmt.Errorf("marshal %s: %w", field, err)
	}

	for _, doc := range matched {
		_, err := c.client.UpdateItem(ctx, &dynamodb.UpdateItemInput{
			TableName:                 aws.String(c.table(collection)),
			Key:                       idKey(doc.ID()),
			UpdateExpression:          aws.String("SET #f = :new"),
			ConditionExpression:       aws.String("attribute_exists(id)"),
			ExpressionAttributeNames:  map[string]string{"#f": field},
			ExpressionAttributeValues: map[string]types.AttributeValue{":new": newAV},
		})
		if err != nil {
			return fmt.Errorf("replace %s on %q: %w", field, doc.ID(), err)
		}
	}
	return nil
}

// --- helpers ---

func (c *Connection) table(collection string) string {
	return tableName(c.cfg.Database, collection)
}

// scanAll drains a scan through all pages. No match is an empty slice.
func (c *Connection) scanAll(ctx context.Context, input *dynamodb.ScanInput) ([]Document, error) {
	docs := []Document{}
	paginator := dynamodb.NewScanPaginator(c.client, input)
	for paginator.HasMorePages() {
		page, err := paginator.NextPage(ctx)
		if err != nil {
			return nil, err
		}
		batch, err := unmarshalDocuments(page.Items)
		if err != nil {
			return nil, err
		}
		docs = append(docs, batch...)
	}
	return docs, nil
}

func idKey(id string) map[string]types.AttributeValue {
	return map[string]types.AttributeValue{
		idField: &types.AttributeValueMemberS{Value: id},
	}
}

// coerceID converts a filter value for the identity field to canonical
// identity form.
func coerceID(value any) (string, error) {
	s, ok := value.(string)
	if !ok {
		return "", fmt.Errorf("pergola: identity value must be a string, got %T", value)
	}
	return docid.Parse(s)
}

// scanByField builds a field-equality scan.
func scanByField(table, field string, value any) (*dynamodb.ScanInput, error) {
	av, err := attributevalue.Marshal(value)
	if err != nil {
		return nil, fmt.Errorf("marshal %s: %w", field, err)
	}
	return &dynamodb.ScanInput{
		TableName:                 aws.String(table),
		FilterExpression:          aws.String("#f = :v"),
		ExpressionAttributeNames:  map[string]string{"#f": field},
		ExpressionAttributeValues: map[string]types.AttributeValue{":v": av},
	}, nil
}

// buildProjection builds the projection for Select: the identity field
// plus the requested fields, all behind name placeholders.
func buildProjection(fields []string) (string, map[string]string) {
	names := map[string]string{"#id": idField}
	parts := []string{"#id"}
	for i, field := range fields {
		if field == idField {
			continue
		}
		key := fmt.Sprintf("#p%d", i)
		names[key] = field
		parts = append(parts, key)
	}
	return joinStrings(parts, ", "), names
}

// buildMergeExpression builds a SET expression that overwrites exactly
// the given fields, leaving the rest of the document alone. The identity
// field is skipped. An empty expression means there is nothing to merge.
func buildMergeExpression(fields Document) (string, map[string]string, map[string]types.AttributeValue, error) {
	var setClauses []string
	names := map[string]string{}
	values := map[string]types.AttributeValue{}

	i := 0
	for k, v := range fields {
		if k == idField {
			continue
		}
		av, err := attributevalue.Marshal(v)
		if err != nil {
			return "", nil, nil, fmt.Errorf("marshal %s: %w", k, err)
		}
		nameKey := fmt.Sprintf("#attr%d", i)
		valueKey := fmt.Sprintf(":val%d", i)
		names[nameKey] = k
		values[valueKey] = av
		setClauses = append(setClauses, fmt.Sprintf("%s = %s", nameKey, valueKey))
		i++
	}

	if len(setClauses) == 0 {
		return "", nil, nil, nil
	}
	return "SET " + joinStrings(setClauses, ", "), names, values, nil
}

// marshalValues converts caller-provided expression values to their
// stored attribute form. Empty input maps to nil, which the store
// requires when an expression has no value placeholders.
func marshalValues(values map[string]any) (map[string]types.AttributeValue, error) {
	if len(values) == 0 {
		return nil, nil
	}
	out := make(map[string]types.AttributeValue, len(values))
	for k, v := range values {
		av, err := attributevalue.Marshal(v)
		if err != nil {
			return nil, fmt.Errorf("marshal %s: %w", k, err)
		}
		out[k] = av
	}
	return out, nil
}

// joinStrings joins strings with a separator (avoiding strings package import).
func joinStrings(strs []string, sep string) string {
	if len(strs) == 0 {
		return ""
	}
	result := strs[0]
	for _, s := range strs[1:] {
		result += sep + s
	}
	return result
}
