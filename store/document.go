package store

import (
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
)

// idField is the identity field every document carries. It doubles as
// the hash key of every collection's backing table.
const idField = "id"

// Document is a schemaless record stored in a collection. The identity
// field "id" holds a canonical UUID string.
type Document map[string]any

// ID returns the document's identity, or "" when absent.
func (d Document) ID() string {
	id, _ := d[idField].(string)
	return id
}

// marshalDocument converts a Document to its stored attribute form.
func marshalDocument(doc Document) (map[string]types.AttributeValue, error) {
	return attributevalue.MarshalMap(map[string]any(doc))
}

// unmarshalDocument converts a stored item back to a Document.
func unmarshalDocument(item map[string]types.AttributeValue) (Document, error) {
	var doc Document
	if err := attributevalue.UnmarshalMap(item, &doc); err != nil {
		return nil, err
	}
	return doc, nil
}

// unmarshalDocuments converts a batch of stored items, preserving order.
func unmarshalDocuments(items []map[string]types.AttributeValue) ([]Document, error) {
	docs := make([]Document, 0, len(items))
	for _, item := range items {
		doc, err := unmarshalDocument(item)
		if err != nil {
			return nil, err
		}
		docs = append(docs, doc)
	}
	return docs, nil
}
