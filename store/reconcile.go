package store

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
)

// tableActiveTimeout bounds the wait for a freshly created table to
// become usable. CreateTable is asynchronous on the store side.
const tableActiveTimeout = 2 * time.Minute

// tableName maps a collection to its backing table.
func tableName(database, collection string) string {
	return database + "." + collection
}

// reconcileCollections makes the store's collections match the desired
// set: existing collections are listed once, the missing ones are
// created, and collections that already exist are left alone. Runs once
// per connection and is safe to run against a store that already has
// some or all collections.
//
// Each missing collection is created independently and concurrently; a
// collection that appears between the list and the create (or any other
// per-collection failure) is logged and does not abort the rest. Returns
// once every create has settled.
func reconcileCollections(ctx context.Context, client Client, database string, desired []string, logger *slog.Logger) {
	if len(desired) == 0 {
		logger.Info("no collections declared, nothing to reconcile", "database", database)
		return
	}

	existing, err := listCollections(ctx, client, database)
	if err != nil {
		// Creation tolerates already-exists, so an empty view is a
		// safe fallback when the listing itself fails.
		logger.Error("list collections failed, assuming none exist", "error", err)
		existing = nil
	}

	have := make(map[string]bool, len(existing))
	for _, name := range existing {
		have[name] = true
	}

	// Desired order is preserved; duplicates collapse to one create.
	var missing []string
	for _, name := range desired {
		if !have[name] {
			have[name] = true
			missing = append(missing, name)
		}
	}

	if len(missing) == 0 {
		logger.Info("collections already reconciled", "database", database, "count", len(desired))
		return
	}

	var wg sync.WaitGroup
	for _, name := range missing {
		wg.Add(1)
		go func(name string) {
			defer wg.Done()
			createCollection(ctx, client, database, name, logger)
		}(name)
	}
	wg.Wait()
}

// createCollection creates one collection's backing table and waits for
// it to become active. Already-exists is a success: another creator won
// the race and the collection is there either way.
func createCollection(ctx context.Context, client Client, database, collection string, logger *slog.Logger) {
	table := tableName(database, collection)

	_, err := client.CreateTable(ctx, &dynamodb.CreateTableInput{
		TableName: aws.String(table),
		AttributeDefinitions: []types.AttributeDefinition{
			{AttributeName: aws.String(idField), AttributeType: types.ScalarAttributeTypeS},
		},
		KeySchema: []types.KeySchemaElement{
			{AttributeName: aws.String(idField), KeyType: types.KeyTypeHash},
		},
		BillingMode: types.BillingModePayPerRequest,
	})
	if err != nil {
		var inUse *types.ResourceInUseException
		if errors.As(err, &inUse) {
			logger.Debug("collection already exists", "collection", collection)
			return
		}
		logger.Error("create collection failed", "collection", collection, "error", err)
		return
	}

	waiter := dynamodb.NewTableExistsWaiter(client)
	if err := waiter.Wait(ctx, &dynamodb.DescribeTableInput{
		TableName: aws.String(table),
	}, tableActiveTimeout); err != nil {
		logger.Error("collection did not become active", "collection", collection, "error", err)
		return
	}

	logger.Info("collection created", "collection", collection)
}

// listCollections returns the names of the database's existing
// collections, stripped of the table name prefix.
func listCollections(ctx context.Context, client Client, database string) ([]string, error) {
	prefix := database + "."

	var names []string
	paginator := dynamodb.NewListTablesPaginator(client, &dynamodb.ListTablesInput{})
	for paginator.HasMorePages() {
		page, err := paginator.NextPage(ctx)
		if err != nil {
			return nil, err
		}
		for _, table := range page.TableNames {
			if strings.HasPrefix(table, prefix) {
				names = append(names, strings.TrimPrefix(table, prefix))
			}
		}
	}

	return names, nil
}
